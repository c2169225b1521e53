package interview

import (
	"context"

	"saga/pkg/logx"
	"saga/pkg/session"
)

// ContinueExecutor runs one interview round: the interviewer asks, the
// subject answers, and both turns land in the transcript together. When
// either side fails the round is skipped and the transcript is left with
// complete question/answer pairs only.
type ContinueExecutor struct {
	interviewer *Interviewer
	subject     SubjectSource
	logger      *logx.Logger
}

// NewContinueExecutor wires an interviewer to a subject source.
func NewContinueExecutor(interviewer *Interviewer, subject SubjectSource, logger *logx.Logger) *ContinueExecutor {
	if logger == nil {
		logger = logx.NewLogger("interview")
	}
	return &ContinueExecutor{interviewer: interviewer, subject: subject, logger: logger}
}

// Execute performs one question/answer round.
func (x *ContinueExecutor) Execute(ctx context.Context, state *session.SessionState) error {
	state.Phase = session.PhaseInterview

	question, _, err := x.interviewer.NextQuestion(ctx, state)
	if err != nil {
		return err
	}

	answer, err := x.subject.Answer(ctx, state, question)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		x.logger.Warn("no answer this round, skipping: %v", err)
		return nil
	}

	state.AppendTurn(session.SpeakerInterviewer, question)
	state.AppendTurn(session.SpeakerSubject, answer)
	x.logger.Info("interview round %d recorded (%d answer chars)", state.Rounds(), len(answer))
	return nil
}

// EndExecutor closes the interview stage. It only moves the phase marker;
// the transcript stays available to every later stage.
type EndExecutor struct {
	logger *logx.Logger
}

// NewEndExecutor creates the end-of-interview executor.
func NewEndExecutor(logger *logx.Logger) *EndExecutor {
	if logger == nil {
		logger = logx.NewLogger("interview")
	}
	return &EndExecutor{logger: logger}
}

// Execute marks the interview as finished.
func (x *EndExecutor) Execute(_ context.Context, state *session.SessionState) error {
	state.Phase = session.PhasePostInterview
	x.logger.Info("interview ended after %d rounds", state.Rounds())
	return nil
}
