// Package interview conducts the dialogue that feeds the biography: an
// interviewer that plans questions by life stage, and subject sources that
// supply answers (a human at a terminal, or a persona-driven simulation for
// batch runs).
package interview

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"saga/pkg/config"
	"saga/pkg/llm"
	"saga/pkg/logx"
	"saga/pkg/session"
	"saga/pkg/utils"
)

// OpeningQuestion starts every interview. It is fixed rather than generated
// so the first round never depends on backend availability.
const OpeningQuestion = `Hello! I'm a life-story interviewer, and I'm glad to be listening to your story today.

Our goal is to walk through your life together and gather the memories and experiences that will become your biography.

Could you start by introducing yourself briefly — your name, your age, and what life looks like these days? We can begin wherever you'd like.

Take your time, and talk to me as you would to an old friend.`

// scriptedQuestions is the offline question track used when the backend
// cannot produce a question. Ordered roughly along a life's arc.
//
//nolint:gochecknoglobals // Static fallback script.
var scriptedQuestions = []string{
	"Could you start by introducing yourself?",
	"Tell me about the family you grew up in — what is your deepest childhood memory?",
	"What was school like for you? Were there teachers or classmates who left a mark?",
	"When was your first job, and how did it feel at the time?",
	"Can you tell me about your love life? How did you meet your partner?",
	"After you had children, what changed in your life?",
	"Looking back, which period of your life was the hardest?",
	"Which moments made you feel especially proud or satisfied?",
	"If you could give advice to your younger self, what would you say?",
	"Looking back now, what do you think shaped you the most?",
}

const interviewerSystemPrompt = `You are a senior life-story interviewer conducting an in-depth biographical interview.

Principles:
- Ask exactly one question per turn, shaped by the subject's latest answer.
- Pick up emotional cues and concrete keywords; ask for specifics (times, places, people, feelings).
- Move naturally between life stages; be warm, sincere, and curious.

Before the question, think inside tags, then give only the question:
<thinking>
  <intent>what this round should uncover</intent>
  <memory>key things the subject has shared</memory>
  <mental_state>the subject's current mood and openness</mental_state>
</thinking>
<response>your single question</response>`

// Thinking is the interviewer's tagged reasoning, parsed for operator
// display; absent when the backend skipped the tags.
type Thinking struct {
	Intent      string
	Memory      string
	MentalState string
}

// Interviewer generates interview questions.
type Interviewer struct {
	client llm.LLMClient
	cfg    config.PipelineConfig
	logger *logx.Logger
}

// NewInterviewer creates an interviewer on the given backend.
func NewInterviewer(client llm.LLMClient, cfg config.PipelineConfig, logger *logx.Logger) *Interviewer {
	if logger == nil {
		logger = logx.NewLogger("interview")
	}
	return &Interviewer{client: client, cfg: cfg, logger: logger}
}

// promptTailChars bounds how much transcript rides along with each question
// request.
const promptTailChars = 1500

// NextQuestion produces the next question for the session. The first round
// always uses the fixed opening; later rounds generate from the conversation
// and degrade to the scripted track when the backend fails. The error return
// is only non-nil when the context is done.
func (iv *Interviewer) NextQuestion(ctx context.Context, state *session.SessionState) (string, *Thinking, error) {
	if len(state.Dialogue) == 0 {
		return OpeningQuestion, nil, nil
	}

	round := state.Rounds() + 1
	req := llm.NewCompletionRequest(
		llm.NewSystemMessage(interviewerSystemPrompt),
		llm.NewUserMessage(iv.buildQuestionPrompt(state, round)),
	)
	req.Temperature = 0.7

	resp, err := iv.client.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		question := scriptedQuestion(round)
		iv.logger.Warn("question generation failed (round %d), using scripted question: %v", round, err)
		return question, nil, nil
	}

	question, thinking := parseQuestion(resp.Content)
	if thinking != nil {
		iv.logger.Debug("interviewer thinking: intent=%q memory=%q mental_state=%q",
			thinking.Intent, thinking.Memory, thinking.MentalState)
	}
	return question, thinking, nil
}

// buildQuestionPrompt renders the per-round request: recent conversation,
// the subject's last answer, and the stage focus for this round.
func (iv *Interviewer) buildQuestionPrompt(state *session.SessionState, round int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Interview round %d.\n", round)
	fmt.Fprintf(&b, "Current focus: %s.\n", stageFocus(round))

	maxRounds := iv.cfg.MaxInterviewRounds
	if maxRounds <= 0 {
		maxRounds = config.DefaultMaxInterviewRounds
	}
	if round > maxRounds {
		b.WriteString("The interview has run long: steer toward reflection and closing; ask a question that helps the subject sum up.\n")
	}

	b.WriteString("\nConversation so far (tail):\n")
	b.WriteString(utils.Tail(state.InterviewText(), promptTailChars))

	if len(state.Dialogue) > 0 {
		last := state.Dialogue[len(state.Dialogue)-1]
		fmt.Fprintf(&b, "\n\nSubject's latest answer: %s\n", last.Content)
	}

	b.WriteString("\nGenerate the next question.")
	return b.String()
}

// stageFocus plans the interview arc by round, mirroring how a biographer
// walks a life: origins first, then schooling and work, then family, then
// the hard and proud parts.
func stageFocus(round int) string {
	switch {
	case round <= 5:
		return "childhood and family background"
	case round <= 10:
		return "education and working life"
	case round <= 15:
		return "marriage, family, and close relationships"
	default:
		return "challenges, achievements, and reflections"
	}
}

// scriptedQuestion returns the offline question for a round, clamping past
// the end of the script so late rounds stay reflective instead of cycling
// back to introductions.
func scriptedQuestion(round int) string {
	idx := round - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(scriptedQuestions) {
		idx = len(scriptedQuestions) - 1
	}
	return scriptedQuestions[idx]
}

var (
	thinkingRe    = regexp.MustCompile(`(?s)<thinking>(.*?)</thinking>`)
	responseRe    = regexp.MustCompile(`(?s)<response>(.*?)</response>`)
	intentRe      = regexp.MustCompile(`(?s)<intent>(.*?)</intent>`)
	memoryRe      = regexp.MustCompile(`(?s)<memory>(.*?)</memory>`)
	mentalStateRe = regexp.MustCompile(`(?s)<mental_state>(.*?)</mental_state>`)
	leftoverTagRe = regexp.MustCompile(`</?(?:thinking|response|intent|memory|mental_state)>`)
)

// minQuestionChars guards against tag-stripping leaving an unusably short
// fragment; below it the raw output is used as the question.
const minQuestionChars = 10

// parseQuestion extracts the question and optional thinking block from raw
// backend output. Models drift on tag discipline, so every combination of
// present/missing tags must yield something askable.
func parseQuestion(raw string) (string, *Thinking) {
	full := strings.TrimSpace(raw)
	question := full
	var thinking *Thinking

	if m := thinkingRe.FindStringSubmatch(full); m != nil {
		inner := m[1]
		thinking = &Thinking{
			Intent:      submatchText(intentRe, inner),
			Memory:      submatchText(memoryRe, inner),
			MentalState: submatchText(mentalStateRe, inner),
		}
		question = thinkingRe.ReplaceAllString(full, "")
	}

	if m := responseRe.FindStringSubmatch(full); m != nil {
		question = m[1]
	}

	question = strings.TrimSpace(leftoverTagRe.ReplaceAllString(question, ""))
	if len(question) < minQuestionChars {
		question = full
	}
	return question, thinking
}

func submatchText(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
