// Package writer drafts and refines the biography. The initial draft builds
// a first-person life story over a seven-element narrative arc; refinement
// rewrites comprehensively or tightens the structure depending on how the
// last evaluation scored.
package writer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"saga/pkg/config"
	"saga/pkg/llm"
	"saga/pkg/logx"
	"saga/pkg/session"
	"saga/pkg/utils"
)

// draftMaxTokens leaves room for a full-length draft; providers clamp it to
// their own output limits.
const draftMaxTokens = 8192

// historyTokenBudget bounds how much researched background rides along with
// a writing prompt.
const historyTokenBudget = 12000

// narrativeArc is the seven-element structure every draft is organized
// around. The elements steer the writing; the finished text never names them.
const narrativeArc = `- Protagonist: the subject as the main character of their own life
- Shift: key turning points and new experiences
- Quest: goals and life missions
- Allies: support from others and mentors
- Challenge: obstacles and difficulties faced
- Transformation: personal growth and change
- Legacy: lasting impact on others`

// WriteExecutor produces the initial biography draft from the interview and
// whatever historical context research has accumulated. A failed draft
// appends nothing: version numbering only ever moves on success.
type WriteExecutor struct {
	client llm.LLMClient
	tokens *utils.TokenCounter
	logger *logx.Logger
}

// NewWriteExecutor creates the drafting executor.
func NewWriteExecutor(client llm.LLMClient, logger *logx.Logger) *WriteExecutor {
	if logger == nil {
		logger = logx.NewLogger("writer")
	}
	tokens, err := utils.NewTokenCounter(client.GetModelName())
	if err != nil {
		tokens = &utils.TokenCounter{}
	}
	return &WriteExecutor{client: client, tokens: tokens, logger: logger}
}

// Execute drafts a new biography version. Drafting without interview content
// is a precondition violation: it warns and appends nothing.
func (x *WriteExecutor) Execute(ctx context.Context, state *session.SessionState) error {
	state.Phase = session.PhaseWriting

	interview := state.InterviewText()
	if interview == "" {
		x.logger.Warn("drafting requested with no interview content, skipping")
		return nil
	}

	req := llm.NewCompletionRequest(llm.NewUserMessage(x.draftPrompt(state, interview)))
	req.MaxTokens = draftMaxTokens
	req.Temperature = 0.7

	resp, err := x.client.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		x.logger.Warn("draft generation failed, no version appended: %v", err)
		return nil
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		x.logger.Warn("draft generation returned empty content, no version appended")
		return nil
	}

	version := state.AddBiographyVersion(content, false, session.StrategyInitialDraft)
	x.logger.Info("biography version %d drafted (%d chars)", version.Version, len(content))
	return nil
}

func (x *WriteExecutor) draftPrompt(state *session.SessionState, interview string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write a deeply moving personal biography of %s from the interview content and historical background below.\n\n", state.SubjectName)
	b.WriteString("Structure the life story around seven elements:\n")
	b.WriteString(narrativeArc)
	b.WriteString("\n\nInterview content:\n")
	b.WriteString(interview)
	b.WriteString("\n\nHistorical background:\n")
	b.WriteString(x.tokens.TruncateToTokenLimit(historicalSummary(state), historyTokenBudget))
	b.WriteString(`

Writing requirements:
1. Organize the content along the seven elements above, without ever naming them.
2. First person, authentic and moving.
3. Weave personal experience and historical background together naturally.
4. Highlight growth, resilience, and life wisdom.
5. Rich emotional expression and inner description.
6. Literary language with narrative rhythm.
7. Complete structure and clear chronology.
8. 2000-3000 words.`)
	return b.String()
}

// historicalSummary renders the accumulated research findings for a writing
// prompt, sorted by key so prompts are stable for identical state.
func historicalSummary(state *session.SessionState) string {
	if state.Context.IsEmpty() {
		return "(no researched background; write from the interview alone)"
	}

	var b strings.Builder
	for _, key := range sortedKeys(state.Context.EventsByKey) {
		fmt.Fprintf(&b, "%s period background: %s\n\n", key, state.Context.EventsByKey[key])
	}
	for _, key := range sortedKeys(state.Context.SocialContext) {
		fmt.Fprintf(&b, "%s background: %s\n\n", key, state.Context.SocialContext[key])
	}
	return strings.TrimSpace(b.String())
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// refinementCutoff returns the score below which refinement rewrites the
// whole draft instead of tightening its structure.
func refinementCutoff(cfg config.PipelineConfig) float64 {
	if cfg.RefinementCutoff > 0 {
		return cfg.RefinementCutoff
	}
	return config.DefaultRefinementCutoff
}
