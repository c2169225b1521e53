package research

import (
	"context"
	"encoding/json"
	"fmt"

	"saga/pkg/llm"
	"saga/pkg/logx"
	"saga/pkg/session"
	"saga/pkg/utils"
)

const extractPromptHeader = `Analyze the interview transcript below and extract the event anchors with genuine historical research value.

Extraction rules:
1. Temporal anchors: only periods worth researching.
   - Good: "the 1970s", "the early reform years", "the late 1990s", "the pandemic years"
   - Bad: "when I was three", "childhood", "a few years later" (too vague to research)
2. Location anchors: only concrete places tied to historical background.
   - Good: city, province, or region names, "the northeast industrial belt"
   - Bad: "home", "school", "company" (too generic)
3. Historical events: major events a web search can find materials on.
   - Good: "university entrance exams restored", "state enterprise reform", "the layoff wave"
   - Bad: personal or family-internal events
4. Social phenomena: era-defining patterns of life.
   - Good: "sent-down youth", "housing reform", "university enrollment expansion"
   - Bad: personality traits, family relationships

Every anchor must be something a web search can find material on. Prefer extracting less over extracting noise.

Return strict JSON only, in exactly this shape:
{
  "temporal_anchors": ["specific periods"],
  "location_anchors": ["specific places"],
  "historical_events": ["specific searchable events"],
  "social_phenomena": ["era-defining phenomena"],
  "search_queries": [
    {"query": "search keyword combination", "period": "time range", "location": "place", "focus": "research focus"}
  ]
}`

// ExtractExecutor mines event anchors from the interview transcript. It
// never fails the session: any backend or parse problem degrades to an empty
// anchor set, which later stages treat as "extraction ran, found nothing".
type ExtractExecutor struct {
	client llm.LLMClient
	logger *logx.Logger
}

// NewExtractExecutor creates the anchor extraction executor.
func NewExtractExecutor(client llm.LLMClient, logger *logx.Logger) *ExtractExecutor {
	if logger == nil {
		logger = logx.NewLogger("research")
	}
	return &ExtractExecutor{client: client, logger: logger}
}

// Execute analyzes the transcript and stores the extracted anchors on the
// session. Repeated extractions overwrite: the anchors always reflect the
// transcript as of the latest run.
func (x *ExtractExecutor) Execute(ctx context.Context, state *session.SessionState) error {
	state.Phase = session.PhaseHistoryAnalysis

	transcript := state.InterviewText()
	if transcript == "" {
		x.logger.Warn("extraction requested with no interview content, storing empty anchors")
		state.Anchors = &session.AnchorSet{}
		return nil
	}

	prompt := fmt.Sprintf("%s\n\nInterview transcript:\n%s", extractPromptHeader, transcript)
	req := llm.NewCompletionRequest(llm.NewUserMessage(prompt))
	req.MaxTokens = 2048

	resp, err := x.client.Complete(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		x.logger.Warn("anchor extraction failed, storing empty anchors: %v", err)
		state.Anchors = &session.AnchorSet{}
		return nil
	}

	anchors, err := parseAnchors(resp.Content)
	if err != nil {
		x.logger.Warn("anchor extraction returned unparseable output, storing empty anchors: %v", err)
		state.Anchors = &session.AnchorSet{}
		return nil
	}

	state.Anchors = anchors
	x.logger.Info("extracted %d temporal, %d location, %d event, %d phenomenon anchors, %d search queries",
		len(anchors.Temporal), len(anchors.Location), len(anchors.HistoricalEvents),
		len(anchors.SocialPhenomena), len(anchors.SearchQueries))
	return nil
}

// parseAnchors pulls the first JSON object out of raw backend output and
// decodes it as an anchor set.
func parseAnchors(raw string) (*session.AnchorSet, error) {
	span := utils.FirstJSONObject(raw)
	if span == "" {
		return nil, fmt.Errorf("no JSON object in output")
	}

	var anchors session.AnchorSet
	if err := json.Unmarshal([]byte(span), &anchors); err != nil {
		return nil, fmt.Errorf("failed to decode anchors: %w", err)
	}
	return &anchors, nil
}
