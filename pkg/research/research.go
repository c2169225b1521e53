package research

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"saga/pkg/llm"
	"saga/pkg/logx"
	"saga/pkg/session"
	"saga/pkg/utils"
)

// Research sizing. Targeted queries come from extraction and carry the most
// signal, so they get more results; era and location lookups are supplements.
const (
	targetedQueryResults      = 3
	supplementaryQueryResults = 2

	// Below this many targeted queries, temporal anchors are researched
	// directly to compensate.
	minTargetedQueries = 2

	// Temporal anchors this short ("1999" passes, "now" does not) carry no
	// searchable period.
	minTemporalAnchorRunes = 3

	// Per-result content clip before it enters an analysis prompt.
	resultContentTokenBudget = 4000

	// Stored snippet size per search hit.
	snippetChars = 200
)

// genericPlaces are location anchors too unspecific to research.
//
//nolint:gochecknoglobals // Static filter list.
var genericPlaces = map[string]bool{
	"home":    true,
	"school":  true,
	"company": true,
}

// ResearchExecutor turns extracted anchors into historical context: each
// targeted search query becomes an analyzed entry in EventsByKey, and
// temporal/location anchors feed SocialContext. Findings merge into the
// session's accumulated context; failures degrade to partial results.
type ResearchExecutor struct {
	client llm.LLMClient
	search SearchClient // nil when no search backend is configured
	tokens *utils.TokenCounter
	logger *logx.Logger
}

// NewResearchExecutor creates the historical research executor. A nil search
// client is allowed; research then becomes a logged no-op and the writer
// works from the interview alone.
func NewResearchExecutor(client llm.LLMClient, search SearchClient, logger *logx.Logger) *ResearchExecutor {
	if logger == nil {
		logger = logx.NewLogger("research")
	}
	tokens, err := utils.NewTokenCounter(client.GetModelName())
	if err != nil {
		tokens = &utils.TokenCounter{}
	}
	return &ResearchExecutor{client: client, search: search, tokens: tokens, logger: logger}
}

// Execute researches the session's anchors and merges the findings into its
// historical context. Running without anchors is a precondition violation:
// it warns and leaves the state untouched.
func (x *ResearchExecutor) Execute(ctx context.Context, state *session.SessionState) error {
	if state.Anchors == nil {
		x.logger.Warn("research requested before event extraction, skipping")
		return nil
	}

	state.Phase = session.PhaseHistoricalResearch

	if x.search == nil {
		x.logger.Warn("no search backend configured, skipping historical research")
		return nil
	}

	findings := session.NewHistoricalContext()

	for i := range state.Anchors.SearchQueries {
		if err := ctx.Err(); err != nil {
			return err
		}
		x.runTargetedQuery(ctx, &state.Anchors.SearchQueries[i], &findings)
	}

	if len(state.Anchors.SearchQueries) < minTargetedQueries {
		for _, anchor := range state.Anchors.Temporal {
			if err := ctx.Err(); err != nil {
				return err
			}
			x.runEraQuery(ctx, anchor, &findings)
		}
	}

	for _, location := range state.Anchors.Location {
		if err := ctx.Err(); err != nil {
			return err
		}
		x.runLocationQuery(ctx, location, &findings)
	}

	state.Context.Merge(findings)
	x.logger.Info("research added %d event analyses and %d social context entries (%d queries stored)",
		len(findings.EventsByKey), len(findings.SocialContext), len(findings.SearchResults))
	return nil
}

// runTargetedQuery executes one extraction-proposed search query and stores
// the analyzed result under "{period}_{location}_{focus}".
func (x *ResearchExecutor) runTargetedQuery(ctx context.Context, q *session.SearchQuery, findings *session.HistoricalContext) {
	if q.Query == "" {
		return
	}

	results, err := x.search.Search(ctx, q.Query, targetedQueryResults)
	if err != nil {
		x.logger.Warn("search failed for %q: %v", q.Query, err)
		return
	}
	if len(results) == 0 {
		x.logger.Info("no search results for %q", q.Query)
		return
	}

	prompt := fmt.Sprintf(`Based on the search results below, write a historical background analysis for a personal biography.

Research focus: %s
Time range: %s
Geographic scope: %s

Search results:
%s
Cover:
1. The period's defining characteristics and social environment in the region.
2. How the research focus shaped the lives of ordinary people.
3. Policy background, economic conditions, and cultural atmosphere.
4. What personal experiences from this time mean in the larger current of history.

Write 800-1200 words of analysis.`, q.Focus, q.Period, q.Location, x.resultsBlock(results))

	analysis, err := x.analyze(ctx, prompt)
	if err != nil {
		x.logger.Warn("analysis failed for %q: %v", q.Query, err)
		return
	}

	key := fmt.Sprintf("%s_%s_%s", q.Period, q.Location, q.Focus)
	findings.EventsByKey[key] = analysis
	findings.SearchResults = append(findings.SearchResults, session.QueryResults{
		Query:   q.Query,
		Results: toHits(results),
	})
	x.logger.Info("researched %q: %d results, %d analysis chars", q.Query, len(results), len(analysis))
}

// runEraQuery researches a temporal anchor directly when extraction produced
// too few targeted queries.
func (x *ResearchExecutor) runEraQuery(ctx context.Context, anchor string, findings *session.HistoricalContext) {
	if utf8.RuneCountInString(anchor) <= minTemporalAnchorRunes {
		return
	}

	query := fmt.Sprintf("%s historical background social changes impact on daily life", anchor)
	results, err := x.search.Search(ctx, query, supplementaryQueryResults)
	if err != nil || len(results) == 0 {
		if err != nil {
			x.logger.Warn("era search failed for %q: %v", anchor, err)
		}
		return
	}

	prompt := fmt.Sprintf(`Supplementary research on the period %q.

Search results:
%s
Describe the social background of this period, focusing on how it affected ordinary people's daily lives.`, anchor, x.resultsBlock(results))

	analysis, err := x.analyze(ctx, prompt)
	if err != nil {
		x.logger.Warn("era analysis failed for %q: %v", anchor, err)
		return
	}
	findings.SocialContext[anchor] = analysis
}

// runLocationQuery researches a location anchor, skipping places too generic
// to carry historical background.
func (x *ResearchExecutor) runLocationQuery(ctx context.Context, location string, findings *session.HistoricalContext) {
	if utf8.RuneCountInString(location) <= 1 || genericPlaces[strings.ToLower(location)] {
		return
	}

	query := fmt.Sprintf("%s history culture development local characteristics", location)
	results, err := x.search.Search(ctx, query, supplementaryQueryResults)
	if err != nil || len(results) == 0 {
		if err != nil {
			x.logger.Warn("location search failed for %q: %v", location, err)
		}
		return
	}

	prompt := fmt.Sprintf(`Regional background for %s.

Search results:
%s
Describe the region's history, culture, and local character, and how they shaped the lives of the people there.`, location, x.resultsBlock(results))

	analysis, err := x.analyze(ctx, prompt)
	if err != nil {
		x.logger.Warn("location analysis failed for %q: %v", location, err)
		return
	}
	findings.SocialContext[location] = analysis
}

// analyze runs one analysis completion.
func (x *ResearchExecutor) analyze(ctx context.Context, prompt string) (string, error) {
	req := llm.NewCompletionRequest(llm.NewUserMessage(prompt))
	resp, err := x.client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// resultsBlock renders search results for an analysis prompt, clipping each
// result's content to the token budget so a long page cannot blow out the
// request.
func (x *ResearchExecutor) resultsBlock(results []SearchResult) string {
	var b strings.Builder
	for i := range results {
		fmt.Fprintf(&b, "Title: %s\n", results[i].Title)
		fmt.Fprintf(&b, "Content: %s\n\n", x.tokens.TruncateToTokenLimit(results[i].Content, resultContentTokenBudget))
	}
	return b.String()
}

// toHits converts search results into the compact form stored on the
// session. Full page content never lands in the state; exports stay small.
func toHits(results []SearchResult) []session.SearchHit {
	hits := make([]session.SearchHit, 0, len(results))
	for i := range results {
		hits = append(hits, session.SearchHit{
			Title:   results[i].Title,
			URL:     results[i].URL,
			Snippet: utils.Head(results[i].Content, snippetChars),
		})
	}
	return hits
}
