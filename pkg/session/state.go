// Package session holds the per-run state aggregate for the biography
// pipeline: the interview dialogue, extracted anchors, researched historical
// context, biography versions, quality results, and the action history the
// coordinator consults for loop detection.
//
// A SessionState is mutated by exactly one coordinator loop at a time, so the
// type carries no internal locking. Concurrency across sessions is the batch
// runner's job.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"saga/pkg/logx"
	"saga/pkg/utils"
)

// Phase is an advisory tag describing where a session currently sits in the
// pipeline. It is a display hint for operators; the coordinator never gates
// decisions on it.
type Phase string

const (
	PhaseStarting           Phase = "starting"
	PhaseInterview          Phase = "interview"
	PhasePostInterview      Phase = "post_interview"
	PhaseHistoryAnalysis    Phase = "history_analysis"
	PhaseHistoricalResearch Phase = "historical_research"
	PhaseWriting            Phase = "writing"
	PhaseQualityAssessment  Phase = "quality_assessment"
	PhaseRefinement         Phase = "refinement"
	PhaseCompleted          Phase = "completed"
)

// Session lifecycle status, as stored alongside the state.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Dialogue speakers.
const (
	SpeakerInterviewer = "interviewer"
	SpeakerSubject     = "subject"
)

// DialogueTurn is one utterance in the interview transcript.
type DialogueTurn struct {
	Speaker string `json:"speaker"`
	Content string `json:"content"`
}

// SearchQuery is one targeted research query proposed by event extraction.
type SearchQuery struct {
	Query    string `json:"query"`
	Period   string `json:"period"`
	Location string `json:"location"`
	Focus    string `json:"focus"`
}

// AnchorSet holds everything event extraction mined from the transcript.
// A nil *AnchorSet on the session means extraction has not run yet; an empty
// one means it ran and found nothing (or failed and degraded).
type AnchorSet struct {
	Temporal         []string      `json:"temporal_anchors"`
	Location         []string      `json:"location_anchors"`
	HistoricalEvents []string      `json:"historical_events"`
	SocialPhenomena  []string      `json:"social_phenomena"`
	SearchQueries    []SearchQuery `json:"search_queries"`
}

// IsEmpty reports whether extraction produced nothing usable.
func (a *AnchorSet) IsEmpty() bool {
	if a == nil {
		return true
	}
	return len(a.Temporal) == 0 && len(a.Location) == 0 &&
		len(a.HistoricalEvents) == 0 && len(a.SocialPhenomena) == 0 &&
		len(a.SearchQueries) == 0
}

// SearchHit is one stored web search result. The raw page content is not
// retained on the session; only what the export needs.
type SearchHit struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// QueryResults records the hits returned for one executed search query.
type QueryResults struct {
	Query   string      `json:"query"`
	Results []SearchHit `json:"results"`
}

// HistoricalContext accumulates research findings over the run. Keys in
// EventsByKey follow "{period}_{location}_{focus}" from the originating
// query; SocialContext is keyed by temporal anchor. The maps only ever grow
// within a run.
type HistoricalContext struct {
	EventsByKey   map[string]string `json:"events_by_key"`
	SocialContext map[string]string `json:"social_context"`
	SearchResults []QueryResults    `json:"search_results"`
}

// NewHistoricalContext returns an empty context with allocated maps.
func NewHistoricalContext() HistoricalContext {
	return HistoricalContext{
		EventsByKey:   make(map[string]string),
		SocialContext: make(map[string]string),
		SearchResults: []QueryResults{},
	}
}

// IsEmpty reports whether no research findings have been recorded.
func (h *HistoricalContext) IsEmpty() bool {
	return len(h.EventsByKey) == 0 && len(h.SocialContext) == 0
}

// Merge folds another context into this one. Existing keys are overwritten
// by newer findings; search result records append.
func (h *HistoricalContext) Merge(other HistoricalContext) {
	if h.EventsByKey == nil {
		h.EventsByKey = make(map[string]string)
	}
	if h.SocialContext == nil {
		h.SocialContext = make(map[string]string)
	}
	for k, v := range other.EventsByKey {
		h.EventsByKey[k] = v
	}
	for k, v := range other.SocialContext {
		h.SocialContext[k] = v
	}
	h.SearchResults = append(h.SearchResults, other.SearchResults...)
}

// Biography version strategies.
const (
	StrategyInitialDraft         = "initial_draft"
	StrategyComprehensiveRewrite = "comprehensive_rewrite"
	StrategyStructureEnhancement = "structure_enhancement"
)

// BiographyVersion is one immutable draft of the biography. Versions are
// 1-based and contiguous; refinement appends, it never edits in place.
type BiographyVersion struct {
	Version   int       `json:"version"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Refined   bool      `json:"refined"`
	Strategy  string    `json:"strategy"`
}

// QualityResult is the rubric score for the biography version that was
// current when evaluation ran. Each evaluation overwrites the previous one.
type QualityResult struct {
	OverallScore    float64            `json:"overall_score"`
	DimensionScores map[string]float64 `json:"dimension_scores"`
	MeetsStandard   bool               `json:"meets_standard"`
	Feedback        string             `json:"feedback"`
	MajorIssues     []string           `json:"major_issues"`
}

// HeroJourneyResult is the narrative-structure scale evaluation: seven
// dimensions of three items each, every item scored 1-7, totalled out of 147.
type HeroJourneyResult struct {
	DimensionScores map[string]int `json:"dimension_scores"`
	TotalScore      int            `json:"total_score"`
	MaxScore        int            `json:"max_score"`
	Percentage      float64        `json:"percentage"`
	Summary         string         `json:"summary"`
}

// ActionRecord is one coordinator iteration's executed (post-guard) action.
type ActionRecord struct {
	Iteration int        `json:"iteration"`
	Action    ActionName `json:"action"`
	Reasoning string     `json:"reasoning"`
}

// SessionState is the aggregate for one biography run.
type SessionState struct {
	SessionID   string    `json:"session_id"`
	SubjectName string    `json:"subject_name"`
	CreatedAt   time.Time `json:"created_at"`
	LastActive  time.Time `json:"last_active"`
	Status      string    `json:"status"`
	Phase       Phase     `json:"phase"`

	Dialogue      []DialogueTurn     `json:"dialogue"`
	Anchors       *AnchorSet         `json:"anchors,omitempty"`
	Context       HistoricalContext  `json:"context"`
	Biographies   []BiographyVersion `json:"biographies"`
	Quality       *QualityResult     `json:"quality,omitempty"`
	HeroJourney   *HeroJourneyResult `json:"hero_journey,omitempty"`
	ActionHistory []ActionRecord     `json:"action_history"`

	// Ring captures this session's log lines for export and inspection.
	// Not serialized with the state; the export document carries it.
	Ring *logx.Ring `json:"-"`
}

// NewState creates a fresh session for the named subject. The session ID
// embeds the sanitized subject name, a UTC timestamp, and a short random
// suffix so concurrent batch sessions for same-named subjects never collide.
func NewState(subjectName string) *SessionState {
	now := time.Now().UTC()
	return &SessionState{
		SessionID:     NewSessionID(subjectName, now),
		SubjectName:   subjectName,
		CreatedAt:     now,
		LastActive:    now,
		Status:        StatusActive,
		Phase:         PhaseStarting,
		Dialogue:      []DialogueTurn{},
		Context:       NewHistoricalContext(),
		Biographies:   []BiographyVersion{},
		ActionHistory: []ActionRecord{},
		Ring:          logx.NewRing(logx.DefaultRingSize),
	}
}

// NewSessionID builds a session identifier of the form
// "name_20060102_150405_8hexchars".
func NewSessionID(subjectName string, at time.Time) string {
	name := utils.SanitizeIdentifier(strings.ToLower(subjectName))
	if name == "" {
		name = "subject"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s", name, at.UTC().Format("20060102_150405"), suffix)
}

// Touch updates the last-active timestamp.
func (s *SessionState) Touch() {
	s.LastActive = time.Now().UTC()
}

// Rounds returns the number of completed interview rounds. One round is an
// interviewer question plus a subject answer, so it is half the turn count.
func (s *SessionState) Rounds() int {
	return len(s.Dialogue) / 2
}

// AppendTurn appends one utterance to the dialogue.
func (s *SessionState) AppendTurn(speaker, content string) {
	s.Dialogue = append(s.Dialogue, DialogueTurn{Speaker: speaker, Content: content})
	s.Touch()
}

// InterviewText renders the transcript as "speaker: content" lines. It is
// derived from Dialogue on demand rather than stored, so the two can never
// disagree.
func (s *SessionState) InterviewText() string {
	if len(s.Dialogue) == 0 {
		return ""
	}
	var b strings.Builder
	for i := range s.Dialogue {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s.Dialogue[i].Speaker)
		b.WriteString(": ")
		b.WriteString(s.Dialogue[i].Content)
	}
	return b.String()
}

// HasBiography reports whether at least one version has been written.
func (s *SessionState) HasBiography() bool {
	return len(s.Biographies) > 0
}

// CurrentBiography returns the content of the latest version, or "" when
// nothing has been written yet.
func (s *SessionState) CurrentBiography() string {
	if len(s.Biographies) == 0 {
		return ""
	}
	return s.Biographies[len(s.Biographies)-1].Content
}

// CurrentVersion returns the latest version number, 0 when none exist.
func (s *SessionState) CurrentVersion() int {
	return len(s.Biographies)
}

// AddBiographyVersion appends a new version with the next contiguous number.
func (s *SessionState) AddBiographyVersion(content string, refined bool, strategy string) BiographyVersion {
	version := BiographyVersion{
		Version:   len(s.Biographies) + 1,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Refined:   refined,
		Strategy:  strategy,
	}
	s.Biographies = append(s.Biographies, version)
	s.Touch()
	return version
}

// RecordAction appends one executed action to the history.
func (s *SessionState) RecordAction(iteration int, action ActionName, reasoning string) {
	s.ActionHistory = append(s.ActionHistory, ActionRecord{
		Iteration: iteration,
		Action:    action,
		Reasoning: reasoning,
	})
	s.Touch()
}

// LastActions returns up to n most recent executed actions, oldest first.
func (s *SessionState) LastActions(n int) []ActionName {
	if n <= 0 || len(s.ActionHistory) == 0 {
		return nil
	}
	start := len(s.ActionHistory) - n
	if start < 0 {
		start = 0
	}
	out := make([]ActionName, 0, len(s.ActionHistory)-start)
	for _, rec := range s.ActionHistory[start:] {
		out = append(out, rec.Action)
	}
	return out
}

// Validate checks the aggregate's structural invariants: contiguous 1-based
// biography versions and a well-formed action history. Persistence calls
// this after load; the coordinator relies on it holding throughout a run.
func (s *SessionState) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("session has no ID")
	}
	for i := range s.Biographies {
		if s.Biographies[i].Version != i+1 {
			return fmt.Errorf("biography versions not contiguous: index %d has version %d", i, s.Biographies[i].Version)
		}
	}
	for i := range s.ActionHistory {
		if _, ok := ValidateAction(string(s.ActionHistory[i].Action)); !ok {
			return fmt.Errorf("action history entry %d has unknown action %q", i, s.ActionHistory[i].Action)
		}
	}
	return nil
}
