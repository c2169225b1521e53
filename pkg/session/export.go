package session

import (
	"encoding/json"
	"fmt"
	"time"

	"saga/pkg/logx"
)

// ExportDocument is the canonical interchange form of a session. Exporting a
// state and importing the document back must reproduce the state exactly;
// operators diff these files, so field order and naming are stable.
type ExportDocument struct {
	Metadata   ExportMetadata   `json:"metadata"`
	Interview  ExportInterview  `json:"interview"`
	Biography  ExportBiography  `json:"biography"`
	Evaluation ExportEvaluation `json:"evaluation"`
	Research   ExportResearch   `json:"research"`
	Workflow   ExportWorkflow   `json:"workflow"`
	Logs       []logx.Entry     `json:"logs"`
}

// ExportMetadata identifies the session and its lifecycle timestamps.
type ExportMetadata struct {
	SessionID   string    `json:"session_id"`
	SubjectName string    `json:"subject_name"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	LastActive  time.Time `json:"last_active"`
	ExportTime  time.Time `json:"export_time"`
}

// ExportInterview carries the dialogue plus the rendered transcript. The
// transcript is redundant with the dialogue but kept for human readers.
type ExportInterview struct {
	Dialogue []DialogueTurn `json:"dialogue"`
	Content  string         `json:"content"`
}

// ExportBiography carries every version; FinalVersion duplicates the latest
// content for readers who only want the result.
type ExportBiography struct {
	FinalVersion string             `json:"final_version"`
	AllVersions  []BiographyVersion `json:"all_versions"`
}

// ExportEvaluation carries the rubric and narrative-scale results.
type ExportEvaluation struct {
	Quality     *QualityResult     `json:"quality,omitempty"`
	HeroJourney *HeroJourneyResult `json:"hero_journey,omitempty"`
}

// ExportResearch carries extraction and research findings.
type ExportResearch struct {
	ExtractedAnchors  *AnchorSet        `json:"extracted_anchors,omitempty"`
	HistoricalContext HistoricalContext `json:"historical_context"`
}

// ExportWorkflow carries the coordinator's view of the run.
type ExportWorkflow struct {
	CurrentPhase  Phase          `json:"current_phase"`
	ActionHistory []ActionRecord `json:"action_history"`
}

// Export renders the session as its canonical document. The log ring is
// snapshotted at call time.
func (s *SessionState) Export() *ExportDocument {
	var logs []logx.Entry
	if s.Ring != nil {
		logs = s.Ring.Entries()
	}
	if logs == nil {
		logs = []logx.Entry{}
	}
	return &ExportDocument{
		Metadata: ExportMetadata{
			SessionID:   s.SessionID,
			SubjectName: s.SubjectName,
			Status:      s.Status,
			CreatedAt:   s.CreatedAt,
			LastActive:  s.LastActive,
			ExportTime:  time.Now().UTC(),
		},
		Interview: ExportInterview{
			Dialogue: s.Dialogue,
			Content:  s.InterviewText(),
		},
		Biography: ExportBiography{
			FinalVersion: s.CurrentBiography(),
			AllVersions:  s.Biographies,
		},
		Evaluation: ExportEvaluation{
			Quality:     s.Quality,
			HeroJourney: s.HeroJourney,
		},
		Research: ExportResearch{
			ExtractedAnchors:  s.Anchors,
			HistoricalContext: s.Context,
		},
		Workflow: ExportWorkflow{
			CurrentPhase:  s.Phase,
			ActionHistory: s.ActionHistory,
		},
		Logs: logs,
	}
}

// MarshalExport renders the session document as indented JSON.
func (s *SessionState) MarshalExport() ([]byte, error) {
	data, err := json.MarshalIndent(s.Export(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session export: %w", err)
	}
	return data, nil
}

// Import rebuilds a session from its canonical document.
func Import(doc *ExportDocument) (*SessionState, error) {
	state := &SessionState{
		SessionID:     doc.Metadata.SessionID,
		SubjectName:   doc.Metadata.SubjectName,
		Status:        doc.Metadata.Status,
		CreatedAt:     doc.Metadata.CreatedAt,
		LastActive:    doc.Metadata.LastActive,
		Phase:         doc.Workflow.CurrentPhase,
		Dialogue:      doc.Interview.Dialogue,
		Anchors:       doc.Research.ExtractedAnchors,
		Context:       doc.Research.HistoricalContext,
		Biographies:   doc.Biography.AllVersions,
		Quality:       doc.Evaluation.Quality,
		HeroJourney:   doc.Evaluation.HeroJourney,
		ActionHistory: doc.Workflow.ActionHistory,
		Ring:          logx.NewRing(logx.DefaultRingSize),
	}
	state.normalize()
	if len(doc.Logs) > 0 {
		state.Ring.Restore(doc.Logs)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("imported session is invalid: %w", err)
	}
	return state, nil
}

// UnmarshalExport parses an exported document and rebuilds the session.
func UnmarshalExport(data []byte) (*SessionState, error) {
	var doc ExportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse session export: %w", err)
	}
	return Import(&doc)
}

// MarshalState renders the raw aggregate as compact JSON. The export
// document is the interchange form; this form is what the session store
// persists.
func (s *SessionState) MarshalState() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session state: %w", err)
	}
	return data, nil
}

// UnmarshalState rebuilds a session from its stored JSON form and validates
// it. The log ring starts empty; callers restore captured logs separately
// when they have them.
func UnmarshalState(data []byte) (*SessionState, error) {
	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse stored session: %w", err)
	}
	state.normalize()
	state.Ring = logx.NewRing(logx.DefaultRingSize)
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("stored session is invalid: %w", err)
	}
	return &state, nil
}

// normalize replaces nil collections left by JSON decoding with empty ones so
// a round-tripped state is indistinguishable from a freshly built one.
func (s *SessionState) normalize() {
	if s.Dialogue == nil {
		s.Dialogue = []DialogueTurn{}
	}
	if s.Biographies == nil {
		s.Biographies = []BiographyVersion{}
	}
	if s.ActionHistory == nil {
		s.ActionHistory = []ActionRecord{}
	}
	if s.Context.EventsByKey == nil {
		s.Context.EventsByKey = make(map[string]string)
	}
	if s.Context.SocialContext == nil {
		s.Context.SocialContext = make(map[string]string)
	}
	if s.Context.SearchResults == nil {
		s.Context.SearchResults = []QueryResults{}
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
	if s.Phase == "" {
		s.Phase = PhaseStarting
	}
}
