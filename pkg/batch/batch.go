// Package batch runs biography sessions for many personas concurrently,
// bounded by a worker-count throttle. Each session is fully independent:
// its own state, its own coordinator loop, its own backend usage.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"saga/pkg/config"
	"saga/pkg/logx"
	"saga/pkg/session"
	"saga/pkg/utils"
)

// RunFunc executes one full biography session for the persona file at path
// and returns the finished session state.
type RunFunc func(ctx context.Context, personaPath string) (*session.SessionState, error)

// Result records one subject's outcome within a batch.
type Result struct {
	PersonaPath     string   `json:"persona_path"`
	SubjectName     string   `json:"subject_name,omitempty"`
	SessionID       string   `json:"session_id,omitempty"`
	Status          string   `json:"status"`
	OverallScore    *float64 `json:"overall_score,omitempty"`
	DurationSeconds float64  `json:"duration_seconds"`
	Error           string   `json:"error,omitempty"`
}

// Summary aggregates a finished batch run.
type Summary struct {
	BatchID          string    `json:"batch_id"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	DurationSeconds  float64   `json:"duration_seconds"`
	TotalSubjects    int       `json:"total_subjects"`
	Completed        int       `json:"completed"`
	Failed           int       `json:"failed"`
	AvgScore         float64   `json:"avg_quality_score,omitempty"`
	MaxScore         float64   `json:"max_quality_score,omitempty"`
	MinScore         float64   `json:"min_quality_score,omitempty"`
	HighQualityCount int       `json:"high_quality_count"`
	Results          []Result  `json:"results"`
}

// Processor fans persona runs out to a bounded worker pool.
type Processor struct {
	run      RunFunc
	workers  int
	standard float64
	logger   *logx.Logger
}

// NewProcessor builds a processor around the given session runner. Worker
// count and the high-quality bar come from cfg, falling back to defaults.
func NewProcessor(run RunFunc, cfg *config.Config, logger *logx.Logger) *Processor {
	workers := config.DefaultBatchWorkers
	if cfg != nil && cfg.Batch != nil && cfg.Batch.Workers > 0 {
		workers = cfg.Batch.Workers
	}
	standard := config.DefaultPublicationStandard
	if cfg != nil && cfg.Pipeline != nil && cfg.Pipeline.PublicationStandard > 0 {
		standard = cfg.Pipeline.PublicationStandard
	}
	if logger == nil {
		logger = logx.NewLogger("batch")
	}
	return &Processor{run: run, workers: workers, standard: standard, logger: logger}
}

// Run processes every persona with at most the configured number of sessions
// in flight. Per-subject failures are contained in their Result rows; Run
// returns an error only when given nothing to do.
func (p *Processor) Run(ctx context.Context, personaPaths []string) (*Summary, error) {
	if len(personaPaths) == 0 {
		return nil, fmt.Errorf("no persona files to process")
	}

	start := time.Now().UTC()
	summary := &Summary{
		BatchID:       fmt.Sprintf("batch_%s", start.Format("20060102_150405")),
		StartTime:     start,
		TotalSubjects: len(personaPaths),
		Results:       make([]Result, len(personaPaths)),
	}

	p.logger.Info("batch %s: %d subjects on %d workers", summary.BatchID, len(personaPaths), p.workers)

	// Each goroutine writes only its own index, so the results slice needs
	// no lock.
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.workers)
	for i, path := range personaPaths {
		wg.Add(1)
		go func(idx int, personaPath string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				summary.Results[idx] = Result{
					PersonaPath: personaPath,
					Status:      session.StatusFailed,
					Error:       ctx.Err().Error(),
				}
				return
			}
			summary.Results[idx] = p.processOne(ctx, personaPath)
		}(i, path)
	}
	wg.Wait()

	end := time.Now().UTC()
	summary.EndTime = end
	summary.DurationSeconds = end.Sub(start).Seconds()
	summary.aggregate(p.standard)

	p.logger.Info("batch %s finished: %d completed, %d failed in %.1fs",
		summary.BatchID, summary.Completed, summary.Failed, summary.DurationSeconds)

	return summary, nil
}

// processOne times one subject's session and folds the outcome into a
// Result row.
func (p *Processor) processOne(ctx context.Context, personaPath string) Result {
	display := strings.TrimSuffix(filepath.Base(personaPath), filepath.Ext(personaPath))

	start := time.Now()
	state, err := p.run(ctx, personaPath)
	elapsed := time.Since(start)

	result := Result{
		PersonaPath:     personaPath,
		DurationSeconds: elapsed.Seconds(),
	}

	if err != nil {
		result.Status = session.StatusFailed
		result.Error = err.Error()
		p.logger.Warn("subject %s failed after %.1fs: %v", display, elapsed.Seconds(), err)
		return result
	}

	result.SubjectName = state.SubjectName
	result.SessionID = state.SessionID
	result.Status = state.Status
	if state.Quality != nil {
		score := state.Quality.OverallScore
		result.OverallScore = &score
		p.logger.Info("subject %s: status=%s score=%.1f in %.1fs",
			state.SubjectName, state.Status, score, elapsed.Seconds())
	} else {
		p.logger.Info("subject %s: status=%s (not evaluated) in %.1fs",
			state.SubjectName, state.Status, elapsed.Seconds())
	}

	return result
}

// aggregate fills the counters and score statistics from the result rows.
func (s *Summary) aggregate(standard float64) {
	var scores []float64
	for i := range s.Results {
		r := &s.Results[i]
		if r.Status == session.StatusCompleted {
			s.Completed++
			if r.OverallScore != nil {
				scores = append(scores, *r.OverallScore)
			}
		} else {
			s.Failed++
		}
	}

	if len(scores) == 0 {
		return
	}

	minScore, maxScore, sum := scores[0], scores[0], 0.0
	for _, v := range scores {
		sum += v
		if v < minScore {
			minScore = v
		}
		if v > maxScore {
			maxScore = v
		}
		if v >= standard {
			s.HighQualityCount++
		}
	}
	s.AvgScore = sum / float64(len(scores))
	s.MaxScore = maxScore
	s.MinScore = minScore
}

// WriteSummary saves the batch document under dir as <batch_id>.json and
// returns the written path.
func WriteSummary(dir string, summary *Summary) (string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("failed to create batch output dir: %w", err)
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch summary: %w", err)
	}

	path := filepath.Join(dir, summary.BatchID+".json")
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write batch summary: %w", err)
	}
	return path, nil
}
