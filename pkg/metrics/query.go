package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// SessionMetrics represents aggregated token and cost metrics for one
// biography session.
type SessionMetrics struct {
	SessionID        string  `json:"session_id"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	TotalCost        float64 `json:"total_cost_usd"`
}

// QueryService reads recorded series back from a Prometheus server.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a query service against the given Prometheus URL.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// scalarSum evaluates an instant sum() query and returns the single vector
// value, zero when the series does not exist yet.
func (q *QueryService) scalarSum(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query %s failed: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// GetSessionMetrics retrieves aggregated token and cost metrics for one
// session across every model that served it.
func (q *QueryService) GetSessionMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	metrics := &SessionMetrics{
		SessionID: sessionID,
	}

	prompt, err := q.scalarSum(ctx, fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, type="prompt"})`, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	metrics.PromptTokens = int64(prompt)

	completion, err := q.scalarSum(ctx, fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, type="completion"})`, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	metrics.CompletionTokens = int64(completion)

	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

	cost, err := q.scalarSum(ctx, fmt.Sprintf(`sum(llm_costs_total{session_id=%q})`, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query total cost: %w", err)
	}
	metrics.TotalCost = cost

	return metrics, nil
}

// GetSessionMetricsByModel retrieves per-model metrics for one session,
// showing which models served it and what each one cost.
func (q *QueryService) GetSessionMetricsByModel(ctx context.Context, sessionID string) (map[string]*SessionMetrics, error) {
	result := make(map[string]*SessionMetrics)

	modelsQuery := fmt.Sprintf(`group by (model) (llm_tokens_total{session_id=%q})`, sessionID)
	modelsResult, _, err := q.queryAPI.Query(ctx, modelsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query models: %w", err)
	}

	var models []string
	if vector, ok := modelsResult.(model.Vector); ok {
		for _, sample := range vector {
			if modelName, ok := sample.Metric["model"]; ok {
				models = append(models, string(modelName))
			}
		}
	}

	for _, modelName := range models {
		metrics := &SessionMetrics{
			SessionID: sessionID,
		}

		prompt, err := q.scalarSum(ctx, fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, model=%q, type="prompt"})`, sessionID, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for model %s: %w", modelName, err)
		}
		metrics.PromptTokens = int64(prompt)

		completion, err := q.scalarSum(ctx, fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, model=%q, type="completion"})`, sessionID, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for model %s: %w", modelName, err)
		}
		metrics.CompletionTokens = int64(completion)

		metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

		cost, err := q.scalarSum(ctx, fmt.Sprintf(`sum(llm_costs_total{session_id=%q, model=%q})`, sessionID, modelName))
		if err != nil {
			return nil, fmt.Errorf("failed to query cost for model %s: %w", modelName, err)
		}
		metrics.TotalCost = cost

		result[modelName] = metrics
	}

	return result, nil
}
