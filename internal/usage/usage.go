// Package usage records per-turn spend and serves aggregate stats for
// the cost policy and the stats endpoint.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/concierge-ai/concierge/internal/storage"
)

// Entry is one recorded turn. Failed turns are recorded too, with
// Success=false and whatever model/provider was attempted.
type Entry struct {
	ID           string    `db:"id"`
	UserID       string    `db:"user_id"`
	Model        string    `db:"model"`
	Provider     string    `db:"provider"`
	InputTokens  int       `db:"input_tokens"`
	OutputTokens int       `db:"output_tokens"`
	CostUSD      float64   `db:"cost_usd"`
	Success      bool      `db:"success"`
	UsedFallback bool      `db:"used_fallback"`
	CreatedAt    time.Time `db:"created_at"`
}

// ModelStats aggregates spend for one model.
type ModelStats struct {
	Model    string  `db:"model" json:"model"`
	Requests int     `db:"requests" json:"requests"`
	CostUSD  float64 `db:"cost_usd" json:"cost_usd"`
}

// ProviderStats aggregates spend for one provider.
type ProviderStats struct {
	Provider string  `db:"provider" json:"provider"`
	Requests int     `db:"requests" json:"requests"`
	CostUSD  float64 `db:"cost_usd" json:"cost_usd"`
}

// Stats is the aggregate view served by the stats endpoint.
type Stats struct {
	TotalRequests int             `json:"total_requests"`
	TotalCostUSD  float64         `json:"total_cost_usd"`
	SuccessRate   float64         `json:"success_rate"`
	CostTodayUSD  float64         `json:"cost_today_usd"`
	CostWeekUSD   float64         `json:"cost_week_usd"`
	CostMonthUSD  float64         `json:"cost_month_usd"`
	FallbackCount int             `json:"fallback_count"`
	ByModel       []ModelStats    `json:"by_model"`
	ByProvider    []ProviderStats `json:"by_provider"`
}

// Recorder persists and aggregates usage entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	CostSince(ctx context.Context, userID string, since time.Time) (float64, error)
	Stats(ctx context.Context, userID string) (*Stats, error)
}

// Store is the sqlite-backed Recorder.
type Store struct {
	db *storage.DB
}

var _ Recorder = (*Store)(nil)

// NewStore returns a Store backed by db.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO usage_log (id, user_id, model, provider, input_tokens, output_tokens, cost_usd, success, used_fallback, created_at)
		 VALUES (:id, :user_id, :model, :provider, :input_tokens, :output_tokens, :cost_usd, :success, :used_fallback, :created_at)`,
		e)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// CostSince returns the summed cost of a user's turns at or after
// since.
func (s *Store) CostSince(ctx context.Context, userID string, since time.Time) (float64, error) {
	var cost float64
	err := s.db.GetContext(ctx, &cost,
		`SELECT COALESCE(SUM(cost_usd), 0) FROM usage_log WHERE user_id = ? AND created_at >= ?`,
		userID, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("sum usage: %w", err)
	}
	return cost, nil
}

func (s *Store) Stats(ctx context.Context, userID string) (*Stats, error) {
	stats := &Stats{}

	var succeeded int
	err := s.db.QueryRowxContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(cost_usd), 0),
		        COALESCE(SUM(success), 0),
		        COALESCE(SUM(used_fallback), 0)
		 FROM usage_log WHERE user_id = ?`, userID).
		Scan(&stats.TotalRequests, &stats.TotalCostUSD, &succeeded, &stats.FallbackCount)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage: %w", err)
	}
	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(succeeded) / float64(stats.TotalRequests)
	}

	now := time.Now().UTC()
	midnight := now.Truncate(24 * time.Hour)
	for _, window := range []struct {
		since time.Time
		dst   *float64
	}{
		{midnight, &stats.CostTodayUSD},
		{now.AddDate(0, 0, -7), &stats.CostWeekUSD},
		{now.AddDate(0, -1, 0), &stats.CostMonthUSD},
	} {
		*window.dst, err = s.CostSince(ctx, userID, window.since)
		if err != nil {
			return nil, err
		}
	}

	err = s.db.SelectContext(ctx, &stats.ByModel,
		`SELECT model, COUNT(*) AS requests, COALESCE(SUM(cost_usd), 0) AS cost_usd
		 FROM usage_log WHERE user_id = ?
		 GROUP BY model ORDER BY cost_usd DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage by model: %w", err)
	}

	err = s.db.SelectContext(ctx, &stats.ByProvider,
		`SELECT provider, COUNT(*) AS requests, COALESCE(SUM(cost_usd), 0) AS cost_usd
		 FROM usage_log WHERE user_id = ?
		 GROUP BY provider ORDER BY cost_usd DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("aggregate usage by provider: %w", err)
	}
	return stats, nil
}
