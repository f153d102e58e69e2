// Package store records reconciliation runs so they can be listed and
// inspected after the fact.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ledger-reconciliation-service/internal/reconciler"
)

// Run is the persisted summary of one reconciliation.
type Run struct {
	ID              string                `json:"id"`
	CreatedAt       time.Time             `json:"created_at"`
	Workflow        string                `json:"workflow"`
	ToleranceDays   int                   `json:"tolerance_days"`
	BankSource      string                `json:"bank_source"`
	SystemSource    string                `json:"system_source"`
	BankVariant     string                `json:"bank_variant"`
	TotalBank       int                   `json:"total_bank"`
	TotalSystem     int                   `json:"total_system"`
	Matched         int                   `json:"matched"`
	UnmatchedBank   int                   `json:"unmatched_bank"`
	UnmatchedSystem int                   `json:"unmatched_system"`
	PercentVerified float64               `json:"percent_verified"`
	Duration        time.Duration         `json:"duration"`
	Warnings        []string              `json:"warnings"`
	Statistics      reconciler.Statistics `json:"statistics"`

	// Matches are written by SaveRun and read back with ListMatches.
	Matches []RunMatch `json:"-"`
}

// RunMatch is one persisted matched pair.
type RunMatch struct {
	RunID       string `json:"run_id"`
	Seq         int    `json:"seq"`
	BankID      int    `json:"bank_id"`
	SystemID    int    `json:"system_id"`
	Key         string `json:"key"`
	BankDate    string `json:"bank_date"`
	SystemDate  string `json:"system_date"`
	DayOffset   int    `json:"day_offset"`
	AmountDelta string `json:"amount_delta"`
	Quality     string `json:"quality"`
}

// RunStore persists reconciliation runs.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go RunStore
type RunStore interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)
	ListMatches(ctx context.Context, runID string) ([]RunMatch, error)
	Close() error
}

// NewRun summarizes result as a run with a fresh id.
func NewRun(result *reconciler.ReconciliationResult) *Run {
	id := uuid.NewString()
	created := result.ProcessedAt
	if created.IsZero() {
		created = time.Now()
	}

	stats := result.Statistics
	run := &Run{
		ID:              id,
		CreatedAt:       created.UTC(),
		Workflow:        result.Workflow.String(),
		ToleranceDays:   result.ToleranceDays,
		BankSource:      result.Bank.Source,
		SystemSource:    result.System.Source,
		BankVariant:     string(result.Bank.Variant),
		TotalBank:       stats.TotalBank,
		TotalSystem:     stats.TotalSystem,
		Matched:         stats.Matched,
		UnmatchedBank:   stats.UnmatchedBank,
		UnmatchedSystem: stats.UnmatchedSystem,
		PercentVerified: stats.PercentVerified,
		Duration:        result.Duration,
		Warnings:        result.Warnings(),
		Statistics:      stats,
		Matches:         make([]RunMatch, 0, len(result.Matched)),
	}

	for _, m := range result.Matched {
		run.Matches = append(run.Matches, RunMatch{
			RunID:       id,
			Seq:         m.Seq,
			BankID:      m.Bank.ID,
			SystemID:    m.System.ID,
			Key:         string(m.Key),
			BankDate:    m.Bank.Date.String(),
			SystemDate:  m.System.Date.String(),
			DayOffset:   m.DayOffset,
			AmountDelta: m.AmountDelta.String(),
			Quality:     m.Quality.String(),
		})
	}
	return run
}
