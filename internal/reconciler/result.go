package reconciler

import (
	"ledger-reconciliation-service/internal/matcher"
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/workflow"
	"ledger-reconciliation-service/pkg/errors"
)

// Result is the terminal output of one reconciliation. It is never mutated
// after Reconcile returns.
type Result struct {
	Workflow        workflow.Kind         `json:"workflow"`
	Window          workflow.Window       `json:"window"`
	Matched         []matcher.Match       `json:"matched"`
	UnmatchedBank   []models.BankRecord   `json:"unmatched_bank"`
	UnmatchedSystem []models.SystemRecord `json:"unmatched_system"`
	Statistics      Statistics            `json:"statistics"`
	Quality         QualityReport         `json:"quality"`
	Pipeline        PipelineStats         `json:"pipeline"`
	Diagnostics     []Diagnostic          `json:"diagnostics,omitempty"`
}

// PipelineStats counts what each stage of the candidate pipeline did.
type PipelineStats struct {
	Candidates         int  `json:"candidates"`
	Accepted           int  `json:"accepted"`
	RejectedBankDate   int  `json:"rejected_bank_date"`
	RejectedSystemDate int  `json:"rejected_system_date"`
	RejectedWindow     int  `json:"rejected_window"`
	RejectedAmount     int  `json:"rejected_amount"`
	Deduplicated       int  `json:"deduplicated"`
	Skipped            bool `json:"skipped"`
}

// Diagnostic records a condition that degraded the run without stopping it.
type Diagnostic struct {
	Code    errors.ErrorCode `json:"code"`
	Side    models.Side      `json:"side,omitempty"`
	Field   models.Field     `json:"field,omitempty"`
	Count   int              `json:"count,omitempty"`
	Message string           `json:"message"`
}

func newDiagnostic(code errors.ErrorCode, side models.Side, field models.Field, count int) Diagnostic {
	d := Diagnostic{Code: code, Side: side, Field: field, Count: count}
	d.Message = d.Err().Message
	return d
}

// Err converts the diagnostic into a ReconcilerError for display.
func (d Diagnostic) Err() *errors.ReconcilerError {
	err := errors.ReconciliationError(d.Code, string(d.Side), string(d.Field))
	if d.Count > 0 {
		err.WithContext("count", d.Count)
	}
	return err
}

// HasDiagnostic reports whether the run raised code.
func (r *Result) HasDiagnostic(code errors.ErrorCode) bool {
	for _, d := range r.Diagnostics {
		if d.Code == code {
			return true
		}
	}
	return false
}

// Warnings returns every human-readable warning of the run: diagnostics
// first, then data quality findings.
func (r *Result) Warnings() []string {
	warnings := make([]string, 0, len(r.Diagnostics))
	for _, d := range r.Diagnostics {
		warnings = append(warnings, d.Message)
	}
	return append(warnings, r.Quality.Warnings()...)
}

// MatchedBankIDs returns the bank ids of the matched set in match order.
func (r *Result) MatchedBankIDs() []int {
	ids := make([]int, len(r.Matched))
	for i, m := range r.Matched {
		ids[i] = m.Bank.ID
	}
	return ids
}

// MatchedSystemIDs returns the system ids of the matched set in match order.
func (r *Result) MatchedSystemIDs() []int {
	ids := make([]int, len(r.Matched))
	for i, m := range r.Matched {
		ids[i] = m.System.ID
	}
	return ids
}
