package reconciler

import (
	"fmt"

	"ledger-reconciliation-service/internal/models"
)

// MaxStartDateGapDays is the largest gap between the earliest dates of the
// two ledgers that passes without a warning.
const MaxStartDateGapDays = 30

// QualityReport holds the advisory findings of the data quality audit. It
// never influences matching.
type QualityReport struct {
	BankIssues      []string `json:"bank_issues"`
	SystemIssues    []string `json:"system_issues"`
	GeneralWarnings []string `json:"general_warnings"`

	BankNullDates             int `json:"bank_null_dates"`
	SystemNullDates           int `json:"system_null_dates"`
	BankNullReferences        int `json:"bank_null_references"`
	SystemNullReferences      int `json:"system_null_references"`
	BankDuplicateReferences   int `json:"bank_duplicate_references"`
	SystemDuplicateReferences int `json:"system_duplicate_references"`
	StartDateGapDays          int `json:"start_date_gap_days"`
}

// Warnings returns every finding, side-prefixed.
func (q QualityReport) Warnings() []string {
	warnings := make([]string, 0, len(q.BankIssues)+len(q.SystemIssues)+len(q.GeneralWarnings))
	for _, issue := range q.BankIssues {
		warnings = append(warnings, "bank: "+issue)
	}
	for _, issue := range q.SystemIssues {
		warnings = append(warnings, "system: "+issue)
	}
	return append(warnings, q.GeneralWarnings...)
}

// Clean reports whether the audit found nothing.
func (q QualityReport) Clean() bool {
	return len(q.BankIssues) == 0 && len(q.SystemIssues) == 0 && len(q.GeneralWarnings) == 0
}

// Audit inspects both ledgers for null dates, null or repeated references
// and a large gap between their earliest dates. Fields a ledger did not
// provide are not inspected.
func Audit(bank models.BankLedger, system models.SystemLedger) QualityReport {
	report := QualityReport{
		BankIssues:      []string{},
		SystemIssues:    []string{},
		GeneralWarnings: []string{},
	}

	bankDates := make([]models.Date, len(bank.Records))
	bankRefs := make([]string, len(bank.Records))
	for i, r := range bank.Records {
		bankDates[i] = r.Date
		bankRefs[i] = r.Reference
	}

	systemDates := make([]models.Date, len(system.Records))
	systemRefs := make([]string, len(system.Records))
	for i, r := range system.Records {
		systemDates[i] = r.Date
		systemRefs[i] = r.Reference
	}

	bankHasDate := hasField(bank.Fields, models.FieldDate)
	systemHasDate := hasField(system.Fields, models.FieldDate)

	if bankHasDate {
		report.BankNullDates = countNullDates(bankDates)
		if report.BankNullDates > 0 {
			report.BankIssues = append(report.BankIssues, fmt.Sprintf("%d null dates", report.BankNullDates))
		}
	}
	if hasField(bank.Fields, models.FieldReference) {
		report.BankNullReferences, report.BankDuplicateReferences = countReferences(bankRefs)
		if report.BankNullReferences > 0 {
			report.BankIssues = append(report.BankIssues, fmt.Sprintf("%d null document numbers", report.BankNullReferences))
		}
		if report.BankDuplicateReferences > 0 {
			report.BankIssues = append(report.BankIssues, fmt.Sprintf("%d duplicated document numbers", report.BankDuplicateReferences))
		}
	}

	if systemHasDate {
		report.SystemNullDates = countNullDates(systemDates)
		if report.SystemNullDates > 0 {
			report.SystemIssues = append(report.SystemIssues, fmt.Sprintf("%d null dates", report.SystemNullDates))
		}
	}
	if hasField(system.Fields, models.FieldReference) {
		report.SystemNullReferences, report.SystemDuplicateReferences = countReferences(systemRefs)
		if report.SystemNullReferences > 0 {
			report.SystemIssues = append(report.SystemIssues, fmt.Sprintf("%d null references", report.SystemNullReferences))
		}
		if report.SystemDuplicateReferences > 0 {
			report.SystemIssues = append(report.SystemIssues, fmt.Sprintf("%d duplicated references", report.SystemDuplicateReferences))
		}
	}

	if bankHasDate && systemHasDate {
		bankStart := models.MinDate(bankDates...)
		systemStart := models.MinDate(systemDates...)
		if gap, ok := bankStart.DaysUntil(systemStart); ok {
			if gap < 0 {
				gap = -gap
			}
			report.StartDateGapDays = gap
			if gap > MaxStartDateGapDays {
				report.GeneralWarnings = append(report.GeneralWarnings,
					fmt.Sprintf("large gap between ledger date ranges: %d days", gap))
			}
		}
	}

	return report
}

// hasField treats a ledger without a field set as providing every field.
func hasField(fields models.FieldSet, f models.Field) bool {
	return fields == nil || fields.Has(f)
}

func countNullDates(dates []models.Date) int {
	n := 0
	for _, d := range dates {
		if d.IsNull() {
			n++
		}
	}
	return n
}

// countReferences returns the number of empty references and the number of
// repeat occurrences of non-empty ones.
func countReferences(refs []string) (nulls, duplicates int) {
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if ref == "" {
			nulls++
			continue
		}
		if seen[ref] {
			duplicates++
			continue
		}
		seen[ref] = true
	}
	return nulls, duplicates
}
