// Package reporter renders reconciliation results.
//
// Two kinds of output are produced:
//   - Summary reports (console, JSON or YAML) describing the run: counts,
//     category totals, data quality findings and diagnostics.
//   - Export artifacts (CSV files and a compiled XLSX workbook) holding the
//     matched and unmatched records in the column layouts auditors expect.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(reporter.DefaultReportConfig())
//	if err != nil {
//		return err
//	}
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatYAML:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" yaml:"format"`

	// Detail level options
	IncludeMatched         bool `json:"include_matched" yaml:"include_matched"`
	IncludeUnmatchedBank   bool `json:"include_unmatched_bank" yaml:"include_unmatched_bank"`
	IncludeUnmatchedSystem bool `json:"include_unmatched_system" yaml:"include_unmatched_system"`
	IncludeQuality         bool `json:"include_quality" yaml:"include_quality"`
	IncludeParseStats      bool `json:"include_parse_stats" yaml:"include_parse_stats"`

	// Console formatting options
	TableMaxWidth int `json:"table_max_width" yaml:"table_max_width"`
	// MaxListItems caps every record list on the console. 0 prints all.
	MaxListItems int `json:"max_list_items" yaml:"max_list_items"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeMatched:         false,
		IncludeUnmatchedBank:   true,
		IncludeUnmatchedSystem: true,
		IncludeQuality:         true,
		IncludeParseStats:      true,
		TableMaxWidth:          120,
		MaxListItems:           10,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.TableMaxWidth < 50 {
		return fmt.Errorf("table max width must be at least 50 characters, got %d", c.TableMaxWidth)
	}

	if c.MaxListItems < 0 {
		return fmt.Errorf("max list items cannot be negative, got %d", c.MaxListItems)
	}

	return nil
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport generates a report from reconciliation results and writes it to the provided writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	if result == nil || result.Result == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatYAML:
		return rg.generateYAMLReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

func (rg *ReportGenerator) generateConsoleReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	rule := strings.Repeat("=", min(rg.config.TableMaxWidth, 72))

	fmt.Fprintf(writer, "RECONCILIATION REPORT\n%s\n", rule)
	if !result.ProcessedAt.IsZero() {
		fmt.Fprintf(writer, "Generated:           %s\n", result.ProcessedAt.Format(time.RFC3339))
	}
	if result.Duration > 0 {
		fmt.Fprintf(writer, "Processing Duration: %v\n", result.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(writer, "Workflow:            %s\n", result.Workflow)
	fmt.Fprintf(writer, "Date Window:         %s\n", result.Window)
	if result.Bank.Source != "" {
		fmt.Fprintf(writer, "Bank Statement:      %s (%s)\n", result.Bank.Source, result.Bank.Variant)
	}
	if result.System.Source != "" {
		fmt.Fprintf(writer, "System Ledger:       %s\n", result.System.Source)
	}
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummaryTable(result.Statistics, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== CATEGORY TOTALS ===\n")
	rg.printCategoryTotals(result.Statistics, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== MATCH QUALITY BREAKDOWN ===\n")
	rg.printMatchQualityTable(result.Statistics, writer)
	fmt.Fprintf(writer, "\n")

	if warnings := result.Warnings(); len(warnings) > 0 {
		fmt.Fprintf(writer, "=== WARNINGS ===\n")
		for _, w := range warnings {
			fmt.Fprintf(writer, "  - %s\n", w)
		}
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeQuality {
		fmt.Fprintf(writer, "=== DATA QUALITY ===\n")
		rg.printQualityCounts(result.Quality, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeParseStats && (result.BankStats != nil || result.SystemStats != nil) {
		fmt.Fprintf(writer, "=== PARSING STATISTICS ===\n")
		rg.printParseStats("Bank", result.BankStats, writer)
		rg.printParseStats("System", result.SystemStats, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeMatched && len(result.Matched) > 0 {
		fmt.Fprintf(writer, "=== MATCHED PAIRS ===\n")
		rg.printMatches(result, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeUnmatchedBank && len(result.UnmatchedBank) > 0 {
		fmt.Fprintf(writer, "=== UNMATCHED BANK RECORDS ===\n")
		rg.printBankRecords(result.UnmatchedBank, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeUnmatchedSystem && len(result.UnmatchedSystem) > 0 {
		fmt.Fprintf(writer, "=== UNMATCHED SYSTEM RECORDS ===\n")
		rg.printSystemRecords(result.UnmatchedSystem, writer)
		fmt.Fprintf(writer, "\n")
	}

	return nil
}

func (rg *ReportGenerator) generateJSONReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(rg.filterResultForOutput(result))
}

// generateYAMLReport renders the same document as the JSON report. Values
// go through their JSON encoding first so decimals and dates keep the same
// textual form in both formats.
func (rg *ReportGenerator) generateYAMLReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	data, err := json.Marshal(rg.filterResultForOutput(result))
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	var document map[string]interface{}
	if err := json.Unmarshal(data, &document); err != nil {
		return fmt.Errorf("failed to decode report: %w", err)
	}

	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(document); err != nil {
		return fmt.Errorf("failed to write YAML report: %w", err)
	}
	return encoder.Close()
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummaryTable(stats reconciler.Statistics, writer io.Writer) {
	fmt.Fprintf(writer, "Bank Records:\n")
	fmt.Fprintf(writer, "  Total:     %d\n", stats.TotalBank)
	fmt.Fprintf(writer, "  Matched:   %d (%.1f%%)\n", stats.Matched, reconciler.Percentage(stats.Matched, stats.TotalBank))
	fmt.Fprintf(writer, "  Unmatched: %d (%.1f%%)\n", stats.UnmatchedBank, reconciler.Percentage(stats.UnmatchedBank, stats.TotalBank))

	fmt.Fprintf(writer, "\nSystem Records:\n")
	fmt.Fprintf(writer, "  Total:     %d\n", stats.TotalSystem)
	fmt.Fprintf(writer, "  Matched:   %d (%.1f%%)\n", stats.Matched, reconciler.Percentage(stats.Matched, stats.TotalSystem))
	fmt.Fprintf(writer, "  Unmatched: %d (%.1f%%)\n", stats.UnmatchedSystem, reconciler.Percentage(stats.UnmatchedSystem, stats.TotalSystem))

	fmt.Fprintf(writer, "\nVerified: %.2f%%\n", stats.PercentVerified)
}

func (rg *ReportGenerator) printCategoryTotals(stats reconciler.Statistics, writer io.Writer) {
	fmt.Fprintf(writer, "%-14s %16s %16s %16s %16s %10s\n", "Category", "Original", "Verified", "Unverified", "Check", "Diff")
	for _, c := range reconciler.Categories {
		totals := stats.Category(c)
		fmt.Fprintf(writer, "%-14s %16s %16s %16s %16s %10s\n",
			c,
			totals.Original.StringFixed(2),
			totals.Verified.StringFixed(2),
			totals.Unverified.StringFixed(2),
			totals.Check.StringFixed(2),
			totals.Difference.String())
	}
	if !stats.Balanced() {
		fmt.Fprintf(writer, "WARNING: category totals do not balance; amounts changed between the ledgers and the result\n")
	}
}

func (rg *ReportGenerator) printMatchQualityTable(stats reconciler.Statistics, writer io.Writer) {
	fmt.Fprintf(writer, "Exact Matches:      %d (%.1f%%)\n", stats.ExactMatches, reconciler.Percentage(stats.ExactMatches, stats.Matched))
	fmt.Fprintf(writer, "Tolerated by Date:  %d (%.1f%%)\n", stats.ToleratedMatches, reconciler.Percentage(stats.ToleratedMatches, stats.Matched))
	fmt.Fprintf(writer, "Matched Amount:     bank %s / system %s\n", stats.MatchedBankAmount.StringFixed(2), stats.MatchedSystemAmount.StringFixed(2))
	fmt.Fprintf(writer, "Unmatched Amount:   bank %s / system %s\n", stats.UnmatchedBankAmount.StringFixed(2), stats.UnmatchedSystemAmount.StringFixed(2))
	fmt.Fprintf(writer, "Amount Delta Total: %s\n", stats.AmountDeltaTotal.StringFixed(2))
}

func (rg *ReportGenerator) printQualityCounts(q reconciler.QualityReport, writer io.Writer) {
	fmt.Fprintf(writer, "%-22s %8s %8s\n", "", "Bank", "System")
	fmt.Fprintf(writer, "%-22s %8d %8d\n", "Null dates", q.BankNullDates, q.SystemNullDates)
	fmt.Fprintf(writer, "%-22s %8d %8d\n", "Null references", q.BankNullReferences, q.SystemNullReferences)
	fmt.Fprintf(writer, "%-22s %8d %8d\n", "Duplicate references", q.BankDuplicateReferences, q.SystemDuplicateReferences)
	fmt.Fprintf(writer, "Start date gap: %d days\n", q.StartDateGapDays)
}

func (rg *ReportGenerator) printParseStats(label string, stats *parsers.ParseStats, writer io.Writer) {
	if stats == nil {
		return
	}
	fmt.Fprintf(writer, "%s: %d records from %d lines (header line %d, %d dropped, %d date errors, %d amount errors)\n",
		label, stats.RecordsParsed, stats.TotalLines, stats.HeaderLine, stats.DroppedRows, stats.DateErrors, stats.AmountErrors)
}

func (rg *ReportGenerator) printMatches(result *reconciler.ReconciliationResult, writer io.Writer) {
	fmt.Fprintf(writer, "Total Matched Pairs: %d\n\n", len(result.Matched))
	for i, m := range result.Matched {
		if rg.truncated(i, len(result.Matched), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. bank #%d (%s, %s) <-> system #%d (%s, %s), offset %+d days, %s\n",
			i+1,
			m.Bank.ID, displayDate(m.Bank.Date), m.Bank.NetAmount.StringFixed(2),
			m.System.ID, displayDate(m.System.Date), m.System.NetAmount.StringFixed(2),
			m.DayOffset, m.Quality)
	}
}

func (rg *ReportGenerator) printBankRecords(records []models.BankRecord, writer io.Writer) {
	fmt.Fprintf(writer, "Total Unmatched Bank Records: %d\n\n", len(records))
	for i, r := range records {
		if rg.truncated(i, len(records), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. ID: %d, Date: %s, Ref: %s, Debit: %s, Credit: %s\n",
			i+1, r.ID, displayDate(r.Date), displayText(r.Reference), r.Debit.StringFixed(2), r.Credit.StringFixed(2))
	}
}

func (rg *ReportGenerator) printSystemRecords(records []models.SystemRecord, writer io.Writer) {
	fmt.Fprintf(writer, "Total Unmatched System Records: %d\n\n", len(records))
	for i, r := range records {
		if rg.truncated(i, len(records), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. ID: %d, Date: %s, Ref: %s, Debit: %s, Credit: %s\n",
			i+1, r.ID, displayDate(r.Date), displayText(r.Reference), r.Debit.StringFixed(2), r.Credit.StringFixed(2))
	}
}

// truncated prints the "... and N more" line once the list limit is hit.
func (rg *ReportGenerator) truncated(i, total int, writer io.Writer) bool {
	limit := rg.config.MaxListItems
	if limit == 0 || i < limit {
		return false
	}
	fmt.Fprintf(writer, "  ... and %d more\n", total-limit)
	return true
}

func (rg *ReportGenerator) filterResultForOutput(result *reconciler.ReconciliationResult) map[string]interface{} {
	output := map[string]interface{}{
		"workflow":       result.Workflow,
		"window":         result.Window,
		"tolerance_days": result.ToleranceDays,
		"statistics":     result.Statistics,
		"pipeline":       result.Pipeline,
		"warnings":       result.Warnings(),
	}

	if !result.ProcessedAt.IsZero() {
		output["processed_at"] = result.ProcessedAt
		output["duration"] = result.Duration.String()
	}

	if len(result.Diagnostics) > 0 {
		output["diagnostics"] = result.Diagnostics
	}

	if rg.config.IncludeQuality {
		output["quality"] = result.Quality
	}

	if rg.config.IncludeParseStats {
		if result.BankStats != nil {
			output["bank_parse_stats"] = result.BankStats
		}
		if result.SystemStats != nil {
			output["system_parse_stats"] = result.SystemStats
		}
	}

	if rg.config.IncludeMatched {
		output["matched"] = result.Matched
	}

	if rg.config.IncludeUnmatchedBank {
		output["unmatched_bank"] = result.UnmatchedBank
	}

	if rg.config.IncludeUnmatchedSystem {
		output["unmatched_system"] = result.UnmatchedSystem
	}

	return output
}

func displayDate(d models.Date) string {
	if d.IsNull() {
		return "-"
	}
	return d.String()
}

func displayText(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
