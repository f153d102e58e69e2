// Package parsers turns raw bank statements and accounting system ledgers
// into canonical models.BankLedger and models.SystemLedger values.
//
// Ledger files arrive as CSV, XLSX or legacy XLS exports that carry title
// rows above the header, opening and closing balance rows, localized column
// names and spreadsheet artifacts. The parsers locate the header row, map
// localized columns onto canonical fields, trim balance rows and number the
// remaining records 1..n in file order.
//
// Parser types:
//   - TableReader: reads the first sheet of a CSV/XLSX/XLS file into rows
//   - BankStatementParser: cleans bank statements (standard and Scotia layouts)
//   - SystemLedgerParser: cleans accounting system ledgers
//   - LoadLedgers: parses a bank and a system file concurrently
//
// Example usage:
//
//	bankParser, err := NewBankStatementParser(nil)
//	bank, stats, err := bankParser.ParseFile(ctx, "extracto_4103.xlsx")
//
//	systemParser, err := NewSystemLedgerParser(nil)
//	system, _, err := systemParser.ParseFile(ctx, "auxiliar.xls", strategy.SystemNetAmount)
//
// Malformed cells never abort a parse: an unparseable date becomes the null
// date and an unparseable amount becomes zero. Both are counted in ParseStats
// so callers can surface them.
package parsers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/errors"
)

// ParseError describes a cell that could not be converted
type ParseError struct {
	Line    int    `json:"line"`
	Column  int    `json:"column"`
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s: %v",
			e.Line, e.Column, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("parse error at line %d, column %d (%s='%s'): %s",
		e.Line, e.Column, e.Field, e.Value, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Config holds configuration for ledger parsing
type Config struct {
	// Delimiter for CSV input. Zero sniffs ',', ';', tab or '|' from the
	// leading lines.
	Delimiter rune
	// ScotiaScanRows is how many leading rows are searched for Scotia markers.
	ScotiaScanRows int
	// HeaderScanRows bounds the Scotia header search.
	HeaderScanRows int
	// MaxRows caps the rows read from a file; zero means no limit.
	MaxRows int
	// MaxRecordedErrors caps ParseStats.Errors; the counters stay exact.
	MaxRecordedErrors int
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Delimiter:         0,
		ScotiaScanRows:    20,
		HeaderScanRows:    25,
		MaxRows:           0,
		MaxRecordedErrors: 100,
	}
}

// Validate checks the configuration for values the parsers cannot use
func (c *Config) Validate() error {
	switch c.Delimiter {
	case 0, ',', ';', '\t', '|':
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "delimiter", string(c.Delimiter), nil)
	}
	if c.ScotiaScanRows <= 0 {
		return errors.ConfigurationError(errors.CodeOutOfRange, "scotia_scan_rows", c.ScotiaScanRows, nil)
	}
	if c.HeaderScanRows <= 0 {
		return errors.ConfigurationError(errors.CodeOutOfRange, "header_scan_rows", c.HeaderScanRows, nil)
	}
	if c.MaxRows < 0 {
		return errors.ConfigurationError(errors.CodeOutOfRange, "max_rows", c.MaxRows, nil)
	}
	if c.MaxRecordedErrors < 0 {
		return errors.ConfigurationError(errors.CodeOutOfRange, "max_recorded_errors", c.MaxRecordedErrors, nil)
	}
	return nil
}

func resolveConfig(config *Config) (*Config, error) {
	if config == nil {
		return DefaultConfig(), nil
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// ParseStats holds statistics about a parsing operation
type ParseStats struct {
	Source        string             `json:"source"`
	Format        Format             `json:"format"`
	Variant       models.BankVariant `json:"variant,omitempty"`
	HeaderLine    int                `json:"header_line"`
	TotalLines    int                `json:"total_lines"`
	RecordsParsed int                `json:"records_parsed"`
	DroppedRows   int                `json:"dropped_rows"`
	// TruncatedAt is the line of the closing balance marker, zero if none.
	TruncatedAt  int            `json:"truncated_at,omitempty"`
	DateErrors   int            `json:"date_errors"`
	AmountErrors int            `json:"amount_errors"`
	ErrorCount   int            `json:"error_count"`
	Errors       []*ParseError  `json:"errors,omitempty"`
	Fields       []models.Field `json:"fields"`

	maxErrors int
}

// NewParseStats creates a new ParseStats instance
func NewParseStats(source string, maxErrors int) *ParseStats {
	return &ParseStats{
		Source:    source,
		Errors:    make([]*ParseError, 0),
		maxErrors: maxErrors,
	}
}

// AddError records a cell conversion problem
func (ps *ParseStats) AddError(err *ParseError) {
	ps.ErrorCount++
	if ps.maxErrors == 0 || len(ps.Errors) < ps.maxErrors {
		ps.Errors = append(ps.Errors, err)
	}
}

// HasErrors returns true if there were any parsing errors
func (ps *ParseStats) HasErrors() bool {
	return ps.ErrorCount > 0
}

func (ps *ParseStats) String() string {
	return fmt.Sprintf("Parsed %d lines, %d records (%d dropped), %d errors",
		ps.TotalLines, ps.RecordsParsed, ps.DroppedRows, ps.ErrorCount)
}

// GetSampleErrors returns a sample of the parsing errors for logging/debugging
func (ps *ParseStats) GetSampleErrors(maxSamples int) []string {
	if len(ps.Errors) == 0 {
		return nil
	}

	limit := len(ps.Errors)
	if maxSamples > 0 && maxSamples < limit {
		limit = maxSamples
	}

	samples := make([]string, 0, limit)
	for i := 0; i < limit; i++ {
		samples = append(samples, ps.Errors[i].Error())
	}
	return samples
}

// cell returns the trimmed value at idx, or "" when the column is absent or
// the row is short.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func anyCell(row []string, pred func(string) bool) bool {
	for _, v := range row {
		if pred(strings.TrimSpace(v)) {
			return true
		}
	}
	return false
}

// Excel serial numbers accepted as dates: 1954-10-03 through 2173-10-14.
const (
	minExcelSerial = 20000
	maxExcelSerial = 100000
)

// parseDate converts a date cell, accepting Excel serial dates. Failures are
// recorded and yield the null date.
func (ps *ParseStats) parseDate(line, column int, field models.Field, value string) models.Date {
	d, err := models.ParseDate(value)
	if err == nil {
		return d
	}
	if serial, perr := strconv.ParseFloat(strings.TrimSpace(value), 64); perr == nil &&
		serial >= minExcelSerial && serial < maxExcelSerial {
		if t, terr := excelize.ExcelDateToTime(serial, false); terr == nil {
			return models.DateOf(t)
		}
	}

	ps.DateErrors++
	ps.AddError(&ParseError{
		Line:    line,
		Column:  column,
		Field:   string(field),
		Value:   value,
		Message: "unparseable date, record kept with a null date",
		Err:     err,
	})
	return models.NullDate()
}

// parseAmount converts an amount cell. Failures are recorded and yield zero.
func (ps *ParseStats) parseAmount(line, column int, field models.Field, value string) decimal.Decimal {
	d, err := models.ParseAmount(value)
	if err == nil {
		return d
	}

	ps.AmountErrors++
	ps.AddError(&ParseError{
		Line:    line,
		Column:  column,
		Field:   string(field),
		Value:   value,
		Message: "unparseable amount, treated as zero",
		Err:     err,
	})
	return decimal.Zero
}

// parseBalance converts an optional balance cell; empty or invalid cells are
// null.
func parseBalance(value string) decimal.NullDecimal {
	if strings.TrimSpace(value) == "" {
		return decimal.NullDecimal{}
	}
	d, err := models.ParseAmount(value)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
