package reporter

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/workflow"
)

func jan(day int) models.Date {
	return models.NewDate(2024, time.January, day)
}

func amountOf(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// workflowAResult reconciles one matching pair and one orphan bank record.
func workflowAResult(t *testing.T) *reconciler.ReconciliationResult {
	t.Helper()

	matched := models.NewBankRecord(1, jan(5), "0034567", decimal.Zero, amountOf("100"))
	matched.Description = "TRANSFERENCIA"
	matched.Dependency = "CENTRAL"
	orphan := models.NewBankRecord(2, jan(6), "999", amountOf("50"), decimal.Zero)

	bank := models.BankLedger{Source: "extracto_4103.xlsx", Variant: models.BankVariantStandard, Records: []models.BankRecord{matched, orphan}}
	system := models.SystemLedger{Source: "auxiliar.xlsx", Records: []models.SystemRecord{{
		ID: 1, Date: jan(7), Reference: "4567", TransNumber: "T-1", ValueType: "TRF",
		Concept: "COBRO", Detail: "CLIENTE", Status: "OK",
		Debit: amountOf("100"), NetAmount: amountOf("100"),
		Balance: decimal.NewNullDecimal(amountOf("1500")),
	}}}

	result := reconciler.Reconcile(bank, system, workflow.MustNew(workflow.KindA, workflow.DefaultOptions()))
	if len(result.Matched) != 1 {
		t.Fatalf("expected fixture to produce 1 match, got %d", len(result.Matched))
	}

	return &reconciler.ReconciliationResult{
		Result:        result,
		Bank:          bank,
		System:        system,
		ToleranceDays: workflow.DefaultToleranceDays,
		ProcessedAt:   time.Date(2024, time.February, 1, 10, 0, 0, 0, time.UTC),
		Duration:      150 * time.Millisecond,
	}
}

// scotiaResult reconciles one crossed-leg pair from a Scotia statement.
func scotiaResult(t *testing.T) *reconciler.ReconciliationResult {
	t.Helper()

	record := models.NewBankRecord(1, jan(5), "V-77", amountOf("100"), decimal.Zero)
	record.DepOrigin = "01"
	record.Concept = "DEPOSITO"
	record.Balance = decimal.NewNullDecimal(amountOf("900"))

	bank := models.BankLedger{Source: "scotia.xlsx", Variant: models.BankVariantScotia, Records: []models.BankRecord{record}}
	system := models.SystemLedger{Source: "servima.xlsx", Records: []models.SystemRecord{{
		ID: 1, Date: jan(4), Reference: "D-1", Counterparty: "ACME", Concept: "PAGO",
		Credit: amountOf("100"), NetAmount: amountOf("100"),
	}}}

	result := reconciler.Reconcile(bank, system, workflow.MustNew(workflow.KindB, workflow.DefaultOptions()))
	if len(result.Matched) != 1 {
		t.Fatalf("expected fixture to produce 1 match, got %d", len(result.Matched))
	}
	return &reconciler.ReconciliationResult{Result: result, Bank: bank, System: system}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:        "default config",
			config:      nil,
			expectError: false,
		},
		{
			name:        "valid config",
			config:      DefaultReportConfig(),
			expectError: false,
		},
		{
			name: "invalid format",
			config: &ReportConfig{
				Format:        "csv",
				TableMaxWidth: 120,
			},
			expectError: true,
		},
		{
			name: "table width too small",
			config: &ReportConfig{
				Format:        FormatConsole,
				TableMaxWidth: 30,
			},
			expectError: true,
		},
		{
			name: "negative list limit",
			config: &ReportConfig{
				Format:        FormatYAML,
				TableMaxWidth: 80,
				MaxListItems:  -1,
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if generator == nil {
					t.Errorf("expected generator but got nil")
				}
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatYAML, true},
		{"csv", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := tt.format.IsValid(); got != tt.valid {
			t.Errorf("expected IsValid(%q) = %v, got %v", tt.format, tt.valid, got)
		}
	}
}

func TestGenerateConsoleReport(t *testing.T) {
	generator, err := NewReportGenerator(DefaultReportConfig())
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(workflowAResult(t), &buf); err != nil {
		t.Fatalf("failed to generate report: %v", err)
	}
	output := buf.String()

	expected := []string{
		"RECONCILIATION REPORT",
		"Workflow:            WorkflowA",
		"Date Window:         [0, 10]",
		"=== SUMMARY ===",
		"Verified: 50.00%",
		"=== CATEGORY TOTALS ===",
		"bank_credit",
		"=== MATCH QUALITY BREAKDOWN ===",
		"Tolerated by Date:  1 (100.0%)",
		"=== DATA QUALITY ===",
		"=== UNMATCHED BANK RECORDS ===",
		"ID: 2, Date: 2024-01-06, Ref: 999, Debit: 50.00, Credit: 0.00",
	}
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("expected console report to contain %q\n%s", want, output)
		}
	}

	if strings.Contains(output, "=== MATCHED PAIRS ===") {
		t.Error("expected matched pairs to be omitted by default")
	}
	if strings.Contains(output, "=== UNMATCHED SYSTEM RECORDS ===") {
		t.Error("expected no unmatched system section when every system record matched")
	}
}

func TestGenerateConsoleReport_ListLimit(t *testing.T) {
	config := DefaultReportConfig()
	config.MaxListItems = 1
	config.IncludeMatched = true
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	result := workflowAResult(t)
	result.UnmatchedBank = append(result.UnmatchedBank, result.UnmatchedBank[0], result.UnmatchedBank[0])

	var buf bytes.Buffer
	if err := generator.GenerateReport(result, &buf); err != nil {
		t.Fatalf("failed to generate report: %v", err)
	}
	output := buf.String()

	if !strings.Contains(output, "... and 2 more") {
		t.Errorf("expected truncated list, got\n%s", output)
	}
	if !strings.Contains(output, "bank #1 (2024-01-05, 100.00) <-> system #1 (2024-01-07, 100.00), offset +2 days, ToleratedByDate") {
		t.Errorf("expected matched pair line, got\n%s", output)
	}
}

func TestGenerateJSONReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(workflowAResult(t), &buf); err != nil {
		t.Fatalf("failed to generate report: %v", err)
	}

	var document map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &document); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}

	if document["workflow"] != "WorkflowA" {
		t.Errorf("expected workflow WorkflowA, got %v", document["workflow"])
	}
	stats, ok := document["statistics"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected statistics object, got %T", document["statistics"])
	}
	if stats["matched"] != float64(1) {
		t.Errorf("expected 1 match, got %v", stats["matched"])
	}
	if _, ok := document["matched"]; ok {
		t.Error("expected matched pairs to be omitted by default")
	}
	unmatched, ok := document["unmatched_bank"].([]interface{})
	if !ok || len(unmatched) != 1 {
		t.Errorf("expected 1 unmatched bank record, got %v", document["unmatched_bank"])
	}
}

func TestGenerateYAMLReport(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatYAML
	config.IncludeMatched = true
	generator, err := NewReportGenerator(config)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}

	var buf bytes.Buffer
	if err := generator.GenerateReport(workflowAResult(t), &buf); err != nil {
		t.Fatalf("failed to generate report: %v", err)
	}

	var document map[string]interface{}
	if err := yaml.Unmarshal(buf.Bytes(), &document); err != nil {
		t.Fatalf("report is not valid YAML: %v", err)
	}

	if document["workflow"] != "WorkflowA" {
		t.Errorf("expected workflow WorkflowA, got %v", document["workflow"])
	}
	stats, ok := document["statistics"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected statistics mapping, got %T", document["statistics"])
	}
	if stats["percent_verified"] != 50 {
		t.Errorf("expected 50 percent verified, got %v", stats["percent_verified"])
	}
	matched, ok := document["matched"].([]interface{})
	if !ok || len(matched) != 1 {
		t.Fatalf("expected 1 matched pair, got %v", document["matched"])
	}
	pair := matched[0].(map[string]interface{})
	if pair["quality"] != "ToleratedByDate" {
		t.Errorf("expected quality ToleratedByDate, got %v", pair["quality"])
	}
}

func TestGenerateReport_NilResult(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestMatchedTable_WorkflowA(t *testing.T) {
	result := workflowAResult(t)
	table := MatchedTable(result.Result, result.Bank.Variant)

	expectedHeader := []string{
		"Date_bank", "Description", "DocumentNumber", "Dependency", "Debit", "Credit",
		"Verified", "Date_system", "TransNumber", "BankRefNumber", "ValueType", "Concept",
		"Detail", "Debit2", "Credit2", "Balance", "Status",
	}
	if !reflect.DeepEqual(table.Header(), expectedHeader) {
		t.Errorf("expected header %v, got %v", expectedHeader, table.Header())
	}

	expectedRow := []string{
		"2024-01-05", "TRANSFERENCIA", "0034567", "CENTRAL", "0.00", "100.00",
		"v", "2024-01-07", "T-1", "4567", "TRF", "COBRO",
		"CLIENTE", "100.00", "0.00", "1500.00", "OK",
	}
	if len(table.Rows) != 1 || !reflect.DeepEqual(table.Rows[0], expectedRow) {
		t.Errorf("expected row %v, got %v", expectedRow, table.Rows)
	}
}

func TestMatchedTable_WorkflowBScotia(t *testing.T) {
	result := scotiaResult(t)
	table := MatchedTable(result.Result, result.Bank.Variant)

	expectedHeader := []string{
		"fec", "documento", "cliprov", "debe", "haber", "saldo", "concepto", "verified",
		"Dep.Origin", "Concept", "Voucher", "Date", "Debit", "Credit", "Balance",
	}
	if !reflect.DeepEqual(table.Header(), expectedHeader) {
		t.Errorf("expected header %v, got %v", expectedHeader, table.Header())
	}

	expectedRow := []string{
		"2024-01-04", "D-1", "ACME", "0.00", "100.00", "", "PAGO", "v",
		"01", "DEPOSITO", "V-77", "2024-01-05", "100.00", "0.00", "900.00",
	}
	if len(table.Rows) != 1 || !reflect.DeepEqual(table.Rows[0], expectedRow) {
		t.Errorf("expected row %v, got %v", expectedRow, table.Rows)
	}
}

func TestUnmatchedTables(t *testing.T) {
	tests := []struct {
		name     string
		table    func() *Table
		header   []string
		rowCount int
	}{
		{
			name: "workflow a bank",
			table: func() *Table {
				r := workflowAResult(t)
				return UnmatchedBankTable(r.Result, r.Bank.Variant)
			},
			header:   []string{"Date", "Description", "DocumentNumber", "Subject", "Dependency", "Debit", "Credit"},
			rowCount: 1,
		},
		{
			name: "workflow a system",
			table: func() *Table {
				return UnmatchedSystemTable(workflowAResult(t).Result)
			},
			header:   []string{"Date", "TransNumber", "BankRefNumber", "ValueType", "Concept", "Detail", "Debit", "Credit", "Balance", "Status"},
			rowCount: 0,
		},
		{
			name: "workflow b scotia bank",
			table: func() *Table {
				r := scotiaResult(t)
				return UnmatchedBankTable(r.Result, r.Bank.Variant)
			},
			header:   []string{"Dep.Origin", "Concept", "Voucher", "Date", "Debit", "Credit", "Balance"},
			rowCount: 0,
		},
		{
			name: "workflow b system",
			table: func() *Table {
				return UnmatchedSystemTable(scotiaResult(t).Result)
			},
			header:   []string{"fec", "documento", "cliprov", "debe", "haber", "saldo"},
			rowCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := tt.table()
			if !reflect.DeepEqual(table.Header(), tt.header) {
				t.Errorf("expected header %v, got %v", tt.header, table.Header())
			}
			if len(table.Rows) != tt.rowCount {
				t.Errorf("expected %d rows, got %d", tt.rowCount, len(table.Rows))
			}
		})
	}
}

func TestDatasetTablesMarkVerified(t *testing.T) {
	result := workflowAResult(t)

	bank := BankDatasetTable(result.Bank, result.Result)
	if len(bank.Rows) != 2 {
		t.Fatalf("expected 2 bank rows, got %d", len(bank.Rows))
	}
	last := len(bank.Columns) - 1
	if bank.Rows[0][last] != VerifiedMark || bank.Rows[1][last] != "" {
		t.Errorf("expected only bank record 1 verified, got %q and %q", bank.Rows[0][last], bank.Rows[1][last])
	}

	system := SystemDatasetTable(result.System, result.Result)
	if system.Rows[0][len(system.Columns)-1] != VerifiedMark {
		t.Errorf("expected system record 1 verified, got %v", system.Rows[0])
	}
}

func TestWriteCSV(t *testing.T) {
	result := workflowAResult(t)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, UnmatchedBankTable(result.Result, result.Bank.Variant)); err != nil {
		t.Fatalf("failed to write CSV: %v", err)
	}

	data := buf.Bytes()
	if !bytes.HasPrefix(data, utf8BOM) {
		t.Fatal("expected CSV to start with a UTF-8 byte order mark")
	}

	lines := strings.Split(strings.TrimSpace(string(data[len(utf8BOM):])), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and 1 row, got %d lines", len(lines))
	}
	if lines[0] != "Date,Description,DocumentNumber,Subject,Dependency,Debit,Credit" {
		t.Errorf("unexpected header: %s", lines[0])
	}
	if lines[1] != "2024-01-06,,999,,,50.00,0.00" {
		t.Errorf("unexpected row: %s", lines[1])
	}
}

func TestWriteWorkbook(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, workflowAResult(t)); err != nil {
		t.Fatalf("failed to write workbook: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer f.Close()

	if sheets := f.GetSheetList(); !reflect.DeepEqual(sheets, WorkbookSheets) {
		t.Errorf("expected sheets %v, got %v", WorkbookSheets, sheets)
	}

	rows, err := f.GetRows("Unmatched bank")
	if err != nil {
		t.Fatalf("failed to read sheet: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header and 1 row, got %d rows", len(rows))
	}
	if rows[0][0] != "Date" || rows[1][2] != "999" {
		t.Errorf("unexpected sheet contents: %v", rows)
	}

	value, err := f.GetCellValue("Unmatched bank", "F2")
	if err != nil {
		t.Fatalf("failed to read cell: %v", err)
	}
	if value != "50" {
		t.Errorf("expected numeric debit 50, got %q", value)
	}
}

func TestExporter_Export(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	exporter, err := NewExporter(&ExportConfig{Directory: dir, Prefix: "acct_", CSV: true, Workbook: true})
	if err != nil {
		t.Fatalf("failed to create exporter: %v", err)
	}
	exporter.now = func() time.Time { return time.Date(2024, time.February, 1, 9, 30, 0, 0, time.UTC) }

	paths, err := exporter.Export(workflowAResult(t))
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}

	expected := []string{
		filepath.Join(dir, "acct_verified_WorkflowA_20240201_093000.csv"),
		filepath.Join(dir, "acct_bank_unmatched_WorkflowA_20240201_093000.csv"),
		filepath.Join(dir, "acct_system_unmatched_WorkflowA_20240201_093000.csv"),
		filepath.Join(dir, "acct_reconciliation_WorkflowA_20240201_093000.xlsx"),
	}
	if !reflect.DeepEqual(paths, expected) {
		t.Errorf("expected paths %v, got %v", expected, paths)
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s to exist: %v", path, err)
		}
	}
}

func TestExportConfigValidation(t *testing.T) {
	if err := DefaultExportConfig().Validate(); err != nil {
		t.Errorf("expected default export config to be valid, got %v", err)
	}
	if err := (&ExportConfig{Directory: "out"}).Validate(); err == nil {
		t.Error("expected error when no format is enabled")
	}
	if err := (&ExportConfig{CSV: true}).Validate(); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestSafeReportGenerator(t *testing.T) {
	generator, err := NewSafeReportGenerator(nil, nil)
	if err != nil {
		t.Fatalf("failed to create safe generator: %v", err)
	}

	if err := generator.GenerateReportSafely(nil, &bytes.Buffer{}); err == nil {
		t.Error("expected error for nil result")
	}
	if err := generator.GenerateReportSafely(workflowAResult(t), nil); err == nil {
		t.Error("expected error for nil writer")
	}

	var buf bytes.Buffer
	if err := generator.GenerateReportSafely(workflowAResult(t), &buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "RECONCILIATION REPORT") {
		t.Error("expected console report output")
	}

	if err := generator.ValidateResult(workflowAResult(t)); err != nil {
		t.Errorf("expected balanced result to validate, got %v", err)
	}
}

func TestNewSafeReportGenerator_InvalidConfig(t *testing.T) {
	if _, err := NewSafeReportGenerator(&ReportConfig{Format: "pdf", TableMaxWidth: 80}, nil); err == nil {
		t.Error("expected configuration error")
	}
}

// failingWriter fails its first n writes.
type failingWriter struct {
	bytes.Buffer
	n int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n > 0 {
		w.n--
		return 0, errors.New("disk full")
	}
	return w.Buffer.Write(p)
}

func TestSafeReportGenerator_ConsoleFallback(t *testing.T) {
	config := DefaultReportConfig()
	config.Format = FormatJSON
	generator, err := NewSafeReportGenerator(config, nil)
	if err != nil {
		t.Fatalf("failed to create safe generator: %v", err)
	}

	w := &failingWriter{n: 1}
	if err := generator.GenerateReportSafely(workflowAResult(t), w); err != nil {
		t.Fatalf("expected console fallback to succeed, got %v", err)
	}
	out := w.String()
	if !strings.Contains(out, "NOTE: json report failed (disk full)") {
		t.Errorf("expected fallback note, got %q", out)
	}
	if !strings.Contains(out, "RECONCILIATION REPORT") {
		t.Error("expected console report after the note")
	}
}

func TestSafeReportGenerator_UnbalancedResult(t *testing.T) {
	generator, err := NewSafeReportGenerator(nil, nil)
	if err != nil {
		t.Fatalf("failed to create safe generator: %v", err)
	}

	result := workflowAResult(t)
	result.Statistics.BankDebit.Difference = decimal.NewFromInt(1)

	var buf bytes.Buffer
	if err := generator.GenerateReportSafely(result, &buf); err == nil {
		t.Fatal("expected unbalanced result to be rejected")
	}
	if buf.Len() != 0 {
		t.Errorf("expected nothing written, got %q", buf.String())
	}
}
