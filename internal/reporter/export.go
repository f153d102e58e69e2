package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/matcher"
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/workflow"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

// utf8BOM lets spreadsheet applications detect the CSV encoding.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// VerifiedMark fills the verified column of matched rows.
const VerifiedMark = "v"

// Column is one column of an export table.
type Column struct {
	Name string
	// Numeric columns hold decimal amounts and are written as numbers to
	// workbooks.
	Numeric bool
}

// Table is a rendered export artifact.
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]string
}

// Header returns the column names in order.
func (t *Table) Header() []string {
	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c.Name
	}
	return header
}

func text(name string) Column   { return Column{Name: name} }
func amount(name string) Column { return Column{Name: name, Numeric: true} }

func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func formatBalance(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

// Column layouts of the audit artifacts. They are fixed per workflow and
// bank variant.
var (
	workflowAMatchedColumns = []Column{
		text("Date_bank"), text("Description"), text("DocumentNumber"), text("Dependency"),
		amount("Debit"), amount("Credit"), text("Verified"), text("Date_system"),
		text("TransNumber"), text("BankRefNumber"), text("ValueType"), text("Concept"),
		text("Detail"), amount("Debit2"), amount("Credit2"), amount("Balance"), text("Status"),
	}

	standardBankColumns = []Column{
		text("Date"), text("Description"), text("DocumentNumber"), text("Subject"),
		text("Dependency"), amount("Debit"), amount("Credit"),
	}

	scotiaBankColumns = []Column{
		text("Dep.Origin"), text("Concept"), text("Voucher"), text("Date"),
		amount("Debit"), amount("Credit"), amount("Balance"),
	}

	workflowASystemColumns = []Column{
		text("Date"), text("TransNumber"), text("BankRefNumber"), text("ValueType"),
		text("Concept"), text("Detail"), amount("Debit"), amount("Credit"),
		amount("Balance"), text("Status"),
	}

	workflowBSystemColumns = []Column{
		text("fec"), text("documento"), text("cliprov"),
		amount("debe"), amount("haber"), amount("saldo"),
	}

	bankDatasetColumns = []Column{
		text("ID"), text("Date"), text("Reference"), text("Description"), text("Subject"),
		text("Dependency"), text("Dep.Origin"), text("Concept"), amount("Debit"),
		amount("Credit"), amount("Balance"), amount("NetAmount"), text("Verified"),
	}

	systemDatasetColumns = []Column{
		text("ID"), text("Date"), text("Reference"), text("TransNumber"), text("ValueType"),
		text("Concept"), text("Detail"), text("Status"), text("Counterparty"), amount("Debit"),
		amount("Credit"), amount("Balance"), amount("NetAmount"), text("Verified"),
	}
)

func bankColumns(variant models.BankVariant) []Column {
	if variant == models.BankVariantScotia {
		return scotiaBankColumns
	}
	return standardBankColumns
}

func bankRow(r models.BankRecord, variant models.BankVariant) []string {
	if variant == models.BankVariantScotia {
		return []string{
			r.DepOrigin, r.Concept, r.Reference, r.Date.String(),
			formatAmount(r.Debit), formatAmount(r.Credit), formatBalance(r.Balance),
		}
	}
	return []string{
		r.Date.String(), r.Description, r.Reference, r.Subject,
		r.Dependency, formatAmount(r.Debit), formatAmount(r.Credit),
	}
}

// MatchedTable renders the verified pairs of result.
func MatchedTable(result *reconciler.Result, variant models.BankVariant) *Table {
	table := &Table{Name: "Verified", Rows: make([][]string, 0, len(result.Matched))}

	if result.Workflow == workflow.KindA {
		table.Columns = workflowAMatchedColumns
		for _, m := range result.Matched {
			table.Rows = append(table.Rows, workflowAMatchedRow(m))
		}
		return table
	}

	table.Columns = append(append(append([]Column{}, workflowBSystemColumns...),
		text("concepto"), text("verified")), bankColumns(variant)...)
	for _, m := range result.Matched {
		s := m.System
		row := []string{
			s.Date.String(), s.Reference, s.Counterparty,
			formatAmount(s.Debit), formatAmount(s.Credit), formatBalance(s.Balance),
			s.Concept, VerifiedMark,
		}
		table.Rows = append(table.Rows, append(row, bankRow(m.Bank, variant)...))
	}
	return table
}

func workflowAMatchedRow(m matcher.Match) []string {
	b, s := m.Bank, m.System
	return []string{
		b.Date.String(), b.Description, b.Reference, b.Dependency,
		formatAmount(b.Debit), formatAmount(b.Credit), VerifiedMark, s.Date.String(),
		s.TransNumber, s.Reference, s.ValueType, s.Concept,
		s.Detail, formatAmount(s.Debit), formatAmount(s.Credit), formatBalance(s.Balance), s.Status,
	}
}

// UnmatchedBankTable renders the bank records left without a pair.
func UnmatchedBankTable(result *reconciler.Result, variant models.BankVariant) *Table {
	// WorkflowA statements never use the Scotia layout.
	if result.Workflow == workflow.KindA {
		variant = models.BankVariantStandard
	}
	table := &Table{Name: "Unmatched bank", Columns: bankColumns(variant), Rows: make([][]string, 0, len(result.UnmatchedBank))}
	for _, r := range result.UnmatchedBank {
		table.Rows = append(table.Rows, bankRow(r, variant))
	}
	return table
}

// UnmatchedSystemTable renders the system records left without a pair.
func UnmatchedSystemTable(result *reconciler.Result) *Table {
	table := &Table{Name: "Unmatched system", Rows: make([][]string, 0, len(result.UnmatchedSystem))}
	if result.Workflow == workflow.KindA {
		table.Columns = workflowASystemColumns
		for _, r := range result.UnmatchedSystem {
			table.Rows = append(table.Rows, []string{
				r.Date.String(), r.TransNumber, r.Reference, r.ValueType,
				r.Concept, r.Detail, formatAmount(r.Debit), formatAmount(r.Credit),
				formatBalance(r.Balance), r.Status,
			})
		}
		return table
	}

	table.Columns = workflowBSystemColumns
	for _, r := range result.UnmatchedSystem {
		table.Rows = append(table.Rows, []string{
			r.Date.String(), r.Reference, r.Counterparty,
			formatAmount(r.Debit), formatAmount(r.Credit), formatBalance(r.Balance),
		})
	}
	return table
}

// BankDatasetTable renders the whole cleaned bank ledger, marking matched
// records as verified.
func BankDatasetTable(ledger models.BankLedger, result *reconciler.Result) *Table {
	verified := idSet(result.MatchedBankIDs())
	table := &Table{Name: "Clean bank dataset", Columns: bankDatasetColumns, Rows: make([][]string, 0, len(ledger.Records))}
	for _, r := range ledger.Records {
		table.Rows = append(table.Rows, []string{
			fmt.Sprint(r.ID), r.Date.String(), r.Reference, r.Description, r.Subject,
			r.Dependency, r.DepOrigin, r.Concept, formatAmount(r.Debit),
			formatAmount(r.Credit), formatBalance(r.Balance), formatAmount(r.NetAmount), mark(verified[r.ID]),
		})
	}
	return table
}

// SystemDatasetTable renders the whole cleaned system ledger, marking
// matched records as verified.
func SystemDatasetTable(ledger models.SystemLedger, result *reconciler.Result) *Table {
	verified := idSet(result.MatchedSystemIDs())
	table := &Table{Name: "Clean system dataset", Columns: systemDatasetColumns, Rows: make([][]string, 0, len(ledger.Records))}
	for _, r := range ledger.Records {
		table.Rows = append(table.Rows, []string{
			fmt.Sprint(r.ID), r.Date.String(), r.Reference, r.TransNumber, r.ValueType,
			r.Concept, r.Detail, r.Status, r.Counterparty, formatAmount(r.Debit),
			formatAmount(r.Credit), formatBalance(r.Balance), formatAmount(r.NetAmount), mark(verified[r.ID]),
		})
	}
	return table
}

func idSet(ids []int) map[int]bool {
	set := make(map[int]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func mark(verified bool) string {
	if verified {
		return VerifiedMark
	}
	return ""
}

// WriteCSV writes table as UTF-8 CSV with a byte order mark.
func WriteCSV(w io.Writer, table *Table) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write byte order mark: %w", err)
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(table.Header()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	if err := csvWriter.WriteAll(table.Rows); err != nil {
		return fmt.Errorf("failed to write %s rows: %w", table.Name, err)
	}
	return nil
}

// ExportConfig controls where export artifacts are written
type ExportConfig struct {
	Directory string `json:"directory" yaml:"directory"`
	// Prefix is prepended to every file name.
	Prefix   string `json:"prefix" yaml:"prefix"`
	CSV      bool   `json:"csv" yaml:"csv"`
	Workbook bool   `json:"workbook" yaml:"workbook"`
}

// DefaultExportConfig returns an export configuration writing both CSV and
// workbook artifacts to the working directory.
func DefaultExportConfig() *ExportConfig {
	return &ExportConfig{
		Directory: ".",
		CSV:       true,
		Workbook:  true,
	}
}

// Validate validates the export configuration
func (c *ExportConfig) Validate() error {
	if c.Directory == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "export_directory", c.Directory, nil)
	}
	if !c.CSV && !c.Workbook {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "export_formats", "none", nil).
			WithSuggestion("Enable CSV or workbook export")
	}
	return nil
}

// Exporter writes the audit artifacts of a run to disk.
type Exporter struct {
	config *ExportConfig
	logger logger.Logger
	now    func() time.Time
}

// NewExporter creates a new exporter
func NewExporter(config *ExportConfig) (*Exporter, error) {
	if config == nil {
		config = DefaultExportConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Exporter{
		config: config,
		logger: logger.WithComponent("exporter"),
		now:    time.Now,
	}, nil
}

// Export writes every enabled artifact and returns the paths written.
func (e *Exporter) Export(result *reconciler.ReconciliationResult) ([]string, error) {
	if result == nil || result.Result == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "result", nil, nil)
	}
	if err := os.MkdirAll(e.config.Directory, 0o755); err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, e.config.Directory, err)
	}

	op := logger.NewOperationLogger("export", e.logger).
		WithField("directory", e.config.Directory).
		WithField("workflow", result.Workflow.String())

	stamp := e.now().Format("20060102_150405")
	variant := result.Bank.Variant
	var written []string

	if e.config.CSV {
		artifacts := []struct {
			name  string
			table *Table
		}{
			{"verified", MatchedTable(result.Result, variant)},
			{"bank_unmatched", UnmatchedBankTable(result.Result, variant)},
			{"system_unmatched", UnmatchedSystemTable(result.Result)},
		}
		for _, a := range artifacts {
			path := e.path(a.name, result.Workflow, stamp, ".csv")
			if err := writeFile(path, func(w io.Writer) error { return WriteCSV(w, a.table) }); err != nil {
				op.Error(err, "Failed to write CSV artifact")
				return written, err
			}
			written = append(written, path)
			op.Step("csv written", logger.Fields{"file": path, "rows": len(a.table.Rows)})
		}
	}

	if e.config.Workbook {
		path := e.path("reconciliation", result.Workflow, stamp, ".xlsx")
		if err := writeFile(path, func(w io.Writer) error { return WriteWorkbook(w, result) }); err != nil {
			op.Error(err, "Failed to write workbook")
			return written, err
		}
		written = append(written, path)
		op.Step("workbook written", logger.Fields{"file": path})
	}

	op.Success(fmt.Sprintf("Exported %d artifacts", len(written)))
	return written, nil
}

func (e *Exporter) path(name string, kind workflow.Kind, stamp, ext string) string {
	return filepath.Join(e.config.Directory, fmt.Sprintf("%s%s_%s_%s%s", e.config.Prefix, name, kind, stamp, ext))
}

func writeFile(path string, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		if os.IsPermission(err) {
			return errors.FileError(errors.CodeFilePermission, path, err)
		}
		return errors.FileError(errors.CodeDirectoryError, path, err)
	}

	if err := write(file); err != nil {
		file.Close()
		return errors.InternalError(errors.CodeProcessingError, "export", err)
	}
	if err := file.Close(); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}
