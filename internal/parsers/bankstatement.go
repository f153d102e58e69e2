package parsers

import (
	"context"
	"io"
	"regexp"
	"strings"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

// cancelCheckInterval is how many rows are cleaned between context checks.
const cancelCheckInterval = 1000

var openingBalancePattern = regexp.MustCompile(`(?i)^saldo inicial$`)

// BankStatementParser cleans bank statement exports into a BankLedger
type BankStatementParser struct {
	reader *TableReader
	config *Config
	logger logger.Logger
}

// NewBankStatementParser creates a new bank statement parser
func NewBankStatementParser(config *Config) (*BankStatementParser, error) {
	config, err := resolveConfig(config)
	if err != nil {
		return nil, err
	}
	reader, err := NewTableReader(config)
	if err != nil {
		return nil, err
	}

	return &BankStatementParser{
		reader: reader,
		config: config,
		logger: logger.WithComponent("bank_parser"),
	}, nil
}

// ParseFile reads and cleans the bank statement at path.
func (bsp *BankStatementParser) ParseFile(ctx context.Context, path string) (models.BankLedger, *ParseStats, error) {
	table, err := bsp.reader.ReadFile(ctx, path)
	if err != nil {
		return models.BankLedger{}, nil, err
	}
	return bsp.ParseTable(ctx, table)
}

// ParseReader reads and cleans a bank statement from r; name carries the
// file extension.
func (bsp *BankStatementParser) ParseReader(ctx context.Context, name string, r io.Reader) (models.BankLedger, *ParseStats, error) {
	table, err := bsp.reader.Read(ctx, name, r)
	if err != nil {
		return models.BankLedger{}, nil, err
	}
	return bsp.ParseTable(ctx, table)
}

// ParseTable cleans an already read table.
func (bsp *BankStatementParser) ParseTable(ctx context.Context, table *Table) (models.BankLedger, *ParseStats, error) {
	log := bsp.logger.WithField("file_path", table.Source)

	stats := NewParseStats(table.Source, bsp.config.MaxRecordedErrors)
	stats.Format = table.Format
	stats.TotalLines = len(table.Rows)
	stats.Variant = DetectVariant(table.Rows, bsp.config.ScotiaScanRows)

	header := findBankHeader(table.Rows, stats.Variant, bsp.config.HeaderScanRows)
	if header < 0 {
		log.Error("No header row found in bank statement")
		return models.BankLedger{}, stats, errors.ParseError(errors.CodeHeaderNotFound, table.Source, 0, "fecha", "", nil)
	}
	stats.HeaderLine = header + 1

	columns := BankLayout(stats.Variant).Resolve(table.Rows[header])
	fields := columns.Fields()
	refColumn := columns.Index(models.FieldReference)
	if stats.Variant == models.BankVariantScotia && columns.Index(models.FieldVoucher) >= 0 {
		refColumn = columns.Index(models.FieldVoucher)
		fields[models.FieldReference] = true
	}
	stats.Fields = fields.Sorted()

	log.WithFields(logger.Fields{
		"variant":     stats.Variant,
		"header_line": stats.HeaderLine,
		"fields":      stats.Fields,
	}).Debug("Resolved bank statement columns")

	ledger := models.BankLedger{
		Source:  table.Source,
		Variant: stats.Variant,
		Fields:  fields,
		Records: make([]models.BankRecord, 0, len(table.Rows)-header),
	}

	for i := header + 1; i < len(table.Rows); i++ {
		if (i-header)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				log.Warn("Bank statement parsing cancelled")
				return models.BankLedger{}, stats, err
			}
		}

		row := table.Rows[i]
		if anyCell(row, isClosingBalanceMarker) {
			if len(ledger.Records) == 0 {
				// Marker ahead of every movement is an opening balance line.
				stats.DroppedRows++
				continue
			}
			stats.TruncatedAt = i + 1
			stats.DroppedRows += len(table.Rows) - i
			break
		}
		if isEmptyRow(row) || anyCell(row, openingBalancePattern.MatchString) {
			stats.DroppedRows++
			continue
		}

		ledger.Records = append(ledger.Records, bsp.buildRecord(len(ledger.Records)+1, i+1, row, columns, refColumn, stats))
	}
	stats.RecordsParsed = len(ledger.Records)

	entry := log.WithFields(logger.Fields{
		"records":       stats.RecordsParsed,
		"dropped_rows":  stats.DroppedRows,
		"date_errors":   stats.DateErrors,
		"amount_errors": stats.AmountErrors,
	})
	if stats.HasErrors() {
		entry.Warn("Bank statement parsed with cell errors")
	} else {
		entry.Info("Bank statement parsed")
	}

	return ledger, stats, nil
}

func (bsp *BankStatementParser) buildRecord(id, line int, row []string, columns ColumnMap, refColumn int, stats *ParseStats) models.BankRecord {
	dateCol := columns.Index(models.FieldDate)
	debitCol := columns.Index(models.FieldDebit)
	creditCol := columns.Index(models.FieldCredit)

	record := models.NewBankRecord(
		id,
		stats.parseDate(line, dateCol, models.FieldDate, cell(row, dateCol)),
		models.NormalizeReference(cell(row, refColumn)),
		stats.parseAmount(line, debitCol, models.FieldDebit, cell(row, debitCol)),
		stats.parseAmount(line, creditCol, models.FieldCredit, cell(row, creditCol)),
	)
	record.Description = cell(row, columns.Index(models.FieldDescription))
	record.Subject = cell(row, columns.Index(models.FieldSubject))
	record.Dependency = cell(row, columns.Index(models.FieldDependency))
	record.DepOrigin = cell(row, columns.Index(models.FieldDepOrigin))
	record.Concept = cell(row, columns.Index(models.FieldConcept))
	record.Balance = parseBalance(cell(row, columns.Index(models.FieldBalance)))
	return record
}

// DetectVariant reports a Scotia statement when any of the first scanRows
// rows mentions SCOTIA or a FECHA REFERENCIA column.
func DetectVariant(rows [][]string, scanRows int) models.BankVariant {
	for i := 0; i < len(rows) && i < scanRows; i++ {
		joined := strings.ToUpper(strings.Join(rows[i], " "))
		if strings.Contains(joined, "SCOTIA") || strings.Contains(joined, "FECHA REFERENCIA") {
			return models.BankVariantScotia
		}
	}
	return models.BankVariantStandard
}

// findBankHeader returns the header row index or -1. Scotia statements are
// recognized by their DEP. ORIGEN column; every other layout by the first
// cell mentioning "fecha" that is not a "Fecha: ..." title line.
func findBankHeader(rows [][]string, variant models.BankVariant, scanRows int) int {
	if variant == models.BankVariantScotia {
		for i := 0; i < len(rows) && i < scanRows; i++ {
			joined := strings.ToUpper(strings.Join(rows[i], " "))
			if strings.Contains(joined, "DEP. ORIGEN") && strings.Contains(joined, "FECHA") {
				return i
			}
		}
	}

	for i, row := range rows {
		if anyCell(row, isDateHeaderCell) {
			return i
		}
	}
	return -1
}

func isDateHeaderCell(v string) bool {
	return strings.Contains(strings.ToLower(v), "fecha") && !strings.Contains(v, ":")
}

func isClosingBalanceMarker(v string) bool {
	return strings.EqualFold(v, "saldo final") || strings.EqualFold(v, "saldo anterior")
}
