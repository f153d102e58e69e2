package parsers

import (
	"context"
	"io"
	"regexp"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

// NetAmountFunc derives a system record's signed amount from its legs. The
// derivation depends on the reconciliation workflow.
type NetAmountFunc func(debit, credit decimal.Decimal) decimal.Decimal

var (
	systemHeaderPattern  = regexp.MustCompile(`(?i)^(fecha|fec)$`)
	systemClosingPattern = regexp.MustCompile(`(?i)saldos finales|saldo final`)
	systemBalancePattern = regexp.MustCompile(`(?i)^\s*saldo\s+(inicial|anterior|final)\s*$`)
)

// SystemLedgerParser cleans accounting system ledger exports
type SystemLedgerParser struct {
	reader *TableReader
	config *Config
	logger logger.Logger
}

// NewSystemLedgerParser creates a new system ledger parser
func NewSystemLedgerParser(config *Config) (*SystemLedgerParser, error) {
	config, err := resolveConfig(config)
	if err != nil {
		return nil, err
	}
	reader, err := NewTableReader(config)
	if err != nil {
		return nil, err
	}

	return &SystemLedgerParser{
		reader: reader,
		config: config,
		logger: logger.WithComponent("system_parser"),
	}, nil
}

// ParseFile reads and cleans the system ledger at path.
func (slp *SystemLedgerParser) ParseFile(ctx context.Context, path string, net NetAmountFunc) (models.SystemLedger, *ParseStats, error) {
	table, err := slp.reader.ReadFile(ctx, path)
	if err != nil {
		return models.SystemLedger{}, nil, err
	}
	return slp.ParseTable(ctx, table, net)
}

// ParseReader reads and cleans a system ledger from r.
func (slp *SystemLedgerParser) ParseReader(ctx context.Context, name string, r io.Reader, net NetAmountFunc) (models.SystemLedger, *ParseStats, error) {
	table, err := slp.reader.Read(ctx, name, r)
	if err != nil {
		return models.SystemLedger{}, nil, err
	}
	return slp.ParseTable(ctx, table, net)
}

// ParseTable cleans an already read table. A nil net derives credit − debit.
func (slp *SystemLedgerParser) ParseTable(ctx context.Context, table *Table, net NetAmountFunc) (models.SystemLedger, *ParseStats, error) {
	if net == nil {
		net = func(debit, credit decimal.Decimal) decimal.Decimal { return credit.Sub(debit) }
	}
	log := slp.logger.WithField("file_path", table.Source)

	stats := NewParseStats(table.Source, slp.config.MaxRecordedErrors)
	stats.Format = table.Format
	stats.TotalLines = len(table.Rows)

	header := -1
	for i, row := range table.Rows {
		if anyCell(row, systemHeaderPattern.MatchString) {
			header = i
			break
		}
	}
	if header < 0 {
		log.Error("No header row found in system ledger")
		return models.SystemLedger{}, stats, errors.ParseError(errors.CodeHeaderNotFound, table.Source, 0, "fecha", "", nil)
	}
	stats.HeaderLine = header + 1

	columns := SystemLedgerLayout.Resolve(table.Rows[header])
	fields := columns.Fields()
	stats.Fields = fields.Sorted()
	refColumn := columns.Index(models.FieldReference)

	log.WithFields(logger.Fields{
		"header_line": stats.HeaderLine,
		"fields":      stats.Fields,
	}).Debug("Resolved system ledger columns")

	ledger := models.SystemLedger{
		Source:  table.Source,
		Fields:  fields,
		Records: make([]models.SystemRecord, 0, len(table.Rows)-header),
	}

	for i := header + 1; i < len(table.Rows); i++ {
		if (i-header)%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				log.Warn("System ledger parsing cancelled")
				return models.SystemLedger{}, stats, err
			}
		}

		row := table.Rows[i]
		if refColumn >= 0 && systemClosingPattern.MatchString(cell(row, refColumn)) {
			stats.TruncatedAt = i + 1
			stats.DroppedRows += len(table.Rows) - i
			break
		}
		if isEmptyRow(row) || anyCell(row, systemBalancePattern.MatchString) {
			stats.DroppedRows++
			continue
		}

		ledger.Records = append(ledger.Records, slp.buildRecord(len(ledger.Records)+1, i+1, row, columns, net, stats))
	}
	stats.RecordsParsed = len(ledger.Records)

	entry := log.WithFields(logger.Fields{
		"records":       stats.RecordsParsed,
		"dropped_rows":  stats.DroppedRows,
		"date_errors":   stats.DateErrors,
		"amount_errors": stats.AmountErrors,
	})
	if stats.HasErrors() {
		entry.Warn("System ledger parsed with cell errors")
	} else {
		entry.Info("System ledger parsed")
	}

	return ledger, stats, nil
}

func (slp *SystemLedgerParser) buildRecord(id, line int, row []string, columns ColumnMap, net NetAmountFunc, stats *ParseStats) models.SystemRecord {
	dateCol := columns.Index(models.FieldDate)
	debitCol := columns.Index(models.FieldDebit)
	creditCol := columns.Index(models.FieldCredit)

	debit := stats.parseAmount(line, debitCol, models.FieldDebit, cell(row, debitCol))
	credit := stats.parseAmount(line, creditCol, models.FieldCredit, cell(row, creditCol))

	return models.SystemRecord{
		ID:           id,
		Date:         stats.parseDate(line, dateCol, models.FieldDate, cell(row, dateCol)),
		Reference:    models.NormalizeReference(cell(row, columns.Index(models.FieldReference))),
		TransNumber:  cell(row, columns.Index(models.FieldTransNumber)),
		ValueType:    cell(row, columns.Index(models.FieldValueType)),
		Concept:      cell(row, columns.Index(models.FieldConcept)),
		Detail:       cell(row, columns.Index(models.FieldDetail)),
		Status:       cell(row, columns.Index(models.FieldStatus)),
		Counterparty: cell(row, columns.Index(models.FieldCounterparty)),
		Debit:        debit,
		Credit:       credit,
		Balance:      parseBalance(cell(row, columns.Index(models.FieldBalance))),
		NetAmount:    net(debit, credit),
	}
}
