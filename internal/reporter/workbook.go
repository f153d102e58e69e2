package reporter

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"ledger-reconciliation-service/internal/reconciler"
)

// WorkbookSheets lists the sheet names of the compiled workbook in order.
var WorkbookSheets = []string{
	"Verified",
	"Unmatched bank",
	"Unmatched system",
	"Clean bank dataset",
	"Clean system dataset",
}

// WorkbookTables returns the tables of the compiled workbook in sheet order.
func WorkbookTables(result *reconciler.ReconciliationResult) []*Table {
	variant := result.Bank.Variant
	return []*Table{
		MatchedTable(result.Result, variant),
		UnmatchedBankTable(result.Result, variant),
		UnmatchedSystemTable(result.Result),
		BankDatasetTable(result.Bank, result.Result),
		SystemDatasetTable(result.System, result.Result),
	}
}

// WriteWorkbook writes every artifact of result as one XLSX workbook.
func WriteWorkbook(w io.Writer, result *reconciler.ReconciliationResult) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, table := range WorkbookTables(result) {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), table.Name); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(table.Name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", table.Name, err)
		}
		if err := writeSheet(f, table, headerStyle); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, table *Table, headerStyle int) error {
	header := make([]interface{}, len(table.Columns))
	for i, c := range table.Columns {
		header[i] = c.Name
	}
	if err := f.SetSheetRow(table.Name, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", table.Name, err)
	}
	if err := f.SetRowStyle(table.Name, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", table.Name, err)
	}

	for r, row := range table.Rows {
		cells := make([]interface{}, len(row))
		for i, value := range row {
			cells[i] = cellValue(table.Columns[i], value)
		}
		axis, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(table.Name, axis, &cells); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", table.Name, r+1, err)
		}
	}

	if len(table.Columns) > 0 {
		last, err := excelize.ColumnNumberToName(len(table.Columns))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(table.Name, "A", last, 16); err != nil {
			return fmt.Errorf("failed to size %s columns: %w", table.Name, err)
		}
	}
	return nil
}

// cellValue writes amounts as numbers so spreadsheet sums work.
func cellValue(column Column, value string) interface{} {
	if !column.Numeric || value == "" {
		return value
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return value
	}
	return d.InexactFloat64()
}
