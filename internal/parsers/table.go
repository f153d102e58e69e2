package parsers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

// Format is a supported ledger file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
)

// DetectFormat maps a file name to its format by extension.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	}
	return "", errors.FileError(errors.CodeUnsupported, name, nil)
}

// Table is the raw content of the first sheet of a ledger file.
type Table struct {
	Source string
	Format Format
	Rows   [][]string
}

// TableReader reads ledger files into raw tables
type TableReader struct {
	config *Config
	logger logger.Logger
}

// NewTableReader creates a TableReader with the given configuration
func NewTableReader(config *Config) (*TableReader, error) {
	config, err := resolveConfig(config)
	if err != nil {
		return nil, err
	}
	return &TableReader{
		config: config,
		logger: logger.WithComponent("table_reader"),
	}, nil
}

// ReadFile opens path and reads its first sheet.
func (tr *TableReader) ReadFile(ctx context.Context, path string) (*Table, error) {
	tr.logger.WithField("file_path", path).Debug("Opening ledger file")

	file, err := os.Open(path)
	if err != nil {
		tr.logger.WithError(err).WithField("file_path", path).Error("Failed to open ledger file")
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, errors.FileError(errors.CodeFilePermission, path, err)
		}
		return nil, errors.FileError(errors.CodeDirectoryError, path, err)
	}
	defer file.Close()

	return tr.Read(ctx, path, file)
}

// Read reads a ledger from r. name supplies the extension used to pick the
// format, as with uploaded files.
func (tr *TableReader) Read(ctx context.Context, name string, r io.Reader) (*Table, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows [][]string
	switch format {
	case FormatCSV:
		rows, err = tr.readCSV(data)
	case FormatXLSX:
		rows, err = tr.readXLSX(data)
	case FormatXLS:
		rows, err = tr.readXLS(data)
	}
	if err != nil {
		tr.logger.WithError(err).WithFields(logger.Fields{
			"file_path": name,
			"format":    format,
		}).Error("Failed to read ledger table")
		return nil, errors.FileError(errors.CodeFileCorrupted, name, err)
	}

	if tr.config.MaxRows > 0 && len(rows) > tr.config.MaxRows {
		tr.logger.WithFields(logger.Fields{
			"file_path": name,
			"rows":      len(rows),
			"max_rows":  tr.config.MaxRows,
		}).Warn("Ledger table truncated to configured row limit")
		rows = rows[:tr.config.MaxRows]
	}

	tr.logger.WithFields(logger.Fields{
		"file_path": name,
		"format":    format,
		"rows":      len(rows),
	}).Debug("Read ledger table")

	return &Table{Source: name, Format: format, Rows: rows}, nil
}

func (tr *TableReader) readCSV(data []byte) ([][]string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		// Ledger exports from Windows tools are usually cp1252.
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, err
		}
		data = decoded
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = tr.config.Delimiter
	if reader.Comma == 0 {
		reader.Comma = sniffDelimiter(data)
	}
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	return reader.ReadAll()
}

func (tr *TableReader) readXLSX(data []byte) ([][]string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer book.Close()

	// Raw values keep date cells as serial numbers instead of the
	// locale-dependent display format; ParseStats.parseDate converts them.
	return book.GetRows(book.GetSheetName(0), excelize.Options{RawCellValue: true})
}

// readXLS decodes a legacy BIFF workbook. extrame/xls panics on some
// malformed streams instead of returning an error, so those are recovered
// into an error here.
func (tr *TableReader) readXLS(data []byte) (rows [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("malformed xls workbook: %v", r)
		}
	}()

	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, fmt.Errorf("no workbook stream in xls file")
	}
	sheet := book.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("xls workbook has no sheets")
	}

	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for j := row.FirstCol(); j < row.LastCol(); j++ {
			cells[j] = row.Col(j)
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

// xlsRow returns nil for rows the sheet never stored; WorkSheet.Row
// dereferences the missing entry.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

// sniffDelimiter picks the most frequent candidate over the leading lines;
// title rows above the header often carry no delimiter at all.
func sniffDelimiter(data []byte) rune {
	head := data
	for i, n := 0, 0; i < len(data); i++ {
		if data[i] == '\n' {
			n++
			if n == 20 {
				head = data[:i]
				break
			}
		}
	}

	best, bestCount := ',', bytes.Count(head, []byte{','})
	for _, d := range []rune{';', '\t', '|'} {
		if n := bytes.Count(head, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
