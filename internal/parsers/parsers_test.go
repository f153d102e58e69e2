package parsers

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/errors"
)

// Helper function to create a temporary ledger file
func writeTempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	return path
}

// buildWorkbook returns an in-memory XLSX whose first sheet holds rows.
func buildWorkbook(t *testing.T, rows [][]interface{}) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow(sheet, ref, &r))
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func workflowANet(debit, credit decimal.Decimal) decimal.Decimal {
	return debit.Add(credit)
}

const standardBankCSV = `Banco Ejemplo,,,,,
Fecha de emisión: 01/02/2024,,,,,
Fecha,Descripción,Número de Documento,Débito,Crédito,Saldo
,Saldo anterior,,,,1000
15/01/2024,Pago proveedor,000123,"1,500.00",,
16/01/2024,Deposito,456,,$2000,
,saldo inicial,,,,
,,,,,
17/01/2024,Cargo,789,abc,,
Saldo Final,,,,,5000
18/01/2024,Despues del cierre,999,1,,
`

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NoError(t, config.Validate())
	assert.Equal(t, 20, config.ScotiaScanRows)
	assert.Equal(t, 25, config.HeaderScanRows)
	assert.Equal(t, rune(0), config.Delimiter)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"semicolon delimiter", func(c *Config) { c.Delimiter = ';' }, false},
		{"unsupported delimiter", func(c *Config) { c.Delimiter = '#' }, true},
		{"zero scotia scan", func(c *Config) { c.ScotiaScanRows = 0 }, true},
		{"zero header scan", func(c *Config) { c.HeaderScanRows = 0 }, true},
		{"negative max rows", func(c *Config) { c.MaxRows = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	err := &ParseError{Line: 4, Column: 2, Field: "debit", Value: "abc", Message: "bad amount"}
	assert.Equal(t, "parse error at line 4, column 2 (debit='abc'): bad amount", err.Error())
}

func TestCanonicalHeader(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"DÃ©bito", "debito"},
		{"CrÃ©dito", "credito"},
		{"DescripciÃ³n", "descripcion"},
		{"  Número   de Documento ", "numero de documento"},
		{"CRÉDITO", "credito"},
		{"Nro.Ref.Bco", "nro.ref.bco"},
		{"Dep. Origen", "dep. origen"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, CanonicalHeader(tt.input), "header %q", tt.input)
	}
}

func TestLayout_ResolvePriority(t *testing.T) {
	columns := SystemLedgerLayout.Resolve([]string{"Fecha", "documento", "Nro.Ref.Bco", "Debe", "Haber"})

	assert.Equal(t, 0, columns.Index(models.FieldDate))
	assert.Equal(t, 2, columns.Index(models.FieldReference), "bank reference outranks documento")
	assert.Equal(t, 3, columns.Index(models.FieldDebit))
	assert.Equal(t, 4, columns.Index(models.FieldCredit))
	assert.Equal(t, -1, columns.Index(models.FieldStatus))
}

func TestDetectFormat(t *testing.T) {
	format, err := DetectFormat("ledger.XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, format)

	format, err = DetectFormat("ledger.xls")
	require.NoError(t, err)
	assert.Equal(t, FormatXLS, format)

	_, err = DetectFormat("ledger.pdf")
	require.Error(t, err)
	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeUnsupported, rerr.Code)
}

func TestDetectVariant(t *testing.T) {
	assert.Equal(t, models.BankVariantScotia, DetectVariant([][]string{{"SCOTIABANK"}}, 20))
	assert.Equal(t, models.BankVariantScotia, DetectVariant([][]string{{"x"}, {"Fecha Referencia", "Monto"}}, 20))
	assert.Equal(t, models.BankVariantStandard, DetectVariant([][]string{{"Banco"}, {"Fecha", "Monto"}}, 20))

	rows := make([][]string, 21)
	for i := range rows {
		rows[i] = []string{""}
	}
	rows[20] = []string{"SCOTIA"}
	assert.Equal(t, models.BankVariantStandard, DetectVariant(rows, 20), "marker past the scan window")
}

func TestBankStatementParser_StandardCSV(t *testing.T) {
	parser, err := NewBankStatementParser(nil)
	require.NoError(t, err)

	path := writeTempFile(t, "extracto_4103.csv", []byte(standardBankCSV))
	ledger, stats, err := parser.ParseFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, models.BankVariantStandard, ledger.Variant)
	assert.Equal(t, 3, stats.HeaderLine)
	assert.Equal(t, 10, stats.TruncatedAt)
	assert.Equal(t, 5, stats.DroppedRows)
	assert.Equal(t, 1, stats.AmountErrors)
	assert.Equal(t, 0, stats.DateErrors)

	require.Len(t, ledger.Records, 3)
	assert.Equal(t, []int{1, 2, 3}, ledger.IDs())
	assert.NoError(t, ledger.Validate())

	first := ledger.Records[0]
	assert.Equal(t, models.NewDate(2024, time.January, 15), first.Date)
	assert.Equal(t, "000123", first.Reference)
	assert.Equal(t, "Pago proveedor", first.Description)
	assert.True(t, first.Debit.Equal(dec("1500")))
	assert.True(t, first.NetAmount.Equal(dec("-1500")))

	second := ledger.Records[1]
	assert.True(t, second.Credit.Equal(dec("2000")))
	assert.True(t, second.NetAmount.Equal(dec("2000")))

	third := ledger.Records[2]
	assert.True(t, third.Debit.IsZero(), "unparseable amount becomes zero")

	for _, f := range []models.Field{models.FieldDate, models.FieldReference, models.FieldDebit, models.FieldCredit, models.FieldDescription, models.FieldBalance} {
		assert.True(t, ledger.Fields.Has(f), "field %s", f)
	}
	assert.False(t, ledger.Fields.Has(models.FieldVoucher))
}

func TestBankStatementParser_Windows1252CSV(t *testing.T) {
	parser, err := NewBankStatementParser(nil)
	require.NoError(t, err)

	content := []byte("Fecha;Documento;D\xe9bito;Cr\xe9dito\n02/03/2024;55;10;\n")
	ledger, _, err := parser.ParseReader(context.Background(), "latin.csv", bytes.NewReader(content))
	require.NoError(t, err)

	require.Len(t, ledger.Records, 1)
	assert.True(t, ledger.Fields.Has(models.FieldDebit))
	assert.True(t, ledger.Records[0].Debit.Equal(dec("10")))
	assert.Equal(t, "55", ledger.Records[0].Reference)
}

func TestBankStatementParser_ScotiaXLSX(t *testing.T) {
	parser, err := NewBankStatementParser(nil)
	require.NoError(t, err)

	buf := buildWorkbook(t, [][]interface{}{
		{"SCOTIABANK COLPATRIA"},
		{"Cuenta corriente 0012"},
		{"Fecha", "Dep. Origen", "Concepto", "Comprobante", "Débito", "Crédito", "Saldo"},
		{"02/01/2024", "001", "Transferencia", "778899", "", "500", "1500"},
		{"03/01/2024", "002", "Pago", "112233", "200", "", "1300"},
	})

	ledger, stats, err := parser.ParseReader(context.Background(), "scotia_enero.xlsx", buf)
	require.NoError(t, err)

	assert.Equal(t, models.BankVariantScotia, ledger.Variant)
	assert.Equal(t, FormatXLSX, stats.Format)
	assert.Equal(t, 3, stats.HeaderLine)
	require.Len(t, ledger.Records, 2)

	first := ledger.Records[0]
	assert.Equal(t, "778899", first.Reference, "scotia reference is the voucher")
	assert.Equal(t, "001", first.DepOrigin)
	assert.Equal(t, "Transferencia", first.Concept)
	assert.True(t, first.Credit.Equal(dec("500")))
	assert.True(t, first.Balance.Valid)

	assert.True(t, ledger.Fields.Has(models.FieldReference))
	assert.True(t, ledger.Fields.Has(models.FieldVoucher))
	assert.True(t, ledger.Fields.Has(models.FieldDepOrigin))
}

func TestBankStatementParser_XLSXSerialDates(t *testing.T) {
	parser, err := NewBankStatementParser(nil)
	require.NoError(t, err)

	buf := buildWorkbook(t, [][]interface{}{
		{"Fecha", "Documento", "Debito", "Credito"},
		{time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC), "A1", 100, 0},
	})

	ledger, stats, err := parser.ParseReader(context.Background(), "bank.xlsx", buf)
	require.NoError(t, err)

	require.Len(t, ledger.Records, 1)
	assert.Equal(t, models.NewDate(2024, time.January, 2), ledger.Records[0].Date)
	assert.Equal(t, 0, stats.DateErrors)
	assert.True(t, ledger.Records[0].Debit.Equal(dec("100")))
}

func TestBankStatementParser_HeaderNotFound(t *testing.T) {
	parser, err := NewBankStatementParser(nil)
	require.NoError(t, err)

	content := []byte("Documento,Monto\n1,100\n")
	_, _, err = parser.ParseReader(context.Background(), "bank.csv", bytes.NewReader(content))
	require.Error(t, err)

	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeHeaderNotFound, rerr.Code)
}

func TestBankStatementParser_FileNotFound(t *testing.T) {
	parser, err := NewBankStatementParser(nil)
	require.NoError(t, err)

	_, _, err = parser.ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)

	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeFileNotFound, rerr.Code)
}

func TestBankStatementParser_InvalidDateKeepsRecord(t *testing.T) {
	parser, err := NewBankStatementParser(nil)
	require.NoError(t, err)

	content := []byte("Fecha,Documento,Debito,Credito\nnot-a-date,1,5,\n03/01/2024,2,,7\n")
	ledger, stats, err := parser.ParseReader(context.Background(), "bank.csv", bytes.NewReader(content))
	require.NoError(t, err)

	require.Len(t, ledger.Records, 2)
	assert.True(t, ledger.Records[0].Date.IsNull())
	assert.Equal(t, 1, stats.DateErrors)
	assert.Len(t, stats.GetSampleErrors(5), 1)
}

const systemLedgerCSV = `EMPRESA XYZ;;;;;;
Libro auxiliar de bancos;;;;;;
Fecha;Nro.Trans.;Nro.Ref.Bco;Concepto;Debe;Haber;Saldo
;;;Saldo Inicial;;;1000
'15/01/2024;T1;123;Pago;0;1500;
´16/01/2024;T2;456;Deposito;2000;0;
;;;;;;
17/01/2024;T3;789;Otro;x;0;
;;Saldos Finales;;;;
18/01/2024;T4;999;Despues del cierre;1;0;
`

func TestSystemLedgerParser_CSV(t *testing.T) {
	parser, err := NewSystemLedgerParser(nil)
	require.NoError(t, err)

	path := writeTempFile(t, "auxiliar.csv", []byte(systemLedgerCSV))
	ledger, stats, err := parser.ParseFile(context.Background(), path, workflowANet)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.HeaderLine)
	assert.Equal(t, 9, stats.TruncatedAt)
	assert.Equal(t, 1, stats.AmountErrors)

	require.Len(t, ledger.Records, 3)
	assert.Equal(t, []int{1, 2, 3}, ledger.IDs())

	first := ledger.Records[0]
	assert.Equal(t, models.NewDate(2024, time.January, 15), first.Date, "leading quote stripped")
	assert.Equal(t, "123", first.Reference)
	assert.Equal(t, "T1", first.TransNumber)
	assert.Equal(t, "Pago", first.Concept)
	assert.True(t, first.NetAmount.Equal(dec("1500")))

	second := ledger.Records[1]
	assert.Equal(t, models.NewDate(2024, time.January, 16), second.Date, "leading acute accent stripped")
	assert.True(t, second.NetAmount.Equal(dec("2000")), "workflow A nets debit + credit")

	assert.True(t, ledger.Fields.Has(models.FieldReference))
	assert.True(t, ledger.Fields.Has(models.FieldTransNumber))
	assert.False(t, ledger.Fields.Has(models.FieldCounterparty))
}

func TestSystemLedgerParser_DefaultNetAmount(t *testing.T) {
	parser, err := NewSystemLedgerParser(nil)
	require.NoError(t, err)

	content := []byte("fec,documento,cliprov,debe,haber,saldo,concepto\n05/02/2024,D-1,ACME,300,100,,Cobro\n")
	ledger, _, err := parser.ParseReader(context.Background(), "sistema.csv", bytes.NewReader(content), nil)
	require.NoError(t, err)

	require.Len(t, ledger.Records, 1)
	record := ledger.Records[0]
	assert.Equal(t, "D-1", record.Reference)
	assert.Equal(t, "ACME", record.Counterparty)
	assert.True(t, record.NetAmount.Equal(dec("-200")))
	assert.False(t, record.Balance.Valid)
}

func TestSystemLedgerParser_DropsEverySaldoRow(t *testing.T) {
	parser, err := NewSystemLedgerParser(nil)
	require.NoError(t, err)

	content := []byte(strings.Join([]string{
		"Fecha,Documento,Debe,Haber",
		"saldo anterior,,,",
		"01/02/2024,1,10,0",
		" Saldo  Inicial ,,,",
		"02/02/2024,2,20,0",
	}, "\n"))
	ledger, stats, err := parser.ParseReader(context.Background(), "sistema.csv", bytes.NewReader(content), workflowANet)
	require.NoError(t, err)

	assert.Len(t, ledger.Records, 2)
	assert.Equal(t, 2, stats.DroppedRows)
}

func TestLoadLedgers(t *testing.T) {
	bankPath := writeTempFile(t, "extracto.csv", []byte(standardBankCSV))
	systemPath := writeTempFile(t, "auxiliar.csv", []byte(systemLedgerCSV))

	result, err := LoadLedgers(context.Background(), nil, FileSource(bankPath), FileSource(systemPath), workflowANet)
	require.NoError(t, err)

	assert.Len(t, result.Bank.Records, 3)
	assert.Len(t, result.System.Records, 3)
	assert.Equal(t, bankPath, result.Bank.Source)
	require.NotNil(t, result.BankStats)
	require.NotNil(t, result.SystemStats)
}

func TestLoadLedgers_PropagatesFailure(t *testing.T) {
	bankPath := writeTempFile(t, "extracto.csv", []byte(standardBankCSV))

	_, err := LoadLedgers(context.Background(), nil,
		FileSource(bankPath),
		Source{Name: "upload.pdf", Reader: strings.NewReader("%PDF")},
		workflowANet)
	require.Error(t, err)

	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeUnsupported, rerr.Code)
}

func TestTableReader_MaxRows(t *testing.T) {
	config := DefaultConfig()
	config.MaxRows = 2
	reader, err := NewTableReader(config)
	require.NoError(t, err)

	table, err := reader.Read(context.Background(), "rows.csv", strings.NewReader("a\nb\nc\n"))
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)
}

func TestTableReader_XLS(t *testing.T) {
	reader, err := NewTableReader(nil)
	require.NoError(t, err)

	table, err := reader.ReadFile(context.Background(), filepath.Join("testdata", "table.xls"))
	require.NoError(t, err)
	assert.Equal(t, FormatXLS, table.Format)
	require.Len(t, table.Rows, 12)
	assert.Equal(t, []string{"Code", "Name", "Description"}, table.Rows[0])
	assert.Equal(t, []string{"code1", "name1", "description1"}, table.Rows[1])
	assert.Equal(t, []string{"code11", "name11", "description11"}, table.Rows[11])
}

func TestTableReader_CorruptXLS(t *testing.T) {
	reader, err := NewTableReader(nil)
	require.NoError(t, err)

	_, err = reader.Read(context.Background(), "bank.xls", bytes.NewReader([]byte("not a workbook")))
	require.Error(t, err)

	rerr, ok := errors.AsReconcilerError(err)
	require.True(t, ok)
	assert.Equal(t, errors.CodeFileCorrupted, rerr.Code)
}

func TestSniffDelimiter(t *testing.T) {
	assert.Equal(t, ';', sniffDelimiter([]byte("Titulo\na;b;c\n")))
	assert.Equal(t, ',', sniffDelimiter([]byte("a,b,c\n")))
	assert.Equal(t, '\t', sniffDelimiter([]byte("a\tb\tc\n")))
}
