package parsers

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"ledger-reconciliation-service/internal/models"
)

// FieldAliases lists the header names a canonical field is exported under,
// in priority order. Names are compared after CanonicalHeader.
type FieldAliases struct {
	Field models.Field
	Names []string
}

// Layout maps the columns of one kind of ledger export onto canonical fields
type Layout struct {
	Name    string
	Columns []FieldAliases
}

// StandardBankLayout covers the bank statements of most banks.
var StandardBankLayout = &Layout{
	Name: "standard",
	Columns: []FieldAliases{
		{models.FieldDate, []string{"fecha", "fec", "date", "fecha referencia"}},
		{models.FieldDescription, []string{"descripcion", "description"}},
		{models.FieldReference, []string{"numero de documento", "nro documento", "nro. documento", "no. documento", "document number", "documento"}},
		{models.FieldSubject, []string{"asunto", "subject"}},
		{models.FieldConcept, []string{"concepto", "concept"}},
		{models.FieldDependency, []string{"dependencia", "dep"}},
		{models.FieldDebit, []string{"debito", "deb", "debit", "debitos"}},
		{models.FieldCredit, []string{"credito", "cred", "credit", "creditos"}},
		{models.FieldBalance, []string{"saldo", "balance"}},
	},
}

// ScotiaBankLayout covers Scotia statements, which identify movements by
// voucher and report the originating branch.
var ScotiaBankLayout = &Layout{
	Name: "scotia",
	Columns: []FieldAliases{
		{models.FieldDate, []string{"fecha", "fec", "date", "fecha referencia"}},
		{models.FieldDepOrigin, []string{"dep. origen", "dep origen", "dep.origen"}},
		{models.FieldConcept, []string{"concepto", "concept"}},
		{models.FieldVoucher, []string{"comprobante", "voucher"}},
		{models.FieldReference, []string{"numero de documento", "nro documento", "documento"}},
		{models.FieldDescription, []string{"descripcion", "description"}},
		{models.FieldDebit, []string{"debito", "deb", "debit", "debitos"}},
		{models.FieldCredit, []string{"credito", "cred", "credit", "creditos"}},
		{models.FieldBalance, []string{"saldo", "balance"}},
	},
}

// SystemLedgerLayout covers the accounting system ledger export.
var SystemLedgerLayout = &Layout{
	Name: "system",
	Columns: []FieldAliases{
		{models.FieldDate, []string{"fecha", "fec", "date"}},
		{models.FieldTransNumber, []string{"nro.trans.", "nro.trans", "nro trans", "nrotrans"}},
		{models.FieldReference, []string{"nro.ref.bco", "nro ref bco", "nrorefbco", "ref.bco", "refbco", "documento"}},
		{models.FieldValueType, []string{"tipo valor", "tipovalor"}},
		{models.FieldConcept, []string{"concepto"}},
		{models.FieldDetail, []string{"detalle"}},
		{models.FieldDebit, []string{"debe"}},
		{models.FieldCredit, []string{"haber"}},
		{models.FieldBalance, []string{"saldo"}},
		{models.FieldStatus, []string{"estado"}},
		{models.FieldCounterparty, []string{"cliprov"}},
	},
}

// BankLayout returns the layout for a bank statement variant.
func BankLayout(variant models.BankVariant) *Layout {
	if variant == models.BankVariantScotia {
		return ScotiaBankLayout
	}
	return StandardBankLayout
}

// ColumnMap is the resolved position of each canonical field in a header row
type ColumnMap map[models.Field]int

// Index returns the column of f, or -1 if the file lacks it.
func (cm ColumnMap) Index(f models.Field) int {
	if idx, ok := cm[f]; ok {
		return idx
	}
	return -1
}

// Fields returns the set of mapped fields.
func (cm ColumnMap) Fields() models.FieldSet {
	fs := make(models.FieldSet, len(cm))
	for f := range cm {
		fs[f] = true
	}
	return fs
}

// Resolve maps headers onto the layout. Each field takes the column matching
// its highest-priority alias; a column is claimed by at most one field.
func (l *Layout) Resolve(headers []string) ColumnMap {
	canonical := make([]string, len(headers))
	for i, h := range headers {
		canonical[i] = CanonicalHeader(h)
	}

	cm := make(ColumnMap)
	claimed := make(map[int]bool)
	for _, col := range l.Columns {
	aliases:
		for _, name := range col.Names {
			for i, h := range canonical {
				if h == name && !claimed[i] {
					cm[col.Field] = i
					claimed[i] = true
					break aliases
				}
			}
		}
	}
	return cm
}

var spaceRun = regexp.MustCompile(`\s+`)

// CanonicalHeader lowercases a header, repairs UTF-8 text that was decoded
// as Latin-1 ("DÃ©bito"), removes accents and collapses whitespace.
func CanonicalHeader(h string) string {
	h = RepairMojibake(strings.TrimSpace(h))
	// Chained transformers keep state, so each call builds its own.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(fold, h); err == nil {
		h = folded
	}
	return spaceRun.ReplaceAllString(strings.ToLower(h), " ")
}

// RepairMojibake reverses a UTF-8 → Latin-1 misdecoding. Strings that do not
// round-trip to valid UTF-8 are returned unchanged.
func RepairMojibake(s string) string {
	if !strings.ContainsAny(s, "ÃÂ") {
		return s
	}
	raw, err := charmap.ISO8859_1.NewEncoder().String(s)
	if err != nil || !utf8.ValidString(raw) {
		return s
	}
	return raw
}
