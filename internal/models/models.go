// Package models defines the canonical ledger records exchanged between the
// normalizer, the reconciliation engine and the exporters.
//
// Records are created once per run by the normalizer and are read-only
// afterwards. Each side numbers its records 1..n in original row order.
package models

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Side identifies which ledger a record belongs to.
type Side string

const (
	SideBank   Side = "bank"
	SideSystem Side = "system"
)

// Field names a canonical ledger column.
type Field string

const (
	FieldDate      Field = "date"
	FieldReference Field = "reference"
	FieldDebit     Field = "debit"
	FieldCredit    Field = "credit"
	FieldBalance   Field = "balance"
	FieldConcept   Field = "concept"

	// Bank-only fields
	FieldDescription Field = "description"
	FieldSubject     Field = "subject"
	FieldDependency  Field = "dependency"
	FieldDepOrigin   Field = "dep_origin"
	FieldVoucher     Field = "voucher"

	// System-only fields
	FieldTransNumber  Field = "trans_number"
	FieldValueType    Field = "value_type"
	FieldDetail       Field = "detail"
	FieldStatus       Field = "status"
	FieldCounterparty Field = "counterparty"
)

// FieldSet records which canonical fields a ledger file provided.
type FieldSet map[Field]bool

// NewFieldSet returns a set holding fields.
func NewFieldSet(fields ...Field) FieldSet {
	fs := make(FieldSet, len(fields))
	for _, f := range fields {
		fs[f] = true
	}
	return fs
}

// Has reports whether f is present.
func (fs FieldSet) Has(f Field) bool {
	return fs[f]
}

// Missing returns the required fields that are absent, in argument order.
func (fs FieldSet) Missing(required ...Field) []Field {
	var missing []Field
	for _, f := range required {
		if !fs[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// Sorted returns the fields in lexical order.
func (fs FieldSet) Sorted() []Field {
	out := make([]Field, 0, len(fs))
	for f, ok := range fs {
		if ok {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BankVariant distinguishes bank statement layouts that export differently.
type BankVariant string

const (
	BankVariantStandard BankVariant = "standard"
	// BankVariantScotia statements carry Dep. Origen / Comprobante columns.
	BankVariantScotia BankVariant = "scotia"
)

// BankRecord is one row of a bank statement.
type BankRecord struct {
	ID          int                 `json:"id"`
	Date        Date                `json:"date"`
	Reference   string              `json:"reference,omitempty"`
	Description string              `json:"description,omitempty"`
	Subject     string              `json:"subject,omitempty"`
	Dependency  string              `json:"dependency,omitempty"`
	DepOrigin   string              `json:"dep_origin,omitempty"`
	Concept     string              `json:"concept,omitempty"`
	Debit       decimal.Decimal     `json:"debit"`
	Credit      decimal.Decimal     `json:"credit"`
	Balance     decimal.NullDecimal `json:"balance"`
	NetAmount   decimal.Decimal     `json:"net_amount"`
}

// NewBankRecord builds a bank record and derives its net amount as
// credit − debit.
func NewBankRecord(id int, date Date, reference string, debit, credit decimal.Decimal) BankRecord {
	return BankRecord{
		ID:        id,
		Date:      date,
		Reference: reference,
		Debit:     debit,
		Credit:    credit,
		NetAmount: credit.Sub(debit),
	}
}

func (r BankRecord) String() string {
	return fmt.Sprintf("BankRecord{ID: %d, Date: %s, Ref: %q, Debit: %s, Credit: %s}",
		r.ID, r.Date, r.Reference, r.Debit, r.Credit)
}

// SystemRecord is one row of the accounting system ledger.
type SystemRecord struct {
	ID           int                 `json:"id"`
	Date         Date                `json:"date"`
	Reference    string              `json:"reference,omitempty"`
	TransNumber  string              `json:"trans_number,omitempty"`
	ValueType    string              `json:"value_type,omitempty"`
	Concept      string              `json:"concept,omitempty"`
	Detail       string              `json:"detail,omitempty"`
	Status       string              `json:"status,omitempty"`
	Counterparty string              `json:"counterparty,omitempty"`
	Debit        decimal.Decimal     `json:"debit"`
	Credit       decimal.Decimal     `json:"credit"`
	Balance      decimal.NullDecimal `json:"balance"`
	NetAmount    decimal.Decimal     `json:"net_amount"`
}

func (r SystemRecord) String() string {
	return fmt.Sprintf("SystemRecord{ID: %d, Date: %s, Ref: %q, Debit: %s, Credit: %s}",
		r.ID, r.Date, r.Reference, r.Debit, r.Credit)
}

// BankLedger is a normalized bank statement.
type BankLedger struct {
	Source  string       `json:"source"`
	Variant BankVariant  `json:"variant"`
	Fields  FieldSet     `json:"-"`
	Records []BankRecord `json:"records"`
}

// SystemLedger is a normalized system ledger.
type SystemLedger struct {
	Source  string         `json:"source"`
	Fields  FieldSet       `json:"-"`
	Records []SystemRecord `json:"records"`
}

// IDs returns the record ids in ledger order.
func (l BankLedger) IDs() []int {
	ids := make([]int, len(l.Records))
	for i, r := range l.Records {
		ids[i] = r.ID
	}
	return ids
}

// IDs returns the record ids in ledger order.
func (l SystemLedger) IDs() []int {
	ids := make([]int, len(l.Records))
	for i, r := range l.Records {
		ids[i] = r.ID
	}
	return ids
}

// Validate checks that ids are dense and start at 1.
func (l BankLedger) Validate() error {
	return validateIDs(SideBank, l.IDs())
}

// Validate checks that ids are dense and start at 1.
func (l SystemLedger) Validate() error {
	return validateIDs(SideSystem, l.IDs())
}

func validateIDs(side Side, ids []int) error {
	for i, id := range ids {
		if id != i+1 {
			return fmt.Errorf("%s record %d has id %d, expected %d", side, i, id, i+1)
		}
	}
	return nil
}
