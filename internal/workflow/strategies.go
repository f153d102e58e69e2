package workflow

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/models"
)

// tailLength is the number of trailing reference characters WorkflowA joins on.
const tailLength = 3

type workflowA struct {
	toleranceDays int
}

func (w *workflowA) Kind() Kind { return KindA }

func (w *workflowA) RequiredFields() ([]models.Field, []models.Field) {
	fields := []models.Field{models.FieldDate, models.FieldReference}
	return fields, fields
}

func (w *workflowA) BankKey(r models.BankRecord) Key {
	return TailKey(r.Reference)
}

func (w *workflowA) SystemKey(r models.SystemRecord) Key {
	return TailKey(r.Reference)
}

func (w *workflowA) AmountsAgree(bank models.BankRecord, system models.SystemRecord) bool {
	return models.TruncateAmount(bank.NetAmount) == models.TruncateAmount(system.NetAmount)
}

func (w *workflowA) Window() Window {
	return Window{Min: 0, Max: w.toleranceDays, Bounded: true}
}

// SystemNetAmount is debit + credit: WorkflowA system exports carry the
// amount in one leg only, signed.
func (w *workflowA) SystemNetAmount(debit, credit decimal.Decimal) decimal.Decimal {
	return debit.Add(credit)
}

type workflowB struct{}

func (w *workflowB) Kind() Kind { return KindB }

func (w *workflowB) RequiredFields() ([]models.Field, []models.Field) {
	fields := []models.Field{models.FieldDate, models.FieldDebit, models.FieldCredit}
	return fields, fields
}

// BankKey is (debit, credit) truncated.
func (w *workflowB) BankKey(r models.BankRecord) Key {
	return legKey(r.Debit, r.Credit)
}

// SystemKey is (credit, debit) truncated: the system's credit leg books the
// bank's debit and vice versa.
func (w *workflowB) SystemKey(r models.SystemRecord) Key {
	return legKey(r.Credit, r.Debit)
}

// AmountsAgree always holds because the key already encodes both legs.
func (w *workflowB) AmountsAgree(models.BankRecord, models.SystemRecord) bool {
	return true
}

func (w *workflowB) Window() Window {
	return Window{Min: -WorkflowBLeadDays}
}

func (w *workflowB) SystemNetAmount(debit, credit decimal.Decimal) decimal.Decimal {
	return credit.Sub(debit)
}

// TailKey returns the last three characters of a reference, left padded with
// zeros ("4567" gives "567", "7" gives "007"). A blank reference pads all the
// way to "000", so blank references on both sides join each other.
func TailKey(reference string) Key {
	reference = strings.TrimSpace(reference)

	n := utf8.RuneCountInString(reference)
	if n >= tailLength {
		runes := []rune(reference)
		return Key(string(runes[n-tailLength:]))
	}
	return Key(strings.Repeat("0", tailLength-n) + reference)
}

func legKey(first, second decimal.Decimal) Key {
	return Key(fmt.Sprintf("%d|%d", models.TruncateAmount(first), models.TruncateAmount(second)))
}
