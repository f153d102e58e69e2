// Package ledgergen generates synthetic bank statement and system ledger
// pairs with a known set of matches, for load testing and for checking the
// engine end to end.
//
// Every planted pair gets an amount no other record carries, so the engine
// must return exactly the planted matches whatever the join keys collide on.
package ledgergen

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/workflow"
)

// Options controls the shape of a generated pair
type Options struct {
	Kind workflow.Kind
	// Matches is the number of planted pairs.
	Matches int
	// BankOnly and SystemOnly are records with no counterpart.
	BankOnly   int
	SystemOnly int
	// MaxOffsetDays bounds how far after the bank date a planted system
	// date may fall. Keep it within the WorkflowA tolerance.
	MaxOffsetDays int
	// Start is the first bank date; records spread over the following 28 days.
	Start models.Date
	Seed  int64
}

// DefaultOptions returns a small WorkflowA pair
func DefaultOptions() Options {
	return Options{
		Kind:          workflow.KindA,
		Matches:       100,
		BankOnly:      10,
		SystemOnly:    10,
		MaxOffsetDays: 3,
		Start:         models.NewDate(2024, time.January, 1),
		Seed:          1,
	}
}

// Validate checks the option ranges
func (o Options) Validate() error {
	if o.Matches < 0 || o.BankOnly < 0 || o.SystemOnly < 0 {
		return fmt.Errorf("record counts cannot be negative")
	}
	if o.MaxOffsetDays < 0 || o.MaxOffsetDays > workflow.MaxToleranceDays {
		return fmt.Errorf("max offset days must be between 0 and %d", workflow.MaxToleranceDays)
	}
	if o.Start.IsNull() {
		return fmt.Errorf("start date is required")
	}
	return nil
}

// Planted is one pair the engine is expected to match
type Planted struct {
	BankID    int
	SystemID  int
	DayOffset int
}

// Pair is a generated ledger pair and the matches planted in it
type Pair struct {
	Bank    models.BankLedger
	System  models.SystemLedger
	Planted []Planted
}

// PlantedBySystem indexes the planted pairs by system id.
func (p *Pair) PlantedBySystem() map[int]Planted {
	index := make(map[int]Planted, len(p.Planted))
	for _, pl := range p.Planted {
		index[pl.SystemID] = pl
	}
	return index
}

type draft struct {
	date      models.Date
	reference string
	debit     decimal.Decimal
	credit    decimal.Decimal
	partner   int
	offset    int
}

// Generate builds a ledger pair. Records are shuffled so ledger order does
// not follow the planting order; ids are 1..n in ledger order.
func Generate(opts Options) (*Pair, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	strategy, err := workflow.New(opts.Kind, workflow.Options{ToleranceDays: max(opts.MaxOffsetDays, workflow.DefaultToleranceDays)})
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(opts.Seed))

	bank := make([]draft, 0, opts.Matches+opts.BankOnly)
	system := make([]draft, 0, opts.Matches+opts.SystemOnly)

	for i := 0; i < opts.Matches; i++ {
		amount := decimal.NewFromInt(int64(100 + i))
		date := opts.Start.AddDays(rng.Intn(28))
		offset := plantedOffset(rng, opts)
		reference := fmt.Sprintf("%07d", 1000+i)

		b := draft{date: date, reference: reference, partner: len(system), offset: offset}
		s := draft{date: date.AddDays(offset), reference: reference[len(reference)-4:], partner: len(bank), offset: offset}
		if opts.Kind == workflow.KindA {
			// Bank credit books as a system debit, both positive nets.
			b.credit, s.debit = amount, amount
		} else {
			b.debit, s.credit = amount, amount
		}
		bank = append(bank, b)
		system = append(system, s)
	}

	for i := 0; i < opts.BankOnly; i++ {
		bank = append(bank, draft{
			date:      opts.Start.AddDays(rng.Intn(28)),
			reference: fmt.Sprintf("%07d", 500000+i),
			credit:    decimal.NewFromInt(int64(1_000_000 + i)),
			partner:   -1,
		})
	}
	for i := 0; i < opts.SystemOnly; i++ {
		system = append(system, draft{
			date:      opts.Start.AddDays(rng.Intn(28)),
			reference: fmt.Sprintf("%04d", 7000+i),
			debit:     decimal.NewFromInt(int64(2_000_000 + i)),
			partner:   -1,
		})
	}

	bankOrder := rng.Perm(len(bank))
	systemOrder := rng.Perm(len(system))

	// Position of each draft in its shuffled ledger, which is its id - 1.
	bankPos := make([]int, len(bank))
	for pos, idx := range bankOrder {
		bankPos[idx] = pos
	}
	systemPos := make([]int, len(system))
	for pos, idx := range systemOrder {
		systemPos[idx] = pos
	}

	pair := &Pair{
		Bank: models.BankLedger{
			Source:  fmt.Sprintf("generated_%s_bank", opts.Kind),
			Variant: models.BankVariantStandard,
			Records: make([]models.BankRecord, len(bank)),
		},
		System: models.SystemLedger{
			Source:  fmt.Sprintf("generated_%s_system", opts.Kind),
			Records: make([]models.SystemRecord, len(system)),
		},
	}

	for pos, idx := range bankOrder {
		d := bank[idx]
		pair.Bank.Records[pos] = models.NewBankRecord(pos+1, d.date, d.reference, d.debit, d.credit)
	}
	for pos, idx := range systemOrder {
		d := system[idx]
		pair.System.Records[pos] = models.SystemRecord{
			ID:        pos + 1,
			Date:      d.date,
			Reference: d.reference,
			Debit:     d.debit,
			Credit:    d.credit,
			NetAmount: strategy.SystemNetAmount(d.debit, d.credit),
		}
		if d.partner >= 0 {
			pair.Planted = append(pair.Planted, Planted{
				BankID:    bankPos[d.partner] + 1,
				SystemID:  pos + 1,
				DayOffset: d.offset,
			})
		}
	}

	return pair, nil
}

func plantedOffset(rng *rand.Rand, opts Options) int {
	if opts.Kind == workflow.KindB {
		lead := workflow.WorkflowBLeadDays
		return rng.Intn(lead+opts.MaxOffsetDays+1) - lead
	}
	return rng.Intn(opts.MaxOffsetDays + 1)
}

const dateLayout = "02/01/2006"

func formatDate(d models.Date) string {
	if d.IsNull() {
		return ""
	}
	return d.Time().Format(dateLayout)
}

// WriteBankCSV writes ledger in the standard bank statement layout.
func WriteBankCSV(w io.Writer, ledger models.BankLedger) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Fecha", "Descripcion", "Documento", "Debito", "Credito"}); err != nil {
		return err
	}
	for _, r := range ledger.Records {
		row := []string{formatDate(r.Date), "MOVIMIENTO", r.Reference, r.Debit.StringFixed(2), r.Credit.StringFixed(2)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSystemCSV writes ledger in the system export layout of kind.
func WriteSystemCSV(w io.Writer, ledger models.SystemLedger, kind workflow.Kind) error {
	header := []string{"Fecha", "Nro.Ref.Bco", "Concepto", "Debe", "Haber"}
	if kind == workflow.KindB {
		header = []string{"fec", "documento", "concepto", "debe", "haber"}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range ledger.Records {
		row := []string{formatDate(r.Date), r.Reference, "ASIENTO", r.Debit.StringFixed(2), r.Credit.StringFixed(2)}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
