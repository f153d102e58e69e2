package matcher

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/models"
)

// generateLedgers builds ledgers with many shared tail keys so that every
// key bucket holds several candidates.
func generateLedgers(n int) ([]models.BankRecord, []models.SystemRecord) {
	bank := make([]models.BankRecord, n)
	system := make([]models.SystemRecord, n)

	for i := 0; i < n; i++ {
		ref := fmt.Sprintf("%d", 1000+i%97)
		amount := decimal.NewFromInt(int64(10 + i%13))
		bank[i] = models.NewBankRecord(i+1, jan(1+i%20), ref, decimal.Zero, amount)
		system[i] = models.SystemRecord{
			ID:        i + 1,
			Date:      jan(1 + (i*7)%28),
			Reference: ref,
			Debit:     amount,
			NetAmount: amount,
		}
	}
	return bank, system
}

func TestParallelClassificationIsDeterministic(t *testing.T) {
	bank, system := generateLedgers(3000)
	s := strategyA(t, 10)

	sequential := NewEngine(s, SequentialConfig()).Match(bank, system)
	parallel := NewEngine(s, &Config{Workers: 8, ChunkSize: 500, ParallelThreshold: 0}).Match(bank, system)

	if sequential.Classification.Candidates <= 500 {
		t.Fatalf("expected the dataset to exceed one chunk, got %d candidates", sequential.Classification.Candidates)
	}
	if !reflect.DeepEqual(sequential.Classification, parallel.Classification) {
		t.Errorf("expected equal classification stats, got %+v and %+v", sequential.Classification, parallel.Classification)
	}
	if len(sequential.Matches) != len(parallel.Matches) {
		t.Fatalf("expected %d matches, got %d", len(sequential.Matches), len(parallel.Matches))
	}
	for i := range sequential.Matches {
		a, b := sequential.Matches[i], parallel.Matches[i]
		if a.Seq != b.Seq || a.Bank.ID != b.Bank.ID || a.System.ID != b.System.ID {
			t.Fatalf("match %d differs: (%d,%d) vs (%d,%d)", i, a.Bank.ID, a.System.ID, b.Bank.ID, b.System.ID)
		}
	}
}

func TestPartitionLawOnGeneratedData(t *testing.T) {
	bank, system := generateLedgers(500)
	outcome := NewEngine(strategyA(t, 5), nil).Match(bank, system)

	if len(outcome.Matches)+len(outcome.UnmatchedBank) != len(bank) {
		t.Errorf("bank partition broken: %d matched + %d unmatched != %d",
			len(outcome.Matches), len(outcome.UnmatchedBank), len(bank))
	}
	if len(outcome.Matches)+len(outcome.UnmatchedSystem) != len(system) {
		t.Errorf("system partition broken: %d matched + %d unmatched != %d",
			len(outcome.Matches), len(outcome.UnmatchedSystem), len(system))
	}

	seenBank := map[int]bool{}
	seenSystem := map[int]bool{}
	for _, m := range outcome.Matches {
		if seenBank[m.Bank.ID] || seenSystem[m.System.ID] {
			t.Fatalf("record matched twice: bank %d system %d", m.Bank.ID, m.System.ID)
		}
		seenBank[m.Bank.ID] = true
		seenSystem[m.System.ID] = true
		if m.DayOffset < 0 || m.DayOffset > 5 {
			t.Errorf("offset %d outside window", m.DayOffset)
		}
		if (m.Quality == QualityExact) != (m.DayOffset == 0) {
			t.Errorf("quality %s inconsistent with offset %d", m.Quality, m.DayOffset)
		}
	}
	for _, r := range outcome.UnmatchedBank {
		if seenBank[r.ID] {
			t.Errorf("bank %d both matched and unmatched", r.ID)
		}
	}
}
