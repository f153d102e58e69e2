package reconciler

import (
	"testing"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/matcher"
	"ledger-reconciliation-service/internal/models"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAggregate(t *testing.T) {
	matched := []matcher.Match{
		{
			Bank:        models.NewBankRecord(1, jan(5), "1", dec("0"), dec("100.40")),
			System:      models.SystemRecord{ID: 2, Debit: dec("100.90"), NetAmount: dec("100.90")},
			AmountDelta: dec("0.50"),
			Quality:     matcher.QualityExact,
		},
		{
			Bank:        models.NewBankRecord(2, jan(6), "2", dec("30"), dec("0")),
			System:      models.SystemRecord{ID: 1, Credit: dec("-30"), NetAmount: dec("-30")},
			AmountDelta: dec("0"),
			DayOffset:   2,
			Quality:     matcher.QualityToleratedByDate,
		},
	}
	unmatchedBank := []models.BankRecord{
		models.NewBankRecord(3, jan(7), "3", dec("12.25"), dec("0")),
	}
	unmatchedSystem := []models.SystemRecord{
		{ID: 3, Debit: dec("8"), Credit: dec("1.5")},
		{ID: 4, Debit: dec("2")},
	}

	stats := Aggregate(matched, unmatchedBank, unmatchedSystem)

	if stats.TotalBank != 3 || stats.TotalSystem != 4 {
		t.Errorf("expected totals 3/4, got %d/%d", stats.TotalBank, stats.TotalSystem)
	}
	if stats.Matched != 2 || stats.UnmatchedBank != 1 || stats.UnmatchedSystem != 2 {
		t.Errorf("unexpected counts %+v", stats)
	}
	if stats.PercentVerified != float64(2)/float64(3)*100 {
		t.Errorf("expected 66.67%%, got %f", stats.PercentVerified)
	}
	if stats.ExactMatches != 1 || stats.ToleratedMatches != 1 {
		t.Errorf("expected 1 exact and 1 tolerated, got %d/%d", stats.ExactMatches, stats.ToleratedMatches)
	}

	tests := []struct {
		category   Category
		original   string
		verified   string
		unverified string
	}{
		{CategoryBankDebit, "42.25", "30", "12.25"},
		{CategoryBankCredit, "100.40", "100.40", "0"},
		{CategorySystemDebit, "110.90", "100.90", "10"},
		{CategorySystemCredit, "-28.5", "-30", "1.5"},
	}
	for _, tt := range tests {
		got := stats.Category(tt.category)
		if !got.Original.Equal(dec(tt.original)) || !got.Verified.Equal(dec(tt.verified)) || !got.Unverified.Equal(dec(tt.unverified)) {
			t.Errorf("%s: expected %s/%s/%s, got %s/%s/%s", tt.category,
				tt.original, tt.verified, tt.unverified, got.Original, got.Verified, got.Unverified)
		}
		if !got.Check.Equal(got.Verified.Add(got.Unverified)) {
			t.Errorf("%s: check %s is not verified + unverified", tt.category, got.Check)
		}
		if !got.Balanced() {
			t.Errorf("%s: expected zero difference, got %s", tt.category, got.Difference)
		}
	}
	if !stats.Balanced() {
		t.Error("expected statistics to balance")
	}

	if !stats.MatchedBankAmount.Equal(dec("130.40")) {
		t.Errorf("expected matched bank volume 130.40, got %s", stats.MatchedBankAmount)
	}
	if !stats.MatchedSystemAmount.Equal(dec("130.90")) {
		t.Errorf("expected matched system volume 130.90, got %s", stats.MatchedSystemAmount)
	}
	if !stats.UnmatchedBankAmount.Equal(dec("12.25")) {
		t.Errorf("expected unmatched bank volume 12.25, got %s", stats.UnmatchedBankAmount)
	}
	if !stats.UnmatchedSystemAmount.Equal(dec("11.5")) {
		t.Errorf("expected unmatched system volume 11.5, got %s", stats.UnmatchedSystemAmount)
	}
	if !stats.AmountDeltaTotal.Equal(dec("0.5")) {
		t.Errorf("expected delta total 0.5, got %s", stats.AmountDeltaTotal)
	}
}

func TestAggregateEmpty(t *testing.T) {
	stats := Aggregate(nil, nil, nil)
	if stats.PercentVerified != 0 {
		t.Errorf("expected 0%%, got %f", stats.PercentVerified)
	}
	if !stats.Balanced() {
		t.Error("expected empty statistics to balance")
	}
}

func TestPercentage(t *testing.T) {
	tests := []struct {
		part, total int
		expected    float64
	}{
		{0, 0, 0},
		{1, 0, 100},
		{1, 4, 25},
		{4, 4, 100},
	}
	for _, tt := range tests {
		if got := Percentage(tt.part, tt.total); got != tt.expected {
			t.Errorf("Percentage(%d, %d): expected %f, got %f", tt.part, tt.total, tt.expected, got)
		}
	}
}

func TestVerifyTotalsFlagsDrift(t *testing.T) {
	bank := []models.BankRecord{models.NewBankRecord(1, jan(1), "1", dec("10"), dec("0"))}
	stats := Aggregate(nil, []models.BankRecord{models.NewBankRecord(1, jan(1), "1", dec("9"), dec("0"))}, nil)

	diagnostics := verifyTotals(stats, bank, nil)
	if len(diagnostics) != 1 || diagnostics[0].Field != models.Field(CategoryBankDebit) {
		t.Errorf("expected one bank_debit diagnostic, got %+v", diagnostics)
	}
}
