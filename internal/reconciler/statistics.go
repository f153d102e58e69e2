package reconciler

import (
	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/matcher"
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/errors"
)

// CategoryTotals holds the sum check of one monetary column.
type CategoryTotals struct {
	Original   decimal.Decimal `json:"original"`
	Verified   decimal.Decimal `json:"verified"`
	Unverified decimal.Decimal `json:"unverified"`
	// Check is Verified + Unverified.
	Check decimal.Decimal `json:"check"`
	// Difference is Original − Check rounded to a whole unit. Anything other
	// than zero means amounts were altered between the ledgers and the
	// result.
	Difference decimal.Decimal `json:"difference"`
}

// Balanced reports whether the category's difference is zero.
func (c CategoryTotals) Balanced() bool {
	return c.Difference.IsZero()
}

// Category names a monetary column.
type Category string

const (
	CategoryBankDebit    Category = "bank_debit"
	CategoryBankCredit   Category = "bank_credit"
	CategorySystemDebit  Category = "system_debit"
	CategorySystemCredit Category = "system_credit"
)

// Categories lists the monetary columns in report order.
var Categories = []Category{CategoryBankDebit, CategoryBankCredit, CategorySystemDebit, CategorySystemCredit}

// Statistics are the aggregate figures of a result.
type Statistics struct {
	TotalBank       int     `json:"total_bank"`
	TotalSystem     int     `json:"total_system"`
	Matched         int     `json:"matched"`
	UnmatchedBank   int     `json:"unmatched_bank"`
	UnmatchedSystem int     `json:"unmatched_system"`
	PercentVerified float64 `json:"percent_verified"`

	BankDebit    CategoryTotals `json:"bank_debit"`
	BankCredit   CategoryTotals `json:"bank_credit"`
	SystemDebit  CategoryTotals `json:"system_debit"`
	SystemCredit CategoryTotals `json:"system_credit"`

	ExactMatches     int `json:"exact_matches"`
	ToleratedMatches int `json:"tolerated_matches"`

	// Monetary volume (|debit| + |credit|) per side.
	MatchedBankAmount     decimal.Decimal `json:"matched_bank_amount"`
	MatchedSystemAmount   decimal.Decimal `json:"matched_system_amount"`
	UnmatchedBankAmount   decimal.Decimal `json:"unmatched_bank_amount"`
	UnmatchedSystemAmount decimal.Decimal `json:"unmatched_system_amount"`

	AmountDeltaTotal decimal.Decimal `json:"amount_delta_total"`
}

// Category returns the totals of c.
func (s Statistics) Category(c Category) CategoryTotals {
	switch c {
	case CategoryBankDebit:
		return s.BankDebit
	case CategoryBankCredit:
		return s.BankCredit
	case CategorySystemDebit:
		return s.SystemDebit
	case CategorySystemCredit:
		return s.SystemCredit
	}
	return CategoryTotals{}
}

// Balanced reports whether every category difference is zero.
func (s Statistics) Balanced() bool {
	for _, c := range Categories {
		if !s.Category(c).Balanced() {
			return false
		}
	}
	return true
}

// Aggregate computes the statistics of a partition. Totals are rebuilt from
// the partition itself, so they are consistent with it by construction.
func Aggregate(matched []matcher.Match, unmatchedBank []models.BankRecord, unmatchedSystem []models.SystemRecord) Statistics {
	stats := Statistics{
		Matched:         len(matched),
		UnmatchedBank:   len(unmatchedBank),
		UnmatchedSystem: len(unmatchedSystem),
	}
	stats.TotalBank = stats.Matched + stats.UnmatchedBank
	stats.TotalSystem = stats.Matched + stats.UnmatchedSystem
	stats.PercentVerified = Percentage(stats.Matched, stats.TotalBank)

	bank := make([]models.BankRecord, 0, stats.TotalBank)
	system := make([]models.SystemRecord, 0, stats.TotalSystem)
	matchedBank := make([]models.BankRecord, 0, len(matched))
	matchedSystem := make([]models.SystemRecord, 0, len(matched))
	for _, m := range matched {
		matchedBank = append(matchedBank, m.Bank)
		matchedSystem = append(matchedSystem, m.System)
		stats.AmountDeltaTotal = stats.AmountDeltaTotal.Add(m.AmountDelta)
		if m.Quality == matcher.QualityExact {
			stats.ExactMatches++
		} else {
			stats.ToleratedMatches++
		}
	}
	bank = append(append(bank, matchedBank...), unmatchedBank...)
	system = append(append(system, matchedSystem...), unmatchedSystem...)

	bankDebit, bankCredit := sumBank(bank)
	verifiedBankDebit, verifiedBankCredit := sumBank(matchedBank)
	unverifiedBankDebit, unverifiedBankCredit := sumBank(unmatchedBank)

	systemDebit, systemCredit := sumSystem(system)
	verifiedSystemDebit, verifiedSystemCredit := sumSystem(matchedSystem)
	unverifiedSystemDebit, unverifiedSystemCredit := sumSystem(unmatchedSystem)

	stats.BankDebit = categoryTotals(bankDebit, verifiedBankDebit, unverifiedBankDebit)
	stats.BankCredit = categoryTotals(bankCredit, verifiedBankCredit, unverifiedBankCredit)
	stats.SystemDebit = categoryTotals(systemDebit, verifiedSystemDebit, unverifiedSystemDebit)
	stats.SystemCredit = categoryTotals(systemCredit, verifiedSystemCredit, unverifiedSystemCredit)

	stats.MatchedBankAmount = volume(verifiedBankDebit, verifiedBankCredit)
	stats.MatchedSystemAmount = volume(verifiedSystemDebit, verifiedSystemCredit)
	stats.UnmatchedBankAmount = volume(unverifiedBankDebit, unverifiedBankCredit)
	stats.UnmatchedSystemAmount = volume(unverifiedSystemDebit, unverifiedSystemCredit)

	return stats
}

// Percentage returns part / max(total, 1) × 100.
func Percentage(part, total int) float64 {
	if total < 1 {
		total = 1
	}
	return float64(part) / float64(total) * 100
}

func categoryTotals(original, verified, unverified decimal.Decimal) CategoryTotals {
	check := verified.Add(unverified)
	return CategoryTotals{
		Original:   original,
		Verified:   verified,
		Unverified: unverified,
		Check:      check,
		Difference: original.Sub(check).RoundBank(0),
	}
}

func sumBank(records []models.BankRecord) (debit, credit decimal.Decimal) {
	for _, r := range records {
		debit = debit.Add(r.Debit)
		credit = credit.Add(r.Credit)
	}
	return debit, credit
}

func sumSystem(records []models.SystemRecord) (debit, credit decimal.Decimal) {
	for _, r := range records {
		debit = debit.Add(r.Debit)
		credit = credit.Add(r.Credit)
	}
	return debit, credit
}

func volume(debit, credit decimal.Decimal) decimal.Decimal {
	return debit.Abs().Add(credit.Abs())
}

// verifyTotals flags every category whose sum check is off or whose
// reconstructed original differs from the ledgers the run started from.
func verifyTotals(stats Statistics, bank []models.BankRecord, system []models.SystemRecord) []Diagnostic {
	bankDebit, bankCredit := sumBank(bank)
	systemDebit, systemCredit := sumSystem(system)

	inputs := map[Category]decimal.Decimal{
		CategoryBankDebit:    bankDebit,
		CategoryBankCredit:   bankCredit,
		CategorySystemDebit:  systemDebit,
		CategorySystemCredit: systemCredit,
	}

	var diagnostics []Diagnostic
	for _, c := range Categories {
		totals := stats.Category(c)
		if !totals.Balanced() || !totals.Original.Equal(inputs[c]) {
			diagnostics = append(diagnostics, newDiagnostic(errors.CodeDataInconsistent, "", models.Field(c), 0))
		}
	}
	return diagnostics
}
