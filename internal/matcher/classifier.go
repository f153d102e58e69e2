package matcher

import (
	"sync"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/workflow"
)

// Match is an accepted candidate.
type Match struct {
	Seq         int                 `json:"seq"`
	Key         workflow.Key        `json:"key"`
	Bank        models.BankRecord   `json:"bank"`
	System      models.SystemRecord `json:"system"`
	DayOffset   int                 `json:"day_offset"`
	AmountDelta decimal.Decimal     `json:"amount_delta"`
	Quality     Quality             `json:"quality"`
}

// Rejection is the reason a candidate was dropped.
type Rejection int

const (
	// Accepted is not a rejection: the candidate passed every check.
	Accepted Rejection = iota
	RejectedBankDate
	RejectedSystemDate
	RejectedWindow
	RejectedAmount
)

// String returns the string representation of Rejection
func (r Rejection) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedBankDate:
		return "bank_date_missing"
	case RejectedSystemDate:
		return "system_date_missing"
	case RejectedWindow:
		return "outside_window"
	case RejectedAmount:
		return "amount_mismatch"
	default:
		return "unknown"
	}
}

// ClassifyStats counts classification outcomes.
type ClassifyStats struct {
	Candidates         int `json:"candidates"`
	Accepted           int `json:"accepted"`
	RejectedBankDate   int `json:"rejected_bank_date"`
	RejectedSystemDate int `json:"rejected_system_date"`
	RejectedWindow     int `json:"rejected_window"`
	RejectedAmount     int `json:"rejected_amount"`
}

func (s *ClassifyStats) add(r Rejection) {
	s.Candidates++
	switch r {
	case Accepted:
		s.Accepted++
	case RejectedBankDate:
		s.RejectedBankDate++
	case RejectedSystemDate:
		s.RejectedSystemDate++
	case RejectedWindow:
		s.RejectedWindow++
	case RejectedAmount:
		s.RejectedAmount++
	}
}

func (s *ClassifyStats) merge(other ClassifyStats) {
	s.Candidates += other.Candidates
	s.Accepted += other.Accepted
	s.RejectedBankDate += other.RejectedBankDate
	s.RejectedSystemDate += other.RejectedSystemDate
	s.RejectedWindow += other.RejectedWindow
	s.RejectedAmount += other.RejectedAmount
}

// Evaluate applies the strategy's acceptance rule to one pair. A missing
// date on either side always rejects.
func Evaluate(bank models.BankRecord, system models.SystemRecord, strategy workflow.Strategy) (Match, Rejection) {
	if bank.Date.IsNull() {
		return Match{}, RejectedBankDate
	}
	if system.Date.IsNull() {
		return Match{}, RejectedSystemDate
	}

	offset, _ := bank.Date.DaysUntil(system.Date)
	if !strategy.Window().Contains(offset) {
		return Match{}, RejectedWindow
	}
	if !strategy.AmountsAgree(bank, system) {
		return Match{}, RejectedAmount
	}

	return Match{
		Bank:        bank,
		System:      system,
		DayOffset:   offset,
		AmountDelta: system.NetAmount.Sub(bank.NetAmount),
		Quality:     QualityForOffset(offset),
	}, Accepted
}

// Classify evaluates every candidate and returns the accepted ones in
// discovery order. Large candidate sets are split into chunks classified
// concurrently; results are written into per-candidate slots so the merge
// does not depend on scheduling.
func Classify(candidates []Candidate, bank []models.BankRecord, system []models.SystemRecord,
	strategy workflow.Strategy, config *Config) ([]Match, ClassifyStats) {
	if config == nil {
		config = DefaultConfig()
	}

	matches := make([]Match, len(candidates))
	outcomes := make([]Rejection, len(candidates))

	classifyRange := func(from, to int) {
		for i := from; i < to; i++ {
			c := candidates[i]
			m, r := Evaluate(bank[c.BankPos], system[c.SystemPos], strategy)
			m.Seq = c.Seq
			m.Key = c.Key
			matches[i] = m
			outcomes[i] = r
		}
	}

	if config.parallel(len(candidates)) {
		var wg sync.WaitGroup
		chunks := make(chan [2]int)

		for w := 0; w < config.Workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for span := range chunks {
					classifyRange(span[0], span[1])
				}
			}()
		}

		for from := 0; from < len(candidates); from += config.ChunkSize {
			to := from + config.ChunkSize
			if to > len(candidates) {
				to = len(candidates)
			}
			chunks <- [2]int{from, to}
		}
		close(chunks)
		wg.Wait()
	} else {
		classifyRange(0, len(candidates))
	}

	var stats ClassifyStats
	accepted := make([]Match, 0, len(candidates))
	for i, r := range outcomes {
		stats.add(r)
		if r == Accepted {
			accepted = append(accepted, matches[i])
		}
	}

	return accepted, stats
}
