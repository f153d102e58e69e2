package matcher

import (
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/workflow"
	"ledger-reconciliation-service/pkg/logger"
)

// Engine runs the candidate pipeline for one strategy.
type Engine struct {
	Strategy workflow.Strategy
	Config   *Config
	logger   logger.Logger
}

// Outcome is the partition produced by one Match call.
type Outcome struct {
	Matches         []Match               `json:"matches"`
	UnmatchedBank   []models.BankRecord   `json:"unmatched_bank"`
	UnmatchedSystem []models.SystemRecord `json:"unmatched_system"`
	Classification  ClassifyStats         `json:"classification"`
	Index           IndexStats            `json:"index"`
	// Deduplicated counts accepted matches dropped by deduplication.
	Deduplicated int `json:"deduplicated"`
}

// NewEngine creates a new engine for strategy
func NewEngine(strategy workflow.Strategy, config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}

	return &Engine{
		Strategy: strategy,
		Config:   config,
		logger:   logger.WithComponent("matcher"),
	}
}

// WithLogger replaces the engine logger.
func (e *Engine) WithLogger(l logger.Logger) *Engine {
	e.logger = l
	return e
}

// Match partitions both ledgers into a one-to-one matched set and the two
// unmatched remainders. Every input record ends up in exactly one of them.
func (e *Engine) Match(bank []models.BankRecord, system []models.SystemRecord) *Outcome {
	outcome := &Outcome{}

	var candidates []Candidate
	if len(bank) > 0 && len(system) > 0 {
		index := NewKeyIndex(bank, e.Strategy)
		outcome.Index = index.Stats()
		candidates = generateFromIndex(index, system, e.Strategy)
	}

	accepted, stats := Classify(candidates, bank, system, e.Strategy, e.Config)
	outcome.Classification = stats
	outcome.Matches = Deduplicate(accepted)
	outcome.Deduplicated = len(accepted) - len(outcome.Matches)
	outcome.UnmatchedBank, outcome.UnmatchedSystem = Unmatched(bank, system, outcome.Matches)

	e.logger.WithFields(logger.Fields{
		"workflow":   e.Strategy.Kind().String(),
		"candidates": stats.Candidates,
		"accepted":   stats.Accepted,
		"matched":    len(outcome.Matches),
	}).Debug("Candidate pipeline complete")

	return outcome
}

// Unmatched returns the records of each side that are not part of matches,
// in ledger order.
func Unmatched(bank []models.BankRecord, system []models.SystemRecord, matches []Match) ([]models.BankRecord, []models.SystemRecord) {
	matchedBank := make(map[int]bool, len(matches))
	matchedSystem := make(map[int]bool, len(matches))
	for _, m := range matches {
		matchedBank[m.Bank.ID] = true
		matchedSystem[m.System.ID] = true
	}

	var unmatchedBank []models.BankRecord
	for _, r := range bank {
		if !matchedBank[r.ID] {
			unmatchedBank = append(unmatchedBank, r)
		}
	}

	var unmatchedSystem []models.SystemRecord
	for _, r := range system {
		if !matchedSystem[r.ID] {
			unmatchedSystem = append(unmatchedSystem, r)
		}
	}

	return unmatchedBank, unmatchedSystem
}
