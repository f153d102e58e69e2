package matcher

import (
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/workflow"
)

// Candidate is a bank/system pair sharing a join key. Seq is the discovery
// position; BankPos and SystemPos index the ledgers the candidate was
// generated from.
type Candidate struct {
	Seq       int
	BankPos   int
	SystemPos int
	Key       workflow.Key
}

// GenerateCandidates returns every same-key pair. System records are walked
// in ledger order and, for each, the bank records under its key in ledger
// order, so the output order is reproducible for identical inputs.
//
// A side without keyed records yields no candidates rather than an error.
func GenerateCandidates(bank []models.BankRecord, system []models.SystemRecord, strategy workflow.Strategy) []Candidate {
	if len(bank) == 0 || len(system) == 0 {
		return nil
	}

	index := NewKeyIndex(bank, strategy)
	return generateFromIndex(index, system, strategy)
}

func generateFromIndex(index *KeyIndex, system []models.SystemRecord, strategy workflow.Strategy) []Candidate {
	var candidates []Candidate

	for sp, r := range system {
		key := strategy.SystemKey(r)
		for _, bp := range index.Lookup(key) {
			candidates = append(candidates, Candidate{
				Seq:       len(candidates),
				BankPos:   bp,
				SystemPos: sp,
				Key:       key,
			})
		}
	}

	return candidates
}
