package matcher

import (
	"sort"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/workflow"
)

// KeyIndex maps join keys to the positions of the bank records carrying
// them. Positions under a key stay in ledger order.
type KeyIndex struct {
	positions map[workflow.Key][]int
}

// IndexStats provides statistics about a key index
type IndexStats struct {
	Records     int `json:"records"`
	Keys        int `json:"keys"`
	LargestSlot int `json:"largest_slot"`
}

// NewKeyIndex indexes bank records by the strategy's bank key.
func NewKeyIndex(bank []models.BankRecord, strategy workflow.Strategy) *KeyIndex {
	index := &KeyIndex{positions: make(map[workflow.Key][]int)}

	for i, r := range bank {
		key := strategy.BankKey(r)
		index.positions[key] = append(index.positions[key], i)
	}

	return index
}

// Lookup returns the bank positions under key, in ledger order. The slice
// must not be modified.
func (ki *KeyIndex) Lookup(key workflow.Key) []int {
	return ki.positions[key]
}

// Keys returns the indexed keys in lexical order.
func (ki *KeyIndex) Keys() []workflow.Key {
	keys := make([]workflow.Key, 0, len(ki.positions))
	for k := range ki.positions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Stats returns statistics about the index
func (ki *KeyIndex) Stats() IndexStats {
	stats := IndexStats{Keys: len(ki.positions)}
	for _, slot := range ki.positions {
		stats.Records += len(slot)
		if len(slot) > stats.LargestSlot {
			stats.LargestSlot = len(slot)
		}
	}
	return stats
}
