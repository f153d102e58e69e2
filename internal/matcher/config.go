// Package matcher implements the candidate pipeline of the reconciliation
// engine: join-key candidate generation, acceptance filtering with quality
// classification, and the two-pass deduplication that turns many-to-many
// candidates into a one-to-one matched set.
//
// The pipeline is strategy driven. A workflow.Strategy supplies the join
// keys, the amount predicate and the accepted date window; the matcher owns
// ordering and partitioning:
//  1. Candidates are discovered system record outer, bank record inner, both
//     in ledger order, and numbered in that order
//  2. Candidates are classified, optionally in parallel chunks, and merged
//     back in discovery order
//  3. Accepted candidates are collapsed first by system id, then by bank id
//  4. Every record left out of the matched set is reported unmatched
//
// Example usage:
//
//	strategy := workflow.MustNew(workflow.KindA, workflow.DefaultOptions())
//	engine := matcher.NewEngine(strategy, matcher.DefaultConfig())
//
//	outcome := engine.Match(bank.Records, system.Records)
//	fmt.Println(len(outcome.Matches), len(outcome.UnmatchedBank))
package matcher

import (
	"encoding/json"
	"fmt"
)

// Quality classifies an accepted match by its date offset.
type Quality int

const (
	// QualityExact means both ledgers carry the same date.
	QualityExact Quality = iota

	// QualityToleratedByDate means the dates differ but fall inside the
	// workflow's window.
	QualityToleratedByDate
)

// String returns the string representation of Quality
func (q Quality) String() string {
	switch q {
	case QualityExact:
		return "Exact"
	case QualityToleratedByDate:
		return "ToleratedByDate"
	default:
		return "Unknown"
	}
}

// MarshalJSON encodes the quality by name.
func (q Quality) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// UnmarshalJSON decodes a quality name.
func (q *Quality) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseQuality(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// ParseQuality is the inverse of Quality.String.
func ParseQuality(s string) (Quality, error) {
	switch s {
	case "Exact":
		return QualityExact, nil
	case "ToleratedByDate":
		return QualityToleratedByDate, nil
	}
	return QualityExact, fmt.Errorf("unknown match quality '%s'", s)
}

// QualityForOffset returns Exact for a zero offset and ToleratedByDate
// otherwise.
func QualityForOffset(dayOffset int) Quality {
	if dayOffset == 0 {
		return QualityExact
	}
	return QualityToleratedByDate
}

// Config holds the execution settings of the matcher. None of them change
// the outcome, only how the work is scheduled.
type Config struct {
	// Workers is the number of goroutines classifying candidates.
	// Values below 2 classify on the calling goroutine.
	Workers int `json:"workers" mapstructure:"workers"`

	// ChunkSize is the number of candidates handed to a worker at a time.
	ChunkSize int `json:"chunk_size" mapstructure:"chunk_size"`

	// ParallelThreshold is the candidate count below which classification
	// stays sequential regardless of Workers.
	ParallelThreshold int `json:"parallel_threshold" mapstructure:"parallel_threshold"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Workers:           4,
		ChunkSize:         2048,
		ParallelThreshold: 10000,
	}
}

// SequentialConfig returns a configuration that never spawns workers.
func SequentialConfig() *Config {
	return &Config{
		Workers:           1,
		ChunkSize:         2048,
		ParallelThreshold: 0,
	}
}

// Validate validates the matcher configuration
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive")
	}
	if c.ParallelThreshold < 0 {
		return fmt.Errorf("parallel threshold cannot be negative")
	}
	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

func (c *Config) parallel(candidates int) bool {
	return c.Workers > 1 && candidates > c.ChunkSize && candidates >= c.ParallelThreshold
}
