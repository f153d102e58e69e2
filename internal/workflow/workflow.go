// Package workflow defines the matching strategies the reconciliation engine
// can run and the selector that picks one for a pair of ledgers.
//
// A strategy supplies three things: the join key derived from each side, the
// acceptance predicate applied to a candidate pair, and the date window that
// predicate allows. Everything else in the engine is strategy-agnostic, so a
// new ledger format is added by implementing Strategy and teaching Select
// about its hints.
//
// Example usage:
//
//	kind := workflow.Select(bankPath)
//	strategy, err := workflow.New(kind, workflow.Options{ToleranceDays: 5})
//	if err != nil {
//		return err
//	}
//	result := reconciler.Reconcile(bank, system, strategy)
package workflow

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/errors"
)

const (
	// DefaultToleranceDays is the WorkflowA date window used when none is configured.
	DefaultToleranceDays = 10
	// MaxToleranceDays is the widest WorkflowA date window accepted.
	MaxToleranceDays = 15
	// WorkflowBLeadDays is how many days the bank date may trail the system
	// date under WorkflowB.
	WorkflowBLeadDays = 3
)

// Kind identifies a matching strategy.
type Kind int

const (
	// KindA joins on the reference tail and compares truncated net amounts
	// inside a forward date window.
	KindA Kind = iota
	// KindB joins on crossed truncated debit/credit legs.
	KindB
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindA:
		return "WorkflowA"
	case KindB:
		return "WorkflowB"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes any name accepted by ParseKind.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind accepts "a", "b", "workflowa", "workflowb" in any case.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "workflowa", "workflow_a":
		return KindA, nil
	case "b", "workflowb", "workflow_b":
		return KindB, nil
	}
	return KindA, fmt.Errorf("unknown workflow '%s' (expected a or b)", s)
}

// Key is a join key. Two records are candidates when their keys are equal.
type Key string

// Window is the inclusive range of accepted day offsets (system date minus
// bank date). Max is ignored when Bounded is false.
type Window struct {
	Min     int  `json:"min"`
	Max     int  `json:"max"`
	Bounded bool `json:"bounded"`
}

// Contains reports whether offset falls inside the window.
func (w Window) Contains(offset int) bool {
	if offset < w.Min {
		return false
	}
	return !w.Bounded || offset <= w.Max
}

func (w Window) String() string {
	if !w.Bounded {
		return fmt.Sprintf("[%d, +inf)", w.Min)
	}
	return fmt.Sprintf("[%d, %d]", w.Min, w.Max)
}

// Strategy is one matching workflow.
type Strategy interface {
	Kind() Kind

	// RequiredFields lists the canonical fields each side must provide for
	// the strategy to produce any candidates.
	RequiredFields() (bank []models.Field, system []models.Field)

	// BankKey and SystemKey derive the join key. Every record has one.
	BankKey(r models.BankRecord) Key
	SystemKey(r models.SystemRecord) Key

	// AmountsAgree reports whether the pair's amounts match at the
	// strategy's precision.
	AmountsAgree(bank models.BankRecord, system models.SystemRecord) bool

	// Window is the accepted range of day offsets.
	Window() Window

	// SystemNetAmount derives the comparable amount of a system row.
	SystemNetAmount(debit, credit decimal.Decimal) decimal.Decimal
}

// Options configures a strategy.
type Options struct {
	// ToleranceDays bounds the WorkflowA window. Ignored by WorkflowB.
	ToleranceDays int `json:"tolerance_days" yaml:"tolerance_days" mapstructure:"tolerance_days"`
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{ToleranceDays: DefaultToleranceDays}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if o.ToleranceDays < 0 || o.ToleranceDays > MaxToleranceDays {
		return errors.ConfigurationError(errors.CodeOutOfRange, "tolerance_days", o.ToleranceDays,
			fmt.Errorf("tolerance days must be between 0 and %d", MaxToleranceDays))
	}
	return nil
}

// New builds the strategy for kind.
func New(kind Kind, opts Options) (Strategy, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	switch kind {
	case KindA:
		return &workflowA{toleranceDays: opts.ToleranceDays}, nil
	case KindB:
		return &workflowB{}, nil
	default:
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "workflow", kind.String(), nil)
	}
}

// MustNew is New for callers holding already validated options.
func MustNew(kind Kind, opts Options) Strategy {
	s, err := New(kind, opts)
	if err != nil {
		panic(err)
	}
	return s
}
