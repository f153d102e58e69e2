// Package reconciler runs the reconciliation engine over two normalized
// ledgers and wraps it in a file-level service.
//
// Reconcile is a pure function of its inputs: the same ledgers and strategy
// always produce the same Result, and degraded conditions (missing columns,
// empty ledgers, missing dates) are reported as diagnostics instead of
// errors. Every input record appears exactly once in the result, either in
// the matched set or in the unmatched set of its side.
//
// Example usage:
//
//	strategy := workflow.MustNew(workflow.Select(bankPath), workflow.DefaultOptions())
//	result := reconciler.Reconcile(bankLedger, systemLedger, strategy)
//
//	fmt.Printf("%.2f%% verified\n", result.Statistics.PercentVerified)
//	for _, w := range result.Warnings() {
//		fmt.Println(w)
//	}
package reconciler

import (
	"sync"

	"ledger-reconciliation-service/internal/matcher"
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/workflow"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

// Engine runs reconciliations with a fixed matcher configuration.
type Engine struct {
	matcherConfig *matcher.Config
	logger        logger.Logger
}

// NewEngine creates an engine. A nil config uses matcher.DefaultConfig.
func NewEngine(config *matcher.Config) *Engine {
	if config == nil {
		config = matcher.DefaultConfig()
	}
	return &Engine{
		matcherConfig: config,
		logger:        logger.WithComponent("reconciler"),
	}
}

// WithLogger replaces the engine logger.
func (e *Engine) WithLogger(l logger.Logger) *Engine {
	e.logger = l
	return e
}

// Reconcile runs the engine with the default matcher configuration.
func Reconcile(bank models.BankLedger, system models.SystemLedger, strategy workflow.Strategy) *Result {
	return NewEngine(nil).Reconcile(bank, system, strategy)
}

// Reconcile partitions bank and system into matched and unmatched records
// under strategy. The data quality audit runs alongside matching.
func (e *Engine) Reconcile(bank models.BankLedger, system models.SystemLedger, strategy workflow.Strategy) *Result {
	result := &Result{
		Workflow: strategy.Kind(),
		Window:   strategy.Window(),
	}
	log := e.logger.WithField("workflow", strategy.Kind().String())

	var quality QualityReport
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		quality = Audit(bank, system)
	}()

	result.Diagnostics = preconditions(bank, system, strategy)
	if blocking(result.Diagnostics) {
		result.Pipeline.Skipped = true
		result.Matched = []matcher.Match{}
		result.UnmatchedBank = append([]models.BankRecord{}, bank.Records...)
		result.UnmatchedSystem = append([]models.SystemRecord{}, system.Records...)
		log.WithField("diagnostics", len(result.Diagnostics)).Debug("Matching skipped")
	} else {
		outcome := matcher.NewEngine(strategy, e.matcherConfig).WithLogger(log).Match(bank.Records, system.Records)
		result.Matched = outcome.Matches
		result.UnmatchedBank = outcome.UnmatchedBank
		result.UnmatchedSystem = outcome.UnmatchedSystem
		result.Pipeline = pipelineStats(outcome)

		if n := outcome.Classification.RejectedBankDate; n > 0 {
			result.Diagnostics = append(result.Diagnostics,
				newDiagnostic(errors.CodeUnparseableDate, models.SideBank, models.FieldDate, n))
		}
		if n := outcome.Classification.RejectedSystemDate; n > 0 {
			result.Diagnostics = append(result.Diagnostics,
				newDiagnostic(errors.CodeUnparseableDate, models.SideSystem, models.FieldDate, n))
		}
	}

	if result.Matched == nil {
		result.Matched = []matcher.Match{}
	}
	if result.UnmatchedBank == nil {
		result.UnmatchedBank = []models.BankRecord{}
	}
	if result.UnmatchedSystem == nil {
		result.UnmatchedSystem = []models.SystemRecord{}
	}

	result.Statistics = Aggregate(result.Matched, result.UnmatchedBank, result.UnmatchedSystem)
	if len(bank.Records) == 0 {
		result.Diagnostics = append(result.Diagnostics, newDiagnostic(errors.CodeDivisionGuard, models.SideBank, "", 0))
	}
	result.Diagnostics = append(result.Diagnostics, verifyTotals(result.Statistics, bank.Records, system.Records)...)

	wg.Wait()
	result.Quality = quality

	log.WithFields(logger.Fields{
		"matched":          result.Statistics.Matched,
		"unmatched_bank":   result.Statistics.UnmatchedBank,
		"unmatched_system": result.Statistics.UnmatchedSystem,
		"diagnostics":      len(result.Diagnostics),
	}).Debug("Reconciliation complete")

	return result
}

// preconditions checks the inputs before matching. Diagnostics with a
// blocking code mean no candidate can be produced.
func preconditions(bank models.BankLedger, system models.SystemLedger, strategy workflow.Strategy) []Diagnostic {
	var diagnostics []Diagnostic

	if len(bank.Records) == 0 {
		diagnostics = append(diagnostics, newDiagnostic(errors.CodeEmptyLedger, models.SideBank, "", 0))
	}
	if len(system.Records) == 0 {
		diagnostics = append(diagnostics, newDiagnostic(errors.CodeEmptyLedger, models.SideSystem, "", 0))
	}

	bankRequired, systemRequired := strategy.RequiredFields()
	if bank.Fields != nil {
		for _, f := range bank.Fields.Missing(bankRequired...) {
			diagnostics = append(diagnostics, newDiagnostic(errors.CodeMissingColumn, models.SideBank, f, 0))
		}
	}
	if system.Fields != nil {
		for _, f := range system.Fields.Missing(systemRequired...) {
			diagnostics = append(diagnostics, newDiagnostic(errors.CodeMissingColumn, models.SideSystem, f, 0))
		}
	}

	if err := bank.Validate(); err != nil {
		diagnostics = append(diagnostics, newDiagnostic(errors.CodeIDSequence, models.SideBank, "id", 0))
	}
	if err := system.Validate(); err != nil {
		diagnostics = append(diagnostics, newDiagnostic(errors.CodeIDSequence, models.SideSystem, "id", 0))
	}

	return diagnostics
}

func blocking(diagnostics []Diagnostic) bool {
	for _, d := range diagnostics {
		switch d.Code {
		case errors.CodeEmptyLedger, errors.CodeMissingColumn, errors.CodeIDSequence:
			return true
		}
	}
	return false
}

func pipelineStats(outcome *matcher.Outcome) PipelineStats {
	c := outcome.Classification
	return PipelineStats{
		Candidates:         c.Candidates,
		Accepted:           c.Accepted,
		RejectedBankDate:   c.RejectedBankDate,
		RejectedSystemDate: c.RejectedSystemDate,
		RejectedWindow:     c.RejectedWindow,
		RejectedAmount:     c.RejectedAmount,
		Deduplicated:       outcome.Deduplicated,
	}
}
