package reconciler

import (
	"context"
	"strings"
	"sync"
	"time"

	"ledger-reconciliation-service/internal/matcher"
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/workflow"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

// Config holds configuration options for the reconciliation service
type Config struct {
	Matcher *matcher.Config
	Parser  *parsers.Config
	// ToleranceDays is used by requests that do not set their own.
	ToleranceDays int
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Matcher:       matcher.DefaultConfig(),
		Parser:        parsers.DefaultConfig(),
		ToleranceDays: workflow.DefaultToleranceDays,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Matcher != nil {
		if err := c.Matcher.Validate(); err != nil {
			return err
		}
	}
	if c.Parser != nil {
		if err := c.Parser.Validate(); err != nil {
			return err
		}
	}
	return workflow.Options{ToleranceDays: c.ToleranceDays}.Validate()
}

// ReconciliationRequest names the ledger pair of one run and how to match it
type ReconciliationRequest struct {
	BankFile   parsers.Source
	SystemFile parsers.Source
	// Workflow is "auto", "a" or "b". Empty means auto.
	Workflow string
	// ToleranceDays overrides the service default when set.
	ToleranceDays *int
	// Hints are extra names for workflow selection, such as the original
	// name of an uploaded statement.
	Hints []string
}

// Validate validates the reconciliation request
func (r *ReconciliationRequest) Validate() error {
	if strings.TrimSpace(r.BankFile.Name) == "" {
		return errors.ValidationError(errors.CodeMissingField, "bank_file", nil, nil)
	}
	if strings.TrimSpace(r.SystemFile.Name) == "" {
		return errors.ValidationError(errors.CodeMissingField, "system_file", nil, nil)
	}
	if _, err := workflow.Resolve(r.Workflow); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "workflow", r.Workflow, err)
	}
	if r.ToleranceDays != nil {
		if err := (workflow.Options{ToleranceDays: *r.ToleranceDays}).Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ReconciliationResult is the outcome of a file-level reconciliation run
type ReconciliationResult struct {
	*Result
	Bank          models.BankLedger   `json:"-"`
	System        models.SystemLedger `json:"-"`
	BankStats     *parsers.ParseStats `json:"-"`
	SystemStats   *parsers.ParseStats `json:"-"`
	ToleranceDays int                 `json:"tolerance_days"`
	ProcessedAt   time.Time           `json:"processed_at"`
	Duration      time.Duration       `json:"duration"`
}

// Progress reports which step of a run is executing
type Progress struct {
	Step      string        `json:"step"`
	Completed int           `json:"completed"`
	Total     int           `json:"total"`
	Elapsed   time.Duration `json:"elapsed"`
}

// PercentComplete returns the share of finished steps.
func (p Progress) PercentComplete() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// ProgressCallback is called to report reconciliation progress
type ProgressCallback func(Progress)

const totalSteps = 3

// ReconciliationService loads ledger files, selects the workflow and runs
// the engine. It is safe for concurrent use once callbacks are registered.
type ReconciliationService struct {
	config    *Config
	engine    *Engine
	logger    logger.Logger
	callbacks []ProgressCallback
	mu        sync.RWMutex
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(config *Config) (*ReconciliationService, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	log := logger.WithComponent("reconciliation_service")
	return &ReconciliationService{
		config: config,
		engine: NewEngine(config.Matcher).WithLogger(log),
		logger: log,
	}, nil
}

// AddProgressCallback adds a progress callback function
func (rs *ReconciliationService) AddProgressCallback(callback ProgressCallback) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.callbacks = append(rs.callbacks, callback)
}

// ProcessReconciliation performs the complete reconciliation process
func (rs *ReconciliationService) ProcessReconciliation(ctx context.Context, request *ReconciliationRequest) (*ReconciliationResult, error) {
	start := time.Now()
	op := logger.NewOperationLogger("reconciliation", rs.logger).
		WithField("bank_file", request.BankFile.Name).
		WithField("system_file", request.SystemFile.Name)

	rs.report("validating request", 0, start)
	if err := request.Validate(); err != nil {
		op.Error(err, "Invalid reconciliation request")
		return nil, err
	}

	tolerance := rs.config.ToleranceDays
	if request.ToleranceDays != nil {
		tolerance = *request.ToleranceDays
	}
	hints := append([]string{request.BankFile.Name}, request.Hints...)
	kind, _ := workflow.Resolve(request.Workflow, hints...)
	strategy, err := workflow.New(kind, workflow.Options{ToleranceDays: tolerance})
	if err != nil {
		op.Error(err, "Failed to build matching strategy")
		return nil, err
	}
	op.WithField("workflow", kind.String()).WithField("tolerance_days", tolerance)

	rs.report("loading ledgers", 1, start)
	loaded, err := parsers.LoadLedgers(ctx, rs.config.Parser, request.BankFile, request.SystemFile, strategy.SystemNetAmount)
	if err != nil {
		op.Error(err, "Failed to load ledgers")
		return nil, errors.WrapIfNeeded(err, errors.CategoryParse, errors.CodeProcessingError, "failed to load ledgers")
	}
	op.Step("ledgers loaded", logger.Fields{
		"bank_records":   len(loaded.Bank.Records),
		"system_records": len(loaded.System.Records),
		"bank_variant":   loaded.Bank.Variant,
	})

	if err := ctx.Err(); err != nil {
		op.Error(err, "Reconciliation cancelled")
		return nil, err
	}

	rs.report("reconciling", 2, start)
	result := rs.engine.Reconcile(loaded.Bank, loaded.System, strategy)
	for _, w := range result.Warnings() {
		op.Warning(w)
	}
	op.Step("reconciled", logger.Fields{
		"matched":          result.Statistics.Matched,
		"unmatched_bank":   result.Statistics.UnmatchedBank,
		"unmatched_system": result.Statistics.UnmatchedSystem,
		"percent_verified": result.Statistics.PercentVerified,
	})

	rs.report("completed", totalSteps, start)
	op.Success("Reconciliation completed")

	return &ReconciliationResult{
		Result:        result,
		Bank:          loaded.Bank,
		System:        loaded.System,
		BankStats:     loaded.BankStats,
		SystemStats:   loaded.SystemStats,
		ToleranceDays: tolerance,
		ProcessedAt:   start,
		Duration:      time.Since(start),
	}, nil
}

func (rs *ReconciliationService) report(step string, completed int, start time.Time) {
	rs.mu.RLock()
	callbacks := rs.callbacks
	rs.mu.RUnlock()

	progress := Progress{Step: step, Completed: completed, Total: totalSteps, Elapsed: time.Since(start)}
	for _, cb := range callbacks {
		cb(progress)
	}
}
