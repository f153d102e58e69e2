package cmd

import (
	"context"

	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/reporter"
	"ledger-reconciliation-service/internal/store"
	"ledger-reconciliation-service/pkg/logger"
)

// pipeline runs one ledger pair through normalize, reconcile, export and
// store. exporter and runs are optional.
type pipeline struct {
	service  *reconciler.ReconciliationService
	exporter *reporter.Exporter
	runs     store.RunStore
	logger   logger.Logger
}

type pipelineOutcome struct {
	Result    *reconciler.ReconciliationResult
	Artifacts []string
	RunID     string
}

func (p *pipeline) run(ctx context.Context, bankFile, systemFile, workflowChoice string, toleranceDays *int) (*pipelineOutcome, error) {
	request := &reconciler.ReconciliationRequest{
		BankFile:      parsers.FileSource(bankFile),
		SystemFile:    parsers.FileSource(systemFile),
		Workflow:      workflowChoice,
		ToleranceDays: toleranceDays,
	}

	result, err := p.service.ProcessReconciliation(ctx, request)
	if err != nil {
		return nil, err
	}
	outcome := &pipelineOutcome{Result: result}

	if p.exporter != nil {
		paths, err := p.exporter.Export(result)
		if err != nil {
			return outcome, err
		}
		outcome.Artifacts = paths
	}

	if p.runs != nil {
		run := store.NewRun(result)
		if err := p.runs.SaveRun(ctx, run); err != nil {
			return outcome, err
		}
		outcome.RunID = run.ID
		p.logger.WithField("run_id", run.ID).Debug("Run recorded")
	}

	return outcome, nil
}

// openStore opens the run history at dsn. An empty dsn returns a nil store.
func openStore(ctx context.Context, dsn string) (store.RunStore, func(), error) {
	if dsn == "" {
		return nil, func() {}, nil
	}
	s, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { s.Close() }, nil
}
