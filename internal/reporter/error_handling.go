package reporter

import (
	"fmt"
	"io"
	"os"

	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

// SafeReportGenerator validates a result before rendering it and retries a
// failed JSON or YAML render as a console report.
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("Check the report configuration values")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// GenerateReportSafely validates result and renders it to writer.
func (srg *SafeReportGenerator) GenerateReportSafely(result *reconciler.ReconciliationResult, writer io.Writer) error {
	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"output": describeWriter(writer),
	}).Info("Starting report generation")

	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("Provide a valid output writer")
	}
	if err := srg.ValidateResult(result); err != nil {
		srg.logger.WithError(err).Error("Result is not fit for reporting")
		return err
	}

	err := srg.GenerateReport(result, writer)
	if err != nil && srg.config.Format != FormatConsole {
		srg.logger.WithError(err).WithField("fallback_format", FormatConsole).
			Warn("Report rendering failed, retrying as console report")
		err = srg.renderConsoleFallback(result, writer, err)
	}
	if err != nil {
		srg.logger.WithError(err).Error("Report generation failed")
		if rerr, ok := errors.AsReconcilerError(err); ok {
			return rerr
		}
		return errors.InternalError(errors.CodeProcessingError, "report_generation", err).
			WithSuggestion("Check the output destination and report format settings")
	}

	srg.logger.Info("Report generation completed successfully")
	return nil
}

func (srg *SafeReportGenerator) renderConsoleFallback(result *reconciler.ReconciliationResult, writer io.Writer, cause error) error {
	config := *srg.config
	config.Format = FormatConsole
	console, err := NewReportGenerator(&config)
	if err != nil {
		return cause
	}

	fmt.Fprintf(writer, "NOTE: %s report failed (%v); console report follows\n\n", srg.config.Format, cause)
	if err := console.GenerateReport(result, writer); err != nil {
		return fmt.Errorf("%s report failed: %v; console fallback failed: %w", srg.config.Format, cause, err)
	}
	return nil
}

// ValidateResult reports problems that make a result unfit for reporting.
// Blocking diagnostics are logged but do not fail validation: a run that
// could not match still reports every record as unmatched.
func (srg *SafeReportGenerator) ValidateResult(result *reconciler.ReconciliationResult) error {
	if result == nil || result.Result == nil {
		return errors.ValidationError(errors.CodeMissingField, "result", nil, nil).
			WithSuggestion("Provide a valid reconciliation result")
	}

	if result.Pipeline.Skipped {
		srg.logger.WithField("diagnostics", len(result.Diagnostics)).Warn("Matching was skipped for this result")
	}

	if !result.Statistics.Balanced() {
		return errors.ReconciliationError(errors.CodeDataInconsistent, "", "").
			WithSuggestion("Category totals do not balance; re-run the reconciliation")
	}

	return nil
}

func describeWriter(writer io.Writer) string {
	if f, ok := writer.(*os.File); ok && f.Name() != "" {
		return "file:" + f.Name()
	}
	return fmt.Sprintf("writer:%T", writer)
}
