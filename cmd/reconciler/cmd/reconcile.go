package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ledger-reconciliation-service/cmd/reconciler/config"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/reporter"
	"ledger-reconciliation-service/internal/workflow"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

// Flags for the reconcile command
var (
	bankFile       string
	systemFile     string
	workflowChoice string
	toleranceDays  int
	outputFormat   string
	outputFile     string
	includeMatched bool
	maxListItems   int
	exportDir      string
	exportPrefix   string
	exportCSV      bool
	exportWorkbook bool
	delimiter      string
	workers        int
	showProgress   bool
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a bank statement with the system ledger",
	Long: `Reconcile matches every bank statement movement against the accounting
system ledger of the same account and reports verified pairs, unmatched
records on each side, category totals and data quality findings.

The matching workflow is chosen from the bank file name unless --workflow
forces one:
  WorkflowA  accounts 4103, 4355, 10377 and anything unrecognised. Joins on
             the last three characters of the document number, compares
             truncated amounts and accepts the system date up to
             --tolerance-days after the bank date.
  WorkflowB  Servima, Scotia and Mato statements. Joins on the truncated
             debit and credit legs and accepts the bank date up to three
             days after the system date.

Examples:
  # Console summary
  reconciler reconcile --bank extracto_4103.xlsx --system auxiliar_4103.xlsx

  # JSON report to a file plus CSV and workbook artifacts
  reconciler reconcile -b scotia.xls -s sistema.xlsx -f json -o report.json --export-dir out/

  # Force WorkflowA with a five day window and record the run
  reconciler reconcile -b bank.csv -s ledger.csv -w a -t 5 --store runs.db`,

	PreRunE: validateReconcileFlags,
	RunE:    runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	// Input flags
	reconcileCmd.Flags().StringVarP(&bankFile, "bank", "b", "", "bank statement file: .csv, .xlsx or .xls (required)")
	reconcileCmd.Flags().StringVarP(&systemFile, "system", "s", "", "system ledger file: .csv, .xlsx or .xls (required)")
	reconcileCmd.Flags().StringVar(&delimiter, "delimiter", "", "CSV delimiter (default: sniffed)")

	// Matching flags
	reconcileCmd.Flags().StringVarP(&workflowChoice, "workflow", "w", "auto", "matching workflow: auto, a, b")
	reconcileCmd.Flags().IntVarP(&toleranceDays, "tolerance-days", "t", workflow.DefaultToleranceDays, "WorkflowA date window in days (0-15)")
	reconcileCmd.Flags().IntVar(&workers, "workers", 0, "candidate classification workers (default: matcher default)")

	// Report flags
	reconcileCmd.Flags().StringVarP(&outputFormat, "format", "f", "console", "report format: console, json, yaml")
	reconcileCmd.Flags().StringVarP(&outputFile, "output", "o", "", "report file path (default: stdout)")
	reconcileCmd.Flags().BoolVar(&includeMatched, "include-matched", false, "list matched pairs in the console report")
	reconcileCmd.Flags().IntVar(&maxListItems, "max-items", 10, "records listed per console section (0 lists all)")

	// Export flags
	reconcileCmd.Flags().StringVar(&exportDir, "export-dir", "", "directory for CSV and workbook artifacts (default: no export)")
	reconcileCmd.Flags().StringVar(&exportPrefix, "export-prefix", "", "file name prefix for exported artifacts")
	reconcileCmd.Flags().BoolVar(&exportCSV, "csv", true, "export CSV artifacts")
	reconcileCmd.Flags().BoolVar(&exportWorkbook, "xlsx", true, "export the compiled workbook")

	// UI flags
	reconcileCmd.Flags().BoolVar(&showProgress, "progress", false, "show progress indicators")

	reconcileCmd.MarkFlagRequired("bank")
	reconcileCmd.MarkFlagRequired("system")

	viper.BindPFlag("bank", reconcileCmd.Flags().Lookup("bank"))
	viper.BindPFlag("system", reconcileCmd.Flags().Lookup("system"))
	viper.BindPFlag("delimiter", reconcileCmd.Flags().Lookup("delimiter"))
	viper.BindPFlag("workflow", reconcileCmd.Flags().Lookup("workflow"))
	viper.BindPFlag("tolerance-days", reconcileCmd.Flags().Lookup("tolerance-days"))
	viper.BindPFlag("workers", reconcileCmd.Flags().Lookup("workers"))
	viper.BindPFlag("format", reconcileCmd.Flags().Lookup("format"))
	viper.BindPFlag("output", reconcileCmd.Flags().Lookup("output"))
	viper.BindPFlag("include-matched", reconcileCmd.Flags().Lookup("include-matched"))
	viper.BindPFlag("max-items", reconcileCmd.Flags().Lookup("max-items"))
	viper.BindPFlag("export-dir", reconcileCmd.Flags().Lookup("export-dir"))
	viper.BindPFlag("export-prefix", reconcileCmd.Flags().Lookup("export-prefix"))
	viper.BindPFlag("csv", reconcileCmd.Flags().Lookup("csv"))
	viper.BindPFlag("xlsx", reconcileCmd.Flags().Lookup("xlsx"))
	viper.BindPFlag("progress", reconcileCmd.Flags().Lookup("progress"))
}

func validateReconcileFlags(cmd *cobra.Command, args []string) error {
	// Get values from viper (allows override from config file and env)
	bankFile = viper.GetString("bank")
	systemFile = viper.GetString("system")
	delimiter = viper.GetString("delimiter")
	workflowChoice = viper.GetString("workflow")
	toleranceDays = viper.GetInt("tolerance-days")
	workers = viper.GetInt("workers")
	outputFormat = viper.GetString("format")
	outputFile = viper.GetString("output")
	includeMatched = viper.GetBool("include-matched")
	maxListItems = viper.GetInt("max-items")
	exportDir = viper.GetString("export-dir")
	exportPrefix = viper.GetString("export-prefix")
	exportCSV = viper.GetBool("csv")
	exportWorkbook = viper.GetBool("xlsx")
	showProgress = viper.GetBool("progress")

	if bankFile == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "bank", "", nil)
	}
	if systemFile == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "system", "", nil)
	}

	if err := validateFileExists(bankFile, "bank statement"); err != nil {
		return err
	}
	if err := validateFileExists(systemFile, "system ledger"); err != nil {
		return err
	}

	if _, err := workflow.Resolve(workflowChoice); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "workflow", workflowChoice, err)
	}
	if err := config.ValidateToleranceDays(toleranceDays); err != nil {
		return err
	}
	if !reporter.OutputFormat(strings.ToLower(outputFormat)).IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "format", outputFormat, nil).
			WithSuggestion("Valid formats: console, json, yaml")
	}
	if maxListItems < 0 {
		return errors.ConfigurationError(errors.CodeOutOfRange, "max-items", maxListItems, nil)
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeDirectoryError, dir, err).
					WithSuggestion("Create the output directory first")
			}
		}
	}

	return nil
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return fmt.Errorf("%s path cannot be empty", description)
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, fmt.Errorf("%s", FormatFileError(description, filePath, err)))
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeDirectoryError, filePath, fmt.Errorf("%s is a directory, expected a file", description))
	}

	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}
	file.Close()

	return nil
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	log, err := setupLogger(logger.DefaultConfig())
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()

	if viper.GetBool("verbose") {
		fmt.Fprintf(stderr, "Starting reconciliation...\n")
		fmt.Fprintf(stderr, "Bank file: %s\n", bankFile)
		fmt.Fprintf(stderr, "System file: %s\n", systemFile)
		fmt.Fprintf(stderr, "Workflow: %s\n", workflowChoice)
		fmt.Fprintf(stderr, "Report format: %s\n", outputFormat)
		if outputFile != "" {
			fmt.Fprintf(stderr, "Report file: %s\n", outputFile)
		}
	}

	parserConfig, err := config.CreateNormalizerConfig(delimiter, 0)
	if err != nil {
		return err
	}
	serviceConfig, err := config.CreateServiceConfig(parserConfig, toleranceDays, workers)
	if err != nil {
		return err
	}
	reportConfig, err := config.CreateReportConfig(outputFormat, includeMatched, maxListItems)
	if err != nil {
		return err
	}
	exportConfig, err := config.CreateExportConfig(exportDir, exportPrefix, exportCSV, exportWorkbook)
	if err != nil {
		return err
	}

	service, err := reconciler.NewReconciliationService(serviceConfig)
	if err != nil {
		return err
	}
	if showProgress {
		service.AddProgressCallback(func(progress reconciler.Progress) {
			fmt.Fprintf(stderr, "\r[%d/%d] %s (%.1f%% complete)",
				progress.Completed, progress.Total, progress.Step, progress.PercentComplete())
			if progress.Completed == progress.Total {
				fmt.Fprintf(stderr, "\n")
			}
		})
	}

	p := &pipeline{service: service, logger: log.WithComponent("reconcile")}
	if exportConfig != nil {
		if p.exporter, err = reporter.NewExporter(exportConfig); err != nil {
			return err
		}
	}
	runs, closeStore, err := openStore(ctx, viper.GetString("store"))
	if err != nil {
		return err
	}
	defer closeStore()
	p.runs = runs

	outcome, err := p.run(ctx, bankFile, systemFile, workflowChoice, &toleranceDays)
	if err != nil {
		return err
	}
	result := outcome.Result

	generator, err := reporter.NewSafeReportGenerator(reportConfig, log)
	if err != nil {
		return err
	}

	var output io.Writer = cmd.OutOrStdout()
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, outputFile, err)
		}
		defer file.Close()
		output = file
	}

	if err := generator.GenerateReportSafely(result, output); err != nil {
		return err
	}

	if viper.GetBool("verbose") {
		stats := result.Statistics
		fmt.Fprintf(stderr, "\nReconciliation completed successfully.\n")
		fmt.Fprintf(stderr, "Workflow %s over %d bank and %d system records.\n",
			result.Workflow, stats.TotalBank, stats.TotalSystem)
		fmt.Fprintf(stderr, "Matched %d pairs, %d bank and %d system records unmatched (%.2f%% verified).\n",
			stats.Matched, stats.UnmatchedBank, stats.UnmatchedSystem, stats.PercentVerified)
		if n := len(result.Diagnostics); n > 0 {
			fmt.Fprintf(stderr, "Raised %d diagnostics.\n", n)
		}
		fmt.Fprintf(stderr, "Processing time: %v\n", result.Duration)
	}
	for _, path := range outcome.Artifacts {
		fmt.Fprintf(stderr, "Wrote %s\n", path)
	}
	if outcome.RunID != "" {
		fmt.Fprintf(stderr, "Recorded run %s\n", outcome.RunID)
	}

	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
