package cmd

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ledger-reconciliation-service/cmd/reconciler/config"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/internal/reporter"
	"ledger-reconciliation-service/internal/store"
	"ledger-reconciliation-service/pkg/logger"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run reconciliations on a cron schedule",
	Long: `Schedule runs the reconciliations listed in a YAML job file on their cron
expressions until interrupted. Each run is normalized, reconciled, exported
to the job's export_dir (when set) and recorded in --store (when set).

Job file:
  jobs:
    - name: daily-4103
      cron: "0 6 * * *"
      bank_file: /data/extracto_4103.xlsx
      system_file: /data/auxiliar_4103.xlsx
      workflow: auto          # auto, a or b
      tolerance_days: 10
      export_dir: /data/out

Example:
  reconciler schedule --jobs jobs.yaml --store runs.db
  reconciler schedule --jobs jobs.yaml --once`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().String("jobs", "", "YAML job file (required)")
	scheduleCmd.Flags().Bool("once", false, "run every job once and exit")

	viper.BindPFlag("schedule.jobs", scheduleCmd.Flags().Lookup("jobs"))
	viper.BindPFlag("schedule.once", scheduleCmd.Flags().Lookup("once"))
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	log, err := setupLogger(logger.ServiceConfig())
	if err != nil {
		return err
	}
	log = log.WithComponent("scheduler")

	jobsFile := viper.GetString("schedule.jobs")
	if jobsFile == "" {
		return fmt.Errorf("--jobs is required")
	}
	jobs, err := config.LoadJobs(jobsFile)
	if err != nil {
		return err
	}

	service, err := reconciler.NewReconciliationService(nil)
	if err != nil {
		return err
	}
	runs, closeStore, err := openStore(ctx, viper.GetString("store"))
	if err != nil {
		return err
	}
	defer closeStore()

	if viper.GetBool("schedule.once") {
		var failed int
		for _, job := range jobs {
			if err := runJob(ctx, service, runs, job, log); err != nil {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d jobs failed", failed, len(jobs))
		}
		return nil
	}

	adapter := cronLogger{log: log}
	scheduler := cron.New(cron.WithChain(
		cron.Recover(adapter),
		cron.SkipIfStillRunning(adapter),
	), cron.WithLogger(adapter))

	for _, job := range jobs {
		job := job
		id, err := scheduler.AddFunc(job.Cron, func() {
			runJob(ctx, service, runs, job, log)
		})
		if err != nil {
			return err
		}
		log.WithFields(logger.Fields{
			"job":      job.Name,
			"cron":     job.Cron,
			"entry_id": int(id),
		}).Info("Job scheduled")
	}

	scheduler.Start()
	<-ctx.Done()
	log.Info("Stopping scheduler")
	<-scheduler.Stop().Done()
	return nil
}

// runJob runs one job through the pipeline and logs its outcome. The error
// is returned for --once bookkeeping.
func runJob(ctx context.Context, service *reconciler.ReconciliationService, runs store.RunStore, job config.Job, log logger.Logger) error {
	op := logger.NewOperationLogger("scheduled_reconciliation", log).WithField("job", job.Name)

	p := &pipeline{service: service, runs: runs, logger: log}
	exportConfig, err := config.CreateExportConfig(job.ExportDir, job.Name+"_", true, true)
	if err != nil {
		op.Error(err, "Invalid export directory")
		return err
	}
	if exportConfig != nil {
		if p.exporter, err = reporter.NewExporter(exportConfig); err != nil {
			op.Error(err, "Failed to create exporter")
			return err
		}
	}

	outcome, err := p.run(ctx, job.BankFile, job.SystemFile, job.Workflow, job.ToleranceDays)
	if err != nil {
		op.Error(err, "Scheduled reconciliation failed")
		return err
	}

	stats := outcome.Result.Statistics
	op.Step("reconciled", logger.Fields{
		"workflow":         outcome.Result.Workflow.String(),
		"matched":          stats.Matched,
		"percent_verified": stats.PercentVerified,
		"artifacts":        len(outcome.Artifacts),
		"run_id":           outcome.RunID,
	})
	op.Success("Scheduled reconciliation completed")
	return nil
}

// cronLogger routes cron's own logging through the structured logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(pairs(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(pairs(keysAndValues)).Error(msg)
}

func pairs(keysAndValues []interface{}) logger.Fields {
	fields := make(logger.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
