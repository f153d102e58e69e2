package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ledger-reconciliation-service/cmd/reconciler/config"
	"ledger-reconciliation-service/internal/api"
	"ledger-reconciliation-service/internal/reconciler"
	"ledger-reconciliation-service/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reconciliations over HTTP",
	Long: `Serve exposes the reconciliation engine over HTTP. Ledgers are uploaded as
multipart form files and the result is returned as JSON. With --store every
run is recorded and can be listed later.

Routes:
  POST /api/v1/reconciliations       fields: bank, system, workflow, tolerance_days, account
  GET  /api/v1/runs                  ?limit=N
  GET  /api/v1/runs/{id}
  GET  /api/v1/runs/{id}/matches
  GET  /healthz

Example:
  reconciler serve --addr :8080 --store runs.db`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	defaults := api.DefaultServerConfig()
	serveCmd.Flags().String("addr", defaults.Addr, "listen address")
	serveCmd.Flags().Duration("read-timeout", defaults.ReadTimeout, "HTTP read timeout")
	serveCmd.Flags().Duration("write-timeout", defaults.WriteTimeout, "HTTP write timeout")
	serveCmd.Flags().Duration("shutdown-timeout", defaults.ShutdownTimeout, "graceful shutdown timeout")
	serveCmd.Flags().Int("tolerance-days", 10, "default WorkflowA date window for uploads without tolerance_days")

	viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
	viper.BindPFlag("serve.read_timeout", serveCmd.Flags().Lookup("read-timeout"))
	viper.BindPFlag("serve.write_timeout", serveCmd.Flags().Lookup("write-timeout"))
	viper.BindPFlag("serve.shutdown_timeout", serveCmd.Flags().Lookup("shutdown-timeout"))
	viper.BindPFlag("serve.tolerance_days", serveCmd.Flags().Lookup("tolerance-days"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	log, err := setupLogger(logger.ServiceConfig())
	if err != nil {
		return err
	}

	serviceConfig, err := config.CreateServiceConfig(nil, viper.GetInt("serve.tolerance_days"), 0)
	if err != nil {
		return err
	}
	service, err := reconciler.NewReconciliationService(serviceConfig)
	if err != nil {
		return err
	}

	runs, closeStore, err := openStore(ctx, viper.GetString("store"))
	if err != nil {
		return err
	}
	defer closeStore()

	serverConfig := &api.ServerConfig{
		Addr:            viper.GetString("serve.addr"),
		ReadTimeout:     viper.GetDuration("serve.read_timeout"),
		WriteTimeout:    viper.GetDuration("serve.write_timeout"),
		ShutdownTimeout: viper.GetDuration("serve.shutdown_timeout"),
	}

	log.WithFields(logger.Fields{
		"addr":  serverConfig.Addr,
		"store": runs != nil,
	}).Info("Starting reconciliation API")

	server := api.NewServer(serverConfig, api.NewRouter(service, runs, log))
	return server.Run(ctx)
}
