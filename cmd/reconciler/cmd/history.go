package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ledger-reconciliation-service/internal/store"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded reconciliation runs",
	Long: `History lists the runs recorded with --store, most recent first. With
--run it prints the matched pairs of a single run instead.

Examples:
  reconciler history --store runs.db --limit 5
  reconciler history --store runs.db --run 3f1c... --json`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().Int("limit", store.DefaultListLimit, "number of runs to list")
	historyCmd.Flags().String("run", "", "print the matched pairs of this run")
	historyCmd.Flags().Bool("json", false, "print JSON instead of a table")

	viper.BindPFlag("history.limit", historyCmd.Flags().Lookup("limit"))
	viper.BindPFlag("history.run", historyCmd.Flags().Lookup("run"))
	viper.BindPFlag("history.json", historyCmd.Flags().Lookup("json"))
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	if _, err := setupLogger(logger.DefaultConfig()); err != nil {
		return err
	}

	dsn := viper.GetString("store")
	if dsn == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "store", "", nil).
			WithSuggestion("Pass --store or set RECONCILER_STORE")
	}
	runs, closeStore, err := openStore(ctx, dsn)
	if err != nil {
		return err
	}
	defer closeStore()

	out := cmd.OutOrStdout()
	asJSON := viper.GetBool("history.json")

	if runID := viper.GetString("history.run"); runID != "" {
		matches, err := runs.ListMatches(ctx, runID)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, matches)
		}
		return writeMatchTable(out, matches)
	}

	list, err := runs.ListRuns(ctx, viper.GetInt("history.limit"))
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(out, list)
	}
	return writeRunTable(out, list)
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeRunTable(w io.Writer, runs []*store.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tWORKFLOW\tBANK\tMATCHED\tUNMATCHED BANK\tUNMATCHED SYSTEM\tVERIFIED")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%.2f%%\n",
			run.ID, run.CreatedAt.Format(time.RFC3339), run.Workflow, run.BankSource,
			run.Matched, run.UnmatchedBank, run.UnmatchedSystem, run.PercentVerified)
	}
	return tw.Flush()
}

func writeMatchTable(w io.Writer, matches []store.RunMatch) error {
	if len(matches) == 0 {
		_, err := fmt.Fprintln(w, "No matched pairs.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tBANK\tSYSTEM\tKEY\tBANK DATE\tSYSTEM DATE\tOFFSET\tQUALITY")
	for _, m := range matches {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\t%+d\t%s\n",
			m.Seq, m.BankID, m.SystemID, m.Key, m.BankDate, m.SystemDate, m.DayOffset, m.Quality)
	}
	return tw.Flush()
}
