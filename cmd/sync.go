package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/customer-map/internal/customer"
	"github.com/sells-group/customer-map/internal/orchestrator"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle and print a summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, cfg, "sync")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.initOrchestrator(cfg); err != nil {
			return err
		}

		orch := env.Orchestrator
		orch.LoadAPIKey(ctx)
		if err := orch.LoadSeed(ctx); err != nil {
			return err
		}

		res, err := orch.SyncNow(ctx)
		if err != nil {
			return err
		}

		printSyncSummary(cmd.OutOrStdout(), res, customer.Summarize(orch.View()))
		return nil
	},
}

func printSyncSummary(w io.Writer, res *orchestrator.SyncResult, s customer.Summary) {
	fmt.Fprintf(w, "Sync %s finished in %s\n", res.RunID, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Fetched from CRM:  %d\n", res.Fetched)
	fmt.Fprintf(w, "  Geocoded this run: %d\n", res.Geocoded)
	fmt.Fprintf(w, "  Total records:     %d\n", s.Total)
	fmt.Fprintf(w, "    seed:            %d\n", s.Seed)
	fmt.Fprintf(w, "    live:            %d\n", s.Live)
	fmt.Fprintf(w, "    merged:          %d\n", s.Merged)
	fmt.Fprintf(w, "  With coordinates:  %d (%.1f%%)\n", s.Geocoded, s.Coverage()*100)
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
