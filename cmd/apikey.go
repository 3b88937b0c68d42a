package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/customer-map/internal/orchestrator"
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage the runtime CRM credential override",
}

var apikeySetCmd = &cobra.Command{
	Use:   "set <key>",
	Short: "Persist a CRM credential override",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, "apikey")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := orchestrator.New(nil, nil, nil, env.Store).SetAPIKey(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "API key override saved")
		return nil
	},
}

var apikeyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the CRM credential override",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, "apikey")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := orchestrator.New(nil, nil, nil, env.Store).ClearAPIKey(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "API key override cleared")
		return nil
	},
}

func init() {
	apikeyCmd.AddCommand(apikeySetCmd, apikeyClearCmd)
	rootCmd.AddCommand(apikeyCmd)
}
