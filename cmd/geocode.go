package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var geocodeJSON bool

var geocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Resolve one address through the cached geocoder",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, cfg, "geocode")
		if err != nil {
			return err
		}
		defer env.Close()

		address := strings.Join(args, " ")
		res := env.Geocoder.Resolve(ctx, address)

		out := cmd.OutOrStdout()
		if geocodeJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return eris.Wrap(err, "encode result")
			}
			return nil
		}

		if res == nil {
			fmt.Fprintf(out, "No match for %q\n", address)
			return nil
		}
		fmt.Fprintf(out, "%.6f, %.6f  %s\n", res.Latitude, res.Longitude, res.DisplayName)
		return nil
	},
}

func init() {
	geocodeCmd.Flags().BoolVar(&geocodeJSON, "json", false, "print the result as JSON")
	rootCmd.AddCommand(geocodeCmd)
}
