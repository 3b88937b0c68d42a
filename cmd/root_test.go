//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "sync", "geocode", "apikey"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "customer-map", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestGeocodeCommand_Flags(t *testing.T) {
	flag := geocodeCmd.Flags().Lookup("json")
	require.NotNil(t, flag, "geocode command should have --json flag")
	assert.Equal(t, "false", flag.DefValue)
	assert.Error(t, geocodeCmd.Args(geocodeCmd, nil))
}

func TestAPIKeyCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range apikeyCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["set"])
	assert.True(t, names["clear"])

	assert.Error(t, apikeySetCmd.Args(apikeySetCmd, nil))
	assert.NoError(t, apikeySetCmd.Args(apikeySetCmd, []string{"pat-123"}))
	assert.Error(t, apikeyClearCmd.Args(apikeyClearCmd, []string{"extra"}))
}

func TestRootCommand_LogLevelFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, flag)
	assert.Empty(t, flag.DefValue)
}
