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

	expected := []string{"migrate", "process", "serve", "ingest", "corrections", "alerts", "lineage", "templates"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "refinery", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
}

func TestProcessCommand_Flags(t *testing.T) {
	for _, flagName := range []string{"entry", "reprocess", "limit"} {
		flag := processCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "process should have --%s flag", flagName)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestIngestCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range ingestCmd.Commands() {
		names[c.Name()] = true
	}

	assert.True(t, names["xlsx"])
	assert.True(t, names["ftp"])
	assert.True(t, names["text"])
}

func TestCorrectionsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range correctionsCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"submit", "approve", "reject", "implement", "revert", "queue", "impact", "annotate", "annotations"}
	for _, name := range expected {
		assert.True(t, names[name], "corrections should have subcommand %q", name)
	}
}

func TestAlertsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range alertsCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"list", "acknowledge", "resolve"} {
		assert.True(t, names[name], "alerts should have subcommand %q", name)
	}
}

func TestTemplatesCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range templatesCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"seed", "list", "assign"} {
		assert.True(t, names[name], "templates should have subcommand %q", name)
	}
}

func TestLineageCommand_GraphFlags(t *testing.T) {
	for _, flagName := range []string{"direction", "depth"} {
		flag := lineageGraphCmd.Flags().Lookup(flagName)
		assert.NotNil(t, flag, "lineage graph should have --%s flag", flagName)
	}
}
