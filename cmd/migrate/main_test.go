package main

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	require.ElementsMatch(t, []string{"up", "down", "status"}, names)
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Setenv("PG_DSN", "")
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"up"})
	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "PG_DSN is required")
}

func TestMigrateRejectsMalformedDSN(t *testing.T) {
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"status", "--dsn", "postgres://%zz"})
	err := root.Execute()
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse dsn")
}
