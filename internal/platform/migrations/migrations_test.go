package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsAreGooseAnnotated(t *testing.T) {
	entries, err := fs.ReadDir(files, dir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		body, err := fs.ReadFile(files, dir+"/"+entry.Name())
		require.NoError(t, err)
		text := string(body)
		require.True(t, strings.Contains(text, "-- +goose Up"), entry.Name())
		require.True(t, strings.Contains(text, "-- +goose Down"), entry.Name())
	}
}

func TestInitialSchemaCascadesPayments(t *testing.T) {
	body, err := fs.ReadFile(files, dir+"/00001_init.sql")
	require.NoError(t, err)
	text := string(body)
	for _, table := range []string{"invoice_payments", "driver_invoice_payments"} {
		require.Contains(t, text, "CREATE TABLE "+table)
	}
	require.Contains(t, text, "REFERENCES invoices(id) ON DELETE CASCADE")
	require.Contains(t, text, "REFERENCES driver_invoices(id) ON DELETE CASCADE")
}
