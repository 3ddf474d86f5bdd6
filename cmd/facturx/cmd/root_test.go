package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_ClosesLogOnFailure(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "facturx.log")
	t.Setenv("LOG_OUTPUT", logPath)
	t.Setenv("LOG_FORMAT", "json")
	t.Cleanup(func() { rootCmd.SetArgs([]string{}) })

	rootCmd.SetArgs([]string{"extract", filepath.Join(dir, "missing.pdf")})
	require.Error(t, Execute())

	assert.FileExists(t, logPath)
	assert.Nil(t, logCloser, "log output left open after a failed command")

	// a second run opens the output afresh
	rootCmd.SetArgs([]string{"extract", filepath.Join(dir, "missing.pdf")})
	require.Error(t, Execute())
	assert.Nil(t, logCloser)
}
