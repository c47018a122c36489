package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigCommandMerges(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.yaml")
	over := filepath.Join(dir, "over.yaml")
	require.NoError(t, os.WriteFile(base, []byte("a:\n  x: 1\n  y: 2\n"), 0644))
	require.NoError(t, os.WriteFile(over, []byte("a:\n  y: 3\n  z: 4\n"), 0644))

	out, err := execute(t, "config", base, over)
	require.NoError(t, err)
	assert.Equal(t, "a:\n  x: 1\n  y: 3\n  z: 4\n", out)
}

func TestConfigCommandMissingFile(t *testing.T) {
	_, err := execute(t, "config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestPricesCommandWithMockProvider(t *testing.T) {
	cache := t.TempDir()
	t.Setenv("QUANTFEED_PROVIDER", "mock")
	t.Setenv("QUANTFEED_CACHE_DIR", cache)
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "history.db"))

	out, err := execute(t, "prices", "AAPL", "MSFT",
		"--env-file", filepath.Join(t.TempDir(), "absent.env"),
		"--start", "2024-01-01", "--end", "2024-01-05", "--format", "csv")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 6, "header plus five weekdays")
	assert.Equal(t, "date,AAPL,MSFT", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2024-01-01,"))

	_, err = os.Stat(filepath.Join(cache, "prices_AAPL_MSFT_2024-01-01_2024-01-05.csv"))
	assert.NoError(t, err)

	out, err = execute(t, "history", "--env-file", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Contains(t, out, "provider")
	assert.Contains(t, out, "AAPL,MSFT")
}
