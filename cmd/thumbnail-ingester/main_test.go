package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ExitCodes(t *testing.T) {
	t.Run("missing configuration", func(t *testing.T) {
		t.Setenv("STORE_URI", "")
		t.Setenv("DEFAULT_BATCH_SIZE", "")
		assert.Equal(t, 1, run(nil))
	})

	t.Run("missing source", func(t *testing.T) {
		t.Setenv("STORE_URI", "memory://")
		t.Setenv("DEFAULT_BATCH_SIZE", "10")
		assert.Equal(t, 1, run([]string{"--source", filepath.Join(t.TempDir(), "nope.csv")}))
	})

	t.Run("completed run with bad rows", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "data.csv")
		require.NoError(t, os.WriteFile(path, []byte("index,id,url\nx,a,https://example.com/a.png\n"), 0o600))
		t.Setenv("STORE_URI", "memory://")
		t.Setenv("DEFAULT_BATCH_SIZE", "10")
		assert.Equal(t, 0, run([]string{"--source", path, "--batch-size", "2"}))
	})

	t.Run("invalid batch size flag", func(t *testing.T) {
		t.Setenv("STORE_URI", "memory://")
		t.Setenv("DEFAULT_BATCH_SIZE", "10")
		assert.Equal(t, 1, run([]string{"--batch-size", "0"}))
	})
}

func TestNewRootCmd_Flags(t *testing.T) {
	cmd := newRootCmd(new(slog.LevelVar))
	assert.NotNil(t, cmd.Flags().Lookup("source"))
	assert.NotNil(t, cmd.Flags().Lookup("batch-size"))
}
