package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, extra string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "cfg.yaml")
	data := "whisper:\n  host: 127.0.0.1\n  port: 1\n  output_folder: " + t.TempDir() + "\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	return path
}

func TestAppMainExitCodes(t *testing.T) {
	missingFolder := filepath.Join(t.TempDir(), "missing")

	tests := []struct {
		name string
		args []string
		want int
	}{
		{
			name: "unknown flag",
			args: []string{"-bogus"},
			want: 2,
		},
		{
			name: "missing config",
			args: []string{"-cfg-path", filepath.Join(t.TempDir(), "none.yaml")},
			want: 1,
		},
		{
			name: "ledger init fails",
			args: []string{"-cfg-path", writeConfig(t, "ledger:\n  driver: mysql\n  conn_str: x\n"), "-folder", missingFolder},
			want: 1,
		},
		{
			name: "invalid views",
			args: []string{"-cfg-path", writeConfig(t, ""), "-views", "full,nope", "-folder", missingFolder},
			want: 1,
		},
		{
			name: "missing folder is not fatal",
			args: []string{"-cfg-path", writeConfig(t, ""), "-folder", missingFolder},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, appMain(tt.args))
		})
	}
}
