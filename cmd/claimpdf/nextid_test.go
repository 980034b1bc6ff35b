package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alnah/go-claimpdf/internal/lock"
)

// ---------------------------------------------------------------------------
// TestRunNextID - Stubbed allocator
// ---------------------------------------------------------------------------

func TestRunNextID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		args       []string
		allocErr   error
		wantCode   int
		wantPrefix string
		wantOut    string
	}{
		{
			name:       "today",
			args:       []string{"next-id"},
			wantCode:   ExitSuccess,
			wantPrefix: "CLM-20260114",
			wantOut:    "CLM-20260114-0042\n",
		},
		{
			name:       "explicit date",
			args:       []string{"next-id", "--date", "2025-12-31"},
			wantCode:   ExitSuccess,
			wantPrefix: "CLM-20251231",
			wantOut:    "CLM-20260114-0042\n",
		},
		{
			name:     "bad date",
			args:     []string{"next-id", "-d", "31/12/2025"},
			wantCode: ExitUsage,
		},
		{
			name:     "stray argument",
			args:     []string{"next-id", "extra"},
			wantCode: ExitUsage,
		},
		{
			name:     "lock timeout",
			args:     []string{"next-id"},
			allocErr: fmt.Errorf("sequence: %w", lock.ErrTimeout),
			wantCode: ExitLockTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			te := newTestEnv(&stubGenerator{})
			te.alloc.err = tt.allocErr

			code := runMain(context.Background(), append([]string{"claimpdf"}, tt.args...), te.Environment)
			if code != tt.wantCode {
				t.Fatalf("exit code = %d, want %d (stderr: %s)", code, tt.wantCode, te.stderr.String())
			}
			if tt.wantPrefix != "" && te.alloc.prefix != tt.wantPrefix {
				t.Errorf("prefix = %q, want %q", te.alloc.prefix, tt.wantPrefix)
			}
			if te.stdout.String() != tt.wantOut {
				t.Errorf("stdout = %q, want %q", te.stdout.String(), tt.wantOut)
			}
			if tt.allocErr != nil && !strings.Contains(te.stderr.String(), "hint:") {
				t.Errorf("stderr = %q, want a hint", te.stderr.String())
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestRunNextID_SQLiteConfig - Real backends from a config file
// ---------------------------------------------------------------------------

func TestRunNextID_SQLiteConfig(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "records.db")
	seedSQLite(t, dbPath, "WC-20260114-0003", "WC-20260114-0011", "WC-20260115-0500")

	cfgPath := writeConfig(t, fmt.Sprintf(`
document:
  idFormat: "[WC-]YYYYMMDD"
  requireLogo: false
records:
  backend: sqlite
  path: %q
`, dbPath))

	te := newTestEnv(&stubGenerator{})
	te.Build = buildServices

	code := runMain(context.Background(),
		[]string{"claimpdf", "next-id", "--config", cfgPath, "--date", "2026-01-14", "-q"}, te.Environment)
	if code != ExitSuccess {
		t.Fatalf("exit code = %d (stderr: %s)", code, te.stderr.String())
	}
	if got := te.stdout.String(); got != "WC-20260114-0012\n" {
		t.Errorf("stdout = %q, want WC-20260114-0012", got)
	}
}
