package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/alnah/go-claimpdf/internal/config"
)

// envConfig holds configuration from environment variables.
// Provides deployment-friendly overrides without requiring YAML files.
type envConfig struct {
	// Tier 1 - Essential
	ConfigPath string        // CLAIMPDF_CONFIG: config file name or path
	Timeout    time.Duration // CLAIMPDF_TIMEOUT: per-attempt render timeout
	Logo       string        // CLAIMPDF_LOGO: logo image reference

	// Tier 2 - Backends
	StorageBackend string // CLAIMPDF_STORAGE_BACKEND: memory, gcs, s3, drive
	StorageBucket  string // CLAIMPDF_STORAGE_BUCKET: gcs/s3 bucket
	RecordsBackend string // CLAIMPDF_RECORDS_BACKEND: memory, sheets, firestore, sqlite
	RecordsPath    string // CLAIMPDF_RECORDS_PATH: sqlite database file
	RecordsSheetID string // CLAIMPDF_RECORDS_SPREADSHEET_ID: sheets record table
	ProjectID      string // CLAIMPDF_PROJECT_ID: firestore project
	LocksBackend   string // CLAIMPDF_LOCKS_BACKEND: local, redis
	RedisAddr      string // CLAIMPDF_REDIS_ADDR: redis host:port

	// Tier 3 - Extended
	LegacySheetID string // CLAIMPDF_LEGACY_SPREADSHEET_ID: enables the legacy renderer
	AssetPath     string // CLAIMPDF_ASSET_PATH: custom asset directory
	Folder        string // CLAIMPDF_FOLDER: document folder
	PageSize      string // CLAIMPDF_PAGE_SIZE: a4, letter, legal
}

// knownEnvVars lists valid CLAIMPDF_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	// Tier 1 - Essential
	"CLAIMPDF_CONFIG":  true,
	"CLAIMPDF_TIMEOUT": true,
	"CLAIMPDF_LOGO":    true,
	// Tier 2 - Backends
	"CLAIMPDF_STORAGE_BACKEND":        true,
	"CLAIMPDF_STORAGE_BUCKET":         true,
	"CLAIMPDF_RECORDS_BACKEND":        true,
	"CLAIMPDF_RECORDS_PATH":           true,
	"CLAIMPDF_RECORDS_SPREADSHEET_ID": true,
	"CLAIMPDF_PROJECT_ID":             true,
	"CLAIMPDF_LOCKS_BACKEND":          true,
	"CLAIMPDF_REDIS_ADDR":             true,
	// Tier 3 - Extended
	"CLAIMPDF_LEGACY_SPREADSHEET_ID": true,
	"CLAIMPDF_ASSET_PATH":            true,
	"CLAIMPDF_FOLDER":                true,
	"CLAIMPDF_PAGE_SIZE":             true,
	"CLAIMPDF_CONTAINER":             true, // read by doctor
}

// loadEnvConfig reads configuration from environment variables.
// Returns a struct with all recognized CLAIMPDF_* values.
func loadEnvConfig() *envConfig {
	cfg := &envConfig{
		// Tier 1
		ConfigPath: os.Getenv("CLAIMPDF_CONFIG"),
		Logo:       os.Getenv("CLAIMPDF_LOGO"),
		// Tier 2
		StorageBackend: os.Getenv("CLAIMPDF_STORAGE_BACKEND"),
		StorageBucket:  os.Getenv("CLAIMPDF_STORAGE_BUCKET"),
		RecordsBackend: os.Getenv("CLAIMPDF_RECORDS_BACKEND"),
		RecordsPath:    os.Getenv("CLAIMPDF_RECORDS_PATH"),
		RecordsSheetID: os.Getenv("CLAIMPDF_RECORDS_SPREADSHEET_ID"),
		ProjectID:      os.Getenv("CLAIMPDF_PROJECT_ID"),
		LocksBackend:   os.Getenv("CLAIMPDF_LOCKS_BACKEND"),
		RedisAddr:      os.Getenv("CLAIMPDF_REDIS_ADDR"),
		// Tier 3
		LegacySheetID: os.Getenv("CLAIMPDF_LEGACY_SPREADSHEET_ID"),
		AssetPath:     os.Getenv("CLAIMPDF_ASSET_PATH"),
		Folder:        os.Getenv("CLAIMPDF_FOLDER"),
		PageSize:      os.Getenv("CLAIMPDF_PAGE_SIZE"),
	}

	if timeout := os.Getenv("CLAIMPDF_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}

	return cfg
}

// warnUnknownEnvVars logs warnings for unrecognized CLAIMPDF_* variables.
func warnUnknownEnvVars(w io.Writer) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "CLAIMPDF_") {
			name := strings.SplitN(env, "=", 2)[0]
			if !knownEnvVars[name] {
				fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
			}
		}
	}
}

// applyEnvConfig applies set environment variables over cfg.
// LoadConfig already merges the file over defaults, so a set variable wins
// over both; flags are applied afterwards and win over everything.
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	set(&cfg.Document.Logo, env.Logo)

	set(&cfg.Storage.Backend, env.StorageBackend)
	set(&cfg.Storage.Bucket, env.StorageBucket)
	set(&cfg.Records.Backend, env.RecordsBackend)
	set(&cfg.Records.Path, env.RecordsPath)
	set(&cfg.Records.SpreadsheetID, env.RecordsSheetID)
	set(&cfg.Records.ProjectID, env.ProjectID)
	set(&cfg.Locks.Backend, env.LocksBackend)
	set(&cfg.Locks.RedisAddr, env.RedisAddr)

	// Legacy spreadsheet (auto-enable)
	if env.LegacySheetID != "" {
		cfg.Legacy.SpreadsheetID = env.LegacySheetID
		cfg.Legacy.Enabled = true
	}
	set(&cfg.Assets.BasePath, env.AssetPath)
	set(&cfg.Document.Folder, env.Folder)
	set(&cfg.Page.Size, env.PageSize)
}
