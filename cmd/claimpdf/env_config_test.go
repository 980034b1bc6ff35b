package main

// Notes:
// - Tests use t.Setenv() which prevents t.Parallel() at parent level.
// - applyEnvConfig: set variables win over file values; unset ones leave
//   the config alone.

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/alnah/go-claimpdf/internal/config"
)

// ---------------------------------------------------------------------------
// TestLoadEnvConfig - Environment variable loading
// ---------------------------------------------------------------------------

func TestLoadEnvConfig(t *testing.T) {
	t.Run("Tier 1 - Essential", func(t *testing.T) {
		t.Setenv("CLAIMPDF_CONFIG", "/etc/claimpdf/prod.yaml")
		t.Setenv("CLAIMPDF_TIMEOUT", "2m")
		t.Setenv("CLAIMPDF_LOGO", "gs://brand/logo.png")

		cfg := loadEnvConfig()

		if cfg.ConfigPath != "/etc/claimpdf/prod.yaml" {
			t.Errorf("ConfigPath = %q", cfg.ConfigPath)
		}
		if cfg.Timeout != 2*time.Minute {
			t.Errorf("Timeout = %v, want 2m", cfg.Timeout)
		}
		if cfg.Logo != "gs://brand/logo.png" {
			t.Errorf("Logo = %q", cfg.Logo)
		}
	})

	t.Run("Tier 2 - Backends", func(t *testing.T) {
		t.Setenv("CLAIMPDF_STORAGE_BACKEND", "gcs")
		t.Setenv("CLAIMPDF_STORAGE_BUCKET", "claims-prod")
		t.Setenv("CLAIMPDF_RECORDS_BACKEND", "firestore")
		t.Setenv("CLAIMPDF_PROJECT_ID", "acme-claims")
		t.Setenv("CLAIMPDF_LOCKS_BACKEND", "redis")
		t.Setenv("CLAIMPDF_REDIS_ADDR", "redis:6379")

		cfg := loadEnvConfig()

		if cfg.StorageBackend != "gcs" || cfg.StorageBucket != "claims-prod" {
			t.Errorf("storage = %q/%q", cfg.StorageBackend, cfg.StorageBucket)
		}
		if cfg.RecordsBackend != "firestore" || cfg.ProjectID != "acme-claims" {
			t.Errorf("records = %q/%q", cfg.RecordsBackend, cfg.ProjectID)
		}
		if cfg.LocksBackend != "redis" || cfg.RedisAddr != "redis:6379" {
			t.Errorf("locks = %q/%q", cfg.LocksBackend, cfg.RedisAddr)
		}
	})

	t.Run("invalid timeout ignored", func(t *testing.T) {
		for _, v := range []string{"soon", "-5s", "0s"} {
			t.Setenv("CLAIMPDF_TIMEOUT", v)
			if got := loadEnvConfig().Timeout; got != 0 {
				t.Errorf("CLAIMPDF_TIMEOUT=%q gave %v, want 0", v, got)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// TestWarnUnknownEnvVars - Typo detection
// ---------------------------------------------------------------------------

func TestWarnUnknownEnvVars(t *testing.T) {
	t.Setenv("CLAIMPDF_LOGOO", "x")
	t.Setenv("CLAIMPDF_LOGO", "assets/logo.png")

	var buf bytes.Buffer
	warnUnknownEnvVars(&buf)

	out := buf.String()
	if !strings.Contains(out, "CLAIMPDF_LOGOO") {
		t.Errorf("expected warning for CLAIMPDF_LOGOO, got %q", out)
	}
	if strings.Contains(out, "CLAIMPDF_LOGO ") {
		t.Errorf("known variable reported: %q", out)
	}
}

// ---------------------------------------------------------------------------
// TestApplyEnvConfig - Overlay onto loaded config
// ---------------------------------------------------------------------------

func TestApplyEnvConfig(t *testing.T) {
	t.Parallel()

	t.Run("set values override", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Document.Folder = "from-file"
		applyEnvConfig(&envConfig{
			Logo:           "assets/logo.png",
			StorageBackend: "s3",
			StorageBucket:  "claims",
			RecordsBackend: "sqlite",
			RecordsPath:    "/var/lib/claimpdf/records.db",
			Folder:         "warranty",
			PageSize:       "letter",
			AssetPath:      "/opt/claimpdf/assets",
		}, cfg)

		if cfg.Document.Logo != "assets/logo.png" || cfg.Document.Folder != "warranty" {
			t.Errorf("document = %+v", cfg.Document)
		}
		if cfg.Storage.Backend != "s3" || cfg.Storage.Bucket != "claims" {
			t.Errorf("storage = %+v", cfg.Storage)
		}
		if cfg.Records.Backend != "sqlite" || cfg.Records.Path != "/var/lib/claimpdf/records.db" {
			t.Errorf("records = %+v", cfg.Records)
		}
		if cfg.Page.Size != "letter" || cfg.Assets.BasePath != "/opt/claimpdf/assets" {
			t.Errorf("page/assets = %+v / %+v", cfg.Page, cfg.Assets)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	t.Run("unset values keep config", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Document.Folder = "from-file"
		applyEnvConfig(&envConfig{}, cfg)

		if cfg.Document.Folder != "from-file" || cfg.Storage.Backend != config.StorageMemory {
			t.Errorf("config changed by empty env: %+v", cfg)
		}
		if cfg.Legacy.Enabled {
			t.Error("legacy enabled without a spreadsheet")
		}
	})

	t.Run("legacy spreadsheet auto-enables", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		applyEnvConfig(&envConfig{LegacySheetID: "1AbC"}, cfg)

		if !cfg.Legacy.Enabled || cfg.Legacy.SpreadsheetID != "1AbC" {
			t.Errorf("Legacy = %+v", cfg.Legacy)
		}
	})
}

// ---------------------------------------------------------------------------
// TestResolveTimeout - Flag over env over config
// ---------------------------------------------------------------------------

func TestResolveTimeout(t *testing.T) {
	t.Parallel()

	withFile := config.DefaultConfig()
	withFile.Timeout = 90

	tests := []struct {
		name    string
		flag    string
		env     time.Duration
		cfg     *config.Config
		want    time.Duration
		wantErr bool
	}{
		{"flag wins", "45s", time.Minute, withFile, 45 * time.Second, false},
		{"env over file", "", time.Minute, withFile, time.Minute, false},
		{"file", "", 0, withFile, 90 * time.Second, false},
		{"library default", "", 0, config.DefaultConfig(), 0, false},
		{"unparsable flag", "soon", 0, withFile, 0, true},
		{"negative flag", "-1s", 0, withFile, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := resolveTimeout(tt.flag, &envConfig{Timeout: tt.env}, tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("resolveTimeout() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("resolveTimeout() = %v, want %v", got, tt.want)
			}
		})
	}
}
