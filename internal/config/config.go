package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alnah/go-claimpdf/internal/dateutil"
	"github.com/alnah/go-claimpdf/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrInvalidValue    = errors.New("invalid config value")
	ErrMissingValue    = errors.New("missing required config value")
)

// Field length limits.
const (
	MaxTitleLength      = 200
	MaxFolderLength     = 512
	MaxIdentifierLength = 256  // bucket, spreadsheet, project, collection ids
	MaxURLLength        = 2048 // endpoints and export URL patterns
	MaxPathLength       = 4096
	MaxPageSizeLength   = 10
	MaxOrientLength     = 10
)

// Storage backends.
const (
	StorageMemory = "memory"
	StorageGCS    = "gcs"
	StorageS3     = "s3"
	StorageDrive  = "drive"
)

// Record store backends.
const (
	RecordsMemory    = "memory"
	RecordsSheets    = "sheets"
	RecordsFirestore = "firestore"
	RecordsSQLite    = "sqlite"
)

// Lock backends.
const (
	LocksLocal = "local"
	LocksRedis = "redis"
)

// Config holds all configuration for claim rendering.
type Config struct {
	Document DocumentConfig `yaml:"document"`
	Page     PageConfig     `yaml:"page"`
	Images   ImagesConfig   `yaml:"images"`
	Storage  StorageConfig  `yaml:"storage"`
	Records  RecordsConfig  `yaml:"records"`
	Locks    LocksConfig    `yaml:"locks"`
	Legacy   LegacyConfig   `yaml:"legacy"`
	Assets   AssetsConfig   `yaml:"assets"`
	Timeout  int            `yaml:"timeout"` // seconds per render attempt, 0 = default
}

// DocumentConfig defines document identity and placement.
type DocumentConfig struct {
	Title       string `yaml:"title"`       // printed heading, empty = "Warranty Claim"
	IDFormat    string `yaml:"idFormat"`    // bracket-escaped date format, e.g. "[CLM-]YYYYMMDD"
	IDWidth     int    `yaml:"idWidth"`     // numeric suffix width, 0 = 4
	DateFormat  string `yaml:"dateFormat"`  // display format for printed dates
	Folder      string `yaml:"folder"`      // root folder for rendered documents
	Logo        string `yaml:"logo"`        // image reference printed on every document
	WriteAudit  bool   `yaml:"writeAudit"`  // save <id>-audit.json beside the document
	RequireLogo bool   `yaml:"requireLogo"` // a logo that fails to resolve fails the primary render
}

// PageConfig defines PDF page settings for the primary renderer.
type PageConfig struct {
	Size        string  `yaml:"size"`        // "letter", "a4", "legal" (default: "a4")
	Orientation string  `yaml:"orientation"` // "portrait", "landscape" (default: "portrait")
	Margin      float64 `yaml:"margin"`      // inches (default: 0.4)
}

// ImagesConfig defines the per-class size budgets, in bytes.
type ImagesConfig struct {
	SignatureBudget int `yaml:"signatureBudget"` // 0 = 1 MiB
	ImageBudget     int `yaml:"imageBudget"`     // 0 = 3 MiB
}

// StorageConfig selects the blob backend.
type StorageConfig struct {
	Backend  string `yaml:"backend"`  // memory, gcs, s3, drive
	Bucket   string `yaml:"bucket"`   // gcs, s3
	Prefix   string `yaml:"prefix"`   // optional key prefix
	Region   string `yaml:"region"`   // s3
	Endpoint string `yaml:"endpoint"` // s3-compatible endpoint
	RootID   string `yaml:"rootId"`   // drive root folder id
}

// RecordsConfig selects the record store backend.
type RecordsConfig struct {
	Backend       string `yaml:"backend"` // memory, sheets, firestore, sqlite
	IDHeader      string `yaml:"idHeader"`
	SpreadsheetID string `yaml:"spreadsheetId"` // sheets
	Sheet         string `yaml:"sheet"`         // sheets tab / sqlite table
	ProjectID     string `yaml:"projectId"`     // firestore
	Collection    string `yaml:"collection"`    // firestore
	Path          string `yaml:"path"`          // sqlite database file
}

// LocksConfig selects the lock backend.
type LocksConfig struct {
	Backend   string `yaml:"backend"` // local, redis
	RedisAddr string `yaml:"redisAddr"`
	Wait      int    `yaml:"wait"` // seconds, 0 = 30
	TTL       int    `yaml:"ttl"`  // seconds, redis lease length
}

// LegacyConfig defines the spreadsheet fallback renderer.
type LegacyConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SpreadsheetID string `yaml:"spreadsheetId"`
	TemplateSheet string `yaml:"templateSheet"` // must match the layout's templateSheet
	ExportURL     string `yaml:"exportUrl"`     // pattern with {spreadsheetId} and {gid}, empty = Google export endpoint
}

// AssetsConfig defines asset loading options.
type AssetsConfig struct {
	BasePath string `yaml:"basePath"` // empty = embedded assets only
	Style    string `yaml:"style"`
	Template string `yaml:"template"`
	Layout   string `yaml:"layout"`
}

// Validate checks enums, required values and field lengths. Called by
// LoadConfig; callers building a Config by hand should call it too.
func (c *Config) Validate() error {
	lengths := []struct {
		field string
		value string
		max   int
	}{
		{"document.title", c.Document.Title, MaxTitleLength},
		{"document.folder", c.Document.Folder, MaxFolderLength},
		{"document.logo", c.Document.Logo, MaxURLLength},
		{"page.size", c.Page.Size, MaxPageSizeLength},
		{"page.orientation", c.Page.Orientation, MaxOrientLength},
		{"storage.bucket", c.Storage.Bucket, MaxIdentifierLength},
		{"storage.prefix", c.Storage.Prefix, MaxFolderLength},
		{"storage.endpoint", c.Storage.Endpoint, MaxURLLength},
		{"storage.rootId", c.Storage.RootID, MaxIdentifierLength},
		{"records.spreadsheetId", c.Records.SpreadsheetID, MaxIdentifierLength},
		{"records.sheet", c.Records.Sheet, MaxIdentifierLength},
		{"records.collection", c.Records.Collection, MaxIdentifierLength},
		{"records.path", c.Records.Path, MaxPathLength},
		{"locks.redisAddr", c.Locks.RedisAddr, MaxURLLength},
		{"legacy.spreadsheetId", c.Legacy.SpreadsheetID, MaxIdentifierLength},
		{"legacy.templateSheet", c.Legacy.TemplateSheet, MaxIdentifierLength},
		{"legacy.exportUrl", c.Legacy.ExportURL, MaxURLLength},
		{"assets.basePath", c.Assets.BasePath, MaxPathLength},
	}
	for _, l := range lengths {
		if err := validateFieldLength(l.field, l.value, l.max); err != nil {
			return err
		}
	}

	if c.Document.IDFormat != "" {
		if _, err := dateutil.ParseDateFormat(c.Document.IDFormat); err != nil {
			return fmt.Errorf("document.idFormat: %w", err)
		}
	}
	if c.Document.DateFormat != "" {
		if _, err := dateutil.ParseDateFormat(c.Document.DateFormat); err != nil {
			return fmt.Errorf("document.dateFormat: %w", err)
		}
	}
	if c.Document.IDWidth < 0 || c.Document.IDWidth > 9 {
		return fmt.Errorf("%w: document.idWidth must be between 1 and 9, got %d", ErrInvalidValue, c.Document.IDWidth)
	}

	if err := oneOf("page.size", c.Page.Size, "letter", "a4", "legal"); err != nil {
		return err
	}
	if err := oneOf("page.orientation", c.Page.Orientation, "portrait", "landscape"); err != nil {
		return err
	}
	if c.Page.Margin != 0 && (c.Page.Margin < 0.25 || c.Page.Margin > 3) {
		return fmt.Errorf("%w: page.margin must be between 0.25 and 3, got %.2f", ErrInvalidValue, c.Page.Margin)
	}

	if c.Images.SignatureBudget < 0 || c.Images.ImageBudget < 0 {
		return fmt.Errorf("%w: images budgets must not be negative", ErrInvalidValue)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidValue)
	}
	if c.Locks.Wait < 0 || c.Locks.TTL < 0 {
		return fmt.Errorf("%w: locks.wait and locks.ttl must not be negative", ErrInvalidValue)
	}

	if err := c.validateBackends(); err != nil {
		return err
	}

	if c.Legacy.Enabled && c.Legacy.SpreadsheetID == "" {
		return fmt.Errorf("%w: legacy.spreadsheetId (legacy renderer enabled)", ErrMissingValue)
	}
	if c.Legacy.ExportURL != "" && !strings.Contains(c.Legacy.ExportURL, "{spreadsheetId}") {
		return fmt.Errorf("%w: legacy.exportUrl must contain {spreadsheetId}", ErrInvalidValue)
	}
	return nil
}

func (c *Config) validateBackends() error {
	if err := oneOf("storage.backend", c.Storage.Backend, StorageMemory, StorageGCS, StorageS3, StorageDrive); err != nil {
		return err
	}
	switch c.Storage.Backend {
	case StorageGCS, StorageS3:
		if c.Storage.Bucket == "" {
			return fmt.Errorf("%w: storage.bucket (backend %s)", ErrMissingValue, c.Storage.Backend)
		}
	}

	if err := oneOf("records.backend", c.Records.Backend, RecordsMemory, RecordsSheets, RecordsFirestore, RecordsSQLite); err != nil {
		return err
	}
	switch c.Records.Backend {
	case RecordsSheets:
		if c.Records.SpreadsheetID == "" {
			return fmt.Errorf("%w: records.spreadsheetId (backend sheets)", ErrMissingValue)
		}
	case RecordsFirestore:
		if c.Records.ProjectID == "" {
			return fmt.Errorf("%w: records.projectId (backend firestore)", ErrMissingValue)
		}
	case RecordsSQLite:
		if c.Records.Path == "" {
			return fmt.Errorf("%w: records.path (backend sqlite)", ErrMissingValue)
		}
	}

	if err := oneOf("locks.backend", c.Locks.Backend, LocksLocal, LocksRedis); err != nil {
		return err
	}
	if c.Locks.Backend == LocksRedis && c.Locks.RedisAddr == "" {
		return fmt.Errorf("%w: locks.redisAddr (backend redis)", ErrMissingValue)
	}
	return nil
}

// oneOf accepts an empty value (meaning the default) or one of allowed,
// compared case-insensitively.
func oneOf(field, value string, allowed ...string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if strings.EqualFold(value, a) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %q (must be one of %s)", ErrInvalidValue, field, value, strings.Join(allowed, ", "))
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

// DefaultConfig returns an in-process configuration: memory storage and
// records, local locks, legacy renderer disabled, embedded assets.
func DefaultConfig() *Config {
	return &Config{
		Document: DocumentConfig{
			IDFormat:    dateutil.DefaultPrefixFormat,
			DateFormat:  dateutil.DefaultDisplayFormat,
			Folder:      "claims",
			WriteAudit:  true,
			RequireLogo: true,
		},
		Page:    PageConfig{Size: "a4", Orientation: "portrait", Margin: 0.4},
		Storage: StorageConfig{Backend: StorageMemory},
		Records: RecordsConfig{Backend: RecordsMemory},
		Locks:   LocksConfig{Backend: LocksLocal},
		Legacy:  LegacyConfig{TemplateSheet: "Template"},
	}
}

// LoadConfig loads configuration from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Values absent from the file keep their DefaultConfig value.
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if isFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// isFilePath returns true if the string looks like a file path.
func isFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/go-claimpdf/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		localPath := name + ext
		if fileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "go-claimpdf", name+ext)
			if fileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}

// fileExists returns true if the path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
