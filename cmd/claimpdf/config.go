package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/alnah/go-claimpdf/internal/config"
)

// loadConfig resolves defaults, then the config file, then CLAIMPDF_*
// variables. Each command merges its flags afterwards and validates.
func loadConfig(flagPath string, env *envConfig) (*config.Config, error) {
	name := flagPath
	if name == "" {
		name = env.ConfigPath
	}

	cfg := config.DefaultConfig()
	if name != "" {
		loaded, err := config.LoadConfig(name)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	applyEnvConfig(env, cfg)
	return cfg, nil
}

// resolveTimeout picks the render timeout: flag, then CLAIMPDF_TIMEOUT, then
// the config file. Zero keeps the library default.
func resolveTimeout(flagValue string, env *envConfig, cfg *config.Config) (time.Duration, error) {
	if flagValue != "" {
		d, err := time.ParseDuration(flagValue)
		if err != nil {
			return 0, fmt.Errorf("%w: invalid --timeout %q: %v", ErrUsage, flagValue, err)
		}
		if d <= 0 {
			return 0, fmt.Errorf("%w: --timeout must be positive, got %s", ErrUsage, flagValue)
		}
		return d, nil
	}
	if env.Timeout > 0 {
		return env.Timeout, nil
	}
	return time.Duration(cfg.Timeout) * time.Second, nil
}

// searchedConfigPaths lists the user-level config location for hints.
func searchedConfigPaths() []string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(dir, "go-claimpdf", "claimpdf.yaml")}
}
