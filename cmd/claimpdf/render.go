package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"go.uber.org/zap"

	claimpdf "github.com/alnah/go-claimpdf"
	"github.com/alnah/go-claimpdf/internal/config"
)

// filePermissions for the result file: owner read+write, others read.
const filePermissions = 0o644

// maxClaimBytes caps a claim file. Inline images make claims large, but
// never this large.
const maxClaimBytes = 64 << 20

// runRenderCmd renders one claim file ("-" reads stdin) and prints the
// RenderResult as JSON. A failed render still prints its result.
func runRenderCmd(ctx context.Context, args []string, env *Environment) error {
	flags, positional, err := parseRenderFlags(args, env.Stderr)
	if err != nil {
		return err
	}
	switch len(positional) {
	case 0:
		return ErrNoInput
	case 1:
	default:
		return fmt.Errorf("%w: expected one claim file, got %d", ErrUsage, len(positional))
	}

	claim, err := readClaim(positional[0], env.Stdin)
	if err != nil {
		return err
	}

	envCfg := loadEnvConfig()
	cfg, err := loadConfig(flags.common.config, envCfg)
	if err != nil {
		return err
	}
	mergeRenderFlags(flags, cfg)
	timeout, err := resolveTimeout(flags.timeout, envCfg, cfg)
	if err != nil {
		return err
	}
	cfg.Timeout = int(math.Ceil(timeout.Seconds()))
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(env.Stderr, flags.common)
	defer func() { _ = logger.Sync() }()

	svc, err := env.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			logger.Warn("shutdown incomplete", zap.Error(cerr))
		}
	}()

	var res claimpdf.RenderResult
	if flags.submit {
		res = svc.generator.Submit(ctx, claim)
	} else {
		res = svc.generator.Generate(ctx, claim)
	}

	if err := writeResult(flags.output, env.Stdout, res); err != nil {
		return err
	}
	if !res.Success {
		cause := res.Err
		if cause == nil {
			cause = errors.New(res.Error)
		}
		return withLockHint(fmt.Errorf("%w: %s: %w", ErrRenderFailed, res.DocumentID, cause), svc.lockBackend)
	}
	return nil
}

// readClaim loads and decodes a claim from path, or from stdin for "-".
func readClaim(path string, stdin io.Reader) (claimpdf.ClaimRecord, error) {
	var claim claimpdf.ClaimRecord

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, maxClaimBytes+1))
	} else {
		data, err = os.ReadFile(path) // #nosec G304 -- claim path is user-provided
	}
	if err != nil {
		return claim, fmt.Errorf("%w: %w", ErrReadClaim, err)
	}
	if len(data) > maxClaimBytes {
		return claim, fmt.Errorf("%w: %s exceeds %d bytes", ErrReadClaim, path, maxClaimBytes)
	}

	if err := json.Unmarshal(data, &claim); err != nil {
		return claim, fmt.Errorf("%w: %s: %v", ErrParseClaim, path, err)
	}
	return claim, nil
}

// writeResult prints res as indented JSON to path, or to stdout when path
// is empty.
func writeResult(path string, stdout io.Writer, res claimpdf.RenderResult) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteResult, err)
	}
	data = append(data, '\n')

	if path == "" {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("%w: %w", ErrWriteResult, err)
		}
		return nil
	}
	if err := os.WriteFile(path, data, filePermissions); err != nil { // #nosec G306 -- result is not secret
		return fmt.Errorf("%w: %w", ErrWriteResult, err)
	}
	return nil
}

// mergeRenderFlags applies set flags over cfg (flags win).
func mergeRenderFlags(f *renderFlags, cfg *config.Config) {
	if f.logo != "" {
		cfg.Document.Logo = f.logo
	}
	if f.noLogo {
		cfg.Document.RequireLogo = false
	}
	if f.noAudit {
		cfg.Document.WriteAudit = false
	}
	if f.assetPath != "" {
		cfg.Assets.BasePath = f.assetPath
	}

	if f.page.size != "" {
		cfg.Page.Size = f.page.size
	}
	if f.page.orientation != "" {
		cfg.Page.Orientation = f.page.orientation
	}
	if f.page.margin != 0 {
		cfg.Page.Margin = f.page.margin
	}

	if f.legacy.spreadsheetID != "" {
		cfg.Legacy.SpreadsheetID = f.legacy.spreadsheetID
		cfg.Legacy.Enabled = true
	}
	if f.legacy.disabled {
		cfg.Legacy.Enabled = false
	}
}
