package main

import (
	"context"
	"fmt"
	"time"

	"github.com/alnah/go-claimpdf/internal/sequence"
)

// runNextIDCmd prints the document ID the next submission on the given day
// would receive. Nothing is reserved.
func runNextIDCmd(ctx context.Context, args []string, env *Environment) error {
	flags, err := parseNextIDFlags(args, env.Stderr)
	if err != nil {
		return err
	}

	day := env.Now().UTC()
	if flags.date != "" {
		day, err = time.Parse(time.DateOnly, flags.date)
		if err != nil {
			return fmt.Errorf("%w: invalid --date %q, want YYYY-MM-DD", ErrUsage, flags.date)
		}
	}

	cfg, err := loadConfig(flags.common.config, loadEnvConfig())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(env.Stderr, flags.common)
	defer func() { _ = logger.Sync() }()

	svc, err := env.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	prefix, err := sequence.Prefix(svc.idFormat, day)
	if err != nil {
		return err
	}
	id, err := svc.allocator.Next(ctx, prefix)
	if err != nil {
		return withLockHint(fmt.Errorf("allocating document ID: %w", err), svc.lockBackend)
	}

	fmt.Fprintln(env.Stdout, id)
	return nil
}
