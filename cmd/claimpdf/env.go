package main

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-claimpdf/internal/config"
)

// Environment holds injectable dependencies for testability.
// Includes I/O, time, and the backend factory.
type Environment struct {
	Now    func() time.Time
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Build wires storage, records, locks and renderers from cfg.
	Build func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*services, error)
}

// DefaultEnv returns the production environment.
func DefaultEnv() *Environment {
	return &Environment{
		Now:    time.Now,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Build:  buildServices,
	}
}
