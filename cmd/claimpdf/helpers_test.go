package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	claimpdf "github.com/alnah/go-claimpdf"
	"github.com/alnah/go-claimpdf/internal/config"
)

// ---------------------------------------------------------------------------
// Test Infrastructure - Stub generator and environment
// ---------------------------------------------------------------------------

var fixedNow = time.Date(2026, 1, 14, 9, 30, 0, 0, time.UTC)

// stubGenerator records calls and returns a canned result.
type stubGenerator struct {
	mu        sync.Mutex
	res       claimpdf.RenderResult
	generated int
	submitted int
	got       claimpdf.ClaimRecord
	closed    bool
}

func (g *stubGenerator) Generate(_ context.Context, claim claimpdf.ClaimRecord) claimpdf.RenderResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generated++
	g.got = claim
	res := g.res
	res.DocumentID = claim.DocumentID
	return res
}

func (g *stubGenerator) Submit(_ context.Context, claim claimpdf.ClaimRecord) claimpdf.RenderResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitted++
	g.got = claim
	res := g.res
	res.DocumentID = "CLM-20260114-0001"
	return res
}

func (g *stubGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

// stubAllocator returns a fixed ID or error.
type stubAllocator struct {
	id     string
	err    error
	prefix string
}

func (a *stubAllocator) Next(_ context.Context, prefix string) (string, error) {
	a.prefix = prefix
	return a.id, a.err
}

// testEnv is an Environment with buffers and a Build that returns gen.
type testEnv struct {
	*Environment
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	gen    *stubGenerator
	alloc  *stubAllocator

	mu  sync.Mutex
	cfg *config.Config
}

func newTestEnv(gen *stubGenerator) *testEnv {
	te := &testEnv{
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
		gen:    gen,
		alloc:  &stubAllocator{id: "CLM-20260114-0042"},
	}
	te.Environment = &Environment{
		Now:    func() time.Time { return fixedNow },
		Stdin:  strings.NewReader(""),
		Stdout: te.stdout,
		Stderr: te.stderr,
		Build: func(_ context.Context, cfg *config.Config, _ *zap.Logger) (*services, error) {
			te.mu.Lock()
			te.cfg = cfg
			te.mu.Unlock()
			return &services{
				generator:   te.gen,
				allocator:   te.alloc,
				idFormat:    cfg.Document.IDFormat,
				lockBackend: cfg.Locks.Backend,
			}, nil
		},
	}
	return te
}

func (te *testEnv) builtConfig() *config.Config {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.cfg
}

// okResult is a successful render result.
func okResult() claimpdf.RenderResult {
	return claimpdf.RenderResult{
		Success:           true,
		Renderer:          claimpdf.RendererPrimary,
		DocumentStorageID: "claims/CLM-1/CLM-1.pdf",
		DocumentURL:       "memory://claims/CLM-1/CLM-1.pdf",
	}
}

// writeClaim writes a claim JSON file and returns its path.
func writeClaim(t *testing.T, claim claimpdf.ClaimRecord) string {
	t.Helper()
	data, err := json.Marshal(claim)
	if err != nil {
		t.Fatalf("marshal claim: %v", err)
	}
	path := filepath.Join(t.TempDir(), "claim.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write claim: %v", err)
	}
	return path
}

func testClaim() claimpdf.ClaimRecord {
	return claimpdf.ClaimRecord{
		DocumentID: "CLM-20260114-0001",
		Fields:     map[string]string{"customer": "Acme Tractors", "vin": "WDB1234"},
		Parts:      []claimpdf.AffectedPart{{PartNumber: "P-100", Name: "Pump", Quantity: 1}},
	}
}

// writeConfig writes a YAML config file and returns its path.
func writeConfig(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "claimpdf.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}
