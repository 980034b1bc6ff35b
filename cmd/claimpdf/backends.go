package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	claimpdf "github.com/alnah/go-claimpdf"
	"github.com/alnah/go-claimpdf/internal/blob"
	"github.com/alnah/go-claimpdf/internal/config"
	"github.com/alnah/go-claimpdf/internal/imageres"
	"github.com/alnah/go-claimpdf/internal/lock"
	"github.com/alnah/go-claimpdf/internal/records"
	"github.com/alnah/go-claimpdf/internal/sequence"
	"github.com/alnah/go-claimpdf/internal/workbook"
)

// Default table and collection names for record stores.
const (
	defaultRecordSheet = "Claims"
	defaultRecordTable = "claims"
)

// claimGenerator is the orchestrator surface the render command drives.
type claimGenerator interface {
	Generate(ctx context.Context, claim claimpdf.ClaimRecord) claimpdf.RenderResult
	Submit(ctx context.Context, claim claimpdf.ClaimRecord) claimpdf.RenderResult
	Close() error
}

// idAllocator mints document IDs without reserving them.
type idAllocator interface {
	Next(ctx context.Context, prefix string) (string, error)
}

// Compile-time interface checks.
var (
	_ claimGenerator = (*claimpdf.Generator)(nil)
	_ idAllocator    = (*sequence.Allocator)(nil)
)

// services is everything a command needs, built once from config.
type services struct {
	generator   claimGenerator
	allocator   idAllocator
	idFormat    string
	lockBackend string
	closers     []func() error
}

// Close releases renderers and backend clients in reverse build order.
func (s *services) Close() error {
	var errs []error
	if s.generator != nil {
		errs = append(errs, s.generator.Close())
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *services) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// googleAuth fetches Application Default Credentials once, on first use.
type googleAuth struct {
	once sync.Once
	ts   oauth2.TokenSource
	err  error
}

func (g *googleAuth) tokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	g.once.Do(func() {
		g.ts, g.err = google.DefaultTokenSource(ctx, drive.DriveScope, sheets.SpreadsheetsScope)
		if g.err != nil {
			g.err = fmt.Errorf("%w: %w", ErrCredentials, g.err)
		}
	})
	return g.ts, g.err
}

func (g *googleAuth) sheets(ctx context.Context) (*sheets.Service, error) {
	ts, err := g.tokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return sheets.NewService(ctx, option.WithTokenSource(ts))
}

func (g *googleAuth) drive(ctx context.Context) (*drive.Service, error) {
	ts, err := g.tokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return drive.NewService(ctx, option.WithTokenSource(ts))
}

// buildServices wires the configured backends and renderers. cfg must be
// valid. On error every client opened so far is closed.
func buildServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *services, err error) {
	s := &services{
		idFormat:    cfg.Document.IDFormat,
		lockBackend: strings.ToLower(cfg.Locks.Backend),
	}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	auth := &googleAuth{}

	store, err := buildStore(ctx, cfg.Storage, auth, s)
	if err != nil {
		return nil, fmt.Errorf("storage backend: %w", err)
	}
	recs, err := buildRecords(ctx, cfg.Records, auth, s)
	if err != nil {
		return nil, fmt.Errorf("records backend: %w", err)
	}
	locker := buildLocker(cfg.Locks, logger.Named("lock"), s)

	wait := time.Duration(cfg.Locks.Wait) * time.Second
	allocator := sequence.New(recs, locker,
		sequence.WithWait(wait),
		sequence.WithWidth(cfg.Document.IDWidth),
		sequence.WithIDHeader(cfg.Records.IDHeader),
		sequence.WithLogger(logger.Named("sequence")),
	)
	s.allocator = allocator

	opts := rendererOptions(cfg, logger)
	opts = append(opts,
		claimpdf.WithLockWait(wait),
		claimpdf.WithAuditStore(store),
		claimpdf.WithRecords(recs, allocator),
	)

	resolver := imageres.New(store, imageres.WithLogger(logger.Named("images")))
	primary, err := claimpdf.NewPrimaryRenderer(resolver, store, opts...)
	if err != nil {
		return nil, fmt.Errorf("primary renderer: %w", err)
	}
	legacy, err := buildLegacy(ctx, cfg.Legacy, auth, store, locker, resolver, opts)
	if err != nil {
		_ = primary.Close()
		return nil, err
	}

	s.generator = claimpdf.NewGenerator(primary, legacy, opts...)
	return s, nil
}

// buildLegacy returns the spreadsheet fallback, or a nil Renderer when it is
// disabled. A nil *LegacyRenderer must never reach the interface.
func buildLegacy(ctx context.Context, cfg config.LegacyConfig, auth *googleAuth, store blob.Store,
	locker lock.Locker, resolver *imageres.Resolver, opts []claimpdf.Option,
) (claimpdf.Renderer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	svc, err := auth.sheets(ctx)
	if err != nil {
		return nil, fmt.Errorf("legacy workbook: %w", err)
	}
	ts, err := auth.tokenSource(ctx)
	if err != nil {
		return nil, fmt.Errorf("legacy export: %w", err)
	}
	book := workbook.NewSheets(svc, cfg.SpreadsheetID, cfg.TemplateSheet)
	exporter := claimpdf.NewHTTPExporter(ts, cfg.ExportURL)
	lr, err := claimpdf.NewLegacyRenderer(book, exporter, store, locker, resolver, opts...)
	if err != nil {
		return nil, fmt.Errorf("legacy renderer: %w", err)
	}
	return lr, nil
}

// rendererOptions maps document, page, image and asset config to options
// shared by both renderers and the generator.
func rendererOptions(cfg *config.Config, logger *zap.Logger) []claimpdf.Option {
	opts := []claimpdf.Option{
		claimpdf.WithLogger(logger),
		claimpdf.WithFolder(cfg.Document.Folder),
		claimpdf.WithTitle(cfg.Document.Title),
		claimpdf.WithDateFormat(cfg.Document.DateFormat),
		claimpdf.WithIDFormat(cfg.Document.IDFormat),
		claimpdf.WithAudit(cfg.Document.WriteAudit),
		claimpdf.WithPageSettings(pageSettings(cfg.Page)),
		claimpdf.WithImageBudgets(cfg.Images.SignatureBudget, cfg.Images.ImageBudget),
		claimpdf.WithAssetPath(cfg.Assets.BasePath),
		claimpdf.WithAssetNames(cfg.Assets.Style, cfg.Assets.Template, cfg.Assets.Layout),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, claimpdf.WithTimeout(time.Duration(cfg.Timeout)*time.Second))
	}
	if cfg.Document.Logo != "" {
		opts = append(opts, claimpdf.WithLogo(cfg.Document.Logo))
	}
	if !cfg.Document.RequireLogo {
		opts = append(opts, claimpdf.WithOptionalLogo())
	}
	return opts
}

// pageSettings fills unset page values with the library defaults.
func pageSettings(p config.PageConfig) *claimpdf.PageSettings {
	ps := claimpdf.DefaultPageSettings()
	if p.Size != "" {
		ps.Size = strings.ToLower(p.Size)
	}
	if p.Orientation != "" {
		ps.Orientation = strings.ToLower(p.Orientation)
	}
	if p.Margin != 0 {
		ps.Margin = p.Margin
	}
	return ps
}

func buildStore(ctx context.Context, cfg config.StorageConfig, auth *googleAuth, s *services) (blob.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", config.StorageMemory:
		return blob.NewMemory(), nil
	case config.StorageGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCredentials, err)
		}
		s.onClose(client.Close)
		return blob.NewGCS(client, blob.GCSConfig{Bucket: cfg.Bucket, Prefix: cfg.Prefix}), nil
	case config.StorageS3:
		return blob.NewS3(ctx, blob.S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		})
	case config.StorageDrive:
		svc, err := auth.drive(ctx)
		if err != nil {
			return nil, err
		}
		return blob.NewDrive(svc, cfg.RootID), nil
	}
	return nil, fmt.Errorf("%w: storage.backend %q", config.ErrInvalidValue, cfg.Backend)
}

func buildRecords(ctx context.Context, cfg config.RecordsConfig, auth *googleAuth, s *services) (records.Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", config.RecordsMemory:
		return records.NewMemory(cfg.IDHeader), nil
	case config.RecordsSheets:
		svc, err := auth.sheets(ctx)
		if err != nil {
			return nil, err
		}
		return records.NewSheets(svc, cfg.SpreadsheetID, orDefault(cfg.Sheet, defaultRecordSheet), cfg.IDHeader), nil
	case config.RecordsFirestore:
		client, err := firestore.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCredentials, err)
		}
		s.onClose(client.Close)
		return records.NewFirestore(client, orDefault(cfg.Collection, defaultRecordTable), cfg.IDHeader), nil
	case config.RecordsSQLite:
		db, err := records.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		s.onClose(db.Close)
		return records.NewSQLite(ctx, db, orDefault(cfg.Sheet, defaultRecordTable), cfg.IDHeader)
	}
	return nil, fmt.Errorf("%w: records.backend %q", config.ErrInvalidValue, cfg.Backend)
}

func buildLocker(cfg config.LocksConfig, logger *zap.Logger, s *services) lock.Locker {
	if strings.EqualFold(cfg.Backend, config.LocksRedis) {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		s.onClose(client.Close)
		return lock.NewRedis(client, lock.RedisOptions{
			TTL:    time.Duration(cfg.TTL) * time.Second,
			Logger: logger,
		})
	}
	return lock.NewLocal()
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
