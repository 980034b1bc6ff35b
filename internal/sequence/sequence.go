// Package sequence mints monotonic, date-scoped document IDs such as
// CLM-20260114-0007.
//
// The scan for the current maximum and the decision on the next value run
// under one lock; releasing it in between would let two callers mint the
// same ID.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-claimpdf/internal/dateutil"
	"github.com/alnah/go-claimpdf/internal/lock"
	"github.com/alnah/go-claimpdf/internal/records"
)

// LockKey is the global lock name for ID allocation.
const LockKey = "sequence"

// DefaultWidth is the zero-padded width of the numeric suffix.
const DefaultWidth = 4

// ErrInvalidPrefix indicates an empty date prefix.
var ErrInvalidPrefix = errors.New("invalid document ID prefix")

// Allocator mints document IDs from a record store.
type Allocator struct {
	store    records.Store
	locker   lock.Locker
	wait     time.Duration
	width    int
	idHeader string
	logger   *zap.Logger
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithWait sets the bounded lock wait.
func WithWait(d time.Duration) Option {
	return func(a *Allocator) { a.wait = d }
}

// WithWidth sets the suffix width.
func WithWidth(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.width = n
		}
	}
}

// WithIDHeader sets the record column Reserve writes the ID into.
func WithIDHeader(h string) Option {
	return func(a *Allocator) {
		if h != "" {
			a.idHeader = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Allocator.
func New(store records.Store, locker lock.Locker, opts ...Option) *Allocator {
	a := &Allocator{
		store:    store,
		locker:   locker,
		wait:     lock.DefaultWait,
		width:    DefaultWidth,
		idHeader: records.DefaultIDHeader,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Next returns prefix-NNNN where NNNN is one above the largest suffix
// already recorded under prefix. Next does not record the ID; callers that
// must never see it reissued use Reserve.
func (a *Allocator) Next(ctx context.Context, prefix string) (string, error) {
	return a.allocate(ctx, prefix, nil)
}

// Reserve mints an ID and appends row under it before releasing the lock,
// so the ID can never be handed out again even if rendering later fails.
func (a *Allocator) Reserve(ctx context.Context, prefix string, row records.Row) (string, error) {
	if row == nil {
		row = records.Row{}
	}
	return a.allocate(ctx, prefix, row)
}

func (a *Allocator) allocate(ctx context.Context, prefix string, row records.Row) (string, error) {
	if strings.TrimSpace(prefix) == "" {
		return "", ErrInvalidPrefix
	}

	release, err := a.locker.Acquire(ctx, LockKey, a.wait)
	if err != nil {
		a.logger.Warn("sequence lock not acquired", zap.String("prefix", prefix), zap.Error(err))
		return "", err
	}
	defer release()

	ids, err := a.store.ListIDs(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("scanning records for %s: %w", prefix, err)
	}

	next := MaxSuffix(ids, prefix) + 1
	id := Format(prefix, next, a.width)

	if row != nil {
		out := make(records.Row, len(row)+1)
		for k, v := range row {
			out[k] = v
		}
		out[a.idHeader] = id
		if err := a.store.Append(ctx, out); err != nil {
			return "", fmt.Errorf("reserving %s: %w", id, err)
		}
	}

	a.logger.Info("document id allocated",
		zap.String("id", id),
		zap.Int("scanned", len(ids)),
		zap.Bool("reserved", row != nil))
	return id, nil
}

// MaxSuffix returns the largest numeric suffix among ids of the form
// prefix-N. IDs with a non-numeric suffix are ignored.
func MaxSuffix(ids []string, prefix string) int {
	best := 0
	for _, id := range ids {
		rest, ok := strings.CutPrefix(id, prefix+"-")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			continue
		}
		if n > best {
			best = n
		}
	}
	return best
}

// Format renders prefix-N with N zero-padded to width. Values wider than
// width are printed in full.
func Format(prefix string, n, width int) string {
	return fmt.Sprintf("%s-%0*d", prefix, width, n)
}

// Prefix renders the date-scoped prefix for t, e.g. "[CLM-]YYYYMMDD".
func Prefix(format string, t time.Time) (string, error) {
	if format == "" {
		format = dateutil.DefaultPrefixFormat
	}
	p, err := dateutil.Format(format, t)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrefix, err)
	}
	return p, nil
}
