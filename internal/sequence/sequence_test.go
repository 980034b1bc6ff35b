package sequence

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alnah/go-claimpdf/internal/lock"
	"github.com/alnah/go-claimpdf/internal/records"
)

// ---------------------------------------------------------------------------
// Test Fixtures
// ---------------------------------------------------------------------------

type failingStore struct {
	records.Store
	listErr error
}

func (f *failingStore) ListIDs(context.Context, string) ([]string, error) {
	return nil, f.listErr
}

// ---------------------------------------------------------------------------
// TestNext
// ---------------------------------------------------------------------------

func TestNext_EmptyTableStartsAtOne(t *testing.T) {
	t.Parallel()

	store := records.NewMemory("")
	store.Missing = true
	a := New(store, lock.NewLocal())

	id, err := a.Next(context.Background(), "CLM-20260114")
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if id != "CLM-20260114-0001" {
		t.Errorf("Next() = %q, want CLM-20260114-0001", id)
	}
}

func TestNext_ScansOnlyThePrefix(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := records.NewMemory("")
	for _, id := range []string{"CLM-20260114-0003", "CLM-20260114-0010", "CLM-20260115-0099", "CLM-20260114-bad"} {
		_ = store.Append(ctx, records.Row{records.DefaultIDHeader: id})
	}

	id, err := New(store, lock.NewLocal()).Next(ctx, "CLM-20260114")
	if err != nil {
		t.Fatal(err)
	}
	if id != "CLM-20260114-0011" {
		t.Errorf("Next() = %q, want CLM-20260114-0011", id)
	}
}

func TestReserve_StrictlyIncreasing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := records.NewMemory("")
	a := New(store, lock.NewLocal())

	const n = 12
	prev := 0
	for i := 0; i < n; i++ {
		id, err := a.Reserve(ctx, "CLM-20260114", records.Row{"Dealer": "ACME"})
		if err != nil {
			t.Fatalf("Reserve #%d: %v", i, err)
		}
		suffix, _ := strconv.Atoi(strings.TrimPrefix(id, "CLM-20260114-"))
		if suffix <= prev {
			t.Fatalf("suffix %d not greater than %d", suffix, prev)
		}
		prev = suffix
	}
	if prev != n {
		t.Errorf("last suffix = %d, want %d", prev, n)
	}
}

func TestReserve_ConcurrentCallersNeverCollide(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := records.NewMemory("")
	a := New(store, lock.NewLocal(), WithWait(10*time.Second))

	const n = 20
	var wg sync.WaitGroup
	ids := make(chan string, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := a.Reserve(ctx, "CLM-20260114", nil)
			if err != nil {
				t.Error(err)
				return
			}
			ids <- id
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %s", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Errorf("distinct ids = %d, want %d", len(seen), n)
	}
}

func TestNext_LockTimeout(t *testing.T) {
	t.Parallel()

	l := lock.NewLocal()
	release, err := l.Acquire(context.Background(), LockKey, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	a := New(records.NewMemory(""), l, WithWait(20*time.Millisecond))
	if _, err := a.Next(context.Background(), "CLM-20260114"); !errors.Is(err, lock.ErrTimeout) {
		t.Errorf("Next() error = %v, want lock.ErrTimeout", err)
	}
}

func TestNext_ReleasesLockOnStoreError(t *testing.T) {
	t.Parallel()

	l := lock.NewLocal()
	a := New(&failingStore{listErr: errors.New("quota")}, l)

	if _, err := a.Next(context.Background(), "P"); err == nil {
		t.Fatal("Next() error = nil, want store error")
	}
	if l.Held(LockKey) {
		t.Error("lock still held after failure")
	}
}

func TestNext_InvalidPrefix(t *testing.T) {
	t.Parallel()

	if _, err := New(records.NewMemory(""), lock.NewLocal()).Next(context.Background(), " "); !errors.Is(err, ErrInvalidPrefix) {
		t.Errorf("Next(blank) error = %v, want ErrInvalidPrefix", err)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestFormatAndMaxSuffix(t *testing.T) {
	t.Parallel()

	if got := Format("CLM-20260114", 7, 4); got != "CLM-20260114-0007" {
		t.Errorf("Format = %q", got)
	}
	if got := Format("X", 12345, 4); got != "X-12345" {
		t.Errorf("Format overflow = %q", got)
	}
	if got := MaxSuffix([]string{"X-0002", "X-0009", "X-00x", "Y-0100", "X-"}, "X"); got != 9 {
		t.Errorf("MaxSuffix = %d, want 9", got)
	}
}

func TestPrefix(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, time.January, 14, 0, 0, 0, 0, time.UTC)
	got, err := Prefix("", at)
	if err != nil || got != "CLM-20260114" {
		t.Errorf("Prefix(default) = %q, %v", got, err)
	}
	got, err = Prefix("[WAR-]YYMMDD", at)
	if err != nil || got != "WAR-260114" {
		t.Errorf("Prefix(custom) = %q, %v", got, err)
	}
	if _, err := Prefix("[unclosed", at); !errors.Is(err, ErrInvalidPrefix) {
		t.Errorf("Prefix(bad) error = %v", err)
	}
}
