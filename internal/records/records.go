// Package records is the tabular claim record store: one header-addressed
// row per submission, keyed by document ID.
//
// Rows are addressed by column header, never by position. Appending a row
// with an unknown header adds that header after the existing ones; existing
// headers are never reordered or renamed.
package records

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
)

// DefaultIDHeader names the column holding the document ID.
const DefaultIDHeader = "Document ID"

// Sentinel errors.
var (
	ErrNotFound  = errors.New("record not found")
	ErrMissingID = errors.New("row has no document ID")
)

// Row is one record addressed by header name.
type Row map[string]string

// Store is the record store surface used by the renderer.
type Store interface {
	// ListIDs returns every document ID starting with prefix. A missing
	// table yields an empty slice, not an error.
	ListIDs(ctx context.Context, prefix string) ([]string, error)
	// Append adds row, creating missing headers.
	Append(ctx context.Context, row Row) error
	// Update merges row into the record whose ID column equals id.
	Update(ctx context.Context, id string, row Row) error
}

// Compile-time interface checks.
var (
	_ Store = (*Memory)(nil)
	_ Store = (*Sheets)(nil)
	_ Store = (*Firestore)(nil)
	_ Store = (*SQLite)(nil)
)

// mergeHeaders returns existing followed by every key of row not already
// present, in sorted order so the result is deterministic.
func mergeHeaders(existing []string, row Row) (headers []string, added []string) {
	have := make(map[string]bool, len(existing))
	for _, h := range existing {
		have[h] = true
	}
	for k := range row {
		if k != "" && !have[k] {
			added = append(added, k)
		}
	}
	sort.Strings(added)
	return append(slices.Clone(existing), added...), added
}

// hasPrefix treats an empty prefix as matching every non-empty ID.
func hasPrefix(id, prefix string) bool {
	return id != "" && strings.HasPrefix(id, prefix)
}

// Memory is an in-process Store for tests and dry runs.
type Memory struct {
	mu       sync.Mutex
	idHeader string
	headers  []string
	rows     []Row
	// Missing makes the table behave as if it did not exist yet.
	Missing bool
}

// NewMemory creates an empty in-memory table.
func NewMemory(idHeader string) *Memory {
	if idHeader == "" {
		idHeader = DefaultIDHeader
	}
	return &Memory{idHeader: idHeader, headers: []string{idHeader}}
}

// ListIDs implements Store.
func (m *Memory) ListIDs(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Missing {
		return nil, nil
	}
	var ids []string
	for _, r := range m.rows {
		if id := r[m.idHeader]; hasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, row Row) error {
	if row[m.idHeader] == "" {
		return ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Missing = false
	m.headers, _ = mergeHeaders(m.headers, row)
	m.rows = append(m.rows, cloneRow(row))
	return nil
}

// Update implements Store.
func (m *Memory) Update(_ context.Context, id string, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r[m.idHeader] == id {
			m.headers, _ = mergeHeaders(m.headers, row)
			for k, v := range row {
				r[k] = v
			}
			return nil
		}
	}
	return ErrNotFound
}

// Headers returns the current header order.
func (m *Memory) Headers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.headers)
}

// Get returns a copy of the row with the given ID.
func (m *Memory) Get(id string) (Row, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r[m.idHeader] == id {
			return cloneRow(r), true
		}
	}
	return nil, false
}

func cloneRow(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
