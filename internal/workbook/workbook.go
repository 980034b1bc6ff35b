// Package workbook is the spreadsheet surface of the legacy renderer: find
// the canonical template, clone it into a scratch sheet, fill, format and
// delete the clone.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/alnah/go-claimpdf/internal/cellguard"
)

// Sentinel errors.
var (
	ErrSheetNotFound = errors.New("sheet not found")
	ErrSheetExists   = errors.New("sheet already exists")
)

// Sheet is one worksheet.
type Sheet interface {
	cellguard.Sheet
	// GID is the worksheet id used by export URLs.
	GID() int64
	Merges(ctx context.Context) ([]cellguard.Range, error)
	// ClearImages removes embedded images and returns how many were removed.
	ClearImages(ctx context.Context) (int, error)
	// PlaceImage embeds the image at url in cell c.
	PlaceImage(ctx context.Context, c cellguard.Cell, url string) error
	// Format applies presentation rules.
	Format(ctx context.Context, f cellguard.Format) error
}

// Workbook is a spreadsheet document holding the canonical template.
type Workbook interface {
	ID() string
	Sheet(ctx context.Context, name string) (Sheet, error)
	Clone(ctx context.Context, src Sheet, name string) (Sheet, error)
	Delete(ctx context.Context, s Sheet) error
}

// Compile-time interface checks.
var (
	_ Workbook = (*Memory)(nil)
	_ Workbook = (*Sheets)(nil)
	_ Sheet    = (*MemorySheet)(nil)
	_ Sheet    = (*sheetsSheet)(nil)
)

// refuseCanonical guards every mutating call of both implementations.
func refuseCanonical(s cellguard.Sheet) error {
	return cellguard.AssertScratch(s, "")
}

// Memory is an in-process Workbook.
type Memory struct {
	id string

	mu      sync.Mutex
	sheets  map[string]*MemorySheet
	nextGID int64

	// CloneErr and DeleteErr, when set, fail Clone and Delete.
	CloneErr  error
	DeleteErr error
}

// NewMemory creates an empty workbook.
func NewMemory(id string) *Memory {
	return &Memory{id: id, sheets: make(map[string]*MemorySheet)}
}

// ID implements Workbook.
func (m *Memory) ID() string { return m.id }

// AddSheet creates a sheet. canonical marks the template.
func (m *Memory) AddSheet(name string, canonical bool) *MemorySheet {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextGID++
	s := newMemorySheet(name, m.nextGID, canonical)
	m.sheets[name] = s
	return s
}

// Names lists the sheets in sorted order.
func (m *Memory) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Sorted(maps.Keys(m.sheets))
}

// Sheet implements Workbook.
func (m *Memory) Sheet(_ context.Context, name string) (Sheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sheets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, name)
	}
	return s, nil
}

// Clone implements Workbook. Cells and merges are copied; images are too,
// as a real duplicate would.
func (m *Memory) Clone(_ context.Context, src Sheet, name string) (Sheet, error) {
	if m.CloneErr != nil {
		return nil, m.CloneErr
	}
	from, ok := src.(*MemorySheet)
	if !ok {
		return nil, fmt.Errorf("clone: foreign sheet %T", src)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sheets[name]; exists {
		return nil, fmt.Errorf("%w: %q", ErrSheetExists, name)
	}
	m.nextGID++
	dup := newMemorySheet(name, m.nextGID, false)
	from.mu.Lock()
	maps.Copy(dup.cells, from.cells)
	maps.Copy(dup.images, from.images)
	dup.merges = slices.Clone(from.merges)
	from.mu.Unlock()
	m.sheets[name] = dup
	return dup, nil
}

// Delete implements Workbook.
func (m *Memory) Delete(_ context.Context, s Sheet) error {
	if err := refuseCanonical(s); err != nil {
		return err
	}
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sheets[s.Name()]; !ok {
		return fmt.Errorf("%w: %q", ErrSheetNotFound, s.Name())
	}
	delete(m.sheets, s.Name())
	return nil
}

// MemorySheet is a Sheet held in memory.
type MemorySheet struct {
	name      string
	gid       int64
	canonical bool

	mu        sync.Mutex
	cells     map[cellguard.Cell]string
	images    map[cellguard.Cell]string
	merges    []cellguard.Range
	formats   []cellguard.Format
	mutations int
}

func newMemorySheet(name string, gid int64, canonical bool) *MemorySheet {
	return &MemorySheet{
		name:      name,
		gid:       gid,
		canonical: canonical,
		cells:     make(map[cellguard.Cell]string),
		images:    make(map[cellguard.Cell]string),
	}
}

// Set seeds a cell by A1 reference. It bypasses the canonical check so
// tests can build templates.
func (s *MemorySheet) Set(a1, value string) {
	c, err := cellguard.ParseCell(a1)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells[c] = value
}

// Get returns a cell by A1 reference.
func (s *MemorySheet) Get(a1 string) string {
	c, err := cellguard.ParseCell(a1)
	if err != nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cells[c]
}

// SetMerges replaces the merged regions.
func (s *MemorySheet) SetMerges(regions ...cellguard.Range) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.merges = slices.Clone(regions)
}

// SeedImage embeds an image without checks.
func (s *MemorySheet) SeedImage(c cellguard.Cell, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[c] = url
}

// Images returns a copy of the embedded images.
func (s *MemorySheet) Images() map[cellguard.Cell]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.images)
}

// Formats returns the formats applied so far.
func (s *MemorySheet) Formats() []cellguard.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.formats)
}

// Mutations counts successful mutating calls.
func (s *MemorySheet) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutations
}

// Name implements cellguard.Sheet.
func (s *MemorySheet) Name() string { return s.name }

// Canonical implements cellguard.Sheet.
func (s *MemorySheet) Canonical() bool { return s.canonical }

// GID implements Sheet.
func (s *MemorySheet) GID() int64 { return s.gid }

// Value implements cellguard.Sheet.
func (s *MemorySheet) Value(_ context.Context, c cellguard.Cell) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cells[c], nil
}

// SetValue implements cellguard.Sheet.
func (s *MemorySheet) SetValue(_ context.Context, c cellguard.Cell, value string) error {
	if err := refuseCanonical(s); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cells[c] = value
	s.mutations++
	return nil
}

// Merges implements Sheet.
func (s *MemorySheet) Merges(context.Context) ([]cellguard.Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.merges), nil
}

// ClearImages implements Sheet.
func (s *MemorySheet) ClearImages(context.Context) (int, error) {
	if err := refuseCanonical(s); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.images)
	clear(s.images)
	s.mutations++
	return n, nil
}

// PlaceImage implements Sheet.
func (s *MemorySheet) PlaceImage(_ context.Context, c cellguard.Cell, url string) error {
	if err := refuseCanonical(s); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[c] = url
	s.mutations++
	return nil
}

// Format implements Sheet.
func (s *MemorySheet) Format(_ context.Context, f cellguard.Format) error {
	if err := refuseCanonical(s); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.formats = append(s.formats, f)
	s.mutations++
	return nil
}
