package cellguard

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/alnah/go-claimpdf/internal/yamlutil"
)

// ErrInvalidLayout indicates a layout definition that cannot be compiled.
var ErrInvalidLayout = errors.New("invalid template layout")

// Part table attribute names.
const (
	PartNumber   = "partNumber"
	PartName     = "name"
	PartQuantity = "quantity"
)

// Layout is the static description of the legacy cell template: where each
// logical field lands, which rectangles may be written, where the parts
// table and signature images live, and presentation rules for the copy.
// A Layout is read-only once compiled.
type Layout struct {
	TemplateSheet string
	Fields        map[string]Cell
	Zones         []Range
	Parts         PartsTable
	Images        map[string]Cell
	Format        Format
}

// PartsTable describes the affected-parts grid.
type PartsTable struct {
	StartRow  int
	EndRow    int
	KeyColumn int
	Columns   map[string]int // attribute -> column index
}

// Format holds presentation rules applied to the scratch copy only.
type Format struct {
	Wrap       []Range
	AlignTop   []Range
	RowHeights map[int]int // row -> pixels
}

// layoutFile is the YAML shape of a layout.
type layoutFile struct {
	TemplateSheet string            `yaml:"templateSheet"`
	Fields        map[string]string `yaml:"fields"`
	Zones         []string          `yaml:"zones"`
	Parts         struct {
		StartRow  int               `yaml:"startRow"`
		EndRow    int               `yaml:"endRow"`
		KeyColumn string            `yaml:"keyColumn"`
		Columns   map[string]string `yaml:"columns"`
	} `yaml:"parts"`
	Images map[string]string `yaml:"images"`
	Format struct {
		Wrap       []string       `yaml:"wrap"`
		AlignTop   []string       `yaml:"alignTop"`
		RowHeights map[string]int `yaml:"rowHeights"`
	} `yaml:"format"`
}

// LoadLayout compiles a YAML layout definition.
func LoadLayout(data []byte) (*Layout, error) {
	var f layoutFile
	if err := yamlutil.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLayout, err)
	}

	l := &Layout{
		TemplateSheet: f.TemplateSheet,
		Fields:        make(map[string]Cell, len(f.Fields)),
		Images:        make(map[string]Cell, len(f.Images)),
		Format:        Format{RowHeights: make(map[int]int, len(f.Format.RowHeights))},
	}

	for name, ref := range f.Fields {
		c, err := ParseCell(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidLayout, name, err)
		}
		l.Fields[name] = c
	}
	for name, ref := range f.Images {
		c, err := ParseCell(ref)
		if err != nil {
			return nil, fmt.Errorf("%w: image %q: %v", ErrInvalidLayout, name, err)
		}
		l.Images[name] = c
	}

	var err error
	if l.Zones, err = parseRanges(f.Zones); err != nil {
		return nil, fmt.Errorf("%w: zones: %v", ErrInvalidLayout, err)
	}
	if l.Format.Wrap, err = parseRanges(f.Format.Wrap); err != nil {
		return nil, fmt.Errorf("%w: format.wrap: %v", ErrInvalidLayout, err)
	}
	if l.Format.AlignTop, err = parseRanges(f.Format.AlignTop); err != nil {
		return nil, fmt.Errorf("%w: format.alignTop: %v", ErrInvalidLayout, err)
	}
	for row, px := range f.Format.RowHeights {
		n, err := strconv.Atoi(row)
		if err != nil || n < 1 || px < 1 {
			return nil, fmt.Errorf("%w: row height %q=%d", ErrInvalidLayout, row, px)
		}
		l.Format.RowHeights[n] = px
	}

	l.Parts = PartsTable{
		StartRow: f.Parts.StartRow,
		EndRow:   f.Parts.EndRow,
		Columns:  make(map[string]int, len(f.Parts.Columns)),
	}
	if f.Parts.KeyColumn != "" {
		if l.Parts.KeyColumn, err = ParseColumn(f.Parts.KeyColumn); err != nil {
			return nil, fmt.Errorf("%w: parts.keyColumn: %v", ErrInvalidLayout, err)
		}
	}
	for attr, col := range f.Parts.Columns {
		n, err := ParseColumn(col)
		if err != nil {
			return nil, fmt.Errorf("%w: parts column %q: %v", ErrInvalidLayout, attr, err)
		}
		l.Parts.Columns[attr] = n
	}

	if err := l.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Validate checks structural consistency. Whether a field anchor lies in a
// fillable zone is deliberately not checked here: that is enforced per write,
// after merged-region normalization.
func (l *Layout) Validate() error {
	if l.TemplateSheet == "" {
		return fmt.Errorf("%w: templateSheet is required", ErrInvalidLayout)
	}
	if len(l.Zones) == 0 {
		return fmt.Errorf("%w: at least one fillable zone is required", ErrInvalidLayout)
	}
	if l.Parts.StartRow != 0 || l.Parts.EndRow != 0 {
		if l.Parts.StartRow < 1 || l.Parts.EndRow < l.Parts.StartRow {
			return fmt.Errorf("%w: parts rows %d..%d", ErrInvalidLayout, l.Parts.StartRow, l.Parts.EndRow)
		}
		if l.Parts.KeyColumn == 0 {
			return fmt.Errorf("%w: parts.keyColumn is required", ErrInvalidLayout)
		}
	}
	return nil
}

// InZone reports whether c lies inside at least one fillable zone.
func (l *Layout) InZone(c Cell) bool {
	for _, z := range l.Zones {
		if z.Contains(c) {
			return true
		}
	}
	return false
}

// FieldNames returns the configured logical field names in sorted order.
func (l *Layout) FieldNames() []string {
	names := make([]string, 0, len(l.Fields))
	for name := range l.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseRanges(refs []string) ([]Range, error) {
	out := make([]Range, 0, len(refs))
	for _, ref := range refs {
		r, err := ParseRange(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
