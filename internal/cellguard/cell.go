package cellguard

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCoordinate indicates an A1 reference that cannot be parsed.
var ErrInvalidCoordinate = errors.New("invalid cell coordinate")

// maxColumn caps column letters at "ZZZ" to reject garbage early.
const maxColumn = 18278

// Cell is a 1-based sheet coordinate.
type Cell struct {
	Row int
	Col int
}

// A1 returns the cell in A1 notation (e.g. "C12").
func (c Cell) A1() string {
	return ColumnName(c.Col) + strconv.Itoa(c.Row)
}

// String implements fmt.Stringer.
func (c Cell) String() string {
	return c.A1()
}

// Range is an inclusive rectangle of cells.
type Range struct {
	Start Cell
	End   Cell
}

// Contains reports whether c lies inside the range.
func (r Range) Contains(c Cell) bool {
	return c.Row >= r.Start.Row && c.Row <= r.End.Row &&
		c.Col >= r.Start.Col && c.Col <= r.End.Col
}

// A1 returns the range in A1 notation ("B5:H12", or "B5" for a single cell).
func (r Range) A1() string {
	if r.Start == r.End {
		return r.Start.A1()
	}
	return r.Start.A1() + ":" + r.End.A1()
}

// String implements fmt.Stringer.
func (r Range) String() string {
	return r.A1()
}

// ParseCell parses an A1 reference such as "B12". Case-insensitive.
func ParseCell(s string) (Cell, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	i := 0
	for i < len(s) && s[i] >= 'A' && s[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(s) {
		return Cell{}, fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
	}

	col, err := ParseColumn(s[:i])
	if err != nil {
		return Cell{}, err
	}
	row, err := strconv.Atoi(s[i:])
	if err != nil || row < 1 {
		return Cell{}, fmt.Errorf("%w: %q", ErrInvalidCoordinate, s)
	}
	return Cell{Row: row, Col: col}, nil
}

// ParseRange parses "B5:H12" or a single cell "B5". Corners are normalized
// so Start is always the top-left.
func ParseRange(s string) (Range, error) {
	start, end, found := strings.Cut(s, ":")
	a, err := ParseCell(start)
	if err != nil {
		return Range{}, err
	}
	if !found {
		return Range{Start: a, End: a}, nil
	}
	b, err := ParseCell(end)
	if err != nil {
		return Range{}, err
	}
	return Range{
		Start: Cell{Row: min(a.Row, b.Row), Col: min(a.Col, b.Col)},
		End:   Cell{Row: max(a.Row, b.Row), Col: max(a.Col, b.Col)},
	}, nil
}

// ParseColumn converts column letters ("A", "AB") to a 1-based index.
func ParseColumn(s string) (int, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("%w: empty column", ErrInvalidCoordinate)
	}
	n := 0
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("%w: column %q", ErrInvalidCoordinate, s)
		}
		n = n*26 + int(r-'A'+1)
		if n > maxColumn {
			return 0, fmt.Errorf("%w: column %q out of range", ErrInvalidCoordinate, s)
		}
	}
	return n, nil
}

// ColumnName converts a 1-based column index to letters.
func ColumnName(col int) string {
	if col < 1 {
		return ""
	}
	var buf [4]byte
	i := len(buf)
	for col > 0 {
		col--
		i--
		buf[i] = byte('A' + col%26)
		col /= 26
	}
	return string(buf[i:])
}
