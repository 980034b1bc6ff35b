package cellguard

import (
	"errors"
	"testing"
)

func TestParseCell(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Cell
		wantErr bool
	}{
		{in: "A1", want: Cell{Row: 1, Col: 1}},
		{in: "c12", want: Cell{Row: 12, Col: 3}},
		{in: "Z9", want: Cell{Row: 9, Col: 26}},
		{in: "AA3", want: Cell{Row: 3, Col: 27}},
		{in: " AB10 ", want: Cell{Row: 10, Col: 28}},
		{in: "", wantErr: true},
		{in: "12", wantErr: true},
		{in: "B", wantErr: true},
		{in: "B0", wantErr: true},
		{in: "B-1", wantErr: true},
		{in: "AAAA1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseCell(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCoordinate) {
					t.Errorf("ParseCell(%q) error = %v, want ErrInvalidCoordinate", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCell(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseCell(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestColumnName_RoundTrip(t *testing.T) {
	t.Parallel()

	for col := 1; col <= 800; col++ {
		name := ColumnName(col)
		got, err := ParseColumn(name)
		if err != nil || got != col {
			t.Fatalf("ParseColumn(ColumnName(%d)=%q) = %d, %v", col, name, got, err)
		}
	}
	if ColumnName(0) != "" {
		t.Error("ColumnName(0) should be empty")
	}
}

func TestParseRange(t *testing.T) {
	t.Parallel()

	r, err := ParseRange("H12:B5")
	if err != nil {
		t.Fatalf("ParseRange error = %v", err)
	}
	if r.A1() != "B5:H12" {
		t.Errorf("normalized range = %s, want B5:H12", r.A1())
	}
	if !r.Contains(Cell{Row: 5, Col: 2}) || !r.Contains(Cell{Row: 12, Col: 8}) {
		t.Error("corners should be contained")
	}
	if r.Contains(Cell{Row: 13, Col: 2}) || r.Contains(Cell{Row: 5, Col: 9}) {
		t.Error("cells outside should not be contained")
	}

	single, err := ParseRange("D4")
	if err != nil || single.A1() != "D4" {
		t.Errorf("ParseRange(D4) = %v, %v", single, err)
	}

	if _, err := ParseRange("B5:?"); err == nil {
		t.Error("ParseRange(B5:?) should fail")
	}
}

func TestLoadLayout_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
	}{
		{name: "missing template sheet", yaml: "zones: [A1:B2]\n"},
		{name: "no zones", yaml: "templateSheet: T\n"},
		{name: "bad field cell", yaml: "templateSheet: T\nzones: [A1:B2]\nfields: {x: \"1A\"}\n"},
		{name: "bad zone", yaml: "templateSheet: T\nzones: [\"A1:\"]\n"},
		{name: "parts rows inverted", yaml: "templateSheet: T\nzones: [A1:B2]\nparts: {startRow: 9, endRow: 3, keyColumn: B}\n"},
		{name: "parts without key column", yaml: "templateSheet: T\nzones: [A1:B2]\nparts: {startRow: 3, endRow: 9}\n"},
		{name: "bad row height", yaml: "templateSheet: T\nzones: [A1:B2]\nformat: {rowHeights: {\"x\": 20}}\n"},
		{name: "unknown key", yaml: "templateSheet: T\nzones: [A1:B2]\nbogus: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := LoadLayout([]byte(tt.yaml)); !errors.Is(err, ErrInvalidLayout) {
				t.Errorf("LoadLayout() error = %v, want ErrInvalidLayout", err)
			}
		})
	}
}

func TestLayout_FieldNamesSorted(t *testing.T) {
	t.Parallel()

	l := &Layout{Fields: map[string]Cell{"vin": {}, "dealerName": {}, "complaint": {}}}
	got := l.FieldNames()
	want := []string{"complaint", "dealerName", "vin"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("FieldNames() = %v, want %v", got, want)
		}
	}
}
