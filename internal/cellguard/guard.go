// Package cellguard maps logical claim fields onto the legacy cell template
// and refuses any write that would land outside a declared fillable zone.
//
// Every write is resolved in two steps: the field's configured anchor is
// normalized to the top-left cell of its merged region (if any), and the
// result must lie inside a fillable zone. A write that fails the second step
// is a StructuralWriteViolation and the sheet is left untouched.
package cellguard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Sentinel errors for guarded writes.
var (
	ErrStructuralWriteViolation = errors.New("structural write violation")
	ErrCanonicalTemplate        = errors.New("refusing to modify canonical template")
	ErrUnknownField             = errors.New("unknown template field")
)

// logValueLimit bounds how much of a written value reaches the log.
const logValueLimit = 40

// ViolationError describes a write that resolved outside every fillable zone.
type ViolationError struct {
	Field     string
	Requested Cell
	Resolved  Cell
}

func (e *ViolationError) Error() string {
	if e.Requested == e.Resolved {
		return fmt.Sprintf("%v: field %q at %s is outside every fillable zone",
			ErrStructuralWriteViolation, e.Field, e.Resolved)
	}
	return fmt.Sprintf("%v: field %q at %s (anchor %s) is outside every fillable zone",
		ErrStructuralWriteViolation, e.Field, e.Requested, e.Resolved)
}

func (e *ViolationError) Unwrap() error {
	return ErrStructuralWriteViolation
}

// Sheet is the minimal surface the guard needs from a worksheet.
type Sheet interface {
	Name() string
	Canonical() bool
	Value(ctx context.Context, c Cell) (string, error)
	SetValue(ctx context.Context, c Cell, value string) error
}

// Guard performs zone-checked writes against a scratch sheet.
type Guard struct {
	layout *Layout
	merges MergeMap
	logger *zap.Logger
}

// New creates a Guard for one scratch sheet. merges must come from that
// sheet; a nil logger disables logging.
func New(layout *Layout, merges MergeMap, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{layout: layout, merges: merges, logger: logger}
}

// AssertScratch refuses the canonical template. It must run before any
// mutation of a sheet.
func (g *Guard) AssertScratch(s Sheet) error {
	return AssertScratch(s, g.layout.TemplateSheet)
}

// AssertScratch refuses s when it is, or is named like, the canonical template.
func AssertScratch(s Sheet, templateName string) error {
	if s == nil {
		return fmt.Errorf("%w: nil sheet", ErrCanonicalTemplate)
	}
	if s.Canonical() || (templateName != "" && s.Name() == templateName) {
		return fmt.Errorf("%w: %q", ErrCanonicalTemplate, s.Name())
	}
	return nil
}

// Target resolves a logical field to the physical cell a write would hit,
// without writing.
func (g *Guard) Target(s Sheet, field string) (Cell, error) {
	if err := g.AssertScratch(s); err != nil {
		return Cell{}, err
	}
	c, ok := g.layout.Fields[field]
	if !ok {
		c, ok = g.layout.Images[field]
	}
	if !ok {
		return Cell{}, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return g.resolve(field, c)
}

// Write stores value at the field's anchor cell. An out-of-zone target is a
// violation even for an empty value; in-zone empty values are skipped.
func (g *Guard) Write(ctx context.Context, s Sheet, field, value string) error {
	if err := g.AssertScratch(s); err != nil {
		return err
	}
	c, ok := g.layout.Fields[field]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	return g.writeAt(ctx, s, field, c, value)
}

// WriteAt applies the same checks as Write to a computed coordinate, such
// as a parts table row. label names the write in logs and errors.
func (g *Guard) WriteAt(ctx context.Context, s Sheet, label string, c Cell, value string) error {
	if err := g.AssertScratch(s); err != nil {
		return err
	}
	return g.writeAt(ctx, s, label, c, value)
}

func (g *Guard) writeAt(ctx context.Context, s Sheet, label string, c Cell, value string) error {
	target, err := g.resolve(label, c)
	if err != nil {
		g.logger.Error("guarded write rejected", zap.String("field", label), zap.Error(err))
		return err
	}

	if strings.TrimSpace(value) == "" {
		g.logger.Debug("skipping empty value", zap.String("field", label), zap.String("cell", target.A1()))
		return nil
	}

	if existing, err := s.Value(ctx, target); err == nil && strings.TrimSpace(existing) != "" {
		g.logger.Warn("overwriting non-empty cell",
			zap.String("field", label),
			zap.String("cell", target.A1()),
			zap.String("existing", truncate(existing)))
	}

	if err := s.SetValue(ctx, target, value); err != nil {
		return fmt.Errorf("writing %s to %s: %w", label, target.A1(), err)
	}

	g.logger.Info("cell written",
		zap.String("sheet", s.Name()),
		zap.String("field", label),
		zap.String("cell", target.A1()),
		zap.String("value", truncate(value)))
	return nil
}

// resolve applies the merged-region anchor rule then the fillable zone check.
func (g *Guard) resolve(label string, c Cell) (Cell, error) {
	anchor, _ := g.merges.Anchor(c)
	if !g.layout.InZone(anchor) {
		return Cell{}, &ViolationError{Field: label, Requested: c, Resolved: anchor}
	}
	return anchor, nil
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= logValueLimit {
		return s
	}
	r := []rune(s)
	return string(r[:logValueLimit]) + "…"
}
