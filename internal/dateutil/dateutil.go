// Package dateutil converts user-friendly date patterns (YYYYMMDD, DD/MM/YYYY)
// into Go layouts. Document ID prefixes and dates printed on claim documents
// are both configured with these patterns.
package dateutil

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidDateFormat indicates an invalid date format string.
var ErrInvalidDateFormat = errors.New("invalid date format")

// MaxDateFormatLength limits format string length to prevent abuse.
const MaxDateFormatLength = 50

// DefaultPrefixFormat yields prefixes like "CLM-20260114".
const DefaultPrefixFormat = "[CLM-]YYYYMMDD"

// DefaultDisplayFormat is used for dates printed on documents.
const DefaultDisplayFormat = "DD/MM/YYYY"

// dateTokens maps user-friendly tokens to Go time format components.
// Ordered by length descending for greedy matching.
var dateTokens = []struct {
	token string
	goFmt string
}{
	{"YYYY", "2006"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"YY", "06"},
	{"MM", "01"},
	{"DD", "02"},
	{"HH", "15"},
	{"mm", "04"},
	{"M", "1"},
	{"D", "2"},
}

// Presets provides named shortcuts for common date formats.
var Presets = map[string]string{
	"iso":      "YYYY-MM-DD",
	"compact":  "YYYYMMDD",
	"european": "DD/MM/YYYY",
	"us":       "MM/DD/YYYY",
	"long":     "MMMM D, YYYY",
}

// ParseDateFormat converts a user-friendly format string to Go's time format.
// Tokens: YYYY, YY, MMMM, MMM, MM, M, DD, D, HH, mm.
// Brackets escape literal text: [CLM-] is kept as "CLM-".
// Named presets are accepted in place of a pattern.
func ParseDateFormat(format string) (string, error) {
	if format == "" {
		return "", fmt.Errorf("%w: format cannot be empty", ErrInvalidDateFormat)
	}
	if len(format) > MaxDateFormatLength {
		return "", fmt.Errorf("%w: format exceeds %d characters", ErrInvalidDateFormat, MaxDateFormatLength)
	}
	if preset, ok := Presets[strings.ToLower(format)]; ok {
		format = preset
	}

	var result strings.Builder
	result.Grow(len(format) + 10)

	i := 0
	for i < len(format) {
		if format[i] == '[' {
			end := strings.Index(format[i+1:], "]")
			if end == -1 {
				return "", fmt.Errorf("%w: unclosed bracket at position %d", ErrInvalidDateFormat, i)
			}
			literal := format[i+1 : i+1+end]
			if strings.ContainsAny(literal, "0123456789") {
				// Digits would be read back as layout components by time.Format.
				return "", fmt.Errorf("%w: digits are not allowed in literal %q", ErrInvalidDateFormat, literal)
			}
			result.WriteString(literal)
			i += end + 2
			continue
		}

		matched := false
		for _, t := range dateTokens {
			if strings.HasPrefix(format[i:], t.token) {
				result.WriteString(t.goFmt)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			result.WriteByte(format[i])
			i++
		}
	}

	return result.String(), nil
}

// Format renders t with a user-friendly pattern.
func Format(format string, t time.Time) (string, error) {
	layout, err := ParseDateFormat(format)
	if err != nil {
		return "", err
	}
	return t.Format(layout), nil
}

// Reformat parses value with any of the accepted input layouts and renders it
// with format. Values that parse with none of them are returned unchanged so
// free-text dates survive untouched.
func Reformat(value, format string) (string, error) {
	layout, err := ParseDateFormat(format)
	if err != nil {
		return "", err
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return "", nil
	}
	for _, in := range inputLayouts {
		if t, err := time.Parse(in, v); err == nil {
			return t.Format(layout), nil
		}
	}
	return value, nil
}

// inputLayouts are the shapes record stores hand back for date columns.
var inputLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}
