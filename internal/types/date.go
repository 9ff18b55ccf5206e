package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Date is a partially known calendar date, held as an inclusive range of days.
// "1850" spans 1850-01-01..1850-12-31; "1850..1855" spans both years.
// The zero value is an unknown date.
type Date struct {
	start time.Time
	end   time.Time
}

// Unknown is the unknown date
var Unknown = Date{}

// Day returns an exact date
func Day(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{start: t, end: t}
}

// Month returns a date known to the month
func Month(year int, month time.Month) Date {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Date{start: start, end: start.AddDate(0, 1, -1)}
}

// Year returns a date known to the year
func Year(year int) Date {
	return Date{
		start: time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		end:   time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
	}
}

// Between returns the range from the start of a to the end of b.
// If either side is unknown the result is unknown.
func Between(a, b Date) Date {
	if !a.IsKnown() || !b.IsKnown() {
		return Unknown
	}
	return Date{start: a.start, end: b.end}
}

// IsKnown reports whether any part of the date is known
func (d Date) IsKnown() bool {
	return !d.start.IsZero()
}

// IsZero reports whether the date is unknown (used by omitempty encoders)
func (d Date) IsZero() bool {
	return !d.IsKnown()
}

// Start returns the earliest day in the range (zero if unknown)
func (d Date) Start() time.Time { return d.start }

// End returns the latest day in the range (zero if unknown)
func (d Date) End() time.Time { return d.end }

// Validate checks the range is ordered
func (d Date) Validate() error {
	if d.start.IsZero() != d.end.IsZero() {
		return fmt.Errorf("date range is half unknown")
	}
	if d.end.Before(d.start) {
		return fmt.Errorf("date range ends before it starts (%s > %s)",
			d.start.Format(time.DateOnly), d.end.Format(time.DateOnly))
	}
	return nil
}

// Overlaps reports whether the date range shares at least one day with [lo, hi].
// Unknown dates never overlap; an unknown bound is open-ended.
func (d Date) Overlaps(lo, hi Date) bool {
	if !d.IsKnown() {
		return false
	}
	if lo.IsKnown() && d.end.Before(lo.start) {
		return false
	}
	if hi.IsKnown() && d.start.After(hi.end) {
		return false
	}
	return true
}

// Compare orders dates by start then end. Unknown sorts before every known date.
func (d Date) Compare(o Date) int {
	switch {
	case !d.IsKnown() && !o.IsKnown():
		return 0
	case !d.IsKnown():
		return -1
	case !o.IsKnown():
		return 1
	}
	if c := d.start.Compare(o.start); c != 0 {
		return c
	}
	return d.end.Compare(o.end)
}

// MinYearsUntil returns the smallest whole number of years that can separate
// the date from t, or -1 if the date is unknown.
func (d Date) MinYearsUntil(t time.Time) int {
	if !d.IsKnown() {
		return -1
	}
	from := d.end
	years := t.Year() - from.Year()
	if t.YearDay() < from.YearDay() {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}

// String renders the date in the same syntax ParseDate accepts
func (d Date) String() string {
	if !d.IsKnown() {
		return ""
	}
	if d.start.Equal(d.end) {
		return d.start.Format(time.DateOnly)
	}
	if d.start.Day() == 1 && d.end.Equal(d.start.AddDate(0, 1, -1)) {
		return d.start.Format("2006-01")
	}
	if d.start.YearDay() == 1 && d.end.Month() == time.December && d.end.Day() == 31 {
		if d.start.Year() == d.end.Year() {
			return strconv.Itoa(d.start.Year())
		}
		return fmt.Sprintf("%d..%d", d.start.Year(), d.end.Year())
	}
	return d.start.Format(time.DateOnly) + ".." + d.end.Format(time.DateOnly)
}

// ParseDate parses "", "1850", "1850-03", "1850-03-02" or "<date>..<date>"
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unknown, nil
	}
	if lo, hi, ok := strings.Cut(s, ".."); ok {
		a, err := parseSingle(strings.TrimSpace(lo))
		if err != nil {
			return Unknown, err
		}
		b, err := parseSingle(strings.TrimSpace(hi))
		if err != nil {
			return Unknown, err
		}
		d := Between(a, b)
		if err := d.Validate(); err != nil {
			return Unknown, fmt.Errorf("invalid date %q: %w", s, err)
		}
		return d, nil
	}
	return parseSingle(s)
}

func parseSingle(s string) (Date, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return Day(t.Year(), t.Month(), t.Day()), nil
	}
	if t, err := time.Parse("2006-01", s); err == nil {
		return Month(t.Year(), t.Month()), nil
	}
	if y, err := strconv.Atoi(s); err == nil && y > 0 && y < 10000 {
		return Year(y), nil
	}
	return Unknown, fmt.Errorf("invalid date %q (expected YYYY, YYYY-MM, YYYY-MM-DD or a..b)", s)
}

// MarshalText implements encoding.TextMarshaler
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Date) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
// Bare years arrive as integers, so the raw scalar is parsed.
func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: date must be a scalar", node.Line)
	}
	if node.Tag == "!!null" {
		*d = Unknown
		return nil
	}
	return d.UnmarshalText([]byte(node.Value))
}
