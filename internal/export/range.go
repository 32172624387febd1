// Package export builds the inclusive UTC range used to query historical
// readings for export.
package export

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Query parameter names understood by the export endpoint.
const (
	ParamStart = "inicio"
	ParamEnd   = "fim"
)

const (
	minuteLayout = "2006-01-02T15:04"
	secondLayout = "2006-01-02T15:04:05"
)

// ValidationError reports a bound that is missing or malformed. It is raised
// before any request is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Range is an inclusive interval with both bounds rendered as UTC instants.
type Range struct {
	Start string
	End   string
}

// NewRange validates two minute-precision wall clock values and renders them
// with zero seconds and a Z suffix. Values that already carry seconds are
// accepted as-is.
//
// The wall clock value is relabelled as UTC without conversion.
func NewRange(startLocal, endLocal string) (Range, error) {
	start, startAt, err := normalize(ParamStart, startLocal)
	if err != nil {
		return Range{}, err
	}
	end, endAt, err := normalize(ParamEnd, endLocal)
	if err != nil {
		return Range{}, err
	}
	if startAt.After(endAt) {
		return Range{}, &ValidationError{Field: ParamEnd, Reason: "must not be before " + ParamStart}
	}
	return Range{Start: start, End: end}, nil
}

// BuildRange returns the encoded query string for the inclusive range
// between the two bounds, start first.
func BuildRange(startLocal, endLocal string) (string, error) {
	r, err := NewRange(startLocal, endLocal)
	if err != nil {
		return "", err
	}
	return r.Query(), nil
}

// Query renders "inicio=<start>&fim=<end>" with both values percent-encoded.
func (r Range) Query() string {
	return ParamStart + "=" + url.QueryEscape(r.Start) + "&" + ParamEnd + "=" + url.QueryEscape(r.End)
}

// Bounds returns both bounds parsed as UTC instants.
func (r Range) Bounds() (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, r.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(time.RFC3339, r.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

// Contains reports whether t falls inside the range, both ends included.
func (r Range) Contains(t time.Time) bool {
	start, end, err := r.Bounds()
	if err != nil {
		return false
	}
	return !t.Before(start) && !t.After(end)
}

func normalize(field, raw string) (string, time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", time.Time{}, &ValidationError{Field: field, Reason: "required"}
	}

	if t, err := time.Parse(minuteLayout, raw); err == nil {
		return raw + ":00Z", t, nil
	}
	if t, err := time.Parse(secondLayout, raw); err == nil {
		return raw + "Z", t, nil
	}
	return "", time.Time{}, &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("%q is not in YYYY-MM-DDTHH:MM form", raw),
	}
}
