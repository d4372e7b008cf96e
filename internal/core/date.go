package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Field paths of the feed that carry dates or datetimes.
const (
	FieldModified           = "modified"
	FieldDatetimeDownloaded = "datagetter_metadata.datetime_downloaded"
	FieldIssued             = "issued"
	FieldMaxAwardDate       = "datagetter_aggregates.max_award_date"
	FieldMinAwardDate       = "datagetter_aggregates.min_award_date"
)

// DateFields lists every normalized path in the order they are processed.
var DateFields = []string{
	FieldModified,
	FieldDatetimeDownloaded,
	FieldIssued,
	FieldMaxAwardDate,
	FieldMinAwardDate,
}

var (
	ErrUnrecognizedDate = errors.New("unrecognized date format")
	ErrDateNotString    = errors.New("date is not a string")
)

// MalformedDateError reports a present date field that could not be parsed.
type MalformedDateError struct {
	Field string
	Value string
	Err   error
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("malformed date in %s: %q: %v", e.Field, e.Value, e.Err)
}

func (e *MalformedDateError) Unwrap() error {
	return e.Err
}

// Layouts with an offset come first; the offset is parsed and then dropped.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the ISO date and datetime forms used by the feed.
// Any UTC offset is ignored: the wall clock is kept and re-anchored in UTC
// so that all comparisons are timezone-naive.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrUnrecognizedDate
	}
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return Naive(t), nil
	}
	return time.Time{}, ErrUnrecognizedDate
}

// Naive keeps the wall clock of t and re-anchors it in UTC.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// parseField parses an optional raw JSON value. Absent, null and empty
// values stay absent; anything other than a string is malformed.
func parseField(field string, raw json.RawMessage) (NullTime, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return NullTime{}, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return NullTime{}, &MalformedDateError{Field: field, Value: string(raw), Err: ErrDateNotString}
	}
	if strings.TrimSpace(s) == "" {
		return NullTime{}, nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return NullTime{}, &MalformedDateError{Field: field, Value: s, Err: err}
	}
	return At(t), nil
}
