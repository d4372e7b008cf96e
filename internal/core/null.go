package core

import "time"

// NullString is a string that may be absent from the feed.
type NullString struct {
	String string
	Valid  bool
}

// NullTime is a normalized date or datetime that may be absent.
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Str returns a present NullString.
func Str(s string) NullString {
	return NullString{String: s, Valid: true}
}

// At returns a present NullTime.
func At(t time.Time) NullTime {
	return NullTime{Time: t, Valid: true}
}

func (n NullString) OrDefault(def string) string {
	if !n.Valid {
		return def
	}
	return n.String
}

// Before reports whether both values are present and n is earlier than o.
func (n NullTime) Before(o NullTime) bool {
	return n.Valid && o.Valid && n.Time.Before(o.Time)
}
