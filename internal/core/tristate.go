package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TriState is a flag the data getter may confirm, fail or never report.
type TriState int

const (
	Unknown TriState = iota
	Confirmed
	Failed
)

// TriStateOf maps an optional boolean onto a TriState.
func TriStateOf(b *bool) TriState {
	switch {
	case b == nil:
		return Unknown
	case *b:
		return Confirmed
	default:
		return Failed
	}
}

func (t TriState) String() string {
	switch t {
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// UnmarshalJSON accepts true, false and null.
func (t *TriState) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = Unknown
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("tri-state flag %s: %w", data, err)
	}
	*t = TriStateOf(&b)
	return nil
}

func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case Confirmed:
		return []byte("true"), nil
	case Failed:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}
