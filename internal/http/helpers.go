package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/ThreeSixtyGiving/Dashboard/internal/core"
	"github.com/ThreeSixtyGiving/Dashboard/internal/format"
	"github.com/ThreeSixtyGiving/Dashboard/internal/license"
)

// templateFuncs are available to every template. ago is bound to the
// server clock.
func templateFuncs(now func() time.Time) template.FuncMap {
	return template.FuncMap{
		"plural":     format.Plural,
		"pluralWord": format.PluralWord,
		"number":     format.Number,
		"money": func(amount float64, code string) format.Money {
			return format.Currency(amount, code)
		},
		"moneyFull": format.CurrencyFull,
		"date": func(t core.NullTime) string {
			if !t.Valid {
				return ""
			}
			return format.Date(t.Time)
		},
		"ago": func(t core.NullTime) string {
			if !t.Valid {
				return ""
			}
			return format.Ago(t.Time, now())
		},
		"licence":    license.Resolve,
		"pathEscape": url.PathEscape,
		"has": func(list []string, v string) bool {
			return slices.Contains(list, v)
		},
		"percent": func(part, whole int) int {
			if whole <= 0 {
				return 0
			}
			return (part*100 + whole/2) / whole
		},
	}
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	_ = writeJSON(w, status, errorBody{Error: message})
}

func nullTimePtr(t core.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullStringPtr(s core.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
