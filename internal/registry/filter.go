package registry

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ThreeSixtyGiving/Dashboard/internal/core"
)

// Window is a last-modified filter window.
type Window string

const (
	WindowAll       Window = "all"
	WindowLastMonth Window = "lastmonth"
	Window6Month    Window = "6month"
	Window12Month   Window = "12month"
)

var windowDays = map[Window]int{
	WindowLastMonth: 30,
	Window6Month:    182,
	Window12Month:   365,
}

// ParseWindow validates a window value. The empty string means WindowAll.
func ParseWindow(s string) (Window, error) {
	w := Window(strings.TrimSpace(s))
	switch w {
	case "", WindowAll:
		return WindowAll, nil
	case WindowLastMonth, Window6Month, Window12Month:
		return w, nil
	}
	return "", fmt.Errorf("unknown last-modified window %q", s)
}

// Cutoff returns the earliest accepted modified instant, or false when the
// window imposes no constraint.
func (w Window) Cutoff(now time.Time) (time.Time, bool) {
	days, ok := windowDays[w]
	if !ok {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -days), true
}

// Filters holds the user's filter selections. Zero values impose no
// constraint.
type Filters struct {
	Search       string   `json:"search,omitempty"`
	Licence      []string `json:"licence,omitempty"`
	Currency     []string `json:"currency,omitempty"`
	FileType     []string `json:"filetype,omitempty"`
	Fields       []string `json:"fields,omitempty"`
	LastModified Window   `json:"last_modified,omitempty"`
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return strings.TrimSpace(f.Search) == "" &&
		len(f.Licence) == 0 &&
		len(f.Currency) == 0 &&
		len(f.FileType) == 0 &&
		len(f.Fields) == 0 &&
		(f.LastModified == "" || f.LastModified == WindowAll)
}

// Predicate reports whether a record passes one filter category.
type Predicate func(core.Record) bool

// Predicates turns the selections into predicates, one per supplied
// category. now anchors the last-modified window.
func (f Filters) Predicates(now time.Time) []Predicate {
	var preds []Predicate
	if s := strings.TrimSpace(f.Search); s != "" {
		preds = append(preds, PublisherContains(s))
	}
	if len(f.Licence) > 0 {
		preds = append(preds, LicenceIn(f.Licence...))
	}
	if len(f.Currency) > 0 {
		preds = append(preds, ReportsCurrency(f.Currency...))
	}
	if len(f.FileType) > 0 {
		preds = append(preds, FileTypeIn(f.FileType...))
	}
	if len(f.Fields) > 0 {
		preds = append(preds, CoversAnyField(f.Fields...))
	}
	if cutoff, ok := f.LastModified.Cutoff(now); ok {
		preds = append(preds, ModifiedSince(cutoff))
	}
	return preds
}

// Match reports whether r satisfies every predicate.
func Match(r core.Record, preds ...Predicate) bool {
	for _, p := range preds {
		if !p(r) {
			return false
		}
	}
	return true
}

// Filter returns the records matching every predicate, in input order.
func Filter(records []core.Record, preds ...Predicate) []core.Record {
	out := make([]core.Record, 0, len(records))
	for _, r := range records {
		if Match(r, preds...) {
			out = append(out, r)
		}
	}
	return out
}

// PublisherContains matches a case-insensitive substring of the publisher
// name. Nameless records never match.
func PublisherContains(s string) Predicate {
	needle := strings.ToLower(s)
	return func(r core.Record) bool {
		return r.Publisher.Name.Valid && strings.Contains(strings.ToLower(r.Publisher.Name.String), needle)
	}
}

func LicenceIn(licences ...string) Predicate {
	return func(r core.Record) bool {
		return r.License.Valid && slices.Contains(licences, r.License.String)
	}
}

// ReportsCurrency matches records whose aggregates include any of codes.
func ReportsCurrency(codes ...string) Predicate {
	return func(r core.Record) bool {
		for _, c := range codes {
			if r.HasCurrency(c) {
				return true
			}
		}
		return false
	}
}

func FileTypeIn(types ...string) Predicate {
	return func(r core.Record) bool {
		return r.Metadata.FileType != "" && slices.Contains(types, r.Metadata.FileType)
	}
}

// CoversAnyField matches records whose coverage map names any of fields.
func CoversAnyField(fields ...string) Predicate {
	return func(r core.Record) bool {
		for _, f := range fields {
			if _, ok := r.Coverage[f]; ok {
				return true
			}
		}
		return false
	}
}

func ModifiedSince(cutoff time.Time) Predicate {
	return func(r core.Record) bool {
		return r.ModifiedSince(cutoff)
	}
}
