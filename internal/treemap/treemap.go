// Package treemap lays out publisher values as squarified rectangles.
package treemap

import (
	"sort"

	"github.com/nikolaydubina/treemap/layout"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ThreeSixtyGiving/Dashboard/internal/registry"
)

// LabelledCount is how many of the largest rectangles carry an inline label.
const LabelledCount = 4

// Palette is cycled through in layout order.
var Palette = []string{
	"rgb(166,206,227)",
	"rgb(31,120,180)",
	"rgb(178,223,138)",
	"rgb(51,160,44)",
	"rgb(251,154,153)",
	"rgb(227,26,28)",
}

type Item struct {
	Name  string
	Value float64
}

// Rect is one laid-out item. Label is empty outside the top LabelledCount.
type Rect struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	W         float64 `json:"w"`
	H         float64 `json:"h"`
	Name      string  `json:"name"`
	Value     float64 `json:"value"`
	Label     string  `json:"label,omitempty"`
	HoverText string  `json:"hover_text"`
	Fill      string  `json:"fill"`
}

// CenterX and CenterY locate the label anchor.
func (r Rect) CenterX() float64 { return r.X + r.W/2 }
func (r Rect) CenterY() float64 { return r.Y + r.H/2 }

var printer = message.NewPrinter(language.BritishEnglish)

// Layout sorts items descending by value, keeping input order for ties,
// scales them to fill width×height and squarifies them. Items with a
// non-positive value have no area and are left out.
func Layout(items []Item, width, height float64) []Rect {
	if width <= 0 || height <= 0 {
		return nil
	}

	kept := make([]Item, 0, len(items))
	total := 0.0
	for _, it := range items {
		if it.Value > 0 {
			kept = append(kept, it)
			total += it.Value
		}
	}
	if len(kept) == 0 {
		return nil
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Value > kept[j].Value })

	scale := width * height / total
	areas := make([]float64, len(kept))
	for i, it := range kept {
		areas[i] = it.Value * scale
	}

	boxes := layout.Squarify(layout.Box{X: 0, Y: 0, W: width, H: height}, areas)
	if len(boxes) != len(kept) {
		return nil
	}

	rects := make([]Rect, len(kept))
	for i, b := range boxes {
		it := kept[i]
		rects[i] = Rect{
			X:         b.X,
			Y:         b.Y,
			W:         b.W,
			H:         b.H,
			Name:      it.Name,
			Value:     it.Value,
			HoverText: printer.Sprintf("%s (%.0f)", it.Name, it.Value),
			Fill:      Palette[i%len(Palette)],
		}
		if i < LabelledCount {
			rects[i].Label = it.Name
		}
	}
	return rects
}

// Metric selects the value of a publisher in the treemap.
type Metric struct {
	Name     string
	Currency string
}

// MetricGrants sizes publishers by grant count.
var MetricGrants = Metric{Name: "grants"}

// MetricAmount sizes publishers by their total in currency.
func MetricAmount(currency string) Metric {
	return Metric{Name: "amount", Currency: currency}
}

// ParseMetric maps the query value onto a Metric.
func ParseMetric(s, currency string) (Metric, bool) {
	switch s {
	case "", "grants":
		return MetricGrants, true
	case "amount":
		return MetricAmount(currency), true
	}
	return Metric{}, false
}

func (m Metric) value(grp registry.Group) float64 {
	if m.Currency == "" {
		return float64(registry.TotalGrantCount(grp.Records))
	}
	return registry.CurrencyTotals(grp.Records)[m.Currency]
}

// FromGrouping builds one item per group in key order. Nameless groups
// are shown as unknown.
func FromGrouping(g *registry.Grouping, m Metric) []Item {
	groups := g.Groups()
	items := make([]Item, 0, len(groups))
	for _, grp := range groups {
		name := grp.Key.Value
		if !grp.Key.Valid {
			name = "Unknown publisher"
		}
		items = append(items, Item{Name: name, Value: m.value(grp)})
	}
	return items
}
