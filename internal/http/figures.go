package http

import (
	"encoding/json"
	"time"

	"github.com/ThreeSixtyGiving/Dashboard/internal/registry"
)

// Plotly figures are built server side and embedded in the charts partial
// as JSON; static/charts.js draws them.

type plotTrace map[string]any

type plotFigure struct {
	Data   []plotTrace    `json:"data"`
	Layout map[string]any `json:"layout"`
}

// chartView is one chart of the charts partial.
type chartView struct {
	ID     string
	Title  string
	Figure string
	Empty  bool
}

// newFigure shows the first trace and adds a dropdown switching between
// the traces, labelled "By <trace name>".
func newFigure(title string, traces ...plotTrace) plotFigure {
	buttons := make([]map[string]any, len(traces))
	for i, tr := range traces {
		tr["visible"] = i == 0
		visible := make([]bool, len(traces))
		visible[i] = true
		buttons[i] = map[string]any{
			"label":  "By " + tr["name"].(string),
			"method": "update",
			"args":   []any{map[string]any{"visible": visible}},
		}
	}
	layout := map[string]any{
		"title":  map[string]any{"text": title},
		"margin": map[string]any{"t": 60, "r": 20, "b": 40, "l": 50},
	}
	if len(traces) > 1 {
		layout["updatemenus"] = []map[string]any{{
			"active":  0,
			"buttons": buttons,
			"y":       1.0,
			"yanchor": "top",
		}}
	}
	return plotFigure{Data: traces, Layout: layout}
}

func (f plotFigure) fixedAxes() plotFigure {
	f.Layout["xaxis"] = map[string]any{"fixedrange": true}
	f.Layout["yaxis"] = map[string]any{"fixedrange": true}
	return f
}

func chart(id, title string, fig plotFigure, empty bool) chartView {
	b, err := json.Marshal(fig)
	if err != nil {
		return chartView{ID: id, Title: title, Empty: true}
	}
	return chartView{ID: id, Title: title, Figure: string(b), Empty: empty}
}

func currencyChart(u registry.CurrencyUsage) chartView {
	fig := newFigure("Currency used",
		plotTrace{"x": u.Currencies, "y": u.Publishers, "type": "bar", "name": "Publishers"},
		plotTrace{"x": u.Currencies, "y": u.Files, "type": "bar", "name": "Files"},
		plotTrace{"x": u.Currencies, "y": u.Grants, "type": "bar", "name": "Grants"},
	)
	return chart("currencies-used", "Currencies used", fig, len(u.Currencies) == 0)
}

func yearsChart(yc registry.YearCoverage) chartView {
	fig := newFigure("Years covered",
		plotTrace{"x": yc.Years, "y": yc.Publishers, "type": "scatter", "mode": "lines", "name": "Publishers"},
		plotTrace{"x": yc.Years, "y": yc.Files, "type": "scatter", "mode": "lines", "name": "Files"},
		plotTrace{"x": yc.Years, "y": yc.Grants, "type": "scatter", "mode": "lines", "name": "Grants"},
	).fixedAxes()
	return chart("years-covered", "Years covered", fig, len(yc.Years) == 0)
}

func grantCountChart(d registry.GrantCountDistribution) chartView {
	fig := newFigure("Number of grants",
		plotTrace{"x": d.PerPublisher, "type": "histogram", "name": "Publishers"},
		plotTrace{"x": d.PerFile, "type": "histogram", "name": "Files"},
	)
	return chart("number-of-grants", "Number of grants", fig, len(d.PerFile) == 0)
}

func issuedChart(s registry.IssuedSeries) chartView {
	files := plotDates(s.Files)
	fig := newFigure("By date published",
		plotTrace{"x": plotDates(s.PublisherFirst), "type": "histogram", "name": "Publishers"},
		plotTrace{"x": files, "type": "histogram", "name": "Files"},
		plotTrace{"x": files, "y": s.FileGrants, "histfunc": "sum", "type": "histogram", "name": "Grant count"},
		plotTrace{"x": files, "y": s.FileAmounts, "histfunc": "sum", "type": "histogram", "name": "Grant amount (" + s.Currency + ")"},
	)
	return chart("files-issued", "Year issued", fig, len(s.Files) == 0)
}

func plotDates(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Format("2006-01-02")
	}
	return out
}
