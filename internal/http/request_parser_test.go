package http

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThreeSixtyGiving/Dashboard/internal/registry"
	"github.com/ThreeSixtyGiving/Dashboard/internal/treemap"
)

func TestParseFilters(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
		want  registry.Filters
	}{
		{
			name:  "empty query",
			query: url.Values{},
			want:  registry.Filters{LastModified: registry.WindowAll},
		},
		{
			name: "multi-select values",
			query: url.Values{
				"search":       {"  Trust \x00"},
				"licence":      {"https://creativecommons.org/licenses/by/4.0/", "https://example.org/a,b"},
				"currency":     {"gbp", "USD"},
				"filetype":     {"json"},
				"lastmodified": {"6month"},
			},
			want: registry.Filters{
				Search:       "Trust",
				Licence:      []string{"https://creativecommons.org/licenses/by/4.0/", "https://example.org/a,b"},
				Currency:     []string{"GBP", "USD"},
				FileType:     []string{"json"},
				LastModified: registry.Window6Month,
			},
		},
		{
			name:  "comma separated lists are split and de-duplicated",
			query: url.Values{"currency": {"GBP,EUR", "GBP"}, "fields": {"beneficiaryLocation, ,grantProgramme"}},
			want: registry.Filters{
				Currency:     []string{"GBP", "EUR"},
				Fields:       []string{"beneficiaryLocation", "grantProgramme"},
				LastModified: registry.WindowAll,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFilters(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFiltersRejectsBadInput(t *testing.T) {
	_, err := ParseFilters(url.Values{"lastmodified": {"yesterday"}})
	assert.Error(t, err)

	_, err = ParseFilters(url.Values{"search": {strings.Repeat("x", maxSearchLength+1)}})
	assert.Error(t, err)
}

func TestFiltersQueryRoundTrip(t *testing.T) {
	f := registry.Filters{
		Search:       "foundation",
		Licence:      []string{"https://example.org/licence"},
		Currency:     []string{"GBP"},
		FileType:     []string{"xlsx", "csv"},
		Fields:       []string{"plannedDates"},
		LastModified: registry.Window12Month,
	}
	got, err := ParseFilters(FiltersQuery(f))
	require.NoError(t, err)
	assert.Equal(t, f, got)

	assert.Empty(t, FiltersQuery(registry.Filters{LastModified: registry.WindowAll}))
}

func TestParseGroupBy(t *testing.T) {
	by, err := ParseGroupBy(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, registry.ByPublisherName, by)

	by, err = ParseGroupBy(url.Values{"by": {"file"}})
	require.NoError(t, err)
	assert.Equal(t, registry.ByIdentifier, by)

	_, err = ParseGroupBy(url.Values{"by": {"licence"}})
	assert.Error(t, err)
}

func TestParseTreemapParams(t *testing.T) {
	p, err := ParseTreemapParams(url.Values{}, "GBP")
	require.NoError(t, err)
	assert.Equal(t, treemap.MetricGrants, p.Metric)
	assert.Equal(t, float64(defaultTreemapWidth), p.Width)
	assert.Equal(t, float64(defaultTreemapHeight), p.Height)

	p, err = ParseTreemapParams(url.Values{"metric": {"amount"}, "width": {"300"}, "height": {"200.5"}}, "USD")
	require.NoError(t, err)
	assert.Equal(t, treemap.MetricAmount("USD"), p.Metric)
	assert.Equal(t, 300.0, p.Width)
	assert.Equal(t, 200.5, p.Height)

	for _, q := range []url.Values{
		{"metric": {"files"}},
		{"width": {"wide"}},
		{"width": {"0"}},
		{"height": {"-1"}},
		{"height": {"4001"}},
	} {
		_, err := ParseTreemapParams(q, "GBP")
		assert.Error(t, err, "query %v", q)
	}
}

func TestParsePublisherSort(t *testing.T) {
	assert.Equal(t, SortByGrants, ParsePublisherSort(url.Values{}))
	assert.Equal(t, SortByName, ParsePublisherSort(url.Values{"sort": {"name"}}))
	assert.Equal(t, SortByModified, ParsePublisherSort(url.Values{"sort": {" modified "}}))
	assert.Equal(t, SortByGrants, ParsePublisherSort(url.Values{"sort": {"random"}}))
}

func TestSanitizeInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"normal text", "normal text"},
		{"  trimmed  ", "trimmed"},
		{"with\x00null", "withnull"},
		{"with\ttab", "with\ttab"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeInput(tt.input), "sanitizeInput(%q)", tt.input)
	}
}
