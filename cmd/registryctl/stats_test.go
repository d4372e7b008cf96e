package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ThreeSixtyGiving/Dashboard/internal/core"
	"github.com/ThreeSixtyGiving/Dashboard/internal/registry"
)

func TestFilterFlags(t *testing.T) {
	f := filterFlags{
		search:       "  trust ",
		currencies:   []string{"gbp", " usd"},
		fileTypes:    []string{"json"},
		lastModified: "6month",
	}
	got, err := f.filters()
	require.NoError(t, err)
	assert.Equal(t, "trust", got.Search)
	assert.Equal(t, []string{"GBP", "USD"}, got.Currency)
	assert.Equal(t, []string{"json"}, got.FileType)
	assert.Equal(t, registry.Window6Month, got.LastModified)

	f.lastModified = "fortnight"
	_, err = f.filters()
	assert.Error(t, err)
}

func TestPrintPublishers(t *testing.T) {
	summaries := []registry.Summary{
		{
			Key:            registry.Key{Value: "Alpha Trust", Valid: true},
			Files:          2,
			Grants:         1200,
			CurrencyTotals: map[string]float64{"USD": 10, "GBP": 2500000},
			LastModified:   core.At(time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)),
		},
		{Files: 1, Grants: 3},
	}

	var buf bytes.Buffer
	require.NoError(t, printPublishers(&buf, summaries))
	out := buf.String()
	assert.Contains(t, out, "PUBLISHER")
	assert.Contains(t, out, "Alpha Trust")
	assert.Contains(t, out, "1,200")
	assert.Contains(t, out, "(unnamed)")
	assert.Contains(t, out, "2.5 million")
	assert.Contains(t, out, "2024")
}

func TestNewPublisherOutput(t *testing.T) {
	out := newPublisherOutput(registry.Summary{Files: 1})
	assert.Nil(t, out.Name)
	assert.Nil(t, out.LastModified)

	out = newPublisherOutput(registry.Summary{Key: registry.Key{Value: "Beta", Valid: true}})
	require.NotNil(t, out.Name)
	assert.Equal(t, "Beta", *out.Name)
}
