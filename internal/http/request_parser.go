// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Every dashboard view and API endpoint reads the same filter parameters, so
// they are parsed here once.

package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ThreeSixtyGiving/Dashboard/internal/registry"
	"github.com/ThreeSixtyGiving/Dashboard/internal/treemap"
)

// Query parameter names shared by the filter form and the JSON API.
const (
	paramSearch       = "search"
	paramLicence      = "licence"
	paramCurrency     = "currency"
	paramFileType     = "filetype"
	paramFields       = "fields"
	paramLastModified = "lastmodified"
	paramBy           = "by"
	paramMetric       = "metric"
	paramWidth        = "width"
	paramHeight       = "height"
	paramSort         = "sort"
)

const (
	defaultTreemapWidth  = 800
	defaultTreemapHeight = 500
	maxTreemapSide       = 4000
	maxSearchLength      = 200
)

// ParseFilters extracts the filter selections from query values. Multi-select
// controls send one value per selection. Currency, file type and field lists
// may also be comma separated; licences are URLs and are taken as sent.
func ParseFilters(query url.Values) (registry.Filters, error) {
	window, err := registry.ParseWindow(query.Get(paramLastModified))
	if err != nil {
		return registry.Filters{}, err
	}

	search := sanitizeInput(query.Get(paramSearch))
	if len(search) > maxSearchLength {
		return registry.Filters{}, fmt.Errorf("search must be at most %d characters", maxSearchLength)
	}

	currencies := multiValue(query, paramCurrency, true)
	for i, c := range currencies {
		currencies[i] = strings.ToUpper(c)
	}

	return registry.Filters{
		Search:       search,
		Licence:      multiValue(query, paramLicence, false),
		Currency:     currencies,
		FileType:     multiValue(query, paramFileType, true),
		Fields:       multiValue(query, paramFields, true),
		LastModified: window,
	}, nil
}

// FiltersQuery encodes filters back into query values.
func FiltersQuery(f registry.Filters) url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set(paramSearch, f.Search)
	}
	for _, v := range f.Licence {
		q.Add(paramLicence, v)
	}
	for _, v := range f.Currency {
		q.Add(paramCurrency, v)
	}
	for _, v := range f.FileType {
		q.Add(paramFileType, v)
	}
	for _, v := range f.Fields {
		q.Add(paramFields, v)
	}
	if f.LastModified != "" && f.LastModified != registry.WindowAll {
		q.Set(paramLastModified, string(f.LastModified))
	}
	return q
}

// multiValue collects the non-empty values of key, de-duplicated in
// request order.
func multiValue(query url.Values, key string, splitCommas bool) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(v string) {
		v = sanitizeInput(v)
		if v == "" {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, raw := range query[key] {
		if !splitCommas {
			add(raw)
			continue
		}
		for _, part := range strings.Split(raw, ",") {
			add(part)
		}
	}
	return out
}

// ParseGroupBy reads the grouping dimension, defaulting to publisher.
func ParseGroupBy(query url.Values) (registry.By, error) {
	v := strings.TrimSpace(query.Get(paramBy))
	if v == "" {
		return registry.ByPublisherName, nil
	}
	by, ok := registry.ParseBy(v)
	if !ok {
		return 0, fmt.Errorf("unknown grouping %q: must be publisher or file", v)
	}
	return by, nil
}

// TreemapParams holds the treemap metric and canvas size.
type TreemapParams struct {
	Metric treemap.Metric
	Width  float64
	Height float64
}

// ParseTreemapParams extracts the treemap metric and size. Amounts are
// measured in currency.
func ParseTreemapParams(query url.Values, currency string) (TreemapParams, error) {
	metric, ok := treemap.ParseMetric(strings.TrimSpace(query.Get(paramMetric)), currency)
	if !ok {
		return TreemapParams{}, fmt.Errorf("unknown treemap metric %q: must be grants or amount", query.Get(paramMetric))
	}

	width, err := parseSide(query.Get(paramWidth), defaultTreemapWidth)
	if err != nil {
		return TreemapParams{}, fmt.Errorf("width: %w", err)
	}
	height, err := parseSide(query.Get(paramHeight), defaultTreemapHeight)
	if err != nil {
		return TreemapParams{}, fmt.Errorf("height: %w", err)
	}

	return TreemapParams{Metric: metric, Width: width, Height: height}, nil
}

func parseSide(v string, def float64) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", v)
	}
	if n <= 0 || n > maxTreemapSide {
		return 0, fmt.Errorf("must be between 1 and %d", maxTreemapSide)
	}
	return n, nil
}

// PublisherSort orders the publisher cards.
type PublisherSort string

const (
	SortByGrants   PublisherSort = "grants"
	SortByName     PublisherSort = "name"
	SortByModified PublisherSort = "modified"
)

// ParsePublisherSort reads the card order, defaulting to grants.
func ParsePublisherSort(query url.Values) PublisherSort {
	switch s := PublisherSort(strings.TrimSpace(query.Get(paramSort))); s {
	case SortByName, SortByModified:
		return s
	default:
		return SortByGrants
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(result)
}
