package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ThreeSixtyGiving/Dashboard/internal/feed"
	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
	"github.com/ThreeSixtyGiving/Dashboard/internal/registry"
	"github.com/ThreeSixtyGiving/Dashboard/internal/treemap"
)

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/")
}

type snapshotJSON struct {
	URL       string    `json:"url"`
	Records   int       `json:"records"`
	Malformed int       `json:"malformed_dates"`
	Skipped   int       `json:"skipped_records"`
	FetchedAt time.Time `json:"fetched_at"`
	FromCache bool      `json:"from_cache"`
}

func snapshotInfo(snap *feed.Snapshot) snapshotJSON {
	return snapshotJSON{
		URL:       snap.URL,
		Records:   len(snap.Records),
		Malformed: snap.Malformed,
		Skipped:   snap.Skipped,
		FetchedAt: snap.FetchedAt,
		FromCache: snap.FromCache,
	}
}

type publisherJSON struct {
	Name    *string `json:"name"`
	Prefix  string  `json:"prefix,omitempty"`
	Website string  `json:"website,omitempty"`
	Logo    string  `json:"logo,omitempty"`
}

// groupJSON is one group of /api/registry. A null key is the group of
// records without the grouping field.
type groupJSON struct {
	Key               *string             `json:"key"`
	Publisher         publisherJSON       `json:"publisher"`
	Files             int                 `json:"files"`
	Grants            int                 `json:"grants"`
	CurrencyTotals    map[string]float64  `json:"currency_totals"`
	AwardYears        *registry.YearRange `json:"award_years,omitempty"`
	MinAwardDate      *time.Time          `json:"min_award_date,omitempty"`
	MaxAwardDate      *time.Time          `json:"max_award_date,omitempty"`
	LastModified      *time.Time          `json:"last_modified,omitempty"`
	Licences          []registry.Licence  `json:"licences"`
	CoverageFields    []string            `json:"coverage_fields"`
	RecipientOrgs     int                 `json:"recipient_orgs"`
	FundingOrgs       int                 `json:"funding_orgs"`
	InvalidFiles      int                 `json:"invalid_files"`
	UndownloadedFiles int                 `json:"undownloaded_files"`
	Identifiers       []string            `json:"identifiers"`
}

func newGroupJSON(grp registry.Group) groupJSON {
	s := registry.Summarize(grp)
	g := groupJSON{
		Publisher: publisherJSON{
			Name:    nullStringPtr(s.Publisher.Name),
			Prefix:  s.Publisher.Prefix,
			Website: s.Publisher.Website,
			Logo:    s.Publisher.Logo,
		},
		Files:             s.Files,
		Grants:            s.Grants,
		CurrencyTotals:    s.CurrencyTotals,
		MinAwardDate:      nullTimePtr(s.MinAwardDate),
		MaxAwardDate:      nullTimePtr(s.MaxAwardDate),
		LastModified:      nullTimePtr(s.LastModified),
		Licences:          s.Licences,
		CoverageFields:    s.CoverageFields,
		RecipientOrgs:     s.RecipientOrgs,
		FundingOrgs:       s.FundingOrgs,
		InvalidFiles:      s.InvalidFiles,
		UndownloadedFiles: s.UndownloadedFiles,
		Identifiers:       make([]string, 0, len(grp.Records)),
	}
	if s.Key.Valid {
		k := s.Key.Value
		g.Key = &k
	}
	if s.HasAwardRange {
		yr := s.AwardRange
		g.AwardYears = &yr
	}
	for _, r := range grp.Records {
		if r.Identifier.Valid {
			g.Identifiers = append(g.Identifiers, r.Identifier.String)
		}
	}
	return g
}

type registryResponse struct {
	By       string           `json:"by"`
	Filters  registry.Filters `json:"filters"`
	Snapshot snapshotJSON     `json:"snapshot"`
	Groups   []groupJSON      `json:"groups"`
}

type statsResponse struct {
	Filters             registry.Filters    `json:"filters"`
	Snapshot            snapshotJSON        `json:"snapshot"`
	Publishers          int                 `json:"publishers"`
	Files               int                 `json:"files"`
	Grants              int                 `json:"grants"`
	Currencies          []string            `json:"currencies"`
	CurrencyTotals      map[string]float64  `json:"currency_totals"`
	CurrencyGrantCounts map[string]int      `json:"currency_grant_counts"`
	AwardYears          *registry.YearRange `json:"award_years,omitempty"`
	CoverageFields      []string            `json:"coverage_fields"`
	Licences            []registry.Licence  `json:"licences"`
	Options             registry.Options    `json:"options"`
}

type treemapResponse struct {
	Metric   string         `json:"metric"`
	Currency string         `json:"currency,omitempty"`
	Width    float64        `json:"width"`
	Height   float64        `json:"height"`
	Rects    []treemap.Rect `json:"rects"`
}

// apiSnapshot fetches the registry for an API call. Fetch failures answer
// 503, anything else 500.
func (s *Server) apiSnapshot(w http.ResponseWriter, r *http.Request) *feed.Snapshot {
	snap, err := s.registry.Fetch(r.Context())
	if err == nil {
		return snap
	}
	log.FromContext(r.Context()).ErrorContext(r.Context(), "Registry fetch failed",
		log.FieldError, err, log.FieldOperation, log.OpFetch)
	var fe *feed.FetchError
	if errors.As(err, &fe) {
		writeJSONError(w, http.StatusServiceUnavailable, unavailable(err).Message)
		return nil
	}
	writeJSONError(w, http.StatusInternalServerError, "registry could not be loaded")
	return nil
}

// handleAPIRegistry returns the filtered registry grouped by publisher or file
func (s *Server) handleAPIRegistry(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters, err := ParseFilters(query)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	by, err := ParseGroupBy(query)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := s.apiSnapshot(w, r)
	if snap == nil {
		return
	}

	g := registry.GroupRecords(snap.Records, by).Filter(filters.Predicates(s.now())...)
	resp := registryResponse{
		By:       by.String(),
		Filters:  filters,
		Snapshot: snapshotInfo(snap),
		Groups:   make([]groupJSON, 0, g.Len()),
	}
	for _, grp := range g.Groups() {
		resp.Groups = append(resp.Groups, newGroupJSON(grp))
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

// handleAPIStats returns registry-wide statistics for the filtered records
func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	filters, err := ParseFilters(r.URL.Query())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := s.apiSnapshot(w, r)
	if snap == nil {
		return
	}

	g := s.filtered(snap, filters)
	records := g.Records()
	resp := statsResponse{
		Filters:             filters,
		Snapshot:            snapshotInfo(snap),
		Publishers:          g.Len(),
		Files:               len(records),
		Grants:              registry.TotalGrantCount(records),
		Currencies:          registry.DistinctCurrencies(g),
		CurrencyTotals:      registry.CurrencyTotals(records),
		CurrencyGrantCounts: registry.CurrencyGrantCounts(records),
		CoverageFields:      registry.CoverageFieldUnion(records),
		Licences:            registry.LicenceUnion(records),
		Options:             registry.Available(registry.List(snap.Records)),
	}
	if yr, ok := registry.AwardYearRange(records); ok {
		resp.AwardYears = &yr
	}
	_ = writeJSON(w, http.StatusOK, resp)
}

// handleAPITreemap returns the treemap rectangles of the filtered publishers
func (s *Server) handleAPITreemap(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters, err := ParseFilters(query)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	params, err := ParseTreemapParams(query, s.currency)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := s.apiSnapshot(w, r)
	if snap == nil {
		return
	}

	rects := treemap.Layout(treemap.FromGrouping(s.filtered(snap, filters), params.Metric), params.Width, params.Height)
	if rects == nil {
		rects = []treemap.Rect{}
	}
	_ = writeJSON(w, http.StatusOK, treemapResponse{
		Metric:   params.Metric.Name,
		Currency: params.Metric.Currency,
		Width:    params.Width,
		Height:   params.Height,
		Rects:    rects,
	})
}
