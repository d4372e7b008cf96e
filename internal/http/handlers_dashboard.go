package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/ThreeSixtyGiving/Dashboard/internal/feed"
	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
	"github.com/ThreeSixtyGiving/Dashboard/internal/registry"
)

type messagePage struct {
	Title string
	Box   messageBox
}

// unavailable describes a failed registry fetch for display.
func unavailable(err error) messageBox {
	msg := "The registry could not be loaded. Please try again later."
	var fe *feed.FetchError
	if errors.As(err, &fe) {
		switch {
		case errors.Is(err, feed.ErrContentType), errors.Is(err, feed.ErrDecode):
			msg = fmt.Sprintf("The registry feed at %s did not contain valid registry data.", fe.URL)
		case fe.StatusCode != 0:
			msg = fmt.Sprintf("The registry feed at %s answered with status %d. Please try again later.", fe.URL, fe.StatusCode)
		default:
			msg = fmt.Sprintf("The registry feed at %s could not be reached. Please try again later.", fe.URL)
		}
	}
	return messageBox{Title: "Data unavailable", Message: msg, Error: true}
}

// snapshotForPartial fetches the registry for a partial. On failure the
// message box is written with a 200 status so HTMX swaps it in, and nil is
// returned.
func (s *Server) snapshotForPartial(w http.ResponseWriter, r *http.Request) *feed.Snapshot {
	snap, err := s.registry.Fetch(r.Context())
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Registry fetch failed",
			log.FieldError, err, log.FieldOperation, log.OpFetch)
		s.writeMessage(w, r, http.StatusOK, unavailable(err))
		return nil
	}
	return snap
}

// snapshotForPage is snapshotForPartial for full pages, which answer 503.
func (s *Server) snapshotForPage(w http.ResponseWriter, r *http.Request) *feed.Snapshot {
	snap, err := s.registry.Fetch(r.Context())
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Registry fetch failed",
			log.FieldError, err, log.FieldOperation, log.OpFetch)
		s.writeHTML(w, r, NewHTMXResponse().Status(http.StatusServiceUnavailable), "message_page",
			messagePage{Title: "Data unavailable", Box: unavailable(err)})
		return nil
	}
	return snap
}

// pathParam returns a route parameter. chi matches on the raw path when it
// holds escapes such as %2F, so the value may still need unescaping.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

// dashboardURL is the dashboard address that reproduces the current view.
func dashboardURL(f registry.Filters, query url.Values) string {
	q := FiltersQuery(f)
	for _, key := range []string{paramMetric, paramSort} {
		if v := query.Get(key); v != "" {
			q.Set(key, v)
		}
	}
	if len(q) == 0 {
		return "/"
	}
	return "/?" + q.Encode()
}

func (s *Server) filtered(snap *feed.Snapshot, f registry.Filters) *registry.Grouping {
	return registry.GroupRecords(snap.Records, registry.ByPublisherName).Filter(f.Predicates(s.now())...)
}

// handleDashboard renders the main dashboard page. Filters in the query
// string preselect the form controls.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	filters, err := ParseFilters(r.URL.Query())
	if err != nil {
		s.writeHTML(w, r, NewHTMXResponse().Status(http.StatusBadRequest), "message_page",
			messagePage{Title: "Invalid filters", Box: messageBox{Title: "Invalid filters", Message: err.Error(), Error: true}})
		return
	}

	snap := s.snapshotForPage(w, r)
	if snap == nil {
		return
	}

	data := dashboardPage{
		Title:   "Registry Dashboard",
		Options: registry.Available(registry.List(snap.Records)),
		Filters: filters,
		Windows: windowOptions,
		Metric:  r.URL.Query().Get(paramMetric),
		Sort:    string(ParsePublisherSort(r.URL.Query())),
		Status:  statusOf(snap),
	}
	s.writeHTML(w, r, NewHTMXResponse(), "dashboard_page", data)
}

// handleCharts returns the charts partial for the current filters
func (s *Server) handleCharts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters, err := ParseFilters(query)
	if err != nil {
		s.writeMessage(w, r, http.StatusOK, messageBox{Title: "Invalid filters", Message: err.Error(), Error: true})
		return
	}
	params, err := ParseTreemapParams(query, s.currency)
	if err != nil {
		s.writeMessage(w, r, http.StatusOK, messageBox{Title: "Invalid treemap", Message: err.Error(), Error: true})
		return
	}

	snap := s.snapshotForPartial(w, r)
	if snap == nil {
		return
	}

	g := s.filtered(snap, filters)
	view := buildCharts(g, params, s.currency, statusOf(snap))

	log.FromContext(r.Context()).DebugContext(r.Context(), "Charts rendered",
		"publishers", g.Len(), log.FieldRecords, len(g.Records()), "metric", params.Metric.Name)

	b := NewHTMXResponse().
		TriggerRegistryLoaded(len(snap.Records), snap.FetchedAt, snap.FromCache).
		TriggerFiltersApplied(activeFilters(filters, s.now()), g.Len())
	if r.Header.Get("HX-Request") == "true" {
		b.PushURL(dashboardURL(filters, query))
	}
	s.writeHTML(w, r, b, "charts", view)
}

// handlePublishers returns the publisher cards partial
func (s *Server) handlePublishers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filters, err := ParseFilters(query)
	if err != nil {
		s.writeMessage(w, r, http.StatusOK, messageBox{Title: "Invalid filters", Message: err.Error(), Error: true})
		return
	}

	snap := s.snapshotForPartial(w, r)
	if snap == nil {
		return
	}

	view := buildPublishers(s.filtered(snap, filters), ParsePublisherSort(query), s.currency, statusOf(snap))
	s.writeHTML(w, r, NewHTMXResponse(), "publishers", view)
}

// handlePublisher renders the detail page of one publisher
func (s *Server) handlePublisher(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	if name == "" {
		s.writeHTML(w, r, NewHTMXResponse().Status(http.StatusBadRequest), "message_page",
			messagePage{Title: "Invalid publisher", Box: messageBox{Title: "Invalid publisher", Message: "The publisher name is not valid.", Error: true}})
		return
	}

	snap := s.snapshotForPage(w, r)
	if snap == nil {
		return
	}

	key := registry.Key{Value: name, Valid: true}
	records, ok := registry.GroupRecords(snap.Records, registry.ByPublisherName).Get(key)
	if !ok {
		s.writeHTML(w, r, NewHTMXResponse().Status(http.StatusNotFound), "message_page",
			messagePage{Title: "Publisher not found", Box: messageBox{
				Title:   "Publisher not found",
				Message: fmt.Sprintf("No publisher called %q is in the registry.", name),
				Error:   true,
			}})
		return
	}

	summary := registry.Summarize(registry.Group{Key: key, Records: records})
	page := publisherPage{
		Title:  name,
		Card:   newPublisherCard(summary, s.currency),
		Status: statusOf(snap),
	}
	for _, rec := range records {
		page.Files = append(page.Files, newFileRow(rec))
	}
	s.writeHTML(w, r, NewHTMXResponse(), "publisher_page", page)
}

// handleFile renders the detail page of one data file
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "identifier")
	if id == "" {
		s.writeHTML(w, r, NewHTMXResponse().Status(http.StatusBadRequest), "message_page",
			messagePage{Title: "Invalid file", Box: messageBox{Title: "Invalid file", Message: "The file identifier is not valid.", Error: true}})
		return
	}

	snap := s.snapshotForPage(w, r)
	if snap == nil {
		return
	}

	records, ok := registry.GroupRecords(snap.Records, registry.ByIdentifier).Get(registry.Key{Value: id, Valid: true})
	if !ok {
		s.writeHTML(w, r, NewHTMXResponse().Status(http.StatusNotFound), "message_page",
			messagePage{Title: "File not found", Box: messageBox{
				Title:   "File not found",
				Message: fmt.Sprintf("No file with identifier %q is in the registry.", id),
				Error:   true,
			}})
		return
	}

	// Identifiers are unique in practice; the first record wins.
	s.writeHTML(w, r, NewHTMXResponse(), "file_page", newFilePage(records[0], statusOf(snap)))
}
