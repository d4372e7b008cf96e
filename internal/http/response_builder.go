package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"time"
)

// HTMX event names the dashboard scripts listen for.
const (
	eventRegistryLoaded = "registry:loaded"
	eventFiltersApplied = "filters:applied"
)

// HTMXResponseBuilder assembles a response with its HX-* headers.
type HTMXResponseBuilder struct {
	status   int
	triggers map[string]any
	pushURL  string
	header   http.Header
	body     []byte
}

// NewHTMXResponse starts a 200 response.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{
		status:   http.StatusOK,
		triggers: map[string]any{},
		header:   http.Header{},
	}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.status = code
	return b
}

// Trigger queues a client event. A later trigger with the same name
// replaces the earlier one.
func (b *HTMXResponseBuilder) Trigger(event string, detail any) *HTMXResponseBuilder {
	b.triggers[event] = detail
	return b
}

// TriggerRegistryLoaded tells the page which snapshot the swapped content
// was rendered from.
func (b *HTMXResponseBuilder) TriggerRegistryLoaded(records int, fetchedAt time.Time, fromCache bool) *HTMXResponseBuilder {
	return b.Trigger(eventRegistryLoaded, map[string]any{
		"records":    records,
		"fetched_at": fetchedAt.UTC().Format(time.RFC3339),
		"from_cache": fromCache,
	})
}

// TriggerFiltersApplied reports how many filter categories are active and
// how many publishers matched. The publisher list reloads on this event.
func (b *HTMXResponseBuilder) TriggerFiltersApplied(active, publishers int) *HTMXResponseBuilder {
	return b.Trigger(eventFiltersApplied, map[string]int{"active": active, "publishers": publishers})
}

// PushURL asks htmx to record url in the browser history.
func (b *HTMXResponseBuilder) PushURL(url string) *HTMXResponseBuilder {
	b.pushURL = url
	return b
}

// BodyHTML sets an HTML body.
func (b *HTMXResponseBuilder) BodyHTML(html string) *HTMXResponseBuilder {
	b.header.Set("Content-Type", "text/html; charset=utf-8")
	b.body = []byte(html)
	return b
}

// Write sends headers, status and body. Triggers that cannot be encoded
// are dropped rather than failing the response.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	h := w.Header()
	for name, values := range b.header {
		h[name] = values
	}
	if len(b.triggers) > 0 {
		if raw, err := json.Marshal(b.triggers); err == nil {
			h.Set("HX-Trigger", string(raw))
		}
	}
	if b.pushURL != "" {
		h.Set("HX-Push-Url", b.pushURL)
	}
	w.WriteHeader(b.status)
	if len(b.body) > 0 {
		_, _ = w.Write(b.body)
	}
}

// ErrorResponse renders message in a message box under the status text.
func ErrorResponse(status int, message string) *HTMXResponseBuilder {
	return NewHTMXResponse().
		Status(status).
		BodyHTML(messageBoxHTML(http.StatusText(status), message, true))
}

// InternalServerError is ErrorResponse with status 500.
func InternalServerError(message string) *HTMXResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

// messageBoxHTML mirrors the message_box template for use when templates
// failed to load.
func messageBoxHTML(title, message string, isError bool) string {
	class := "message-box"
	if isError {
		class += " message-box--error"
	}
	return `<div class="` + class + `" role="alert"><h2 class="message-box__title">` +
		template.HTMLEscapeString(title) + `</h2><p class="message-box__body">` +
		template.HTMLEscapeString(message) + `</p></div>`
}
