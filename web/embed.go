// Package web holds the embedded templates and static assets of the
// dashboard.
package web

import "embed"

// TemplatesFS holds the page layouts and the HTMX partials.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS holds app.css and charts.js, served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
