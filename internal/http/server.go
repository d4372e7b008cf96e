package http

import (
	"bytes"
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ThreeSixtyGiving/Dashboard/internal/cache"
	"github.com/ThreeSixtyGiving/Dashboard/internal/feed"
	"github.com/ThreeSixtyGiving/Dashboard/internal/log"
	"github.com/ThreeSixtyGiving/Dashboard/internal/metrics"
	"github.com/ThreeSixtyGiving/Dashboard/internal/middleware/ratelimit"
	"github.com/ThreeSixtyGiving/Dashboard/internal/middleware/security"
	"github.com/ThreeSixtyGiving/Dashboard/internal/middleware/trace"
	appweb "github.com/ThreeSixtyGiving/Dashboard/web"
)

// scriptOrigins serve the htmx and Plotly bundles loaded by layout.html.
var scriptOrigins = []string{"https://unpkg.com", "https://cdn.plot.ly"}

// Registry is the read side of the feed fetcher.
type Registry interface {
	Fetch(ctx context.Context) (*feed.Snapshot, error)
	Latest() *feed.Snapshot
}

// Options configures a Server. Registry is required.
type Options struct {
	Registry        Registry
	Pinger          cache.Pinger
	Metrics         *metrics.Metrics
	Gatherer        prometheus.Gatherer
	Logger          *log.Logger
	DefaultCurrency string
	RateLimit       ratelimit.Config
	TrustedProxies  []string
}

type Server struct {
	http.Server
	templates   *template.Template
	registry    Registry
	pinger      cache.Pinger
	logger      *log.Logger
	currency    string
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	started     time.Time
	now         func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	currency := opts.DefaultCurrency
	if currency == "" {
		currency = "GBP"
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	rlConfig := opts.RateLimit
	if rlConfig.RequestsPerSecond <= 0 {
		rlConfig = ratelimit.DefaultConfig()
	}
	if rlConfig.OnLimited == nil {
		rlConfig.OnLimited = opts.Metrics.RateLimitedRequest
	}

	s := &Server{
		registry:    opts.Registry,
		pinger:      opts.Pinger,
		logger:      logger,
		currency:    currency,
		rateLimiter: ratelimit.NewLimiter(rlConfig),
		detector:    security.NewDetector(),
		started:     time.Now(),
		now:         time.Now,
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring invalid trusted proxy", "cidr", cidr, log.FieldError, err)
		}
	}

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs(func() time.Time { return s.now() })).
		ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err, log.FieldOperation, log.OpStartup)
	} else {
		s.templates = t
	}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(trace.NewMiddleware(logger, opts.Metrics, s.detector.ExtractClientIP).Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig(scriptOrigins...)).Middleware)
	r.Use(s.detector.Middleware(logger, opts.Metrics.SuspiciousRequest))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware(s.detector.ExtractClientIP, s.handleRateLimited))

		r.Get("/", s.handleDashboard)
		r.Get("/ui/charts", s.handleCharts)
		r.Get("/ui/publishers", s.handlePublishers)
		r.Get("/publisher/{name}", s.handlePublisher)
		r.Get("/file/{identifier}", s.handleFile)

		r.Route("/api", func(r chi.Router) {
			r.Get("/registry", s.handleAPIRegistry)
			r.Get("/stats", s.handleAPIStats)
			r.Get("/treemap", s.handleAPITreemap)
		})
	})
	r.NotFound(s.handleNotFound)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	// Ensure shutdown logic runs only once
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// render executes a template into memory so a failing template never
// leaves a half-written response.
func (s *Server) render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeHTML renders name and writes it through b.
func (s *Server) writeHTML(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	if s.templates == nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Templates not loaded", "template", name)
		InternalServerError("templates not loaded").Write(w)
		return
	}
	body, err := s.render(name, data)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Template execution failed",
			"template", name, log.FieldError, err, log.FieldOperation, log.OpRender)
		InternalServerError("The page could not be rendered.").Write(w)
		return
	}
	b.BodyHTML(string(body)).Write(w)
}

// writeMessage renders the message box partial.
func (s *Server) writeMessage(w http.ResponseWriter, r *http.Request, status int, box messageBox) {
	if s.templates == nil {
		NewHTMXResponse().Status(status).BodyHTML(messageBoxHTML(box.Title, box.Message, box.Error)).Write(w)
		return
	}
	s.writeHTML(w, r, NewHTMXResponse().Status(status), "message_box", box)
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r), log.FieldPath, r.URL.Path)
	if isAPI(r) {
		writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
		return
	}
	ErrorResponse(http.StatusTooManyRequests, "Too many requests. Please try again in a moment.").Write(w)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if isAPI(r) {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	s.writeMessage(w, r, http.StatusNotFound, messageBox{
		Title:   "Page not found",
		Message: "There is nothing at " + r.URL.Path + ".",
		Error:   true,
	})
}
