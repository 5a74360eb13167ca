// Package api provides the HTTP server for SuriCare.
//
// It exposes REST endpoints for children, health records, pattern summaries, chats and
// health alerts, and the assistant's single-shot and streaming chat endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/suricare/suricare/internal/alerts"
	"github.com/suricare/suricare/internal/assistant"
	"github.com/suricare/suricare/internal/patterns"
	"github.com/suricare/suricare/internal/store"
)

// Default server settings.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultReadHeaderTimeout bounds slow clients; there is no write timeout because
	// streaming responses are long-lived.
	DefaultReadHeaderTimeout = 10 * time.Second
	maxBodyBytes             = 1 << 20
)

// Opts holds configuration for the API server.
type Opts struct {
	Addr   string
	Alerts *alerts.Generator
	Clock  func() time.Time
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		if addr != "" {
			o.Addr = addr
		}
	}
}

// WithAlertGenerator enables the on-demand alert analysis endpoint.
func WithAlertGenerator(g *alerts.Generator) Option {
	return func(o *Opts) { o.Alerts = g }
}

// WithClock overrides the time source used for record windows; used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) {
		if now != nil {
			o.Clock = now
		}
	}
}

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	st       store.Store
	asst     *assistant.Assistant
	analyzer *patterns.Analyzer
	alerts   *alerts.Generator
	router   chi.Router
	addr     string
	now      func() time.Time
}

// NewServer creates a Server and registers its routes.
func NewServer(st store.Store, asst *assistant.Assistant, analyzer *patterns.Analyzer, opts ...Option) *Server {
	o := Opts{Addr: DefaultAddr, Clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Server{
		st:       st,
		asst:     asst,
		analyzer: analyzer,
		alerts:   o.Alerts,
		router:   chi.NewRouter(),
		addr:     o.Addr,
		now:      o.Clock,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
			}
			next.ServeHTTP(w, r)
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusNotFound, errorResponse("Not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONResponse(w, http.StatusMethodNotAllowed, errorResponse("Method not allowed"))
	})

	r.Get("/health", s.healthHandler)

	r.Post("/children", s.createChildHandler)
	r.Get("/carers/{carerID}/children", s.listChildrenHandler)
	r.Route("/children/{childID}", func(r chi.Router) {
		r.Get("/", s.getChildHandler)
		r.Put("/", s.updateChildHandler)
		r.Delete("/", s.deleteChildHandler)
		r.Get("/patterns", s.patternsHandler)
		r.Post("/records/{kind}", s.createRecordHandler)
		r.Get("/records/{kind}", s.listRecordsHandler)
		r.Get("/alerts", s.listAlertsHandler)
		r.Get("/alerts/unread-count", s.unreadAlertsHandler)
		r.Post("/alerts/analyze", s.analyzeAlertsHandler)
	})
	r.Delete("/records/{kind}/{recordID}", s.deleteRecordHandler)

	r.Post("/chat", s.chatHandler)
	r.Post("/chat/stream", s.chatStreamHandler)
	r.Post("/chat/contextual", s.contextualChatHandler)
	r.Post("/chat/contextual/stream", s.contextualChatStreamHandler)

	r.Post("/chats", s.createChatHandler)
	r.Get("/carers/{carerID}/chats", s.listChatsHandler)
	r.Route("/chats/{chatID}", func(r chi.Router) {
		r.Get("/", s.getChatHandler)
		r.Put("/", s.renameChatHandler)
		r.Delete("/", s.deleteChatHandler)
		r.Get("/messages", s.listMessagesHandler)
		r.Post("/messages", s.addMessageHandler)
	})

	r.Post("/alerts", s.upsertAlertHandler)
	r.Put("/alerts/{alertID}/read", s.markAlertReadHandler)
	r.Delete("/alerts/{alertID}", s.deleteAlertHandler)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("Server.request", "method", r.Method, "path", r.URL.Path, "status", ww.Status(),
			"duration", time.Since(start), "request_id", middleware.GetReqID(r.Context()))
	})
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}
	if children, err := s.st.ListAllChildren(ctx); err != nil {
		slog.Warn("Server.healthHandler: store check failed", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to reach the store"
	} else {
		healthData["children"] = len(children)
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, statusCode, healthData)
}
