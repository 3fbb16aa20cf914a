// Package server exposes the Resona HTTP API.
//
// The API serves generation endpoints under /v1 plus the operational
// endpoints /healthz, /readyz, and /metrics. All requests pass through the
// observability middleware, which traces them, records latency, and stamps
// the X-Correlation-ID response header.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/resona-ai/resona/internal/app"
	"github.com/resona-ai/resona/internal/health"
	"github.com/resona-ai/resona/internal/observe"
)

// Server routes HTTP requests to the application. Construct with [New] and
// mount via [Server.Handler].
type Server struct {
	app     *app.App
	handler http.Handler
}

// New creates a Server for the given application.
func New(a *app.App) *Server {
	s := &Server{app: a}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/text", s.handleText)
	mux.HandleFunc("POST /v1/speech", s.handleSpeech)
	mux.HandleFunc("POST /v1/images", s.handleImages)
	mux.HandleFunc("POST /v1/videos", s.handleVideos)

	mux.HandleFunc("POST /v1/live/start", s.handleLiveStart)
	mux.HandleFunc("POST /v1/live/stop", s.handleLiveStop)
	mux.HandleFunc("GET /v1/live/status", s.handleLiveStatus)

	health.New(a.Checkers()...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handler = observe.Middleware(a.Metrics())(mux)
	return s
}

// Handler returns the root HTTP handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}
