// Package server binds the proxy's HTTP surface to its publishers and
// consumers and translates domain errors into status codes.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/getbunnyd/bunnyd/pkg/consume"
	"github.com/getbunnyd/bunnyd/pkg/httputil"
	"github.com/getbunnyd/bunnyd/pkg/logging"
	"github.com/getbunnyd/bunnyd/pkg/metrics"
	"github.com/getbunnyd/bunnyd/pkg/publish"
)

// Options configures a Server.
type Options struct {
	Port         int
	Publishers   []*publish.Publisher
	Consumers    []*consume.Consumer
	Registry     *metrics.Registry
	ShuttingDown func() bool
	Log          *slog.Logger
}

// Server is the proxy's HTTP front.
type Server struct {
	publishers map[string]*publish.Publisher
	consumers  map[string]*consume.Consumer
	handler    http.Handler
	httpServer *http.Server
	log        *slog.Logger
}

// New builds the router over the configured routes.
func New(opts Options) *Server {
	log := opts.Log
	if log == nil {
		log = logging.Nop()
	}
	shuttingDown := opts.ShuttingDown
	if shuttingDown == nil {
		shuttingDown = func() bool { return false }
	}

	s := &Server{
		publishers: make(map[string]*publish.Publisher, len(opts.Publishers)),
		consumers:  make(map[string]*consume.Consumer, len(opts.Consumers)),
		log:        log,
	}
	for _, pub := range opts.Publishers {
		s.publishers[pub.Queue()] = pub
	}
	for _, con := range opts.Consumers {
		s.consumers[con.Queue()] = con
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleLiveness)
	if opts.Registry != nil {
		mux.Handle("GET /metrics", opts.Registry.Handler())
	}
	mux.HandleFunc("POST /publish/{queue}", s.handlePublish)
	mux.HandleFunc("GET /consume/{queue}", s.handleConsume)
	mux.HandleFunc("/", s.handleUnknown)

	s.handler = requestLogger(shutdownGate(mux, shuttingDown), log)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: s.handler,
	}
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listen port and serves in the background. Bind failures are
// returned synchronously so startup can abort.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}

	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Shutdown stops accepting requests and drains in-flight handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteText(w, http.StatusOK, "bunnyd alive")
}

func (s *Server) handleUnknown(w http.ResponseWriter, r *http.Request) {
	httputil.WriteError(w, http.StatusNotFound, codeUnknownQueue, fmt.Sprintf("no route registered for %s", r.URL.Path))
}
