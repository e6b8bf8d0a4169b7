package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/SmitUplenchwar2687/wsreplay/internal/clock"
	xlog "github.com/SmitUplenchwar2687/wsreplay/internal/log"
	"github.com/SmitUplenchwar2687/wsreplay/internal/recorder"
	"github.com/SmitUplenchwar2687/wsreplay/internal/session"
)

// Options configures optional server collaborators.
type Options struct {
	Clock    clock.Clock        // timer source, defaults to the real clock
	Recorder *recorder.Recorder // optional delivery trace
	Logger   *zerolog.Logger    // defaults to the "server" component logger
}

// Server accepts WebSocket connections and runs one replay session per
// connection.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	cfg        *session.Config
	clock      clock.Clock
	trace      *recorder.Recorder
	log        zerolog.Logger

	// Cancelled by Shutdown; parent of every session context.
	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

// New creates a server replaying cfg. cfg is shared read-only by all sessions.
func New(addr string, cfg *session.Config, opts Options) *Server {
	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		clock:  opts.Clock,
		trace:  opts.Recorder,
	}
	if s.clock == nil {
		s.clock = clock.NewReal()
	}
	if opts.Logger != nil {
		s.log = *opts.Logger
	} else {
		s.log = xlog.WithComponent("server")
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())
	s.routes()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
	// Any other path is a replay client.
	s.router.HandleFunc("/*", s.handleWebSocket)
}

// handleHealth returns server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"source": s.cfg.SourcePath,
	})
}

// Start begins listening. It blocks until the server is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.StartOnListener(ln)
}

// StartOnListener begins serving on the provided listener.
// Useful for tests that need to pick an ephemeral port.
func (s *Server) StartOnListener(ln net.Listener) error {
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str(xlog.FieldPath, s.cfg.SourcePath).
		Stringer("upfront", s.cfg.Upfront).
		Dur("interval", s.cfg.Interval).
		Msg("wsreplay listening")
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections, ends every live session and waits
// for them to release their files.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()

	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// admit registers a session unless the server is shutting down.
func (s *Server) admit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions.Add(1)
	return true
}
