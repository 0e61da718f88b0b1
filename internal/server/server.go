// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scalpel-driver/internal/automation"
	"github.com/xkilldash9x/scalpel-driver/internal/command"
	"github.com/xkilldash9x/scalpel-driver/internal/config"
)

// BuildInfo is reported by the status endpoint.
type BuildInfo struct {
	Version  string `json:"version"`
	Revision string `json:"revision"`
	Time     string `json:"time"`
}

// Options configure a Server.
type Options struct {
	Server   config.ServerConfig
	Session  config.SessionConfig
	Launcher automation.Launcher
	Logger   *zap.Logger
	// Metrics may be shared with other components; nil creates a private set.
	Metrics *Metrics
	Build   BuildInfo
}

// Server routes wire protocol requests to automation sessions.
type Server struct {
	cfg        config.ServerConfig
	sessionCfg config.SessionConfig
	launcher   automation.Launcher
	logger     *zap.Logger
	metrics    *Metrics
	build      BuildInfo
	handler    http.Handler

	mu       sync.RWMutex
	sessions map[string]*automation.Session
	// opening counts sessions that hold a slot but are still starting.
	opening int
	closing bool

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New builds a Server and its route table.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	s := &Server{
		cfg:        opts.Server,
		sessionCfg: opts.Session,
		launcher:   opts.Launcher,
		logger:     opts.Logger.Named("server"),
		metrics:    opts.Metrics,
		build:      opts.Build,
		sessions:   make(map[string]*automation.Session),
		shutdown:   make(chan struct{}),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	api := chi.NewRouter()
	api.NotFound(s.handleNotFound)
	api.MethodNotAllowed(s.handleMethodNotAllowed)

	api.Get("/status", s.handleStatus)
	api.Get("/sessions", s.handleSessions)
	api.Get("/shutdown", s.handleShutdown)
	api.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	for _, rt := range routes {
		api.MethodFunc(rt.Method, rt.Pattern, s.handlerFor(rt.Command))
	}

	root := chi.NewRouter()
	root.Use(middleware.RequestID)
	root.Use(middleware.RealIP)
	root.Use(accessLog(s.logger))
	root.Use(middleware.Recoverer)
	root.NotFound(s.handleNotFound)
	root.MethodNotAllowed(s.handleMethodNotAllowed)
	if s.cfg.URLPrefix == "" {
		root.Mount("/", api)
	} else {
		root.Mount(s.cfg.URLPrefix, api)
	}
	return root
}

func (s *Server) handlerFor(id command.ID) http.HandlerFunc {
	switch id {
	case command.NewSession:
		return s.handleNewSession
	case command.Quit:
		return s.handleQuit
	default:
		return s.handleCommand(id)
	}
}

// accessLog logs one line per request at debug level.
func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	log := logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debug("Request handled.",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("remote", r.RemoteAddr),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// -- Session table --

func (s *Server) lookup(id string) (*automation.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// reserve claims a session slot.
func (s *Server) reserve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return command.Errorf(command.SessionNotCreated, "the server is shutting down")
	}
	if len(s.sessions)+s.opening >= s.cfg.MaxSessions {
		return command.Errorf(command.SessionNotCreated, "maximum of %d sessions reached", s.cfg.MaxSessions)
	}
	s.opening++
	return nil
}

func (s *Server) unreserve() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opening--
}

// insert converts a reservation into a table entry. It fails if shutdown
// began while the session was starting.
func (s *Server) insert(sess *automation.Session) bool {
	s.mu.Lock()
	s.opening--
	if s.closing {
		s.mu.Unlock()
		return false
	}
	s.sessions[sess.ID()] = sess
	n := len(s.sessions)
	s.mu.Unlock()

	s.metrics.sessionsActive.Set(float64(n))
	// A worker that exits on its own leaves the table too.
	go func() {
		<-sess.Done()
		s.remove(sess.ID())
	}()
	return true
}

func (s *Server) remove(id string) (*automation.Session, bool) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	if ok {
		s.metrics.sessionsActive.Set(float64(n))
	}
	return sess, ok
}

// CloseSessions closes every open session concurrently and stops accepting
// new ones.
func (s *Server) CloseSessions(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	open := make([]*automation.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	clear(s.sessions)
	s.mu.Unlock()
	s.metrics.sessionsActive.Set(0)

	if len(open) > 0 {
		s.logger.Info("Closing sessions.", zap.Int("count", len(open)))
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, sess := range open {
		g.Go(func() error {
			if err := sess.Close(gctx); err != nil {
				return fmt.Errorf("closing session %s: %w", sess.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RequestShutdown asks Serve to stop. It is safe to call more than once.
func (s *Server) RequestShutdown() {
	s.shutdownOnce.Do(func() {
		s.logger.Info("Shutdown requested.")
		close(s.shutdown)
	})
}

// ShutdownRequested is closed once RequestShutdown has been called.
func (s *Server) ShutdownRequested() <-chan struct{} { return s.shutdown }

// -- Lifecycle --

// ListenAndServe listens on the configured address and serves until ctx is
// done or a shutdown is requested.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. On shutdown every session is closed
// before the listener stops.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()
	s.logger.Info("Listening.", zap.String("address", ln.Addr().String()), zap.String("url_prefix", s.cfg.URLPrefix))

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Stopping.", zap.NamedError("reason", context.Cause(ctx)))
	case <-s.shutdown:
	case err := <-served:
		served <- err
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serving: %w", err)
		}
	}

	stopCtx := context.Background()
	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(stopCtx, s.cfg.ShutdownTimeout)
		defer cancel()
	}
	closeErr := s.CloseSessions(stopCtx)
	if closeErr != nil {
		s.logger.Warn("Not every session closed cleanly.", zap.Error(closeErr))
	}
	if err := srv.Shutdown(stopCtx); err != nil {
		s.logger.Warn("HTTP server did not drain in time.", zap.Error(err))
		srv.Close()
	}
	<-served
	s.logger.Info("Stopped.")
	return errors.Join(serveErr, closeErr)
}
