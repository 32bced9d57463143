package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/mmrunner/logger"
	"github.com/kbukum/mmrunner/server/endpoint"
	"github.com/kbukum/mmrunner/server/middleware"
	"github.com/kbukum/mmrunner/version"
)

// Server is the HTTP server behind "mmrunner serve": a Gin engine wrapped
// in net/http middleware and served over HTTP/1.1 and h2c.
type Server struct {
	engine      *gin.Engine
	config      Config
	log         *logger.Logger
	middlewares []middleware.Middleware

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates a new Server. The Gin engine is created but no middleware is
// applied yet; call ApplyMiddleware or Use before Start.
func New(cfg Config, log *logger.Logger) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	return &Server{
		engine: engine,
		config: cfg,
		log:    log.WithComponent("server"),
	}
}

// Engine returns the underlying Gin engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Config returns the server configuration.
func (s *Server) Config() Config {
	return s.config
}

// Use appends middleware around the whole router. The first middleware
// added is the outermost.
func (s *Server) Use(mw ...middleware.Middleware) {
	s.middlewares = append(s.middlewares, mw...)
}

// ApplyMiddleware installs the standard stack: recovery, request-ID, CORS,
// body-size limit and request logging.
func (s *Server) ApplyMiddleware() {
	s.Use(
		middleware.Recovery(s.log),
		middleware.RequestID(),
		middleware.CORS(&s.config.CORS),
		middleware.BodySizeLimit(s.config.MaxBodySize),
		middleware.RequestLogger(s.log),
	)
}

// RegisterDefaultEndpoints registers /health and /version.
func (s *Server) RegisterDefaultEndpoints(serviceName string, checker endpoint.HealthChecker) {
	s.engine.GET("/health", endpoint.Health(serviceName, checker))
	s.engine.GET("/version", endpoint.Version())
}

// Handler returns the complete handler: middleware around the engine, with
// h2c so HTTP/2 clients can multiplex event streams without TLS.
func (s *Server) Handler() http.Handler {
	serverName := version.UserAgent()
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", serverName)
		s.engine.ServeHTTP(w, r)
	})
	h = middleware.Chain(s.middlewares...)(h)

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          s.config.IdleTimeout,
	}
	return h2c.NewHandler(h, h2s)
}

// Start binds the port and begins serving. It returns once the listener is
// bound so the caller knows the port is ready; serving continues in a goroutine.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.httpServer != nil {
		return fmt.Errorf("server already started")
	}

	addr := s.config.Address()
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		IdleTimeout:       s.config.IdleTimeout,
	}
	s.httpServer = srv
	s.listener = listener

	go func() {
		if err := srv.Serve(listener); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			s.log.Error("Server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	s.log.Info("HTTP server started", logger.Fields("addr", listener.Addr().String()))
	return nil
}

// Stop gracefully shuts down the server. Open event streams are closed
// when the shutdown deadline passes.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.log.Info("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Streams that outlive the deadline are cut.
		_ = srv.Close()
		if !stderrors.Is(err, context.DeadlineExceeded) {
			s.log.Error("Server shutdown error", logger.Fields(logger.FieldError, err.Error()))
			return fmt.Errorf("server shutdown error: %w", err)
		}
		s.log.Warn("Shutdown deadline passed, connections closed")
	}

	s.log.Info("HTTP server shut down")
	return nil
}

// Addr returns the bound address once started, otherwise the configured one.
// With port 0 this is how callers learn the chosen port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.Address()
}

// Running reports whether Start succeeded and Stop has not been called.
func (s *Server) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.httpServer != nil
}
