package api

import (
	"context"
	stderrors "errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kbukum/mmrunner/auth"
	"github.com/kbukum/mmrunner/display"
	"github.com/kbukum/mmrunner/errors"
	"github.com/kbukum/mmrunner/logger"
	"github.com/kbukum/mmrunner/server"
	"github.com/kbukum/mmrunner/server/endpoint"
	"github.com/kbukum/mmrunner/server/middleware"
	"github.com/kbukum/mmrunner/sse"
)

// BasePath is the prefix of the runner control routes.
const BasePath = "/api/v1/runner"

// RunResponse is returned by POST /run.
type RunResponse struct {
	RunID string `json:"run_id"`
}

// CancelResponse is returned by POST /cancel.
type CancelResponse struct {
	RunID string `json:"run_id,omitempty"`
	State string `json:"state"`
}

// Option configures a Handler.
type Option func(*Handler)

// WithAuth protects the runner routes with bearer tokens checked by v.
func WithAuth(v auth.TokenValidator) Option {
	return func(h *Handler) { h.validator = v }
}

// WithRateLimit caps run and cancel requests per client per minute. Zero
// disables the limit.
func WithRateLimit(perMinute int) Option {
	return func(h *Handler) { h.rateLimit = perMinute }
}

// WithLogger sets the handler logger.
func WithLogger(l *logger.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// Handler exposes one Display over HTTP.
type Handler struct {
	display   *display.Display
	stream    *sse.Handler
	validator auth.TokenValidator
	rateLimit int
	log       *logger.Logger
}

// NewHandler creates the control API for d. stream serves the event route.
func NewHandler(d *display.Display, stream *sse.Handler, opts ...Option) *Handler {
	h := &Handler{display: d, stream: stream, log: logger.Get("api")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts /health, /version and the runner routes on s.
func (h *Handler) Register(s *server.Server, serviceName string, checker endpoint.HealthChecker) {
	s.RegisterDefaultEndpoints(serviceName, checker)

	g := s.Engine().Group(BasePath)
	if h.validator != nil {
		g.Use(auth.Middleware(h.validator))
	}

	control := []gin.HandlerFunc{}
	if h.rateLimit > 0 {
		control = append(control, middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerMinute: h.rateLimit,
			KeyFunc:           middleware.SubjectKey,
		}))
	}

	g.GET("", h.snapshot)
	g.POST("/run", append(control, h.run)...)
	g.POST("/cancel", append(control, h.cancel)...)
	g.GET("/events", h.events)
}

func (h *Handler) snapshot(c *gin.Context) {
	server.RespondOK(c, h.display.Snapshot())
}

func (h *Handler) run(c *gin.Context) {
	var req display.RunRequest
	// An empty body means the latest release.
	if err := c.ShouldBindJSON(&req); err != nil && !stderrors.Is(err, io.EOF) {
		server.RespondWithError(c, errors.InvalidInput("body", err.Error()))
		return
	}

	// The run outlives the request; the request ID stays on its logs.
	runID, err := h.display.Run(context.WithoutCancel(c.Request.Context()), req)
	if err != nil {
		h.log.WithContext(c.Request.Context()).Debug("run refused", logger.Fields(logger.FieldError, err.Error()))
		server.RespondWithError(c, err)
		return
	}

	h.log.WithContext(c.Request.Context()).Info("run requested", logger.Fields(
		logger.FieldRunID, runID,
		"release", req.Release,
		"subject", c.GetString("subject"),
	))
	server.RespondAccepted(c, RunResponse{RunID: runID})
}

func (h *Handler) cancel(c *gin.Context) {
	h.display.Cancel()
	snap := h.display.Snapshot()
	server.RespondAccepted(c, CancelResponse{RunID: snap.RunID, State: snap.State})
}

func (h *Handler) events(c *gin.Context) {
	if h.stream == nil {
		server.RespondWithError(c, errors.ServiceUnavailable("event stream"))
		return
	}
	var opts []sse.ClientOption
	if sub := auth.Subject(c.Request.Context()); sub != "" {
		opts = append(opts, sse.WithSubject(sub))
	}
	h.stream.Serve(c.Writer, c.Request, sse.ClientPrefix+uuid.NewString(), opts...)
}
