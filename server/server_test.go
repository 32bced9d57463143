package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/net/http2"

	"github.com/kbukum/mmrunner/component"
	apperrors "github.com/kbukum/mmrunner/errors"
	"github.com/kbukum/mmrunner/logger"
)

func testConfig() Config {
	cfg := Config{Host: "127.0.0.1", Port: 0}
	cfg.ApplyDefaults()
	// ApplyDefaults turns port 0 into 8080.
	cfg.Port = 0
	return cfg
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := New(testConfig(), logger.Nop())
	gin.SetMode(gin.TestMode)
	s.ApplyMiddleware()
	s.RegisterDefaultEndpoints("mmrunner", nil)
	return s
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	if cfg.Host != "127.0.0.1" || cfg.Port != 8080 {
		t.Errorf("unexpected address %s", cfg.Address())
	}
	if cfg.WriteTimeout != 0 {
		t.Errorf("expected no write timeout, got %s", cfg.WriteTimeout)
	}
	if cfg.ShutdownTimeout != 5*time.Second || cfg.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected timeouts %+v", cfg)
	}
	if cfg.MaxBodySize != "64KB" || cfg.RateLimit != 60 {
		t.Errorf("unexpected limits %q %d", cfg.MaxBodySize, cfg.RateLimit)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "*" {
		t.Errorf("unexpected CORS origins %v", cfg.CORS.AllowedOrigins)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.ApplyDefaults()
		return c
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.Port = 0 }, ""},
		{"port too large", func(c *Config) { c.Port = 70000 }, "server.port"},
		{"negative read timeout", func(c *Config) { c.ReadTimeout = -time.Second }, "server.read_timeout"},
		{"negative shutdown timeout", func(c *Config) { c.ShutdownTimeout = -time.Second }, "server.shutdown_timeout"},
		{"negative rate limit", func(c *Config) { c.RateLimit = -1 }, "server.rate_limit"},
		{"bad body size", func(c *Config) { c.MaxBodySize = "huge" }, "server.max_body_size"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error mentioning %q, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestServerStartStop(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(ctx); err == nil {
		t.Error("expected second Start to fail")
	}
	if strings.HasSuffix(s.Addr(), ":0") {
		t.Fatalf("expected bound port, got %s", s.Addr())
	}
	if !s.Running() {
		t.Error("expected Running after Start")
	}

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("expected request ID header from middleware")
	}
	if !strings.HasPrefix(resp.Header.Get("Server"), "mmrunner/") {
		t.Errorf("unexpected Server header %q", resp.Header.Get("Server"))
	}

	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.Running() {
		t.Error("expected not running after Stop")
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestServerBindError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	cfg := testConfig()
	cfg.Port = ln.Addr().(*net.TCPAddr).Port
	s := New(cfg, logger.Nop())
	if err := s.Start(context.Background()); err == nil {
		_ = s.Stop(context.Background())
		t.Fatal("expected bind error")
	}
}

func TestServerStopCutsStreams(t *testing.T) {
	cfg := testConfig()
	cfg.ShutdownTimeout = 50 * time.Millisecond
	s := New(cfg, logger.Nop())
	gin.SetMode(gin.TestMode)

	entered := make(chan struct{})
	s.Engine().GET("/stream", func(c *gin.Context) {
		c.Status(http.StatusOK)
		c.Writer.Flush()
		close(entered)
		<-c.Request.Context().Done()
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	go func() {
		resp, err := http.Get("http://" + s.Addr() + "/stream")
		if err == nil {
			resp.Body.Close()
		}
	}()
	<-entered

	start := time.Now()
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop should swallow the deadline, got %v", err)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Errorf("Stop took %s", d)
	}
}

func TestHandlerH2C(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	client := &http.Client{Transport: &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}

	resp, err := client.Get(srv.URL + "/version")
	if err != nil {
		t.Fatalf("h2c GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.ProtoMajor != 2 {
		t.Errorf("expected HTTP/2, got %s", resp.Proto)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if _, ok := body["version"]; !ok {
		t.Errorf("expected version field, got %v", body)
	}
}

func TestRecoveryThroughHandler(t *testing.T) {
	s := newTestServer(t)
	s.Engine().GET("/boom", func(*gin.Context) { panic("boom") })

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/boom", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestRoutes(t *testing.T) {
	s := newTestServer(t)
	s.Engine().POST("/api/v1/runner/run", func(*gin.Context) {})
	s.Engine().GET("/api/v1/runner", func(*gin.Context) {})

	routes := NewComponent(s).Routes()
	var got []string
	for _, r := range routes {
		got = append(got, r.Method+" "+r.Path)
	}
	want := []string{
		"GET /api/v1/runner",
		"POST /api/v1/runner/run",
		"GET /health",
		"GET /version",
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("routes = %v, want %v", got, want)
	}
	if routes[2].Handler != "health" {
		t.Errorf("expected closure handler name 'health', got %q", routes[2].Handler)
	}
}

func TestFormatHandlerName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"github.com/kbukum/mmrunner/api.(*Handler).run-fm", "Handler.run"},
		{"github.com/kbukum/mmrunner/server/endpoint.Health.func1", "health"},
		{"github.com/kbukum/mmrunner/server/endpoint.Version.func1", "version"},
		{"github.com/gin-gonic/gin.WrapH.func1", "wraph"},
		{"github.com/kbukum/mmrunner/sse.(*Handler).ServeHTTP-fm", "Handler.ServeHTTP"},
	}
	for _, tc := range tests {
		if got := formatHandlerName(tc.in); got != tc.want {
			t.Errorf("formatHandlerName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestComponent(t *testing.T) {
	s := newTestServer(t)
	c := NewComponent(s)
	ctx := context.Background()

	if c.Name() != "http-server" {
		t.Errorf("unexpected name %q", c.Name())
	}
	if h := c.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy before start, got %s", h.Status)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer c.Stop(ctx)

	if h := c.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy, got %s", h.Status)
	}
	if d := c.Describe(); d.Type != "server" || !strings.Contains(d.Details, s.Addr()) {
		t.Errorf("unexpected description %+v", d)
	}
}

func TestRespondWithError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		err    error
		status int
		code   apperrors.ErrorCode
	}{
		{"app error", apperrors.InvalidState("running", "idle"), http.StatusConflict, apperrors.ErrCodeInvalidState},
		{"wrapped app error", fmt.Errorf("run: %w", apperrors.InvalidInput("release", "bad")), http.StatusBadRequest, apperrors.ErrCodeInvalidInput},
		{"plain error", fmt.Errorf("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rr)
			RespondWithError(c, tc.err)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body apperrors.ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error.Code != tc.code {
				t.Errorf("expected code %s, got %s", tc.code, body.Error.Code)
			}
		})
	}
}

func TestRespondAccepted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rr := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rr)
	RespondAccepted(c, map[string]string{"run_id": "abc"})

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}
	if rr.Body.String() != `{"run_id":"abc"}` {
		t.Errorf("unexpected body %s", rr.Body.String())
	}
}
