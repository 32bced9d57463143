package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/kbukum/mmrunner/errors"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(Config{Enabled: true, Secret: testSecret, TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"disabled", Config{}, false},
		{"valid", Config{Enabled: true, Secret: testSecret, TTL: time.Hour}, false},
		{"short secret", Config{Enabled: true, Secret: "short", TTL: time.Hour}, true},
		{"negative ttl", Config{Enabled: true, Secret: testSecret, TTL: -time.Second}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Issuer != "mmrunner" || cfg.TTL != 24*time.Hour {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.Describe() != "disabled" {
		t.Errorf("unexpected description %q", cfg.Describe())
	}
}

func TestGenerateParseRoundTrip(t *testing.T) {
	svc := newTestService(t)

	token, err := svc.Generate("ops")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	claims, err := svc.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "ops" || claims.Issuer != "mmrunner" {
		t.Errorf("unexpected claims %+v", claims.RegisteredClaims)
	}
}

func TestGenerateRequiresSubject(t *testing.T) {
	if _, err := newTestService(t).Generate(""); !errors.HasCode(err, errors.ErrCodeMissingField) {
		t.Errorf("expected MISSING_FIELD, got %v", err)
	}
}

func TestParseRejects(t *testing.T) {
	svc := newTestService(t)
	valid, _ := svc.Generate("ops")

	other, _ := NewService(Config{Secret: strings.Repeat("x", 32)})
	foreign, _ := other.Generate("ops")

	otherIssuer, _ := NewService(Config{Secret: testSecret, Issuer: "someone-else"})
	wrongIssuer, _ := otherIssuer.Generate("ops")

	expiredSvc := newTestService(t)
	expiredSvc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := expiredSvc.Generate("ops")

	none, _ := gojwt.NewWithClaims(gojwt.SigningMethodNone, gojwt.RegisteredClaims{Subject: "ops"}).
		SignedString(gojwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
		code  errors.ErrorCode
	}{
		{"garbage", "not-a-token", errors.ErrCodeInvalidToken},
		{"tampered", valid[:len(valid)-2] + "xx", errors.ErrCodeInvalidToken},
		{"wrong secret", foreign, errors.ErrCodeInvalidToken},
		{"wrong issuer", wrongIssuer, errors.ErrCodeInvalidToken},
		{"alg none", none, errors.ErrCodeInvalidToken},
		{"expired", expired, errors.ErrCodeTokenExpired},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Parse(tc.token)
			if !errors.HasCode(err, tc.code) {
				t.Errorf("expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestNewServiceRequiresSecret(t *testing.T) {
	if _, err := NewService(Config{}); err == nil {
		t.Error("expected error without secret")
	}
}

func newRouter(v TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware(v))
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/api/v1/runner", func(c *gin.Context) {
		c.String(http.StatusOK, Subject(c.Request.Context()))
	})
	return r
}

func TestMiddleware(t *testing.T) {
	svc := newTestService(t)
	token, _ := svc.Generate("ops")
	router := newRouter(svc)

	tests := []struct {
		name     string
		path     string
		header   string
		wantCode int
		wantBody string
	}{
		{"health skips auth", "/health", "", http.StatusOK, "ok"},
		{"missing header", "/api/v1/runner", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong scheme", "/api/v1/runner", "Basic abc", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad token", "/api/v1/runner", "Bearer nope", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"valid token", "/api/v1/runner", "Bearer " + token, http.StatusOK, "ops"},
		{"lowercase scheme", "/api/v1/runner", "bearer " + token, http.StatusOK, "ops"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, http.NoBody)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tc.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tc.wantCode)
			}
			if !strings.Contains(w.Body.String(), tc.wantBody) {
				t.Errorf("body %q does not contain %q", w.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestMiddlewareValidatorFunc(t *testing.T) {
	called := false
	v := TokenValidatorFunc(func(token string) (*Claims, error) {
		called = true
		return &Claims{RegisteredClaims: gojwt.RegisteredClaims{Subject: token}}, nil
	})
	router := newRouter(v)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runner", http.NoBody)
	req.Header.Set("Authorization", "Bearer robot")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if !called || w.Body.String() != "robot" {
		t.Errorf("expected custom validator subject, got %q (called=%v)", w.Body.String(), called)
	}
}
