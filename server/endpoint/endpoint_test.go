package endpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/mmrunner/component"
)

func serve(t *testing.T, h gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/", h)
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	return rr
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		statuses   []component.HealthStatus
		wantStatus string
		wantCode   int
	}{
		{"no components", nil, "healthy", http.StatusOK},
		{"all healthy", []component.HealthStatus{component.StatusHealthy, component.StatusHealthy}, "healthy", http.StatusOK},
		{"degraded", []component.HealthStatus{component.StatusHealthy, component.StatusDegraded}, "degraded", http.StatusOK},
		{"unhealthy wins", []component.HealthStatus{component.StatusDegraded, component.StatusUnhealthy}, "unhealthy", http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			checker := func(context.Context) []component.Health {
				out := make([]component.Health, 0, len(tc.statuses))
				for i, s := range tc.statuses {
					out = append(out, component.Health{Name: string(rune('a' + i)), Status: s})
				}
				return out
			}
			rr := serve(t, Health("mmrunner", checker))

			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			var body HealthResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tc.wantStatus || body.Service != "mmrunner" {
				t.Errorf("unexpected body %+v", body)
			}
			if len(body.Components) != len(tc.statuses) {
				t.Errorf("expected %d components, got %d", len(tc.statuses), len(body.Components))
			}
		})
	}
}

func TestHealthNilChecker(t *testing.T) {
	rr := serve(t, Health("mmrunner", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if comps, ok := body["components"].([]any); !ok || len(comps) != 0 {
		t.Errorf("expected empty components array, got %v", body["components"])
	}
}

func TestVersion(t *testing.T) {
	rr := serve(t, Version())
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"version", "go_version", "platform"} {
		if _, ok := body[key]; !ok {
			t.Errorf("missing %q in %v", key, body)
		}
	}
}
