package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/germinal-ai/germinal/internal/domain/service"
	"github.com/germinal-ai/germinal/internal/infrastructure/monitoring"
	"github.com/germinal-ai/germinal/internal/infrastructure/persistence"
	"github.com/germinal-ai/germinal/internal/interfaces/http/handlers"
)

func testServer(t *testing.T, requireAuth bool) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	queue := service.NewEventQueue(persistence.NewMemoryEventRepository(), zap.NewNop())
	openai := handlers.NewOpenAIHandler(queue, service.NewWaiters(), handlers.OpenAIHandlerConfig{
		ModelName:      "orchestrator",
		RequestTimeout: time.Second,
	}, zap.NewNop())

	return NewServer(Config{
		Host:        "127.0.0.1",
		Port:        0,
		RequireAuth: requireAuth,
		APIKey:      "secret-key",
	}, openai, monitoring.NewMonitor(), zap.NewNop())
}

func do(s *Server, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.tcpServer.Handler.ServeHTTP(w, req)
	return w
}

func TestHealthNoAuth(t *testing.T) {
	s := testServer(t, true)
	w := do(s, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("body: %s", w.Body.String())
	}
}

func TestMetricsExposed(t *testing.T) {
	s := testServer(t, false)
	w := do(s, "GET", "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "germinal_events_processed_total") {
		t.Errorf("metrics body: %s", w.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	s := testServer(t, true)

	w := do(s, "GET", "/v1/models", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing key status: %d", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); !strings.Contains(got, `Bearer realm="orchestrator"`) {
		t.Errorf("WWW-Authenticate: %q", got)
	}

	w = do(s, "GET", "/v1/models", map[string]string{"Authorization": "Bearer wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong key status: %d", w.Code)
	}

	w = do(s, "GET", "/v1/models", map[string]string{"Authorization": "Bearer secret-key"})
	if w.Code != http.StatusOK {
		t.Errorf("valid key status: %d", w.Code)
	}
}

func TestUnknownPath404JSON(t *testing.T) {
	s := testServer(t, false)
	w := do(s, "GET", "/v2/surprise", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"type":"not_found"`) {
		t.Errorf("body: %s", w.Body.String())
	}
}
