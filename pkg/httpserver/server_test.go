// pkg/httpserver/server_test.go
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()
	if err := cfg.validate(); err == nil {
		t.Error("expected error for empty Addr")
	}
	cfg.Addr = ":8090"
	if err := cfg.validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if cfg.MetricsPath != "/metrics" || cfg.ReadyzPath != "/readyz" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestHandleHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	handleHealthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

// Проверка получает контекст запроса: отменённый стартовый контекст
// не должен ронять readiness живого процесса.
func TestHandleReadyzUsesRequestContext(t *testing.T) {
	type ctxKey struct{}
	var got any
	check := func(ctx context.Context) error {
		got = ctx.Value(ctxKey{})
		return nil
	}

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	req = req.WithContext(context.WithValue(req.Context(), ctxKey{}, "from-request"))
	rec := httptest.NewRecorder()
	handleReadyz(check)(rec, req)

	if got != "from-request" {
		t.Errorf("checker saw %v, want the request context value", got)
	}
}

func TestHandleReadyz(t *testing.T) {
	cases := []struct {
		name     string
		check    ReadyChecker
		wantCode int
	}{
		{"ready", func(context.Context) error { return nil }, http.StatusOK},
		{"not ready", func(context.Context) error { return errors.New("store down") }, http.StatusServiceUnavailable},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		handleReadyz(c.check)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != c.wantCode {
			t.Errorf("%s: status = %d, want %d", c.name, rec.Code, c.wantCode)
			continue
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Errorf("%s: body is not JSON: %v", c.name, err)
		}
		if c.wantCode != http.StatusOK && body["error"] == "" {
			t.Errorf("%s: expected error in body, got %v", c.name, body)
		}
	}
}
