package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/aduro-bridge/internal/audit"
	"github.com/nerrad567/aduro-bridge/internal/bridge"
	"github.com/nerrad567/aduro-bridge/internal/infrastructure/config"
	"github.com/nerrad567/aduro-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/aduro-bridge/internal/metrics"
	"github.com/nerrad567/aduro-bridge/internal/refresh"
)

type fakeBridge struct {
	health     bridge.HealthMessage
	entities   []bridge.EntityInfo
	docs       []bridge.Document
	docsErr    error
	refreshErr error
	refreshes  int
}

func (f *fakeBridge) Health() bridge.HealthMessage  { return f.health }
func (f *fakeBridge) Entities() []bridge.EntityInfo { return f.entities }

func (f *fakeBridge) Documents() ([]bridge.Document, error) {
	return f.docs, f.docsErr
}

func (f *fakeBridge) RequestRefresh() error {
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.refreshes++
	return nil
}

type fakeJournal struct {
	lastFilter audit.Filter
	err        error
}

func (j *fakeJournal) Create(context.Context, *audit.Entry) error { return nil }

func (j *fakeJournal) List(_ context.Context, filter audit.Filter) (*audit.ListResult, error) {
	j.lastFilter = filter
	if j.err != nil {
		return nil, j.err
	}
	return &audit.ListResult{
		Entries: []audit.Entry{{ID: "jrn-1", Action: audit.ActionPublish, EntityID: "co"}},
		Total:   1,
		Limit:   50,
	}, nil
}

func testServer(t *testing.T, b *fakeBridge, journal audit.Repository, m http.Handler) *Server {
	t.Helper()
	srv, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger:  logging.Discard(),
		Bridge:  b,
		Journal: journal,
		Metrics: m,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	return rec
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Deps{Bridge: &fakeBridge{}}); err == nil {
		t.Error("New() without logger error = nil")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New() without bridge error = nil")
	}
}

func TestHTTPServerTimeouts(t *testing.T) {
	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     8099,
			Timeouts: config.APITimeoutConfig{Read: 3, Write: 7, Idle: 40},
		},
		Logger: logging.Discard(),
		Bridge: &fakeBridge{},
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	hs := srv.httpServer()
	if hs.Addr != "127.0.0.1:8099" {
		t.Errorf("Addr = %q, want 127.0.0.1:8099", hs.Addr)
	}
	if hs.ReadTimeout != 3*time.Second || hs.ReadHeaderTimeout != 3*time.Second {
		t.Errorf("read timeouts = %v/%v, want 3s", hs.ReadTimeout, hs.ReadHeaderTimeout)
	}
	if hs.WriteTimeout != 7*time.Second {
		t.Errorf("WriteTimeout = %v, want 7s", hs.WriteTimeout)
	}
	if hs.IdleTimeout != 40*time.Second {
		t.Errorf("IdleTimeout = %v, want 40s", hs.IdleTimeout)
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		status bridge.HealthStatus
		want   int
	}{
		{"healthy", bridge.HealthHealthy, http.StatusOK},
		{"degraded", bridge.HealthDegraded, http.StatusOK},
		{"stopping", bridge.HealthStopping, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, &fakeBridge{health: bridge.HealthMessage{Status: tt.status, DeviceID: "aduro_h2"}}, nil, nil)
			rec := do(t, srv, http.MethodGet, "/api/v1/health")
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			var msg bridge.HealthMessage
			if err := json.NewDecoder(rec.Body).Decode(&msg); err != nil {
				t.Fatal(err)
			}
			if msg.Status != tt.status || msg.Version != "test" {
				t.Errorf("body = %+v", msg)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
		})
	}
}

func TestListEntities(t *testing.T) {
	b := &fakeBridge{entities: []bridge.EntityInfo{
		{ID: "co", Kind: "sensor", Topic: "homeassistant/sensor/aduro_h2_co/config", PublishedAt: time.Now()},
		{ID: "toggle", Kind: "switch", Topic: "homeassistant/switch/aduro_h2_toggle/config", PublishedAt: time.Now()},
	}}
	rec := do(t, testServer(t, b, nil, nil), http.MethodGet, "/api/v1/entities")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Entities []bridge.EntityInfo `json:"entities"`
		Count    int                 `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 2 || body.Entities[1].ID != "toggle" {
		t.Errorf("body = %+v", body)
	}
}

func TestListDocuments(t *testing.T) {
	b := &fakeBridge{docs: []bridge.Document{
		{Topic: "homeassistant/sensor/aduro_h2_co/config", Payload: []byte(`{"name":"Aduro H2 Co"}`)},
	}}
	rec := do(t, testServer(t, b, nil, nil), http.MethodGet, "/api/v1/documents")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"payload":{"name":"Aduro H2 Co"}`) {
		t.Errorf("payload not embedded as JSON: %s", rec.Body.String())
	}

	b.docsErr = errors.New("boom")
	if rec := do(t, testServer(t, b, nil, nil), http.MethodGet, "/api/v1/documents"); rec.Code != http.StatusInternalServerError {
		t.Errorf("status on render error = %d, want 500", rec.Code)
	}
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"disabled", bridge.ErrRefreshDisabled, http.StatusConflict},
		{"stopping", refresh.ErrStopped, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBridge{refreshErr: tt.err}
			rec := do(t, testServer(t, b, nil, nil), http.MethodPost, "/api/v1/refresh")
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.err == nil && b.refreshes != 1 {
				t.Errorf("refreshes = %d, want 1", b.refreshes)
			}
		})
	}

	if rec := do(t, testServer(t, &fakeBridge{}, nil, nil), http.MethodGet, "/api/v1/refresh"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /refresh status = %d, want 405", rec.Code)
	}
}

func TestListJournal(t *testing.T) {
	j := &fakeJournal{}
	srv := testServer(t, &fakeBridge{}, j, nil)

	rec := do(t, srv, http.MethodGet, "/api/v1/journal?action=publish&source=catalog&entity_id=co&limit=10&offset=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	want := audit.Filter{Action: "publish", Source: "catalog", EntityID: "co", Limit: 10, Offset: 5}
	if j.lastFilter != want {
		t.Errorf("filter = %+v, want %+v", j.lastFilter, want)
	}

	if rec := do(t, srv, http.MethodGet, "/api/v1/journal?limit=ten"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}

	j.err = errors.New("db closed")
	if rec := do(t, srv, http.MethodGet, "/api/v1/journal"); rec.Code != http.StatusInternalServerError {
		t.Errorf("list error status = %d, want 500", rec.Code)
	}

	if rec := do(t, testServer(t, &fakeBridge{}, nil, nil), http.MethodGet, "/api/v1/journal"); rec.Code != http.StatusNotFound {
		t.Errorf("no journal status = %d, want 404", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.RefreshTriggered()
	srv := testServer(t, &fakeBridge{}, nil, m.Handler())

	rec := do(t, srv, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "aduro_bridge_refresh_triggers_total 1") {
		t.Errorf("metrics output missing trigger counter")
	}

	if rec := do(t, testServer(t, &fakeBridge{}, nil, nil), http.MethodGet, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("no metrics status = %d, want 404", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, nil, nil)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	srv := testServer(t, &fakeBridge{}, nil, nil)
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start error = nil")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}
