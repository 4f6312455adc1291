package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ghost-edr/enforcer/internal/core"
	"github.com/ghost-edr/enforcer/internal/runtime"
)

// ─── Helpers ────────────────────────────────────────────────────────────────

type stubRuntime struct{}

func (stubRuntime) Name() string                                      { return "docker" }
func (stubRuntime) Kill(ctx context.Context, id string) error         { return nil }
func (stubRuntime) Quarantine(ctx context.Context, id string) (int, error) { return 0, nil }
func (stubRuntime) Inspect(ctx context.Context, id string) (*runtime.ContainerInfo, error) {
	return nil, runtime.ErrNotFound
}
func (stubRuntime) List(ctx context.Context) ([]runtime.ContainerInfo, error) { return nil, nil }

func testServer(t *testing.T) (*Server, *core.PolicyEngine) {
	t.Helper()
	cfg, err := core.DefaultConfig().Resolve()
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}

	engine := core.NewPolicyEngine(cfg, zerolog.Nop(), core.NewMetrics(), nil)
	engine.RegisterExecutor(core.ActionLogOnly, &core.LogOnlyExecutor{Logger: zerolog.Nop()})
	if err := engine.ValidateActions(); err != nil {
		t.Fatalf("validate actions: %v", err)
	}

	return NewServer(context.Background(), cfg, engine, stubRuntime{}, zerolog.Nop()), engine
}

// ─── POST /falco ────────────────────────────────────────────────────────────

func TestHandleFalcoAlert_AcceptsValidPayload(t *testing.T) {
	srv, engine := testServer(t)

	body := `{
		"rule": "Ghost EDR - Reverse Shell Detected",
		"priority": "Critical",
		"output_fields": {"container.id": "abc123", "container.name": "victim"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/falco", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleFalcoAlert(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "OK" {
		t.Errorf("body = %q, want OK", rec.Body.String())
	}

	snap := engine.Metrics().Snapshot()
	if snap.AlertsReceived != 1 {
		t.Errorf("alert did not reach the engine, received=%d", snap.AlertsReceived)
	}
}

func TestHandleFalcoAlert_AcknowledgesUnmatchedAlerts(t *testing.T) {
	srv, engine := testServer(t)

	// notice sits below every default rule's minimum, so nothing matches,
	// but receipt is still a 200.
	body := `{"rule": "Low Noise", "priority": "notice"}`
	req := httptest.NewRequest(http.MethodPost, "/falco", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleFalcoAlert(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	snap := engine.Metrics().Snapshot()
	if snap.AlertsReceived != 1 || snap.AlertsMatched != 0 {
		t.Errorf("received=%d matched=%d, want 1/0", snap.AlertsReceived, snap.AlertsMatched)
	}
}

func TestHandleFalcoAlert_RejectsInvalidJSON(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/falco", strings.NewReader("{garbage"))
	rec := httptest.NewRecorder()
	srv.handleFalcoAlert(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleFalcoAlert_RejectsNonPost(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/falco", nil)
	rec := httptest.NewRecorder()
	srv.handleFalcoAlert(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

// ─── GET /health ────────────────────────────────────────────────────────────

func TestHandleHealth(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("status field = %v", resp["status"])
	}
	if resp["runtime"] != "docker" {
		t.Errorf("runtime field = %v", resp["runtime"])
	}
	if resp["policies"].(float64) != 3 {
		t.Errorf("policies field = %v, want 3 default policies", resp["policies"])
	}
}

// ─── GET /metrics ───────────────────────────────────────────────────────────

func TestHandleMetrics(t *testing.T) {
	srv, engine := testServer(t)

	alert := &core.Alert{Rule: "Some Rule", Severity: core.SeverityError}
	engine.ProcessAlert(context.Background(), alert)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.handleMetrics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}

	var snap core.MetricsSnapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.AlertsReceived != 1 {
		t.Errorf("alerts_received = %d, want 1", snap.AlertsReceived)
	}
	if snap.AlertsMatched != 1 {
		t.Errorf("alerts_matched = %d, want 1 (suspicious-activity catch-all)", snap.AlertsMatched)
	}
}
