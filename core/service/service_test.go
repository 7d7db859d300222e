package service

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/davidahmann/graphkernel/core/boundary"
	"github.com/davidahmann/graphkernel/core/policy"
	"github.com/davidahmann/graphkernel/core/store/memory"
	"github.com/davidahmann/graphkernel/core/token"
	"github.com/davidahmann/graphkernel/core/turn"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	registry := policy.NewRegistry()
	if _, err := registry.Register(policy.Version, policy.Default()); err != nil {
		t.Fatalf("register default policy: %v", err)
	}
	return &Server{
		Store:    store,
		Registry: registry,
		Signer:   token.NewHMACSigner([]byte("test-secret")),
		Verifier: token.NewLocalSecretVerifier([]byte("test-secret")),
	}, store
}

func TestHandleHealthReportsRegistryState(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["policy_count"].(float64) != 1 {
		t.Fatalf("expected policy_count 1, got %v", body["policy_count"])
	}
}

func TestHandleSliceReturnsSliceForKnownAnchor(t *testing.T) {
	server, store := newTestServer(t)
	anchor := turn.NewID()
	store.PutTurn(turn.Snapshot{ID: anchor, Phase: turn.PhaseSynthesis, Salience: 0.8})

	body, _ := json.Marshal(map[string]any{"anchor_turn_id": anchor.String()})
	req := httptest.NewRequest(http.MethodPost, "/api/slice", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSliceReturnsNotFoundForUnknownAnchor(t *testing.T) {
	server, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"anchor_turn_id": turn.NewID().String()})
	req := httptest.NewRequest(http.MethodPost, "/api/slice", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSliceRejectsMalformedAnchorID(t *testing.T) {
	server, _ := newTestServer(t)
	body, _ := json.Marshal(map[string]any{"anchor_turn_id": "not-a-uuid"})
	req := httptest.NewRequest(http.MethodPost, "/api/slice", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleListPoliciesReportsCount(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/policies", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["policy_count"].(float64) != 1 {
		t.Fatalf("expected policy_count 1, got %v", body["policy_count"])
	}
}

func TestCheckBoundaryReportsViolationForOutsideID(t *testing.T) {
	a := turn.NewID()
	outside := turn.NewID()
	guard, err := boundary.NewGuard("fp", []turn.ID{a})
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	result := CheckBoundary(context.Background(), guard, []turn.ID{a, outside}, "retrieve", nil)
	if result.Authorized {
		t.Fatalf("expected unauthorized result for an id outside the slice")
	}
}
