package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cryptopolis/internal/blend"
	"cryptopolis/internal/buildings"
	"cryptopolis/internal/config"
	"cryptopolis/internal/engine"
	"cryptopolis/internal/entropy"
)

func testServer() *Server {
	cfg := config.Default()
	cfg.CycleAmplitude = 0
	cfg.NoiseAmplitude = 0
	orch := engine.New(cfg, buildings.DefaultCatalog(), entropy.NewSeeded(1))
	runner := engine.NewRunner(orch, time.Second, 5*time.Second)
	return &Server{
		Orch:     orch,
		Runner:   runner,
		Blender:  blend.NewBlender(blend.Options{RealSentimentWeight: 0.35, SentimentSmoothing: 1, YieldClampMin: 0.5, YieldClampMax: 2, YieldSmoothing: 1, ExpectedBaseAPY: 5, TVLDeltaScale: 2, TriggerCooldown: 60, PriceMoveThreshold: 10, SentimentExtreme: 35, ReversalThreshold: 25}),
		AdminKey: "secret",
	}
}

func TestStatusEndpoint(t *testing.T) {
	s := testServer()
	s.Orch.Place("doge_kennel", 0, 0)

	rec := httptest.NewRecorder()
	s.handleStatus(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status code %d", rec.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["buildings"].(float64) != 1 {
		t.Fatalf("buildings count: %v", body["buildings"])
	}
}

func TestAdminRequiresBearerToken(t *testing.T) {
	s := testServer()
	handler := s.adminOnly(s.handleSpeed)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/speed", strings.NewReader(`{"speed": 2}`))
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: code %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/speed", strings.NewReader(`{"speed": 2}`))
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: code %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/speed", strings.NewReader(`{"speed": 2}`))
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: code %d, body %s", rec.Code, rec.Body.String())
	}
	if got := s.Runner.Speed(); got != 2 {
		t.Fatalf("speed not applied: %v", got)
	}

	// GET passes through without auth.
	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/speed", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unauthenticated GET: code %d", rec.Code)
	}
}

func TestAdminDisabledWithoutKey(t *testing.T) {
	s := testServer()
	s.AdminKey = ""
	handler := s.adminOnly(s.handleSpeed)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/speed", strings.NewReader(`{"speed": 2}`))
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with no admin key, got %d", rec.Code)
	}
}

func TestRealDataRejectsMalformedSnapshot(t *testing.T) {
	s := testServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/realdata",
		strings.NewReader(`{"fear_greed": {"value": 900}}`))
	rec := httptest.NewRecorder()
	s.handleRealData(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid snapshot: code %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/realdata",
		strings.NewReader(`{"fear_greed": {"value": 80}}`))
	rec = httptest.NewRecorder()
	s.handleRealData(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid snapshot: code %d, body %s", rec.Code, rec.Body.String())
	}

	snap := s.Orch.Snapshot()
	if !snap.HasRealData {
		t.Fatal("accepted snapshot did not reach the simulation")
	}
}

func TestPlaceEndpoint(t *testing.T) {
	s := testServer()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/place",
		strings.NewReader(`{"type": "doge_kennel", "x": 2, "y": 3}`))
	rec := httptest.NewRecorder()
	s.handlePlace(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("place: code %d, body %s", rec.Code, rec.Body.String())
	}

	// Same cell again is refused.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/place",
		strings.NewReader(`{"type": "pepe_pond", "x": 2, "y": 3}`))
	rec = httptest.NewRecorder()
	s.handlePlace(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("occupied cell: code %d", rec.Code)
	}
}

func TestBuildingActionRouting(t *testing.T) {
	s := testServer()
	b := s.Orch.Place("doge_kennel", 0, 0)
	if b == nil {
		t.Fatal("placement failed")
	}

	post := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		s.handleBuildingAction(rec, httptest.NewRequest(http.MethodPost, path, nil))
		return rec
	}

	if rec := post("/api/v1/building/1/upgrade"); rec.Code != http.StatusOK {
		t.Fatalf("upgrade: code %d", rec.Code)
	}
	if got := s.Orch.Registry().Get(b.Handle).Level; got != 2 {
		t.Fatalf("level after upgrade: %d", got)
	}
	if rec := post("/api/v1/building/1/stake"); rec.Code != http.StatusOK {
		t.Fatalf("stake: code %d", rec.Code)
	}
	if !s.Orch.Registry().Get(b.Handle).Staked {
		t.Fatal("stake flag not set")
	}
	if rec := post("/api/v1/building/999/upgrade"); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown handle: code %d", rec.Code)
	}
	if rec := post("/api/v1/building/1/teleport"); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown action: code %d", rec.Code)
	}
}

func TestArchiveRequiresAuthenticatedPost(t *testing.T) {
	s := testServer()
	handler := s.adminOnly(s.handleArchive)

	// GET never serves the blob.
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/v1/archive", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("unauthenticated GET: code %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/v1/archive", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated POST: code %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/archive", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	handler(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authorized POST: code %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/zstd" {
		t.Fatalf("content type %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty archive blob")
	}
}

func TestBuildingsEndpointFilters(t *testing.T) {
	s := testServer()
	s.Orch.Place("doge_kennel", 0, 0)      // dogecoin
	s.Orch.Place("uniswap_fountain", 1, 0) // ethereum

	rec := httptest.NewRecorder()
	s.handleBuildings(rec, httptest.NewRequest(http.MethodGet, "/api/v1/buildings?chain=ethereum", nil))

	var got []buildings.Placed
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].TypeID != "uniswap_fountain" {
		t.Fatalf("chain filter: got %+v", got)
	}
}

func TestIPLimiter(t *testing.T) {
	l := NewIPLimiter(1, 2)
	if !l.Allow("10.0.0.1") || !l.Allow("10.0.0.1") {
		t.Fatal("burst requests must pass")
	}
	if l.Allow("10.0.0.1") {
		t.Fatal("request beyond burst must be limited")
	}
	if !l.Allow("10.0.0.2") {
		t.Fatal("different IP must have its own bucket")
	}
}
