// Package api provides the HTTP API for the token economy.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"cryptopolis/internal/blend"
	"cryptopolis/internal/buildings"
	"cryptopolis/internal/engine"
	"cryptopolis/internal/persistence"
)

// maxRealDataBody bounds the accepted snapshot payload.
const maxRealDataBody = 1 << 20

// Server serves the economy state over HTTP.
type Server struct {
	Orch     *engine.Orchestrator
	Runner   *engine.Runner
	Blender  *blend.Blender
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	hub *streamHub
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	// Real-data injection is the only endpoint fed by outside callers at
	// volume; keep it on a strict per-IP limiter.
	realDataLimiter := NewIPLimiter(1, 5)

	s.hub = newStreamHub(s.Orch)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/snapshot", s.handleSnapshot)
	mux.HandleFunc("/api/v1/buildings", s.handleBuildings)
	mux.HandleFunc("/api/v1/catalog", s.handleCatalog)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/ticker", s.handleTicker)
	mux.HandleFunc("/api/v1/stream", s.hub.handleStream)

	// Admin endpoints.
	mux.HandleFunc("/api/v1/speed", s.adminOnly(s.handleSpeed))
	mux.HandleFunc("/api/v1/save", s.adminOnly(s.handleSave))
	mux.HandleFunc("/api/v1/archive", s.adminOnly(s.handleArchive))
	mux.HandleFunc("/api/v1/place", s.adminOnly(s.handlePlace))
	mux.HandleFunc("/api/v1/demolish", s.adminOnly(s.handleDemolish))
	mux.HandleFunc("/api/v1/building/", s.adminOnly(s.handleBuildingAction))
	mux.HandleFunc("/api/v1/services", s.adminOnly(s.handleServices))
	mux.HandleFunc("/api/v1/realdata", s.adminOnly(IPLimitMiddleware(realDataLimiter, s.handleRealData)))

	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		handler := corsMiddleware(mux)
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:4173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
// GET requests pass through for endpoints serving both methods.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no CITYSIM_ADMIN_KEY set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Orch.Snapshot()
	writeJSON(w, map[string]any{
		"name":          "Cryptopolis",
		"tick":          snap.Tick,
		"day":           snap.Day,
		"speed":         s.Runner.Speed(),
		"running":       s.Runner.Running(),
		"balance":       snap.Treasury.Balance,
		"sentiment":     snap.Sentiment.Value,
		"phase":         snap.Sentiment.Phase,
		"buildings":     snap.Buildings.Total,
		"tvl":           snap.TVL,
		"active_events": len(snap.ActiveEvents),
		"bankrupt":      snap.Bankrupt,
		"has_real_data": snap.HasRealData,
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Orch.Snapshot())
}

func (s *Server) handleBuildings(w http.ResponseWriter, r *http.Request) {
	tier := r.URL.Query().Get("tier")
	chain := r.URL.Query().Get("chain")

	all := s.Orch.Buildings()
	result := make([]buildings.Placed, 0, len(all))
	for _, b := range all {
		if tier != "" && string(b.Type.Tier) != tier {
			continue
		}
		if chain != "" && b.Type.Chain != chain {
			continue
		}
		result = append(result, b)
	}
	writeJSON(w, result)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Orch.Registry().Catalog().All())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	writeJSON(w, map[string]any{
		"active":  s.Orch.ActiveEvents(),
		"history": s.Orch.EventHistory(limit),
	})
}

func (s *Server) handleTicker(w http.ResponseWriter, r *http.Request) {
	snap := s.Orch.Snapshot()
	writeJSON(w, map[string]any{
		"items":         snap.Ticker,
		"has_real_data": snap.HasRealData,
	})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Runner.SetSpeed(req.Speed)
	}
	writeJSON(w, map[string]float64{"speed": s.Runner.Speed()})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	st := s.Orch.Export()
	if err := s.DB.SaveState(st); err != nil {
		slog.Error("manual save failed", "error", err)
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"saved": true, "tick": st.CurrentTick})
}

// handleArchive serves a portable compressed save blob. POST only, so
// the whole endpoint sits behind the bearer token.
func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	blob, err := persistence.ExportArchive(s.Orch.Export())
	if err != nil {
		slog.Error("archive export failed", "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", "attachment; filename=cryptopolis-save.zst")
	w.Write(blob)
}

func (s *Server) handlePlace(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Type string `json:"type"`
		X    int    `json:"x"`
		Y    int    `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	b := s.Orch.Place(req.Type, req.X, req.Y)
	if b == nil {
		http.Error(w, "placement refused", http.StatusConflict)
		return
	}
	writeJSON(w, b)
}

func (s *Server) handleDemolish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Handle uint32 `json:"handle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !s.Orch.Demolish(buildings.Handle(req.Handle)) {
		http.Error(w, "building not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]bool{"demolished": true})
}

// handleBuildingAction routes POST /api/v1/building/:handle/:action for
// upgrade, stake, unstake, repair, enable and disable.
func (s *Server) handleBuildingAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(r.URL.Path, "/")
	// /api/v1/building/:handle/:action
	if len(parts) < 6 {
		http.Error(w, "usage: /api/v1/building/:handle/:action", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseUint(parts[4], 10, 32)
	if err != nil {
		http.Error(w, "invalid handle", http.StatusBadRequest)
		return
	}
	h := buildings.Handle(id)
	ok := false
	var body any

	switch parts[5] {
	case "upgrade":
		var level int
		level, ok = s.Orch.UpgradeBuilding(h)
		body = map[string]int{"level": level}
	case "stake":
		ok = s.Orch.SetBuildingStaked(h, true)
		body = map[string]bool{"staked": true}
	case "unstake":
		ok = s.Orch.SetBuildingStaked(h, false)
		body = map[string]bool{"staked": false}
	case "repair":
		ok = s.Orch.RepairBuilding(h)
		body = map[string]bool{"repaired": true}
	case "enable":
		ok = s.Orch.SetBuildingActive(h, true)
		body = map[string]bool{"active": true}
	case "disable":
		ok = s.Orch.SetBuildingActive(h, false)
		body = map[string]bool{"active": false}
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}
	if !ok {
		http.Error(w, "building not found", http.StatusNotFound)
		return
	}
	writeJSON(w, body)
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, s.Orch.Snapshot().Services)
		return
	}
	var req map[string]int
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	for service, level := range req {
		s.Orch.SetServiceFunding(service, level)
	}
	writeJSON(w, s.Orch.Snapshot().Services)
}

// handleRealData accepts a market snapshot, validates it against the
// schema, and pushes the blended result into the simulation.
func (s *Server) handleRealData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRealDataBody))
	if err != nil {
		http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
		return
	}
	snap, err := blend.ParseSnapshot(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid snapshot: %v", err), http.StatusUnprocessableEntity)
		return
	}

	tick := s.Orch.CurrentTick()
	blended := s.Blender.Blend(snap, s.Orch.SentimentValue())
	s.Orch.SetRealWorldData(blended)
	s.Orch.SetRealEventTriggers(s.Blender.Triggers(snap, blended, tick))
	s.Orch.SetRealTickerItems(s.Blender.Ticker(snap))

	slog.Info("real-world snapshot injected",
		"prices", len(snap.Prices),
		"defi", len(snap.DeFi),
		"news", len(snap.News),
	)
	writeJSON(w, map[string]any{
		"accepted":       true,
		"sentiment":      blended.Sentiment,
		"yield_mult":     blended.GlobalYieldMult,
		"chain_mults":    blended.ChainMults,
		"protocol_mults": blended.ProtocolMults,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
