// Package api provides the HTTP API over stored simulation runs.
// GET endpoints are public (read-only).
// POST /api/v1/simulate requires a bearer token and starts a new run.
package api

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/seraphin/internal/engine"
	"github.com/talgya/seraphin/internal/hydra"
	"github.com/talgya/seraphin/internal/persistence"
	"github.com/talgya/seraphin/internal/render"
)

// Request limits for POST /api/v1/simulate.
const (
	MaxAPIPulses   = 20000
	MaxAPIDepth    = 20
	defaultListMax = 20
	maxListLimit   = 200
)

// Server serves stored runs over HTTP.
type Server struct {
	DB       *persistence.DB
	Port     int
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	// Render sizes julia.png responses.
	Render render.Options
	// RenderRatePerHour limits julia.png requests per client.
	RenderRatePerHour int

	startedAt time.Time

	// Rendered images (run id → PNG bytes). Runs are immutable once stored.
	pngMu    sync.Mutex
	pngCache map[string][]byte

	// Serialises API-triggered runs.
	runMu sync.Mutex
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	if s.startedAt.IsZero() {
		s.startedAt = time.Now().UTC()
	}
	rate := s.RenderRatePerHour
	if rate <= 0 {
		rate = 60
	}
	renderLimiter := NewRateLimiter(rate, time.Hour)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", getOnly(s.handleStatus))
	mux.HandleFunc("/api/v1/runs", getOnly(s.handleRuns))
	mux.HandleFunc("/api/v1/run/", getOnly(s.handleRunRoutes(renderLimiter)))
	mux.HandleFunc("/api/v1/simulate", s.adminOnly(s.handleSimulate))

	return corsMiddleware(mux)
}

// Serve listens on Port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("HTTP API stopped")
	return nil
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set HYDRA_CORS_ORIGINS to a comma-separated list of extra origins.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("HYDRA_CORS_ORIGINS"); env != "" {
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

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || s.AdminKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.AdminKey)) == 1
}

// adminOnly wraps a POST-only handler with bearer token auth.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no HYDRA_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	runs, err := s.DB.CountRuns()
	if err != nil {
		slog.Error("count runs failed", "error", err)
		http.Error(w, "status unavailable", http.StatusInternalServerError)
		return
	}
	lastRun, _ := s.DB.GetMeta("last_run")
	top, err := s.DB.TopSpecialties(3)
	if err != nil {
		slog.Warn("top specialties failed", "error", err)
	}

	writeJSON(w, map[string]any{
		"name":            "seraphin",
		"runs":            runs,
		"last_run":        lastRun,
		"top_specialties": top,
		"started_at":      s.startedAt,
		"uptime_seconds":  int(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}
	limit := defaultListMax
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := s.DB.ListRuns(limit)
	if err != nil {
		slog.Error("list runs failed", "error", err)
		http.Error(w, "list failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, runs)
}

// handleRunRoutes dispatches /api/v1/run/:id, /api/v1/run/:id/specialties
// and /api/v1/run/:id/julia.png.
func (s *Server) handleRunRoutes(renderLimiter *RateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.DB == nil {
			http.Error(w, "database not available", http.StatusServiceUnavailable)
			return
		}
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		// api v1 run :id [sub]
		if len(parts) < 4 || parts[3] == "" {
			http.Error(w, "missing run id", http.StatusBadRequest)
			return
		}
		if len(parts) > 5 {
			http.NotFound(w, r)
			return
		}
		id := parts[3]

		rep, err := s.DB.GetRun(id)
		if errors.Is(err, persistence.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("get run failed", "run", id, "error", err)
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}

		if len(parts) == 4 {
			writeJSON(w, rep)
			return
		}
		switch parts[4] {
		case "specialties":
			writeJSON(w, rep.Specialties)
		case "julia.png":
			RateLimitMiddleware(renderLimiter, func(w http.ResponseWriter, r *http.Request) {
				s.handleJulia(w, rep)
			})(w, r)
		default:
			http.NotFound(w, r)
		}
	}
}

func (s *Server) handleJulia(w http.ResponseWriter, rep engine.Report) {
	s.pngMu.Lock()
	data, ok := s.pngCache[rep.RunID]
	s.pngMu.Unlock()

	if !ok {
		opts := s.Render
		if opts.Width == 0 {
			opts = render.DefaultOptions()
		}
		img, err := render.Render(rep, opts)
		if err != nil {
			slog.Error("render failed", "run", rep.RunID, "error", err)
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		var buf bytes.Buffer
		if err := render.Encode(&buf, img); err != nil {
			http.Error(w, "encode failed", http.StatusInternalServerError)
			return
		}
		data = buf.Bytes()

		s.pngMu.Lock()
		if s.pngCache == nil {
			s.pngCache = make(map[string][]byte)
		}
		s.pngCache[rep.RunID] = data
		s.pngMu.Unlock()
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// simulateRequest is the POST /api/v1/simulate body.
type simulateRequest struct {
	Model    string `json:"model"`
	Pulses   int    `json:"pulses"`
	MaxDepth int    `json:"max_depth"`
	Forced   bool   `json:"forced"`
	Seed     int64  `json:"seed"`
	Backend  string `json:"backend"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	var req simulateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	model, err := hydra.ParseModel(req.Model)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Pulses < 1 || req.Pulses > MaxAPIPulses {
		http.Error(w, fmt.Sprintf("pulses must be between 1 and %d", MaxAPIPulses), http.StatusBadRequest)
		return
	}
	if req.MaxDepth < 0 || req.MaxDepth > MaxAPIDepth {
		http.Error(w, fmt.Sprintf("max_depth must be between 0 and %d", MaxAPIDepth), http.StatusBadRequest)
		return
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	rep, err := engine.RunSimulation(r.Context(), engine.Options{
		Model:    model,
		Pulses:   req.Pulses,
		MaxDepth: req.MaxDepth,
		Forced:   req.Forced,
		Seed:     req.Seed,
		Backend:  req.Backend,
	})
	if err != nil {
		slog.Warn("api simulation stopped", "error", err)
		http.Error(w, "simulation stopped", http.StatusServiceUnavailable)
		return
	}
	if err := s.DB.SaveReport(rep); err != nil {
		slog.Error("save run failed", "run", rep.RunID, "error", err)
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}

	slog.Info("api simulation stored", "run", rep.RunID, "clones", rep.CloneCount)
	w.Header().Set("Location", "/api/v1/run/"+rep.RunID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, rep)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
