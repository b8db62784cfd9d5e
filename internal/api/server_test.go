package api

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/seraphin/internal/engine"
	"github.com/talgya/seraphin/internal/ledger"
	"github.com/talgya/seraphin/internal/persistence"
	"github.com/talgya/seraphin/internal/render"
)

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	db, err := persistence.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := &Server{
		DB:                db,
		AdminKey:          "secret",
		Render:            render.Options{Width: 24, Height: 24, MaxIter: 20},
		RenderRatePerHour: 2,
	}
	return s, s.Handler()
}

func storeRun(t *testing.T, s *Server, id string, started time.Time) {
	t.Helper()
	require.NoError(t, s.DB.SaveReport(engine.Report{
		RunID:           id,
		Model:           "ultimate",
		Pulses:          10,
		PulsesCompleted: 10,
		MaxDepth:        4,
		StartedAt:       started,
		FinishedAt:      started.Add(time.Second),
		Snapshot: ledger.Snapshot{
			CloneCount:  2,
			Chains:      []string{"Solana"},
			Specialties: map[string]ledger.SuccessStats{"root": {Success: 6, Fail: 4}},
		},
	}))
}

func do(h http.Handler, method, path string, body []byte, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatus(t *testing.T) {
	s, h := newTestServer(t)
	storeRun(t, s, "r1", time.Now().UTC())

	rec := do(h, http.MethodGet, "/api/v1/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "seraphin", body["name"])
	assert.EqualValues(t, 1, body["runs"])
	assert.Equal(t, "r1", body["last_run"])
}

func TestRuns_ListAndLimit(t *testing.T) {
	s, h := newTestServer(t)
	base := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	storeRun(t, s, "first", base)
	storeRun(t, s, "second", base.Add(time.Minute))

	rec := do(h, http.MethodGet, "/api/v1/runs?limit=1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []engine.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "second", runs[0].RunID)

	rec = do(h, http.MethodGet, "/api/v1/runs?limit=zero", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunDetail(t *testing.T) {
	s, h := newTestServer(t)
	storeRun(t, s, "abc", time.Now().UTC())

	rec := do(h, http.MethodGet, "/api/v1/run/abc", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rep engine.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "abc", rep.RunID)
	assert.Equal(t, 2, rep.CloneCount)

	rec = do(h, http.MethodGet, "/api/v1/run/abc/specialties", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success": 6`)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/v1/run/nope", nil, nil).Code)
	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/api/v1/run/abc/other", nil, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/api/v1/run/", nil, nil).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	_, h := newTestServer(t)
	for _, path := range []string{"/api/v1/status", "/api/v1/runs", "/api/v1/run/x"} {
		rec := do(h, http.MethodDelete, path, nil, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
	assert.Equal(t, http.StatusMethodNotAllowed, do(h, http.MethodGet, "/api/v1/simulate", nil, nil).Code)
}

func TestJuliaPNG_CachedAndRateLimited(t *testing.T) {
	s, h := newTestServer(t)
	storeRun(t, s, "img", time.Now().UTC())

	rec := do(h, http.MethodGet, "/api/v1/run/img/julia.png", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 24, img.Bounds().Dx())

	second := do(h, http.MethodGet, "/api/v1/run/img/julia.png", nil, nil)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, rec.Body.Bytes(), second.Body.Bytes())

	third := do(h, http.MethodGet, "/api/v1/run/img/julia.png", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, third.Code)
	assert.NotEmpty(t, third.Header().Get("Retry-After"))

	// Another client has its own bucket.
	other := do(h, http.MethodGet, "/api/v1/run/img/julia.png", nil, map[string]string{"X-Forwarded-For": "10.0.0.9"})
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestSimulate_Auth(t *testing.T) {
	_, h := newTestServer(t)
	body := []byte(`{"model":"core","pulses":5,"max_depth":1,"seed":3}`)

	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/api/v1/simulate", body, nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(h, http.MethodPost, "/api/v1/simulate", body, map[string]string{"Authorization": "Bearer wrong"}).Code)

	disabled := &Server{}
	assert.Equal(t, http.StatusForbidden,
		do(disabled.Handler(), http.MethodPost, "/api/v1/simulate", body, map[string]string{"Authorization": "Bearer "}).Code)
}

func TestCheckBearerToken(t *testing.T) {
	s := &Server{AdminKey: "secret"}
	tests := []struct {
		header string
		want   bool
	}{
		{"Bearer secret", true},
		{"Bearer secre", false},
		{"Bearer secret2", false},
		{"bearer secret", false},
		{"secret", false},
		{"", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/simulate", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, s.checkBearerToken(req), "header %q", tt.header)
	}

	empty := &Server{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/simulate", nil)
	req.Header.Set("Authorization", "Bearer ")
	assert.False(t, empty.checkBearerToken(req), "an unset key never matches")
}

func TestSimulate_RunsAndStores(t *testing.T) {
	s, h := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer secret"}

	rec := do(h, http.MethodPost, "/api/v1/simulate", []byte(`{"model":"core","pulses":20,"max_depth":2,"seed":9}`), auth)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var rep engine.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, "core", rep.Model)
	assert.Equal(t, 20, rep.PulsesCompleted)
	assert.True(t, strings.HasSuffix(rec.Header().Get("Location"), rep.RunID))

	stored, err := s.DB.GetRun(rep.RunID)
	require.NoError(t, err)
	assert.Equal(t, rep.CloneCount, stored.CloneCount)
}

func TestSimulate_Validation(t *testing.T) {
	_, h := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer secret"}

	tests := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"unknown model", `{"model":"mega","pulses":1}`},
		{"zero pulses", `{"pulses":0}`},
		{"too many pulses", `{"pulses":999999}`},
		{"too deep", `{"pulses":1,"max_depth":99}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/api/v1/simulate", []byte(tt.body), auth)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestCORS(t *testing.T) {
	t.Setenv("HYDRA_CORS_ORIGINS", "https://hydra.example")
	_, h := newTestServer(t)

	rec := do(h, http.MethodOptions, "/api/v1/runs", nil, map[string]string{"Origin": "https://hydra.example"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://hydra.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(h, http.MethodGet, "/api/v1/runs", nil, map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter_WindowResets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.Equal(t, 61, rl.RetryAfter("a"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("a"))
	assert.Zero(t, rl.RetryAfter("unknown"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", clientIP(req))
}
