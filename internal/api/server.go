// Package api provides a read-only HTTP API for watching a run.
// Every endpoint reads the most recent recorded snapshot; none of them
// touch the registry or the person store.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/talgya/footfall/internal/engine"
	"github.com/talgya/footfall/internal/persistence"
	"github.com/talgya/footfall/internal/poi"
	"github.com/talgya/footfall/internal/report"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SeriesLoader reads a POI's stored hourly series.
type SeriesLoader interface {
	LoadSeries(ctx context.Context, runID string, id poi.ID) ([]persistence.SeriesPoint, error)
}

// Server serves run state over HTTP.
type Server struct {
	Latest     *report.Latest
	Series     SeriesLoader // nil when no database is configured
	RunID      string
	SimStart   time.Time
	Ticks      int
	Population int
	Port       int
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	historyLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/pois", s.handlePOIs)
	mux.HandleFunc("GET /api/v1/poi/{id}", s.handlePOI)
	mux.HandleFunc("GET /api/v1/poi/{id}/history", RateLimitMiddleware(historyLimiter, s.handleHistory))
	return corsMiddleware(mux)
}

// Start serves the API in a goroutine until ctx is cancelled.
func (s *Server) Start(ctx context.Context) {
	addr := fmt.Sprintf(":%d", s.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "history", s.Series != nil)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP shutdown", "error", err)
		}
	}()
}

// corsMiddleware allows the origins listed in FOOTFALL_CORS_ORIGINS
// (comma-separated) plus local dev servers.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("FOOTFALL_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type poiView struct {
	ID        poi.ID  `json:"id"`
	Name      string  `json:"name"`
	Capacity  float64 `json:"capacity"`
	Occupancy int     `json:"occupancy"`
	Slack     float64 `json:"slack"`
}

func viewOf(r poi.Row) poiView {
	return poiView{ID: r.ID, Name: r.Name, Capacity: r.Capacity, Occupancy: r.Occupancy, Slack: r.Slack()}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"run_id":     s.RunID,
		"ticks":      s.Ticks,
		"population": s.Population,
		"recorded":   s.Latest.Recorded(),
	}

	snap, ok := s.Latest.Get()
	if !ok {
		status["running"] = false
		writeJSON(w, status)
		return
	}

	open := 0
	for _, row := range snap.Rows {
		if row.Capacity > 0 {
			open++
		}
	}
	occupied := snap.TotalOccupancy()
	status["running"] = snap.Tick+1 < s.Ticks
	status["tick"] = snap.Tick
	status["sim_time"] = engine.SimTime(s.SimStart, snap.Tick)
	status["pois"] = len(snap.Rows)
	status["open_pois"] = open
	status["occupied"] = occupied
	status["idle"] = s.Population - occupied
	writeJSON(w, status)
}

func (s *Server) handlePOIs(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Latest.Get()
	if !ok {
		writeJSON(w, []poiView{})
		return
	}

	views := make([]poiView, len(snap.Rows))
	for i, row := range snap.Rows {
		views[i] = viewOf(row)
	}
	writeJSON(w, views)
}

func (s *Server) handlePOI(w http.ResponseWriter, r *http.Request) {
	id := poi.ID(r.PathValue("id"))
	snap, ok := s.Latest.Get()
	if !ok {
		http.Error(w, "no hour simulated yet", http.StatusServiceUnavailable)
		return
	}
	row, found := snap.Find(id)
	if !found {
		http.Error(w, "poi not found", http.StatusNotFound)
		return
	}
	writeJSON(w, viewOf(row))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.Series == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	id := poi.ID(r.PathValue("id"))
	points, err := s.Series.LoadSeries(r.Context(), s.RunID, id)
	if err != nil {
		slog.Error("series query failed", "poi", id, "error", err)
		http.Error(w, "series query failed", http.StatusInternalServerError)
		return
	}
	if points == nil {
		points = []persistence.SeriesPoint{}
	}
	writeJSON(w, points)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Warn("write response", "error", err)
	}
}
