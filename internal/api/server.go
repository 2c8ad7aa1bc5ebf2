// Package api serves finished runs over HTTP: read-only endpoints backed
// by the persistence layer, never by live engine state, so the simulation
// stays single-threaded.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/talgya/ficworld/internal/persistence"
)

// Server serves stored runs over HTTP.
type Server struct {
	DB   *persistence.DB
	Port int

	httpServer *http.Server
}

// Start begins serving in a goroutine. Shut down with Stop.
func (s *Server) Start() {
	limiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/runs", s.handleRuns)
	mux.HandleFunc("/api/v1/scenes", s.handleScenes)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/characters", s.handleCharacters)
	mux.HandleFunc("/api/v1/relationships", s.handleRelationships)
	mux.HandleFunc("/api/v1/story", s.handleStory)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           RateLimitMiddleware(limiter, mux.ServeHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("api server listening", "port", s.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api server failed", "error", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}

// resolveRun picks the run to serve: ?run=id, defaulting to the latest.
// Writes the error response itself and returns false when nothing can be
// served.
func (s *Server) resolveRun(w http.ResponseWriter, r *http.Request) (string, bool) {
	if id := r.URL.Query().Get("run"); id != "" {
		return id, true
	}
	latest, ok, err := s.DB.LatestRun()
	if err != nil {
		http.Error(w, "load runs: "+err.Error(), http.StatusInternalServerError)
		return "", false
	}
	if !ok {
		http.Error(w, "no runs stored", http.StatusNotFound)
		return "", false
	}
	return latest.ID, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	runs, err := s.DB.Runs()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	status := map[string]any{"runs": len(runs)}
	if len(runs) > 0 {
		status["latest_run"] = runs[0].ID
		status["latest_started_at"] = runs[0].StartedAt
	}
	s.writeJSON(w, status)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.DB.Runs()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, runs)
}

func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.resolveRun(w, r)
	if !ok {
		return
	}
	scenes, err := s.DB.Scenes(runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, scenes)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.resolveRun(w, r)
	if !ok {
		return
	}

	scene := 0
	if v := r.URL.Query().Get("scene"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid scene", http.StatusBadRequest)
			return
		}
		scene = n
	}
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := s.DB.Events(runID, scene, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, events)
}

func (s *Server) handleCharacters(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.resolveRun(w, r)
	if !ok {
		return
	}
	chars, err := s.DB.Characters(runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// Unpack the stored JSON columns so clients get structure, not
	// doubly-encoded strings.
	type characterView struct {
		ID         string          `json:"id"`
		Name       string          `json:"name"`
		Location   string          `json:"location"`
		Mood       json.RawMessage `json:"mood"`
		Conditions json.RawMessage `json:"conditions"`
	}
	out := make([]characterView, 0, len(chars))
	for _, c := range chars {
		out = append(out, characterView{
			ID:         c.ID,
			Name:       c.Name,
			Location:   c.Location,
			Mood:       json.RawMessage(c.MoodJSON),
			Conditions: json.RawMessage(c.ConditionsJSON),
		})
	}
	s.writeJSON(w, out)
}

func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.resolveRun(w, r)
	if !ok {
		return
	}
	rels, err := s.DB.Relationships(runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, rels)
}

func (s *Server) handleStory(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.resolveRun(w, r)
	if !ok {
		return
	}
	story, err := s.DB.Story(runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(story))
}
