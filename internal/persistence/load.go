package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/talgya/ficworld/internal/memory"
	"github.com/talgya/ficworld/internal/relationship"
	"github.com/talgya/ficworld/internal/world"
)

// RunRow is one stored run.
type RunRow struct {
	ID        string `db:"id" json:"id"`
	Seed      int64  `db:"seed" json:"seed"`
	StartedAt string `db:"started_at" json:"started_at"`
}

// SceneRow is one stored scene record.
type SceneRow struct {
	RunID   string `db:"run_id" json:"run_id"`
	Scene   int    `db:"scene" json:"scene"`
	POV     string `db:"pov" json:"pov"`
	POVName string `db:"pov_name" json:"pov_name"`
	Summary string `db:"summary" json:"summary"`
	Prose   string `db:"prose" json:"prose"`
	Turns   int    `db:"turns" json:"turns"`
	EndedBy string `db:"ended_by" json:"ended_by"`
}

// EventRow is one stored objective event.
type EventRow struct {
	ID          int64  `db:"id" json:"id"`
	RunID       string `db:"run_id" json:"-"`
	Scene       int    `db:"scene" json:"scene"`
	Turn        int    `db:"turn" json:"turn"`
	Actor       string `db:"actor" json:"actor,omitempty"`
	Target      string `db:"target" json:"target,omitempty"`
	Location    string `db:"location" json:"location"`
	Description string `db:"description" json:"description"`
}

// CharacterRow is one character's post-scene snapshot.
type CharacterRow struct {
	RunID          string `db:"run_id" json:"-"`
	ID             string `db:"id" json:"id"`
	Name           string `db:"name" json:"name"`
	Location       string `db:"location" json:"location"`
	MoodJSON       string `db:"mood_json" json:"mood"`
	ConditionsJSON string `db:"conditions_json" json:"conditions"`
}

// RelationshipRow is one directional relationship edge.
type RelationshipRow struct {
	RunID    string  `db:"run_id" json:"-"`
	From     string  `db:"from_id" json:"from"`
	To       string  `db:"to_id" json:"to"`
	Trust    float64 `db:"trust" json:"trust"`
	Affinity float64 `db:"affinity" json:"affinity"`
	Status   string  `db:"status" json:"status"`
}

// Runs lists stored runs, newest first.
func (db *DB) Runs() ([]RunRow, error) {
	var rows []RunRow
	err := db.conn.Select(&rows, "SELECT id, seed, started_at FROM runs ORDER BY started_at DESC")
	return rows, err
}

// LatestRun returns the most recently started run, or false if none.
func (db *DB) LatestRun() (RunRow, bool, error) {
	var row RunRow
	err := db.conn.Get(&row, "SELECT id, seed, started_at FROM runs ORDER BY started_at DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return RunRow{}, false, nil
	}
	return row, err == nil, err
}

// Scenes returns a run's scenes in order.
func (db *DB) Scenes(runID string) ([]SceneRow, error) {
	var rows []SceneRow
	err := db.conn.Select(&rows,
		"SELECT * FROM scenes WHERE run_id = ? ORDER BY scene", runID)
	return rows, err
}

// Events returns a run's events in order. scene < 1 means all scenes;
// limit < 1 means no limit.
func (db *DB) Events(runID string, scene, limit int) ([]EventRow, error) {
	q := "SELECT * FROM events WHERE run_id = ?"
	args := []any{runID}
	if scene > 0 {
		q += " AND scene = ?"
		args = append(args, scene)
	}
	q += " ORDER BY id"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []EventRow
	err := db.conn.Select(&rows, q, args...)
	return rows, err
}

// Characters returns a run's character snapshots sorted by id.
func (db *DB) Characters(runID string) ([]CharacterRow, error) {
	var rows []CharacterRow
	err := db.conn.Select(&rows,
		"SELECT * FROM characters WHERE run_id = ? ORDER BY id", runID)
	return rows, err
}

// Relationships returns a run's relationship edges sorted by endpoints.
func (db *DB) Relationships(runID string) ([]RelationshipRow, error) {
	var rows []RelationshipRow
	err := db.conn.Select(&rows,
		"SELECT * FROM relationships WHERE run_id = ? ORDER BY from_id, to_id", runID)
	return rows, err
}

// MemoryRow is one stored memory entry.
type MemoryRow struct {
	RunID         string  `db:"run_id"`
	ID            string  `db:"id"`
	Owner         string  `db:"owner"`
	Scene         int     `db:"scene"`
	Turn          int     `db:"turn"`
	Tick          int     `db:"tick"`
	Content       string  `db:"content"`
	MoodJSON      string  `db:"mood_json"`
	EmbeddingJSON string  `db:"embedding_json"`
	Significance  float64 `db:"significance"`
	SceneSummary  int     `db:"scene_summary"`
}

// LoadGraph rebuilds a run's relationship graph from its latest snapshot.
func (db *DB) LoadGraph(runID string) (*relationship.Graph, error) {
	rows, err := db.Relationships(runID)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	g := relationship.NewGraph()
	for _, r := range rows {
		g.Set(world.CharacterID(r.From), world.CharacterID(r.To), relationship.State{
			Trust:    r.Trust,
			Affinity: r.Affinity,
			Status:   r.Status,
		})
	}
	return g, nil
}

// LoadMemories rebuilds a run's memory streams into the given store, in
// per-owner stream order.
func (db *DB) LoadMemories(runID string, store *memory.Store) error {
	var rows []MemoryRow
	err := db.conn.Select(&rows,
		"SELECT * FROM memories WHERE run_id = ? ORDER BY owner, tick", runID)
	if err != nil {
		return fmt.Errorf("load memories: %w", err)
	}

	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return fmt.Errorf("load memory %s: %w", r.ID, err)
		}
		var mood world.MoodVector
		if err := json.Unmarshal([]byte(r.MoodJSON), &mood); err != nil {
			return fmt.Errorf("load memory %s: mood: %w", r.ID, err)
		}
		var embedding []float64
		if err := json.Unmarshal([]byte(r.EmbeddingJSON), &embedding); err != nil {
			return fmt.Errorf("load memory %s: embedding: %w", r.ID, err)
		}
		store.Restore(memory.Entry{
			ID:             id,
			Owner:          world.CharacterID(r.Owner),
			Time:           memory.Timestamp{Scene: r.Scene, Turn: r.Turn, Tick: r.Tick},
			Content:        r.Content,
			MoodAtEncoding: mood,
			Embedding:      embedding,
			Significance:   r.Significance,
			SceneSummary:   r.SceneSummary != 0,
		})
	}
	return nil
}

// Story concatenates a run's scene prose in order.
func (db *DB) Story(runID string) (string, error) {
	scenes, err := db.Scenes(runID)
	if err != nil {
		return "", fmt.Errorf("load story: %w", err)
	}
	parts := make([]string, 0, len(scenes))
	for _, s := range scenes {
		parts = append(parts, s.Prose)
	}
	return strings.Join(parts, "\n\n"), nil
}
