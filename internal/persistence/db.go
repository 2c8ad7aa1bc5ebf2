// Package persistence stores scene-boundary snapshots in SQLite. The
// simulation never depends on it to keep running; the story server reads
// from here so it never touches live engine state.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/ficworld/internal/engine"
	"github.com/talgya/ficworld/internal/memory"
	"github.com/talgya/ficworld/internal/relationship"
	"github.com/talgya/ficworld/internal/world"
)

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		started_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scenes (
		run_id TEXT NOT NULL,
		scene INTEGER NOT NULL,
		pov TEXT NOT NULL,
		pov_name TEXT NOT NULL,
		summary TEXT NOT NULL,
		prose TEXT NOT NULL,
		turns INTEGER NOT NULL,
		ended_by TEXT NOT NULL,
		PRIMARY KEY (run_id, scene)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		scene INTEGER NOT NULL,
		turn INTEGER NOT NULL,
		actor TEXT NOT NULL,
		target TEXT NOT NULL,
		location TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS characters (
		run_id TEXT NOT NULL,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		location TEXT NOT NULL,
		mood_json TEXT NOT NULL,
		conditions_json TEXT NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE TABLE IF NOT EXISTS memories (
		run_id TEXT NOT NULL,
		id TEXT NOT NULL,
		owner TEXT NOT NULL,
		scene INTEGER NOT NULL,
		turn INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		content TEXT NOT NULL,
		mood_json TEXT NOT NULL,
		embedding_json TEXT NOT NULL,
		significance REAL NOT NULL,
		scene_summary INTEGER NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE TABLE IF NOT EXISTS relationships (
		run_id TEXT NOT NULL,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		trust REAL NOT NULL,
		affinity REAL NOT NULL,
		status TEXT NOT NULL,
		PRIMARY KEY (run_id, from_id, to_id)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run_scene ON events(run_id, scene);
	CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(run_id, owner);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// SaveScene persists one finished scene plus the post-scene world,
// memory and relationship snapshots. Implements engine.Snapshotter.
func (db *DB) SaveScene(ctx context.Context, runID uuid.UUID, result *engine.SceneResult, st *world.State, mem *memory.Store, rel *relationship.Graph) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	id := runID.String()
	if _, err := tx.Exec(
		"INSERT OR IGNORE INTO runs (id, seed, started_at) VALUES (?, ?, ?)",
		id, 0, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO scenes
		(run_id, scene, pov, pov_name, summary, prose, turns, ended_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, result.Scene, string(result.POV), result.POVName,
		result.Summary, result.Prose, result.Turns, result.EndedBy,
	); err != nil {
		return fmt.Errorf("insert scene %d: %w", result.Scene, err)
	}

	if _, err := tx.Exec("DELETE FROM events WHERE run_id = ? AND scene = ?", id, result.Scene); err != nil {
		return err
	}
	for _, ev := range result.Events {
		if _, err := tx.Exec(`INSERT INTO events
			(run_id, scene, turn, actor, target, location, description)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, ev.Scene, ev.Turn, string(ev.Actor), string(ev.Target),
			string(ev.Location), ev.Description,
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if err := saveCharacters(tx, id, st); err != nil {
		return err
	}
	if err := saveMemories(tx, id, mem); err != nil {
		return err
	}
	if err := saveRelationships(tx, id, rel); err != nil {
		return err
	}

	return tx.Commit()
}

// SetRunSeed records the seed a run was started with.
func (db *DB) SetRunSeed(runID uuid.UUID, seed int64) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO runs (id, seed, started_at) VALUES (?, ?, ?)",
		runID.String(), seed, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func saveCharacters(tx *sqlx.Tx, runID string, st *world.State) error {
	if _, err := tx.Exec("DELETE FROM characters WHERE run_id = ?", runID); err != nil {
		return err
	}
	for _, cid := range st.CharacterIDs() {
		c := st.Character(cid)
		moodJSON, _ := json.Marshal(c.Mood)
		condJSON, _ := json.Marshal(c.Conditions())
		if _, err := tx.Exec(`INSERT INTO characters
			(run_id, id, name, location, mood_json, conditions_json)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, string(c.ID), c.Name, string(c.LocationID),
			string(moodJSON), string(condJSON),
		); err != nil {
			return fmt.Errorf("insert character %s: %w", c.ID, err)
		}
	}
	return nil
}

func saveMemories(tx *sqlx.Tx, runID string, mem *memory.Store) error {
	if _, err := tx.Exec("DELETE FROM memories WHERE run_id = ?", runID); err != nil {
		return err
	}
	stmt, err := tx.Preparex(`INSERT INTO memories
		(run_id, id, owner, scene, turn, tick, content, mood_json, embedding_json, significance, scene_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, owner := range mem.Owners() {
		for _, e := range mem.Entries(owner) {
			moodJSON, _ := json.Marshal(e.MoodAtEncoding)
			embJSON, _ := json.Marshal(e.Embedding)
			summary := 0
			if e.SceneSummary {
				summary = 1
			}
			if _, err := stmt.Exec(
				runID, e.ID.String(), string(e.Owner),
				e.Time.Scene, e.Time.Turn, e.Time.Tick,
				e.Content, string(moodJSON), string(embJSON),
				e.Significance, summary,
			); err != nil {
				return fmt.Errorf("insert memory %s: %w", e.ID, err)
			}
		}
	}
	return nil
}

func saveRelationships(tx *sqlx.Tx, runID string, rel *relationship.Graph) error {
	if _, err := tx.Exec("DELETE FROM relationships WHERE run_id = ?", runID); err != nil {
		return err
	}
	for _, e := range rel.All() {
		if _, err := tx.Exec(`INSERT INTO relationships
			(run_id, from_id, to_id, trust, affinity, status)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, string(e.From), string(e.To),
			e.State.Trust, e.State.Affinity, e.State.Status,
		); err != nil {
			return fmt.Errorf("insert relationship %s->%s: %w", e.From, e.To, err)
		}
	}
	return nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
