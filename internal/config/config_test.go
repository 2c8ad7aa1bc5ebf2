package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/ficworld/internal/world"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeFile(t, dir, "world.json", `{
		"name": "Harbour Town",
		"description": "A small port.",
		"locations": [
			{
				"id": "tavern",
				"name": "The Gilded Tankard",
				"description": "A low-beamed taproom.",
				"connections": ["street"],
				"objects": [
					{"id": "lamp", "name": "Oil Lamp", "state": "lit", "interactive": true}
				]
			},
			{
				"id": "street",
				"name": "Cobbled Street",
				"description": "Rain-slick cobbles.",
				"connections": ["tavern"]
			}
		],
		"event_pool": ["A gull screams overhead."]
	}`)

	writeFile(t, dir, "alice.json", `{
		"id": "alice",
		"name": "Alice",
		"persona": "A restless scout.",
		"goals": {"long_term": ["find the map"], "short_term": ["question the barkeep"]},
		"starting_location": "tavern",
		"starting_mood": {"joy": 0.4, "fear": 0.2},
		"activity_weight": 1.5
	}`)

	writeFile(t, dir, "bob.json", `{
		"id": "bob",
		"name": "Bob",
		"persona": "A tired barkeep.",
		"starting_location": "tavern"
	}`)

	writeFile(t, dir, "preset.json", `{
		"name": "harbour-opening",
		"world_file": "world.json",
		"role_files": ["alice.json", "bob.json"],
		"max_scenes": 2,
		"max_scene_turns": 10,
		"stagnation_threshold": 4
	}`)

	return dir
}

func TestLoadPresetAndBuildWorld(t *testing.T) {
	dir := writeFixtures(t)
	p, err := LoadPreset(filepath.Join(dir, "preset.json"))
	require.NoError(t, err)

	assert.Equal(t, "harbour-opening", p.Name)
	require.Len(t, p.Roles(), 2)

	cfg := p.EngineConfig()
	assert.Equal(t, 2, cfg.MaxScenes)
	assert.Equal(t, 10, cfg.MaxSceneTurns)
	assert.Equal(t, 4, cfg.StagnationThreshold)
	assert.Equal(t, []string{"A gull screams overhead."}, cfg.EventPool)

	st, err := p.BuildWorld()
	require.NoError(t, err)

	alice := st.Character("alice")
	require.NotNil(t, alice)
	assert.Equal(t, world.LocationID("tavern"), alice.LocationID)
	assert.Equal(t, 0.4, alice.Mood.Joy)
	assert.Equal(t, 1.5, alice.ActivityWeight)
	assert.Equal(t, []string{"find the map"}, alice.Goals.LongTerm)

	// Missing activity weight defaults to 1 so everyone stays eligible.
	assert.Equal(t, 1.0, st.Character("bob").ActivityWeight)

	lamp := st.Object("lamp")
	require.NotNil(t, lamp)
	assert.Equal(t, "lit", lamp.State)
	assert.True(t, st.Location("tavern").ConnectsTo("street"))
}

func TestBuildWorldIsFreshPerCall(t *testing.T) {
	dir := writeFixtures(t)
	p, err := LoadPreset(filepath.Join(dir, "preset.json"))
	require.NoError(t, err)

	a, err := p.BuildWorld()
	require.NoError(t, err)
	b, err := p.BuildWorld()
	require.NoError(t, err)

	require.NoError(t, a.ApplyDelta(world.MoveCharacter{Character: "alice", To: "street"}))
	assert.Equal(t, world.LocationID("tavern"), b.Character("alice").LocationID)
}

func TestLoadPresetDanglingStart(t *testing.T) {
	dir := writeFixtures(t)
	writeFile(t, dir, "ghost.json", `{"id": "ghost", "name": "Ghost", "starting_location": "nowhere"}`)
	writeFile(t, dir, "bad.json", `{
		"name": "bad",
		"world_file": "world.json",
		"role_files": ["ghost.json"]
	}`)

	p, err := LoadPreset(filepath.Join(dir, "bad.json"))
	require.NoError(t, err)
	_, err = p.BuildWorld()
	require.Error(t, err)
	assert.ErrorIs(t, err, world.ErrUnknownEntity)
}

func TestLoadPresetMissingPieces(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.json", `{"name": "empty"}`)
	_, err := LoadPreset(filepath.Join(dir, "empty.json"))
	require.Error(t, err)

	writeFile(t, dir, "noroles.json", `{"name": "x", "world_file": "missing.json", "role_files": ["y.json"]}`)
	_, err = LoadPreset(filepath.Join(dir, "noroles.json"))
	require.Error(t, err)
}

func TestLoadSettingsDefaults(t *testing.T) {
	t.Setenv("FICWORLD_API_KEY", "")
	t.Setenv("FICWORLD_SEED", "99")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "data/ficworld.db", s.DBPath)
	assert.Equal(t, 8080, s.Port)
	assert.Equal(t, int64(99), s.Seed)
	assert.Equal(t, 30*time.Second, s.OracleTimeout)
	assert.Equal(t, "info", s.LogLevel)
}
