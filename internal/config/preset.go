package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/talgya/ficworld/internal/engine"
	"github.com/talgya/ficworld/internal/world"
)

// Preset bundles one runnable story setup: a world file, the cast, and
// the loop bounds. File paths are resolved relative to the preset file.
type Preset struct {
	Name                string   `json:"name"`
	WorldFile           string   `json:"world_file"`
	RoleFiles           []string `json:"role_files"`
	MaxScenes           int      `json:"max_scenes"`
	MaxSceneTurns       int      `json:"max_scene_turns"`
	StagnationThreshold int      `json:"stagnation_threshold"`

	world *WorldFile
	roles []*RoleFile
}

// WorldFile describes the stage: locations, objects and the ambient
// event pool.
type WorldFile struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Locations   []LocationDef `json:"locations"`
	EventPool   []string      `json:"event_pool"`
}

// LocationDef is one authored location.
type LocationDef struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Connections []string    `json:"connections"`
	Objects     []ObjectDef `json:"objects"`
}

// ObjectDef is one authored object, placed in its containing location.
type ObjectDef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	State       string `json:"state"`
	Interactive bool   `json:"interactive"`
}

// RoleFile describes one character of the cast.
type RoleFile struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	Persona          string             `json:"persona"`
	Backstory        string             `json:"backstory"`
	Goals            world.Goals        `json:"goals"`
	StartingLocation string             `json:"starting_location"`
	StartingMood     map[string]float64 `json:"starting_mood"`
	ActivityWeight   float64            `json:"activity_weight"`
}

// LoadPreset reads a preset and everything it references.
func LoadPreset(path string) (*Preset, error) {
	var p Preset
	if err := readJSON(path, &p); err != nil {
		return nil, fmt.Errorf("load preset: %w", err)
	}
	if p.WorldFile == "" {
		return nil, fmt.Errorf("load preset %s: no world file", path)
	}
	if len(p.RoleFiles) == 0 {
		return nil, fmt.Errorf("load preset %s: no role files", path)
	}

	dir := filepath.Dir(path)

	var w WorldFile
	if err := readJSON(resolve(dir, p.WorldFile), &w); err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}
	p.world = &w

	for _, rf := range p.RoleFiles {
		var r RoleFile
		if err := readJSON(resolve(dir, rf), &r); err != nil {
			return nil, fmt.Errorf("load role: %w", err)
		}
		if r.ID == "" || r.Name == "" {
			return nil, fmt.Errorf("load role %s: id and name are required", rf)
		}
		p.roles = append(p.roles, &r)
	}
	return &p, nil
}

// World returns the loaded world file.
func (p *Preset) World() *WorldFile {
	return p.world
}

// Roles returns the loaded cast.
func (p *Preset) Roles() []*RoleFile {
	return p.roles
}

// EngineConfig maps the preset's loop bounds onto an engine config,
// leaving zero values for the engine defaults.
func (p *Preset) EngineConfig() engine.Config {
	return engine.Config{
		MaxScenes:           p.MaxScenes,
		MaxSceneTurns:       p.MaxSceneTurns,
		StagnationThreshold: p.StagnationThreshold,
		EventPool:           p.world.EventPool,
	}
}

// BuildWorld assembles a fresh ground-truth world from the preset. Safe
// to call repeatedly; every call returns an independent state.
func (p *Preset) BuildWorld() (*world.State, error) {
	var locations []*world.Location
	var objects []*world.Object
	for _, ld := range p.world.Locations {
		loc := &world.Location{
			ID:          world.LocationID(ld.ID),
			Name:        ld.Name,
			Description: ld.Description,
		}
		for _, conn := range ld.Connections {
			loc.Connections = append(loc.Connections, world.LocationID(conn))
		}
		for _, od := range ld.Objects {
			objects = append(objects, &world.Object{
				ID:          world.ObjectID(od.ID),
				Name:        od.Name,
				Description: od.Description,
				State:       od.State,
				Interactive: od.Interactive,
			})
			world.PlaceObject(loc, world.ObjectID(od.ID))
		}
		locations = append(locations, loc)
	}

	var characters []*world.CharacterRecord
	for _, r := range p.roles {
		weight := r.ActivityWeight
		if weight <= 0 {
			weight = 1
		}
		characters = append(characters, &world.CharacterRecord{
			ID:             world.CharacterID(r.ID),
			Name:           r.Name,
			Persona:        r.Persona,
			Backstory:      r.Backstory,
			Goals:          r.Goals,
			LocationID:     world.LocationID(r.StartingLocation),
			Mood:           moodFromMap(r.StartingMood),
			ActivityWeight: weight,
		})
	}

	st, err := world.NewState(locations, objects, characters)
	if err != nil {
		return nil, fmt.Errorf("build world %q: %w", p.world.Name, err)
	}
	return st, nil
}

func moodFromMap(m map[string]float64) world.MoodVector {
	return world.MoodVector{
		Joy:      m["joy"],
		Fear:     m["fear"],
		Anger:    m["anger"],
		Sadness:  m["sadness"],
		Surprise: m["surprise"],
		Trust:    m["trust"],
	}.Clamped()
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
