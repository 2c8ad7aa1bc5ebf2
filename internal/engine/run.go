package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/talgya/ficworld/internal/entropy"
	"github.com/talgya/ficworld/internal/memory"
	"github.com/talgya/ficworld/internal/perception"
	"github.com/talgya/ficworld/internal/relationship"
	"github.com/talgya/ficworld/internal/world"
)

// WorldFactory builds a fresh ground-truth world. The simulation calls it
// once per run so no state leaks between runs.
type WorldFactory func() (*world.State, error)

// Snapshotter persists the world at scene boundaries. Failures are logged
// and the run continues; persistence is never load-bearing for the
// simulation itself.
type Snapshotter interface {
	SaveScene(ctx context.Context, runID uuid.UUID, result *SceneResult, st *world.State, mem *memory.Store, rel *relationship.Graph) error
}

// Deps is everything a Simulation needs. NewWorld and Entropy are
// required; the rest may be nil (Embedder defaults to the hash embedder).
type Deps struct {
	NewWorld  WorldFactory
	Embedder  memory.Embedder
	Oracle    ActionOracle
	Director  Director
	Narrator  Narrator
	Snapshots Snapshotter
	Entropy   *entropy.Source
	Biaser    perception.Biaser
	Inferrer  perception.Inferrer
	Logger    *slog.Logger
}

// RunResult is the finished product of one run: ordered scene records and
// the concatenated story prose.
type RunResult struct {
	RunID  uuid.UUID
	Seed   int64
	Scenes []*SceneResult
	Story  string
}

// Simulation owns the component lifetimes for a run and iterates scenes
// up to the configured maximum.
type Simulation struct {
	deps Deps
	cfg  Config
	log  *slog.Logger
}

// NewSimulation validates deps and returns a Simulation.
func NewSimulation(deps Deps, cfg Config) (*Simulation, error) {
	if deps.NewWorld == nil {
		return nil, fmt.Errorf("simulation requires a world factory")
	}
	if deps.Entropy == nil {
		return nil, fmt.Errorf("simulation requires an entropy source")
	}
	if deps.Embedder == nil {
		deps.Embedder = memory.HashEmbedder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Simulation{deps: deps, cfg: cfg.withDefaults(), log: deps.Logger}, nil
}

// Run executes a full simulation: fresh world, MaxScenes scenes, one story.
// Cancellation is honored at turn and scene boundaries only, so the world
// is always consistent on abort. The error return is reserved for fatal
// conditions: a broken world factory, an invariant violation, or
// cancellation.
func (s *Simulation) Run(ctx context.Context) (*RunResult, error) {
	runID := uuid.New()
	st, err := s.deps.NewWorld()
	if err != nil {
		return nil, fmt.Errorf("run %s: build world: %w", runID, err)
	}

	mem := memory.NewStore(s.deps.Embedder)
	rel := relationship.NewGraph()
	filter := perception.NewFilter(mem, s.cfg.MemoryRecall)
	if s.deps.Biaser != nil {
		filter.WithBiaser(s.deps.Biaser)
	}
	if s.deps.Inferrer != nil {
		filter.WithInferrer(s.deps.Inferrer)
	}

	turns := NewTurnEngine(st, filter, mem, rel, s.deps.Entropy, s.deps.Oracle, s.deps.Director, s.cfg, s.log)
	scenes := NewSceneEngine(turns, s.deps.Director, s.deps.Narrator, s.cfg, s.log)

	s.log.Info("run begins", "run", runID, "seed", s.deps.Entropy.Seed(),
		"scenes", s.cfg.MaxScenes, "characters", len(st.CharacterIDs()))

	result := &RunResult{RunID: runID, Seed: s.deps.Entropy.Seed()}
	for i := 0; i < s.cfg.MaxScenes; i++ {
		scene, err := scenes.RunScene(ctx)
		if err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
		result.Scenes = append(result.Scenes, scene)

		if s.deps.Snapshots != nil {
			if err := s.deps.Snapshots.SaveScene(ctx, runID, scene, st, mem, rel); err != nil {
				s.log.Warn("scene snapshot failed", "run", runID, "scene", scene.Scene, "error", err)
			}
		}
	}

	var prose []string
	for _, scene := range result.Scenes {
		prose = append(prose, scene.Prose)
	}
	result.Story = strings.Join(prose, "\n\n")

	s.log.Info("run complete", "run", runID, "scenes", len(result.Scenes))
	return result, nil
}
