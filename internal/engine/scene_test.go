package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/ficworld/internal/entropy"
	"github.com/talgya/ficworld/internal/perception"
	"github.com/talgya/ficworld/internal/world"
)

// failingOracle errors on every call, exercising the oracle-disabled path
// through live fallback machinery rather than a nil oracle.
type failingOracle struct{}

func (failingOracle) Reflect(context.Context, *perception.View, string, string) (*Reflection, error) {
	return nil, errors.New("oracle unavailable")
}
func (failingOracle) ProposeAction(context.Context, *perception.View, string, string, string) (*ActionPlan, error) {
	return nil, errors.New("oracle unavailable")
}
func (failingOracle) InterpretOutcome(context.Context, *ActionPlan, string, *perception.View) (*Outcome, error) {
	return nil, errors.New("oracle unavailable")
}

func newTestScene(t *testing.T, st *world.State, oracle ActionOracle, director Director, narrator Narrator, cfg Config) *SceneEngine {
	t.Helper()
	turns, _, _ := newTestEngine(t, st, oracle, director, cfg)
	return NewSceneEngine(turns, director, narrator, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// A scene with the oracle failing on every call must still complete for
// at least five turns and leave a non-empty event log.
func TestSceneCompletesWithOracleAlwaysFailing(t *testing.T) {
	st := testWorld(t)
	cfg := quietConfig()
	cfg.MaxSceneTurns = 5
	cfg.StagnationThreshold = 10 // higher than the cap so max_turns ends it
	se := newTestScene(t, st, failingOracle{}, nil, nil, cfg)

	res, err := se.RunScene(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, res.Turns)
	assert.Equal(t, EndMaxTurns, res.EndedBy)
	assert.NotEmpty(t, res.Events)
	assert.NotEmpty(t, res.Prose)
	assert.NotEmpty(t, res.Summary)
}

func TestSceneEndsOnStagnation(t *testing.T) {
	st := testWorld(t)
	cfg := quietConfig()
	cfg.MaxSceneTurns = 20
	cfg.StagnationThreshold = 3
	se := newTestScene(t, st, nil, nil, nil, cfg)

	res, err := se.RunScene(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EndStagnation, res.EndedBy)
	assert.Equal(t, 3, res.Turns)
}

// endAfter ends the scene once the log reaches a size.
type endAfter struct {
	pickActor
	events int
	pov    world.CharacterID
}

func (d endAfter) ShouldEndScene(_ context.Context, log []world.ObjectiveEvent) (bool, error) {
	return len(log) >= d.events, nil
}
func (d endAfter) ChoosePOV(context.Context, []world.CharacterID, []world.ObjectiveEvent) (world.CharacterID, error) {
	return d.pov, nil
}

func TestSceneDirectorEndAndPOV(t *testing.T) {
	st := testWorld(t)
	cfg := quietConfig()
	cfg.StagnationThreshold = 10
	director := endAfter{pickActor: pickActor{"alice"}, events: 2, pov: "bob"}
	se := newTestScene(t, st, nil, director, nil, cfg)

	res, err := se.RunScene(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EndDirector, res.EndedBy)
	assert.Equal(t, world.CharacterID("bob"), res.POV)
	assert.Equal(t, "Bob", res.POVName)
}

func TestScenePOVFallbackMostActive(t *testing.T) {
	st := testWorld(t)
	cfg := quietConfig()
	cfg.StagnationThreshold = 10
	cfg.MaxSceneTurns = 4
	// pickActor always selects Alice, so she acts the most; its POV
	// method declines, forcing the fallback.
	se := newTestScene(t, st, nil, pickActor{"alice"}, nil, cfg)

	res, err := se.RunScene(context.Background())
	require.NoError(t, err)
	assert.Equal(t, world.CharacterID("alice"), res.POV)
}

type proseNarrator struct{ fail bool }

func (n proseNarrator) Render(_ context.Context, scene *SceneResult) (string, error) {
	if n.fail {
		return "", errors.New("narrator unavailable")
	}
	return "Once upon a time, scene " + string(rune('0'+scene.Scene)) + " unfolded.", nil
}

func TestSceneNarratorFallbackToFactualLog(t *testing.T) {
	st := testWorld(t)
	cfg := quietConfig()
	cfg.MaxSceneTurns = 2
	cfg.StagnationThreshold = 10

	se := newTestScene(t, st, nil, nil, proseNarrator{fail: true}, cfg)
	res, err := se.RunScene(context.Background())
	require.NoError(t, err)

	// The fallback is the factual log joined in order.
	for _, ev := range res.Events {
		assert.Contains(t, res.Prose, ev.Description)
	}

	st2 := testWorld(t)
	se2 := newTestScene(t, st2, nil, nil, proseNarrator{}, cfg)
	res2, err := se2.RunScene(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res2.Prose, "Once upon a time"))
}

func TestSceneCancellationBetweenTurns(t *testing.T) {
	st := testWorld(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	se := newTestScene(t, st, nil, nil, nil, quietConfig())
	_, err := se.RunScene(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulationRunsToCompletion(t *testing.T) {
	deps := Deps{
		NewWorld: func() (*world.State, error) { return testWorld(t), nil },
		Entropy:  entropy.NewSource(42),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	cfg := quietConfig()
	cfg.MaxScenes = 2
	cfg.MaxSceneTurns = 4
	cfg.StagnationThreshold = 10

	sim, err := NewSimulation(deps, cfg)
	require.NoError(t, err)

	res, err := sim.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Scenes, 2)
	assert.Equal(t, 1, res.Scenes[0].Scene)
	assert.Equal(t, 2, res.Scenes[1].Scene)
	assert.NotEmpty(t, res.Story)
	assert.Equal(t, int64(42), res.Seed)

	// Scene numbering carried into every event.
	for _, ev := range res.Scenes[1].Events {
		assert.Equal(t, 2, ev.Scene)
	}
}

func TestSimulationSeedReproducesActorSequence(t *testing.T) {
	run := func(seed int64) []world.CharacterID {
		deps := Deps{
			NewWorld: func() (*world.State, error) { return testWorld(t), nil },
			Entropy:  entropy.NewSource(seed),
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		}
		cfg := quietConfig()
		cfg.MaxScenes = 1
		cfg.MaxSceneTurns = 8
		cfg.StagnationThreshold = 20
		sim, err := NewSimulation(deps, cfg)
		require.NoError(t, err)
		res, err := sim.Run(context.Background())
		require.NoError(t, err)

		var actors []world.CharacterID
		for _, ev := range res.Scenes[0].Events {
			actors = append(actors, ev.Actor)
		}
		return actors
	}

	assert.Equal(t, run(7), run(7))
}

func TestSimulationRequiresFactoryAndEntropy(t *testing.T) {
	_, err := NewSimulation(Deps{Entropy: entropy.NewSource(1)}, Config{})
	require.Error(t, err)
	_, err = NewSimulation(Deps{NewWorld: func() (*world.State, error) { return nil, nil }}, Config{})
	require.Error(t, err)
}
