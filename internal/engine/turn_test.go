package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/ficworld/internal/entropy"
	"github.com/talgya/ficworld/internal/memory"
	"github.com/talgya/ficworld/internal/perception"
	"github.com/talgya/ficworld/internal/relationship"
	"github.com/talgya/ficworld/internal/world"
)

func testWorld(t *testing.T) *world.State {
	t.Helper()

	lamp := &world.Object{ID: "lamp", Name: "Oil Lamp", State: "unlit", Interactive: true}
	tavern := &world.Location{
		ID: "tavern", Name: "The Gilded Tankard",
		Description: "A low-beamed taproom.",
		Connections: []world.LocationID{"street"},
	}
	world.PlaceObject(tavern, lamp.ID)
	street := &world.Location{
		ID: "street", Name: "Cobbled Street",
		Description: "Rain-slick cobbles.",
		Connections: []world.LocationID{"tavern"},
	}

	st, err := world.NewState(
		[]*world.Location{tavern, street},
		[]*world.Object{lamp},
		[]*world.CharacterRecord{
			{ID: "alice", Name: "Alice", LocationID: "tavern", ActivityWeight: 1},
			{ID: "bob", Name: "Bob", LocationID: "tavern", ActivityWeight: 1},
			{ID: "carol", Name: "Carol", LocationID: "street", ActivityWeight: 1},
		},
	)
	require.NoError(t, err)
	return st
}

// quietConfig disables random event injection so tests see only the
// events their turns produce.
func quietConfig() Config {
	return Config{
		FallbackInjectionChance: -1,
		DirectorInjectionChance: -1,
	}
}

func newTestEngine(t *testing.T, st *world.State, oracle ActionOracle, director Director, cfg Config) (*TurnEngine, *memory.Store, *relationship.Graph) {
	t.Helper()
	mem := memory.NewStore(memory.HashEmbedder{})
	rel := relationship.NewGraph()
	filter := perception.NewFilter(mem, 3)
	rng := entropy.NewSource(42)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTurnEngine(st, filter, mem, rel, rng, oracle, director, cfg, log), mem, rel
}

// scriptedOracle returns a fixed plan for every actor.
type scriptedOracle struct {
	plan    *ActionPlan
	outcome *Outcome
	mood    *world.MoodVector
	fail    bool
}

func (o *scriptedOracle) Reflect(context.Context, *perception.View, string, string) (*Reflection, error) {
	if o.fail {
		return nil, errors.New("oracle down")
	}
	return &Reflection{Thought: "a quiet thought", Mood: o.mood}, nil
}

func (o *scriptedOracle) ProposeAction(context.Context, *perception.View, string, string, string) (*ActionPlan, error) {
	if o.fail {
		return nil, errors.New("oracle down")
	}
	return o.plan, nil
}

func (o *scriptedOracle) InterpretOutcome(context.Context, *ActionPlan, string, *perception.View) (*Outcome, error) {
	if o.fail || o.outcome == nil {
		return nil, errors.New("oracle down")
	}
	return o.outcome, nil
}

// pickActor is a Director stub that always chooses one actor and makes no
// other judgments.
type pickActor struct {
	id world.CharacterID
}

func (d pickActor) ChooseActor(context.Context, []world.CharacterID, []world.ObjectiveEvent) (world.CharacterID, error) {
	return d.id, nil
}
func (pickActor) ShouldEndScene(context.Context, []world.ObjectiveEvent) (bool, error) {
	return false, nil
}
func (pickActor) ChoosePOV(context.Context, []world.CharacterID, []world.ObjectiveEvent) (world.CharacterID, error) {
	return "", errors.New("no opinion")
}
func (pickActor) InjectEvent(context.Context, *world.Location, []world.ObjectiveEvent) (string, error) {
	return "", errors.New("no opinion")
}

func TestTurnWithoutOracleIsWait(t *testing.T) {
	st := testWorld(t)
	eng, mem, _ := newTestEngine(t, st, nil, nil, quietConfig())

	res, err := eng.RunTurn(context.Background())
	require.NoError(t, err)

	assert.Equal(t, ActWait, res.Plan.Kind)
	assert.False(t, res.Material)
	require.Len(t, res.Events, 1)
	assert.Contains(t, res.Events[0].Description, "waits")

	// Everyone co-located with the actor remembered the event.
	actor := st.Character(res.Actor)
	for _, c := range st.CharactersAt(actor.LocationID) {
		assert.NotEmpty(t, mem.Entries(c.ID), "observer %s", c.ID)
	}
}

func TestTurnOracleFailureFallsBackToWait(t *testing.T) {
	st := testWorld(t)
	eng, _, _ := newTestEngine(t, st, &scriptedOracle{fail: true}, nil, quietConfig())

	res, err := eng.RunTurn(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ActWait, res.Plan.Kind)
	assert.NotEmpty(t, st.EventLog())
}

func TestTurnSpeakTargetsCharacter(t *testing.T) {
	st := testWorld(t)
	oracle := &scriptedOracle{plan: &ActionPlan{Kind: ActSpeak, Target: "bob", Text: "Pass the salt."}}
	eng, mem, _ := newTestEngine(t, st, oracle, pickActor{"alice"}, quietConfig())

	res, err := eng.RunTurn(context.Background())
	require.NoError(t, err)

	assert.Equal(t, world.CharacterID("alice"), res.Actor)
	assert.True(t, res.Material)
	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, world.CharacterID("bob"), ev.Target)
	assert.Contains(t, ev.Description, "Pass the salt.")

	// Carol is on the street and must not have perceived it.
	assert.Empty(t, mem.Entries("carol"))
}

func TestTurnMoveRelocatesAtomically(t *testing.T) {
	st := testWorld(t)
	oracle := &scriptedOracle{plan: &ActionPlan{Kind: ActMove, Target: "street"}}
	eng, mem, _ := newTestEngine(t, st, oracle, pickActor{"alice"}, quietConfig())

	res, err := eng.RunTurn(context.Background())
	require.NoError(t, err)
	require.True(t, res.Material)

	alice := st.Character("alice")
	assert.Equal(t, world.LocationID("street"), alice.LocationID)
	assert.True(t, st.Location("street").HasCharacter("alice"))
	assert.False(t, st.Location("tavern").HasCharacter("alice"))

	// Post-mutation perception: Carol, at the destination, saw the
	// arrival; Bob, left behind, did not.
	require.NotEmpty(t, mem.Entries("carol"))
	assert.Contains(t, mem.Entries("carol")[0].Content, "arrives")
	assert.Empty(t, mem.Entries("bob"))
}

func TestTurnMoveToUnconnectedLocationIsNoOp(t *testing.T) {
	st := testWorld(t)
	oracle := &scriptedOracle{plan: &ActionPlan{Kind: ActMove, Target: "nowhere"}}
	eng, _, _ := newTestEngine(t, st, oracle, pickActor{"alice"}, quietConfig())

	res, err := eng.RunTurn(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Material)
	assert.Equal(t, world.LocationID("tavern"), st.Character("alice").LocationID)
}

func TestTurnInteractObjectChangesState(t *testing.T) {
	st := testWorld(t)
	oracle := &scriptedOracle{plan: &ActionPlan{Kind: ActInteractObject, Object: "lamp", ObjectState: "lit"}}
	eng, _, _ := newTestEngine(t, st, oracle, pickActor{"alice"}, quietConfig())

	res, err := eng.RunTurn(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Material)
	assert.Equal(t, "lit", st.Object("lamp").State)
}

func TestTurnDiscardsInvalidOracleDeltas(t *testing.T) {
	st := testWorld(t)
	oracle := &scriptedOracle{
		plan: &ActionPlan{Kind: ActSpeak, Text: "hello"},
		outcome: &Outcome{
			Description: "Something dramatic happens.",
			Deltas: []world.Delta{
				world.SetObjectState{Object: "lamp", State: "shattered"},
				world.MoveCharacter{Character: "ghost", To: "street"},
			},
		},
	}
	eng, _, _ := newTestEngine(t, st, oracle, pickActor{"alice"}, quietConfig())

	res, err := eng.RunTurn(context.Background())
	require.NoError(t, err)

	// One bad reference discards the whole hint batch; the enriched
	// description is kept.
	assert.Equal(t, "unlit", st.Object("lamp").State)
	assert.Equal(t, "Something dramatic happens.", res.Events[0].Description)
}

func TestTurnReflectionShiftsPrivateMood(t *testing.T) {
	st := testWorld(t)
	oracle := &scriptedOracle{
		plan: &ActionPlan{Kind: ActSpeak, Text: "Who's there?"},
		mood: &world.MoodVector{Fear: 0.6, Surprise: 0.3},
	}
	eng, _, _ := newTestEngine(t, st, oracle, pickActor{"alice"}, quietConfig())

	_, err := eng.RunTurn(context.Background())
	require.NoError(t, err)

	mood := st.Character("alice").Mood
	assert.InDelta(t, 0.6, mood.Fear, 1e-9)
	assert.InDelta(t, 0.3, mood.Surprise, 1e-9)
}

func TestTurnRelationshipUpdateFromEvent(t *testing.T) {
	st := testWorld(t)
	oracle := &scriptedOracle{plan: &ActionPlan{Kind: ActSpeak, Target: "bob", Text: "Alice thanks Bob for the map."}}
	eng, _, rel := newTestEngine(t, st, oracle, pickActor{"alice"}, quietConfig())

	_, err := eng.RunTurn(context.Background())
	require.NoError(t, err)

	assert.Greater(t, rel.Get("bob", "alice").Trust, 0.0)
	assert.Greater(t, rel.Get("alice", "bob").Trust, 0.0)
}

func TestEventInjectionRemembered(t *testing.T) {
	st := testWorld(t)
	cfg := quietConfig()
	cfg.FallbackInjectionChance = 1.01 // always fire
	cfg.EventPool = []string{"A bell tolls."}
	eng, mem, _ := newTestEngine(t, st, nil, pickActor{"alice"}, cfg)

	res, err := eng.RunTurn(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Events, 2)
	injected := res.Events[1]
	assert.Empty(t, injected.Actor)
	assert.Equal(t, "A bell tolls.", injected.Description)
	assert.True(t, res.Material)

	var sawBell bool
	for _, e := range mem.Entries("bob") {
		if e.Content == "A bell tolls." {
			sawBell = true
		}
	}
	assert.True(t, sawBell)
}

func TestConfigInjectionChanceSemantics(t *testing.T) {
	// Zero selects the defaults.
	cfg := Config{}.withDefaults()
	assert.Equal(t, defaultDirectorInjection, cfg.DirectorInjectionChance)
	assert.Equal(t, defaultFallbackInjection, cfg.FallbackInjectionChance)

	// A negative chance survives defaulting and never fires.
	cfg = Config{DirectorInjectionChance: -1, FallbackInjectionChance: -1}.withDefaults()
	assert.Equal(t, -1.0, cfg.DirectorInjectionChance)
	assert.Equal(t, -1.0, cfg.FallbackInjectionChance)

	st := testWorld(t)
	eng, _, _ := newTestEngine(t, st, nil, nil, cfg)
	for i := 0; i < 20; i++ {
		res, err := eng.RunTurn(context.Background())
		require.NoError(t, err)
		assert.Len(t, res.Events, 1)
	}
}

func TestWeightedActorSelectionHonorsWeights(t *testing.T) {
	st, err := world.NewState(
		[]*world.Location{{ID: "room", Name: "Room"}},
		nil,
		[]*world.CharacterRecord{
			{ID: "active", Name: "Active", LocationID: "room", ActivityWeight: 1},
			{ID: "inert", Name: "Inert", LocationID: "room", ActivityWeight: 0},
		},
	)
	require.NoError(t, err)
	eng, _, _ := newTestEngine(t, st, nil, nil, quietConfig())

	for i := 0; i < 50; i++ {
		res, err := eng.RunTurn(context.Background())
		require.NoError(t, err)
		assert.Equal(t, world.CharacterID("active"), res.Actor)
	}
}
