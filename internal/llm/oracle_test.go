package llm

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/ficworld/internal/engine"
	"github.com/talgya/ficworld/internal/perception"
	"github.com/talgya/ficworld/internal/world"
)

func TestParsePlan(t *testing.T) {
	plan, err := parsePlan(`Here is my decision: {"action": "speak", "target": "bob", "text": "Hello.", "tone": "warm"}`)
	require.NoError(t, err)
	assert.Equal(t, engine.ActSpeak, plan.Kind)
	assert.Equal(t, "bob", plan.Target)
	assert.Equal(t, "Hello.", plan.Text)
	assert.Equal(t, "warm", plan.Tone)
}

func TestParsePlanInvalidActionIsMalformed(t *testing.T) {
	_, err := parsePlan(`{"action": "backflip"}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = parsePlan(`I refuse to answer in JSON.`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseOutcome(t *testing.T) {
	out, err := parseOutcome(`{"description": "The lamp gutters and dies.",
		"object_state": {"object": "lamp", "state": "unlit"},
		"mood": {"character": "alice", "fear": 0.4},
		"condition": {"character": "alice", "condition": "in_darkness"}}`)
	require.NoError(t, err)

	assert.Equal(t, "The lamp gutters and dies.", out.Description)
	require.Len(t, out.Deltas, 3)
	assert.Equal(t, world.SetObjectState{Object: "lamp", State: "unlit"}, out.Deltas[0])
	assert.Equal(t, world.SetMood{Character: "alice", Mood: world.MoodVector{Fear: 0.4}}, out.Deltas[1])
	assert.Equal(t, world.SetCondition{Character: "alice", Condition: "in_darkness"}, out.Deltas[2])
}

func TestParseOutcomeRequiresDescription(t *testing.T) {
	_, err := parseOutcome(`{"object_state": {"object": "lamp", "state": "lit"}}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func testView() *perception.View {
	return &perception.View{
		Observer:     "alice",
		LocationID:   "tavern",
		LocationName: "The Gilded Tankard",
		Description:  "A low-beamed taproom.",
		Characters: []perception.VisibleCharacter{
			{ID: "bob", Name: "Bob", ApparentMood: "sadness"},
		},
		Memories: []string{"the brawl last winter"},
	}
}

func TestOracleProposeAction(t *testing.T) {
	c := fakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		replyText(t, w, `{"action": "move", "target": "street"}`)
	})
	o := NewOracle(c)

	plan, err := o.ProposeAction(context.Background(), testView(), "", "Alice. A restless scout.", "")
	require.NoError(t, err)
	assert.Equal(t, engine.ActMove, plan.Kind)
	assert.Equal(t, "street", plan.Target)
}

func TestOracleReflect(t *testing.T) {
	c := fakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		replyText(t, w, `{"thought": " I don't trust the quiet in here. ", "mood": {"fear": 0.5, "trust": 0.1}}`)
	})
	o := NewOracle(c)

	got, err := o.Reflect(context.Background(), testView(), "Alice. A restless scout.", "")
	require.NoError(t, err)
	assert.Equal(t, "I don't trust the quiet in here.", got.Thought)
	require.NotNil(t, got.Mood)
	assert.InDelta(t, 0.5, got.Mood.Fear, 1e-9)
	assert.InDelta(t, 0.1, got.Mood.Trust, 1e-9)
}

func TestParseReflectionRequiresThought(t *testing.T) {
	_, err := parseReflection(`{"mood": {"fear": 0.5}}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)

	r, err := parseReflection(`{"thought": "Keep watching the door."}`)
	require.NoError(t, err)
	assert.Nil(t, r.Mood)
}

func TestDirectorChooseActorRejectsNonCandidate(t *testing.T) {
	c := fakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		replyText(t, w, `{"actor": "mallory"}`)
	})
	d := NewDirector(c)

	_, err := d.ChooseActor(context.Background(), []world.CharacterID{"alice", "bob"}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDirectorShouldEndScene(t *testing.T) {
	c := fakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		replyText(t, w, `The scene feels complete. {"end": true}`)
	})
	d := NewDirector(c)

	end, err := d.ShouldEndScene(context.Background(), []world.ObjectiveEvent{{Description: "Alice leaves."}})
	require.NoError(t, err)
	assert.True(t, end)
}

func TestNarratorRender(t *testing.T) {
	c := fakeAPI(t, func(w http.ResponseWriter, r *http.Request) {
		replyText(t, w, "Alice felt the room close in around her.")
	})
	n := NewNarrator(c)

	prose, err := n.Render(context.Background(), &engine.SceneResult{
		Scene:   1,
		POV:     "alice",
		POVName: "Alice",
		Events:  []world.ObjectiveEvent{{Description: "Alice waits."}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice felt the room close in around her.", prose)
}
