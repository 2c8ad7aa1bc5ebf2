package relationship

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/ficworld/internal/world"
)

const (
	alice = world.CharacterID("alice")
	bob   = world.CharacterID("bob")
	carol = world.CharacterID("carol")
)

func TestGetCreatesNeutralDefault(t *testing.T) {
	g := NewGraph()
	s := g.Get(alice, bob)
	assert.Equal(t, 0.0, s.Trust)
	assert.Equal(t, 0.0, s.Affinity)
	assert.Equal(t, DefaultStatus, s.Status)

	// Idempotent: a second Get returns the same state.
	assert.Equal(t, s, g.Get(alice, bob))
}

func TestEdgesAreDirectional(t *testing.T) {
	g := NewGraph()
	g.Update(alice, bob, 0.3, 0.1, "ally")

	ab := g.Get(alice, bob)
	ba := g.Get(bob, alice)
	assert.Equal(t, 0.3, ab.Trust)
	assert.Equal(t, "ally", ab.Status)
	assert.Equal(t, 0.0, ba.Trust)
	assert.Equal(t, DefaultStatus, ba.Status)
}

func TestUpdateClamps(t *testing.T) {
	g := NewGraph()
	s := g.Update(alice, bob, 5, -5, "")
	assert.Equal(t, 1.0, s.Trust)
	assert.Equal(t, -1.0, s.Affinity)

	s = g.Update(alice, bob, -3, 3, "")
	assert.Equal(t, -1.0, s.Trust)
	assert.Equal(t, 1.0, s.Affinity)
}

func TestUpdateStatusOnlyWhenSupplied(t *testing.T) {
	g := NewGraph()
	g.Update(alice, bob, 0.1, 0, "friend")
	s := g.Update(alice, bob, 0.1, 0, "")
	assert.Equal(t, "friend", s.Status)
	assert.InDelta(t, 0.2, s.Trust, 1e-9)
}

func TestUpdateDoubleApplies(t *testing.T) {
	g := NewGraph()
	g.Update(alice, bob, 0.05, 0.02, "")
	g.Update(alice, bob, 0.05, 0.02, "")
	s := g.Get(alice, bob)
	assert.InDelta(t, 0.1, s.Trust, 1e-9)
	assert.InDelta(t, 0.04, s.Affinity, 1e-9)
}

func TestInterpretWarmVerb(t *testing.T) {
	g := NewGraph()
	ev := world.ObjectiveEvent{
		Actor: alice, Target: bob, Location: "tavern",
		Description: "Alice helps Bob gather the scattered maps.",
	}
	require.True(t, g.Interpret(ev))

	// Actor's opinion of the target moves by the full amount.
	ab := g.Get(alice, bob)
	assert.InDelta(t, 0.05, ab.Trust, 1e-9)
	assert.InDelta(t, 0.02, ab.Affinity, 1e-9)

	// Target's opinion moves at the reverse factor.
	ba := g.Get(bob, alice)
	assert.InDelta(t, 0.04, ba.Trust, 1e-9)
	assert.InDelta(t, 0.016, ba.Affinity, 1e-9)
}

func TestInterpretAppliesOneShiftPerEvent(t *testing.T) {
	g := NewGraph()
	ev := world.ObjectiveEvent{
		Actor: alice, Target: bob, Location: "tavern",
		Description: "Alice helps Bob to his feet and comforts him.",
	}
	require.True(t, g.Interpret(ev))

	// Two warm verbs in one event still shift trust only once.
	assert.InDelta(t, 0.05, g.Get(alice, bob).Trust, 1e-9)
	assert.InDelta(t, 0.04, g.Get(bob, alice).Trust, 1e-9)
}

func TestInterpretWarmWinsOverCold(t *testing.T) {
	g := NewGraph()
	ev := world.ObjectiveEvent{
		Actor: alice, Target: bob, Location: "tavern",
		Description: "Alice disagrees with Bob but thanks him anyway.",
	}
	require.True(t, g.Interpret(ev))
	assert.InDelta(t, 0.05, g.Get(alice, bob).Trust, 1e-9)
}

func TestInterpretColdVerb(t *testing.T) {
	g := NewGraph()
	ev := world.ObjectiveEvent{
		Actor: bob, Target: alice, Location: "tavern",
		Description: "Bob insults Alice loudly.",
	}
	require.True(t, g.Interpret(ev))
	assert.InDelta(t, -0.1, g.Get(alice, bob).Trust, 1e-9)
	assert.InDelta(t, -0.05, g.Get(alice, bob).Affinity, 1e-9)
}

func TestInterpretIgnoresNeutralEvents(t *testing.T) {
	g := NewGraph()
	assert.False(t, g.Interpret(world.ObjectiveEvent{
		Actor: alice, Target: bob,
		Description: "Alice looks out the window.",
	}))
	assert.False(t, g.Interpret(world.ObjectiveEvent{
		Actor:       alice,
		Description: "Alice insults the weather.",
	}))
	assert.Empty(t, g.All())
}

func TestContextForOrdering(t *testing.T) {
	g := NewGraph()
	g.Update(alice, bob, 0.2, 0.9, "friend")
	g.Update(alice, carol, 0.8, -0.3, "rival")
	g.Update(bob, alice, 0.5, 0.5, "")

	ctx := g.ContextFor(alice, 10)
	lines := []string{"bob (friend): trust 0.20, affinity 0.90", "carol (rival): trust 0.80, affinity -0.30"}
	assert.Equal(t, lines[0]+"\n"+lines[1], ctx)

	// n bounds the edge count.
	assert.Equal(t, lines[0], g.ContextFor(alice, 1))
}

func TestAllSorted(t *testing.T) {
	g := NewGraph()
	g.Update(carol, alice, 0.1, 0, "")
	g.Update(alice, bob, 0.1, 0, "")
	all := g.All()
	require.Len(t, all, 2)
	assert.Equal(t, alice, all[0].From)
	assert.Equal(t, carol, all[1].From)
}
