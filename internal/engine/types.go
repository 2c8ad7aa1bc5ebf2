// Package engine drives the simulation: the turn state machine, the scene
// loop around it, and the run-level loop around that. The oracle and the
// narrator are reached only through the narrow interfaces declared here;
// every oracle failure has a deterministic local fallback, so a full run
// completes with the oracle entirely absent.
package engine

import (
	"context"
	"fmt"

	"github.com/talgya/ficworld/internal/perception"
	"github.com/talgya/ficworld/internal/world"
)

// ActionKind is the closed set of things a character can attempt.
// Resolution switches exhaustively on it; there is no string dispatch.
type ActionKind uint8

const (
	ActWait ActionKind = iota
	ActSpeak
	ActMove
	ActInteractObject
	ActUseSkill
	ActObserve
)

func (k ActionKind) String() string {
	switch k {
	case ActWait:
		return "wait"
	case ActSpeak:
		return "speak"
	case ActMove:
		return "move"
	case ActInteractObject:
		return "interact_object"
	case ActUseSkill:
		return "use_skill"
	case ActObserve:
		return "observe"
	default:
		return fmt.Sprintf("action(%d)", uint8(k))
	}
}

// ParseActionKind maps the oracle's wire string to an ActionKind.
func ParseActionKind(s string) (ActionKind, bool) {
	switch s {
	case "wait":
		return ActWait, true
	case "speak":
		return ActSpeak, true
	case "move":
		return ActMove, true
	case "interact_object":
		return ActInteractObject, true
	case "use_skill":
		return ActUseSkill, true
	case "observe":
		return ActObserve, true
	default:
		return ActWait, false
	}
}

// ActionPlan is one character's intended action for a turn. Which fields
// matter depends on Kind: Text for speak, Target for move and speak,
// Object and ObjectState for interact_object, Skill for use_skill.
type ActionPlan struct {
	Kind        ActionKind
	Text        string
	Target      string
	Object      world.ObjectID
	ObjectState string
	Skill       string
	Tone        string
}

// WaitPlan is the deterministic default substituted on any oracle failure.
func WaitPlan() *ActionPlan {
	return &ActionPlan{Kind: ActWait}
}

// Outcome is the oracle's interpretation of a resolved action: prose for
// the event log plus the world changes it implies. Deltas are hints; the
// engine validates each one and discards the lot on any invalid reference.
type Outcome struct {
	Description string
	Deltas      []world.Delta
}

// Reflection is the private half of a turn: an inner thought carried into
// planning, and an optional mood shift nobody else observes directly.
type Reflection struct {
	Thought string
	Mood    *world.MoodVector
}

// ActionOracle is the external text-generation service consulted during a
// turn. Every method is synchronous, bounded by ctx, and fallible; the
// engine never blocks indefinitely on it and recovers every failure with
// a deterministic fallback.
type ActionOracle interface {
	// Reflect produces the actor's private inner monologue for the turn.
	Reflect(ctx context.Context, view *perception.View, persona, relationships string) (*Reflection, error)

	// ProposeAction turns the actor's view, reflection and context into a
	// concrete plan.
	ProposeAction(ctx context.Context, view *perception.View, reflection, persona, relationships string) (*ActionPlan, error)

	// InterpretOutcome renders a resolved plan as outcome prose plus
	// world-change hints.
	InterpretOutcome(ctx context.Context, plan *ActionPlan, actorName string, view *perception.View) (*Outcome, error)
}

// Director makes scene-level judgment calls: who acts, when a scene has
// run its course, whose point of view the scene is told from, and whether
// the world itself should intervene. Every call is optional; the engine
// carries a deterministic answer for each.
type Director interface {
	ChooseActor(ctx context.Context, candidates []world.CharacterID, recent []world.ObjectiveEvent) (world.CharacterID, error)
	ShouldEndScene(ctx context.Context, log []world.ObjectiveEvent) (bool, error)
	ChoosePOV(ctx context.Context, candidates []world.CharacterID, log []world.ObjectiveEvent) (world.CharacterID, error)
	InjectEvent(ctx context.Context, location *world.Location, log []world.ObjectiveEvent) (string, error)
}

// Narrator turns a finalized scene log into prose. The engine's sole
// obligation is a complete, ordered log; narration failure never stops
// the simulation.
type Narrator interface {
	Render(ctx context.Context, scene *SceneResult) (string, error)
}

// TurnResult records what one turn produced.
type TurnResult struct {
	Turn     int
	Actor    world.CharacterID
	Plan     *ActionPlan
	Events   []world.ObjectiveEvent
	Material bool
}

// SceneResult is the finalized record of one scene: the ordered event
// log plus point-of-view and summary metadata the narrator consumes.
type SceneResult struct {
	Scene   int                    `json:"scene"`
	POV     world.CharacterID      `json:"pov"`
	POVName string                 `json:"pov_name"`
	Events  []world.ObjectiveEvent `json:"events"`
	Summary string                 `json:"summary"`
	Prose   string                 `json:"prose,omitempty"`
	Turns   int                    `json:"turns"`
	EndedBy string                 `json:"ended_by"`
}

// EndedBy values recorded on SceneResult.
const (
	EndMaxTurns   = "max_turns"
	EndStagnation = "stagnation"
	EndDirector   = "director"
)
