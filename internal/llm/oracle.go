// Character cognition: the two-step reflect-then-act exchange that turns a
// subjective view into an action plan, plus outcome interpretation.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talgya/ficworld/internal/engine"
	"github.com/talgya/ficworld/internal/perception"
	"github.com/talgya/ficworld/internal/world"
)

// Oracle implements engine.ActionOracle over the Messages API.
type Oracle struct {
	client *Client
}

// NewOracle wraps a client. Returns nil for a nil client so the engine
// falls back cleanly.
func NewOracle(client *Client) *Oracle {
	if client == nil {
		return nil
	}
	return &Oracle{client: client}
}

// wirePlan is the JSON shape the model is asked to produce for a plan.
type wirePlan struct {
	Action      string `json:"action"`
	Text        string `json:"text,omitempty"`
	Target      string `json:"target,omitempty"`
	Object      string `json:"object,omitempty"`
	ObjectState string `json:"object_state,omitempty"`
	Skill       string `json:"skill,omitempty"`
	Tone        string `json:"tone,omitempty"`
}

// wireOutcome is the JSON shape for outcome interpretation.
type wireOutcome struct {
	Description string `json:"description"`
	ObjectState *struct {
		Object string `json:"object"`
		State  string `json:"state"`
	} `json:"object_state,omitempty"`
	Mood *struct {
		Character string  `json:"character"`
		Joy       float64 `json:"joy"`
		Fear      float64 `json:"fear"`
		Anger     float64 `json:"anger"`
		Sadness   float64 `json:"sadness"`
		Surprise  float64 `json:"surprise"`
		Trust     float64 `json:"trust"`
	} `json:"mood,omitempty"`
	Condition *struct {
		Character string `json:"character"`
		Condition string `json:"condition"`
		Remove    bool   `json:"remove,omitempty"`
	} `json:"condition,omitempty"`
}

// wireReflection is the JSON shape for the reflect step.
type wireReflection struct {
	Thought string `json:"thought"`
	Mood    *struct {
		Joy      float64 `json:"joy"`
		Fear     float64 `json:"fear"`
		Anger    float64 `json:"anger"`
		Sadness  float64 `json:"sadness"`
		Surprise float64 `json:"surprise"`
		Trust    float64 `json:"trust"`
	} `json:"mood,omitempty"`
}

// Reflect produces the actor's private inner monologue for this turn,
// optionally with a shifted mood.
func (o *Oracle) Reflect(ctx context.Context, view *perception.View, persona, relationships string) (*engine.Reflection, error) {
	system := fmt.Sprintf(`You are %s. Stay in character; never reference the simulation. Respond ONLY with a single JSON object:
- "thought": 2-3 sentences of private inner monologue, what you notice, feel and want right now
- "mood": {"joy": .., "fear": .., "anger": .., "sadness": .., "surprise": .., "trust": ..} with values in [0,1], only if your mood has shifted (optional)`, persona)
	user := renderView(view, relationships) + "\nWhat is going through your mind? Respond with a single JSON object."

	text, err := o.client.Complete(ctx, system, user, 300)
	if err != nil {
		return nil, fmt.Errorf("reflect: %w", err)
	}
	return parseReflection(text)
}

func parseReflection(text string) (*engine.Reflection, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("parse reflection: %w", err)
	}
	var wr wireReflection
	if err := json.Unmarshal([]byte(raw), &wr); err != nil {
		return nil, fmt.Errorf("parse reflection: %v: %w", err, ErrMalformed)
	}
	if wr.Thought == "" {
		return nil, fmt.Errorf("parse reflection: empty thought: %w", ErrMalformed)
	}

	r := &engine.Reflection{Thought: strings.TrimSpace(wr.Thought)}
	if wr.Mood != nil {
		r.Mood = &world.MoodVector{
			Joy: wr.Mood.Joy, Fear: wr.Mood.Fear, Anger: wr.Mood.Anger,
			Sadness: wr.Mood.Sadness, Surprise: wr.Mood.Surprise, Trust: wr.Mood.Trust,
		}
	}
	return r, nil
}

// ProposeAction turns view, reflection and context into a concrete plan.
// An unrecognised action kind is a malformed response, never guessed at.
func (o *Oracle) ProposeAction(ctx context.Context, view *perception.View, reflection, persona, relationships string) (*engine.ActionPlan, error) {
	system := fmt.Sprintf(`You are %s. Decide your next action. Respond ONLY with a single JSON object:
- "action": one of "speak", "move", "interact_object", "use_skill", "observe", "wait"
- "text": what you say (speak only)
- "target": character id to address, or location id to move to
- "object": object id (interact_object only)
- "object_state": the state you leave the object in (interact_object only)
- "skill": skill name (use_skill only)
- "tone": one word for how you carry the action`, persona)

	var b strings.Builder
	b.WriteString(renderView(view, relationships))
	if reflection != "" {
		fmt.Fprintf(&b, "\nYour thoughts: %s\n", reflection)
	}
	b.WriteString("\nWhat do you do? Respond with a single JSON object.")

	text, err := o.client.Complete(ctx, system, b.String(), 400)
	if err != nil {
		return nil, fmt.Errorf("propose action: %w", err)
	}
	return parsePlan(text)
}

// InterpretOutcome renders a resolved plan as outcome prose plus world
// change hints.
func (o *Oracle) InterpretOutcome(ctx context.Context, plan *engine.ActionPlan, actorName string, view *perception.View) (*engine.Outcome, error) {
	system := `You narrate the immediate outcome of one character's action in third person, one or two sentences, concrete and observable. Respond ONLY with a single JSON object:
- "description": the outcome prose
- "object_state": {"object": id, "state": text} if an object changed (optional)
- "mood": {"character": id, "joy": .., "fear": .., "anger": .., "sadness": .., "surprise": .., "trust": ..} if the actor's mood shifted (optional)
- "condition": {"character": id, "condition": text, "remove": bool} if a lasting condition changed (optional)`

	user := fmt.Sprintf("Location: %s. %s\n%s attempts: %s %s %s %s\nRespond with a single JSON object.",
		view.LocationName, view.Description, actorName, plan.Kind, plan.Target, plan.Object, plan.Text)

	text, err := o.client.Complete(ctx, system, user, 400)
	if err != nil {
		return nil, fmt.Errorf("interpret outcome: %w", err)
	}
	return parseOutcome(text)
}

func parsePlan(text string) (*engine.ActionPlan, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	var wp wirePlan
	if err := json.Unmarshal([]byte(raw), &wp); err != nil {
		return nil, fmt.Errorf("parse plan: %v: %w", err, ErrMalformed)
	}
	kind, ok := engine.ParseActionKind(wp.Action)
	if !ok {
		return nil, fmt.Errorf("parse plan: invalid action %q: %w", wp.Action, ErrMalformed)
	}
	return &engine.ActionPlan{
		Kind:        kind,
		Text:        wp.Text,
		Target:      wp.Target,
		Object:      world.ObjectID(wp.Object),
		ObjectState: wp.ObjectState,
		Skill:       wp.Skill,
		Tone:        wp.Tone,
	}, nil
}

func parseOutcome(text string) (*engine.Outcome, error) {
	raw, err := extractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("parse outcome: %w", err)
	}
	var wo wireOutcome
	if err := json.Unmarshal([]byte(raw), &wo); err != nil {
		return nil, fmt.Errorf("parse outcome: %v: %w", err, ErrMalformed)
	}
	if wo.Description == "" {
		return nil, fmt.Errorf("parse outcome: empty description: %w", ErrMalformed)
	}

	out := &engine.Outcome{Description: strings.TrimSpace(wo.Description)}
	if wo.ObjectState != nil {
		out.Deltas = append(out.Deltas, world.SetObjectState{
			Object: world.ObjectID(wo.ObjectState.Object),
			State:  wo.ObjectState.State,
		})
	}
	if wo.Mood != nil {
		out.Deltas = append(out.Deltas, world.SetMood{
			Character: world.CharacterID(wo.Mood.Character),
			Mood: world.MoodVector{
				Joy: wo.Mood.Joy, Fear: wo.Mood.Fear, Anger: wo.Mood.Anger,
				Sadness: wo.Mood.Sadness, Surprise: wo.Mood.Surprise, Trust: wo.Mood.Trust,
			},
		})
	}
	if wo.Condition != nil {
		out.Deltas = append(out.Deltas, world.SetCondition{
			Character: world.CharacterID(wo.Condition.Character),
			Condition: wo.Condition.Condition,
			Remove:    wo.Condition.Remove,
		})
	}
	return out, nil
}

// renderView flattens a subjective view into prompt text.
func renderView(view *perception.View, relationships string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are at %s. %s\n", view.LocationName, view.Description)

	if len(view.Characters) > 0 {
		b.WriteString("Present:\n")
		for _, c := range view.Characters {
			fmt.Fprintf(&b, "- %s (id %s), seems %s", c.Name, c.ID, c.ApparentMood)
			if len(c.Conditions) > 0 {
				fmt.Fprintf(&b, ", %s", strings.Join(c.Conditions, ", "))
			}
			b.WriteString("\n")
		}
	}
	if len(view.Objects) > 0 {
		b.WriteString("Objects:\n")
		for _, o := range view.Objects {
			fmt.Fprintf(&b, "- %s (id %s)", o.Name, o.ID)
			if o.State != "" {
				fmt.Fprintf(&b, ", %s", o.State)
			}
			b.WriteString("\n")
		}
	}
	if len(view.Exits) > 0 {
		ids := make([]string, 0, len(view.Exits))
		for _, e := range view.Exits {
			ids = append(ids, string(e))
		}
		fmt.Fprintf(&b, "Exits: %s\n", strings.Join(ids, ", "))
	}
	if len(view.Memories) > 0 {
		b.WriteString("You remember:\n")
		for _, m := range view.Memories {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}
	if view.Inference != "" {
		fmt.Fprintf(&b, "Your sense of the moment: %s\n", view.Inference)
	}
	if relationships != "" {
		fmt.Fprintf(&b, "Your relationships:\n%s\n", relationships)
	}
	return b.String()
}
