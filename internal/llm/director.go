// Directorial judgment calls: actor choice, scene-end detection, point of
// view, and world-event invention. Every call is optional; the engine
// carries deterministic fallbacks, so failures here only cost flavor.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/talgya/ficworld/internal/world"
)

// LLMDirector implements engine.Director over the Messages API.
type LLMDirector struct {
	client *Client
}

// NewDirector wraps a client. Returns nil for a nil client.
func NewDirector(client *Client) *LLMDirector {
	if client == nil {
		return nil
	}
	return &LLMDirector{client: client}
}

const directorSystem = `You are the silent director of an unfolding story. You never write prose; you make single structural judgments and respond ONLY with the JSON object requested.`

// ChooseActor picks who should act next for dramatic flow.
func (d *LLMDirector) ChooseActor(ctx context.Context, candidates []world.CharacterID, recent []world.ObjectiveEvent) (world.CharacterID, error) {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, string(c))
	}
	user := fmt.Sprintf("Characters: %s\n%s\nWho should act next? Respond with {\"actor\": id}.",
		strings.Join(ids, ", "), renderEvents(recent))

	text, err := d.client.Complete(ctx, directorSystem, user, 100)
	if err != nil {
		return "", fmt.Errorf("choose actor: %w", err)
	}
	var out struct {
		Actor string `json:"actor"`
	}
	if err := parseInto(text, &out); err != nil {
		return "", fmt.Errorf("choose actor: %w", err)
	}
	for _, c := range candidates {
		if string(c) == out.Actor {
			return c, nil
		}
	}
	return "", fmt.Errorf("choose actor: %q not a candidate: %w", out.Actor, ErrMalformed)
}

// ShouldEndScene judges whether the scene has reached a natural close.
func (d *LLMDirector) ShouldEndScene(ctx context.Context, log []world.ObjectiveEvent) (bool, error) {
	user := renderEvents(log) + "\nHas this scene reached a natural close? Respond with {\"end\": true|false}."

	text, err := d.client.Complete(ctx, directorSystem, user, 50)
	if err != nil {
		return false, fmt.Errorf("scene end: %w", err)
	}
	var out struct {
		End bool `json:"end"`
	}
	if err := parseInto(text, &out); err != nil {
		return false, fmt.Errorf("scene end: %w", err)
	}
	return out.End, nil
}

// ChoosePOV picks whose eyes the finished scene is told through.
func (d *LLMDirector) ChoosePOV(ctx context.Context, candidates []world.CharacterID, log []world.ObjectiveEvent) (world.CharacterID, error) {
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, string(c))
	}
	user := fmt.Sprintf("%s\nCharacters: %s\nWhose point of view should this scene be told from? Respond with {\"pov\": id}.",
		renderEvents(log), strings.Join(ids, ", "))

	text, err := d.client.Complete(ctx, directorSystem, user, 100)
	if err != nil {
		return "", fmt.Errorf("choose pov: %w", err)
	}
	var out struct {
		POV string `json:"pov"`
	}
	if err := parseInto(text, &out); err != nil {
		return "", fmt.Errorf("choose pov: %w", err)
	}
	for _, c := range candidates {
		if string(c) == out.POV {
			return c, nil
		}
	}
	return "", fmt.Errorf("choose pov: %q not a candidate: %w", out.POV, ErrMalformed)
}

// InjectEvent invents a small world event at the location to stir the
// scene without resolving it.
func (d *LLMDirector) InjectEvent(ctx context.Context, location *world.Location, log []world.ObjectiveEvent) (string, error) {
	user := fmt.Sprintf("Location: %s. %s\n%s\nInvent one small ambient event here, a single sentence, observable and unresolved. Respond with {\"event\": text}.",
		location.Name, location.Description, renderEvents(log))

	text, err := d.client.Complete(ctx, directorSystem, user, 150)
	if err != nil {
		return "", fmt.Errorf("inject event: %w", err)
	}
	var out struct {
		Event string `json:"event"`
	}
	if err := parseInto(text, &out); err != nil {
		return "", fmt.Errorf("inject event: %w", err)
	}
	if strings.TrimSpace(out.Event) == "" {
		return "", fmt.Errorf("inject event: empty: %w", ErrMalformed)
	}
	return strings.TrimSpace(out.Event), nil
}

func parseInto(text string, v any) error {
	raw, err := extractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("%v: %w", err, ErrMalformed)
	}
	return nil
}

func renderEvents(events []world.ObjectiveEvent) string {
	if len(events) == 0 {
		return "Nothing has happened yet."
	}
	var b strings.Builder
	b.WriteString("Recent events:\n")
	for _, ev := range events {
		fmt.Fprintf(&b, "- %s\n", ev.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}
