// Scene narration: the finalized scene log becomes third-person-limited
// prose from the chosen point of view. Failure is non-fatal; the engine
// falls back to the factual log.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/talgya/ficworld/internal/engine"
)

// LLMNarrator implements engine.Narrator over the Messages API.
type LLMNarrator struct {
	client *Client
}

// NewNarrator wraps a client. Returns nil for a nil client.
func NewNarrator(client *Client) *LLMNarrator {
	if client == nil {
		return nil
	}
	return &LLMNarrator{client: client}
}

// Render turns one scene's ordered events into prose told third-person
// limited from the POV character's perspective.
func (n *LLMNarrator) Render(ctx context.Context, scene *engine.SceneResult) (string, error) {
	pov := scene.POVName
	if pov == "" {
		pov = string(scene.POV)
	}

	system := fmt.Sprintf(`You are a novelist. Narrate the scene below as flowing third-person-limited prose from %s's perspective: only what %s could perceive, think or feel. Keep every event, keep their order, invent no new ones. 2-4 paragraphs. Do not break character or reference the simulation.`, pov, pov)

	var b strings.Builder
	fmt.Fprintf(&b, "Scene %d, told from %s's point of view.\n\nEvents in order:\n", scene.Scene, pov)
	for _, ev := range scene.Events {
		fmt.Fprintf(&b, "- %s\n", ev.Description)
	}
	if scene.Summary != "" {
		fmt.Fprintf(&b, "\nWhat the characters took away:\n%s\n", scene.Summary)
	}

	text, err := n.client.Complete(ctx, system, b.String(), 1200)
	if err != nil {
		return "", fmt.Errorf("narrate scene %d: %w", scene.Scene, err)
	}
	return strings.TrimSpace(text), nil
}
