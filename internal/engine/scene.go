package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/talgya/ficworld/internal/world"
)

// SceneEngine runs one scene: a bounded turn loop, a point-of-view choice,
// summarisation, and narration. Scene ends come from three places, any of
// which must work with the oracle disabled: the turn cap, the stagnation
// guard, and an optional directorial judgment.
type SceneEngine struct {
	turns    *TurnEngine
	director Director
	narrator Narrator
	cfg      Config
	log      *slog.Logger
}

// NewSceneEngine wires a scene engine around a turn engine. director and
// narrator may be nil.
func NewSceneEngine(turns *TurnEngine, director Director, narrator Narrator, cfg Config, log *slog.Logger) *SceneEngine {
	if log == nil {
		log = slog.Default()
	}
	return &SceneEngine{
		turns:    turns,
		director: director,
		narrator: narrator,
		cfg:      cfg.withDefaults(),
		log:      log,
	}
}

// RunScene executes one full scene and returns its finalized record.
// Cancellation is honored only between turns, so the world's invariants
// hold on abort. Fatal errors (invariant violations) propagate; everything
// else is absorbed.
func (s *SceneEngine) RunScene(ctx context.Context) (*SceneResult, error) {
	st := s.turns.world
	st.BeginScene()
	scene := st.SceneID
	s.log.Info("scene begins", "scene", scene)

	stagnant := 0
	endedBy := EndMaxTurns
	turns := 0

	for turn := 1; turn <= s.cfg.MaxSceneTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("scene %d: %w", scene, err)
		}

		result, err := s.turns.RunTurn(ctx)
		if err != nil {
			return nil, fmt.Errorf("scene %d: %w", scene, err)
		}
		turns = result.Turn

		if result.Material {
			stagnant = 0
		} else {
			stagnant++
			if stagnant >= s.cfg.StagnationThreshold {
				endedBy = EndStagnation
				s.log.Info("scene stagnated", "scene", scene, "turns", turns)
				break
			}
		}

		if s.director != nil {
			end, err := s.director.ShouldEndScene(ctx, st.EventLog())
			if err != nil {
				s.log.Debug("scene-end judgment failed, continuing", "error", err)
			} else if end {
				endedBy = EndDirector
				s.log.Info("director ended scene", "scene", scene, "turns", turns)
				break
			}
		}
	}

	events := st.EventLog()
	pov := s.selectPOV(ctx, events)
	summary := s.turns.mem.SummariseScene(scene)

	result := &SceneResult{
		Scene:   scene,
		POV:     pov,
		Events:  events,
		Summary: summary,
		Turns:   turns,
		EndedBy: endedBy,
	}
	if c := st.Character(pov); c != nil {
		result.POVName = c.Name
	}

	result.Prose = s.narrate(ctx, result)
	s.log.Info("scene ends", "scene", scene, "turns", turns, "ended_by", endedBy, "pov", pov)
	return result, nil
}

// selectPOV asks the director whose eyes the scene is told through,
// falling back to whoever acted the most, ties to the lower id.
func (s *SceneEngine) selectPOV(ctx context.Context, events []world.ObjectiveEvent) world.CharacterID {
	ids := s.turns.world.CharacterIDs()
	if len(ids) == 0 {
		return ""
	}

	if s.director != nil {
		chosen, err := s.director.ChoosePOV(ctx, ids, events)
		if err == nil && s.turns.world.Character(chosen) != nil {
			return chosen
		}
		if err != nil {
			s.log.Debug("POV choice failed, falling back", "error", err)
		}
	}

	counts := make(map[world.CharacterID]int)
	for _, ev := range events {
		if ev.Actor != "" {
			counts[ev.Actor]++
		}
	}
	best := ids[0]
	for _, id := range ids {
		if counts[id] > counts[best] {
			best = id
		}
	}
	return best
}

// narrate renders the scene as prose, falling back to the factual log
// joined in order when no narrator is wired or narration fails.
func (s *SceneEngine) narrate(ctx context.Context, result *SceneResult) string {
	if s.narrator != nil {
		prose, err := s.narrator.Render(ctx, result)
		if err == nil && prose != "" {
			return prose
		}
		if err != nil {
			s.log.Warn("narration failed, using factual log", "scene", result.Scene, "error", err)
		}
	}

	lines := make([]string, 0, len(result.Events))
	for _, ev := range result.Events {
		lines = append(lines, ev.Description)
	}
	return strings.Join(lines, " ")
}
