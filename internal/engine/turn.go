package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/ficworld/internal/entropy"
	"github.com/talgya/ficworld/internal/memory"
	"github.com/talgya/ficworld/internal/perception"
	"github.com/talgya/ficworld/internal/relationship"
	"github.com/talgya/ficworld/internal/world"
)

// Config bounds the scene loop and tunes the stochastic knobs. Zero values
// are replaced by the defaults below.
type Config struct {
	MaxSceneTurns       int
	StagnationThreshold int
	MaxScenes           int

	// DirectorInjectionChance is the per-turn chance the director is asked
	// to invent a world event; FallbackInjectionChance is the per-turn
	// chance an ambient event fires from the pool when the director is
	// absent or declines. Zero selects the default; a negative value
	// disables that injection path.
	DirectorInjectionChance float64
	FallbackInjectionChance float64

	// MemoryRecall is how many memories a view carries into the oracle.
	MemoryRecall int

	// EventPool holds ambient event templates for fallback injection.
	EventPool []string
}

const (
	defaultMaxSceneTurns       = 20
	defaultStagnationThreshold = 3
	defaultMaxScenes           = 3
	defaultDirectorInjection   = 0.05
	defaultFallbackInjection   = 0.15
	defaultMemoryRecall        = 5
)

func (c Config) withDefaults() Config {
	if c.MaxSceneTurns <= 0 {
		c.MaxSceneTurns = defaultMaxSceneTurns
	}
	if c.StagnationThreshold <= 0 {
		c.StagnationThreshold = defaultStagnationThreshold
	}
	if c.MaxScenes <= 0 {
		c.MaxScenes = defaultMaxScenes
	}
	if c.DirectorInjectionChance == 0 {
		c.DirectorInjectionChance = defaultDirectorInjection
	}
	if c.FallbackInjectionChance == 0 {
		c.FallbackInjectionChance = defaultFallbackInjection
	}
	if c.MemoryRecall <= 0 {
		c.MemoryRecall = defaultMemoryRecall
	}
	if len(c.EventPool) == 0 {
		c.EventPool = defaultEventPool
	}
	return c
}

// defaultEventPool is used when a world file supplies no ambient events.
var defaultEventPool = []string{
	"A sudden gust of wind rattles the shutters.",
	"Somewhere in the distance, a bell tolls once.",
	"The light shifts as clouds pass overhead.",
	"A stray dog trots through, sniffing at the ground.",
	"An unfamiliar voice is heard faintly, then fades.",
}

// TurnEngine runs one actor's full turn: select, observe, plan, resolve,
// notify, relate, and an optional world-event check. All mutation flows
// through world.State.ApplyDelta; the engine itself holds no world state.
type TurnEngine struct {
	world    *world.State
	filter   *perception.Filter
	mem      *memory.Store
	rel      *relationship.Graph
	rng      *entropy.Source
	oracle   ActionOracle // nil disables the oracle entirely
	director Director     // nil disables directorial overrides
	cfg      Config
	log      *slog.Logger
}

// NewTurnEngine wires a turn engine. oracle and director may be nil; every
// decision they would make has a deterministic fallback.
func NewTurnEngine(st *world.State, filter *perception.Filter, mem *memory.Store, rel *relationship.Graph, rng *entropy.Source, oracle ActionOracle, director Director, cfg Config, log *slog.Logger) *TurnEngine {
	if log == nil {
		log = slog.Default()
	}
	return &TurnEngine{
		world:    st,
		filter:   filter,
		mem:      mem,
		rel:      rel,
		rng:      rng,
		oracle:   oracle,
		director: director,
		cfg:      cfg.withDefaults(),
		log:      log,
	}
}

// RunTurn executes one complete turn. It returns a fatal error only on an
// invariant violation; every oracle failure is absorbed by a fallback.
func (t *TurnEngine) RunTurn(ctx context.Context) (*TurnResult, error) {
	turn := t.world.BeginTurn()
	t.mem.Advance(t.world.SceneID, turn, t.world.GlobalTurn)

	actor := t.selectActor(ctx)
	if actor == nil {
		return nil, fmt.Errorf("turn %d: no eligible actors", turn)
	}
	t.log.Debug("turn begins", "scene", t.world.SceneID, "turn", turn, "actor", actor.ID)

	view, err := t.filter.ViewFor(actor.ID, t.world)
	if err != nil {
		return nil, fmt.Errorf("turn %d: observe: %w", turn, err)
	}

	plan := t.requestAction(ctx, actor, view)
	event, deltas, material := t.resolve(ctx, actor, view, plan)

	for _, d := range deltas {
		if err := t.world.ApplyDelta(d); err != nil {
			var inv *world.InvariantError
			if errors.As(err, &inv) {
				return nil, fmt.Errorf("turn %d: %w", turn, err)
			}
			// An invalid reference slipped past validation; drop the
			// delta and keep the turn alive.
			t.log.Warn("delta rejected at apply", "turn", turn, "error", err)
		}
	}
	if err := t.world.ApplyDelta(world.AppendEvent{Event: event}); err != nil {
		return nil, fmt.Errorf("turn %d: append event: %w", turn, err)
	}

	// Perception happens after mutation: observers of a move see the
	// actor where they arrived, not where they left from.
	t.notifyObservers(event)
	t.rel.Interpret(event)

	result := &TurnResult{
		Turn:     turn,
		Actor:    actor.ID,
		Plan:     plan,
		Events:   []world.ObjectiveEvent{event},
		Material: material,
	}

	if injected, ok := t.eventCheck(ctx, actor); ok {
		result.Events = append(result.Events, injected)
		result.Material = true
	}
	return result, nil
}

// selectActor picks who acts this turn: a directorial choice when one is
// available and valid, otherwise weighted random over activity weight.
func (t *TurnEngine) selectActor(ctx context.Context) *world.CharacterRecord {
	ids := t.world.CharacterIDs()
	if len(ids) == 0 {
		return nil
	}

	if t.director != nil {
		chosen, err := t.director.ChooseActor(ctx, ids, t.recentEvents(5))
		if err == nil {
			if c := t.world.Character(chosen); c != nil {
				return c
			}
			t.log.Warn("director chose unknown actor, falling back", "actor", chosen)
		} else {
			t.log.Debug("director actor choice failed, falling back", "error", err)
		}
	}

	weights := make([]float64, len(ids))
	for i, id := range ids {
		weights[i] = t.world.Character(id).ActivityWeight
	}
	return t.world.Character(ids[t.rng.WeightedIndex(weights)])
}

// requestAction runs the two-step reflect-then-plan exchange with the
// oracle. Reflection may shift the actor's private mood; any failure on
// either step yields the deterministic fallback (unchanged mood, wait).
func (t *TurnEngine) requestAction(ctx context.Context, actor *world.CharacterRecord, view *perception.View) *ActionPlan {
	if t.oracle == nil {
		return WaitPlan()
	}

	persona := personaContext(actor)
	relations := t.rel.ContextFor(actor.ID, 5)

	var thought string
	reflection, err := t.oracle.Reflect(ctx, view, persona, relations)
	if err != nil {
		t.log.Debug("reflection failed, planning without it", "actor", actor.ID, "error", err)
	} else if reflection != nil {
		thought = reflection.Thought
		if reflection.Mood != nil {
			delta := world.SetMood{Character: actor.ID, Mood: reflection.Mood.Clamped()}
			if err := t.world.ApplyDelta(delta); err != nil {
				t.log.Warn("reflected mood rejected", "actor", actor.ID, "error", err)
			}
		}
	}

	plan, err := t.oracle.ProposeAction(ctx, view, thought, persona, relations)
	if err != nil || plan == nil {
		t.log.Debug("action proposal failed, substituting wait", "actor", actor.ID, "error", err)
		return WaitPlan()
	}
	return plan
}

// resolve turns a plan into exactly one ObjectiveEvent plus the deltas it
// implies: first deterministic resolution per action kind, then an
// optional oracle pass that may enrich the description and add delta
// hints. Oracle hints are validated as a batch; one bad reference discards
// them all.
func (t *TurnEngine) resolve(ctx context.Context, actor *world.CharacterRecord, view *perception.View, plan *ActionPlan) (world.ObjectiveEvent, []world.Delta, bool) {
	event, deltas, material := t.resolveDeterministic(actor, view, plan)

	if t.oracle != nil && material {
		outcome, err := t.oracle.InterpretOutcome(ctx, plan, actor.Name, view)
		if err != nil {
			t.log.Debug("outcome interpretation failed, keeping deterministic resolution", "actor", actor.ID, "error", err)
			return event, deltas, material
		}
		if outcome.Description != "" {
			event.Description = outcome.Description
		}
		valid := true
		for _, d := range outcome.Deltas {
			if err := t.world.ValidateDelta(d); err != nil {
				t.log.Warn("oracle delta hint rejected", "actor", actor.ID, "error", err)
				valid = false
				break
			}
		}
		if valid {
			deltas = append(deltas, outcome.Deltas...)
		}
	}
	return event, deltas, material
}

func (t *TurnEngine) resolveDeterministic(actor *world.CharacterRecord, view *perception.View, plan *ActionPlan) (world.ObjectiveEvent, []world.Delta, bool) {
	ev := world.ObjectiveEvent{
		Scene:    t.world.SceneID,
		Turn:     t.world.TurnNumber,
		Actor:    actor.ID,
		Location: actor.LocationID,
	}

	switch plan.Kind {
	case ActSpeak:
		if plan.Text == "" {
			ev.Description = fmt.Sprintf("%s opens their mouth to speak, then falls silent.", actor.Name)
			return ev, nil, false
		}
		if target := t.world.Character(world.CharacterID(plan.Target)); target != nil {
			ev.Target = target.ID
			ev.Description = fmt.Sprintf("%s says to %s: %q", actor.Name, target.Name, plan.Text)
		} else {
			ev.Description = fmt.Sprintf("%s says: %q", actor.Name, plan.Text)
		}
		return ev, nil, true

	case ActMove:
		dest := world.LocationID(plan.Target)
		from := t.world.Location(actor.LocationID)
		if t.world.Location(dest) == nil || from == nil || !from.ConnectsTo(dest) {
			ev.Description = fmt.Sprintf("%s looks toward the exit but stays put.", actor.Name)
			return ev, nil, false
		}
		// Event location is the destination: observers there see the
		// arrival, which is the post-mutation rule.
		ev.Location = dest
		ev.Description = fmt.Sprintf("%s arrives at %s from %s.", actor.Name, t.world.Location(dest).Name, from.Name)
		return ev, []world.Delta{world.MoveCharacter{Character: actor.ID, To: dest}}, true

	case ActInteractObject:
		obj := t.world.Object(plan.Object)
		loc := t.world.Location(actor.LocationID)
		if obj == nil || loc == nil || !containsObject(loc, plan.Object) || !obj.Interactive {
			ev.Description = fmt.Sprintf("%s reaches for something that isn't there.", actor.Name)
			return ev, nil, false
		}
		ev.Description = fmt.Sprintf("%s interacts with the %s.", actor.Name, obj.Name)
		if plan.ObjectState != "" && plan.ObjectState != obj.State {
			ev.Description = fmt.Sprintf("%s does something to the %s; it is now %s.", actor.Name, obj.Name, plan.ObjectState)
			return ev, []world.Delta{world.SetObjectState{Object: obj.ID, State: plan.ObjectState}}, true
		}
		return ev, nil, true

	case ActUseSkill:
		if plan.Skill == "" {
			ev.Description = fmt.Sprintf("%s hesitates, unsure what to attempt.", actor.Name)
			return ev, nil, false
		}
		if target := t.world.Character(world.CharacterID(plan.Target)); target != nil {
			ev.Target = target.ID
			ev.Description = fmt.Sprintf("%s uses %s on %s.", actor.Name, plan.Skill, target.Name)
		} else {
			ev.Description = fmt.Sprintf("%s uses %s.", actor.Name, plan.Skill)
		}
		return ev, nil, true

	case ActObserve:
		ev.Description = fmt.Sprintf("%s studies the surroundings of %s.", actor.Name, view.LocationName)
		return ev, nil, false

	default: // ActWait and anything unrecognised
		ev.Description = fmt.Sprintf("%s waits, doing nothing.", actor.Name)
		return ev, nil, false
	}
}

// notifyObservers writes the event into every co-located observer's
// memory, worded per observer and weighted by involvement.
func (t *TurnEngine) notifyObservers(ev world.ObjectiveEvent) {
	for _, id := range perception.ObserversOf(ev, t.world) {
		observer := t.world.Character(id)
		subj := t.filter.EventForObserver(id, ev)
		t.mem.Remember(id, subj.Description, observer.Mood, significanceFor(id, ev))
	}
}

// significanceFor grades how much an event matters to one observer.
func significanceFor(observer world.CharacterID, ev world.ObjectiveEvent) float64 {
	sig := 0.5
	if observer == ev.Actor {
		sig = 0.7
	}
	if observer == ev.Target {
		sig += 0.2
	}
	if sig > 1 {
		sig = 1
	}
	return sig
}

// eventCheck optionally injects at most one world event after the primary
// action: a directorial invention at a small chance, otherwise an ambient
// event from the pool. Injected events are perceived and remembered like
// any other.
func (t *TurnEngine) eventCheck(ctx context.Context, actor *world.CharacterRecord) (world.ObjectiveEvent, bool) {
	loc := t.world.Location(actor.LocationID)

	var desc string
	if t.director != nil && t.rng.Float() < t.cfg.DirectorInjectionChance {
		invented, err := t.director.InjectEvent(ctx, loc, t.recentEvents(5))
		if err != nil {
			t.log.Debug("director event injection failed", "error", err)
		} else {
			desc = invented
		}
	}
	if desc == "" {
		if t.rng.Float() >= t.cfg.FallbackInjectionChance {
			return world.ObjectiveEvent{}, false
		}
		desc = t.cfg.EventPool[t.rng.Intn(len(t.cfg.EventPool))]
	}

	ev := world.ObjectiveEvent{
		Scene:       t.world.SceneID,
		Turn:        t.world.TurnNumber,
		Location:    loc.ID,
		Description: desc,
	}
	if err := t.world.ApplyDelta(world.AppendEvent{Event: ev}); err != nil {
		t.log.Warn("injected event rejected", "error", err)
		return world.ObjectiveEvent{}, false
	}
	t.notifyObservers(ev)
	t.log.Debug("world event injected", "scene", ev.Scene, "turn", ev.Turn, "event", desc)
	return ev, true
}

func (t *TurnEngine) recentEvents(n int) []world.ObjectiveEvent {
	log := t.world.EventLog()
	if len(log) > n {
		log = log[len(log)-n:]
	}
	return log
}

func personaContext(c *world.CharacterRecord) string {
	s := fmt.Sprintf("%s. %s", c.Name, c.Persona)
	if len(c.Goals.ShortTerm) > 0 {
		s += " Current aim: " + c.Goals.ShortTerm[0]
	}
	return s
}

func containsObject(loc *world.Location, id world.ObjectID) bool {
	for _, oid := range loc.ObjectIDs() {
		if oid == id {
			return true
		}
	}
	return false
}
