// Package perception derives what each character actually sees: subjective
// views of the world and subjective renderings of events, bounded strictly
// by co-location. Memory, not live perception, is the only channel for
// out-of-location knowledge.
package perception

import (
	"fmt"

	"github.com/talgya/ficworld/internal/memory"
	"github.com/talgya/ficworld/internal/world"
)

// VisibleCharacter is another character as seen by an observer. Only
// outward signals are exposed: name, apparent conditions, and the
// dominant emotion read off posture and expression. Persona, goals and
// the full mood vector stay private.
type VisibleCharacter struct {
	ID           world.CharacterID `json:"id"`
	Name         string            `json:"name"`
	ApparentMood string            `json:"apparent_mood"`
	Conditions   []string          `json:"conditions,omitempty"`
}

// VisibleObject is an object as seen in the observer's location.
type VisibleObject struct {
	ID          world.ObjectID `json:"id"`
	Name        string         `json:"name"`
	State       string         `json:"state,omitempty"`
	Interactive bool           `json:"interactive"`
}

// View is one character's filtered snapshot of the world: their current
// location, what and who is present there, and the memories most relevant
// to the moment. Inference is the observer's reading of what is going on,
// empty unless an Inferrer is installed.
type View struct {
	Observer     world.CharacterID  `json:"observer"`
	LocationID   world.LocationID   `json:"location_id"`
	LocationName string             `json:"location_name"`
	Description  string             `json:"description"`
	Exits        []world.LocationID `json:"exits,omitempty"`
	Characters   []VisibleCharacter `json:"characters,omitempty"`
	Objects      []VisibleObject    `json:"objects,omitempty"`
	Memories     []string           `json:"memories,omitempty"`
	Inference    string             `json:"inference,omitempty"`
}

// SubjectiveEvent is one observer's possibly biased reading of an
// ObjectiveEvent. The fallback copies the description verbatim and takes
// the ground-truth actor at face value.
type SubjectiveEvent struct {
	Observer       world.CharacterID `json:"observer"`
	Scene          int               `json:"scene"`
	Turn           int               `json:"turn"`
	Description    string            `json:"description"`
	InferredActor  world.CharacterID `json:"inferred_actor,omitempty"`
	InferredTarget world.CharacterID `json:"inferred_target,omitempty"`
	Location       world.LocationID  `json:"location"`
}

// Biaser optionally rewords an event for an observer, typically using
// relationship context. A Biaser may only change Description; the
// co-location observer set and the inferred actor baseline are fixed.
type Biaser interface {
	Bias(observer world.CharacterID, ev world.ObjectiveEvent, description string) string
}

// Inferrer optionally adds a speculative reading of the scene to a view.
// It may only fill Inference; everything else in the view is ground truth
// filtered by co-location, and an empty return leaves the view unchanged.
type Inferrer interface {
	Infer(observer world.CharacterID, v *View) string
}

// Filter builds subjective views and events from ground truth. The zero
// memory-recall count disables the memory section of views.
type Filter struct {
	mem      *memory.Store
	biaser   Biaser
	inferrer Inferrer
	recall   int
}

// NewFilter creates a Filter recalling up to recall memories per view.
func NewFilter(mem *memory.Store, recall int) *Filter {
	return &Filter{mem: mem, recall: recall}
}

// WithBiaser installs an optional wording biaser and returns the filter.
func (f *Filter) WithBiaser(b Biaser) *Filter {
	f.biaser = b
	return f
}

// WithInferrer installs an optional scene inferrer and returns the filter.
func (f *Filter) WithInferrer(i Inferrer) *Filter {
	f.inferrer = i
	return f
}

// ObserversOf returns everyone present at the event's location, sorted by
// id. This is the deterministic baseline; enhanced variants must never
// shrink it on failure.
func ObserversOf(ev world.ObjectiveEvent, st *world.State) []world.CharacterID {
	present := st.CharactersAt(ev.Location)
	out := make([]world.CharacterID, 0, len(present))
	for _, c := range present {
		out = append(out, c.ID)
	}
	return out
}

// ViewFor builds the observer's subjective view, restricted strictly to
// entities in their current location. Returns ErrUnknownEntity for an
// unknown observer.
func (f *Filter) ViewFor(observer world.CharacterID, st *world.State) (*View, error) {
	self := st.Character(observer)
	if self == nil {
		return nil, fmt.Errorf("view for %q: %w", observer, world.ErrUnknownEntity)
	}
	loc := st.Location(self.LocationID)
	if loc == nil {
		return nil, fmt.Errorf("view for %q: location %q: %w", observer, self.LocationID, world.ErrUnknownEntity)
	}

	v := &View{
		Observer:     observer,
		LocationID:   loc.ID,
		LocationName: loc.Name,
		Description:  loc.Description,
		Exits:        append([]world.LocationID(nil), loc.Connections...),
	}

	for _, other := range st.CharactersAt(loc.ID) {
		if other.ID == observer {
			continue
		}
		dominant, _ := other.Mood.Dominant()
		v.Characters = append(v.Characters, VisibleCharacter{
			ID:           other.ID,
			Name:         other.Name,
			ApparentMood: dominant,
			Conditions:   other.Conditions(),
		})
	}

	for _, oid := range loc.ObjectIDs() {
		obj := st.Object(oid)
		if obj == nil {
			continue
		}
		v.Objects = append(v.Objects, VisibleObject{
			ID:          obj.ID,
			Name:        obj.Name,
			State:       obj.State,
			Interactive: obj.Interactive,
		})
	}

	if f.mem != nil && f.recall > 0 {
		query := loc.Name + " " + loc.Description
		for _, e := range f.mem.RetrieveText(observer, query, self.Mood, f.recall) {
			v.Memories = append(v.Memories, e.Content)
		}
	}

	if f.inferrer != nil {
		v.Inference = f.inferrer.Infer(observer, v)
	}
	return v, nil
}

// EventForObserver renders an event for one observer. The fallback copies
// the description verbatim with the ground-truth actor and target; the
// biaser, when present, may reword the description only.
func (f *Filter) EventForObserver(observer world.CharacterID, ev world.ObjectiveEvent) SubjectiveEvent {
	desc := ev.Description
	if f.biaser != nil {
		if reworded := f.biaser.Bias(observer, ev, desc); reworded != "" {
			desc = reworded
		}
	}
	return SubjectiveEvent{
		Observer:       observer,
		Scene:          ev.Scene,
		Turn:           ev.Turn,
		Description:    desc,
		InferredActor:  ev.Actor,
		InferredTarget: ev.Target,
		Location:       ev.Location,
	}
}
