package world

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownEntity marks a delta referencing a character, location, or
// object that does not exist. The turn that produced it falls back to a
// no-op; the world is left untouched.
var ErrUnknownEntity = errors.New("unknown entity reference")

// InvariantError reports a broken world consistency rule. It is fatal:
// the engine reports it upward and never patches around it.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "world invariant violated: " + e.Detail
}

// State is the single mutable ground truth. It is owned by the simulation
// engine and mutated only by the turn and scene engines through ApplyDelta
// plus the scene/turn counters below. It is not safe for concurrent use;
// the engine is strictly sequential within a scene.
type State struct {
	SceneID    int
	TurnNumber int

	// GlobalTurn counts turns monotonically across all scenes and never
	// resets. Memory recency is measured against it.
	GlobalTurn int

	locations  map[LocationID]*Location
	objects    map[ObjectID]*Object
	characters map[CharacterID]*CharacterRecord
	eventLog   []ObjectiveEvent
}

// NewState builds a world from its parts. Characters are placed into their
// recorded locations; object placements come from each location's list.
// Returns an error if any reference dangles.
func NewState(locations []*Location, objects []*Object, characters []*CharacterRecord) (*State, error) {
	s := &State{
		locations:  make(map[LocationID]*Location, len(locations)),
		objects:    make(map[ObjectID]*Object, len(objects)),
		characters: make(map[CharacterID]*CharacterRecord, len(characters)),
	}

	for _, o := range objects {
		s.objects[o.ID] = o
	}
	for _, l := range locations {
		if l.objects == nil {
			l.objects = make(map[ObjectID]struct{})
		}
		if l.characters == nil {
			l.characters = make(map[CharacterID]struct{})
		}
		for oid := range l.objects {
			if _, ok := s.objects[oid]; !ok {
				return nil, fmt.Errorf("location %q references object %q: %w", l.ID, oid, ErrUnknownEntity)
			}
		}
		s.locations[l.ID] = l
	}
	for _, c := range characters {
		if c.conditions == nil {
			c.conditions = make(map[string]struct{})
		}
		loc, ok := s.locations[c.LocationID]
		if !ok {
			return nil, fmt.Errorf("character %q starts at location %q: %w", c.ID, c.LocationID, ErrUnknownEntity)
		}
		loc.characters[c.ID] = struct{}{}
		s.characters[c.ID] = c
	}

	if err := s.checkInvariants(); err != nil {
		return nil, err
	}
	return s, nil
}

// PlaceObject records an object at a location during world construction.
func PlaceObject(l *Location, id ObjectID) {
	if l.objects == nil {
		l.objects = make(map[ObjectID]struct{})
	}
	l.objects[id] = struct{}{}
}

// Character returns the record for id, or nil if unknown.
func (s *State) Character(id CharacterID) *CharacterRecord {
	return s.characters[id]
}

// Location returns the location for id, or nil if unknown.
func (s *State) Location(id LocationID) *Location {
	return s.locations[id]
}

// Object returns the object for id, or nil if unknown.
func (s *State) Object(id ObjectID) *Object {
	return s.objects[id]
}

// CharacterIDs returns all character ids in sorted order.
func (s *State) CharacterIDs() []CharacterID {
	ids := make([]CharacterID, 0, len(s.characters))
	for id := range s.characters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LocationIDs returns all location ids in sorted order.
func (s *State) LocationIDs() []LocationID {
	ids := make([]LocationID, 0, len(s.locations))
	for id := range s.locations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ObjectIDs returns all object ids in sorted order.
func (s *State) ObjectIDs() []ObjectID {
	ids := make([]ObjectID, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CharactersAt returns the characters present at loc in sorted id order.
func (s *State) CharactersAt(loc LocationID) []*CharacterRecord {
	l, ok := s.locations[loc]
	if !ok {
		return nil
	}
	out := make([]*CharacterRecord, 0, len(l.characters))
	for _, id := range l.CharacterIDs() {
		out = append(out, s.characters[id])
	}
	return out
}

// EventLog returns the current scene's objective events in order.
func (s *State) EventLog() []ObjectiveEvent {
	out := make([]ObjectiveEvent, len(s.eventLog))
	copy(out, s.eventLog)
	return out
}

// BeginScene advances the scene counter, resets the turn counter and
// returns the previous scene's event log for archival.
func (s *State) BeginScene() []ObjectiveEvent {
	archived := s.eventLog
	s.eventLog = nil
	s.SceneID++
	s.TurnNumber = 0
	return archived
}

// BeginTurn advances both turn counters and returns the new turn number.
func (s *State) BeginTurn() int {
	s.TurnNumber++
	s.GlobalTurn++
	return s.TurnNumber
}

// Delta is the closed set of world mutations. ApplyDelta is the only
// mutation path; each variant validates its references before touching
// anything, so a rejected delta leaves the world unchanged.
type Delta interface {
	isDelta()
}

// MoveCharacter relocates a character, updating both location membership
// sets atomically.
type MoveCharacter struct {
	Character CharacterID
	To        LocationID
}

// SetObjectState overwrites an object's state string.
type SetObjectState struct {
	Object ObjectID
	State  string
}

// SetCondition adds (or removes) a named condition on a character.
type SetCondition struct {
	Character CharacterID
	Condition string
	Remove    bool
}

// SetMood replaces a character's mood vector, clamped to [0, 1].
type SetMood struct {
	Character CharacterID
	Mood      MoodVector
}

// AppendEvent appends an objective event to the scene log.
type AppendEvent struct {
	Event ObjectiveEvent
}

func (MoveCharacter) isDelta()  {}
func (SetObjectState) isDelta() {}
func (SetCondition) isDelta()   {}
func (SetMood) isDelta()        {}
func (AppendEvent) isDelta()    {}

// ApplyDelta applies one mutation. Unknown references are rejected with
// ErrUnknownEntity and the world left as it was. A consistency break after
// a successful mutation surfaces as *InvariantError.
func (s *State) ApplyDelta(d Delta) error {
	switch d := d.(type) {
	case MoveCharacter:
		c, ok := s.characters[d.Character]
		if !ok {
			return fmt.Errorf("move: character %q: %w", d.Character, ErrUnknownEntity)
		}
		dst, ok := s.locations[d.To]
		if !ok {
			return fmt.Errorf("move: location %q: %w", d.To, ErrUnknownEntity)
		}
		src := s.locations[c.LocationID]
		if src == nil {
			return &InvariantError{Detail: fmt.Sprintf("character %q records location %q which does not exist", c.ID, c.LocationID)}
		}
		delete(src.characters, c.ID)
		dst.characters[c.ID] = struct{}{}
		c.LocationID = dst.ID

	case SetObjectState:
		o, ok := s.objects[d.Object]
		if !ok {
			return fmt.Errorf("set object state: object %q: %w", d.Object, ErrUnknownEntity)
		}
		o.State = d.State

	case SetCondition:
		c, ok := s.characters[d.Character]
		if !ok {
			return fmt.Errorf("set condition: character %q: %w", d.Character, ErrUnknownEntity)
		}
		if d.Remove {
			delete(c.conditions, d.Condition)
		} else {
			c.conditions[d.Condition] = struct{}{}
		}

	case SetMood:
		c, ok := s.characters[d.Character]
		if !ok {
			return fmt.Errorf("set mood: character %q: %w", d.Character, ErrUnknownEntity)
		}
		c.Mood = d.Mood.Clamped()

	case AppendEvent:
		ev := d.Event
		if _, ok := s.locations[ev.Location]; !ok {
			return fmt.Errorf("append event: location %q: %w", ev.Location, ErrUnknownEntity)
		}
		if ev.Actor != "" {
			if _, ok := s.characters[ev.Actor]; !ok {
				return fmt.Errorf("append event: actor %q: %w", ev.Actor, ErrUnknownEntity)
			}
		}
		if ev.Target != "" {
			if _, ok := s.characters[ev.Target]; !ok {
				return fmt.Errorf("append event: target %q: %w", ev.Target, ErrUnknownEntity)
			}
		}
		s.eventLog = append(s.eventLog, ev)

	default:
		return fmt.Errorf("unhandled delta type %T", d)
	}

	return s.checkInvariants()
}

// ValidateDelta checks a delta's references without applying it.
func (s *State) ValidateDelta(d Delta) error {
	switch d := d.(type) {
	case MoveCharacter:
		if _, ok := s.characters[d.Character]; !ok {
			return fmt.Errorf("move: character %q: %w", d.Character, ErrUnknownEntity)
		}
		if _, ok := s.locations[d.To]; !ok {
			return fmt.Errorf("move: location %q: %w", d.To, ErrUnknownEntity)
		}
	case SetObjectState:
		if _, ok := s.objects[d.Object]; !ok {
			return fmt.Errorf("set object state: object %q: %w", d.Object, ErrUnknownEntity)
		}
	case SetCondition:
		if _, ok := s.characters[d.Character]; !ok {
			return fmt.Errorf("set condition: character %q: %w", d.Character, ErrUnknownEntity)
		}
	case SetMood:
		if _, ok := s.characters[d.Character]; !ok {
			return fmt.Errorf("set mood: character %q: %w", d.Character, ErrUnknownEntity)
		}
	case AppendEvent:
		ev := d.Event
		if _, ok := s.locations[ev.Location]; !ok {
			return fmt.Errorf("append event: location %q: %w", ev.Location, ErrUnknownEntity)
		}
	}
	return nil
}

// checkInvariants verifies bidirectional location/membership consistency:
// every character's LocationID matches exactly one location whose set
// contains it, and no set contains an unknown character.
func (s *State) checkInvariants() error {
	seen := make(map[CharacterID]LocationID, len(s.characters))
	for lid, l := range s.locations {
		for cid := range l.characters {
			c, ok := s.characters[cid]
			if !ok {
				return &InvariantError{Detail: fmt.Sprintf("location %q lists unknown character %q", lid, cid)}
			}
			if prev, dup := seen[cid]; dup {
				return &InvariantError{Detail: fmt.Sprintf("character %q present at both %q and %q", cid, prev, lid)}
			}
			seen[cid] = lid
			if c.LocationID != lid {
				return &InvariantError{Detail: fmt.Sprintf("character %q records location %q but is listed at %q", cid, c.LocationID, lid)}
			}
		}
	}
	for cid, c := range s.characters {
		if _, ok := seen[cid]; !ok {
			return &InvariantError{Detail: fmt.Sprintf("character %q records location %q but no location lists them", cid, c.LocationID)}
		}
	}
	return nil
}
