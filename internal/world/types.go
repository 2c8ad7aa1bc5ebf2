// Package world provides the ground-truth world model: locations, objects,
// characters, and the objective event log. All mutation flows through one
// gate (State.ApplyDelta) so the location/membership invariant can be
// maintained atomically.
package world

import (
	"fmt"
	"sort"
)

// CharacterID identifies a character within a run.
type CharacterID string

// LocationID identifies a location within a world definition.
type LocationID string

// ObjectID identifies an object within a world definition.
type ObjectID string

// MoodVector holds six core emotions, each in [0, 1]. There is no sum
// constraint; a character can be both afraid and angry.
type MoodVector struct {
	Joy      float64 `json:"joy"`
	Fear     float64 `json:"fear"`
	Anger    float64 `json:"anger"`
	Sadness  float64 `json:"sadness"`
	Surprise float64 `json:"surprise"`
	Trust    float64 `json:"trust"`
}

// Clamped returns a copy with every component forced into [0, 1].
func (m MoodVector) Clamped() MoodVector {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return MoodVector{
		Joy:      clamp(m.Joy),
		Fear:     clamp(m.Fear),
		Anger:    clamp(m.Anger),
		Sadness:  clamp(m.Sadness),
		Surprise: clamp(m.Surprise),
		Trust:    clamp(m.Trust),
	}
}

// Components returns the mood as a fixed-order vector for similarity math.
func (m MoodVector) Components() [6]float64 {
	return [6]float64{m.Joy, m.Fear, m.Anger, m.Sadness, m.Surprise, m.Trust}
}

// Dominant returns the name and value of the strongest emotion.
// An all-zero mood reads as calm.
func (m MoodVector) Dominant() (string, float64) {
	names := [6]string{"joy", "fear", "anger", "sadness", "surprise", "trust"}
	comps := m.Components()
	best := 0
	for i := 1; i < len(comps); i++ {
		if comps[i] > comps[best] {
			best = i
		}
	}
	if comps[best] == 0 {
		return "calm", 0
	}
	return names[best], comps[best]
}

// String renders the mood for prompt injection, strongest emotions first.
func (m MoodVector) String() string {
	names := [6]string{"joy", "fear", "anger", "sadness", "surprise", "trust"}
	comps := m.Components()
	idx := []int{0, 1, 2, 3, 4, 5}
	sort.Slice(idx, func(i, j int) bool { return comps[idx[i]] > comps[idx[j]] })
	return fmt.Sprintf("%s: %.1f, %s: %.1f",
		names[idx[0]], comps[idx[0]], names[idx[1]], comps[idx[1]])
}

// Location is a place characters occupy. Membership sets are maintained by
// State.ApplyDelta; a character appears in exactly one location's set.
type Location struct {
	ID          LocationID
	Name        string
	Description string
	Connections []LocationID

	objects    map[ObjectID]struct{}
	characters map[CharacterID]struct{}
}

// HasCharacter reports whether the character is present at this location.
func (l *Location) HasCharacter(id CharacterID) bool {
	_, ok := l.characters[id]
	return ok
}

// CharacterIDs returns the present characters in sorted order.
func (l *Location) CharacterIDs() []CharacterID {
	ids := make([]CharacterID, 0, len(l.characters))
	for id := range l.characters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ObjectIDs returns the objects placed here in sorted order.
func (l *Location) ObjectIDs() []ObjectID {
	ids := make([]ObjectID, 0, len(l.objects))
	for id := range l.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ConnectsTo reports whether this location is directly connected to other.
func (l *Location) ConnectsTo(other LocationID) bool {
	for _, c := range l.Connections {
		if c == other {
			return true
		}
	}
	return false
}

// Object is a world item characters can perceive and interact with.
type Object struct {
	ID          ObjectID
	Name        string
	Description string
	State       string
	Interactive bool
}

// Goals splits a character's goals by horizon, as authored in role files.
type Goals struct {
	LongTerm  []string `json:"long_term"`
	ShortTerm []string `json:"short_term"`
}

// CharacterRecord is the ground-truth state of one character.
type CharacterRecord struct {
	ID             CharacterID
	Name           string
	Persona        string
	Backstory      string
	Goals          Goals
	LocationID     LocationID
	Mood           MoodVector
	ActivityWeight float64

	conditions map[string]struct{}
}

// HasCondition reports whether the named condition is set.
func (c *CharacterRecord) HasCondition(cond string) bool {
	_, ok := c.conditions[cond]
	return ok
}

// Conditions returns the active conditions in sorted order.
func (c *CharacterRecord) Conditions() []string {
	out := make([]string, 0, len(c.conditions))
	for cond := range c.conditions {
		out = append(out, cond)
	}
	sort.Strings(out)
	return out
}

// ObjectiveEvent is the single ground-truth record of something that
// happened, independent of any character's awareness.
type ObjectiveEvent struct {
	Scene       int         `json:"scene"`
	Turn        int         `json:"turn"`
	Actor       CharacterID `json:"actor,omitempty"`
	Target      CharacterID `json:"target,omitempty"`
	Location    LocationID  `json:"location"`
	Description string      `json:"description"`
}
