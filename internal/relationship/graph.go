// Package relationship tracks directional trust and affinity between
// characters and interprets event text into relationship changes.
package relationship

import (
	"fmt"
	"sort"
	"strings"

	"github.com/talgya/ficworld/internal/world"
)

// State is one directional edge. Trust and Affinity sit in [-1, 1] with 0
// neutral; Status is a free-form label like "stranger" or "rival".
type State struct {
	Trust    float64 `json:"trust"`
	Affinity float64 `json:"affinity"`
	Status   string  `json:"status"`
}

// DefaultStatus labels an edge that has never been updated.
const DefaultStatus = "stranger"

type pair struct {
	from, to world.CharacterID
}

// Graph stores directional relationship edges, created lazily with a
// neutral default on first access.
type Graph struct {
	edges map[pair]State
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[pair]State)}
}

// Get returns the edge from a to b, creating a neutral default if absent.
// Idempotent: repeated calls return the same state.
func (g *Graph) Get(a, b world.CharacterID) State {
	key := pair{from: a, to: b}
	if s, ok := g.edges[key]; ok {
		return s
	}
	s := State{Status: DefaultStatus}
	g.edges[key] = s
	return s
}

// Update applies deltas to the edge from a to b, clamping the results to
// [-1, 1]. An empty newStatus keeps the current label. Repeated calls for
// the same event double-apply; deduplication is the caller's job.
func (g *Graph) Update(a, b world.CharacterID, trustDelta, affinityDelta float64, newStatus string) State {
	s := g.Get(a, b)
	s.Trust = clamp(s.Trust + trustDelta)
	s.Affinity = clamp(s.Affinity + affinityDelta)
	if newStatus != "" {
		s.Status = newStatus
	}
	g.edges[pair{from: a, to: b}] = s
	return s
}

// Set overwrites the edge from a to b, used when reloading a snapshot.
func (g *Graph) Set(a, b world.CharacterID, s State) {
	s.Trust = clamp(s.Trust)
	s.Affinity = clamp(s.Affinity)
	if s.Status == "" {
		s.Status = DefaultStatus
	}
	g.edges[pair{from: a, to: b}] = s
}

// Edge is one directional relationship with its endpoints, for
// persistence and context rendering.
type Edge struct {
	From  world.CharacterID `json:"from"`
	To    world.CharacterID `json:"to"`
	State State             `json:"state"`
}

// All returns every stored edge sorted by (from, to).
func (g *Graph) All() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for k, s := range g.edges {
		out = append(out, Edge{From: k.from, To: k.to, State: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// ContextFor summarises the character's strongest outgoing edges for
// prompt injection, most emotionally charged first.
func (g *Graph) ContextFor(id world.CharacterID, n int) string {
	var edges []Edge
	for k, s := range g.edges {
		if k.from == id {
			edges = append(edges, Edge{From: k.from, To: k.to, State: s})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		ai, aj := abs(edges[i].State.Affinity), abs(edges[j].State.Affinity)
		if ai != aj {
			return ai > aj
		}
		if edges[i].State.Trust != edges[j].State.Trust {
			return edges[i].State.Trust > edges[j].State.Trust
		}
		return edges[i].To < edges[j].To
	})
	if n > 0 && len(edges) > n {
		edges = edges[:n]
	}

	var b strings.Builder
	for _, e := range edges {
		fmt.Fprintf(&b, "%s (%s): trust %.2f, affinity %.2f\n",
			e.To, e.State.Status, e.State.Trust, e.State.Affinity)
	}
	return strings.TrimRight(b.String(), "\n")
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
