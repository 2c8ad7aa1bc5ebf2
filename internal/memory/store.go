package memory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/talgya/ficworld/internal/world"
)

// Timestamp records when a memory was encoded. Tick is the global turn
// counter, monotonic across scenes; recency is measured against it.
type Timestamp struct {
	Scene int `json:"scene"`
	Turn  int `json:"turn"`
	Tick  int `json:"tick"`
}

// Entry is one remembered experience. Entries are append-only: never
// deleted, only compacted into scene-summary entries.
type Entry struct {
	ID             uuid.UUID         `json:"id"`
	Owner          world.CharacterID `json:"owner"`
	Time           Timestamp         `json:"time"`
	Content        string            `json:"content"`
	MoodAtEncoding world.MoodVector  `json:"mood_at_encoding"`
	Embedding      []float64         `json:"embedding"`
	Significance   float64           `json:"significance"`
	SceneSummary   bool              `json:"scene_summary,omitempty"`

	// seq is the insertion index within the owner's stream, the final
	// tie-breaker keeping retrieval ordering total.
	seq int
}

// Weights control the retrieval score blend. They need not sum to 1.
type Weights struct {
	Semantic  float64
	Emotional float64
	Recency   float64
}

// DefaultWeights gives the three factors equal say.
func DefaultWeights() Weights {
	return Weights{Semantic: 1.0 / 3, Emotional: 1.0 / 3, Recency: 1.0 / 3}
}

// Store holds one append-only stream per character. Cross-character access
// is structurally impossible: every read and write is keyed by owner.
type Store struct {
	embedder Embedder
	weights  Weights

	streams   map[world.CharacterID][]*Entry
	summaries map[int]string
	now       Timestamp
}

// Option configures a Store.
type Option func(*Store)

// WithWeights overrides the retrieval score weights.
func WithWeights(w Weights) Option {
	return func(s *Store) { s.weights = w }
}

// NewStore creates an empty store using the given embedder.
func NewStore(embedder Embedder, opts ...Option) *Store {
	s := &Store{
		embedder:  embedder,
		weights:   DefaultWeights(),
		streams:   make(map[world.CharacterID][]*Entry),
		summaries: make(map[int]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Advance moves the store's clock. The engine calls this at the top of
// every turn so memory ages in lockstep with the simulation.
func (s *Store) Advance(scene, turn, tick int) {
	s.now = Timestamp{Scene: scene, Turn: turn, Tick: tick}
}

// Now returns the store's current clock.
func (s *Store) Now() Timestamp {
	return s.now
}

// Remember appends an experience to the owner's stream and returns it.
// Significance is clamped to [0, 1].
func (s *Store) Remember(owner world.CharacterID, content string, mood world.MoodVector, significance float64) *Entry {
	if significance < 0 {
		significance = 0
	}
	if significance > 1 {
		significance = 1
	}
	e := &Entry{
		ID:             uuid.New(),
		Owner:          owner,
		Time:           s.now,
		Content:        content,
		MoodAtEncoding: mood,
		Embedding:      s.embedder.Embed(content),
		Significance:   significance,
		seq:            len(s.streams[owner]),
	}
	s.streams[owner] = append(s.streams[owner], e)
	return e
}

// Restore re-inserts a previously persisted entry, preserving its
// timestamp and embedding. Used when reloading a snapshot.
func (s *Store) Restore(e Entry) {
	cp := e
	cp.seq = len(s.streams[e.Owner])
	s.streams[e.Owner] = append(s.streams[e.Owner], &cp)
}

// Retrieve scores the owner's entries against the query and returns the
// top k. The score is
//
//	wSem·cos(query, embedding) + wEmo·cos(mood, moodAtEncoding) + wRec·1/(1+age)
//
// with age in turns on the global counter. Ties break most-recent-first.
// Pure arithmetic over materialized vectors; identical inputs always yield
// identical ordering.
func (s *Store) Retrieve(owner world.CharacterID, query []float64, currentMood world.MoodVector, k int) []*Entry {
	stream := s.streams[owner]
	if len(stream) == 0 || k <= 0 {
		return nil
	}

	type scored struct {
		entry *Entry
		score float64
	}
	ranked := make([]scored, 0, len(stream))
	for _, e := range stream {
		ranked = append(ranked, scored{entry: e, score: s.Score(e, query, currentMood)})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		if ranked[i].entry.Time.Tick != ranked[j].entry.Time.Tick {
			return ranked[i].entry.Time.Tick > ranked[j].entry.Time.Tick
		}
		return ranked[i].entry.seq > ranked[j].entry.seq
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	out := make([]*Entry, 0, k)
	for _, r := range ranked[:k] {
		out = append(out, r.entry)
	}
	return out
}

// RetrieveText embeds the query text and delegates to Retrieve.
func (s *Store) RetrieveText(owner world.CharacterID, query string, currentMood world.MoodVector, k int) []*Entry {
	return s.Retrieve(owner, s.embedder.Embed(query), currentMood, k)
}

// Score computes the retrieval score of one entry. Exposed so tests can
// verify ranking against the formula rather than fixed expectations.
func (s *Store) Score(e *Entry, query []float64, currentMood world.MoodVector) float64 {
	age := s.now.Tick - e.Time.Tick
	if age < 0 {
		age = 0
	}
	sem := Cosine(query, e.Embedding)
	emo := moodCosine(currentMood, e.MoodAtEncoding)
	rec := 1.0 / (1.0 + float64(age))
	return s.weights.Semantic*sem + s.weights.Emotional*emo + s.weights.Recency*rec
}

// Entries returns the owner's full stream in insertion order. Used for
// persistence and scene compaction.
func (s *Store) Entries(owner world.CharacterID) []*Entry {
	stream := s.streams[owner]
	out := make([]*Entry, len(stream))
	copy(out, stream)
	return out
}

// Owners returns all characters with at least one entry, sorted.
func (s *Store) Owners() []world.CharacterID {
	ids := make([]world.CharacterID, 0, len(s.streams))
	for id := range s.streams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SummariseScene compacts each owner's entries for the scene into one
// scene-summary entry and returns a combined summary string. It is fully
// deterministic, never fails, and needs no oracle; a richer oracle-based
// summary may replace the returned text but not the compaction.
func (s *Store) SummariseScene(scene int) string {
	var lines []string
	for _, owner := range s.Owners() {
		var parts []string
		maxSig := 0.0
		var moodSum [6]float64
		count := 0
		for _, e := range s.streams[owner] {
			if e.Time.Scene != scene || e.SceneSummary {
				continue
			}
			parts = append(parts, e.Content)
			if e.Significance > maxSig {
				maxSig = e.Significance
			}
			comps := e.MoodAtEncoding.Components()
			for i, v := range comps {
				moodSum[i] += v
			}
			count++
		}
		if count == 0 {
			continue
		}

		avgMood := world.MoodVector{
			Joy:      moodSum[0] / float64(count),
			Fear:     moodSum[1] / float64(count),
			Anger:    moodSum[2] / float64(count),
			Sadness:  moodSum[3] / float64(count),
			Surprise: moodSum[4] / float64(count),
			Trust:    moodSum[5] / float64(count),
		}
		summary := fmt.Sprintf("Scene %d: %s", scene, strings.Join(parts, " "))
		e := s.Remember(owner, summary, avgMood, maxSig)
		e.SceneSummary = true
		lines = append(lines, fmt.Sprintf("%s remembers: %s", owner, summary))
	}

	combined := strings.Join(lines, "\n")
	s.summaries[scene] = combined
	return combined
}

// SceneSummary returns the stored summary for a scene, if any.
func (s *Store) SceneSummary(scene int) (string, bool) {
	sum, ok := s.summaries[scene]
	return sum, ok
}

// moodCosine compares two mood vectors as 6-dimensional vectors.
func moodCosine(a, b world.MoodVector) float64 {
	ac, bc := a.Components(), b.Components()
	return Cosine(ac[:], bc[:])
}
