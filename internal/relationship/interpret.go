package relationship

import (
	"strings"

	"github.com/talgya/ficworld/internal/world"
)

// effect is the trust/affinity shift a verb implies.
type effect struct {
	trust    float64
	affinity float64
}

// verbEffect pairs a description keyword with the shift it implies. Verbs
// are scanned in order, so listing decides which wins when several appear.
type verbEffect struct {
	verb string
	effect
}

// Keyword interpretation of event text. The actor's edge toward the
// target moves by the full amount; the target's edge back moves at
// reverseFactor.
const reverseFactor = 0.8

var warmVerbs = []verbEffect{
	{"helps", effect{trust: 0.05, affinity: 0.02}},
	{"thanks", effect{trust: 0.05, affinity: 0.02}},
	{"praises", effect{trust: 0.05, affinity: 0.02}},
	{"agrees with", effect{trust: 0.05, affinity: 0.02}},
	{"comforts", effect{trust: 0.05, affinity: 0.02}},
	{"saves", effect{trust: 0.05, affinity: 0.02}},
}

var coldVerbs = []verbEffect{
	{"attacks", effect{trust: -0.1, affinity: -0.05}},
	{"insults", effect{trust: -0.1, affinity: -0.05}},
	{"threatens", effect{trust: -0.1, affinity: -0.05}},
	{"accuses", effect{trust: -0.1, affinity: -0.05}},
	{"ignores", effect{trust: -0.1, affinity: -0.05}},
	{"betrays", effect{trust: -0.1, affinity: -0.05}},
	{"disagrees with", effect{trust: -0.02, affinity: -0.01}},
}

// Interpret scans an event description for relationship-bearing verbs and
// applies the implied shift between actor and target. At most one shift
// applies per event: the first warm verb found, else the first cold verb.
// Events without both endpoints, or without a recognised verb, change
// nothing. Returns whether anything was applied.
func (g *Graph) Interpret(ev world.ObjectiveEvent) bool {
	if ev.Actor == "" || ev.Target == "" || ev.Actor == ev.Target {
		return false
	}
	desc := strings.ToLower(ev.Description)

	for _, ve := range warmVerbs {
		if strings.Contains(desc, ve.verb) {
			g.apply(ev.Actor, ev.Target, ve.effect)
			return true
		}
	}
	for _, ve := range coldVerbs {
		if strings.Contains(desc, ve.verb) {
			g.apply(ev.Actor, ev.Target, ve.effect)
			return true
		}
	}
	return false
}

func (g *Graph) apply(actor, target world.CharacterID, e effect) {
	g.Update(actor, target, e.trust, e.affinity, "")
	g.Update(target, actor, e.trust*reverseFactor, e.affinity*reverseFactor, "")
}
