package responder

import (
	"math/rand/v2"
	"strings"
)

// Persona is the character the agent plays.
type Persona struct {
	AgentID    string
	Name       string
	Bio        []string
	Lore       []string
	Adjectives []string
	Topics     []string
}

// BioText joins the bio fragments into one paragraph.
func (p Persona) BioText() string {
	return strings.Join(p.Bio, " ")
}

// sample returns up to n distinct fragments in random order.
func sample(rng *rand.Rand, parts []string, n int) []string {
	pool := append([]string(nil), parts...)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool
}
