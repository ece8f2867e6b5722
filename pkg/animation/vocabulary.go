// Package animation holds the closed animation vocabulary and the per-avatar
// state machine that crossfades between clips and reverts to idle.
package animation

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// Category groups labels by the kind of motion they describe.
type Category string

const (
	CategoryIdle     Category = "idle"
	CategoryHead     Category = "head"
	CategoryGestures Category = "gestures"
	CategoryDancing  Category = "dancing"
	CategorySpecial  Category = "special"
)

// PeriodicCategories are the categories the agent samples from when it
// changes animation on its own.
var PeriodicCategories = []Category{CategoryDancing, CategoryHead, CategoryGestures, CategorySpecial}

// Group is one category and its labels, in registration order.
type Group struct {
	Category Category
	Labels   []string
}

// Vocabulary is a versioned, closed set of animation labels.
// It is immutable after construction and safe for concurrent use.
type Vocabulary struct {
	version    string
	labels     []string
	exact      map[string]struct{}
	folded     map[string]string
	categories map[Category][]string
}

// NewVocabulary builds a vocabulary from groups. Exact duplicates are kept once;
// labels differing only in case stay distinct clips.
func NewVocabulary(version string, groups ...Group) *Vocabulary {
	v := &Vocabulary{
		version:    version,
		exact:      make(map[string]struct{}),
		folded:     make(map[string]string),
		categories: make(map[Category][]string),
	}
	for _, g := range groups {
		for _, label := range g.Labels {
			label = strings.TrimSpace(label)
			if label == "" {
				continue
			}
			if !contains(v.categories[g.Category], label) {
				v.categories[g.Category] = append(v.categories[g.Category], label)
			}
			if _, ok := v.exact[label]; ok {
				continue
			}
			v.exact[label] = struct{}{}
			v.labels = append(v.labels, label)
			key := strings.ToLower(label)
			if _, ok := v.folded[key]; !ok {
				v.folded[key] = label
			}
		}
	}
	return v
}

// Version identifies the vocabulary revision shared by agent and viewers.
func (v *Vocabulary) Version() string { return v.version }

// Len returns the number of distinct labels.
func (v *Vocabulary) Len() int { return len(v.labels) }

// Labels returns every label in registration order.
func (v *Vocabulary) Labels() []string {
	return append([]string(nil), v.labels...)
}

// Contains reports whether label is a member, matched exactly.
func (v *Vocabulary) Contains(label string) bool {
	_, ok := v.exact[label]
	return ok
}

// Lookup normalizes raw model or network output and returns the canonical label.
// Surrounding whitespace, quotes and trailing punctuation are ignored and case
// only matters when two labels differ by case alone.
func (v *Vocabulary) Lookup(raw string) (string, error) {
	s := strings.Trim(strings.TrimSpace(raw), "\"'`.,!;:*")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty label", ErrInvalidLabel)
	}
	if v.Contains(s) {
		return s, nil
	}
	if label, ok := v.folded[strings.ToLower(s)]; ok {
		return label, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidLabel, raw)
}

// Category returns the labels of one category.
func (v *Vocabulary) Category(c Category) []string {
	return append([]string(nil), v.categories[c]...)
}

// Candidates returns the distinct labels of the given categories in order.
func (v *Vocabulary) Candidates(cats ...Category) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, c := range cats {
		for _, label := range v.categories[c] {
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			out = append(out, label)
		}
	}
	return out
}

// Sample returns up to n distinct labels drawn uniformly from the categories.
func (v *Vocabulary) Sample(rng *rand.Rand, n int, cats ...Category) []string {
	pool := v.Candidates(cats...)
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	if n < len(pool) {
		pool = pool[:n]
	}
	return pool
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// DefaultVersion is the revision of the built-in vocabulary.
const DefaultVersion = "v1"

// Default returns the built-in vocabulary. Sitting poses are not part of it
// because the avatars cannot leave a seated pose with a crossfade.
func Default() *Vocabulary {
	return NewVocabulary(DefaultVersion,
		Group{CategoryIdle, []string{
			"idle", "idle-2", "idle_basic", "idle_dwarf", "offensive_idle",
		}},
		Group{CategoryHead, []string{
			"acknowledging", "hard_head_nod", "head_nod_yes", "lengthy_head_nod",
			"sarcastic_head_nod", "shaking_head_no", "thoughtful_head_shake", "annoyed_head_shake",
		}},
		Group{CategoryGestures, []string{
			"angry_gesture", "being_cocky", "dismissing_gesture", "happy_hand_gesture",
			"look_away_gesture", "relieved_sigh", "standing_clap", "blow_a_kiss",
		}},
		Group{CategoryDancing, []string{
			"dancing_twerk", "hip_hop_dancing", "rumba_dancing", "silly_dancing",
			"capoeira", "belly_dance", "maraschino", "Hiphop_dancing",
			"Silly_dancing", "Robot_Dance", "Swing_Dancing", "Chicken_Dance",
		}},
		Group{CategorySpecial, []string{
			"appearing", "floating", "joyful_jump", "laughing", "got_assasinated",
			"walk_with_rifle", "weight_shift", "blow_a_kiss", "defeated", "praying",
			"angry", "happy_idle", "bboy_hiphopmove", "nervously_look_around",
			"arm_stretching", "salute", "excited", "greeting", "arguing", "youre_loser",
			"look_around", "saying_no", "shaking_hands", "insulting", "threatening",
			"happy", "are_you_crazy", "focusing", "speedbag_boxing",
		}},
	)
}
