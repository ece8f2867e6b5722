// Package responder turns a selected chat comment, or nothing at all, into
// a published agent reaction: reply text, an animation label and optional
// speech.
package responder

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/teslashibe/go-borp/pkg/animation"
	"github.com/teslashibe/go-borp/pkg/inference"
	"github.com/teslashibe/go-borp/pkg/memory"
	"github.com/teslashibe/go-borp/pkg/metrics"
	"github.com/teslashibe/go-borp/pkg/protocol"
	"github.com/teslashibe/go-borp/pkg/tts"
)

// Publisher fans responses out to viewers.
type Publisher interface {
	PublishResponse(ctx context.Context, resp *protocol.AIResponse) error
	PublishAnimation(ctx context.Context, agentID, label string) error
}

// Uploader stores synthesized speech and returns its public URL.
type Uploader interface {
	UploadAudio(ctx context.Context, audio []byte) (string, error)
}

const (
	// DefaultRecentLimit is how many context records feed the reply prompt.
	DefaultRecentLimit = 10

	thoughtFragments   = 5
	periodicCandidates = 10
)

// Generator produces replies, thoughts and periodic animations.
type Generator struct {
	persona   Persona
	llm       inference.Provider
	publisher Publisher
	speech    tts.Provider
	uploader  Uploader
	memory    memory.Store
	vocab     *animation.Vocabulary
	recent    int
	logger    zerolog.Logger

	mu  sync.Mutex // guards persona and rng
	rng *rand.Rand

	replies    atomic.Int64
	thoughts   atomic.Int64
	animations atomic.Int64
}

// Option configures a Generator.
type Option func(*Generator)

// WithSpeech enables speech: replies are synthesized by p and uploaded by u.
func WithSpeech(p tts.Provider, u Uploader) Option {
	return func(g *Generator) {
		g.speech = p
		g.uploader = u
	}
}

// WithMemory sets the context record store.
func WithMemory(s memory.Store) Option {
	return func(g *Generator) { g.memory = s }
}

// WithVocabulary replaces the default animation vocabulary.
func WithVocabulary(v *animation.Vocabulary) Option {
	return func(g *Generator) { g.vocab = v }
}

// WithRecentLimit sets how many context records feed the reply prompt.
func WithRecentLimit(n int) Option {
	return func(g *Generator) { g.recent = n }
}

// WithRand sets the random source used for sampling.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rng = r }
}

// WithLogger sets the structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New creates a generator for persona.
func New(persona Persona, llm inference.Provider, publisher Publisher, opts ...Option) (*Generator, error) {
	if llm == nil {
		return nil, ErrNoModel
	}
	if publisher == nil {
		return nil, ErrNoPublisher
	}
	g := &Generator{
		persona:   persona,
		llm:       llm,
		publisher: publisher,
		memory:    memory.NewMemoryStore(0),
		vocab:     animation.Default(),
		recent:    DefaultRecentLimit,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	g.logger = g.logger.With().Str("component", "responder").Str("agent_id", persona.AgentID).Logger()
	return g, nil
}

// Persona returns the character the generator speaks as.
func (g *Generator) Persona() Persona { return g.currentPersona() }

// SetPersona swaps the character, e.g. after a config reload. Generation
// already in flight finishes with the old one.
func (g *Generator) SetPersona(p Persona) {
	g.mu.Lock()
	g.persona = p
	g.mu.Unlock()
}

func (g *Generator) currentPersona() Persona {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.persona
}

// Stats returns counters for the streaming-status heartbeat.
func (g *Generator) Stats() protocol.StreamStats {
	return protocol.StreamStats{
		Responses:  g.replies.Load(),
		Thoughts:   g.thoughts.Load(),
		Animations: g.animations.Load(),
	}
}

// replyBlock is the JSON block the reply prompt asks for.
type replyBlock struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Action    string `json:"action"`
	Animation string `json:"animation"`
}

// Reply generates and publishes the agent's answer to c.
func (g *Generator) Reply(ctx context.Context, c protocol.Comment) (*protocol.AIResponse, error) {
	p := g.currentPersona()

	prompt, err := render(replyTemplate, promptData{
		Name:       p.Name,
		Bio:        p.BioText(),
		Lore:       strings.Join(p.Lore, " "),
		Adjectives: p.Adjectives,
		Recent:     g.recentLines(ctx, p.AgentID),
		Author:     c.Author(),
		Message:    c.Message,
		Animations: g.vocab.Labels(),
	})
	if err != nil {
		return nil, fmt.Errorf("responder: render reply prompt: %w", err)
	}

	raw, err := inference.Complete(ctx, g.llm, inference.ModelMedium, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("responder: generate reply: %w", err)
	}

	text, suggested := parseReply(raw)
	if text == "" {
		return nil, ErrEmptyReply
	}

	resp := &protocol.AIResponse{
		ID:        uuid.NewString(),
		AgentID:   p.AgentID,
		Text:      text,
		Animation: g.pickAnimation(ctx, p, text, suggested),
		AudioURL:  g.speak(ctx, text),
	}
	resp.SetReplyTo(c)

	if err := g.publisher.PublishResponse(ctx, resp); err != nil {
		return nil, fmt.Errorf("responder: publish reply: %w", err)
	}
	g.replies.Add(1)
	metrics.ResponsesPublished.WithLabelValues(metrics.KindReply).Inc()

	g.remember(ctx, memory.NewRecord(p.AgentID, memory.KindReply, p.Name, text, c.ID))
	g.logger.Info().Str("comment_id", c.ID).Str("response_id", resp.ID).
		Str("animation", resp.Animation).Bool("audio", resp.HasAudio()).Msg("replied to comment")
	return resp, nil
}

// parseReply extracts the reply text and suggested animation, falling back
// to the raw model output when it is not a JSON block.
func parseReply(raw string) (text, label string) {
	var block replyBlock
	if err := inference.ParseJSONObject(raw, &block); err == nil {
		return strings.TrimSpace(block.Text), block.Animation
	}
	return strings.TrimSpace(raw), ""
}

// pickAnimation asks the small model for a label matching text. The label
// suggested in the reply block is used only when that call fails.
func (g *Generator) pickAnimation(ctx context.Context, p Persona, text, suggested string) string {
	prompt, err := render(messageAnimationTemplate, promptData{
		Name:       p.Name,
		Message:    text,
		Animations: g.vocab.Labels(),
	})
	if err == nil {
		var raw string
		raw, err = inference.Complete(ctx, g.llm, inference.ModelSmall, "", prompt)
		if err == nil {
			suggested = raw
		}
	}
	if err != nil {
		g.logger.Warn().Err(err).Msg("animation generation failed")
	}
	if strings.TrimSpace(suggested) == "" {
		return ""
	}

	label, lerr := g.vocab.Lookup(suggested)
	if lerr != nil {
		metrics.AnimationRejected.WithLabelValues("generator").Inc()
		g.logger.Debug().Str("raw", suggested).Msg("dropping out-of-vocabulary animation")
		return ""
	}
	return label
}

// speak synthesizes and uploads text, returning "" on any failure.
func (g *Generator) speak(ctx context.Context, text string) string {
	if g.speech == nil || g.uploader == nil {
		return ""
	}

	result, err := g.speech.Synthesize(ctx, text)
	if err != nil {
		metrics.SpeechFailures.Inc()
		g.logger.Warn().Err(err).Msg("speech synthesis failed, sending text only")
		return ""
	}

	url, err := g.uploader.UploadAudio(ctx, result.Audio)
	if err != nil {
		metrics.SpeechFailures.Inc()
		g.logger.Warn().Err(err).Msg("speech upload failed, sending text only")
		return ""
	}
	return url
}

// Thought generates and publishes an unprompted thought. It returns nil
// without error when the model produced nothing usable.
func (g *Generator) Thought(ctx context.Context) (*protocol.AIResponse, error) {
	p := g.currentPersona()

	g.mu.Lock()
	data := thoughtData{
		Name:       p.Name,
		Adjectives: p.Adjectives,
		Lore:       sample(g.rng, p.Lore, thoughtFragments),
		Bio:        sample(g.rng, p.Bio, thoughtFragments),
	}
	g.mu.Unlock()

	prompt, err := render(thoughtTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("responder: render thought prompt: %w", err)
	}

	raw, err := inference.Complete(ctx, g.llm, inference.ModelLarge, "", prompt)
	if err != nil {
		return nil, fmt.Errorf("responder: generate thought: %w", err)
	}

	text := SanitizeThought(raw)
	if text == "" {
		g.logger.Debug().Msg("empty thought, skipping")
		return nil, nil
	}

	g.remember(ctx, memory.NewRecord(p.AgentID, memory.KindThought, p.Name, text, ""))

	resp := &protocol.AIResponse{
		ID:       uuid.NewString(),
		AgentID:  p.AgentID,
		Text:     text,
		AudioURL: g.speak(ctx, text),
		Thought:  true,
	}
	if err := g.publisher.PublishResponse(ctx, resp); err != nil {
		return nil, fmt.Errorf("responder: publish thought: %w", err)
	}
	g.thoughts.Add(1)
	metrics.ResponsesPublished.WithLabelValues(metrics.KindThought).Inc()
	g.logger.Info().Str("response_id", resp.ID).Int("words", len(strings.Fields(text))).Msg("shared thought")
	return resp, nil
}

// PeriodicAnimation asks the model to pick an idle-time animation and
// publishes it. Invalid picks are dropped and return "".
func (g *Generator) PeriodicAnimation(ctx context.Context) (string, error) {
	p := g.currentPersona()

	g.mu.Lock()
	candidates := g.vocab.Sample(g.rng, periodicCandidates, animation.PeriodicCategories...)
	g.mu.Unlock()

	prompt, err := render(periodicAnimationTemplate, promptData{Name: p.Name, Animations: candidates})
	if err != nil {
		return "", fmt.Errorf("responder: render animation prompt: %w", err)
	}

	raw, err := inference.Complete(ctx, g.llm, inference.ModelSmall, "", prompt)
	if err != nil {
		return "", fmt.Errorf("responder: generate animation: %w", err)
	}

	label, err := g.vocab.Lookup(raw)
	if err != nil {
		metrics.AnimationRejected.WithLabelValues("periodic").Inc()
		g.logger.Debug().Str("raw", raw).Msg("dropping out-of-vocabulary animation")
		return "", nil
	}

	if err := g.publisher.PublishAnimation(ctx, p.AgentID, label); err != nil {
		return "", fmt.Errorf("responder: publish animation: %w", err)
	}
	g.animations.Add(1)
	metrics.ResponsesPublished.WithLabelValues(metrics.KindAnimation).Inc()
	g.logger.Debug().Str("animation", label).Msg("published periodic animation")
	return label, nil
}

func (g *Generator) recentLines(ctx context.Context, agentID string) []string {
	if g.recent <= 0 {
		return nil
	}
	records, err := g.memory.Recent(ctx, agentID, g.recent)
	if err != nil {
		g.logger.Warn().Err(err).Msg("failed to load recent context")
		return nil
	}
	lines := make([]string, 0, len(records))
	for _, r := range records {
		if r.Kind == memory.KindFirstInteraction {
			continue
		}
		author := r.Author
		if author == "" {
			author = string(r.Kind)
		}
		lines = append(lines, author+": "+r.Text)
	}
	return lines
}

func (g *Generator) remember(ctx context.Context, r memory.Record) {
	if err := g.memory.Append(ctx, r); err != nil {
		g.logger.Warn().Err(err).Str("kind", string(r.Kind)).Msg("failed to append context record")
	}
}
