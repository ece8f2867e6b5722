package viewer

import (
	"context"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/teslashibe/go-borp/pkg/metrics"
	"github.com/teslashibe/go-borp/pkg/playback"
	"github.com/teslashibe/go-borp/pkg/protocol"
)

// DefaultDedupeWindow is how many response ids a scene remembers.
const DefaultDedupeWindow = 256

// Presenter renders one response and reports its end.
type Presenter interface {
	Present(ctx context.Context, resp *protocol.AIResponse, done func(playback.Result))
	Gesture(ctx context.Context) error
	// Reset drops state tied to the previous scene.
	Reset()
}

// Subscriber changes which agents' events reach the scene.
type Subscriber interface {
	SetSubscriptions(agentIDs []string) error
}

// Animations drives avatar clips. *animation.Manager implements it.
type Animations interface {
	Dispatch(scene, avatarID, label string) error
	ResetScene(scene string)
}

// State is a snapshot of a scene.
type State struct {
	Scene       string
	Agents      []string
	Current     *protocol.AIResponse
	Pending     []*protocol.AIResponse
	Epoch       uint64
	Presented   int
	Completions int
}

// SceneOption configures a Scene.
type SceneOption func(*Scene)

// WithDedupeWindow remembers the last n response ids and drops replays.
// Zero disables deduplication.
func WithDedupeWindow(n int) SceneOption {
	return func(s *Scene) { s.dedupe = n }
}

// WithOnPresent is called on the event loop whenever a response goes on screen.
func WithOnPresent(fn func(Presentation)) SceneOption {
	return func(s *Scene) { s.onPresent = fn }
}

// WithSceneLogger sets the logger.
func WithSceneLogger(l zerolog.Logger) SceneOption {
	return func(s *Scene) { s.logger = l }
}

// Scene owns the response queue of the agents currently watched. Every
// mutation runs on the goroutine executing Run; the exported methods post
// events to it.
type Scene struct {
	sub       Subscriber
	presenter Presenter
	anims     Animations
	logger    zerolog.Logger
	dedupe    int
	onPresent func(Presentation)

	events chan func()
	done   chan struct{}

	// Owned by the event loop.
	runCtx      context.Context
	sceneCtx    context.Context
	cancelScene context.CancelFunc
	queue       *Queue
	name        string
	agents      []string
	seen        *lru.Cache[string, struct{}]
	presented   int
	completions int
	gestures    int // replays in flight
}

// NewScene creates a scene. anims may be nil when no avatar is rendered.
func NewScene(sub Subscriber, presenter Presenter, anims Animations, opts ...SceneOption) (*Scene, error) {
	s := &Scene{
		sub:       sub,
		presenter: presenter,
		anims:     anims,
		logger:    zerolog.Nop(),
		dedupe:    DefaultDedupeWindow,
		events:    make(chan func(), 64),
		done:      make(chan struct{}),
		queue:     NewQueue(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dedupe > 0 {
		seen, err := lru.New[string, struct{}](s.dedupe)
		if err != nil {
			return nil, err
		}
		s.seen = seen
	}
	return s, nil
}

// Attach routes conn's response and animation events into the scene.
func (s *Scene) Attach(conn *Conn) {
	conn.Handle(protocol.EventAIResponse, func(agentID string, msg *protocol.Message) {
		var resp protocol.AIResponse
		if err := msg.ParseData(&resp); err != nil {
			s.logger.Debug().Err(err).Msg("dropping malformed response")
			return
		}
		if resp.AgentID == "" {
			resp.AgentID = agentID
		}
		s.Deliver(&resp)
	})
	conn.Handle(protocol.EventUpdateAnimation, func(agentID string, msg *protocol.Message) {
		var upd protocol.AnimationUpdate
		if err := msg.ParseData(&upd); err != nil {
			s.logger.Debug().Err(err).Msg("dropping malformed animation update")
			return
		}
		if upd.AgentID == "" {
			upd.AgentID = agentID
		}
		s.Animate(upd)
	})
}

// Run is the scene's event loop. It returns when ctx is done.
func (s *Scene) Run(ctx context.Context) error {
	s.runCtx = ctx
	s.sceneCtx, s.cancelScene = context.WithCancel(ctx)
	defer func() {
		s.cancelScene()
		close(s.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-s.events:
			fn()
		}
	}
}

func (s *Scene) post(fn func()) {
	select {
	case s.events <- fn:
	case <-s.done:
	}
}

// Deliver hands a received response to the queue.
func (s *Scene) Deliver(resp *protocol.AIResponse) {
	s.post(func() { s.arrive(resp) })
}

// Animate plays an animation command outside the queue.
func (s *Scene) Animate(upd protocol.AnimationUpdate) {
	s.post(func() { s.animate(upd) })
}

// Switch moves the scene to name watching agentIDs. The current and pending
// responses are discarded and no completion from them is honoured.
func (s *Scene) Switch(name string, agentIDs ...string) {
	agents := slices.Clone(agentIDs)
	s.post(func() { s.switchTo(name, agents) })
}

// Gesture reports a user interaction, retrying audio that autoplay blocked.
func (s *Scene) Gesture() {
	s.post(s.gesture)
}

// State returns a snapshot taken on the event loop.
func (s *Scene) State() State {
	reply := make(chan State, 1)
	s.post(func() {
		reply <- State{
			Scene:       s.name,
			Agents:      slices.Clone(s.agents),
			Current:     s.queue.Current(),
			Pending:     s.queue.Pending(),
			Epoch:       s.queue.Epoch(),
			Presented:   s.presented,
			Completions: s.completions,
		}
	})
	select {
	case st := <-reply:
		return st
	case <-s.done:
		return State{}
	}
}

func (s *Scene) watching(agentID string) bool {
	return slices.Contains(s.agents, agentID)
}

func (s *Scene) arrive(resp *protocol.AIResponse) {
	if err := resp.Validate(); err != nil {
		s.logger.Debug().Err(err).Msg("dropping invalid response")
		return
	}
	if !s.watching(resp.AgentID) {
		s.logger.Debug().Str("agent_id", resp.AgentID).Msg("dropping response for unwatched agent")
		return
	}
	if s.seen != nil {
		if s.seen.Contains(resp.ID) {
			s.logger.Debug().Str("response_id", resp.ID).Msg("dropping replayed response")
			return
		}
		s.seen.Add(resp.ID, struct{}{})
	}
	if p, ok := s.queue.Arrive(resp); ok {
		s.present(p)
	}
}

func (s *Scene) present(p Presentation) {
	s.presented++
	resp := p.Response
	if resp.Animation != "" {
		s.dispatch(resp.AgentID, resp.Animation)
	}
	if s.onPresent != nil {
		s.onPresent(p)
	}
	s.logger.Debug().Str("response_id", resp.ID).Uint64("epoch", p.Token.Epoch).
		Uint64("seq", p.Token.Seq).Bool("audio", resp.HasAudio()).Msg("presenting response")

	tok := p.Token
	s.presenter.Present(s.sceneCtx, resp, func(r playback.Result) {
		s.post(func() { s.complete(tok, r) })
	})
}

func (s *Scene) complete(tok Token, r playback.Result) {
	if !s.queue.IsCurrent(tok) {
		return
	}
	s.completions++
	metrics.ViewerPresentations.WithLabelValues(r.Outcome).Inc()
	if next, ok := s.queue.Complete(tok); ok {
		s.present(next)
	}
}

func (s *Scene) animate(upd protocol.AnimationUpdate) {
	if !s.watching(upd.AgentID) {
		return
	}
	s.dispatch(upd.AgentID, upd.Animation)
}

func (s *Scene) dispatch(agentID, label string) {
	if s.anims == nil {
		return
	}
	if err := s.anims.Dispatch(s.name, agentID, label); err != nil {
		metrics.AnimationRejected.WithLabelValues("viewer").Inc()
		s.logger.Debug().Err(err).Str("agent_id", agentID).Str("animation", label).Msg("animation rejected")
	}
}

func (s *Scene) switchTo(name string, agents []string) {
	s.cancelScene()
	s.sceneCtx, s.cancelScene = context.WithCancel(s.runCtx)
	s.queue.Reset()
	s.presenter.Reset()
	if s.anims != nil && s.name != "" {
		s.anims.ResetScene(s.name)
	}
	s.name = name
	s.agents = agents
	if s.sub != nil {
		if err := s.sub.SetSubscriptions(agents); err != nil {
			s.logger.Warn().Err(err).Msg("resubscribe failed, will retry on reconnect")
		}
	}
	s.logger.Info().Str("scene", name).Strs("agents", agents).Uint64("epoch", s.queue.Epoch()).Msg("switched scene")
}

func (s *Scene) gesture() {
	s.gestures++
	s.queue.SetAudioBusy(true)
	ctx := s.sceneCtx
	go func() {
		if err := s.presenter.Gesture(ctx); err != nil {
			s.logger.Debug().Err(err).Msg("gesture replay failed")
		}
		s.post(func() {
			s.gestures--
			if s.gestures > 0 {
				return
			}
			if p, ok := s.queue.SetAudioBusy(false); ok {
				s.present(p)
			}
		})
	}()
}
