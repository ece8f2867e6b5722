package animation

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Default timings.
const (
	DefaultCrossfade   = 500 * time.Millisecond
	DefaultRevertAfter = 2 * time.Second
	DefaultIdleClip    = "idle"
)

// State is the coarse status of a machine.
type State int

const (
	// StateIdle means the idle clip is looping.
	StateIdle State = iota

	// StatePlaying means a requested clip is showing until the revert timer fires.
	StatePlaying
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Key identifies one avatar inside one scene.
type Key struct {
	Scene    string
	AvatarID string
}

// Snapshot is a point-in-time view of a machine.
type Snapshot struct {
	State     State
	Clip      string
	ExpiresAt time.Time
}

// Animator performs the actual blend on the rendered avatar.
// It is called with the machine lock held and must not call back into the machine.
type Animator interface {
	Crossfade(key Key, from, to string, fade time.Duration)
}

// AnimatorFunc adapts a function to Animator.
type AnimatorFunc func(key Key, from, to string, fade time.Duration)

// Crossfade calls f.
func (f AnimatorFunc) Crossfade(key Key, from, to string, fade time.Duration) { f(key, from, to, fade) }

// Timer is the part of *time.Timer the machine needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it through a wrapper.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Config configures a Machine.
type Config struct {
	Crossfade   time.Duration
	RevertAfter time.Duration
	IdleClip    string
	AfterFunc   AfterFunc
	Now         func() time.Time
	Logger      zerolog.Logger
	OnChange    func(Key, Snapshot)
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		Crossfade:   DefaultCrossfade,
		RevertAfter: DefaultRevertAfter,
		IdleClip:    DefaultIdleClip,
		AfterFunc:   realAfterFunc,
		Now:         time.Now,
		Logger:      zerolog.Nop(),
	}
}

// Option configures a Machine or Manager.
type Option func(*Config)

// WithCrossfade sets the blend duration.
func WithCrossfade(d time.Duration) Option {
	return func(c *Config) { c.Crossfade = d }
}

// WithRevertAfter sets how long a clip shows before reverting to idle.
func WithRevertAfter(d time.Duration) Option {
	return func(c *Config) { c.RevertAfter = d }
}

// WithIdleClip sets the clip shown in the idle state.
func WithIdleClip(clip string) Option {
	return func(c *Config) { c.IdleClip = clip }
}

// WithAfterFunc replaces the timer source, mostly for tests.
func WithAfterFunc(f AfterFunc) Option {
	return func(c *Config) { c.AfterFunc = f }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Config) { c.Now = now }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithOnChange registers a hook called after every transition.
func WithOnChange(fn func(Key, Snapshot)) Option {
	return func(c *Config) { c.OnChange = fn }
}

// Machine is the animation state machine of one avatar.
type Machine struct {
	key      Key
	vocab    *Vocabulary
	animator Animator
	cfg      Config

	mu        sync.Mutex
	state     State
	clip      string
	expiresAt time.Time
	gen       uint64
	timer     Timer
	stopped   bool
}

// NewMachine creates a machine in the idle state.
func NewMachine(key Key, vocab *Vocabulary, animator Animator, opts ...Option) *Machine {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newMachine(key, vocab, animator, cfg)
}

func newMachine(key Key, vocab *Vocabulary, animator Animator, cfg Config) *Machine {
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = realAfterFunc
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.IdleClip == "" {
		cfg.IdleClip = DefaultIdleClip
	}
	return &Machine{
		key:      key,
		vocab:    vocab,
		animator: animator,
		cfg:      cfg,
		state:    StateIdle,
		clip:     cfg.IdleClip,
	}
}

// Key returns the avatar this machine drives.
func (m *Machine) Key() Key { return m.key }

// Play crossfades to label and arms the revert timer. Invalid labels leave
// the machine untouched.
func (m *Machine) Play(label string) error {
	clip, err := m.vocab.Lookup(label)
	if err != nil {
		m.cfg.Logger.Debug().Str("scene", m.key.Scene).Str("avatar", m.key.AvatarID).
			Str("label", label).Msg("rejected animation")
		return err
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return ErrStopped
	}
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
	gen := m.gen

	from := m.clip
	if m.animator != nil {
		m.animator.Crossfade(m.key, from, clip, m.cfg.Crossfade)
	}
	m.state = StatePlaying
	m.clip = clip
	m.expiresAt = m.cfg.Now().Add(m.cfg.RevertAfter)
	m.timer = m.cfg.AfterFunc(m.cfg.RevertAfter, func() { m.revert(gen) })
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.cfg.Logger.Debug().Str("scene", m.key.Scene).Str("avatar", m.key.AvatarID).
		Str("from", from).Str("to", clip).Msg("animation")
	m.notify(snap)
	return nil
}

// revert returns to idle unless a newer Play superseded generation gen.
func (m *Machine) revert(gen uint64) {
	m.mu.Lock()
	if m.stopped || gen != m.gen || m.state != StatePlaying {
		m.mu.Unlock()
		return
	}
	from := m.clip
	if m.animator != nil {
		m.animator.Crossfade(m.key, from, m.cfg.IdleClip, m.cfg.Crossfade)
	}
	m.state = StateIdle
	m.clip = m.cfg.IdleClip
	m.expiresAt = time.Time{}
	m.timer = nil
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{State: m.state, Clip: m.clip, ExpiresAt: m.expiresAt}
}

// Stop cancels any pending revert and refuses further Play calls.
// The rendered avatar is left as is; its scene is being torn down.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.gen++
	m.stopped = true
	m.state = StateIdle
	m.clip = m.cfg.IdleClip
	m.expiresAt = time.Time{}
}

func (m *Machine) notify(s Snapshot) {
	if m.cfg.OnChange != nil {
		m.cfg.OnChange(m.key, s)
	}
}
