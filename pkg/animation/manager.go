package animation

import (
	"sort"
	"sync"
)

// Manager owns one Machine per (scene, avatar) and creates them lazily.
type Manager struct {
	vocab    *Vocabulary
	animator Animator
	cfg      Config
	idle     map[string]string // per-avatar idle clip overrides

	mu       sync.Mutex
	machines map[Key]*Machine
}

// NewManager creates a manager sharing vocab, animator and opts across machines.
func NewManager(vocab *Vocabulary, animator Animator, opts ...Option) *Manager {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Manager{
		vocab:    vocab,
		animator: animator,
		cfg:      cfg,
		idle:     make(map[string]string),
		machines: make(map[Key]*Machine),
	}
}

// Vocabulary returns the vocabulary machines validate against.
func (m *Manager) Vocabulary() *Vocabulary { return m.vocab }

// SetIdleClip overrides the idle clip of one avatar for machines created afterwards.
func (m *Manager) SetIdleClip(avatarID, clip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idle[avatarID] = clip
}

// Machine returns the machine for key, creating it if needed.
func (m *Manager) Machine(key Key) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mc, ok := m.machines[key]; ok {
		return mc
	}
	cfg := m.cfg
	if clip, ok := m.idle[key.AvatarID]; ok {
		cfg.IdleClip = clip
	}
	mc := newMachine(key, m.vocab, m.animator, cfg)
	m.machines[key] = mc
	return mc
}

// Dispatch plays label on the avatar's machine in scene.
func (m *Manager) Dispatch(scene, avatarID, label string) error {
	return m.Machine(Key{Scene: scene, AvatarID: avatarID}).Play(label)
}

// ResetScene stops and forgets every machine of scene.
func (m *Manager) ResetScene(scene string) {
	m.mu.Lock()
	var stale []*Machine
	for k, mc := range m.machines {
		if k.Scene == scene {
			stale = append(stale, mc)
			delete(m.machines, k)
		}
	}
	m.mu.Unlock()

	for _, mc := range stale {
		mc.Stop()
	}
}

// Keys returns the live machine keys, sorted.
func (m *Manager) Keys() []Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]Key, 0, len(m.machines))
	for k := range m.machines {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Scene != keys[j].Scene {
			return keys[i].Scene < keys[j].Scene
		}
		return keys[i].AvatarID < keys[j].AvatarID
	})
	return keys
}

// Close stops every machine.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.machines
	m.machines = make(map[Key]*Machine)
	m.mu.Unlock()

	for _, mc := range all {
		mc.Stop()
	}
}
