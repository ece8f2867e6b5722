package animation

import (
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTimers collects scheduled callbacks so tests fire them by hand.
type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

type fakeTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

func (ft *fakeTimers) AfterFunc(d time.Duration, f func()) Timer {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{d: d, f: f}
	ft.timers = append(ft.timers, t)
	return t
}

// fire runs timer i regardless of whether it was stopped, like a timer
// that already fired while Stop raced with it.
func (ft *fakeTimers) fire(i int) {
	ft.mu.Lock()
	t := ft.timers[i]
	ft.mu.Unlock()
	t.f()
}

type fade struct {
	from, to string
	d        time.Duration
}

type recorder struct {
	mu    sync.Mutex
	fades []fade
}

func (r *recorder) Crossfade(_ Key, from, to string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fades = append(r.fades, fade{from, to, d})
}

func (r *recorder) all() []fade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]fade(nil), r.fades...)
}

func newTestMachine(t *testing.T) (*Machine, *recorder, *fakeTimers) {
	t.Helper()
	rec := &recorder{}
	timers := &fakeTimers{}
	m := NewMachine(Key{Scene: "main", AvatarID: "a1"}, Default(), rec, WithAfterFunc(timers.AfterFunc))
	return m, rec, timers
}

func TestVocabularyLookup(t *testing.T) {
	v := Default()

	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"salute", "salute", true},
		{"  Salute.\n", "salute", true},
		{`"head_nod_yes"`, "head_nod_yes", true},
		{"ROBOT_DANCE", "Robot_Dance", true},
		{"Silly_dancing", "Silly_dancing", true},
		{"silly_dancing", "silly_dancing", true},
		{"sitting", "", false},
		{"moonwalk", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, err := v.Lookup(tt.raw)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrInvalidLabel, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
}

func TestVocabularyDedupes(t *testing.T) {
	v := Default()
	seen := map[string]bool{}
	for _, l := range v.Labels() {
		assert.False(t, seen[l], "duplicate %s", l)
		seen[l] = true
	}
	assert.Equal(t, DefaultVersion, v.Version())
	assert.Contains(t, v.Category(CategoryGestures), "blow_a_kiss")
	assert.Contains(t, v.Category(CategorySpecial), "blow_a_kiss")
}

func TestVocabularySample(t *testing.T) {
	v := Default()
	rng := rand.New(rand.NewPCG(1, 2))

	got := v.Sample(rng, 10, PeriodicCategories...)
	require.Len(t, got, 10)

	uniq := map[string]bool{}
	for _, l := range got {
		assert.True(t, v.Contains(l))
		assert.NotContains(t, v.Category(CategoryIdle), l)
		uniq[l] = true
	}
	assert.Len(t, uniq, 10)

	all := v.Sample(rng, 1000, CategoryHead)
	assert.Len(t, all, len(v.Category(CategoryHead)))
}

func TestMachinePlayAndRevert(t *testing.T) {
	m, rec, timers := newTestMachine(t)

	require.NoError(t, m.Play("salute"))
	snap := m.Snapshot()
	assert.Equal(t, StatePlaying, snap.State)
	assert.Equal(t, "salute", snap.Clip)
	require.Len(t, timers.timers, 1)
	assert.Equal(t, DefaultRevertAfter, timers.timers[0].d)

	timers.fire(0)
	snap = m.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, DefaultIdleClip, snap.Clip)

	assert.Equal(t, []fade{
		{"idle", "salute", DefaultCrossfade},
		{"salute", "idle", DefaultCrossfade},
	}, rec.all())
}

func TestMachineInterruptCrossfadesOnce(t *testing.T) {
	m, rec, timers := newTestMachine(t)

	require.NoError(t, m.Play("happy"))
	require.NoError(t, m.Play("laughing"))

	// The superseded timer must not revert even if it fires late.
	timers.fire(0)
	snap := m.Snapshot()
	assert.Equal(t, StatePlaying, snap.State)
	assert.Equal(t, "laughing", snap.Clip)
	assert.True(t, timers.timers[0].stopped)

	fades := rec.all()
	require.Len(t, fades, 2)
	assert.Equal(t, fade{"happy", "laughing", DefaultCrossfade}, fades[1])

	timers.fire(1)
	assert.Equal(t, StateIdle, m.Snapshot().State)
}

func TestMachineRejectsInvalidLabel(t *testing.T) {
	m, rec, timers := newTestMachine(t)
	require.NoError(t, m.Play("happy"))

	err := m.Play("backflip")
	assert.True(t, errors.Is(err, ErrInvalidLabel))

	assert.Equal(t, "happy", m.Snapshot().Clip)
	assert.Len(t, rec.all(), 1)
	assert.Len(t, timers.timers, 1)
	assert.False(t, timers.timers[0].stopped)
}

func TestMachineStop(t *testing.T) {
	m, rec, timers := newTestMachine(t)
	require.NoError(t, m.Play("happy"))

	m.Stop()
	timers.fire(0)
	assert.Len(t, rec.all(), 1, "no revert after stop")
	assert.ErrorIs(t, m.Play("happy"), ErrStopped)
}

func TestMachineRealTimer(t *testing.T) {
	done := make(chan Snapshot, 4)
	m := NewMachine(Key{Scene: "s", AvatarID: "a"}, Default(), nil,
		WithRevertAfter(20*time.Millisecond),
		WithOnChange(func(_ Key, s Snapshot) { done <- s }))

	require.NoError(t, m.Play("salute"))
	assert.Equal(t, StatePlaying, (<-done).State)

	select {
	case s := <-done:
		assert.Equal(t, StateIdle, s.State)
	case <-time.After(time.Second):
		t.Fatal("machine did not revert")
	}
}

func TestManager(t *testing.T) {
	rec := &recorder{}
	timers := &fakeTimers{}
	mgr := NewManager(Default(), rec, WithAfterFunc(timers.AfterFunc))
	mgr.SetIdleClip("a2", "idle_basic")

	require.NoError(t, mgr.Dispatch("main", "a1", "happy"))
	require.NoError(t, mgr.Dispatch("main", "a2", "salute"))
	require.NoError(t, mgr.Dispatch("other", "a1", "angry"))
	assert.ErrorIs(t, mgr.Dispatch("main", "a1", "nope"), ErrInvalidLabel)

	assert.Same(t, mgr.Machine(Key{"main", "a1"}), mgr.Machine(Key{"main", "a1"}))
	assert.Equal(t, "idle_basic", mgr.Machine(Key{"main", "a2"}).cfg.IdleClip)
	assert.Len(t, mgr.Keys(), 3)

	mgr.ResetScene("main")
	assert.Equal(t, []Key{{"other", "a1"}}, mgr.Keys())
	for _, tm := range timers.timers[:2] {
		assert.True(t, tm.stopped)
	}

	mgr.Close()
	assert.Empty(t, mgr.Keys())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "unknown", State(9).String())
}
