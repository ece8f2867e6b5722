package viewer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-borp/pkg/metrics"
	"github.com/teslashibe/go-borp/pkg/playback"
	"github.com/teslashibe/go-borp/pkg/protocol"
)

type presentCall struct {
	ctx  context.Context
	resp *protocol.AIResponse
	done func(playback.Result)
}

type fakePresenter struct {
	calls    chan presentCall
	gestures chan struct{}
	release  chan struct{} // when set, Gesture waits for it
	mu       sync.Mutex
	resets   int
}

func newFakePresenter() *fakePresenter {
	return &fakePresenter{calls: make(chan presentCall, 16), gestures: make(chan struct{}, 4)}
}

func (f *fakePresenter) Present(ctx context.Context, resp *protocol.AIResponse, done func(playback.Result)) {
	f.calls <- presentCall{ctx: ctx, resp: resp, done: done}
}

func (f *fakePresenter) Gesture(ctx context.Context) error {
	f.gestures <- struct{}{}
	if f.release != nil {
		<-f.release
	}
	return nil
}

func (f *fakePresenter) Reset() {
	f.mu.Lock()
	f.resets++
	f.mu.Unlock()
}

func (f *fakePresenter) next(t *testing.T) presentCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("no presentation")
		return presentCall{}
	}
}

func (f *fakePresenter) none(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected presentation of %s", c.resp.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeSubscriber struct {
	mu   sync.Mutex
	sets [][]string
}

func (f *fakeSubscriber) SetSubscriptions(ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets = append(f.sets, ids)
	return nil
}

type fakeAnimations struct {
	mu     sync.Mutex
	played []string
	resets []string
}

func (f *fakeAnimations) Dispatch(scene, avatarID, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, scene+"/"+avatarID+"/"+label)
	return nil
}

func (f *fakeAnimations) ResetScene(scene string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, scene)
}

func startScene(t *testing.T, opts ...SceneOption) (*Scene, *fakePresenter, *fakeSubscriber, *fakeAnimations) {
	t.Helper()
	p, sub, anims := newFakePresenter(), &fakeSubscriber{}, &fakeAnimations{}
	s, err := NewScene(sub, p, anims, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(cancel)

	s.Switch("main", "a1")
	return s, p, sub, anims
}

func ended(id string) playback.Result {
	return playback.Result{ResponseID: id, Outcome: metrics.OutcomeEnded}
}

func TestScenePresentsInArrivalOrder(t *testing.T) {
	s, p, _, _ := startScene(t)

	for _, id := range []string{"r1", "r2", "r3"} {
		s.Deliver(resp(id))
	}

	var order []string
	for range 3 {
		c := p.next(t)
		order = append(order, c.resp.ID)
		st := s.State()
		assert.Equal(t, c.resp.ID, st.Current.ID)
		c.done(ended(c.resp.ID))
	}
	assert.Equal(t, []string{"r1", "r2", "r3"}, order)
	p.none(t)

	st := s.State()
	assert.Nil(t, st.Current)
	assert.Equal(t, 3, st.Presented)
	assert.Equal(t, 3, st.Completions)
}

func TestSceneSwitchDiscardsWithoutCompletions(t *testing.T) {
	s, p, sub, anims := startScene(t)

	s.Deliver(resp("r1"))
	s.Deliver(resp("r2"))
	s.Deliver(resp("r3"))
	c := p.next(t)
	require.Equal(t, "r1", c.resp.ID)

	s.Switch("other", "a2")
	st := s.State()
	assert.Nil(t, st.Current)
	assert.Empty(t, st.Pending)
	assert.Error(t, c.ctx.Err(), "presentation context must be cancelled")

	// A late completion from the discarded entry changes nothing.
	c.done(ended("r1"))
	p.none(t)
	st = s.State()
	assert.Equal(t, 0, st.Completions)
	assert.Equal(t, 1, st.Presented)

	sub.mu.Lock()
	assert.Equal(t, [][]string{{"a1"}, {"a2"}}, sub.sets)
	sub.mu.Unlock()
	anims.mu.Lock()
	assert.Equal(t, []string{"main"}, anims.resets)
	anims.mu.Unlock()

	// Old agent's responses no longer reach the scene.
	s.Deliver(resp("r4"))
	p.none(t)
}

func TestSceneDropsReplays(t *testing.T) {
	s, p, _, _ := startScene(t)

	s.Deliver(resp("r1"))
	c := p.next(t)
	c.done(ended("r1"))

	s.Deliver(resp("r1"))
	p.none(t)
	assert.Equal(t, 1, s.State().Presented)
}

func TestSceneDedupeDisabled(t *testing.T) {
	s, p, _, _ := startScene(t, WithDedupeWindow(0))

	s.Deliver(resp("r1"))
	p.next(t).done(ended("r1"))
	s.Deliver(resp("r1"))
	p.next(t)
}

func TestSceneDrivesAnimations(t *testing.T) {
	s, p, _, anims := startScene(t)

	r := resp("r1")
	r.Animation = "happy"
	s.Deliver(r)
	p.next(t)

	s.Animate(protocol.AnimationUpdate{AgentID: "a1", Animation: "wave"})
	s.Animate(protocol.AnimationUpdate{AgentID: "zz", Animation: "wave"})
	s.State()

	anims.mu.Lock()
	defer anims.mu.Unlock()
	assert.Equal(t, []string{"main/a1/happy", "main/a1/wave"}, anims.played)
}

func TestSceneDropsInvalidResponse(t *testing.T) {
	s, p, _, _ := startScene(t)
	s.Deliver(&protocol.AIResponse{ID: "r1", AgentID: "a1"})
	p.none(t)
}

func TestSceneGestureHoldsQueue(t *testing.T) {
	s, p, _, _ := startScene(t)

	s.Gesture()
	<-p.gestures
	s.Deliver(resp("r1"))
	c := p.next(t)
	assert.Equal(t, "r1", c.resp.ID)
}

func TestSceneOverlappingGesturesHoldQueueUntilLastEnds(t *testing.T) {
	s, p, _, _ := startScene(t)
	p.release = make(chan struct{})

	s.Gesture()
	s.Gesture()
	<-p.gestures
	<-p.gestures

	p.release <- struct{}{}
	s.Deliver(resp("r1"))
	p.none(t)

	p.release <- struct{}{}
	c := p.next(t)
	assert.Equal(t, "r1", c.resp.ID)
}

func TestSceneSwitchResetsPresenter(t *testing.T) {
	s, p, _, _ := startScene(t)
	s.Switch("second", "a2")
	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.resets == 2
	}, time.Second, 5*time.Millisecond)
}

// lockedElement refuses to play until unlocked and records what it played.
type lockedElement struct {
	mu       sync.Mutex
	source   string
	unlocked bool
	played   []string
}

func (e *lockedElement) SetSource(ctx context.Context, url string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.source = url
	return nil
}

func (e *lockedElement) Play(ctx context.Context, frame playback.FrameFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.unlocked {
		return playback.ErrAutoplayBlocked
	}
	e.played = append(e.played, e.source)
	return nil
}

func (e *lockedElement) Graphs() int { return 1 }

func (e *lockedElement) Unlock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.unlocked = true
}

func (e *lockedElement) playedURLs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.played...)
}

func TestSceneSwitchDropsAudioBlockedInPreviousScene(t *testing.T) {
	el := &lockedElement{}
	player := playback.New(el, nil)
	s, err := NewScene(&fakeSubscriber{}, player, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	s.Switch("scene1", "agentA")
	s.Deliver(&protocol.AIResponse{ID: "rA", AgentID: "agentA", Text: "hello", AudioURL: "http://x/agentA.mp3"})
	require.Eventually(t, func() bool { return s.State().Completions == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, "http://x/agentA.mp3", player.Blocked())

	s.Switch("scene2", "agentB")
	s.Gesture()
	require.Eventually(t, func() bool { return s.State().Scene == "scene2" }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Empty(t, player.Blocked())
	assert.Empty(t, el.playedURLs())
}
