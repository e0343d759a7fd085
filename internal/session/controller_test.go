package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/pjsk-cards/internal/card"
	"github.com/ashureev/pjsk-cards/internal/character"
	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/ashureev/pjsk-cards/internal/state"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testID = domain.Identity{Platform: "platformA", Conversation: "user1"}

type countingRenderer struct {
	calls atomic.Int32
	err   error
}

func (r *countingRenderer) Render(context.Context, domain.RenderState) ([]byte, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return []byte("png"), nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	ctrl     *Controller
	store    *state.Store
	renderer *countingRenderer
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	st := state.New(domain.DefaultLimits(), 24*time.Hour, state.WithClock(clk.Now))
	r := &countingRenderer{}
	pub := card.NewPublisher(r, nil, time.Second, nil)
	return &fixture{
		ctrl:     New(st, character.Default(), pub, WithClock(clk.Now)),
		store:    st,
		renderer: r,
		clock:    clk,
	}
}

func TestFlow_SelectByIndexThenText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.ctrl.Start(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepAwaitingCharacter, out.Session.Step)
	assert.Equal(t, f.clock.Now().Add(30*time.Second), out.Session.Deadline)
	assert.Contains(t, out.Prompt, "5. 日野森志步")

	out, err = f.ctrl.Submit(ctx, testID, "5")
	require.NoError(t, err)
	assert.Equal(t, domain.StepAwaitingText, out.Session.Step)
	assert.Equal(t, "日野森志步", out.Session.Character)
	assert.Equal(t, f.clock.Now().Add(60*time.Second), out.Session.Deadline)

	_, ok, _ := f.store.Get(ctx, testID)
	assert.False(t, ok, "state must not change before the flow completes")

	out, err = f.ctrl.Submit(ctx, testID, "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.StepCompleted, out.Session.Step)
	require.NotNil(t, out.Result)
	assert.Equal(t, int32(1), f.renderer.calls.Load())

	got, ok, err := f.store.Get(ctx, testID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", got.Text)
	assert.Equal(t, "日野森志步", got.Character)
	assert.Equal(t, domain.DefaultFontSize, got.FontSize)

	_, active := f.ctrl.Get(testID)
	assert.False(t, active, "completed session must be discarded")
}

func TestFlow_CompletionKeepsExistingAdjustments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	existing := domain.DefaultLimits().NewState("初音未来")
	existing.FontSize = 70
	existing.CurveEnabled = true
	require.NoError(t, f.store.Set(ctx, testID, existing))

	_, err := f.ctrl.Start(ctx, testID)
	require.NoError(t, err)
	_, err = f.ctrl.Submit(ctx, testID, "akito")
	require.NoError(t, err)
	_, err = f.ctrl.Submit(ctx, testID, "  new text  ")
	require.NoError(t, err)

	got, _, _ := f.store.Get(ctx, testID)
	assert.Equal(t, "new text", got.Text)
	assert.Equal(t, "东云彰人", got.Character)
	assert.Equal(t, 70, got.FontSize)
	assert.True(t, got.CurveEnabled)
}

func TestFlow_OutOfRangeIndexIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	started, err := f.ctrl.Start(ctx, testID)
	require.NoError(t, err)

	out, err := f.ctrl.Submit(ctx, testID, "9")
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, domain.StepAwaitingCharacter, out.Session.Step)
	assert.Equal(t, started.Session.Deadline, out.Session.Deadline)
	assert.Empty(t, out.Session.Character)
	assert.Contains(t, out.Prompt, "1-8")

	sess, ok := f.ctrl.Get(testID)
	require.True(t, ok)
	assert.Equal(t, domain.StepAwaitingCharacter, sess.Step)
	assert.Equal(t, int32(0), f.renderer.calls.Load())
}

func TestFlow_InvalidTextStaysAwaitingText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.ctrl.Start(ctx, testID)
	_, err := f.ctrl.Submit(ctx, testID, "miku")
	require.NoError(t, err)

	out, err := f.ctrl.Submit(ctx, testID, strings.Repeat("长", 121))
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, domain.StepAwaitingText, out.Session.Step)

	_, err = f.ctrl.Submit(ctx, testID, "   ")
	assert.True(t, domain.IsValidation(err))

	_, ok, _ := f.store.Get(ctx, testID)
	assert.False(t, ok)
}

func TestFlow_TimeoutNeverMutatesState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.ctrl.Start(ctx, testID)
	_, err := f.ctrl.Submit(ctx, testID, "1")
	require.NoError(t, err)

	f.clock.Advance(60 * time.Second)

	out, err := f.ctrl.Submit(ctx, testID, "hello")
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.Equal(t, domain.StepTimedOut, out.Session.Step)

	_, err = f.ctrl.Submit(ctx, testID, "hello")
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)

	_, ok, _ := f.store.Get(ctx, testID)
	assert.False(t, ok, "timed out flow must not touch the card state")
	assert.Equal(t, int32(0), f.renderer.calls.Load())
}

func TestFlow_CharacterStepTimeout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.ctrl.Start(ctx, testID)
	f.clock.Advance(29 * time.Second)
	_, ok := f.ctrl.Get(testID)
	assert.True(t, ok)

	f.clock.Advance(time.Second)
	_, ok = f.ctrl.Get(testID)
	assert.False(t, ok)
	assert.Equal(t, 0, f.ctrl.Len())
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cancelled, err := f.ctrl.Cancel(ctx, testID)
	require.NoError(t, err)
	assert.False(t, cancelled)

	_, _ = f.ctrl.Start(ctx, testID)
	cancelled, err = f.ctrl.Cancel(ctx, testID)
	require.NoError(t, err)
	assert.True(t, cancelled)

	_, err = f.ctrl.Submit(ctx, testID, "1")
	assert.ErrorIs(t, err, domain.ErrNoActiveSession)
}

func TestStart_ReplacesRunningSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _ := f.ctrl.Start(ctx, testID)
	_, err := f.ctrl.Submit(ctx, testID, "2")
	require.NoError(t, err)

	second, err := f.ctrl.Start(ctx, testID)
	require.NoError(t, err)
	assert.NotEqual(t, first.Session.ID, second.Session.ID)
	assert.Equal(t, 1, f.ctrl.Len())

	sess, ok := f.ctrl.Get(testID)
	require.True(t, ok)
	assert.Equal(t, domain.StepAwaitingCharacter, sess.Step)
	assert.Empty(t, sess.Character)
}

func TestStart_ConcurrentStartsLeaveOneSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg conc.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Go(func() {
			_, err := f.ctrl.Start(ctx, testID)
			assert.NoError(t, err)
		})
	}
	wg.Wait()
	assert.Equal(t, 1, f.ctrl.Len())
}

func TestSubmit_DuplicateCompletionRendersOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.ctrl.Start(ctx, testID)
	_, err := f.ctrl.Submit(ctx, testID, "3")
	require.NoError(t, err)

	var completed atomic.Int32
	var wg conc.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Go(func() {
			_, err := f.ctrl.Submit(ctx, testID, "dup")
			if err == nil {
				completed.Add(1)
				return
			}
			assert.ErrorIs(t, err, domain.ErrNoActiveSession)
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), completed.Load())
	assert.Equal(t, int32(1), f.renderer.calls.Load())
}

func TestSubmit_RenderFailureKeepsMergedState(t *testing.T) {
	f := newFixture(t)
	f.renderer.err = errors.New("renderer down")
	ctx := context.Background()

	_, _ = f.ctrl.Start(ctx, testID)
	_, err := f.ctrl.Submit(ctx, testID, "4")
	require.NoError(t, err)

	out, err := f.ctrl.Submit(ctx, testID, "still saved")
	assert.ErrorIs(t, err, domain.ErrRenderFailed)
	require.NotNil(t, out.Result)
	assert.Contains(t, out.Result.Summary, "文本：still saved")

	got, ok, _ := f.store.Get(ctx, testID)
	require.True(t, ok)
	assert.Equal(t, "still saved", got.Text)
	assert.Equal(t, "望月穗波", got.Character)
}

func TestSweep_ExpiresAbandonedSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := domain.Identity{Platform: "qq", Conversation: "later"}
	_, _ = f.ctrl.Start(ctx, testID)
	f.clock.Advance(20 * time.Second)
	_, _ = f.ctrl.Start(ctx, other)
	f.clock.Advance(15 * time.Second)

	expired := f.ctrl.Sweep()
	require.Len(t, expired, 1)
	assert.Equal(t, testID, expired[0].Identity)
	assert.Equal(t, domain.StepTimedOut, expired[0].Step)
	assert.Equal(t, 1, f.ctrl.Len())
}

func TestController_RejectsInvalidIdentity(t *testing.T) {
	f := newFixture(t)
	_, err := f.ctrl.Start(context.Background(), domain.Identity{Platform: "qq"})
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}
