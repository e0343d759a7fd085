package adjust

import (
	"context"
	"errors"
	"math/rand"
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

type stubRenderer struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (r *stubRenderer) Render(context.Context, domain.RenderState) ([]byte, error) {
	r.calls.Add(1)
	if r.fail.Load() {
		return nil, errors.New("renderer unavailable")
	}
	return []byte("png"), nil
}

func newEngine(t *testing.T, seed int64) (*Engine, *state.Store, *stubRenderer) {
	t.Helper()
	st := state.New(domain.DefaultLimits(), 24*time.Hour)
	r := &stubRenderer{}
	pub := card.NewPublisher(r, nil, time.Second, nil)
	return New(st, character.Default(), pub, rand.New(rand.NewSource(seed))), st, r
}

func drawn(t *testing.T, e *Engine) {
	t.Helper()
	res, err := e.Draw(context.Background(), testID, "")
	require.NoError(t, err)
	require.Equal(t, card.HeadlineCreated, res.Headline)
}

func TestDraw_CreatesThenRerenders(t *testing.T) {
	e, st, r := newEngine(t, 1)
	ctx := context.Background()

	res, err := e.Draw(ctx, testID, "")
	require.NoError(t, err)
	assert.Equal(t, card.HeadlineCreated, res.Headline)
	assert.Equal(t, domain.DefaultText, res.State.Text)
	assert.Equal(t, "初音未来", res.State.Character)

	res, err = e.Draw(ctx, testID, "  第二次  ")
	require.NoError(t, err)
	assert.Equal(t, card.HeadlineRerender, res.Headline)
	assert.Equal(t, "第二次", res.State.Text)
	assert.Equal(t, int32(2), r.calls.Load())

	got, _, _ := st.Get(ctx, testID)
	assert.Equal(t, "第二次", got.Text)
}

func TestAdjust_WithoutStateFails(t *testing.T) {
	e, st, r := newEngine(t, 1)
	ctx := context.Background()

	_, err := e.FontSize(ctx, testID, ModeIncrease, nil)
	assert.ErrorIs(t, err, domain.ErrNoState)
	_, err = e.Rerender(ctx, testID)
	assert.ErrorIs(t, err, domain.ErrNoState)

	assert.Equal(t, 0, st.Len())
	assert.Equal(t, int32(0), r.calls.Load())
}

func TestFontSize_SaturatesAtBounds(t *testing.T) {
	e, st, _ := newEngine(t, 1)
	ctx := context.Background()
	drawn(t, e)

	res, err := e.FontSize(ctx, testID, ModeSet, Float(84))
	require.NoError(t, err)
	assert.Equal(t, "🔠 字号已设置为 84px", res.Headline)

	res, err = e.FontSize(ctx, testID, ModeIncrease, nil)
	require.NoError(t, err)
	assert.Equal(t, 84, res.State.FontSize)
	assert.Equal(t, "🔠 字号已达到上限（84px）", res.Headline)

	res, err = e.FontSize(ctx, testID, ModeSet, Float(500))
	require.NoError(t, err)
	assert.Equal(t, "🔠 字号已设置为 84px（范围 18-84）", res.Headline)

	res, err = e.FontSize(ctx, testID, ModeDecrease, nil)
	require.NoError(t, err)
	assert.Equal(t, "🔠 字号已降至 80px", res.Headline)

	got, _, _ := st.Get(ctx, testID)
	assert.Equal(t, 80, got.FontSize)
}

func TestFontSize_SetRequiresValue(t *testing.T) {
	e, _, r := newEngine(t, 1)
	drawn(t, e)

	_, err := e.FontSize(context.Background(), testID, ModeSet, nil)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestLineSpacing_StepsWithoutDrift(t *testing.T) {
	e, _, _ := newEngine(t, 1)
	ctx := context.Background()
	drawn(t, e)

	var res card.Result
	var err error
	for i := 0; i < 3; i++ {
		res, err = e.LineSpacing(ctx, testID, ModeIncrease, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1.5, res.State.LineSpacing)
	assert.Equal(t, "📏 行距已增至 1.50", res.Headline)

	res, err = e.LineSpacing(ctx, testID, ModeSet, Float(0.1))
	require.NoError(t, err)
	assert.Equal(t, 0.6, res.State.LineSpacing)
	assert.Equal(t, "📏 行距已设置为 0.60（范围 0.6-3.0）", res.Headline)

	res, err = e.LineSpacing(ctx, testID, ModeDecrease, nil)
	require.NoError(t, err)
	assert.Equal(t, "📏 行距已达到下限（0.60）", res.Headline)
}

func TestCurve_Modes(t *testing.T) {
	e, _, _ := newEngine(t, 1)
	ctx := context.Background()
	drawn(t, e)

	res, err := e.Curve(ctx, testID, "")
	require.NoError(t, err)
	assert.True(t, res.State.CurveEnabled)
	assert.Equal(t, "〰️ 曲线已开启", res.Headline)

	res, err = e.Curve(ctx, testID, ModeOn)
	require.NoError(t, err)
	assert.True(t, res.State.CurveEnabled)

	res, err = e.Curve(ctx, testID, ModeToggle)
	require.NoError(t, err)
	assert.False(t, res.State.CurveEnabled)
	assert.Equal(t, "〰️ 曲线已关闭", res.Headline)

	_, err = e.Curve(ctx, testID, ModeIncrease)
	assert.True(t, domain.IsValidation(err))
}

func TestMove_ClampsEachAxis(t *testing.T) {
	e, _, _ := newEngine(t, 1)
	ctx := context.Background()
	drawn(t, e)

	res, err := e.Move(ctx, testID, Up, 0)
	require.NoError(t, err)
	assert.Equal(t, -12, res.State.OffsetY)
	assert.Equal(t, "📍 向上移动 12，当前 Y=-12", res.Headline)

	res, err = e.Move(ctx, testID, Right, 1000)
	require.NoError(t, err)
	assert.Equal(t, 240, res.State.OffsetX)
	assert.Equal(t, -12, res.State.OffsetY)
	assert.Equal(t, "📍 向右移动 240，当前 X=240", res.Headline)

	res, err = e.Move(ctx, testID, Right, 5)
	require.NoError(t, err)
	assert.Equal(t, "📍 已到达右边界（X=240）", res.Headline)

	_, err = e.Move(ctx, testID, Left, -3)
	assert.True(t, domain.IsValidation(err))
	_, err = e.Move(ctx, testID, "sideways", 1)
	assert.True(t, domain.IsValidation(err))
}

func TestCharacter_ResolvesAliases(t *testing.T) {
	e, _, _ := newEngine(t, 1)
	ctx := context.Background()
	drawn(t, e)

	res, err := e.Character(ctx, testID, "akito")
	require.NoError(t, err)
	assert.Equal(t, "东云彰人", res.State.Character)
	assert.Equal(t, "🧑‍🎤 角色已切换为 东云彰人", res.Headline)

	_, err = e.Character(ctx, testID, "nobody")
	assert.True(t, domain.IsValidation(err))
	_, err = e.Character(ctx, testID, "  ")
	assert.True(t, domain.IsValidation(err))
}

func TestRandomCharacter_ExcludesCurrent(t *testing.T) {
	e, _, _ := newEngine(t, 42)
	ctx := context.Background()
	drawn(t, e)

	prev := "初音未来"
	for i := 0; i < 50; i++ {
		res, err := e.RandomCharacter(ctx, testID)
		require.NoError(t, err)
		assert.NotEqual(t, prev, res.State.Character)
		assert.Contains(t, character.Default().Names(), res.State.Character)
		prev = res.State.Character
	}
}

func TestRenderFailure_KeepsChange(t *testing.T) {
	e, st, r := newEngine(t, 1)
	ctx := context.Background()
	drawn(t, e)

	r.fail.Store(true)
	res, err := e.FontSize(ctx, testID, ModeSet, Float(60))
	assert.ErrorIs(t, err, domain.ErrRenderFailed)
	assert.Contains(t, res.Summary, "字号：60px")

	got, _, _ := st.Get(ctx, testID)
	assert.Equal(t, 60, got.FontSize)

	r.fail.Store(false)
	res, err = e.Rerender(ctx, testID)
	require.NoError(t, err)
	assert.Equal(t, 60, res.State.FontSize)
}

func TestApply_ConcurrentAdjustmentsAllLand(t *testing.T) {
	e, st, _ := newEngine(t, 1)
	ctx := context.Background()
	drawn(t, e)

	var wg conc.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Go(func() {
			_, err := e.Apply(ctx, testID, Request{Op: OpLineSpacing, Mode: ModeIncrease})
			assert.NoError(t, err)
		})
		wg.Go(func() {
			_, err := e.Apply(ctx, testID, Request{Op: OpPosition, Direction: Right})
			assert.NoError(t, err)
		})
	}
	wg.Wait()

	got, _, _ := st.Get(ctx, testID)
	assert.Equal(t, 2.2, got.LineSpacing)
	assert.Equal(t, 120, got.OffsetX)
}

func TestApply_UnknownOp(t *testing.T) {
	e, _, _ := newEngine(t, 1)
	_, err := e.Apply(context.Background(), testID, Request{Op: "rotate"})
	assert.True(t, domain.IsValidation(err))
}

func randomRequest(rng *rand.Rand) Request {
	modes := []Mode{ModeSet, ModeIncrease, ModeDecrease}
	dirs := []Direction{Up, Down, Left, Right}
	switch rng.Intn(6) {
	case 0:
		return Request{Op: OpFontSize, Mode: modes[rng.Intn(3)], Value: Float(float64(rng.Intn(400) - 200))}
	case 1:
		return Request{Op: OpLineSpacing, Mode: modes[rng.Intn(3)], Value: Float(rng.Float64()*8 - 2)}
	case 2:
		return Request{Op: OpCurve, Mode: []Mode{ModeOn, ModeOff, ModeToggle}[rng.Intn(3)]}
	case 3:
		return Request{Op: OpPosition, Direction: dirs[rng.Intn(4)], Step: rng.Intn(600)}
	case 4:
		return Request{Op: OpCharacter, Random: true}
	default:
		return Request{Op: OpText, Text: "随机文本"}
	}
}

func assertInRange(t *testing.T, l domain.Limits, s domain.RenderState) {
	t.Helper()
	assert.NoError(t, l.Check(s))
	assert.Equal(t, domain.RoundSpacing(s.LineSpacing), s.LineSpacing)
}

func TestApply_RandomSequenceStaysInRange(t *testing.T) {
	e, st, _ := newEngine(t, 7)
	ctx := context.Background()
	drawn(t, e)

	rng := rand.New(rand.NewSource(99))
	for i := 0; i < 500; i++ {
		res, err := e.Apply(ctx, testID, randomRequest(rng))
		require.NoError(t, err)
		assertInRange(t, st.Limits(), res.State)
	}
}

func FuzzAdjustSequence(f *testing.F) {
	f.Add(int64(1), uint8(20))
	f.Add(int64(-5), uint8(200))
	f.Fuzz(func(t *testing.T, seed int64, n uint8) {
		e, st, _ := newEngine(t, seed)
		ctx := context.Background()
		drawn(t, e)

		rng := rand.New(rand.NewSource(seed))
		for i := 0; i < int(n); i++ {
			res, err := e.Apply(ctx, testID, randomRequest(rng))
			if err != nil {
				t.Fatalf("step %d: %v", i, err)
			}
			assertInRange(t, st.Limits(), res.State)
		}
	})
}
