// Package adjust applies one-shot adjustment commands to a stored card.
//
// Every mutation goes through state.Store.Update, so it is computed from
// the freshly stored value under the identity lock. Rendering and dispatch
// happen afterwards, outside any lock.
package adjust

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/ashureev/pjsk-cards/internal/card"
	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/ashureev/pjsk-cards/internal/state"
)

// Roster resolves character names and lists the fixed roster in order.
type Roster interface {
	domain.Resolver
	Names() []string
}

// Engine interprets adjustment commands.
type Engine struct {
	store     *state.Store
	roster    Roster
	publisher *card.Publisher

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an Engine. A nil rng uses a time-seeded source.
func New(store *state.Store, roster Roster, publisher *card.Publisher, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Engine{store: store, roster: roster, publisher: publisher, rng: rng}
}

// mutation edits st in place and returns the headline for the result.
type mutation func(l domain.Limits, st *domain.RenderState) (string, error)

// Apply dispatches req to the matching operation.
func (e *Engine) Apply(ctx context.Context, id domain.Identity, req Request) (card.Result, error) {
	switch req.Op {
	case OpText:
		return e.SetText(ctx, id, req.Text)
	case OpFontSize:
		return e.FontSize(ctx, id, req.Mode, req.Value)
	case OpLineSpacing:
		return e.LineSpacing(ctx, id, req.Mode, req.Value)
	case OpCurve:
		return e.Curve(ctx, id, req.Mode)
	case OpPosition:
		return e.Move(ctx, id, req.Direction, req.Step)
	case OpCharacter:
		if req.Random {
			return e.RandomCharacter(ctx, id)
		}
		return e.Character(ctx, id, req.Character)
	}
	return card.Result{}, domain.Invalid("op", "未识别的子指令：%s", req.Op)
}

// SetText replaces the card text. Over-long or empty text is rejected.
func (e *Engine) SetText(ctx context.Context, id domain.Identity, text string) (card.Result, error) {
	clean, err := e.store.Limits().CheckText(text)
	if err != nil {
		return card.Result{}, err
	}
	return e.mutate(ctx, id, func(_ domain.Limits, st *domain.RenderState) (string, error) {
		st.Text = clean
		return "📝 文本已更新", nil
	})
}

// FontSize sets the font size (ModeSet with value) or steps it by one unit.
// Boundaries saturate; stepping past them is not an error.
func (e *Engine) FontSize(ctx context.Context, id domain.Identity, mode Mode, value *float64) (card.Result, error) {
	if mode == "" {
		mode = ModeSet
	}
	if mode == ModeSet {
		if value == nil {
			return card.Result{}, domain.Invalid("value", "请提供字号数值，例如：字号 48。")
		}
		if math.IsNaN(*value) || math.IsInf(*value, 0) {
			return card.Result{}, domain.Invalid("value", "无法解析数值：%v", *value)
		}
	}
	return e.mutate(ctx, id, func(l domain.Limits, st *domain.RenderState) (string, error) {
		prev := st.FontSize
		switch mode {
		case ModeIncrease:
			st.FontSize = l.ClampFontSize(prev + l.FontSizeStep)
			if st.FontSize == prev {
				return fmt.Sprintf("🔠 字号已达到上限（%dpx）", st.FontSize), nil
			}
			return fmt.Sprintf("🔠 字号已增至 %dpx", st.FontSize), nil
		case ModeDecrease:
			st.FontSize = l.ClampFontSize(prev - l.FontSizeStep)
			if st.FontSize == prev {
				return fmt.Sprintf("🔠 字号已达到下限（%dpx）", st.FontSize), nil
			}
			return fmt.Sprintf("🔠 字号已降至 %dpx", st.FontSize), nil
		case ModeSet:
			requested := math.Trunc(*value)
			bounded := math.Max(float64(l.FontSizeMin), math.Min(float64(l.FontSizeMax), requested))
			st.FontSize = int(bounded)
			if bounded != requested {
				return fmt.Sprintf("🔠 字号已设置为 %dpx（范围 %d-%d）", st.FontSize, l.FontSizeMin, l.FontSizeMax), nil
			}
			return fmt.Sprintf("🔠 字号已设置为 %dpx", st.FontSize), nil
		}
		return "", domain.Invalid("mode", "未识别的字号调整方式。")
	})
}

// LineSpacing sets or steps the line spacing. Values are kept to two
// decimals and saturate at the range boundaries.
func (e *Engine) LineSpacing(ctx context.Context, id domain.Identity, mode Mode, value *float64) (card.Result, error) {
	if mode == "" {
		mode = ModeSet
	}
	if mode == ModeSet {
		if value == nil {
			return card.Result{}, domain.Invalid("value", "请提供行距数值，例如：行距 1.8。")
		}
		if math.IsNaN(*value) || math.IsInf(*value, 0) {
			return card.Result{}, domain.Invalid("value", "无法解析数值：%v", *value)
		}
	}
	return e.mutate(ctx, id, func(l domain.Limits, st *domain.RenderState) (string, error) {
		prev := st.LineSpacing
		switch mode {
		case ModeIncrease:
			st.LineSpacing = l.ClampLineSpacing(prev + l.LineSpacingStep)
			if st.LineSpacing == prev {
				return fmt.Sprintf("📏 行距已达到上限（%.2f）", st.LineSpacing), nil
			}
			return fmt.Sprintf("📏 行距已增至 %.2f", st.LineSpacing), nil
		case ModeDecrease:
			st.LineSpacing = l.ClampLineSpacing(prev - l.LineSpacingStep)
			if st.LineSpacing == prev {
				return fmt.Sprintf("📏 行距已达到下限（%.2f）", st.LineSpacing), nil
			}
			return fmt.Sprintf("📏 行距已降至 %.2f", st.LineSpacing), nil
		case ModeSet:
			st.LineSpacing = l.ClampLineSpacing(*value)
			if math.Abs(st.LineSpacing-*value) > 1e-6 {
				return fmt.Sprintf("📏 行距已设置为 %.2f（范围 %.1f-%.1f）", st.LineSpacing, l.LineSpacingMin, l.LineSpacingMax), nil
			}
			return fmt.Sprintf("📏 行距已设置为 %.2f", st.LineSpacing), nil
		}
		return "", domain.Invalid("mode", "未识别的行距调整方式。")
	})
}

// Curve turns the curved text effect on, off, or flips it. An empty mode
// toggles.
func (e *Engine) Curve(ctx context.Context, id domain.Identity, mode Mode) (card.Result, error) {
	if mode == "" {
		mode = ModeToggle
	}
	return e.mutate(ctx, id, func(_ domain.Limits, st *domain.RenderState) (string, error) {
		switch mode {
		case ModeOn:
			st.CurveEnabled = true
			return "〰️ 曲线已开启", nil
		case ModeOff:
			st.CurveEnabled = false
			return "〰️ 曲线已关闭", nil
		case ModeToggle:
			st.CurveEnabled = !st.CurveEnabled
			if st.CurveEnabled {
				return "〰️ 曲线已开启", nil
			}
			return "〰️ 曲线已关闭", nil
		}
		return "", domain.Invalid("mode", "未识别的曲线模式。")
	})
}

// Move shifts the text position. step 0 uses the configured step; each
// axis saturates independently.
func (e *Engine) Move(ctx context.Context, id domain.Identity, dir Direction, step int) (card.Result, error) {
	if step < 0 {
		return card.Result{}, domain.Invalid("step", "位移步长需为正整数。")
	}
	switch dir {
	case Up, Down, Left, Right:
	default:
		return card.Result{}, domain.Invalid("direction", "请指定方向，例如：位置.上 或 位置 下。")
	}
	return e.mutate(ctx, id, func(l domain.Limits, st *domain.RenderState) (string, error) {
		amount := step
		if amount == 0 {
			amount = l.OffsetStep
		}
		// Bound before adding so huge steps cannot overflow.
		amount = min(amount, l.OffsetMax-l.OffsetMin)

		switch dir {
		case Up:
			prev := st.OffsetY
			st.OffsetY = l.ClampOffset(prev - amount)
			if applied := prev - st.OffsetY; applied != 0 {
				return fmt.Sprintf("📍 向上移动 %d，当前 Y=%d", applied, st.OffsetY), nil
			}
			return fmt.Sprintf("📍 已到达上边界（Y=%d）", st.OffsetY), nil
		case Down:
			prev := st.OffsetY
			st.OffsetY = l.ClampOffset(prev + amount)
			if applied := st.OffsetY - prev; applied != 0 {
				return fmt.Sprintf("📍 向下移动 %d，当前 Y=%d", applied, st.OffsetY), nil
			}
			return fmt.Sprintf("📍 已到达下边界（Y=%d）", st.OffsetY), nil
		case Left:
			prev := st.OffsetX
			st.OffsetX = l.ClampOffset(prev - amount)
			if applied := prev - st.OffsetX; applied != 0 {
				return fmt.Sprintf("📍 向左移动 %d，当前 X=%d", applied, st.OffsetX), nil
			}
			return fmt.Sprintf("📍 已到达左边界（X=%d）", st.OffsetX), nil
		default:
			prev := st.OffsetX
			st.OffsetX = l.ClampOffset(prev + amount)
			if applied := st.OffsetX - prev; applied != 0 {
				return fmt.Sprintf("📍 向右移动 %d，当前 X=%d", applied, st.OffsetX), nil
			}
			return fmt.Sprintf("📍 已到达右边界（X=%d）", st.OffsetX), nil
		}
	})
}

// Character switches to the character input resolves to.
func (e *Engine) Character(ctx context.Context, id domain.Identity, input string) (card.Result, error) {
	candidate := strings.TrimSpace(input)
	if candidate == "" {
		return card.Result{}, domain.Invalid("character", "请提供角色名称，或使用 -r 随机切换。")
	}
	name, ok := e.roster.Resolve(candidate)
	if !ok {
		return card.Result{}, domain.Invalid("character", "未识别的角色：%s", candidate)
	}
	return e.mutate(ctx, id, func(_ domain.Limits, st *domain.RenderState) (string, error) {
		st.Character = name
		return "🧑‍🎤 角色已切换为 " + name, nil
	})
}

// RandomCharacter switches to a character drawn uniformly from the roster,
// excluding the current one when the roster has alternatives.
func (e *Engine) RandomCharacter(ctx context.Context, id domain.Identity) (card.Result, error) {
	return e.mutate(ctx, id, func(_ domain.Limits, st *domain.RenderState) (string, error) {
		name := e.pickRandom(st.Character)
		st.Character = name
		return "🧑‍🎤 角色已随机切换为 " + name, nil
	})
}

// Draw creates the card with defaults (or refreshes it) and renders it.
// Non-empty text replaces the card text.
func (e *Engine) Draw(ctx context.Context, id domain.Identity, text string) (card.Result, error) {
	limits := e.store.Limits()
	var clean string
	if strings.TrimSpace(text) != "" {
		var err error
		if clean, err = limits.CheckText(text); err != nil {
			return card.Result{}, err
		}
	}

	st, created, err := e.store.UpdateOrCreate(ctx, id,
		func() domain.RenderState { return limits.NewState(e.defaultCharacter()) },
		func(st *domain.RenderState) error {
			if clean != "" {
				st.Text = clean
			}
			return nil
		})
	if err != nil {
		return card.Result{}, err
	}

	headline := card.HeadlineRerender
	if created {
		headline = card.HeadlineCreated
	}
	res := e.publisher.Publish(ctx, id, st, headline)
	return res, res.RenderErr
}

// Rerender renders the stored card again without changing it. It is the
// retry path after a render failure.
func (e *Engine) Rerender(ctx context.Context, id domain.Identity) (card.Result, error) {
	st, ok, err := e.store.Get(ctx, id)
	if err != nil {
		return card.Result{}, err
	}
	if !ok {
		return card.Result{}, domain.ErrNoState
	}
	res := e.publisher.Publish(ctx, id, st, card.HeadlineRerender)
	return res, res.RenderErr
}

// mutate stores fn's change and publishes the new state. A render failure
// is returned together with the saved result.
func (e *Engine) mutate(ctx context.Context, id domain.Identity, fn mutation) (card.Result, error) {
	limits := e.store.Limits()
	var headline string
	st, err := e.store.Update(ctx, id, func(st *domain.RenderState) error {
		h, err := fn(limits, st)
		headline = h
		return err
	})
	if err != nil {
		return card.Result{}, err
	}
	res := e.publisher.Publish(ctx, id, st, headline)
	return res, res.RenderErr
}

func (e *Engine) pickRandom(exclude string) string {
	names := e.roster.Names()
	candidates := make([]string, 0, len(names))
	for _, n := range names {
		if n != exclude {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		candidates = names
	}

	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return candidates[e.rng.Intn(len(candidates))]
}

func (e *Engine) defaultCharacter() string {
	if names := e.roster.Names(); len(names) > 0 {
		return names[0]
	}
	return ""
}
