package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Defaults for a freshly drawn card.
const (
	DefaultText        = "这是一个新的卡面"
	DefaultFontSize    = 42
	DefaultLineSpacing = 1.20
)

// RenderState is the full set of tunable parameters for one card.
type RenderState struct {
	Text         string  `json:"text"`
	FontSize     int     `json:"font_size"`
	LineSpacing  float64 `json:"line_spacing"`
	CurveEnabled bool    `json:"curve_enabled"`
	OffsetX      int     `json:"offset_x"`
	OffsetY      int     `json:"offset_y"`
	Character    string  `json:"role"`
}

// Snapshot is one persisted record: the full state plus bookkeeping.
type Snapshot struct {
	Identity  Identity
	State     RenderState
	UpdatedAt time.Time
	Version   uint64
}

// Limits holds the validation ranges and steps for every numeric field.
// Operators retune them through the limits file; nothing else hard-codes them.
type Limits struct {
	FontSizeMin  int `mapstructure:"font_size_min"`
	FontSizeMax  int `mapstructure:"font_size_max"`
	FontSizeStep int `mapstructure:"font_size_step"`

	LineSpacingMin  float64 `mapstructure:"line_spacing_min"`
	LineSpacingMax  float64 `mapstructure:"line_spacing_max"`
	LineSpacingStep float64 `mapstructure:"line_spacing_step"`

	OffsetMin  int `mapstructure:"offset_min"`
	OffsetMax  int `mapstructure:"offset_max"`
	OffsetStep int `mapstructure:"offset_step"`

	MaxTextLength int `mapstructure:"max_text_length"`
}

// DefaultLimits returns the stock ranges.
func DefaultLimits() Limits {
	return Limits{
		FontSizeMin:     18,
		FontSizeMax:     84,
		FontSizeStep:    4,
		LineSpacingMin:  0.6,
		LineSpacingMax:  3.0,
		LineSpacingStep: 0.1,
		OffsetMin:       -240,
		OffsetMax:       240,
		OffsetStep:      12,
		MaxTextLength:   120,
	}
}

// Validate checks that the limits themselves are coherent and that the
// card defaults fall inside them.
func (l Limits) Validate() error {
	switch {
	case l.FontSizeMin > l.FontSizeMax:
		return fmt.Errorf("font_size_min %d > font_size_max %d", l.FontSizeMin, l.FontSizeMax)
	case l.FontSizeStep <= 0:
		return fmt.Errorf("font_size_step must be > 0")
	case l.LineSpacingMin > l.LineSpacingMax:
		return fmt.Errorf("line_spacing_min %.2f > line_spacing_max %.2f", l.LineSpacingMin, l.LineSpacingMax)
	case l.LineSpacingStep <= 0:
		return fmt.Errorf("line_spacing_step must be > 0")
	case l.OffsetMin > l.OffsetMax:
		return fmt.Errorf("offset_min %d > offset_max %d", l.OffsetMin, l.OffsetMax)
	case l.OffsetStep <= 0:
		return fmt.Errorf("offset_step must be > 0")
	case l.MaxTextLength <= 0:
		return fmt.Errorf("max_text_length must be > 0")
	case l.OffsetMin > 0 || l.OffsetMax < 0:
		return fmt.Errorf("offset range [%d, %d] must contain 0", l.OffsetMin, l.OffsetMax)
	}
	return nil
}

// NewState builds a default card for the given character, clamped into l.
func (l Limits) NewState(character string) RenderState {
	return l.Clamp(RenderState{
		Text:        DefaultText,
		FontSize:    DefaultFontSize,
		LineSpacing: DefaultLineSpacing,
		Character:   character,
	})
}

// ClampFontSize saturates v into the font size range.
func (l Limits) ClampFontSize(v int) int {
	return clampInt(v, l.FontSizeMin, l.FontSizeMax)
}

// ClampLineSpacing saturates v into the line spacing range, rounded to two
// decimals so repeated steps do not accumulate float drift.
func (l Limits) ClampLineSpacing(v float64) float64 {
	if math.IsNaN(v) {
		return l.LineSpacingMin
	}
	return RoundSpacing(math.Max(l.LineSpacingMin, math.Min(l.LineSpacingMax, RoundSpacing(v))))
}

// ClampOffset saturates v into the offset range.
func (l Limits) ClampOffset(v int) int {
	return clampInt(v, l.OffsetMin, l.OffsetMax)
}

// Clamp returns s with every numeric field saturated into range and the
// text truncated to MaxTextLength code points.
func (l Limits) Clamp(s RenderState) RenderState {
	s.FontSize = l.ClampFontSize(s.FontSize)
	s.LineSpacing = l.ClampLineSpacing(s.LineSpacing)
	s.OffsetX = l.ClampOffset(s.OffsetX)
	s.OffsetY = l.ClampOffset(s.OffsetY)
	if utf8.RuneCountInString(s.Text) > l.MaxTextLength {
		s.Text = string([]rune(s.Text)[:l.MaxTextLength])
	}
	return s
}

// CheckText validates user-supplied card text and returns it trimmed.
func (l Limits) CheckText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", Invalid("text", "请提供要更新的文本内容。")
	}
	if n := utf8.RuneCountInString(trimmed); n > l.MaxTextLength {
		return "", Invalid("text", "文本长度不可超过 %d 个字符（当前 %d）。", l.MaxTextLength, n)
	}
	return trimmed, nil
}

// Check reports the first field of s that lies outside l.
func (l Limits) Check(s RenderState) error {
	switch {
	case s.FontSize < l.FontSizeMin || s.FontSize > l.FontSizeMax:
		return Invalid("font_size", "%d outside [%d, %d]", s.FontSize, l.FontSizeMin, l.FontSizeMax)
	case math.IsNaN(s.LineSpacing) || s.LineSpacing < l.LineSpacingMin || s.LineSpacing > l.LineSpacingMax:
		return Invalid("line_spacing", "%.2f outside [%.2f, %.2f]", s.LineSpacing, l.LineSpacingMin, l.LineSpacingMax)
	case s.OffsetX < l.OffsetMin || s.OffsetX > l.OffsetMax:
		return Invalid("offset_x", "%d outside [%d, %d]", s.OffsetX, l.OffsetMin, l.OffsetMax)
	case s.OffsetY < l.OffsetMin || s.OffsetY > l.OffsetMax:
		return Invalid("offset_y", "%d outside [%d, %d]", s.OffsetY, l.OffsetMin, l.OffsetMax)
	case utf8.RuneCountInString(s.Text) > l.MaxTextLength:
		return Invalid("text", "longer than %d characters", l.MaxTextLength)
	case s.Character == "":
		return Invalid("role", "character is empty")
	}
	return nil
}

// RoundSpacing rounds to two decimals.
func RoundSpacing(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
