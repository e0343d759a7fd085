package command

import (
	"testing"

	"github.com/ashureev/pjsk-cards/internal/adjust"
	"github.com/ashureev/pjsk-cards/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Kinds(t *testing.T) {
	p := NewParser("/pjsk")
	tests := []struct {
		line string
		kind Kind
		text string
	}{
		{"/pjsk", KindStart, ""},
		{"pjsk", KindStart, ""},
		{"/pjsk.draw", KindDraw, ""},
		{"/pjsk.draw  你好 世界 ", KindDraw, "你好 世界"},
		{"/pjsk.取消", KindCancel, ""},
		{"/pjsk.列表", KindList, ""},
		{"/pjsk.分类", KindGroups, ""},
		{"/pjsk.角色 miku", KindDetail, "miku"},
		{"/pjsk.调整", KindGuide, ""},
		{"/pjsk.help", KindGuide, ""},
		{"5", KindInput, "5"},
		{"hello there", KindInput, "hello there"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, err := p.Parse(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, cmd.Kind)
			assert.Equal(t, tt.text, cmd.Text)
		})
	}
}

func TestParse_UnknownSubcommand(t *testing.T) {
	_, err := NewParser("/pjsk").Parse("/pjsk.飞")
	assert.True(t, domain.IsValidation(err))
}

func TestParseAdjust(t *testing.T) {
	tests := []struct {
		raw  string
		want adjust.Request
	}{
		{"文本 新的 文字", adjust.Request{Op: adjust.OpText, Text: "新的 文字"}},
		{"字号.大", adjust.Request{Op: adjust.OpFontSize, Mode: adjust.ModeIncrease}},
		{"FONT.Down", adjust.Request{Op: adjust.OpFontSize, Mode: adjust.ModeDecrease}},
		{"字号 48px", adjust.Request{Op: adjust.OpFontSize, Mode: adjust.ModeSet, Value: adjust.Float(48)}},
		{"字号 ＋50.7", adjust.Request{Op: adjust.OpFontSize, Mode: adjust.ModeSet, Value: adjust.Float(50)}},
		{"行距 1,8倍", adjust.Request{Op: adjust.OpLineSpacing, Mode: adjust.ModeSet, Value: adjust.Float(1.8)}},
		{"spacing.-", adjust.Request{Op: adjust.OpLineSpacing, Mode: adjust.ModeDecrease}},
		{"曲线", adjust.Request{Op: adjust.OpCurve, Mode: adjust.ModeToggle}},
		{"曲线 开", adjust.Request{Op: adjust.OpCurve, Mode: adjust.ModeOn}},
		{"curve.off", adjust.Request{Op: adjust.OpCurve, Mode: adjust.ModeOff}},
		{"曲线.未知", adjust.Request{Op: adjust.OpCurve, Mode: adjust.ModeToggle}},
		{"位置.上", adjust.Request{Op: adjust.OpPosition, Direction: adjust.Up}},
		{"位置 左 30", adjust.Request{Op: adjust.OpPosition, Direction: adjust.Left, Step: 30}},
		{"pos.→ 5", adjust.Request{Op: adjust.OpPosition, Direction: adjust.Right, Step: 5}},
		{"人物 -R", adjust.Request{Op: adjust.OpCharacter, Random: true}},
		{"人物 hatsune miku", adjust.Request{Op: adjust.OpCharacter, Character: "hatsune miku"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAdjust(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAdjust_Errors(t *testing.T) {
	tests := []struct {
		raw string
		msg string
	}{
		{"旋转 90", "未识别的子指令：旋转"},
		{"字号", "请提供字号数值，例如：字号 48。"},
		{"行距", "请提供行距数值，例如：行距 1.8。"},
		{"字号.巨大", "未识别的字号调整方式。"},
		{"行距.宽", "未识别的行距调整方式。"},
		{"字号 abc", "无法解析数值：abc"},
		{"位置", "请指定方向，例如：位置.上 或 位置 下。"},
		{"位置.上 0", "位移步长需为正整数。"},
		{"位置.上 -5", "位移步长需为正整数。"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			_, err := ParseAdjust(tt.raw)
			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.msg, ve.Message)
		})
	}
}
