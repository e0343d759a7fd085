// Package card builds the user-facing texts for a card and delivers rendered
// results to dispatchers.
package card

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ashureev/pjsk-cards/internal/domain"
)

// QuickActionLine lists the most common one-shot adjustments.
const QuickActionLine = "快捷操作：/pjsk.调整 字号.大 ｜ 字号.小 ｜ 行距.大 ｜ 行距.小 ｜ 位置.上 ｜ 位置.下 ｜ 位置.左 ｜ 位置.右 ｜ 曲线 切换"

const drawHint = "发送 /pjsk.draw 创建或刷新卡面，或使用 /pjsk.调整 获取指令帮助。"

// Headlines for draw results.
const (
	HeadlineCreated  = "🎨 已完成初始渲染"
	HeadlineRerender = "🎨 已重新渲染"
	HeadlineFlowDone = "🎉 卡面创建完成"
)

// Summary renders the full configuration under a headline.
func Summary(st domain.RenderState, headline string) string {
	lines := []string{headline, ""}
	lines = append(lines, StateLines(st)...)
	lines = append(lines, "", QuickActionLine)
	return strings.Join(lines, "\n")
}

// StateLines lists every field with its current value.
func StateLines(st domain.RenderState) []string {
	curve := "关闭"
	if st.CurveEnabled {
		curve = "开启"
	}
	return []string{
		"文本：" + st.Text,
		fmt.Sprintf("字号：%dpx", st.FontSize),
		fmt.Sprintf("行距：%.2f", st.LineSpacing),
		"曲线：" + curve,
		fmt.Sprintf("位置：X %d / Y %d", st.OffsetX, st.OffsetY),
		"人物：" + st.Character,
	}
}

// Guidance explains the adjustment sub-commands.
func Guidance() string {
	return strings.Join([]string{
		"pjsk.调整 指令指南：",
		"• 文本 <内容> —— 更新显示文本。",
		"• 字号 <数值> —— 设置字号；字号.大 / 字号.小 调整字号。",
		"• 行距 <数值> —— 设置行距；行距.大 / 行距.小 调整间距。",
		"• 曲线 [开|关|切换] —— 开关曲线文本效果。",
		"• 位置.<上|下|左|右> [步长] —— 调整文本位置。",
		"• 人物 <名称> —— 切换立绘；人物 -r 随机选择。",
		"",
		"发送 /pjsk 可按步骤选择角色并输入文本。",
		"",
		QuickActionLine,
	}, "\n")
}

// ErrorText turns an engine error into the message shown to the user.
func ErrorText(err error) string {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		return failure(ve.Message)
	case errors.Is(err, domain.ErrNoState):
		return failure("未找到历史渲染，请先执行 /pjsk.draw。")
	case errors.Is(err, domain.ErrSessionExpired):
		return "⌛ 操作已超时，请重新发送 /pjsk 开始。"
	case errors.Is(err, domain.ErrNoActiveSession):
		return "当前没有进行中的创建流程，发送 /pjsk 开始。"
	case errors.Is(err, domain.ErrInvalidIdentity):
		return failure("无法识别当前会话，请稍后重试。")
	case errors.Is(err, domain.ErrRenderFailed):
		return failure("渲染失败，配置已保存，请稍后发送 /pjsk.draw 重试。")
	}
	return failure("处理指令时出现错误，请稍后重试。")
}

func failure(msg string) string {
	return strings.Join([]string{"⚠️ " + msg, "", drawHint, "", QuickActionLine}, "\n")
}

// CharacterPrompt opens the interactive flow.
func CharacterPrompt(roster []string, timeout time.Duration) string {
	lines := []string{
		fmt.Sprintf("🎨 开始创建卡面！请在 %d 秒内回复角色序号（1-%d）或名称：", int(timeout.Seconds()), len(roster)),
		"",
	}
	for i, name := range roster {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, name))
	}
	lines = append(lines, "", "发送 /pjsk.取消 可随时退出。")
	return strings.Join(lines, "\n")
}

// TextPrompt asks for the card text once a character is chosen.
func TextPrompt(character string, timeout time.Duration, maxLen int) string {
	return fmt.Sprintf("✅ 已选择 %s。请在 %d 秒内发送卡面文本（不超过 %d 个字符）。",
		character, int(timeout.Seconds()), maxLen)
}

// CharacterRetry is shown when the selection did not resolve.
func CharacterRetry(input string, rosterLen int) string {
	return fmt.Sprintf("❓ 未识别的角色：%s。请回复 1-%d 的序号或角色名称。", input, rosterLen)
}

// Cancelled confirms an explicit cancel.
const Cancelled = "🛑 已取消创建流程。"
