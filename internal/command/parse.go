// Package command turns chat text into engine calls: the /pjsk command
// family, the /pjsk.调整 sub-commands and free-text replies to an
// interactive session.
package command

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/ashureev/pjsk-cards/internal/adjust"
	"github.com/ashureev/pjsk-cards/internal/domain"
)

// Kind classifies a chat line.
type Kind int

const (
	// KindInput is plain text; it only matters when a session is running.
	KindInput Kind = iota
	KindDraw
	KindAdjust
	KindGuide
	KindStart
	KindCancel
	KindList
	KindGroups
	KindDetail
)

// Command is one parsed chat line.
type Command struct {
	Kind    Kind
	Text    string
	Request adjust.Request
}

var subcommands = lookup(map[string][]string{
	"draw":   {"draw", "绘制"},
	"adjust": {"调整", "adjust"},
	"cancel": {"取消", "cancel"},
	"list":   {"列表", "list"},
	"groups": {"分类", "groups"},
	"detail": {"角色", "role", "character"},
	"help":   {"帮助", "help"},
})

var adjustCommands = lookup(map[string][]string{
	"text":         {"文本", "文字", "内容", "text", "message"},
	"font_size":    {"字号", "字体", "字", "font", "fontsize", "font-size"},
	"line_spacing": {"行距", "间距", "行间距", "spacing", "lines"},
	"curve":        {"曲线", "弧线", "曲线模式", "curve"},
	"position":     {"位置", "坐标", "offset", "pos"},
	"role":         {"人物", "角色", "立绘", "role", "avatar"},
})

var sizeVariants = lookup(map[string][]string{
	string(adjust.ModeIncrease): {"大", "增", "加", "+", "increase", "up", "plus"},
	string(adjust.ModeDecrease): {"小", "减", "降", "-", "decrease", "down", "minus"},
})

var curveVariants = lookup(map[string][]string{
	string(adjust.ModeOn):     {"开", "开启", "on", "true", "enable"},
	string(adjust.ModeOff):    {"关", "关闭", "off", "false", "disable"},
	string(adjust.ModeToggle): {"切换", "toggle", "switch"},
})

var directions = lookup(map[string][]string{
	string(adjust.Up):    {"上", "up", "u", "↑"},
	string(adjust.Down):  {"下", "down", "d", "↓"},
	string(adjust.Left):  {"左", "left", "l", "←"},
	string(adjust.Right): {"右", "right", "r", "→"},
})

type aliasTable map[string]string

func lookup(aliases map[string][]string) aliasTable {
	t := make(aliasTable)
	for canonical, names := range aliases {
		for _, n := range names {
			t[n] = canonical
			t[strings.ToLower(n)] = canonical
		}
	}
	return t
}

// find matches token exactly first, then lower-cased.
func (t aliasTable) find(token string) (string, bool) {
	s := strings.TrimSpace(token)
	if s == "" {
		return "", false
	}
	if v, ok := t[s]; ok {
		return v, true
	}
	v, ok := t[strings.ToLower(s)]
	return v, ok
}

// Parser recognizes commands that start with a prefix such as "/pjsk".
type Parser struct {
	base string
}

// NewParser creates a Parser. The leading slash of prefix is optional in
// chat input.
func NewParser(prefix string) *Parser {
	base := strings.TrimPrefix(strings.TrimSpace(prefix), "/")
	if base == "" {
		base = "pjsk"
	}
	return &Parser{base: base}
}

// Parse classifies line. Anything that is not a command comes back as
// KindInput with the line unchanged. An adjustment that cannot be parsed
// returns a *domain.ValidationError.
func (p *Parser) Parse(line string) (Command, error) {
	head, rest := splitFirst(strings.TrimSpace(line))
	name := strings.TrimPrefix(head, "/")

	if name == p.base {
		return Command{Kind: KindStart}, nil
	}
	sub, ok := strings.CutPrefix(name, p.base+".")
	if !ok {
		return Command{Kind: KindInput, Text: line}, nil
	}

	canonical, ok := subcommands.find(sub)
	if !ok {
		return Command{}, domain.Invalid("command", "未识别的指令：%s", head)
	}
	switch canonical {
	case "draw":
		return Command{Kind: KindDraw, Text: rest}, nil
	case "cancel":
		return Command{Kind: KindCancel}, nil
	case "list":
		return Command{Kind: KindList}, nil
	case "groups":
		return Command{Kind: KindGroups}, nil
	case "detail":
		return Command{Kind: KindDetail, Text: rest}, nil
	case "help":
		return Command{Kind: KindGuide}, nil
	}

	if rest == "" {
		return Command{Kind: KindGuide}, nil
	}
	req, err := ParseAdjust(rest)
	if err != nil {
		return Command{}, err
	}
	return Command{Kind: KindAdjust, Request: req}, nil
}

// ParseAdjust parses the argument of /pjsk.调整, for example "字号.大",
// "位置 左 30" or "人物 -r".
func ParseAdjust(raw string) (adjust.Request, error) {
	first, remainder := splitFirst(strings.TrimSpace(raw))
	token, variants := splitToken(first)

	key, ok := adjustCommands.find(token)
	if !ok {
		return adjust.Request{}, domain.Invalid("command", "未识别的子指令：%s", token)
	}
	if key == "text" {
		return adjust.Request{Op: adjust.OpText, Text: remainder}, nil
	}

	args := strings.Fields(remainder)
	variant := ""
	if len(variants) > 0 {
		variant = variants[0]
	}

	switch key {
	case "font_size":
		mode, value, err := numeric(variant, args, "字号", parseInt)
		return adjust.Request{Op: adjust.OpFontSize, Mode: mode, Value: value}, err
	case "line_spacing":
		mode, value, err := numeric(variant, args, "行距", parseFloat)
		return adjust.Request{Op: adjust.OpLineSpacing, Mode: mode, Value: value}, err
	case "curve":
		mode, ok := curveVariants.find(variant)
		if !ok && len(args) > 0 {
			mode, ok = curveVariants.find(args[0])
		}
		if !ok {
			mode = string(adjust.ModeToggle)
		}
		return adjust.Request{Op: adjust.OpCurve, Mode: adjust.Mode(mode)}, nil
	case "position":
		return parsePosition(variant, args)
	default:
		if len(args) > 0 && strings.ToLower(args[0]) == "-r" {
			return adjust.Request{Op: adjust.OpCharacter, Random: true}, nil
		}
		return adjust.Request{Op: adjust.OpCharacter, Character: remainder}, nil
	}
}

func numeric(variant string, args []string, label string, parse func(string) (float64, error)) (adjust.Mode, *float64, error) {
	if variant != "" {
		mode, ok := sizeVariants.find(variant)
		if !ok {
			return "", nil, domain.Invalid("mode", "未识别的%s调整方式。", label)
		}
		return adjust.Mode(mode), nil, nil
	}
	if len(args) == 0 {
		example := "字号 48"
		if label == "行距" {
			example = "行距 1.8"
		}
		return "", nil, domain.Invalid("value", "请提供%s数值，例如：%s。", label, example)
	}
	v, err := parse(args[0])
	if err != nil {
		return "", nil, err
	}
	return adjust.ModeSet, &v, nil
}

func parsePosition(variant string, args []string) (adjust.Request, error) {
	dir, ok := directions.find(variant)
	if !ok && len(args) > 0 {
		if dir, ok = directions.find(args[0]); ok {
			args = args[1:]
		}
	}
	if !ok {
		return adjust.Request{}, domain.Invalid("direction", "请指定方向，例如：位置.上 或 位置 下。")
	}
	req := adjust.Request{Op: adjust.OpPosition, Direction: adjust.Direction(dir)}
	if len(args) > 0 {
		v, err := parseInt(args[0])
		if err != nil {
			return adjust.Request{}, err
		}
		if v <= 0 {
			return adjust.Request{}, domain.Invalid("step", "位移步长需为正整数。")
		}
		req.Step = int(v)
	}
	return req, nil
}

// parseInt accepts "48", "48px", "＋4" and "48.9" (truncated).
func parseInt(raw string) (float64, error) {
	s := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "px", "")
	s = strings.NewReplacer("＋", "+", "－", "-").Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, domain.Invalid("value", "无法解析数值：%s", raw)
	}
	// Saturate before the engine truncates so absurd inputs stay finite.
	const limit = 1 << 30
	v = max(min(v, limit), -limit)
	return float64(int(v)), nil
}

// parseFloat accepts "1.8", "1,8", "1.8倍" and "1.8x".
func parseFloat(raw string) (float64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("倍", "", "x", "", ",", ".").Replace(s)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) {
		return 0, domain.Invalid("value", "无法解析数值：%s", raw)
	}
	return v, nil
}

func splitFirst(s string) (string, string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

func splitToken(token string) (string, []string) {
	var pieces []string
	for _, seg := range strings.Split(token, ".") {
		if seg != "" {
			pieces = append(pieces, seg)
		}
	}
	if len(pieces) == 0 {
		return "", nil
	}
	return pieces[0], pieces[1:]
}
