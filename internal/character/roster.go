package character

import (
	"fmt"
	"strings"
)

var defaultRoster = []Entry{
	{Name: "初音未来", Aliases: []string{"初音", "miku", "hatsune", "hatsune miku"}},
	{Name: "星乃一歌", Aliases: []string{"一歌", "ichika"}},
	{Name: "天马咲希", Aliases: []string{"咲希", "saki"}},
	{Name: "望月穗波", Aliases: []string{"穗波", "honami"}},
	{Name: "日野森志步", Aliases: []string{"志步", "shiho"}},
	{Name: "东云彰人", Aliases: []string{"彰人", "akito"}},
	{Name: "青柳冬弥", Aliases: []string{"冬弥", "toya"}},
	{Name: "小豆泽心羽", Aliases: []string{"心羽", "kohane"}},
}

var defaultGroups = []Group{
	{Name: "Leo/need", Members: []string{"星乃一歌", "天马咲希", "望月穗波", "日野森志步"}},
	{Name: "MORE MORE JUMP!", Members: []string{"初音未来"}},
	{Name: "Vivid BAD SQUAD", Members: []string{"东云彰人", "青柳冬弥"}},
	{Name: "Nightcord at 25:00", Members: []string{"小豆泽心羽"}},
}

// Default returns the stock eight-character catalog.
func Default() *Catalog {
	c, err := NewCatalog(defaultRoster, defaultGroups)
	if err != nil {
		panic("character: invalid default roster: " + err.Error())
	}
	return c
}

// FormatList renders the numbered roster used by the selection prompt.
func FormatList(c *Catalog) string {
	lines := []string{fmt.Sprintf("📋 所有角色（共 %d 人）：", c.Len()), ""}
	for i, name := range c.Names() {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, name))
	}
	return strings.Join(lines, "\n")
}

// FormatGroups renders characters organized by group.
func FormatGroups(c *Catalog) string {
	lines := []string{"🎭 角色分类：", ""}
	for _, g := range c.Groups() {
		lines = append(lines, "【"+g.Name+"】")
		for _, m := range g.Members {
			lines = append(lines, "  • "+m)
		}
		lines = append(lines, "")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// FormatDetail renders one character's aliases and group.
func FormatDetail(e Entry) string {
	lines := []string{"👤 角色信息 - " + e.Name, ""}
	lines = append(lines, "别名："+strings.Join(e.Aliases, ", "))
	if e.Group != "" {
		lines = append(lines, "所属组合："+e.Group)
	}
	lines = append(lines, "", "发送 /pjsk 开始创建表情包吧！")
	return strings.Join(lines, "\n")
}
