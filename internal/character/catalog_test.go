package character

import (
	"strconv"
	"strings"
	"testing"
)

func TestCatalog_SelectByIndex(t *testing.T) {
	c := Default()
	expected := []string{
		"初音未来", "星乃一歌", "天马咲希", "望月穗波",
		"日野森志步", "东云彰人", "青柳冬弥", "小豆泽心羽",
	}
	for i, want := range expected {
		got, ok := c.Select(" " + strconv.Itoa(i+1) + " ")
		if !ok || got != want {
			t.Errorf("Expected index %d to select %s, got %q (ok=%v)", i+1, want, got, ok)
		}
	}
}

func TestCatalog_SelectOutOfRange(t *testing.T) {
	c := Default()
	for _, in := range []string{"0", "9", "10", "-1", "100"} {
		if got, ok := c.Select(in); ok {
			t.Errorf("Expected %q to be rejected, got %q", in, got)
		}
	}
}

func TestCatalog_SelectRejectsSignedAndPaddedIndices(t *testing.T) {
	c := Default()
	for _, in := range []string{"+5", "05", "001", "+1", "1.0", "１"} {
		if got, ok := c.Select(in); ok {
			t.Errorf("Expected %q to be rejected, got %q", in, got)
		}
	}
}

func TestCatalog_ResolveAliases(t *testing.T) {
	c := Default()
	cases := map[string]string{
		"miku":          "初音未来",
		"MIKU":          "初音未来",
		"MiKu":          "初音未来",
		"Hatsune  Miku": "初音未来",
		"Míku":          "初音未来",
		"初音":            "初音未来",
		"ichika":        "星乃一歌",
		"ICHIKA":        "星乃一歌",
		"冬弥":            "青柳冬弥",
		"kohane":        "小豆泽心羽",
		"小豆泽心羽":         "小豆泽心羽",
	}
	for in, want := range cases {
		got, ok := c.Resolve(in)
		if !ok || got != want {
			t.Errorf("Expected %q to resolve to %s, got %q (ok=%v)", in, want, got, ok)
		}
	}
}

func TestCatalog_ResolveRejectsUnknown(t *testing.T) {
	c := Default()
	for _, in := range []string{"", "   ", "unknown", "不存在的角色", "abc123"} {
		if got, ok := c.Resolve(in); ok {
			t.Errorf("Expected %q to be unresolvable, got %q", in, got)
		}
	}
}

func TestCatalog_DetailIncludesGroup(t *testing.T) {
	c := Default()
	e, ok := c.Detail("akito")
	if !ok {
		t.Fatal("Expected akito to resolve")
	}
	if e.Group != "Vivid BAD SQUAD" {
		t.Errorf("Expected group Vivid BAD SQUAD, got %q", e.Group)
	}
	text := FormatDetail(e)
	if !strings.Contains(text, "东云彰人") || !strings.Contains(text, "Vivid BAD SQUAD") {
		t.Errorf("Unexpected detail text: %s", text)
	}
}

func TestCatalog_RosterIsCopied(t *testing.T) {
	c := Default()
	r := c.Roster()
	r[0].Name = "mutated"
	if got, _ := c.ByIndex(1); got != "初音未来" {
		t.Errorf("Expected roster to be immutable, got %q", got)
	}
}

func TestNewCatalog_RejectsDuplicates(t *testing.T) {
	_, err := NewCatalog([]Entry{{Name: "a"}, {Name: "a"}}, nil)
	if err == nil {
		t.Fatal("Expected duplicate names to be rejected")
	}
}

func TestFormatList(t *testing.T) {
	text := FormatList(Default())
	if !strings.Contains(text, "共 8 人") || !strings.Contains(text, "5. 日野森志步") {
		t.Errorf("Unexpected list text: %s", text)
	}
}
