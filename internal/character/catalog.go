// Package character provides the immutable character roster and the alias
// resolver used by the draw flow and the adjustment engine.
package character

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Entry is one selectable character.
type Entry struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
	Group   string   `json:"group,omitempty"`
}

// Group is a named unit of characters.
type Group struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// Catalog is an immutable lookup table. Build one with NewCatalog or use
// Default; it is safe for concurrent use.
type Catalog struct {
	roster []Entry
	groups []Group
	exact  map[string]string
	folded map[string]string
}

// NewCatalog builds a catalog from an ordered roster and its groups. Native
// names and aliases match exactly; ASCII aliases additionally match after
// case and diacritic folding.
func NewCatalog(roster []Entry, groups []Group) (*Catalog, error) {
	if len(roster) == 0 {
		return nil, fmt.Errorf("roster is empty")
	}
	c := &Catalog{
		roster: make([]Entry, len(roster)),
		groups: make([]Group, len(groups)),
		exact:  make(map[string]string),
		folded: make(map[string]string),
	}
	memberOf := make(map[string]string)
	for i, g := range groups {
		c.groups[i] = Group{Name: g.Name, Members: append([]string(nil), g.Members...)}
		for _, m := range g.Members {
			memberOf[m] = g.Name
		}
	}
	for i, e := range roster {
		if e.Name == "" {
			return nil, fmt.Errorf("roster entry %d has no name", i+1)
		}
		if _, dup := c.exact[e.Name]; dup {
			return nil, fmt.Errorf("duplicate roster name %q", e.Name)
		}
		entry := Entry{Name: e.Name, Aliases: append([]string(nil), e.Aliases...), Group: e.Group}
		if entry.Group == "" {
			entry.Group = memberOf[e.Name]
		}
		c.roster[i] = entry

		c.exact[e.Name] = e.Name
		for _, alias := range append([]string{e.Name}, e.Aliases...) {
			c.exact[alias] = e.Name
			if isASCII(alias) {
				c.folded[fold(alias)] = e.Name
			}
		}
	}
	return c, nil
}

// Resolve maps raw input to a canonical name.
func (c *Catalog) Resolve(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if name, ok := c.exact[s]; ok {
		return name, true
	}
	name, ok := c.folded[fold(s)]
	return name, ok
}

// ByIndex returns the n-th roster entry, 1-based.
func (c *Catalog) ByIndex(n int) (string, bool) {
	if n < 1 || n > len(c.roster) {
		return "", false
	}
	return c.roster[n-1].Name, true
}

// Select accepts either a 1-based roster index written as plain digits or
// anything Resolve accepts. Signs and leading zeros are not indices.
func (c *Catalog) Select(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if isIndex(s) {
		n, err := strconv.Atoi(s)
		if err != nil {
			return "", false
		}
		return c.ByIndex(n)
	}
	return c.Resolve(s)
}

func isIndex(s string) bool {
	if s == "" || s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Len returns the roster size.
func (c *Catalog) Len() int { return len(c.roster) }

// Names returns the roster names in order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.roster))
	for i, e := range c.roster {
		out[i] = e.Name
	}
	return out
}

// Roster returns a copy of the ordered roster.
func (c *Catalog) Roster() []Entry {
	out := make([]Entry, len(c.roster))
	for i, e := range c.roster {
		out[i] = Entry{Name: e.Name, Aliases: append([]string(nil), e.Aliases...), Group: e.Group}
	}
	return out
}

// Groups returns a copy of the groups in declaration order.
func (c *Catalog) Groups() []Group {
	out := make([]Group, len(c.groups))
	for i, g := range c.groups {
		out[i] = Group{Name: g.Name, Members: append([]string(nil), g.Members...)}
	}
	return out
}

// Detail looks up a character by any accepted input.
func (c *Catalog) Detail(raw string) (Entry, bool) {
	name, ok := c.Select(raw)
	if !ok {
		return Entry{}, false
	}
	for _, e := range c.roster {
		if e.Name == name {
			return Entry{Name: e.Name, Aliases: append([]string(nil), e.Aliases...), Group: e.Group}, true
		}
	}
	return Entry{}, false
}

// fold lower-cases, strips combining marks and collapses inner whitespace.
// Transformers and casers are stateful, so each call builds its own.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(cases.Fold().String(out)), " ")
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return false
		}
	}
	return true
}
