// Package group resolves configured dictionary groups against the active
// dictionary set.
package group

import (
	"strings"

	"github.com/sagerenn/gdengine/internal/config"
	"github.com/sagerenn/gdengine/internal/dict"
)

// Group is an immutable, ordered view of some loaded dictionaries. Version
// changes whenever the set or the group configuration is rebuilt.
type Group struct {
	Name    string
	Version uint64
	Dicts   []dict.Dictionary
}

// IDs returns the member identifiers in order.
func (g Group) IDs() []dict.ID {
	out := make([]dict.ID, 0, len(g.Dicts))
	for _, d := range g.Dicts {
		out = append(out, d.ID())
	}
	return out
}

// Rebuild resolves every configured group against set. References are
// identifiers or display names; a name resolves only when exactly one
// dictionary carries it. Unresolved references are dropped and repeated
// members keep their first position.
func Rebuild(set []dict.Dictionary, cfg []config.GroupConfig, version uint64) []Group {
	byID := make(map[dict.ID]dict.Dictionary, len(set))
	byName := make(map[string][]dict.Dictionary, len(set))
	for _, d := range set {
		byID[d.ID()] = d
		byName[d.Name()] = append(byName[d.Name()], d)
	}

	groups := make([]Group, 0, len(cfg))
	for _, gc := range cfg {
		g := Group{Name: strings.TrimSpace(gc.Name), Version: version}
		seen := make(map[dict.ID]bool, len(gc.Dictionaries))
		for _, ref := range gc.Dictionaries {
			ref = strings.TrimSpace(ref)
			d, ok := byID[dict.ID(ref)]
			if !ok {
				if named := byName[ref]; len(named) == 1 {
					d, ok = named[0], true
				}
			}
			if !ok || seen[d.ID()] {
				continue
			}
			seen[d.ID()] = true
			g.Dicts = append(g.Dicts, d)
		}
		groups = append(groups, g)
	}
	return groups
}

// Find returns the group called name.
func Find(groups []Group, name string) (Group, bool) {
	for _, g := range groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}
