package manifest

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// Static is an immutable in-memory Lookup.
type Static struct {
	defs     map[uint32]Definition
	plugSets map[uint32]PlugSet
	byName   map[string][]uint32
}

// NewStatic indexes the given definitions and plug sets.
func NewStatic(defs []Definition, plugSets []PlugSet) *Static {
	s := &Static{
		defs:     make(map[uint32]Definition, len(defs)),
		plugSets: make(map[uint32]PlugSet, len(plugSets)),
		byName:   make(map[string][]uint32),
	}
	for _, def := range defs {
		def.Sockets = slices.Clone(def.Sockets)
		slices.SortFunc(def.Sockets, func(a, b SocketEntry) int { return a.Index - b.Index })
		s.defs[def.Hash] = def
		if key := nameKey(def.Name); key != "" {
			s.byName[key] = append(s.byName[key], def.Hash)
		}
	}
	for key := range s.byName {
		slices.Sort(s.byName[key])
	}
	for _, ps := range plugSets {
		ps.Plugs = slices.Clone(ps.Plugs)
		s.plugSets[ps.Hash] = ps
	}
	return s
}

func (s *Static) Resolve(hash uint32) (Definition, bool) {
	def, ok := s.defs[hash]
	return def, ok
}

func (s *Static) PlugSet(hash uint32) (PlugSet, bool) {
	ps, ok := s.plugSets[hash]
	return ps, ok
}

// FindByName matches names with Unicode case folding and collapsed
// whitespace.
func (s *Static) FindByName(name string) []Definition {
	hashes := s.byName[nameKey(name)]
	out := make([]Definition, 0, len(hashes))
	for _, h := range hashes {
		out = append(out, s.defs[h])
	}
	return out
}

// Len returns the number of item definitions.
func (s *Static) Len() int { return len(s.defs) }

// Definitions returns every definition ordered by hash.
func (s *Static) Definitions() []Definition {
	out := make([]Definition, 0, len(s.defs))
	for _, def := range s.defs {
		out = append(out, def)
	}
	slices.SortFunc(out, func(a, b Definition) int {
		switch {
		case a.Hash < b.Hash:
			return -1
		case a.Hash > b.Hash:
			return 1
		}
		return 0
	})
	return out
}

func nameKey(name string) string {
	return folder.String(strings.Join(strings.Fields(name), " "))
}
