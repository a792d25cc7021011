package assembler

import (
	"slices"

	"github.com/ivgotcrazy/jukey-sub001/element"
)

// roleEdges is the fixed role adjacency graph. Roots are listed first; the order of
// roots and successors fixes the order of enumerated paths.
var roleEdges = []struct {
	from element.Role
	to   []element.Role
}{
	{element.RoleCapturer, []element.Role{element.RoleConverter}},
	{element.RoleDemuxer, []element.Role{element.RoleConverter}},
	{element.RoleProxy, []element.Role{element.RoleConverter}},
	{element.RoleReceiver, []element.Role{element.RoleDecoder}},
	{element.RoleTester, []element.Role{element.RoleConverter}},
	{element.RoleMixer, []element.Role{element.RoleEncoder, element.RolePlayer}},
	{element.RoleDecoder, []element.Role{element.RoleConverter}},
	{element.RoleConverter, []element.Role{element.RoleEncoder, element.RolePlayer}},
	{element.RoleEncoder, []element.Role{element.RoleMuxer, element.RoleSender}},
}

// roleGraph holds the adjacency list and every root-to-leaf path
type roleGraph struct {
	order []element.Role
	next  map[element.Role][]element.Role
	paths [][]element.Role
}

func newRoleGraph() *roleGraph {
	g := &roleGraph{next: make(map[element.Role][]element.Role)}
	incoming := make(map[element.Role]bool)
	for _, e := range roleEdges {
		g.order = append(g.order, e.from)
		g.next[e.from] = e.to
		for _, to := range e.to {
			incoming[to] = true
		}
	}

	for _, r := range g.order {
		if !incoming[r] {
			g.walk([]element.Role{r})
		}
	}
	return g
}

// walk extends path depth-first until a role without successors is reached
func (g *roleGraph) walk(path []element.Role) {
	last := path[len(path)-1]
	succ := g.next[last]
	if len(succ) == 0 {
		g.paths = append(g.paths, slices.Clone(path))
		return
	}
	for _, r := range succ {
		if slices.Contains(path, r) {
			continue
		}
		g.walk(append(path, r))
	}
}

// between returns the roles strictly between begin and end on the first path
// holding both in that order
func (g *roleGraph) between(begin, end element.Role) ([]element.Role, bool) {
	if begin == end {
		return nil, false
	}
	for _, path := range g.paths {
		i := slices.Index(path, begin)
		if i < 0 {
			continue
		}
		j := slices.Index(path[i+1:], end)
		if j < 0 {
			continue
		}
		return slices.Clone(path[i+1 : i+1+j]), true
	}
	return nil, false
}
