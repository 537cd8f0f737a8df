package regalloc

import "firmgo/internal/ir"

// InterferenceGraph is a neighbor-list representation: memory linear in
// the number of actual interferences, with "do a and b interfere"
// answered by a small per-node set rather than a dense bitset.
type InterferenceGraph struct {
	Class     Class
	Nodes     []*ir.Node
	neighbors map[*ir.Node]map[*ir.Node]bool
	// Affinity edges collected in the same pass: copies and Phi inputs.
	// Each copy or Phi-input pairing adds 1 to its edge's weight; block
	// execution frequency and loop depth are not taken into account.
	Affinity map[*ir.Node]map[*ir.Node]uint32
}

func (ig *InterferenceGraph) addInterference(a, b *ir.Node) {
	if a == b {
		return
	}
	if ig.neighbors[a] == nil {
		ig.neighbors[a] = map[*ir.Node]bool{}
	}
	if ig.neighbors[b] == nil {
		ig.neighbors[b] = map[*ir.Node]bool{}
	}
	ig.neighbors[a][b] = true
	ig.neighbors[b][a] = true
}

// Interferes reports whether a and b's live ranges were simultaneously
// open at any point during construction.
func (ig *InterferenceGraph) Interferes(a, b *ir.Node) bool {
	return ig.neighbors[a] != nil && ig.neighbors[a][b]
}

// Neighbors returns a's interference neighbors.
func (ig *InterferenceGraph) Neighbors(a *ir.Node) []*ir.Node {
	out := make([]*ir.Node, 0, len(ig.neighbors[a]))
	for n := range ig.neighbors[a] {
		out = append(out, n)
	}
	return out
}

func (ig *InterferenceGraph) addAffinity(a, b *ir.Node, weight uint32) {
	if a == b || a == nil || b == nil {
		return
	}
	if ig.Affinity[a] == nil {
		ig.Affinity[a] = map[*ir.Node]uint32{}
	}
	if ig.Affinity[b] == nil {
		ig.Affinity[b] = map[*ir.Node]uint32{}
	}
	ig.Affinity[a][b] += weight
	ig.Affinity[b][a] += weight
}

// BuildInterference walks each block from its end (liveOut) backward to
// its start, opening a def's range against whatever is currently live
// and closing it there, and recording the affinity edges (copies, Phi
// inputs) heur4 will later try to merge without splitting an
// interference.
func BuildInterference(g *ir.Graph, order map[*ir.Node][]*ir.Node, live *Liveness, class Class) *InterferenceGraph {
	ig := &InterferenceGraph{
		Class:     class,
		neighbors: map[*ir.Node]map[*ir.Node]bool{},
		Affinity:  map[*ir.Node]map[*ir.Node]uint32{},
	}
	seen := map[*ir.Node]bool{}

	for _, b := range blockList(g) {
		open := map[*ir.Node]bool{}
		for v := range live.LiveOut[b] {
			open[v] = true
		}
		blockOrder := order[b]
		for i := len(blockOrder) - 1; i >= 0; i-- {
			n := blockOrder[i]
			if inClass(n, class) {
				if !seen[n] {
					seen[n] = true
					ig.Nodes = append(ig.Nodes, n)
				}
				for v := range open {
					ig.addInterference(n, v)
				}
				delete(open, n)
			}
			if n.Op == ir.OpPhi {
				continue // phi uses are charged to predecessors, see ComputeLiveness
			}
			for _, a := range n.Args {
				if a != nil && inClass(a, class) {
					open[a] = true
				}
			}
			weight := uint32(1)
			if n.Op == ir.OpCopy && len(n.Args) == 1 && inClass(n.Args[0], class) && inClass(n, class) {
				ig.addAffinity(n, n.Args[0], weight)
			}
		}
		for _, phi := range b.Phis {
			if !inClass(phi, class) {
				continue
			}
			for _, a := range phi.Args {
				if a != nil && inClass(a, class) {
					ig.addAffinity(phi, a, 1)
				}
			}
		}
	}
	return ig
}
