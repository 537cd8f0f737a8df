package regalloc

import "firmgo/internal/ir"

// Liveness holds, per block, the set of values of one register class
// live at block entry and block exit.
type Liveness struct {
	LiveIn  map[*ir.Node]map[*ir.Node]bool
	LiveOut map[*ir.Node]map[*ir.Node]bool
}

// ComputeLiveness runs the standard backward iterative dataflow fixpoint
// over g's blocks, restricted to values of class. A Phi's inputs are
// attributed to the matching predecessor's live_out rather than the
// Phi's own block's live_in, per spec: a Phi argument is "used" along
// the incoming edge, not inside the block that defines the Phi.
func ComputeLiveness(g *ir.Graph, order map[*ir.Node][]*ir.Node, class Class) (*Liveness, error) {
	blocks := blockList(g)

	liveIn := make(map[*ir.Node]map[*ir.Node]bool, len(blocks))
	liveOut := make(map[*ir.Node]map[*ir.Node]bool, len(blocks))
	for _, b := range blocks {
		liveIn[b] = map[*ir.Node]bool{}
		liveOut[b] = map[*ir.Node]bool{}
	}

	changed := true
	for changed {
		changed = false
		for i := len(blocks) - 1; i >= 0; i-- {
			b := blocks[i]

			out := map[*ir.Node]bool{}
			for _, s := range b.Succs {
				if s.Op != ir.OpBlock {
					continue
				}
				predIdx := indexOfPred(s, b)
				for v := range liveIn[s] {
					if v.Op == ir.OpPhi && v.Block == s {
						continue // contributed via the phi-arg branch below instead
					}
					out[v] = true
				}
				if predIdx >= 0 {
					for _, phi := range s.Phis {
						if !inClass(phi, class) {
							continue
						}
						if predIdx < len(phi.Args) && phi.Args[predIdx] != nil && inClass(phi.Args[predIdx], class) {
							out[phi.Args[predIdx]] = true
						}
					}
				}
			}

			// A single interleaved reverse walk: reaching a definition kills
			// it from the live set exactly at that position, then its uses
			// (operands) are added -- splitting this into "kill every def"
			// followed by "add every use" would make every block-local
			// value appear live-in, since a use later in the block would
			// get re-added after its own definition had already removed it.
			in := map[*ir.Node]bool{}
			for v := range out {
				in[v] = true
			}
			for j := len(order[b]) - 1; j >= 0; j-- {
				n := order[b][j]
				if n.Op == ir.OpPhi {
					if inClass(n, class) {
						delete(in, n)
					}
					continue // phi uses belong to predecessors, not this block
				}
				if inClass(n, class) {
					delete(in, n)
				}
				for _, a := range n.Args {
					if a != nil && inClass(a, class) {
						in[a] = true
					}
				}
			}

			if !setEqual(in, liveIn[b]) {
				liveIn[b] = in
				changed = true
			}
			if !setEqual(out, liveOut[b]) {
				liveOut[b] = out
				changed = true
			}
		}
	}

	return &Liveness{LiveIn: liveIn, LiveOut: liveOut}, nil
}

func inClass(n *ir.Node, class Class) bool {
	c, ok := ClassOf(n.Mode)
	return ok && c == class
}

func indexOfPred(b, pred *ir.Node) int {
	for i, p := range b.Preds {
		if p == pred {
			return i
		}
	}
	return -1
}

func blockList(g *ir.Graph) []*ir.Node {
	var blocks []*ir.Node
	for _, n := range g.Nodes() {
		if n.IsBlock() && n.State != ir.Dead {
			blocks = append(blocks, n)
		}
	}
	return blocks
}

func setEqual(a, b map[*ir.Node]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
