// Global Code Motion: schedule every floating node into a legal block,
// following Click's place_early / place_late passage. place_early pins
// each node to the deepest of its inputs' blocks in the dominator tree,
// the shallowest block that every input's block dominates; place_late then sinks it back down toward the deepest block that still
// dominates every use, preferring the shallowest loop nesting depth
// along the way. Pinned and control-flow nodes never move.
package placement

import "firmgo/internal/ir"

// Schedule assigns a final block to every floating node in g, given
// dominance and loop info already computed for g. It writes each node's
// Block field directly (Block is slot -1 and is not part of the out-edge
// index, so no user bookkeeping is needed) and then runs g.Verify.
func Schedule(g *ir.Graph, doms *DomInfo, loops *LoopInfo) error {
	early := placeEarly(g, doms)
	late := placeLate(g, doms, loops, early)
	for n, block := range late {
		n.Block = block
	}
	return g.Verify()
}

// placeEarly walks each floating node's inputs (already placed, since
// arguments of a floating node are themselves interned/created before
// it, making a simple memoized recursion equivalent to Click's
// post-order DFS over the data-dependence graph) and assigns the node to
// the deepest block (by dominator-tree depth) among its data inputs'
// blocks, defaulting to the graph's root.
func placeEarly(g *ir.Graph, doms *DomInfo) map[*ir.Node]*ir.Node {
	early := make(map[*ir.Node]*ir.Node)
	visiting := make(map[*ir.Node]bool)

	var place func(n *ir.Node) *ir.Node
	place = func(n *ir.Node) *ir.Node {
		if b, ok := early[n]; ok {
			return b
		}
		if !isFloating(n) {
			return n.Block
		}
		if visiting[n] {
			// A cycle through a floating node can only occur via a
			// matured Phi; Phis are Pinned, so isFloating already
			// excluded them, but guard anyway for safety.
			return doms.Root()
		}
		visiting[n] = true
		candidate := doms.Root()
		for _, a := range n.Args {
			if a == nil || !a.Mode.IsData() {
				continue
			}
			ab := place(a)
			if ab != nil && doms.Reachable(ab) && doms.Depth(ab) > doms.Depth(candidate) {
				candidate = ab
			}
		}
		visiting[n] = false
		early[n] = candidate
		return candidate
	}

	for _, n := range g.Nodes() {
		if isFloating(n) {
			place(n)
		}
	}
	return early
}

// placeLate walks each floating node's users (the reverse of
// placeEarly's walk over inputs) and sinks the node to the deepest
// common ancestor of every use's block, then rises back up toward
// early[n] only as far as needed to land in the shallowest loop nesting
// depth available on that path.
func placeLate(g *ir.Graph, doms *DomInfo, loops *LoopInfo, early map[*ir.Node]*ir.Node) map[*ir.Node]*ir.Node {
	late := make(map[*ir.Node]*ir.Node)
	visiting := make(map[*ir.Node]bool)

	var place func(n *ir.Node) *ir.Node
	place = func(n *ir.Node) *ir.Node {
		if b, ok := late[n]; ok {
			return b
		}
		if !isFloating(n) {
			return n.Block
		}
		if visiting[n] {
			return early[n]
		}
		visiting[n] = true

		var lca *ir.Node
		for _, u := range n.Users() {
			if u.Op == ir.OpBad {
				continue
			}
			var useBlock *ir.Node
			if u.Op == ir.OpPhi {
				for i, a := range u.Args {
					if a == n && i < len(u.Block.Preds) {
						useBlock = u.Block.Preds[i]
						break
					}
				}
			} else {
				useBlock = place(u)
			}
			if useBlock == nil || !doms.Reachable(useBlock) {
				continue
			}
			lca = doms.DCA(lca, useBlock)
		}

		target := lca
		if target == nil {
			target = early[n]
		}

		best := target
		cur := target
		earlyBlock := early[n]
		for cur != nil && doms.Reachable(cur) {
			if loops.Depth(cur) < loops.Depth(best) {
				best = cur
			}
			if cur == earlyBlock {
				break
			}
			if !doms.Dominates(earlyBlock, cur) || cur == doms.Root() {
				break
			}
			cur = doms.Idom(cur)
		}

		visiting[n] = false
		late[n] = best
		return best
	}

	for _, n := range g.Nodes() {
		if isFloating(n) {
			place(n)
		}
	}
	return late
}

func isFloating(n *ir.Node) bool {
	if n.IsBlock() {
		return false
	}
	if n.Pin != ir.Floats {
		return false
	}
	if n.Op.IsControlFlow() || n.Op.IsConstLike() {
		return false
	}
	if n.Op == ir.OpProj {
		return false
	}
	return true
}
