package regalloc

import "firmgo/internal/ir"

// LocalOrders computes a topological, per-block instruction order for
// every block in g: Phis first (they read predecessor values, not
// block-local ones), then every other node in an order consistent with
// its block-local data dependencies; the block's Control node gets no
// special position. Register allocation has no
// other notion of "where in the block" a value lives -- the sea-of-
// nodes graph itself carries no linear order -- so liveness,
// interference and the Belady spiller all index positions into the
// slice this returns.
func LocalOrders(g *ir.Graph) map[*ir.Node][]*ir.Node {
	byBlock := map[*ir.Node][]*ir.Node{}
	for _, n := range g.Nodes() {
		if n.Op == ir.OpBad || n.IsBlock() || n.Block == nil {
			continue
		}
		byBlock[n.Block] = append(byBlock[n.Block], n)
	}

	orders := make(map[*ir.Node][]*ir.Node, len(byBlock))
	for block, members := range byBlock {
		orders[block] = topoSortBlock(block, members)
	}
	return orders
}

// topoSortBlock orders members (every non-Block node owned by block) so
// that a node always appears after every block-local data input it has,
// breaking ties by allocation order for determinism. Phi nodes have no
// in-block dependency (their inputs live in predecessor blocks), so they
// are placed first, ahead of every other member.
func topoSortBlock(block *ir.Node, members []*ir.Node) []*ir.Node {
	inBlock := make(map[*ir.Node]bool, len(members))
	for _, n := range members {
		inBlock[n] = true
	}

	visited := make(map[*ir.Node]bool, len(members))
	var order []*ir.Node
	var visit func(n *ir.Node)
	visit = func(n *ir.Node) {
		if visited[n] {
			return
		}
		visited[n] = true
		for _, a := range n.Args {
			if a != nil && a.Op != ir.OpPhi && inBlock[a] {
				visit(a)
			}
		}
		order = append(order, n)
	}
	for _, n := range members {
		if n.Op == ir.OpPhi {
			visited[n] = true
			order = append(order, n)
		}
	}
	for _, n := range members {
		visit(n)
	}
	return order
}

// PositionIndex returns, for one block's order slice, a lookup from node
// to its position, for comparing two positions without an O(n) scan.
// Liveness and interference walk the order slice directly and do not
// call it.
func PositionIndex(order []*ir.Node) map[*ir.Node]int {
	idx := make(map[*ir.Node]int, len(order))
	for i, n := range order {
		idx[n] = i
	}
	return idx
}
