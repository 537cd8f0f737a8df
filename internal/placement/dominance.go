// Package placement implements the analyses that schedule floating IR
// nodes into blocks: dominance, loop nesting, and Global Code Motion.
// Dominance uses the iterative Cooper/Harvey/Kennedy fixpoint algorithm
// rather than Lengauer-Tarjan: both produce the same dominator tree, and
// the iterative version is far easier to get right by hand, at the cost
// of a worse asymptotic bound that does not matter for the graph sizes
// this package expects to see.
package placement

import (
	"firmgo/internal/ir"
)

// DomInfo is the cached result of a dominance computation over one
// graph's control-flow skeleton.
type DomInfo struct {
	order []*ir.Node       // reverse postorder, order[0] == root
	index map[*ir.Node]int // position in order
	idom  map[*ir.Node]*ir.Node
	depth map[*ir.Node]int
}

var domCache = map[*ir.Graph]*DomInfo{}
var postDomCache = map[*ir.Graph]*DomInfo{}

// AssureDoms computes (or returns the cached) dominator tree rooted at
// g's StartBlock. Idempotent: repeated calls before the next CFG edit
// return the same *DomInfo without recomputing.
func AssureDoms(g *ir.Graph) (*DomInfo, error) {
	if g.AnalysisCached(ir.ResourceDominance) {
		if cached, ok := domCache[g]; ok {
			return cached, nil
		}
	}
	info := computeDominance(g.StartBlock, true)
	domCache[g] = info
	g.MarkAnalysisCached(ir.ResourceDominance)
	return info, nil
}

// AssurePostDoms computes (or returns the cached) post-dominator tree
// rooted at g's EndBlock, walking the CFG backwards. Blocks that cannot
// reach EndBlock (e.g. the body of a non-terminating loop) are absent
// from the tree; keep-alive edges into End, not post-dominance, are what
// keeps their values live.
func AssurePostDoms(g *ir.Graph) (*DomInfo, error) {
	if g.AnalysisCached(ir.ResourcePostDominance) {
		if cached, ok := postDomCache[g]; ok {
			return cached, nil
		}
	}
	info := computeDominance(g.EndBlock, false)
	postDomCache[g] = info
	g.MarkAnalysisCached(ir.ResourcePostDominance)
	return info, nil
}

func succsOf(b *ir.Node, forward bool) []*ir.Node {
	if forward {
		return b.Succs
	}
	return b.Preds
}

func predsOf(b *ir.Node, forward bool) []*ir.Node {
	if forward {
		return b.Preds
	}
	return b.Succs
}

// computeDominance runs the fixpoint algorithm over the subgraph
// reachable from root, walking Succs when forward is true and Preds
// when it is false (the post-dominance case).
func computeDominance(root *ir.Node, forward bool) *DomInfo {
	order := reversePostorder(root, forward)
	index := make(map[*ir.Node]int, len(order))
	for i, b := range order {
		index[b] = i
	}

	idom := make(map[*ir.Node]*ir.Node, len(order))
	idom[root] = root

	changed := true
	for changed {
		changed = false
		for i := 1; i < len(order); i++ {
			b := order[i]
			var newIdom *ir.Node
			for _, p := range predsOf(b, forward) {
				if _, ok := index[p]; !ok {
					continue // unreachable predecessor, ignore
				}
				if idom[p] == nil {
					continue // not yet processed this round
				}
				if newIdom == nil {
					newIdom = p
					continue
				}
				newIdom = intersect(newIdom, p, idom, index)
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}

	depth := make(map[*ir.Node]int, len(order))
	depth[root] = 0
	for _, b := range order[1:] {
		if p, ok := idom[b]; ok && p != nil {
			depth[b] = depth[p] + 1
		}
	}

	return &DomInfo{order: order, index: index, idom: idom, depth: depth}
}

func intersect(a, b *ir.Node, idom map[*ir.Node]*ir.Node, index map[*ir.Node]int) *ir.Node {
	for a != b {
		for index[a] > index[b] {
			a = idom[a]
		}
		for index[b] > index[a] {
			b = idom[b]
		}
	}
	return a
}

func reversePostorder(root *ir.Node, forward bool) []*ir.Node {
	visited := map[*ir.Node]bool{}
	var post []*ir.Node
	var visit func(*ir.Node)
	visit = func(b *ir.Node) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range succsOf(b, forward) {
			visit(s)
		}
		post = append(post, b)
	}
	visit(root)
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// Dominates reports whether a dominates b (a == b counts as dominating).
func (d *DomInfo) Dominates(a, b *ir.Node) bool {
	if a == b {
		return true
	}
	if _, ok := d.index[b]; !ok {
		return false
	}
	if _, ok := d.index[a]; !ok {
		return false
	}
	cur := b
	for cur != d.order[0] {
		p := d.idom[cur]
		if p == a {
			return true
		}
		if p == nil || p == cur {
			return false
		}
		cur = p
	}
	return false
}

// Idom returns b's immediate dominator, or nil if b is unreachable from
// the root this DomInfo was computed over.
func (d *DomInfo) Idom(b *ir.Node) *ir.Node { return d.idom[b] }

// Depth returns b's depth in the dominator tree (root is 0).
func (d *DomInfo) Depth(b *ir.Node) int { return d.depth[b] }

// Root returns the block the tree is rooted at.
func (d *DomInfo) Root() *ir.Node { return d.order[0] }

// Order returns every reachable block in the reverse-postorder this tree
// was built from -- each block after every non-back-edge predecessor
// that dominates it, which is also a valid processing order for any
// pass that wants a predecessor's result before its successor's.
func (d *DomInfo) Order() []*ir.Node { return d.order }

// Reachable reports whether b was reached while building this tree.
func (d *DomInfo) Reachable(b *ir.Node) bool {
	_, ok := d.index[b]
	return ok
}

// DCA returns the deepest block that dominates both a and b -- the meet
// of a and b in the dominator tree. Used by Global Code Motion to find the
// latest legal placement satisfying multiple uses.
func (d *DomInfo) DCA(a, b *ir.Node) *ir.Node {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	for d.depth[a] > d.depth[b] {
		a = d.idom[a]
	}
	for d.depth[b] > d.depth[a] {
		b = d.idom[b]
	}
	for a != b {
		a = d.idom[a]
		b = d.idom[b]
	}
	return a
}
