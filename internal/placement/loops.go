package placement

import "firmgo/internal/ir"

// Loop is one natural loop: a header block dominating every block in
// Members, reached via one or more back edges from a latch inside the
// loop back to the header.
type Loop struct {
	Header  *ir.Node
	Members map[*ir.Node]bool
	Parent  *Loop
	Depth   int
}

// LoopInfo maps every block that is a member of some loop to its
// innermost enclosing Loop.
type LoopInfo struct {
	blockLoop map[*ir.Node]*Loop
	loops     []*Loop
}

var loopCache = map[*ir.Graph]*LoopInfo{}

// AssureLoops computes (or returns the cached) loop-nesting tree.
func AssureLoops(g *ir.Graph, doms *DomInfo) (*LoopInfo, error) {
	if g.AnalysisCached(ir.ResourceLoopInfo) {
		if cached, ok := loopCache[g]; ok {
			return cached, nil
		}
	}
	info := computeLoops(g, doms)
	loopCache[g] = info
	g.MarkAnalysisCached(ir.ResourceLoopInfo)
	return info, nil
}

func computeLoops(g *ir.Graph, doms *DomInfo) *LoopInfo {
	headerLoop := map[*ir.Node]*Loop{}

	for _, b := range doms.order {
		for _, s := range b.Succs {
			if !doms.Reachable(s) {
				continue
			}
			if !doms.Dominates(s, b) {
				continue // not a back edge
			}
			// b -> s is a back edge: s is the loop header, b the latch.
			loop := headerLoop[s]
			if loop == nil {
				loop = &Loop{Header: s, Members: map[*ir.Node]bool{s: true}}
				headerLoop[s] = loop
			}
			collectNaturalLoopBody(b, s, loop.Members)
		}
	}

	blockLoop := map[*ir.Node]*Loop{}
	loops := make([]*Loop, 0, len(headerLoop))
	for _, loop := range headerLoop {
		loops = append(loops, loop)
		for m := range loop.Members {
			// A block's innermost loop is the smallest member set it
			// belongs to; since loops can share members (nested), keep
			// whichever is already recorded if it is strictly smaller.
			if existing, ok := blockLoop[m]; !ok || len(loop.Members) < len(existing.Members) {
				blockLoop[m] = loop
			}
		}
	}

	// Wire parent/depth by containment: A's parent is the smallest other
	// loop whose member set strictly contains A's.
	for _, a := range loops {
		var parent *Loop
		for _, b := range loops {
			if a == b || len(b.Members) <= len(a.Members) {
				continue
			}
			if !isSubset(a.Members, b.Members) {
				continue
			}
			if parent == nil || len(b.Members) < len(parent.Members) {
				parent = b
			}
		}
		a.Parent = parent
	}
	for _, a := range loops {
		depth := 0
		for p := a.Parent; p != nil; p = p.Parent {
			depth++
		}
		a.Depth = depth
	}

	return &LoopInfo{blockLoop: blockLoop, loops: loops}
}

func isSubset(a, b map[*ir.Node]bool) bool {
	for m := range a {
		if !b[m] {
			return false
		}
	}
	return true
}

// collectNaturalLoopBody walks Preds backward from latch, stopping at
// header, adding every block visited to members.
func collectNaturalLoopBody(latch, header *ir.Node, members map[*ir.Node]bool) {
	if members[latch] {
		return
	}
	members[latch] = true
	if latch == header {
		return
	}
	for _, p := range latch.Preds {
		collectNaturalLoopBody(p, header, members)
	}
}

// LoopOf returns b's innermost enclosing loop, or nil if b is not part
// of any loop.
func (li *LoopInfo) LoopOf(b *ir.Node) *Loop { return li.blockLoop[b] }

// Depth returns the loop nesting depth of b (0 outside every loop).
func (li *LoopInfo) Depth(b *ir.Node) int {
	if l := li.blockLoop[b]; l != nil {
		return l.Depth + 1
	}
	return 0
}

// Loops returns every natural loop found, header order unspecified.
func (li *LoopInfo) Loops() []*Loop { return li.loops }
