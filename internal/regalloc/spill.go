package regalloc

import (
	"go.uber.org/zap"

	"firmgo/internal/ir"
	"firmgo/internal/placement"
)

// farUse is the next-use distance given to a value with no further use
// visible from the current position -- large enough to always lose an
// eviction contest against anything with a real next use, matching
// bespillbelady.c's TIME_UNDEFINED sentinel.
const farUse = 1 << 30

// Spiller implements the Belady-style, per-block working-set spiller:
// for each instruction, admit every use and every def into a working
// set of size cfg.SpillSetSize, evicting (and, the first time on this
// path, spilling) whichever resident value has the largest next-use
// distance.
type Spiller struct {
	g      *ir.Graph
	doms   *placement.DomInfo
	loops  *placement.LoopInfo
	order  map[*ir.Node][]*ir.Node
	cfg    Config
	logger *zap.SugaredLogger

	endSet        map[*ir.Node]map[*ir.Node]bool
	spilledOnPath map[*ir.Node]map[*ir.Node]bool // per block: values already spilled reaching here
}

func NewSpiller(g *ir.Graph, doms *placement.DomInfo, loops *placement.LoopInfo, order map[*ir.Node][]*ir.Node, cfg Config, logger *zap.SugaredLogger) *Spiller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.SpillSetSize <= 0 {
		cfg.SpillSetSize = cfg.NumColors
	}
	return &Spiller{
		g: g, doms: doms, loops: loops, order: order, cfg: cfg, logger: logger,
		endSet:        map[*ir.Node]map[*ir.Node]bool{},
		spilledOnPath: map[*ir.Node]map[*ir.Node]bool{},
	}
}

// Run walks every block in reverse postorder (DomInfo.Order; so a block's
// predecessors, loop back edges aside, have already produced an end
// set) and decides which of candidates must be spilled. candidates is
// the set of values heur4 could not color; every other value is assumed
// to already hold a register and only affects pressure accounting.
func (s *Spiller) Run(candidates []*ir.Node) (map[*ir.Node]bool, error) {
	candidateSet := map[*ir.Node]bool{}
	for _, c := range candidates {
		candidateSet[c] = true
	}
	spilled := map[*ir.Node]bool{}

	for _, block := range s.doms.Order() {
		start := s.chooseStartSet(block, candidateSet)
		working := map[*ir.Node]bool{}
		for v := range start {
			working[v] = true
		}
		pathSpilled := map[*ir.Node]bool{}
		for _, p := range block.Preds {
			for v := range s.spilledOnPath[p] {
				pathSpilled[v] = true
			}
		}

		nextUse := computeNextUse(s.order[block], candidateSet)
		order := s.order[block]
		for pos, n := range order {
			for _, a := range n.Args {
				if a == nil || !candidateSet[a] {
					continue
				}
				s.admit(a, working, nextUse, pos, order, spilled, pathSpilled)
			}
			if candidateSet[n] {
				s.admit(n, working, nextUse, pos, order, spilled, pathSpilled)
			}
		}

		s.endSet[block] = working
		s.spilledOnPath[block] = pathSpilled
	}
	return spilled, nil
}

// admit brings v into working, evicting the resident with the largest
// next-use distance if that would overflow cfg.SpillSetSize. A value
// evicted while not yet spilled on this path is spilled exactly once;
// constants and other rematerializable values never need an explicit
// spill slot, modeled by skipping the spill but still evicting.
func (s *Spiller) admit(v *ir.Node, working map[*ir.Node]bool, nextUse map[*ir.Node][]int, pos int, order []*ir.Node, spilled map[*ir.Node]bool, pathSpilled map[*ir.Node]bool) {
	if working[v] {
		return
	}
	if len(working) >= s.cfg.SpillSetSize {
		victim := s.pickEviction(working, nextUse, pos, v)
		if victim != nil {
			delete(working, victim)
			if !pathSpilled[victim] && !isRematerializable(victim) {
				spilled[victim] = true
				pathSpilled[victim] = true
				s.logger.Debugw("belady spill", "node", victim.ShortString(), "block", order[0].Block.ShortString())
			}
		}
	}
	working[v] = true
}

// pickEviction returns the resident of working with the largest
// effective next-use distance (distance plus a rematerialization bonus,
// so rematerializable values are evicted first), excluding the value
// about to be admitted.
func (s *Spiller) pickEviction(working map[*ir.Node]bool, nextUse map[*ir.Node][]int, pos int, incoming *ir.Node) *ir.Node {
	var worst *ir.Node
	var worstDist int = -1
	for v := range working {
		if v == incoming {
			continue
		}
		d := distanceAt(nextUse[v], pos)
		if isRematerializable(v) {
			if d < farUse {
				d += int(s.cfg.RematBonus)
			} else {
				d = farUse + int(s.cfg.RematBonus)
			}
		}
		if d > worstDist {
			worstDist = d
			worst = v
		}
	}
	return worst
}

// chooseStartSet builds the working set a block starts with: for the
// dominator-tree root (or a block without predecessors), the empty set;
// otherwise the values in the end sets of already-processed
// predecessors, admitted in three passes until cfg.SpillSetSize is
// reached: values live in every processed predecessor and not delayed,
// then delayed values, then values live in only some predecessors. A
// value is delayed when block is inside a loop and the value's defining
// block is not in block's innermost loop; delayed values enter only
// while room remains -- the pressure-gated delay mechanism from
// bespillbelady.c. Within a pass values are taken in map iteration
// order; next-use distance is not consulted.
func (s *Spiller) chooseStartSet(block *ir.Node, candidateSet map[*ir.Node]bool) map[*ir.Node]bool {
	if block == s.doms.Root() || len(block.Preds) == 0 {
		return map[*ir.Node]bool{}
	}

	counts := map[*ir.Node]int{}
	processedPreds := 0
	for _, p := range block.Preds {
		set, ok := s.endSet[p]
		if !ok {
			continue // loop back edge to a not-yet-processed predecessor
		}
		processedPreds++
		for v := range set {
			counts[v]++
		}
	}

	type scored struct {
		v        *ir.Node
		liveAll  bool
		depth    int
		delayed  bool
	}
	var candidates []scored
	depth := s.loops.Depth(block)
	for v, n := range counts {
		liveAll := processedPreds > 0 && n == processedPreds
		usedOutsideLoop := depth == 0 || s.loops.LoopOf(v.Block) != s.loops.LoopOf(block)
		candidates = append(candidates, scored{v: v, liveAll: liveAll, depth: depth, delayed: usedOutsideLoop && depth > 0})
	}

	start := map[*ir.Node]bool{}
	// First pass: admit every live-in-all-predecessors, non-delayed value.
	for _, c := range candidates {
		if len(start) >= s.cfg.SpillSetSize {
			break
		}
		if c.liveAll && !c.delayed {
			start[c.v] = true
		}
	}
	// Second pass: admit delayed values only while pressure allows it.
	for _, c := range candidates {
		if len(start) >= s.cfg.SpillSetSize {
			break
		}
		if c.delayed {
			start[c.v] = true
		}
	}
	// Third pass: fill remaining room with values live in some, not all,
	// predecessors.
	for _, c := range candidates {
		if len(start) >= s.cfg.SpillSetSize {
			break
		}
		if !c.liveAll {
			start[c.v] = true
		}
	}
	return start
}

// computeNextUse scans order once and records, for each candidate, the
// positions at which it is used; distanceAt turns that list into the
// next-use distance (in instruction slots) from a given position, farUse
// if there is none visible within the block.
func computeNextUse(order []*ir.Node, candidateSet map[*ir.Node]bool) map[*ir.Node][]int {
	uses := map[*ir.Node][]int{}
	for pos, n := range order {
		for _, a := range n.Args {
			if a != nil && candidateSet[a] {
				uses[a] = append(uses[a], pos)
			}
		}
	}
	return uses
}

// distanceAt returns the smallest recorded use position >= pos, minus
// pos, or farUse if none.
func distanceAt(usePositions []int, pos int) int {
	best := farUse
	for _, p := range usePositions {
		if p >= pos && p-pos < best {
			best = p - pos
		}
	}
	return best
}

func isRematerializable(n *ir.Node) bool {
	return n.Op == ir.OpConst || n.Op == ir.OpSymConst
}
