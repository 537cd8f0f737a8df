package regalloc

import (
	"container/heap"
	"sort"

	"go.uber.org/zap"

	"firmgo/internal/ir"
)

// chunk is a set of values heur4 has decided must share one color,
// connected transitively by affinity edges that never cross an
// interference.
type chunk struct {
	members []*ir.Node
	weight  uint32 // sum of the affinity edges internal to this chunk
}

// chunkHeap is a max-heap on weight: heaviest chunk colored first, since
// it has the most to lose from being forced into a bad color.
type chunkHeap []*chunk

func (h chunkHeap) Len() int            { return len(h) }
func (h chunkHeap) Less(i, j int) bool  { return h[i].weight > h[j].weight }
func (h chunkHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *chunkHeap) Push(x interface{}) { *h = append(*h, x.(*chunk)) }
func (h *chunkHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Coalescer runs heur4: greedy affinity-chunk building followed by a
// priority-ordered, depth-limited recursive-recoloring colorer.
type Coalescer struct {
	ig     *InterferenceGraph
	cfg    Config
	logger *zap.SugaredLogger
	colors map[*ir.Node]int
}

func NewCoalescer(ig *InterferenceGraph, cfg Config, logger *zap.SugaredLogger) *Coalescer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Coalescer{ig: ig, cfg: cfg, logger: logger, colors: map[*ir.Node]int{}}
}

// Run returns the final coloring and the values that could not be
// colored (candidates for the Belady spiller).
func (c *Coalescer) Run() (map[*ir.Node]int, []*ir.Node) {
	chunks := c.buildChunks()
	pq := &chunkHeap{}
	heap.Init(pq)
	for _, ch := range chunks {
		heap.Push(pq, ch)
	}

	var uncolored []*ir.Node
	for pq.Len() > 0 {
		ch := heap.Pop(pq).(*chunk)
		if c.colorChunk(ch) {
			continue
		}
		if len(ch.members) == 1 {
			uncolored = append(uncolored, ch.members[0])
			c.logger.Debugw("heur4 chunk failed to color", "node", ch.members[0].ShortString())
			continue
		}
		// Peel the lowest-affinity member off and re-enqueue the remainder
		// plus the peeled node as its own chunk, per becopyheur4.c. A
		// member's affinity is the summed weight of its edges to the rest
		// of the chunk; ties go to the earliest member.
		peelAt, peelAff := 0, uint32(0)
		for i, m := range ch.members {
			var aff uint32
			for _, o := range ch.members {
				aff += c.ig.Affinity[m][o]
			}
			if i == 0 || aff < peelAff {
				peelAt, peelAff = i, aff
			}
		}
		peeled := ch.members[peelAt]
		rest := append(append([]*ir.Node{}, ch.members[:peelAt]...), ch.members[peelAt+1:]...)
		heap.Push(pq, &chunk{members: rest, weight: ch.weight})
		heap.Push(pq, &chunk{members: []*ir.Node{peeled}})
	}
	return c.colors, uncolored
}

// buildChunks merges nodes connected by the heaviest affinity edges
// first, refusing any merge that would put two interfering values in
// the same chunk.
func (c *Coalescer) buildChunks() []*chunk {
	owner := map[*ir.Node]*chunk{}
	for _, n := range c.ig.Nodes {
		ch := &chunk{members: []*ir.Node{n}}
		owner[n] = ch
	}

	type affEdge struct {
		a, b   *ir.Node
		weight uint32
	}
	var edges []affEdge
	seen := map[[2]*ir.Node]bool{}
	for a, peers := range c.ig.Affinity {
		for b, w := range peers {
			key := [2]*ir.Node{a, b}
			rkey := [2]*ir.Node{b, a}
			if seen[key] || seen[rkey] {
				continue
			}
			seen[key] = true
			edges = append(edges, affEdge{a, b, w})
		}
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].weight != edges[j].weight {
			return edges[i].weight > edges[j].weight
		}
		if edges[i].a.ID() != edges[j].a.ID() {
			return edges[i].a.ID() < edges[j].a.ID()
		}
		return edges[i].b.ID() < edges[j].b.ID()
	})

	for _, e := range edges {
		ca, cb := owner[e.a], owner[e.b]
		if ca == nil || cb == nil || ca == cb {
			continue
		}
		if chunksInterfere(c.ig, ca, cb) {
			continue
		}
		merged := &chunk{members: append(append([]*ir.Node{}, ca.members...), cb.members...), weight: ca.weight + cb.weight + e.weight}
		for _, m := range merged.members {
			owner[m] = merged
		}
	}

	// Walk c.ig.Nodes (a deterministic, allocation-order slice) rather
	// than the owner map directly: map iteration order is randomized in
	// Go, and a compiler must produce the same coloring decisions given
	// the same input every run.
	uniq := map[*chunk]bool{}
	var out []*chunk
	for _, n := range c.ig.Nodes {
		ch := owner[n]
		if !uniq[ch] {
			uniq[ch] = true
			out = append(out, ch)
		}
	}
	return out
}

func chunksInterfere(ig *InterferenceGraph, a, b *chunk) bool {
	for _, m := range a.members {
		for _, o := range b.members {
			if ig.Interferes(m, o) {
				return true
			}
		}
	}
	return false
}

// colorChunk tries each color in ascending preference order; for each it
// attempts to give every member that color, recursively bumping
// conflicting already-colored neighbors out of the way up to
// cfg.CoalesceDepth. The whole attempt commits only if every member (and
// every neighbor it had to recolor) succeeds.
func (c *Coalescer) colorChunk(ch *chunk) bool {
	inChunk := map[*ir.Node]bool{}
	for _, m := range ch.members {
		inChunk[m] = true
	}
	for color := 0; color < c.cfg.NumColors; color++ {
		trial := map[*ir.Node]int{}
		if c.tryColorWithRecolor(ch.members, color, c.cfg.CoalesceDepth, trial, inChunk, map[*ir.Node]bool{}) {
			for n, v := range trial {
				c.colors[n] = v
			}
			for _, m := range ch.members {
				c.colors[m] = color
			}
			return true
		}
	}
	return false
}

func (c *Coalescer) tryColorWithRecolor(members []*ir.Node, color int, depth int, trial map[*ir.Node]int, inChunk, locked map[*ir.Node]bool) bool {
	for _, m := range members {
		for _, nb := range c.ig.Neighbors(m) {
			if inChunk[nb] {
				continue
			}
			effective, ok := c.effectiveColor(nb, trial)
			if !ok || effective != color {
				continue
			}
			if locked[nb] || depth <= 0 {
				return false
			}
			alt, ok := c.findFreeColor(nb, color, trial, inChunk)
			if !ok {
				return false
			}
			nextLocked := map[*ir.Node]bool{nb: true}
			for k := range locked {
				nextLocked[k] = true
			}
			if !c.tryColorWithRecolor([]*ir.Node{nb}, alt, depth-1, trial, inChunk, nextLocked) {
				return false
			}
			trial[nb] = alt
		}
	}
	return true
}

func (c *Coalescer) effectiveColor(n *ir.Node, trial map[*ir.Node]int) (int, bool) {
	if v, ok := trial[n]; ok {
		return v, true
	}
	if v, ok := c.colors[n]; ok {
		return v, true
	}
	return 0, false
}

func (c *Coalescer) findFreeColor(n *ir.Node, avoid int, trial map[*ir.Node]int, inChunk map[*ir.Node]bool) (int, bool) {
	for color := 0; color < c.cfg.NumColors; color++ {
		if color == avoid {
			continue
		}
		free := true
		for _, nb := range c.ig.Neighbors(n) {
			if inChunk[nb] {
				continue
			}
			if eff, ok := c.effectiveColor(nb, trial); ok && eff == color {
				free = false
				break
			}
		}
		if free {
			return color, true
		}
	}
	return 0, false
}
