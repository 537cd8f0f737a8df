package regalloc

import (
	"sort"

	"go.uber.org/zap"

	"firmgo/internal/ir"
)

// SpillSlotCoalescer assigns stack-slot indices to spilled values,
// merging any two spills whose live ranges never overlap so the frame
// doesn't reserve a slot per spill.
type SpillSlotCoalescer struct {
	g      *ir.Graph
	order  map[*ir.Node][]*ir.Node
	logger *zap.SugaredLogger
}

func NewSpillSlotCoalescer(g *ir.Graph, order map[*ir.Node][]*ir.Node, logger *zap.SugaredLogger) *SpillSlotCoalescer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SpillSlotCoalescer{g: g, order: order, logger: logger}
}

// Run groups spilled into size/alignment classes (by Mode bit width),
// builds a slot-interference graph per class, and greedily colors it
// with the smallest available slot index -- the same "smallest free
// color" rule heur4 uses for registers, applied to stack offsets
// instead. Values in different size classes never share a slot.
func (s *SpillSlotCoalescer) Run(spilled map[*ir.Node]bool) (map[*ir.Node]int, error) {
	assignment := map[*ir.Node]int{}
	if len(spilled) == 0 {
		return assignment, nil
	}

	byClass := map[uint8][]*ir.Node{}
	for v := range spilled {
		byClass[v.Mode.Size] = append(byClass[v.Mode.Size], v)
	}

	for size, members := range byClass {
		memberSet := map[*ir.Node]bool{}
		for _, m := range members {
			memberSet[m] = true
		}
		live := computeSlotLiveness(s.g, s.order, memberSet)
		interferes := buildSlotInterference(s.g, s.order, live, memberSet)

		sort.Slice(members, func(i, j int) bool { return members[i].ID() < members[j].ID() })
		slotOf := map[*ir.Node]int{}
		for _, m := range members {
			used := map[int]bool{}
			for nb := range interferes[m] {
				if slot, ok := slotOf[nb]; ok {
					used[slot] = true
				}
			}
			slot := 0
			for used[slot] {
				slot++
			}
			slotOf[m] = slot
			assignment[m] = slot
		}
		s.logger.Debugw("spill slots coalesced", "size", size, "values", len(members), "slots", len(slotOf))
	}
	return assignment, nil
}

// computeSlotLiveness is ComputeLiveness's fixpoint, parameterized over
// an arbitrary membership set instead of a register Class, since a
// spill slot's "class" is assigned by Mode size rather than Mode kind.
func computeSlotLiveness(g *ir.Graph, order map[*ir.Node][]*ir.Node, members map[*ir.Node]bool) *Liveness {
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
			for _, succ := range b.Succs {
				if succ.Op != ir.OpBlock {
					continue
				}
				for v := range liveIn[succ] {
					out[v] = true
				}
			}
			in := map[*ir.Node]bool{}
			for v := range out {
				in[v] = true
			}
			for j := len(order[b]) - 1; j >= 0; j-- {
				n := order[b][j]
				if members[n] {
					delete(in, n)
				}
				for _, a := range n.Args {
					if a != nil && members[a] {
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
	return &Liveness{LiveIn: liveIn, LiveOut: liveOut}
}

func buildSlotInterference(g *ir.Graph, order map[*ir.Node][]*ir.Node, live *Liveness, members map[*ir.Node]bool) map[*ir.Node]map[*ir.Node]bool {
	out := map[*ir.Node]map[*ir.Node]bool{}
	add := func(a, b *ir.Node) {
		if a == b {
			return
		}
		if out[a] == nil {
			out[a] = map[*ir.Node]bool{}
		}
		if out[b] == nil {
			out[b] = map[*ir.Node]bool{}
		}
		out[a][b] = true
		out[b][a] = true
	}
	for _, b := range blockList(g) {
		open := map[*ir.Node]bool{}
		for v := range live.LiveOut[b] {
			open[v] = true
		}
		blockOrder := order[b]
		for i := len(blockOrder) - 1; i >= 0; i-- {
			n := blockOrder[i]
			if members[n] {
				for v := range open {
					add(n, v)
				}
				delete(open, n)
			}
			for _, a := range n.Args {
				if a != nil && members[a] {
					open[a] = true
				}
			}
		}
	}
	return out
}
