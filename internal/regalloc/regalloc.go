// Package regalloc allocates registers for one graph's floating values,
// per register class: liveness, an interference graph built from block
// borders, a chunk-based coalescing colorer ("heur4"), a Belady-style
// spiller for values that cannot be colored, and a spill-slot coalescer
// for the stack traffic the spiller introduces.
package regalloc

import (
	"go.uber.org/zap"

	"firmgo/internal/ir"
	"firmgo/internal/placement"
)

// Class groups values that compete for the same physical register file.
// The core stays target-agnostic, so a Class is derived from a Mode's
// Kind rather than looked up in a target descriptor.
type Class uint8

const (
	ClassInt Class = iota
	ClassFloat
)

// ClassOf returns the register class a value of this mode would occupy,
// or false if the mode never lives in a register (control/memory/tuple
// tokens).
func ClassOf(m ir.Mode) (Class, bool) {
	switch m.Kind {
	case ir.KindInt, ir.KindPointer, ir.KindBoolean:
		return ClassInt, true
	case ir.KindFloat:
		return ClassFloat, true
	default:
		return 0, false
	}
}

// Config holds the allocator's tunable knobs. DefaultConfig sets
// NumColors to 8; a caller that wants fewer registers overrides it.
type Config struct {
	NumColors     int // registers available in the class being allocated
	CoalesceDepth int // heur4 recursive recoloring depth limit
	SpillSetSize  int // k: Belady working-set size, defaults to NumColors
	RematBonus    uint32
}

// DefaultConfig mirrors the values cmd/internal/gc's allocator and
// libFirm's own default heur4 recursion depth (7) use.
func DefaultConfig() Config {
	return Config{
		NumColors:     8,
		CoalesceDepth: 7,
		SpillSetSize:  8,
		RematBonus:    1000,
	}
}

// Result is what Allocate returns for one register class: the final
// color assigned to every value that made it into a register, and the
// set of values the spiller pushed to the stack instead (their
// placement in the spill-slot address space is SpillSlots).
type Result struct {
	Color      map[*ir.Node]int
	Spilled    map[*ir.Node]bool
	SpillSlots map[*ir.Node]int
}

// Allocate runs the full C5 pipeline for one class over g: liveness,
// interference, coalescing/coloring, Belady spilling for whatever the
// colorer could not place, and spill-slot coalescing for the result.
func Allocate(g *ir.Graph, doms *placement.DomInfo, loops *placement.LoopInfo, class Class, cfg Config, logger *zap.SugaredLogger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	order := LocalOrders(g)
	live, err := ComputeLiveness(g, order, class)
	if err != nil {
		return nil, err
	}
	ig := BuildInterference(g, order, live, class)

	coalescer := NewCoalescer(ig, cfg, logger)
	colors, uncolored := coalescer.Run()

	result := &Result{Color: colors, Spilled: map[*ir.Node]bool{}, SpillSlots: map[*ir.Node]int{}}
	if len(uncolored) > 0 {
		spiller := NewSpiller(g, doms, loops, order, cfg, logger)
		spilled, err := spiller.Run(uncolored)
		if err != nil {
			return nil, err
		}
		for n := range spilled {
			result.Spilled[n] = true
		}
		// Re-run liveness/interference/coalescing once over the values the
		// spiller kept in registers plus the reloads it introduced, mirroring
		// bespillbelady.c's own post-spill recomputation.
		order = LocalOrders(g)
		live, err = ComputeLiveness(g, order, class)
		if err != nil {
			return nil, err
		}
		ig = BuildInterference(g, order, live, class)
		coalescer = NewCoalescer(ig, cfg, logger)
		colors, uncolored = coalescer.Run()
		result.Color = colors
		if len(uncolored) > 0 {
			return nil, ir.ConstraintError(uncolored[0], "register")
		}
	}

	slots := NewSpillSlotCoalescer(g, order, logger)
	assignment, err := slots.Run(result.Spilled)
	if err != nil {
		return nil, err
	}
	result.SpillSlots = assignment
	logger.Debugw("register allocation finished", "class", class, "colored", len(result.Color), "spilled", len(result.Spilled))
	return result, nil
}
