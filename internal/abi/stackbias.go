package abi

import (
	"firmgo/internal/ir"
	"firmgo/internal/placement"
	"firmgo/internal/regalloc"
)

// PropagateStackBias walks every block and rewrites each frame-entity
// reference (SPAddr/FPAddr) to its final offset, and each aligning
// IncSP to the delta that actually lands the stack pointer on the
// target's alignment boundary, per process_stack_bias. Every block
// besides the start block is entered with the bias the start block
// exits with: call-sequence IncSPs are locally balanced within the
// block that issues them (LowerCall always restores what it
// pre-allocates), so the only lasting bias change is the prologue's
// own frame-size IncSP, applied once in the start block. A stack
// allocation lowered by LowerAlloc without a matching LowerFree in the
// same block breaks this invariant and is out of scope, the same
// simplifying assumption the algorithm this is grounded on makes.
func PropagateStackBias(g *ir.Graph, doms *placement.DomInfo, between *ir.Type, initialOffset int64, cfg Config) error {
	betweenSize := areaSize(between)
	order := regalloc.LocalOrders(g)

	startBias, err := processBlockBias(g.StartBlock, 0, order[g.StartBlock], betweenSize, initialOffset, cfg)
	if err != nil {
		return err
	}

	for _, b := range doms.Order() {
		if b == g.StartBlock {
			continue
		}
		if _, err := processBlockBias(b, startBias, order[b], betweenSize, initialOffset, cfg); err != nil {
			return err
		}
	}
	return nil
}

func processBlockBias(block *ir.Node, entryBias int64, members []*ir.Node, betweenSize, initialOffset int64, cfg Config) (int64, error) {
	bias := entryBias
	for _, n := range members {
		if n.Entity != nil {
			switch n.Op {
			case ir.OpSPAddr:
				n.Aux = n.Entity.Offset - initialOffset + bias
			case ir.OpFPAddr:
				n.Aux = n.Entity.Offset - initialOffset
			}
		}

		if n.Op != ir.OpIncSP {
			continue
		}
		aux := n.Aux.(ir.IncSPAux)
		delta := aux.Delta
		if aux.Align && cfg.StackAlignment > 1 {
			total := bias + delta + betweenSize
			rem := ((total % cfg.StackAlignment) + cfg.StackAlignment) % cfg.StackAlignment
			if rem != 0 {
				delta += cfg.StackAlignment - rem
				n.Aux = ir.IncSPAux{Delta: delta, Align: aux.Align}
			}
		}
		bias += delta
	}
	return bias, nil
}
