package abi

import (
	"firmgo/internal/ir"
	"firmgo/internal/placement"
	"firmgo/internal/regalloc"
)

// LowerGraph walks every block in g once, in dominance order, lowering
// each Call/Alloc/Free it finds and threading the stack pointer through
// them in program order the way adjust_call's curr_sp does within a
// block. A block takes its entry SP from an SPFixup placeholder so
// blocks can be lowered independently of how many predecessors they
// have; once every block has reported the SP it leaves with, the
// placeholders are backpatched and collapsed. Returns the Phis that
// turned out to be genuine merges: everything downstream (register
// allocation, stack-bias propagation) must treat these as stack-pointer
// definitions in their own right.
func LowerGraph(g *ir.Graph, doms *placement.DomInfo, initialSP *ir.Node, desc CallDescriptor, cfg Config, keep, allCallerSaved []*ir.Node) ([]*ir.Node, error) {
	order := regalloc.LocalOrders(g)
	fixup := NewSPFixup(g)

	for _, block := range doms.Order() {
		members := append([]*ir.Node{}, order[block]...)
		currSP := fixup.EntrySP(block, initialSP)

		for _, n := range members {
			var err error
			switch n.Op {
			case ir.OpCall:
				currSP, err = LowerCall(g, n, currSP, desc, cfg, keep, allCallerSaved)
			case ir.OpAlloc:
				currSP, err = LowerAlloc(g, n, currSP, cfg)
			case ir.OpFree:
				currSP, err = LowerFree(g, n, currSP, cfg)
			}
			if err != nil {
				return nil, err
			}
		}
		fixup.SetExitSP(block, currSP)
	}

	return fixup.Finish()
}
