package abi

import (
	"github.com/pkg/errors"

	"firmgo/internal/ir"
)

// SPFixup resolves the stack pointer's SSA form across a graph whose
// blocks were each lowered independently: a block with more than one
// predecessor can't know its true entry SP until every predecessor has
// been lowered, so lowering hands out an incomplete Phi as a stand-in
// and SPFixup backpatches it once the whole graph has been walked. This
// is be_abi_fix_stack_nodes's job, specialised to a single variable and
// done without computing dominance frontiers: an incomplete-Phi
// construction (Braun et al.) sized directly off block.Preds, which
// internal/ir's NewPhi already supports by pre-sizing Args to nil.
type SPFixup struct {
	g       *ir.Graph
	pending []*ir.Node
	exitSP  map[*ir.Node]*ir.Node
}

// NewSPFixup starts a fixup pass over g.
func NewSPFixup(g *ir.Graph) *SPFixup {
	return &SPFixup{g: g, exitSP: map[*ir.Node]*ir.Node{}}
}

// EntrySP returns the value the driver should seed a block's local
// Call/Alloc/Free lowering with as "the incoming stack pointer": the
// graph's true initial SP for the start block, an incomplete Phi for
// every other block (even ones with a single predecessor, so loop
// back-edges and forward edges are handled uniformly; Finish collapses
// the single-predecessor case back down to that predecessor's value).
func (f *SPFixup) EntrySP(block, initialSP *ir.Node) *ir.Node {
	if block == f.g.StartBlock {
		return initialSP
	}
	phi := f.g.NewPhi(block, initialSP.Mode)
	f.pending = append(f.pending, phi)
	return phi
}

// SetExitSP records the SP value a block's lowering ended with, so
// Finish can wire it into every successor that took an EntrySP Phi.
func (f *SPFixup) SetExitSP(block, sp *ir.Node) {
	f.exitSP[block] = sp
}

// Finish backpatches every pending Phi's arguments from the recorded
// exit values, then repeatedly collapses any Phi whose non-self
// arguments all agree on one value, propagating the simplification to
// whatever else read that Phi. Returns the Phis that survived as
// genuine merges, the ones register allocation and later passes must
// treat as real stack-pointer definitions.
func (f *SPFixup) Finish() ([]*ir.Node, error) {
	for _, phi := range f.pending {
		block := phi.Block
		for i, pred := range block.Preds {
			exit, ok := f.exitSP[pred]
			if !ok {
				return nil, errors.Errorf("stack pointer fixup: block %s missing a recorded exit SP for predecessor %s", block.ShortString(), pred.ShortString())
			}
			f.g.SetInput(phi, i, exit)
		}
	}

	var survivors []*ir.Node
	changed := true
	for changed {
		changed = false
		for _, phi := range f.pending {
			if phi.Op == ir.OpBad {
				continue
			}
			if v := trivialValue(phi); v != nil {
				f.g.Exchange(phi, v)
				changed = true
			}
		}
	}
	for _, phi := range f.pending {
		if phi.Op != ir.OpBad {
			survivors = append(survivors, phi)
		}
	}
	return survivors, nil
}

// trivialValue returns phi's single distinct non-self argument, or nil
// if it has more than one (a real merge) or none at all (an
// unreachable block, left to whatever dead-code pass runs later).
func trivialValue(phi *ir.Node) *ir.Node {
	var v *ir.Node
	for _, a := range phi.Args {
		if a == nil || a == phi || a.Op == ir.OpBad {
			continue
		}
		if v == nil {
			v = a
		} else if v != a {
			return nil
		}
	}
	return v
}
