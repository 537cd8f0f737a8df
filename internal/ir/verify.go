package ir

// Verify checks that every structural invariant holds over a
// constructed graph: every non-Block node has an owning block, every
// Phi's arity matches its block's predecessor count, modes agree along
// data edges, and there is exactly one Start and one End. It is
// intentionally callable at any time, not just from
// FinalizeConstruction, since property tests call it directly after
// arbitrary sequences of constructor calls.
func (g *Graph) Verify() error {
	if err := g.verifyBlockSlots(); err != nil { // I1
		return err
	}
	if err := g.verifyPhiArity(); err != nil { // I2, I3
		return err
	}
	if err := g.verifyModes(); err != nil { // I4
		return err
	}
	if err := g.verifyEnd(); err != nil { // I5, I6
		return err
	}
	return nil
}

// I1: every non-Block node has exactly one Block as input slot -1.
func (g *Graph) verifyBlockSlots() error {
	for _, n := range g.arena {
		if n.Op == OpBlock || n.Op == OpBad || n.Op == OpUnknown {
			continue
		}
		if n.Block == nil {
			return errInvariant("I1", "node has no owning block", n)
		}
		if !n.Block.IsBlock() {
			return errInvariant("I1", "node's block slot does not reference a Block", n)
		}
	}
	return nil
}

// I2/I3: every Phi's arity matches its block's predecessor count, and
// position i of a Phi corresponds to predecessor i.
func (g *Graph) verifyPhiArity() error {
	for _, b := range g.arena {
		if !b.IsBlock() {
			continue
		}
		for _, phi := range b.Phis {
			if phi.Op != OpPhi {
				continue
			}
			if len(phi.Args) != len(b.Preds) {
				return errInvariant("I3", "phi arity does not match block predecessor count", phi)
			}
		}
	}
	return nil
}

// I4: modes match along data edges, per each opcode's typing rule. The
// constructors in construct.go already reject mismatches at build time;
// this is a cheap re-check of the handful of opcodes with a fixed rule,
// useful after a transform has used SetInput directly.
func (g *Graph) verifyModes() error {
	for _, n := range g.arena {
		switch n.Op {
		case OpAdd, OpSub, OpMul:
			if len(n.Args) == 2 && n.Args[0] != nil && n.Args[1] != nil {
				if !n.Args[0].Mode.Equal(n.Args[1].Mode) {
					return errModeMismatch(n.Op, 1, n.Args[0].Mode, n.Args[1].Mode, n)
				}
				if !n.Mode.Equal(n.Args[0].Mode) {
					return errModeMismatch(n.Op, -1, n.Args[0].Mode, n.Mode, n)
				}
			}
		case OpPhi:
			for i, a := range n.Args {
				if a != nil && !a.Mode.Equal(n.Mode) {
					return errModeMismatch(n.Op, i, n.Mode, a.Mode, n)
				}
			}
		}
	}
	return nil
}

// I5/I6: exactly one Start in StartBlock and one End; End's inputs are
// Returns/Bad plus keep-alive edges.
func (g *Graph) verifyEnd() error {
	if g.Start == nil || g.Start.Block != g.StartBlock {
		return errInvariant("I6", "graph has no Start pinned to StartBlock", g.Start)
	}
	if g.End == nil {
		return errInvariant("I6", "graph has no End", nil)
	}
	starts, ends := 0, 0
	for _, n := range g.arena {
		switch n.Op {
		case OpStart:
			starts++
		case OpEnd:
			ends++
		}
	}
	if starts != 1 || ends != 1 {
		return errInvariant("I6", "graph does not have exactly one Start and one End", g.Start)
	}
	for _, in := range g.End.Args {
		if in == nil {
			continue
		}
		switch in.Op {
		case OpReturn, OpBad:
			continue
		default:
			// keep-alive edge: any node is legal.
		}
	}
	return nil
}

// CheckPlacementDominance verifies the post-placement invariant that the
// block in slot -1 of n dominates the blocks of all of n's data
// predecessors. It takes a dominance oracle rather than computing one
// itself, since dominance is the placement package's concern.
func (g *Graph) CheckPlacementDominance(dominates func(a, b *Node) bool) error {
	for _, n := range g.arena {
		if n.IsBlock() || n.Op == OpBad || n.Op == OpUnknown {
			continue
		}
		for _, a := range n.Args {
			if a == nil || a.Block == nil || !a.Mode.IsData() {
				continue
			}
			if !dominates(a.Block, n.Block) {
				return errInvariant("placement", "input's block does not dominate user's block", n)
			}
		}
	}
	return nil
}
