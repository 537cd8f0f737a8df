// Package ssagen implements the on-the-fly SSA constructor: the
// set_value/get_value Phi-placement discipline used both for initial IR
// construction and for the backend's re-SSA passes. It generalizes
// cmd/compile's cmd/internal/gc/ssa.go (lookupVarIncoming/
// lookupVarOutgoing via OpFwdRef) from that file's hardcoded
// ".mem"-keyed string map into a VarID-keyed construction bracketed by
// Start/Finish.
package ssagen

import (
	"firmgo/internal/ir"
)

// VarID names a logical local variable/slot, the unit set_value/get_value
// operate on.
type VarID int

// Constructor brackets one SSA-construction pass over a Graph. A single
// Graph may be re-constructed multiple times over its lifetime (backend
// re-SSA after spilling, to fix up the stack pointer's SSA form); each
// bracket gets a fresh Constructor via NewConstructor, or the existing
// one is reset via ReSSA.
type Constructor struct {
	g        *ir.Graph
	nVars    int
	building bool

	// values[blockID][var] is the slot table binding for var in block,
	// for the blocks touched by the current construction bracket.
	values map[ir.ID]map[VarID]*ir.Node

	// pending[blockID] records the Phi0 placeholders inserted while
	// blockID was immature, to be resolved at MatureBlock.
	pending map[ir.ID][]pendingPhi
}

type pendingPhi struct {
	phi *ir.Node
	v   VarID
}

// NewConstructor creates a Constructor for g with nVars logical
// variables, not yet in a building bracket.
func NewConstructor(g *ir.Graph, nVars int) *Constructor {
	return &Constructor{
		g:       g,
		nVars:   nVars,
		values:  make(map[ir.ID]map[VarID]*ir.Node),
		pending: make(map[ir.ID][]pendingPhi),
	}
}

// Start opens a construction bracket.
func (c *Constructor) Start() { c.building = true }

// Finish closes the construction bracket.
func (c *Constructor) Finish() error {
	if !c.building {
		return notBuilding("ssa_cons_finish")
	}
	c.building = false
	return nil
}

// ReSSA resets every block's slot table and re-opens a construction
// bracket, so the backend can re-run construction after inserting copies
// or splitting live ranges. This also discards any still-pending Phi0
// bookkeeping from a prior round, since those placeholders belong to a
// superseded construction generation.
func (c *Constructor) ReSSA() {
	c.values = make(map[ir.ID]map[VarID]*ir.Node)
	c.pending = make(map[ir.ID][]pendingPhi)
	c.building = true
}

func (c *Constructor) blockValues(block *ir.Node) map[VarID]*ir.Node {
	m, ok := c.values[block.ID()]
	if !ok {
		m = make(map[VarID]*ir.Node)
		c.values[block.ID()] = m
	}
	return m
}

// SetValue binds var_id to value in block's slot table.
func (c *Constructor) SetValue(block *ir.Node, v VarID, value *ir.Node) error {
	if !c.building {
		return notBuilding("set_value")
	}
	c.blockValues(block)[v] = value
	return nil
}

// GetValue reads var_id's value in block, reconstructing it on demand
// via the get_value algorithm if it isn't bound locally. It is the
// exported entry point; getValue below is the recursive worker shared
// with MatureBlock's Phi0 finalization.
func (c *Constructor) GetValue(block *ir.Node, v VarID, mode ir.Mode) (*ir.Node, error) {
	if !c.building {
		return nil, notBuilding("get_value")
	}
	return c.getValue(block, v, mode), nil
}

func (c *Constructor) getValue(block *ir.Node, v VarID, mode ir.Mode) *ir.Node {
	vals := c.blockValues(block)
	// Step 1: already bound in this block.
	if val, ok := vals[v]; ok {
		return val
	}

	// Step 2: immature block -- insert a Phi0 placeholder, record it,
	// bind it, and return it without recursing.
	if block.State == ir.Immature {
		phi0 := c.g.NewPhi0(block, mode)
		vals[v] = phi0
		c.pending[block.ID()] = append(c.pending[block.ID()], pendingPhi{phi: phi0, v: v})
		return phi0
	}

	// Step 3: a single predecessor -- no merge needed, just recurse.
	if len(block.Preds) == 1 {
		val := c.getValue(block.Preds[0], v, mode)
		vals[v] = val
		return val
	}

	// No predecessors (e.g. the entry block, or a since-disconnected
	// block): the variable was never set on any reaching path.
	if len(block.Preds) == 0 {
		u := c.g.Unknown(mode)
		vals[v] = u
		return u
	}

	// Step 4: matured, multiple predecessors -- insert a real Phi, bind
	// it before recursing to break cycles through loop headers, then
	// fill each input from the corresponding predecessor.
	phi := c.g.NewPhi(block, mode)
	vals[v] = phi
	for i, pred := range block.Preds {
		val := c.getValue(pred, v, mode)
		c.g.SetInput(phi, i, val)
	}
	result := c.tryRemoveTrivialPhi(phi, mode)
	vals[v] = result
	return result
}

// tryRemoveTrivialPhi implements trivial-Phi removal: if every non-self
// input of phi is the same value x, phi is replaced by x and every Phi
// user of phi is recursively re-checked, since removing phi can make
// them trivial in turn.
func (c *Constructor) tryRemoveTrivialPhi(phi *ir.Node, mode ir.Mode) *ir.Node {
	var same *ir.Node
	for _, arg := range phi.Args {
		if arg == phi || arg == same {
			continue
		}
		if same != nil {
			return phi // more than one distinct non-self input: not trivial
		}
		same = arg
	}
	if same == nil {
		// Every input was a self-reference: the phi is unreachable
		// except through itself, so it carries no real value.
		same = c.g.Unknown(mode)
	}

	phiUsers := make([]*ir.Node, 0)
	for _, u := range phi.Users() {
		if u != phi && u.Op == ir.OpPhi {
			phiUsers = append(phiUsers, u)
		}
	}
	c.g.Exchange(phi, same)
	for _, up := range phiUsers {
		c.tryRemoveTrivialPhi(up, up.Mode)
	}
	return same
}

// MatureBlock seals block's predecessor list (delegating the structural
// half to ir.Graph.MatureBlock) and finalizes every Phi0 placeholder
// recorded while block was immature.
func (c *Constructor) MatureBlock(block *ir.Node) error {
	if !c.building {
		return notBuilding("mature_block")
	}
	pending := c.pending[block.ID()]
	delete(c.pending, block.ID())

	if err := c.g.MatureBlock(block); err != nil {
		return err
	}

	for _, p := range pending {
		c.finalizePhi0(block, p)
	}
	return nil
}

func (c *Constructor) finalizePhi0(block *ir.Node, p pendingPhi) {
	phi0 := p.phi
	vals := c.blockValues(block)

	switch len(block.Preds) {
	case 0:
		u := c.g.Unknown(phi0.Mode)
		c.g.Exchange(phi0, u)
		vals[p.v] = u
	case 1:
		val := c.getValue(block.Preds[0], p.v, phi0.Mode)
		c.g.Exchange(phi0, val)
		vals[p.v] = val
	default:
		// Promote the placeholder into a real Phi in place, so any
		// value that already captured a reference to it (a cycle
		// through this loop header) sees the finished Phi once filled.
		phi0.Op = ir.OpPhi
		phi0.Args = make([]*ir.Node, len(block.Preds))
		block.Phis = append(block.Phis, phi0)
		for i, pred := range block.Preds {
			val := c.getValue(pred, p.v, phi0.Mode)
			c.g.SetInput(phi0, i, val)
		}
		result := c.tryRemoveTrivialPhi(phi0, phi0.Mode)
		vals[p.v] = result
	}
}

func notBuilding(op string) error {
	return &ir.Error{Kind: ir.NotBuilding, Message: op + " called outside a bracketed construction phase"}
}
