package ir

// NewBlock creates an immature block awaiting predecessors. Predecessors
// may be attached incrementally with AddPred until MatureBlock seals the
// list.
func (g *Graph) NewBlock() *Node {
	b := g.newNode(OpBlock, ModeBB)
	b.State = Immature
	b.Kind = BlockPlain
	return b
}

// AddPred records that pred is a control predecessor of b, and that b is
// a successor of pred. Only legal while b is Immature: an unmatured
// block accepts add_pred, a matured block rejects further predecessor
// changes.
func (g *Graph) AddPred(b, pred *Node) error {
	if b.State != Immature {
		return errInvariant("I3", "add_pred on a non-immature block", b)
	}
	b.Preds = append(b.Preds, pred)
	pred.Succs = append(pred.Succs, b)
	g.Invalidate(ResourceDominance | ResourcePostDominance | ResourceLoopInfo | ResourceOuts | ResourceLiveness)
	return nil
}

// MatureBlock seals b's predecessor list, fixing its arity for any Phi
// in the block, and transitions Immature -> Matured. A block becomes
// Dead when every control predecessor is Bad.
//
// MatureBlock does not resolve Phi0 placeholders left by get_value in
// this block -- that is ssagen.Constructor.MatureBlock's job, which
// calls this method after finalizing placeholders, so the ir package
// never needs to know about variable slot tables.
func (g *Graph) MatureBlock(b *Node) error {
	if b.Op != OpBlock {
		return errInvariant("I1", "MatureBlock called on a non-Block node", b)
	}
	if b.State == Matured {
		return nil // idempotent
	}
	allBad := len(b.Preds) > 0
	for _, p := range b.Preds {
		if p.Op != OpBad {
			allBad = false
			break
		}
	}
	if allBad {
		b.State = Dead
		b.Kind = BlockDead
	} else {
		b.State = Matured
	}
	return nil
}

// AddEdge connects pred -> succ as a control-flow edge: succ must still
// be Immature. This is the primitive genssa-style addEdge from
// cmd/compile's cmd/internal/gc/ssa.go, generalized into the graph API.
func (g *Graph) AddEdge(pred, succ *Node) error {
	return g.AddPred(succ, pred)
}

// --- Value constructors -----------------------------------------------
//
// Each New<Op> validates the opcode's mode typing rule (I4) then, for
// value-numbering-eligible opcodes, interns through the graph's value
// table.

func (g *Graph) newValue(block *Node, op Op, mode Mode, pin PinState, args ...*Node) *Node {
	n := g.newNode(op, mode)
	n.Block = block
	n.Pin = pin
	n.AddArgs(args...)
	if canonical, existed := g.vt.intern(n); existed {
		return canonical
	}
	return n
}

// NewConst creates (or returns the interned) integer/float/bool constant
// in block with the given mode and value.
func (g *Graph) NewConst(block *Node, mode Mode, value interface{}) *Node {
	n := g.newNode(OpConst, mode)
	n.Block = block
	n.Pin = Floats
	n.Aux = value
	if canonical, existed := g.vt.intern(n); existed {
		return canonical
	}
	return n
}

// NewValue creates a node of an arbitrary opcode/mode/aux directly,
// bypassing the typed New<Op> constructors' mode-checking rules and
// value-numbering. It exists as an escape hatch for callers that already
// know an opcode's invariants -- irtest's graph-construction DSL is the
// main one -- the same way cmd/compile's ssa.Block.NewValue lets its own
// func_test.go build arbitrary values by op/type/aux without going
// through a typed constructor per opcode.
func (g *Graph) NewValue(block *Node, op Op, mode Mode, aux interface{}, args ...*Node) *Node {
	n := g.newNode(op, mode)
	n.Block = block
	n.Pin = Floats
	n.Aux = aux
	n.AddArgs(args...)
	return n
}

// NewSymConst creates (or returns the interned) address-of-entity
// constant.
func (g *Graph) NewSymConst(block *Node, mode Mode, e *Entity) *Node {
	n := g.newNode(OpSymConst, mode)
	n.Block = block
	n.Pin = Floats
	n.Entity = e
	if canonical, existed := g.vt.intern(n); existed {
		return canonical
	}
	return n
}

func (g *Graph) checkMode(op Op, slot int, n *Node, expected Mode) error {
	if n == nil {
		return nil
	}
	if !expected.Equal(n.Mode) {
		return errModeMismatch(op, slot, expected, n.Mode, n)
	}
	return nil
}

// NewAdd/NewSub/NewMul build an arithmetic node with I4's mode rule: both
// operands and the result share a mode.
func (g *Graph) NewAdd(block *Node, a, b *Node) (*Node, error) {
	return g.newBinArith(block, OpAdd, a, b)
}
func (g *Graph) NewSub(block *Node, a, b *Node) (*Node, error) {
	return g.newBinArith(block, OpSub, a, b)
}
func (g *Graph) NewMul(block *Node, a, b *Node) (*Node, error) {
	return g.newBinArith(block, OpMul, a, b)
}

func (g *Graph) newBinArith(block *Node, op Op, a, b *Node) (*Node, error) {
	if err := g.checkMode(op, 1, b, a.Mode); err != nil {
		return nil, err
	}
	return g.newValue(block, op, a.Mode, Floats, a, b), nil
}

// NewCmp builds a boolean-mode comparison of two equal-mode operands.
func (g *Graph) NewCmp(block *Node, a, b *Node) (*Node, error) {
	if err := g.checkMode(OpCmp, 1, b, a.Mode); err != nil {
		return nil, err
	}
	return g.newValue(block, OpCmp, ModeB, Floats, a, b), nil
}

// NewLoad builds a memory-pinned Load of resultMode from addr, chained
// after mem. Load is ExcPinned: it may trap (nil dereference) yet a
// Load is never value-numbered, since two loads of the same address
// separated by an intervening store must not collapse to one node.
// Aliasing semantics beyond that are left to the memory model; this
// port conservatively never interns Loads.
func (g *Graph) NewLoad(block, mem, addr *Node, resultMode Mode) (*Node, error) {
	if err := g.checkMode(OpLoad, 1, addr, ModeP); err != nil {
		return nil, err
	}
	if err := g.checkMode(OpLoad, 0, mem, ModeM); err != nil {
		return nil, err
	}
	n := g.newNode(OpLoad, resultMode)
	n.Block = block
	n.Pin = ExcPinned
	n.AddArgs(mem, addr)
	return n, nil
}

// NewStore builds a memory-effecting Store of val to addr, chained after
// mem; result mode is Memory (the new memory state).
func (g *Graph) NewStore(block, mem, addr, val *Node) (*Node, error) {
	if err := g.checkMode(OpStore, 1, addr, ModeP); err != nil {
		return nil, err
	}
	if err := g.checkMode(OpStore, 0, mem, ModeM); err != nil {
		return nil, err
	}
	n := g.newNode(OpStore, ModeM)
	n.Block = block
	n.Pin = Pinned
	n.AddArgs(mem, addr, val)
	return n, nil
}

// NewAlloc builds a stack/heap allocation of typ, producing a pointer.
func (g *Graph) NewAlloc(block, mem *Node, typ *Type) *Node {
	n := g.newNode(OpAlloc, ModeT) // tuple: Proj 0 = mem, Proj 1 = pointer
	n.Block = block
	n.Pin = Pinned
	n.Type = typ
	n.AddArg(mem)
	return n
}

// NewFree builds the deallocation counterpart to NewAlloc.
func (g *Graph) NewFree(block, mem, ptr *Node, typ *Type) *Node {
	n := g.newNode(OpFree, ModeM)
	n.Block = block
	n.Pin = Pinned
	n.Type = typ
	n.AddArgs(mem, ptr)
	return n
}

// NewSel builds a field/element selection off base at entity e's offset.
func (g *Graph) NewSel(block, base *Node, e *Entity) *Node {
	n := g.newNode(OpSel, ModeP)
	n.Block = block
	n.Pin = Floats
	n.Entity = e
	n.AddArg(base)
	if canonical, existed := g.vt.intern(n); existed {
		return canonical
	}
	return n
}

// NewProj extracts component index from a tuple-mode producer.
func (g *Graph) NewProj(tuple *Node, index int, mode Mode) *Node {
	n := g.newNode(OpProj, mode)
	n.Block = tuple.Block
	n.Pin = Floats
	n.Aux = index
	n.AddArg(tuple)
	if canonical, existed := g.vt.intern(n); existed {
		return canonical
	}
	return n
}

// NewSync merges multiple memory edges into one (open question:
// Sync's aliasing semantics are the memory model's to define; this port
// treats a Sync's result as conservatively aliasing every input, i.e. any
// later Load/Store depending on it must be treated as depending on all
// of them; internal/regalloc has no Sync-specific interference rule).
func (g *Graph) NewSync(block *Node, mems ...*Node) *Node {
	n := g.newNode(OpSync, ModeM)
	n.Block = block
	n.Pin = Pinned
	n.AddArgs(mems...)
	return n
}

// NewCall builds a Call node; ABI lowering (C6) later rewrites this into
// a CallBE plus IncSP bracket.
func (g *Graph) NewCall(block, mem *Node, callee *Entity, args ...*Node) *Node {
	n := g.newNode(OpCall, ModeT)
	n.Block = block
	n.Pin = Pinned
	n.Entity = callee
	n.AddArg(mem)
	n.AddArgs(args...)
	block.Kind = BlockCall
	block.Control = n
	return n
}

// NewReturn terminates a function: block becomes a BlockReturn whose
// Control is the Return. It adds no edge to EndBlock and no input to End.
func (g *Graph) NewReturn(block, mem *Node, results ...*Node) *Node {
	n := g.newNode(OpReturn, ModeX)
	n.Block = block
	n.Pin = Pinned
	n.AddArg(mem)
	n.AddArgs(results...)
	block.Kind = BlockReturn
	block.Control = n
	return n
}

// NewCond marks block as a two-way branch on cond (a Boolean-mode
// value); succ edges are added separately via AddEdge, in predecessor
// order true-then-false by this port's convention.
func (g *Graph) NewCond(block, cond *Node) error {
	if err := g.checkMode(OpCond, 0, cond, ModeB); err != nil {
		return err
	}
	block.Kind = BlockIf
	block.Control = cond
	return nil
}

// NewJmp marks block as an unconditional single-successor block.
func (g *Graph) NewJmp(block *Node) {
	block.Kind = BlockPlain
}

// NewPhi creates a fully-sized Phi in block (arity == len(block.Preds)),
// with every input slot initially nil so the caller can bind the Phi in
// a slot table before filling inputs -- which is how the SSA constructor
// breaks cycles through loop headers.
func (g *Graph) NewPhi(block *Node, mode Mode) *Node {
	n := g.newNode(OpPhi, mode)
	n.Block = block
	n.Pin = Pinned
	n.Args = make([]*Node, len(block.Preds))
	block.Phis = append(block.Phis, n)
	return n
}

// NewPhi0 creates the SSA constructor's placeholder for a variable read
// in an immature block. It is never a real Phi: it carries no fixed
// arity and is promoted in place by ssagen.Constructor.MatureBlock once
// the block's predecessor list is sealed.
func (g *Graph) NewPhi0(block *Node, mode Mode) *Node {
	n := g.newNode(OpPhi0, mode)
	n.Block = block
	n.Pin = Floats
	return n
}

// NewBad creates a Bad placeholder: the designated "unreachable" value
// used to replace nodes in dead blocks.
func (g *Graph) NewBad(mode Mode) *Node {
	return g.newNode(OpBad, mode)
}

// Unknown returns the graph-wide Unknown node of the given mode,
// creating it on first request. get_value returns this for a variable
// that was never set_value'd.
func (g *Graph) Unknown(mode Mode) *Node {
	if g.unknowns == nil {
		g.unknowns = make(map[Mode]*Node)
	}
	if n, ok := g.unknowns[mode]; ok {
		return n
	}
	n := g.newNode(OpUnknown, mode)
	n.Block = g.StartBlock
	n.Pin = Pinned
	g.unknowns[mode] = n
	return n
}

// --- Mutation -----------------------------------------------------------

// Exchange redirects every user of old to point at replacement, then
// marks old as Bad. Exchange(a, a) is a no-op, a required idempotence
// property.
func (g *Graph) Exchange(old, replacement *Node) {
	if old == replacement {
		return
	}
	g.vt.forget(old)
	// Copy the user list: SetInput below mutates old.users as it runs.
	users := make([]edge, len(old.users))
	copy(users, old.users)
	for _, e := range users {
		e.User.SetInput(e.Slot, replacement)
	}
	old.Op = OpBad
	old.Args = nil
	old.Aux = nil
}

// SetInput is re-exported at the graph level for symmetry with the rest
// of the constructor API; it forwards to Node.SetInput and additionally
// invalidates dominance-family analyses, since a CFG edit (replacing a
// Block input) can change the graph shape.
func (g *Graph) SetInput(n *Node, i int, v *Node) {
	n.SetInput(i, v)
	if n.IsBlock() {
		g.Invalidate(ResourceDominance | ResourcePostDominance | ResourceLoopInfo)
	}
}

// SetMode changes n's mode in place, used by passes that narrow/widen a
// value after the fact (e.g. ABI lowering retyping a pointer to the
// target's address width).
func (g *Graph) SetMode(n *Node, mode Mode) { n.Mode = mode }

// FinalizeConstruction transitions the graph to Constructed, fixes
// keep-alive edges (wiring every still-unused-but-must-survive node into
// End), and runs Verify, which checks I1, I3, the fixed-rule part of I4
// and I6; I2, I5 and I7 are not checked.
func (g *Graph) FinalizeConstruction(keepAlive ...*Node) error {
	for _, n := range keepAlive {
		g.End.AddArg(n)
	}
	if err := g.Verify(); err != nil {
		return err
	}
	g.state = Constructed
	g.logger.Debugw("construction finalized", "nodes", len(g.arena), "keepalive", len(keepAlive))
	return nil
}

// --- Backend constructors: register allocation -------------------------
//
// These opcodes are only ever introduced by the regalloc package, after
// placement has already fixed every value's block; they are pinned so a
// later pass never floats a spill or reload away from the instruction
// boundary it was scheduled at.

// NewCopy creates a register-to-register copy of src, used by the
// colorer to resolve a coloring conflict and by Phi-arg lowering.
func (g *Graph) NewCopy(block, src *Node) *Node {
	n := g.newNode(OpCopy, src.Mode)
	n.Block = block
	n.Pin = Pinned
	n.AddArg(src)
	return n
}

// NewStoreReg marks the point where val is spilled from a register to
// its (not yet assigned) stack slot.
func (g *Graph) NewStoreReg(block, val *Node) *Node {
	n := g.newNode(OpStoreReg, ModeM)
	n.Block = block
	n.Pin = Pinned
	n.AddArg(val)
	return n
}

// NewLoadReg reloads a previously spilled value back into a register.
func (g *Graph) NewLoadReg(block, spill *Node, mode Mode) *Node {
	n := g.newNode(OpLoadReg, mode)
	n.Block = block
	n.Pin = Pinned
	n.AddArg(spill)
	return n
}

// --- Backend constructors: ABI & stack lowering -------------------------

// IncSPAux carries an IncSP node's byte delta and whether it must land
// the resulting SP on the target's stack-alignment boundary.
type IncSPAux struct {
	Delta int64
	Align bool
}

// NewIncSP adjusts the stack pointer by delta bytes, following the
// target's stack-growth direction; align requests the result be rounded
// to the target's stack alignment (used at prologue/epilogue boundaries
// once the final frame size is known).
func (g *Graph) NewIncSP(block, sp *Node, delta int64, align bool) *Node {
	n := g.newNode(OpIncSP, ModeP)
	n.Block = block
	n.Pin = Pinned
	n.AddArg(sp)
	n.Aux = IncSPAux{Delta: delta, Align: align}
	return n
}

// NewArg creates the pre-spilled placeholder for an incoming argument
// bound to frame entity e.
func (g *Graph) NewArg(block *Node, e *Entity, mode Mode) *Node {
	n := g.newNode(OpArg, mode)
	n.Block = block
	n.Pin = Pinned
	n.Entity = e
	return n
}

// NewSPAddr computes the SP-relative address of frame entity e, before
// the frame's final layout is known; stack-bias propagation rewrites
// its offset once the frame is composed.
func (g *Graph) NewSPAddr(block, sp *Node, e *Entity) *Node {
	n := g.newNode(OpSPAddr, ModeP)
	n.Block = block
	n.Pin = Pinned
	n.Entity = e
	n.AddArg(sp)
	return n
}

// NewFPAddr computes the frame-pointer-relative address of entity e.
func (g *Graph) NewFPAddr(block, fp *Node, e *Entity) *Node {
	n := g.newNode(OpFPAddr, ModeP)
	n.Block = block
	n.Pin = Pinned
	n.Entity = e
	n.AddArg(fp)
	return n
}

// NewCallBE creates the lowered backend call: inputs are the memory
// edge covering every stack-argument store, SP, the callee's address,
// and the register-passed arguments, mirroring adjust_call's final
// backend Call node. Its tuple layout matches OpCall's (Proj 0 = mem,
// Proj 1.. = results) so Exchange can replace one with the other
// without touching existing Proj users.
func (g *Graph) NewCallBE(block, mem, sp, addr *Node, regArgs ...*Node) *Node {
	n := g.newNode(OpCallBE, ModeT)
	n.Block = block
	n.Pin = Pinned
	n.AddArg(mem)
	n.AddArg(sp)
	n.AddArg(addr)
	n.AddArgs(regArgs...)
	block.Kind = BlockCall
	block.Control = n
	return n
}

// NewKeep forces liveness through values (e.g. caller-saved registers
// across a call, or a returns-twice call's full clobber set) without
// itself producing a usable result.
func (g *Graph) NewKeep(block *Node, values ...*Node) *Node {
	n := g.newNode(OpKeep, ModeX)
	n.Block = block
	n.Pin = Pinned
	n.AddArgs(values...)
	return n
}
