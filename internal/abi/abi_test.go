package abi_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"firmgo/internal/abi"
	"firmgo/internal/ir"
	"firmgo/internal/placement"
)

func newTestGraph(t *testing.T) (*ir.Graph, *ir.Entity) {
	t.Helper()
	pkg := ir.NewType(ir.TypeClass, "pkg", ir.ModeBad)
	callee := ir.NewEntity(pkg, "callee", nil)
	owner := ir.NewType(ir.TypeClass, "pkg", ir.ModeBad)
	ent := ir.NewEntity(owner, "f", nil)
	return ir.NewGraph(ent, 1, nil), callee
}

func testConfig() abi.Config {
	return abi.Config{StackDirection: -1, StackAlignment: 16, PointerMode: ir.ModeP}
}

func TestLowerCallRewritesCallAndStoresStackArgument(t *testing.T) {
	g, callee := newTestGraph(t)
	entry := g.StartBlock
	sp := g.NewArg(entry, nil, ir.ModeP)

	arg := g.NewConst(entry, ir.ModeIs64, int64(7))
	mem := g.NewProj(g.Start, 0, ir.ModeM)
	call := g.NewCall(entry, mem, callee, arg)
	result := g.NewProj(call, 1, ir.ModeIs64)
	g.NewReturn(entry, g.NewProj(call, 0, ir.ModeM), result)

	// every parameter forced onto the stack, to exercise the store path.
	desc := abi.SimpleDescriptor{NumIntRegs: 0, StackAlign: 8}

	postSP, err := abi.LowerCall(g, call, sp, desc, testConfig(), []*ir.Node{result}, []*ir.Node{result})
	require.NoError(t, err)
	require.NotNil(t, postSP)
	require.Equal(t, ir.OpBad, call.Op, "the original Call is dead once lowered")

	var callBE, store *ir.Node
	for _, n := range g.Nodes() {
		switch n.Op {
		case ir.OpCallBE:
			callBE = n
		case ir.OpStore:
			store = n
		}
	}
	require.NotNil(t, callBE, "LowerCall must emit the backend call")
	require.NotNil(t, store, "the stack-passed argument must be stored before the call")
	require.Equal(t, arg, store.Args[2])
	require.Same(t, callBE, result.Args[0], "Proj(call,1)'s tuple input is redirected to the backend call")
}

func TestLowerCallSyncsMultipleStackArgumentStores(t *testing.T) {
	g, callee := newTestGraph(t)
	entry := g.StartBlock
	sp := g.NewArg(entry, nil, ir.ModeP)

	arg1 := g.NewConst(entry, ir.ModeIs64, int64(1))
	arg2 := g.NewConst(entry, ir.ModeIs64, int64(2))
	mem := g.NewProj(g.Start, 0, ir.ModeM)
	call := g.NewCall(entry, mem, callee, arg1, arg2)

	desc := abi.SimpleDescriptor{NumIntRegs: 0, StackAlign: 8}
	_, err := abi.LowerCall(g, call, sp, desc, testConfig(), nil, nil)
	require.NoError(t, err)

	var callBE *ir.Node
	var stores []*ir.Node
	var sync *ir.Node
	for _, n := range g.Nodes() {
		switch n.Op {
		case ir.OpCallBE:
			callBE = n
		case ir.OpStore:
			stores = append(stores, n)
		case ir.OpSync:
			sync = n
		}
	}
	require.NotNil(t, callBE)
	require.Len(t, stores, 2, "one Store per stack-passed argument")
	require.NotNil(t, sync, "two independent stack-argument stores are merged through a Sync")
	require.ElementsMatch(t, stores, sync.Args, "the Sync merges exactly the two Store results, not a spurious Proj wrapping them")
	require.Same(t, sync, callBE.Args[0], "the backend call's mem input is the merged Sync")
}

func TestLowerCallKeepsFullClobberSetOnReturnsTwice(t *testing.T) {
	g, callee := newTestGraph(t)
	entry := g.StartBlock
	sp := g.NewArg(entry, nil, ir.ModeP)
	mem := g.NewProj(g.Start, 0, ir.ModeM)
	call := g.NewCall(entry, mem, callee)

	desc := abi.SimpleDescriptor{NumIntRegs: 2, ReturnsTwiceSet: map[*ir.Entity]bool{callee: true}}
	all := []*ir.Node{g.NewConst(entry, ir.ModeIs64, int64(1)), g.NewConst(entry, ir.ModeIs64, int64(2))}

	_, err := abi.LowerCall(g, call, sp, desc, testConfig(), nil, all)
	require.NoError(t, err)

	var keep *ir.Node
	for _, n := range g.Nodes() {
		if n.Op == ir.OpKeep {
			keep = n
		}
	}
	require.NotNil(t, keep)
	require.ElementsMatch(t, all, keep.Args)
}

func TestLowerAllocRedirectsMemAndPointerProjections(t *testing.T) {
	g, _ := newTestGraph(t)
	entry := g.StartBlock
	sp := g.NewArg(entry, nil, ir.ModeP)
	mem := g.NewProj(g.Start, 0, ir.ModeM)

	alloc := g.NewAlloc(entry, mem, &ir.Type{Size: 16})
	allocMem := g.NewProj(alloc, 0, ir.ModeM)
	ptr := g.NewProj(alloc, 1, ir.ModeP)
	ret := g.NewReturn(entry, allocMem, ptr)

	newSP, err := abi.LowerAlloc(g, alloc, sp, testConfig())
	require.NoError(t, err)
	require.Equal(t, ir.OpIncSP, newSP.Op)
	require.Equal(t, ir.OpBad, alloc.Op, "the original tuple Alloc is dead once lowered")
	require.Equal(t, ir.OpBad, allocMem.Op, "its mem projection is dead too, folded away")
	require.Equal(t, ir.OpBad, ptr.Op, "its pointer projection is dead too, folded away")

	require.Same(t, mem, ret.Args[0], "the return's mem input now bypasses Alloc entirely")
	require.Same(t, newSP, ret.Args[1], "the return's pointer input is the grown stack pointer")
}

func TestComposeFrameAssignsFrameRelativeOffsetsAndBiasFillsInSPAddr(t *testing.T) {
	g, _ := newTestGraph(t)
	entry := g.StartBlock

	locals := ir.NewType(ir.TypeStruct, "locals", ir.ModeBad)
	localEnt := ir.NewEntity(locals, "spill0", ir.NewType(ir.TypePrimitive, "i64", ir.ModeIs64))
	localEnt.Offset = 0
	locals.Size = 8

	between := ir.NewType(ir.TypeStruct, "between", ir.ModeBad)
	between.Size = 16 // saved return address + saved frame pointer

	args := ir.NewType(ir.TypeStruct, "args", ir.ModeBad)

	frame, initialOffset, err := abi.ComposeFrame(g, abi.FrameAreas{Locals: locals, Between: between, Args: args}, testConfig())
	require.NoError(t, err)
	require.Same(t, frame, localEnt.Owner, "ComposeFrame re-owns every area's members onto the unified frame type")
	require.NotNil(t, g.FrameType())
	require.Same(t, frame, g.FrameType())
	require.Equal(t, int64(8), initialOffset, "downward-growing stacks fall back to the locals area size")

	sp := g.NewArg(entry, nil, ir.ModeP)
	spAddr := g.NewSPAddr(entry, sp, localEnt)
	g.NewReturn(entry, g.NewProj(g.Start, 0, ir.ModeM), spAddr)

	doms, err := placement.AssureDoms(g)
	require.NoError(t, err)
	require.NoError(t, abi.PropagateStackBias(g, doms, between, initialOffset, testConfig()))

	// spill0 occupies the unified numbering's first 8 bytes (offset 0);
	// the entry stack pointer sits at the locals/between boundary
	// (initialOffset == 8), so relative to entry SP the slot is 8 bytes
	// below it -- exactly where a downward prologue decrement lands it.
	require.Equal(t, int64(-8), spAddr.Aux, "spill0 sits 8 bytes below the entry stack pointer")
}

func TestComposeFrameFlipsAreaOrderForUpwardGrowingStack(t *testing.T) {
	g, _ := newTestGraph(t)
	entry := g.StartBlock

	locals := ir.NewType(ir.TypeStruct, "locals", ir.ModeBad)
	localEnt := ir.NewEntity(locals, "spill0", ir.NewType(ir.TypePrimitive, "i64", ir.ModeIs64))
	localEnt.Offset = 0
	locals.Size = 8

	between := ir.NewType(ir.TypeStruct, "between", ir.ModeBad)
	between.Size = 16

	args := ir.NewType(ir.TypeStruct, "args", ir.ModeBad)

	cfg := abi.Config{StackDirection: 1, StackAlignment: 16, PointerMode: ir.ModeP}
	frame, initialOffset, err := abi.ComposeFrame(g, abi.FrameAreas{Locals: locals, Between: between, Args: args}, cfg)
	require.NoError(t, err)

	// order[0]/order[2] flip for an upward-growing stack (args, between,
	// locals), between staying in the middle: locals lands after args
	// (0 bytes) and between (16 bytes), so spill0's frame-relative
	// offset is 16, not 0.
	require.Equal(t, int64(16), localEnt.Offset, "locals area is placed after args+between when the stack grows upward")
	require.Equal(t, int64(16), initialOffset, "the locals area's own offset-0 member now sits at the between/locals boundary")
	require.Equal(t, int64(24), frame.Size)

	sp := g.NewArg(entry, nil, ir.ModeP)
	spAddr := g.NewSPAddr(entry, sp, localEnt)
	g.NewReturn(entry, g.NewProj(g.Start, 0, ir.ModeM), spAddr)

	doms, err := placement.AssureDoms(g)
	require.NoError(t, err)
	require.NoError(t, abi.PropagateStackBias(g, doms, between, initialOffset, cfg))
	require.Equal(t, int64(0), spAddr.Aux, "spill0 sits exactly at the entry stack pointer once offsets are bias-relative")
}

// A diamond CFG lowers a call in both branches; the merge block needs a
// real stack-pointer Phi only if the two branches leave with different
// SP values. Here both sides make an identical call, so the Phi must
// collapse back to a single value once LowerGraph's fixup runs.
func buildDiamondWithCalls(t *testing.T, g *ir.Graph, callee *ir.Entity) (entry, thenBlk, elseBlk, exit *ir.Node) {
	t.Helper()
	entry = g.StartBlock
	thenBlk = g.NewBlock()
	elseBlk = g.NewBlock()
	exit = g.NewBlock()

	cond := g.NewConst(entry, ir.ModeB, true)
	require.NoError(t, g.NewCond(entry, cond))
	require.NoError(t, g.AddEdge(entry, thenBlk))
	require.NoError(t, g.AddEdge(entry, elseBlk))
	require.NoError(t, g.MatureBlock(thenBlk))
	require.NoError(t, g.MatureBlock(elseBlk))

	memT := g.NewProj(g.Start, 0, ir.ModeM)
	g.NewCall(thenBlk, memT, callee)

	memE := g.NewProj(g.Start, 0, ir.ModeM)
	g.NewCall(elseBlk, memE, callee)

	require.NoError(t, g.AddEdge(thenBlk, exit))
	require.NoError(t, g.AddEdge(elseBlk, exit))
	require.NoError(t, g.MatureBlock(exit))
	return
}

func TestLowerGraphCollapsesTrivialStackPointerMerge(t *testing.T) {
	g, callee := newTestGraph(t)
	buildDiamondWithCalls(t, g, callee)

	doms, err := placement.AssureDoms(g)
	require.NoError(t, err)

	initialSP := g.NewArg(g.StartBlock, nil, ir.ModeP)
	desc := abi.SimpleDescriptor{NumIntRegs: 4}

	survivors, err := abi.LowerGraph(g, doms, initialSP, desc, testConfig(), nil, nil)
	require.NoError(t, err)
	require.Empty(t, survivors, "both branches call the same callee with no stack arguments, so SP is identical on both edges into exit")
}
