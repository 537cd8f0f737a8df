package placement_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"firmgo/internal/ir"
	"firmgo/internal/placement"
)

func newTestGraph(t *testing.T) *ir.Graph {
	t.Helper()
	owner := ir.NewType(ir.TypeClass, "pkg", ir.ModeBad)
	ent := ir.NewEntity(owner, "f", nil)
	return ir.NewGraph(ent, 1, nil)
}

// A diamond CFG: entry branches to thenBlk/elseBlk which both join at
// exit. entry dominates every block; thenBlk and elseBlk dominate only
// themselves; exit is dominated only by entry (since it has two preds).
func buildDiamond(t *testing.T, g *ir.Graph) (entry, thenBlk, elseBlk, exit *ir.Node) {
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

	g.NewJmp(thenBlk)
	g.NewJmp(elseBlk)
	require.NoError(t, g.AddEdge(thenBlk, exit))
	require.NoError(t, g.AddEdge(elseBlk, exit))
	require.NoError(t, g.MatureBlock(exit))
	return
}

func TestDominanceOverDiamond(t *testing.T) {
	g := newTestGraph(t)
	entry, thenBlk, elseBlk, exit := buildDiamond(t, g)

	doms, err := placement.AssureDoms(g)
	require.NoError(t, err)

	require.True(t, doms.Dominates(entry, thenBlk))
	require.True(t, doms.Dominates(entry, elseBlk))
	require.True(t, doms.Dominates(entry, exit))
	require.False(t, doms.Dominates(thenBlk, exit))
	require.False(t, doms.Dominates(elseBlk, exit))
	require.Equal(t, entry, doms.Idom(exit))
	require.Equal(t, entry, doms.Idom(thenBlk))
}

func TestAssureDomsIsCachedUntilInvalidated(t *testing.T) {
	g := newTestGraph(t)
	buildDiamond(t, g)

	first, err := placement.AssureDoms(g)
	require.NoError(t, err)
	second, err := placement.AssureDoms(g)
	require.NoError(t, err)
	require.Same(t, first, second, "repeated AssureDoms must return the cached result")

	extra := g.NewBlock()
	require.NoError(t, g.AddEdge(g.StartBlock, extra))
	// add_pred invalidates dominance; a fresh AssureDoms must recompute.
	third, err := placement.AssureDoms(g)
	require.NoError(t, err)
	require.NotSame(t, first, third)
}

// A single-block self-loop: header has a back edge to itself, making it
// its own loop with itself as the only member.
func TestLoopDetectionOnSelfLoop(t *testing.T) {
	g := newTestGraph(t)
	entry := g.StartBlock
	header := g.NewBlock()
	require.NoError(t, g.AddEdge(entry, header))

	cond := g.NewConst(header, ir.ModeB, true)
	require.NoError(t, g.NewCond(header, cond))
	require.NoError(t, g.AddEdge(header, header))
	exit := g.NewBlock()
	require.NoError(t, g.AddEdge(header, exit))
	require.NoError(t, g.MatureBlock(header))
	require.NoError(t, g.MatureBlock(exit))

	doms, err := placement.AssureDoms(g)
	require.NoError(t, err)
	loops, err := placement.AssureLoops(g, doms)
	require.NoError(t, err)

	loop := loops.LoopOf(header)
	require.NotNil(t, loop)
	require.Equal(t, header, loop.Header)
	require.True(t, loop.Members[header])
	require.Nil(t, loops.LoopOf(exit), "exit is not part of the loop")
}

// A value built in a self-loop's header from two values defined before
// the loop, and used only after the loop (by the Return in exit), must
// not stay inside the loop: place_late's loop-depth preference moves it
// to a block of loop depth 0.
func TestScheduleHoistsLoopInvariantComputation(t *testing.T) {
	g := newTestGraph(t)
	entry := g.StartBlock
	a := g.NewConst(entry, ir.ModeIs64, int64(3))
	b := g.NewConst(entry, ir.ModeIs64, int64(4))

	header := g.NewBlock()
	require.NoError(t, g.AddEdge(entry, header))

	sum, err := g.NewAdd(header, a, b)
	require.NoError(t, err)

	cond := g.NewConst(header, ir.ModeB, true)
	require.NoError(t, g.NewCond(header, cond))
	require.NoError(t, g.AddEdge(header, header))
	exit := g.NewBlock()
	require.NoError(t, g.AddEdge(header, exit))
	require.NoError(t, g.MatureBlock(header))
	require.NoError(t, g.MatureBlock(exit))

	mem := g.NewProj(g.Start, 0, ir.ModeM)
	g.NewReturn(exit, mem, sum)
	require.NoError(t, g.FinalizeConstruction())

	doms, err := placement.AssureDoms(g)
	require.NoError(t, err)
	loops, err := placement.AssureLoops(g, doms)
	require.NoError(t, err)
	require.NoError(t, placement.Schedule(g, doms, loops))

	require.Equal(t, 0, loops.Depth(sum.Block), "loop-invariant computation must not be scheduled inside the loop body")
}

// An Alloc's mem/pointer Proj pair is only consumed in a block strictly
// below the Alloc itself. place_late is free to sink an ordinary
// floating value that far, since the sink target is still dominated by
// its producer -- but a Proj must never move independently of the
// tuple node it projects out of.
func TestScheduleKeepsProjectionsPinnedToTupleBlock(t *testing.T) {
	g := newTestGraph(t)
	entry := g.StartBlock

	mem := g.NewProj(g.Start, 0, ir.ModeM)
	alloc := g.NewAlloc(entry, mem, &ir.Type{Size: 8})
	allocMem := g.NewProj(alloc, 0, ir.ModeM)
	ptr := g.NewProj(alloc, 1, ir.ModeP)

	user := g.NewBlock()
	require.NoError(t, g.AddEdge(entry, user))
	require.NoError(t, g.MatureBlock(user))

	loadVal, err := g.NewLoad(user, allocMem, ptr, ir.ModeIs64)
	require.NoError(t, err)
	g.NewReturn(user, allocMem, loadVal)
	require.NoError(t, g.FinalizeConstruction())

	doms, err := placement.AssureDoms(g)
	require.NoError(t, err)
	loops, err := placement.AssureLoops(g, doms)
	require.NoError(t, err)
	require.NoError(t, placement.Schedule(g, doms, loops))

	require.Equal(t, entry, allocMem.Block, "Proj must stay pinned to its tuple-producing Alloc's block")
	require.Equal(t, entry, ptr.Block, "Proj must stay pinned to its tuple-producing Alloc's block")
}
