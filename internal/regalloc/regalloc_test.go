package regalloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"firmgo/internal/ir"
	"firmgo/internal/placement"
	"firmgo/internal/regalloc"
)

func newTestGraph(t *testing.T) *ir.Graph {
	t.Helper()
	owner := ir.NewType(ir.TypeClass, "pkg", ir.ModeBad)
	ent := ir.NewEntity(owner, "f", nil)
	return ir.NewGraph(ent, 1, nil)
}

// a+b, then (a+b)+c: a and b are simultaneously live at the first Add,
// its result and c are simultaneously live at the second. a never
// overlaps c.
func buildAddChain(t *testing.T, g *ir.Graph) (a, b, c, sum, sum2 *ir.Node) {
	t.Helper()
	entry := g.StartBlock
	a = g.NewConst(entry, ir.ModeIs64, int64(1))
	b = g.NewConst(entry, ir.ModeIs64, int64(2))
	var err error
	sum, err = g.NewAdd(entry, a, b)
	require.NoError(t, err)
	c = g.NewConst(entry, ir.ModeIs64, int64(3))
	sum2, err = g.NewAdd(entry, sum, c)
	require.NoError(t, err)
	mem := g.NewProj(g.Start, 0, ir.ModeM)
	g.NewReturn(entry, mem, sum2)
	require.NoError(t, g.FinalizeConstruction())
	return
}

func TestInterferenceFollowsOverlappingLiveRanges(t *testing.T) {
	g := newTestGraph(t)
	a, b, c, sum, _ := buildAddChain(t, g)

	order := regalloc.LocalOrders(g)
	live, err := regalloc.ComputeLiveness(g, order, regalloc.ClassInt)
	require.NoError(t, err)
	ig := regalloc.BuildInterference(g, order, live, regalloc.ClassInt)

	require.True(t, ig.Interferes(a, b), "a and b are both live at the first Add")
	require.True(t, ig.Interferes(sum, c), "sum and c are both live at the second Add")
	require.False(t, ig.Interferes(a, c), "a is dead long before c is defined")
}

func TestCoalescerMergesUninterferingCopy(t *testing.T) {
	g := newTestGraph(t)
	entry := g.StartBlock
	v := g.NewConst(entry, ir.ModeIs64, int64(5))
	cp := g.NewCopy(entry, v)
	mem := g.NewProj(g.Start, 0, ir.ModeM)
	g.NewReturn(entry, mem, cp)
	require.NoError(t, g.FinalizeConstruction())

	order := regalloc.LocalOrders(g)
	live, err := regalloc.ComputeLiveness(g, order, regalloc.ClassInt)
	require.NoError(t, err)
	ig := regalloc.BuildInterference(g, order, live, regalloc.ClassInt)
	require.False(t, ig.Interferes(v, cp), "v's only use is the copy, so their ranges never overlap")

	coalescer := regalloc.NewCoalescer(ig, regalloc.DefaultConfig(), nil)
	colors, uncolored := coalescer.Run()
	require.Empty(t, uncolored)
	require.Equal(t, colors[v], colors[cp], "an uninterfering copy pair must land in the same chunk/color")
}

// Two Adds (sum1, sum2), neither a constant and so neither eligible for
// the spiller's free rematerialization path, are both live at sum3.
func buildTwoLiveAdds(t *testing.T, g *ir.Graph) (sum1, sum2, sum3 *ir.Node) {
	t.Helper()
	entry := g.StartBlock
	a := g.NewConst(entry, ir.ModeIs64, int64(1))
	b := g.NewConst(entry, ir.ModeIs64, int64(2))
	c := g.NewConst(entry, ir.ModeIs64, int64(3))
	d := g.NewConst(entry, ir.ModeIs64, int64(4))
	var err error
	sum1, err = g.NewAdd(entry, a, b)
	require.NoError(t, err)
	sum2, err = g.NewAdd(entry, c, d)
	require.NoError(t, err)
	sum3, err = g.NewAdd(entry, sum1, sum2)
	require.NoError(t, err)
	mem := g.NewProj(g.Start, 0, ir.ModeM)
	g.NewReturn(entry, mem, sum3)
	require.NoError(t, g.FinalizeConstruction())
	return
}

// With a working set of one and both Adds genuinely contending for it at
// sum3, at least one must be marked as a real spill: neither is a Const,
// so neither can take the free rematerialization path a working-set
// eviction would otherwise prefer.
func TestSpillerSpillsWhenPressureExceedsWorkingSet(t *testing.T) {
	g := newTestGraph(t)
	sum1, sum2, _ := buildTwoLiveAdds(t, g)

	doms, err := placement.AssureDoms(g)
	require.NoError(t, err)
	loops, err := placement.AssureLoops(g, doms)
	require.NoError(t, err)

	order := regalloc.LocalOrders(g)
	cfg := regalloc.Config{NumColors: 1, CoalesceDepth: 2, SpillSetSize: 1, RematBonus: 1000}
	spiller := regalloc.NewSpiller(g, doms, loops, order, cfg, nil)
	spilled, err := spiller.Run([]*ir.Node{sum1, sum2})
	require.NoError(t, err)
	require.NotEmpty(t, spilled, "sum1 and sum2 are simultaneously live and neither can rematerialize")
}

func TestAllocateSucceedsWithAmpleColors(t *testing.T) {
	g := newTestGraph(t)
	buildAddChain(t, g)

	doms, err := placement.AssureDoms(g)
	require.NoError(t, err)
	loops, err := placement.AssureLoops(g, doms)
	require.NoError(t, err)

	result, err := regalloc.Allocate(g, doms, loops, regalloc.ClassInt, regalloc.DefaultConfig(), nil)
	require.NoError(t, err)
	require.Empty(t, result.Spilled)
}
