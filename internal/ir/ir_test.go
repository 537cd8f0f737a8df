package ir_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"firmgo/internal/ir"
)

func newTestGraph(t *testing.T) *ir.Graph {
	t.Helper()
	owner := ir.NewType(ir.TypeClass, "pkg", ir.ModeBad)
	ent := ir.NewEntity(owner, "f", nil)
	return ir.NewGraph(ent, 1, nil)
}

// Constructing two Adds with identical constant inputs in the same
// graph interns to a single node.
func TestValueNumberingInternsIdenticalAdds(t *testing.T) {
	g := newTestGraph(t)
	b := g.StartBlock

	a1 := g.NewConst(b, ir.ModeIs64, int64(1))
	a2 := g.NewConst(b, ir.ModeIs64, int64(2))
	add1, err := g.NewAdd(b, a1, a2)
	require.NoError(t, err)

	b1 := g.NewConst(b, ir.ModeIs64, int64(1))
	b2 := g.NewConst(b, ir.ModeIs64, int64(2))
	add2, err := g.NewAdd(b, b1, b2)
	require.NoError(t, err)

	require.Same(t, add1, add2, "second construction must return the interned node")
	require.Same(t, a1, b1, "identical constants must intern to the same node")
}

func TestModeMismatchRejected(t *testing.T) {
	g := newTestGraph(t)
	b := g.StartBlock
	x := g.NewConst(b, ir.ModeIs64, int64(1))
	y := g.NewConst(b, ir.ModeIs32, int32(2))
	_, err := g.NewAdd(b, x, y)
	require.Error(t, err)
	ierr := ir.AsError(err)
	require.NotNil(t, ierr)
	require.Equal(t, ir.ModeMismatch, ierr.Kind)
}

func TestExchangeRedirectsUsersAndIsIdempotent(t *testing.T) {
	g := newTestGraph(t)
	b := g.StartBlock
	x := g.NewConst(b, ir.ModeIs64, int64(1))
	y := g.NewConst(b, ir.ModeIs64, int64(2))
	sum, err := g.NewAdd(b, x, y)
	require.NoError(t, err)

	replacement := g.NewConst(b, ir.ModeIs64, int64(3))
	g.Exchange(sum, replacement)
	require.Equal(t, ir.OpBad, sum.Op)
	require.Equal(t, 0, replacement.NumUses()+0) // no uses yet, just replaced

	// exchange(a, a) is a no-op.
	before := replacement.NumUses()
	g.Exchange(replacement, replacement)
	require.Equal(t, before, replacement.NumUses())
}

func TestResourceLockDiscipline(t *testing.T) {
	g := newTestGraph(t)
	require.NoError(t, g.Lock(ir.ResourceDominance))
	err := g.Lock(ir.ResourceDominance)
	require.Error(t, err)
	require.Equal(t, ir.ResourceBusy, ir.AsError(err).Kind)

	require.NoError(t, g.Unlock(ir.ResourceDominance))
	err = g.Unlock(ir.ResourceDominance)
	require.Error(t, err)
	require.Equal(t, ir.ResourceUnderflow, ir.AsError(err).Kind)
}

func TestBlockMaturationStateMachine(t *testing.T) {
	g := newTestGraph(t)
	blk := g.NewBlock()
	require.Equal(t, ir.Immature, blk.State)

	require.NoError(t, g.AddPred(blk, g.StartBlock))
	require.NoError(t, g.MatureBlock(blk))
	require.Equal(t, ir.Matured, blk.State)

	// a matured block cannot accept more predecessors.
	err := g.AddPred(blk, g.StartBlock)
	require.Error(t, err)
}

func TestDeadBlockWhenAllPredsBad(t *testing.T) {
	g := newTestGraph(t)
	blk := g.NewBlock()
	bad := g.NewBad(ir.ModeX)
	require.NoError(t, g.AddPred(blk, bad))
	require.NoError(t, g.MatureBlock(blk))
	require.Equal(t, ir.Dead, blk.State)
}

func TestVisitCounterIsMonotonicPerWalk(t *testing.T) {
	g := newTestGraph(t)
	b := g.StartBlock
	n := g.NewConst(b, ir.ModeIs64, int64(42))

	g.IncVisited()
	require.False(t, g.Visited(n))
	g.Mark(n)
	require.True(t, g.Visited(n))

	g.IncVisited()
	require.False(t, g.Visited(n), "a new walk generation must not see stale marks")
}
