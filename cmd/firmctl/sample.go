package main

import "firmgo/internal/ir"

// buildSample constructs a small demonstration graph exercising the
// pieces of the embedding interface a real front end would drive:
// arithmetic, a stack temporary, a conditional, and a call. It plays
// the role of a hand-written front end emitting IR directly through
// the New<Op> constructors: new_graph, new_<Op>, mature_block,
// finalize_cons.
//
// Shape: given two integer arguments a, b, compute sum = a + b, spill
// it to a stack temporary, branch on whether it is negative, and on
// the negative path call a helper before returning; both paths return
// through a single exit block.
func buildSample() *ir.Graph {
	pkg := ir.NewType(ir.TypeClass, "demo", ir.ModeBad)
	fn := ir.NewEntity(pkg, "sum_or_negate", nil)
	helper := ir.NewEntity(pkg, "negate_helper", nil)

	g := ir.NewGraph(fn, 0, nil)
	entry := g.StartBlock

	mem0 := g.NewProj(g.Start, 0, ir.ModeM)
	a := g.NewArg(entry, nil, ir.ModeIs64)
	b := g.NewArg(entry, nil, ir.ModeIs64)

	sum, err := g.NewAdd(entry, a, b)
	must(err)

	tempType := ir.NewType(ir.TypePrimitive, "i64", ir.ModeIs64)
	tempType.Size = 8
	alloc := g.NewAlloc(entry, mem0, tempType)
	allocMem := g.NewProj(alloc, 0, ir.ModeM)
	allocPtr := g.NewProj(alloc, 1, ir.ModeP)
	storeMem, err := g.NewStore(entry, allocMem, allocPtr, sum)
	must(err)

	zero := g.NewConst(entry, ir.ModeIs64, int64(0))
	isNeg, err := g.NewCmp(entry, sum, zero)
	must(err)
	must(g.NewCond(entry, isNeg))

	negBlock := g.NewBlock()
	exitBlock := g.NewBlock()
	must(g.AddEdge(entry, negBlock))
	must(g.AddEdge(entry, exitBlock))
	must(g.MatureBlock(negBlock))

	call := g.NewCall(negBlock, storeMem, helper, sum)
	callMem := g.NewProj(call, 0, ir.ModeM)
	callResult := g.NewProj(call, 1, ir.ModeIs64)
	must(g.AddEdge(negBlock, exitBlock))
	must(g.MatureBlock(exitBlock))

	exitMem := g.NewPhi(exitBlock, ir.ModeM)
	exitVal := g.NewPhi(exitBlock, ir.ModeIs64)
	g.SetInput(exitMem, 0, storeMem)
	g.SetInput(exitMem, 1, callMem)
	g.SetInput(exitVal, 0, sum)
	g.SetInput(exitVal, 1, callResult)

	ret := g.NewReturn(exitBlock, exitMem, exitVal)

	must(g.FinalizeConstruction(ret))
	return g
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
