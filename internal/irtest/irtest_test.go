package irtest

import (
	"testing"

	"firmgo/internal/ir"
)

func TestArgs(t *testing.T) {
	fn := Fun("entry",
		Bloc("entry",
			Valu("a", ir.OpConst, ir.ModeIs64, int64(14)),
			Valu("b", ir.OpConst, ir.ModeIs64, int64(26)),
			Valu("sum", ir.OpAdd, ir.ModeIs64, nil, "a", "b"),
			Valu("mem", ir.OpArg, ir.ModeM, nil),
			Goto("exit")),
		Bloc("exit",
			Return("mem")))

	sum := fn.Value("sum")
	for i, name := range []string{"a", "b"} {
		if sum.Args[i] != fn.Value(name) {
			t.Errorf("arg %d for sum is incorrect: want %s, got %s", i, fn.Value(name), sum.Args[i])
		}
	}
}

func TestEquivSameShape(t *testing.T) {
	build := func() Fn {
		return Fun("entry",
			Bloc("entry",
				Valu("a", ir.OpConst, ir.ModeIs64, int64(14)),
				Valu("b", ir.OpConst, ir.ModeIs64, int64(26)),
				Valu("sum", ir.OpAdd, ir.ModeIs64, nil, "a", "b"),
				Valu("mem", ir.OpArg, ir.ModeM, nil),
				Goto("exit")),
			Bloc("exit",
				Return("mem")))
	}
	f, g := build(), build()
	if !Equiv(f.Graph, g.Graph) {
		t.Error("expected equivalence between two identically-built graphs")
	}
}

func TestEquivDifferentAux(t *testing.T) {
	f := Fun("entry",
		Bloc("entry",
			Valu("mem", ir.OpArg, ir.ModeM, nil),
			Valu("a", ir.OpConst, ir.ModeIs64, int64(14)),
			Return("mem", "a")))
	g := Fun("entry",
		Bloc("entry",
			Valu("mem", ir.OpArg, ir.ModeM, nil),
			Valu("a", ir.OpConst, ir.ModeIs64, int64(26)),
			Return("mem", "a")))
	if Equiv(f.Graph, g.Graph) {
		t.Error("expected difference: const aux values differ")
	}
}

func TestEquivDifferentShape(t *testing.T) {
	f := Fun("entry",
		Bloc("entry",
			Valu("mem", ir.OpArg, ir.ModeM, nil),
			Goto("exit")),
		Bloc("exit",
			Return("mem")))
	g := Fun("entry",
		Bloc("entry",
			Valu("mem", ir.OpArg, ir.ModeM, nil),
			Return("mem")))
	if Equiv(f.Graph, g.Graph) {
		t.Error("expected difference: one graph has an extra block")
	}
}

func TestIfBuildsTwoSuccessors(t *testing.T) {
	fn := Fun("entry",
		Bloc("entry",
			Valu("cond", ir.OpConst, ir.ModeB, true),
			Valu("mem", ir.OpArg, ir.ModeM, nil),
			If("cond", "then", "els")),
		Bloc("then",
			Goto("exit")),
		Bloc("els",
			Goto("exit")),
		Bloc("exit",
			Valu("p", ir.OpPhi, ir.ModeM, nil, "mem", "mem"),
			Return("p")))

	entry := fn.Block("entry")
	if entry.Kind != ir.BlockIf {
		t.Fatalf("entry block kind = %v, want BlockIf", entry.Kind)
	}
	if entry.Control != fn.Value("cond") {
		t.Errorf("entry control = %v, want cond", entry.Control)
	}
	exit := fn.Block("exit")
	if len(exit.Preds) != 2 {
		t.Fatalf("exit has %d preds, want 2", len(exit.Preds))
	}
	p := fn.Value("p")
	if len(p.Args) != 2 || p.Args[0] != fn.Value("mem") || p.Args[1] != fn.Value("mem") {
		t.Errorf("phi p args = %v, want [mem, mem]", p.Args)
	}
}
