// Package irtest holds utility functions for defining Graphs in tests.
// As an example, the following graph
//
//	entry:
//	  v1 = Arg <mem>
//	  Jmp -> exit
//	exit:
//	  Return v1
//
// can be defined as
//
//	g := Fun("entry",
//	    Bloc("entry",
//	        Valu("mem", ir.OpArg, ir.ModeM, nil),
//	        Goto("exit")),
//	    Bloc("exit",
//	        Return("mem")))
//
// and the blocks or values used can be accessed like this:
//
//	g.Block("entry") or g.Value("mem")
package irtest

import (
	"log"
	"reflect"

	"firmgo/internal/ir"
)

// Fn is the return type of Fun. It carries the constructed graph plus
// name -> node indexes, so a test can reach into the pieces it built by
// the names it gave them.
type Fn struct {
	Graph  *ir.Graph
	blocks map[string]*ir.Node
	values map[string]*ir.Node
}

func (f Fn) Block(name string) *ir.Node { return f.blocks[name] }
func (f Fn) Value(name string) *ir.Node { return f.values[name] }

// Fun takes the name of an entry bloc and a series of Bloc calls, wires
// them into a *ir.Graph, and returns the composed Fn. entry must be a
// name supplied to one of the Bloc calls. Bloc and Valu names must be
// unique across the Fun.
//
// entry is bound to the graph's own pre-existing StartBlock rather than
// a freshly allocated one, since ir.NewGraph already creates it matured
// with no predecessors -- the same role a hand-written entry bloc plays.
// That means an edge back into entry (an irreducible loop through the
// function's first block) is not expressible through this DSL; every
// real caller of this package gives the entry block no predecessors,
// which is the common case for a single function's CFG.
func Fun(entry string, blocs ...bloc) Fn {
	fakeEntity := ir.NewEntity(ir.NewType(ir.TypeClass, "irtest", ir.ModeBad), "fn", nil)
	g := ir.NewGraph(fakeEntity, 0, nil)

	blocks := make(map[string]*ir.Node)
	values := make(map[string]*ir.Node)

	for _, b := range blocs {
		if b.name == entry {
			blocks[b.name] = g.StartBlock
		} else {
			blocks[b.name] = g.NewBlock()
		}
	}

	// Wire predecessor/successor edges before maturing any block, and
	// before creating Phis, which need a block's final Preds count.
	for _, b := range blocs {
		from := blocks[b.name]
		for _, succ := range b.control.succs {
			to, ok := blocks[succ]
			if !ok {
				log.Panicf("bloc %s: successor %s not defined", b.name, succ)
			}
			if err := g.AddEdge(from, to); err != nil {
				log.Panicf("bloc %s -> %s: %v", b.name, succ, err)
			}
		}
	}
	for _, b := range blocs {
		blk := blocks[b.name]
		if blk == g.StartBlock {
			continue
		}
		if err := g.MatureBlock(blk); err != nil {
			log.Panicf("bloc %s: %v", b.name, err)
		}
	}

	// Create every value with no args yet (Phis sized off the now-final
	// Preds list), then fill in args in a second pass so a value can
	// reference another value defined later in program order (e.g. a
	// loop header Phi referencing a value from the loop body).
	for _, b := range blocs {
		blk := blocks[b.name]
		for _, v := range b.valus {
			var n *ir.Node
			if v.op == ir.OpPhi {
				n = g.NewPhi(blk, v.mode)
			} else {
				n = g.NewValue(blk, v.op, v.mode, v.aux)
			}
			values[v.name] = n
		}
	}
	for _, b := range blocs {
		for _, v := range b.valus {
			n := values[v.name]
			if n.Op == ir.OpPhi {
				if len(v.args) != len(n.Args) {
					log.Panicf("value %s: phi wants %d args (one per predecessor), got %d", v.name, len(n.Args), len(v.args))
				}
				for i, argName := range v.args {
					a, ok := values[argName]
					if !ok {
						log.Panicf("value %s: arg %s not defined", v.name, argName)
					}
					g.SetInput(n, i, a)
				}
				continue
			}
			for _, argName := range v.args {
				a, ok := values[argName]
				if !ok {
					log.Panicf("value %s: arg %s not defined", v.name, argName)
				}
				n.AddArg(a)
			}
		}
	}

	// Finally, set each block's control/kind -- Cond and Return need
	// live argument nodes, which only exist after the pass above.
	for _, b := range blocs {
		blk := blocks[b.name]
		c := b.control
		switch c.kind {
		case ir.BlockPlain:
			// already the default for both StartBlock and NewBlock.
		case ir.BlockIf:
			cond, ok := values[c.args[0]]
			if !ok {
				log.Panicf("bloc %s: condition value %s not defined", b.name, c.args[0])
			}
			if err := g.NewCond(blk, cond); err != nil {
				log.Panicf("bloc %s: %v", b.name, err)
			}
		case ir.BlockReturn:
			mem, ok := values[c.args[0]]
			if !ok {
				log.Panicf("bloc %s: mem value %s not defined", b.name, c.args[0])
			}
			results := make([]*ir.Node, 0, len(c.args)-1)
			for _, rname := range c.args[1:] {
				r, ok := values[rname]
				if !ok {
					log.Panicf("bloc %s: result value %s not defined", b.name, rname)
				}
				results = append(results, r)
			}
			g.NewReturn(blk, mem, results...)
		default:
			log.Panicf("bloc %s: unhandled control kind", b.name)
		}
	}

	return Fn{Graph: g, blocks: blocks, values: values}
}

// Bloc defines a block for Fun. name should be unique across the
// containing Fun. entries should consist of Valu calls plus exactly one
// of Goto, If, or Return to specify the block's control transfer.
func Bloc(name string, entries ...interface{}) bloc {
	b := bloc{name: name}
	seenCtrl := false
	for _, e := range entries {
		switch v := e.(type) {
		case ctrl:
			if seenCtrl {
				log.Panicf("bloc %s: more than one control entry", name)
			}
			b.control = v
			seenCtrl = true
		case valu:
			b.valus = append(b.valus, v)
		}
	}
	if !seenCtrl {
		log.Panicf("bloc %s: missing control (Goto/If/Return)", name)
	}
	return b
}

// Valu defines a value in a block. args names the values feeding its
// input slots, in order; for a Phi value, args must list exactly one
// name per the block's predecessor, in Preds order.
func Valu(name string, op ir.Op, mode ir.Mode, aux interface{}, args ...string) valu {
	return valu{name, op, mode, aux, args}
}

// Goto marks a block BlockPlain with the single named successor.
func Goto(succ string) ctrl {
	return ctrl{kind: ir.BlockPlain, succs: []string{succ}}
}

// If marks a block BlockIf, branching on the named boolean value to sub
// (true) or alt (false).
func If(cond, sub, alt string) ctrl {
	return ctrl{kind: ir.BlockIf, args: []string{cond}, succs: []string{sub, alt}}
}

// Return marks a block BlockReturn, returning mem and the named result
// values.
func Return(mem string, results ...string) ctrl {
	return ctrl{kind: ir.BlockReturn, args: append([]string{mem}, results...)}
}

// bloc, ctrl, and valu are internal structures Bloc/Valu/Goto/If/Return
// use to describe a Fun before it is built.

type bloc struct {
	name    string
	control ctrl
	valus   []valu
}

type ctrl struct {
	kind  ir.BlockKind
	args  []string // condition, or mem+results, depending on kind
	succs []string
}

type valu struct {
	name string
	op   ir.Op
	mode ir.Mode
	aux  interface{}
	args []string
}

// Equiv reports whether f and g's graphs are isomorphic: same CFG shape,
// same op/mode/aux/arg-count at every corresponding value. Requires
// values and predecessors to appear in the same order, even though two
// graphs could be equivalent under a looser correspondence.
func Equiv(f, g *ir.Graph) bool {
	valcor := make(map[*ir.Node]*ir.Node)
	var checkVal func(fv, gv *ir.Node) bool
	checkVal = func(fv, gv *ir.Node) bool {
		if fv == nil && gv == nil {
			return true
		}
		if fv == nil || gv == nil {
			return false
		}
		if valcor[fv] == nil && valcor[gv] == nil {
			valcor[fv] = gv
			valcor[gv] = fv
			if fv.Op != gv.Op || !fv.Mode.Equal(gv.Mode) {
				return false
			}
			if !reflect.DeepEqual(fv.Aux, gv.Aux) {
				return false
			}
			if len(fv.Args) != len(gv.Args) {
				return false
			}
			for i := range fv.Args {
				if !checkVal(fv.Args[i], gv.Args[i]) {
					return false
				}
			}
			return true
		}
		return valcor[fv] == gv && valcor[gv] == fv
	}

	blkcor := make(map[*ir.Node]*ir.Node)
	var checkBlk func(fb, gb *ir.Node) bool
	checkBlk = func(fb, gb *ir.Node) bool {
		if blkcor[fb] == nil && blkcor[gb] == nil {
			blkcor[fb] = gb
			blkcor[gb] = fb
			if fb.Kind != gb.Kind {
				return false
			}
			fv, gv := blockValues(fb), blockValues(gb)
			if len(fv) != len(gv) {
				return false
			}
			for i := range fv {
				if !checkVal(fv[i], gv[i]) {
					return false
				}
			}
			if !checkVal(fb.Control, gb.Control) {
				return false
			}
			if len(fb.Succs) != len(gb.Succs) {
				return false
			}
			for i := range fb.Succs {
				if !checkBlk(fb.Succs[i], gb.Succs[i]) {
					return false
				}
			}
			if len(fb.Preds) != len(gb.Preds) {
				return false
			}
			for i := range fb.Preds {
				if !checkBlk(fb.Preds[i], gb.Preds[i]) {
					return false
				}
			}
			return true
		}
		return blkcor[fb] == gb && blkcor[gb] == fb
	}

	return checkBlk(f.StartBlock, g.StartBlock)
}

// blockValues returns every value the graph attributes to block b, in
// allocation order: b's Phis followed by every other non-Block node
// whose Block field is b. internal/ir has no per-block value list of
// its own (placement computes ordering on demand via
// internal/regalloc.LocalOrders), so Equiv derives one directly from
// the graph's arena, which is sufficient for the small hand-built
// graphs this package constructs.
func blockValues(b *ir.Node) []*ir.Node {
	g := b.Graph()
	var out []*ir.Node
	out = append(out, b.Phis...)
	for _, n := range g.Nodes() {
		if n.Op == ir.OpBlock || n.Op == ir.OpPhi || n.Block != b {
			continue
		}
		out = append(out, n)
	}
	return out
}
