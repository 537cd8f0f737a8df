package abi

import (
	"github.com/pkg/errors"

	"firmgo/internal/ir"
)

// LowerAlloc rewrites a stack-allocating Alloc(size, type) into an IncSP
// that both reserves the space and produces the new SP as the pointer
// result. Alloc is a tuple (Proj 0 = mem, Proj 1 = pointer) but IncSP is
// not, so its two Proj consumers are redirected by hand rather than
// through a single Exchange: the mem projection passes the incoming
// memory edge straight through (stack growth has no memory effect of
// its own) and the pointer projection is rewired onto the grown SP,
// which doubles as both the new stack pointer and the allocated
// address. Returns the new SP to thread into whatever the block lowers
// next.
func LowerAlloc(g *ir.Graph, alloc *ir.Node, sp *ir.Node, cfg Config) (newSP *ir.Node, err error) {
	if alloc.Op != ir.OpAlloc {
		return nil, errors.Errorf("LowerAlloc: %s is not an Alloc node", alloc.ShortString())
	}
	block := alloc.Block
	mem := alloc.Args[0]

	size := alloc.Type.Size
	aligned := roundUp(size, cfg.StackAlignment)
	delta := aligned
	if cfg.StackDirection < 0 {
		delta = -aligned
	}

	grown := g.NewIncSP(block, sp, delta, false)

	for _, u := range append([]*ir.Node{}, alloc.Users()...) {
		if u.Op != ir.OpProj {
			continue
		}
		if idx, _ := u.Aux.(int); idx == 0 {
			g.Exchange(u, mem)
		} else {
			g.Exchange(u, grown)
		}
	}
	alloc.Op = ir.OpBad
	alloc.Args = nil
	alloc.Aux = nil
	return grown, nil
}

// LowerFree rewrites a stack deallocation back to an IncSP moving SP in
// the opposite direction LowerAlloc moved it. Unlike Alloc, Free is
// already single-result ModeM, so its direct consumers just pass the
// incoming memory edge through unchanged (freeing stack space has no
// memory effect either); the shrunk SP is returned out of band for the
// caller to thread forward, the same way LowerCall and LowerAlloc do.
func LowerFree(g *ir.Graph, free *ir.Node, sp *ir.Node, cfg Config) (newSP *ir.Node, err error) {
	if free.Op != ir.OpFree {
		return nil, errors.Errorf("LowerFree: %s is not a Free node", free.ShortString())
	}
	block := free.Block
	mem := free.Args[0]
	size := free.Type.Size
	aligned := roundUp(size, cfg.StackAlignment)
	delta := -aligned
	if cfg.StackDirection < 0 {
		delta = aligned
	}

	shrunk := g.NewIncSP(block, sp, delta, false)
	g.Exchange(free, mem)
	return shrunk, nil
}
