// Package abi lowers target-independent Call/Alloc/Free nodes into the
// backend opcodes introduced for that purpose (CallBE, IncSP, SPAddr,
// FPAddr, Keep), composes the per-graph stack frame, and fixes up the
// stack-pointer data flow and frame-relative offsets once the frame's
// final layout is known. Grounded on libFirm's ir/be/beabi.c and
// ir/be/bestack.c; kept target-agnostic the same way internal/regalloc
// is, by taking the calling convention as a small interface rather than
// a concrete register file.
package abi

import "firmgo/internal/ir"

// ArgClass is how one call argument or result is transmitted, and the
// padding/alignment the calling convention wants around it on the
// stack when it isn't register-passed.
type ArgClass struct {
	InRegister  bool
	SpaceBefore int64
	SpaceAfter  int64
	Alignment   int64 // bytes; must be a power of two, minimum 1
}

// CallDescriptor is the target-provided call ABI: which parameters and
// results go in registers vs. on the stack, and whether a callee
// clobbers every caller-save register because it can be re-entered
// (setjmp-style "returns twice").
type CallDescriptor interface {
	ClassifyParam(index int, t *ir.Type) ArgClass
	ClassifyResult(index int, t *ir.Type) ArgClass
	ReturnsTwice(callee *ir.Entity) bool
}

// Config carries the handful of target facts ABI lowering needs beyond
// the call descriptor: which way the stack grows and its required
// alignment, and the pointer mode used for SP arithmetic.
type Config struct {
	StackDirection int // -1: grows toward lower addresses, +1: grows up
	StackAlignment int64
	PointerMode    ir.Mode
}

// SimpleDescriptor is a minimal CallDescriptor: a parameter is
// register-passed when its index is below NumIntRegs and its type is
// nil, integer or pointer; every other parameter is passed on the stack.
// Result 0 is returned in a register, every other result in the
// stack/return-value slot. Good enough to exercise the lowering
// pipeline without committing this core to any real target's register
// file.
type SimpleDescriptor struct {
	NumIntRegs      int
	StackAlign      int64
	ReturnsTwiceSet map[*ir.Entity]bool
}

func (d SimpleDescriptor) ClassifyParam(index int, t *ir.Type) ArgClass {
	align := d.StackAlign
	if align == 0 {
		align = 8
	}
	if index < d.NumIntRegs && (t == nil || t.Mode.Kind == ir.KindInt || t.Mode.Kind == ir.KindPointer) {
		return ArgClass{InRegister: true, Alignment: align}
	}
	return ArgClass{Alignment: align}
}

func (d SimpleDescriptor) ClassifyResult(index int, t *ir.Type) ArgClass {
	align := d.StackAlign
	if align == 0 {
		align = 8
	}
	return ArgClass{InRegister: index == 0, Alignment: align}
}

func (d SimpleDescriptor) ReturnsTwice(callee *ir.Entity) bool {
	return d.ReturnsTwiceSet != nil && d.ReturnsTwiceSet[callee]
}

func roundUp(v, align int64) int64 {
	if align <= 1 {
		return v
	}
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + (align - rem)
}
