package abi

import (
	"github.com/pkg/errors"

	"firmgo/internal/ir"
)

// LowerCall rewrites call (an OpCall node) into IncSP/Store/CallBE/Keep/
// IncSP per adjust_call: pre-allocate the stack-argument area, store
// each stack-passed argument at its computed offset, issue the backend
// call with SP/address/register-args, keep caller-saved-register
// liveness across it, then deallocate the argument area. Returns the SP
// value after the call, to thread into whatever the block lowers next.
//
// keep is the set the Call already needs kept live across it (its
// register-passed results, typically); allCallerSaved is the target's
// complete caller-save set, used in full instead of keep when the
// callee returns twice, since a re-entered callee clobbers every
// caller-save register, not just the ones this call happens to use.
func LowerCall(g *ir.Graph, call *ir.Node, sp *ir.Node, desc CallDescriptor, cfg Config, keep, allCallerSaved []*ir.Node) (*ir.Node, error) {
	if call.Op != ir.OpCall {
		return nil, errors.Errorf("LowerCall: %s is not a Call node", call.ShortString())
	}
	block := call.Block
	callee := call.Entity
	var methodType *ir.Type
	if callee != nil {
		methodType = callee.Type
	}
	mem := call.Args[0]
	args := call.Args[1:]

	type stackArg struct {
		arg  *ir.Node
		cls  ArgClass
		size int64
	}
	var stackArgs []stackArg
	var regArgs []*ir.Node
	var stackSize int64
	for i, a := range args {
		t := paramType(methodType, i)
		cls := desc.ClassifyParam(i, t)
		if cls.InRegister {
			regArgs = append(regArgs, a)
			continue
		}
		size := argSize(t, a)
		stackSize += roundUp(cls.SpaceBefore, cls.Alignment)
		stackSize += roundUp(size, cls.Alignment)
		stackSize += roundUp(cls.SpaceAfter, cls.Alignment)
		stackArgs = append(stackArgs, stackArg{arg: a, cls: cls, size: size})
	}

	currSP := sp
	var preAllocated int64
	if stackSize > 0 {
		if cfg.StackDirection < 0 {
			preAllocated = -stackSize
		} else {
			preAllocated = stackSize
		}
		currSP = g.NewIncSP(block, currSP, preAllocated, false)
	}

	var storeMems []*ir.Node
	curOfs := int64(0)
	for _, sa := range stackArgs {
		curOfs = roundUp(curOfs+sa.cls.SpaceBefore, sa.cls.Alignment)
		addr := currSP
		if curOfs != 0 {
			off := g.NewConst(block, cfg.PointerMode, curOfs)
			var err error
			addr, err = g.NewAdd(block, currSP, off)
			if err != nil {
				return nil, err
			}
		}
		store, err := g.NewStore(block, mem, addr, sa.arg)
		if err != nil {
			return nil, err
		}
		storeMems = append(storeMems, store)
		curOfs += sa.size + sa.cls.SpaceAfter
	}

	callMem := mem
	switch len(storeMems) {
	case 0:
	case 1:
		callMem = storeMems[0]
	default:
		callMem = g.NewSync(block, storeMems...)
	}

	addr := g.NewSymConst(block, cfg.PointerMode, callee)
	callBE := g.NewCallBE(block, callMem, currSP, addr, regArgs...)

	keepVals := keep
	if desc.ReturnsTwice(callee) {
		keepVals = allCallerSaved
	}
	if len(keepVals) > 0 {
		g.NewKeep(block, keepVals...)
	}

	postSP := currSP
	if preAllocated != 0 {
		postSP = g.NewIncSP(block, currSP, -preAllocated, false)
	}

	g.Exchange(call, callBE)
	return postSP, nil
}

func paramType(methodType *ir.Type, index int) *ir.Type {
	if methodType == nil || index >= len(methodType.Params) {
		return nil
	}
	return methodType.Params[index]
}

func argSize(t *ir.Type, a *ir.Node) int64 {
	if t != nil && t.Size > 0 {
		return t.Size
	}
	return int64(a.Mode.Size) / 8
}
