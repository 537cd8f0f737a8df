package ir

import "fmt"

// valueTable is the hash set keyed on (opcode, mode, attributes, inputs)
// used for structural value-numbering. Since every input is itself
// already interned, equality of input sequences reduces to identity
// (pointer) comparison -- which is exactly what the generated string
// key below captures by encoding each arg's ID rather than its
// contents.
type valueTable struct {
	entries map[string]*Node
}

func newValueTable() *valueTable {
	return &valueTable{entries: make(map[string]*Node)}
}

// eligibleForVN reports whether op ever participates in value-numbering.
// Nodes with control-flow or block-pinned side effects are never
// interned, and neither are Loads, since aliasing means two loads of the
// same address separated by a store must not collapse. Phis are
// excluded because their identity depends on block position, not purely
// on inputs.
func eligibleForVN(op Op) bool {
	switch op {
	case OpConst, OpSymConst, OpAdd, OpSub, OpMul, OpCmp, OpSel, OpProj:
		return true
	default:
		return false
	}
}

func (vt *valueTable) key(n *Node) string {
	key := fmt.Sprintf("%d|%s|%v|%p|", n.Op, n.Mode, n.Aux, n.Entity)
	for _, a := range n.Args {
		if a == nil {
			key += "nil,"
			continue
		}
		key += fmt.Sprintf("%d,", a.id)
	}
	return key
}

// intern looks up a structurally-equal node already in the table; if
// found, returns it (the canonical node) and true. Otherwise registers n
// as canonical and returns (n, false). Commutative ops are normalized by
// sorting args by ID first so Add(a,b) and Add(b,a) intern to the same
// entry.
func (vt *valueTable) intern(n *Node) (*Node, bool) {
	if !eligibleForVN(n.Op) {
		return n, false
	}
	if n.Op.Commutative() && len(n.Args) == 2 && n.Args[0] != nil && n.Args[1] != nil {
		if n.Args[0].id > n.Args[1].id {
			n.Args[0], n.Args[1] = n.Args[1], n.Args[0]
		}
	}
	k := vt.key(n)
	if existing, ok := vt.entries[k]; ok {
		return existing, true
	}
	vt.entries[k] = n
	return n, false
}

// forget removes n from the table, e.g. when it is replaced via
// Exchange and should no longer be returned as a canonical value.
func (vt *valueTable) forget(n *Node) {
	if !eligibleForVN(n.Op) {
		return
	}
	k := vt.key(n)
	if vt.entries[k] == n {
		delete(vt.entries, k)
	}
}
