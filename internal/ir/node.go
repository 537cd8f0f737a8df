package ir

// ID is a node's stable numeric identity within its graph. A 32-bit
// index scheme avoids cmd/compile's raw pointer-as-identity style while
// keeping O(1) comparisons.
type ID int32

// PinState is the 3-state pin classification of a node: it either has
// no control-side semantics and may be re-blocked by placement (Floats),
// is nailed to its constructing block (Pinned), or may raise and is
// likewise kept in its block (ExcPinned). Load, the one ExcPinned opcode
// this package builds, is never value-numbered.
type PinState uint8

const (
	Floats PinState = iota
	Pinned
	ExcPinned
)

// BlockKind classifies a Block's control-transfer shape, mirroring
// cmd/internal/ssa's BlockKind (BlockPlain/BlockIf/BlockCall/BlockExit)
// so placement and ABI lowering can switch on it directly instead of
// re-deriving it from the block's Control node's Op each time.
type BlockKind uint8

const (
	BlockInvalid BlockKind = iota
	BlockPlain             // single successor, unconditional Jmp
	BlockIf                // two successors, Control is a Cmp/bool value
	BlockCall              // one or two successors (normal/exceptional), Control is a Call
	BlockReturn            // no successors, the function returns here
	BlockDead              // unreachable; all Preds are Bad
)

// BlockState is the immature -> matured -> dead state machine a block
// moves through as its predecessor list is filled in and sealed.
type BlockState uint8

const (
	Immature BlockState = iota
	Matured
	Dead
)

// edge is one entry of a node's inverted out-edge index: records that
// User's input slot Slot currently points back at the owning node.
type edge struct {
	User *Node
	Slot int
}

// Node is the single representation for every IR entity: blocks,
// values, and the pseudo-nodes Start/End. Attributes not common to every
// opcode (Entity, Type, constant Aux, Proj index) are optional fields
// rather than a subtype.
type Node struct {
	graph *Graph
	id    ID
	Op    Op
	Mode  Mode
	Pin   PinState

	// Block is input slot -1: the Block this node belongs to (I1). Nil
	// for a Block node itself and for a Bad created by NewBad.
	Block *Node

	// Args are input slots 0..arity-1.
	Args []*Node

	// users is the inverted edge index used by Exchange/SetInput to
	// keep out-edges current in O(|uses|).
	users []edge

	visited ID // graph-relative visit stamp, compared against Graph.visitGen

	// Opcode-specific attributes.
	Entity *Entity
	Type   *Type
	Aux    interface{} // Const value, SymConst target handled via Entity, Proj index (int)

	// Block-only fields (valid iff Op == OpBlock).
	Preds   []*Node
	Succs   []*Node
	Kind    BlockKind
	State   BlockState
	Control *Node // the value deciding BlockIf/BlockCall's branch
	Phis    []*Node
}

func (n *Node) ID() ID { return n.id }

func (n *Node) Graph() *Graph { return n.graph }

// IsBlock reports whether n is a Block node.
func (n *Node) IsBlock() bool { return n.Op == OpBlock }

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return n.ShortString()
}

// ShortString renders "Op<mode>v<id>" for diagnostics, matching the
// terse style of cmd/compile's Value.String().
func (n *Node) ShortString() string {
	return n.Op.String() + "<" + n.Mode.String() + ">v" + itoa(int(n.id))
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	p := len(buf)
	for i > 0 {
		p--
		buf[p] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		p--
		buf[p] = '-'
	}
	return string(buf[p:])
}

// Users returns the nodes that currently reference n on some input slot.
// Duplicates are possible when a single user references n on more than
// one slot (e.g. Add(x, x)).
func (n *Node) Users() []*Node {
	out := make([]*Node, 0, len(n.users))
	for _, e := range n.users {
		out = append(out, e.User)
	}
	return out
}

// NumUses reports the out-degree of n, i.e. how many input slots across
// the graph currently point at n.
func (n *Node) NumUses() int { return len(n.users) }

func (n *Node) addUser(user *Node, slot int) {
	n.users = append(n.users, edge{User: user, Slot: slot})
}

func (n *Node) removeUser(user *Node, slot int) {
	for i, e := range n.users {
		if e.User == user && e.Slot == slot {
			n.users[i] = n.users[len(n.users)-1]
			n.users = n.users[:len(n.users)-1]
			return
		}
	}
}

// AddArg appends v as the next input slot of n, updating v's out-edge
// index. Used by constructors while arity is not yet fixed; Phis are
// created fully sized by NewPhi and filled with SetInput instead.
func (n *Node) AddArg(v *Node) {
	slot := len(n.Args)
	n.Args = append(n.Args, v)
	if v != nil {
		v.addUser(n, slot)
	}
}

// AddArgs appends each of vs in order.
func (n *Node) AddArgs(vs ...*Node) {
	for _, v := range vs {
		n.AddArg(v)
	}
}

// SetInput replaces input slot i of n with v, updating both the old and
// new target's out-edge indices.
func (n *Node) SetInput(i int, v *Node) {
	old := n.Args[i]
	if old == v {
		return
	}
	if old != nil {
		old.removeUser(n, i)
	}
	n.Args[i] = v
	if v != nil {
		v.addUser(n, i)
	}
}
