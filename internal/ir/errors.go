package ir

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is a closed set of error kinds. It is never a language exception
// hierarchy -- it is an explicit tag a driver can switch on to decide
// whether to retry, log, or abort.
type Kind uint8

const (
	_ Kind = iota
	// InvariantViolation: a structural IR invariant is broken; always a
	// bug in a caller, never recovered.
	InvariantViolation
	// ResourceBusy: a pass requested a resource lock already held.
	ResourceBusy
	// ResourceUnderflow: a pass released a resource lock it didn't hold.
	ResourceUnderflow
	// ModeMismatch: a constructor's typing rule rejected its inputs.
	ModeMismatch
	// NotBuilding: a construction-only operation was called outside a
	// bracketed construction phase.
	NotBuilding
	// ConstraintUnsatisfiable: register allocation could not satisfy a
	// node's constraints; reported to the driver, not recovered here.
	ConstraintUnsatisfiable
	// UnreachableCode: informational; the block was replaced by Bad.
	UnreachableCode
)

func (k Kind) String() string {
	switch k {
	case InvariantViolation:
		return "InvariantViolation"
	case ResourceBusy:
		return "ResourceBusy"
	case ResourceUnderflow:
		return "ResourceUnderflow"
	case ModeMismatch:
		return "ModeMismatch"
	case NotBuilding:
		return "NotBuilding"
	case ConstraintUnsatisfiable:
		return "ConstraintUnsatisfiable"
	case UnreachableCode:
		return "UnreachableCode"
	default:
		return "Unknown"
	}
}

// Error is the error type raised by every fallible graph operation. It
// carries the offending node(s)/resource so a driver can report a
// precise diagnostic.
type Error struct {
	Kind    Kind
	Message string
	Node    *Node
	Other   *Node
	Which   string // invariant name (I1..I7) or resource name
}

func (e *Error) Error() string {
	switch {
	case e.Node != nil && e.Which != "":
		return fmt.Sprintf("%s(%s): %s [node %s]", e.Kind, e.Which, e.Message, e.Node.ShortString())
	case e.Node != nil:
		return fmt.Sprintf("%s: %s [node %s]", e.Kind, e.Message, e.Node.ShortString())
	case e.Which != "":
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Which, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// newErr wraps the Error with a stack trace via pkg/errors so a driver
// logging an InvariantViolation can print a trace back to the pass that
// raised it.
func newErr(e *Error) error {
	return errors.WithStack(e)
}

func errInvariant(which, msg string, n *Node) error {
	return newErr(&Error{Kind: InvariantViolation, Which: which, Message: msg, Node: n})
}

func errResourceBusy(resource string) error {
	return newErr(&Error{Kind: ResourceBusy, Which: resource, Message: "resource already locked"})
}

func errResourceUnderflow(resource string) error {
	return newErr(&Error{Kind: ResourceUnderflow, Which: resource, Message: "resource not locked"})
}

func errModeMismatch(op Op, slot int, expected, actual Mode, n *Node) error {
	return newErr(&Error{
		Kind:    ModeMismatch,
		Message: fmt.Sprintf("%s slot %d: expected mode %s, got %s", op, slot, expected, actual),
		Node:    n,
	})
}

func errNotBuilding(op string) error {
	return newErr(&Error{Kind: NotBuilding, Message: op + " called outside construction phase"})
}

// ConstraintError reports a ConstraintUnsatisfiable failure from the
// register allocator, identifying the offending node and the
// constrained resource (a register class or a slot class).
func ConstraintError(n *Node, resource string) error {
	return newErr(&Error{Kind: ConstraintUnsatisfiable, Node: n, Which: resource, Message: "constraint unsatisfiable"})
}

// AsError unwraps err (however it was wrapped) back to the underlying
// *Error, or returns nil if err is not one of ours.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
