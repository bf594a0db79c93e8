// Package document defines the compiled, in-memory SCXML document graph:
// an arena of Nodes addressed by NodeID, with Transitions and compiled
// ExecOp executable-content blocks attached. Values here are produced by
// package compiler and consumed by package interpreter; they never hold a
// reference cycle (spec.md §9 design note: "use arena allocation rather
// than reference cycles").
package document

import (
	"github.com/agentflare-ai/go-xmldom"
)

// NodeID indexes into Document.Nodes. The zero value is the root node's
// id; use NoNode for "absent".
type NodeID int

// NoNode is the sentinel for "no node" (e.g. the root's Parent).
const NoNode NodeID = -1

// Kind discriminates the Node variants from spec.md §3: Scxml, State,
// Parallel, Final, History.
type Kind int

const (
	KindSCXML Kind = iota
	KindState
	KindParallel
	KindFinal
	KindHistory
)

func (k Kind) String() string {
	switch k {
	case KindSCXML:
		return "scxml"
	case KindState:
		return "state"
	case KindParallel:
		return "parallel"
	case KindFinal:
		return "final"
	case KindHistory:
		return "history"
	default:
		return "unknown"
	}
}

// HistoryKind distinguishes shallow and deep <history> nodes.
type HistoryKind int

const (
	HistoryShallow HistoryKind = iota
	HistoryDeep
)

// Node is one member of the document's state tree. Every node carries a
// unique StateID (auto-generated when the source document omits one), a
// document-order index N, and a Parent link (NoNode for the root).
type Node struct {
	ID      NodeID
	StateID string
	Kind    Kind
	History HistoryKind // meaningful only when Kind == KindHistory
	N       int         // document order index, assigned by the compiler

	Parent NodeID

	States    []NodeID // <state> children, document order
	Finals    []NodeID // <final> children, document order
	Histories []NodeID // <history> children, document order

	Transitions []*Transition

	OnEntry []ExecOp
	OnExit  []ExecOp

	Initial *Initial // compound states only; nil for atomic/parallel/final

	Invokes []*InvokeSpec

	DoneData *DoneData // Final nodes only

	Data []*DataDecl // <datamodel><data> children declared at this node

	firstEntryDone bool

	Source xmldom.Element // originating element, for diagnostics
}

// MarkFirstEntry reports whether this is the node's first entry and flips
// the internal flag so subsequent entries report false. Mirrors the
// original's `s.isFirstEntry` bookkeeping.
func (n *Node) MarkFirstEntry() bool {
	if n.firstEntryDone {
		return false
	}
	n.firstEntryDone = true
	return true
}

// ChildStates returns the state, final and history children grouped by
// kind: all <state>/<parallel> children first, then <final>, then
// <history>, each group in document order. Children of different kinds
// are not interleaved by document position.
func (n *Node) ChildStates() []NodeID {
	out := make([]NodeID, 0, len(n.States)+len(n.Finals)+len(n.Histories))
	out = append(out, n.States...)
	out = append(out, n.Finals...)
	out = append(out, n.Histories...)
	return out
}

// IsAtomic reports whether the node has no state/final children: a Final
// node is always atomic; a State/Parallel/Scxml node is atomic only when
// childless (spec.md's isAtomicState).
func (n *Node) IsAtomic() bool {
	if n.Kind == KindFinal {
		return true
	}
	return len(n.States) == 0 && len(n.Finals) == 0
}

// IsCompound reports whether the node is a non-parallel container with at
// least one state/final child, or is the root (spec.md's isCompoundState,
// which always includes the root).
func (n *Node) IsCompound() bool {
	if n.Parent == NoNode {
		return true
	}
	if n.Kind == KindParallel || n.Kind == KindFinal || n.Kind == KindHistory {
		return false
	}
	return len(n.States) > 0 || len(n.Finals) > 0
}

// Initial describes a compound state's default entry: a list of target ids
// plus optional executable content run only on default (non-history) entry.
type Initial struct {
	Target []string
	Exe    []ExecOp
}

// DataDecl is a compiled <data> declaration.
type DataDecl struct {
	ID      string
	Expr    string
	Src     string
	Content any
	Binding string // "early" or "late", inherited from the document
}

// TransitionType mirrors spec.md's transition type attribute.
type TransitionType int

const (
	TransitionExternal TransitionType = iota
	TransitionInternal
)

// Transition is a compiled <transition>.
type Transition struct {
	Source NodeID
	Target []string // target state ids; empty means targetless
	Event  [][]string // dot-tokenized event patterns; nil/empty means eventless
	Cond   string      // condition expression; empty means always true
	Type   TransitionType
	Exe    []ExecOp

	Index   int            // position among Source's Transitions, document order
	Element xmldom.Element // originating element, for diagnostics (e.g. taking_transition)
}

// DoneData is a Final node's <donedata> payload.
type DoneData struct {
	Params  []ParamDecl
	Content *ContentDecl
}

// ParamDecl is a compiled <param>.
type ParamDecl struct {
	Name     string
	Expr     string
	Location string
}

// ContentDecl is a compiled <content>.
type ContentDecl struct {
	Expr string
	Body any
}

// InvokeSpec is a compiled <invoke>.
type InvokeSpec struct {
	InvokeID    string
	IDLocation  string
	Type        string
	Src         string
	Content     xmldom.Element // inline <content> subtree, if any
	NameList    []string
	Params      []ParamDecl
	Finalize    []ExecOp
	Autoforward bool

	Source xmldom.Element
}
