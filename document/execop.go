package document

import (
	"github.com/agentflare-ai/go-xmldom"

	"github.com/agentflare-ai/agentmlcore"
)

// OpKind discriminates the ExecOp sum type (spec.md §9 design note).
type OpKind int

const (
	OpLog OpKind = iota
	OpRaise
	OpSend
	OpCancel
	OpAssign
	OpScript
	OpIf
	OpForeach
	OpCustom
)

func (k OpKind) String() string {
	switch k {
	case OpLog:
		return "log"
	case OpRaise:
		return "raise"
	case OpSend:
		return "send"
	case OpCancel:
		return "cancel"
	case OpAssign:
		return "assign"
	case OpScript:
		return "script"
	case OpIf:
		return "if"
	case OpForeach:
		return "foreach"
	case OpCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// ExecOp is one compiled piece of executable content. Exactly one of the
// kind-specific fields is populated, matching OpKind. Representing
// executable content as data (rather than closures) lets the interpreter
// own all control flow and lets diagnostics point at the originating
// element uniformly.
type ExecOp struct {
	Kind OpKind

	Log     *scxml.Log
	Raise   *scxml.Raise
	Send    *scxml.Send
	Cancel  *scxml.Cancel
	Assign  *scxml.Assign
	Script  *scxml.Script
	If      []IfBranch
	Foreach *ForeachOp
	Custom  xmldom.Element // unrecognized / namespaced element
}

// IfBranch is one arm of a compiled <if>/<elseif>/<else> chain. Cond is
// empty for the trailing <else> branch, if present.
type IfBranch struct {
	Cond    string
	Element xmldom.Element
	Body    []ExecOp
}

// ForeachOp is a compiled <foreach> with its child executable content.
type ForeachOp struct {
	*scxml.Foreach
	Body []ExecOp
}
