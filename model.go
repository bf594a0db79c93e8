// Package scxml defines the core contracts and executable-content element
// types shared by the compiler, interpreter, and host embedders of the
// agentmlcore SCXML 1.0 runtime.
package scxml

import "github.com/agentflare-ai/go-xmldom"

// DefaultNamespaceURI is the canonical SCXML 1.0 namespace. The compiler
// injects this namespace into documents whose root element is recognizably
// SCXML but lacks it (SPEC_FULL.md §4.1).
const DefaultNamespaceURI = "http://www.w3.org/2005/07/scxml"

// Data represents a <data> element defined in a document's <datamodel>.
type Data struct {
	xmldom.Element
	ID      string // The data element identifier
	Expr    string // Optional initial value expression
	Src     string // Optional external source URI
	Content any    // Optional XML content (for XPath-style data models)
}

// Param represents a <param> element used by <send>, <invoke>, and <donedata>
// (SCXML 5.7).
type Param struct {
	xmldom.Element
	Name     string // The name of the parameter key
	Expr     string // Optional value expression to evaluate
	Location string // Optional location expression to retrieve value from
}

// Script provides scripting capabilities (SCXML 5.8).
type Script struct {
	xmldom.Element
	Src     string // Optional URI of external script to load
	Content string // Inline script content
}

// If provides conditional execution with elseif/else branches (SCXML 4.3).
// Cond is empty for an <else> branch.
type If struct {
	xmldom.Element
	Cond string
}

// Foreach iterates over a collection in the data model (SCXML 4.6).
type Foreach struct {
	xmldom.Element
	Array string // Value expression that evaluates to an iterable collection
	Item  string // Variable name to store each item during iteration
	Index string // Optional variable name to store the iteration index
}

// Assign changes the value of a location in the data model (SCXML 5.4).
type Assign struct {
	xmldom.Element
	Location    string        // Location expression specifying where to assign the value
	Expr        string        // Optional value expression to evaluate and assign
	AssignType  string        // Optional type attribute governing XML handling modes
	InlineNodes []xmldom.Node // Inline XML/text content used when Expr is absent
	Content     string        // Text content fallback
}

// Log generates a logging or debug message (SCXML 5.11).
type Log struct {
	xmldom.Element
	Label string // Optional label for the log message
	Expr  string // Expression to evaluate and log
}

// Content represents inline or computed content for <send>/<invoke>/<donedata>
// (SCXML 5.6).
type Content struct {
	xmldom.Element
	Expr string // Optional value expression to evaluate
	Body any    // Optional inline content body (parsed XML, text, etc.)
}

// DoneData is the payload a <final> state attaches to the done.state.* /
// done.invoke.* event it causes, built from a <donedata> element's <param>
// and <content> children (SPEC_FULL.md §10, grounded on the original
// implementation's SCXMLNode.donedata).
type DoneData struct {
	Params  []Param
	Content *Content
}

// SendData is the fully-evaluated form of a <send>, used both for the
// embedding API's SendMessage/ScheduleMessage and for constructing the
// Event delivered to a resolved sink.
type SendData struct {
	Event    string   // Event name to send
	Target   string   // Target URI for the message
	Type     string   // I/O processor type URI
	ID       string   // Send identifier
	Delay    string   // Delay duration (CSS2 format)
	NameList []string // List of data model locations to include
	Params   []Param  // Parameter key-value pairs
	Content  *Content // Content payload (nil if not present)
}

// Send sends an event to a specified destination (SCXML 6.2).
type Send struct {
	xmldom.Element
	Event      string   // Optional event name to send
	EventExpr  string   // Optional dynamic event name expression
	Target     string   // Optional target URI
	TargetExpr string   // Optional dynamic target expression
	TypeURI    string   // Optional I/O processor type URI
	TypeExpr   string   // Optional dynamic type expression
	SendID     string   // Optional send identifier
	IdLocation string   // Optional location to store the generated id
	Delay      string   // Optional delay duration (CSS2 format)
	DelayExpr  string   // Optional dynamic delay expression
	NameList   []string // Optional list of data model locations to include
	Params     []Param  // Optional parameter key-value pairs
	Content    *Content // Optional content payload
}

// Cancel cancels a previously scheduled delayed <send> (SCXML 6.3).
type Cancel struct {
	xmldom.Element
	SendID     string // The id of the send element to cancel
	SendIDExpr string // Optional expression to compute the send id
}

// Raise raises an internal event (SCXML 6.4).
type Raise struct {
	xmldom.Element
	Event     string // Event name to raise
	EventExpr string // Optional dynamic event name expression
}

// Finalize processes an event returned from an <invoke> (SCXML 6.5).
type Finalize struct {
	xmldom.Element
}

const (
	EventSystemVariable        = "_event"
	SessionIDSystemVariable    = "_sessionid"
	NameSystemVariable         = "_name"
	IOProcessorsSystemVariable = "_ioprocessors"
	XSystemVariable            = "_x"
)
