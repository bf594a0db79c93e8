package scxml

import (
	"context"

	"github.com/agentflare-ai/go-xmldom"
)

// IOProcessor is the interface every send-target sink implements, per W3C
// SCXML §C.1/C.2 and spec.md §4.3's sink table.
type IOProcessor interface {
	// Handle delivers a fully-evaluated event through this processor. All
	// data-model evaluation has already happened; implementations should
	// only perform transport.
	Handle(ctx context.Context, event *Event) error

	// Location returns the URI external entities use to reach this session
	// through this processor, populating _ioprocessors.
	Location(ctx context.Context) (string, error)

	// Type returns the I/O processor type URI.
	Type() string

	// Shutdown releases any resources held by this processor.
	Shutdown(ctx context.Context) error
}

// Executor is executable content bound to an XML element that knows how to
// run itself against an Interpreter. Compiled core executable content
// (<log>, <raise>, ...) is interpreted by the interpreter package directly;
// Executor exists for namespace-registered custom elements (spec.md §4.1
// "pre-processing hook" / "register_custom_executable").
type Executor interface {
	xmldom.Element
	Execute(ctx context.Context, interpreter Interpreter) error
}

// NamespaceLoader constructs a Namespace handler. The interpreter calls it
// lazily, at most once per session per namespace URI, the first time
// executable content from that namespace runs.
type NamespaceLoader func(ctx context.Context, interpreter Interpreter, doc xmldom.Document) (Namespace, error)

// Namespace handles elements from a single foreign XML namespace found
// inside executable content. Handle returns false (with a nil error) when
// the element isn't recognized, letting strict mode decide whether that is
// fatal (spec.md §7: strict escalates unrecognized executable content).
type Namespace interface {
	URI() string
	Handle(ctx context.Context, element xmldom.Element) (bool, error)
	Unload(ctx context.Context) error
}

// IOProcessorLoader constructs an IOProcessor bound to a running
// interpreter, used by custom sendtype registrations.
type IOProcessorLoader func(ctx context.Context, interpreter Interpreter) (IOProcessor, error)

// DataModelLoader constructs a DataModel for a newly created interpreter.
type DataModelLoader func(ctx context.Context, interpreter Interpreter) (DataModel, error)
