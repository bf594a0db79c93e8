package scxml

import (
	"fmt"

	"github.com/agentflare-ai/go-xmldom"
)

// ExecutionError represents an error that occurred while compiling or
// walking the document tree, independent of any particular runtime event.
type ExecutionError struct {
	Message string
	Element xmldom.Element
}

func (e *ExecutionError) Error() string {
	if e.Element == nil {
		return fmt.Sprintf("execution error: %s", e.Message)
	}
	line, column, _ := e.Element.Position()
	return fmt.Sprintf("execution error: %s in %s at %d:%d", e.Message, e.Element.TagName(), line, column)
}

var _ error = (*ExecutionError)(nil)

// PlatformError represents an error that should generate a platform error
// event on the internal queue (SCXML 5.10.2 / SPEC_FULL.md §7).
type PlatformError struct {
	EventName string         // The error event name (e.g., "error.execution")
	Message   string         // Human-readable error message
	Data      map[string]any // Additional error data (element, line, sendid, ...)
	Cause     error          // Wrapped underlying error
}

func (e *PlatformError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *PlatformError) Unwrap() error {
	return e.Cause
}

// PlatformEvent returns the event name/data pair this error should raise
// on the internal queue (SCXML 5.10.2). Promoted to every named error
// kind below that embeds *PlatformError, so a generic interface check
// finds it regardless of the error's concrete wrapper type.
func (e *PlatformError) PlatformEvent() (string, map[string]any) {
	return e.EventName, e.Data
}

var _ error = (*PlatformError)(nil)

// NewPlatformError builds a *PlatformError for the given event name/message,
// optionally carrying a sendid (per spec.md §7: "<send> errors carry the
// send's sendid in the resulting event").
func NewPlatformError(eventName, message string, cause error, data map[string]any) *PlatformError {
	if data == nil {
		data = map[string]any{}
	}
	return &PlatformError{EventName: eventName, Message: message, Cause: cause, Data: data}
}

// The named error kinds from SPEC_FULL.md / spec.md §7. Each wraps a
// *PlatformError so callers can recover the specific kind via errors.As
// while the platform event machinery only needs the embedded PlatformError.

// ExprEvalError is raised when a datamodel expression evaluation fails.
type ExprEvalError struct{ *PlatformError }

// AttributeEvalError is raised when an attrexpr evaluation fails or yields
// an illegal value.
type AttributeEvalError struct{ *PlatformError }

// IllegalLocationError is raised when <assign>/idlocation targets an
// undeclared location.
type IllegalLocationError struct{ *PlatformError }

// SendExecutionError is raised for malformed <send> attributes: bad type,
// bad delay, or a missing event name.
type SendExecutionError struct{ *PlatformError }

// SendCommunicationError is raised when a <send> target is unreachable:
// missing session, missing invoke, or a canceled/exited parent.
type SendCommunicationError struct{ *PlatformError }

// ScriptFetchError is raised at compile time when a <script src> or
// <data src> fetch fails; it aggregates every failing src into one error.
type ScriptFetchError struct {
	Sources []string
	Causes  []error
}

func (e *ScriptFetchError) Error() string {
	return fmt.Sprintf("failed to fetch %d script/data source(s): %v", len(e.Sources), e.Sources)
}

// DataModelError is raised for an illegal identifier or a write to a
// protected ("hidden" or "assignOnce") datamodel key.
type DataModelError struct{ *PlatformError }

// InvokeError is raised for a malformed <invoke> element.
type InvokeError struct{ *PlatformError }

// ExecutableContainerError is raised when a child of <foreach>/<if> raises
// during execution; it wraps the underlying cause with container context.
type ExecutableContainerError struct{ *PlatformError }

// CompileError aggregates every diagnostic produced while compiling a
// document in strict mode (SPEC_FULL.md §4.1).
type CompileError struct {
	Diagnostics []Trace
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile failed with %d diagnostic(s)", len(e.Diagnostics))
}
