package scxml

import "time"

// EventType represents the category of an SCXML event (W3C 5.10.1).
type EventType string

const (
	EventTypeInternal EventType = "internal"
	EventTypeExternal EventType = "external"
	EventTypePlatform EventType = "platform"
)

// Event represents an SCXML event as defined in the W3C specification.
type Event struct {
	ID         string    `json:"id"`                    // Unique event id
	Name       string    `json:"name"`                  // Event name for matching, dot-segmented
	Type       EventType `json:"type"`                   // internal, external, or platform
	Delay      string    `json:"delay,omitempty"`        // Delay for delayed events (CSS2 time)
	Data       any       `json:"data"`                   // Event data payload
	Metadata   any       `json:"metadata,omitempty"`     // Metadata for the event
	InvokeID   string    `json:"invokeid,omitempty"`      // Set when the event came from an <invoke>
	Timestamp  time.Time `json:"timestamp"`              // When the event was created
	Origin     string    `json:"origin,omitempty"`       // Origin of external events
	OriginType string    `json:"origintype,omitempty"`   // Type of origin
	SendID     string    `json:"sendid,omitempty"`       // id of the <send> that produced this event
	Raw        string    `json:"raw,omitempty"`          // Raw data, e.g. for BasicHTTP-shaped events
	Target     string    `json:"target,omitempty"`       // Target URI from the originating <send>
	TargetType string    `json:"targettype,omitempty"`   // I/O processor type URI from the originating <send>
	Language   string    `json:"language,omitempty"`     // Scripting language tag, datamodel-specific
}

// NameTokens splits the dot-segmented event name into tokens for transition
// matching (spec.md §4.2 event matching rule).
func (e *Event) NameTokens() []string {
	if e == nil || e.Name == "" {
		return nil
	}
	return splitDotted(e.Name)
}

// CancelEventName is the distinguished external event that terminates a
// session's main loop (spec.md §3 "A distinguished Cancel event terminates
// the machine").
const CancelEventName = "_agentmlcore.cancel"

// NewCancelEvent builds the sentinel Cancel event posted by engine's
// Machine.Cancel and by a parent cancelling an invoked child session.
func NewCancelEvent() *Event {
	return &Event{Name: CancelEventName, Type: EventTypePlatform}
}

// IsCancelEvent reports whether e is the distinguished Cancel sentinel.
func IsCancelEvent(e *Event) bool {
	return e != nil && e.Name == CancelEventName
}

func splitDotted(name string) []string {
	var out []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			out = append(out, name[start:i])
			start = i + 1
		}
	}
	out = append(out, name[start:])
	return out
}
