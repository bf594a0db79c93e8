package scxml

import (
	"log/slog"

	"github.com/agentflare-ai/go-xmldom"
)

// Position contains source position information for a diagnostic.
type Position struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Offset int64  `json:"offset"`
}

// Trace describes an issue found during compilation or runtime execution,
// grounded on the teacher's validator.Diagnostic shape but folded into the
// core so compiler and interpreter diagnostics share one representation.
type Trace struct {
	Level     slog.Level `json:"level"`
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	Position  Position   `json:"position"`
	Tag       string     `json:"tag,omitempty"`
	Attribute string     `json:"attribute,omitempty"`
	Hints     []string   `json:"hints,omitempty"`
}

// Option adds extra context to a Trace being constructed by a Tracer call.
type Option func(*Trace)

// WithAttribute records which attribute a diagnostic concerns.
func WithAttribute(name string) Option {
	return func(t *Trace) { t.Attribute = name }
}

// WithHints attaches remediation hints to a diagnostic.
func WithHints(hints ...string) Option {
	return func(t *Trace) { t.Hints = append(t.Hints, hints...) }
}

// Tracer collects diagnostics raised while compiling or running a document.
type Tracer interface {
	Error(code, message string, element xmldom.Element, opts ...Option)
	Warn(code, message string, element xmldom.Element, opts ...Option)
	Info(code, message string, element xmldom.Element, opts ...Option)

	Diagnostics() []Trace
	HasErrors() bool
	Clear()
}

func positionOf(element xmldom.Element) Position {
	if element == nil {
		return Position{}
	}
	line, col, _ := element.Position()
	return Position{Line: line, Column: col}
}

func tagOf(element xmldom.Element) string {
	if element == nil {
		return ""
	}
	return string(element.TagName())
}
