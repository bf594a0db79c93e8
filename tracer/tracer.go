// Package tracer supplies the default scxml.Tracer: an in-memory diagnostic
// collector that also forwards every entry to log/slog, matching the
// teacher's validator.Diagnostic reporting style (validator/validator.go)
// folded into the core's shared Trace representation (diagnostics.go).
package tracer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/agentflare-ai/go-xmldom"

	"github.com/agentflare-ai/agentmlcore"
)

// Collector is the default scxml.Tracer.
type Collector struct {
	mu      sync.Mutex
	traces  []scxml.Trace
	logger  *slog.Logger
	hasErrs bool
}

// New returns an empty Collector. If logger is nil, slog.Default() is used.
func New(logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{logger: logger}
}

func (c *Collector) record(level slog.Level, code, message string, element xmldom.Element, opts []scxml.Option) {
	t := scxml.Trace{Level: level, Code: code, Message: message}
	if element != nil {
		line, col, off := element.Position()
		t.Position = scxml.Position{Line: line, Column: col, Offset: off}
		t.Tag = string(element.LocalName())
	}
	for _, opt := range opts {
		opt(&t)
	}

	c.mu.Lock()
	c.traces = append(c.traces, t)
	if level >= slog.LevelError {
		c.hasErrs = true
	}
	c.mu.Unlock()

	c.logger.Log(context.Background(), level, message, "code", code, "tag", t.Tag, "line", t.Position.Line, "column", t.Position.Column)
}

func (c *Collector) Error(code, message string, element xmldom.Element, opts ...scxml.Option) {
	c.record(slog.LevelError, code, message, element, opts)
}

func (c *Collector) Warn(code, message string, element xmldom.Element, opts ...scxml.Option) {
	c.record(slog.LevelWarn, code, message, element, opts)
}

func (c *Collector) Info(code, message string, element xmldom.Element, opts ...scxml.Option) {
	c.record(slog.LevelInfo, code, message, element, opts)
}

func (c *Collector) Diagnostics() []scxml.Trace {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]scxml.Trace, len(c.traces))
	copy(out, c.traces)
	return out
}

func (c *Collector) HasErrors() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasErrs
}

func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traces = nil
	c.hasErrs = false
}

var _ scxml.Tracer = (*Collector)(nil)
