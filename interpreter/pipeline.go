package interpreter

import (
	"context"

	"github.com/agentflare-ai/go-pipeline"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/document"
)

// platformEventer is satisfied by every named error kind in errors.go
// (each embeds *scxml.PlatformError, which implements it) — the generic
// hook executeOps uses to raise the matching internal platform event
// without a type switch over every error kind.
type platformEventer interface {
	PlatformEvent() (string, map[string]any)
}

var (
	tickTracer = otel.Tracer("agentmlcore.interpreter")
	tickMeter  = otel.Meter("agentmlcore.interpreter")
)

var (
	transitionsTaken metric.Int64Counter
	ticksTotal       metric.Int64Counter
)

func init() {
	transitionsTaken, _ = tickMeter.Int64Counter("agentmlcore.transitions.taken")
	ticksTotal, _ = tickMeter.Int64Counter("agentmlcore.ticks.total")
}

// execOpWriter is the go-pipeline Writer for one ExecOp run: it captures
// the error a stage raised so the caller can translate it into a Trace
// without the pipeline itself needing to know about scxml.Tracer.
type execOpWriter struct {
	node *document.Node
	err  error
}

type execPipe = pipeline.Pipe[context.Context, *execOpWriter, *document.ExecOp]
type execNext = pipeline.Next[context.Context, *execOpWriter, *document.ExecOp]

// execOp runs one compiled ExecOp through a small tracing/dispatch
// pipeline (SPEC_FULL.md §2 "Executable pipeline": go-pipeline wraps
// tracing/error-translation around the call), grounded on the teacher's
// openai/streaming.go ProcessStreamingToolCalls pipeline shape.
func (s *Session) execOp(ctx context.Context, op *document.ExecOp, node *document.Node) error {
	p := pipeline.New(ctx, s.tracingStage, s.dispatchStage)
	w := &execOpWriter{node: node}
	if err := p.Process(ctx, w, op); err != nil {
		return err
	}
	return w.err
}

func (s *Session) tracingStage(ctx context.Context, w *execOpWriter, op *document.ExecOp, next execNext) error {
	ctx, span := tickTracer.Start(ctx, "interpreter.execop", trace.WithAttributes(
		attribute.String("agentmlcore.op.kind", op.Kind.String()),
	))
	defer span.End()
	return next(ctx, w, op)
}

func (s *Session) dispatchStage(ctx context.Context, w *execOpWriter, op *document.ExecOp, next execNext) error {
	w.err = s.runExecOp(ctx, op, w.node)
	return next(ctx, w, op)
}

// executeOps runs a compiled executable-content block in order, wrapping
// the whole block in one interpreter.microstep span and stopping at the
// first error (spec.md §4.1: "execution of a block stops at the first
// error"). Every error raised this way is also surfaced as a platform
// event on the internal queue (spec.md §7: "all surfaced as platform
// events on the internal queue unless noted"); callers additionally trace
// it via s.tracer for diagnostics.
func (s *Session) executeOps(ctx context.Context, ops []document.ExecOp, node *document.Node) error {
	if len(ops) == 0 {
		return nil
	}
	ctx, span := tickTracer.Start(ctx, "interpreter.microstep")
	defer span.End()
	for i := range ops {
		if err := s.execOp(ctx, &ops[i], node); err != nil {
			if pe, ok := err.(platformEventer); ok {
				name, data := pe.PlatformEvent()
				s.internal.Push(&scxml.Event{Name: name, Type: scxml.EventTypeInternal, Data: data})
			}
			return err
		}
	}
	return nil
}
