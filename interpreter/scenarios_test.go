package interpreter_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/clockimpl"
	"github.com/agentflare-ai/agentmlcore/compiler"
	"github.com/agentflare-ai/agentmlcore/datamodel"
	"github.com/agentflare-ai/agentmlcore/interpreter"
	"github.com/agentflare-ai/agentmlcore/observer"
	"github.com/agentflare-ai/agentmlcore/registry"
	"github.com/agentflare-ai/agentmlcore/scheduler"
	"github.com/agentflare-ai/agentmlcore/tracer"
)

// The six scenarios below are spec.md §8's concrete end-to-end scenarios;
// scenarios 1 (toggle) and 2 (internal-event stabilization) are already
// covered by TestSendDrivesExternalTransition and
// TestRaiseDrivesInternalTransitionOnSameTick above.

const parallelCompletionDoc = `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="work">
  <state id="work" initial="par">
    <parallel id="par">
      <state id="p1" initial="w1">
        <state id="w1">
          <transition event="e1" target="f1"/>
        </state>
        <final id="f1"/>
      </state>
      <state id="p2" initial="w2">
        <state id="w2">
          <transition event="e2" target="f2"/>
        </state>
        <final id="f2"/>
      </state>
    </parallel>
    <transition event="done.state.par" target="done"/>
  </state>
  <final id="done"/>
</scxml>`

// Scenario 3: a <parallel> with two regions completes, in document order,
// only once BOTH regions have reached their own final state; entering the
// second region's final raises a done.state.<parallel> event that the
// enclosing state uses to leave the parallel entirely.
func TestParallelCompletionRaisesDoneStateOnceAllRegionsAreFinal(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t, parallelCompletionDoc)

	assert.True(t, sess.In(ctx, "w1"))
	assert.True(t, sess.In(ctx, "w2"))

	require.NoError(t, sess.Send(ctx, &scxml.Event{Name: "e1"}))
	require.True(t, sess.Tick(ctx))

	assert.True(t, sess.In(ctx, "f1"))
	assert.True(t, sess.In(ctx, "w2"))
	assert.False(t, sess.IsFinished())

	require.NoError(t, sess.Send(ctx, &scxml.Event{Name: "e2"}))
	// The e2 tick enters f2 and queues done.state.par on the internal queue;
	// the next tick's stabilization pass consumes it and enters "done".
	require.True(t, sess.Tick(ctx))
	assert.True(t, sess.In(ctx, "f2"))
	require.False(t, sess.Tick(ctx))

	assert.True(t, sess.In(ctx, "done"))
	assert.False(t, sess.IsFinished())

	sess.Tick(ctx)
	assert.True(t, sess.IsFinished())
}

const historyRecallDoc = `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="c">
  <state id="c" initial="x">
    <history id="h" type="deep"/>
    <state id="x" initial="y">
      <state id="y">
        <transition event="out" target="outside"/>
      </state>
    </state>
  </state>
  <state id="outside">
    <transition event="back" target="h"/>
  </state>
</scxml>`

// Scenario 4: history recall. "c" nests an intermediate compound state "x"
// around the atomic state "y" that its deep history actually records;
// recalling the history must re-enter both x and y, not just y, or the
// configuration invariant (every active state's proper ancestors are also
// active) breaks.
func TestDeepHistoryRecallReentersIntermediateCompoundState(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t, historyRecallDoc)

	require.True(t, sess.In(ctx, "c"))
	require.True(t, sess.In(ctx, "x"))
	require.True(t, sess.In(ctx, "y"))

	require.NoError(t, sess.Send(ctx, &scxml.Event{Name: "out"}))
	require.True(t, sess.Tick(ctx))

	assert.True(t, sess.In(ctx, "outside"))
	assert.False(t, sess.In(ctx, "c"))
	assert.False(t, sess.In(ctx, "x"))
	assert.False(t, sess.In(ctx, "y"))

	require.NoError(t, sess.Send(ctx, &scxml.Event{Name: "back"}))
	require.True(t, sess.Tick(ctx))

	assert.False(t, sess.In(ctx, "outside"))
	assert.True(t, sess.In(ctx, "c"))
	assert.True(t, sess.In(ctx, "x"), "the intermediate compound state must be re-entered alongside its recorded child")
	assert.True(t, sess.In(ctx, "y"))
}

const delayedSendCancelDoc = `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
  <state id="a">
    <onentry>
      <send id="t1" event="late" delay="500ms"/>
      <cancel sendid="t1"/>
    </onentry>
    <transition event="late" target="b"/>
  </state>
  <state id="b"/>
</scxml>`

// Scenario 5: a delayed <send> canceled in the same onentry block before it
// fires must never deliver its event, and must leave nothing registered
// with the scheduler.
func TestDelayedSendCanceledBeforeFiringNeverDeliversItsEvent(t *testing.T) {
	ctx := context.Background()

	doc, err := compiler.Compile(ctx, []byte(delayedSendCancelDoc), compiler.Options{})
	require.NoError(t, err)

	clk := clockimpl.NewSimClock(time.Unix(0, 0))
	sched := scheduler.New(scheduler.Options{Clock: clk})
	reg := registry.New()

	sess, err := interpreter.New(ctx, interpreter.Options{
		SessionID: "scenario5-session",
		Document:  doc,
		Clock:     clk,
		Scheduler: sched,
		Tracer:    tracer.New(slog.Default()),
		Bus:       observer.New(slog.Default()),
		Registry:  reg,
		DataModels: interpreter.DataModelTable{
			"null": func(ctx context.Context, interp scxml.Interpreter) (scxml.DataModel, error) {
				return datamodel.New(datamodel.Options{
					SessionID: interp.SessionID(),
					Sessions:  reg.Snapshot,
				}), nil
			},
		},
	})
	require.NoError(t, err)

	assert.True(t, sess.In(ctx, "a"))
	assert.False(t, sched.Pending("t1"), "cancel must remove the timer from the scheduler synchronously")

	clk.Advance(time.Second)
	sess.Tick(ctx)

	assert.True(t, sess.In(ctx, "a"), "the canceled late event must never arrive")
	assert.False(t, sess.In(ctx, "b"))
}

const illegalAssignDoc = `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
  <datamodel>
    <data id="known" expr="1"/>
  </datamodel>
  <state id="a">
    <onentry>
      <assign location="undeclared" expr="1"/>
    </onentry>
    <transition event="error.execution" target="b"/>
  </state>
  <state id="b"/>
</scxml>`

// Scenario 6: <assign> to an undeclared location raises a platform error
// event on the internal queue (spec.md §7) instead of being merely traced;
// the session keeps running and reacts to it like any other event.
func TestIllegalAssignRaisesPlatformErrorAndKeepsRunning(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t, illegalAssignDoc)

	require.True(t, sess.Tick(ctx))

	assert.True(t, sess.In(ctx, "b"), "error.execution raised by the illegal assign must drive the transition out of a")
	assert.False(t, sess.IsFinished())
}
