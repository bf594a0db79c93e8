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

const twoStateDoc = `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
  <state id="a">
    <transition event="go" target="b"/>
  </state>
  <state id="b">
    <transition event="back" target="a"/>
  </state>
</scxml>`

const eventlessDoc = `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
  <state id="a">
    <transition target="b"/>
  </state>
  <state id="b"/>
</scxml>`

const finalDoc = `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
  <state id="a">
    <transition event="done" target="fin"/>
  </state>
  <final id="fin"/>
</scxml>`

func newSession(t *testing.T, src string) *interpreter.Session {
	t.Helper()
	ctx := context.Background()

	doc, err := compiler.Compile(ctx, []byte(src), compiler.Options{})
	require.NoError(t, err)

	clk := clockimpl.NewSystemClock()
	sched := scheduler.New(scheduler.Options{Clock: clk})
	reg := registry.New()

	sess, err := interpreter.New(ctx, interpreter.Options{
		SessionID: "test-session",
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
	return sess
}

func TestNewEntersInitialConfiguration(t *testing.T) {
	sess := newSession(t, twoStateDoc)
	assert.True(t, sess.In(context.Background(), "a"))
	assert.False(t, sess.In(context.Background(), "b"))
}

func TestSendDrivesExternalTransition(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t, twoStateDoc)

	require.NoError(t, sess.Send(ctx, &scxml.Event{Name: "go"}))
	require.True(t, sess.Tick(ctx))

	assert.True(t, sess.In(ctx, "b"))
	assert.False(t, sess.In(ctx, "a"))
}

func TestRaiseDrivesInternalTransitionOnSameTick(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t, twoStateDoc)

	sess.Raise(ctx, &scxml.Event{Name: "go"})
	require.True(t, sess.Tick(ctx))

	assert.True(t, sess.In(ctx, "b"))
}

func TestEventlessTransitionFiresWithoutAnyEvent(t *testing.T) {
	sess := newSession(t, eventlessDoc)

	// New only enters the initial configuration; the eventless transition
	// is taken by the first Tick's stabilization pass, with no event queued.
	require.True(t, sess.Tick(context.Background()))
	assert.True(t, sess.In(context.Background(), "b"))
	assert.False(t, sess.In(context.Background(), "a"))
}

func TestFinalStateEndsSessionAndIsFinishedReportsTrue(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t, finalDoc)

	require.NoError(t, sess.Send(ctx, &scxml.Event{Name: "done"}))

	// Entering the top-level final state flips running to false within the
	// same tick that fires the transition, so this first Tick already
	// returns false; exitInterpreter itself only runs on the Tick after.
	require.False(t, sess.Tick(ctx))
	assert.False(t, sess.IsFinished())

	sess.Tick(ctx)
	assert.True(t, sess.IsFinished())
}

func TestCancelMarksSessionFinished(t *testing.T) {
	ctx := context.Background()
	sess := newSession(t, twoStateDoc)

	require.NoError(t, sess.Send(ctx, scxml.NewCancelEvent()))
	go sess.Run(ctx)

	assert.Eventually(t, func() bool { return sess.IsFinished() }, time.Second, time.Millisecond)
}

func TestConfigurationReturnsAtomicStateIDs(t *testing.T) {
	sess := newSession(t, twoStateDoc)
	assert.ElementsMatch(t, []string{"a"}, sess.Configuration())
}

func TestSessionIDAndType(t *testing.T) {
	sess := newSession(t, twoStateDoc)
	assert.Equal(t, "test-session", sess.SessionID())
	assert.Equal(t, interpreter.ScxmlEventProcessorType, sess.Type())
}
