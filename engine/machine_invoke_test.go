package engine_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflare-ai/agentmlcore/engine"
	"github.com/agentflare-ai/agentmlcore/tracer"
)

const invokeInlineContentDoc = `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="parent">
  <state id="parent">
    <invoke id="child1">
      <content>
        <scxml xmlns="http://www.w3.org/2005/07/scxml" initial="childA">
          <state id="childA">
            <transition target="childDone"/>
          </state>
          <final id="childDone"/>
        </scxml>
      </content>
    </invoke>
    <transition event="done.invoke.child1" target="finished"/>
  </state>
  <state id="finished"/>
</scxml>`

func TestMachineStartsInvokeWithInlineContentViaCompileElement(t *testing.T) {
	diagnostics := tracer.New(slog.Default())
	rt := engine.New(engine.WithTracer(diagnostics))
	ctx := context.Background()

	m, err := rt.New(ctx, []byte(invokeInlineContentDoc), engine.Options{SessionID: "parent-session"})
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))

	assert.Eventually(t, func() bool {
		return m.In(ctx, "finished")
	}, time.Second, time.Millisecond)

	assert.False(t, diagnostics.HasErrors())
}
