package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/engine"
)

type fakeIOProcessor struct{}

func (fakeIOProcessor) Handle(ctx context.Context, event *scxml.Event) error { return nil }
func (fakeIOProcessor) Location(ctx context.Context) (string, error)        { return "#_probe", nil }
func (fakeIOProcessor) Type() string                                        { return "#_probe" }
func (fakeIOProcessor) Shutdown(ctx context.Context) error                  { return nil }

const twoStateDoc = `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
  <state id="a">
    <transition event="go" target="b"/>
  </state>
  <state id="b"/>
</scxml>`

func TestMachineStartEntersInitialConfiguration(t *testing.T) {
	rt := engine.New()
	ctx := context.Background()

	m, err := rt.New(ctx, []byte(twoStateDoc), engine.Options{SessionID: "m1"})
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))

	assert.True(t, m.In(ctx, "a"))
	assert.False(t, m.In(ctx, "b"))
	assert.False(t, m.IsFinished())
}

func TestMachineSendDrivesTransition(t *testing.T) {
	rt := engine.New()
	ctx := context.Background()

	m, err := rt.New(ctx, []byte(twoStateDoc), engine.Options{SessionID: "m2"})
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))
	require.NoError(t, m.Send(ctx, "go", nil))

	assert.Eventually(t, func() bool {
		return m.In(ctx, "b")
	}, time.Second, time.Millisecond)
	assert.False(t, m.In(ctx, "a"))
}

func TestNewCompileErrorSurfacesFromBadXML(t *testing.T) {
	rt := engine.New()
	ctx := context.Background()

	_, err := rt.New(ctx, []byte("<scxml"), engine.Options{})
	require.Error(t, err)
}

func TestRegisterCustomSendtypeIsPickedUpByNewMachines(t *testing.T) {
	rt := engine.New()
	rt.RegisterCustomSendtype("#_probe", func(ctx context.Context, interp scxml.Interpreter) (scxml.IOProcessor, error) {
		return fakeIOProcessor{}, nil
	})

	ctx := context.Background()
	m, err := rt.New(ctx, []byte(twoStateDoc), engine.Options{SessionID: "m3"})
	require.NoError(t, err)
	require.NoError(t, m.Start(ctx))
	assert.True(t, m.In(ctx, "a"))
}
