package compiler

import (
	"context"
	"fmt"

	"github.com/agentflare-ai/go-xmldom"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/document"
)

// scxmlInvokeTypeURI is the only invoke type agentmlcore resolves
// (spec.md §4.4: "Type must resolve ... to scxml"); implementers may alias
// other strings to it via invokeTypeAliases.
const scxmlInvokeTypeURI = "scxml"

var invokeTypeAliases = map[string]string{
	"":                           scxmlInvokeTypeURI,
	"scxml":                      scxmlInvokeTypeURI,
	"http://www.w3.org/TR/scxml": scxmlInvokeTypeURI,
	"http://www.w3.org/TR/scxml/": scxmlInvokeTypeURI,
}

func (c *compilation) compileInvoke(ctx context.Context, el xmldom.Element, parent *document.Node) (*document.InvokeSpec, error) {
	typeAttr := string(el.GetAttribute("type"))
	resolved, ok := invokeTypeAliases[typeAttr]
	if !ok {
		return nil, &scxml.InvokeError{PlatformError: scxml.NewPlatformError(
			"error.execution.invoke.parseerror",
			fmt.Sprintf("invoke type %q does not resolve to scxml", typeAttr), nil,
			map[string]any{"type": typeAttr})}
	}

	n := c.next()
	invokeID := string(el.GetAttribute("id"))
	if invokeID == "" {
		invokeID = fmt.Sprintf("%s.%d.%d", parent.StateID, n, len(parent.Invokes))
	}

	spec := &document.InvokeSpec{
		InvokeID:    invokeID,
		IDLocation:  string(el.GetAttribute("idlocation")),
		Type:        resolved,
		Src:         string(el.GetAttribute("src")),
		NameList:    splitWhitespace(string(el.GetAttribute("namelist"))),
		Autoforward: string(el.GetAttribute("autoforward")) == "true",
		Source:      el,
	}

	for _, child := range children(el) {
		switch string(child.LocalName()) {
		case "param":
			p := c.compileParam(child)
			spec.Params = append(spec.Params, document.ParamDecl{Name: p.Name, Expr: p.Expr, Location: p.Location})
		case "content":
			// spec.Content feeds CompileElement, which expects an <scxml>
			// root (spec.md §4.4: inline content is an embedded document),
			// so store <content>'s own child rather than the wrapper.
			if inner := children(child); len(inner) > 0 {
				spec.Content = inner[0]
			} else {
				spec.Content = child
			}
		case "finalize":
			ops, err := c.compileExecContent(ctx, child)
			if err != nil {
				return nil, err
			}
			spec.Finalize = ops
		}
	}

	return spec, nil
}
