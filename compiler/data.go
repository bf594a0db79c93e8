package compiler

import (
	"context"

	"github.com/agentflare-ai/go-xmldom"

	"github.com/agentflare-ai/agentmlcore/document"
)

// compileDatamodel compiles a <datamodel> element's <data> children
// (spec.md §4.1 "Data-element loading"). Value precedence: expr > content
// XML child > inline text > src-fetched content; initData overrides.
func (c *compilation) compileDatamodel(ctx context.Context, el xmldom.Element) ([]*document.DataDecl, error) {
	var out []*document.DataDecl
	for _, child := range children(el) {
		if string(child.LocalName()) != "data" {
			continue
		}
		decl, err := c.compileData(ctx, child)
		if err != nil {
			return nil, err
		}
		out = append(out, decl)
	}
	return out, nil
}

func (c *compilation) compileData(ctx context.Context, el xmldom.Element) (*document.DataDecl, error) {
	id := string(el.GetAttribute("id"))
	decl := &document.DataDecl{
		ID:      id,
		Expr:    string(el.GetAttribute("expr")),
		Binding: c.doc.Binding,
	}

	if decl.Expr == "" {
		if body := children(el); len(body) > 0 {
			decl.Content = body[0]
		}
	}
	if decl.Expr == "" && decl.Content == nil {
		if text := string(el.TextContent()); text != "" {
			decl.Content = text
		}
	}
	if src := string(el.GetAttribute("src")); src != "" {
		decl.Src = src
		if decl.Expr == "" && decl.Content == nil {
			resolved, err := resolveSourceURL(c.fileDir, src)
			if err != nil {
				c.addFetchError(src, err)
			} else {
				body, err := c.fetcher.Fetch(ctx, resolved)
				if err != nil {
					c.addFetchError(src, err)
				} else {
					decl.Content = parseFetchedContent(body)
				}
			}
		}
	}

	if override, ok := c.initData[id]; ok {
		decl.Expr = ""
		decl.Content = override
	}

	return decl, nil
}

// parseFetchedContent tries XML first (spec.md §4.1 "src content is first
// parsed as XML ... falling back to raw text"); the compiled representation
// only needs a value the datamodel can store, so a parse failure simply
// keeps the raw text.
func parseFetchedContent(body string) any {
	decoder := xmldom.NewDecoderFromBytes([]byte(body))
	if doc, err := decoder.Decode(); err == nil && doc.DocumentElement() != nil {
		return doc.DocumentElement()
	}
	return body
}

// compileDoneData compiles a <final>'s <donedata> element (SPEC_FULL.md §10
// / §3, grounded on the original's SCXMLNode.donedata).
func (c *compilation) compileDoneData(ctx context.Context, el xmldom.Element) (*document.DoneData, error) {
	dd := &document.DoneData{}
	for _, child := range children(el) {
		switch string(child.LocalName()) {
		case "param":
			p := c.compileParam(child)
			dd.Params = append(dd.Params, document.ParamDecl{Name: p.Name, Expr: p.Expr, Location: p.Location})
		case "content":
			content := c.compileContent(child)
			dd.Content = &document.ContentDecl{Expr: content.Expr, Body: content.Body}
		}
	}
	return dd, nil
}
