package compiler

import (
	"context"
	"fmt"

	"github.com/agentflare-ai/go-xmldom"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/document"
)

// compilation carries the state threaded through one Compile call: the
// node-count counter for document order / id generation, the aggregated
// script/data fetch failures (spec.md §4.1 "collect all errors and raise a
// single ScriptFetchError"), and the doc being built.
type compilation struct {
	tracer  scxml.Tracer
	fetcher SourceFetcher

	fileDir  string
	fileName string
	initData map[string]any

	doc     *document.Document
	counter *int

	scriptFetchErrors  []error
	scriptFetchSources []string
}

func (c *compilation) next() int {
	*c.counter++
	return *c.counter
}

func (c *compilation) addFetchError(src string, err error) {
	c.scriptFetchSources = append(c.scriptFetchSources, src)
	c.scriptFetchErrors = append(c.scriptFetchErrors, err)
}

func children(el xmldom.Element) []xmldom.Element {
	list := el.Children()
	if list == nil {
		return nil
	}
	out := make([]xmldom.Element, 0, list.Length())
	for i := uint(0); i < list.Length(); i++ {
		if child := list.Item(i); child != nil {
			out = append(out, child)
		}
	}
	return out
}

// compileChildren walks el's structural children, populating parent.
func (c *compilation) compileChildren(ctx context.Context, el xmldom.Element, parent *document.Node) error {
	for _, child := range children(el) {
		switch string(child.LocalName()) {
		case "state":
			if err := c.compileState(ctx, child, parent); err != nil {
				return err
			}
		case "parallel":
			if err := c.compileParallel(ctx, child, parent); err != nil {
				return err
			}
		case "final":
			if err := c.compileFinal(ctx, child, parent); err != nil {
				return err
			}
		case "history":
			if err := c.compileHistory(ctx, child, parent); err != nil {
				return err
			}
		case "datamodel":
			decls, err := c.compileDatamodel(ctx, child)
			if err != nil {
				return err
			}
			parent.Data = append(parent.Data, decls...)
		case "onentry":
			ops, err := c.compileExecContent(ctx, child)
			if err != nil {
				return err
			}
			parent.OnEntry = append(parent.OnEntry, ops...)
		case "onexit":
			ops, err := c.compileExecContent(ctx, child)
			if err != nil {
				return err
			}
			parent.OnExit = append(parent.OnExit, ops...)
		case "transition":
			t, err := c.compileTransition(ctx, child, parent)
			if err != nil {
				return err
			}
			t.Index = len(parent.Transitions)
			parent.Transitions = append(parent.Transitions, t)
		case "initial":
			initial, err := c.compileInitialElement(ctx, child)
			if err != nil {
				return err
			}
			parent.Initial = initial
		case "invoke":
			inv, err := c.compileInvoke(ctx, child, parent)
			if err != nil {
				return err
			}
			parent.Invokes = append(parent.Invokes, inv)
		case "script":
			script, err := c.compileScriptElement(ctx, child)
			if err != nil {
				return err
			}
			parent.OnEntry = append(parent.OnEntry, document.ExecOp{Kind: document.OpScript, Script: script})
		default:
			// Foreign-namespace or unrecognized structural element: lax mode
			// ignores it here (it may still be valid inside executable
			// content, handled by compileExecContent); strict mode warns so
			// the caller's later ValidateStrict pass has something to point
			// at even if XSD itself doesn't flag it.
			if c.doc.ExMode == "strict" {
				c.tracer.Warn("W010", fmt.Sprintf("unrecognized structural element <%s>", child.LocalName()), child)
			}
		}
	}
	return nil
}

func idFor(parent *document.Node, tag string, n int, explicit string) string {
	if explicit != "" {
		return explicit
	}
	parentID := parent.StateID
	if parentID == "" {
		parentID = "scxml"
	}
	return fmt.Sprintf("%s_%s_child_%d", parentID, tag, n)
}

func (c *compilation) compileState(ctx context.Context, el xmldom.Element, parent *document.Node) error {
	n := c.next()
	id := idFor(parent, "state", n, string(el.GetAttribute("id")))
	node := &document.Node{Kind: document.KindState, StateID: id, N: n, Parent: parent.ID, Source: el}
	nid := c.doc.AddNode(node)
	parent.States = append(parent.States, nid)

	if initial := string(el.GetAttribute("initial")); initial != "" {
		node.Initial = &document.Initial{Target: splitWhitespace(initial)}
	}

	if err := c.compileChildren(ctx, el, node); err != nil {
		return err
	}

	if node.Initial == nil && node.IsCompound() {
		if len(node.ChildStates()) > 0 {
			first := c.doc.Node(node.ChildStates()[0])
			node.Initial = &document.Initial{Target: []string{first.StateID}}
		}
	}
	return nil
}

func (c *compilation) compileParallel(ctx context.Context, el xmldom.Element, parent *document.Node) error {
	n := c.next()
	id := idFor(parent, "parallel", n, string(el.GetAttribute("id")))
	node := &document.Node{Kind: document.KindParallel, StateID: id, N: n, Parent: parent.ID, Source: el}
	nid := c.doc.AddNode(node)
	parent.States = append(parent.States, nid)
	return c.compileChildren(ctx, el, node)
}

func (c *compilation) compileFinal(ctx context.Context, el xmldom.Element, parent *document.Node) error {
	n := c.next()
	id := idFor(parent, "final", n, string(el.GetAttribute("id")))
	node := &document.Node{Kind: document.KindFinal, StateID: id, N: n, Parent: parent.ID, Source: el}
	nid := c.doc.AddNode(node)
	parent.Finals = append(parent.Finals, nid)

	for _, child := range children(el) {
		switch string(child.LocalName()) {
		case "onentry":
			ops, err := c.compileExecContent(ctx, child)
			if err != nil {
				return err
			}
			node.OnEntry = append(node.OnEntry, ops...)
		case "onexit":
			ops, err := c.compileExecContent(ctx, child)
			if err != nil {
				return err
			}
			node.OnExit = append(node.OnExit, ops...)
		case "donedata":
			dd, err := c.compileDoneData(ctx, child)
			if err != nil {
				return err
			}
			node.DoneData = dd
		}
	}
	return nil
}

func (c *compilation) compileHistory(ctx context.Context, el xmldom.Element, parent *document.Node) error {
	n := c.next()
	id := idFor(parent, "history", n, string(el.GetAttribute("id")))
	kind := document.HistoryShallow
	if string(el.GetAttribute("type")) == "deep" {
		kind = document.HistoryDeep
	}
	node := &document.Node{Kind: document.KindHistory, History: kind, StateID: id, N: n, Parent: parent.ID, Source: el}
	nid := c.doc.AddNode(node)
	parent.Histories = append(parent.Histories, nid)

	for _, child := range children(el) {
		if string(child.LocalName()) == "transition" {
			t, err := c.compileTransition(ctx, child, node)
			if err != nil {
				return err
			}
			t.Index = len(node.Transitions)
			node.Transitions = append(node.Transitions, t)
		}
	}
	return nil
}

func (c *compilation) compileInitialElement(ctx context.Context, el xmldom.Element) (*document.Initial, error) {
	for _, child := range children(el) {
		if string(child.LocalName()) == "transition" {
			target := string(child.GetAttribute("target"))
			ops, err := c.compileExecContent(ctx, child)
			if err != nil {
				return nil, err
			}
			return &document.Initial{Target: splitWhitespace(target), Exe: ops}, nil
		}
	}
	return &document.Initial{}, nil
}

func (c *compilation) compileTransition(ctx context.Context, el xmldom.Element, source *document.Node) (*document.Transition, error) {
	t := &document.Transition{Source: source.ID, Element: el}

	if target := string(el.GetAttribute("target")); target != "" {
		t.Target = splitWhitespace(target)
	}
	if event := string(el.GetAttribute("event")); event != "" {
		for _, pattern := range splitWhitespace(event) {
			pattern = trimTrailingWildcard(pattern)
			t.Event = append(t.Event, splitDottedTokens(pattern))
		}
	}
	t.Cond = string(el.GetAttribute("cond"))
	if string(el.GetAttribute("type")) == "internal" {
		t.Type = document.TransitionInternal
	}

	ops, err := c.compileExecContent(ctx, el)
	if err != nil {
		return nil, err
	}
	t.Exe = ops
	return t, nil
}

func trimTrailingWildcard(pattern string) string {
	const suffix = ".*"
	if len(pattern) > len(suffix) && pattern[len(pattern)-len(suffix):] == suffix {
		return pattern[:len(pattern)-len(suffix)]
	}
	return pattern
}

func splitDottedTokens(s string) []string {
	if s == "*" {
		return []string{"*"}
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
