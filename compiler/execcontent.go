package compiler

import (
	"context"

	"github.com/agentflare-ai/go-xmldom"

	"github.com/agentflare-ai/agentmlcore"
	"github.com/agentflare-ai/agentmlcore/document"
)

// coreExecTags are the executable-content elements compiled inline
// (spec.md §3 ExecutableContent / §4.1 "Executable content binding").
var coreExecTags = map[string]bool{
	"log": true, "raise": true, "send": true, "cancel": true,
	"assign": true, "script": true, "if": true, "foreach": true,
}

// compileExecContent compiles every executable-content child of container
// (an <onentry>, <onexit>, <transition>, or <foreach>/<if> body) into a
// flat []ExecOp, recursing into if/foreach bodies.
func (c *compilation) compileExecContent(ctx context.Context, container xmldom.Element) ([]document.ExecOp, error) {
	var ops []document.ExecOp
	for _, el := range children(container) {
		tag := string(el.LocalName())
		if !coreExecTags[tag] {
			if tag == "" {
				continue
			}
			ops = append(ops, document.ExecOp{Kind: document.OpCustom, Custom: el})
			continue
		}
		op, err := c.compileExecOp(ctx, tag, el)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (c *compilation) compileExecOp(ctx context.Context, tag string, el xmldom.Element) (document.ExecOp, error) {
	switch tag {
	case "log":
		return document.ExecOp{Kind: document.OpLog, Log: &scxml.Log{
			Element: el,
			Label:   string(el.GetAttribute("label")),
			Expr:    string(el.GetAttribute("expr")),
		}}, nil
	case "raise":
		return document.ExecOp{Kind: document.OpRaise, Raise: &scxml.Raise{
			Element:   el,
			Event:     string(el.GetAttribute("event")),
			EventExpr: string(el.GetAttribute("eventexpr")),
		}}, nil
	case "send":
		send, err := c.compileSend(el)
		if err != nil {
			return document.ExecOp{}, err
		}
		return document.ExecOp{Kind: document.OpSend, Send: send}, nil
	case "cancel":
		return document.ExecOp{Kind: document.OpCancel, Cancel: &scxml.Cancel{
			Element:    el,
			SendID:     string(el.GetAttribute("sendid")),
			SendIDExpr: string(el.GetAttribute("sendidexpr")),
		}}, nil
	case "assign":
		return document.ExecOp{Kind: document.OpAssign, Assign: &scxml.Assign{
			Element:    el,
			Location:   string(el.GetAttribute("location")),
			Expr:       string(el.GetAttribute("expr")),
			AssignType: string(el.GetAttribute("type")),
			Content:    string(el.TextContent()),
		}}, nil
	case "script":
		script, err := c.compileScriptElement(ctx, el)
		if err != nil {
			return document.ExecOp{}, err
		}
		return document.ExecOp{Kind: document.OpScript, Script: script}, nil
	case "if":
		branches, err := c.compileIf(ctx, el)
		if err != nil {
			return document.ExecOp{}, err
		}
		return document.ExecOp{Kind: document.OpIf, If: branches}, nil
	case "foreach":
		fe, err := c.compileForeach(ctx, el)
		if err != nil {
			return document.ExecOp{}, err
		}
		return document.ExecOp{Kind: document.OpForeach, Foreach: fe}, nil
	default:
		return document.ExecOp{Kind: document.OpCustom, Custom: el}, nil
	}
}

func (c *compilation) compileSend(el xmldom.Element) (*scxml.Send, error) {
	s := &scxml.Send{
		Element:    el,
		Event:      string(el.GetAttribute("event")),
		EventExpr:  string(el.GetAttribute("eventexpr")),
		Target:     string(el.GetAttribute("target")),
		TargetExpr: string(el.GetAttribute("targetexpr")),
		TypeURI:    string(el.GetAttribute("type")),
		TypeExpr:   string(el.GetAttribute("typeexpr")),
		SendID:     string(el.GetAttribute("id")),
		IdLocation: string(el.GetAttribute("idlocation")),
		Delay:      string(el.GetAttribute("delay")),
		DelayExpr:  string(el.GetAttribute("delayexpr")),
		NameList:   splitWhitespace(string(el.GetAttribute("namelist"))),
	}
	for _, child := range children(el) {
		switch string(child.LocalName()) {
		case "param":
			s.Params = append(s.Params, c.compileParam(child))
		case "content":
			content := c.compileContent(child)
			s.Content = content
		}
	}
	return s, nil
}

func (c *compilation) compileParam(el xmldom.Element) scxml.Param {
	return scxml.Param{
		Element:  el,
		Name:     string(el.GetAttribute("name")),
		Expr:     string(el.GetAttribute("expr")),
		Location: string(el.GetAttribute("location")),
	}
}

func (c *compilation) compileContent(el xmldom.Element) *scxml.Content {
	content := &scxml.Content{Element: el, Expr: string(el.GetAttribute("expr"))}
	if content.Expr == "" {
		content.Body = string(el.TextContent())
	}
	return content
}

func (c *compilation) compileScriptElement(ctx context.Context, el xmldom.Element) (*scxml.Script, error) {
	s := &scxml.Script{Element: el, Content: string(el.TextContent())}
	if src := string(el.GetAttribute("src")); src != "" {
		s.Src = src
		resolved, err := resolveSourceURL(c.fileDir, src)
		if err != nil {
			c.addFetchError(src, err)
			return s, nil
		}
		body, err := c.fetcher.Fetch(ctx, resolved)
		if err != nil {
			c.addFetchError(src, err)
			return s, nil
		}
		s.Content = body
	}
	return s, nil
}

func (c *compilation) compileIf(ctx context.Context, el xmldom.Element) ([]document.IfBranch, error) {
	var branches []document.IfBranch
	cur := document.IfBranch{Cond: string(el.GetAttribute("cond")), Element: el}
	for _, child := range children(el) {
		tag := string(child.LocalName())
		if tag == "elseif" || tag == "else" {
			branches = append(branches, cur)
			cond := ""
			if tag == "elseif" {
				cond = string(child.GetAttribute("cond"))
			}
			cur = document.IfBranch{Cond: cond, Element: child}
			continue
		}
		ops, err := c.compileExecOpInBranch(ctx, child)
		if err != nil {
			return nil, err
		}
		cur.Body = append(cur.Body, ops)
	}
	branches = append(branches, cur)
	return branches, nil
}

func (c *compilation) compileExecOpInBranch(ctx context.Context, el xmldom.Element) (document.ExecOp, error) {
	tag := string(el.LocalName())
	if !coreExecTags[tag] {
		return document.ExecOp{Kind: document.OpCustom, Custom: el}, nil
	}
	return c.compileExecOp(ctx, tag, el)
}

func (c *compilation) compileForeach(ctx context.Context, el xmldom.Element) (*document.ForeachOp, error) {
	body, err := c.compileExecContent(ctx, el)
	if err != nil {
		return nil, err
	}
	return &document.ForeachOp{
		Foreach: &scxml.Foreach{
			Element: el,
			Array:   string(el.GetAttribute("array")),
			Item:    string(el.GetAttribute("item")),
			Index:   string(el.GetAttribute("index")),
		},
		Body: body,
	}, nil
}
