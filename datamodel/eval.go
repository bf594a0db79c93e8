package datamodel

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
)

// evalLocked evaluates expr against m.vars/m.funcs. Callers must already
// hold at least a read lock on m.mu.
func (m *Model) evalLocked(ctx context.Context, expr string) (any, error) {
	node, err := parser.ParseExpr(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expr, err)
	}
	return m.evalNode(ctx, node)
}

func validateSyntax(expr string) error {
	if expr == "" {
		return nil
	}
	_, err := parser.ParseExpr(expr)
	if err != nil {
		return fmt.Errorf("invalid expression %q: %w", expr, err)
	}
	return nil
}

func (m *Model) evalNode(ctx context.Context, n ast.Expr) (any, error) {
	switch e := n.(type) {
	case *ast.ParenExpr:
		return m.evalNode(ctx, e.X)
	case *ast.BasicLit:
		return literalValue(e)
	case *ast.Ident:
		return m.lookupIdent(e.Name)
	case *ast.UnaryExpr:
		v, err := m.evalNode(ctx, e.X)
		if err != nil {
			return nil, err
		}
		return applyUnary(e.Op, v)
	case *ast.BinaryExpr:
		left, err := m.evalNode(ctx, e.X)
		if err != nil {
			return nil, err
		}
		// short-circuit && / ||
		if e.Op == token.LAND {
			if !truthy(left) {
				return false, nil
			}
			right, err := m.evalNode(ctx, e.Y)
			if err != nil {
				return nil, err
			}
			return truthy(right), nil
		}
		if e.Op == token.LOR {
			if truthy(left) {
				return true, nil
			}
			right, err := m.evalNode(ctx, e.Y)
			if err != nil {
				return nil, err
			}
			return truthy(right), nil
		}
		right, err := m.evalNode(ctx, e.Y)
		if err != nil {
			return nil, err
		}
		return applyBinary(e.Op, left, right)
	case *ast.SelectorExpr:
		base, err := m.evalNode(ctx, e.X)
		if err != nil {
			return nil, err
		}
		return selectField(base, e.Sel.Name)
	case *ast.IndexExpr:
		base, err := m.evalNode(ctx, e.X)
		if err != nil {
			return nil, err
		}
		idx, err := m.evalNode(ctx, e.Index)
		if err != nil {
			return nil, err
		}
		return indexInto(base, idx)
	case *ast.CallExpr:
		ident, ok := e.Fun.(*ast.Ident)
		if !ok {
			return nil, fmt.Errorf("unsupported call target")
		}
		fn, ok := m.funcs[ident.Name]
		if !ok {
			return nil, fmt.Errorf("unknown function %q", ident.Name)
		}
		args := make([]any, 0, len(e.Args))
		for _, a := range e.Args {
			v, err := m.evalNode(ctx, a)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		return fn(ctx, args)
	default:
		return nil, fmt.Errorf("unsupported expression node %T", n)
	}
}

func (m *Model) lookupIdent(name string) (any, error) {
	switch name {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "nil", "null":
		return nil, nil
	}
	if v, ok := m.vars[name]; ok {
		return v, nil
	}
	if v, ok := m.funcs[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("undeclared identifier %q", name)
}

func literalValue(lit *ast.BasicLit) (any, error) {
	switch lit.Kind {
	case token.INT:
		i, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return nil, err
		}
		return i, nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, err
		}
		return f, nil
	case token.STRING:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, err
		}
		return s, nil
	case token.CHAR:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported literal kind %v", lit.Kind)
	}
}

func applyUnary(op token.Token, v any) (any, error) {
	switch op {
	case token.NOT:
		return !truthy(v), nil
	case token.SUB:
		f, ok := asFloat(v)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", v)
		}
		if i, ok := v.(int64); ok {
			return -i, nil
		}
		return -f, nil
	case token.ADD:
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported unary operator %v", op)
	}
}

func applyBinary(op token.Token, l, r any) (any, error) {
	switch op {
	case token.EQL:
		return equalValues(l, r), nil
	case token.NEQ:
		return !equalValues(l, r), nil
	}

	if ls, ok := l.(string); ok {
		if rs, ok := r.(string); ok {
			switch op {
			case token.ADD:
				return ls + rs, nil
			case token.LSS:
				return ls < rs, nil
			case token.LEQ:
				return ls <= rs, nil
			case token.GTR:
				return ls > rs, nil
			case token.GEQ:
				return ls >= rs, nil
			}
		}
	}

	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if !lok || !rok {
		return nil, fmt.Errorf("incompatible operands for %v: %T, %T", op, l, r)
	}
	_, lInt := l.(int64)
	_, rInt := r.(int64)
	bothInt := lInt && rInt

	switch op {
	case token.ADD:
		if bothInt {
			return l.(int64) + r.(int64), nil
		}
		return lf + rf, nil
	case token.SUB:
		if bothInt {
			return l.(int64) - r.(int64), nil
		}
		return lf - rf, nil
	case token.MUL:
		if bothInt {
			return l.(int64) * r.(int64), nil
		}
		return lf * rf, nil
	case token.QUO:
		if bothInt && r.(int64) != 0 {
			return l.(int64) / r.(int64), nil
		}
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case token.REM:
		if bothInt && r.(int64) != 0 {
			return l.(int64) % r.(int64), nil
		}
		return nil, fmt.Errorf("modulo requires integer operands")
	case token.LSS:
		return lf < rf, nil
	case token.LEQ:
		return lf <= rf, nil
	case token.GTR:
		return lf > rf, nil
	case token.GEQ:
		return lf >= rf, nil
	default:
		return nil, fmt.Errorf("unsupported binary operator %v", op)
	}
}

func selectField(base any, name string) (any, error) {
	switch b := base.(type) {
	case map[string]any:
		return b[name], nil
	default:
		return nil, fmt.Errorf("cannot select field %q on %T", name, base)
	}
}

func indexInto(base, idx any) (any, error) {
	switch b := base.(type) {
	case []any:
		i, ok := asFloat(idx)
		if !ok {
			return nil, fmt.Errorf("index must be numeric")
		}
		n := int(i)
		if n < 0 || n >= len(b) {
			return nil, fmt.Errorf("index %d out of range", n)
		}
		return b[n], nil
	case map[string]any:
		key, ok := idx.(string)
		if !ok {
			return nil, fmt.Errorf("map index must be a string")
		}
		return b[key], nil
	default:
		return nil, fmt.Errorf("cannot index into %T", base)
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func equalValues(l, r any) bool {
	lf, lok := asFloat(l)
	rf, rok := asFloat(r)
	if lok && rok {
		return lf == rf
	}
	return l == r
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
