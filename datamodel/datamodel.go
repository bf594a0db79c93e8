// Package datamodel implements agentmlcore's default DataModel: a "null"
// store with a small, deliberately non-ECMAScript expression language
// (spec.md Non-goals explicitly exclude an ECMAScript datamodel; spec.md §9
// calls the default implementation "a no-op/string datamodel"). Richer
// scripting backends are expected to live in separate packages that
// implement scxml.DataModel themselves.
package datamodel

import (
	"context"
	"fmt"
	"regexp"
	"sync"

	"github.com/agentflare-ai/agentmlcore"
)

var legalName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Model is the default scxml.DataModel implementation: a plain variable
// store plus the Go-expression-syntax evaluator in eval.go.
type Model struct {
	mu sync.RWMutex

	vars   map[string]any
	hidden map[string]bool // read-only from userland executable content
	once   map[string]bool // assignOnce keys already written

	sessionID    string
	name         string
	ioprocessors map[string]string
	self         any // back-pointer to the owning interpreter, for _x.self
	sessions     func() map[string]any

	currentEvent any

	funcs map[string]Func
}

// Func is a built-in callable exposed to expressions, e.g. In(stateId).
type Func func(ctx context.Context, args []any) (any, error)

// Options configures a new Model.
type Options struct {
	SessionID string
	Name      string
	// Hidden names additional read-only system keys beyond the standard
	// _sessionid/_name/_ioprocessors/_x ones.
	Hidden []string
	// AssignOnce names keys that may be written at most once (spec.md §3).
	AssignOnce []string
	Sessions   func() map[string]any
}

// New constructs an empty Model with the standard ambient system variables
// declared (spec.md §3: _sessionid, _name, _ioprocessors, _x.self, sessions).
func New(opts Options) *Model {
	m := &Model{
		vars:         map[string]any{},
		hidden:       map[string]bool{},
		once:         map[string]bool{},
		sessionID:    opts.SessionID,
		name:         opts.Name,
		ioprocessors: map[string]string{},
		sessions:     opts.Sessions,
		funcs:        map[string]Func{},
	}
	for _, h := range opts.Hidden {
		m.hidden[h] = true
	}
	for _, a := range opts.AssignOnce {
		m.once[a] = true
	}
	m.hidden[scxml.SessionIDSystemVariable] = true
	m.hidden[scxml.NameSystemVariable] = true
	m.hidden[scxml.IOProcessorsSystemVariable] = true
	m.hidden[scxml.XSystemVariable] = true
	m.hidden[scxml.EventSystemVariable] = true
	return m
}

// SetSelf wires the _x.self back-pointer (SPEC_FULL.md §10).
func (m *Model) SetSelf(self any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.self = self
}

// SetIOProcessor records a processor's location for the _ioprocessors table.
func (m *Model) SetIOProcessor(typeURI, location string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ioprocessors[typeURI] = location
}

// SetSessionIdentity overrides _sessionid/_name, used when a cloned Model
// (interpreter.Session.startInvoke) becomes the datamodel of a new child
// session rather than a copy of its parent.
func (m *Model) SetSessionIdentity(sessionID, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessionID = sessionID
	m.name = name
}

// RegisterFunc exposes a built-in callable to expressions, e.g. "In".
func (m *Model) RegisterFunc(name string, fn Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs[name] = fn
}

func (m *Model) IsLegalName(id string) bool {
	return legalName.MatchString(id)
}

func (m *Model) Initialize(ctx context.Context, dataElements []scxml.Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range dataElements {
		if !legalName.MatchString(d.ID) {
			return &scxml.DataModelError{PlatformError: scxml.NewPlatformError(
				"error.execution", fmt.Sprintf("illegal data identifier %q", d.ID), nil, nil)}
		}
		var val any
		switch {
		case d.Expr != "":
			v, err := m.evalLocked(ctx, d.Expr)
			if err != nil {
				return &scxml.ExprEvalError{PlatformError: scxml.NewPlatformError(
					"error.execution", "failed to evaluate data expr", err,
					map[string]any{"id": d.ID, "expr": d.Expr})}
			}
			val = v
		case d.Content != nil:
			val = d.Content
		default:
			val = nil
		}
		if _, exists := m.vars[d.ID]; !exists {
			m.vars[d.ID] = val
		}
	}
	return nil
}

func (m *Model) EvaluateValue(ctx context.Context, expression string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.evalLocked(ctx, expression)
}

func (m *Model) EvaluateCondition(ctx context.Context, expression string) (bool, error) {
	if expression == "" {
		return true, nil
	}
	v, err := m.EvaluateValue(ctx, expression)
	if err != nil {
		return false, err
	}
	return truthy(v), nil
}

func (m *Model) EvaluateLocation(ctx context.Context, location string) (any, error) {
	return m.EvaluateValue(ctx, location)
}

func (m *Model) Assign(ctx context.Context, location string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !legalName.MatchString(location) {
		return &scxml.IllegalLocationError{PlatformError: scxml.NewPlatformError(
			"error.execution", fmt.Sprintf("illegal assignment location %q", location), nil,
			map[string]any{"location": location})}
	}
	if m.hidden[location] {
		return &scxml.DataModelError{PlatformError: scxml.NewPlatformError(
			"error.execution", fmt.Sprintf("location %q is read-only", location), nil,
			map[string]any{"location": location})}
	}
	if _, exists := m.vars[location]; !exists {
		return &scxml.IllegalLocationError{PlatformError: scxml.NewPlatformError(
			"error.execution", fmt.Sprintf("location %q is not declared", location), nil,
			map[string]any{"location": location})}
	}
	if m.once[location] {
		if _, written := m.vars[location+"\x00written"]; written {
			return &scxml.DataModelError{PlatformError: scxml.NewPlatformError(
				"error.execution", fmt.Sprintf("location %q may only be assigned once", location), nil,
				map[string]any{"location": location})}
		}
		m.vars[location+"\x00written"] = true
	}
	m.vars[location] = value
	return nil
}

func (m *Model) GetVariable(ctx context.Context, id string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[id]
	if !ok {
		return nil, &scxml.DataModelError{PlatformError: scxml.NewPlatformError(
			"error.execution", fmt.Sprintf("undeclared variable %q", id), nil, nil)}
	}
	return v, nil
}

func (m *Model) SetVariable(ctx context.Context, id string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !legalName.MatchString(id) {
		return &scxml.DataModelError{PlatformError: scxml.NewPlatformError(
			"error.execution", fmt.Sprintf("illegal identifier %q", id), nil, nil)}
	}
	m.vars[id] = value
	return nil
}

func (m *Model) GetSystemVariable(ctx context.Context, name string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch name {
	case scxml.SessionIDSystemVariable:
		return m.sessionID, nil
	case scxml.NameSystemVariable:
		return m.name, nil
	case scxml.IOProcessorsSystemVariable:
		return m.ioprocessors, nil
	case scxml.EventSystemVariable:
		return m.currentEvent, nil
	case scxml.XSystemVariable:
		x := map[string]any{"self": m.self}
		if m.sessions != nil {
			x["sessions"] = m.sessions()
		}
		return x, nil
	}
	return nil, &scxml.DataModelError{PlatformError: scxml.NewPlatformError(
		"error.execution", fmt.Sprintf("unknown system variable %q", name), nil, nil)}
}

func (m *Model) SetSystemVariable(ctx context.Context, name string, value any) error {
	return &scxml.DataModelError{PlatformError: scxml.NewPlatformError(
		"error.execution", fmt.Sprintf("system variable %q is read-only", name), nil, nil)}
}

func (m *Model) SetCurrentEvent(ctx context.Context, event any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentEvent = event
	return nil
}

func (m *Model) ExecuteScript(ctx context.Context, script string) error {
	_, err := m.EvaluateValue(ctx, script)
	return err
}

func (m *Model) Clone(ctx context.Context) (scxml.DataModel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clone := &Model{
		vars:         make(map[string]any, len(m.vars)),
		hidden:       m.hidden,
		once:         m.once,
		sessionID:    m.sessionID,
		name:         m.name,
		ioprocessors: m.ioprocessors,
		self:         m.self,
		sessions:     m.sessions,
		currentEvent: m.currentEvent,
		funcs:        m.funcs,
	}
	for k, v := range m.vars {
		clone.vars[k] = v
	}
	return clone, nil
}

func (m *Model) ValidateExpression(ctx context.Context, expression string, exprType scxml.ExpressionType) error {
	return validateSyntax(expression)
}

var _ scxml.DataModel = (*Model)(nil)
