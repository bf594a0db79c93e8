package scxml

import "context"

// ExpressionType defines the kind of expression being evaluated, so a
// DataModel implementation can apply kind-specific parsing rules.
type ExpressionType string

const (
	ValueExpression     ExpressionType = "value"
	ConditionExpression ExpressionType = "condition"
	LocationExpression  ExpressionType = "location"
)

// DataModel is the pluggable expression-evaluation and variable-store
// boundary described in spec.md §3/§9. The interpreter never evaluates
// expressions itself; every <cond>, <expr>, and <location> crosses this
// interface.
type DataModel interface {
	// Initialize sets up the data model with initial data elements. Called
	// once per binding point: at session start for binding="early" data and
	// the top-level <datamodel>, and again per-state for binding="late" data
	// on that state's first entry.
	Initialize(ctx context.Context, dataElements []Data) error

	// EvaluateValue evaluates a value expression and returns the result.
	// Used for <data expr>, <assign expr>, <param expr>, etc.
	EvaluateValue(ctx context.Context, expression string) (any, error)

	// EvaluateCondition evaluates a boolean expression. Used for
	// <transition cond> and <if>/<elseif>.
	EvaluateCondition(ctx context.Context, expression string) (bool, error)

	// EvaluateLocation evaluates a location expression and returns the
	// value currently stored there. Used for <param location>.
	EvaluateLocation(ctx context.Context, location string) (any, error)

	// Assign assigns a value to a location. The location must already be a
	// legal, resolvable key; implementations must return an
	// IllegalLocationError-class error when it is not (spec.md §4.1).
	Assign(ctx context.Context, location string, value any) error

	// GetVariable retrieves a top-level data element's value by id.
	GetVariable(ctx context.Context, id string) (any, error)

	// SetVariable sets a top-level data element's value by id.
	SetVariable(ctx context.Context, id string, value any) error

	// GetSystemVariable retrieves a system variable: _event, _sessionid,
	// _name, _ioprocessors, _x.
	GetSystemVariable(ctx context.Context, name string) (any, error)

	// SetSystemVariable sets a system variable. Most are read-only from
	// userland executable content and return an error if written.
	SetSystemVariable(ctx context.Context, name string, value any) error

	// SetCurrentEvent sets _event to the event currently being processed;
	// called by the interpreter before running any matched executable
	// content (spec.md invariant: "_event is always the most recently
	// dequeued event while executable content runs").
	SetCurrentEvent(ctx context.Context, event any) error

	// ExecuteScript runs a <script> body (inline or fetched) in the data
	// model's own language.
	ExecuteScript(ctx context.Context, script string) error

	// Clone creates an independent copy for use when a parallel region or
	// invoked child session needs its own namelist-seeded store while
	// sharing ambient system variables.
	Clone(ctx context.Context) (DataModel, error)

	// ValidateExpression checks that an expression is syntactically valid
	// for this data model without evaluating it.
	ValidateExpression(ctx context.Context, expression string, exprType ExpressionType) error

	// IsLegalName reports whether id is a legal datamodel identifier
	// (spec.md §3: `[A-Za-z_][A-Za-z0-9_]*`). <assign>/<foreach> use this to
	// raise IllegalLocationError/DataModelError before ever touching the
	// store.
	IsLegalName(id string) bool
}
