// Package eval implements the engine's ExpressionEvaluators registry
// (spec §4.6): a pluggable set of evaluator-type -> Evaluator,
// with the two required evaluators, value-param and javascript.
package eval

import (
	"sync"

	"github.com/dop251/goja"

	"github.com/sarlalian/conductorial/internal/apierr"
	"github.com/sarlalian/conductorial/pkg/value"
)

// Evaluator computes a Value from an expression and an input Value.
type Evaluator interface {
	Evaluate(expression string, input value.Value) (value.Value, error)
}

// Registry is keyed by evaluator-type string ("value-param", "javascript", ...).
type Registry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// NewRegistry builds a registry with the two required evaluators
// already registered.
func NewRegistry() *Registry {
	r := &Registry{evaluators: make(map[string]Evaluator)}
	r.Register("value-param", ValueParamEvaluator{})
	r.Register("javascript", NewJavaScriptEvaluator())
	return r
}

func (r *Registry) Register(evaluatorType string, e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[evaluatorType] = e
}

func (r *Registry) Get(evaluatorType string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[evaluatorType]
	return e, ok
}

// ValueParamEvaluator treats the expression as a key into a Map input,
// returning input[key] or Null.
type ValueParamEvaluator struct{}

func (ValueParamEvaluator) Evaluate(expression string, input value.Value) (value.Value, error) {
	m, err := input.AsMap()
	if err != nil {
		return value.Null(), apierr.NewScriptEvalFailed(expression, err)
	}
	if v, ok := m[expression]; ok {
		return v, nil
	}
	return value.Null(), nil
}

// JavaScriptEvaluator runs a JS expression in a single bound parameter
// `$`, backed by goja (pure-Go ECMAScript), since no engine in the
// retrieval pack embeds a scripting runtime. Compiled programs are
// cached by expression text, matching the source engine's
// "cache compiled expressions by hash" instruction; each Evaluate call
// draws a fresh goja.Runtime from a pool since goja runtimes are not
// safe for concurrent use, satisfying "isolate per evaluator thread".
type JavaScriptEvaluator struct {
	programs sync.Map // expression string -> *goja.Program
	runtimes sync.Pool
}

func NewJavaScriptEvaluator() *JavaScriptEvaluator {
	return &JavaScriptEvaluator{
		runtimes: sync.Pool{
			New: func() interface{} { return goja.New() },
		},
	}
}

func (e *JavaScriptEvaluator) Evaluate(expression string, input value.Value) (value.Value, error) {
	prog, err := e.compile(expression)
	if err != nil {
		return value.Null(), apierr.NewScriptEvalFailed(expression, err)
	}

	rt := e.runtimes.Get().(*goja.Runtime)
	defer e.runtimes.Put(rt)

	if err := rt.Set("$", input.ToAny()); err != nil {
		return value.Null(), apierr.NewScriptEvalFailed(expression, err)
	}
	result, err := rt.RunProgram(prog)
	if err != nil {
		return value.Null(), apierr.NewScriptEvalFailed(expression, err)
	}
	return value.FromAny(result.Export()), nil
}

func (e *JavaScriptEvaluator) compile(expression string) (*goja.Program, error) {
	if cached, ok := e.programs.Load(expression); ok {
		return cached.(*goja.Program), nil
	}
	prog, err := goja.Compile("expression", expression, false)
	if err != nil {
		return nil, err
	}
	e.programs.Store(expression, prog)
	return prog, nil
}
