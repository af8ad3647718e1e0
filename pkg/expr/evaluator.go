// Package expr evaluates the restricted expressions used for
// connObjectKey-link and derived-attribute computation. Expressions are
// Starlark, executed in a sandboxed thread against a fixed read-only
// context of entity fields, plain attributes and derived attributes; no
// I/O, no imports, no arbitrary method invocation.
package expr

import (
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"
)

// Context is the read-only dictionary an expression is evaluated against.
type Context struct {
	// Fields maps entity field names (key, name, username, ...) to values.
	Fields map[string]string

	// PlainAttrs maps plain schema names to their values.
	PlainAttrs map[string][]string

	// DerAttrs maps derived schema names to their computed values.
	DerAttrs map[string]string
}

// Evaluator executes expressions with a bounded execution budget.
type Evaluator struct {
	maxSteps uint64
	timeout  time.Duration
}

// NewEvaluator creates an evaluator. A zero timeout defaults to one second.
func NewEvaluator(timeout time.Duration) *Evaluator {
	if timeout == 0 {
		timeout = time.Second
	}
	return &Evaluator{
		// Step budget keeps runaway expressions from stalling assembly.
		maxSteps: 100000,
		timeout:  timeout,
	}
}

// Evaluate runs a single expression and returns its string result.
// Non-string results are stringified; None becomes the empty string.
func (e *Evaluator) Evaluate(expression string, ctx Context) (string, error) {
	if strings.TrimSpace(expression) == "" {
		return "", nil
	}

	thread := &starlark.Thread{
		Name: "idforge-expr",
		Print: func(_ *starlark.Thread, _ string) {
			// Suppressed: expressions have no output channel.
		},
	}
	thread.SetMaxExecutionSteps(e.maxSteps)

	deadline := time.AfterFunc(e.timeout, func() {
		thread.Cancel("expression timeout")
	})
	defer deadline.Stop()

	value, err := starlark.Eval(thread, "expr.star", expression, e.predeclared(ctx))
	if err != nil {
		return "", fmt.Errorf("expression evaluation failed: %w", err)
	}

	return Stringify(value), nil
}

// predeclared builds the evaluation environment. Only the three context
// dictionaries and a handful of pure string helpers are visible.
func (e *Evaluator) predeclared(ctx Context) starlark.StringDict {
	fields := starlark.NewDict(len(ctx.Fields))
	for k, v := range ctx.Fields {
		_ = fields.SetKey(starlark.String(k), starlark.String(v))
	}

	plainAttrs := starlark.NewDict(len(ctx.PlainAttrs))
	for k, vs := range ctx.PlainAttrs {
		list := make([]starlark.Value, len(vs))
		for i, v := range vs {
			list[i] = starlark.String(v)
		}
		_ = plainAttrs.SetKey(starlark.String(k), starlark.NewList(list))
	}

	derAttrs := starlark.NewDict(len(ctx.DerAttrs))
	for k, v := range ctx.DerAttrs {
		_ = derAttrs.SetKey(starlark.String(k), starlark.String(v))
	}

	return starlark.StringDict{
		"fields":      fields,
		"plain_attrs": plainAttrs,
		"der_attrs":   derAttrs,
		"attr":        starlark.NewBuiltin("attr", builtinAttr(plainAttrs)),
	}
}

// builtinAttr returns attr(name, default=""): the first value of a plain
// attribute, so expressions don't have to index into plain_attrs lists.
func builtinAttr(plainAttrs *starlark.Dict) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var name string
		var fallback string
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "default?", &fallback); err != nil {
			return nil, err
		}
		v, found, err := plainAttrs.Get(starlark.String(name))
		if err != nil || !found {
			return starlark.String(fallback), nil
		}
		list, ok := v.(*starlark.List)
		if !ok || list.Len() == 0 {
			return starlark.String(fallback), nil
		}
		return list.Index(0), nil
	}
}

// Stringify converts a Starlark value into the engine's string form.
func Stringify(v starlark.Value) string {
	switch val := v.(type) {
	case starlark.NoneType:
		return ""
	case starlark.String:
		return string(val)
	case starlark.Bool:
		if bool(val) {
			return "true"
		}
		return "false"
	default:
		return v.String()
	}
}
