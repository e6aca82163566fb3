package value

import "github.com/jmespath/go-jmespath"

// Read evaluates a structured-path expression against ctx (a Map value)
// and returns the first match stringified, or "" on a miss — the
// original object model's read() never errors, it only ever returns an
// empty string when the path doesn't resolve.
//
// Unlike the source engine, which lazily replaces its document context
// in place with a JSON projection the first time Read is called, this
// implementation projects to plain Go data on every call without
// mutating ctx: Go's value semantics make the original's in-place swap
// unnecessary to get the same one-time-conversion win, and a pure
// function is easier to reason about at the call sites in the
// ParameterResolver and the Switch mapper.
func Read(ctx map[string]Value, path string) string {
	projected := Map(ctx).ToAny()
	result, err := jmespath.Search(path, projected)
	if err != nil || result == nil {
		return ""
	}
	if s, ok := result.(string); ok {
		return s
	}
	return FromAny(result).String()
}

// ReadValue is like Read but preserves the resolved value's original
// type instead of stringifying it, used by the ParameterResolver when a
// template string is a single bare token (substitution rule 5).
func ReadValue(ctx map[string]Value, path string) Value {
	projected := Map(ctx).ToAny()
	result, err := jmespath.Search(path, projected)
	if err != nil || result == nil {
		return String("")
	}
	return FromAny(result)
}
