// Package resolve implements the ParameterResolver (spec §4.2): it
// builds a workflow/task context map and substitutes `${...}` tokens
// found in an input template against it.
package resolve

import (
	"os"

	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// systemToken resolves the three system tokens the source engine
// short-circuits before falling back to a context path lookup.
func systemToken(path, taskID string) (string, bool) {
	switch path {
	case "WF_TASK_ID":
		return taskID, true
	case "SF_ENV":
		return os.Getenv("SF_ENV"), true
	case "SF_STACK":
		return os.Getenv("SF_STACK"), true
	default:
		return "", false
	}
}

// BuildContext assembles the lookup map substitution is evaluated
// against: a `workflow` namespace with the twelve fixed keys spec §4.2
// names, plus one namespace per task already present in the workflow,
// keyed by reference name with any DoWhile `__<iter>` suffix stripped.
func BuildContext(w *model.WorkflowInstance, tasks []*model.TaskInstance) map[string]value.Value {
	wf := map[string]value.Value{
		"input":                 value.Map(w.Input),
		"output":                value.Map(w.Output),
		"status":                value.String(string(w.Status)),
		"workflowId":            value.String(w.ID),
		"parentWorkflowId":      value.String(w.ParentWorkflowID),
		"parentWorkflowTaskId":  value.String(w.ParentWorkflowTaskID),
		"workflowType":          value.String(w.DefinitionName),
		"version":               value.Int(int64(w.DefinitionVersion)),
		"correlationId":         value.String(w.CorrelationID),
		"reasonForIncompletion": value.String(w.ReasonForIncompletion),
		"schemaVersion":         value.Int(2),
		"variables":             value.Map(w.Variables),
	}
	ctx := map[string]value.Value{"workflow": value.Map(wf)}

	for _, t := range tasks {
		refName := stripIterationSuffix(t.ReferenceTaskName, t.Iteration)
		ctx[refName] = value.Map(map[string]value.Value{
			"input":                 value.Map(t.Input),
			"output":                value.Map(t.Output),
			"taskType":              value.String(string(t.Type)),
			"status":                value.String(string(t.Status)),
			"referenceTaskName":     value.String(t.ReferenceTaskName),
			"retryCount":            value.Int(int64(t.RetryCount)),
			"correlationId":         value.String(w.CorrelationID),
			"pollCount":             value.Int(int64(t.PollCount)),
			"taskDefName":           value.String(t.TaskDefName),
			"scheduledTime":         value.Int(t.ScheduledTime),
			"startTime":             value.Int(t.StartTime),
			"endTime":               value.Int(t.EndTime),
			"workflowInstanceId":    value.String(t.WorkflowInstanceID),
			"taskId":                value.String(t.ID),
			"reasonForIncompletion": value.String(t.ReasonForIncompletion),
			"callbackAfterSeconds":  value.Int(t.CallbackAfterSeconds),
			"workerId":              value.String(t.WorkerID),
			"iteration":             value.Int(int64(t.Iteration)),
		})
	}
	return ctx
}

func stripIterationSuffix(refName string, iteration int) string {
	if iteration <= 0 {
		return refName
	}
	suffix := "__" + itoaLocal(iteration)
	if len(refName) > len(suffix) && refName[len(refName)-len(suffix):] == suffix {
		return refName[:len(refName)-len(suffix)]
	}
	return refName
}

func itoaLocal(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Resolve substitutes every `${...}` token found in template's string
// leaves (recursing through maps and lists) against ctx, per spec
// §4.2's six substitution rules. taskID feeds the WF_TASK_ID system
// token.
func Resolve(template map[string]value.Value, ctx map[string]value.Value, taskID string) map[string]value.Value {
	out := make(map[string]value.Value, len(template))
	for k, v := range template {
		out[k] = resolveValue(v, ctx, taskID)
	}
	return out
}

func resolveValue(v value.Value, ctx map[string]value.Value, taskID string) value.Value {
	switch v.Kind() {
	case value.KindString:
		s, _ := v.AsString()
		return resolveString(s, ctx, taskID)
	case value.KindList:
		list, _ := v.AsList()
		out := make([]value.Value, len(list))
		for i, e := range list {
			out[i] = resolveValue(e, ctx, taskID)
		}
		return value.List(out)
	case value.KindMap:
		m, _ := v.AsMap()
		out := make(map[string]value.Value, len(m))
		for k, e := range m {
			out[k] = resolveValue(e, ctx, taskID)
		}
		return value.Map(out)
	default:
		return v
	}
}

// resolveString implements substitution rules 1-5 for a single string
// leaf: tokens are split out, each resolved via system-token
// short-circuit or a JSON-path-style context lookup (miss -> ""), and
// if the string reduces to exactly one token its resolved value's
// original type is preserved rather than stringified.
func resolveString(s string, ctx map[string]value.Value, taskID string) value.Value {
	toks := tokenize(s)
	if len(toks) == 0 {
		return value.String(s)
	}
	if len(toks) == 1 && !toks[0].literal {
		return resolveToken(toks[0], ctx, taskID)
	}

	var b []byte
	for _, t := range toks {
		if t.literal {
			b = append(b, t.text...)
			continue
		}
		resolved := resolveToken(t, ctx, taskID)
		b = append(b, resolved.String()...)
	}
	return value.String(string(b))
}

func resolveToken(t token, ctx map[string]value.Value, taskID string) value.Value {
	if t.path == "" {
		return value.String("")
	}
	if sysVal, ok := systemToken(t.path, taskID); ok {
		return value.String(sysVal)
	}
	return value.ReadValue(ctx, t.path)
}

// ApplyInputTemplateDefaults fills any key that is absent, or whose
// resolved value is Null, in resolved from def's InputTemplate
// defaults — substitution rule 6.
func ApplyInputTemplateDefaults(resolved map[string]value.Value, def *model.TaskDefinition) map[string]value.Value {
	if def == nil || len(def.InputTemplate) == 0 {
		return resolved
	}
	out := resolved
	if out == nil {
		out = map[string]value.Value{}
	}
	for k, def := range def.InputTemplate {
		if existing, ok := out[k]; !ok || existing.IsNull() {
			out[k] = def
		}
	}
	return out
}

// MergeWorkflowInputTemplate merges def's InputTemplate defaults ahead
// of the caller's StartRequest input, without overriding keys the
// caller already supplied — mirroring get_workflow_input's try_insert
// semantics.
func MergeWorkflowInputTemplate(input map[string]value.Value, def *model.WorkflowDefinition) map[string]value.Value {
	out := make(map[string]value.Value, len(def.InputTemplate)+len(input))
	for k, v := range def.InputTemplate {
		out[k] = v
	}
	for k, v := range input {
		out[k] = v
	}
	return out
}
