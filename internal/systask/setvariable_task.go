package systask

import (
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// SetVariableTask merges task.input into workflow.variables; if the
// result exceeds MaxBytes serialized, the merge is rolled back and the
// task fails — spec §4.8.
type SetVariableTask struct {
	MaxBytes int
}

func (SetVariableTask) TypeName() string { return string(model.TaskTypeSetVariable) }
func (SetVariableTask) IsAsync() bool    { return false }

func (SetVariableTask) Start(*model.WorkflowInstance, *model.TaskInstance) error { return nil }

func (s SetVariableTask) Execute(w *model.WorkflowInstance, t *model.TaskInstance, siblings []*model.TaskInstance) (bool, error) {
	if t.Status.IsTerminal() {
		return false, nil
	}
	candidate := cloneVars(w.Variables)
	for k, v := range t.Input {
		candidate[k] = v
	}

	if serializedSize(candidate) > s.MaxBytes {
		t.Status = model.TaskFailed
		t.ReasonForIncompletion = "workflow variables would exceed the configured size threshold"
		return true, nil
	}

	w.Variables = candidate
	t.Status = model.TaskCompleted
	return true, nil
}

func (SetVariableTask) Cancel(*model.WorkflowInstance, *model.TaskInstance) error { return nil }

func cloneVars(m map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
