package systask

import "github.com/sarlalian/conductorial/pkg/model"

// TerminateTask validates terminationStatus, copies workflowOutput
// into task.output, and completes or fails accordingly — spec §4.8.
type TerminateTask struct{}

func (TerminateTask) TypeName() string { return string(model.TaskTypeTerminate) }
func (TerminateTask) IsAsync() bool    { return false }

func (TerminateTask) Start(*model.WorkflowInstance, *model.TaskInstance) error { return nil }

func (TerminateTask) Execute(_ *model.WorkflowInstance, t *model.TaskInstance, _ []*model.TaskInstance) (bool, error) {
	if t.Status.IsTerminal() {
		return false, nil
	}
	statusVal, ok := t.Input["terminationStatus"]
	status := ""
	if ok {
		status, _ = statusVal.AsString()
	}
	if output, ok := t.Input["workflowOutput"]; ok {
		if m, err := output.AsMap(); err == nil {
			t.Output = m
		}
	}
	switch status {
	case "COMPLETED":
		t.Status = model.TaskCompleted
	case "FAILED":
		t.Status = model.TaskFailed
		if reason, ok := t.Input["terminationReason"]; ok {
			t.ReasonForIncompletion, _ = reason.AsString()
		}
	default:
		t.Status = model.TaskFailed
		t.ReasonForIncompletion = "invalid terminationStatus: " + status
	}
	return true, nil
}

func (TerminateTask) Cancel(*model.WorkflowInstance, *model.TaskInstance) error { return nil }
