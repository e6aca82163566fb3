package systask

import (
	"github.com/sarlalian/conductorial/internal/apierr"
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// StartWorkflowTask launches a new workflow instance asynchronously and
// completes once that workflow has been accepted, spec §4.7
// "StartWorkflow". NewRegistry registers it with a nil Starter;
// internal/api.New replaces that registration with one whose Starter is
// Engine.StartWorkflow. With a nil Starter, Execute leaves the task
// IN_PROGRESS, matching the "poll again" default of an async system
// task with no side effect available.
type StartWorkflowTask struct {
	Starter func(req *model.StartRequest) (string, error)
}

func (StartWorkflowTask) TypeName() string { return string(model.TaskTypeStartWorkflow) }
func (StartWorkflowTask) IsAsync() bool    { return true }

func (StartWorkflowTask) Start(*model.WorkflowInstance, *model.TaskInstance) error { return nil }

func (s StartWorkflowTask) Execute(_ *model.WorkflowInstance, t *model.TaskInstance, _ []*model.TaskInstance) (bool, error) {
	if t.Status.IsTerminal() {
		return false, nil
	}
	if s.Starter == nil {
		return false, nil
	}

	req, err := startRequestFromInput(t.Input)
	if err != nil {
		t.Status = model.TaskFailed
		t.ReasonForIncompletion = err.Error()
		return true, nil
	}

	childID, err := s.Starter(req)
	if err != nil {
		t.Status = model.TaskFailed
		t.ReasonForIncompletion = err.Error()
		return true, nil
	}
	if t.Output == nil {
		t.Output = map[string]value.Value{}
	}
	t.Output["workflowId"] = value.String(childID)
	t.Status = model.TaskCompleted
	return true, nil
}

func (StartWorkflowTask) Cancel(*model.WorkflowInstance, *model.TaskInstance) error { return nil }

func startRequestFromInput(input map[string]value.Value) (*model.StartRequest, error) {
	nameVal, ok := input["name"]
	if !ok {
		return nil, apierr.NewIllegalArgument("startWorkflow requires an input \"name\"", nil)
	}
	name, err := nameVal.AsString()
	if err != nil {
		return nil, apierr.NewIllegalArgument("startWorkflow \"name\" must be a string", err)
	}

	req := &model.StartRequest{Name: name}
	if v, ok := input["version"]; ok {
		req.Version = asInt(v)
	}
	if v, ok := input["correlationId"]; ok {
		req.CorrelationID, _ = v.AsString()
	}
	if v, ok := input["input"]; ok {
		req.Input, _ = v.AsMap()
	}
	return req, nil
}

func asInt(v value.Value) int {
	switch n := v.ToAny().(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	default:
		return 0
	}
}
