package systask

import "github.com/sarlalian/conductorial/pkg/model"

// SwitchTask is only a marker: routing happened at mapping time
// (internal/mapper.SwitchMapper), so execute simply completes it.
type SwitchTask struct{}

func (SwitchTask) TypeName() string { return string(model.TaskTypeSwitch) }
func (SwitchTask) IsAsync() bool    { return false }

func (SwitchTask) Start(*model.WorkflowInstance, *model.TaskInstance) error { return nil }

func (SwitchTask) Execute(_ *model.WorkflowInstance, t *model.TaskInstance, _ []*model.TaskInstance) (bool, error) {
	if t.Status == model.TaskCompleted {
		return false, nil
	}
	t.Status = model.TaskCompleted
	return true, nil
}

func (SwitchTask) Cancel(*model.WorkflowInstance, *model.TaskInstance) error { return nil }
