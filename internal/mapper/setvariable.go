package mapper

import "github.com/sarlalian/conductorial/pkg/model"

// SetVariableMapper emits one InProgress task carrying the resolved
// input, whose effect (merging into workflow.variables) is applied by
// the SetVariable SystemTask — spec §4.7/§4.8.
type SetVariableMapper struct{}

func (SetVariableMapper) GetMappedTasks(ctx *Context) ([]*model.TaskInstance, error) {
	t := newTask(ctx, model.TaskInProgress)
	return []*model.TaskInstance{t}, nil
}
