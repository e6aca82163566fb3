package mapper

import "github.com/sarlalian/conductorial/pkg/model"

// StartWorkflowMapper emits one Scheduled async task; the
// StartWorkflow SystemTask enqueues a new creation event when it runs
// — spec §4.7/§4.8.
type StartWorkflowMapper struct{}

func (StartWorkflowMapper) GetMappedTasks(ctx *Context) ([]*model.TaskInstance, error) {
	t := newTask(ctx, model.TaskScheduled)
	return []*model.TaskInstance{t}, nil
}
