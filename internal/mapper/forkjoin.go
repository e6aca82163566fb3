package mapper

import (
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// ForkJoinMapper emits a Completed synthetic FORK task, then the first
// task of each branch as Scheduled, followed by the paired Join task
// (InProgress) — spec §4.7 "ForkJoin".
type ForkJoinMapper struct{}

func (ForkJoinMapper) GetMappedTasks(ctx *Context) ([]*model.TaskInstance, error) {
	forkTask := newTask(ctx, model.TaskCompleted)
	out := []*model.TaskInstance{forkTask}

	for _, branch := range ctx.Node.ForkTasks {
		if len(branch) == 0 {
			continue
		}
		children, err := mapChild(ctx, branch[0], ctx.ResolvedInput, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, children...)
	}

	joinTask := &model.TaskInstance{
		ID:                 newID(),
		WorkflowInstanceID: ctx.Workflow.ID,
		ReferenceTaskName:  ctx.Node.TaskReferenceName + "_join",
		TaskDefName:        ctx.Node.TaskReferenceName + "_join",
		Type:               model.TaskTypeJoin,
		Status:             model.TaskInProgress,
		Input: map[string]value.Value{
			"joinOn": value.List(stringsToValues(ctx.Node.JoinOn)),
		},
		Output:           map[string]value.Value{},
		WorkflowPriority: ctx.Workflow.Priority,
	}
	out = append(out, joinTask)
	return out, nil
}

func stringsToValues(ss []string) []value.Value {
	out := make([]value.Value, len(ss))
	for i, s := range ss {
		out[i] = value.String(s)
	}
	return out
}
