package mapper

import (
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// TerminateMapper emits one InProgress task carrying the termination
// status/reason/output from the node; the Terminate SystemTask
// validates and applies it — spec §4.7/§4.8.
type TerminateMapper struct{}

func (TerminateMapper) GetMappedTasks(ctx *Context) ([]*model.TaskInstance, error) {
	t := newTask(ctx, model.TaskInProgress)
	t.Input["terminationStatus"] = value.String(ctx.Node.TerminationStatus)
	t.Input["terminationReason"] = value.String(ctx.Node.TerminationReason)
	if ctx.Node.WorkflowOutput != nil {
		t.Input["workflowOutput"] = value.Map(ctx.Node.WorkflowOutput)
	}
	return []*model.TaskInstance{t}, nil
}
