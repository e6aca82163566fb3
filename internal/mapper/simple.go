package mapper

import "github.com/sarlalian/conductorial/pkg/model"

// SimpleMapper expands a SIMPLE/user-defined node into one Scheduled
// task instance, with rate-limit/callback fields filled from the task
// definition.
type SimpleMapper struct{}

func (SimpleMapper) GetMappedTasks(ctx *Context) ([]*model.TaskInstance, error) {
	t := newTask(ctx, model.TaskScheduled)
	if ctx.TaskDef != nil {
		t.RateLimitFrequencyInSeconds = ctx.TaskDef.RateLimitFrequencyInSeconds
		t.RateLimitPerFrequency = ctx.TaskDef.RateLimitPerFrequency
	}
	return []*model.TaskInstance{t}, nil
}
