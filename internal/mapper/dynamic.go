package mapper

import (
	"github.com/sarlalian/conductorial/internal/apierr"
	"github.com/sarlalian/conductorial/pkg/model"
)

// DynamicMapper resolves the task name to run from
// resolved_input[dynamicTaskNameParam] at runtime, overrides the
// node's name, resolves that name's task definition, and emits one
// Scheduled task — spec §4.7 "Dynamic".
type DynamicMapper struct{}

func (DynamicMapper) GetMappedTasks(ctx *Context) ([]*model.TaskInstance, error) {
	param := ctx.Node.DynamicTaskNameParam
	if param == "" {
		return nil, apierr.NewIllegalArgument("dynamic task node missing dynamicTaskNameParam", nil)
	}
	nameVal, ok := ctx.ResolvedInput[param]
	if !ok {
		return nil, apierr.NewIllegalArgument("dynamic task input missing key "+param, nil)
	}
	name, err := nameVal.AsString()
	if err != nil {
		return nil, apierr.NewIllegalArgument("dynamic task name must be a string", err)
	}

	t := newTask(ctx, model.TaskScheduled)
	t.TaskDefName = name
	if ctx.LookupTaskDef != nil {
		if def := ctx.LookupTaskDef(name); def != nil {
			t.RateLimitFrequencyInSeconds = def.RateLimitFrequencyInSeconds
			t.RateLimitPerFrequency = def.RateLimitPerFrequency
		}
	}
	return []*model.TaskInstance{t}, nil
}
