package mapper

import (
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// JoinMapper emits one InProgress task recording the ref-names to
// await — spec §4.7 "Join". Completion is decided by the Join
// SystemTask (internal/systask).
type JoinMapper struct{}

func (JoinMapper) GetMappedTasks(ctx *Context) ([]*model.TaskInstance, error) {
	t := newTask(ctx, model.TaskInProgress)
	if _, ok := t.Input["joinOn"]; !ok {
		t.Input["joinOn"] = value.List(stringsToValues(ctx.Node.JoinOn))
	}
	return []*model.TaskInstance{t}, nil
}

// ExclusiveJoinMapper emits one InProgress task recording
// exclusiveJoinOn and the optional defaultExclusiveJoinTask — spec
// §4.7 "ExclusiveJoin".
type ExclusiveJoinMapper struct{}

func (ExclusiveJoinMapper) GetMappedTasks(ctx *Context) ([]*model.TaskInstance, error) {
	t := newTask(ctx, model.TaskInProgress)
	t.Input["exclusiveJoinOn"] = value.List(stringsToValues(ctx.Node.ExclusiveJoinOn))
	if ctx.Node.DefaultExclusiveJoinTask != "" {
		t.Input["defaultExclusiveJoinTask"] = value.String(ctx.Node.DefaultExclusiveJoinTask)
	}
	return []*model.TaskInstance{t}, nil
}
