// Package mapper implements the TaskMapper registry (spec §4.7):
// per-task-type expansion of a TaskNode + workflow state into one or
// more fresh TaskInstances. Mappers are registered by task type when
// NewRegistry builds the registry, the same registration-with-aliasing shape as the
// teacher's internal/tasks.Registry, minus aliasing (the wire-level
// type strings are fixed by spec §6).
package mapper

import (
	"github.com/google/uuid"

	"github.com/sarlalian/conductorial/internal/apierr"
	"github.com/sarlalian/conductorial/internal/eval"
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// Context carries everything a mapper needs to expand one TaskNode.
type Context struct {
	Workflow      *model.WorkflowInstance
	Node          *model.TaskNode
	TaskDef       *model.TaskDefinition
	ResolvedInput map[string]value.Value
	RetryCount    int
	RetriedTaskID string
	Evaluators    *eval.Registry

	// LookupTaskDef resolves a task definition by name, used by
	// mappers (Dynamic) that need a definition other than the node's
	// own (ctx.TaskDef is already resolved for ctx.Node.Name).
	LookupTaskDef func(name string) *model.TaskDefinition

	// Registry lets a composite mapper (Switch, DoWhile, ForkJoin)
	// recursively map a child TaskNode the same way the decider would.
	Registry *Registry
}

// mapChild re-invokes the registry for a child node reached through a
// composite mapper (Switch/DoWhile/ForkJoin), inheriting the parent's
// workflow/evaluators/lookups but with the child's own resolved input.
func mapChild(ctx *Context, child *model.TaskNode, resolvedInput map[string]value.Value, extra map[string]value.Value) ([]*model.TaskInstance, error) {
	if ctx.Registry == nil {
		return nil, nil
	}
	m, ok := ctx.Registry.Get(child.Type)
	if !ok {
		return nil, nil
	}
	merged := map[string]value.Value{}
	for k, v := range resolvedInput {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	childCtx := &Context{
		Workflow:      ctx.Workflow,
		Node:          child,
		TaskDef:       nil,
		ResolvedInput: merged,
		Evaluators:    ctx.Evaluators,
		LookupTaskDef: ctx.LookupTaskDef,
		Registry:      ctx.Registry,
	}
	if ctx.LookupTaskDef != nil {
		childCtx.TaskDef = ctx.LookupTaskDef(child.Name)
	}
	return m.GetMappedTasks(childCtx)
}

// TaskMapper expands one Context into the task instances it produces.
type TaskMapper interface {
	GetMappedTasks(ctx *Context) ([]*model.TaskInstance, error)
}

// Registry is a type -> TaskMapper map built by NewRegistry.
type Registry struct {
	mappers map[model.TaskType]TaskMapper
}

func NewRegistry() *Registry {
	r := &Registry{mappers: make(map[model.TaskType]TaskMapper)}
	r.Register(model.TaskTypeSimple, SimpleMapper{})
	r.Register(model.TaskTypeDynamic, DynamicMapper{})
	r.Register(model.TaskTypeSwitch, SwitchMapper{})
	r.Register(model.TaskTypeSetVariable, SetVariableMapper{})
	r.Register(model.TaskTypeTerminate, TerminateMapper{})
	r.Register(model.TaskTypeDoWhile, DoWhileMapper{})
	r.Register(model.TaskTypeForkJoin, ForkJoinMapper{})
	r.Register(model.TaskTypeJoin, JoinMapper{})
	r.Register(model.TaskTypeExclusiveJoin, ExclusiveJoinMapper{})
	r.Register(model.TaskTypeStartWorkflow, StartWorkflowMapper{})
	r.Register(model.TaskTypeForkJoinDynamic, notImplementedMapper{typeName: string(model.TaskTypeForkJoinDynamic)})
	r.Register(model.TaskTypeSubWorkflow, notImplementedMapper{typeName: string(model.TaskTypeSubWorkflow)})
	return r
}

func (r *Registry) Register(t model.TaskType, m TaskMapper) { r.mappers[t] = m }

func (r *Registry) Get(t model.TaskType) (TaskMapper, bool) {
	m, ok := r.mappers[t]
	return m, ok
}

func newID() string { return uuid.NewString() }

func newTask(ctx *Context, status model.TaskStatus) *model.TaskInstance {
	return &model.TaskInstance{
		ID:                 newID(),
		WorkflowInstanceID: ctx.Workflow.ID,
		ReferenceTaskName:  ctx.Node.TaskReferenceName,
		TaskDefName:        ctx.Node.Name,
		Type:               ctx.Node.Type,
		Status:             status,
		RetryCount:         ctx.RetryCount,
		RetriedTaskID:      ctx.RetriedTaskID,
		Input:              ctx.ResolvedInput,
		Output:             map[string]value.Value{},
		WorkflowPriority:   ctx.Workflow.Priority,
	}
}

// notImplementedMapper backs FORK_JOIN_DYNAMIC and SUB_WORKFLOW: spec
// §9 records these as incomplete upstream, contracts only.
type notImplementedMapper struct{ typeName string }

func (m notImplementedMapper) GetMappedTasks(*Context) ([]*model.TaskInstance, error) {
	return nil, apierr.NewNonTransient(m.typeName + " mapper is not implemented")
}
