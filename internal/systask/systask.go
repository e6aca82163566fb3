// Package systask implements the SystemTaskRegistry (spec §4.8):
// built-in task behaviors run in-process by the Executor rather than
// dispatched to an external worker.
package systask

import (
	"encoding/json"

	"github.com/sarlalian/conductorial/internal/eval"
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// MaxVariablesBytes is the default serialized-size threshold for
// workflow.variables, spec §4.8's SetVariable guard.
const MaxVariablesBytes = 256 * 1024

// Executor runs a system task's start/execute/cancel behavior against
// a workflow and one of its tasks, returning whether state changed.
type Executor interface {
	TypeName() string
	IsAsync() bool
	Start(w *model.WorkflowInstance, t *model.TaskInstance) error
	Execute(w *model.WorkflowInstance, t *model.TaskInstance, siblings []*model.TaskInstance) (bool, error)
	Cancel(w *model.WorkflowInstance, t *model.TaskInstance) error
}

// Registry maps a task type to its SystemTask implementation.
type Registry struct {
	tasks map[model.TaskType]Executor
}

func NewRegistry(evaluators *eval.Registry) *Registry {
	r := &Registry{tasks: make(map[model.TaskType]Executor)}
	r.Register(SwitchTask{})
	r.Register(SetVariableTask{MaxBytes: MaxVariablesBytes})
	r.Register(TerminateTask{})
	r.Register(JoinTask{})
	r.Register(ExclusiveJoinTask{})
	r.Register(&DoWhileTask{Evaluators: evaluators})
	r.Register(StartWorkflowTask{})
	return r
}

func (r *Registry) Register(e Executor) { r.tasks[model.TaskType(e.TypeName())] = e }

func (r *Registry) Get(t model.TaskType) (Executor, bool) {
	e, ok := r.tasks[t]
	return e, ok
}

func serializedSize(m map[string]value.Value) int {
	b, err := json.Marshal(value.Map(m))
	if err != nil {
		return 0
	}
	return len(b)
}
