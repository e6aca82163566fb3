// Package api implements the engine's programmatic seam (spec §6):
// Engine is the single entry point External Interfaces describes —
// Metadata, Execution, and Worker Protocol operations — with no HTTP
// router layered on top, matching the spec's "the HTTP layer is out of
// scope." It wires internal/store, internal/queue, internal/decider,
// internal/executor, internal/eventloop, internal/defstore, and
// internal/systask into one object, following the same top-level
// "orchestrator wires everything" shape as the teacher's
// internal/orchestrator.Orchestrator.
package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/sarlalian/conductorial/internal/apierr"
	"github.com/sarlalian/conductorial/internal/decider"
	"github.com/sarlalian/conductorial/internal/defstore"
	"github.com/sarlalian/conductorial/internal/eval"
	"github.com/sarlalian/conductorial/internal/eventloop"
	"github.com/sarlalian/conductorial/internal/executor"
	"github.com/sarlalian/conductorial/internal/lock"
	"github.com/sarlalian/conductorial/internal/mapper"
	"github.com/sarlalian/conductorial/internal/queue"
	"github.com/sarlalian/conductorial/internal/resolve"
	"github.com/sarlalian/conductorial/internal/store"
	"github.com/sarlalian/conductorial/internal/systask"
	"github.com/sarlalian/conductorial/internal/telemetry"
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// Engine is the engine process's single programmatic entry point.
type Engine struct {
	Store   *store.Store
	Queues  *queue.Queues
	Defs    *defstore.Store
	Systask *systask.Registry
	Decider *decider.Decider
	Exec    *executor.Executor
	Loop    *eventloop.EventLoop
	Log     telemetry.Logger
}

// Config bundles Engine's dependencies; anything left nil is built
// fresh with engine-sensible defaults.
type Config struct {
	Store            *store.Store
	Queues           *queue.Queues
	Defs             *defstore.Store
	Locker           lock.Locker
	Log              telemetry.Logger
	EvaluationWorkers int // EventLoop's evaluation pool size
}

// New wires a complete Engine: mapper and system-task registries, the
// Decider, the Executor, and the EventLoop, with the START_WORKFLOW
// system task and the Executor's failure-workflow launch both wired
// back to Engine.StartWorkflow.
func New(cfg Config) *Engine {
	st := cfg.Store
	if st == nil {
		st = store.New()
	}
	q := cfg.Queues
	if q == nil {
		q = queue.New()
	}
	defs := cfg.Defs
	if defs == nil {
		defs = defstore.New()
	}
	log := cfg.Log
	if log == nil {
		log = telemetry.New(telemetry.InfoLevel, nil)
	}

	evaluators := eval.NewRegistry()
	mappers := mapper.NewRegistry()
	sysReg := systask.NewRegistry(evaluators)
	dec := decider.New(mappers, evaluators, defs.GetTaskDef)
	exec := executor.New(st, q, dec, sysReg, cfg.Locker, log)

	e := &Engine{Store: st, Queues: q, Defs: defs, Systask: sysReg, Decider: dec, Exec: exec, Log: log}
	exec.Starter = e.StartWorkflow
	sysReg.Register(systask.StartWorkflowTask{Starter: e.StartWorkflow})

	e.Loop = eventloop.New(e.createInstance, e.evaluate, e.statusOf, cfg.EvaluationWorkers)
	e.Loop.Start()
	return e
}

// ---- Metadata API ----

func (e *Engine) RegisterWorkflowDef(def *model.WorkflowDefinition) error { return e.Defs.RegisterWorkflowDef(def) }
func (e *Engine) UpdateWorkflowDef(def *model.WorkflowDefinition) error   { return e.Defs.UpdateWorkflowDef(def) }
func (e *Engine) RemoveWorkflowDef(name string, version int) error       { return e.Defs.RemoveWorkflowDef(name, version) }
func (e *Engine) GetWorkflowDef(name string, version int) (*model.WorkflowDefinition, error) {
	return e.Defs.GetWorkflowDef(name, version)
}
func (e *Engine) GetLatestWorkflowDef(name string) (*model.WorkflowDefinition, error) {
	return e.Defs.GetLatestWorkflowDef(name)
}
func (e *Engine) RegisterTaskDef(def *model.TaskDefinition) error { return e.Defs.RegisterTaskDef(def) }
func (e *Engine) UpdateTaskDef(def *model.TaskDefinition) error   { return e.Defs.UpdateTaskDef(def) }
func (e *Engine) GetTaskDef(name string) *model.TaskDefinition    { return e.Defs.GetTaskDef(name) }
func (e *Engine) RemoveTaskDef(name string) error                 { return e.Defs.RemoveTaskDef(name) }

// ---- Execution API ----

// StartWorkflow accepts a StartRequest and returns the new instance's
// id once it has been persisted; evaluation proceeds asynchronously.
func (e *Engine) StartWorkflow(req *model.StartRequest) (string, error) {
	return e.Loop.Submit(req)
}

// BlockExecute starts req and blocks until the workflow completes or
// timeout elapses, returning its output map.
func (e *Engine) BlockExecute(req *model.StartRequest, timeout time.Duration) (map[string]value.Value, error) {
	w, err := e.Loop.BlockExecute(req, timeout)
	if err != nil {
		return nil, err
	}
	return w.Output, nil
}

// AsyncExecute starts req and returns a future delivering the
// completed workflow instance.
func (e *Engine) AsyncExecute(req *model.StartRequest) (string, <-chan *model.WorkflowInstance, error) {
	return e.Loop.AsyncExecute(req)
}

// GetExecutionStatus returns a workflow instance and, when
// includeTasks is set, every task instance belonging to it.
func (e *Engine) GetExecutionStatus(workflowID string, includeTasks bool) (*model.WorkflowInstance, []*model.TaskInstance, error) {
	w, err := e.Store.GetWorkflow(workflowID)
	if err != nil {
		return nil, nil, err
	}
	if !includeTasks {
		return w, nil, nil
	}
	return w, e.Store.TasksForWorkflow(workflowID), nil
}

func (e *Engine) TerminateWorkflow(workflowID, reason string) error { return e.Exec.Terminate(workflowID, reason) }
func (e *Engine) Pause(workflowID string) error                    { return e.Exec.Pause(workflowID) }
func (e *Engine) Resume(workflowID string) error                   { return e.Exec.Resume(workflowID) }
func (e *Engine) Retry(workflowID string) error                    { return e.Exec.Retry(workflowID) }
func (e *Engine) Restart(workflowID string) (string, error)        { return e.Exec.Restart(workflowID) }

// ---- Worker Protocol ----

const maxPollTimeout = 5 * time.Second

// Poll returns up to count tasks of taskType due for domain, capping
// timeout at the spec's 5 second ceiling.
func (e *Engine) Poll(taskType model.TaskType, workerID, domain string, count int, timeout time.Duration) ([]*model.TaskInstance, error) {
	if timeout > maxPollTimeout {
		timeout = maxPollTimeout
	}
	return e.Exec.Poll(taskType, domain, "", "", workerID, count, timeout)
}

// UpdateTask applies a worker's TaskResult.
func (e *Engine) UpdateTask(res *model.TaskResult) error { return e.Exec.UpdateTask(res) }

// ---- EventLoop callbacks ----

func (e *Engine) createInstance(req *model.StartRequest) (string, error) {
	if req.Name == "" && req.WorkflowDef == nil {
		return "", apierr.NewIllegalArgument("start request requires a name or an ad-hoc workflowDef", nil)
	}
	def, err := e.Defs.ResolveWorkflowDef(req.Name, req.Version, req.WorkflowDef)
	if err != nil {
		return "", err
	}
	name := req.Name
	if name == "" {
		name = def.Name
	}

	input := req.Input
	if input == nil {
		input = map[string]value.Value{}
	}
	input = resolve.MergeWorkflowInputTemplate(input, def)

	now := time.Now().UnixMilli()
	w := &model.WorkflowInstance{
		ID:                uuid.NewString(),
		CorrelationID:     req.CorrelationID,
		Priority:          req.Priority,
		DefinitionName:    name,
		DefinitionVersion: def.Version,
		Definition:        def,
		Input:             input,
		Output:            map[string]value.Value{},
		Variables:         map[string]value.Value{},
		TaskToDomain:      req.TaskToDomain,
		Status:            model.WorkflowRunning,
		CreateTime:        now,
		UpdateTime:        now,
	}
	if err := e.Store.CreateWorkflow(w); err != nil {
		return "", err
	}
	return w.ID, nil
}

func (e *Engine) evaluate(workflowID string) error { return e.Exec.Run(workflowID) }

func (e *Engine) statusOf(workflowID string) (*model.WorkflowInstance, error) { return e.Store.GetWorkflow(workflowID) }
