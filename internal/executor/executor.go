// Package executor implements the Executor (spec §4.10): the pipeline
// that turns a decider.Outcome into StateStore writes and PriorityQueue
// dispatches, drives the decide/apply loop to a fixed point, and
// exposes the Worker Protocol's poll/update_task entry points. Its
// bounded concurrency for in-process async system tasks is grounded on
// the teacher's internal/executor.executeLayerParallel semaphore +
// sync.WaitGroup fan-out, generalized from "run one DAG layer" to "run
// one batch of due async system tasks" per tegmine-core's
// system_task_worker.rs.
package executor

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sarlalian/conductorial/internal/apierr"
	"github.com/sarlalian/conductorial/internal/decider"
	"github.com/sarlalian/conductorial/internal/lock"
	"github.com/sarlalian/conductorial/internal/queue"
	"github.com/sarlalian/conductorial/internal/store"
	"github.com/sarlalian/conductorial/internal/systask"
	"github.com/sarlalian/conductorial/internal/telemetry"
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// AsyncSystemQueue holds the ids of async system tasks (currently only
// START_WORKFLOW) awaiting the background pool.
const AsyncSystemQueue = "_asyncSystemTasks"

const (
	lockTimeout = 2 * time.Second
	lockLease   = 10 * time.Second
)

// StartWorkflow launches a new child/failure workflow instance and
// returns its id. Wired by internal/api.Engine, which owns workflow
// definition lookup and input-template merging; the Executor only
// needs the callback so StartWorkflowTask and failure-workflow launch
// can recurse into it without an import cycle (internal/api depends on
// internal/executor, not the reverse).
type StartWorkflow func(req *model.StartRequest) (string, error)

// Executor wires the Decider to the StateStore and PriorityQueue.
type Executor struct {
	Store    *store.Store
	Queues   *queue.Queues
	Decider  *decider.Decider
	Systask  *systask.Registry
	Locker   lock.Locker
	Log      telemetry.Logger
	Starter  StartWorkflow
	MaxAsync int // bounded concurrency for the async system-task pool
}

func New(st *store.Store, q *queue.Queues, d *decider.Decider, sys *systask.Registry, locker lock.Locker, log telemetry.Logger) *Executor {
	if locker == nil {
		locker = lock.NoopLocker{}
	}
	return &Executor{Store: st, Queues: q, Decider: d, Systask: sys, Locker: locker, Log: log, MaxAsync: 10}
}

// Run decides and applies against workflowID until a pass makes no
// further synchronous progress — i.e. every remaining scheduled task
// either went to an external queue or is an async system task now
// sitting in AsyncSystemQueue waiting on the background pool.
func (e *Executor) Run(workflowID string) error {
	if !e.Locker.TryLock(workflowID, lockTimeout, lockLease) {
		return apierr.NewTransient("could not acquire workflow lock for "+workflowID, nil)
	}
	defer e.Locker.Unlock(workflowID)

	for {
		w, err := e.Store.GetWorkflow(workflowID)
		if err != nil {
			return err
		}
		tasks := e.Store.TasksForWorkflow(workflowID)

		out, err := e.Decider.Decide(w, tasks)
		if err != nil {
			return e.terminateFromError(w, err)
		}

		progressed, err := e.apply(w, out)
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

// terminateFromError handles a TerminateWorkflowError bubbling out of
// Decide: it is not a process failure, it is the decider's "end now"
// signal, so the Executor finalizes the workflow instead of
// propagating the error to its own caller.
func (e *Executor) terminateFromError(w *model.WorkflowInstance, err error) error {
	tw, ok := apierr.AsTerminate(err)
	if !ok {
		return err
	}
	tasks := e.Store.TasksForWorkflow(w.ID)
	w.Status = tw.Status
	w.ReasonForIncompletion = tw.Reason
	w.FailedTaskID = tw.TaskID
	w.EndTime = nowMillis()
	e.Decider.UpdateWorkflowOutput(w, tasks, nil)
	if uerr := e.Store.UpdateWorkflow(w); uerr != nil {
		return uerr
	}
	e.maybeStartFailureWorkflow(w)
	return nil
}

// apply persists outcome and dispatches every newly scheduled task. It
// reports whether any inline system task actually advanced the
// workflow's state, meaning the caller should decide again immediately
// rather than waiting on an external event.
//
// A complete outcome (a successful Terminate task, most commonly) skips
// TasksToSchedule entirely, matching workflow_executor.rs's decide():
// it calls end_execution and returns before ever reaching schedule_task
// when outcome.is_complete is set, so a structural successor the
// decider computed past the terminating task is discarded rather than
// created and dispatched.
func (e *Executor) apply(w *model.WorkflowInstance, out *decider.Outcome) (bool, error) {
	for _, t := range out.TasksToUpdate {
		e.Store.Touch(t)
	}

	progressed := false
	if !out.IsComplete {
		for _, t := range out.TasksToSchedule {
			// A task already carrying a Seq is one the decider re-surfaced
			// because it is still in-flight (Join/DoWhile awaiting another
			// inline pass) rather than a freshly mapped one — it is already
			// persisted, so only CreateTask brand-new instances.
			if t.Seq == 0 {
				if err := e.Store.CreateTask(t); err != nil {
					return false, err
				}
			} else {
				e.Store.Touch(t)
			}
			changed, err := e.dispatch(w, t)
			if err != nil {
				return false, err
			}
			if changed {
				progressed = true
			}
		}
	}

	if out.IsComplete && !w.Status.IsTerminal() {
		tasks := e.Store.TasksForWorkflow(w.ID)
		w.Status = model.WorkflowCompleted
		w.EndTime = nowMillis()
		e.Decider.UpdateWorkflowOutput(w, tasks, out.TerminateTask)
	}

	if err := e.Store.UpdateWorkflow(w); err != nil {
		return false, err
	}
	return progressed, nil
}

// dispatch sends a freshly scheduled task instance toward its system
// task executor (synchronous or async) or an external worker queue,
// per spec §4.10's inline-vs-queued split.
func (e *Executor) dispatch(w *model.WorkflowInstance, t *model.TaskInstance) (bool, error) {
	if t.Status.IsTerminal() {
		// Structural marker already resolved by its mapper (ForkJoinMapper's
		// synthetic fork task, e.g.) — nothing to start, queue, or execute.
		return false, nil
	}
	if !t.Type.IsSystemTask() {
		e.enqueueExternal(w, t)
		return false, nil
	}

	exec, ok := e.Systask.Get(t.Type)
	if !ok {
		return false, apierr.NewNonTransient("no system task executor registered for " + string(t.Type))
	}

	if exec.IsAsync() {
		e.Queues.Push(AsyncSystemQueue, t.ID, t.WorkflowPriority, 0)
		return false, nil
	}

	if err := exec.Start(w, t); err != nil {
		return false, err
	}
	siblings := e.Store.TasksForWorkflow(w.ID)
	changed, err := exec.Execute(w, t, siblings)
	if err != nil {
		return false, err
	}
	e.Store.Touch(t)
	return changed, nil
}

// enqueueExternal pushes t onto the queue an external worker polls,
// named per spec §4.5's "[domain:]type[@namespace][-isolationGroup]"
// scheme.
func (e *Executor) enqueueExternal(w *model.WorkflowInstance, t *model.TaskInstance) {
	name := queueName(domainFor(w, t.TaskDefName), t.Type, t.ExecutionNameSpace, t.IsolationGroupID)
	e.Queues.Push(name, t.ID, t.WorkflowPriority, int(t.CallbackAfterSeconds))
}

func domainFor(w *model.WorkflowInstance, taskDefName string) string {
	if w.TaskToDomain == nil {
		return ""
	}
	if d, ok := w.TaskToDomain[taskDefName]; ok {
		return d
	}
	if d, ok := w.TaskToDomain["*"]; ok {
		return d
	}
	return ""
}

func queueName(domain string, taskType model.TaskType, namespace, isolationGroup string) string {
	name := string(taskType)
	if namespace != "" {
		name += "@" + namespace
	}
	if isolationGroup != "" {
		name += "-" + isolationGroup
	}
	if domain != "" {
		name = domain + ":" + name
	}
	return name
}

// RunAsyncSystemTasks drains up to MaxAsync due entries from
// AsyncSystemQueue concurrently, each in its own goroutine gated by a
// semaphore — the teacher's executeLayerParallel shape, generalized
// from a DAG layer to a queue batch: a buffered channel caps
// concurrency, a sync.WaitGroup joins the batch, and the first error
// observed is returned after every goroutine finishes.
func (e *Executor) RunAsyncSystemTasks(pollTimeout time.Duration) error {
	ids := e.Queues.Pop(AsyncSystemQueue, e.MaxAsync, pollTimeout)
	if len(ids) == 0 {
		return nil
	}

	sem := make(chan struct{}, e.MaxAsync)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			if err := e.runAsyncSystemTask(id); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	return firstErr
}

func (e *Executor) runAsyncSystemTask(taskID string) error {
	t, err := e.Store.GetTask(taskID)
	if err != nil {
		return nil // stale id, already gone
	}
	if t.Status.IsTerminal() {
		return nil
	}
	exec, ok := e.Systask.Get(t.Type)
	if !ok {
		return apierr.NewNonTransient("no system task executor registered for " + string(t.Type))
	}
	w, err := e.Store.GetWorkflow(t.WorkflowInstanceID)
	if err != nil {
		return err
	}
	siblings := e.Store.TasksForWorkflow(w.ID)
	changed, err := exec.Execute(w, t, siblings)
	if err != nil {
		return err
	}
	if !changed {
		e.Queues.Push(AsyncSystemQueue, t.ID, t.WorkflowPriority, 1)
		return nil
	}
	e.Store.Touch(t)
	return e.Run(w.ID)
}

// Poll returns up to count task instances due on the external worker
// queue for (taskType, domain), marking each IN_PROGRESS for workerID.
func (e *Executor) Poll(taskType model.TaskType, domain, namespace, isolationGroup, workerID string, count int, wait time.Duration) ([]*model.TaskInstance, error) {
	name := queueName(domain, taskType, namespace, isolationGroup)
	ids := e.Queues.Pop(name, count, wait)
	out := make([]*model.TaskInstance, 0, len(ids))
	for _, id := range ids {
		t, err := e.Store.GetTask(id)
		if err != nil || t.Status.IsTerminal() {
			continue // stale entry, at-least-once delivery already consumed elsewhere
		}
		t.Status = model.TaskInProgress
		t.StartTime = nowMillis()
		t.WorkerID = workerID
		t.PollCount++
		if err := e.Store.UpdateTask(t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// UpdateTask applies an external worker's TaskResult (the Worker
// Protocol's update_task), per spec §6: rejects an already-terminal
// task as Conflict, postpones by CallbackAfterSeconds without
// re-deciding, and otherwise persists the result and triggers a
// re-decide of the owning workflow once the task reaches a terminal
// status.
func (e *Executor) UpdateTask(res *model.TaskResult) error {
	t, err := e.Store.GetTask(res.TaskID)
	if err != nil {
		return err
	}
	if t.Status.IsTerminal() {
		return apierr.NewConflict("task " + t.ID + " is already terminal")
	}

	if res.CallbackAfterSeconds > 0 && !res.Status.IsTerminal() {
		t.CallbackAfterSeconds = res.CallbackAfterSeconds
		t.UpdateTime = nowMillis()
		e.Store.Touch(t)
		w, werr := e.Store.GetWorkflow(t.WorkflowInstanceID)
		if werr != nil {
			return werr
		}
		name := queueName(domainFor(w, t.TaskDefName), t.Type, t.ExecutionNameSpace, t.IsolationGroupID)
		e.Queues.Postpone(name, t.ID, t.WorkflowPriority, int(res.CallbackAfterSeconds))
		return nil
	}

	t.Status = res.Status
	if res.OutputData != nil {
		t.Output = res.OutputData
	}
	t.ReasonForIncompletion = res.ReasonForIncompletion
	t.WorkerID = res.WorkerID
	t.UpdateTime = nowMillis()
	if t.Status.IsTerminal() {
		t.EndTime = t.UpdateTime
	}
	if err := e.Store.UpdateTask(t); err != nil {
		return err
	}

	if !t.Status.IsTerminal() {
		return nil
	}
	return e.Run(t.WorkflowInstanceID)
}

// maybeStartFailureWorkflow launches w.Definition.FailureWorkflow as a
// new workflow instance once w has failed, per spec §4.10. Errors are
// logged, not propagated: a failure workflow that cannot start must
// never mask the original termination.
func (e *Executor) maybeStartFailureWorkflow(w *model.WorkflowInstance) {
	if w.Status.IsSuccessful() || e.Starter == nil {
		return
	}
	if w.Definition == nil || w.Definition.FailureWorkflow == "" {
		return
	}

	input := make(map[string]value.Value, len(w.Input)+3)
	for k, v := range w.Input {
		input[k] = v
	}
	input["workflowId"] = value.String(w.ID)
	input["reason"] = value.String(w.ReasonForIncompletion)
	input["failureTaskId"] = value.String(w.FailedTaskID)

	req := &model.StartRequest{
		Name:          w.Definition.FailureWorkflow,
		CorrelationID: w.CorrelationID,
		Priority:      w.Priority,
		Input:         input,
	}
	if _, err := e.Starter(req); err != nil && e.Log != nil {
		e.Log.Error().Str("workflow_id", w.ID).Err(err).Msg("failure workflow launch failed")
	}
}

// Terminate marks workflowID and every non-terminal task of it
// Canceled, removing queue entries and invoking each in-flight system
// task's Cancel hook — spec §5 "workflow cancellation."
func (e *Executor) Terminate(workflowID, reason string) error {
	w, err := e.Store.GetWorkflow(workflowID)
	if err != nil {
		return err
	}
	if w.Status.IsTerminal() {
		return nil
	}
	for _, t := range e.Store.TasksForWorkflow(workflowID) {
		if t.Status.IsTerminal() {
			continue
		}
		t.Status = model.TaskCanceled
		t.EndTime = nowMillis()
		e.Store.Touch(t)
		if exec, ok := e.Systask.Get(t.Type); ok {
			_ = exec.Cancel(w, t)
			continue
		}
		name := queueName(domainFor(w, t.TaskDefName), t.Type, t.ExecutionNameSpace, t.IsolationGroupID)
		e.Queues.Remove(name, t.ID)
	}
	w.Status = model.WorkflowTerminated
	w.ReasonForIncompletion = reason
	w.EndTime = nowMillis()
	return e.Store.UpdateWorkflow(w)
}

// Pause moves a running workflow to PAUSED; the decider leaves a
// paused workflow untouched on every decide pass until Resume.
func (e *Executor) Pause(workflowID string) error {
	w, err := e.Store.GetWorkflow(workflowID)
	if err != nil {
		return err
	}
	if w.Status.IsTerminal() {
		return apierr.NewConflict("cannot pause a terminal workflow")
	}
	w.Status = model.WorkflowPaused
	return e.Store.UpdateWorkflow(w)
}

// Resume moves a paused workflow back to RUNNING and re-decides it
// immediately.
func (e *Executor) Resume(workflowID string) error {
	w, err := e.Store.GetWorkflow(workflowID)
	if err != nil {
		return err
	}
	if w.Status != model.WorkflowPaused {
		return apierr.NewConflict("workflow " + workflowID + " is not paused")
	}
	w.Status = model.WorkflowRunning
	if err := e.Store.UpdateWorkflow(w); err != nil {
		return err
	}
	return e.Run(workflowID)
}

// Retry schedules a fresh attempt of a failed/timed-out/terminated
// workflow's failed task and moves the workflow back to RUNNING — the
// Execution API's retry operation. Unlike the decider's internal
// per-task retry, this one is triggered externally after the workflow
// has already gone terminal.
func (e *Executor) Retry(workflowID string) error {
	w, err := e.Store.GetWorkflow(workflowID)
	if err != nil {
		return err
	}
	if !w.Status.IsTerminal() || w.Status.IsSuccessful() {
		return apierr.NewConflict("only a failed, timed-out, or terminated workflow can be retried")
	}
	tasks := e.Store.TasksForWorkflow(workflowID)
	var failed *model.TaskInstance
	for _, t := range tasks {
		if t.ID == w.FailedTaskID {
			failed = t
			break
		}
	}
	if failed == nil {
		return apierr.NewNotFound("task", w.FailedTaskID)
	}

	retryTask := &model.TaskInstance{
		ID:                 uuid.NewString(),
		WorkflowInstanceID: workflowID,
		ReferenceTaskName:  failed.ReferenceTaskName,
		TaskDefName:        failed.TaskDefName,
		Type:               failed.Type,
		Status:             model.TaskScheduled,
		RetryCount:         failed.RetryCount + 1,
		RetriedTaskID:      failed.ID,
		Input:              failed.Input,
		Output:             map[string]value.Value{},
		WorkflowPriority:   failed.WorkflowPriority,
	}
	failed.Retried = true
	e.Store.Touch(failed)
	if err := e.Store.CreateTask(retryTask); err != nil {
		return err
	}

	w.Status = model.WorkflowRunning
	w.ReasonForIncompletion = ""
	w.EndTime = 0
	if err := e.Store.UpdateWorkflow(w); err != nil {
		return err
	}
	if _, err := e.dispatch(w, retryTask); err != nil {
		return err
	}
	return e.Run(workflowID)
}

// Restart starts a brand-new instance of a terminal, restartable
// workflow using its original definition and input — the Execution
// API's restart operation. It returns the new instance's id; the
// original instance is left untouched.
func (e *Executor) Restart(workflowID string) (string, error) {
	w, err := e.Store.GetWorkflow(workflowID)
	if err != nil {
		return "", err
	}
	if !w.Status.IsTerminal() {
		return "", apierr.NewConflict("workflow " + workflowID + " is not terminal")
	}
	if w.Definition == nil || !w.Definition.Restartable {
		return "", apierr.NewIllegalArgument("workflow "+w.DefinitionName+" is not restartable", nil)
	}
	if e.Starter == nil {
		return "", apierr.NewNonTransient("no workflow starter wired")
	}
	req := &model.StartRequest{
		Name:          w.DefinitionName,
		Version:       w.DefinitionVersion,
		Input:         w.Input,
		CorrelationID: w.CorrelationID,
		TaskToDomain:  w.TaskToDomain,
		Priority:      w.Priority,
	}
	return e.Starter(req)
}

func nowMillis() int64 { return time.Now().UnixMilli() }
