// Package decider implements the Decider (spec §4.4 / §9): a pure
// function from a WorkflowInstance's current tasks to an Outcome
// (tasks to schedule, tasks to persist, completion/termination
// signals). It is a Go port of tegmine-core's DeciderService, adapted
// to operate on already-loaded slices of *model.TaskInstance rather
// than raw pointers into a DAO-backed task list.
package decider

import (
	"errors"
	"time"

	"github.com/sarlalian/conductorial/internal/apierr"
	"github.com/sarlalian/conductorial/internal/eval"
	"github.com/sarlalian/conductorial/internal/mapper"
	"github.com/sarlalian/conductorial/internal/resolve"
	"github.com/sarlalian/conductorial/pkg/model"
)

// Outcome is the result of one decide pass over a workflow.
type Outcome struct {
	TasksToSchedule []*model.TaskInstance
	TasksToUpdate   []*model.TaskInstance
	IsComplete      bool
	TerminateTask   *model.TaskInstance
}

// LookupTaskDef resolves a TaskDefinition by name; nil if unregistered.
type LookupTaskDef func(name string) *model.TaskDefinition

// Decider evaluates a workflow's current state against its definition.
type Decider struct {
	Mappers       *mapper.Registry
	Evaluators    *eval.Registry
	LookupTaskDef LookupTaskDef
	Now           func() int64 // overridable for tests; defaults to time.Now().UnixMilli
}

func New(mappers *mapper.Registry, evaluators *eval.Registry, lookup LookupTaskDef) *Decider {
	return &Decider{Mappers: mappers, Evaluators: evaluators, LookupTaskDef: lookup, Now: func() int64 { return time.Now().UnixMilli() }}
}

func (d *Decider) now() int64 {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UnixMilli()
}

// Decide runs one decision pass. tasks is every TaskInstance currently
// persisted for w, in seq order.
func (d *Decider) Decide(w *model.WorkflowInstance, tasks []*model.TaskInstance) (*Outcome, error) {
	var unprocessed []*model.TaskInstance
	for _, t := range tasks {
		if t.Status != model.TaskSkipped && t.Executed {
			unprocessed = append(unprocessed, t)
		}
	}

	// An expression-evaluator failure ends the workflow: it leaves
	// Decide as a TerminateWorkflowError with status FAILED.
	asTerminate := func(err error) error {
		var se *apierr.ScriptEvalFailedError
		if errors.As(err, &se) {
			return apierr.NewTerminateWorkflow(model.WorkflowFailed, "", se.Error())
		}
		return err
	}

	var preScheduled []*model.TaskInstance
	if len(unprocessed) == 0 {
		started, err := d.startWorkflow(w, tasks)
		if err != nil {
			return nil, asTerminate(err)
		}
		preScheduled = started
	}
	out, err := d.decide(w, tasks, preScheduled)
	return out, asTerminate(err)
}

func (d *Decider) decide(w *model.WorkflowInstance, tasks []*model.TaskInstance, preScheduled []*model.TaskInstance) (*Outcome, error) {
	out := &Outcome{}

	if w.Status.IsTerminal() {
		return out, nil
	}
	if err := d.checkWorkflowTimeout(w); err != nil {
		return nil, err
	}
	if w.Status == model.WorkflowPaused {
		return out, nil
	}

	var pending []*model.TaskInstance
	executedRefNames := map[string]bool{}
	hasSuccessfulTerminate := false

	for _, t := range tasks {
		if !t.Retried && t.Status != model.TaskSkipped && !t.Executed {
			pending = append(pending, t)
		}
		if t.Executed {
			executedRefNames[t.ReferenceTaskName] = true
		}
		if t.Type == model.TaskTypeTerminate && t.Status.IsTerminal() && t.Status.IsSuccessful() {
			hasSuccessfulTerminate = true
			out.TerminateTask = t
		}
	}

	scheduled := map[string]*model.TaskInstance{}
	for _, t := range preScheduled {
		scheduled[t.ReferenceTaskName] = t
	}

	for _, pendingTask := range pending {
		if pendingTask.Type.IsSystemTask() && !pendingTask.Status.IsTerminal() {
			// Still in-flight (Switch/Join/DoWhile awaiting its next
			// inline execution) — keep it scheduled for the executor to
			// re-invoke, nothing else to decide about it this pass.
			if pendingTask.Type == model.TaskTypeDoWhile {
				nextIteration, err := d.mapNextDoWhileIteration(w, tasks, pendingTask)
				if err != nil {
					return nil, err
				}
				for _, nt := range nextIteration {
					if _, ok := scheduled[nt.ReferenceTaskName]; !ok {
						scheduled[nt.ReferenceTaskName] = nt
					}
				}
			}
			if _, ok := scheduled[pendingTask.ReferenceTaskName]; !ok {
				scheduled[pendingTask.ReferenceTaskName] = pendingTask
			}
			delete(executedRefNames, pendingTask.ReferenceTaskName)
			continue
		}

		node := w.Definition.FindTask(pendingTask.ReferenceTaskName)
		var taskDef *model.TaskDefinition
		if d.LookupTaskDef != nil {
			taskDef = d.LookupTaskDef(pendingTask.TaskDefName)
		}
		if taskDef != nil {
			if err := d.checkTaskTimeout(taskDef, pendingTask); err != nil {
				return nil, err
			}
			if err := d.checkTaskPollTimeout(taskDef, pendingTask); err != nil {
				return nil, err
			}
			if d.isResponseTimeout(taskDef, pendingTask) {
				d.timeoutTask(taskDef, pendingTask)
			}
		}

		if pendingTask.Status.IsTerminal() && !pendingTask.Status.IsSuccessful() {
			retryTask, err := d.retry(taskDef, node, pendingTask, w, tasks)
			if err != nil {
				return nil, err
			}
			if retryTask != nil {
				delete(executedRefNames, retryTask.ReferenceTaskName)
				scheduled[retryTask.ReferenceTaskName] = retryTask
				out.TasksToUpdate = append(out.TasksToUpdate, pendingTask)
			} else {
				pendingTask.Status = model.TaskCompletedWithErrors
			}
		}

		if !pendingTask.Executed && !pendingTask.Retried && pendingTask.Status.IsTerminal() {
			pendingTask.Executed = true
			nextTasks, err := d.getNextTask(w, tasks, pendingTask)
			if err != nil {
				return nil, err
			}
			if pendingTask.Iteration > 0 && pendingTask.Type != model.TaskTypeDoWhile && len(nextTasks) > 0 {
				nextTasks = filterNextLoopOverTasks(nextTasks, pendingTask, tasks)
			}
			for _, next := range nextTasks {
				if _, ok := scheduled[next.ReferenceTaskName]; !ok {
					scheduled[next.ReferenceTaskName] = next
				}
			}
			out.TasksToUpdate = append(out.TasksToUpdate, pendingTask)
		}
	}

	for _, t := range scheduled {
		if !executedRefNames[t.ReferenceTaskName] {
			out.TasksToSchedule = append(out.TasksToSchedule, t)
		}
	}

	if hasSuccessfulTerminate {
		out.IsComplete = true
	} else if len(out.TasksToSchedule) == 0 {
		complete, err := d.checkForWorkflowCompletion(w, tasks)
		if err != nil {
			return nil, err
		}
		out.IsComplete = complete
	}
	return out, nil
}

// mapNextDoWhileIteration maps loopTask's current iteration's body
// head once that iteration's predecessor has advanced t.Iteration and
// no task instance for it exists yet. The DoWhile SystemTask only
// increments Iteration and re-evaluates loopCondition — it has no
// mapper access — so the decider performs the actual mapping here on
// the next pass while the DoWhile task is still in-flight.
func (d *Decider) mapNextDoWhileIteration(w *model.WorkflowInstance, tasks []*model.TaskInstance, loopTask *model.TaskInstance) ([]*model.TaskInstance, error) {
	if w.Definition == nil || loopTask.Iteration <= 0 {
		return nil, nil
	}
	node := w.Definition.FindTask(loopTask.ReferenceTaskName)
	if node == nil || node.Type != model.TaskTypeDoWhile || len(node.LoopOver) == 0 {
		return nil, nil
	}
	firstRef := mapper.NextIterationRefName(node.LoopOver[0].TaskReferenceName, loopTask.Iteration)
	for _, t := range tasks {
		if t.ReferenceTaskName == firstRef {
			return nil, nil
		}
	}
	m, ok := d.Mappers.Get(node.Type)
	if !ok {
		return nil, nil
	}
	iterMapper, ok := m.(mapper.IterationMapper)
	if !ok {
		return nil, nil
	}

	resolveCtx := resolve.BuildContext(w, tasks)
	input := resolve.Resolve(node.InputParameters, resolveCtx, "")
	var taskDef *model.TaskDefinition
	if d.LookupTaskDef != nil {
		taskDef = d.LookupTaskDef(node.Name)
	}
	input = resolve.ApplyInputTemplateDefaults(input, taskDef)

	return iterMapper.MapIteration(&mapper.Context{
		Workflow:      w,
		Node:          node,
		TaskDef:       taskDef,
		ResolvedInput: input,
		Evaluators:    d.Evaluators,
		LookupTaskDef: d.LookupTaskDef,
		Registry:      d.Mappers,
	}, loopTask.Iteration)
}

// filterNextLoopOverTasks suffixes a DoWhile body's successor tasks
// with the owning loop's current iteration, dropping any already
// in-flight or terminal in the workflow — spec §4.9.4.e.
func filterNextLoopOverTasks(next []*model.TaskInstance, pendingTask *model.TaskInstance, tasks []*model.TaskInstance) []*model.TaskInstance {
	inWorkflow := map[string]bool{}
	for _, t := range tasks {
		if t.Status == model.TaskInProgress || t.Status.IsTerminal() {
			inWorkflow[t.ReferenceTaskName] = true
		}
	}
	var out []*model.TaskInstance
	for _, t := range next {
		t.ReferenceTaskName = mapper.NextIterationRefName(t.ReferenceTaskName, pendingTask.Iteration)
		t.Iteration = pendingTask.Iteration
		if !inWorkflow[t.ReferenceTaskName] {
			out = append(out, t)
		}
	}
	return out
}

// startWorkflow maps the workflow definition's first non-skipped task.
func (d *Decider) startWorkflow(w *model.WorkflowInstance, tasks []*model.TaskInstance) ([]*model.TaskInstance, error) {
	if w.Definition == nil || len(w.Definition.Tasks) == 0 {
		return nil, apierr.NewTerminateWorkflow(model.WorkflowCompleted, "", "no tasks found to be executed")
	}
	node := firstNonSkipped(w.Definition.Tasks[0], w, tasks)
	if node == nil {
		return nil, apierr.NewTerminateWorkflow(model.WorkflowCompleted, "", "no tasks found to be executed")
	}
	return d.getTasksToBeScheduled(w, tasks, node, 0, "")
}

func firstNonSkipped(node *model.TaskNode, w *model.WorkflowInstance, tasks []*model.TaskInstance) *model.TaskNode {
	for node != nil && isTaskSkipped(node, tasks) {
		node = w.Definition.GetNextTask(node.TaskReferenceName)
	}
	return node
}

func isTaskSkipped(node *model.TaskNode, tasks []*model.TaskInstance) bool {
	if node == nil {
		return false
	}
	for _, t := range tasks {
		if t.ReferenceTaskName == node.TaskReferenceName {
			return t.Status == model.TaskSkipped
		}
	}
	return false
}

// getNextTask finds the node following the just-completed task and maps
// it, matching get_next_task's Switch-with-children and DoWhile-already-
// present short circuits.
func (d *Decider) getNextTask(w *model.WorkflowInstance, tasks []*model.TaskInstance, t *model.TaskInstance) ([]*model.TaskInstance, error) {
	if t.Type.IsSystemTask() && (t.Type == model.TaskTypeSwitch) {
		if _, ok := t.Input["hasChildren"]; ok {
			return nil, nil
		}
	}

	refName := t.ReferenceTaskName
	if t.Iteration > 0 {
		refName = stripIterationSuffixLocal(refName, t.Iteration)
	}
	node := firstNonSkipped(w.Definition.GetNextTask(refName), w, tasks)
	if node == nil {
		return nil, nil
	}
	if node.Type == model.TaskTypeDoWhile {
		for _, existing := range tasks {
			if existing.ReferenceTaskName == node.TaskReferenceName {
				return nil, nil
			}
		}
	}
	return d.getTasksToBeScheduled(w, tasks, node, 0, "")
}

func (d *Decider) getTasksToBeScheduled(w *model.WorkflowInstance, tasks []*model.TaskInstance, node *model.TaskNode, retryCount int, retriedTaskID string) ([]*model.TaskInstance, error) {
	ctx := resolve.BuildContext(w, tasks)
	input := resolve.Resolve(node.InputParameters, ctx, "")

	var taskDef *model.TaskDefinition
	if d.LookupTaskDef != nil {
		taskDef = d.LookupTaskDef(node.Name)
	}
	input = resolve.ApplyInputTemplateDefaults(input, taskDef)

	inWorkflow := map[string]bool{}
	for _, t := range tasks {
		if t.Status == model.TaskInProgress || t.Status.IsTerminal() {
			inWorkflow[t.ReferenceTaskName] = true
		}
	}

	m, ok := d.Mappers.Get(node.Type)
	if !ok {
		return nil, apierr.NewNonTransient("no task mapper registered for " + string(node.Type))
	}
	mapped, err := m.GetMappedTasks(&mapper.Context{
		Workflow:      w,
		Node:          node,
		TaskDef:       taskDef,
		ResolvedInput: input,
		RetryCount:    retryCount,
		RetriedTaskID: retriedTaskID,
		Evaluators:    d.Evaluators,
		LookupTaskDef: d.LookupTaskDef,
		Registry:      d.Mappers,
	})
	if err != nil {
		return nil, err
	}

	out := mapped[:0]
	for _, t := range mapped {
		if !inWorkflow[t.ReferenceTaskName] {
			out = append(out, t)
		}
	}
	return out, nil
}

func stripIterationSuffixLocal(refName string, iteration int) string {
	suffix := "__" + itoa(iteration)
	if len(refName) > len(suffix) && refName[len(refName)-len(suffix):] == suffix {
		return refName[:len(refName)-len(suffix)]
	}
	return refName
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// checkForWorkflowCompletion reports whether every top-level task node
// has a terminal, successful counterpart among tasks, matching
// check_for_workflow_completion's use of workflow_definition.tasks (the
// top-level list only — an untaken Switch branch or unreached DoWhile
// iteration is never required to appear).
func (d *Decider) checkForWorkflowCompletion(w *model.WorkflowInstance, tasks []*model.TaskInstance) (bool, error) {
	if len(tasks) == 0 {
		return false, nil
	}
	statusByRef := map[string]model.TaskStatus{}
	var nonExecuted []*model.TaskInstance
	for _, t := range tasks {
		statusByRef[t.ReferenceTaskName] = t.Status
		if !t.Status.IsTerminal() {
			return false, nil
		}
		if t.Type == model.TaskTypeTerminate && t.Status.IsTerminal() && t.Status.IsSuccessful() {
			return true, nil
		}
		if !t.Retried || !t.Executed {
			nonExecuted = append(nonExecuted, t)
		}
	}
	if w.Definition == nil {
		return false, nil
	}
	for _, node := range w.Definition.Tasks {
		status, ok := statusByRef[node.TaskReferenceName]
		if !ok {
			return false, nil
		}
		if !status.IsTerminal() || !status.IsSuccessful() {
			return false, nil
		}
	}
	for _, t := range nonExecuted {
		next := firstNonSkipped(w.Definition.GetNextTask(t.ReferenceTaskName), w, tasks)
		if next != nil {
			if _, ok := statusByRef[next.TaskReferenceName]; !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

// UpdateWorkflowOutput copies the terminate task's output, or the
// workflow's outputParameters projection, or the last task's output,
// into w.Output — spec §4.4's completion step.
func (d *Decider) UpdateWorkflowOutput(w *model.WorkflowInstance, tasks []*model.TaskInstance, lastTask *model.TaskInstance) {
	if len(tasks) == 0 {
		return
	}
	for _, t := range tasks {
		if t.Type == model.TaskTypeTerminate && t.Status.IsTerminal() && t.Status.IsSuccessful() {
			if len(t.Output) > 0 {
				w.Output = t.Output
				return
			}
		}
	}
	last := lastTask
	if last == nil {
		last = tasks[len(tasks)-1]
	}
	if w.Definition != nil && len(w.Definition.OutputParameters) > 0 {
		ctx := resolve.BuildContext(w, tasks)
		w.Output = resolve.Resolve(w.Definition.OutputParameters, ctx, "")
		return
	}
	w.Output = last.Output
}
