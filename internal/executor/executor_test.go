package executor

import (
	"testing"
	"time"

	"github.com/sarlalian/conductorial/internal/decider"
	"github.com/sarlalian/conductorial/internal/eval"
	"github.com/sarlalian/conductorial/internal/mapper"
	"github.com/sarlalian/conductorial/internal/queue"
	"github.com/sarlalian/conductorial/internal/store"
	"github.com/sarlalian/conductorial/internal/systask"
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

func newTestExecutor(lookup decider.LookupTaskDef) (*Executor, *store.Store, *queue.Queues) {
	st := store.New()
	q := queue.New()
	evaluators := eval.NewRegistry()
	sysReg := systask.NewRegistry(evaluators)
	dec := decider.New(mapper.NewRegistry(), evaluators, lookup)
	return New(st, q, dec, sysReg, nil, nil), st, q
}

func linearDef() *model.WorkflowDefinition {
	return &model.WorkflowDefinition{
		Name:    "linear",
		Version: 1,
		Tasks: []*model.TaskNode{
			{Name: "step_one", TaskReferenceName: "step_one", Type: model.TaskTypeSimple},
			{Name: "step_two", TaskReferenceName: "step_two", Type: model.TaskTypeSimple},
		},
	}
}

func TestRunSchedulesFirstTaskOntoExternalQueue(t *testing.T) {
	exec, st, q := newTestExecutor(func(string) *model.TaskDefinition { return nil })
	w := &model.WorkflowInstance{
		ID: "wf-1", DefinitionName: "linear", Definition: linearDef(), Status: model.WorkflowRunning,
		Input: map[string]value.Value{}, Output: map[string]value.Value{}, Variables: map[string]value.Value{},
	}
	if err := st.CreateWorkflow(w); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}

	if err := exec.Run(w.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := q.Len(queueName("", model.TaskTypeSimple, "", "")); got != 1 {
		t.Fatalf("expected 1 task queued for external dispatch, got %d", got)
	}
	tasks := st.TasksForWorkflow(w.ID)
	if len(tasks) != 1 || tasks[0].ReferenceTaskName != "step_one" {
		t.Fatalf("expected step_one scheduled, got %+v", tasks)
	}
}

func TestUpdateTaskAdvancesAndCompletesWorkflow(t *testing.T) {
	exec, st, _ := newTestExecutor(func(string) *model.TaskDefinition { return nil })
	w := &model.WorkflowInstance{
		ID: "wf-1", DefinitionName: "linear", Definition: linearDef(), Status: model.WorkflowRunning,
		Input: map[string]value.Value{}, Output: map[string]value.Value{}, Variables: map[string]value.Value{},
	}
	if err := st.CreateWorkflow(w); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if err := exec.Run(w.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stepOne := st.TasksForWorkflow(w.ID)[0]
	if err := exec.UpdateTask(&model.TaskResult{TaskID: stepOne.ID, Status: model.TaskCompleted}); err != nil {
		t.Fatalf("UpdateTask step_one: %v", err)
	}

	tasks := st.TasksForWorkflow(w.ID)
	if len(tasks) != 2 || tasks[1].ReferenceTaskName != "step_two" {
		t.Fatalf("expected step_two scheduled after step_one completion, got %+v", tasks)
	}

	stepTwo := tasks[1]
	if err := exec.UpdateTask(&model.TaskResult{TaskID: stepTwo.ID, Status: model.TaskCompleted}); err != nil {
		t.Fatalf("UpdateTask step_two: %v", err)
	}

	got, err := st.GetWorkflow(w.ID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if got.Status != model.WorkflowCompleted {
		t.Fatalf("expected workflow completed, got %s", got.Status)
	}
}

func TestUpdateTaskRejectsAlreadyTerminalTask(t *testing.T) {
	exec, st, _ := newTestExecutor(func(string) *model.TaskDefinition { return nil })
	w := &model.WorkflowInstance{
		ID: "wf-1", DefinitionName: "linear", Definition: linearDef(), Status: model.WorkflowRunning,
		Input: map[string]value.Value{}, Output: map[string]value.Value{}, Variables: map[string]value.Value{},
	}
	_ = st.CreateWorkflow(w)
	_ = exec.Run(w.ID)
	stepOne := st.TasksForWorkflow(w.ID)[0]

	if err := exec.UpdateTask(&model.TaskResult{TaskID: stepOne.ID, Status: model.TaskCompleted}); err != nil {
		t.Fatalf("first UpdateTask: %v", err)
	}
	if err := exec.UpdateTask(&model.TaskResult{TaskID: stepOne.ID, Status: model.TaskCompleted}); err == nil {
		t.Fatalf("expected Conflict re-applying a terminal task result")
	}
}

func TestTerminateCancelsInFlightTasksAndWorkflow(t *testing.T) {
	exec, st, q := newTestExecutor(func(string) *model.TaskDefinition { return nil })
	w := &model.WorkflowInstance{
		ID: "wf-1", DefinitionName: "linear", Definition: linearDef(), Status: model.WorkflowRunning,
		Input: map[string]value.Value{}, Output: map[string]value.Value{}, Variables: map[string]value.Value{},
	}
	_ = st.CreateWorkflow(w)
	_ = exec.Run(w.ID)

	if err := exec.Terminate(w.ID, "operator requested"); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	got, _ := st.GetWorkflow(w.ID)
	if got.Status != model.WorkflowTerminated {
		t.Fatalf("expected TERMINATED, got %s", got.Status)
	}
	stepOne := st.TasksForWorkflow(w.ID)[0]
	if stepOne.Status != model.TaskCanceled {
		t.Fatalf("expected step_one canceled, got %s", stepOne.Status)
	}
	if got := q.Len(queueName("", model.TaskTypeSimple, "", "")); got != 0 {
		t.Fatalf("expected canceled task removed from its queue, got %d entries", got)
	}
}

func TestPauseRejectsFurtherProgressUntilResume(t *testing.T) {
	exec, st, _ := newTestExecutor(func(string) *model.TaskDefinition { return nil })
	w := &model.WorkflowInstance{
		ID: "wf-1", DefinitionName: "linear", Definition: linearDef(), Status: model.WorkflowRunning,
		Input: map[string]value.Value{}, Output: map[string]value.Value{}, Variables: map[string]value.Value{},
	}
	_ = st.CreateWorkflow(w)
	_ = exec.Run(w.ID)

	if err := exec.Pause(w.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	got, _ := st.GetWorkflow(w.ID)
	if got.Status != model.WorkflowPaused {
		t.Fatalf("expected PAUSED, got %s", got.Status)
	}

	if err := exec.Resume(w.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	got, _ = st.GetWorkflow(w.ID)
	if got.Status != model.WorkflowRunning {
		t.Fatalf("expected RUNNING after resume, got %s", got.Status)
	}
}

func TestRetryReschedulesFailedTask(t *testing.T) {
	lookup := func(string) *model.TaskDefinition {
		return &model.TaskDefinition{RetryCount: 0, RetryLogic: model.RetryFixed, RetryDelaySeconds: 1}
	}
	exec, st, _ := newTestExecutor(lookup)
	w := &model.WorkflowInstance{
		ID: "wf-1", DefinitionName: "linear", Definition: linearDef(), Status: model.WorkflowRunning,
		Input: map[string]value.Value{}, Output: map[string]value.Value{}, Variables: map[string]value.Value{},
	}
	_ = st.CreateWorkflow(w)
	_ = exec.Run(w.ID)
	stepOne := st.TasksForWorkflow(w.ID)[0]

	if err := exec.UpdateTask(&model.TaskResult{TaskID: stepOne.ID, Status: model.TaskFailed, ReasonForIncompletion: "boom"}); err != nil {
		t.Fatalf("UpdateTask failing step_one: %v", err)
	}
	got, _ := st.GetWorkflow(w.ID)
	if got.Status != model.WorkflowFailed {
		t.Fatalf("expected workflow FAILED after exhausted retries, got %s", got.Status)
	}

	if err := exec.Retry(w.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	got, _ = st.GetWorkflow(w.ID)
	if got.Status != model.WorkflowRunning {
		t.Fatalf("expected RUNNING after retry, got %s", got.Status)
	}
	tasks := st.TasksForWorkflow(w.ID)
	if len(tasks) != 2 || tasks[1].RetryCount != 1 {
		t.Fatalf("expected a second attempt of step_one scheduled, got %+v", tasks)
	}
}

// switchDef routes to branch_a or branch_b based on workflow input
// "branch", falling back to a default branch — spec §8 "Switch routing".
func switchDef() *model.WorkflowDefinition {
	return &model.WorkflowDefinition{
		Name:    "switcher",
		Version: 1,
		Tasks: []*model.TaskNode{
			{
				Name: "route", TaskReferenceName: "route", Type: model.TaskTypeSwitch,
				InputParameters: map[string]value.Value{"branch": value.String("${workflow.input.branch}")},
				Expression:      "branch",
				DecisionCases: map[string][]*model.TaskNode{
					"a": {{Name: "branch_a", TaskReferenceName: "branch_a", Type: model.TaskTypeSimple}},
					"b": {{Name: "branch_b", TaskReferenceName: "branch_b", Type: model.TaskTypeSimple}},
				},
				DefaultCase: []*model.TaskNode{{Name: "branch_default", TaskReferenceName: "branch_default", Type: model.TaskTypeSimple}},
			},
		},
	}
}

func TestSwitchRoutesToMatchingCaseAndCompletes(t *testing.T) {
	exec, st, q := newTestExecutor(func(string) *model.TaskDefinition { return nil })
	w := &model.WorkflowInstance{
		ID: "wf-switch", DefinitionName: "switcher", Definition: switchDef(), Status: model.WorkflowRunning,
		Input:     map[string]value.Value{"branch": value.String("b")},
		Output:    map[string]value.Value{},
		Variables: map[string]value.Value{},
	}
	if err := st.CreateWorkflow(w); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if err := exec.Run(w.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tasks := st.TasksForWorkflow(w.ID)
	if len(tasks) != 2 {
		t.Fatalf("expected switch marker + matching branch task, got %+v", tasks)
	}
	byRef := map[string]*model.TaskInstance{}
	for _, tk := range tasks {
		byRef[tk.ReferenceTaskName] = tk
	}
	route, ok := byRef["route"]
	if !ok || route.Type != model.TaskTypeSwitch || route.Status != model.TaskCompleted {
		t.Fatalf("expected route switch task completed inline, got %+v", byRef["route"])
	}
	branch, ok := byRef["branch_b"]
	if !ok {
		t.Fatalf("expected branch_b scheduled for case %q, got %+v", "b", tasks)
	}
	if got := q.Len(queueName("", model.TaskTypeSimple, "", "")); got != 1 {
		t.Fatalf("expected 1 task queued for external dispatch, got %d", got)
	}

	if err := exec.UpdateTask(&model.TaskResult{TaskID: branch.ID, Status: model.TaskCompleted}); err != nil {
		t.Fatalf("UpdateTask branch_b: %v", err)
	}
	got, err := st.GetWorkflow(w.ID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if got.Status != model.WorkflowCompleted {
		t.Fatalf("expected workflow completed once the untaken cases stay unscheduled, got %s", got.Status)
	}
}

// terminateDef ends the workflow outright from its only task, never
// reaching the task that would otherwise follow it — spec §8 "Terminate".
func terminateDef() *model.WorkflowDefinition {
	return &model.WorkflowDefinition{
		Name:    "terminator",
		Version: 1,
		Tasks: []*model.TaskNode{
			{
				Name: "stop", TaskReferenceName: "stop", Type: model.TaskTypeTerminate,
				TerminationStatus: "COMPLETED",
				TerminationReason: "short-circuit",
				WorkflowOutput:    map[string]value.Value{"result": value.String("ok")},
			},
			{Name: "unreachable", TaskReferenceName: "unreachable", Type: model.TaskTypeSimple},
		},
	}
}

func TestTerminateTaskEndsWorkflowWithoutReachingSuccessor(t *testing.T) {
	exec, st, q := newTestExecutor(func(string) *model.TaskDefinition { return nil })
	w := &model.WorkflowInstance{
		ID: "wf-terminate", DefinitionName: "terminator", Definition: terminateDef(), Status: model.WorkflowRunning,
		Input: map[string]value.Value{}, Output: map[string]value.Value{}, Variables: map[string]value.Value{},
	}
	if err := st.CreateWorkflow(w); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if err := exec.Run(w.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tasks := st.TasksForWorkflow(w.ID)
	if len(tasks) != 1 || tasks[0].ReferenceTaskName != "stop" {
		t.Fatalf("expected only the terminate task instantiated, got %+v", tasks)
	}
	if tasks[0].Status != model.TaskCompleted {
		t.Fatalf("expected terminate task completed, got %s", tasks[0].Status)
	}
	got, err := st.GetWorkflow(w.ID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if got.Status != model.WorkflowCompleted {
		t.Fatalf("expected workflow completed by the terminate task, got %s", got.Status)
	}
	if out, ok := got.Output["result"]; !ok || out.String() != "ok" {
		t.Fatalf("expected workflowOutput propagated, got %+v", got.Output)
	}
	if got := q.Len(queueName("", model.TaskTypeSimple, "", "")); got != 0 {
		t.Fatalf("expected the unreachable task never queued, got %d entries", got)
	}
}

func TestExponentialBackoffRetryDelayDoublesUntilExhausted(t *testing.T) {
	lookup := func(string) *model.TaskDefinition {
		return &model.TaskDefinition{RetryCount: 2, RetryLogic: model.RetryExponentialBackoff, RetryDelaySeconds: 1}
	}
	exec, st, _ := newTestExecutor(lookup)
	w := &model.WorkflowInstance{
		ID: "wf-backoff", DefinitionName: "linear", Definition: linearDef(), Status: model.WorkflowRunning,
		Input: map[string]value.Value{}, Output: map[string]value.Value{}, Variables: map[string]value.Value{},
	}
	if err := st.CreateWorkflow(w); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if err := exec.Run(w.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	attempt := st.TasksForWorkflow(w.ID)[0]
	if err := exec.UpdateTask(&model.TaskResult{TaskID: attempt.ID, Status: model.TaskFailed, ReasonForIncompletion: "boom"}); err != nil {
		t.Fatalf("UpdateTask failing attempt 1: %v", err)
	}
	tasks := st.TasksForWorkflow(w.ID)
	if len(tasks) != 2 || tasks[1].RetryCount != 1 || tasks[1].CallbackAfterSeconds != 1 {
		t.Fatalf("expected a retry with a 1s backoff, got %+v", tasks)
	}

	attempt = tasks[1]
	if err := exec.UpdateTask(&model.TaskResult{TaskID: attempt.ID, Status: model.TaskFailed, ReasonForIncompletion: "boom"}); err != nil {
		t.Fatalf("UpdateTask failing attempt 2: %v", err)
	}
	tasks = st.TasksForWorkflow(w.ID)
	if len(tasks) != 3 || tasks[2].RetryCount != 2 || tasks[2].CallbackAfterSeconds != 2 {
		t.Fatalf("expected a second retry with a 2s backoff, got %+v", tasks)
	}

	attempt = tasks[2]
	if err := exec.UpdateTask(&model.TaskResult{TaskID: attempt.ID, Status: model.TaskFailed, ReasonForIncompletion: "boom"}); err != nil {
		t.Fatalf("UpdateTask failing attempt 3: %v", err)
	}
	got, err := st.GetWorkflow(w.ID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if got.Status != model.WorkflowFailed {
		t.Fatalf("expected workflow failed once retryCount %d is exhausted, got %s", 2, got.Status)
	}
}

// doWhileDef loops a single body task twice, counting iterations via
// loopCondition's reference to the marker's own iteration — spec §8
// "DoWhile".
func doWhileDef() *model.WorkflowDefinition {
	return &model.WorkflowDefinition{
		Name:    "looper",
		Version: 1,
		Tasks: []*model.TaskNode{
			{
				Name: "loop", TaskReferenceName: "loop", Type: model.TaskTypeDoWhile,
				LoopCondition: "$.iteration < 2",
				LoopOver: []*model.TaskNode{
					{Name: "body", TaskReferenceName: "body", Type: model.TaskTypeSimple},
				},
			},
		},
	}
}

func TestDoWhileMapsEachIterationAndCompletes(t *testing.T) {
	exec, st, _ := newTestExecutor(func(string) *model.TaskDefinition { return nil })
	w := &model.WorkflowInstance{
		ID: "wf-dowhile", DefinitionName: "looper", Definition: doWhileDef(), Status: model.WorkflowRunning,
		Input: map[string]value.Value{}, Output: map[string]value.Value{}, Variables: map[string]value.Value{},
	}
	if err := st.CreateWorkflow(w); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if err := exec.Run(w.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tasks := st.TasksForWorkflow(w.ID)
	byRef := func(ts []*model.TaskInstance) map[string]*model.TaskInstance {
		m := make(map[string]*model.TaskInstance, len(ts))
		for _, tk := range ts {
			m[tk.ReferenceTaskName] = tk
		}
		return m
	}
	refs := byRef(tasks)
	body1, ok := refs["body__1"]
	if len(tasks) != 2 || !ok {
		t.Fatalf("expected the loop marker plus body__1 mapped for iteration 1, got %+v", tasks)
	}
	if err := exec.UpdateTask(&model.TaskResult{TaskID: body1.ID, Status: model.TaskCompleted,
		OutputData: map[string]value.Value{}}); err != nil {
		t.Fatalf("UpdateTask body__1: %v", err)
	}

	tasks = st.TasksForWorkflow(w.ID)
	refs = byRef(tasks)
	body2, ok := refs["body__2"]
	if len(tasks) != 3 || !ok {
		t.Fatalf("expected body__2 mapped once the DoWhile task advanced to iteration 2, got %+v", tasks)
	}
	if err := exec.UpdateTask(&model.TaskResult{TaskID: body2.ID, Status: model.TaskCompleted,
		OutputData: map[string]value.Value{}}); err != nil {
		t.Fatalf("UpdateTask body__2: %v", err)
	}

	got, err := st.GetWorkflow(w.ID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if got.Status != model.WorkflowCompleted {
		t.Fatalf("expected workflow completed once loopCondition goes false, got %s", got.Status)
	}
	tasks = st.TasksForWorkflow(w.ID)
	if len(tasks) != 3 {
		t.Fatalf("expected no body__3 mapped after the loop exits, got %+v", tasks)
	}
}

// forkJoinDef forks into two single-task branches and joins on both —
// spec §8 "ForkJoin+Join".
func forkJoinDef() *model.WorkflowDefinition {
	return &model.WorkflowDefinition{
		Name:    "forker",
		Version: 1,
		Tasks: []*model.TaskNode{
			{
				Name: "split", TaskReferenceName: "split", Type: model.TaskTypeForkJoin,
				ForkTasks: [][]*model.TaskNode{
					{{Name: "left", TaskReferenceName: "left", Type: model.TaskTypeSimple}},
					{{Name: "right", TaskReferenceName: "right", Type: model.TaskTypeSimple}},
				},
				JoinOn: []string{"left", "right"},
			},
		},
	}
}

func TestForkJoinRunsBranchesAndJoinWaitsForBoth(t *testing.T) {
	exec, st, q := newTestExecutor(func(string) *model.TaskDefinition { return nil })
	w := &model.WorkflowInstance{
		ID: "wf-forkjoin", DefinitionName: "forker", Definition: forkJoinDef(), Status: model.WorkflowRunning,
		Input: map[string]value.Value{}, Output: map[string]value.Value{}, Variables: map[string]value.Value{},
	}
	if err := st.CreateWorkflow(w); err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if err := exec.Run(w.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tasks := st.TasksForWorkflow(w.ID)
	if len(tasks) != 4 {
		t.Fatalf("expected fork marker, left, right, and an in-progress join, got %+v", tasks)
	}
	byRef := map[string]*model.TaskInstance{}
	for _, t := range tasks {
		byRef[t.ReferenceTaskName] = t
	}
	join, ok := byRef["split_join"]
	if !ok || join.Type != model.TaskTypeJoin || join.Status != model.TaskInProgress {
		t.Fatalf("expected split_join scheduled and still in progress, got %+v", byRef["split_join"])
	}
	if got := q.Len(queueName("", model.TaskTypeSimple, "", "")); got != 2 {
		t.Fatalf("expected both branch tasks queued for external dispatch, got %d", got)
	}

	left := byRef["left"]
	if err := exec.UpdateTask(&model.TaskResult{TaskID: left.ID, Status: model.TaskCompleted}); err != nil {
		t.Fatalf("UpdateTask left: %v", err)
	}
	join, err := st.GetTask(join.ID)
	if err != nil {
		t.Fatalf("GetTask join: %v", err)
	}
	if join.Status != model.TaskInProgress {
		t.Fatalf("expected split_join still waiting on right, got %s", join.Status)
	}

	right := byRef["right"]
	if err := exec.UpdateTask(&model.TaskResult{TaskID: right.ID, Status: model.TaskCompleted}); err != nil {
		t.Fatalf("UpdateTask right: %v", err)
	}
	got, err := st.GetWorkflow(w.ID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if got.Status != model.WorkflowCompleted {
		t.Fatalf("expected workflow completed once both branches joined, got %s", got.Status)
	}
	join, err = st.GetTask(join.ID)
	if err != nil {
		t.Fatalf("GetTask join: %v", err)
	}
	if join.Status != model.TaskCompleted {
		t.Fatalf("expected split_join completed, got %s", join.Status)
	}
}

func TestPollMarksTasksInProgressForWorker(t *testing.T) {
	exec, st, _ := newTestExecutor(func(string) *model.TaskDefinition { return nil })
	w := &model.WorkflowInstance{
		ID: "wf-1", DefinitionName: "linear", Definition: linearDef(), Status: model.WorkflowRunning,
		Input: map[string]value.Value{}, Output: map[string]value.Value{}, Variables: map[string]value.Value{},
	}
	_ = st.CreateWorkflow(w)
	_ = exec.Run(w.ID)

	tasks, err := exec.Poll(model.TaskTypeSimple, "", "", "", "worker-1", 5, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 polled task, got %d", len(tasks))
	}
	if tasks[0].Status != model.TaskInProgress || tasks[0].WorkerID != "worker-1" {
		t.Fatalf("expected task claimed by worker-1, got %+v", tasks[0])
	}
}
