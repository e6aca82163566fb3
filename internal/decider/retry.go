package decider

import (
	"math"

	"github.com/google/uuid"

	"github.com/sarlalian/conductorial/internal/apierr"
	"github.com/sarlalian/conductorial/internal/resolve"
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// retry decides whether pendingTask gets another attempt. A nil, nil
// return means the caller should mark the task CompletedWithErrors and
// move on (the task was optional); a non-nil error is always a
// TerminateWorkflowError the caller must propagate unchanged.
func (d *Decider) retry(taskDef *model.TaskDefinition, node *model.TaskNode, t *model.TaskInstance, w *model.WorkflowInstance, tasks []*model.TaskInstance) (*model.TaskInstance, error) {
	nodeRetryCount := 0
	if node != nil {
		nodeRetryCount = node.RetryCount
	}
	expectedRetryCount := 0
	if taskDef != nil {
		expectedRetryCount = taskDef.ExpectedRetryCount(nodeRetryCount)
	}

	if !t.Status.IsRetriable() || t.Type.IsSystemTask() || expectedRetryCount <= t.RetryCount {
		if node != nil && node.Optional {
			return nil, nil
		}
		status := model.WorkflowFailed
		switch t.Status {
		case model.TaskCanceled:
			status = model.WorkflowTerminated
		case model.TaskTimedOut:
			status = model.WorkflowTimedOut
		}
		d.UpdateWorkflowOutput(w, tasks, t)
		return nil, apierr.NewTerminateWorkflow(status, t.ID, t.ReasonForIncompletion)
	}

	startDelay := backoffDelay(taskDef, t.RetryCount)
	t.Retried = true

	rescheduled := &model.TaskInstance{
		ID:                 uuid.NewString(),
		Seq:                0,
		WorkflowInstanceID: t.WorkflowInstanceID,
		ReferenceTaskName:  t.ReferenceTaskName,
		TaskDefName:        t.TaskDefName,
		Type:               t.Type,
		Status:             model.TaskScheduled,
		RetryCount:         t.RetryCount + 1,
		RetriedTaskID:      t.ID,
		Iteration:          t.Iteration,
		CallbackAfterSeconds: int64(startDelay),
		Input:              cloneInput(t.Input),
		Output:             map[string]value.Value{},
		WorkflowPriority:   t.WorkflowPriority,
	}

	if node != nil {
		resolved := resolve.Resolve(node.InputParameters, resolve.BuildContext(w, tasks), rescheduled.ID)
		for k, v := range resolved {
			rescheduled.Input[k] = v
		}
	}
	return rescheduled, nil
}

func cloneInput(m map[string]value.Value) map[string]value.Value {
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// backoffDelay applies the three retry-logic formulas, saturating at
// math.MaxInt32 on overflow — spec §4.4, grounded on decider_service.rs's
// i32::MAX overflow-reset rule.
func backoffDelay(taskDef *model.TaskDefinition, retryCount int) int {
	if taskDef == nil {
		return 0
	}
	switch taskDef.RetryLogic {
	case model.RetryLinearBackoff:
		delay := int64(taskDef.RetryDelaySeconds) * int64(taskDef.BackoffScaleFactor) * int64(retryCount+1)
		return saturate32(delay)
	case model.RetryExponentialBackoff:
		delay := int64(taskDef.RetryDelaySeconds) * int64(math.Pow(2, float64(retryCount)))
		return saturate32(delay)
	default: // Fixed
		return taskDef.RetryDelaySeconds
	}
}

func saturate32(v int64) int {
	if v < 0 || v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}
