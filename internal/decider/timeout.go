package decider

import (
	"fmt"

	"github.com/sarlalian/conductorial/internal/apierr"
	"github.com/sarlalian/conductorial/pkg/model"
)

// checkWorkflowTimeout terminates w if it has run longer than
// def.TimeoutSeconds allows, honoring TimeoutPolicy (TIME_OUT_WF
// terminates; ALERT_ONLY returns nil and the workflow continues, with no
// alert or log entry emitted) — spec §4.4.
func (d *Decider) checkWorkflowTimeout(w *model.WorkflowInstance) error {
	if w.Definition == nil || w.Status.IsTerminal() || w.Definition.TimeoutSeconds <= 0 {
		return nil
	}
	timeout := int64(w.Definition.TimeoutSeconds) * 1000
	now := d.now()
	reference := w.CreateTime
	if w.LastRetriedTime > 0 {
		reference = w.LastRetriedTime
	}
	elapsed := now - reference
	if elapsed < timeout {
		return nil
	}
	reason := fmt.Sprintf("workflow timed out after %d seconds, timeout configured as %d seconds",
		elapsed/1000, w.Definition.TimeoutSeconds)

	switch w.Definition.TimeoutPolicy {
	case model.TimeoutTimeOutWf:
		return apierr.NewTerminateWorkflow(model.WorkflowTimedOut, "", reason)
	default: // ALERT_ONLY
		return nil
	}
}

// checkTaskTimeout marks t TIMED_OUT if it's been running longer than
// def.TimeoutSeconds.
func (d *Decider) checkTaskTimeout(def *model.TaskDefinition, t *model.TaskInstance) error {
	if t.Status.IsTerminal() || def.TimeoutSeconds <= 0 || t.StartTime <= 0 {
		return nil
	}
	timeout := int64(def.TimeoutSeconds) * 1000
	now := d.now()
	elapsed := now - t.StartTime
	if elapsed < timeout {
		return nil
	}
	reason := fmt.Sprintf("task timed out after %d seconds, timeout configured as %d seconds",
		elapsed/1000, def.TimeoutSeconds)
	return d.timeoutTaskWithPolicy(reason, def, t)
}

// checkTaskPollTimeout marks a still-SCHEDULED t TIMED_OUT if no worker
// has polled it within def.PollTimeoutSeconds.
func (d *Decider) checkTaskPollTimeout(def *model.TaskDefinition, t *model.TaskInstance) error {
	if def.PollTimeoutSeconds <= 0 || t.Status != model.TaskScheduled {
		return nil
	}
	pollTimeout := int64(def.PollTimeoutSeconds) * 1000
	adjusted := pollTimeout + t.CallbackAfterSeconds*1000
	now := d.now()
	elapsed := now - t.ScheduledTime
	if elapsed < adjusted {
		return nil
	}
	reason := fmt.Sprintf("task poll timed out after %d seconds, poll timeout configured as %d seconds",
		elapsed/1000, def.PollTimeoutSeconds)
	return d.timeoutTaskWithPolicy(reason, def, t)
}

func (d *Decider) timeoutTaskWithPolicy(reason string, def *model.TaskDefinition, t *model.TaskInstance) error {
	switch def.TimeoutPolicy {
	case model.TimeoutAlertOnly:
		return nil
	case model.TimeoutTimeOutWf:
		t.Status = model.TaskTimedOut
		t.ReasonForIncompletion = reason
		return apierr.NewTerminateWorkflow(model.WorkflowTimedOut, t.ID, reason)
	default: // RETRY
		t.Status = model.TaskTimedOut
		t.ReasonForIncompletion = reason
		return nil
	}
}

// isResponseTimeout reports whether an IN_PROGRESS t has gone longer
// than def.ResponseTimeoutSeconds without an update. Unlike the source
// engine this does not special-case async system tasks that complete
// without ever leaving SCHEDULED — none of this package's system tasks
// do, since Switch/SetVariable/Terminate/Join/ExclusiveJoin/DoWhile are
// synchronous and StartWorkflow never goes IN_PROGRESS before a Starter
// runs.
func (d *Decider) isResponseTimeout(def *model.TaskDefinition, t *model.TaskInstance) bool {
	if t.Status.IsTerminal() {
		return false
	}
	if t.Status != model.TaskInProgress || def.ResponseTimeoutSeconds == 0 {
		return false
	}
	callbackTime := t.CallbackAfterSeconds * 1000
	responseTimeout := int64(def.ResponseTimeoutSeconds) * 1000
	adjusted := responseTimeout + callbackTime
	now := d.now()
	noResponseTime := now - t.UpdateTime
	return noResponseTime >= adjusted
}

func (d *Decider) timeoutTask(def *model.TaskDefinition, t *model.TaskInstance) {
	t.Status = model.TaskTimedOut
	t.ReasonForIncompletion = fmt.Sprintf(
		"responseTimeout: %d exceeded for the task: %s", def.ResponseTimeoutSeconds, t.ID)
}
