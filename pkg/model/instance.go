package model

import "github.com/sarlalian/conductorial/pkg/value"

// WorkflowInstance is a running (or terminal) copy of a WorkflowDefinition.
type WorkflowInstance struct {
	ID                    string
	CorrelationID         string
	Priority              int
	DefinitionName        string
	DefinitionVersion     int
	Definition            *WorkflowDefinition
	ParentWorkflowID      string
	ParentWorkflowTaskID  string

	TaskIDs []string // seq-ordered ids into the StateStore

	Variables map[string]value.Value
	Input     map[string]value.Value
	Output    map[string]value.Value

	Status                WorkflowStatus
	ReasonForIncompletion string
	FailedTaskID          string
	TaskToDomain          map[string]string

	CreateTime      int64
	UpdateTime      int64
	EndTime         int64
	LastRetriedTime int64
}

// TaskInstance is a scheduled/executing/terminal copy of a TaskNode.
type TaskInstance struct {
	ID                 string
	Seq                int
	WorkflowInstanceID string
	ReferenceTaskName  string
	TaskDefName        string
	Type               TaskType

	Status       TaskStatus
	RetryCount   int
	RetriedTaskID string
	Iteration    int
	Executed     bool // true once this attempt's terminal state has been consumed by the decider
	Retried      bool // true once a retry attempt has been scheduled for this task

	ScheduledTime int64
	StartTime     int64
	UpdateTime    int64
	EndTime       int64

	CallbackAfterSeconds int64
	PollCount            int
	WorkerID             string

	Input  map[string]value.Value
	Output map[string]value.Value

	ReasonForIncompletion string
	WorkflowPriority      int

	ExecutionNameSpace string
	IsolationGroupID   string

	RateLimitFrequencyInSeconds int
	RateLimitPerFrequency       int
}

// Key returns the (ref_name, retry_count) uniqueness key, per spec §3's
// "at most one scheduling per attempt" invariant.
func (t *TaskInstance) Key() string {
	return t.ReferenceTaskName + "#" + itoa(t.RetryCount)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// StartRequest is the Execution API's request to start a new workflow.
type StartRequest struct {
	Name          string
	Version       int
	Input         map[string]value.Value
	CorrelationID string
	TaskToDomain  map[string]string
	WorkflowDef   *WorkflowDefinition
	Priority      int
	ExternalInputPayloadStoragePath string
}

// TaskResult is the Worker Protocol's update_task payload.
type TaskResult struct {
	WorkflowInstanceID    string
	TaskID                string
	Status                TaskStatus
	OutputData            map[string]value.Value
	ReasonForIncompletion string
	CallbackAfterSeconds  int64
	WorkerID              string
	Logs                  []string
	ExtendLease           bool
	SubWorkflowID         string
}
