package model

import "github.com/sarlalian/conductorial/pkg/value"

// TaskDefinition is the optional, per-task-name policy record: retry
// count/logic/delay, timeouts, concurrency and rate limits, and input
// defaults. Registered independently of any WorkflowDefinition.
type TaskDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerEmail  string `json:"ownerEmail,omitempty"`

	RetryCount       int        `json:"retryCount"`
	RetryLogic       RetryLogic `json:"retryLogic,omitempty"`
	RetryDelaySeconds int       `json:"retryDelaySeconds,omitempty"`
	BackoffScaleFactor int      `json:"backoffScaleFactor,omitempty"`

	TimeoutSeconds         int           `json:"timeoutSeconds,omitempty"`
	ResponseTimeoutSeconds int           `json:"responseTimeoutSeconds,omitempty"`
	PollTimeoutSeconds     int           `json:"pollTimeoutSeconds,omitempty"`
	TimeoutPolicy          TimeoutPolicy `json:"timeoutPolicy,omitempty"`

	ConcurrentExecLimit           int `json:"concurrentExecLimit,omitempty"`
	RateLimitFrequencyInSeconds   int `json:"rateLimitFrequencyInSeconds,omitempty"`
	RateLimitPerFrequency         int `json:"rateLimitPerFrequency,omitempty"`

	InputTemplate map[string]value.Value `json:"inputTemplate,omitempty"`
}

// ExpectedRetryCount returns the retry count to honor: the task node's
// own override if positive, else the definition's.
func (d *TaskDefinition) ExpectedRetryCount(nodeOverride int) int {
	if nodeOverride > 0 {
		return nodeOverride
	}
	if d == nil {
		return 0
	}
	return d.RetryCount
}

// TaskNode is one node of a WorkflowDefinition's task tree.
type TaskNode struct {
	Name              string   `json:"name"`
	TaskReferenceName string   `json:"taskReferenceName"`
	Type              TaskType `json:"type"`
	Optional          bool     `json:"optional,omitempty"`
	StartDelaySeconds int      `json:"startDelay,omitempty"`
	RetryCount        int      `json:"retryCount,omitempty"`

	InputParameters map[string]value.Value `json:"inputParameters,omitempty"`

	// Switch
	EvaluatorType string              `json:"evaluatorType,omitempty"`
	Expression    string              `json:"expression,omitempty"`
	DecisionCases map[string][]*TaskNode `json:"decisionCases,omitempty"`
	DefaultCase   []*TaskNode         `json:"defaultCase,omitempty"`

	// DoWhile
	LoopCondition string      `json:"loopCondition,omitempty"`
	LoopOver      []*TaskNode `json:"loopOver,omitempty"`

	// ForkJoin
	ForkTasks [][]*TaskNode `json:"forkTasks,omitempty"`
	JoinOn    []string      `json:"joinOn,omitempty"`

	// ExclusiveJoin
	ExclusiveJoinOn        []string `json:"exclusiveJoinOn,omitempty"`
	DefaultExclusiveJoinTask string `json:"defaultExclusiveJoinTask,omitempty"`

	// Dynamic
	DynamicTaskNameParam string `json:"dynamicTaskNameParam,omitempty"`

	// Terminate
	TerminationStatus string                  `json:"terminationStatus,omitempty"`
	TerminationReason string                  `json:"terminationReason,omitempty"`
	WorkflowOutput    map[string]value.Value  `json:"workflowOutput,omitempty"`
}

// WorkflowDefinition is the immutable, registered description of a
// workflow: its task tree plus execution policy.
type WorkflowDefinition struct {
	Name          string `json:"name"`
	Version       int    `json:"version"`
	Description   string `json:"description,omitempty"`
	OwnerEmail    string `json:"ownerEmail,omitempty"`
	SchemaVersion int    `json:"schemaVersion"`
	Restartable   bool   `json:"restartable,omitempty"`

	Tasks []*TaskNode `json:"tasks"`

	InputTemplate   map[string]value.Value `json:"inputTemplate,omitempty"`
	OutputParameters map[string]value.Value `json:"outputParameters,omitempty"`

	FailureWorkflow string        `json:"failureWorkflow,omitempty"`
	TimeoutPolicy   TimeoutPolicy `json:"timeoutPolicy,omitempty"`
	TimeoutSeconds  int           `json:"timeoutSeconds,omitempty"`
}

// CollectTasks enumerates every TaskNode reachable from def's top-level
// task list, descending depth-first through Switch cases, DoWhile
// bodies, and ForkJoin branches — grounded on
// tegmine-common's DefinitionModel::collect_tasks.
func (def *WorkflowDefinition) CollectTasks() []*TaskNode {
	var out []*TaskNode
	var walk func([]*TaskNode)
	walk = func(nodes []*TaskNode) {
		for _, n := range nodes {
			out = append(out, n)
			switch n.Type {
			case TaskTypeSwitch:
				for _, cs := range n.DecisionCases {
					walk(cs)
				}
				walk(n.DefaultCase)
			case TaskTypeDoWhile:
				walk(n.LoopOver)
			case TaskTypeForkJoin:
				for _, branch := range n.ForkTasks {
					walk(branch)
				}
			}
		}
	}
	walk(def.Tasks)
	return out
}

// FindTask returns the node with the given reference name, or nil.
func (def *WorkflowDefinition) FindTask(refName string) *TaskNode {
	for _, n := range def.CollectTasks() {
		if n.TaskReferenceName == refName {
			return n
		}
	}
	return nil
}

// GetNextTask returns the node following refName in its enclosing
// sequence, descending into composite nodes as needed. A DoWhile whose
// last body task is refName returns the DoWhile node itself, so the
// decider re-evaluates the loop condition. Terminate nodes and nodes
// with no successor return nil.
func (def *WorkflowDefinition) GetNextTask(refName string) *TaskNode {
	var search func(nodes []*TaskNode, parentLoop *TaskNode) (*TaskNode, bool)
	search = func(nodes []*TaskNode, parentLoop *TaskNode) (*TaskNode, bool) {
		for i, n := range nodes {
			if n.TaskReferenceName == refName {
				if i+1 < len(nodes) {
					return nodes[i+1], true
				}
				if parentLoop != nil {
					return parentLoop, true
				}
				return nil, true
			}
			switch n.Type {
			case TaskTypeSwitch:
				for _, cs := range n.DecisionCases {
					if next, found := search(cs, nil); found {
						if next == nil && i+1 < len(nodes) {
							return nodes[i+1], true
						}
						return next, true
					}
				}
				if next, found := search(n.DefaultCase, nil); found {
					if next == nil && i+1 < len(nodes) {
						return nodes[i+1], true
					}
					return next, true
				}
			case TaskTypeDoWhile:
				if next, found := search(n.LoopOver, n); found {
					return next, true
				}
			case TaskTypeForkJoin:
				for _, branch := range n.ForkTasks {
					if next, found := search(branch, nil); found {
						if next == nil && i+1 < len(nodes) {
							return nodes[i+1], true
						}
						return next, true
					}
				}
			}
		}
		return nil, false
	}
	next, _ := search(def.Tasks, nil)
	return next
}
