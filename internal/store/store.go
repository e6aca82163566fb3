// Package store implements the engine's in-memory StateStore: workflow
// and task instance CRUD plus the secondary indices the decider and
// executor rely on, guarded by a single RWMutex the way the teacher's
// internal/context.Manager and internal/workflow/resolver.DependencyResolver
// guard their own small map sets.
package store

import (
	"sort"
	"sync"

	"github.com/sarlalian/conductorial/internal/apierr"
	"github.com/sarlalian/conductorial/pkg/model"
)

type taskKey struct {
	workflowID string
	key        string // ReferenceTaskName#RetryCount
}

// Store is the engine's StateStore.
type Store struct {
	mu sync.RWMutex

	workflows map[string]*model.WorkflowInstance
	tasks     map[string]*model.TaskInstance

	workflowToTasks   map[string][]string          // wid -> task ids, seq order
	inProgressTasks   map[string]map[string]bool   // def name -> set of task ids
	scheduledTasks    map[taskKey]string           // (wid, ref#retry) -> task id
	pendingWorkflows  map[string]map[string]bool   // def name -> set of workflow ids
	corrIDToWorkflows map[string]map[string]bool   // correlation id -> set of workflow ids

	seq int
}

func New() *Store {
	return &Store{
		workflows:         make(map[string]*model.WorkflowInstance),
		tasks:             make(map[string]*model.TaskInstance),
		workflowToTasks:   make(map[string][]string),
		inProgressTasks:   make(map[string]map[string]bool),
		scheduledTasks:    make(map[taskKey]string),
		pendingWorkflows:  make(map[string]map[string]bool),
		corrIDToWorkflows: make(map[string]map[string]bool),
	}
}

// CreateWorkflow registers a new workflow instance.
func (s *Store) CreateWorkflow(w *model.WorkflowInstance) error {
	if w.ID == "" {
		return apierr.NewIllegalArgument("workflow instance id is required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = w
	s.addPendingLocked(w)
	if w.CorrelationID != "" {
		set := s.corrIDToWorkflows[w.CorrelationID]
		if set == nil {
			set = map[string]bool{}
			s.corrIDToWorkflows[w.CorrelationID] = set
		}
		set[w.ID] = true
	}
	return nil
}

func (s *Store) addPendingLocked(w *model.WorkflowInstance) {
	if w.Status.IsTerminal() {
		return
	}
	set := s.pendingWorkflows[w.DefinitionName]
	if set == nil {
		set = map[string]bool{}
		s.pendingWorkflows[w.DefinitionName] = set
	}
	set[w.ID] = true
}

// GetWorkflow returns the workflow instance with the given id.
func (s *Store) GetWorkflow(id string) (*model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return nil, apierr.NewNotFound("workflow", id)
	}
	return w, nil
}

// UpdateWorkflow persists w and maintains the PENDING_WORKFLOWS index:
// once the workflow reaches a terminal status it is removed from the
// pending set for its definition name and never re-added.
func (s *Store) UpdateWorkflow(w *model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows[w.ID] = w
	if w.Status.IsTerminal() {
		if set := s.pendingWorkflows[w.DefinitionName]; set != nil {
			delete(set, w.ID)
		}
	} else {
		s.addPendingLocked(w)
	}
	return nil
}

// PendingWorkflowIDs returns the ids of non-terminal workflows
// registered under defName.
func (s *Store) PendingWorkflowIDs(defName string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.pendingWorkflows[defName]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CreateTask assigns a seq number, persists t, and maintains every
// secondary index: WORKFLOW_TO_TASKS, IN_PROGRESS_TASKS, and
// SCHEDULED_TASKS (the (ref_name, retry_count) dedupe key).
func (s *Store) CreateTask(t *model.TaskInstance) error {
	if t.ID == "" || t.WorkflowInstanceID == "" || t.ReferenceTaskName == "" {
		return apierr.NewIllegalArgument("task id, workflow instance id, and reference name are required", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := taskKey{workflowID: t.WorkflowInstanceID, key: t.Key()}
	if _, exists := s.scheduledTasks[key]; exists {
		return apierr.NewConflict("task already scheduled for " + key.key)
	}

	s.seq++
	t.Seq = s.seq
	s.tasks[t.ID] = t
	s.workflowToTasks[t.WorkflowInstanceID] = append(s.workflowToTasks[t.WorkflowInstanceID], t.ID)
	s.scheduledTasks[key] = t.ID
	s.updateInProgressIndexLocked(t)
	return nil
}

func (s *Store) updateInProgressIndexLocked(t *model.TaskInstance) {
	set := s.inProgressTasks[t.TaskDefName]
	if set == nil {
		set = map[string]bool{}
		s.inProgressTasks[t.TaskDefName] = set
	}
	if t.Status.IsTerminal() {
		delete(set, t.ID)
	} else {
		set[t.ID] = true
	}
}

// GetTask returns the task instance with the given id.
func (s *Store) GetTask(id string) (*model.TaskInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, apierr.NewNotFound("task", id)
	}
	return t, nil
}

// UpdateTask persists t and refreshes the in-progress index. Attempts
// to move a task away from a terminal status are rejected as Conflict
// (spec §8 property 3 / round-trip law "applying the same terminal
// TaskResult twice is a no-op").
func (s *Store) UpdateTask(t *model.TaskInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tasks[t.ID]; ok && existing.Status.IsTerminal() {
		return apierr.NewConflict("task " + t.ID + " is already terminal")
	}
	s.tasks[t.ID] = t
	s.updateInProgressIndexLocked(t)
	return nil
}

// Touch refreshes secondary indices for a task instance the caller has
// already mutated in place (the decider operates on the same pointers
// this store hands out, so the mutation is already visible here) —
// unlike UpdateTask, it carries no terminal-state guard, since the
// guard exists to reject a *caller* trying to move a task away from
// terminal, not to stop the engine re-indexing its own decisions.
func (s *Store) Touch(t *model.TaskInstance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateInProgressIndexLocked(t)
}

// TasksForWorkflow returns every task belonging to wid, ordered by seq.
func (s *Store) TasksForWorkflow(wid string) []*model.TaskInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.workflowToTasks[wid]
	out := make([]*model.TaskInstance, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.tasks[id]; ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// WorkflowsByCorrelationID returns every workflow id registered under
// the given correlation id.
func (s *Store) WorkflowsByCorrelationID(corrID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.corrIDToWorkflows[corrID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
