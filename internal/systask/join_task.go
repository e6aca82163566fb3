package systask

import (
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// JoinTask completes once every reference name in task.input["joinOn"] has
// a terminal, successful sibling task — spec §4.7 "Join". A missing or
// still-running joinOn sibling leaves the join IN_PROGRESS; a terminal but
// unsuccessful sibling fails the join.
type JoinTask struct{}

func (JoinTask) TypeName() string { return string(model.TaskTypeJoin) }
func (JoinTask) IsAsync() bool    { return false }

func (JoinTask) Start(*model.WorkflowInstance, *model.TaskInstance) error { return nil }

func (JoinTask) Execute(_ *model.WorkflowInstance, t *model.TaskInstance, siblings []*model.TaskInstance) (bool, error) {
	if t.Status.IsTerminal() {
		return false, nil
	}

	refs := joinOnRefs(t.Input["joinOn"])
	if len(refs) == 0 {
		t.Status = model.TaskCompleted
		return true, nil
	}

	byRef := indexByRefName(siblings)
	allDone := true
	for _, ref := range refs {
		sib, ok := byRef[ref]
		if !ok || !sib.Status.IsTerminal() {
			allDone = false
			continue
		}
		if !sib.Status.IsSuccessful() {
			t.Status = model.TaskFailed
			t.ReasonForIncompletion = ref + " failed"
			return true, nil
		}
	}
	if !allDone {
		return false, nil
	}
	t.Status = model.TaskCompleted
	return true, nil
}

func (JoinTask) Cancel(*model.WorkflowInstance, *model.TaskInstance) error { return nil }

// ExclusiveJoinTask completes as soon as the branch that actually ran
// reaches a terminal state, falling back to defaultExclusiveJoinTask when
// none of exclusiveJoinOn's tasks were ever scheduled — spec §4.7
// "ExclusiveJoin".
type ExclusiveJoinTask struct{}

func (ExclusiveJoinTask) TypeName() string { return string(model.TaskTypeExclusiveJoin) }
func (ExclusiveJoinTask) IsAsync() bool    { return false }

func (ExclusiveJoinTask) Start(*model.WorkflowInstance, *model.TaskInstance) error { return nil }

func (ExclusiveJoinTask) Execute(_ *model.WorkflowInstance, t *model.TaskInstance, siblings []*model.TaskInstance) (bool, error) {
	if t.Status.IsTerminal() {
		return false, nil
	}

	refs := joinOnRefs(t.Input["exclusiveJoinOn"])
	byRef := indexByRefName(siblings)

	for _, ref := range refs {
		sib, ok := byRef[ref]
		if !ok {
			continue
		}
		if !sib.Status.IsTerminal() {
			return false, nil
		}
		copyTerminalOutput(t, sib)
		return true, nil
	}

	if v, ok := t.Input["defaultExclusiveJoinTask"]; ok {
		if ref, err := v.AsString(); err == nil && ref != "" {
			if sib, ok := byRef[ref]; ok {
				if !sib.Status.IsTerminal() {
					return false, nil
				}
				copyTerminalOutput(t, sib)
				return true, nil
			}
		}
	}
	t.Status = model.TaskCompleted
	return true, nil
}

func (ExclusiveJoinTask) Cancel(*model.WorkflowInstance, *model.TaskInstance) error { return nil }

func copyTerminalOutput(t *model.TaskInstance, sib *model.TaskInstance) {
	if sib.Status.IsSuccessful() {
		t.Status = model.TaskCompleted
	} else {
		t.Status = model.TaskFailed
		t.ReasonForIncompletion = sib.ReferenceTaskName + " failed"
	}
	t.Output = sib.Output
}

func joinOnRefs(v value.Value) []string {
	list, err := v.AsList()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, err := e.AsString(); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func indexByRefName(tasks []*model.TaskInstance) map[string]*model.TaskInstance {
	out := make(map[string]*model.TaskInstance, len(tasks))
	for _, t := range tasks {
		out[t.ReferenceTaskName] = t
	}
	return out
}
