package systask

import (
	"testing"

	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

func newSibling(ref string, status model.TaskStatus) *model.TaskInstance {
	return &model.TaskInstance{ReferenceTaskName: ref, Status: status}
}

func TestJoinTaskWaitsForAllBranches(t *testing.T) {
	join := &model.TaskInstance{
		ReferenceTaskName: "fork_join",
		Status:            model.TaskInProgress,
		Input: map[string]value.Value{
			"joinOn": value.List([]value.Value{value.String("a"), value.String("b")}),
		},
	}
	siblings := []*model.TaskInstance{
		newSibling("a", model.TaskCompleted),
		newSibling("b", model.TaskInProgress),
	}
	changed, err := JoinTask{}.Execute(nil, join, siblings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatalf("join should still be waiting on b")
	}
	if join.Status != model.TaskInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", join.Status)
	}
}

func TestJoinTaskCompletesWhenAllSuccessful(t *testing.T) {
	join := &model.TaskInstance{
		Status: model.TaskInProgress,
		Input: map[string]value.Value{
			"joinOn": value.List([]value.Value{value.String("a"), value.String("b")}),
		},
	}
	siblings := []*model.TaskInstance{
		newSibling("a", model.TaskCompleted),
		newSibling("b", model.TaskCompleted),
	}
	changed, err := JoinTask{}.Execute(nil, join, siblings)
	if err != nil || !changed {
		t.Fatalf("expected completion, got changed=%v err=%v", changed, err)
	}
	if join.Status != model.TaskCompleted {
		t.Fatalf("expected COMPLETED, got %s", join.Status)
	}
}

func TestJoinTaskFailsWhenABranchFails(t *testing.T) {
	join := &model.TaskInstance{
		Status: model.TaskInProgress,
		Input: map[string]value.Value{
			"joinOn": value.List([]value.Value{value.String("a")}),
		},
	}
	siblings := []*model.TaskInstance{newSibling("a", model.TaskFailed)}
	changed, err := JoinTask{}.Execute(nil, join, siblings)
	if err != nil || !changed {
		t.Fatalf("expected a terminal failure, got changed=%v err=%v", changed, err)
	}
	if join.Status != model.TaskFailed {
		t.Fatalf("expected FAILED, got %s", join.Status)
	}
}

func TestExclusiveJoinTaskFollowsFirstRunBranch(t *testing.T) {
	join := &model.TaskInstance{
		Status: model.TaskInProgress,
		Input: map[string]value.Value{
			"exclusiveJoinOn": value.List([]value.Value{value.String("a"), value.String("b")}),
		},
	}
	b := newSibling("b", model.TaskCompleted)
	b.Output = map[string]value.Value{"x": value.Int(1)}
	siblings := []*model.TaskInstance{b}
	changed, err := ExclusiveJoinTask{}.Execute(nil, join, siblings)
	if err != nil || !changed {
		t.Fatalf("expected completion via fallback to b, got changed=%v err=%v", changed, err)
	}
	if join.Status != model.TaskCompleted {
		t.Fatalf("expected COMPLETED, got %s", join.Status)
	}
}

func TestExclusiveJoinTaskUsesDefaultWhenNoBranchRan(t *testing.T) {
	join := &model.TaskInstance{
		Status: model.TaskInProgress,
		Input: map[string]value.Value{
			"exclusiveJoinOn":          value.List([]value.Value{value.String("a")}),
			"defaultExclusiveJoinTask": value.String("fallback"),
		},
	}
	siblings := []*model.TaskInstance{newSibling("fallback", model.TaskCompleted)}
	changed, err := ExclusiveJoinTask{}.Execute(nil, join, siblings)
	if err != nil || !changed {
		t.Fatalf("expected completion via default, got changed=%v err=%v", changed, err)
	}
	if join.Status != model.TaskCompleted {
		t.Fatalf("expected COMPLETED, got %s", join.Status)
	}
}
