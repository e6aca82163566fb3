package systask

import (
	"github.com/sarlalian/conductorial/internal/eval"
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// DoWhileTask re-evaluates loopCondition each time the current
// iteration's last body task reaches a terminal state — spec §4.7
// "DoWhile", grounded on tegmine-core's do_while handling in
// decider_service.rs. loopCondition is always evaluated by the
// "javascript" evaluator; it never needs an evaluatorType override, as
// only Switch exposes one.
//
// Execute does not itself create the next iteration's task instances
// — it has no mapper access. Instead it increments t.Iteration and
// leaves the task IN_PROGRESS when the loop continues, a signal the
// decider (internal/decider.mapNextDoWhileIteration) reads to map the
// next iteration's body nodes with a NextIterationRefName suffix.
type DoWhileTask struct {
	Evaluators *eval.Registry
}

func (*DoWhileTask) TypeName() string { return string(model.TaskTypeDoWhile) }
func (*DoWhileTask) IsAsync() bool    { return false }

func (*DoWhileTask) Start(*model.WorkflowInstance, *model.TaskInstance) error { return nil }

func (d *DoWhileTask) Execute(w *model.WorkflowInstance, t *model.TaskInstance, siblings []*model.TaskInstance) (bool, error) {
	if t.Status.IsTerminal() {
		return false, nil
	}
	if w.Definition == nil {
		return false, nil
	}
	node := w.Definition.FindTask(t.ReferenceTaskName)
	if node == nil || len(node.LoopOver) == 0 {
		t.Status = model.TaskCompleted
		return true, nil
	}

	iteration := t.Iteration
	if iteration == 0 {
		iteration = 1
	}
	lastBodyRef := suffixedRef(node.LoopOver[len(node.LoopOver)-1].TaskReferenceName, iteration)

	byRef := indexByRefName(siblings)
	last, ok := byRef[lastBodyRef]
	if !ok || !last.Status.IsTerminal() {
		return false, nil
	}
	if !last.Status.IsSuccessful() {
		t.Status = model.TaskFailed
		t.ReasonForIncompletion = lastBodyRef + " failed"
		collectIterationOutput(t, node, byRef, iteration)
		return true, nil
	}

	collectIterationOutput(t, node, byRef, iteration)

	shouldContinue, err := d.evaluateCondition(node, t, iteration)
	if err != nil {
		t.Status = model.TaskFailed
		t.ReasonForIncompletion = err.Error()
		return true, nil
	}
	if shouldContinue {
		t.Iteration = iteration + 1
		return true, nil
	}
	t.Status = model.TaskCompleted
	return true, nil
}

func (*DoWhileTask) Cancel(*model.WorkflowInstance, *model.TaskInstance) error { return nil }

func (d *DoWhileTask) evaluateCondition(node *model.TaskNode, t *model.TaskInstance, iteration int) (bool, error) {
	evaluator, ok := d.Evaluators.Get("javascript")
	if !ok {
		return false, nil
	}
	input := value.Map(map[string]value.Value{
		"iteration": value.Int(int64(iteration)),
		"output":    value.Map(t.Output),
	})
	result, err := evaluator.Evaluate(node.LoopCondition, input)
	if err != nil {
		return false, err
	}
	b, _ := result.AsBool()
	return b, nil
}

// collectIterationOutput gathers this iteration's body task outputs into
// t.Output, keyed by the body node's unsuffixed reference name, matching
// the convention internal/resolve uses to look them up (stripIterationSuffix).
func collectIterationOutput(t *model.TaskInstance, node *model.TaskNode, byRef map[string]*model.TaskInstance, iteration int) {
	if t.Output == nil {
		t.Output = map[string]value.Value{}
	}
	for _, body := range node.LoopOver {
		ref := suffixedRef(body.TaskReferenceName, iteration)
		if sib, ok := byRef[ref]; ok {
			t.Output[body.TaskReferenceName] = value.Map(sib.Output)
		}
	}
}

func suffixedRef(refName string, iteration int) string {
	if iteration <= 0 {
		return refName
	}
	return refName + "__" + itoa(iteration)
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
