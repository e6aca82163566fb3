package mapper

import "github.com/sarlalian/conductorial/pkg/model"

// DoWhileMapper emits one InProgress DoWhile task, then maps the first
// body task as its iteration-1 successor, with its reference name
// suffixed "__1" — spec §4.7 "DoWhile". Subsequent iterations are
// mapped by the decider (internal/decider.mapNextDoWhileIteration)
// calling MapIteration directly each time the DoWhile SystemTask
// (internal/systask) advances t.Iteration after the previous
// iteration's last body child completes.
type DoWhileMapper struct{}

// IterationMapper is implemented by mappers whose children span more
// than one pass of the same TaskNode — currently only DoWhile, whose
// loop body is re-mapped once per iteration rather than once overall.
type IterationMapper interface {
	MapIteration(ctx *Context, iteration int) ([]*model.TaskInstance, error)
}

func (DoWhileMapper) GetMappedTasks(ctx *Context) ([]*model.TaskInstance, error) {
	loopTask := newTask(ctx, model.TaskInProgress)
	out := []*model.TaskInstance{loopTask}

	children, err := (DoWhileMapper{}).MapIteration(ctx, 1)
	if err != nil {
		return nil, err
	}
	out = append(out, children...)
	return out, nil
}

// MapIteration maps the loop body's first task as the given iteration's
// successor, suffixing its reference name "__<iteration>". Later body
// tasks within the same iteration are reached normally through
// getNextTask as each one completes.
func (DoWhileMapper) MapIteration(ctx *Context, iteration int) ([]*model.TaskInstance, error) {
	if len(ctx.Node.LoopOver) == 0 {
		return nil, nil
	}
	first := ctx.Node.LoopOver[0]
	iterChild := *first
	iterChild.TaskReferenceName = NextIterationRefName(first.TaskReferenceName, iteration)

	children, err := mapChild(ctx, &iterChild, ctx.ResolvedInput, nil)
	if err != nil {
		return nil, err
	}
	for _, c := range children {
		c.Iteration = iteration
	}
	return children, nil
}

// NextIterationRefName appends the `__<iteration>` suffix to a body
// node's reference name, the rule spec §4.9.4.e and §8's boundary
// behavior ("iteration=0 never suffixes") both describe.
func NextIterationRefName(refName string, iteration int) string {
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
