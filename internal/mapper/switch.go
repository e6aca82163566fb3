package mapper

import (
	"github.com/sarlalian/conductorial/internal/apierr"
	"github.com/sarlalian/conductorial/pkg/model"
	"github.com/sarlalian/conductorial/pkg/value"
)

// SwitchMapper emits one InProgress switch task recording the
// evaluated case, then maps the first task of the matching
// decisionCase (or defaultCase) as its child — spec §4.7 "Switch".
// The child's resolved input carries hasChildren="true", matching the
// source engine's short-circuit in get_next_task for Switch nodes.
type SwitchMapper struct{}

func (SwitchMapper) GetMappedTasks(ctx *Context) ([]*model.TaskInstance, error) {
	evaluatorType := ctx.Node.EvaluatorType
	if evaluatorType == "" {
		evaluatorType = "value-param"
	}
	ev, ok := ctx.Evaluators.Get(evaluatorType)
	if !ok {
		return nil, apierr.NewIllegalArgument("unknown evaluator type "+evaluatorType, nil)
	}

	result, err := ev.Evaluate(ctx.Node.Expression, value.Map(ctx.ResolvedInput))
	if err != nil {
		return nil, apierr.NewScriptEvalFailed(ctx.Node.Expression, err)
	}
	caseName := result.String()

	switchTask := newTask(ctx, model.TaskInProgress)
	switchTask.Input["case"] = value.String(caseName)
	switchTask.Output = map[string]value.Value{
		"evaluationResult": value.List([]value.Value{value.String(caseName)}),
	}

	out := []*model.TaskInstance{switchTask}

	children, ok := ctx.Node.DecisionCases[caseName]
	if !ok || len(children) == 0 {
		children = ctx.Node.DefaultCase
	}
	if len(children) == 0 {
		return out, nil
	}

	childTasks, err := mapChild(ctx, children[0], ctx.ResolvedInput, map[string]value.Value{
		"hasChildren": value.String("true"),
	})
	if err != nil {
		return nil, err
	}
	out = append(out, childTasks...)
	return out, nil
}
