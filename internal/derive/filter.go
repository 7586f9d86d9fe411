package derive

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// Filter selects participant statuses with a boolean expression such as
//
//	atRisk || (state == "descending" && minutesSinceLastScan > 240)
//
// Available variables: badge, name, completions, atRisk, state,
// minutesSinceLastScan, inProgress.
type Filter struct {
	expression string
	program    *exprvm.Program
}

// CompileFilter parses and type-checks expression.
func CompileFilter(expression string) (*Filter, error) {
	if expression == "" {
		return nil, fmt.Errorf("compile filter: expression must not be empty")
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(filterEnv(ParticipantStatus{})),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expression, err)
	}
	return &Filter{expression: expression, program: program}, nil
}

// Match evaluates the filter against one participant.
func (f *Filter) Match(ps ParticipantStatus) (bool, error) {
	out, err := exprlang.Run(f.program, filterEnv(ps))
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", f.expression, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Apply returns the statuses that match, in input order.
func (f *Filter) Apply(statuses []ParticipantStatus) ([]ParticipantStatus, error) {
	out := []ParticipantStatus{}
	for _, ps := range statuses {
		ok, err := f.Match(ps)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, ps)
		}
	}
	return out, nil
}

func filterEnv(ps ParticipantStatus) map[string]any {
	return map[string]any{
		"badge":                ps.Participant.BadgeNumber,
		"name":                 ps.Participant.Name,
		"completions":          ps.Status.CompletionCount,
		"atRisk":               ps.Status.AtRisk,
		"state":                string(ps.Status.State),
		"minutesSinceLastScan": minutesSince(ps.Status),
		"inProgress":           ps.Status.InProgress(),
	}
}
