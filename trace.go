package access

// traceBuilder accumulates evaluation steps in call order, numbering from 1.
// The finished trace is handed to the caller verbatim; the external
// visualization replays it without adding semantics.
type traceBuilder struct {
	steps []EvaluationStep
}

func newTraceBuilder() *traceBuilder {
	return &traceBuilder{steps: make([]EvaluationStep, 0, 8)}
}

func (tb *traceBuilder) add(t StepType, result StepResult, description string, details map[string]any) {
	tb.steps = append(tb.steps, EvaluationStep{
		Step:        len(tb.steps) + 1,
		Type:        t,
		Result:      result,
		Description: description,
		Details:     details,
	})
}

func (tb *traceBuilder) path() []EvaluationStep {
	return tb.steps
}
