package logic

import (
	"fmt"
	"math"
	"strings"
)

// QuestionState is the evaluated visibility of one question.
type QuestionState struct {
	Visible  bool
	Required bool
	Answered bool
	SkipTo   string
}

// Result is the outcome of evaluating a full questionnaire.
type Result struct {
	States   map[string]QuestionState
	Visible  []Question // visible questions in display order
	Complete bool
	Progress int // 0-100
}

// Evaluate computes visibility, requiredness, completion and progress for a
// question list against the current answer set. Questions keep their input
// order; every rule reads the full answer map, not only the answer of the
// question it is attached to.
func Evaluate(questions []Question, answers map[string]AnswerValue) Result {
	res := Result{States: make(map[string]QuestionState, len(questions))}

	for _, q := range questions {
		state := QuestionState{Visible: true, Required: q.Required}

		if q.Conditional != nil && len(q.Conditional.Rules) > 0 {
			if blockMatches(q.Conditional, answers) {
				applyActions(q.Conditional.Rules, &state)
			}
		}

		// A hidden question can never be required.
		if !state.Visible {
			state.Required = false
		}
		state.Answered = !answers[q.ID].IsEmpty()

		res.States[q.ID] = state
		if state.Visible {
			res.Visible = append(res.Visible, q)
		}
	}

	res.Progress = progress(res.Visible, answers)
	res.Complete = complete(res.Visible, res.States, answers)
	return res
}

// blockMatches evaluates every rule of a block and combines the results
// under the block's combinator (AND unless OR is declared).
func blockMatches(cl *ConditionalLogic, answers map[string]AnswerValue) bool {
	or := strings.EqualFold(cl.Combinator, CombineOr)
	for _, r := range cl.Rules {
		matched := ruleMatches(r, answers[r.QuestionID])
		if or && matched {
			return true
		}
		if !or && !matched {
			return false
		}
	}
	return !or
}

// applyActions applies the actions carried by a matched block, in rule order.
func applyActions(rules []Rule, state *QuestionState) {
	for _, r := range rules {
		switch r.Action {
		case ActionShow:
			state.Visible = true
		case ActionHide:
			state.Visible = false
			state.Required = false
		case ActionRequire:
			state.Required = true
		case ActionSkipTo:
			state.SkipTo = r.Target
		}
	}
}

// ruleMatches evaluates one rule against the referenced question's answer.
func ruleMatches(r Rule, answer AnswerValue) bool {
	switch r.Operator {
	case OpIsEmpty:
		return answer.IsEmpty()
	case OpIsNotEmpty:
		return !answer.IsEmpty()
	case OpEquals:
		return valuesEqual(answer, r.Value)
	case OpNotEquals:
		return !valuesEqual(answer, r.Value)
	case OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		a, okA := answer.asNumber()
		b, okB := ruleNumber(r.Value)
		if !okA || !okB {
			return false
		}
		switch r.Operator {
		case OpGreaterThan:
			return a > b
		case OpGreaterThanOrEqual:
			return a >= b
		case OpLessThan:
			return a < b
		default:
			return a <= b
		}
	case OpContains:
		return containsValue(answer, r.Value)
	case OpNotContains:
		return !containsValue(answer, r.Value)
	case OpIn:
		return inList(answer, r.Value)
	case OpNotIn:
		return !inList(answer, r.Value)
	}
	return false
}

// valuesEqual compares an answer with a rule value. Numbers compare
// numerically when both sides are numeric; everything else compares as
// strings. Missing answers never equal anything.
func valuesEqual(answer AnswerValue, rv any) bool {
	if answer.IsEmpty() {
		return false
	}
	if a, ok := answer.asNumber(); ok {
		if b, okB := ruleNumber(rv); okB {
			return a == b
		}
		return false
	}
	a, okA := answer.asString()
	b, okB := ruleString(rv)
	return okA && okB && a == b
}

// containsValue checks substring containment for text answers and element
// containment for JSON-array answers (multi-select).
func containsValue(answer AnswerValue, rv any) bool {
	if answer.IsEmpty() {
		return false
	}
	if items, ok := answer.jsonElements(); ok {
		for _, item := range items {
			if scalarEqual(item, rv) {
				return true
			}
		}
		return false
	}
	a, okA := answer.asString()
	b, okB := ruleString(rv)
	return okA && okB && strings.Contains(a, b)
}

// inList checks whether the answer is one of the elements of the rule's
// list value.
func inList(answer AnswerValue, rv any) bool {
	list, ok := rv.([]any)
	if !ok || answer.IsEmpty() {
		return false
	}
	for _, item := range list {
		if n, okN := answer.asNumber(); okN {
			if m, okM := ruleNumber(item); okM && n == m {
				return true
			}
			continue
		}
		a, okA := answer.asString()
		b, okB := ruleString(item)
		if okA && okB && a == b {
			return true
		}
	}
	return false
}

// scalarEqual compares two decoded JSON scalars.
func scalarEqual(a, b any) bool {
	if an, ok := ruleNumber(a); ok {
		if bn, okB := ruleNumber(b); okB {
			return an == bn
		}
		return false
	}
	as, okA := ruleString(a)
	bs, okB := ruleString(b)
	if okA && okB {
		return as == bs
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

// progress is answered/visible, as a percentage rounded to the nearest
// integer. Section titles count on neither side. An empty visible set is
// complete by definition and reports 100.
func progress(visible []Question, answers map[string]AnswerValue) int {
	total := 0
	answered := 0
	for _, q := range visible {
		if q.Type == TypeSectionTitle {
			continue
		}
		total++
		if !answers[q.ID].IsEmpty() {
			answered++
		}
	}
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(answered) / float64(total) * 100))
}

// complete reports whether every visible, required, non-section question has
// a non-empty answer.
func complete(visible []Question, states map[string]QuestionState, answers map[string]AnswerValue) bool {
	for _, q := range visible {
		if q.Type == TypeSectionTitle {
			continue
		}
		if states[q.ID].Required && answers[q.ID].IsEmpty() {
			return false
		}
	}
	return true
}
