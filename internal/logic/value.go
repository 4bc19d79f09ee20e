package logic

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind identifies which slot of an AnswerValue is populated.
type Kind int

const (
	KindNone Kind = iota
	KindText
	KindNumber
	KindBool
	KindDate
	KindJSON
)

// AnswerValue is a tagged union over the five value shapes an answer can
// carry. The zero value means "no answer".
type AnswerValue struct {
	Kind   Kind
	Text   string
	Number float64
	Bool   bool
	Date   time.Time
	JSON   json.RawMessage
}

// TextValue wraps a free-text answer.
func TextValue(s string) AnswerValue { return AnswerValue{Kind: KindText, Text: s} }

// NumberValue wraps a numeric answer.
func NumberValue(f float64) AnswerValue { return AnswerValue{Kind: KindNumber, Number: f} }

// BoolValue wraps a yes/no answer.
func BoolValue(b bool) AnswerValue { return AnswerValue{Kind: KindBool, Bool: b} }

// DateValue wraps a date answer.
func DateValue(t time.Time) AnswerValue { return AnswerValue{Kind: KindDate, Date: t} }

// JSONValue wraps a structured answer (select options, photo/signature/file
// references) as raw JSON.
func JSONValue(raw json.RawMessage) AnswerValue { return AnswerValue{Kind: KindJSON, JSON: raw} }

// IsEmpty reports whether the value counts as unanswered. Emptiness is
// type-aware: empty string for text, absent slot for number/bool/date,
// null or empty JSON for structured answers.
func (v AnswerValue) IsEmpty() bool {
	switch v.Kind {
	case KindNone:
		return true
	case KindText:
		return v.Text == ""
	case KindNumber, KindBool, KindDate:
		return false
	case KindJSON:
		trimmed := strings.TrimSpace(string(v.JSON))
		return trimmed == "" || trimmed == "null" || trimmed == "[]" || trimmed == "{}"
	}
	return true
}

// asNumber returns the value as a float64 when it genuinely is numeric.
// There is no string coercion.
func (v AnswerValue) asNumber() (float64, bool) {
	if v.Kind != KindNumber {
		return 0, false
	}
	return v.Number, true
}

// asString renders the value for string-shaped comparisons.
func (v AnswerValue) asString() (string, bool) {
	switch v.Kind {
	case KindText:
		return v.Text, true
	case KindBool:
		if v.Bool {
			return "true", true
		}
		return "false", true
	case KindDate:
		return v.Date.Format(time.RFC3339), true
	case KindJSON:
		var s string
		if err := json.Unmarshal(v.JSON, &s); err == nil {
			return s, true
		}
		return "", false
	}
	return "", false
}

// jsonElements decodes a JSON array value into its scalar elements.
func (v AnswerValue) jsonElements() ([]any, bool) {
	if v.Kind != KindJSON {
		return nil, false
	}
	var items []any
	if err := json.Unmarshal(v.JSON, &items); err != nil {
		return nil, false
	}
	return items, true
}

// ruleNumber extracts a number from a rule's comparison value. JSON decoding
// gives float64 for all numbers; anything else is not numeric.
func ruleNumber(rv any) (float64, bool) {
	switch n := rv.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// ruleString renders a rule's comparison value for string comparisons.
func ruleString(rv any) (string, bool) {
	switch s := rv.(type) {
	case string:
		return s, true
	case bool:
		if s {
			return "true", true
		}
		return "false", true
	}
	return "", false
}
