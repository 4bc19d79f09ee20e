// Package logic evaluates conditional visibility rules over checklist
// questionnaires. It is a pure function layer: given a question list and the
// current answers it computes which questions are visible and required, the
// overall completion state, and a progress percentage. It touches no storage
// and no network.
package logic

// Question types understood by the evaluator.
const (
	TypeText         = "TEXT"
	TypeNumber       = "NUMBER"
	TypeBoolean      = "BOOLEAN"
	TypeDate         = "DATE"
	TypeSelect       = "SELECT"
	TypeMultiSelect  = "MULTI_SELECT"
	TypePhoto        = "PHOTO"
	TypeSignature    = "SIGNATURE"
	TypeFile         = "FILE"
	TypeSectionTitle = "SECTION_TITLE"
)

// Rule operators.
const (
	OpEquals             = "EQUALS"
	OpNotEquals          = "NOT_EQUALS"
	OpGreaterThan        = "GREATER_THAN"
	OpGreaterThanOrEqual = "GREATER_THAN_OR_EQUAL"
	OpLessThan           = "LESS_THAN"
	OpLessThanOrEqual    = "LESS_THAN_OR_EQUAL"
	OpContains           = "CONTAINS"
	OpNotContains        = "NOT_CONTAINS"
	OpIsEmpty            = "IS_EMPTY"
	OpIsNotEmpty         = "IS_NOT_EMPTY"
	OpIn                 = "IN"
	OpNotIn              = "NOT_IN"
)

// Rule actions applied when a conditional block matches.
const (
	ActionShow    = "SHOW"
	ActionHide    = "HIDE"
	ActionRequire = "REQUIRE"
	ActionSkipTo  = "SKIP_TO"
)

// Combination modes for a rule block.
const (
	CombineAnd = "AND"
	CombineOr  = "OR"
)

// Rule is one condition against another question's answer, paired with the
// action to apply when its block matches.
type Rule struct {
	QuestionID string `json:"questionId"`
	Operator   string `json:"operator"`
	Value      any    `json:"value,omitempty"`
	Action     string `json:"action"`
	Target     string `json:"target,omitempty"`
}

// ConditionalLogic is the rule block attached to a question.
type ConditionalLogic struct {
	Rules      []Rule `json:"rules"`
	Combinator string `json:"combinator,omitempty"` // AND (default) or OR
}

// Question is one entry of a checklist template snapshot.
type Question struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Required    bool              `json:"required"`
	Order       int               `json:"order"`
	Conditional *ConditionalLogic `json:"conditionalLogic,omitempty"`
}
