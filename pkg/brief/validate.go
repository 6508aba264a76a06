package brief

import "github.com/sgttomas/chirality-runtime/pkg/domain"

// Validator checks briefs against a fixed rule table. It holds no mutable
// state and is safe for concurrent use.
type Validator struct {
	rules Rules
}

// NewValidator creates a Validator over rules. A nil table means DefaultRules.
func NewValidator(rules Rules) *Validator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Validator{rules: rules.Merge(nil)}
}

var defaultValidator = NewValidator(nil)

// Validate checks b for agentName with the built-in rules.
func Validate(b domain.SessionBrief, agentName string) error {
	return defaultValidator.Validate(b, agentName)
}

// Validate rejects an empty task definition, then applies the agent's input rule.
// Agents without a rule pass with no further checks.
func (v *Validator) Validate(b domain.SessionBrief, agentName string) error {
	if b.TaskDefinition == "" {
		return &domain.InvalidBriefError{Reason: "task_definition cannot be empty"}
	}
	rule, ok := v.rules[agentName]
	if !ok {
		return nil
	}
	for _, key := range rule.RequiresAnyOf {
		if b.HasInput(key) {
			return nil
		}
	}
	return &domain.InvalidBriefError{Reason: rule.Message()}
}

// Rule returns the requirement registered for agentName.
func (v *Validator) Rule(agentName string) (Rule, bool) {
	r, ok := v.rules[agentName]
	return r, ok
}
