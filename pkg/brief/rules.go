package brief

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule requires at least one of a set of keys in a brief's inputs for one agent.
type Rule struct {
	Agent         string   `json:"agent" yaml:"agent"`
	RequiresAnyOf []string `json:"requires_any_of" yaml:"requires_any_of"`
	// Reason overrides the generated failure message.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Message returns the failure reason reported when the rule is not met.
func (r Rule) Message() string {
	if r.Reason != "" {
		return r.Reason
	}
	return fmt.Sprintf("%s requires %s in inputs", r.Agent, joinAlternatives(r.RequiresAnyOf))
}

// Rules maps an agent name to its input requirement.
type Rules map[string]Rule

// DefaultRules returns the built-in requirement table.
func DefaultRules() Rules {
	return NewRules(
		Rule{Agent: "4_DOCUMENTS", RequiresAnyOf: []string{"deliverable_id"}},
		Rule{Agent: "PREPARATION", RequiresAnyOf: []string{"package_id", "project_id"}},
		Rule{Agent: "CHIRALITY_FRAMEWORK", RequiresAnyOf: []string{"deliverable_id"}},
		Rule{
			Agent:         "DEPENDENCIES",
			RequiresAnyOf: []string{"deliverable_id", "package_id", "project_id"},
			Reason:        "DEPENDENCIES requires a scope (deliverable_id, package_id, or project_id)",
		},
		Rule{Agent: "AGGREGATION", RequiresAnyOf: []string{"project_id"}},
	)
}

// NewRules builds a table from individual rules. Later rules replace earlier ones for the same agent.
func NewRules(rules ...Rule) Rules {
	table := make(Rules, len(rules))
	for _, r := range rules {
		table[r.Agent] = r
	}
	return table
}

// Merge returns a new table with other's rules layered over r.
func (r Rules) Merge(other Rules) Rules {
	merged := make(Rules, len(r)+len(other))
	for k, v := range r {
		merged[k] = v
	}
	for k, v := range other {
		merged[k] = v
	}
	return merged
}

type rulesFile struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// LoadRules reads a rule table from a .yaml, .yml or .json file.
func LoadRules(path string) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read brief rules: %w", err)
	}
	return ParseRules(data, filepath.Ext(path))
}

// ParseRules decodes a rule table; ext selects JSON (".json") or YAML (anything else).
func ParseRules(data []byte, ext string) (Rules, error) {
	var file rulesFile
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse brief rules json: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse brief rules yaml: %w", err)
		}
	}
	for i, r := range file.Rules {
		if r.Agent == "" {
			return nil, fmt.Errorf("brief rule %d has no agent", i)
		}
		if len(r.RequiresAnyOf) == 0 {
			return nil, fmt.Errorf("brief rule for %s lists no required inputs", r.Agent)
		}
	}
	return NewRules(file.Rules...), nil
}

func joinAlternatives(keys []string) string {
	switch len(keys) {
	case 0:
		return ""
	case 1:
		return keys[0]
	case 2:
		return keys[0] + " or " + keys[1]
	default:
		return strings.Join(keys[:len(keys)-1], ", ") + ", or " + keys[len(keys)-1]
	}
}
