package brief

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/sgttomas/chirality-runtime/pkg/domain"
	"gopkg.in/yaml.v3"
)

// rawBrief is the decoding target for an unstructured brief. Unknown keys are
// rejected.
type rawBrief struct {
	TaskDefinition   string         `mapstructure:"task_definition"`
	ScopeDescription string         `mapstructure:"scope_description"`
	OutputContract   []string       `mapstructure:"output_contract"`
	Constraints      []string       `mapstructure:"constraints"`
	SuccessCriteria  []string       `mapstructure:"success_criteria"`
	Inputs           map[string]any `mapstructure:"inputs"`
}

var stringSliceType = reflect.TypeOf([]string(nil))

// lenientStrings turns any value bound for a []string field into its string
// entries, dropping everything else.
func lenientStrings(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != stringSliceType {
		return data, nil
	}
	return stringsOf(data), nil
}

// Parse converts an unstructured document into a SessionBrief.
// task_definition must be a non-blank string. The string-array fields default to
// empty and silently drop non-string entries. inputs must be an object when present.
func Parse(input map[string]any) (domain.SessionBrief, error) {
	var raw rawBrief
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  lenientStrings,
		ErrorUnused: true,
		Result:      &raw,
	})
	if err != nil {
		return domain.SessionBrief{}, fmt.Errorf("failed to build brief decoder: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return domain.SessionBrief{}, &domain.InvalidBriefError{Reason: fmt.Sprintf("malformed brief: %v", err)}
	}

	if input["task_definition"] == nil {
		return domain.SessionBrief{}, &domain.InvalidBriefError{Reason: "Missing task_definition"}
	}
	if strings.TrimSpace(raw.TaskDefinition) == "" {
		return domain.SessionBrief{}, &domain.InvalidBriefError{Reason: "task_definition cannot be empty"}
	}
	if raw.Inputs == nil {
		raw.Inputs = map[string]any{}
	}

	return domain.SessionBrief{
		TaskDefinition:   raw.TaskDefinition,
		ScopeDescription: raw.ScopeDescription,
		OutputContract:   nonNil(raw.OutputContract),
		Constraints:      nonNil(raw.Constraints),
		SuccessCriteria:  nonNil(raw.SuccessCriteria),
		Inputs:           raw.Inputs,
	}, nil
}

// ParseJSON parses a JSON brief document.
func ParseJSON(data []byte) (domain.SessionBrief, error) {
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return domain.SessionBrief{}, &domain.InvalidBriefError{Reason: fmt.Sprintf("brief is not a JSON object: %v", err)}
	}
	return Parse(input)
}

// ParseYAML parses a YAML brief document.
func ParseYAML(data []byte) (domain.SessionBrief, error) {
	var input map[string]any
	if err := yaml.Unmarshal(data, &input); err != nil {
		return domain.SessionBrief{}, &domain.InvalidBriefError{Reason: fmt.Sprintf("brief is not a YAML mapping: %v", err)}
	}
	return Parse(input)
}

func stringsOf(v any) []string {
	out := []string{}
	items, ok := v.([]any)
	if !ok {
		if typed, ok := v.([]string); ok {
			return append(out, typed...)
		}
		return out
	}
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
