// Package brief parses unstructured task input into a domain.SessionBrief and
// validates it against per-agent input requirements.
//
// Requirements live in a Rules table keyed by agent name. DefaultRules carries the
// built-in agents; LoadRules reads additional or replacement tables from YAML or JSON.
package brief
