package loam

// StatusEntry is one line of a deliverable's status history.
type StatusEntry struct {
	From string `json:"from" mapstructure:"from"`
	To   string `json:"to" mapstructure:"to"`
	By   string `json:"by" mapstructure:"by"`
	At   string `json:"at" mapstructure:"at"`
}

// StatusMetadata is the frontmatter of a _STATUS.md file.
// Timestamps are RFC 3339 strings so they survive YAML round trips unchanged.
type StatusMetadata struct {
	DeliverableID string        `json:"deliverable_id" mapstructure:"deliverable_id"`
	Label         string        `json:"label" mapstructure:"label"`
	State         string        `json:"state" mapstructure:"state"`
	UpdatedAt     string        `json:"updated_at" mapstructure:"updated_at"`
	UpdatedBy     string        `json:"updated_by" mapstructure:"updated_by"`
	History       []StatusEntry `json:"history" mapstructure:"history"`
}

// AgentMetadata is the frontmatter of an agent definition file.
type AgentMetadata struct {
	Name        string `json:"name" mapstructure:"name"`
	Type        string `json:"agent_type" mapstructure:"agent_type"`
	Class       string `json:"agent_class" mapstructure:"agent_class"`
	Description string `json:"description" mapstructure:"description"`
}
