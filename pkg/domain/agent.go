package domain

import "fmt"

// AgentType places an agent in the fixed authority hierarchy.
type AgentType string

const (
	AgentArchitect  AgentType = "ARCHITECT"
	AgentManager    AgentType = "MANAGER"
	AgentSpecialist AgentType = "SPECIALIST"
)

func (t AgentType) rank() int {
	switch t {
	case AgentArchitect:
		return 3
	case AgentManager:
		return 2
	case AgentSpecialist:
		return 1
	}
	return 0
}

// Outranks reports whether t sits strictly above other in the hierarchy.
func (t AgentType) Outranks(other AgentType) bool { return t.rank() > other.rank() }

// Valid reports whether t is a known agent type.
func (t AgentType) Valid() bool { return t.rank() > 0 }

func (t *AgentType) UnmarshalText(text []byte) error {
	v := AgentType(text)
	if !v.Valid() {
		return fmt.Errorf("unknown agent type %q", text)
	}
	*t = v
	return nil
}

// AgentClass is the execution mode of a session. It never changes after creation.
type AgentClass string

const (
	// AgentClassPersona sessions are interactive and may pause for human input.
	AgentClassPersona AgentClass = "PERSONA"
	// AgentClassTask sessions run straight through and never pause.
	AgentClassTask AgentClass = "TASK"
)

// Valid reports whether c is a known class.
func (c AgentClass) Valid() bool {
	return c == AgentClassPersona || c == AgentClassTask
}

func (c *AgentClass) UnmarshalText(text []byte) error {
	v := AgentClass(text)
	if !v.Valid() {
		return fmt.Errorf("unknown agent class %q", text)
	}
	*c = v
	return nil
}
