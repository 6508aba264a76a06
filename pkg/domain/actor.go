package domain

import "fmt"

// ActorKind classifies who performed a mutation.
type ActorKind string

const (
	ActorHuman  ActorKind = "HUMAN"
	ActorAgent  ActorKind = "AGENT"
	ActorSystem ActorKind = "SYSTEM"
)

// Valid reports whether k is a known actor kind.
func (k ActorKind) Valid() bool {
	switch k {
	case ActorHuman, ActorAgent, ActorSystem:
		return true
	}
	return false
}

// Actor records provenance for every mutation.
type Actor struct {
	Kind ActorKind `json:"kind"`
	ID   string    `json:"id"`
}

// HumanActor returns a human actor with the given id.
func HumanActor(id string) Actor { return Actor{Kind: ActorHuman, ID: id} }

// AgentActor returns an agent actor with the given id.
func AgentActor(id string) Actor { return Actor{Kind: ActorAgent, ID: id} }

// SystemActor returns the runtime's own actor.
func SystemActor() Actor { return Actor{Kind: ActorSystem, ID: "system"} }

// IsHuman reports whether the actor is a human.
func (a Actor) IsHuman() bool { return a.Kind == ActorHuman }

func (a Actor) String() string { return fmt.Sprintf("%s:%s", a.Kind, a.ID) }

// RequireHuman fails with HumanActorRequiredError unless a is human.
func RequireHuman(a Actor, operation string) error {
	if a.IsHuman() {
		return nil
	}
	return &HumanActorRequiredError{Operation: operation}
}
