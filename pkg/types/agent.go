package types

import "time"

// Persona is the static, immutable-per-lifetime definition of an agent's
// personality. Created by spawn, never mutated afterward — a persona update
// request that changes an immutable field is rejected.
type Persona struct {
	Name            string   `json:"name"`
	BasePersonality string   `json:"basePersonality"`
	Quirks          []string `json:"quirks,omitempty"`
	Catchphrases    []string `json:"catchphrases,omitempty"`
	ExpertiseTags   []string `json:"expertiseTags,omitempty"`
	AllowedTools    []string `json:"allowedTools,omitempty"`
	ModelIdentifier string   `json:"modelIdentifier"`
	Temperature     float64  `json:"temperature"`
	MaxTokens       int      `json:"maxTokens"`
}

// Mood is the six-scalar affect vector. Valence ranges [-1,1]; every other
// component ranges [0,1].
type Mood struct {
	Valence     float64 `json:"valence"`
	Arousal     float64 `json:"arousal"`
	Dominance   float64 `json:"dominance"`
	Curiosity   float64 `json:"curiosity"`
	Creativity  float64 `json:"creativity"`
	Sociability float64 `json:"sociability"`
}

// OpinionScore is an agent's structured disposition toward one entity
// (another agent or a user). Trust/Respect/Affection range [-100,100].
type OpinionScore struct {
	Trust           float64   `json:"trust"`
	Respect         float64   `json:"respect"`
	Affection       float64   `json:"affection"`
	InteractionCount int      `json:"interactionCount"`
	LastInteraction  time.Time `json:"lastInteraction"`
	NotableEvents    []string  `json:"notableEvents,omitempty"`
}

// EmotionalState is an agent's mutable mood/opinion state. Every update
// increments Version and every field stays within its declared interval.
type EmotionalState struct {
	Mood        Mood                    `json:"mood"`
	Energy      float64                 `json:"energy"`
	Stress      float64                 `json:"stress"`
	Opinions    map[string]OpinionScore `json:"opinions,omitempty"`
	Version     uint64                  `json:"version"`
	LastUpdated time.Time               `json:"lastUpdated"`
}

// AgentStatus is the lifecycle phase of a spawned agent, independent of any
// single invocation's state machine (see agentruntime.State for that).
type AgentStatus string

const (
	AgentStatusActive    AgentStatus = "active"
	AgentStatusDespawned AgentStatus = "despawned"
)

// Agent is a spawned persona paired with its current emotional state and
// lifecycle status. The Persona & Emotional Engine is the sole owner of
// EmotionalState; other components hold an Agent only by AgentID.
type Agent struct {
	AgentID        string         `json:"agentID"`
	Persona        Persona        `json:"persona"`
	EmotionalState EmotionalState `json:"emotionalState"`
	Status         AgentStatus    `json:"status"`
	SpawnedAt      time.Time      `json:"spawnedAt"`
	DespawnedAt    *time.Time     `json:"despawnedAt,omitempty"`
}
