// Package types provides the shared domain types for Gemini Legion.
package types

import "time"

// HistoryEntry is one turn recorded in a Session's append-only log.
type HistoryEntry struct {
	Role  string `json:"role"` // "user" | "agent" | "tool"
	Parts []Part `json:"parts"`
}

// Part is one piece of a HistoryEntry. Kept as a tagged struct (rather than
// an interface) since history entries round-trip through storage as plain
// JSON and never need polymorphic dispatch.
type Part struct {
	Type     string         `json:"type"` // "text" | "tool_call" | "tool_result"
	Text     string         `json:"text,omitempty"`
	ToolName string         `json:"toolName,omitempty"`
	ToolArgs map[string]any `json:"toolArgs,omitempty"`
	ToolID   string         `json:"toolID,omitempty"`
}

// Session is the per-(AgentID, ConversationID) state bag and windowed
// message log consumed by the Agent Runtime to prepare a turn. Created
// lazily on first turn.
type Session struct {
	AgentID        string            `json:"agentID"`
	ConversationID string            `json:"conversationID"`
	State          map[string]string `json:"state"`
	History        []HistoryEntry    `json:"history"`
	Summary        string            `json:"summary,omitempty"`
	Version        uint64            `json:"version"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// GetVersion satisfies storage.Versioned for the Session Store's
// optimistic-concurrency repository.
func (s Session) GetVersion() uint64 { return s.Version }

// Key identifies a Session uniquely.
type SessionKey struct {
	AgentID        string
	ConversationID string
}

// String renders the composite repository id "<agentID>:<conversationID>".
func (k SessionKey) String() string {
	return k.AgentID + ":" + k.ConversationID
}
