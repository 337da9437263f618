package event

import "github.com/gemini-legion/legion/pkg/types"

// ChannelCreatedData is the payload for EventChannelCreated.
type ChannelCreatedData struct {
	Channel types.Channel `json:"channel"`
}

// ChannelDeletedData is the payload for EventChannelDeleted.
type ChannelDeletedData struct {
	ChannelID string `json:"channelID"`
}

// MemberJoinedData is the payload for EventMemberJoined.
type MemberJoinedData struct {
	ChannelID string `json:"channelID"`
	EntityID  string `json:"entityID"`
}

// MemberLeftData is the payload for EventMemberLeft.
type MemberLeftData struct {
	ChannelID string `json:"channelID"`
	EntityID  string `json:"entityID"`
}

// MessagePostedData is the payload for EventMessagePosted. This is the
// single event a PostMessage call ever produces — spec §4.6 forbids any
// other path producing it.
type MessagePostedData struct {
	Message types.Message `json:"message"`
}

// AgentSpawnedData is the payload for EventAgentSpawned.
type AgentSpawnedData struct {
	Agent types.Agent `json:"agent"`
}

// AgentDespawnedData is the payload for EventAgentDespawned.
type AgentDespawnedData struct {
	AgentID string `json:"agentID"`
}

// AgentStatusChangedData is the payload for EventAgentStatusChanged.
type AgentStatusChangedData struct {
	AgentID string            `json:"agentID"`
	Status  types.AgentStatus `json:"status"`
}

// AgentEmotionalStateUpdatedData is the payload for
// EventAgentEmotionalStateUpdated.
type AgentEmotionalStateUpdatedData struct {
	AgentID string                `json:"agentID"`
	State   types.EmotionalState `json:"state"`
}

// AgentPersonaUpdatedData is the payload for EventAgentPersonaUpdated.
type AgentPersonaUpdatedData struct {
	AgentID string        `json:"agentID"`
	Persona types.Persona `json:"persona"`
}

// TurnStartedData is the payload for EventTurnStarted.
type TurnStartedData struct {
	AgentID          string `json:"agentID"`
	ConversationID   string `json:"conversationID"`
	TriggerMessageID string `json:"triggerMessageID"`
}

// TurnCompletedData is the payload for EventTurnCompleted.
type TurnCompletedData struct {
	AgentID        string  `json:"agentID"`
	ConversationID string  `json:"conversationID"`
	ReplyMessageID *string `json:"replyMessageID,omitempty"`
}

// TurnFailedData is the payload for EventTurnFailed.
type TurnFailedData struct {
	AgentID        string `json:"agentID"`
	ConversationID string `json:"conversationID"`
	Kind           string `json:"kind"`
	Reason         string `json:"reason"`
}
