package types

import "time"

// EventType is drawn from the closed enumeration in spec §4.1.
type EventType string

const (
	EventChannelCreated             EventType = "ChannelCreated"
	EventChannelDeleted             EventType = "ChannelDeleted"
	EventMemberJoined                EventType = "MemberJoined"
	EventMemberLeft                  EventType = "MemberLeft"
	EventMessagePosted                EventType = "MessagePosted"
	EventAgentSpawned                 EventType = "AgentSpawned"
	EventAgentDespawned               EventType = "AgentDespawned"
	EventAgentStatusChanged           EventType = "AgentStatusChanged"
	EventAgentEmotionalStateUpdated   EventType = "AgentEmotionalStateUpdated"
	EventAgentPersonaUpdated          EventType = "AgentPersonaUpdated"
	EventTurnStarted                  EventType = "TurnStarted"
	EventTurnCompleted                EventType = "TurnCompleted"
	EventTurnFailed                   EventType = "TurnFailed"
)

// Event is the envelope published on the Event Bus and mirrored to
// external push subscribers per spec §6. Payload holds one of the
// *Data structs in package event; it is typed as any here so pkg/types has
// no dependency on internal/event.
type Event struct {
	EventID   string    `json:"eventID"`
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}
