package types

import "time"

// ChannelType determines membership and authorization rules for a channel.
type ChannelType string

const (
	ChannelPublic  ChannelType = "public"
	ChannelPrivate ChannelType = "private"
	ChannelDM      ChannelType = "dm"
)

// Channel is a named message-routing room with typed membership. The
// Channel Service is the sole owner; a dm channel always has exactly two
// members.
type Channel struct {
	ChannelID   string      `json:"channelID"`
	Type        ChannelType `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Members     []string    `json:"members"`
	CreatedAt   time.Time   `json:"createdAt"`
	CreatedBy   string      `json:"createdBy"`
}

// HasMember reports whether entityID is a current member of the channel.
func (c *Channel) HasMember(entityID string) bool {
	for _, m := range c.Members {
		if m == entityID {
			return true
		}
	}
	return false
}

// SenderKind distinguishes who originated a Message.
type SenderKind string

const (
	SenderUser   SenderKind = "user"
	SenderAgent  SenderKind = "agent"
	SenderSystem SenderKind = "system"
)

// MessageKind classifies a Message's role in the conversation.
type MessageKind string

const (
	MessageChat   MessageKind = "chat"
	MessageSystem MessageKind = "system"
	MessageTask   MessageKind = "task"
	MessageStatus MessageKind = "status"
)

// Message is an immutable record posted to a channel. MessageID is a UUID
// assigned once by Channel Service.PostMessage and is stable across every
// downstream emission (event bus, REST history, agent tool input).
type Message struct {
	MessageID  string         `json:"messageID"`
	ChannelID  string         `json:"channelID"`
	SenderID   string         `json:"senderID"`
	SenderKind SenderKind     `json:"senderKind"`
	Content    string         `json:"content"`
	Timestamp  time.Time      `json:"timestamp"`
	Kind       MessageKind    `json:"kind"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}
