package toolkit

import (
	"context"
	"encoding/json"
	"fmt"

	einotool "github.com/cloudwego/eino/components/tool"

	"github.com/gemini-legion/legion/internal/channel"
	"github.com/gemini-legion/legion/pkg/types"
)

const sendChannelMessageDescription = `Posts a message to a channel on behalf of the calling agent.

This is the only way an agent may speak: it must never be bypassed by
publishing an event directly. The message is attributed to the agent
invoking this tool and appears to every other member of the channel.

Usage:
- channelID is required and must name a channel the agent is a member of
- content is the message text
- Posting to a private or DM channel the agent does not belong to fails`

// SendChannelMessageTool posts a message through the Channel Service,
// the single producer of MessagePosted. It is the primary tool an agent
// persona is bound to, replacing the teacher's filesystem-oriented
// built-ins as the default way an agent acts.
type SendChannelMessageTool struct {
	channels *channel.Service
}

// SendChannelMessageInput represents the input for the tool.
type SendChannelMessageInput struct {
	ChannelID string `json:"channelID"`
	Content   string `json:"content"`
}

// NewSendChannelMessageTool creates the send_channel_message tool.
// channels may be nil only in tests that never execute it.
func NewSendChannelMessageTool(channels *channel.Service) *SendChannelMessageTool {
	return &SendChannelMessageTool{channels: channels}
}

func (t *SendChannelMessageTool) ID() string          { return "send_channel_message" }
func (t *SendChannelMessageTool) Description() string { return sendChannelMessageDescription }

func (t *SendChannelMessageTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"channelID": {
				"type": "string",
				"description": "The channel to post to"
			},
			"content": {
				"type": "string",
				"description": "The message text"
			}
		},
		"required": ["channelID", "content"]
	}`)
}

func (t *SendChannelMessageTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *Context) (*Result, error) {
	if t.channels == nil {
		return nil, fmt.Errorf("send_channel_message: no channel service configured")
	}

	var params SendChannelMessageInput
	if err := json.Unmarshal(input, &params); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if params.ChannelID == "" {
		return nil, fmt.Errorf("channelID is required")
	}

	agentID := ""
	if toolCtx != nil {
		agentID = toolCtx.AgentID
	}

	msg, err := t.channels.PostMessage(ctx, params.ChannelID, agentID, types.SenderAgent, params.Content, types.MessageChat, nil)
	if err != nil {
		return nil, err
	}

	if toolCtx != nil {
		toolCtx.SetMetadata("send_channel_message", map[string]any{
			"channelID": params.ChannelID,
			"messageID": msg.MessageID,
		})
	}

	return &Result{
		Title:  fmt.Sprintf("Posted to %s", params.ChannelID),
		Output: fmt.Sprintf("Message %s posted to channel %s", msg.MessageID, params.ChannelID),
		Metadata: map[string]any{
			"messageID": msg.MessageID,
			"channelID": params.ChannelID,
		},
	}, nil
}

func (t *SendChannelMessageTool) EinoTool() einotool.InvokableTool {
	return &einoToolWrapper{tool: t}
}
