// Package channel implements the Channel Service (C6): channel lifecycle,
// membership, and message admission. PostMessage is the sole producer of
// MessagePosted events (spec §4.6, §9).
package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/gemini-legion/legion/internal/event"
	"github.com/gemini-legion/legion/internal/legionerr"
	"github.com/gemini-legion/legion/internal/storage"
	"github.com/gemini-legion/legion/pkg/types"
)

// Service owns Channel and Message records exclusively (spec §3 ownership
// table). No other component may mutate them or publish MessagePosted.
type Service struct {
	channels storage.Repository[types.Channel]
	messages storage.Repository[types.Message]
	bus      event.Bus

	mu           sync.Mutex          // guards channelOrder, serializes membership/create/delete
	channelOrder map[string][]string // channelID -> ordered message ids, newest last
}

// New constructs a Channel Service over the given repositories and bus.
func New(channels storage.Repository[types.Channel], messages storage.Repository[types.Message], bus event.Bus) *Service {
	return &Service{
		channels:     channels,
		messages:     messages,
		bus:          bus,
		channelOrder: make(map[string][]string),
	}
}

// ChannelSpec is the create_channel input (spec §4.6).
type ChannelSpec struct {
	Type        types.ChannelType
	Name        string
	Description string
	Members     []string
	CreatedBy   string
}

// CreateChannel validates spec and creates the channel, publishing
// ChannelCreated.
func (s *Service) CreateChannel(ctx context.Context, spec ChannelSpec) (types.Channel, error) {
	if spec.Name == "" {
		return types.Channel{}, legionerr.New(legionerr.ValidationFailed, "CreateChannel", fmt.Errorf("name is required"))
	}
	if spec.Type == types.ChannelDM && len(spec.Members) != 2 {
		return types.Channel{}, legionerr.New(legionerr.ValidationFailed, "CreateChannel", fmt.Errorf("dm channels require exactly two members, got %d", len(spec.Members)))
	}

	ch := types.Channel{
		ChannelID:   ulid.Make().String(),
		Type:        spec.Type,
		Name:        spec.Name,
		Description: spec.Description,
		Members:     append([]string{}, spec.Members...),
		CreatedAt:   time.Now().UTC(),
		CreatedBy:   spec.CreatedBy,
	}

	if err := s.channels.Put(ctx, ch.ChannelID, ch); err != nil {
		return types.Channel{}, legionerr.New(legionerr.Internal, "CreateChannel", err)
	}

	s.mu.Lock()
	s.channelOrder[ch.ChannelID] = nil
	s.mu.Unlock()

	s.bus.Publish(ctx, types.Event{
		Type:    types.EventChannelCreated,
		Payload: event.ChannelCreatedData{Channel: ch},
		Source:  "channel",
	})
	return ch, nil
}

// DeleteChannel removes a channel and publishes ChannelDeleted.
func (s *Service) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := s.channels.Get(ctx, channelID); err != nil {
		return err
	}
	if err := s.channels.Delete(ctx, channelID); err != nil {
		return legionerr.New(legionerr.Internal, "DeleteChannel", err)
	}

	s.mu.Lock()
	delete(s.channelOrder, channelID)
	s.mu.Unlock()

	s.bus.Publish(ctx, types.Event{
		Type:    types.EventChannelDeleted,
		Payload: event.ChannelDeletedData{ChannelID: channelID},
		Source:  "channel",
	})
	return nil
}

// GetChannel fetches a channel by id.
func (s *Service) GetChannel(ctx context.Context, channelID string) (types.Channel, error) {
	return s.channels.Get(ctx, channelID)
}

// ListChannels returns every known channel.
func (s *Service) ListChannels(ctx context.Context) ([]types.Channel, error) {
	return s.channels.List(ctx)
}

// AddMember adds entityID to the channel's membership and publishes
// MemberJoined.
func (s *Service) AddMember(ctx context.Context, channelID, entityID string) error {
	ch, err := s.channels.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.HasMember(entityID) {
		return nil
	}
	ch.Members = append(ch.Members, entityID)
	if ch.Type == types.ChannelDM && len(ch.Members) > 2 {
		return legionerr.New(legionerr.ValidationFailed, "AddMember", fmt.Errorf("dm channels cannot exceed two members"))
	}
	if err := s.channels.Put(ctx, channelID, ch); err != nil {
		return legionerr.New(legionerr.Internal, "AddMember", err)
	}

	s.bus.Publish(ctx, types.Event{
		Type:    types.EventMemberJoined,
		Payload: event.MemberJoinedData{ChannelID: channelID, EntityID: entityID},
		Source:  "channel",
	})
	return nil
}

// RemoveMember removes entityID from the channel's membership and publishes
// MemberLeft.
func (s *Service) RemoveMember(ctx context.Context, channelID, entityID string) error {
	ch, err := s.channels.Get(ctx, channelID)
	if err != nil {
		return err
	}
	out := ch.Members[:0]
	for _, m := range ch.Members {
		if m != entityID {
			out = append(out, m)
		}
	}
	ch.Members = out
	if err := s.channels.Put(ctx, channelID, ch); err != nil {
		return legionerr.New(legionerr.Internal, "RemoveMember", err)
	}

	s.bus.Publish(ctx, types.Event{
		Type:    types.EventMemberLeft,
		Payload: event.MemberLeftData{ChannelID: channelID, EntityID: entityID},
		Source:  "channel",
	})
	return nil
}

// PostMessage is the only path that produces a Message. It assigns a fresh
// UUID message_id, persists, and publishes exactly one MessagePosted —
// spec §4.6's single-source-of-truth rule. sender_kind=system bypasses
// membership; every other sender must be a member of private/dm channels.
func (s *Service) PostMessage(ctx context.Context, channelID, senderID string, senderKind types.SenderKind, content string, kind types.MessageKind, metadata map[string]any) (types.Message, error) {
	ch, err := s.channels.Get(ctx, channelID)
	if err != nil {
		return types.Message{}, err
	}

	if senderKind != types.SenderSystem && (ch.Type == types.ChannelPrivate || ch.Type == types.ChannelDM) {
		if !ch.HasMember(senderID) {
			return types.Message{}, legionerr.New(legionerr.NotAuthorized, "PostMessage",
				fmt.Errorf("%s is not a member of channel %s", senderID, channelID))
		}
	}

	if kind == "" {
		kind = types.MessageChat
	}
	msg := types.Message{
		MessageID:  uuid.NewString(),
		ChannelID:  channelID,
		SenderID:   senderID,
		SenderKind: senderKind,
		Content:    content,
		Timestamp:  time.Now().UTC(),
		Kind:       kind,
		Metadata:   metadata,
	}

	if err := s.messages.Put(ctx, msg.MessageID, msg); err != nil {
		return types.Message{}, legionerr.New(legionerr.Internal, "PostMessage", err)
	}

	s.mu.Lock()
	s.channelOrder[channelID] = append(s.channelOrder[channelID], msg.MessageID)
	s.mu.Unlock()

	s.bus.Publish(ctx, types.Event{
		Type:    types.EventMessagePosted,
		Payload: event.MessagePostedData{Message: msg},
		Source:  "channel",
	})
	return msg, nil
}

// ListMessages returns up to limit messages posted to channelID before the
// given message id (exclusive), in timestamp order, newest last truncated
// to the window — i.e. reverse-chronological pagination over a
// chronological store. A zero limit means "no limit".
func (s *Service) ListMessages(ctx context.Context, channelID string, before string, limit int) ([]types.Message, error) {
	s.mu.Lock()
	order := append([]string{}, s.channelOrder[channelID]...)
	s.mu.Unlock()

	if before != "" {
		for i, id := range order {
			if id == before {
				order = order[:i]
				break
			}
		}
	}
	if limit > 0 && len(order) > limit {
		order = order[len(order)-limit:]
	}

	out := make([]types.Message, 0, len(order))
	for _, id := range order {
		m, err := s.messages.Get(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
