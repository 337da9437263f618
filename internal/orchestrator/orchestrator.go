// Package orchestrator implements the Orchestrator (C7): it subscribes to
// MessagePosted, decides which agents respond, drives each responder's
// turn through the Agent Runtime, and posts the result back through the
// Channel Service.
//
// Grounded on the register-then-subscribe shape of the evoclaw
// Orchestrator (other_examples' internal-orchestrator-orchestrator.go):
// components are registered once at construction, then a background
// subscription drives dispatch for the life of the process.
package orchestrator

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"

	"github.com/gemini-legion/legion/internal/agentruntime"
	"github.com/gemini-legion/legion/internal/channel"
	"github.com/gemini-legion/legion/internal/event"
	"github.com/gemini-legion/legion/internal/legionerr"
	"github.com/gemini-legion/legion/internal/logging"
	"github.com/gemini-legion/legion/internal/memory"
	"github.com/gemini-legion/legion/internal/persona"
	"github.com/gemini-legion/legion/pkg/types"
)

// addressRE matches an "@name" addressing token in a channel message.
var addressRE = regexp.MustCompile(`@(\w[\w-]*)`)

// Config carries the Orchestrator's tunables (spec §6).
type Config struct {
	MaxRespondersPerMessage  int
	MaxConsecutiveAgentTurns int
	HistoryCueLimit          int
	AutoSubscribeDefaults    []string
}

// Orchestrator is the responder-selection and turn-dispatch loop (C7).
type Orchestrator struct {
	bus      event.Bus
	channels *channel.Service
	personas *persona.Engine
	memory   *memory.Engine
	invoker  agentruntime.LLMInvoker
	cfg      Config

	mu      sync.Mutex
	streaks map[string]int // channelID -> consecutive agent-turn streak

	turnMu  sync.Mutex
	turnSeq uint64
	turns   map[string]map[uint64]context.CancelFunc // agentID -> in-flight turn cancellations
}

// New constructs an Orchestrator over its collaborators. It does not start
// dispatching until Start is called.
func New(bus event.Bus, channels *channel.Service, personas *persona.Engine, mem *memory.Engine, invoker agentruntime.LLMInvoker, cfg Config) *Orchestrator {
	if cfg.MaxRespondersPerMessage <= 0 {
		cfg.MaxRespondersPerMessage = 8
	}
	if cfg.MaxConsecutiveAgentTurns <= 0 {
		cfg.MaxConsecutiveAgentTurns = 4
	}
	if cfg.HistoryCueLimit <= 0 {
		cfg.HistoryCueLimit = 5
	}
	return &Orchestrator{
		bus:      bus,
		channels: channels,
		personas: personas,
		memory:   mem,
		invoker:  invoker,
		cfg:      cfg,
		streaks:  make(map[string]int),
		turns:    make(map[string]map[uint64]context.CancelFunc),
	}
}

// Start subscribes to MessagePosted, ChannelCreated and AgentDespawned.
// Handlers run on the bus's own per-subscription goroutine, so Start returns
// immediately; the returned func unsubscribes all three.
func (o *Orchestrator) Start(ctx context.Context) func() {
	unsubMsg := o.bus.Subscribe(types.EventMessagePosted, func(e types.Event) {
		data, ok := e.Payload.(event.MessagePostedData)
		if !ok {
			return
		}
		o.handleMessagePosted(ctx, data.Message)
	})
	unsubChan := o.bus.Subscribe(types.EventChannelCreated, func(e types.Event) {
		data, ok := e.Payload.(event.ChannelCreatedData)
		if !ok {
			return
		}
		o.applyAutoSubscribe(ctx, data.Channel)
	})
	unsubDespawn := o.bus.Subscribe(types.EventAgentDespawned, func(e types.Event) {
		data, ok := e.Payload.(event.AgentDespawnedData)
		if !ok {
			return
		}
		o.cancelTurns(data.AgentID)
	})
	return func() {
		unsubMsg()
		unsubChan()
		unsubDespawn()
	}
}

// cancelTurns aborts every in-flight turn for agentID (spec §5: "a despawn
// cancels all in-flight turns for the agent").
func (o *Orchestrator) cancelTurns(agentID string) {
	o.turnMu.Lock()
	cancels := o.turns[agentID]
	delete(o.turns, agentID)
	o.turnMu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// registerTurn tracks turnCancel under agentID until the returned func is
// called, so a later despawn can reach it.
func (o *Orchestrator) registerTurn(agentID string, turnCancel context.CancelFunc) func() {
	o.turnMu.Lock()
	o.turnSeq++
	id := o.turnSeq
	if o.turns[agentID] == nil {
		o.turns[agentID] = make(map[uint64]context.CancelFunc)
	}
	o.turns[agentID][id] = turnCancel
	o.turnMu.Unlock()
	return func() {
		o.turnMu.Lock()
		defer o.turnMu.Unlock()
		delete(o.turns[agentID], id)
	}
}

// applyAutoSubscribe joins every configured default agent to a newly
// created channel (spec §9's "auto-subscription is orchestrator policy,
// not hard-coded" open-question resolution).
func (o *Orchestrator) applyAutoSubscribe(ctx context.Context, ch types.Channel) {
	for _, agentID := range o.cfg.AutoSubscribeDefaults {
		if ch.HasMember(agentID) {
			continue
		}
		if err := o.channels.AddMember(ctx, ch.ChannelID, agentID); err != nil {
			logging.Warn().Err(err).Str("channelID", ch.ChannelID).Str("agentID", agentID).Msg("auto-subscribe failed")
		}
	}
}

// handleMessagePosted runs the five-stage responder pipeline (spec §4.7)
// and dispatches one turn per selected agent.
func (o *Orchestrator) handleMessagePosted(ctx context.Context, msg types.Message) {
	o.updateStreak(msg)

	ch, err := o.channels.GetChannel(ctx, msg.ChannelID)
	if err != nil {
		logging.Warn().Err(err).Str("channelID", msg.ChannelID).Msg("orchestrator: channel lookup failed")
		return
	}

	responders := o.selectResponders(ctx, ch, msg)
	for _, agentID := range responders {
		go o.runTurn(ctx, ch, msg, agentID)
	}
}

// selectResponders runs membership -> exclude-sender -> addressing filter
// -> cycle guard -> response budget, in that order (spec §4.7).
func (o *Orchestrator) selectResponders(ctx context.Context, ch types.Channel, msg types.Message) []string {
	// 1. channel members that are agents.
	var agentMembers []types.Agent
	for _, m := range ch.Members {
		agent, err := o.personas.Get(ctx, m)
		if err != nil || agent.Status != types.AgentStatusActive {
			continue
		}
		agentMembers = append(agentMembers, agent)
	}

	// 2. exclude the sender.
	candidates := agentMembers[:0]
	for _, a := range agentMembers {
		if a.AgentID != msg.SenderID {
			candidates = append(candidates, a)
		}
	}

	// 3. addressing filter.
	if addressed := addressedAgents(msg.Content, candidates); len(addressed) > 0 {
		candidates = addressed
	}

	// 4. cycle guard.
	if o.streakExceeded(msg.ChannelID) {
		return nil
	}

	// 5. response budget.
	if len(candidates) > o.cfg.MaxRespondersPerMessage {
		candidates = candidates[:o.cfg.MaxRespondersPerMessage]
	}

	ids := make([]string, 0, len(candidates))
	for _, a := range candidates {
		ids = append(ids, a.AgentID)
	}
	return ids
}

// addressedAgents returns the subset of candidates whose persona name
// fuzzy-matches an "@name" token in content. A match is accepted when the
// Levenshtein distance between the lowercased token and name is small
// relative to the name's length, so "@alise" still resolves to "alice".
func addressedAgents(content string, candidates []types.Agent) []types.Agent {
	tokens := addressRE.FindAllStringSubmatch(content, -1)
	if len(tokens) == 0 {
		return nil
	}
	var matched []types.Agent
	for _, tok := range tokens {
		needle := strings.ToLower(tok[1])
		for _, a := range candidates {
			name := strings.ToLower(a.Persona.Name)
			threshold := len(name)/3 + 1
			if levenshtein.ComputeDistance(needle, name) <= threshold {
				matched = append(matched, a)
			}
		}
	}
	return matched
}

// updateStreak applies the cycle guard's bookkeeping: any non-agent
// message breaks the channel's consecutive-agent-turn streak; an agent
// message extends it. The streak is tracked per channel rather than per
// agent so that two agents replying to each other back-to-back (spec §8
// S3) is caught even though neither agent individually exceeds the bound.
func (o *Orchestrator) updateStreak(msg types.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if msg.SenderKind == types.SenderAgent {
		o.streaks[msg.ChannelID]++
	} else {
		o.streaks[msg.ChannelID] = 0
	}
}

func (o *Orchestrator) streakExceeded(channelID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.streaks[channelID] >= o.cfg.MaxConsecutiveAgentTurns
}

// runTurn drives one agent's turn to completion: compose cues, invoke the
// Agent Runtime, post the reply, and notify Persona/Memory of the outcome.
func (o *Orchestrator) runTurn(ctx context.Context, ch types.Channel, trigger types.Message, agentID string) {
	turnCtx, cancel := context.WithCancel(ctx)
	unregister := o.registerTurn(agentID, cancel)
	defer unregister()
	defer cancel()
	ctx = turnCtx

	o.bus.Publish(ctx, types.Event{
		Type: types.EventTurnStarted,
		Payload: event.TurnStartedData{
			AgentID:          agentID,
			ConversationID:   ch.ChannelID,
			TriggerMessageID: trigger.MessageID,
		},
		Source: "orchestrator",
	})

	emotionalCue, err := o.personas.ComposeEmotionalCue(ctx, agentID, trigger.SenderID)
	if err != nil {
		o.failTurn(ctx, agentID, ch.ChannelID, err)
		return
	}

	episodes, err := o.memory.ComposeHistoryCue(ctx, agentID, o.cfg.HistoryCueLimit)
	if err != nil {
		o.failTurn(ctx, agentID, ch.ChannelID, err)
		return
	}

	stream, err := o.invoker.Invoke(ctx, agentruntime.InvokeRequest{
		AgentID:        agentID,
		ConversationID: ch.ChannelID,
		NewMessage:     trigger.Content,
		EmotionalCue:   emotionalCue,
		HistoryCue:     formatHistoryCue(episodes),
	})
	if err != nil {
		o.failTurn(ctx, agentID, ch.ChannelID, err)
		return
	}

	var finalText string
	var turnErr error
	for ev := range stream {
		switch ev.Kind {
		case agentruntime.EventFinalText:
			finalText = ev.Text
		case agentruntime.EventFailed:
			turnErr = ev.Err
		}
	}

	if turnErr != nil {
		o.failTurn(ctx, agentID, ch.ChannelID, turnErr)
		return
	}

	var replyID *string
	if strings.TrimSpace(finalText) != "" {
		reply, err := o.channels.PostMessage(ctx, ch.ChannelID, agentID, types.SenderAgent, finalText, types.MessageChat, nil)
		if err != nil {
			logging.Warn().Err(err).Str("agentID", agentID).Str("channelID", ch.ChannelID).Msg("orchestrator: reply post failed")
		} else {
			replyID = &reply.MessageID
		}
	}

	o.bus.Publish(ctx, types.Event{
		Type: types.EventTurnCompleted,
		Payload: event.TurnCompletedData{
			AgentID:        agentID,
			ConversationID: ch.ChannelID,
			ReplyMessageID: replyID,
		},
		Source: "orchestrator",
	})

	if _, err := o.personas.ObserveTurn(ctx, agentID, persona.TurnObservation{AddresseeID: trigger.SenderID}); err != nil {
		logging.Warn().Err(err).Str("agentID", agentID).Msg("orchestrator: persona observe_turn failed")
	}
	importance := 0.3
	if strings.Contains(finalText, "!") {
		importance = 0.6
	}
	if err := o.memory.ObserveTurn(ctx, agentID, ch.ChannelID, finalText, importance); err != nil {
		logging.Warn().Err(err).Str("agentID", agentID).Msg("orchestrator: memory observe_turn failed")
	}
}

func (o *Orchestrator) failTurn(ctx context.Context, agentID, conversationID string, err error) {
	kind, _ := legionerr.As(err)
	o.bus.Publish(ctx, types.Event{
		Type: types.EventTurnFailed,
		Payload: event.TurnFailedData{
			AgentID:        agentID,
			ConversationID: conversationID,
			Kind:           string(kind),
			Reason:         err.Error(),
		},
		Source: "orchestrator",
	})
}

// formatHistoryCue renders composed episodes into the text the Agent
// Runtime splices into {{history_cue}} (spec.md §9's "session state in,
// prompt out" contract) — the Orchestrator's job since it is the only
// component that calls both Memory and the Agent Runtime for one turn.
func formatHistoryCue(episodes []memory.Episode) string {
	if len(episodes) == 0 {
		return ""
	}
	var b strings.Builder
	for i, ep := range episodes {
		if i > 0 {
			b.WriteString(" / ")
		}
		b.WriteString(ep.Content)
	}
	return b.String()
}
