// Package agentruntime implements the Agent Runtime (C5): it wraps each
// spawned agent as an LLMInvoker that turns (session, new message, cues)
// into a stream of turn events, enforcing instruction templating, tool
// binding via persona.allowed_tools, the MAX_TOOL_DEPTH bound, and the
// global MAX_CONCURRENT_INVOCATIONS cap.
//
// Grounded on the teacher's session.Processor.runLoop/buildCompletionRequest/
// executeToolCalls trio (internal/session/loop.go, tools.go): the retry
// backoff, completion-request assembly, and tool-call loop shapes are kept,
// generalized from "one coding session" to "one (agent, conversation) turn"
// and from a single provider to the configured fallback chain.
package agentruntime

import (
	"context"
	"time"
)

// State is the lifecycle phase of a single invocation, independent of the
// agent's own AgentStatus (types.AgentStatus).
type State string

const (
	StateIdle        State = "Idle"
	StatePreparing   State = "Preparing"
	StateCalling     State = "Calling"
	StateToolPending State = "ToolPending"
	StateFinalizing  State = "Finalizing"
	StateDone        State = "Done"
	StateFailed      State = "Failed"
	StateCancelled   State = "Cancelled"
)

// EventKind tags a TurnEvent's payload.
type EventKind string

const (
	EventPartialText       EventKind = "partial_text"
	EventToolCallRequested EventKind = "tool_call_requested"
	EventToolResult        EventKind = "tool_result"
	EventFinalText         EventKind = "final_text"
	EventFailed            EventKind = "failed"
)

// ToolCall describes a tool invocation the model requested.
type ToolCall struct {
	CallID string
	Name   string
	Args   map[string]any
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	CallID string
	Output string
	Err    error
}

// TurnEvent is one item of the stream Invoke returns. The stream yields
// zero or more PartialText, any number of ToolCallRequested/ToolResult, and
// exactly one terminal event: FinalText or Failed (spec §4.5).
type TurnEvent struct {
	Kind       EventKind
	State      State
	Text       string
	ToolCall   *ToolCall
	ToolResult *ToolResult
	Err        error
	At         time.Time
}

// InvokeRequest carries the per-turn inputs the Orchestrator assembles
// before calling Invoke: the new message plus the cues the Persona and
// Memory engines composed for this turn.
type InvokeRequest struct {
	AgentID        string
	ConversationID string
	NewMessage     string
	EmotionalCue   string
	HistoryCue     string
}

// LLMInvoker is the contract the Orchestrator drives each turn through.
// invoke(agent_id, conversation_id, new_message, emotional_cue,
// history_cue) -> AsyncEventStream<TurnEvent> (spec §4.5).
type LLMInvoker interface {
	Invoke(ctx context.Context, req InvokeRequest) (<-chan TurnEvent, error)
}
