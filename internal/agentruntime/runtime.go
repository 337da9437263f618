package agentruntime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/semaphore"

	"github.com/gemini-legion/legion/internal/legionerr"
	"github.com/gemini-legion/legion/internal/persona"
	"github.com/gemini-legion/legion/internal/provider"
	"github.com/gemini-legion/legion/internal/session"
	"github.com/gemini-legion/legion/internal/toolkit"
	"github.com/gemini-legion/legion/pkg/types"
)

const (
	// RetryBaseInterval is the first backoff interval after a ModelTransient
	// error (spec.md §9's retry schedule: base 500ms / factor 2 / cap 5 tries).
	RetryBaseInterval = 500 * time.Millisecond
	// RetryMultiplier is the exponential backoff factor.
	RetryMultiplier = 2.0
	// RetryMaxAttempts caps the number of attempts (the first call plus its
	// retries) against one provider before the Invoker falls through to the
	// next in the fallback chain.
	RetryMaxAttempts = 5

	// DefaultMaxToolDepth bounds the number of tool-call round-trips within
	// a single invocation when the caller doesn't override it.
	DefaultMaxToolDepth = 5
)

// Invoker is the default LLMInvoker (C5): it generalizes the teacher's
// session.Processor.runLoop/buildCompletionRequest/executeToolCalls trio
// from "one coding session" into "one (agent, conversation) turn", adds the
// explicit invocation state machine, and bounds concurrency with a global
// semaphore instead of the teacher's one-session-at-a-time model.
type Invoker struct {
	sessions  *session.Store
	personas  *persona.Engine
	providers *provider.Registry
	tools     *toolkit.Registry

	sem          *semaphore.Weighted
	maxToolDepth int
	llmTimeout   time.Duration
}

var _ LLMInvoker = (*Invoker)(nil)

// Config carries the Agent Runtime's tunables, sourced from types.Config.
type Config struct {
	MaxConcurrentInvocations int
	MaxToolDepth             int
	LLMTimeoutSeconds        int
}

// New constructs an Invoker. sessions/personas/providers/tools are the
// components the runtime composes on every turn; it owns none of them.
func New(sessions *session.Store, personas *persona.Engine, providers *provider.Registry, tools *toolkit.Registry, cfg Config) *Invoker {
	maxConcurrent := cfg.MaxConcurrentInvocations
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	maxToolDepth := cfg.MaxToolDepth
	if maxToolDepth <= 0 {
		maxToolDepth = DefaultMaxToolDepth
	}
	timeout := time.Duration(cfg.LLMTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Invoker{
		sessions:     sessions,
		personas:     personas,
		providers:    providers,
		tools:        tools,
		sem:          semaphore.NewWeighted(int64(maxConcurrent)),
		maxToolDepth: maxToolDepth,
		llmTimeout:   timeout,
	}
}

// newRetryBackoff mirrors the teacher's cenkalti/backoff jittered
// exponential retry (session/loop.go's newRetryBackoff), reparametrized to
// the spec's 500ms base / factor 2 / cap 5 tries.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryBaseInterval
	b.Multiplier = RetryMultiplier
	b.RandomizationFactor = 0.5
	b.MaxInterval = RetryBaseInterval * time.Duration(1<<uint(RetryMaxAttempts))
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, RetryMaxAttempts-1), ctx)
}

// Invoke acquires a MAX_CONCURRENT_INVOCATIONS slot, prepares the prompt and
// tool bindings, and runs the agentic loop in a goroutine, streaming
// TurnEvents back on the returned channel. The channel is always closed;
// its last event is exactly one of EventFinalText or EventFailed.
func (inv *Invoker) Invoke(ctx context.Context, req InvokeRequest) (<-chan TurnEvent, error) {
	if err := inv.sem.Acquire(ctx, 1); err != nil {
		return nil, legionerr.New(legionerr.Cancelled, "Invoker.Invoke", err)
	}

	events := make(chan TurnEvent, 8)
	go func() {
		defer inv.sem.Release(1)
		defer close(events)
		inv.run(ctx, req, events)
	}()
	return events, nil
}

// run executes the Preparing -> Calling -> (ToolPending <-> Calling)* ->
// Finalizing -> Done|Failed|Cancelled state machine for one invocation.
func (inv *Invoker) run(ctx context.Context, req InvokeRequest, events chan<- TurnEvent) {
	state := StatePreparing

	agent, err := inv.personas.Get(ctx, req.AgentID)
	if err != nil {
		inv.fail(events, err)
		return
	}

	key := types.SessionKey{AgentID: req.AgentID, ConversationID: req.ConversationID}
	sess, err := inv.sessions.Load(ctx, key)
	if err != nil {
		inv.fail(events, err)
		return
	}

	providerID, modelID := provider.ParseModelString(agent.Persona.ModelIdentifier)
	prov, model, err := inv.resolveModel(providerID, modelID)
	if err != nil {
		inv.fail(events, err)
		return
	}

	toolSet := inv.tools.Subset(agent.Persona.AllowedTools)

	instruction := instructionTemplate(
		personaInstruction(agent.Persona.Name, agent.Persona.BasePersonality, agent.Persona.Quirks, agent.Persona.Catchphrases, agent.Persona.ExpertiseTags),
		req.EmotionalCue,
		req.HistoryCue,
	)

	sess, err = inv.sessions.AppendHistory(ctx, key, types.HistoryEntry{
		Role:  "user",
		Parts: []types.Part{{Type: "text", Text: req.NewMessage}},
	})
	if err != nil {
		inv.fail(events, err)
		return
	}

	state = StateCalling
	depth := 0
	var finalText string

	for {
		select {
		case <-ctx.Done():
			events <- TurnEvent{Kind: EventFailed, State: StateCancelled, Err: legionerr.New(legionerr.Cancelled, "Invoker.run", ctx.Err()), At: time.Now()}
			return
		default:
		}

		if depth > inv.maxToolDepth {
			inv.fail(events, legionerr.New(legionerr.ToolFailed, "Invoker.run", fmt.Errorf("max tool depth %d exceeded", inv.maxToolDepth)))
			return
		}

		messages := buildMessages(instruction, sess.History)
		toolInfos, err := toolSet.ToolInfos()
		if err != nil {
			inv.fail(events, err)
			return
		}

		maxTokens := model.MaxOutputTokens
		if maxTokens <= 0 {
			maxTokens = 8192
		}
		compReq := &provider.CompletionRequest{
			Model:       model.ID,
			Messages:    messages,
			Tools:       toolInfos,
			MaxTokens:   maxTokens,
			Temperature: agent.Persona.Temperature,
		}

		callCtx, cancel := context.WithTimeout(ctx, inv.llmTimeout)
		msg, finishReason, err := inv.callWithRetry(callCtx, prov, providerID, compReq, events)
		cancel()
		if err != nil {
			inv.fail(events, err)
			return
		}

		if msg.Content != "" {
			events <- TurnEvent{Kind: EventPartialText, State: state, Text: msg.Content, At: time.Now()}
		}

		if len(msg.ToolCalls) == 0 {
			finalText = msg.Content
			sess, err = inv.sessions.AppendHistory(ctx, key, types.HistoryEntry{
				Role:  "agent",
				Parts: []types.Part{{Type: "text", Text: finalText}},
			})
			if err != nil {
				inv.fail(events, err)
				return
			}
			break
		}

		if depth >= inv.maxToolDepth {
			inv.fail(events, legionerr.New(legionerr.ToolFailed, "Invoker.run", fmt.Errorf("max tool depth %d exceeded", inv.maxToolDepth)))
			return
		}

		state = StateToolPending
		toolParts := make([]types.Part, 0, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			events <- TurnEvent{
				Kind:     EventToolCallRequested,
				State:    state,
				ToolCall: &ToolCall{CallID: tc.ID, Name: tc.Function.Name, Args: args},
				At:       time.Now(),
			}
			toolParts = append(toolParts, types.Part{
				Type:     "tool_call",
				ToolName: tc.Function.Name,
				ToolArgs: args,
				ToolID:   tc.ID,
			})

			output, execErr := inv.executeTool(ctx, toolSet, req, tc)
			events <- TurnEvent{
				Kind:       EventToolResult,
				State:      state,
				ToolResult: &ToolResult{CallID: tc.ID, Output: output, Err: execErr},
				At:         time.Now(),
			}

			resultText := output
			if execErr != nil {
				resultText = "Error: " + execErr.Error()
			}
			sess, err = inv.sessions.AppendHistory(ctx, key, types.HistoryEntry{
				Role:  "tool",
				Parts: []types.Part{{Type: "tool_result", Text: resultText, ToolID: tc.ID, ToolName: tc.Function.Name}},
			})
			if err != nil {
				inv.fail(events, err)
				return
			}
		}

		sess, err = inv.sessions.AppendHistory(ctx, key, types.HistoryEntry{Role: "agent", Parts: toolParts})
		if err != nil {
			inv.fail(events, err)
			return
		}

		// finishReason is tracked per call for future use (e.g. surfacing
		// length-truncation to the Orchestrator); the loop itself only acts
		// on the presence of tool calls.
		_ = finishReason
		state = StateCalling
		depth++
	}

	state = StateFinalizing
	events <- TurnEvent{Kind: EventFinalText, State: state, Text: finalText, At: time.Now()}
}

// fail emits the terminal EventFailed event. Whatever state the invocation
// was in, a failure always transitions it to StateFailed.
func (inv *Invoker) fail(events chan<- TurnEvent, err error) {
	events <- TurnEvent{Kind: EventFailed, State: StateFailed, Err: err, At: time.Now()}
}

// resolveModel looks up the requested provider/model, falling back to the
// registry's default model if the persona names none.
func (inv *Invoker) resolveModel(providerID, modelID string) (provider.Provider, *types.Model, error) {
	if providerID == "" {
		model, err := inv.providers.DefaultModel()
		if err != nil {
			return nil, nil, legionerr.New(legionerr.ModelFatal, "Invoker.resolveModel", err)
		}
		prov, err := inv.providers.Get(model.ProviderID)
		if err != nil {
			return nil, nil, legionerr.New(legionerr.ModelFatal, "Invoker.resolveModel", err)
		}
		return prov, model, nil
	}
	prov, err := inv.providers.Get(providerID)
	if err != nil {
		return nil, nil, legionerr.New(legionerr.ModelFatal, "Invoker.resolveModel", err)
	}
	model, err := inv.providers.GetModel(providerID, modelID)
	if err != nil {
		return nil, nil, legionerr.New(legionerr.ModelFatal, "Invoker.resolveModel", err)
	}
	return prov, model, nil
}

// callWithRetry calls CreateCompletion and drains the stream, retrying with
// jittered exponential backoff on transient failures and, once exhausted,
// falling across providers.FallbackChain(providerID) (spec §4.5's
// provider-fallback-on-ModelTransient, DESIGN.md supplement).
func (inv *Invoker) callWithRetry(ctx context.Context, prov provider.Provider, providerID string, req *provider.CompletionRequest, events chan<- TurnEvent) (*schema.Message, string, error) {
	candidates := append([]string{providerID}, inv.providers.FallbackChain(providerID)...)

	var lastErr error
	for i, candidateID := range candidates {
		candidateProv := prov
		if i > 0 {
			p, err := inv.providers.Get(candidateID)
			if err != nil {
				continue
			}
			candidateProv = p
			req.Model = candidateID
		}

		retryBackoff := newRetryBackoff(ctx)
		for {
			stream, err := candidateProv.CreateCompletion(ctx, req)
			if err != nil {
				lastErr = err
				next := retryBackoff.NextBackOff()
				if next == backoff.Stop {
					break
				}
				select {
				case <-time.After(next):
					continue
				case <-ctx.Done():
					return nil, "", legionerr.New(legionerr.Cancelled, "Invoker.callWithRetry", ctx.Err())
				}
			}

			msg, finishReason, drainErr := drainStream(stream)
			stream.Close()
			if drainErr != nil {
				lastErr = drainErr
				next := retryBackoff.NextBackOff()
				if next == backoff.Stop {
					break
				}
				select {
				case <-time.After(next):
					continue
				case <-ctx.Done():
					return nil, "", legionerr.New(legionerr.Cancelled, "Invoker.callWithRetry", ctx.Err())
				}
			}
			return msg, finishReason, nil
		}
	}

	return nil, "", legionerr.New(legionerr.ModelTransient, "Invoker.callWithRetry", lastErr)
}

// drainStream accumulates a completion stream's chunks into a single
// message, the way the teacher's processStream accumulates text/tool-call
// deltas before deciding the finish reason.
func drainStream(stream *provider.CompletionStream) (*schema.Message, string, error) {
	var content string
	toolCalls := map[string]*schema.ToolCall{}
	var order []string
	finishReason := ""

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", err
		}
		content += chunk.Content
		for _, tc := range chunk.ToolCalls {
			if _, ok := toolCalls[tc.ID]; !ok {
				order = append(order, tc.ID)
				cp := tc
				toolCalls[tc.ID] = &cp
			} else {
				toolCalls[tc.ID].Function.Arguments += tc.Function.Arguments
			}
		}
		if chunk.ResponseMeta != nil && chunk.ResponseMeta.FinishReason != "" {
			finishReason = chunk.ResponseMeta.FinishReason
		}
	}

	calls := make([]schema.ToolCall, 0, len(order))
	for _, id := range order {
		calls = append(calls, *toolCalls[id])
	}

	return &schema.Message{
		Role:      schema.Assistant,
		Content:   content,
		ToolCalls: calls,
	}, finishReason, nil
}

// executeTool runs a single model-requested tool call through the bound
// Registry subset, attributing the call to req's agent/conversation.
func (inv *Invoker) executeTool(ctx context.Context, tools *toolkit.Registry, req InvokeRequest, tc schema.ToolCall) (string, error) {
	t, ok := tools.Get(tc.Function.Name)
	if !ok {
		return "", legionerr.New(legionerr.ToolFailed, "Invoker.executeTool", fmt.Errorf("tool not bound: %s", tc.Function.Name))
	}

	toolCtx := &toolkit.Context{
		AgentID:        req.AgentID,
		ConversationID: req.ConversationID,
		CallID:         tc.ID,
	}

	result, err := t.Execute(ctx, json.RawMessage(tc.Function.Arguments), toolCtx)
	if err != nil {
		return "", legionerr.New(legionerr.ToolFailed, "Invoker.executeTool", err)
	}
	return result.Output, nil
}

// buildMessages prepends the system instruction to the session's windowed
// history, converted to Eino format via provider.ConvertToEinoMessages.
func buildMessages(instruction string, history []types.HistoryEntry) []*schema.Message {
	messages := []*schema.Message{{Role: schema.System, Content: instruction}}
	messages = append(messages, provider.ConvertToEinoMessages(history)...)
	return messages
}
