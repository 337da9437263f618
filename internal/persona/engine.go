// Package persona implements the Persona & Emotional State Engine (C3):
// agent spawning, emotional cue composition, and bounded mood/opinion
// evolution from observed turns.
package persona

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gemini-legion/legion/internal/event"
	"github.com/gemini-legion/legion/internal/legionerr"
	"github.com/gemini-legion/legion/internal/storage"
	"github.com/gemini-legion/legion/pkg/types"
)

// Engine owns Agent records exclusively (spec §3 ownership table) —
// persona definition, emotional state, and spawn lifecycle.
type Engine struct {
	repo storage.Repository[types.Agent]
	bus  event.Bus

	moodDeltaCap    float64
	opinionDeltaCap float64

	// per-agent mutex, same idiom as session.Store's per-key lock: one
	// goroutine mutates a given agent's emotional state at a time.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a Persona Engine. moodDeltaCap and opinionDeltaCap bound
// the magnitude of any single observe_turn adjustment (spec §6
// mood_delta_cap / opinion_delta_cap).
func New(repo storage.Repository[types.Agent], bus event.Bus, moodDeltaCap, opinionDeltaCap float64) *Engine {
	return &Engine{
		repo:            repo,
		bus:             bus,
		moodDeltaCap:    moodDeltaCap,
		opinionDeltaCap: opinionDeltaCap,
		locks:           make(map[string]*sync.Mutex),
	}
}

func (e *Engine) lockFor(agentID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[agentID] = l
	}
	return l
}

// Spawn creates a new agent from persona, with a neutral starting
// emotional state, and publishes AgentSpawned.
func (e *Engine) Spawn(ctx context.Context, agentID string, p types.Persona) (types.Agent, error) {
	if p.Name == "" {
		return types.Agent{}, legionerr.New(legionerr.ValidationFailed, "Spawn", fmt.Errorf("persona name is required"))
	}
	now := time.Now().UTC()
	agent := types.Agent{
		AgentID: agentID,
		Persona: p,
		EmotionalState: types.EmotionalState{
			Mood:      types.Mood{},
			Energy:    0.7,
			Stress:    0.1,
			Opinions:  make(map[string]types.OpinionScore),
			Version:   0,
			LastUpdated: now,
		},
		Status:    types.AgentStatusActive,
		SpawnedAt: now,
	}
	if err := e.repo.Put(ctx, agentID, agent); err != nil {
		return types.Agent{}, legionerr.New(legionerr.Internal, "Spawn", err)
	}
	e.bus.Publish(ctx, types.Event{
		Type:    types.EventAgentSpawned,
		Payload: event.AgentSpawnedData{Agent: agent},
		Source:  "persona",
	})
	return agent, nil
}

// Despawn marks an agent despawned and publishes AgentDespawned.
func (e *Engine) Despawn(ctx context.Context, agentID string) error {
	lock := e.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	agent, err := e.repo.Get(ctx, agentID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	agent.Status = types.AgentStatusDespawned
	agent.DespawnedAt = &now
	if err := e.repo.Put(ctx, agentID, agent); err != nil {
		return legionerr.New(legionerr.Internal, "Despawn", err)
	}
	e.bus.Publish(ctx, types.Event{
		Type:    types.EventAgentDespawned,
		Payload: event.AgentDespawnedData{AgentID: agentID},
		Source:  "persona",
	})
	return nil
}

// Get fetches an agent by id.
func (e *Engine) Get(ctx context.Context, agentID string) (types.Agent, error) {
	return e.repo.Get(ctx, agentID)
}

// List returns every known agent.
func (e *Engine) List(ctx context.Context) ([]types.Agent, error) {
	return e.repo.List(ctx)
}

// ComposeEmotionalCue renders a deterministic, idempotent prompt fragment
// describing the agent's current mood/energy/stress/opinion-of-addressee
// state, for the Agent Runtime to splice into its system prompt. Adapted
// from the teacher's SystemPrompt.replaceVariables {{key}} substitution.
func (e *Engine) ComposeEmotionalCue(ctx context.Context, agentID string, addresseeID string) (string, error) {
	agent, err := e.repo.Get(ctx, agentID)
	if err != nil {
		return "", err
	}

	tmpl := "You are feeling {{mood_word}}. Your energy is {{energy_word}} and your stress is {{stress_word}}."
	vars := map[string]string{
		"mood_word":   moodWord(agent.EmotionalState.Mood),
		"energy_word": levelWord(agent.EmotionalState.Energy),
		"stress_word": levelWord(agent.EmotionalState.Stress),
	}
	cue := replaceVariables(tmpl, vars)

	if addresseeID != "" {
		if op, ok := agent.EmotionalState.Opinions[addresseeID]; ok {
			cue += " " + replaceVariables(
				"Toward {{who}}, you feel {{opinion_word}}.",
				map[string]string{"who": addresseeID, "opinion_word": opinionWord(op)},
			)
		}
	}
	return cue, nil
}

// replaceVariables substitutes {{key}} tokens, identical in shape to the
// teacher's SystemPrompt.replaceVariables.
func replaceVariables(prompt string, vars map[string]string) string {
	result := prompt
	for key, value := range vars {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}
	return result
}

func moodWord(m types.Mood) string {
	switch {
	case m.Valence > 0.3:
		return "upbeat"
	case m.Valence < -0.3:
		return "down"
	default:
		return "even-keeled"
	}
}

func levelWord(v float64) string {
	switch {
	case v > 0.66:
		return "high"
	case v < 0.33:
		return "low"
	default:
		return "moderate"
	}
}

func opinionWord(op types.OpinionScore) string {
	switch {
	case op.Affection > 30:
		return "warm"
	case op.Affection < -30:
		return "cold"
	default:
		return "neutral"
	}
}

// TurnObservation describes the outcome of a completed agent turn, used to
// nudge mood and the opinion of the addressed entity.
type TurnObservation struct {
	AddresseeID   string
	MoodDelta     types.Mood
	EnergyDelta   float64
	StressDelta   float64
	TrustDelta    float64
	RespectDelta  float64
	AffectionDelta float64
	NotableEvent  string
}

// ObserveTurn applies a bounded adjustment to an agent's emotional state
// following a completed turn, clamping every delta to the configured caps,
// bumping Version, and publishing AgentEmotionalStateUpdated.
func (e *Engine) ObserveTurn(ctx context.Context, agentID string, obs TurnObservation) (types.EmotionalState, error) {
	lock := e.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	agent, err := e.repo.Get(ctx, agentID)
	if err != nil {
		return types.EmotionalState{}, err
	}
	st := agent.EmotionalState

	st.Mood.Valence = clamp(st.Mood.Valence+e.cap(obs.MoodDelta.Valence), -1, 1)
	st.Mood.Arousal = clamp(st.Mood.Arousal+e.cap(obs.MoodDelta.Arousal), -1, 1)
	st.Mood.Dominance = clamp(st.Mood.Dominance+e.cap(obs.MoodDelta.Dominance), -1, 1)
	st.Mood.Curiosity = clamp(st.Mood.Curiosity+e.cap(obs.MoodDelta.Curiosity), -1, 1)
	st.Mood.Creativity = clamp(st.Mood.Creativity+e.cap(obs.MoodDelta.Creativity), -1, 1)
	st.Mood.Sociability = clamp(st.Mood.Sociability+e.cap(obs.MoodDelta.Sociability), -1, 1)
	st.Energy = clamp(st.Energy+e.cap(obs.EnergyDelta), 0, 1)
	st.Stress = clamp(st.Stress+e.cap(obs.StressDelta), 0, 1)

	if obs.AddresseeID != "" {
		if st.Opinions == nil {
			st.Opinions = make(map[string]types.OpinionScore)
		}
		op := st.Opinions[obs.AddresseeID]
		op.Trust = clamp(op.Trust+e.capOpinion(obs.TrustDelta), -100, 100)
		op.Respect = clamp(op.Respect+e.capOpinion(obs.RespectDelta), -100, 100)
		op.Affection = clamp(op.Affection+e.capOpinion(obs.AffectionDelta), -100, 100)
		op.InteractionCount++
		op.LastInteraction = time.Now().UTC()
		if obs.NotableEvent != "" {
			op.NotableEvents = append(op.NotableEvents, obs.NotableEvent)
		}
		st.Opinions[obs.AddresseeID] = op
	}

	st.Version++
	st.LastUpdated = time.Now().UTC()
	agent.EmotionalState = st

	if err := e.repo.Put(ctx, agentID, agent); err != nil {
		return types.EmotionalState{}, legionerr.New(legionerr.Internal, "ObserveTurn", err)
	}
	e.bus.Publish(ctx, types.Event{
		Type:    types.EventAgentEmotionalStateUpdated,
		Payload: event.AgentEmotionalStateUpdatedData{AgentID: agentID, State: st},
		Source:  "persona",
	})
	return st, nil
}

func (e *Engine) cap(delta float64) float64 {
	return clamp(delta, -e.moodDeltaCap, e.moodDeltaCap)
}

func (e *Engine) capOpinion(delta float64) float64 {
	return clamp(delta, -e.opinionDeltaCap, e.opinionDeltaCap)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// UpgradeLegacyOpinion converts a single scalar opinion (spec §9 open
// question: legacy numeric representation) into the structured
// OpinionScore, scaling the scalar equally into trust/respect/affection.
func UpgradeLegacyOpinion(scalar float64) types.OpinionScore {
	v := clamp(scalar, -100, 100)
	return types.OpinionScore{
		Trust:     v,
		Respect:   v,
		Affection: v,
	}
}

// UpdatePersona merges p's mutable fields (quirks, catchphrases, expertise
// tags, allowed tools) into an agent's persona and publishes
// AgentPersonaUpdated. Name, BasePersonality, ModelIdentifier, Temperature,
// and MaxTokens are the agent's identity and model binding (spec §3: Persona
// is "immutable per lifetime") — an attempt to change any of them is
// rejected rather than silently ignored.
func (e *Engine) UpdatePersona(ctx context.Context, agentID string, p types.Persona) (types.Agent, error) {
	lock := e.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	agent, err := e.repo.Get(ctx, agentID)
	if err != nil {
		return types.Agent{}, err
	}

	current := agent.Persona
	if p.Name != "" && p.Name != current.Name {
		return types.Agent{}, legionerr.New(legionerr.ValidationFailed, "UpdatePersona", fmt.Errorf("name is immutable"))
	}
	if p.BasePersonality != "" && p.BasePersonality != current.BasePersonality {
		return types.Agent{}, legionerr.New(legionerr.ValidationFailed, "UpdatePersona", fmt.Errorf("base_personality is immutable"))
	}
	if p.ModelIdentifier != "" && p.ModelIdentifier != current.ModelIdentifier {
		return types.Agent{}, legionerr.New(legionerr.ValidationFailed, "UpdatePersona", fmt.Errorf("model_identifier is immutable"))
	}
	if p.Temperature != 0 && p.Temperature != current.Temperature {
		return types.Agent{}, legionerr.New(legionerr.ValidationFailed, "UpdatePersona", fmt.Errorf("temperature is immutable"))
	}
	if p.MaxTokens != 0 && p.MaxTokens != current.MaxTokens {
		return types.Agent{}, legionerr.New(legionerr.ValidationFailed, "UpdatePersona", fmt.Errorf("max_tokens is immutable"))
	}

	updated := current
	if p.Quirks != nil {
		updated.Quirks = p.Quirks
	}
	if p.Catchphrases != nil {
		updated.Catchphrases = p.Catchphrases
	}
	if p.ExpertiseTags != nil {
		updated.ExpertiseTags = p.ExpertiseTags
	}
	if p.AllowedTools != nil {
		updated.AllowedTools = p.AllowedTools
	}

	agent.Persona = updated
	if err := e.repo.Put(ctx, agentID, agent); err != nil {
		return types.Agent{}, legionerr.New(legionerr.Internal, "UpdatePersona", err)
	}
	e.bus.Publish(ctx, types.Event{
		Type:    types.EventAgentPersonaUpdated,
		Payload: event.AgentPersonaUpdatedData{AgentID: agentID, Persona: updated},
		Source:  "persona",
	})
	return agent, nil
}

// SetEmotionalState overwrites an agent's EmotionalState wholesale (spec §6
// "POST /agents/{id}/emotional-state — admin override"), unlike ObserveTurn
// which only ever applies a bounded delta. Values are still clamped to
// their declared intervals; Opinions/Version/LastUpdated are preserved from
// the prior state unless the override supplies its own.
func (e *Engine) SetEmotionalState(ctx context.Context, agentID string, st types.EmotionalState) (types.Agent, error) {
	lock := e.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	agent, err := e.repo.Get(ctx, agentID)
	if err != nil {
		return types.Agent{}, err
	}

	st.Mood.Valence = clamp(st.Mood.Valence, -1, 1)
	st.Mood.Arousal = clamp(st.Mood.Arousal, -1, 1)
	st.Mood.Dominance = clamp(st.Mood.Dominance, -1, 1)
	st.Mood.Curiosity = clamp(st.Mood.Curiosity, -1, 1)
	st.Mood.Creativity = clamp(st.Mood.Creativity, -1, 1)
	st.Mood.Sociability = clamp(st.Mood.Sociability, -1, 1)
	st.Energy = clamp(st.Energy, 0, 1)
	st.Stress = clamp(st.Stress, 0, 1)
	for id, op := range st.Opinions {
		op.Trust = clamp(op.Trust, -100, 100)
		op.Respect = clamp(op.Respect, -100, 100)
		op.Affection = clamp(op.Affection, -100, 100)
		st.Opinions[id] = op
	}
	if st.Opinions == nil {
		st.Opinions = agent.EmotionalState.Opinions
	}
	st.Version = agent.EmotionalState.Version + 1
	st.LastUpdated = time.Now().UTC()

	agent.EmotionalState = st
	if err := e.repo.Put(ctx, agentID, agent); err != nil {
		return types.Agent{}, legionerr.New(legionerr.Internal, "SetEmotionalState", err)
	}
	e.bus.Publish(ctx, types.Event{
		Type:    types.EventAgentEmotionalStateUpdated,
		Payload: event.AgentEmotionalStateUpdatedData{AgentID: agentID, State: st},
		Source:  "persona",
	})
	return agent, nil
}
