// Package memory implements the Memory Engine (C4): per-agent working memory
// and an episodic store, salience-ranked retrieval for prompt assembly, and
// consolidation from working memory into durable episodes. There is no
// separate semantic (concept → assertion) layer.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gemini-legion/legion/internal/legionerr"
	"github.com/gemini-legion/legion/internal/storage"
	"github.com/gemini-legion/legion/pkg/types"
)

// WorkingEntry is one recent observation held in the bounded working-memory
// ring for an agent, awaiting consolidation.
type WorkingEntry struct {
	AgentID        string    `json:"agentID"`
	ConversationID string    `json:"conversationID"`
	Content        string    `json:"content"`
	Timestamp      time.Time `json:"timestamp"`
}

// Episode is a consolidated, durable memory of something that happened —
// the episodic layer, grounded on CLIAIRMONITOR's Episode type.
type Episode struct {
	ID         string    `json:"id"`
	AgentID    string    `json:"agentID"`
	Content    string    `json:"content"`
	Importance float64   `json:"importance"` // 0-1 salience, for retrieval ranking
	Timestamp  time.Time `json:"timestamp"`
}

func (e Episode) GetVersion() uint64 { return 0 }

// agentMemory is the per-agent working ring plus its consolidation counter.
type agentMemory struct {
	mu      sync.Mutex
	working []WorkingEntry
	since   int // turns observed since last consolidation
}

// Engine owns per-agent working memory and the episodic store. It keeps no
// semantic layer: consolidation writes ordinary episodes.
type Engine struct {
	episodes storage.Repository[Episode]

	workingSize       int
	salienceThreshold float64
	consolidateEveryN int

	mu      sync.Mutex
	byAgent map[string]*agentMemory

	cron *cron.Cron
}

// Config carries the Memory Engine's tunables (spec §6
// working_memory_size, episodic_salience_threshold).
type Config struct {
	WorkingMemorySize         int
	EpisodicSalienceThreshold float64
	ConsolidateEveryNTurns    int
	ConsolidationCron         string // empty disables the scheduled sweep
}

// New constructs a Memory Engine. If cfg.ConsolidationCron is non-empty, a
// background cron.Cron sweep additionally consolidates every agent's
// working memory on that schedule (spec.md §9 supplement), independent of
// the per-turn counter trigger.
func New(episodes storage.Repository[Episode], cfg Config) *Engine {
	if cfg.WorkingMemorySize <= 0 {
		cfg.WorkingMemorySize = 50
	}
	if cfg.ConsolidateEveryNTurns <= 0 {
		cfg.ConsolidateEveryNTurns = 10
	}
	e := &Engine{
		episodes:          episodes,
		workingSize:       cfg.WorkingMemorySize,
		salienceThreshold: cfg.EpisodicSalienceThreshold,
		consolidateEveryN: cfg.ConsolidateEveryNTurns,
		byAgent:           make(map[string]*agentMemory),
	}
	if cfg.ConsolidationCron != "" {
		e.cron = cron.New()
		e.cron.AddFunc(cfg.ConsolidationCron, func() {
			e.ConsolidateAll(context.Background())
		})
		e.cron.Start()
	}
	return e
}

// Close stops the consolidation cron, if running.
func (e *Engine) Close() {
	if e.cron != nil {
		e.cron.Stop()
	}
}

func (e *Engine) memFor(agentID string) *agentMemory {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.byAgent[agentID]
	if !ok {
		m = &agentMemory{}
		e.byAgent[agentID] = m
	}
	return m
}

// ObserveTurn records content into an agent's working memory, windowing to
// workingSize, and consolidates into an episode every consolidateEveryN
// turns (the counter-based trigger; ConsolidationCron is the time-based
// one).
func (e *Engine) ObserveTurn(ctx context.Context, agentID, conversationID, content string, importance float64) error {
	m := e.memFor(agentID)
	m.mu.Lock()
	m.working = append(m.working, WorkingEntry{
		AgentID:        agentID,
		ConversationID: conversationID,
		Content:        content,
		Timestamp:      time.Now().UTC(),
	})
	if len(m.working) > e.workingSize {
		m.working = m.working[len(m.working)-e.workingSize:]
	}
	m.since++
	due := m.since >= e.consolidateEveryN
	if due {
		m.since = 0
	}
	m.mu.Unlock()

	if importance >= e.salienceThreshold {
		if err := e.recordEpisode(ctx, agentID, content, importance); err != nil {
			return err
		}
	}
	if due {
		return e.consolidate(ctx, agentID)
	}
	return nil
}

func (e *Engine) recordEpisode(ctx context.Context, agentID, content string, importance float64) error {
	ep := Episode{
		ID:         agentID + ":" + time.Now().UTC().Format(time.RFC3339Nano),
		AgentID:    agentID,
		Content:    content,
		Importance: importance,
		Timestamp:  time.Now().UTC(),
	}
	if err := e.episodes.Put(ctx, ep.ID, ep); err != nil {
		return legionerr.New(legionerr.Internal, "Memory.recordEpisode", err)
	}
	return nil
}

// consolidate folds an agent's current working memory into a single
// summarizing episode. Callers needing an LLM-authored summary should
// supply one via the Agent Runtime; this default concatenates recent
// content, matching the teacher's compact.go fallback when summarization
// is unavailable.
func (e *Engine) consolidate(ctx context.Context, agentID string) error {
	m := e.memFor(agentID)
	m.mu.Lock()
	entries := append([]WorkingEntry{}, m.working...)
	m.mu.Unlock()
	if len(entries) == 0 {
		return nil
	}

	var content string
	for _, en := range entries {
		content += en.Content + "\n"
	}
	return e.recordEpisode(ctx, agentID, content, e.salienceThreshold)
}

// ConsolidateAll runs consolidate for every agent with working memory,
// used by the scheduled cron sweep.
func (e *Engine) ConsolidateAll(ctx context.Context) {
	e.mu.Lock()
	agents := make([]string, 0, len(e.byAgent))
	for id := range e.byAgent {
		agents = append(agents, id)
	}
	e.mu.Unlock()

	for _, id := range agents {
		e.consolidate(ctx, id)
	}
}

// ComposeHistoryCue retrieves the agent's most relevant episodes across all
// of its conversations, ranked by salience × recency, truncated to limit.
// It does not filter by conversation and does not add recent channel
// messages.
func (e *Engine) ComposeHistoryCue(ctx context.Context, agentID string, limit int) ([]Episode, error) {
	all, err := e.episodes.List(ctx)
	if err != nil {
		return nil, legionerr.New(legionerr.Internal, "ComposeHistoryCue", err)
	}

	var mine []Episode
	for _, ep := range all {
		if ep.AgentID == agentID {
			mine = append(mine, ep)
		}
	}

	now := time.Now().UTC()
	sort.Slice(mine, func(i, j int) bool {
		return score(mine[i], now) > score(mine[j], now)
	})
	if limit > 0 && len(mine) > limit {
		mine = mine[:limit]
	}
	return mine, nil
}

// score combines salience and recency: recency decays over a day so a
// highly important but stale episode still eventually loses to a fresh one.
func score(ep Episode, now time.Time) float64 {
	age := now.Sub(ep.Timestamp).Hours() / 24
	recency := 1 / (1 + age)
	return ep.Importance*0.7 + recency*0.3
}

// WorkingMemory returns the current (unconsolidated) working entries for an
// agent, for debugging and for the server's inspection endpoints.
func (e *Engine) WorkingMemory(agentID string) []WorkingEntry {
	m := e.memFor(agentID)
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WorkingEntry{}, m.working...)
}
