package commands

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gemini-legion/legion/internal/agentruntime"
	"github.com/gemini-legion/legion/internal/channel"
	"github.com/gemini-legion/legion/internal/config"
	"github.com/gemini-legion/legion/internal/event"
	"github.com/gemini-legion/legion/internal/logging"
	"github.com/gemini-legion/legion/internal/mcp"
	"github.com/gemini-legion/legion/internal/memory"
	"github.com/gemini-legion/legion/internal/orchestrator"
	"github.com/gemini-legion/legion/internal/persona"
	"github.com/gemini-legion/legion/internal/provider"
	"github.com/gemini-legion/legion/internal/session"
	"github.com/gemini-legion/legion/internal/storage"
	"github.com/gemini-legion/legion/internal/toolkit"
	"github.com/gemini-legion/legion/pkg/types"
)

// app holds every wired component a legion process needs, assembled once
// from types.Config and shared by the serve/agent/channel commands.
type app struct {
	config   *types.Config
	bus      event.Bus
	channels *channel.Service
	personas *persona.Engine
	memory   *memory.Engine
	sessions *session.Store
	invoker  *agentruntime.Invoker
	orch     *orchestrator.Orchestrator

	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp loads configuration for workDir and wires storage, the event
// bus, and every core component (C1-C7) from it. It does not start the
// orchestrator's dispatch loop; callers that need live dispatch must call
// app.orch.Start(ctx) themselves.
func buildApp(ctx context.Context, workDir string) (*app, error) {
	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, err
	}
	if model := GetGlobalModel(); model != "" {
		cfg.Model = model
	}
	defaults := types.DefaultConfig()
	applyConfigDefaults(cfg, &defaults)

	a := &app{config: cfg}

	bus, closeBus, err := buildEventBus(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.bus = bus
	a.closers = append(a.closers, closeBus)

	channelRepo, messageRepo, agentRepo, episodeRepo, sessionRepo, closeStorage, err := buildRepositories(ctx, cfg, paths)
	if err != nil {
		a.Close()
		return nil, err
	}
	if closeStorage != nil {
		a.closers = append(a.closers, closeStorage)
	}

	a.channels = channel.New(channelRepo, messageRepo, bus)
	a.personas = persona.New(agentRepo, bus, cfg.MoodDeltaCap, cfg.OpinionDeltaCap)
	a.memory = memory.New(episodeRepo, memory.Config{
		WorkingMemorySize:         cfg.WorkingMemorySize,
		EpisodicSalienceThreshold: cfg.EpisodicSalienceThreshold,
	})
	a.closers = append(a.closers, a.memory.Close)
	a.sessions = session.NewStore(sessionRepo, cfg.MaxHistoryPerSession)

	providers, err := provider.InitializeProviders(ctx, cfg)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to initialize some providers")
	}

	tools := toolkit.DefaultRegistry(workDir, a.channels)

	mcpClient := mcp.NewClient()
	a.closers = append(a.closers, func() { mcpClient.Close() })
	connectConfiguredMCPServers(ctx, mcpClient, cfg)
	mcp.RegisterMCPTools(mcpClient, tools)

	a.invoker = agentruntime.New(a.sessions, a.personas, providers, tools, agentruntime.Config{
		MaxConcurrentInvocations: cfg.MaxConcurrentInvocations,
		MaxToolDepth:             cfg.MaxToolDepth,
		LLMTimeoutSeconds:        cfg.LLMTimeoutSeconds,
	})

	a.orch = orchestrator.New(a.bus, a.channels, a.personas, a.memory, a.invoker, orchestrator.Config{
		MaxRespondersPerMessage:  cfg.MaxRespondersPerMessage,
		MaxConsecutiveAgentTurns: cfg.MaxConsecutiveAgentTurns,
		AutoSubscribeDefaults:    cfg.AutoSubscribeDefaults,
	})

	if err := spawnConfiguredPersonas(ctx, a.personas, cfg); err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func applyConfigDefaults(cfg *types.Config, defaults *types.Config) {
	if cfg.MaxHistoryPerSession == 0 {
		cfg.MaxHistoryPerSession = defaults.MaxHistoryPerSession
	}
	if cfg.MaxConcurrentInvocations == 0 {
		cfg.MaxConcurrentInvocations = defaults.MaxConcurrentInvocations
	}
	if cfg.MaxRespondersPerMessage == 0 {
		cfg.MaxRespondersPerMessage = defaults.MaxRespondersPerMessage
	}
	if cfg.MaxConsecutiveAgentTurns == 0 {
		cfg.MaxConsecutiveAgentTurns = defaults.MaxConsecutiveAgentTurns
	}
	if cfg.MaxToolDepth == 0 {
		cfg.MaxToolDepth = defaults.MaxToolDepth
	}
	if cfg.LLMTimeoutSeconds == 0 {
		cfg.LLMTimeoutSeconds = defaults.LLMTimeoutSeconds
	}
	if cfg.WorkingMemorySize == 0 {
		cfg.WorkingMemorySize = defaults.WorkingMemorySize
	}
	if cfg.EpisodicSalienceThreshold == 0 {
		cfg.EpisodicSalienceThreshold = defaults.EpisodicSalienceThreshold
	}
	if cfg.MoodDeltaCap == 0 {
		cfg.MoodDeltaCap = defaults.MoodDeltaCap
	}
	if cfg.OpinionDeltaCap == 0 {
		cfg.OpinionDeltaCap = defaults.OpinionDeltaCap
	}
}

func buildEventBus(ctx context.Context, cfg *types.Config) (event.Bus, func(), error) {
	switch cfg.EventBus.Backend {
	case "redis":
		bus, err := event.NewRedisBus(ctx, cfg.EventBus.RedisURL, "legion-events")
		if err != nil {
			return nil, nil, fmt.Errorf("connecting redis event bus: %w", err)
		}
		return bus, func() { bus.Close() }, nil
	default:
		bus := event.NewInProcessBus()
		return bus, func() { bus.Close() }, nil
	}
}

func buildRepositories(ctx context.Context, cfg *types.Config, paths *config.Paths) (
	channelRepo storage.Repository[types.Channel],
	messageRepo storage.Repository[types.Message],
	agentRepo storage.Repository[types.Agent],
	episodeRepo storage.Repository[memory.Episode],
	sessionRepo storage.VersionedRepository[types.Session],
	closer func(),
	err error,
) {
	switch cfg.Storage.Backend {
	case "postgres":
		pool, perr := pgxpool.New(ctx, cfg.Storage.DSN)
		if perr != nil {
			return nil, nil, nil, nil, nil, nil, fmt.Errorf("connecting postgres: %w", perr)
		}
		channels := storage.NewPostgresRepository[types.Channel](pool, "channels")
		messages := storage.NewPostgresRepository[types.Message](pool, "messages")
		agents := storage.NewPostgresRepository[types.Agent](pool, "agents")
		episodes := storage.NewPostgresRepository[memory.Episode](pool, "episodes")
		sessions := storage.NewPostgresRepository[types.Session](pool, "sessions")
		for _, ensurer := range []interface{ EnsureSchema(context.Context) error }{channels, messages, agents, episodes, sessions} {
			if err := ensurer.EnsureSchema(ctx); err != nil {
				pool.Close()
				return nil, nil, nil, nil, nil, nil, fmt.Errorf("ensuring postgres schema: %w", err)
			}
		}
		return channels, messages, agents, episodes, sessions, pool.Close, nil
	case "memory":
		return storage.NewMemoryRepository[types.Channel](),
			storage.NewMemoryRepository[types.Message](),
			storage.NewMemoryRepository[types.Agent](),
			storage.NewMemoryRepository[memory.Episode](),
			storage.NewMemoryVersionedRepository[types.Session](),
			nil, nil
	default:
		base := cfg.Storage.Path
		if base == "" {
			base = paths.StoragePath()
		}
		store := storage.New(base)
		return storage.NewFileRepository[types.Channel](store, "channels"),
			storage.NewFileRepository[types.Message](store, "messages"),
			storage.NewFileRepository[types.Agent](store, "agents"),
			storage.NewFileRepository[memory.Episode](store, "episodes"),
			storage.NewFileVersionedRepository[types.Session](store, "sessions"),
			nil, nil
	}
}

// connectConfiguredMCPServers connects every enabled server in
// cfg.MCPServers so its tools become available to every agent. A server
// that fails to connect is logged and skipped; it does not block startup.
func connectConfiguredMCPServers(ctx context.Context, client *mcp.Client, cfg *types.Config) {
	for name, sc := range cfg.MCPServers {
		if !sc.Enabled {
			continue
		}
		mcpCfg := &mcp.Config{
			Enabled:     sc.Enabled,
			Type:        mcp.TransportType(sc.Type),
			URL:         sc.URL,
			Headers:     sc.Headers,
			Command:     sc.Command,
			Environment: sc.Environment,
			Timeout:     sc.Timeout,
		}
		if err := client.AddServer(ctx, name, mcpCfg); err != nil {
			logging.Warn().Err(err).Str("server", name).Msg("failed to connect MCP server")
		}
	}
}

// spawnConfiguredPersonas spawns every agent named in cfg.Persona that does
// not already exist, so a legion.json persona roster survives a restart.
func spawnConfiguredPersonas(ctx context.Context, personas *persona.Engine, cfg *types.Config) error {
	for agentID, pc := range cfg.Persona {
		if _, err := personas.Get(ctx, agentID); err == nil {
			continue
		}
		temperature := 0.7
		if pc.Temperature != nil {
			temperature = *pc.Temperature
		}
		_, err := personas.Spawn(ctx, agentID, types.Persona{
			Name:            pc.Name,
			BasePersonality: pc.BasePersonality,
			Quirks:          pc.Quirks,
			Catchphrases:    pc.Catchphrases,
			ExpertiseTags:   pc.ExpertiseTags,
			AllowedTools:    pc.AllowedTools,
			ModelIdentifier: pc.ModelIdentifier,
			Temperature:     temperature,
			MaxTokens:       pc.MaxTokens,
		})
		if err != nil {
			return fmt.Errorf("spawning configured persona %q: %w", agentID, err)
		}
	}
	return nil
}
