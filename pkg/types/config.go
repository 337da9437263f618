package types

// Config holds the recognized configuration keys from spec §6. Zero values
// are replaced by DefaultConfig()'s defaults at load time.
type Config struct {
	// Username identifies the operator for audit/system-sender purposes.
	Username string `json:"username,omitempty"`

	// Default model selection ("provider/model", e.g. "google/gemini-2.5-pro").
	Model      string `json:"model,omitempty"`
	SmallModel string `json:"smallModel,omitempty"`

	MaxHistoryPerSession     int     `json:"maxHistoryPerSession,omitempty"`
	MaxConcurrentInvocations int     `json:"maxConcurrentInvocations,omitempty"`
	MaxRespondersPerMessage  int     `json:"maxRespondersPerMessage,omitempty"`
	MaxConsecutiveAgentTurns int     `json:"maxConsecutiveAgentTurns,omitempty"`
	MaxToolDepth             int     `json:"maxToolDepth,omitempty"`
	LLMTimeoutSeconds        int     `json:"llmTimeoutSeconds,omitempty"`
	WorkingMemorySize        int     `json:"workingMemorySize,omitempty"`
	EpisodicSalienceThreshold float64 `json:"episodicSalienceThreshold,omitempty"`
	MoodDeltaCap             float64 `json:"moodDeltaCap,omitempty"`
	OpinionDeltaCap          float64 `json:"opinionDeltaCap,omitempty"`

	// AutoSubscribeDefaults lists agent ids the orchestrator joins to every
	// newly created channel (spec §9 open question resolution).
	AutoSubscribeDefaults []string `json:"autoSubscribeDefaults,omitempty"`

	// Provider configs, keyed by provider name ("anthropic", "openai", "google").
	Provider map[string]ProviderConfig `json:"provider,omitempty"`

	// Persona templates, keyed by agent id, loadable at startup.
	Persona map[string]PersonaConfig `json:"persona,omitempty"`

	// Event bus backend: "inprocess" (default) or "redis".
	EventBus EventBusConfig `json:"eventBus,omitempty"`

	// Storage backend: "memory", "file" (default), or "postgres".
	Storage StorageConfig `json:"storage,omitempty"`

	// MCPServers, keyed by server name, extends every agent's toolset with
	// externally-hosted Model Context Protocol tools alongside the built-in
	// toolkit registry.
	MCPServers map[string]MCPServerConfig `json:"mcpServers,omitempty"`
}

// MCPServerConfig describes one external Model Context Protocol server to
// connect to at startup. Mirrors internal/mcp.Config's shape without
// importing it, to keep pkg/types free of internal dependencies.
type MCPServerConfig struct {
	Enabled     bool              `json:"enabled"`
	Type        string            `json:"type"` // "remote" | "local" | "stdio"
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Timeout     int               `json:"timeout,omitempty"` // milliseconds
}

// DefaultConfig returns the defaults spec §6 names for every tunable.
func DefaultConfig() Config {
	return Config{
		MaxHistoryPerSession:      100,
		MaxConcurrentInvocations:  16,
		MaxRespondersPerMessage:   8,
		MaxConsecutiveAgentTurns:  4,
		MaxToolDepth:              5,
		LLMTimeoutSeconds:         60,
		WorkingMemorySize:         50,
		EpisodicSalienceThreshold: 0.5,
		MoodDeltaCap:              0.2,
		OpinionDeltaCap:           10,
	}
}

// ProviderConfig holds per-LLM-vendor configuration.
type ProviderConfig struct {
	APIKey  string   `json:"apiKey,omitempty"`
	BaseURL string   `json:"baseURL,omitempty"`
	Model   string   `json:"model,omitempty"`
	Disable bool     `json:"disable,omitempty"`
	Models  []string `json:"models,omitempty"`
}

// PersonaConfig is the on-disk form of a Persona spawn spec.
type PersonaConfig struct {
	Name            string   `json:"name"`
	BasePersonality string   `json:"basePersonality"`
	Quirks          []string `json:"quirks,omitempty"`
	Catchphrases    []string `json:"catchphrases,omitempty"`
	ExpertiseTags   []string `json:"expertiseTags,omitempty"`
	AllowedTools    []string `json:"allowedTools,omitempty"`
	ModelIdentifier string   `json:"modelIdentifier,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxTokens       int      `json:"maxTokens,omitempty"`
}

// EventBusConfig selects and configures the C1 transport.
type EventBusConfig struct {
	Backend  string `json:"backend,omitempty"` // "inprocess" | "redis"
	RedisURL string `json:"redisURL,omitempty"`
}

// StorageConfig selects and configures the Repository[T] backend.
type StorageConfig struct {
	Backend string `json:"backend,omitempty"` // "memory" | "file" | "postgres"
	Path    string `json:"path,omitempty"`
	DSN     string `json:"dsn,omitempty"`
}

// Model describes an LLM model available from a provider.
type Model struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	ProviderID        string       `json:"providerID"`
	ContextLength     int          `json:"contextLength"`
	MaxOutputTokens   int          `json:"maxOutputTokens,omitempty"`
	SupportsTools     bool         `json:"supportsTools"`
	SupportsVision    bool         `json:"supportsVision,omitempty"`
	SupportsReasoning bool         `json:"supportsReasoning,omitempty"`
	InputPrice        float64      `json:"inputPrice,omitempty"`  // USD per million input tokens
	OutputPrice       float64      `json:"outputPrice,omitempty"` // USD per million output tokens
	Options           ModelOptions `json:"options,omitempty"`
}

// ModelOptions carries provider-specific model capability flags.
type ModelOptions struct {
	PromptCaching  bool `json:"promptCaching,omitempty"`
	ExtendedOutput bool `json:"extendedOutput,omitempty"`
}
