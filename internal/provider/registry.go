package provider

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/gemini-legion/legion/pkg/types"
)

// Registry manages all available providers and the configured fallback
// order used when the primary model errors transiently (spec §4.5).
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	config    *types.Config
	fallback  []string
}

// NewRegistry creates a new provider registry.
func NewRegistry(config *types.Config) *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		config:    config,
	}
}

// Register adds a provider to the registry.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all available providers.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	return providers
}

// GetModel retrieves a specific model from a provider.
func (r *Registry) GetModel(providerID, modelID string) (*types.Model, error) {
	provider, err := r.Get(providerID)
	if err != nil {
		return nil, err
	}

	for _, model := range provider.Models() {
		if model.ID == modelID {
			return &model, nil
		}
	}

	return nil, fmt.Errorf("model not found: %s/%s", providerID, modelID)
}

// AllModels returns all models from all providers.
func (r *Registry) AllModels() []types.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var models []types.Model
	for _, p := range r.providers {
		models = append(models, p.Models()...)
	}

	sort.Slice(models, func(i, j int) bool {
		return modelPriority(models[i].ID) > modelPriority(models[j].ID)
	})

	return models
}

// DefaultModel returns config.Model, falling back to Gemini and then to
// the first available model.
func (r *Registry) DefaultModel() (*types.Model, error) {
	if r.config != nil && r.config.Model != "" {
		providerID, modelID := ParseModelString(r.config.Model)
		if m, err := r.GetModel(providerID, modelID); err == nil {
			return m, nil
		}
	}

	if model, err := r.GetModel("gemini", "gemini-2.0-flash"); err == nil {
		return model, nil
	}

	models := r.AllModels()
	if len(models) == 0 {
		return nil, fmt.Errorf("no models available")
	}
	return &models[0], nil
}

// FallbackChain returns, in order, the provider IDs to try after
// providerID fails with a ModelTransient error: any explicit order from
// config, then every other registered provider.
func (r *Registry) FallbackChain(providerID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{providerID: true}
	var chain []string
	for _, id := range r.fallback {
		if !seen[id] {
			if _, ok := r.providers[id]; ok {
				chain = append(chain, id)
				seen[id] = true
			}
		}
	}
	for id := range r.providers {
		if !seen[id] {
			chain = append(chain, id)
			seen[id] = true
		}
	}
	return chain
}

// SetFallbackOrder sets the explicit provider-id preference order consulted
// by FallbackChain; the remaining registered providers follow it in no
// fixed order.
func (r *Registry) SetFallbackOrder(order []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = order
}

// ParseModelString parses "provider/model" format.
func ParseModelString(s string) (providerID, modelID string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// modelPriority returns sorting priority for models.
func modelPriority(modelID string) int {
	switch {
	case strings.Contains(modelID, "gemini-2"):
		return 100
	case strings.Contains(modelID, "gpt-5"):
		return 95
	case strings.Contains(modelID, "claude-sonnet-4"):
		return 90
	case strings.Contains(modelID, "claude-opus"):
		return 85
	case strings.Contains(modelID, "gpt-4o"):
		return 80
	case strings.Contains(modelID, "claude-3-5"):
		return 75
	default:
		return 50
	}
}

// InitializeProviders creates and registers every configured provider,
// then auto-registers any provider whose credential env var is set but
// which wasn't explicitly configured.
func InitializeProviders(ctx context.Context, config *types.Config) (*Registry, error) {
	registry := NewRegistry(config)
	configuredProviders := make(map[string]bool)

	for name, cfg := range config.Provider {
		if cfg.Disable {
			continue
		}
		configuredProviders[name] = true

		provider, err := newProviderByName(ctx, name, cfg)
		if err != nil {
			fmt.Printf("[provider] failed to create %q: %v\n", name, err)
			continue
		}
		if provider != nil {
			registry.Register(provider)
		}
	}

	registerFromEnv(ctx, registry, configuredProviders, "gemini", "GEMINI_API_KEY", "GOOGLE_API_KEY")
	registerFromEnv(ctx, registry, configuredProviders, "anthropic", "ANTHROPIC_API_KEY")
	registerFromEnv(ctx, registry, configuredProviders, "openai", "OPENAI_API_KEY")

	registry.SetFallbackOrder([]string{"gemini", "anthropic", "openai", "ark"})
	return registry, nil
}

func newProviderByName(ctx context.Context, name string, cfg types.ProviderConfig) (Provider, error) {
	switch name {
	case "gemini":
		if cfg.APIKey == "" {
			return nil, nil
		}
		return NewGeminiProvider(ctx, &GeminiConfig{
			ID:      name,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Models:  cfg.Models,
		})
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, nil
		}
		return NewAnthropicProvider(ctx, &AnthropicConfig{
			ID:        name,
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: 8192,
		})
	case "openai":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, nil
		}
		return NewOpenAIProvider(ctx, &OpenAIConfig{
			ID:        name,
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: 4096,
		})
	case "ark":
		if cfg.APIKey == "" {
			return nil, nil
		}
		return NewArkProvider(ctx, &ArkConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: 4096,
		})
	default:
		return nil, nil
	}
}

func registerFromEnv(ctx context.Context, registry *Registry, configured map[string]bool, name string, envVars ...string) {
	if configured[name] {
		return
	}
	var apiKey string
	for _, v := range envVars {
		if apiKey = os.Getenv(v); apiKey != "" {
			break
		}
	}
	if apiKey == "" {
		return
	}
	provider, err := newProviderByName(ctx, name, types.ProviderConfig{APIKey: apiKey})
	if err != nil || provider == nil {
		return
	}
	registry.Register(provider)
}
