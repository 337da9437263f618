package provider

import (
	"context"
	"fmt"

	einoGemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/gemini-legion/legion/pkg/types"
)

// GeminiProvider implements Provider for Google's Gemini models, backing
// the eino ChatModel with a native genai.Client rather than an
// OpenAI-compatible shim.
type GeminiProvider struct {
	chatModel model.ToolCallingChatModel
	models    []types.Model
	config    *GeminiConfig
}

// GeminiConfig holds configuration for the Gemini provider.
type GeminiConfig struct {
	ID      string
	APIKey  string
	BaseURL string
	Model   string
	Models  []string // extra model ids to advertise alongside the defaults
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(ctx context.Context, config *GeminiConfig) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key not set")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	modelID := config.Model
	if modelID == "" {
		modelID = "gemini-2.0-flash"
	}

	chatModel, err := einoGemini.NewChatModel(ctx, &einoGemini.Config{
		Client: client,
		Model:  modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini chat model: %w", err)
	}

	return &GeminiProvider{
		chatModel: chatModel,
		models:    geminiModels(config.Models),
		config:    config,
	}, nil
}

// ID returns the provider identifier.
func (p *GeminiProvider) ID() string {
	if p.config.ID != "" {
		return p.config.ID
	}
	return "gemini"
}

// Name returns the human-readable provider name.
func (p *GeminiProvider) Name() string { return "Gemini" }

// Models returns the list of available models.
func (p *GeminiProvider) Models() []types.Model { return p.models }

// ChatModel returns the Eino ChatModel.
func (p *GeminiProvider) ChatModel() model.ToolCallingChatModel { return p.chatModel }

// CreateCompletion creates a streaming completion.
func (p *GeminiProvider) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionStream, error) {
	chatModel := p.chatModel
	if len(req.Tools) > 0 {
		var err error
		chatModel, err = chatModel.WithTools(req.Tools)
		if err != nil {
			return nil, fmt.Errorf("failed to bind tools: %w", err)
		}
	}

	stream, err := chatModel.Stream(ctx, req.Messages,
		model.WithMaxTokens(req.MaxTokens),
		model.WithTemperature(float32(req.Temperature)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream: %w", err)
	}

	return NewCompletionStream(stream), nil
}

func geminiModels(extra []string) []types.Model {
	models := []types.Model{
		{
			ID:              "gemini-2.5-pro",
			Name:            "Gemini 2.5 Pro",
			ProviderID:      "gemini",
			ContextLength:   1048576,
			MaxOutputTokens: 65536,
			SupportsTools:   true,
			SupportsVision:  true,
			InputPrice:      1.25,
			OutputPrice:     10.0,
		},
		{
			ID:              "gemini-2.5-flash",
			Name:            "Gemini 2.5 Flash",
			ProviderID:      "gemini",
			ContextLength:   1048576,
			MaxOutputTokens: 65536,
			SupportsTools:   true,
			SupportsVision:  true,
			InputPrice:      0.15,
			OutputPrice:     0.6,
		},
		{
			ID:              "gemini-2.0-flash",
			Name:            "Gemini 2.0 Flash",
			ProviderID:      "gemini",
			ContextLength:   1048576,
			MaxOutputTokens: 8192,
			SupportsTools:   true,
			SupportsVision:  true,
			InputPrice:      0.1,
			OutputPrice:     0.4,
		},
	}
	for _, id := range extra {
		models = append(models, types.Model{
			ID:            id,
			Name:          id,
			ProviderID:    "gemini",
			SupportsTools: true,
		})
	}
	return models
}
