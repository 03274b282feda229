package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/credentials"
)

// Chat completion defaults.
const (
	DefaultChatTemperature = 0.2
	DefaultChatMaxTokens   = 900
	defaultChatTimeout     = 30 * time.Second
)

// ChatConfig configures a ChatGenerator.
type ChatConfig struct {
	// Provider is "openai" or "azure".
	Provider string

	// Model is the OpenAI model, or the Azure deployment name.
	Model string

	// Endpoint is the Azure resource endpoint, or an OpenAI base URL override.
	Endpoint   string
	APIVersion string
	APIKey     string

	// Credential, when set, authenticates Azure requests instead of APIKey.
	Credential credentials.Credential

	HTTPClient  *http.Client
	Temperature float32
	MaxTokens   int
}

// ChatGenerator asks an OpenAI or Azure OpenAI chat model for guidance.
type ChatGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewChatGenerator builds a chat completions client for cfg.
func NewChatGenerator(cfg ChatConfig) (*ChatGenerator, error) {
	if cfg.Model == "" {
		return nil, errors.New("chat generator requires a model or deployment")
	}
	base := cfg.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: defaultChatTimeout}
	}

	var oc openai.ClientConfig
	switch cfg.Provider {
	case "azure":
		if cfg.Endpoint == "" {
			return nil, errors.New("azure chat generator requires an endpoint")
		}
		if cfg.Credential == nil && cfg.APIKey == "" {
			return nil, errors.New("azure chat generator requires an api key or credential")
		}
		oc = openai.DefaultAzureConfig(cfg.APIKey, strings.TrimRight(cfg.Endpoint, "/"))
		if cfg.Credential != nil {
			oc.APIType = openai.APITypeAzureAD
		}
		if cfg.APIVersion != "" {
			oc.APIVersion = cfg.APIVersion
		}
		deployment := cfg.Model
		oc.AzureModelMapperFunc = func(string) string { return deployment }
	case "openai":
		if cfg.APIKey == "" {
			return nil, errors.New("openai chat generator requires an api key")
		}
		oc = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			oc.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
		}
	default:
		return nil, fmt.Errorf("unsupported chat provider %q", cfg.Provider)
	}
	oc.HTTPClient = credentials.NewHTTPClient(cfg.Credential, base)

	g := &ChatGenerator{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
	if g.temperature <= 0 {
		g.temperature = DefaultChatTemperature
	}
	if g.maxTokens <= 0 {
		g.maxTokens = DefaultChatMaxTokens
	}
	return g, nil
}

// Name returns "chat".
func (g *ChatGenerator) Name() string { return "chat" }

// Generate sends the moderator instructions and the status prompt.
func (g *ChatGenerator) Generate(ctx context.Context, in Input) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: strings.TrimSpace(in.Profile.ModeratorInstructions)},
			{Role: openai.ChatMessageRoleUser, Content: buildUserPrompt(in)},
		},
		Temperature:         g.temperature,
		MaxCompletionTokens: g.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyGuidance
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyGuidance
	}
	return text, nil
}
