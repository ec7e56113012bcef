package vision

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"

	"github.com/proteinlens/proteinlens/internal/app/domain/nutrition"
	"github.com/proteinlens/proteinlens/internal/httputil"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

const (
	// DefaultBaseURL targets the public OpenAI API. Azure OpenAI and
	// compatible gateways work by overriding BaseURL.
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	// DefaultScope is the Azure AD scope used when authenticating with a
	// token credential.
	DefaultScope = "https://cognitiveservices.azure.com/.default"

	defaultTimeout   = 60 * time.Second
	defaultMaxTokens = 800
)

// Config configures the vision provider client. Exactly one of APIKey or
// Credential must be set.
type Config struct {
	BaseURL string
	APIKey  string
	// Credential authenticates through Azure AD instead of an API key.
	Credential azcore.TokenCredential
	Scope      string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	MaxTokens  int
	// FieldPaths passes provider-specific JSONPath extraction through to the
	// parser.
	FieldPaths map[string]string
}

// Client calls a chat-completions vision endpoint and parses the answer.
type Client struct {
	http      *httputil.Client
	model     string
	maxTokens int
	opts      ParseOptions
	log       *logger.Logger
}

var _ Analyzer = (*Client)(nil)

// NewClient validates cfg and builds the provider client.
func NewClient(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.APIKey == "" && cfg.Credential == nil {
		return nil, fmt.Errorf("vision: api key or credential required")
	}
	if log == nil {
		log = logger.NewDefault("vision")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	clientCfg := httputil.ClientConfig{
		BaseURL:    baseURL,
		Timeout:    timeout,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  "proteinlens/1.0",
	}
	if cfg.Credential != nil {
		scope := cfg.Scope
		if scope == "" {
			scope = DefaultScope
		}
		cred := cfg.Credential
		clientCfg.TokenSource = func(ctx context.Context) (string, error) {
			tok, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{scope}})
			if err != nil {
				return "", fmt.Errorf("azure token: %w", err)
			}
			return tok.Token, nil
		}
	} else {
		clientCfg.BearerToken = cfg.APIKey
		// Azure OpenAI reads the key from api-key; openai.com ignores it.
		clientCfg.Headers = map[string]string{"api-key": cfg.APIKey}
	}

	return &Client{
		http:      httputil.NewClient(clientCfg),
		model:     model,
		maxTokens: maxTokens,
		opts:      ParseOptions{FieldPaths: cfg.FieldPaths},
		log:       log,
	}, nil
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// AnalyzeImage sends the photo as a base64 data URL and parses the model's
// answer into a validated analysis.
func (c *Client) AnalyzeImage(ctx context.Context, imageData []byte, mimeType string) (*nutrition.Analysis, error) {
	if len(imageData) == 0 {
		return nil, fmt.Errorf("vision: empty image")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(imageData)
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: []contentPart{
				{Type: "text", Text: userPrompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL, Detail: "low"}},
			}},
		},
		MaxTokens:      c.maxTokens,
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	start := time.Now()
	resp, err := c.http.Post(ctx, "/chat/completions", req)
	if err != nil {
		return nil, fmt.Errorf("vision request: %w", err)
	}

	var out chatResponse
	if err := httputil.DecodeResponse(resp, &out); err != nil {
		return nil, fmt.Errorf("vision response: %w", err)
	}
	if out.Error != nil {
		return nil, fmt.Errorf("vision provider error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("vision provider returned no choices")
	}

	choice := out.Choices[0]
	parsed, err := ParseAnalysis(choice.Message.Content, c.opts)
	if err != nil {
		return nil, fmt.Errorf("parse vision response: %w", err)
	}

	a := *parsed
	a.Model = out.Model
	if a.Model == "" {
		a.Model = c.model
	}
	if choice.FinishReason == "length" {
		a.Warnings = append(a.Warnings, "provider response was truncated")
	}
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("vision estimate rejected: %w", err)
	}

	c.log.WithField("model", a.Model).
		WithField("calories", a.Calories).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debug("vision analysis complete")
	return &a, nil
}
