package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAIHTTPTimeout = 60 * time.Second
	maxAIResponseBytes   = 1 << 20
	aiUserAgent          = "habitjourney-ai/1.0"
)

// aiEndpoint 描述一个 AI 平台的接入地址与所用模型
type aiEndpoint struct {
	Label   string
	BaseURL string
	Model   string
}

func (e aiEndpoint) url(path string) string {
	return e.BaseURL + path
}

// defaultAIEndpoints 每次返回新的副本，模型留空由各服务填入
func defaultAIEndpoints() map[string]aiEndpoint {
	return map[string]aiEndpoint{
		AIProviderOpenAI:   {Label: "OpenAI", BaseURL: "https://api.openai.com/v1"},
		AIProviderDeepSeek: {Label: "DeepSeek", BaseURL: "https://api.deepseek.com/v1"},
	}
}

// overrideEndpoint 只覆盖非空的地址和模型
func overrideEndpoint(endpoints map[string]aiEndpoint, provider, base, model string) {
	endpoint := endpoints[provider]
	if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
		endpoint.BaseURL = base
	}
	if model = strings.TrimSpace(model); model != "" {
		endpoint.Model = model
	}
	endpoints[provider] = endpoint
}

// providerOrDefault 未配置或无法识别的平台一律按 OpenAI 处理
func providerOrDefault(provider string) string {
	if normalized := normalizeAIProvider(provider); normalized != "" {
		return normalized
	}
	return AIProviderOpenAI
}

func (s SystemSettings) apiKeyFor(provider string) string {
	if provider == AIProviderDeepSeek {
		return strings.TrimSpace(s.DeepSeekAPIKey)
	}
	return strings.TrimSpace(s.OpenAIAPIKey)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string              `json:"model"`
	Messages       []chatMessage       `json:"messages"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	Temperature    float64             `json:"temperature,omitempty"`
	ResponseFormat *chatResponseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// aiChatRequest 是名言与得分解读共用的一次对话请求
type aiChatRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
	JSONOutput   bool
}

type aiChatResponse struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
}

type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// aiChatClient 按系统设置中选择的平台发送 chat completions 请求
type aiChatClient struct {
	settings  *SystemSettingService
	http      httpDoer
	endpoints map[string]aiEndpoint
}

func newAIChatClient(settings *SystemSettingService, openAIModel, deepSeekModel string) *aiChatClient {
	endpoints := defaultAIEndpoints()
	overrideEndpoint(endpoints, AIProviderOpenAI, "", openAIModel)
	overrideEndpoint(endpoints, AIProviderDeepSeek, "", deepSeekModel)
	return &aiChatClient{
		settings:  settings,
		http:      &http.Client{Timeout: defaultAIHTTPTimeout},
		endpoints: endpoints,
	}
}

func (c *aiChatClient) SetHTTPClient(client httpDoer) {
	if client == nil {
		client = &http.Client{Timeout: defaultAIHTTPTimeout}
	}
	c.http = client
}

func (c *aiChatClient) SetOpenAIBaseURL(base string) {
	overrideEndpoint(c.endpoints, AIProviderOpenAI, base, "")
}

func (c *aiChatClient) SetDeepSeekBaseURL(base string) {
	overrideEndpoint(c.endpoints, AIProviderDeepSeek, base, "")
}

func (c *aiChatClient) SetOpenAIModel(model string) {
	overrideEndpoint(c.endpoints, AIProviderOpenAI, "", model)
}

func (c *aiChatClient) SetDeepSeekModel(model string) {
	overrideEndpoint(c.endpoints, AIProviderDeepSeek, "", model)
}

func (c *aiChatClient) callWithSettings(ctx context.Context, settings SystemSettings, req aiChatRequest) (aiChatResponse, error) {
	provider := providerOrDefault(settings.AIProvider)
	apiKey := settings.apiKeyFor(provider)
	if apiKey == "" {
		return aiChatResponse{}, ErrAIAPIKeyMissing
	}
	endpoint := c.endpoints[provider]

	body, err := json.Marshal(newChatCompletionRequest(endpoint.Model, req))
	if err != nil {
		return aiChatResponse{}, fmt.Errorf("build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.url("/chat/completions"), bytes.NewReader(body))
	if err != nil {
		return aiChatResponse{}, fmt.Errorf("create %s request: %w", endpoint.Label, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", aiUserAgent)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return aiChatResponse{}, fmt.Errorf("call %s: %w", endpoint.Label, err)
	}
	defer resp.Body.Close()

	return decodeChatCompletion(endpoint.Label, resp)
}

func newChatCompletionRequest(model string, req aiChatRequest) chatCompletionRequest {
	payload := chatCompletionRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: strings.TrimSpace(req.SystemPrompt)},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   max(req.MaxTokens, 0),
		Temperature: req.Temperature,
	}
	if req.JSONOutput {
		payload.ResponseFormat = &chatResponseFormat{Type: "json_object"}
	}
	return payload
}

// decodeChatCompletion 优先使用平台返回的错误信息，其次是原始响应体和状态行
func decodeChatCompletion(label string, resp *http.Response) (aiChatResponse, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAIResponseBytes))
	if err != nil {
		return aiChatResponse{}, fmt.Errorf("read %s response: %w", label, err)
	}

	var completion chatCompletionResponse
	decodeErr := json.Unmarshal(raw, &completion)

	if resp.StatusCode >= http.StatusBadRequest {
		msg := strings.TrimSpace(completion.Error.Message)
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		if msg == "" {
			msg = resp.Status
		}
		return aiChatResponse{}, fmt.Errorf("%s returned error: %s", label, msg)
	}
	if decodeErr != nil {
		return aiChatResponse{}, fmt.Errorf("decode %s response: %w", label, decodeErr)
	}
	if len(completion.Choices) == 0 {
		return aiChatResponse{}, fmt.Errorf("%s returned no choices", label)
	}

	return aiChatResponse{
		Content:          strings.TrimSpace(completion.Choices[0].Message.Content),
		PromptTokens:     completion.Usage.PromptTokens,
		CompletionTokens: completion.Usage.CompletionTokens,
	}, nil
}
