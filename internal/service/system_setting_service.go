package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/habitjourney/internal/db"
)

const (
	// AIProviderOpenAI 表示使用 OpenAI 能力。
	AIProviderOpenAI = "openai"
	// AIProviderDeepSeek 表示使用 DeepSeek 能力。
	AIProviderDeepSeek = "deepseek"
)

var supportedAIProviders = []string{AIProviderOpenAI, AIProviderDeepSeek}

// ErrAIAPIKeyMissing 表示未提供必需的 AI 平台 API Key。
var ErrAIAPIKeyMissing = errors.New("api key is required")

// SystemSettings 描述可配置的 AI 平台与提示词。
type SystemSettings struct {
	AIProvider     string
	OpenAIAPIKey   string
	DeepSeekAPIKey string
	AIQuotePrompt  string
	AIScorePrompt  string
}

// SystemSettingsInput 用于更新系统设置。
type SystemSettingsInput struct {
	AIProvider     string
	OpenAIAPIKey   string
	DeepSeekAPIKey string
	AIQuotePrompt  string
	AIScorePrompt  string
}

// SystemSettingService 提供系统设置的读取与更新能力，数据与应用状态共用键值表。
type SystemSettingService struct {
	kv         KeyValueStore
	httpClient httpDoer
	endpoints  map[string]aiEndpoint
}

// NewSystemSettingService 构造 SystemSettingService。
func NewSystemSettingService(kv KeyValueStore) *SystemSettingService {
	return &SystemSettingService{
		kv:         kv,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		endpoints:  defaultAIEndpoints(),
	}
}

var settingKeys = []string{
	db.SettingKeyAIProvider,
	db.SettingKeyOpenAIAPIKey,
	db.SettingKeyDeepSeekAPIKey,
	db.SettingKeyAIQuotePrompt,
	db.SettingKeyAIScorePrompt,
}

// GetSettings 读取系统设置，如未设置将返回默认值。
func (s *SystemSettingService) GetSettings() (SystemSettings, error) {
	result := SystemSettings{
		AIProvider:    AIProviderOpenAI,
		AIQuotePrompt: defaultQuoteSystemPrompt,
		AIScorePrompt: defaultScoreSystemPrompt,
	}

	if s == nil || s.kv == nil {
		return result, errors.New("system settings are not initialized")
	}

	values, err := s.kv.GetMany(settingKeys)
	if err != nil {
		return result, fmt.Errorf("load system settings: %w", err)
	}

	for key, value := range values {
		switch key {
		case db.SettingKeyAIProvider:
			if provider := normalizeAIProvider(value); provider != "" {
				result.AIProvider = provider
			}
		case db.SettingKeyOpenAIAPIKey:
			result.OpenAIAPIKey = value
		case db.SettingKeyDeepSeekAPIKey:
			result.DeepSeekAPIKey = value
		case db.SettingKeyAIQuotePrompt:
			if strings.TrimSpace(value) != "" {
				result.AIQuotePrompt = value
			}
		case db.SettingKeyAIScorePrompt:
			if strings.TrimSpace(value) != "" {
				result.AIScorePrompt = value
			}
		}
	}

	return result, nil
}

// UpdateSettings 保存系统设置，提示词留空时回退默认值。
func (s *SystemSettingService) UpdateSettings(input SystemSettingsInput) (SystemSettings, error) {
	provider := normalizeAIProvider(input.AIProvider)
	if provider == "" {
		provider = AIProviderOpenAI
	}

	sanitized := SystemSettings{
		AIProvider:     provider,
		OpenAIAPIKey:   strings.TrimSpace(input.OpenAIAPIKey),
		DeepSeekAPIKey: strings.TrimSpace(input.DeepSeekAPIKey),
		AIQuotePrompt:  strings.TrimSpace(input.AIQuotePrompt),
		AIScorePrompt:  strings.TrimSpace(input.AIScorePrompt),
	}
	if sanitized.AIQuotePrompt == "" {
		sanitized.AIQuotePrompt = defaultQuoteSystemPrompt
	}
	if sanitized.AIScorePrompt == "" {
		sanitized.AIScorePrompt = defaultScoreSystemPrompt
	}

	if err := s.kv.SetMany(map[string]string{
		db.SettingKeyAIProvider:     sanitized.AIProvider,
		db.SettingKeyOpenAIAPIKey:   sanitized.OpenAIAPIKey,
		db.SettingKeyDeepSeekAPIKey: sanitized.DeepSeekAPIKey,
		db.SettingKeyAIQuotePrompt:  sanitized.AIQuotePrompt,
		db.SettingKeyAIScorePrompt:  sanitized.AIScorePrompt,
	}); err != nil {
		return SystemSettings{}, fmt.Errorf("update system settings: %w", err)
	}

	return sanitized, nil
}

// SeedSettings 仅写入尚未保存过的 AI 平台与 Key，用于启动时从环境变量初始化。
func (s *SystemSettingService) SeedSettings(input SystemSettingsInput) error {
	values, err := s.kv.GetMany(settingKeys)
	if err != nil {
		return fmt.Errorf("load system settings: %w", err)
	}

	seed := make(map[string]string)
	if _, exists := values[db.SettingKeyAIProvider]; !exists {
		if provider := normalizeAIProvider(input.AIProvider); provider != "" {
			seed[db.SettingKeyAIProvider] = provider
		}
	}
	if strings.TrimSpace(values[db.SettingKeyOpenAIAPIKey]) == "" {
		if key := strings.TrimSpace(input.OpenAIAPIKey); key != "" {
			seed[db.SettingKeyOpenAIAPIKey] = key
		}
	}
	if strings.TrimSpace(values[db.SettingKeyDeepSeekAPIKey]) == "" {
		if key := strings.TrimSpace(input.DeepSeekAPIKey); key != "" {
			seed[db.SettingKeyDeepSeekAPIKey] = key
		}
	}

	if len(seed) == 0 {
		return nil
	}
	if err := s.kv.SetMany(seed); err != nil {
		return fmt.Errorf("seed system settings: %w", err)
	}
	return nil
}

// SetHTTPClient 替换用于访问第三方服务的 HTTP 客户端，主要面向测试场景。
func (s *SystemSettingService) SetHTTPClient(client httpDoer) {
	if client == nil {
		s.httpClient = &http.Client{Timeout: 10 * time.Second}
		return
	}
	s.httpClient = client
}

// SetOpenAIBaseURL 覆盖 OpenAI API 的基础地址，便于测试或自定义代理。
func (s *SystemSettingService) SetOpenAIBaseURL(base string) {
	overrideEndpoint(s.endpoints, AIProviderOpenAI, base, "")
}

// SetDeepSeekBaseURL 覆盖 DeepSeek API 的基础地址，便于测试或自定义代理。
func (s *SystemSettingService) SetDeepSeekBaseURL(base string) {
	overrideEndpoint(s.endpoints, AIProviderDeepSeek, base, "")
}

// TestAIConnection 调用指定 AI 平台的模型接口验证 API Key 的有效性。
func (s *SystemSettingService) TestAIConnection(ctx context.Context, provider, apiKey string) error {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return ErrAIAPIKeyMissing
	}

	endpoint := s.endpoints[providerOrDefault(provider)]
	label := endpoint.Label

	client := s.httpClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.url("/models"), nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", strings.ToLower(label), err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", "habitjourney-admin/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("%s returned %s (%s)", label, resp.Status, msg)
		}
		return fmt.Errorf("%s returned %s", label, resp.Status)
	}

	return nil
}

func normalizeAIProvider(provider string) string {
	trimmed := strings.ToLower(strings.TrimSpace(provider))
	for _, candidate := range supportedAIProviders {
		if trimmed == candidate {
			return candidate
		}
	}
	return ""
}
