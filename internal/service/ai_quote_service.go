package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// QuoteInput 描述生成激励语所需的习惯名称。
type QuoteInput struct {
	Habits []string
}

// QuoteResult 返回模型生成的激励语及少量元数据。
type QuoteResult struct {
	Quote            string
	PromptTokens     int
	CompletionTokens int
}

// QuoteGenerator 定义激励语生成能力，便于在业务层注入不同实现。
type QuoteGenerator interface {
	GenerateQuote(ctx context.Context, input QuoteInput) (QuoteResult, error)
}

// ErrAIEmptyResponse 表示模型返回了空内容。
var ErrAIEmptyResponse = errors.New("ai returned empty content")

const (
	defaultOpenAIQuoteModel   = "gpt-4o-mini"
	defaultDeepSeekQuoteModel = "deepseek-chat"
	defaultQuoteMaxTokens     = 80
	defaultQuoteTemperature   = 0.9

	defaultQuoteSystemPrompt = "You are a motivational speaker. Generate a motivational quote that encourages the user to continue building good habits. " +
		"The quote should be related to one or more of the habits the user is tracking. Keep the quote short and impactful. Reply with the quote only."
)

// AIQuoteService 基于大模型接口生成激励语。
type AIQuoteService struct {
	*aiChatClient
	logger *zap.Logger
}

// NewAIQuoteService 构造默认的 AIQuoteService。
func NewAIQuoteService(settings *SystemSettingService, logger *zap.Logger) *AIQuoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AIQuoteService{
		aiChatClient: newAIChatClient(settings, defaultOpenAIQuoteModel, defaultDeepSeekQuoteModel),
		logger:       logger,
	}
}

// GenerateQuote 调用当前配置的 AI 平台生成激励语，当未配置 API Key 时返回 ErrAIAPIKeyMissing。
func (s *AIQuoteService) GenerateQuote(ctx context.Context, input QuoteInput) (QuoteResult, error) {
	userPrompt := buildQuotePrompt(input.Habits)
	logAIExchange(s.logger, "QUOTE", "prompt", userPrompt)

	settings, err := s.settings.GetSettings()
	if err != nil {
		return QuoteResult{}, fmt.Errorf("load system settings: %w", err)
	}

	systemPrompt := strings.TrimSpace(settings.AIQuotePrompt)
	if systemPrompt == "" {
		systemPrompt = defaultQuoteSystemPrompt
	}

	result, err := s.callWithSettings(ctx, settings, aiChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    defaultQuoteMaxTokens,
		Temperature:  defaultQuoteTemperature,
	})
	if err != nil {
		return QuoteResult{}, err
	}

	quote := cleanQuote(result.Content)
	logAIExchange(s.logger, "QUOTE", "response", quote)
	if quote == "" {
		return QuoteResult{}, ErrAIEmptyResponse
	}

	return QuoteResult{
		Quote:            quote,
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
	}, nil
}

func buildQuotePrompt(habits []string) string {
	names := make([]string, 0, len(habits))
	for _, habit := range habits {
		if trimmed := strings.TrimSpace(habit); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return "The user is tracking the following habits: " + strings.Join(names, ", ") + "."
}

// cleanQuote 去掉模型常见的包裹引号
func cleanQuote(content string) string {
	quote := strings.TrimSpace(content)
	for _, pair := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}} {
		if len(quote) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(quote, pair[0]) && strings.HasSuffix(quote, pair[1]) {
			quote = strings.TrimSpace(quote[len(pair[0]) : len(quote)-len(pair[1])])
		}
	}
	return quote
}
