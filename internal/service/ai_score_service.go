package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
)

// NarrationHabit 是发送给模型的习惯描述。
type NarrationHabit struct {
	Name    string `json:"name"`
	Points  int    `json:"points"`
	Penalty int    `json:"penalty"`
}

// ScoreNarrationInput 描述解读每日得分所需的上下文。
type ScoreNarrationInput struct {
	AllHabits           []NarrationHabit `json:"allHabits"`
	CompletedHabitNames []string         `json:"completedHabitNames"`
}

// ScoreNarration 返回模型计算的得分与解释。
type ScoreNarration struct {
	Score     int
	Reasoning string
}

// ScoreNarrator 定义每日得分解读能力。
type ScoreNarrator interface {
	NarrateScore(ctx context.Context, input ScoreNarrationInput) (ScoreNarration, error)
}

// ErrAIMalformedResponse 表示模型返回的内容不符合约定格式。
var ErrAIMalformedResponse = errors.New("ai returned malformed content")

const (
	defaultOpenAIScoreModel   = "gpt-4o-mini"
	defaultDeepSeekScoreModel = "deepseek-chat"
	defaultScoreMaxTokens     = 300
	defaultScoreTemperature   = 0.2

	defaultScoreSystemPrompt = "You are an AI assistant designed to evaluate a user's daily productivity score based on their habits and a reward system. " +
		"Add the points of every completed habit, then subtract the penalty of every habit that was not completed and has a penalty greater than zero. " +
		"Habits with a penalty of zero cost nothing when missed. " +
		`Reply with a JSON object of the form {"score": <number>, "reasoning": "<one or two sentences explaining the calculation>"}.`
)

// AIScoreService 基于大模型接口解读每日得分。
type AIScoreService struct {
	*aiChatClient
	logger *zap.Logger
}

// NewAIScoreService 构造默认的 AIScoreService。
func NewAIScoreService(settings *SystemSettingService, logger *zap.Logger) *AIScoreService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AIScoreService{
		aiChatClient: newAIChatClient(settings, defaultOpenAIScoreModel, defaultDeepSeekScoreModel),
		logger:       logger,
	}
}

// NarrateScore 请求模型独立计算并解释当天得分。
func (s *AIScoreService) NarrateScore(ctx context.Context, input ScoreNarrationInput) (ScoreNarration, error) {
	if input.AllHabits == nil {
		input.AllHabits = []NarrationHabit{}
	}
	if input.CompletedHabitNames == nil {
		input.CompletedHabitNames = []string{}
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return ScoreNarration{}, fmt.Errorf("encode score input: %w", err)
	}
	userPrompt := string(payload)
	logAIExchange(s.logger, "SCORE", "prompt", userPrompt)

	settings, err := s.settings.GetSettings()
	if err != nil {
		return ScoreNarration{}, fmt.Errorf("load system settings: %w", err)
	}

	systemPrompt := strings.TrimSpace(settings.AIScorePrompt)
	if systemPrompt == "" {
		systemPrompt = defaultScoreSystemPrompt
	}

	result, err := s.callWithSettings(ctx, settings, aiChatRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		MaxTokens:    defaultScoreMaxTokens,
		Temperature:  defaultScoreTemperature,
		JSONOutput:   true,
	})
	if err != nil {
		return ScoreNarration{}, err
	}
	logAIExchange(s.logger, "SCORE", "response", result.Content)

	return parseScoreNarration(result.Content)
}

func parseScoreNarration(content string) (ScoreNarration, error) {
	body := stripCodeFence(content)

	var parsed struct {
		Score     *float64 `json:"score"`
		Reasoning string   `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return ScoreNarration{}, fmt.Errorf("%w: %w", ErrAIMalformedResponse, err)
	}
	if parsed.Score == nil || math.IsNaN(*parsed.Score) || math.IsInf(*parsed.Score, 0) {
		return ScoreNarration{}, fmt.Errorf("%w: missing score", ErrAIMalformedResponse)
	}
	reasoning := strings.TrimSpace(parsed.Reasoning)
	if reasoning == "" {
		return ScoreNarration{}, fmt.Errorf("%w: missing reasoning", ErrAIMalformedResponse)
	}

	return ScoreNarration{Score: int(math.Round(*parsed.Score)), Reasoning: reasoning}, nil
}

// stripCodeFence 去掉模型偶尔包裹的 ```json 代码块
func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		trimmed = trimmed[newline+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
