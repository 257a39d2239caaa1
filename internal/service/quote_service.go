package service

import (
	"context"

	"go.uber.org/zap"
)

// FallbackQuote 在模型不可用时展示。
const FallbackQuote = "The journey of a thousand miles begins with a single step."

// MotivationalQuote 是展示给用户的激励语。
type MotivationalQuote struct {
	Quote     string
	QuoteHTML string
	Source    string
}

// QuoteService 按当前习惯名称生成激励语，并按名称快照缓存结果。
type QuoteService struct {
	store     *HabitStore
	generator QuoteGenerator
	logger    *zap.Logger
	cache     snapshotCache[MotivationalQuote]
}

// NewQuoteService 构造 QuoteService，generator 为 nil 时总是返回固定激励语。
func NewQuoteService(store *HabitStore, generator QuoteGenerator, logger *zap.Logger) *QuoteService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuoteService{store: store, generator: generator, logger: logger}
}

// Quote 返回当前习惯对应的激励语；没有习惯时返回空内容，refresh 为 true 时忽略缓存。
func (s *QuoteService) Quote(ctx context.Context, refresh bool) MotivationalQuote {
	names := s.habitNames()
	if len(names) == 0 {
		return MotivationalQuote{Source: ScoreSourceLocal}
	}

	key := snapshotKey(names)
	if !refresh {
		if cached, ok := s.cache.get(key); ok {
			return cached
		}
	}

	fallback := MotivationalQuote{Quote: FallbackQuote, QuoteHTML: renderMarkdown(FallbackQuote), Source: ScoreSourceLocal}
	if s.generator == nil {
		return fallback
	}

	result, err := s.generator.GenerateQuote(ctx, QuoteInput{Habits: names})
	if err != nil {
		s.logger.Warn("quote generation failed, using fallback", zap.Error(err))
		return fallback
	}

	if snapshotKey(s.habitNames()) != key {
		// 习惯在请求期间被修改，结果不再对应当前列表
		s.logger.Info("discarding stale quote")
		return fallback
	}

	quote := MotivationalQuote{Quote: result.Quote, QuoteHTML: renderMarkdown(result.Quote), Source: ScoreSourceAI}

	s.cache.put(key, quote)
	return quote
}

func (s *QuoteService) habitNames() []string {
	habits := s.store.Habits()
	names := make([]string, 0, len(habits))
	for _, habit := range habits {
		names = append(names, habit.Name)
	}
	return names
}
