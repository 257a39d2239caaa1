package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/habitjourney/internal/db"
	"github.com/habitjourney/internal/score"
	"go.uber.org/zap"
)

const (
	// ScoreSourceAI 表示得分与解释来自模型。
	ScoreSourceAI = "ai"
	// ScoreSourceLocal 表示得分由本地纯函数计算。
	ScoreSourceLocal = "local"

	emptyDayReasoning = "Complete some habits to see your score!"
)

// DailyScore 是展示给用户的当天得分。
type DailyScore struct {
	Date          string
	Score         int
	Reasoning     string
	ReasoningHTML string
	Source        string
}

// DailyScoreService 组合本地计算与模型解读；模型失败时回退本地结果，
// 返回时输入已变化的模型结果会被丢弃。
type DailyScoreService struct {
	store    *HabitStore
	narrator ScoreNarrator
	logger   *zap.Logger
	cache    snapshotCache[DailyScore]
}

// NewDailyScoreService 构造 DailyScoreService，narrator 为 nil 时只使用本地计算。
func NewDailyScoreService(store *HabitStore, narrator ScoreNarrator, logger *zap.Logger) *DailyScoreService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyScoreService{store: store, narrator: narrator, logger: logger}
}

// Today 返回今天的得分，永远不会返回空分数。
func (s *DailyScoreService) Today(ctx context.Context) DailyScore {
	snapshot := s.store.TodaySnapshot()
	key := snapshotKey(snapshot)
	if cached, ok := s.cache.get(key); ok {
		return cached
	}

	if len(snapshot.CompletedIDs) == 0 || s.narrator == nil {
		result := localDailyScore(snapshot)
		s.cache.put(key, result)
		return result
	}

	narration, err := s.narrator.NarrateScore(ctx, narrationInput(snapshot))
	if err != nil {
		s.logger.Warn("score narration failed, using local score", zap.String("date", snapshot.Date), zap.Error(err))
		return localDailyScore(snapshot)
	}

	current := s.store.TodaySnapshot()
	if snapshotKey(current) != key {
		s.logger.Info("discarding stale score narration", zap.String("date", snapshot.Date))
		return localDailyScore(current)
	}

	result := DailyScore{
		Date:          snapshot.Date,
		Score:         narration.Score,
		Reasoning:     narration.Reasoning,
		ReasoningHTML: renderMarkdown(narration.Reasoning),
		Source:        ScoreSourceAI,
	}
	s.cache.put(key, result)
	return result
}

func narrationInput(snapshot DaySnapshot) ScoreNarrationInput {
	completed := make(map[string]struct{}, len(snapshot.CompletedIDs))
	for _, id := range snapshot.CompletedIDs {
		completed[id] = struct{}{}
	}

	input := ScoreNarrationInput{
		AllHabits:           make([]NarrationHabit, 0, len(snapshot.Habits)),
		CompletedHabitNames: []string{},
	}
	for _, habit := range snapshot.Habits {
		input.AllHabits = append(input.AllHabits, NarrationHabit{Name: habit.Name, Points: habit.Points, Penalty: habit.Penalty})
		if _, ok := completed[habit.ID]; ok {
			input.CompletedHabitNames = append(input.CompletedHabitNames, habit.Name)
		}
	}
	return input
}

// localDailyScore 本地计算得分；没有完成任何习惯时给出提示语而不是明细
func localDailyScore(snapshot DaySnapshot) DailyScore {
	breakdown := score.BreakdownForDay(snapshot.Habits, snapshot.CompletedIDs)
	reasoning := emptyDayReasoning
	if len(snapshot.CompletedIDs) > 0 {
		reasoning = explainBreakdown(breakdown)
	}
	return DailyScore{
		Date:          snapshot.Date,
		Score:         breakdown.Total(),
		Reasoning:     reasoning,
		ReasoningHTML: renderMarkdown(reasoning),
		Source:        ScoreSourceLocal,
	}
}

// explainBreakdown 生成与模型解读同风格的本地说明
func explainBreakdown(b score.Breakdown) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "You earned %d points from %s", b.Earned, countHabits(len(b.Completed), "completed habit"))
	if len(b.Completed) > 0 {
		fmt.Fprintf(&builder, " (%s)", joinHabitNames(b.Completed))
	}
	if b.Penalty > 0 {
		fmt.Fprintf(&builder, " and lost %d points for %s (%s)", b.Penalty, countHabits(len(b.Penalized), "missed habit"), joinHabitNames(b.Penalized))
	}
	fmt.Fprintf(&builder, ", for a score of %d today.", b.Total())
	return builder.String()
}

func countHabits(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func joinHabitNames(habits []db.Habit) string {
	names := make([]string, 0, len(habits))
	for _, habit := range habits {
		names = append(names, habit.Name)
	}
	return strings.Join(names, ", ")
}
