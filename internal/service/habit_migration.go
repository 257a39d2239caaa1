package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/habitjourney/internal/db"
)

// 存储格式迁移步骤名称，加载时按顺序执行并记录日志
const (
	MigrationHabitPenaltyDefault  = "habit-penalty-default"
	MigrationHabitPointsRound     = "habit-points-round"
	MigrationCompletedHabitBareID = "completed-habit-bare-id"
	MigrationLogDedupe            = "log-merge-duplicate-dates"
)

// ErrStoredShape 表示存储中的数据块无法解析为任何已知格式
var ErrStoredShape = errors.New("stored data has an unsupported shape")

// storedHabit 兼容缺少 penalty 字段以及分值为小数的旧版习惯
type storedHabit struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Points      float64  `json:"points"`
	Penalty     *float64 `json:"penalty"`
}

// storedLog 的 completedHabits 既可能是对象也可能是旧版的纯 ID 字符串
type storedLog struct {
	Date            string            `json:"date"`
	CompletedHabits []json.RawMessage `json:"completedHabits"`
}

// decodeHabits 解析习惯数据块，返回结果与实际执行过的迁移步骤
func decodeHabits(raw string, validate *validator.Validate) ([]db.Habit, []string, error) {
	var stored []storedHabit
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, nil, fmt.Errorf("%w: habits: %w", ErrStoredShape, err)
	}
	if stored == nil {
		return nil, nil, fmt.Errorf("%w: habits: not a list", ErrStoredShape)
	}

	var applied []string
	habits := make([]db.Habit, 0, len(stored))
	for _, item := range stored {
		points, rounded, err := wholePoints(item.Points)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: habit %q points: %w", ErrStoredShape, item.ID, err)
		}
		if rounded {
			applied = appendOnce(applied, MigrationHabitPointsRound)
		}

		habit := db.Habit{
			ID:          item.ID,
			Name:        item.Name,
			Description: item.Description,
			Points:      points,
		}
		if item.Penalty == nil {
			applied = appendOnce(applied, MigrationHabitPenaltyDefault)
		} else {
			penalty, rounded, err := wholePoints(*item.Penalty)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: habit %q penalty: %w", ErrStoredShape, item.ID, err)
			}
			if rounded {
				applied = appendOnce(applied, MigrationHabitPointsRound)
			}
			habit.Penalty = penalty
		}

		if err := validate.Struct(habit); err != nil {
			return nil, nil, fmt.Errorf("%w: habit %q: %w", ErrStoredShape, item.ID, err)
		}
		habits = append(habits, habit)
	}

	return habits, applied, nil
}

// wholePoints 把存储中的分值四舍五入为整数，第二个返回值表示是否发生了取整
func wholePoints(value float64) (int, bool, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false, errors.New("not a finite number")
	}
	if value < 0 {
		return 0, false, fmt.Errorf("%v must not be negative", value)
	}
	if value > math.MaxInt32 {
		return 0, false, fmt.Errorf("%v is out of range", value)
	}
	whole := math.Round(value)
	return int(whole), whole != value, nil
}

// decodeLogs 解析打卡日志数据块；旧版字符串条目会被补全为带时间戳的对象，
// 同一日期的多条日志会被合并
func decodeLogs(raw string, migratedAt time.Time, validate *validator.Validate) ([]db.HabitLog, []string, error) {
	var stored []storedLog
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, nil, fmt.Errorf("%w: logs: %w", ErrStoredShape, err)
	}
	if stored == nil {
		return nil, nil, fmt.Errorf("%w: logs: not a list", ErrStoredShape)
	}

	var applied []string
	logs := make([]db.HabitLog, 0, len(stored))
	for _, item := range stored {
		log := db.HabitLog{Date: item.Date, CompletedHabits: make([]db.CompletedHabit, 0, len(item.CompletedHabits))}
		for _, entry := range item.CompletedHabits {
			completed, bare, err := decodeCompletedHabit(entry, migratedAt)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: log %s: %w", ErrStoredShape, item.Date, err)
			}
			if bare {
				applied = appendOnce(applied, MigrationCompletedHabitBareID)
			}
			log.CompletedHabits = append(log.CompletedHabits, completed)
		}

		if err := validate.Struct(log); err != nil {
			return nil, nil, fmt.Errorf("%w: log %s: %w", ErrStoredShape, item.Date, err)
		}
		logs = append(logs, log)
	}

	deduped, changed := dedupeLogs(logs)
	if changed {
		applied = appendOnce(applied, MigrationLogDedupe)
	}

	return deduped, applied, nil
}

func decodeCompletedHabit(entry json.RawMessage, migratedAt time.Time) (db.CompletedHabit, bool, error) {
	trimmed := bytes.TrimSpace(entry)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var habitID string
		if err := json.Unmarshal(trimmed, &habitID); err != nil {
			return db.CompletedHabit{}, false, err
		}
		return db.CompletedHabit{HabitID: habitID, CompletedAt: migratedAt}, true, nil
	}

	var completed db.CompletedHabit
	if err := json.Unmarshal(trimmed, &completed); err != nil {
		return db.CompletedHabit{}, false, err
	}
	return completed, false, nil
}

// dedupeLogs 合并同日期日志并去掉重复的习惯条目，保留首次出现的顺序
func dedupeLogs(logs []db.HabitLog) ([]db.HabitLog, bool) {
	changed := false
	index := make(map[string]int, len(logs))
	result := make([]db.HabitLog, 0, len(logs))

	for _, log := range logs {
		pos, exists := index[log.Date]
		if !exists {
			index[log.Date] = len(result)
			result = append(result, db.HabitLog{Date: log.Date, CompletedHabits: make([]db.CompletedHabit, 0, len(log.CompletedHabits))})
			pos = len(result) - 1
		} else {
			changed = true
		}

		for _, entry := range log.CompletedHabits {
			if result[pos].Completed(entry.HabitID) {
				changed = true
				continue
			}
			result[pos].CompletedHabits = append(result[pos].CompletedHabits, entry)
		}
	}

	return result, changed
}

// decodeMonthlyTarget 解析月度目标，必须是非负整数
func decodeMonthlyTarget(raw string) (int, error) {
	var target int
	if err := json.Unmarshal([]byte(raw), &target); err != nil {
		return 0, fmt.Errorf("%w: monthly target: %w", ErrStoredShape, err)
	}
	if target < 0 {
		return 0, fmt.Errorf("%w: monthly target must not be negative", ErrStoredShape)
	}
	return target, nil
}

func appendOnce(items []string, value string) []string {
	for _, item := range items {
		if item == value {
			return items
		}
	}
	return append(items, value)
}
