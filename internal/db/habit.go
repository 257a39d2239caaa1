package db

import "time"

// Habit 定义了习惯模型，以 JSON 形式整体存放在键值表中
// Points 为完成奖励，Penalty 为当日未完成时的扣分，0 表示不扣分
type Habit struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	Points      int    `json:"points" validate:"min=0"`
	Penalty     int    `json:"penalty" validate:"min=0"`
}

// CompletedHabit 记录某个习惯在当天的一次完成
type CompletedHabit struct {
	HabitID     string    `json:"habitId" validate:"required"`
	CompletedAt time.Time `json:"completedAt" validate:"required"`
}

// HabitLog 记录某一天完成的习惯，每个日期最多一条
// Date 使用 2006-01-02 格式，CompletedHabits 允许为空
type HabitLog struct {
	Date            string           `json:"date" validate:"required,datetime=2006-01-02"`
	CompletedHabits []CompletedHabit `json:"completedHabits" validate:"dive"`
}

// Completed 判断指定习惯是否已在该日志中完成
func (l HabitLog) Completed(habitID string) bool {
	for _, entry := range l.CompletedHabits {
		if entry.HabitID == habitID {
			return true
		}
	}
	return false
}

// CompletedIDs 返回已完成习惯的 ID 列表
func (l HabitLog) CompletedIDs() []string {
	ids := make([]string, 0, len(l.CompletedHabits))
	for _, entry := range l.CompletedHabits {
		ids = append(ids, entry.HabitID)
	}
	return ids
}

// Clone 深拷贝日志，避免调用方与存储共享底层切片
func (l HabitLog) Clone() HabitLog {
	entries := make([]CompletedHabit, len(l.CompletedHabits))
	copy(entries, l.CompletedHabits)
	return HabitLog{Date: l.Date, CompletedHabits: entries}
}
