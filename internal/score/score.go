// Package score 汇集习惯得分的纯计算逻辑，不依赖存储与网络。
package score

import (
	"strings"
	"time"

	"github.com/habitjourney/internal/db"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// DefaultMilestones 为月度累计分数的庆祝阈值，需保持升序。
var DefaultMilestones = []int{100, 250, 500, 1000, 2000, 5000}

// Breakdown 描述单日得分的组成。
type Breakdown struct {
	Earned    int
	Penalty   int
	Completed []db.Habit
	Penalized []db.Habit
}

// Total 返回奖励减去扣分后的净得分。
func (b Breakdown) Total() int {
	return b.Earned - b.Penalty
}

// BreakdownForDay 计算单日得分明细：完成的习惯加分，未完成且 penalty>0 的习惯扣分。
func BreakdownForDay(habits []db.Habit, completedIDs []string) Breakdown {
	completed := make(map[string]struct{}, len(completedIDs))
	for _, id := range completedIDs {
		completed[id] = struct{}{}
	}

	var b Breakdown
	for _, habit := range habits {
		if _, ok := completed[habit.ID]; ok {
			b.Earned += habit.Points
			b.Completed = append(b.Completed, habit)
			continue
		}
		if habit.Penalty > 0 {
			b.Penalty += habit.Penalty
			b.Penalized = append(b.Penalized, habit)
		}
	}
	return b
}

// ForDay 返回单日净得分。
func ForDay(habits []db.Habit, completedIDs []string) int {
	return BreakdownForDay(habits, completedIDs).Total()
}

// ForMonth 累加 yearMonth（2006-01）内每条日志的单日得分。
// 没有日志的日期记 0 分，不会补扣未打开应用那天的惩罚。
func ForMonth(habits []db.Habit, logs []db.HabitLog, yearMonth string) int {
	prefix := yearMonth + "-"
	total := 0
	for _, log := range logs {
		if !strings.HasPrefix(log.Date, prefix) {
			continue
		}
		total += ForDay(habits, log.CompletedIDs())
	}
	return total
}

// MonthKey 将时间格式化为 ForMonth 使用的年月键。
func MonthKey(t time.Time) string {
	return t.Format(monthLayout)
}

// DetectMilestone 返回本次变化新跨过的最低阈值（previous < t <= current）。
// 一次变化即使跨过多个阈值也只返回一个。
func DetectMilestone(previous, current int, thresholds []int) (int, bool) {
	for _, threshold := range thresholds {
		if previous < threshold && current >= threshold {
			return threshold, true
		}
	}
	return 0, false
}

// Progress 返回月度得分占目标的百分比，目标不大于 0 时为 0。
func Progress(score, target int) float64 {
	if target <= 0 {
		return 0
	}
	return float64(score) * 100 / float64(target)
}

// DayRow 是月度历史中的一行。
type DayRow struct {
	Date           string
	HasLog         bool
	CompletedCount int
	HabitCount     int
	Score          int
}

// MonthHistory 为 month 所在月份的每一天生成一行记录。
func MonthHistory(habits []db.Habit, logs []db.HabitLog, month time.Time) []DayRow {
	byDate := indexLogs(logs)

	start := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	rows := make([]DayRow, 0, 31)
	for day := start; day.Month() == start.Month(); day = day.AddDate(0, 0, 1) {
		key := day.Format(dateLayout)
		row := DayRow{Date: key, HabitCount: len(habits)}
		if log, ok := byDate[key]; ok {
			row.HasLog = true
			row.CompletedCount = len(log.CompletedHabits)
			row.Score = ForDay(habits, log.CompletedIDs())
		}
		rows = append(rows, row)
	}
	return rows
}

// WeekDay 是周进度图中的一个柱。
type WeekDay struct {
	Date      string
	Label     string
	FullDate  string
	Completed int
}

// WeeklyCompletions 返回截至 today 的最近 7 天完成数，按日期升序。
func WeeklyCompletions(logs []db.HabitLog, today time.Time) []WeekDay {
	byDate := indexLogs(logs)

	days := make([]WeekDay, 0, 7)
	for offset := 6; offset >= 0; offset-- {
		day := today.AddDate(0, 0, -offset)
		key := day.Format(dateLayout)
		item := WeekDay{
			Date:     key,
			Label:    day.Format("Mon"),
			FullDate: day.Format("Jan 2"),
		}
		if log, ok := byDate[key]; ok {
			item.Completed = len(log.CompletedHabits)
		}
		days = append(days, item)
	}
	return days
}

func indexLogs(logs []db.HabitLog) map[string]db.HabitLog {
	byDate := make(map[string]db.HabitLog, len(logs))
	for _, log := range logs {
		if _, exists := byDate[log.Date]; !exists {
			byDate[log.Date] = log
		}
	}
	return byDate
}
