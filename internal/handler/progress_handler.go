package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitjourney/internal/score"
)

const monthFormat = "2006-01"

type targetPayload struct {
	Target *int `json:"target" binding:"required"`
}

// GetProgress 返回本月累计得分与目标完成度
func (a *API) GetProgress(c *gin.Context) {
	now := a.store.Now()
	monthScore := a.store.MonthScore(now)
	target := a.store.MonthlyTarget()

	c.JSON(http.StatusOK, gin.H{
		"month":   score.MonthKey(now),
		"score":   monthScore,
		"target":  target,
		"percent": score.Progress(monthScore, target),
	})
}

// GetHistory 返回指定月份每一天的打卡与得分，缺省为当前月份
func (a *API) GetHistory(c *gin.Context) {
	now := a.store.Now()
	month := now
	if raw := strings.TrimSpace(c.Query("month")); raw != "" {
		parsed, err := time.ParseInLocation(monthFormat, raw, now.Location())
		if err != nil {
			respondError(c, http.StatusBadRequest, "月份格式应为 YYYY-MM")
			return
		}
		month = parsed
	}

	rows := score.MonthHistory(a.store.Habits(), a.store.Logs(), month)
	days := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		days = append(days, gin.H{
			"date":           row.Date,
			"hasLog":         row.HasLog,
			"completedCount": row.CompletedCount,
			"habitCount":     row.HabitCount,
			"score":          row.Score,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"month": month.Format(monthFormat),
		"days":  days,
	})
}

// GetWeeklyProgress 返回最近七天的完成数，用于周进度图
func (a *API) GetWeeklyProgress(c *gin.Context) {
	week := score.WeeklyCompletions(a.store.Logs(), a.store.Now())
	days := make([]gin.H, 0, len(week))
	for _, day := range week {
		days = append(days, gin.H{
			"date":      day.Date,
			"label":     day.Label,
			"fullDate":  day.FullDate,
			"completed": day.Completed,
		})
	}
	c.JSON(http.StatusOK, gin.H{"days": days})
}

// GetMonthlyTarget 返回月度目标
func (a *API) GetMonthlyTarget(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"target": a.store.MonthlyTarget()})
}

// UpdateMonthlyTarget 更新月度目标
func (a *API) UpdateMonthlyTarget(c *gin.Context) {
	var payload targetPayload
	if !bindJSON(c, &payload, "请填写有效的月度目标") {
		return
	}

	target, err := a.store.SetMonthlyTarget(*payload.Target)
	if err != nil && !isPersistOnly(err) {
		handleHabitError(c, err)
		return
	}

	respondMutation(c, err, gin.H{"target": target})
}
