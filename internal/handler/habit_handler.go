package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitjourney/internal/db"
	"github.com/habitjourney/internal/score"
	"github.com/habitjourney/internal/service"
	"go.uber.org/zap"
)

// habitPayload 的 points 可省略：新建时取默认分值，更新时沿用原分值
type habitPayload struct {
	Name        string `json:"name" binding:"required,min=2"`
	Description string `json:"description"`
	Points      *int   `json:"points" binding:"omitempty,min=0"`
	Penalty     int    `json:"penalty" binding:"min=0"`
}

func (p habitPayload) toInput(defaultPoints int) service.HabitInput {
	points := defaultPoints
	if p.Points != nil {
		points = *p.Points
	}
	return service.HabitInput{
		Name:        p.Name,
		Description: p.Description,
		Points:      points,
		Penalty:     p.Penalty,
	}
}

// currentPoints 返回已有习惯的分值，习惯不存在时返回默认分值
func (a *API) currentPoints(id string) int {
	for _, habit := range a.store.Habits() {
		if habit.ID == id {
			return habit.Points
		}
	}
	return service.DefaultHabitPoints
}

// ListHabits 返回全部习惯
func (a *API) ListHabits(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"habits": a.store.Habits()})
}

// CreateHabit 新建习惯
func (a *API) CreateHabit(c *gin.Context) {
	var payload habitPayload
	if !bindJSON(c, &payload, "请填写完整的习惯信息") {
		return
	}

	habit, err := a.store.AddHabit(payload.toInput(service.DefaultHabitPoints))
	if err != nil && !isPersistOnly(err) {
		handleHabitError(c, err)
		return
	}

	respondMutation(c, err, gin.H{"habit": habit})
}

// UpdateHabit 按 ID 更新习惯
func (a *API) UpdateHabit(c *gin.Context) {
	var payload habitPayload
	if !bindJSON(c, &payload, "请填写完整的习惯信息") {
		return
	}

	id := c.Param("id")
	habit, err := a.store.EditHabit(id, payload.toInput(a.currentPoints(id)))
	if err != nil && !isPersistOnly(err) {
		handleHabitError(c, err)
		return
	}

	respondMutation(c, err, gin.H{"habit": habit})
}

// DeleteHabit 删除习惯及其全部打卡记录
func (a *API) DeleteHabit(c *gin.Context) {
	err := a.store.DeleteHabit(c.Param("id"))
	if err != nil && !isPersistOnly(err) {
		handleHabitError(c, err)
		return
	}

	respondMutation(c, err, gin.H{"deleted": true})
}

// ToggleHabit 切换习惯今天的完成状态，跨过月度阈值时返回里程碑
func (a *API) ToggleHabit(c *gin.Context) {
	result, err := a.store.ToggleHabit(c.Param("id"))
	if err != nil && !isPersistOnly(err) {
		handleHabitError(c, err)
		return
	}

	payload := gin.H{
		"habitId":     result.HabitID,
		"date":        result.Date,
		"completed":   result.Completed,
		"completedAt": completedAtValue(result.CompletedAt),
		"monthScore":  result.MonthScoreAfter,
		"milestone":   nil,
	}
	if milestone, ok := score.DetectMilestone(result.MonthScoreBefore, result.MonthScoreAfter, a.milestones); ok {
		payload["milestone"] = milestone
		a.logger.Info("milestone reached", zap.Int("milestone", milestone), zap.Int("month_score", result.MonthScoreAfter))
	}

	respondMutation(c, err, payload)
}

// ListLogs 返回全部打卡日志
func (a *API) ListLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": a.store.Logs()})
}

// GetToday 返回今天的日志与已完成习惯
func (a *API) GetToday(c *gin.Context) {
	snapshot := a.store.TodaySnapshot()

	var log *db.HabitLog
	if entry, ok := a.store.LogFor(snapshot.Date); ok {
		log = &entry
	}

	c.JSON(http.StatusOK, gin.H{
		"date":         snapshot.Date,
		"log":          log,
		"completedIds": snapshot.CompletedIDs,
		"habitCount":   len(snapshot.Habits),
	})
}

func completedAtValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func handleHabitError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrHabitNotFound):
		respondError(c, http.StatusNotFound, "习惯不存在")
	case errors.Is(err, service.ErrHabitInvalid):
		respondError(c, http.StatusBadRequest, "习惯名称不能为空，分值不能为负数")
	case errors.Is(err, service.ErrInvalidTarget):
		respondError(c, http.StatusBadRequest, "月度目标不能为负数")
	default:
		respondError(c, http.StatusInternalServerError, "操作失败")
	}
}
