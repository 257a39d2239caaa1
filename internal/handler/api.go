package handler

import (
	"github.com/habitjourney/internal/score"
	"github.com/habitjourney/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db         *gorm.DB
	store      *service.HabitStore
	scores     *service.DailyScoreService
	quotes     *service.QuoteService
	system     *service.SystemSettingService
	milestones []int
	logger     *zap.Logger
}

// Services 汇总处理器依赖的业务服务，由 main 或测试组装。
type Services struct {
	Store  *service.HabitStore
	Scores *service.DailyScoreService
	Quotes *service.QuoteService
	System *service.SystemSettingService
}

// NewAPI constructs a handler set with shared services.
func NewAPI(db *gorm.DB, services Services, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		db:         db,
		store:      services.Store,
		scores:     services.Scores,
		quotes:     services.Quotes,
		system:     services.System,
		milestones: score.DefaultMilestones,
		logger:     logger,
	}
}

// DB exposes the underlying gorm instance.
func (a *API) DB() *gorm.DB {
	return a.db
}

// SetMilestones 覆盖庆祝阈值，需保持升序
func (a *API) SetMilestones(thresholds []int) {
	if len(thresholds) == 0 {
		thresholds = score.DefaultMilestones
	}
	a.milestones = thresholds
}
