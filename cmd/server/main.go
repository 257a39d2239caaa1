package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitjourney/internal/config"
	"github.com/habitjourney/internal/db"
	"github.com/habitjourney/internal/handler"
	"github.com/habitjourney/internal/router"
	"github.com/habitjourney/internal/service"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		logger.Fatal("failed to initialize database", zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	defer func() {
		if sqlDB, err := db.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	kv := db.NewKVStore(db.DB)

	settings := service.NewSystemSettingService(kv)
	if err := settings.SeedSettings(service.SystemSettingsInput{
		AIProvider:     cfg.AIProvider,
		OpenAIAPIKey:   cfg.OpenAIAPIKey,
		DeepSeekAPIKey: cfg.DeepSeekAPIKey,
	}); err != nil {
		logger.Warn("failed to seed ai settings from environment", zap.Error(err))
	}

	store := service.NewHabitStore(kv, service.HabitStoreOptions{
		Logger:               logger.Named("store"),
		Location:             cfg.Location,
		DefaultMonthlyTarget: cfg.DefaultMonthlyTarget,
	})
	report := store.Load()
	if len(report.Fallbacks) > 0 {
		logger.Warn("habit state fell back to defaults", zap.Strings("keys", report.Fallbacks))
	}

	quoteAI := service.NewAIQuoteService(settings, logger.Named("ai.quote"))
	quoteAI.SetOpenAIModel(cfg.OpenAIModel)
	quoteAI.SetDeepSeekModel(cfg.DeepSeekModel)

	scoreAI := service.NewAIScoreService(settings, logger.Named("ai.score"))
	scoreAI.SetOpenAIModel(cfg.OpenAIModel)
	scoreAI.SetDeepSeekModel(cfg.DeepSeekModel)

	api := handler.NewAPI(db.DB, handler.Services{
		Store:  store,
		Scores: service.NewDailyScoreService(store, scoreAI, logger.Named("score")),
		Quotes: service.NewQuoteService(store, quoteAI, logger.Named("quote")),
		System: settings,
	}, logger.Named("api"))

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router.SetupRouter(api, logger.Named("http")),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("habit journey listening", zap.String("addr", cfg.ListenAddr), zap.String("timezone", cfg.Location.String()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

// newLogger 在 release 模式使用 JSON 输出，其余模式使用便于阅读的开发配置
func newLogger(cfg config.AppConfig) (*zap.Logger, error) {
	zapCfg := zap.NewProductionConfig()
	if cfg.GinMode != gin.ReleaseMode {
		zapCfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
