package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultMonthlyTarget = 1000

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr           string
	Port                 string
	DatabasePath         string
	GinMode              string
	LogLevel             string
	Location             *time.Location
	DefaultMonthlyTarget int
	AIProvider           string
	OpenAIAPIKey         string
	DeepSeekAPIKey       string
	OpenAIModel          string
	DeepSeekModel        string
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	databasePath := strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	if databasePath == "" {
		databasePath = "habitjourney.db"
	}

	ginMode := strings.TrimSpace(os.Getenv("GIN_MODE"))
	if ginMode == "" {
		ginMode = "release"
	}

	logLevel := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if logLevel == "" {
		logLevel = "info"
	}

	location := time.Local
	if tz := strings.TrimSpace(os.Getenv("TIMEZONE")); tz != "" {
		if loaded, err := time.LoadLocation(tz); err == nil {
			location = loaded
		}
	}

	target := defaultMonthlyTarget
	if raw := strings.TrimSpace(os.Getenv("DEFAULT_MONTHLY_TARGET")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			target = parsed
		}
	}

	return AppConfig{
		ListenAddr:           listenAddr,
		Port:                 port,
		DatabasePath:         databasePath,
		GinMode:              ginMode,
		LogLevel:             logLevel,
		Location:             location,
		DefaultMonthlyTarget: target,
		AIProvider:           strings.ToLower(strings.TrimSpace(os.Getenv("AI_PROVIDER"))),
		OpenAIAPIKey:         strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		DeepSeekAPIKey:       strings.TrimSpace(os.Getenv("DEEPSEEK_API_KEY")),
		OpenAIModel:          strings.TrimSpace(os.Getenv("OPENAI_MODEL")),
		DeepSeekModel:        strings.TrimSpace(os.Getenv("DEEPSEEK_MODEL")),
	}
}
