package db

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// KVEntry 存储一段以字符串为键的数据块，应用状态与系统设置都保存在这里。
type KVEntry struct {
	gorm.Model
	Key   string `gorm:"size:100;uniqueIndex;not null"`
	Value string `gorm:"type:text"`
}

// TableName 自定义表名以保持命名一致。
func (KVEntry) TableName() string {
	return "kv_entries"
}

const (
	// KeyHabits 保存习惯列表。
	KeyHabits = "habit-journey-habits"
	// KeyLogs 保存每日打卡日志列表。
	KeyLogs = "habit-journey-logs"
	// KeyMonthlyTarget 保存月度目标分数。
	KeyMonthlyTarget = "habit-journey-monthly-target"

	// SettingKeyAIProvider 表示当前使用的 AI 平台。
	SettingKeyAIProvider = "ai_provider"
	// SettingKeyOpenAIAPIKey 表示 OpenAI API Key。
	SettingKeyOpenAIAPIKey = "openai_api_key"
	// SettingKeyDeepSeekAPIKey 表示 DeepSeek API Key。
	SettingKeyDeepSeekAPIKey = "deepseek_api_key"
	// SettingKeyAIQuotePrompt 表示激励语生成的系统提示词。
	SettingKeyAIQuotePrompt = "ai_quote_prompt"
	// SettingKeyAIScorePrompt 表示每日得分解读的系统提示词。
	SettingKeyAIScorePrompt = "ai_score_prompt"
)

// KVStore 基于 gorm 实现简单的键值读写。
type KVStore struct {
	db *gorm.DB
}

// NewKVStore 构造 KVStore
func NewKVStore(gdb *gorm.DB) *KVStore {
	return &KVStore{db: gdb}
}

// Get 读取键对应的值，键不存在时 ok 为 false。
func (s *KVStore) Get(key string) (string, bool, error) {
	var entry KVEntry
	if err := s.db.Where("key = ?", key).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return entry.Value, true, nil
}

// GetMany 批量读取，缺失的键不会出现在结果中。
func (s *KVStore) GetMany(keys []string) (map[string]string, error) {
	var entries []KVEntry
	if err := s.db.Where("key IN ?", keys).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("get entries: %w", err)
	}

	values := make(map[string]string, len(entries))
	for _, entry := range entries {
		values[entry.Key] = entry.Value
	}
	return values, nil
}

// Set 写入单个键值，存在则覆盖。
func (s *KVStore) Set(key, value string) error {
	return upsertEntry(s.db, key, value)
}

// SetMany 在同一事务中写入多个键值，任何一项失败都会整体回滚。
func (s *KVStore) SetMany(values map[string]string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			if err := upsertEntry(tx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertEntry(tx *gorm.DB, key, value string) error {
	entry := KVEntry{Key: key, Value: value}
	if err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      value,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
	}).Create(&entry).Error; err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}
