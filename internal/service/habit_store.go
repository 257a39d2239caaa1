package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/habitjourney/internal/db"
	"github.com/habitjourney/internal/score"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

const (
	dateLayout = "2006-01-02"

	// DefaultHabitPoints 是新建习惯未指定分值时使用的分值
	DefaultHabitPoints = 10
	// MinHabitNameLength 是习惯名称清洗后的最少字符数
	MinHabitNameLength = 2
)

var (
	// ErrHabitNotFound 在指定习惯不存在时返回
	ErrHabitNotFound = errors.New("habit not found")
	// ErrHabitInvalid 当习惯字段不合法时返回
	ErrHabitInvalid = errors.New("invalid habit")
	// ErrInvalidTarget 当月度目标为负数时返回
	ErrInvalidTarget = errors.New("monthly target must not be negative")
	// ErrPersist 表示内存状态已更新但写入存储失败
	ErrPersist = errors.New("persist state")
)

var plainTextPolicy = bluemonday.StrictPolicy()

// KeyValueStore 抽象底层的键值存储，db.KVStore 为默认实现
type KeyValueStore interface {
	GetMany(keys []string) (map[string]string, error)
	Set(key, value string) error
	SetMany(values map[string]string) error
}

// HabitInput 定义创建/更新习惯时可配置字段
type HabitInput struct {
	Name        string
	Description string
	Points      int
	Penalty     int
}

// HabitStoreOptions 配置 HabitStore 的时区、默认目标与日志
type HabitStoreOptions struct {
	Logger               *zap.Logger
	Location             *time.Location
	DefaultMonthlyTarget int
}

// LoadReport 汇总一次加载中执行的迁移与回退
type LoadReport struct {
	Migrations map[string][]string
	Fallbacks  []string
}

// ToggleResult 描述一次打卡切换后的状态
type ToggleResult struct {
	HabitID          string
	Date             string
	Completed        bool
	CompletedAt      *time.Time
	MonthScoreBefore int
	MonthScoreAfter  int
}

// DaySnapshot 是某一天计算得分所需的全部输入
type DaySnapshot struct {
	Date         string
	Habits       []db.Habit
	CompletedIDs []string
}

// HabitStore 持有习惯、每日日志与月度目标，并负责持久化
// 三个数据块相互独立写入；写入失败只上报，不回滚内存状态
type HabitStore struct {
	mu            sync.RWMutex
	kv            KeyValueStore
	logger        *zap.Logger
	validate      *validator.Validate
	location      *time.Location
	now           func() time.Time
	newID         func() string
	defaultTarget int

	habits []db.Habit
	logs   []db.HabitLog
	target int
}

// NewHabitStore 构造 HabitStore，使用前需调用 Load
func NewHabitStore(kv KeyValueStore, opts HabitStoreOptions) *HabitStore {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	location := opts.Location
	if location == nil {
		location = time.Local
	}
	target := opts.DefaultMonthlyTarget
	if target < 0 {
		target = 0
	}

	return &HabitStore{
		kv:            kv,
		logger:        logger,
		validate:      validator.New(),
		location:      location,
		now:           time.Now,
		newID:         newHabitID,
		defaultTarget: target,
		habits:        defaultHabits(),
		logs:          []db.HabitLog{},
		target:        target,
	}
}

// SetClock 覆盖当前时间来源，主要用于测试
func (s *HabitStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	s.now = now
}

// SetIDGenerator 覆盖习惯 ID 生成方式，主要用于测试
func (s *HabitStore) SetIDGenerator(fn func() string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		fn = newHabitID
	}
	s.newID = fn
}

func newHabitID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	}
	return id.String()
}

func defaultHabits() []db.Habit {
	return []db.Habit{
		{ID: "1", Name: "Read for 15 minutes", Description: "Read a book or an article.", Points: 10},
		{ID: "2", Name: "Morning workout", Description: "A 20-minute exercise session.", Points: 20},
		{ID: "3", Name: "Meditate", Description: "5 minutes of mindfulness meditation.", Points: 15},
		{ID: "4", Name: "Drink 8 glasses of water", Description: "Stay hydrated throughout the day.", Points: 5},
	}
}

// Load 从存储读取三个数据块。缺失的数据块使用默认值；
// 读取或校验失败的数据块回退到默认值并记录错误，其余数据块不受影响。
func (s *HabitStore) Load() LoadReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	report := LoadReport{Migrations: map[string][]string{}}
	migratedAt := s.now()

	values, err := s.kv.GetMany([]string{db.KeyHabits, db.KeyLogs, db.KeyMonthlyTarget})
	if err != nil {
		s.logger.Error("failed to read habit state, using defaults", zap.Error(err))
		values = nil
		report.Fallbacks = append(report.Fallbacks, db.KeyHabits, db.KeyLogs, db.KeyMonthlyTarget)
	}

	s.habits = defaultHabits()
	if raw, ok := values[db.KeyHabits]; ok {
		habits, applied, err := decodeHabits(raw, s.validate)
		if err != nil {
			s.logger.Error("failed to decode habits, using defaults", zap.Error(err))
			report.Fallbacks = append(report.Fallbacks, db.KeyHabits)
		} else {
			s.habits = habits
			report.Migrations[db.KeyHabits] = applied
		}
	}

	s.logs = []db.HabitLog{}
	if raw, ok := values[db.KeyLogs]; ok {
		logs, applied, err := decodeLogs(raw, migratedAt, s.validate)
		if err != nil {
			s.logger.Error("failed to decode habit logs, starting empty", zap.Error(err))
			report.Fallbacks = append(report.Fallbacks, db.KeyLogs)
		} else {
			s.logs = logs
			report.Migrations[db.KeyLogs] = applied
		}
	}

	s.target = s.defaultTarget
	if raw, ok := values[db.KeyMonthlyTarget]; ok {
		target, err := decodeMonthlyTarget(raw)
		if err != nil {
			s.logger.Error("failed to decode monthly target, using default", zap.Error(err), zap.Int("default", s.defaultTarget))
			report.Fallbacks = append(report.Fallbacks, db.KeyMonthlyTarget)
		} else {
			s.target = target
		}
	}

	for key, applied := range report.Migrations {
		if len(applied) == 0 {
			delete(report.Migrations, key)
			continue
		}
		for _, name := range applied {
			s.logger.Info("applied storage migration", zap.String("key", key), zap.String("migration", name))
		}
	}

	// 迁移后的格式回写一次，避免每次启动重复迁移
	if _, ok := report.Migrations[db.KeyHabits]; ok {
		_ = s.persistHabitsLocked()
	}
	if _, ok := report.Migrations[db.KeyLogs]; ok {
		_ = s.persistLogsLocked()
	}

	s.logger.Info("habit state loaded",
		zap.Int("habits", len(s.habits)),
		zap.Int("logs", len(s.logs)),
		zap.Int("monthly_target", s.target),
	)
	return report
}

// Habits 返回习惯列表副本
func (s *HabitStore) Habits() []db.Habit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.habits)
}

// Logs 返回全部日志的深拷贝
func (s *HabitStore) Logs() []db.HabitLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLogs(s.logs)
}

// LogFor 返回指定日期的日志
func (s *HabitStore) LogFor(date string) (db.HabitLog, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.logIndexLocked(date); idx >= 0 {
		return s.logs[idx].Clone(), true
	}
	return db.HabitLog{}, false
}

// MonthlyTarget 返回当前月度目标
func (s *HabitStore) MonthlyTarget() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}

// Now 返回存储所在时区的当前时间
func (s *HabitStore) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now().In(s.location)
}

// TodaySnapshot 返回今天的习惯与完成情况
func (s *HabitStore) TodaySnapshot() DaySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	date := s.now().In(s.location).Format(dateLayout)
	snapshot := DaySnapshot{Date: date, Habits: slices.Clone(s.habits), CompletedIDs: []string{}}
	if idx := s.logIndexLocked(date); idx >= 0 {
		snapshot.CompletedIDs = s.logs[idx].CompletedIDs()
	}
	return snapshot
}

// MonthScore 返回 t 所在月份的累计得分
func (s *HabitStore) MonthScore(t time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return score.ForMonth(s.habits, s.logs, score.MonthKey(t.In(s.location)))
}

// AddHabit 分配新 ID 并追加习惯；不检查名称重复
func (s *HabitStore) AddHabit(input HabitInput) (db.Habit, error) {
	input, err := normalizeHabitInput(input)
	if err != nil {
		return db.Habit{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	habit := db.Habit{
		ID:          s.newID(),
		Name:        input.Name,
		Description: input.Description,
		Points:      input.Points,
		Penalty:     input.Penalty,
	}
	s.habits = append(s.habits, habit)

	return habit, s.persistHabitsLocked()
}

// EditHabit 原地替换同 ID 的习惯；ID 不存在时不做任何修改
func (s *HabitStore) EditHabit(id string, input HabitInput) (db.Habit, error) {
	input, err := normalizeHabitInput(input)
	if err != nil {
		return db.Habit{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.habitIndexLocked(id)
	if idx < 0 {
		return db.Habit{}, ErrHabitNotFound
	}

	habit := db.Habit{
		ID:          id,
		Name:        input.Name,
		Description: input.Description,
		Points:      input.Points,
		Penalty:     input.Penalty,
	}
	s.habits[idx] = habit

	return habit, s.persistHabitsLocked()
}

// DeleteHabit 删除习惯并从所有日志中移除它的完成记录，
// 两个数据块在同一事务中写入
func (s *HabitStore) DeleteHabit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.habitIndexLocked(id)
	if idx < 0 {
		return ErrHabitNotFound
	}

	s.habits = slices.Delete(s.habits, idx, idx+1)
	for i := range s.logs {
		s.logs[i].CompletedHabits = slices.DeleteFunc(s.logs[i].CompletedHabits, func(entry db.CompletedHabit) bool {
			return entry.HabitID == id
		})
	}

	habitsBlob, err := json.Marshal(s.habits)
	if err != nil {
		return s.reportPersistError("habits+logs", err)
	}
	logsBlob, err := json.Marshal(s.logs)
	if err != nil {
		return s.reportPersistError("habits+logs", err)
	}

	if err := s.kv.SetMany(map[string]string{
		db.KeyHabits: string(habitsBlob),
		db.KeyLogs:   string(logsBlob),
	}); err != nil {
		return s.reportPersistError("habits+logs", err)
	}
	return nil
}

// ToggleHabit 切换习惯在今天的完成状态，第一次打卡时创建当天日志
func (s *HabitStore) ToggleHabit(id string) (ToggleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.habitIndexLocked(id) < 0 {
		return ToggleResult{}, ErrHabitNotFound
	}

	now := s.now().In(s.location)
	date := now.Format(dateLayout)
	month := score.MonthKey(now)

	result := ToggleResult{HabitID: id, Date: date}
	result.MonthScoreBefore = score.ForMonth(s.habits, s.logs, month)

	idx := s.logIndexLocked(date)
	switch {
	case idx < 0:
		s.logs = append(s.logs, db.HabitLog{
			Date:            date,
			CompletedHabits: []db.CompletedHabit{{HabitID: id, CompletedAt: now}},
		})
		result.Completed = true
	case s.logs[idx].Completed(id):
		s.logs[idx].CompletedHabits = slices.DeleteFunc(s.logs[idx].CompletedHabits, func(entry db.CompletedHabit) bool {
			return entry.HabitID == id
		})
	default:
		s.logs[idx].CompletedHabits = append(s.logs[idx].CompletedHabits, db.CompletedHabit{HabitID: id, CompletedAt: now})
		result.Completed = true
	}

	if result.Completed {
		completedAt := now
		result.CompletedAt = &completedAt
	}
	result.MonthScoreAfter = score.ForMonth(s.habits, s.logs, month)

	return result, s.persistLogsLocked()
}

// SetMonthlyTarget 更新月度目标
func (s *HabitStore) SetMonthlyTarget(target int) (int, error) {
	if target < 0 {
		return 0, ErrInvalidTarget
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.target = target
	if err := s.kv.Set(db.KeyMonthlyTarget, strconv.Itoa(target)); err != nil {
		return target, s.reportPersistError(db.KeyMonthlyTarget, err)
	}
	return target, nil
}

func (s *HabitStore) persistHabitsLocked() error {
	return s.persistBlobLocked(db.KeyHabits, s.habits)
}

func (s *HabitStore) persistLogsLocked() error {
	return s.persistBlobLocked(db.KeyLogs, s.logs)
}

func (s *HabitStore) persistBlobLocked(key string, value any) error {
	blob, err := json.Marshal(value)
	if err != nil {
		return s.reportPersistError(key, err)
	}
	if err := s.kv.Set(key, string(blob)); err != nil {
		return s.reportPersistError(key, err)
	}
	return nil
}

func (s *HabitStore) reportPersistError(key string, err error) error {
	s.logger.Error("failed to persist habit state", zap.String("key", key), zap.Error(err))
	return fmt.Errorf("%w %s: %w", ErrPersist, key, err)
}

func (s *HabitStore) habitIndexLocked(id string) int {
	return slices.IndexFunc(s.habits, func(h db.Habit) bool { return h.ID == id })
}

func (s *HabitStore) logIndexLocked(date string) int {
	return slices.IndexFunc(s.logs, func(l db.HabitLog) bool { return l.Date == date })
}

func cloneLogs(logs []db.HabitLog) []db.HabitLog {
	cloned := make([]db.HabitLog, 0, len(logs))
	for _, log := range logs {
		cloned = append(cloned, log.Clone())
	}
	return cloned
}

func normalizeHabitInput(input HabitInput) (HabitInput, error) {
	input.Name = sanitizePlainText(input.Name)
	input.Description = sanitizePlainText(input.Description)

	if utf8.RuneCountInString(input.Name) < MinHabitNameLength {
		return input, fmt.Errorf("%w: name must be at least %d characters", ErrHabitInvalid, MinHabitNameLength)
	}
	if input.Points < 0 {
		return input, fmt.Errorf("%w: points must not be negative", ErrHabitInvalid)
	}
	if input.Penalty < 0 {
		return input, fmt.Errorf("%w: penalty must not be negative", ErrHabitInvalid)
	}
	return input, nil
}

// sanitizePlainText 去除 HTML 标签，保留普通文本中的 & 等字符
func sanitizePlainText(value string) string {
	return strings.TrimSpace(html.UnescapeString(plainTextPolicy.Sanitize(value)))
}
