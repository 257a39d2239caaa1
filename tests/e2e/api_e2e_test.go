package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/habitjourney/internal/db"
	"github.com/habitjourney/internal/handler"
	"github.com/habitjourney/internal/router"
	"github.com/habitjourney/internal/service"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// clock 允许在测试中推进日期
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type e2eSuite struct {
	handler http.Handler
	gdb     *gorm.DB
	clock   *clock
}

func newE2ESuite(t *testing.T) *e2eSuite {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := gorm.Open(sqlite.Open("file:e2e?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	suite := &e2eSuite{gdb: gdb, clock: &clock{now: time.Date(2024, 5, 30, 20, 0, 0, 0, time.UTC)}}
	suite.handler = suite.boot(t)
	return suite
}

// boot 模拟一次进程启动：从同一个数据库重新加载状态
func (s *e2eSuite) boot(t *testing.T) http.Handler {
	t.Helper()
	kv := db.NewKVStore(s.gdb)
	store := service.NewHabitStore(kv, service.HabitStoreOptions{Location: time.UTC, DefaultMonthlyTarget: 1000})
	store.SetClock(s.clock.Now)
	store.Load()

	api := handler.NewAPI(s.gdb, handler.Services{
		Store:  store,
		Scores: service.NewDailyScoreService(store, nil, nil),
		Quotes: service.NewQuoteService(store, nil, nil),
		System: service.NewSystemSettingService(kv),
	}, nil)
	return router.SetupRouter(api, nil)
}

func (s *e2eSuite) do(t *testing.T, method, path string, body any) map[string]any {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(buf)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("%s %s: expected 200, got %d: %s", method, path, w.Code, w.Body.String())
	}

	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("%s %s: invalid JSON %q", method, path, w.Body.String())
	}
	return payload
}

func TestE2E_HabitJourney(t *testing.T) {
	s := newE2ESuite(t)

	health := s.do(t, http.MethodGet, "/healthz", nil)
	if health["status"] != "ok" {
		t.Fatalf("healthz: unexpected body %v", health)
	}

	habits := s.do(t, http.MethodGet, "/api/habits", nil)["habits"].([]any)
	if len(habits) != 4 {
		t.Fatalf("expected built-in habits, got %d", len(habits))
	}

	created := s.do(t, http.MethodPost, "/api/habits", map[string]any{
		"name":    "Deep work block",
		"points":  60,
		"penalty": 10,
	})["habit"].(map[string]any)
	deepWork := created["id"].(string)

	// 5 月 30 日完成 Deep work + 阅读：60 + 10 = 70
	s.do(t, http.MethodPost, "/api/habits/"+deepWork+"/toggle", nil)
	toggle := s.do(t, http.MethodPost, "/api/habits/1/toggle", nil)
	if toggle["monthScore"] != float64(70) || toggle["milestone"] != nil {
		t.Fatalf("unexpected toggle result %v", toggle)
	}

	// 5 月 31 日完成全部习惯：60 + 10 + 20 + 15 + 5 = 110，月度累计 180 跨过 100
	s.clock.Advance(24 * time.Hour)
	var last map[string]any
	for _, id := range []string{"1", "2", "3", "4", deepWork} {
		last = s.do(t, http.MethodPost, "/api/habits/"+id+"/toggle", nil)
		if last["date"] != "2024-05-31" {
			t.Fatalf("unexpected toggle date %v", last["date"])
		}
	}
	if last["monthScore"] != float64(180) {
		t.Fatalf("unexpected month score %v", last["monthScore"])
	}

	progress := s.do(t, http.MethodGet, "/api/progress", nil)
	if progress["score"] != float64(180) || progress["percent"] != float64(18) {
		t.Fatalf("unexpected progress %v", progress)
	}

	score := s.do(t, http.MethodGet, "/api/score", nil)
	if score["score"] != float64(110) || score["source"] != "local" {
		t.Fatalf("unexpected score %v", score)
	}
	if !strings.Contains(score["reasoning"].(string), "5 completed habits") {
		t.Fatalf("unexpected reasoning %v", score["reasoning"])
	}

	quote := s.do(t, http.MethodGet, "/api/quote", nil)
	if quote["quote"] != service.FallbackQuote {
		t.Fatalf("expected fallback quote without ai settings, got %v", quote)
	}

	// 删除习惯后重启，日志中不再引用该习惯
	s.do(t, http.MethodDelete, "/api/habits/"+deepWork, nil)
	s.do(t, http.MethodPut, "/api/target", map[string]any{"target": 400})
	s.handler = s.boot(t)

	logs := s.do(t, http.MethodGet, "/api/logs", nil)["logs"].([]any)
	if len(logs) != 2 {
		t.Fatalf("expected 2 logs after restart, got %d", len(logs))
	}
	for _, raw := range logs {
		for _, entry := range raw.(map[string]any)["completedHabits"].([]any) {
			if entry.(map[string]any)["habitId"] == deepWork {
				t.Fatalf("deleted habit still referenced in %v", raw)
			}
		}
	}

	history := s.do(t, http.MethodGet, "/api/history?month=2024-05", nil)
	days := history["days"].([]any)
	if row := days[29].(map[string]any); row["score"] != float64(10) || row["hasLog"] != true {
		t.Fatalf("unexpected May 30 row %v", row)
	}
	if row := days[30].(map[string]any); row["score"] != float64(50) || row["completedCount"] != float64(4) {
		t.Fatalf("unexpected May 31 row %v", row)
	}

	target := s.do(t, http.MethodGet, "/api/target", nil)
	if target["target"] != float64(400) {
		t.Fatalf("unexpected target after restart %v", target)
	}

	weekly := s.do(t, http.MethodGet, "/api/progress/weekly", nil)["days"].([]any)
	if bar := weekly[6].(map[string]any); bar["date"] != "2024-05-31" || bar["completed"] != float64(4) {
		t.Fatalf("unexpected weekly bar %v", bar)
	}

	// 月份切换后累计分数清零
	s.clock.Advance(24 * time.Hour)
	progress = s.do(t, http.MethodGet, "/api/progress", nil)
	if progress["month"] != "2024-06" || progress["score"] != float64(0) {
		t.Fatalf("unexpected June progress %v", progress)
	}
}
