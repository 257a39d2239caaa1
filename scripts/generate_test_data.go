package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/habitjourney/internal/config"
	"github.com/habitjourney/internal/db"
	"github.com/habitjourney/internal/service"
)

const demoDays = 45

// 测试数据生成器
func main() {
	// 初始化数据库
	cfg := config.Load()
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal("数据库初始化失败:", err)
	}

	fmt.Println("开始生成测试数据...")

	kv := db.NewKVStore(db.DB)
	if err := createDemoLogs(kv, time.Now().In(cfg.Location)); err != nil {
		log.Fatal("生成打卡记录失败:", err)
	}

	fmt.Println("测试数据生成完成！")
	fmt.Printf("打卡记录: 最近 %d 天\n", demoDays)
}

// createDemoLogs 为默认习惯生成最近 demoDays 天的打卡记录，已有记录时跳过
func createDemoLogs(kv *db.KVStore, today time.Time) error {
	if _, exists, err := kv.Get(db.KeyLogs); err != nil {
		return err
	} else if exists {
		fmt.Println("打卡记录已存在，跳过创建")
		return nil
	}

	store := service.NewHabitStore(kv, service.HabitStoreOptions{Location: today.Location()})
	store.Load()
	habits := store.Habits()

	logs := make([]db.HabitLog, 0, demoDays)
	for offset := demoDays; offset >= 1; offset-- {
		day := today.AddDate(0, 0, -offset)
		entry := db.HabitLog{Date: day.Format("2006-01-02"), CompletedHabits: []db.CompletedHabit{}}
		for i, habit := range habits {
			// 固定的伪随机节奏：每个习惯大约五天漏一次
			if (offset*7+i*3)%5 == 0 {
				continue
			}
			completedAt := time.Date(day.Year(), day.Month(), day.Day(), 7+i, 15, 0, 0, day.Location())
			entry.CompletedHabits = append(entry.CompletedHabits, db.CompletedHabit{HabitID: habit.ID, CompletedAt: completedAt})
		}
		logs = append(logs, entry)
	}

	blob, err := json.Marshal(logs)
	if err != nil {
		return err
	}
	if err := kv.Set(db.KeyLogs, string(blob)); err != nil {
		return err
	}

	fmt.Println("✅ 打卡记录创建完成")
	return nil
}
