package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/habitjourney/internal/score"
)

type fakeNarrator struct {
	calls  int
	result ScoreNarration
	err    error
	during func()
}

func (f *fakeNarrator) NarrateScore(ctx context.Context, input ScoreNarrationInput) (ScoreNarration, error) {
	f.calls++
	if f.during != nil {
		f.during()
	}
	return f.result, f.err
}

func TestDailyScoreServiceUsesNarration(t *testing.T) {
	store := newTestHabitStore(t, setupServiceTestDB(t))
	if _, err := store.ToggleHabit("1"); err != nil {
		t.Fatalf("ToggleHabit returned error: %v", err)
	}

	narrator := &fakeNarrator{result: ScoreNarration{Score: 10, Reasoning: "You **read** today."}}
	svc := NewDailyScoreService(store, narrator, nil)

	result := svc.Today(context.Background())
	if result.Source != ScoreSourceAI || result.Score != 10 || result.Date != "2024-05-10" {
		t.Fatalf("unexpected score: %+v", result)
	}
	if !strings.Contains(result.ReasoningHTML, "<strong>read</strong>") {
		t.Fatalf("expected rendered reasoning, got %q", result.ReasoningHTML)
	}

	svc.Today(context.Background())
	if narrator.calls != 1 {
		t.Fatalf("expected cached narration, got %d calls", narrator.calls)
	}

	if _, err := store.ToggleHabit("2"); err != nil {
		t.Fatalf("ToggleHabit returned error: %v", err)
	}
	svc.Today(context.Background())
	if narrator.calls != 2 {
		t.Fatalf("expected a new narration after the day changed, got %d calls", narrator.calls)
	}
}

func TestDailyScoreServiceFallsBackToLocalScore(t *testing.T) {
	store := newTestHabitStore(t, setupServiceTestDB(t))
	if _, err := store.EditHabit("4", HabitInput{Name: "Drink water", Points: 5, Penalty: 3}); err != nil {
		t.Fatalf("EditHabit returned error: %v", err)
	}
	if _, err := store.ToggleHabit("2"); err != nil {
		t.Fatalf("ToggleHabit returned error: %v", err)
	}

	narrator := &fakeNarrator{err: errors.New("provider down")}
	svc := NewDailyScoreService(store, narrator, nil)

	result := svc.Today(context.Background())
	log, _ := store.LogFor("2024-05-10")
	want := score.ForDay(store.Habits(), log.CompletedIDs())
	if result.Source != ScoreSourceLocal || result.Score != want || want != 17 {
		t.Fatalf("expected local score %d, got %+v", want, result)
	}
	if result.Reasoning != "You earned 20 points from 1 completed habit (Morning workout) and lost 3 points for 1 missed habit (Drink water), for a score of 17 today." {
		t.Fatalf("unexpected reasoning %q", result.Reasoning)
	}

	// 失败结果不缓存，下次请求会重试
	svc.Today(context.Background())
	if narrator.calls != 2 {
		t.Fatalf("expected retry after failure, got %d calls", narrator.calls)
	}
}

func TestDailyScoreServiceEmptyDaySkipsNarration(t *testing.T) {
	store := newTestHabitStore(t, setupServiceTestDB(t))
	narrator := &fakeNarrator{result: ScoreNarration{Score: 99, Reasoning: "unused"}}
	svc := NewDailyScoreService(store, narrator, nil)

	result := svc.Today(context.Background())
	if narrator.calls != 0 {
		t.Fatal("narrator should not be called without completions")
	}
	if result.Score != 0 || result.Reasoning != emptyDayReasoning || result.Source != ScoreSourceLocal {
		t.Fatalf("unexpected empty-day score: %+v", result)
	}
}

func TestDailyScoreServiceDiscardsStaleNarration(t *testing.T) {
	store := newTestHabitStore(t, setupServiceTestDB(t))
	if _, err := store.ToggleHabit("1"); err != nil {
		t.Fatalf("ToggleHabit returned error: %v", err)
	}

	narrator := &fakeNarrator{result: ScoreNarration{Score: 10, Reasoning: "Only reading."}}
	narrator.during = func() {
		narrator.during = nil
		if _, err := store.ToggleHabit("3"); err != nil {
			t.Errorf("ToggleHabit returned error: %v", err)
		}
	}
	svc := NewDailyScoreService(store, narrator, nil)

	result := svc.Today(context.Background())
	if result.Source != ScoreSourceLocal || result.Score != 25 {
		t.Fatalf("expected local score for the current snapshot, got %+v", result)
	}

	narrator.result = ScoreNarration{Score: 25, Reasoning: "Reading and meditation."}
	result = svc.Today(context.Background())
	if result.Source != ScoreSourceAI || result.Score != 25 || narrator.calls != 2 {
		t.Fatalf("expected fresh narration, got %+v after %d calls", result, narrator.calls)
	}
}

func TestDailyScoreServiceStaleNarrationOnEmptyDay(t *testing.T) {
	store := newTestHabitStore(t, setupServiceTestDB(t))
	if _, err := store.ToggleHabit("1"); err != nil {
		t.Fatalf("ToggleHabit returned error: %v", err)
	}

	narrator := &fakeNarrator{result: ScoreNarration{Score: 10, Reasoning: "Only reading."}}
	narrator.during = func() {
		narrator.during = nil
		if _, err := store.ToggleHabit("1"); err != nil {
			t.Errorf("ToggleHabit returned error: %v", err)
		}
	}

	result := NewDailyScoreService(store, narrator, nil).Today(context.Background())
	if result.Source != ScoreSourceLocal || result.Score != 0 || result.Reasoning != emptyDayReasoning {
		t.Fatalf("expected empty-day hint after the only completion was undone, got %+v", result)
	}
}

func TestDailyScoreServiceWithoutNarrator(t *testing.T) {
	store := newTestHabitStore(t, setupServiceTestDB(t))
	if _, err := store.ToggleHabit("3"); err != nil {
		t.Fatalf("ToggleHabit returned error: %v", err)
	}

	result := NewDailyScoreService(store, nil, nil).Today(context.Background())
	if result.Source != ScoreSourceLocal || result.Score != 15 {
		t.Fatalf("unexpected score: %+v", result)
	}
}
