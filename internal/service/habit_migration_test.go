package service

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
)

func TestDecodeLogsMergesDuplicateDates(t *testing.T) {
	raw := `[
		{"date":"2024-05-01","completedHabits":[{"habitId":"a","completedAt":"2024-05-01T08:00:00Z"}]},
		{"date":"2024-05-01","completedHabits":["a","b"]}
	]`

	logs, applied, err := decodeLogs(raw, testNow, validator.New())
	if err != nil {
		t.Fatalf("decodeLogs returned error: %v", err)
	}
	if !slices.Equal(applied, []string{MigrationCompletedHabitBareID, MigrationLogDedupe}) {
		t.Fatalf("unexpected migrations %v", applied)
	}
	if len(logs) != 1 || len(logs[0].CompletedHabits) != 2 {
		t.Fatalf("unexpected merged logs: %+v", logs)
	}
	first := logs[0].CompletedHabits[0]
	if first.HabitID != "a" || !first.CompletedAt.Equal(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("first completion should keep its original timestamp: %+v", first)
	}
}

func TestDecodeLogsRejectsBadShapes(t *testing.T) {
	cases := []string{
		`{"date":"2024-05-01"}`,
		`null`,
		`[{"date":"May 1","completedHabits":[]}]`,
		`[{"date":"2024-05-01","completedHabits":[42]}]`,
	}
	for _, raw := range cases {
		if _, _, err := decodeLogs(raw, testNow, validator.New()); !errors.Is(err, ErrStoredShape) {
			t.Fatalf("expected ErrStoredShape for %s, got %v", raw, err)
		}
	}
}

func TestDecodeHabitsCurrentShapeHasNoMigrations(t *testing.T) {
	habits, applied, err := decodeHabits(`[{"id":"1","name":"Read","description":"","points":10,"penalty":2}]`, validator.New())
	if err != nil {
		t.Fatalf("decodeHabits returned error: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected no migrations, got %v", applied)
	}
	if len(habits) != 1 || habits[0].Penalty != 2 {
		t.Fatalf("unexpected habits %+v", habits)
	}

	if _, _, err := decodeHabits(`[{"id":"1","name":"Read","points":-3}]`, validator.New()); !errors.Is(err, ErrStoredShape) {
		t.Fatalf("expected ErrStoredShape for negative points, got %v", err)
	}
	for _, raw := range []string{
		`[{"id":"1","name":"Read","points":1,"penalty":-0.5}]`,
		`[{"id":"1","name":"Read","points":1e300}]`,
	} {
		if _, _, err := decodeHabits(raw, validator.New()); !errors.Is(err, ErrStoredShape) {
			t.Fatalf("expected ErrStoredShape for %s, got %v", raw, err)
		}
	}
}

func TestDecodeMonthlyTarget(t *testing.T) {
	if target, err := decodeMonthlyTarget("1200"); err != nil || target != 1200 {
		t.Fatalf("unexpected result %d, %v", target, err)
	}
	for _, raw := range []string{"", "abc", "-1", "12.5"} {
		if _, err := decodeMonthlyTarget(raw); !errors.Is(err, ErrStoredShape) {
			t.Fatalf("expected ErrStoredShape for %q, got %v", raw, err)
		}
	}
}
