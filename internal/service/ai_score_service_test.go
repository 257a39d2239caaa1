package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
)

func TestAIScoreServiceNarrateScore(t *testing.T) {
	settings := newTestSettings(t, SystemSettingsInput{AIProvider: AIProviderOpenAI, OpenAIAPIKey: "sk-test"})

	svc := NewAIScoreService(settings, nil)
	svc.SetOpenAIModel("gpt-4o")
	svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
		var payload chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if payload.Model != "gpt-4o" {
			t.Fatalf("unexpected model %s", payload.Model)
		}
		if payload.Messages[0].Content != defaultScoreSystemPrompt {
			t.Fatalf("unexpected system prompt %q", payload.Messages[0].Content)
		}

		var input ScoreNarrationInput
		if err := json.Unmarshal([]byte(payload.Messages[1].Content), &input); err != nil {
			t.Fatalf("user prompt should be JSON: %v", err)
		}
		if len(input.AllHabits) != 2 || len(input.CompletedHabitNames) != 1 || input.CompletedHabitNames[0] != "Read" {
			t.Fatalf("unexpected narration input: %+v", input)
		}
		return chatResponse("```json\n{\"score\": 4.6, \"reasoning\": \"Read earned 10, skipping Run cost 5.\"}\n```", 60, 20), nil
	}})

	result, err := svc.NarrateScore(context.Background(), ScoreNarrationInput{
		AllHabits: []NarrationHabit{
			{Name: "Read", Points: 10},
			{Name: "Run", Points: 20, Penalty: 5},
		},
		CompletedHabitNames: []string{"Read"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != 5 || result.Reasoning != "Read earned 10, skipping Run cost 5." {
		t.Fatalf("unexpected narration: %+v", result)
	}
}

func TestAIScoreServiceRejectsMalformedContent(t *testing.T) {
	settings := newTestSettings(t, SystemSettingsInput{OpenAIAPIKey: "sk-test"})

	for _, content := range []string{
		"Your score is 10",
		`{"reasoning": "no score"}`,
		`{"score": 10, "reasoning": "  "}`,
	} {
		svc := NewAIScoreService(settings, nil)
		svc.SetHTTPClient(fakeHTTPClient{handler: func(r *http.Request) (*http.Response, error) {
			return chatResponse(content, 1, 1), nil
		}})

		if _, err := svc.NarrateScore(context.Background(), ScoreNarrationInput{}); !errors.Is(err, ErrAIMalformedResponse) {
			t.Fatalf("expected ErrAIMalformedResponse for %q, got %v", content, err)
		}
	}
}

func TestParseScoreNarrationAllowsNegativeScores(t *testing.T) {
	result, err := parseScoreNarration(`{"score": -15, "reasoning": "Missed everything."}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Score != -15 {
		t.Fatalf("unexpected score %d", result.Score)
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := map[string]string{
		"{\"a\":1}":                  "{\"a\":1}",
		"```json\n{\"a\":1}\n```":    "{\"a\":1}",
		"```\n{\"a\":1}```":          "{\"a\":1}",
		"  ```json\n{\"a\":1}\n```  ": "{\"a\":1}",
	}
	for input, want := range cases {
		if got := stripCodeFence(input); got != want {
			t.Fatalf("stripCodeFence(%q) = %q, want %q", input, got, want)
		}
	}
}
