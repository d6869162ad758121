package slack

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFormatSkillLearned(t *testing.T) {
	msg := formatSkillLearned(SkillLearned{
		Segment:      "UK:saas",
		Objection:    "It is too expensive.",
		Rebuttal:     "It pays for itself in a quarter.",
		QualityScore: 0.92,
	})

	checks := []string{
		"New skill learned",
		"UK:saas",
		"It is too expensive.",
		"It pays for itself in a quarter.",
		"0.92",
	}
	for _, check := range checks {
		if !strings.Contains(msg, check) {
			t.Errorf("expected message to contain %q", check)
		}
	}
}

func TestFormatPromptPromoted_QuotesMultiline(t *testing.T) {
	msg := formatPromptPromoted(PromptPromoted{
		Segment:   "US:general",
		MeanScore: 0.5,
		Cases:     3,
		Previous:  "You are a helpful sales agent.",
		Candidate: "Line one.\nLine two.",
	})
	if !strings.Contains(msg, "Mean score 0.50 over 3 cases") {
		t.Errorf("missing score line: %q", msg)
	}
	if !strings.Contains(msg, "> Line one.\n> Line two.") {
		t.Errorf("candidate not quoted line by line: %q", msg)
	}
}

func TestNotifySkillLearned_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("expected Bearer xoxb-test, got %q", r.Header.Get("Authorization"))
		}

		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["channel"] != "C123" {
			t.Errorf("expected channel C123, got %v", body["channel"])
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "ts": "1234567890.123456"})
	}))
	defer server.Close()

	poster := NewPoster("xoxb-test", "C123", discardLogger())
	poster.apiURL = server.URL

	err := poster.NotifySkillLearned(context.Background(), SkillLearned{Segment: "US:general", Objection: "o", Rebuttal: "r"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNotifyPromptPromoted_SlackError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "channel_not_found"})
	}))
	defer server.Close()

	poster := NewPoster("xoxb-test", "CBAD", discardLogger())
	poster.apiURL = server.URL

	err := poster.NotifyPromptPromoted(context.Background(), PromptPromoted{Segment: "US:general"})
	if err == nil {
		t.Fatal("expected error for slack error response")
	}
	if !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("expected channel_not_found in error, got %v", err)
	}
}

func TestNilPosterIsNoop(t *testing.T) {
	var p *Poster
	if err := p.NotifySkillLearned(context.Background(), SkillLearned{}); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if err := p.NotifyPromptPromoted(context.Background(), PromptPromoted{}); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
