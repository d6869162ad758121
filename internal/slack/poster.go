package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// SkillLearned announces a newly written skill.
type SkillLearned struct {
	Segment      string
	Objection    string
	Rebuttal     string
	QualityScore float64
}

// PromptPromoted announces a segment prompt that passed the gate.
type PromptPromoted struct {
	Segment   string
	MeanScore float64
	Cases     int
	Previous  string
	Candidate string
}

// NotifySkillLearned is a no-op on a nil Poster.
func (p *Poster) NotifySkillLearned(ctx context.Context, s SkillLearned) error {
	if p == nil {
		return nil
	}
	return p.post(ctx, formatSkillLearned(s))
}

// NotifyPromptPromoted is a no-op on a nil Poster.
func (p *Poster) NotifyPromptPromoted(ctx context.Context, pp PromptPromoted) error {
	if p == nil {
		return nil
	}
	return p.post(ctx, formatPromptPromoted(pp))
}

func (p *Poster) post(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Info("posted notification to slack", "ts", slackResp.TS)
	return nil
}

func formatSkillLearned(s SkillLearned) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*New skill learned* (%s)\n", s.Segment)
	fmt.Fprintf(&sb, "*Objection:* %s\n", s.Objection)
	fmt.Fprintf(&sb, "*Rebuttal:* %s\n", s.Rebuttal)
	fmt.Fprintf(&sb, "Quality: %.2f", s.QualityScore)
	return sb.String()
}

func formatPromptPromoted(pp PromptPromoted) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Prompt promoted* for %s\n", pp.Segment)
	fmt.Fprintf(&sb, "Mean score %.2f over %d cases\n\n", pp.MeanScore, pp.Cases)
	fmt.Fprintf(&sb, "*Before:*\n> %s\n", quote(pp.Previous))
	fmt.Fprintf(&sb, "*After:*\n> %s", quote(pp.Candidate))
	return sb.String()
}

func quote(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n> ")
}
