package hermes

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	SubjectCallCompleted  = "swarm.call.completed"
	SubjectSkillLearned   = "swarm.refinery.skill.learned"
	SubjectAgentGraded    = "swarm.refinery.agent.graded"
	SubjectPromptPromoted = "swarm.refinery.prompt.promoted"
	SubjectPromptRejected = "swarm.refinery.prompt.rejected"
	SubjectRegistered     = "swarm.refinery.registered"
)

// Turn is one utterance in a structured transcript.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// CallCompletedEvent is published by the call session service when a call
// hangs up. Either Transcript or Turns must be set.
type CallCompletedEvent struct {
	CallID      string `json:"call_id"`
	Transcript  string `json:"transcript,omitempty"`
	Turns       []Turn `json:"turns,omitempty"`
	SpeakerRole string `json:"speaker_role"`
	Outcome     string `json:"outcome,omitempty"`
	Country     string `json:"country,omitempty"`
	Industry    string `json:"industry,omitempty"`
}

// ParseCallCompleted decodes and validates a call.completed payload.
func ParseCallCompleted(data []byte) (CallCompletedEvent, error) {
	var evt CallCompletedEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return evt, fmt.Errorf("decode call.completed: %w", err)
	}
	if strings.TrimSpace(evt.Transcript) == "" && len(evt.Turns) == 0 {
		return evt, errors.New("call.completed: no transcript")
	}
	if strings.TrimSpace(evt.SpeakerRole) == "" {
		return evt, errors.New("call.completed: missing speaker_role")
	}
	return evt, nil
}

type SkillLearnedEvent struct {
	CallID       string  `json:"call_id,omitempty"`
	Segment      string  `json:"segment"`
	Fingerprint  string  `json:"fingerprint"`
	Objection    string  `json:"objection"`
	QualityScore float64 `json:"quality_score"`
}

type AgentGradedEvent struct {
	CallID    string  `json:"call_id,omitempty"`
	Segment   string  `json:"segment"`
	Outcome   string  `json:"outcome"`
	Objection string  `json:"objection"`
	Score     float64 `json:"score"`
}

// PromptEvent is published for both promoted and rejected candidates.
// Rejected events never carry the candidate text.
type PromptEvent struct {
	CallID    string  `json:"call_id,omitempty"`
	Segment   string  `json:"segment"`
	Status    string  `json:"status"`
	MeanScore float64 `json:"mean_score"`
	Cases     int     `json:"cases"`
}
