package extractor

import "strings"

// Outcome is the resolved result of a sales call.
type Outcome string

const (
	OutcomeClosed Outcome = "CLOSED_DEAL"
	OutcomeLost   Outcome = "LOST_DEAL"
)

// ParseOutcome maps free text to an Outcome. Anything that is not a closed
// deal is treated as lost.
func ParseOutcome(s string) Outcome {
	if strings.EqualFold(strings.TrimSpace(s), string(OutcomeClosed)) {
		return OutcomeClosed
	}
	return OutcomeLost
}

// Classification is the classifier's verdict on one transcript.
type Classification struct {
	Outcome    Outcome `json:"outcome"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
	Defaulted  bool    `json:"defaulted"` // model output unusable, conservative default applied
}

// ObjectionAnalysis is the pivot of a call: the main objection, the rebuttal
// used against it, and how well the rebuttal landed.
type ObjectionAnalysis struct {
	Objection    string  `json:"objection"`
	Rebuttal     string  `json:"rebuttal"`
	QualityScore float64 `json:"quality_score"`
}

type classifyResponse struct {
	Outcome    string  `json:"outcome"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Turn is one speaker-attributed utterance.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}
