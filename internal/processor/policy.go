package processor

import (
	"strings"

	"github.com/MikeSquared-Agency/refinery/internal/extractor"
)

// Role identifies who led the agent side of a call.
type Role string

const (
	RoleHumanManager Role = "HUMAN_MANAGER"
	RoleAIAgent      Role = "AI_AGENT"
)

// ParseRole normalizes case and whitespace. Unknown roles are kept as given
// and fall through to the outcome-only rules.
func ParseRole(s string) Role {
	return Role(strings.ToUpper(strings.TrimSpace(s)))
}

const (
	ActionLearned   = "learned_new_skill"
	ActionGraded    = "graded_agent"
	ActionOptimized = "prompt_optimized"
	ActionNone      = "no_action_needed"
)

// LearnThreshold is the quality a human-closed call must exceed before its
// rebuttal becomes a skill.
const LearnThreshold = 0.8

// Grades assigned to the AI agent's rebuttal.
const (
	GradeMatch    = 1.0
	GradeMismatch = 0.5
)

// Decision is what a completed call should trigger.
type Decision struct {
	Action   string
	Grade    bool
	Optimize bool
}

// Decide applies the routing table. Rules are checked in order and the first
// match wins.
func Decide(role Role, outcome extractor.Outcome, quality float64) Decision {
	switch {
	case role == RoleHumanManager && outcome == extractor.OutcomeClosed && quality > LearnThreshold:
		return Decision{Action: ActionLearned}
	case role == RoleAIAgent:
		return Decision{Action: ActionGraded, Grade: true, Optimize: outcome == extractor.OutcomeLost}
	case outcome == extractor.OutcomeLost:
		return Decision{Action: ActionOptimized, Optimize: true}
	default:
		return Decision{Action: ActionNone}
	}
}

// GradeRebuttal scores the agent's rebuttal against the learned one. Only an
// exact textual match earns full marks.
func GradeRebuttal(used, known string, found bool) float64 {
	if found && used == known {
		return GradeMatch
	}
	return GradeMismatch
}
