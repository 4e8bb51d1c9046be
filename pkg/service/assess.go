package service

import (
	"strings"

	"github.com/complia/complia/pkg/model"
)

// ScoreHighRisk computes the heuristic high-risk indication for an AI system
// from its catalogue attributes. The result is a triage aid, not regulatory
// advice.
func ScoreHighRisk(sys *model.AISystem) *model.HighRiskAssessment {
	score := 0
	var rationale []string

	switch normalize(sys.HRUseCaseType) {
	case "recruitment", "screening", "promotion", "termination":
		score += 40
		rationale = append(rationale, "employment decision use case (Annex III 4)")
	case "task_allocation", "monitoring", "performance_evaluation":
		score += 30
		rationale = append(rationale, "work management or monitoring use case")
	case "":
		// No HR tag; rely on the remaining signals.
	default:
		score += 10
		rationale = append(rationale, "HR-adjacent use case")
	}

	switch normalize(sys.DecisionInfluence) {
	case "automated", "fully_automated":
		score += 40
		rationale = append(rationale, "decisions made without human review")
	case "decisive", "primary":
		score += 30
		rationale = append(rationale, "system output is decisive for the outcome")
	case "advisory", "assistive":
		score += 10
		rationale = append(rationale, "system output advises a human decision maker")
	}

	switch normalize(sys.DeploymentType) {
	case "production", "live":
		score += 20
		rationale = append(rationale, "deployed in production")
	case "pilot":
		score += 10
		rationale = append(rationale, "deployed as a pilot")
	}

	if score > 100 {
		score = 100
	}

	level := "minimal"
	switch {
	case score >= 70:
		level = "high"
	case score >= 40:
		level = "medium"
	case score >= 20:
		level = "low"
	}
	if rationale == nil {
		rationale = []string{"no risk signals in catalogue attributes"}
	}

	return &model.HighRiskAssessment{
		AISystemID: sys.ID,
		Score:      score,
		RiskLevel:  level,
		Rationale:  rationale,
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
