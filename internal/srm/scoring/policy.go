package scoring

import (
	"fmt"
	"math"
)

// Band 资格等级
type Band string

const (
	BandExcellent    Band = "excellent"
	BandSatisfactory Band = "satisfactory"
	BandInsufficient Band = "insufficient"
)

// Decision 资格判定结果
type Decision struct {
	Band                  Band `json:"band"`
	EligibleForSubmission bool `json:"eligible_for_submission"`
}

// Classify maps a composite score onto a band.
func (p Policy) Classify(score float64) Band {
	switch {
	case score >= p.Thresholds.Excellent:
		return BandExcellent
	case score >= p.Thresholds.Satisfactory:
		return BandSatisfactory
	default:
		return BandInsufficient
	}
}

// Decide classifies the score and checks it against the policy's minimum pass score.
func (p Policy) Decide(score float64) Decision {
	return p.DecideWith(score, p.MinimumPassScore)
}

// DecideWith is Decide with an explicit minimum pass score.
func (p Policy) DecideWith(score, minimumPassScore float64) Decision {
	return Decision{
		Band:                  p.Classify(score),
		EligibleForSubmission: score >= minimumPassScore,
	}
}

// CheckSubmission fails with ErrBelowThreshold for an ineligible score unless
// the evaluator explicitly overrides.
func (p Policy) CheckSubmission(score float64, override bool) error {
	if p.Decide(score).EligibleForSubmission || override {
		return nil
	}
	return fmt.Errorf("%w: %.2f < %.2f", ErrBelowThreshold, score, p.MinimumPassScore)
}

// Divergence returns |ai - human|.
func Divergence(ai, human float64) float64 {
	return math.Abs(ai - human)
}

// Diverges reports whether the AI and human scores disagree by more than the
// configured tolerance.
func (p Policy) Diverges(ai, human float64) bool {
	return Divergence(ai, human) > p.DivergenceThreshold
}

// ValidateAIScore checks the externally supplied AI score and its confidence.
func ValidateAIScore(score, confidence float64) error {
	if math.IsNaN(score) || score < 0 || score > 100 || math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
		return fmt.Errorf("%w: score=%v confidence=%v", ErrAIScoreOutOfRange, score, confidence)
	}
	return nil
}
