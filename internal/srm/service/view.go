package service

import (
	"time"

	"github.com/bitfantasy/nimo-qualify/internal/srm/entity"
	"github.com/bitfantasy/nimo-qualify/internal/srm/scoring"
	"github.com/bitfantasy/nimo-qualify/internal/srm/workflow"
)

// EvaluationView 评估记录 + 派生字段（得分明细、等级、逾期、偏差）
type EvaluationView struct {
	*entity.Evaluation
	scoring.Breakdown

	Catalog                *scoring.Catalog `json:"catalog"`
	DisplayScore           *int             `json:"display_score"`
	Band                   scoring.Band     `json:"qualification_band,omitempty"`
	EligibleForSubmission  bool             `json:"eligible_for_submission"`
	Overdue                bool             `json:"overdue"`
	DaysOverdue            int              `json:"days_overdue"`
	Divergence             *float64         `json:"divergence,omitempty"`
	SecondaryReviewPending bool             `json:"secondary_review_pending"`
}

// BuildView derives presentation fields. Nothing here is persisted.
func BuildView(rec *entity.Evaluation, cat *scoring.Catalog, now time.Time) *EvaluationView {
	v := &EvaluationView{
		Evaluation:             rec,
		Breakdown:              scoring.Score(rec.CategoryInputs, cat),
		Catalog:                cat,
		Overdue:                workflow.IsOverdue(rec, now),
		DaysOverdue:            workflow.DaysOverdue(rec, now),
		SecondaryReviewPending: rec.DivergenceFlagged && rec.SecondaryReviewedAt == nil,
	}
	if v.Composite != nil {
		d := scoring.RoundForDisplay(*v.Composite)
		v.DisplayScore = &d
		decision := cat.Policy.Decide(*v.Composite)
		v.Band = decision.Band
		v.EligibleForSubmission = decision.EligibleForSubmission && v.Completeness.Complete
	}
	if rec.AIScore != nil && rec.HumanScore != nil {
		d := scoring.Divergence(*rec.AIScore, *rec.HumanScore)
		v.Divergence = &d
	}
	return v
}
