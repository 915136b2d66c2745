package entity

import (
	"time"

	"github.com/bitfantasy/nimo-qualify/internal/srm/scoring"
)

// Evaluation 供应商资格评估记录
type Evaluation struct {
	ID          string `json:"id" gorm:"primaryKey;size:32"`
	TenderID    string `json:"tender_id" gorm:"size:32;not null;index"`
	SupplierID  string `json:"supplier_id" gorm:"size:32;not null;index"`
	EvaluatorID string `json:"evaluator_id" gorm:"size:32;not null;index"`

	// 评估目录（提交时快照，之后权重变更不影响该记录）
	CatalogID       string           `json:"catalog_id" gorm:"size:64;not null"`
	CatalogVersion  string           `json:"catalog_version" gorm:"size:64"`
	CatalogSnapshot *scoring.Catalog `json:"-" gorm:"serializer:json;type:text"`

	// 评分输入；HumanScore 只由工作流根据输入重算，不接受客户端写入
	CategoryInputs scoring.Inputs `json:"category_inputs" gorm:"type:jsonb"`
	HumanScore     *float64       `json:"human_score"`
	AIScore        *float64       `json:"ai_score"`
	AIConfidence   *float64       `json:"ai_confidence"`

	Status         string `json:"status" gorm:"size:20;not null;default:draft;index"` // draft/submitted/under_review/completed
	SubmitOverride bool   `json:"submit_override" gorm:"default:false"`

	// 复核
	ReviewerID           string     `json:"reviewer_id" gorm:"size:32"`
	DivergenceFlagged    bool       `json:"divergence_flagged" gorm:"default:false"`
	SecondaryReviewerID  string     `json:"secondary_reviewer_id" gorm:"size:32"`
	SecondaryReviewedAt  *time.Time `json:"secondary_reviewed_at"`
	SecondaryReviewNotes string     `json:"secondary_review_notes" gorm:"type:text"`

	// 退回
	ReturnReason string `json:"return_reason" gorm:"size:50"`
	ReturnNotes  string `json:"return_notes" gorm:"type:text"`

	// 结论
	Decision      string     `json:"decision" gorm:"size:20"` // accept/reject
	DecisionNotes string     `json:"decision_notes" gorm:"type:text"`
	CompletedAt   *time.Time `json:"completed_at"`

	SubmissionDate     *time.Time `json:"submission_date"`
	EvaluationDeadline time.Time  `json:"evaluation_deadline" gorm:"not null;index"`
	OverdueSince       *time.Time `json:"overdue_since"`
	LastModified       time.Time  `json:"last_modified" gorm:"not null"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	Supplier *Supplier `json:"supplier,omitempty" gorm:"foreignKey:SupplierID"`
}

func (Evaluation) TableName() string {
	return "srm_qualification_evaluations"
}

// 评估状态
const (
	EvalStatusDraft       = "draft"
	EvalStatusSubmitted   = "submitted"
	EvalStatusUnderReview = "under_review"
	EvalStatusCompleted   = "completed"
)

// ActiveStatuses 仍在进行中的状态（可能逾期）
var ActiveStatuses = []string{EvalStatusDraft, EvalStatusSubmitted, EvalStatusUnderReview}

// 最终结论
const (
	DecisionAccept = "accept"
	DecisionReject = "reject"
)

// IsActive reports whether the record can still become overdue.
func (e *Evaluation) IsActive() bool {
	switch e.Status {
	case EvalStatusDraft, EvalStatusSubmitted, EvalStatusUnderReview:
		return true
	}
	return false
}

// IsFrozen reports whether category inputs can no longer be edited.
func (e *Evaluation) IsFrozen() bool {
	return e.Status != EvalStatusDraft
}
