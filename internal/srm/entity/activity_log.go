package entity

import "time"

// ActivityLog 资格评估操作日志（审计）
type ActivityLog struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	EntityType string `json:"entity_type" gorm:"size:50;not null;index:idx_activity_entity"` // evaluation/supplier
	EntityID   string `json:"entity_id" gorm:"size:32;not null;index:idx_activity_entity"`

	Action     string `json:"action" gorm:"size:50;not null"` // assign/save_draft/submit/submit_override/ai_reconcile/finalize等
	FromStatus string `json:"from_status" gorm:"size:20"`
	ToStatus   string `json:"to_status" gorm:"size:20"`

	Content  string `json:"content" gorm:"type:text"`
	Metadata JSONB  `json:"metadata" gorm:"type:jsonb"`

	OperatorID string    `json:"operator_id" gorm:"size:32"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ActivityLog) TableName() string {
	return "srm_qualification_activity_logs"
}

// 实体类型
const (
	ActivityEntityEvaluation = "evaluation"
	ActivityEntitySupplier   = "supplier"
)

// 操作类型
const (
	ActionAssign            = "assign"
	ActionSaveDraft         = "save_draft"
	ActionSubmit            = "submit"
	ActionSubmitOverride    = "submit_override"
	ActionStartReview       = "start_review"
	ActionAIReconcile       = "ai_reconcile"
	ActionDivergenceFlagged = "divergence_flagged"
	ActionSecondaryReview   = "secondary_review"
	ActionReturn            = "return"
	ActionFinalize          = "finalize"
	ActionOverdueDetected   = "overdue_detected"
	ActionArchived          = "archived"
)
