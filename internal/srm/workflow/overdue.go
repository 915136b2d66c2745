package workflow

import (
	"time"

	"github.com/bitfantasy/nimo-qualify/internal/srm/entity"
)

// IsOverdue reports whether an active record has passed its deadline. A
// completed record is never overdue regardless of its deadline.
func IsOverdue(rec *entity.Evaluation, now time.Time) bool {
	return rec.IsActive() && now.After(rec.EvaluationDeadline)
}

// DaysOverdue counts whole days past the deadline, 0 when not overdue.
func DaysOverdue(rec *entity.Evaluation, now time.Time) int {
	if !IsOverdue(rec, now) {
		return 0
	}
	return int(now.Sub(rec.EvaluationDeadline) / (24 * time.Hour))
}
