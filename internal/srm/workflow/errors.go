package workflow

// Error 非法的状态流转，属于客户端或调用方错误
type Error struct {
	Code string
	msg  string
}

func (e *Error) Error() string { return "workflow: " + e.msg }

// ConcurrencyError 乐观并发冲突，重新读取后可重试
type ConcurrencyError struct {
	Code string
	msg  string
}

func (e *ConcurrencyError) Error() string { return "concurrency: " + e.msg }

var (
	ErrInvalidTransition       = &Error{Code: "invalid_transition", msg: "transition not allowed from current status"}
	ErrRecordFrozen            = &Error{Code: "record_frozen", msg: "category inputs are frozen after submission"}
	ErrAlreadyFinalized        = &Error{Code: "already_finalized", msg: "evaluation already finalized with a different decision"}
	ErrSecondaryReviewRequired = &Error{Code: "secondary_review_required", msg: "divergent ai score requires a secondary review"}
	ErrNoDivergence            = &Error{Code: "no_divergence", msg: "evaluation is not flagged for secondary review"}
	ErrSelfReview              = &Error{Code: "self_review", msg: "secondary reviewer must differ from the evaluator"}
	ErrInvalidDecision         = &Error{Code: "invalid_decision", msg: "decision must be accept or reject"}
	ErrMissingReason           = &Error{Code: "missing_reason", msg: "a reason code is required"}
	ErrNotOwner                = &Error{Code: "not_owner", msg: "only the assigned evaluator may modify this evaluation"}
)

var ErrStaleWrite = &ConcurrencyError{Code: "stale_write", msg: "evaluation was modified since it was read"}
