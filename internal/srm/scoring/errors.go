package scoring

// CatalogError 评估标准配置错误，启动时即为致命错误
type CatalogError struct {
	Code string
	msg  string
}

func (e *CatalogError) Error() string { return "catalog: " + e.msg }

// CalculatorError 评分输入不合法或不完整，可由评估人修正
type CalculatorError struct {
	Code string
	msg  string
}

func (e *CalculatorError) Error() string { return "calculator: " + e.msg }

// PolicyError 综合得分未达到资格门槛
type PolicyError struct {
	Code string
	msg  string
}

func (e *PolicyError) Error() string { return "policy: " + e.msg }

var (
	ErrWeightsNotNormalized = &CatalogError{Code: "weights_not_normalized", msg: "category weights do not sum to 100"}
	ErrDuplicateCategory    = &CatalogError{Code: "duplicate_category", msg: "duplicate category id"}
	ErrDuplicateItem        = &CatalogError{Code: "duplicate_item", msg: "duplicate item id"}
	ErrEmptyCatalog         = &CatalogError{Code: "empty_catalog", msg: "catalog has no categories"}
	ErrInvalidWeight        = &CatalogError{Code: "invalid_weight", msg: "category weight must be a positive finite number"}
	ErrInvalidThresholds    = &CatalogError{Code: "invalid_thresholds", msg: "thresholds must satisfy 0 <= satisfactory <= excellent <= 100"}
	ErrInvalidMaxItemScore  = &CatalogError{Code: "invalid_max_item_score", msg: "max item score must be positive"}
	ErrCategoryWithoutItems = &CatalogError{Code: "category_without_items", msg: "category has no items"}
	ErrUnknownCatalog       = &CatalogError{Code: "unknown_catalog", msg: "unknown catalog"}
)

var (
	ErrEmptyCategory     = &CalculatorError{Code: "empty_category", msg: "category has no item scores"}
	ErrMissingCategory   = &CalculatorError{Code: "missing_category", msg: "catalog category has no input"}
	ErrMissingItem       = &CalculatorError{Code: "missing_item", msg: "catalog item has no score"}
	ErrUnknownCategory   = &CalculatorError{Code: "unknown_category", msg: "category is not in the catalog"}
	ErrUnknownItem       = &CalculatorError{Code: "unknown_item", msg: "item is not in the catalog"}
	ErrCategoryMismatch  = &CalculatorError{Code: "category_mismatch", msg: "input category id does not match its key"}
	ErrScoreOutOfRange   = &CalculatorError{Code: "score_out_of_range", msg: "item score out of range"}
	ErrAIScoreOutOfRange = &CalculatorError{Code: "ai_score_out_of_range", msg: "ai score must be in [0,100] and confidence in [0,1]"}
)

var ErrBelowThreshold = &PolicyError{Code: "below_threshold", msg: "composite score is below the minimum pass score"}
