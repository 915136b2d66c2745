package scoring

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// CategoryInput 单个类别的评分输入
type CategoryInput struct {
	CategoryID string         `json:"category_id,omitempty"`
	ItemScores map[string]int `json:"item_scores"`
	Comments   string         `json:"comments,omitempty"`
}

// Inputs maps category id to the evaluator's input for that category.
type Inputs map[string]CategoryInput

func (in Inputs) Value() (driver.Value, error) {
	if in == nil {
		return nil, nil
	}
	return json.Marshal(in)
}

func (in *Inputs) Scan(value interface{}) error {
	if value == nil {
		*in = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to scan category inputs: %v", value)
	}
	return json.Unmarshal(raw, in)
}

// Clone deep-copies the inputs. Nil item maps stay nil.
func (in Inputs) Clone() Inputs {
	if in == nil {
		return nil
	}
	out := make(Inputs, len(in))
	for k, v := range in {
		if v.ItemScores != nil {
			scores := make(map[string]int, len(v.ItemScores))
			for item, s := range v.ItemScores {
				scores[item] = s
			}
			v.ItemScores = scores
		}
		out[k] = v
	}
	return out
}

// CategoryScore averages the item scores and expresses the mean as a
// percentage of maxItemScore.
func CategoryScore(input CategoryInput, maxItemScore int) (float64, error) {
	if maxItemScore <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidMaxItemScore, maxItemScore)
	}
	if len(input.ItemScores) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyCategory, input.CategoryID)
	}
	var total int
	for item, v := range input.ItemScores {
		if v < 0 || v > maxItemScore {
			return 0, fmt.Errorf("%w: %s.%s=%d not in [0,%d]", ErrScoreOutOfRange, input.CategoryID, item, v, maxItemScore)
		}
		total += v
	}
	mean := float64(total) / float64(len(input.ItemScores))
	return mean / float64(maxItemScore) * 100, nil
}

// CompositeScore is the weighted sum of category scores over every catalog
// category. A catalog category without input is an error, never a zero.
func CompositeScore(inputs Inputs, catalog *Catalog) (float64, error) {
	var composite float64
	for _, cat := range catalog.Categories {
		in, ok := inputs[cat.ID]
		if !ok {
			return 0, fmt.Errorf("%w: %s", ErrMissingCategory, cat.ID)
		}
		if in.CategoryID == "" {
			in.CategoryID = cat.ID
		}
		score, err := CategoryScore(in, catalog.MaxItemScore)
		if err != nil {
			return 0, err
		}
		composite += score * cat.WeightPercent / 100
	}
	return composite, nil
}

// RoundForDisplay rounds a composite score for presentation only.
func RoundForDisplay(score float64) int {
	return int(math.Round(score))
}

// ValidateInputs rejects inputs that reference unknown categories or items, or
// carry out-of-range values. Partial inputs are allowed.
func ValidateInputs(inputs Inputs, catalog *Catalog) error {
	for _, key := range sortedKeys(inputs) {
		in := inputs[key]
		cat, ok := catalog.Category(key)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, key)
		}
		if in.CategoryID != "" && in.CategoryID != key {
			return fmt.Errorf("%w: %s != %s", ErrCategoryMismatch, in.CategoryID, key)
		}
		for _, item := range sortedItems(in.ItemScores) {
			v := in.ItemScores[item]
			if !cat.HasItem(item) {
				return fmt.Errorf("%w: %s.%s", ErrUnknownItem, key, item)
			}
			if v < 0 || v > catalog.MaxItemScore {
				return fmt.Errorf("%w: %s.%s=%d not in [0,%d]", ErrScoreOutOfRange, key, item, v, catalog.MaxItemScore)
			}
		}
	}
	return nil
}

// Completeness 评估完成度
type Completeness struct {
	Complete          bool                `json:"complete"`
	MissingCategories []string            `json:"missing_categories,omitempty"`
	EmptyCategories   []string            `json:"empty_categories,omitempty"`
	MissingItems      map[string][]string `json:"missing_items,omitempty"`
}

// CheckCompleteness lists what is still missing, in catalog order.
func CheckCompleteness(inputs Inputs, catalog *Catalog) Completeness {
	var c Completeness
	for _, cat := range catalog.Categories {
		in, ok := inputs[cat.ID]
		switch {
		case !ok:
			c.MissingCategories = append(c.MissingCategories, cat.ID)
			continue
		case len(in.ItemScores) == 0:
			c.EmptyCategories = append(c.EmptyCategories, cat.ID)
			continue
		}
		for _, it := range cat.Items {
			if _, scored := in.ItemScores[it.ID]; !scored {
				if c.MissingItems == nil {
					c.MissingItems = make(map[string][]string)
				}
				c.MissingItems[cat.ID] = append(c.MissingItems[cat.ID], it.ID)
			}
		}
	}
	c.Complete = len(c.MissingCategories) == 0 && len(c.EmptyCategories) == 0 && len(c.MissingItems) == 0
	return c
}

// RequireComplete returns the first completeness violation as a CalculatorError.
func RequireComplete(inputs Inputs, catalog *Catalog) error {
	c := CheckCompleteness(inputs, catalog)
	if c.Complete {
		return nil
	}
	if len(c.MissingCategories) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCategory, c.MissingCategories[0])
	}
	if len(c.EmptyCategories) > 0 {
		return fmt.Errorf("%w: %s", ErrEmptyCategory, c.EmptyCategories[0])
	}
	for _, cat := range catalog.Categories {
		if items := c.MissingItems[cat.ID]; len(items) > 0 {
			return fmt.Errorf("%w: %s.%s", ErrMissingItem, cat.ID, items[0])
		}
	}
	return nil
}

// Breakdown 各类别得分与综合得分
type Breakdown struct {
	CategoryScores map[string]float64 `json:"category_scores"`
	Composite      *float64           `json:"composite_score"`
	Completeness   Completeness       `json:"completeness"`
}

// Score computes whatever can be computed from partial inputs. Composite is
// nil until every catalog category has at least one item score.
func Score(inputs Inputs, catalog *Catalog) Breakdown {
	b := Breakdown{
		CategoryScores: make(map[string]float64, len(inputs)),
		Completeness:   CheckCompleteness(inputs, catalog),
	}
	for _, cat := range catalog.Categories {
		in, ok := inputs[cat.ID]
		if !ok || len(in.ItemScores) == 0 {
			continue
		}
		if s, err := CategoryScore(in, catalog.MaxItemScore); err == nil {
			b.CategoryScores[cat.ID] = s
		}
	}
	if composite, err := CompositeScore(inputs, catalog); err == nil {
		b.Composite = &composite
	}
	return b
}

func sortedKeys(in Inputs) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedItems(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
