// Package scoring holds the supplier qualification criteria catalog and the
// pure functions that turn evaluator inputs into category scores, a weighted
// composite score and a qualification band.
package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
)

const (
	// WeightEpsilon is the tolerance applied when checking that weights sum to 100.
	WeightEpsilon = 0.01

	DefaultMaxItemScore        = 20
	DefaultExcellentScore      = 80
	DefaultSatisfactoryScore   = 60
	DefaultMinimumPassScore    = 60
	DefaultDivergenceThreshold = 15
	DefaultCatalogID           = "pharma-gmp"
)

// Item 评估子项
type Item struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// Category 评估类别（带权重）
type Category struct {
	ID            string  `json:"id" yaml:"id"`
	Label         string  `json:"label" yaml:"label"`
	WeightPercent float64 `json:"weight_percent" yaml:"weight_percent"`
	Items         []Item  `json:"items" yaml:"items"`
}

// HasItem reports whether itemID belongs to the category.
func (c Category) HasItem(itemID string) bool {
	for _, it := range c.Items {
		if it.ID == itemID {
			return true
		}
	}
	return false
}

// Thresholds 等级门槛
type Thresholds struct {
	Excellent    float64 `json:"excellent" yaml:"excellent"`
	Satisfactory float64 `json:"satisfactory" yaml:"satisfactory"`
}

// Policy 资格判定策略，按目录配置
type Policy struct {
	Thresholds          Thresholds `json:"thresholds" yaml:"thresholds"`
	MinimumPassScore    float64    `json:"minimum_pass_score" yaml:"minimum_pass_score"`
	DivergenceThreshold float64    `json:"divergence_threshold" yaml:"divergence_threshold"`
}

// Catalog 评估标准目录
type Catalog struct {
	ID           string     `json:"id" yaml:"id"`
	Name         string     `json:"name" yaml:"name"`
	Version      string     `json:"version" yaml:"version"`
	MaxItemScore int        `json:"max_item_score" yaml:"max_item_score"`
	Categories   []Category `json:"categories" yaml:"categories"`
	Policy       Policy     `json:"policy" yaml:"policy"`
}

// GetCategories returns the categories in display order.
func (c *Catalog) GetCategories() []Category {
	out := make([]Category, len(c.Categories))
	copy(out, c.Categories)
	return out
}

// Category looks up a category by id.
func (c *Catalog) Category(id string) (Category, bool) {
	for _, cat := range c.Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

// TotalWeight sums all category weights.
func (c *Catalog) TotalWeight() float64 {
	var sum float64
	for _, cat := range c.Categories {
		sum += cat.WeightPercent
	}
	return sum
}

// Validate checks the catalog invariants. It must pass before any scoring happens.
func (c *Catalog) Validate() error {
	if len(c.Categories) == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyCatalog, c.ID)
	}
	if c.MaxItemScore <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxItemScore, c.MaxItemScore)
	}

	seen := make(map[string]struct{}, len(c.Categories))
	for _, cat := range c.Categories {
		if _, dup := seen[cat.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateCategory, cat.ID)
		}
		seen[cat.ID] = struct{}{}

		if !finite(cat.WeightPercent) || cat.WeightPercent <= 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidWeight, cat.ID, cat.WeightPercent)
		}
		if len(cat.Items) == 0 {
			return fmt.Errorf("%w: %s", ErrCategoryWithoutItems, cat.ID)
		}

		items := make(map[string]struct{}, len(cat.Items))
		for _, it := range cat.Items {
			if _, dup := items[it.ID]; dup {
				return fmt.Errorf("%w: %s.%s", ErrDuplicateItem, cat.ID, it.ID)
			}
			items[it.ID] = struct{}{}
		}
	}

	if sum := c.TotalWeight(); math.Abs(sum-100) > WeightEpsilon {
		return fmt.Errorf("%w: sum is %.4f", ErrWeightsNotNormalized, sum)
	}

	t := c.Policy.Thresholds
	if !percent(t.Satisfactory) || !percent(t.Excellent) || t.Satisfactory > t.Excellent {
		return fmt.Errorf("%w: satisfactory=%v excellent=%v", ErrInvalidThresholds, t.Satisfactory, t.Excellent)
	}
	if !percent(c.Policy.MinimumPassScore) || !finite(c.Policy.DivergenceThreshold) || c.Policy.DivergenceThreshold < 0 {
		return fmt.Errorf("%w: minimum_pass=%v divergence=%v", ErrInvalidThresholds, c.Policy.MinimumPassScore, c.Policy.DivergenceThreshold)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// percent: 有限且在 [0,100] 内
func percent(v float64) bool {
	return finite(v) && v >= 0 && v <= 100
}

// Fingerprint hashes the scoring-relevant content of the catalog. The
// declared version is excluded so the fingerprint only changes with content.
func (c *Catalog) Fingerprint() string {
	clone := c.Clone()
	clone.Version = ""
	raw, _ := json.Marshal(clone)
	sum := sha256.Sum256(raw)
	return "sha-" + hex.EncodeToString(sum[:])[:12]
}

// Clone returns a deep copy, used when a record snapshots its catalog.
func (c *Catalog) Clone() *Catalog {
	out := *c
	out.Categories = make([]Category, len(c.Categories))
	for i, cat := range c.Categories {
		cat.Items = append([]Item(nil), cat.Items...)
		out.Categories[i] = cat
	}
	return &out
}

// applyDefaults fills zero-valued settings with the defaults observed in the
// original evaluation grid.
func (c *Catalog) applyDefaults() {
	if c.MaxItemScore == 0 {
		c.MaxItemScore = DefaultMaxItemScore
	}
	if c.Policy.Thresholds == (Thresholds{}) {
		c.Policy.Thresholds = Thresholds{Excellent: DefaultExcellentScore, Satisfactory: DefaultSatisfactoryScore}
	}
	if c.Policy.MinimumPassScore == 0 {
		c.Policy.MinimumPassScore = DefaultMinimumPassScore
	}
	if c.Policy.DivergenceThreshold == 0 {
		c.Policy.DivergenceThreshold = DefaultDivergenceThreshold
	}
	if c.Version == "" {
		c.Version = c.Fingerprint()
	}
}

// DefaultCatalog 默认药品供应商评估目录（GMP、经验、文档、物流、价格、风险）
func DefaultCatalog() Catalog {
	c := Catalog{
		ID:           DefaultCatalogID,
		Name:         "Pharmaceutical supplier qualification",
		MaxItemScore: DefaultMaxItemScore,
		Categories: []Category{
			{ID: "gmp", Label: "GMP & Compliance", WeightPercent: 25, Items: []Item{
				{ID: "certificates", Label: "Certificate validity"},
				{ID: "audits", Label: "Audit quality"},
				{ID: "licenses", Label: "Regulatory compliance"},
			}},
			{ID: "experience", Label: "Supplier experience", WeightPercent: 20, Items: []Item{
				{ID: "references", Label: "Reference quality"},
				{ID: "countries", Label: "Geographic diversity"},
				{ID: "years", Label: "Sector experience"},
			}},
			{ID: "documentation", Label: "Technical documentation", WeightPercent: 15, Items: []Item{
				{ID: "completeness", Label: "Document completeness"},
				{ID: "traceability", Label: "Traceability quality"},
				{ID: "quality", Label: "Presentation and clarity"},
			}},
			{ID: "logistics", Label: "Logistics capacity", WeightPercent: 15, Items: []Item{
				{ID: "storage", Label: "Storage infrastructure"},
				{ID: "transport", Label: "Transport network"},
				{ID: "capacity", Label: "Volume and flexibility"},
			}},
			{ID: "pricing", Label: "Price & competitiveness", WeightPercent: 15, Items: []Item{
				{ID: "competitiveness", Label: "Cost accuracy"},
				{ID: "delivery", Label: "Delivery reliability"},
				{ID: "payment", Label: "Payment flexibility"},
			}},
			{ID: "risks", Label: "Risks & observations", WeightPercent: 10, Items: []Item{
				{ID: "compliance", Label: "Compliance level"},
				{ID: "stability", Label: "Financial stability"},
			}},
		},
	}
	c.applyDefaults()
	return c
}
