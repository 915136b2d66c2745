package scoring

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullInputs scores every item of the catalog with the same value.
func fullInputs(c *Catalog, value int) Inputs {
	in := make(Inputs, len(c.Categories))
	for _, cat := range c.Categories {
		scores := make(map[string]int, len(cat.Items))
		for _, it := range cat.Items {
			scores[it.ID] = value
		}
		in[cat.ID] = CategoryInput{CategoryID: cat.ID, ItemScores: scores}
	}
	return in
}

func TestDefaultCatalogIsValid(t *testing.T) {
	c := DefaultCatalog()
	require.NoError(t, c.Validate())
	assert.InDelta(t, 100, c.TotalWeight(), WeightEpsilon)
	assert.Len(t, c.GetCategories(), 6)
	assert.Equal(t, 20, c.MaxItemScore)
	assert.NotEmpty(t, c.Version)
}

func TestCatalogValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Catalog)
		want   error
	}{
		{"weights below 100", func(c *Catalog) { c.Categories[0].WeightPercent = 24 }, ErrWeightsNotNormalized},
		{"weights above 100", func(c *Catalog) { c.Categories[5].WeightPercent = 10.5 }, ErrWeightsNotNormalized},
		{"duplicate category", func(c *Catalog) { c.Categories[1].ID = c.Categories[0].ID }, ErrDuplicateCategory},
		{"duplicate item", func(c *Catalog) { c.Categories[0].Items[1].ID = c.Categories[0].Items[0].ID }, ErrDuplicateItem},
		{"no categories", func(c *Catalog) { c.Categories = nil }, ErrEmptyCatalog},
		{"negative max", func(c *Catalog) { c.MaxItemScore = -1 }, ErrInvalidMaxItemScore},
		{"zero weight", func(c *Catalog) { c.Categories[0].WeightPercent = 0; c.Categories[1].WeightPercent = 45 }, ErrInvalidWeight},
		{"inverted thresholds", func(c *Catalog) { c.Policy.Thresholds = Thresholds{Excellent: 50, Satisfactory: 70} }, ErrInvalidThresholds},
		{"NaN weight", func(c *Catalog) { c.Categories[0].WeightPercent = math.NaN() }, ErrInvalidWeight},
		{"infinite weight", func(c *Catalog) { c.Categories[0].WeightPercent = math.Inf(1) }, ErrInvalidWeight},
		{"NaN threshold", func(c *Catalog) { c.Policy.Thresholds.Excellent = math.NaN() }, ErrInvalidThresholds},
		{"NaN minimum pass", func(c *Catalog) { c.Policy.MinimumPassScore = math.NaN() }, ErrInvalidThresholds},
		{"infinite divergence", func(c *Catalog) { c.Policy.DivergenceThreshold = math.Inf(1) }, ErrInvalidThresholds},
		{"category without items", func(c *Catalog) { c.Categories[5].Items = nil }, ErrCategoryWithoutItems},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := DefaultCatalog()
			c := base.Clone()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var ce *CatalogError
			assert.True(t, errors.As(err, &ce), "should be a CatalogError")
		})
	}

	t.Run("rounding within epsilon passes", func(t *testing.T) {
		base := DefaultCatalog()
		c := base.Clone()
		c.Categories[0].WeightPercent = 25.005
		assert.NoError(t, c.Validate())
	})
}

func TestCategoryScore(t *testing.T) {
	t.Run("average over max", func(t *testing.T) {
		s, err := CategoryScore(CategoryInput{CategoryID: "gmp", ItemScores: map[string]int{"a": 20, "b": 10, "c": 0}}, 20)
		require.NoError(t, err)
		assert.InDelta(t, 50, s, 1e-9)
	})

	t.Run("empty category fails", func(t *testing.T) {
		for _, scores := range []map[string]int{nil, {}} {
			s, err := CategoryScore(CategoryInput{CategoryID: "gmp", ItemScores: scores}, 20)
			require.ErrorIs(t, err, ErrEmptyCategory)
			assert.False(t, math.IsNaN(s))
			var ce *CalculatorError
			assert.ErrorAs(t, err, &ce)
		}
	})

	t.Run("out of range rejected not clamped", func(t *testing.T) {
		_, err := CategoryScore(CategoryInput{ItemScores: map[string]int{"a": 21}}, 20)
		assert.ErrorIs(t, err, ErrScoreOutOfRange)
		_, err = CategoryScore(CategoryInput{ItemScores: map[string]int{"a": -1}}, 20)
		assert.ErrorIs(t, err, ErrScoreOutOfRange)
	})
}

func TestCompositeScore(t *testing.T) {
	c := DefaultCatalog()

	t.Run("all items at max", func(t *testing.T) {
		score, err := CompositeScore(fullInputs(&c, 20), &c)
		require.NoError(t, err)
		assert.InDelta(t, 100, score, 1e-9)
		d := c.Policy.Decide(score)
		assert.Equal(t, BandExcellent, d.Band)
		assert.True(t, d.EligibleForSubmission)
	})

	t.Run("all items at zero", func(t *testing.T) {
		score, err := CompositeScore(fullInputs(&c, 0), &c)
		require.NoError(t, err)
		assert.InDelta(t, 0, score, 1e-9)
		d := c.Policy.Decide(score)
		assert.Equal(t, BandInsufficient, d.Band)
		assert.False(t, d.EligibleForSubmission)
		assert.ErrorIs(t, c.Policy.CheckSubmission(score, false), ErrBelowThreshold)
		assert.NoError(t, c.Policy.CheckSubmission(score, true))
	})

	t.Run("missing category is an error not zero", func(t *testing.T) {
		in := fullInputs(&c, 20)
		delete(in, "risks")
		_, err := CompositeScore(in, &c)
		assert.ErrorIs(t, err, ErrMissingCategory)
	})

	t.Run("weighted mix keeps full precision", func(t *testing.T) {
		in := fullInputs(&c, 20)
		in["gmp"] = CategoryInput{ItemScores: map[string]int{"certificates": 10, "audits": 10, "licenses": 10}}
		in["risks"] = CategoryInput{ItemScores: map[string]int{"compliance": 13, "stability": 0}}
		score, err := CompositeScore(in, &c)
		require.NoError(t, err)
		// gmp 50*0.25 + risks 32.5*0.10 + 65 from the rest
		assert.InDelta(t, 12.5+3.25+65, score, 1e-9)
		assert.Equal(t, 81, RoundForDisplay(score))
	})
}

func TestCompositeScoreIsMonotonic(t *testing.T) {
	c := DefaultCatalog()
	base := fullInputs(&c, 7)
	baseline, err := CompositeScore(base, &c)
	require.NoError(t, err)

	for _, cat := range c.Categories {
		for _, it := range cat.Items {
			for v := 0; v <= c.MaxItemScore; v++ {
				in := base.Clone()
				in[cat.ID].ItemScores[it.ID] = v
				got, err := CompositeScore(in, &c)
				require.NoError(t, err)
				if v >= 7 {
					assert.GreaterOrEqual(t, got, baseline, "%s.%s=%d", cat.ID, it.ID, v)
				} else {
					assert.LessOrEqual(t, got, baseline, "%s.%s=%d", cat.ID, it.ID, v)
				}
			}
		}
	}
}

func TestValidateInputs(t *testing.T) {
	c := DefaultCatalog()

	assert.NoError(t, ValidateInputs(Inputs{"gmp": {ItemScores: map[string]int{"audits": 5}}}, &c))
	assert.ErrorIs(t, ValidateInputs(Inputs{"unknown": {ItemScores: map[string]int{"x": 1}}}, &c), ErrUnknownCategory)
	assert.ErrorIs(t, ValidateInputs(Inputs{"gmp": {ItemScores: map[string]int{"x": 1}}}, &c), ErrUnknownItem)
	assert.ErrorIs(t, ValidateInputs(Inputs{"gmp": {ItemScores: map[string]int{"audits": 25}}}, &c), ErrScoreOutOfRange)
	assert.ErrorIs(t, ValidateInputs(Inputs{"gmp": {CategoryID: "risks", ItemScores: map[string]int{"audits": 2}}}, &c), ErrCategoryMismatch)
}

func TestCompleteness(t *testing.T) {
	c := DefaultCatalog()
	in := fullInputs(&c, 15)
	delete(in, "pricing")
	in["gmp"] = CategoryInput{ItemScores: map[string]int{}}
	delete(in["logistics"].ItemScores, "transport")

	got := CheckCompleteness(in, &c)
	assert.False(t, got.Complete)
	assert.Equal(t, []string{"pricing"}, got.MissingCategories)
	assert.Equal(t, []string{"gmp"}, got.EmptyCategories)
	assert.Equal(t, map[string][]string{"logistics": {"transport"}}, got.MissingItems)
	assert.ErrorIs(t, RequireComplete(in, &c), ErrMissingCategory)

	b := Score(in, &c)
	assert.Nil(t, b.Composite)
	assert.InDelta(t, 75, b.CategoryScores["risks"], 1e-9)
	_, scored := b.CategoryScores["gmp"]
	assert.False(t, scored)

	in["pricing"] = fullInputs(&c, 15)["pricing"]
	in["gmp"] = fullInputs(&c, 15)["gmp"]
	assert.ErrorIs(t, RequireComplete(in, &c), ErrMissingItem)

	b = Score(in, &c)
	require.NotNil(t, b.Composite, "missing items still allow a draft composite")
}

func TestPolicyBands(t *testing.T) {
	p := DefaultCatalog().Policy
	assert.Equal(t, BandExcellent, p.Classify(80))
	assert.Equal(t, BandSatisfactory, p.Classify(79.999))
	assert.Equal(t, BandSatisfactory, p.Classify(60))
	assert.Equal(t, BandInsufficient, p.Classify(59.99))

	strict := p
	strict.Thresholds = Thresholds{Excellent: 90, Satisfactory: 75}
	assert.Equal(t, BandSatisfactory, strict.Classify(85))
	assert.False(t, p.DecideWith(65, 70).EligibleForSubmission)
	assert.True(t, p.DecideWith(70, 70).EligibleForSubmission)
}

func TestDivergence(t *testing.T) {
	p := DefaultCatalog().Policy
	assert.True(t, p.Diverges(70, 90))
	assert.False(t, p.Diverges(75, 90))
	assert.True(t, p.Diverges(100, 84.9))
	assert.ErrorIs(t, ValidateAIScore(101, 0.5), ErrAIScoreOutOfRange)
	assert.ErrorIs(t, ValidateAIScore(50, 1.5), ErrAIScoreOutOfRange)
	assert.NoError(t, ValidateAIScore(50, 0.9))
}

func TestRegistry(t *testing.T) {
	doc := []byte(`
default: api-sourcing
catalogs:
  - id: api-sourcing
    name: API sourcing
    version: "2026.1"
    categories:
      - id: quality
        label: Quality
        weight_percent: 60
        items: [{id: gmp}, {id: audit}]
      - id: cost
        label: Cost
        weight_percent: 40
        items: [{id: price}]
    policy:
      thresholds: {excellent: 85, satisfactory: 70}
      minimum_pass_score: 70
      divergence_threshold: 10
`)
	r, err := ParseRegistry(doc, "")
	require.NoError(t, err)
	assert.Equal(t, "api-sourcing", r.DefaultID())

	c, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "2026.1", c.Version)
	assert.Equal(t, DefaultMaxItemScore, c.MaxItemScore)
	assert.Equal(t, float64(70), c.Policy.MinimumPassScore)

	c.Categories[0].WeightPercent = 1
	again, _ := r.Get("api-sourcing")
	assert.Equal(t, float64(60), again.Categories[0].WeightPercent, "registry hands out copies")

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownCatalog)

	bad := []byte(`
catalogs:
  - id: broken
    categories:
      - {id: a, weight_percent: 50, items: [{id: x}]}
      - {id: b, weight_percent: 40, items: [{id: y}]}
`)
	_, err = ParseRegistry(bad, "")
	assert.ErrorIs(t, err, ErrWeightsNotNormalized)

	nan := []byte(`
catalogs:
  - id: broken
    categories:
      - {id: a, weight_percent: .nan, items: [{id: x}]}
      - {id: b, weight_percent: 100, items: [{id: y}]}
`)
	_, err = ParseRegistry(nan, "")
	assert.ErrorIs(t, err, ErrInvalidWeight)

	itemless := []byte(`
catalogs:
  - id: broken
    categories:
      - {id: a, weight_percent: 60, items: [{id: x}]}
      - {id: b, weight_percent: 40}
`)
	_, err = ParseRegistry(itemless, "")
	assert.ErrorIs(t, err, ErrCategoryWithoutItems)
}

func TestInputsClone(t *testing.T) {
	in := Inputs{
		"gmp":  {CategoryID: "gmp", ItemScores: map[string]int{"audits": 12}, Comments: "ok"},
		"cost": {CategoryID: "cost"},
	}
	out := in.Clone()
	assert.Equal(t, in, out)
	assert.Nil(t, out["cost"].ItemScores, "nil item map survives a round trip")

	out["gmp"].ItemScores["audits"] = 1
	assert.Equal(t, 12, in["gmp"].ItemScores["audits"])

	var nilInputs Inputs
	assert.Nil(t, nilInputs.Clone())
}

func TestFingerprint(t *testing.T) {
	a := DefaultCatalog()
	b := DefaultCatalog()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	b.Categories[0].WeightPercent = 30
	b.Categories[1].WeightPercent = 15
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
