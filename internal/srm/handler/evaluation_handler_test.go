package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bitfantasy/nimo-qualify/internal/srm/repository"
	"github.com/bitfantasy/nimo-qualify/internal/srm/scoring"
	"github.com/bitfantasy/nimo-qualify/internal/srm/service"
	"github.com/bitfantasy/nimo-qualify/internal/srm/sse"
	"github.com/bitfantasy/nimo-qualify/internal/srm/testutil"
	"github.com/bitfantasy/nimo-qualify/internal/srm/workflow"
)

const base = "/api/v1/srm"

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	db      *gorm.DB
	router  *gin.Engine
	catalog *scoring.Catalog
	clock   *testutil.Clock
}

func setupEvaluationTest(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	testutil.SeedSupplier(t, db, "sup-001", "SUP-001", "Pharma Ingredients SA")

	reg, err := scoring.NewRegistry(scoring.DefaultCatalogID, scoring.DefaultCatalog())
	require.NoError(t, err)
	cat, err := reg.Get("")
	require.NoError(t, err)

	clock := testutil.NewClock(testStart)
	machine := workflow.NewMachine(clock.Now)
	repos := repository.NewRepositories(db)
	svc := service.NewEvaluationService(repos, reg, machine, service.NewPublisher(nil), nil)

	router := testutil.SetupRouter()
	RegisterRoutes(router, NewHandlers(svc, service.NewSupplierService(repos.Supplier), reg, sse.NewHub(nil), nil), testutil.JWTSecret)

	return &testEnv{db: db, router: router, catalog: cat, clock: clock}
}

func uniformInputs(c *scoring.Catalog, value int) scoring.Inputs {
	in := scoring.Inputs{}
	for _, cat := range c.Categories {
		scores := map[string]int{}
		for _, it := range cat.Items {
			scores[it.ID] = value
		}
		in[cat.ID] = scoring.CategoryInput{CategoryID: cat.ID, ItemScores: scores}
	}
	return in
}

func dataOf(t *testing.T, resp map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", resp)
	return data
}

func (e *testEnv) assign(t *testing.T) (id, lastModified string) {
	t.Helper()
	w := testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations", map[string]interface{}{
		"tender_id":    "tender-001",
		"supplier_id":  "sup-001",
		"evaluator_id": "evaluator-1",
	}, testutil.AdminToken())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := dataOf(t, testutil.ParseResponse(w))
	return data["id"].(string), data["last_modified"].(string)
}

func (e *testEnv) saveDraft(t *testing.T, id, lastModified string, value int) string {
	t.Helper()
	w := testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/draft", map[string]interface{}{
		"category_inputs": uniformInputs(e.catalog, value),
		"last_modified":   lastModified,
	}, testutil.EvaluatorToken("evaluator-1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return dataOf(t, testutil.ParseResponse(w))["last_modified"].(string)
}

func TestEvaluationAuthorization(t *testing.T) {
	e := setupEvaluationTest(t)

	w := testutil.DoRequest(e.router, http.MethodGet, base+"/evaluations", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations", map[string]interface{}{
		"tender_id": "t", "supplier_id": "sup-001", "evaluator_id": "evaluator-1",
	}, testutil.EvaluatorToken("evaluator-1"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	id, lm := e.assign(t)

	w = testutil.DoRequest(e.router, http.MethodGet, base+"/evaluations/"+id, nil, testutil.EvaluatorToken("evaluator-1"))
	assert.Equal(t, http.StatusOK, w.Code)
	w = testutil.DoRequest(e.router, http.MethodGet, base+"/evaluations/"+id, nil, testutil.EvaluatorToken("evaluator-2"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/draft", map[string]interface{}{
		"category_inputs": uniformInputs(e.catalog, 10),
		"last_modified":   lm,
	}, testutil.EvaluatorToken("evaluator-2"))
	assert.Equal(t, http.StatusForbidden, w.Code)
	resp := testutil.ParseResponse(w)
	assert.Equal(t, float64(40301), resp["code"])

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/ai-score", map[string]interface{}{
		"ai_score": 80, "confidence": 0.9,
	}, testutil.EvaluatorToken("evaluator-1"))
	assert.Equal(t, http.StatusForbidden, w.Code, "ai-score requires the ai_scorer role")

	w = testutil.DoRequest(e.router, http.MethodGet, base+"/evaluations/missing", nil, testutil.AdminToken())
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvaluationStaleDraft(t *testing.T) {
	e := setupEvaluationTest(t)
	id, readAt := e.assign(t)

	e.saveDraft(t, id, readAt, 10)

	w := testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/draft", map[string]interface{}{
		"category_inputs": uniformInputs(e.catalog, 15),
		"last_modified":   readAt,
	}, testutil.EvaluatorToken("evaluator-1"))
	assert.Equal(t, http.StatusConflict, w.Code)
	resp := testutil.ParseResponse(w)
	assert.Equal(t, float64(40902), resp["code"])
	assert.Equal(t, "concurrency", dataOf(t, resp)["kind"])

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/draft", map[string]interface{}{
		"category_inputs": uniformInputs(e.catalog, 15),
	}, testutil.EvaluatorToken("evaluator-1"))
	assert.Equal(t, http.StatusBadRequest, w.Code, "last_modified is required")
}

func TestEvaluationSubmitBelowThreshold(t *testing.T) {
	e := setupEvaluationTest(t)
	id, lm := e.assign(t)
	lm = e.saveDraft(t, id, lm, 2)

	w := testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/submit", map[string]interface{}{
		"last_modified": lm,
	}, testutil.EvaluatorToken("evaluator-1"))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := testutil.ParseResponse(w)
	assert.Equal(t, float64(42202), resp["code"])

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/submit", map[string]interface{}{
		"last_modified": lm,
		"override":      true,
	}, testutil.EvaluatorToken("evaluator-1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataOf(t, testutil.ParseResponse(w))
	assert.Equal(t, "submitted", data["status"])
	assert.Equal(t, true, data["submit_override"])
}

func TestEvaluationLifecycle(t *testing.T) {
	e := setupEvaluationTest(t)
	id, lm := e.assign(t)
	lm = e.saveDraft(t, id, lm, 18)

	w := testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/submit", map[string]interface{}{
		"last_modified": lm,
	}, testutil.EvaluatorToken("evaluator-1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataOf(t, testutil.ParseResponse(w))
	assert.Equal(t, float64(90), data["human_score"])
	assert.Equal(t, float64(90), data["display_score"])
	assert.Equal(t, "excellent", data["qualification_band"])

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/finalize", map[string]interface{}{
		"decision": "accept",
	}, testutil.AdminToken())
	assert.Equal(t, http.StatusConflict, w.Code, "finalize requires under_review")

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/review", nil, testutil.AdminToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/ai-score", map[string]interface{}{
		"ai_score": 150, "confidence": 0.9,
	}, testutil.AIScorerToken())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/ai-score", map[string]interface{}{
		"ai_score": 86, "confidence": 0.9,
	}, testutil.AIScorerToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, dataOf(t, testutil.ParseResponse(w))["divergence_flagged"])

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/finalize", map[string]interface{}{
		"decision": "maybe",
	}, testutil.AdminToken())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/finalize", map[string]interface{}{
		"decision": "accept", "notes": "qualified",
	}, testutil.AdminToken())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	final := dataOf(t, testutil.ParseResponse(w))
	assert.Equal(t, "completed", final["status"])

	// 重复提交相同结论返回当前记录
	w = testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/finalize", map[string]interface{}{
		"decision": "accept",
	}, testutil.AdminToken())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, final["last_modified"], dataOf(t, testutil.ParseResponse(w))["last_modified"])

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/evaluations/"+id+"/finalize", map[string]interface{}{
		"decision": "reject",
	}, testutil.AdminToken())
	assert.Equal(t, http.StatusConflict, w.Code)

	w = testutil.DoRequest(e.router, http.MethodGet, base+"/evaluations/"+id+"/activities", nil, testutil.EvaluatorToken("evaluator-1"))
	require.Equal(t, http.StatusOK, w.Code)
	pagination := dataOf(t, testutil.ParseResponse(w))["pagination"].(map[string]interface{})
	assert.GreaterOrEqual(t, pagination["total"].(float64), float64(6))

	w = testutil.DoRequest(e.router, http.MethodGet, base+"/evaluations/stats", nil, testutil.AdminToken())
	require.Equal(t, http.StatusOK, w.Code)
	stats := dataOf(t, testutil.ParseResponse(w))
	assert.Equal(t, float64(1), stats["total"])
}

func TestEvaluationListAndExport(t *testing.T) {
	e := setupEvaluationTest(t)
	e.assign(t)
	e.assign(t)

	w := testutil.DoRequest(e.router, http.MethodGet, base+"/evaluations?status=draft&page_size=1", nil, testutil.AdminToken())
	require.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, testutil.ParseResponse(w))
	assert.Len(t, data["items"], 1)
	assert.Equal(t, float64(2), data["pagination"].(map[string]interface{})["total_pages"])

	w = testutil.DoRequest(e.router, http.MethodGet, base+"/evaluations/export", nil, testutil.AdminToken())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "qualification_evaluations_")
	assert.NotZero(t, w.Body.Len())
}

func TestCatalogRoutes(t *testing.T) {
	e := setupEvaluationTest(t)

	w := testutil.DoRequest(e.router, http.MethodGet, base+"/catalogs", nil, testutil.EvaluatorToken("evaluator-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, scoring.DefaultCatalogID, dataOf(t, testutil.ParseResponse(w))["default"])

	w = testutil.DoRequest(e.router, http.MethodGet, base+"/catalogs/"+scoring.DefaultCatalogID, nil, testutil.EvaluatorToken("evaluator-1"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = testutil.DoRequest(e.router, http.MethodGet, base+"/catalogs/unknown", nil, testutil.EvaluatorToken("evaluator-1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, float64(40401), testutil.ParseResponse(w)["code"])
}

func TestSupplierRoutes(t *testing.T) {
	e := setupEvaluationTest(t)

	w := testutil.DoRequest(e.router, http.MethodPost, base+"/suppliers", map[string]interface{}{
		"name": "Excipients GmbH", "category": "excipient", "country": "DE",
	}, testutil.EvaluatorToken("evaluator-1"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/suppliers", map[string]interface{}{
		"name": "Excipients GmbH", "category": "solvent",
	}, testutil.AdminToken())
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.DoRequest(e.router, http.MethodPost, base+"/suppliers", map[string]interface{}{
		"name": "Excipients GmbH", "category": "excipient", "country": "DE",
	}, testutil.AdminToken())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := dataOf(t, testutil.ParseResponse(w))
	assert.Equal(t, "SUP-0002", created["code"])
	assert.Equal(t, "pending", created["status"])

	w = testutil.DoRequest(e.router, http.MethodGet, base+"/suppliers?search=excip", nil, testutil.EvaluatorToken("evaluator-1"))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, dataOf(t, testutil.ParseResponse(w))["items"], 1)

	w = testutil.DoRequest(e.router, http.MethodGet, base+"/suppliers/nope", nil, testutil.EvaluatorToken("evaluator-1"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
