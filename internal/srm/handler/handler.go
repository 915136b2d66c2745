package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-qualify/internal/middleware"
	"github.com/bitfantasy/nimo-qualify/internal/srm/repository"
	"github.com/bitfantasy/nimo-qualify/internal/srm/scoring"
	"github.com/bitfantasy/nimo-qualify/internal/srm/service"
	"github.com/bitfantasy/nimo-qualify/internal/srm/sse"
	"github.com/bitfantasy/nimo-qualify/internal/srm/workflow"
)

// RoleAIScorer AI评分服务账号
const RoleAIScorer = "ai_scorer"

// Handlers 资格评估处理器集合
type Handlers struct {
	Evaluation *EvaluationHandler
	Supplier   *SupplierHandler
	Catalog    *CatalogHandler
	SSE        *SSEHandler
}

func NewHandlers(evalSvc *service.EvaluationService, supplierSvc *service.SupplierService, catalogs *scoring.Registry, hub *sse.Hub, logger *zap.Logger) *Handlers {
	return &Handlers{
		Evaluation: NewEvaluationHandler(evalSvc, logger),
		Supplier:   NewSupplierHandler(supplierSvc),
		Catalog:    NewCatalogHandler(catalogs),
		SSE:        NewSSEHandler(hub),
	}
}

// RegisterRoutes 注册 /api/v1/srm 下的路由
func RegisterRoutes(r gin.IRouter, h *Handlers, jwtSecret string) {
	api := r.Group("/api/v1/srm", middleware.JWTAuth(jwtSecret))
	admin := middleware.RequireRole(middleware.RoleAdmin)

	api.GET("/catalogs", h.Catalog.List)
	api.GET("/catalogs/:id", h.Catalog.Get)
	api.GET("/events", h.SSE.Stream)

	api.GET("/suppliers", h.Supplier.ListSuppliers)
	api.GET("/suppliers/:id", h.Supplier.GetSupplier)
	api.POST("/suppliers", admin, h.Supplier.CreateSupplier)

	ev := api.Group("/evaluations")
	{
		ev.POST("", admin, h.Evaluation.Assign)
		ev.GET("", admin, h.Evaluation.List)
		ev.GET("/stats", admin, h.Evaluation.Stats)
		ev.GET("/export", admin, h.Evaluation.Export)
		ev.GET("/supplier/:supplierId", admin, h.Evaluation.SupplierHistory)

		ev.GET("/:id", h.Evaluation.Get)
		ev.GET("/:id/activities", h.Evaluation.Activities)

		// 评估人（只能操作分配给自己的记录）
		ev.POST("/:id/draft", h.Evaluation.SaveDraft)
		ev.POST("/:id/submit", h.Evaluation.Submit)

		ev.POST("/:id/ai-score", middleware.RequireRole(RoleAIScorer), h.Evaluation.ReconcileWithAI)

		ev.POST("/:id/review", admin, h.Evaluation.StartReview)
		ev.POST("/:id/secondary-review", admin, h.Evaluation.CompleteSecondaryReview)
		ev.POST("/:id/return", admin, h.Evaluation.Return)
		ev.POST("/:id/finalize", admin, h.Evaluation.Finalize)
	}
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ErrorDetail 业务错误的类别与代码，便于前端区分提示
type ErrorDetail struct {
	Kind string `json:"kind"`
	Code string `json:"code"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{Code: 0, Message: "success", Data: data})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{Code: 0, Message: "success", Data: data})
}

// Error HTTP 状态码 = code / 100
func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{Code: code, Message: message, Data: data})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// HandleError 按错误族映射状态码
func HandleError(c *gin.Context, err error) {
	var (
		calcErr    *scoring.CalculatorError
		policyErr  *scoring.PolicyError
		catalogErr *scoring.CatalogError
		wfErr      *workflow.Error
		concErr    *workflow.ConcurrencyError
	)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, service.ErrInvalidRequest):
		BadRequest(c, err.Error())
	case errors.As(err, &calcErr):
		ErrorWithData(c, 42201, err.Error(), ErrorDetail{Kind: "calculator", Code: calcErr.Code})
	case errors.As(err, &policyErr):
		ErrorWithData(c, 42202, err.Error(), ErrorDetail{Kind: "policy", Code: policyErr.Code})
	case errors.Is(err, scoring.ErrUnknownCatalog):
		ErrorWithData(c, 40401, err.Error(), ErrorDetail{Kind: "catalog", Code: scoring.ErrUnknownCatalog.Code})
	case errors.As(err, &catalogErr):
		ErrorWithData(c, 50001, err.Error(), ErrorDetail{Kind: "catalog", Code: catalogErr.Code})
	case errors.Is(err, workflow.ErrNotOwner):
		ErrorWithData(c, 40301, err.Error(), ErrorDetail{Kind: "workflow", Code: workflow.ErrNotOwner.Code})
	case errors.Is(err, workflow.ErrInvalidDecision), errors.Is(err, workflow.ErrMissingReason):
		errors.As(err, &wfErr)
		ErrorWithData(c, 40001, err.Error(), ErrorDetail{Kind: "workflow", Code: wfErr.Code})
	case errors.As(err, &wfErr):
		ErrorWithData(c, 40901, err.Error(), ErrorDetail{Kind: "workflow", Code: wfErr.Code})
	case errors.As(err, &concErr):
		ErrorWithData(c, 40902, err.Error(), ErrorDetail{Kind: "concurrency", Code: concErr.Code})
	default:
		_ = c.Error(err)
		InternalError(c, "internal error")
	}
}

func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}
	return page, pageSize
}

func listResponse(items interface{}, page, pageSize int, total int64) ListResponse {
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	return ListResponse{
		Items: items,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	}
}
