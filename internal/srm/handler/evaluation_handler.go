package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-qualify/internal/middleware"
	"github.com/bitfantasy/nimo-qualify/internal/srm/service"
)

// EvaluationHandler 资格评估处理器
type EvaluationHandler struct {
	svc    *service.EvaluationService
	logger *zap.Logger
}

func NewEvaluationHandler(svc *service.EvaluationService, logger *zap.Logger) *EvaluationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationHandler{svc: svc, logger: logger}
}

// Assign POST /evaluations
func (h *EvaluationHandler) Assign(c *gin.Context) {
	var req service.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	view, err := h.svc.Assign(c.Request.Context(), GetUserID(c), &req)
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, view)
}

// List GET /evaluations
func (h *EvaluationHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.List(c.Request.Context(), page, pageSize, listFilter(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, listResponse(items, page, pageSize, total))
}

// Stats GET /evaluations/stats
func (h *EvaluationHandler) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, st)
}

// Export GET /evaluations/export
func (h *EvaluationHandler) Export(c *gin.Context) {
	f, filename, err := h.svc.ExportEvaluations(c.Request.Context(), listFilter(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\""+filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")
	if err := f.Write(c.Writer); err != nil {
		h.logger.Error("write export failed", zap.Error(err))
	}
}

// SupplierHistory GET /evaluations/supplier/:supplierId
func (h *EvaluationHandler) SupplierHistory(c *gin.Context) {
	items, err := h.svc.SupplierHistory(c.Request.Context(), c.Param("supplierId"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, items)
}

// Get GET /evaluations/:id
func (h *EvaluationHandler) Get(c *gin.Context) {
	view, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	if !canRead(c, view.EvaluatorID) {
		Forbidden(c, "无权查看该评估")
		return
	}
	Success(c, view)
}

// Activities GET /evaluations/:id/activities
func (h *EvaluationHandler) Activities(c *gin.Context) {
	id := c.Param("id")
	view, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		HandleError(c, err)
		return
	}
	if !canRead(c, view.EvaluatorID) {
		Forbidden(c, "无权查看该评估")
		return
	}
	page, pageSize := GetPagination(c)
	items, total, err := h.svc.Activities(c.Request.Context(), id, page, pageSize)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, listResponse(items, page, pageSize, total))
}

// SaveDraft POST /evaluations/:id/draft
func (h *EvaluationHandler) SaveDraft(c *gin.Context) {
	var req service.SaveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	view, err := h.svc.SaveDraft(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	h.respond(c, view, err)
}

// Submit POST /evaluations/:id/submit
func (h *EvaluationHandler) Submit(c *gin.Context) {
	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	view, err := h.svc.Submit(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	h.respond(c, view, err)
}

// ReconcileWithAI POST /evaluations/:id/ai-score
func (h *EvaluationHandler) ReconcileWithAI(c *gin.Context) {
	var req service.AIScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	view, err := h.svc.ReconcileWithAI(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	h.respond(c, view, err)
}

// StartReview POST /evaluations/:id/review
func (h *EvaluationHandler) StartReview(c *gin.Context) {
	var req service.ReviewRequest
	if !bindOptional(c, &req) {
		return
	}
	view, err := h.svc.StartReview(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	h.respond(c, view, err)
}

// CompleteSecondaryReview POST /evaluations/:id/secondary-review
func (h *EvaluationHandler) CompleteSecondaryReview(c *gin.Context) {
	var req service.ReviewRequest
	if !bindOptional(c, &req) {
		return
	}
	view, err := h.svc.CompleteSecondaryReview(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	h.respond(c, view, err)
}

// Return POST /evaluations/:id/return
func (h *EvaluationHandler) Return(c *gin.Context) {
	var req service.ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	view, err := h.svc.Return(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	h.respond(c, view, err)
}

// Finalize POST /evaluations/:id/finalize
func (h *EvaluationHandler) Finalize(c *gin.Context) {
	var req service.FinalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	view, err := h.svc.Finalize(c.Request.Context(), c.Param("id"), GetUserID(c), &req)
	h.respond(c, view, err)
}

func (h *EvaluationHandler) respond(c *gin.Context, view *service.EvaluationView, err error) {
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, view)
}

// bindOptional 允许空 body
func bindOptional(c *gin.Context, req interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return false
	}
	return true
}

func canRead(c *gin.Context, evaluatorID string) bool {
	return GetUserID(c) == evaluatorID || middleware.HasRole(c, middleware.RoleAdmin, RoleAIScorer)
}

func listFilter(c *gin.Context) service.ListFilter {
	return service.ListFilter{
		Status:      c.Query("status"),
		SupplierID:  c.Query("supplier_id"),
		TenderID:    c.Query("tender_id"),
		EvaluatorID: c.Query("evaluator_id"),
		Overdue:     c.Query("overdue") == "true",
	}
}
