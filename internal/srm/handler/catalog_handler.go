package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/bitfantasy/nimo-qualify/internal/srm/scoring"
)

// CatalogHandler 评估目录（只读）
type CatalogHandler struct {
	catalogs *scoring.Registry
}

func NewCatalogHandler(catalogs *scoring.Registry) *CatalogHandler {
	return &CatalogHandler{catalogs: catalogs}
}

// List GET /catalogs
func (h *CatalogHandler) List(c *gin.Context) {
	Success(c, gin.H{
		"default":  h.catalogs.DefaultID(),
		"catalogs": h.catalogs.List(),
	})
}

// Get GET /catalogs/:id
func (h *CatalogHandler) Get(c *gin.Context) {
	cat, err := h.catalogs.Get(c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, cat)
}
