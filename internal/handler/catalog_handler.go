package handler

import (
	"datapilot-go/internal/service"
	"datapilot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// CatalogHandler 列出文档库中的数据库与集合。
type CatalogHandler struct {
	catalogService service.CatalogService
}

// NewCatalogHandler 创建一个新的 CatalogHandler 实例。
func NewCatalogHandler(catalogService service.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalogService: catalogService}
}

func (h *CatalogHandler) ListDatabases(c *gin.Context) {
	dbs, err := h.catalogService.ListDatabases(c.Request.Context())
	if err != nil {
		log.Error("ListDatabases: failed", err)
		fail(c, err, nil)
		return
	}
	ok(c, "获取数据库列表成功", dbs)
}

func (h *CatalogHandler) ListCollections(c *gin.Context) {
	colls, err := h.catalogService.ListCollections(c.Request.Context(), c.Param("db"))
	if err != nil {
		log.Error("ListCollections: failed", err)
		fail(c, err, nil)
		return
	}
	ok(c, "获取集合列表成功", colls)
}
