package handler

import (
	"datapilot-go/internal/service"
	"datapilot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SchemaHandler 负责类别 schema 的增删查。
type SchemaHandler struct {
	schemaService service.SchemaService
}

// NewSchemaHandler 创建一个新的 SchemaHandler 实例。
func NewSchemaHandler(schemaService service.SchemaService) *SchemaHandler {
	return &SchemaHandler{schemaService: schemaService}
}

// SaveSchemaRequest 定义了保存 schema 的请求体。
type SaveSchemaRequest struct {
	DBName   string   `json:"db_name" binding:"required"`
	Category string   `json:"category" binding:"required"`
	Columns  []string `json:"columns" binding:"required"`
}

// List 按 db_name 过滤，为空时返回所有库。
func (h *SchemaHandler) List(c *gin.Context) {
	records, err := h.schemaService.List(c.Request.Context(), c.Query("db_name"))
	if err != nil {
		log.Error("ListSchemas: failed", err)
		fail(c, err, nil)
		return
	}
	ok(c, "获取 schema 列表成功", records)
}

func (h *SchemaHandler) Get(c *gin.Context) {
	record, err := h.schemaService.Get(c.Request.Context(), c.Param("db"), c.Param("category"))
	if err != nil {
		fail(c, err, nil)
		return
	}
	ok(c, "获取 schema 成功", record)
}

// Save 新建或整体替换一个类别的必需列，仅管理员可用。
func (h *SchemaHandler) Save(c *gin.Context) {
	var req SaveSchemaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求负载")
		return
	}
	record, err := h.schemaService.Save(c.Request.Context(), req.DBName, req.Category, req.Columns)
	if err != nil {
		log.Warnf("[SchemaHandler] 保存 schema 失败: %v", err)
		fail(c, err, nil)
		return
	}
	ok(c, "schema 已保存", record)
}

func (h *SchemaHandler) Delete(c *gin.Context) {
	if err := h.schemaService.Delete(c.Request.Context(), c.Param("db"), c.Param("category")); err != nil {
		fail(c, err, nil)
		return
	}
	ok(c, "schema 已删除", nil)
}
