package handler

import (
	"datapilot-go/internal/service"
	"datapilot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ReportHandler 负责报告下载。
type ReportHandler struct {
	reportService service.ReportService
}

// NewReportHandler 创建一个新的 ReportHandler 实例。
func NewReportHandler(reportService service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// Download 返回报告的预签名下载链接。
func (h *ReportHandler) Download(c *gin.Context) {
	fileName := c.Query("filename")
	if fileName == "" {
		badRequest(c, "缺少 filename 参数")
		return
	}
	info, err := h.reportService.DownloadURL(c.Request.Context(), fileName)
	if err != nil {
		log.Warnf("[ReportHandler] 获取报告下载链接失败, FileName: %s, Error: %v", fileName, err)
		fail(c, err, nil)
		return
	}
	ok(c, "获取报告下载链接成功", info)
}
