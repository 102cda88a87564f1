package handler

import (
	"net/http"

	"datapilot-go/internal/service"
	"datapilot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// UploadHandler 负责处理文件上传入库的 API 请求。
type UploadHandler struct {
	ingestionService service.IngestionService
	maxUploadBytes   int64
}

// NewUploadHandler 创建一个新的 UploadHandler 实例。maxUploadMB <= 0 表示不限制。
func NewUploadHandler(ingestionService service.IngestionService, maxUploadMB int64) *UploadHandler {
	return &UploadHandler{ingestionService: ingestionService, maxUploadBytes: maxUploadMB << 20}
}

// Upload 同步处理上传的文件：表单字段 file 与 db_name。
// 失败时 data.logs 中包含已执行步骤的日志。
func (h *UploadHandler) Upload(c *gin.Context) {
	h.limit(c)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "缺少上传文件")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "无法读取上传文件")
		return
	}
	defer f.Close()

	result, err := h.ingestionService.Ingest(c.Request.Context(), fileHeader.Filename, f, c.PostForm("db_name"))
	if err != nil {
		log.Warnf("[UploadHandler] 处理上传文件失败, FileName: %s, Error: %v", fileHeader.Filename, err)
		var logs []string
		if result != nil {
			logs = result.Logs
		}
		fail(c, err, gin.H{"logs": logs})
		return
	}
	ok(c, "文件处理完成", result)
}

// UploadAsync 暂存文件并投递入库任务，立即返回任务 ID。
func (h *UploadHandler) UploadAsync(c *gin.Context) {
	h.limit(c)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "缺少上传文件")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "无法读取上传文件")
		return
	}
	defer f.Close()

	taskID, err := h.ingestionService.Enqueue(c.Request.Context(), fileHeader.Filename, f, c.PostForm("db_name"))
	if err != nil {
		log.Error("UploadAsync: failed to enqueue", err)
		fail(c, err, nil)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "任务已提交",
		"data":    gin.H{"taskId": taskID, "fileName": fileHeader.Filename},
	})
}

func (h *UploadHandler) limit(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
}
