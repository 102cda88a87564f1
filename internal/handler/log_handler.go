package handler

import (
	"net/http"

	"datapilot-go/internal/service"
	"datapilot-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// LogHandler 输出入库日志。
type LogHandler struct {
	logService service.LogService
}

// NewLogHandler 创建一个新的 LogHandler 实例。
func NewLogHandler(logService service.LogService) *LogHandler {
	return &LogHandler{logService: logService}
}

// GetLogs 以 text/plain 返回全部日志行。
func (h *LogHandler) GetLogs(c *gin.Context) {
	text, err := h.logService.Text(c.Request.Context())
	if err != nil {
		log.Error("GetLogs: failed", err)
		fail(c, err, nil)
		return
	}
	c.String(http.StatusOK, text)
}
