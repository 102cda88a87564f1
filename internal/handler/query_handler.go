package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"datapilot-go/internal/service"
	"datapilot-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// QueryHandler 负责针对已索引文件的问答请求。
type QueryHandler struct {
	queryService service.QueryService
}

// NewQueryHandler 创建一个新的 QueryHandler 实例。
func NewQueryHandler(queryService service.QueryService) *QueryHandler {
	return &QueryHandler{queryService: queryService}
}

// QueryRequest 支持表单与 JSON 两种提交方式。
type QueryRequest struct {
	Query    string `json:"query" form:"query" binding:"required"`
	FileName string `json:"filename" form:"filename" binding:"required"`
}

// Query 返回模型给出的原始答案文本。
func (h *QueryHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "query 与 filename 均为必填")
		return
	}
	answer, err := h.queryService.Ask(c.Request.Context(), req.FileName, req.Query)
	if err != nil {
		log.Warnf("[QueryHandler] 问答失败, FileName: %s, Error: %v", req.FileName, err)
		fail(c, err, nil)
		return
	}
	ok(c, "success", gin.H{"filename": req.FileName, "answer": answer})
}

// ListFiles 列出已建立向量索引的文件。
func (h *QueryHandler) ListFiles(c *gin.Context) {
	files, err := h.queryService.ListFiles(c.Request.Context())
	if err != nil {
		log.Error("ListFiles: failed", err)
		fail(c, err, nil)
		return
	}
	ok(c, "获取已索引文件成功", files)
}

// Stream 处理 websocket 问答：每条消息为 {"filename": "...", "query": "..."}。
func (h *QueryHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	log.Infof("[QueryHandler] WebSocket 连接已建立: %s", c.ClientIP())

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}
		var req QueryRequest
		if err := json.Unmarshal(message, &req); err != nil || req.FileName == "" || req.Query == "" {
			writeJSON(conn, map[string]string{"error": "消息格式应为 {\"filename\": ..., \"query\": ...}"})
			continue
		}

		if err := h.queryService.StreamAnswer(c.Request.Context(), req.FileName, req.Query, conn); err != nil {
			log.Errorf("处理流式响应失败: %v", err)
			writeJSON(conn, map[string]string{"error": err.Error()})
			// 出错时也发送 completion 通知
			writeJSON(conn, service.CompletionFrame(time.Now()))
		}
	}
}

func writeJSON(conn *websocket.Conn, v interface{}) {
	b, _ := json.Marshal(v)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}
