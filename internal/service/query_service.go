package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"datapilot-go/pkg/llm"

	"github.com/gorilla/websocket"
)

// Answerer 是检索问答的能力，由 retrieval.Querier 实现。
type Answerer interface {
	Query(ctx context.Context, fileName, question string) (string, error)
	Stream(ctx context.Context, fileName, question string, writer llm.MessageWriter) error
	Files(ctx context.Context) ([]string, error)
}

// QueryService 接口定义了针对单个已索引文件的问答操作。
type QueryService interface {
	Ask(ctx context.Context, fileName, question string) (string, error)
	StreamAnswer(ctx context.Context, fileName, question string, ws *websocket.Conn) error
	ListFiles(ctx context.Context) ([]string, error)
}

type queryService struct {
	answerer Answerer
}

// NewQueryService 创建一个新的 QueryService 实例。
func NewQueryService(answerer Answerer) QueryService {
	return &queryService{answerer: answerer}
}

func (s *queryService) Ask(ctx context.Context, fileName, question string) (string, error) {
	return s.answerer.Query(ctx, strings.TrimSpace(fileName), question)
}

// StreamAnswer 逐块下发 {"chunk": "..."}，结束后发送 completion 通知。
func (s *queryService) StreamAnswer(ctx context.Context, fileName, question string, ws *websocket.Conn) error {
	interceptor := &wsWriterInterceptor{conn: ws, writer: &strings.Builder{}}
	if err := s.answerer.Stream(ctx, strings.TrimSpace(fileName), question, interceptor); err != nil {
		return err
	}
	sendCompletion(ws)
	return nil
}

func (s *queryService) ListFiles(ctx context.Context) ([]string, error) {
	return s.answerer.Files(ctx)
}

// wsWriterInterceptor 是对 websocket.Conn 的封装，用于捕获写入的消息。
type wsWriterInterceptor struct {
	conn   *websocket.Conn
	writer *strings.Builder
}

// WriteMessage 满足 llm.MessageWriter 接口。
func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	w.writer.Write(data)
	payload := map[string]string{"chunk": string(data)}
	b, _ := json.Marshal(payload)
	return w.conn.WriteMessage(messageType, b)
}

// sendCompletion 发送完成通知 JSON
func sendCompletion(ws *websocket.Conn) {
	b, _ := json.Marshal(CompletionFrame(time.Now()))
	_ = ws.WriteMessage(websocket.TextMessage, b)
}

// CompletionFrame 是流式回答结束时的通知帧，出错时 handler 也会发送。
func CompletionFrame(now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"type":      "completion",
		"status":    "finished",
		"message":   "响应已完成",
		"timestamp": now.UnixMilli(),
		"date":      now.Format("2006-01-02T15:04:05"),
	}
}
