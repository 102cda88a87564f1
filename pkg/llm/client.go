// Package llm provides a client for interacting with Large Language Models.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"datapilot-go/internal/config"
	"datapilot-go/pkg/log"
	"datapilot-go/pkg/retry"

	"github.com/gorilla/websocket"
	"github.com/sashabaranov/go-openai"
)

// MessageWriter defines an interface for writing WebSocket messages.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// Client defines the interface for an LLM client.
type Client interface {
	// Chat 发送一轮带工具定义的对话，返回模型回复（可能只包含工具调用）。
	Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Reply, error)
	// Generate 非流式生成，返回完整文本。
	Generate(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
	// StreamChatMessages 以 role-based 消息调用聊天接口，并将流式分块写入 writer。
	StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error
}

// Message 表示一条角色消息
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall 是模型发起的一次函数调用。
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition 描述一个可供模型调用的函数。
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Reply 是一次 Chat 调用的结果。
type Reply struct {
	Content   string
	ToolCalls []ToolCall
}

// GenerationParams 控制生成行为
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
	RoleTool      = openai.ChatMessageRoleTool
)

type openAICompatibleClient struct {
	cfg     config.LLMConfig
	client  *openai.Client
	policy  retry.Policy
	timeout time.Duration
}

// NewClient creates a new LLM client based on the provider in the config.
func NewClient(cfg config.LLMConfig, policy retry.Policy) Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if policy.Retryable == nil {
		policy.Retryable = IsRetryable
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &openAICompatibleClient{
		cfg:     cfg,
		client:  openai.NewClientWithConfig(clientConfig),
		policy:  policy,
		timeout: timeout,
	}
}

func (c *openAICompatibleClient) Chat(ctx context.Context, messages []Message, tools []ToolDefinition) (*Reply, error) {
	req := c.buildRequest(messages, nil)
	req.Tools = buildOpenAITools(tools)

	resp, err := retry.DoWithResult(ctx, c.policy, func() (openai.ChatCompletionResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		r, err := c.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			return r, ClassifyError(err)
		}
		return r, nil
	})
	if err != nil {
		log.Errorf("[LLMClient] Chat 调用失败, model: %s, error: %v", c.cfg.Model, err)
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, NewError(ErrorTypeResponse, "no choices in response", false, nil)
	}

	msg := resp.Choices[0].Message
	reply := &Reply{Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		reply.ToolCalls = append(reply.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	log.Debugf("[LLMClient] Chat 完成, tool_calls: %d, content_len: %d", len(reply.ToolCalls), len(reply.Content))
	return reply, nil
}

func (c *openAICompatibleClient) Generate(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	req := c.buildRequest(messages, gen)

	resp, err := retry.DoWithResult(ctx, c.policy, func() (openai.ChatCompletionResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		r, err := c.client.CreateChatCompletion(callCtx, req)
		if err != nil {
			return r, ClassifyError(err)
		}
		return r, nil
	})
	if err != nil {
		log.Errorf("[LLMClient] Generate 调用失败, model: %s, error: %v", c.cfg.Model, err)
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", NewError(ErrorTypeResponse, "no choices in response", false, nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *openAICompatibleClient) StreamChatMessages(ctx context.Context, messages []Message, gen *GenerationParams, writer MessageWriter) error {
	req := c.buildRequest(messages, gen)
	req.Stream = true

	// 只对建立流的过程重试，已开始输出的流不能重放
	stream, err := retry.DoWithResult(ctx, c.policy, func() (*openai.ChatCompletionStream, error) {
		s, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return nil, ClassifyError(err)
		}
		return s, nil
	})
	if err != nil {
		return fmt.Errorf("failed to call chat api: %w", err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read from stream: %w", ClassifyError(err))
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		if err := writer.WriteMessage(websocket.TextMessage, []byte(content)); err != nil {
			return fmt.Errorf("failed to write message to websocket: %w", err)
		}
	}
}

func (c *openAICompatibleClient) buildRequest(messages []Message, gen *GenerationParams) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: buildOpenAIMessages(messages),
	}
	// 传参优先，其次是全局配置（非零值）
	if gen != nil {
		if gen.Temperature != nil {
			req.Temperature = float32(*gen.Temperature)
		}
		if gen.TopP != nil {
			req.TopP = float32(*gen.TopP)
		}
		if gen.MaxTokens != nil {
			req.MaxTokens = *gen.MaxTokens
		}
		return req
	}
	if c.cfg.Generation.Temperature != 0 {
		req.Temperature = float32(c.cfg.Generation.Temperature)
	}
	if c.cfg.Generation.TopP != 0 {
		req.TopP = float32(c.cfg.Generation.TopP)
	}
	if c.cfg.Generation.MaxTokens != 0 {
		req.MaxTokens = c.cfg.Generation.MaxTokens
	}
	return req
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		result = append(result, oaiMsg)
	}
	return result
}

func buildOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, len(tools))
	for i, def := range tools {
		paramsJSON, _ := json.Marshal(def.Parameters)
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(paramsJSON),
			},
		}
	}
	return result
}
