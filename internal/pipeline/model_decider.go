package pipeline

import (
	"context"
	"fmt"
	"strings"

	"datapilot-go/pkg/llm"
	"datapilot-go/pkg/log"
)

const deciderSystemPrompt = `You drive a file ingestion pipeline by calling tools, one tool per turn.
The stages must run in this order: classify_file, validate_schema, then
identify_primary_key, insert_records, move_to_category when the schema is valid,
then log_ingestion. When the file has been logged, stop calling tools and reply
with exactly two lines and nothing else:
Category: <category>
Valid: <true|false>
If anything went wrong reply with a single line starting with "Error:".`

var stageDescriptions = []struct {
	stage Stage
	desc  string
}{
	{StageClassify, "Classify the file into a category by its column names."},
	{StageValidate, "Check that the file contains every column required by its category."},
	{StageIdentifyKey, "Choose the column that uniquely identifies a row."},
	{StagePersist, "Upsert the rows into the document database by primary key."},
	{StageMove, "Move the file into the folder of its category."},
	{StageLog, "Append an entry to the ingestion log."},
}

// ModelDecider 是引导式策略：由模型通过函数调用选择下一个阶段。
// 模型只产出选择，是否合法由编排器校验。
type ModelDecider struct {
	client llm.Client
	tools  []llm.ToolDefinition
}

// NewModelDecider 创建 ModelDecider。
func NewModelDecider(client llm.Client) *ModelDecider {
	tools := make([]llm.ToolDefinition, 0, len(stageDescriptions))
	for _, s := range stageDescriptions {
		tools = append(tools, llm.ToolDefinition{
			Name:        string(s.stage),
			Description: s.desc,
			Parameters:  map[string]any{"type": "object", "properties": map[string]any{}},
		})
	}
	return &ModelDecider{client: client, tools: tools}
}

func (d *ModelDecider) NextStage(ctx context.Context, state *State) (StageChoice, error) {
	reply, err := d.client.Chat(ctx, d.messages(state), d.tools)
	if err != nil {
		return StageChoice{}, fmt.Errorf("model decider: %w", err)
	}
	if len(reply.ToolCalls) == 0 {
		// 不再调用工具即表示结束，内容就是摘要
		return StageChoice{Stage: StageFinish, Summary: reply.Content}, nil
	}
	if len(reply.ToolCalls) > 1 {
		log.Warnf("[ModelDecider] 模型一次返回 %d 个工具调用，只执行第一个", len(reply.ToolCalls))
	}
	call := reply.ToolCalls[0]
	return StageChoice{Stage: Stage(call.Name), CallID: call.ID}, nil
}

// messages 由已执行的观察记录重建完整对话。
func (d *ModelDecider) messages(state *State) []llm.Message {
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: deciderSystemPrompt},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Ingest file %q into database %q. Columns: %s",
			state.Record.FileName, state.Record.Database, strings.Join(state.Record.Columns, ", "))},
	}
	for i, obs := range state.Observations {
		id := obs.CallID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		msgs = append(msgs,
			llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{ID: id, Name: string(obs.Stage), Arguments: "{}"}}},
			llm.Message{Role: llm.RoleTool, ToolCallID: id, Content: obs.Result},
		)
	}
	return msgs
}
