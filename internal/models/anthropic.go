package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/taskchat/internal/config"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-6"
	defaultAnthropicMaxTokens = 1024
)

// AnthropicChatModel implements model.ToolCallingChatModel using Anthropic's SDK.
// Intent resolution needs a single tool call, so Stream is served from one
// Generate round-trip.
type AnthropicChatModel struct {
	client      anthropic.Client
	modelName   string
	maxTokens   int
	temperature *float64
	tools       []*schema.ToolInfo
}

// NewAnthropic creates a new Anthropic ToolCallingChatModel.
func NewAnthropic(_ context.Context, cfg config.ProviderConfig, auth ResolvedAuth) (model.ToolCallingChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	var opts []option.RequestOption
	switch auth.Kind {
	case AuthBearerToken:
		opts = append(opts, option.WithAuthToken(auth.Value))
	default:
		opts = append(opts, option.WithAPIKey(auth.Value))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout.Duration() > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout.Duration()))
	} else {
		opts = append(opts, option.WithRequestTimeout(30*time.Second))
	}

	m := &AnthropicChatModel{
		client:    anthropic.NewClient(opts...),
		modelName: modelName,
		maxTokens: maxTokens,
	}
	if temp, ok := temperatureOption(cfg); ok {
		t := float64(temp)
		m.temperature = &t
	}
	return m, nil
}

func (m *AnthropicChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (outMsg *schema.Message, err error) {
	ctx = callbacks.EnsureRunInfo(ctx, "Anthropic", components.ComponentOfChatModel)

	cbInput := &model.CallbackInput{
		Messages: messages,
		Tools:    m.tools,
		Config:   &model.Config{Model: m.modelName},
	}
	ctx = callbacks.OnStart(ctx, cbInput)
	defer func() {
		if err != nil {
			callbacks.OnError(ctx, err)
		}
	}()

	resp, err := m.client.Messages.New(ctx, m.buildParams(messages, opts))
	if err != nil {
		return nil, HandleError(err)
	}

	outMsg = convertAnthropicResponse(resp)

	callbacks.OnEnd(ctx, &model.CallbackOutput{
		Message: outMsg,
		Config:  cbInput.Config,
		TokenUsage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	})

	return outMsg, nil
}

func (m *AnthropicChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *AnthropicChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return &AnthropicChatModel{
		client:      m.client,
		modelName:   m.modelName,
		maxTokens:   m.maxTokens,
		temperature: m.temperature,
		tools:       tools,
	}, nil
}

func (m *AnthropicChatModel) buildParams(messages []*schema.Message, opts []model.Option) anthropic.MessageNewParams {
	options := model.GetCommonOptions(&model.Options{
		MaxTokens: &m.maxTokens,
	}, opts...)

	maxTokens := m.maxTokens
	if options.MaxTokens != nil && *options.MaxTokens > 0 {
		maxTokens = *options.MaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.modelName),
		MaxTokens: int64(maxTokens),
	}

	switch {
	case options.Temperature != nil:
		params.Temperature = param.NewOpt(float64(*options.Temperature))
	case m.temperature != nil:
		params.Temperature = param.NewOpt(*m.temperature)
	}

	for _, msg := range messages {
		if msg.Role == schema.System {
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
			continue
		}
		params.Messages = append(params.Messages, convertAnthropicMessage(msg))
	}

	for _, tool := range m.tools {
		toolParam := anthropic.ToolUnionParamOfTool(anthropicToolSchema(tool), tool.Name)
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = param.NewOpt(tool.Desc)
		}
		params.Tools = append(params.Tools, toolParam)
	}

	return params
}

func anthropicToolSchema(tool *schema.ToolInfo) anthropic.ToolInputSchemaParam {
	inputSchema := anthropic.ToolInputSchemaParam{}
	if tool.ParamsOneOf == nil {
		return inputSchema
	}

	jsonSchema, err := tool.ParamsOneOf.ToJSONSchema()
	if err != nil || jsonSchema == nil {
		return inputSchema
	}

	schemaBytes, err := json.Marshal(jsonSchema)
	if err != nil {
		return inputSchema
	}

	var schemaMap map[string]any
	if json.Unmarshal(schemaBytes, &schemaMap) != nil {
		return inputSchema
	}

	if props, ok := schemaMap["properties"]; ok {
		inputSchema.Properties = props
	}
	if req, ok := schemaMap["required"].([]any); ok {
		for _, r := range req {
			if s, ok := r.(string); ok {
				inputSchema.Required = append(inputSchema.Required, s)
			}
		}
	}

	return inputSchema
}

func convertAnthropicMessage(msg *schema.Message) anthropic.MessageParam {
	switch msg.Role {
	case schema.Assistant:
		var blocks []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		for _, tc := range msg.ToolCalls {
			var input any
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &input); err != nil {
				input = tc.Function.Arguments
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, input, tc.Function.Name))
		}
		return anthropic.NewAssistantMessage(blocks...)
	case schema.Tool:
		return anthropic.NewUserMessage(anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
	default:
		return anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content))
	}
}

func convertAnthropicResponse(resp *anthropic.Message) *schema.Message {
	result := &schema.Message{
		Role: schema.Assistant,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{
				PromptTokens:     int(resp.Usage.InputTokens),
				CompletionTokens: int(resp.Usage.OutputTokens),
			},
		},
	}

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			result.Content += block.Text
		case "tool_use":
			inputJSON, err := json.Marshal(block.Input)
			if err != nil {
				inputJSON = []byte("{}")
			}
			result.ToolCalls = append(result.ToolCalls, schema.ToolCall{
				ID: block.ID,
				Function: schema.FunctionCall{
					Name:      block.Name,
					Arguments: string(inputJSON),
				},
			})
		}
	}

	switch resp.StopReason {
	case anthropic.StopReasonToolUse:
		result.ResponseMeta.FinishReason = "tool_calls"
	case anthropic.StopReasonMaxTokens:
		result.ResponseMeta.FinishReason = "length"
	default:
		result.ResponseMeta.FinishReason = "stop"
	}

	return result
}

var _ model.ToolCallingChatModel = (*AnthropicChatModel)(nil)
