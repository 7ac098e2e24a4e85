// Package callbacks provides Eino callback handlers that bridge model calls
// to the event bus.
package callbacks

import (
	"context"
	"log/slog"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	ub "github.com/cloudwego/eino/utils/callbacks"

	"github.com/dohr-michael/taskchat/internal/events"
)

const maxErrorLen = 500

// NewEventBusHandler creates a callback handler that publishes a
// model.call event for every chat model request, response and error. The
// user and conversation are taken from events.ScopeFrom(ctx).
func NewEventBusHandler(bus *events.Bus) callbacks.Handler {
	publish := func(ctx context.Context, payload events.ModelCallPayload) {
		scope := events.ScopeFrom(ctx)
		slog.Debug("model call", "phase", payload.Phase, "model", payload.Model, "user_id", scope.UserID, "error", payload.Error)
		bus.Publish(events.NewTypedEvent(events.SourceModel, scope.UserID, scope.ConversationID, payload))
	}

	modelHandler := &ub.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *callbacks.RunInfo, input *model.CallbackInput) context.Context {
			publish(ctx, events.ModelCallPayload{
				Phase:        "request",
				Model:        info.Name,
				MessageCount: len(input.Messages),
			})
			return ctx
		},

		OnEnd: func(ctx context.Context, info *callbacks.RunInfo, output *model.CallbackOutput) context.Context {
			payload := events.ModelCallPayload{
				Phase: "response",
				Model: info.Name,
			}
			if msg := output.Message; msg != nil {
				payload.ToolCalls = len(msg.ToolCalls)
				if msg.ResponseMeta != nil && msg.ResponseMeta.Usage != nil {
					payload.TokensInput = msg.ResponseMeta.Usage.PromptTokens
					payload.TokensOutput = msg.ResponseMeta.Usage.CompletionTokens
				}
			}
			publish(ctx, payload)
			return ctx
		},

		OnError: func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			publish(ctx, events.ModelCallPayload{
				Phase: "error",
				Model: info.Name,
				Error: truncate(err.Error(), maxErrorLen),
			})
			return ctx
		},
	}

	return ub.NewHandlerHelper().
		ChatModel(modelHandler).
		Handler()
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
