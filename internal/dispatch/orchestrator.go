// Package dispatch sequences one chat request through the conversation
// log, the intent resolver and the task executor, and owns the request's
// error boundary.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/taskchat/internal/conversations"
	"github.com/dohr-michael/taskchat/internal/events"
	"github.com/dohr-michael/taskchat/internal/resolver"
	"github.com/dohr-michael/taskchat/internal/tools"
)

// ErrMissingUser is returned for requests without a user id.
var ErrMissingUser = errors.New("dispatch: missing user id")

// Stage is a step of the per-request state machine.
type Stage string

const (
	StageReceived        Stage = "received"
	StageContextLoaded   Stage = "context_loaded"
	StageIntentResolved  Stage = "intent_resolved"
	StageIntentValidated Stage = "intent_validated"
	StageExecuted        Stage = "executed"
	StageConfirmed       Stage = "confirmed"
)

// Outcome values recorded on assistant turns.
const (
	OutcomeSuccess       = "success"
	OutcomeInformational = "informational"
	OutcomeEmptyInput    = "empty_input"
	OutcomeNotUnderstood = "not_understood"
	OutcomeValidation    = "validation"
	OutcomeNotFound      = "not_found"
	OutcomeError         = "error"
)

// Request is one inbound chat message.
type Request struct {
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// Response is the reply to one chat message.
type Response struct {
	ConversationID      string    `json:"conversation_id"`
	ConfirmationMessage string    `json:"confirmation_message"`
	ActionTaken         string    `json:"action_taken"`
	Timestamp           time.Time `json:"timestamp"`
}

// IntentResolver resolves a message into an intent.
type IntentResolver interface {
	Resolve(ctx context.Context, userID, text string, history []*schema.Message) (*resolver.Intent, error)
	ContextWindow() int
}

// TaskExecutor runs one tool call for a user.
type TaskExecutor interface {
	Execute(ctx context.Context, userID string, call tools.Call) (*tools.Result, error)
}

// Config wires an Orchestrator.
type Config struct {
	Conversations *conversations.Manager
	Resolver      IntentResolver
	Executor      TaskExecutor
	Registry      *tools.Registry
	// EventBus is optional.
	EventBus *events.Bus
}

// Orchestrator handles chat requests. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	convs    *conversations.Manager
	resolver IntentResolver
	exec     TaskExecutor
	registry *tools.Registry
	bus      *events.Bus
	now      func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Conversations == nil || cfg.Resolver == nil || cfg.Executor == nil || cfg.Registry == nil {
		return nil, errors.New("dispatch: conversations, resolver, executor and registry are required")
	}
	return &Orchestrator{
		convs:    cfg.Conversations,
		resolver: cfg.Resolver,
		exec:     cfg.Executor,
		registry: cfg.Registry,
		bus:      cfg.EventBus,
		now:      time.Now,
	}, nil
}

// reply is what the pipeline decided to answer.
type reply struct {
	text       string
	action     string
	confidence string
	outcome    string
}

// Handle runs one request to completion. Pipeline failures are answered with
// a message; only conversation log failures are returned as errors, because
// the turn could not be recorded.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Response, error) {
	if req.UserID == "" {
		return nil, ErrMissingUser
	}
	slog.Debug("chat request", "stage", StageReceived, "user_id", req.UserID, "conversation_id", req.ConversationID)

	conv, err := o.convs.Open(req.UserID, req.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("open conversation: %w", err)
	}
	ctx = events.WithScope(ctx, req.UserID, conv.ID)

	userMsg, err := o.convs.Append(req.UserID, conv.ID, conversations.RoleUser, req.Message, nil)
	if err != nil {
		return nil, fmt.Errorf("append user turn: %w", err)
	}
	o.publish(req.UserID, conv.ID, events.UserMessagePayload{Content: req.Message})

	history, err := o.history(req.UserID, conv.ID, userMsg.ID)
	if err != nil {
		return nil, fmt.Errorf("load context: %w", err)
	}

	r := o.run(ctx, req, conv.ID, history)

	if _, err := o.convs.Append(req.UserID, conv.ID, conversations.RoleAssistant, r.text, map[string]any{
		"action_taken": r.action,
		"confidence":   r.confidence,
		"outcome":      r.outcome,
	}); err != nil {
		return nil, fmt.Errorf("append assistant turn: %w", err)
	}
	o.publish(req.UserID, conv.ID, events.AssistantMessagePayload{
		Content:     r.text,
		ActionTaken: r.action,
		Outcome:     r.outcome,
	})

	return &Response{
		ConversationID:      conv.ID,
		ConfirmationMessage: r.text,
		ActionTaken:         r.action,
		Timestamp:           o.now().UTC(),
	}, nil
}

// history returns the recent window preceding the current turn.
func (o *Orchestrator) history(userID, convID, currentID string) ([]*schema.Message, error) {
	msgs, err := o.convs.Recent(userID, convID, o.resolver.ContextWindow()+1)
	if err != nil {
		return nil, err
	}
	if n := len(msgs); n > 0 && msgs[n-1].ID == currentID {
		msgs = msgs[:n-1]
	}
	return conversations.ToSchemaMessages(msgs), nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, convID string, history []*schema.Message) reply {
	stage := StageContextLoaded
	log := slog.With("user_id", req.UserID, "conversation_id", convID)

	intent, err := o.resolver.Resolve(ctx, req.UserID, req.Message, history)
	if err != nil {
		o.publish(req.UserID, convID, events.IntentResolvedPayload{Tool: tools.ActionNone, Error: err.Error()})
		return o.fail(log, stage, "", "", err)
	}
	stage = StageIntentResolved
	confidence := string(intent.Confidence)
	o.publish(req.UserID, convID, events.IntentResolvedPayload{
		Tool:       intent.ToolName(),
		Confidence: confidence,
		Arguments:  arguments(intent.Call),
	})

	if intent.Informational() {
		text := GreetingReply
		if intent.Info == resolver.InfoHelp {
			text = HelpReply
		}
		return reply{text: text, action: tools.ActionNone, confidence: confidence, outcome: OutcomeInformational}
	}

	call, err := o.validate(intent.Call)
	if err != nil {
		return o.fail(log, stage, intent.ToolName(), confidence, err)
	}
	stage = StageIntentValidated

	name := string(call.Tool())
	args := tools.Arguments(call)
	o.publish(req.UserID, convID, events.ToolCallPayload{Status: events.ToolStatusStarted, Name: name, Arguments: args})

	res, err := o.execute(ctx, req.UserID, call)
	if err != nil {
		o.publish(req.UserID, convID, events.ToolCallPayload{
			Status:    events.ToolStatusFailed,
			Name:      name,
			Arguments: args,
			Error:     err.Error(),
			ErrorKind: tools.ErrorKind(err),
		})
		return o.fail(log, stage, name, confidence, err)
	}
	o.publish(req.UserID, convID, events.ToolCallPayload{
		Status:    events.ToolStatusCompleted,
		Name:      name,
		Arguments: args,
		Result:    res.Payload(),
	})

	text := Confirm(res, call)
	log.Info("request handled", "stage", StageConfirmed, "tool", name, "confidence", confidence)
	return reply{text: text, action: name, confidence: confidence, outcome: OutcomeSuccess}
}

// validate checks the call against the registry before execution.
func (o *Orchestrator) validate(call tools.Call) (tools.Call, error) {
	if call == nil {
		return nil, &tools.ValidationError{Reason: "no tool call"}
	}
	if _, ok := o.registry.Lookup(call.Tool()); !ok {
		return nil, fmt.Errorf("%w: %s", tools.ErrUnknownTool, call.Tool())
	}
	return tools.Validate(call)
}

// execute runs the call, converting a panic into an error.
func (o *Orchestrator) execute(ctx context.Context, userID string, call tools.Call) (res *tools.Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("panic in %s: %v", call.Tool(), p)
		}
	}()
	return o.exec.Execute(ctx, userID, call)
}

// fail maps a pipeline failure to a reply and logs it at the level its
// kind deserves.
func (o *Orchestrator) fail(log *slog.Logger, stage Stage, tool, confidence string, err error) reply {
	if confidence == "" {
		confidence = tools.ActionNone
	}
	r := reply{text: failureReply(err), action: tools.ActionNone, confidence: confidence}

	var (
		rerr *resolver.ResolutionError
		verr *tools.ValidationError
		nerr *tools.NotFoundError
	)
	switch {
	case errors.Is(err, resolver.ErrEmptyInput):
		r.outcome = OutcomeEmptyInput
		log.Info("empty input", "stage", stage)
	case errors.As(err, &rerr), errors.Is(err, tools.ErrUnknownTool):
		r.outcome = OutcomeNotUnderstood
		log.Info("intent not resolved", "stage", stage, "tool", tool, "error", err)
	case errors.As(err, &verr):
		r.outcome = OutcomeValidation
		log.Warn("intent rejected", "stage", stage, "tool", tool, "error", err)
	case errors.As(err, &nerr):
		r.outcome = OutcomeNotFound
		log.Info("task not found", "stage", stage, "tool", tool, "task_id", nerr.TaskID)
	default:
		r.outcome = OutcomeError
		log.Error("request failed", "stage", stage, "tool", tool, "error", err)
	}
	return r
}

func (o *Orchestrator) publish(userID, convID string, payload events.EventPayload) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.NewTypedEvent(events.SourceDispatch, userID, convID, payload))
}

func arguments(call tools.Call) map[string]any {
	if call == nil {
		return nil
	}
	return tools.Arguments(call)
}
