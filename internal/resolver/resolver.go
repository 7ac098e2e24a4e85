package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/taskchat/internal/models"
	"github.com/dohr-michael/taskchat/internal/taskstore"
	"github.com/dohr-michael/taskchat/internal/tools"
)

// TaskLister is the read access the fallback parser needs to match titles.
type TaskLister interface {
	List(ctx context.Context, userID string, f taskstore.Filter) ([]*taskstore.Task, error)
}

// Options configures a Resolver.
type Options struct {
	// Model is the function-calling model. Nil disables the model path.
	Model        model.ToolCallingChatModel
	ModelName    string
	Registry     *tools.Registry
	Tasks        TaskLister
	Keywords     *KeywordTable
	ModelTimeout time.Duration
	// MaxRetries is the number of corrective retries after a schema-invalid
	// answer (0 or 1).
	MaxRetries    int
	Temperature   float32
	SystemPrompt  string
	ContextWindow int
}

// Resolver maps a message plus recent context to an Intent.
type Resolver struct {
	model         model.ToolCallingChatModel
	modelName     string
	registry      *tools.Registry
	tasks         TaskLister
	keywords      atomic.Pointer[compiledKeywords]
	timeout       time.Duration
	maxRetries    int
	temperature   float32
	systemPrompt  string
	contextWindow int
}

// New creates a Resolver and binds the registry's tools to the model.
func New(opts Options) (*Resolver, error) {
	if opts.Registry == nil {
		return nil, errors.New("resolver: registry is required")
	}
	r := &Resolver{
		modelName:     opts.ModelName,
		registry:      opts.Registry,
		tasks:         opts.Tasks,
		timeout:       opts.ModelTimeout,
		maxRetries:    min(max(opts.MaxRetries, 0), 1),
		temperature:   opts.Temperature,
		systemPrompt:  opts.SystemPrompt,
		contextWindow: opts.ContextWindow,
	}
	if r.timeout <= 0 {
		r.timeout = 10 * time.Second
	}
	if r.systemPrompt == "" {
		r.systemPrompt = DefaultSystemPrompt
	}
	if r.contextWindow <= 0 {
		r.contextWindow = 8
	}

	kt := opts.Keywords
	if kt == nil {
		kt = DefaultKeywords()
	}
	r.keywords.Store(compileKeywords(kt))

	if opts.Model != nil {
		bound, err := opts.Model.WithTools(opts.Registry.ToolInfos())
		if err != nil {
			return nil, fmt.Errorf("bind tools: %w", err)
		}
		r.model = bound
	}
	return r, nil
}

// SetKeywords swaps the fallback keyword table. Safe for concurrent use.
func (r *Resolver) SetKeywords(kt *KeywordTable) {
	if kt == nil {
		kt = DefaultKeywords()
	}
	r.keywords.Store(compileKeywords(kt))
}

// HasModel reports whether the model path is enabled.
func (r *Resolver) HasModel() bool {
	return r.model != nil
}

// ContextWindow is the number of prior turns the resolver looks at.
func (r *Resolver) ContextWindow() int {
	return r.contextWindow
}

// Resolve produces the intent for text. history holds prior turns, oldest
// first, and is trimmed to the context window. Errors are ErrEmptyInput,
// *ResolutionError, or a task lookup failure from the fallback.
func (r *Resolver) Resolve(ctx context.Context, userID, text string, history []*schema.Message) (*Intent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyInput
	}

	if r.model != nil {
		intent, err := r.resolveWithModel(ctx, text, history)
		if err == nil {
			return intent, nil
		}
		// The caller's own cancellation ends the request; anything else
		// degrades to the keyword parser.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("model resolution failed, using fallback",
			"user_id", userID, "model", r.modelName, "unavailable", models.IsUnavailable(err), "error", err)
	}

	return r.fallback(ctx, userID, text)
}

func (r *Resolver) resolveWithModel(ctx context.Context, text string, history []*schema.Message) (*Intent, error) {
	if len(history) > r.contextWindow {
		history = history[len(history)-r.contextWindow:]
	}
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(r.systemPrompt))
	messages = append(messages, history...)
	messages = append(messages, schema.UserMessage(text))

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		msg, err := r.model.Generate(callCtx, messages, model.WithTemperature(r.temperature))
		cancel()
		if err != nil {
			// Transport failures and timeouts are not retried.
			if !models.IsUnavailable(err) {
				err = &models.ErrModelUnavailable{Provider: r.modelName, Cause: err}
			}
			return nil, err
		}

		intent, err := r.interpret(msg)
		if err == nil {
			return intent, nil
		}
		lastErr = err
		slog.Debug("model answer rejected", "attempt", attempt+1, "error", err)
		messages = append(messages, correction(msg, err)...)
	}
	return nil, lastErr
}

// interpret validates the model answer against the registry.
func (r *Resolver) interpret(msg *schema.Message) (*Intent, error) {
	if msg == nil {
		return nil, errors.New("empty answer")
	}
	switch len(msg.ToolCalls) {
	case 0:
		return nil, errors.New("no tool was called")
	case 1:
	default:
		return nil, fmt.Errorf("%d tools were called, expected one", len(msg.ToolCalls))
	}

	fc := msg.ToolCalls[0].Function
	call, err := r.registry.DecodeCall(fc.Name, fc.Arguments)
	if err != nil {
		return nil, err
	}
	if _, err := tools.Validate(call); err != nil {
		return nil, err
	}
	return &Intent{
		Call:       call,
		Confidence: ConfidenceModel,
		RawSource:  fc.Name + " " + fc.Arguments,
	}, nil
}

// correction builds the messages that tell the model what was wrong with
// its previous answer. Tool calls get a matching tool result so providers
// accept the transcript.
func correction(prev *schema.Message, cause error) []*schema.Message {
	var out []*schema.Message
	if prev != nil {
		out = append(out, prev)
		for _, tc := range prev.ToolCalls {
			out = append(out, schema.ToolMessage("error: "+cause.Error(), tc.ID))
		}
	}
	return append(out, schema.SystemMessage(fmt.Sprintf(correctionPrompt, cause)))
}
