package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/go-cmp/cmp"

	"github.com/dohr-michael/taskchat/internal/models"
	"github.com/dohr-michael/taskchat/internal/taskstore"
	"github.com/dohr-michael/taskchat/internal/tools"
)

// scriptedModel answers Generate calls from a queue of replies.
type scriptedModel struct {
	mu      sync.Mutex
	replies []reply
	calls   [][]*schema.Message
	tools   []*schema.ToolInfo
}

type reply struct {
	msg   *schema.Message
	err   error
	delay time.Duration
}

func toolCall(name, args string) reply {
	return reply{msg: &schema.Message{
		Role: schema.Assistant,
		ToolCalls: []schema.ToolCall{{
			ID:       "call_1",
			Function: schema.FunctionCall{Name: name, Arguments: args},
		}},
	}}
}

func (m *scriptedModel) Generate(ctx context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	m.calls = append(m.calls, in)
	var r reply
	if len(m.replies) > 0 {
		r, m.replies = m.replies[0], m.replies[1:]
	} else {
		r = reply{err: errors.New("no scripted reply")}
	}
	m.mu.Unlock()

	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.msg, r.err
}

func (m *scriptedModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, in, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *scriptedModel) WithTools(t []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.tools = t
	return m, nil
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// fakeTasks serves a fixed task list per user.
type fakeTasks map[string][]*taskstore.Task

func (f fakeTasks) List(_ context.Context, userID string, _ taskstore.Filter) ([]*taskstore.Task, error) {
	return f[userID], nil
}

func newTestResolver(t *testing.T, m model.ToolCallingChatModel, tasks TaskLister) *Resolver {
	t.Helper()
	r, err := New(Options{
		Model:        m,
		ModelName:    "scripted",
		Registry:     tools.DefaultRegistry(),
		Tasks:        tasks,
		ModelTimeout: 50 * time.Millisecond,
		MaxRetries:   1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestResolve_EmptyInput(t *testing.T) {
	m := &scriptedModel{}
	r := newTestResolver(t, m, nil)
	for _, in := range []string{"", "   ", "\n\t"} {
		if _, err := r.Resolve(context.Background(), "alice", in, nil); !errors.Is(err, ErrEmptyInput) {
			t.Errorf("Resolve(%q): expected ErrEmptyInput, got %v", in, err)
		}
	}
	if m.callCount() != 0 {
		t.Error("model must not be called for empty input")
	}
}

func TestResolve_ModelPath(t *testing.T) {
	m := &scriptedModel{replies: []reply{toolCall("create_task", `{"title":"buy milk","priority":"high"}`)}}
	r := newTestResolver(t, m, nil)

	history := []*schema.Message{schema.UserMessage("hi"), schema.AssistantMessage("Hello!", nil)}
	intent, err := r.Resolve(context.Background(), "alice", "add buy milk, high priority", history)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if intent.Confidence != ConfidenceModel {
		t.Errorf("confidence: got %q, want model", intent.Confidence)
	}
	want := tools.Call(tools.CreateTask{Title: "buy milk", Priority: taskstore.PriorityHigh})
	if diff := cmp.Diff(want, intent.Call); diff != "" {
		t.Errorf("call (-want +got):\n%s", diff)
	}

	if len(m.tools) != 5 {
		t.Errorf("model saw %d tools, want 5", len(m.tools))
	}
	sent := m.calls[0]
	if len(sent) != 4 || sent[0].Role != schema.System || sent[3].Content != "add buy milk, high priority" {
		t.Errorf("unexpected prompt: %+v", sent)
	}
}

func TestResolve_ContextWindow(t *testing.T) {
	m := &scriptedModel{replies: []reply{toolCall("list_tasks", `{}`)}}
	r, err := New(Options{Model: m, Registry: tools.DefaultRegistry(), ContextWindow: 2})
	if err != nil {
		t.Fatal(err)
	}

	var history []*schema.Message
	for i := 0; i < 6; i++ {
		history = append(history, schema.UserMessage("turn"))
	}
	if _, err := r.Resolve(context.Background(), "alice", "list", history); err != nil {
		t.Fatal(err)
	}
	// system + 2 history + user
	if got := len(m.calls[0]); got != 4 {
		t.Errorf("prompt length: got %d, want 4", got)
	}
}

func TestResolve_CorrectiveRetry(t *testing.T) {
	m := &scriptedModel{replies: []reply{
		toolCall("create_task", `{"priority":"high"}`),
		toolCall("create_task", `{"title":"call mom"}`),
	}}
	r := newTestResolver(t, m, nil)

	intent, err := r.Resolve(context.Background(), "alice", "call mom", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if intent.Confidence != ConfidenceModel {
		t.Errorf("confidence: got %q, want model", intent.Confidence)
	}
	if m.callCount() != 2 {
		t.Fatalf("model calls: got %d, want 2", m.callCount())
	}

	retry := m.calls[1]
	last := retry[len(retry)-1]
	if last.Role != schema.System {
		t.Errorf("retry should end with a corrective system message, got %s", last.Role)
	}
	toolMsg := retry[len(retry)-2]
	if toolMsg.Role != schema.Tool || toolMsg.ToolCallID != "call_1" {
		t.Errorf("retry should answer the rejected tool call, got %+v", toolMsg)
	}
}

func TestResolve_FallbackAfterInvalidRetries(t *testing.T) {
	m := &scriptedModel{replies: []reply{
		toolCall("send_email", `{}`),
		{msg: schema.AssistantMessage("Sure! I added it.", nil)},
	}}
	r := newTestResolver(t, m, nil)

	intent, err := r.Resolve(context.Background(), "alice", "add buy milk", nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if intent.Confidence != ConfidenceFallback {
		t.Errorf("confidence: got %q, want fallback", intent.Confidence)
	}
	if m.callCount() != 2 {
		t.Errorf("model calls: got %d, want 2 (one retry only)", m.callCount())
	}
}

func TestResolve_FallbackOnUnavailable(t *testing.T) {
	tests := []struct {
		name  string
		reply reply
	}{
		{"timeout", reply{delay: time.Second, msg: schema.AssistantMessage("late", nil)}},
		{"transport", reply{err: &models.ErrModelUnavailable{Provider: "ollama", Body: "bad gateway"}}},
		{"other error", reply{err: errors.New("500 internal")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &scriptedModel{replies: []reply{tt.reply}}
			r := newTestResolver(t, m, nil)

			intent, err := r.Resolve(context.Background(), "alice", "add buy milk", nil)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if intent.Confidence != ConfidenceFallback {
				t.Errorf("confidence: got %q, want fallback", intent.Confidence)
			}
			if m.callCount() != 1 {
				t.Errorf("unavailable model must not be retried, got %d calls", m.callCount())
			}
		})
	}
}

func TestResolve_CallerCancelled(t *testing.T) {
	m := &scriptedModel{replies: []reply{{delay: time.Second}}}
	r := newTestResolver(t, m, nil)
	r.timeout = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.Resolve(ctx, "alice", "add buy milk", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected caller deadline, got %v", err)
	}
}

func TestResolve_NoModel(t *testing.T) {
	r := newTestResolver(t, nil, nil)
	if r.HasModel() {
		t.Fatal("HasModel should be false")
	}
	intent, err := r.Resolve(context.Background(), "alice", "list my tasks", nil)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(tools.Call(tools.ListTasks{}), intent.Call); diff != "" {
		t.Errorf("call (-want +got):\n%s", diff)
	}
}

func TestNew_RequiresRegistry(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without registry")
	}
}
