package dispatch

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/go-cmp/cmp"

	"github.com/dohr-michael/taskchat/internal/conversations"
	"github.com/dohr-michael/taskchat/internal/events"
	"github.com/dohr-michael/taskchat/internal/resolver"
	"github.com/dohr-michael/taskchat/internal/taskstore"
	"github.com/dohr-michael/taskchat/internal/tools"
)

// countingStore counts mutations reaching the real store.
type countingStore struct {
	taskstore.Store
	mutations atomic.Int32
}

func (s *countingStore) Create(ctx context.Context, userID string, t taskstore.NewTask) (*taskstore.Task, error) {
	s.mutations.Add(1)
	return s.Store.Create(ctx, userID, t)
}

func (s *countingStore) Update(ctx context.Context, userID string, id int64, p taskstore.Patch) (*taskstore.Task, error) {
	s.mutations.Add(1)
	return s.Store.Update(ctx, userID, id, p)
}

func (s *countingStore) Delete(ctx context.Context, userID string, id int64) (bool, error) {
	s.mutations.Add(1)
	return s.Store.Delete(ctx, userID, id)
}

func (s *countingStore) SetCompleted(ctx context.Context, userID string, id int64, done bool) (*taskstore.Task, error) {
	s.mutations.Add(1)
	return s.Store.SetCompleted(ctx, userID, id, done)
}

// slowModel never answers before the resolver's timeout.
type slowModel struct{ calls atomic.Int32 }

func (m *slowModel) Generate(ctx context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.calls.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

func (m *slowModel) Stream(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	_, err := m.Generate(ctx, in, opts...)
	return nil, err
}

func (m *slowModel) WithTools([]*schema.ToolInfo) (model.ToolCallingChatModel, error) { return m, nil }

type harness struct {
	orch  *Orchestrator
	store *countingStore
	convs *conversations.Manager
	bus   *events.Bus
}

func newHarness(t *testing.T, m model.ToolCallingChatModel) *harness {
	t.Helper()
	dir := t.TempDir()

	db, err := taskstore.OpenSQLite(filepath.Join(dir, "tasks.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	store := &countingStore{Store: db}

	registry := tools.DefaultRegistry()
	res, err := resolver.New(resolver.Options{
		Model:         m,
		Registry:      registry,
		Tasks:         store,
		ModelTimeout:  20 * time.Millisecond,
		ContextWindow: 4,
	})
	if err != nil {
		t.Fatalf("resolver.New: %v", err)
	}

	bus := events.NewBus(256)
	t.Cleanup(bus.Close)

	convs := conversations.NewManager(conversations.NewFileStore(filepath.Join(dir, "conversations")))
	orch, err := New(Config{
		Conversations: convs,
		Resolver:      res,
		Executor:      tools.NewExecutor(store, time.Second),
		Registry:      registry,
		EventBus:      bus,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{orch: orch, store: store, convs: convs, bus: bus}
}

func (h *harness) seed(t *testing.T, userID, title string) *taskstore.Task {
	t.Helper()
	task, err := h.store.Store.Create(context.Background(), userID, taskstore.NewTask{Title: title, Priority: taskstore.PriorityMedium})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return task
}

func (h *harness) handle(t *testing.T, userID, msg string) *Response {
	t.Helper()
	resp, err := h.orch.Handle(context.Background(), Request{UserID: userID, Message: msg})
	if err != nil {
		t.Fatalf("Handle(%q): %v", msg, err)
	}
	return resp
}

func TestScenarioCreate(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.handle(t, "alice", "add buy milk")
	if resp.ActionTaken != string(tools.CreateTaskTool) {
		t.Errorf("action = %q, want create_task", resp.ActionTaken)
	}
	if !strings.Contains(resp.ConfirmationMessage, "buy milk") {
		t.Errorf("confirmation %q does not mention the title", resp.ConfirmationMessage)
	}

	tasks, err := h.store.List(context.Background(), "alice", taskstore.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "buy milk" || tasks[0].Priority != taskstore.PriorityMedium || tasks[0].Completed {
		t.Errorf("stored tasks = %+v", tasks)
	}
}

func TestScenarioEmptyInput(t *testing.T) {
	h := newHarness(t, nil)

	resp := h.handle(t, "alice", "")
	if resp.ConfirmationMessage != EmptyInputReply {
		t.Errorf("confirmation = %q", resp.ConfirmationMessage)
	}
	if resp.ActionTaken != tools.ActionNone {
		t.Errorf("action = %q, want none", resp.ActionTaken)
	}

	msgs, err := h.convs.Recent("alice", resp.ConversationID, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Role != conversations.RoleUser || msgs[1].Role != conversations.RoleAssistant {
		t.Fatalf("history = %+v, want user then assistant turn", msgs)
	}
	if msgs[1].Metadata["outcome"] != OutcomeEmptyInput {
		t.Errorf("outcome = %v", msgs[1].Metadata["outcome"])
	}
}

func TestScenarioModelTimeoutFallsBack(t *testing.T) {
	m := &slowModel{}
	h := newHarness(t, m)
	groceries := h.seed(t, "alice", "Groceries")
	h.seed(t, "alice", "Call mom")

	resp := h.handle(t, "alice", "delete the groceries task")

	if m.calls.Load() == 0 {
		t.Error("model path was never attempted")
	}
	if resp.ActionTaken != string(tools.DeleteTaskTool) {
		t.Errorf("action = %q, want delete_task", resp.ActionTaken)
	}
	if !strings.Contains(resp.ConfirmationMessage, "Groceries") {
		t.Errorf("confirmation %q does not mention Groceries", resp.ConfirmationMessage)
	}
	if _, err := h.store.Get(context.Background(), "alice", groceries.ID); !errors.Is(err, taskstore.ErrNotFound) {
		t.Errorf("Groceries still present: %v", err)
	}

	msgs, err := h.convs.Recent("alice", resp.ConversationID, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if msgs[0].Metadata["confidence"] != string(resolver.ConfidenceFallback) {
		t.Errorf("confidence = %v, want fallback", msgs[0].Metadata["confidence"])
	}
}

func TestScenarioNotFound(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "alice", "Groceries")
	before := h.store.mutations.Load()

	resp := h.handle(t, "alice", "mark task 999 done")

	if resp.ConfirmationMessage != "I couldn't find task 999." {
		t.Errorf("confirmation = %q", resp.ConfirmationMessage)
	}
	if resp.ActionTaken != tools.ActionNone {
		t.Errorf("action = %q, want none", resp.ActionTaken)
	}
	if got := h.store.mutations.Load(); got != before {
		t.Errorf("store saw %d mutations", got-before)
	}
}

func TestScenarioUserIsolation(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "alice", "alice secret")
	h.seed(t, "bob", "bob secret")

	var wg sync.WaitGroup
	replies := make(map[string]string)
	var mu sync.Mutex
	for _, user := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			resp, err := h.orch.Handle(context.Background(), Request{UserID: user, Message: "list my tasks"})
			if err != nil {
				t.Errorf("Handle(%s): %v", user, err)
				return
			}
			mu.Lock()
			replies[user] = resp.ConfirmationMessage
			mu.Unlock()
		}(user)
	}
	wg.Wait()

	if !strings.Contains(replies["alice"], "alice secret") || strings.Contains(replies["alice"], "bob secret") {
		t.Errorf("alice saw %q", replies["alice"])
	}
	if !strings.Contains(replies["bob"], "bob secret") || strings.Contains(replies["bob"], "alice secret") {
		t.Errorf("bob saw %q", replies["bob"])
	}
}

func TestConversationContinues(t *testing.T) {
	h := newHarness(t, nil)

	first := h.handle(t, "alice", "hello")
	if first.ConfirmationMessage != GreetingReply {
		t.Errorf("greeting reply = %q", first.ConfirmationMessage)
	}
	second := h.handle(t, "alice", "add water plants")
	if second.ConversationID != first.ConversationID {
		t.Errorf("second turn opened a new conversation %s", second.ConversationID)
	}

	msgs, err := h.convs.Recent("alice", first.ConversationID, 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	var got []string
	for _, m := range msgs {
		got = append(got, string(m.Role)+": "+m.Content)
	}
	want := []string{
		"user: hello",
		"assistant: " + GreetingReply,
		"user: add water plants",
		"assistant: " + second.ConfirmationMessage,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}

func TestForeignConversationIsRejected(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.handle(t, "alice", "add buy milk")

	_, err := h.orch.Handle(context.Background(), Request{UserID: "bob", Message: "list", ConversationID: resp.ConversationID})
	if !errors.Is(err, conversations.ErrNotFound) {
		t.Errorf("err = %v, want conversations.ErrNotFound", err)
	}
}

func TestMissingUser(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.orch.Handle(context.Background(), Request{Message: "add x"}); !errors.Is(err, ErrMissingUser) {
		t.Errorf("err = %v, want ErrMissingUser", err)
	}
}

func TestUnresolvableReference(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, "alice", "Groceries")
	before := h.store.mutations.Load()

	for _, msg := range []string{"delete the dentist appointment", "delete task 99999999999999999999"} {
		resp := h.handle(t, "alice", msg)
		if !strings.Contains(resp.ConfirmationMessage, "couldn't find a task matching") {
			t.Errorf("%q: confirmation = %q", msg, resp.ConfirmationMessage)
		}
		if resp.ActionTaken != tools.ActionNone {
			t.Errorf("%q: action = %q", msg, resp.ActionTaken)
		}
	}
	if got := h.store.mutations.Load(); got != before {
		t.Errorf("store saw %d mutations", got-before)
	}
}

func TestStatusWordsListTasks(t *testing.T) {
	h := newHarness(t, nil)
	done := h.seed(t, "alice", "Groceries")
	h.seed(t, "alice", "Call mom")
	if _, err := h.store.Store.SetCompleted(context.Background(), "alice", done.ID, true); err != nil {
		t.Fatalf("SetCompleted: %v", err)
	}
	before := h.store.mutations.Load()

	for _, msg := range []string{"show finished tasks", "list done tasks", "what are my finished tasks"} {
		resp := h.handle(t, "alice", msg)
		if resp.ActionTaken != string(tools.ListTasksTool) {
			t.Errorf("%q: action = %q, want list_tasks", msg, resp.ActionTaken)
		}
		if !strings.Contains(resp.ConfirmationMessage, "Groceries") || strings.Contains(resp.ConfirmationMessage, "Call mom") {
			t.Errorf("%q: confirmation = %q", msg, resp.ConfirmationMessage)
		}
	}
	if got := h.store.mutations.Load(); got != before {
		t.Errorf("store saw %d mutations", got-before)
	}
}

func TestPriorityChangeKeepsTitle(t *testing.T) {
	h := newHarness(t, nil)
	trip := h.seed(t, "alice", "Trip to Paris")

	resp := h.handle(t, "alice", "update the trip to paris task priority to high")
	if resp.ActionTaken != string(tools.UpdateTaskTool) {
		t.Fatalf("action = %q, want update_task (%q)", resp.ActionTaken, resp.ConfirmationMessage)
	}

	got, err := h.store.Get(context.Background(), "alice", trip.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Trip to Paris" || got.Priority != taskstore.PriorityHigh {
		t.Errorf("task = %q %s, want \"Trip to Paris\" high", got.Title, got.Priority)
	}
}

func TestPipelineEvents(t *testing.T) {
	h := newHarness(t, nil)
	resp := h.handle(t, "alice", "add buy milk")

	want := []events.EventType{
		events.EventUserMessage,
		events.EventIntentResolved,
		events.EventToolCall,
		events.EventToolCall,
		events.EventAssistantMessage,
	}
	var got []events.EventType
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		hist := h.bus.HistoryFor("alice", 0)
		if len(hist) >= len(want) {
			got = got[:0]
			for _, e := range hist {
				got = append(got, e.Type)
				if e.ConversationID != resp.ConversationID {
					t.Errorf("event %s has conversation %q", e.Type, e.ConversationID)
				}
			}
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

// stubResolver returns a fixed intent and records the history it was given.
type stubResolver struct {
	intent  *resolver.Intent
	history []*schema.Message
}

func (s *stubResolver) Resolve(_ context.Context, _, _ string, history []*schema.Message) (*resolver.Intent, error) {
	s.history = history
	return s.intent, nil
}

func (s *stubResolver) ContextWindow() int { return 2 }

type panicExecutor struct{}

func (panicExecutor) Execute(context.Context, string, tools.Call) (*tools.Result, error) {
	panic("boom")
}

type failingExecutor struct{}

func (failingExecutor) Execute(context.Context, string, tools.Call) (*tools.Result, error) {
	return nil, &tools.ExecutionError{Tool: tools.CreateTaskTool, Cause: errors.New("disk full")}
}

func newStubOrchestrator(t *testing.T, res IntentResolver, exec TaskExecutor, registry *tools.Registry) (*Orchestrator, *conversations.Manager) {
	t.Helper()
	convs := conversations.NewManager(conversations.NewFileStore(t.TempDir()))
	orch, err := New(Config{Conversations: convs, Resolver: res, Executor: exec, Registry: registry})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return orch, convs
}

func TestExecutionFailuresAreRecovered(t *testing.T) {
	intent := &resolver.Intent{Call: tools.CreateTask{Title: "x"}, Confidence: resolver.ConfidenceModel}

	for name, exec := range map[string]TaskExecutor{"panic": panicExecutor{}, "execution error": failingExecutor{}} {
		t.Run(name, func(t *testing.T) {
			orch, convs := newStubOrchestrator(t, &stubResolver{intent: intent}, exec, tools.DefaultRegistry())
			resp, err := orch.Handle(context.Background(), Request{UserID: "alice", Message: "add x"})
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			if resp.ConfirmationMessage != ApologyReply || resp.ActionTaken != tools.ActionNone {
				t.Errorf("response = %+v", resp)
			}
			msgs, err := convs.Recent("alice", resp.ConversationID, 1)
			if err != nil {
				t.Fatalf("Recent: %v", err)
			}
			if msgs[0].Metadata["outcome"] != OutcomeError {
				t.Errorf("outcome = %v", msgs[0].Metadata["outcome"])
			}
		})
	}
}

func TestToolOutsideRegistryIsNotUnderstood(t *testing.T) {
	only, err := tools.NewRegistry(tools.BuiltinSpecs()[0])
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	intent := &resolver.Intent{Call: tools.DeleteTask{TaskID: 1}, Confidence: resolver.ConfidenceModel}
	orch, _ := newStubOrchestrator(t, &stubResolver{intent: intent}, failingExecutor{}, only)

	resp, err := orch.Handle(context.Background(), Request{UserID: "alice", Message: "delete 1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if resp.ConfirmationMessage != NotUnderstoodReply {
		t.Errorf("confirmation = %q", resp.ConfirmationMessage)
	}
}

func TestHistoryExcludesCurrentTurn(t *testing.T) {
	stub := &stubResolver{intent: &resolver.Intent{Info: resolver.InfoHelp, Confidence: resolver.ConfidenceFallback}}
	orch, _ := newStubOrchestrator(t, stub, failingExecutor{}, tools.DefaultRegistry())

	first, err := orch.Handle(context.Background(), Request{UserID: "alice", Message: "one"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(stub.history) != 0 {
		t.Errorf("first turn history = %d messages, want 0", len(stub.history))
	}

	for _, msg := range []string{"two", "three"} {
		if _, err := orch.Handle(context.Background(), Request{UserID: "alice", Message: msg, ConversationID: first.ConversationID}); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}

	var got []string
	for _, m := range stub.history {
		got = append(got, string(m.Role)+":"+m.Content)
	}
	want := []string{"user:two", "assistant:" + HelpReply}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
}
