package router

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	kit "wingobot/internal/transport"
	logx "wingobot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
	acks []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, callbackID)
	return nil
}

func (f *fakeAdapter) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeAdapter) ackCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acks)
}

func startDispatch(t *testing.T, m *Router) chan<- kit.Update {
	t.Helper()
	updates := make(chan kit.Update, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.DispatchLoop(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Error("dispatch loop did not stop")
		}
	})
	return updates
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestCommandDispatch(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	m := New(logx.Logger{}, ad, nil)

	var calls atomic.Int32
	m.SetRegistry(context.Background(), []Command{{
		Name:        "start",
		Description: "open the menu",
		Handle: func(ctx context.Context, req *Request) error {
			calls.Add(1)
			return nil
		},
	}}, nil)

	updates := startDispatch(t, m)
	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 1, ChatID: 10, FromID: 7, Text: "/start",
	}}
	// Suffixed form used in groups.
	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 2, ChatID: 10, FromID: 7, Text: "/start@somebot",
	}}

	waitFor(t, func() bool { return calls.Load() == 2 })
}

func TestUnknownCommandRepliesInPrivateOnly(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	m := New(logx.Logger{}, ad, nil)
	m.SetRegistry(context.Background(), nil, nil)

	updates := startDispatch(t, m)
	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 1, ChatID: -100, FromID: 7, Text: "/nope", IsGroup: true,
	}}
	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 2, ChatID: 10, FromID: 7, Text: "/nope",
	}}

	waitFor(t, func() bool { return ad.sentCount() == 1 })
	// Give the group update a moment to (not) produce a reply.
	time.Sleep(50 * time.Millisecond)
	if ad.sentCount() != 1 {
		t.Fatalf("sent %d replies, want 1 (private chat only)", ad.sentCount())
	}
}

func TestOwnerOnlyCommand(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	m := New(logx.Logger{}, ad, []int64{42})

	var calls atomic.Int32
	m.SetRegistry(context.Background(), []Command{{
		Name:   "admin",
		Access: AccessOwnerOnly,
		Handle: func(ctx context.Context, req *Request) error {
			calls.Add(1)
			return nil
		},
	}}, nil)

	updates := startDispatch(t, m)
	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 1, ChatID: 10, FromID: 7, Text: "/admin",
	}}

	waitFor(t, func() bool { return ad.sentCount() == 1 })
	if calls.Load() != 0 {
		t.Fatal("non-owner must not reach the handler")
	}

	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 2, ChatID: 10, FromID: 42, Text: "/admin",
	}}
	waitFor(t, func() bool { return calls.Load() == 1 })
}

func TestCallbackRouting(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	m := New(logx.Logger{}, ad, nil)

	var got atomic.Value
	m.SetRegistry(context.Background(), nil, []CallbackRoute{{
		Group:  "wingo",
		Action: "pick",
		Access: AccessEveryone,
		Handle: func(ctx context.Context, req *Request, payload string) error {
			got.Store(payload)
			return nil
		},
	}})

	updates := startDispatch(t, m)
	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb1", ChatID: 10, FromID: 7, MessageID: 5, Data: "wingo:pick:30s",
	}}

	waitFor(t, func() bool {
		v, _ := got.Load().(string)
		return v == "30s"
	})
}

func TestCallbackAnsweredBeforeHandlerFinishes(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	m := New(logx.Logger{}, ad, nil)

	release := make(chan struct{})
	m.SetRegistry(context.Background(), nil, []CallbackRoute{{
		Group:  "wingo",
		Action: "pick",
		Access: AccessEveryone,
		Handle: func(ctx context.Context, req *Request, payload string) error {
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	}})

	updates := startDispatch(t, m)
	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb1", ChatID: 10, FromID: 7, MessageID: 5, Data: "wingo:pick:30s",
	}}

	// The spinner must stop while the handler is still rendering.
	waitFor(t, func() bool { return ad.ackCount() == 1 })
	close(release)
}

func TestHelpFallback(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	m := New(logx.Logger{}, ad, nil)
	m.SetRegistry(context.Background(), []Command{{
		Name:        "start",
		Description: "open the menu",
		Handle:      func(ctx context.Context, req *Request) error { return nil },
	}}, nil)

	updates := startDispatch(t, m)
	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 1, ChatID: 10, FromID: 7, Text: "/help",
	}}

	waitFor(t, func() bool { return ad.sentCount() == 1 })
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in, want string
	}{
		{"start", "start"},
		{"Start", "start"},
		{"wingo-30s", "wingo_30s"},
		{"  help  ", "help"},
		{"", ""},
		{"///", ""},
	}
	for _, tc := range cases {
		if got := sanitizeTelegramCommand(tc.in); got != tc.want {
			t.Errorf("sanitizeTelegramCommand(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
