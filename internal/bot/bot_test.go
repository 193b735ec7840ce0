package bot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"wingobot/internal/game"
	"wingobot/internal/predict"
	"wingobot/internal/registry"
	"wingobot/internal/storage"
	"wingobot/internal/transport/telegram/router"

	kit "wingobot/internal/transport"
	logx "wingobot/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []string
	edits    []string
	failEdit bool
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 100 + len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEdit {
		return errors.New("message to edit not found")
	}
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return nil
}

func newService(t *testing.T) (*Service, *registry.Registry) {
	t.Helper()
	st, err := storage.Open(storage.Config{
		Path: filepath.Join(t.TempDir(), "bot.db"),
	}, logx.Logger{})
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	p := predict.New(st, nil, predict.Config{}, nil, logx.Logger{})
	reg := registry.New()
	return New(Config{}, p, reg, logx.Logger{}), reg
}

func callbackRequest(ad kit.Adapter, chatID int64, msgID int) *router.Request {
	return &router.Request{
		Update: kit.Update{
			Kind:     kit.UpdateCallback,
			Callback: &kit.Callback{ID: "cb", ChatID: chatID, MessageID: msgID},
		},
		Chat:    kit.ChatTarget{ChatID: chatID},
		FromID:  7,
		Adapter: ad,
		Logger:  logx.Logger{},
	}
}

func TestStartSendsMenu(t *testing.T) {
	t.Parallel()

	s, _ := newService(t)
	ad := &fakeAdapter{}
	req := &router.Request{
		Update:  kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 10}},
		Chat:    kit.ChatTarget{ChatID: 10},
		Adapter: ad,
		Logger:  logx.Logger{},
	}

	if err := s.handleStart(context.Background(), req); err != nil {
		t.Fatalf("handleStart: %v", err)
	}
	if len(ad.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(ad.sent))
	}
	if !strings.Contains(ad.sent[0], "TC WINGO BOT") || !strings.Contains(ad.sent[0], "@TCWINGOAISAGAR") {
		t.Fatalf("menu text missing expected content:\n%s", ad.sent[0])
	}
}

func TestPickEditsAndRegisters(t *testing.T) {
	t.Parallel()

	s, reg := newService(t)
	ad := &fakeAdapter{}

	err := s.handlePick(context.Background(), callbackRequest(ad, 10, 55), string(game.Cat30Sec))
	if err != nil {
		t.Fatalf("handlePick: %v", err)
	}
	if len(ad.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(ad.edits))
	}
	if !strings.Contains(ad.edits[0], "30 SEC") {
		t.Fatalf("card missing variant name:\n%s", ad.edits[0])
	}

	refs := reg.List(game.Cat30Sec)
	if len(refs) != 1 || refs[0] != (kit.MessageRef{ChatID: 10, MessageID: 55}) {
		t.Fatalf("registry = %v, want the edited message", refs)
	}
}

func TestPickFallsBackToFreshMessage(t *testing.T) {
	t.Parallel()

	s, reg := newService(t)
	ad := &fakeAdapter{failEdit: true}

	err := s.handlePick(context.Background(), callbackRequest(ad, 10, 55), string(game.Cat1Min))
	if err != nil {
		t.Fatalf("handlePick: %v", err)
	}
	if len(ad.sent) != 1 {
		t.Fatalf("sent = %d, want 1 (fresh message)", len(ad.sent))
	}

	refs := reg.List(game.Cat1Min)
	if len(refs) != 1 || refs[0].MessageID == 55 {
		t.Fatalf("registry = %v, want the fresh message handle", refs)
	}
}

func TestPickRejectsUnknownVariant(t *testing.T) {
	t.Parallel()

	s, _ := newService(t)
	if err := s.handlePick(context.Background(), callbackRequest(&fakeAdapter{}, 10, 55), "5min"); err == nil {
		t.Fatal("expected error for unknown variant")
	}
}

func TestMenuUnregisters(t *testing.T) {
	t.Parallel()

	s, reg := newService(t)
	ad := &fakeAdapter{}
	ref := kit.MessageRef{ChatID: 10, MessageID: 55}
	reg.Add(game.Cat30Sec, ref)

	if err := s.handleMenu(context.Background(), callbackRequest(ad, 10, 55), ""); err != nil {
		t.Fatalf("handleMenu: %v", err)
	}
	if reg.Len(game.Cat30Sec) != 0 {
		t.Fatal("menu must unregister the card")
	}
	if len(ad.edits) != 1 || !strings.Contains(ad.edits[0], "Select Game Mode") {
		t.Fatalf("expected menu edit, got %v", ad.edits)
	}
}

func TestExitUnregistersAndSaysGoodbye(t *testing.T) {
	t.Parallel()

	s, reg := newService(t)
	ad := &fakeAdapter{}
	reg.Add(game.Cat1Min, kit.MessageRef{ChatID: 10, MessageID: 55})

	if err := s.handleExit(context.Background(), callbackRequest(ad, 10, 55), ""); err != nil {
		t.Fatalf("handleExit: %v", err)
	}
	if reg.Len(game.Cat1Min) != 0 {
		t.Fatal("exit must unregister the card")
	}
	if len(ad.edits) != 1 || !strings.Contains(ad.edits[0], "Come back anytime") {
		t.Fatalf("expected farewell edit, got %v", ad.edits)
	}
}

func TestChannelHandle(t *testing.T) {
	t.Parallel()

	cases := []struct{ in, want string }{
		{"https://t.me/TCWINGOAISAGAR", "@TCWINGOAISAGAR"},
		{"https://t.me/somechan/", "@somechan"},
		{"@direct", "@direct"},
		{"", "our channel"},
	}
	for _, tc := range cases {
		if got := channelHandle(tc.in); got != tc.want {
			t.Errorf("channelHandle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
