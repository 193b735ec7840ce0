package updater

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"wingobot/internal/announce"
	"wingobot/internal/game"
	"wingobot/internal/predict"
	"wingobot/internal/registry"
	"wingobot/internal/storage"
	"wingobot/internal/transport"
	logx "wingobot/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	edits    []transport.MessageRef
	sent     []string
	failEdit map[transport.MessageRef]bool
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                               { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failEdit[ref] {
		return errors.New("message to edit not found")
	}
	f.edits = append(f.edits, ref)
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return nil
}

func (f *fakeAdapter) editCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.edits)
}

func newPredictor(t *testing.T) *predict.Predictor {
	t.Helper()
	st, err := storage.Open(storage.Config{
		Path: filepath.Join(t.TempDir(), "updater.db"),
	}, logx.Logger{})
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	// No feed: cards come from the store.
	return predict.New(st, nil, predict.Config{}, nil, logx.Logger{})
}

func TestRefreshEditsRegisteredMessages(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	reg := registry.New()
	u := New(Config{}, newPredictor(t), reg, ad, nil, nil, logx.Logger{})

	reg.Add(game.Cat30Sec, transport.MessageRef{ChatID: 1, MessageID: 11})
	reg.Add(game.Cat30Sec, transport.MessageRef{ChatID: 2, MessageID: 22})

	if err := u.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if ad.editCount() != 2 {
		t.Fatalf("edits = %d, want 2", ad.editCount())
	}
	if reg.Len(game.Cat30Sec) != 2 {
		t.Fatal("successful edits must keep handles registered")
	}
}

func TestRefreshUnregistersOnlyFailedHandle(t *testing.T) {
	t.Parallel()

	bad := transport.MessageRef{ChatID: 1, MessageID: 11}
	good := transport.MessageRef{ChatID: 2, MessageID: 22}

	ad := &fakeAdapter{failEdit: map[transport.MessageRef]bool{bad: true}}
	reg := registry.New()
	u := New(Config{}, newPredictor(t), reg, ad, nil, nil, logx.Logger{})

	reg.Add(game.Cat1Min, bad)
	reg.Add(game.Cat1Min, good)

	if err := u.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}

	if ad.editCount() != 1 {
		t.Fatalf("edits = %d, want 1 (good handle only)", ad.editCount())
	}
	left := reg.List(game.Cat1Min)
	if len(left) != 1 || left[0] != good {
		t.Fatalf("registry after failure = %v, want only the good handle", left)
	}
}

func TestRefreshSkipsEmptyCategory(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	u := New(Config{}, newPredictor(t), registry.New(), ad, nil, nil, logx.Logger{})

	if err := u.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if ad.editCount() != 0 {
		t.Fatal("no registered messages, no edits expected")
	}
}

func TestSimulateOnRoundBoundary(t *testing.T) {
	t.Parallel()

	st, err := storage.Open(storage.Config{
		Path: filepath.Join(t.TempDir(), "sim.db"),
	}, logx.Logger{})
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	p := predict.New(st, nil, predict.Config{}, nil, logx.Logger{})
	reg := registry.New()
	reg.Add(game.Cat30Sec, transport.MessageRef{ChatID: 1, MessageID: 1})
	u := New(Config{Simulate: true}, p, reg, &fakeAdapter{}, nil, nil, logx.Logger{})

	// Two refreshes in quick succession: only the first crosses the boundary.
	if err := u.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	if err := u.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}

	out, err := st.LatestOutcomes(context.Background(), game.Cat30Sec, 10)
	if err != nil {
		t.Fatalf("LatestOutcomes: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("simulated outcomes = %d, want 1", len(out))
	}
}

func TestAnnounceAllQueuesBothCategories(t *testing.T) {
	t.Parallel()

	ad := &fakeAdapter{}
	ann := announce.New(announce.Config{
		Enabled:    true,
		Workers:    1,
		RatePerSec: 100,
		Target:     transport.ChatTarget{Username: "officialgroup"},
	}, ad, logx.Logger{}, nil)
	ann.Start(context.Background())
	defer ann.Stop(context.Background())

	u := New(Config{}, newPredictor(t), registry.New(), ad, ann, nil, logx.Logger{})
	if err := u.AnnounceAll(context.Background()); err != nil {
		t.Fatalf("AnnounceAll: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		ad.mu.Lock()
		n := len(ad.sent)
		ad.mu.Unlock()
		if n == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("sent %d announcements, want 2", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()
	for _, text := range ad.sent {
		if !strings.Contains(text, "LIVE SIGNAL ALERT") {
			t.Fatalf("announcement missing live header:\n%s", text)
		}
	}
}
