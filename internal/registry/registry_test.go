package registry

import (
	"testing"
	"time"

	"wingobot/internal/game"
	"wingobot/internal/transport"
)

func ref(chat int64, msg int) transport.MessageRef {
	return transport.MessageRef{ChatID: chat, MessageID: msg}
}

func TestAddListRemove(t *testing.T) {
	t.Parallel()
	r := New()

	r.Add(game.Cat30Sec, ref(1, 10))
	r.Add(game.Cat30Sec, ref(2, 20))
	r.Add(game.Cat1Min, ref(3, 30))

	got := r.List(game.Cat30Sec)
	if len(got) != 2 || got[0] != ref(1, 10) || got[1] != ref(2, 20) {
		t.Fatalf("List = %v", got)
	}
	if r.Len(game.Cat1Min) != 1 {
		t.Fatalf("Len(1m) = %d, want 1", r.Len(game.Cat1Min))
	}

	r.Remove(ref(1, 10))
	if r.Len(game.Cat30Sec) != 1 {
		t.Fatalf("Len after Remove = %d, want 1", r.Len(game.Cat30Sec))
	}

	// Removing an unknown handle is a no-op.
	r.Remove(ref(99, 99))
	if r.Len(game.Cat30Sec) != 1 {
		t.Fatal("Remove of unknown handle changed the registry")
	}
}

func TestAddDedupRefreshes(t *testing.T) {
	t.Parallel()
	r := New()

	r.Add(game.Cat30Sec, ref(1, 10))
	r.Add(game.Cat30Sec, ref(1, 10))
	if r.Len(game.Cat30Sec) != 1 {
		t.Fatalf("Len = %d, want 1 (dedup)", r.Len(game.Cat30Sec))
	}
}

func TestCapEvictsOldest(t *testing.T) {
	t.Parallel()
	r := New(WithCap(3))

	for i := 0; i < 5; i++ {
		r.Add(game.Cat30Sec, ref(1, i))
	}
	got := r.List(game.Cat30Sec)
	if len(got) != 3 {
		t.Fatalf("Len = %d, want 3", len(got))
	}
	if got[0] != ref(1, 2) || got[2] != ref(1, 4) {
		t.Fatalf("kept wrong handles: %v", got)
	}
}

func TestPruneDropsStaleHandles(t *testing.T) {
	t.Parallel()

	now := time.Now()
	clock := func() time.Time { return now }
	r := New(WithMaxAge(10*time.Minute), WithClock(clock))

	r.Add(game.Cat1Min, ref(1, 1))
	now = now.Add(5 * time.Minute)
	r.Add(game.Cat1Min, ref(2, 2))
	now = now.Add(6 * time.Minute) // first handle is now 11m old

	if evicted := r.Prune(game.Cat1Min); evicted != 1 {
		t.Fatalf("Prune evicted %d, want 1", evicted)
	}
	got := r.List(game.Cat1Min)
	if len(got) != 1 || got[0] != ref(2, 2) {
		t.Fatalf("List after prune = %v", got)
	}
}
