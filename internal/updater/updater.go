// Package updater owns the periodic jobs: refreshing every registered card
// in place, fabricating outcomes on round boundaries, and queueing group
// announcements. One failing message edit never aborts a refresh batch.
package updater

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wingobot/internal/announce"
	"wingobot/internal/eventbus"
	"wingobot/internal/game"
	"wingobot/internal/predict"
	"wingobot/internal/registry"
	"wingobot/internal/scheduler"
	"wingobot/internal/transport"
	logx "wingobot/pkg/logx"
)

type Config struct {
	RefreshEvery  time.Duration // default 5s
	AnnounceEvery time.Duration // default 1m
	Simulate      bool          // fabricate outcomes on round boundaries
}

type Updater struct {
	cfg       Config
	predictor *predict.Predictor
	reg       *registry.Registry
	adapter   transport.Adapter
	announcer *announce.Service
	bus       eventbus.Bus
	log       logx.Logger

	// Options supplies per-category send options for edits (reply markup);
	// without it, edits would strip the card's inline keyboard.
	Options func(cat game.Category) *transport.SendOptions

	mu      sync.Mutex
	lastSim map[game.Category]time.Time
}

func New(cfg Config, p *predict.Predictor, reg *registry.Registry, adapter transport.Adapter, ann *announce.Service, bus eventbus.Bus, log logx.Logger) *Updater {
	if cfg.RefreshEvery <= 0 {
		cfg.RefreshEvery = 5 * time.Second
	}
	if cfg.AnnounceEvery <= 0 {
		cfg.AnnounceEvery = time.Minute
	}
	return &Updater{
		cfg:       cfg,
		predictor: p,
		reg:       reg,
		adapter:   adapter,
		announcer: ann,
		bus:       bus,
		log:       log,
		lastSim:   map[game.Category]time.Time{},
	}
}

// Register adds the refresh and announce jobs to the scheduler.
func (u *Updater) Register(s *scheduler.Service) error {
	if _, err := s.AddInterval("card.refresh", u.cfg.RefreshEvery, 2*u.cfg.RefreshEvery, u.RefreshAll); err != nil {
		return fmt.Errorf("register refresh: %w", err)
	}
	if u.announcer != nil {
		if _, err := s.AddInterval("group.announce", u.cfg.AnnounceEvery, u.cfg.AnnounceEvery, u.AnnounceAll); err != nil {
			return fmt.Errorf("register announce: %w", err)
		}
	}
	return nil
}

// RefreshAll regenerates the card once per category and pushes it to every
// registered message. Failures are per-category and per-message.
func (u *Updater) RefreshAll(ctx context.Context) error {
	for _, cat := range game.Categories() {
		u.refreshCategory(ctx, cat)
	}
	return nil
}

func (u *Updater) refreshCategory(ctx context.Context, cat game.Category) {
	if u.cfg.Simulate && u.boundaryPassed(cat) {
		if _, err := u.predictor.Simulate(ctx, cat); err != nil {
			u.log.Warn("simulate failed", logx.String("category", string(cat)), logx.Err(err))
		}
	}

	refs := u.reg.List(cat)
	if len(refs) == 0 {
		u.reg.Prune(cat)
		return
	}

	card, err := u.predictor.Card(ctx, cat, time.Now())
	if err != nil {
		u.log.Warn("card render failed", logx.String("category", string(cat)), logx.Err(err))
		return
	}
	if u.bus != nil {
		u.bus.Publish(eventbus.Event{Type: eventbus.EventCardRefreshed, Data: string(cat)})
	}

	var opt *transport.SendOptions
	if u.Options != nil {
		opt = u.Options(cat)
	}

	for _, ref := range refs {
		if ctx.Err() != nil {
			return
		}
		if err := u.adapter.EditText(ctx, ref, card, opt); err != nil {
			// Message was deleted, chat is gone, or content is unchanged in a
			// way Telegram rejects. Drop the handle and move on.
			u.log.Debug("edit failed; unregistering",
				logx.Int64("chat", ref.ChatID), logx.Int("message", ref.MessageID), logx.Err(err))
			u.reg.Remove(ref)
		}
	}
	if evicted := u.reg.Prune(cat); evicted > 0 {
		u.log.Debug("registry pruned", logx.String("category", string(cat)), logx.Int("evicted", evicted))
	}
}

// boundaryPassed reports whether a full round elapsed since the last
// simulated outcome for the category, and marks the tick.
func (u *Updater) boundaryPassed(cat game.Category) bool {
	now := time.Now()
	u.mu.Lock()
	defer u.mu.Unlock()
	last, ok := u.lastSim[cat]
	if ok && now.Sub(last) < cat.Round() {
		return false
	}
	u.lastSim[cat] = now
	return true
}

// AnnounceAll renders both categories with the live-signal header and queues
// them for the official group.
func (u *Updater) AnnounceAll(ctx context.Context) error {
	if u.announcer == nil || !u.announcer.Enabled() {
		return nil
	}
	now := time.Now()
	for _, cat := range game.Categories() {
		card, err := u.predictor.Card(ctx, cat, now)
		if err != nil {
			u.log.Warn("announce render failed", logx.String("category", string(cat)), logx.Err(err))
			continue
		}
		err = u.announcer.Enqueue(ctx, announce.Announcement{
			Category: cat,
			Text:     liveHeader(now) + card,
		})
		if err != nil {
			u.log.Warn("announce enqueue failed", logx.String("category", string(cat)), logx.Err(err))
		}
	}
	return nil
}

func liveHeader(now time.Time) string {
	return fmt.Sprintf("🚨🚨🚨 LIVE SIGNAL ALERT 🚨🚨🚨\n⏱️ UPDATED AT: %s ⏱️\n\n", now.Format("15:04:05"))
}
