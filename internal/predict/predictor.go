// Package predict generates the fabricated prediction cards: a pick for the
// next round plus the recent history, steered toward a configured win rate.
package predict

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"wingobot/internal/eventbus"
	"wingobot/internal/game"
	"wingobot/internal/storage"
	logx "wingobot/pkg/logx"
)

// Feed is the remote outcome source. Any error means "fall back to the store".
type Feed interface {
	Recent(ctx context.Context, cat game.Category, count int) ([]game.Outcome, error)
}

type Config struct {
	TargetWinRate float64 // default 0.7
	ResultsLength int     // default 10
	Contact       string
	SiteURL       string
}

// winRateWindow is how many settled predictions feed the steering average.
const winRateWindow = 20

type Predictor struct {
	store storage.Store
	feed  Feed
	cfg   Config
	bus   eventbus.Bus
	log   logx.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func New(store storage.Store, feed Feed, cfg Config, bus eventbus.Bus, log logx.Logger) *Predictor {
	if cfg.TargetWinRate <= 0 || cfg.TargetWinRate >= 1 {
		cfg.TargetWinRate = 0.7
	}
	if cfg.ResultsLength <= 0 {
		cfg.ResultsLength = 10
	}
	return &Predictor{
		store: store,
		feed:  feed,
		cfg:   cfg,
		bus:   bus,
		log:   log,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *Predictor) chance() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64()
}

func (p *Predictor) randomLabel() game.Label {
	p.mu.Lock()
	defer p.mu.Unlock()
	return game.RandomLabel(p.rng)
}

// shouldWin steers the published picks toward the target win rate: below
// target the next pick is very likely a winner, above target it cools off.
func (p *Predictor) shouldWin(ctx context.Context) bool {
	var sum float64
	cats := game.Categories()
	for _, cat := range cats {
		r, err := p.store.WinRate(ctx, cat, winRateWindow)
		if err != nil {
			r = 0.5
			if !p.log.IsZero() {
				p.log.Warn("win rate lookup failed", logx.String("category", string(cat)), logx.Err(err))
			}
		}
		sum += r
	}
	avg := sum / float64(len(cats))

	prob := p.cfg.TargetWinRate
	switch {
	case avg < p.cfg.TargetWinRate:
		prob = 0.9
	case avg > p.cfg.TargetWinRate:
		prob = 0.5
	}
	return p.chance() < prob
}

type patterns struct {
	streakColor, altColor int
	streakSize, altSize   int
}

func analyze(recent []game.Outcome) patterns {
	var pat patterns
	for i := 1; i < len(recent); i++ {
		if recent[i].Color != "" && recent[i-1].Color != "" {
			if recent[i].Color == recent[i-1].Color {
				pat.streakColor++
			} else {
				pat.altColor++
			}
		}
		if recent[i].Size != "" && recent[i-1].Size != "" {
			if recent[i].Size == recent[i-1].Size {
				pat.streakSize++
			} else {
				pat.altSize++
			}
		}
	}
	return pat
}

// NextPick chooses the published label for the next round. recent is newest
// first. Intended winners ride a dominant streak or alternate against the
// last result; everything else is noise.
func (p *Predictor) NextPick(ctx context.Context, recent []game.Outcome) game.Label {
	if len(recent) == 0 {
		return p.randomLabel()
	}
	if !p.shouldWin(ctx) {
		return p.randomLabel()
	}

	pat := analyze(recent)
	last := recent[0]
	switch {
	case pat.streakColor > pat.altColor && last.Color != "":
		return last.Color
	case pat.streakSize > pat.altSize && last.Size != "":
		return last.Size
	default:
		return last.Result.Opposite()
	}
}

// Simulate fabricates the next outcome for the category and records it,
// settling any open prediction. Keeps the fallback history moving when the
// remote feed is down.
func (p *Predictor) Simulate(ctx context.Context, cat game.Category) (game.Outcome, error) {
	period, err := p.store.NextPeriod(ctx, cat)
	if err != nil {
		return game.Outcome{}, err
	}

	color := game.Red
	if p.chance() < 0.5 {
		color = game.Green
	}
	size := game.Big
	if p.chance() < 0.5 {
		size = game.Small
	}
	result := color
	if p.chance() < 0.5 {
		result = size
	}

	o := game.Outcome{
		Period:   period,
		Category: cat,
		Result:   result,
		Color:    color,
		Size:     size,
		At:       time.Now(),
	}
	if err := p.store.AddOutcome(ctx, o); err != nil {
		return game.Outcome{}, err
	}
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: eventbus.EventOutcomeRecorded, Data: o})
	}
	return o, nil
}

// Card renders the full display text for the category: recent outcomes
// (remote-first, store on any feed failure), a persisted pick for the next
// period, and the prediction history with WIN/LOSE marks.
func (p *Predictor) Card(ctx context.Context, cat game.Category, now time.Time) (string, error) {
	recent, nextPeriod, err := p.history(ctx, cat)
	if err != nil {
		return "", err
	}

	pick := p.NextPick(ctx, recent)
	if err := p.store.SavePrediction(ctx, game.Prediction{
		Period:   nextPeriod,
		Category: cat,
		Pick:     pick,
		At:       now,
	}); err != nil {
		return "", err
	}

	preds, err := p.store.RecentPredictions(ctx, cat, p.cfg.ResultsLength)
	if err != nil {
		return "", err
	}
	// The freshly saved open prediction leads the history list; the card
	// already shows it as the next signal.
	if len(preds) > 0 && preds[0].Period == nextPeriod {
		preds = preds[1:]
	}

	return renderCard(cat, nextPeriod, pick, preds, p.cfg, now), nil
}

// history returns recent outcomes (newest first) and the next period id,
// preferring the remote feed and degrading to the store.
func (p *Predictor) history(ctx context.Context, cat game.Category) ([]game.Outcome, int64, error) {
	if p.feed != nil {
		recent, err := p.feed.Recent(ctx, cat, p.cfg.ResultsLength)
		if err == nil && len(recent) > 0 {
			// Persist remote rounds so predictions settle and the fallback
			// history stays fresh. Oldest first keeps periods monotonic.
			for i := len(recent) - 1; i >= 0; i-- {
				if err := p.store.AddOutcome(ctx, recent[i]); err != nil {
					if !p.log.IsZero() {
						p.log.Warn("persisting remote outcome failed",
							logx.Int64("period", recent[i].Period), logx.Err(err))
					}
				}
			}
			return recent, recent[0].Period + 1, nil
		}
		if err != nil && !p.log.IsZero() {
			p.log.Warn("remote feed unavailable; using store",
				logx.String("category", string(cat)), logx.Err(err))
		}
	}

	recent, err := p.store.LatestOutcomes(ctx, cat, p.cfg.ResultsLength)
	if err != nil {
		return nil, 0, err
	}
	nextPeriod, err := p.store.NextPeriod(ctx, cat)
	if err != nil {
		return nil, 0, err
	}
	return recent, nextPeriod, nil
}
