// Package scheduler runs the periodic jobs (card refresh, round simulation,
// group announcements) on a cron engine with a bounded worker pool.
// Triggers only fire; execution happens on the workers, and a job that is
// still queued or running is skipped rather than stacked.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "wingobot/pkg/logx"
)

type Config struct {
	Enabled        bool
	Workers        int
	DefaultTimeout time.Duration
	HistorySize    int
	Timezone       string // IANA TZ, e.g. "Asia/Kolkata"
}

type HistoryItem struct {
	ID       string
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

type job struct {
	id      string
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
}

type scheduleDef struct {
	id      string
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	run     func(ctx context.Context) error
	entry   cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	queue  chan job
	stopCh chan struct{}

	// busy tracks jobs that are queued or executing, for overlap skipping.
	bmu  sync.Mutex
	busy map[string]bool

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, log logx.Logger) *Service {
	return &Service{
		cfg:    cfg,
		log:    log,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		busy:   map[string]bool{},
	}
}

func (s *Service) Enabled() bool { return s.cfg.Enabled }

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.stopCh == nil {
		return
	}
	if oldTZ != newTZ {
		// restart cron with new location and re-register definitions
		s.restartLocked()
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	s.queue = make(chan job, 64)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	// re-register existing defs (if any)
	for i := range s.defs {
		if entry, err := s.addCronLocked(s.defs[i]); err == nil {
			s.defs[i].entry = entry
		}
	}

	for i := 0; i < workers; i++ {
		go s.worker(ctx, s.stopCh, s.queue)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("workers", workers), logx.String("tz", loc.String()))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	s.stopCh = nil
	if s.c != nil {
		select {
		case <-s.c.Stop().Done():
		case <-ctx.Done():
		}
		s.c = nil
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) AddCron(name, spec string, timeout time.Duration, run func(ctx context.Context) error) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return "", errors.New("scheduler not started")
	}
	id := fmt.Sprintf("cron:%s:%d", name, time.Now().UnixNano())
	d := scheduleDef{id: id, name: name, spec: spec, timeout: s.resolveTimeout(timeout), run: run}
	entry, err := s.addCronLocked(d)
	if err != nil {
		return "", err
	}
	d.entry = entry

	// A job name identifies one schedule. Re-adding replaces the previous
	// registration, so callers can re-register after a disable/enable cycle
	// without doubling the trigger.
	for i := range s.defs {
		if s.defs[i].name == name {
			s.c.Remove(s.defs[i].entry)
			s.defs[i] = d
			return id, nil
		}
	}
	s.defs = append(s.defs, d)
	return id, nil
}

func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, run func(ctx context.Context) error) (string, error) {
	if every <= 0 {
		return "", fmt.Errorf("interval for %s must be positive", name)
	}
	return s.AddCron(name, fmt.Sprintf("@every %s", every.String()), timeout, run)
}

// History returns a snapshot of the recent executions, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	out := make([]HistoryItem, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Service) addCronLocked(d scheduleDef) (cron.EntryID, error) {
	return s.c.AddFunc(d.spec, func() {
		s.enqueue(job{id: d.id, name: d.name, timeout: d.timeout, run: d.run})
	})
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for i := range s.defs {
		if entry, err := s.addCronLocked(s.defs[i]); err == nil {
			s.defs[i].entry = entry
		}
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) resolveTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return s.cfg.DefaultTimeout
}

func (s *Service) enqueue(j job) {
	s.bmu.Lock()
	if s.busy[j.id] {
		s.bmu.Unlock()
		s.log.Debug("job still busy, skipping tick", logx.String("job", j.name))
		return
	}
	s.busy[j.id] = true
	s.bmu.Unlock()

	select {
	case s.queue <- j:
	default:
		s.clearBusy(j.id)
		s.log.Warn("scheduler queue full, dropping job", logx.String("job", j.name))
	}
}

func (s *Service) clearBusy(id string) {
	s.bmu.Lock()
	delete(s.busy, id)
	s.bmu.Unlock()
}

// worker consumes from the queue it was spawned with. Stop nils the struct
// fields under the lock, so the channels are passed in rather than re-read.
func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.execOne(ctx, j)
			s.clearBusy(j.id)
		}
	}
}

func (s *Service) execOne(ctx context.Context, j job) {
	start := time.Now()
	runCtx := ctx
	var cancel func()
	if j.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	err := runProtected(runCtx, j.run)

	item := HistoryItem{
		ID:       j.id,
		Name:     j.name,
		Started:  start,
		Duration: time.Since(start),
	}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("job failed", logx.String("job", j.name), logx.Duration("took", item.Duration), logx.Err(err))
	} else {
		s.log.Debug("job ok", logx.String("job", j.name), logx.Duration("took", item.Duration))
	}

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	max := s.cfg.HistorySize
	if max <= 0 {
		max = 100
	}
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
}

func runProtected(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}
