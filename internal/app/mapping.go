package app

import (
	"fmt"
	"strings"
	"time"

	"wingobot/internal/announce"
	"wingobot/internal/config"
	"wingobot/internal/observability/pprof"
	"wingobot/internal/scheduler"
	"wingobot/internal/source"
	"wingobot/internal/storage"
	kit "wingobot/internal/transport"
	"wingobot/internal/updater"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "./wingobot.db"
	}
	return storage.Config{Path: path, BusyTimeout: busy}, nil
}

func mapSourceConfig(cfg *config.Config) (source.Config, error) {
	timeout, err := config.ParseDurationOrDefault("source.timeout", cfg.Source.Timeout, 0)
	if err != nil {
		return source.Config{}, err
	}
	return source.Config{
		BaseURL:     cfg.Source.BaseURL,
		Timeout:     timeout,
		GameID1Min:  cfg.Source.GameID1Min,
		GameID30Sec: cfg.Source.GameID30Sec,
		Referer:     cfg.Source.Referer,
	}, nil
}

func mapUpdaterConfig(cfg *config.Config) (updater.Config, error) {
	refresh, err := config.ParseDurationOrDefault("updater.refresh_every", cfg.Updater.RefreshEvery, 0)
	if err != nil {
		return updater.Config{}, err
	}
	announceEvery, err := config.ParseDurationOrDefault("updater.announce_every", cfg.Updater.AnnounceEvery, 0)
	if err != nil {
		return updater.Config{}, err
	}
	// Fabricated outcomes are on unless explicitly turned off.
	simulate := cfg.Updater.Simulate == nil || *cfg.Updater.Simulate
	return updater.Config{
		RefreshEvery:  refresh,
		AnnounceEvery: announceEvery,
		Simulate:      simulate,
	}, nil
}

func mapAnnouncerConfig(cfg *config.Config) (announce.Config, error) {
	out := announce.Config{
		Target: parseGroupTarget(cfg.Telegram.OfficialGroup),
	}

	// No target means no announcements regardless of the enabled flag.
	enabled := out.Target != (kit.ChatTarget{})
	if ac := cfg.Announcer; ac != nil {
		if ac.Enabled != nil {
			enabled = enabled && *ac.Enabled
		}
		out.Workers = ac.Workers
		out.QueueSize = ac.QueueSize
		out.RatePerSec = ac.RatePerSec
		out.RetryMax = ac.RetryMax
		base, err := config.ParseDurationOrDefault("announcer.retry_base", ac.RetryBase, 0)
		if err != nil {
			return announce.Config{}, err
		}
		out.RetryBase = base
	}
	out.Enabled = enabled
	return out, nil
}

func mapSchedulerConfig(cfg *config.Config) (scheduler.Config, error) {
	defTimeout, err := config.ParseDurationOrDefault("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout, 0)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Enabled:        cfg.Scheduler.Enabled,
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: defTimeout,
		HistorySize:    cfg.Scheduler.HistorySize,
		Timezone:       cfg.Scheduler.Timezone,
	}, nil
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	return pprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
	}
}

// validateConfig rejects configs that would break a hot-reload: bad duration
// strings, out-of-range rates, unknown timezones.
func validateConfig(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram.token is required")
	}
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}

	if cfg.Game.TargetWinRate < 0 || cfg.Game.TargetWinRate > 1 {
		return fmt.Errorf("game.target_win_rate must be within [0, 1]")
	}
	if cfg.Game.ResultsLength < 0 {
		return fmt.Errorf("game.results_length must be >= 0")
	}

	if _, err := mapSourceConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapUpdaterConfig(cfg); err != nil {
		return err
	}
	if _, err := config.ParseDurationField("updater.registry_max_age", cfg.Updater.RegistryMaxAge); err != nil {
		return err
	}
	if cfg.Updater.RegistryCap < 0 {
		return fmt.Errorf("updater.registry_cap must be >= 0")
	}

	if ac := cfg.Announcer; ac != nil {
		if ac.Workers < 0 || ac.QueueSize < 0 || ac.RatePerSec < 0 || ac.RetryMax < 0 {
			return fmt.Errorf("announcer values must be >= 0")
		}
	}
	if _, err := mapAnnouncerConfig(cfg); err != nil {
		return err
	}

	if cfg.Scheduler.Workers < 0 {
		return fmt.Errorf("scheduler.workers must be >= 0")
	}
	if cfg.Scheduler.HistorySize < 0 {
		return fmt.Errorf("scheduler.history_size must be >= 0")
	}
	if _, err := mapSchedulerConfig(cfg); err != nil {
		return err
	}
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}
	return nil
}
