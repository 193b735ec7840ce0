package config

import (
	"reflect"
	"sort"
	"strings"

	logx "wingobot/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.OfficialGroup) != strings.TrimSpace(newCfg.Telegram.OfficialGroup) ||
		strings.TrimSpace(oldCfg.Telegram.ChannelURL) != strings.TrimSpace(newCfg.Telegram.ChannelURL) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.official_group_set", strings.TrimSpace(newCfg.Telegram.OfficialGroup) != ""),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) ||
		oldCfg.Logging.Telegram.Enabled != newCfg.Logging.Telegram.Enabled ||
		oldCfg.Logging.Telegram.MinLevel != newCfg.Logging.Telegram.MinLevel ||
		oldCfg.Logging.Telegram.RatePerSec != newCfg.Logging.Telegram.RatePerSec {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Game
	if oldCfg.Game != newCfg.Game {
		changed = append(changed, "game")
		attrs = append(attrs,
			logx.Float64("game.target_win_rate", newCfg.Game.TargetWinRate),
			logx.Int("game.results_length", newCfg.Game.ResultsLength),
		)
	}

	// Source
	if oldCfg.Source != newCfg.Source {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.base_url", strings.TrimSpace(newCfg.Source.BaseURL)),
			logx.String("source.timeout", strings.TrimSpace(newCfg.Source.Timeout)),
		)
	}

	// Storage
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
			logx.String("storage.busy_timeout", strings.TrimSpace(newCfg.Storage.BusyTimeout)),
		)
	}

	// Updater
	if !reflect.DeepEqual(oldCfg.Updater, newCfg.Updater) {
		changed = append(changed, "updater")
		attrs = append(attrs,
			logx.String("updater.refresh_every", strings.TrimSpace(newCfg.Updater.RefreshEvery)),
			logx.String("updater.announce_every", strings.TrimSpace(newCfg.Updater.AnnounceEvery)),
			logx.Int("updater.registry_cap", newCfg.Updater.RegistryCap),
		)
	}

	// Announcer (async pipeline). Section may be nil; treat nil as runtime
	// defaults for a more accurate summary.
	defA := &AnnouncerConfig{
		Workers:    2,
		QueueSize:  256,
		RatePerSec: 3,
		RetryMax:   3,
		RetryBase:  "500ms",
	}
	oldA := oldCfg.Announcer
	newA := newCfg.Announcer
	if oldA == nil {
		oldA = defA
	}
	if newA == nil {
		newA = defA
	}
	if !reflect.DeepEqual(*oldA, *newA) {
		changed = append(changed, "announcer")
		enabled := true
		if newA.Enabled != nil {
			enabled = *newA.Enabled
		}
		attrs = append(attrs,
			logx.Bool("announcer.enabled", enabled),
			logx.Int("announcer.workers", newA.Workers),
			logx.Int("announcer.queue_size", newA.QueueSize),
			logx.Int("announcer.rate_per_sec", newA.RatePerSec),
			logx.Int("announcer.retry_max", newA.RetryMax),
		)
	}

	// Scheduler
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	// Pprof (never log token)
	if oldCfg.Pprof.Enabled != newCfg.Pprof.Enabled ||
		strings.TrimSpace(oldCfg.Pprof.Addr) != strings.TrimSpace(newCfg.Pprof.Addr) ||
		oldCfg.Pprof.AllowInsecure != newCfg.Pprof.AllowInsecure ||
		(strings.TrimSpace(oldCfg.Pprof.Token) != "") != (strings.TrimSpace(newCfg.Pprof.Token) != "") {
		changed = append(changed, "pprof")
		attrs = append(attrs,
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.addr", strings.TrimSpace(newCfg.Pprof.Addr)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
			logx.Bool("pprof.allow_insecure", newCfg.Pprof.AllowInsecure),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}
