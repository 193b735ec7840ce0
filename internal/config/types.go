package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Game controls prediction content: target win rate, history length and
	// the promo footer shown on every card.
	Game GameConfig `json:"game"`

	// Source is the upstream lottery records API.
	Source SourceConfig `json:"source"`

	Storage StorageConfig `json:"storage"`

	// Updater controls the periodic card refresh / group announce jobs.
	Updater UpdaterConfig `json:"updater"`

	// Announcer controls the async group send pipeline.
	// If omitted, it defaults to enabled.
	Announcer *AnnouncerConfig `json:"announcer,omitempty"`

	Scheduler SchedulerConfig `json:"scheduler"`

	Pprof PprofConfig `json:"pprof,omitempty"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`

	// OfficialGroup is the numeric chat id (as a string) that receives the
	// periodic signal announcements. Empty disables group announcements.
	OfficialGroup string `json:"official_group"`

	// ChannelURL is the public join link shown on the /start menu.
	ChannelURL string `json:"channel_url"`

	// GroupLog is the numeric chat id (as a string) for the telegram log sink.
	GroupLog string `json:"group_log"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// GameConfig tunes the fabricated prediction stream.
//
// Defaults (when fields are omitted/zero):
//   - target_win_rate: 0.7
//   - results_length: 10
type GameConfig struct {
	TargetWinRate float64 `json:"target_win_rate,omitempty"`
	ResultsLength int     `json:"results_length,omitempty"`
	Contact       string  `json:"contact,omitempty"`
	SiteURL       string  `json:"site_url,omitempty"`
}

// SourceConfig configures the upstream records endpoint.
//
// Defaults:
//   - base_url: "https://wapi.m2.app"
//   - timeout: "10s"
//   - game_id_1min: 3, game_id_30sec: 4
type SourceConfig struct {
	BaseURL string `json:"base_url,omitempty"`
	// Timeout is a Go duration string.
	Timeout     string `json:"timeout,omitempty"`
	GameID1Min  int    `json:"game_id_1min,omitempty"`
	GameID30Sec int    `json:"game_id_30sec,omitempty"`
	// Referer/Origin sent with requests so the endpoint treats us like the
	// site's own frontend.
	Referer string `json:"referer,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// UpdaterConfig controls the refresh loop.
//
// Defaults:
//   - refresh_every: "5s"
//   - announce_every: "1m"
//   - registry_cap: 20
//   - registry_max_age: "30m"
//
// Simulate is a pointer so "omitted" (default true) is distinguishable from
// an explicit false (e.g. when the remote feed is trusted to always work).
type UpdaterConfig struct {
	RefreshEvery   string `json:"refresh_every,omitempty"`
	AnnounceEvery  string `json:"announce_every,omitempty"`
	RegistryCap    int    `json:"registry_cap,omitempty"`
	RegistryMaxAge string `json:"registry_max_age,omitempty"`
	Simulate       *bool  `json:"simulate,omitempty"`
}

// AnnouncerConfig controls the async group send pipeline.
type AnnouncerConfig struct {
	Enabled    *bool  `json:"enabled,omitempty"`
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
	RetryBase  string `json:"retry_base,omitempty"` // Go duration string
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	Workers int  `json:"workers,omitempty"`
	// DefaultTimeout is a Go duration string. "0s" disables the global default.
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	// Trigger timezone (IANA name).
	Timezone string `json:"timezone,omitempty"`
}

// PprofConfig controls the optional pprof HTTP server.
//
// Security note: prefer binding to localhost. Binding elsewhere requires a
// token or an explicit allow_insecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:6060"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}
