package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  owner_user_ids: [42, 77]
  official_group: "-1001234567890"
  poll_timeout: "10s"
logging:
  level: "debug"
  console: true
game:
  target_win_rate: 0.7
  results_length: 10
storage:
  path: "./wingobot.db"
updater:
  refresh_every: "5s"
  announce_every: "1m"
  simulate: false
scheduler:
  enabled: true
  timezone: "Asia/Kolkata"
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if len(cfg.Telegram.OwnerUserIDs) != 2 || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Errorf("owner_user_ids = %v", cfg.Telegram.OwnerUserIDs)
	}
	if cfg.Game.TargetWinRate != 0.7 {
		t.Errorf("target_win_rate = %v", cfg.Game.TargetWinRate)
	}
	if cfg.Updater.Simulate == nil || *cfg.Updater.Simulate {
		t.Errorf("simulate = %v, want explicit false", cfg.Updater.Simulate)
	}
	if cfg.Scheduler.Timezone != "Asia/Kolkata" {
		t.Errorf("timezone = %q", cfg.Scheduler.Timezone)
	}
	if cfg.Announcer != nil {
		t.Errorf("announcer should stay nil when omitted")
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "config.json", `{
  "telegram": {"token": "123:abc", "poll_timeout": "2m"},
  "updater": {"registry_cap": 5}
}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.PollTimeout != "2m" {
		t.Errorf("poll_timeout = %q", cfg.Telegram.PollTimeout)
	}
	if cfg.Updater.RegistryCap != 5 {
		t.Errorf("registry_cap = %d", cfg.Updater.RegistryCap)
	}
	// Omitted simulate means "use the default", not false.
	if cfg.Updater.Simulate != nil {
		t.Errorf("simulate = %v, want nil when omitted", cfg.Updater.Simulate)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name, file, content string
	}{
		{"json", "config.json", `{"telegram": {"token": "x", "tokne_typo": true}}`},
		{"yaml", "config.yaml", "telegram:\n  token: x\nupdator:\n  refresh_every: 5s\n"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfigFile(t, tc.file, tc.content)
			if _, err := NewManager(path).Parse(); err == nil {
				t.Fatal("want unknown-field error, got nil")
			}
		})
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "config.json", `{"telegram": {"token": "x"}}{"extra": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("want trailing-data error, got nil")
	}
}

func TestLoadAndGet(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "config.yaml", "telegram:\n  token: x\n")
	m := NewManager(path)

	if got := m.Get(); got != nil {
		t.Fatalf("Get before Load = %v, want nil", got)
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Error("Get should return the committed config")
	}
}

func TestSubscribeDropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	first := &Config{}
	second := &Config{Logging: LoggingConfig{Level: "debug"}}
	m.publish(first)
	m.publish(second)

	select {
	case got := <-ch:
		if got != second {
			t.Errorf("got stale config, want the newest publish")
		}
	default:
		t.Fatal("expected a buffered config")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	t.Parallel()

	m := NewManager("unused")
	ch := m.Subscribe(1)
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	// publish after unsubscribe must not panic
	m.publish(&Config{})
}

func TestHashConfigStable(t *testing.T) {
	t.Parallel()

	a := &Config{Telegram: TelegramConfig{Token: "x"}}
	b := &Config{Telegram: TelegramConfig{Token: "x"}}
	if hashConfig(a) != hashConfig(b) {
		t.Error("identical configs should hash equal")
	}
	c := &Config{Telegram: TelegramConfig{Token: "y"}}
	if hashConfig(a) == hashConfig(c) {
		t.Error("different configs should hash differently")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"10s", 10 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"-5s", 0, true},
		{"10", 0, true},
		{"fast", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("test.field", tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseDurationField(%q): want error", tc.raw)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDurationField(%q): %v", tc.raw, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDurationField(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationOrDefault("f", "", 5*time.Second); err != nil || d != 5*time.Second {
		t.Errorf("empty: got (%v, %v)", d, err)
	}
	if d, err := ParseDurationOrDefault("f", "2s", 5*time.Second); err != nil || d != 2*time.Second {
		t.Errorf("explicit: got (%v, %v)", d, err)
	}
	if _, err := ParseDurationOrDefault("f", "nope", 5*time.Second); err == nil {
		t.Error("invalid input should not fall back to the default")
	}
}

func TestSummarizeChangeNeverLogsSecrets(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{}
	newCfg := &Config{
		Telegram: TelegramConfig{Token: "super-secret", PollTimeout: "10s"},
		Pprof:    PprofConfig{Enabled: true, Token: "pprof-secret"},
	}

	changed, attrs := SummarizeChange(oldCfg, newCfg)
	if len(changed) == 0 {
		t.Fatal("expected changed sections")
	}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ev := logger.Info()
	for _, f := range attrs {
		f(ev)
	}
	ev.Send()
	out := buf.String()
	if strings.Contains(out, "super-secret") || strings.Contains(out, "pprof-secret") {
		t.Errorf("attrs leak a secret: %s", out)
	}
}

func TestSummarizeChangeSections(t *testing.T) {
	t.Parallel()

	oldCfg := &Config{Game: GameConfig{TargetWinRate: 0.7}}
	newCfg := &Config{
		Game:      GameConfig{TargetWinRate: 0.8},
		Scheduler: SchedulerConfig{Enabled: true},
	}

	changed, _ := SummarizeChange(oldCfg, newCfg)
	want := map[string]bool{"game": true, "scheduler": true}
	for _, c := range changed {
		if !want[c] {
			t.Errorf("unexpected changed section %q (all: %v)", c, changed)
		}
		delete(want, c)
	}
	for c := range want {
		t.Errorf("missing changed section %q (all: %v)", c, changed)
	}
}
