package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"poll_interval", cfg.PollInterval, 10 * time.Second},
		{"probe_timeout", cfg.ProbeTimeout, 5 * time.Second},
		{"window_short", cfg.WindowShort, 120 * time.Second},
		{"window_long", cfg.WindowLong, 3600 * time.Second},
		{"ttfb_yellow_ms", cfg.TTFBYellowMS, 500.0},
		{"ratio_yellow", cfg.RatioYellow, 0.9},
		{"red_consecutive_errors", cfg.RedConsecutiveErrors, 3},
		{"red_err_rate", cfg.RedErrRate, 0.5},
		{"yellow_persistence", cfg.YellowPersistence, 60 * time.Second},
		{"resolve_hold", cfg.ResolveHold, 30 * time.Second},
		{"thumbnail_every_k", cfg.ThumbnailEveryK, 3},
		{"history_retention", cfg.HistoryRetention, 50},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}

	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero poll interval", func(c *Config) { c.PollInterval = 0 }},
		{"zero probe timeout", func(c *Config) { c.ProbeTimeout = 0 }},
		{"long window under short", func(c *Config) { c.WindowLong = c.WindowShort - time.Second }},
		{"err rate over 1", func(c *Config) { c.RedErrRate = 1.5 }},
		{"err rate zero", func(c *Config) { c.RedErrRate = 0 }},
		{"consecutive errors zero", func(c *Config) { c.RedConsecutiveErrors = 0 }},
		{"history retention zero", func(c *Config) { c.HistoryRetention = 0 }},
		{"timeline cap one", func(c *Config) { c.TimelineCap = 1 }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }},
		{"backoff factor under 1", func(c *Config) { c.BackoffFactor = 0.5 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if Validate(cfg) == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateManifestURL(t *testing.T) {
	valid := []string{
		"http://origin.example.com/live/master.m3u8",
		"https://cdn.example.com/x.m3u8?token=abc",
	}
	for _, u := range valid {
		if err := ValidateManifestURL(u); err != nil {
			t.Errorf("ValidateManifestURL(%q) = %v", u, err)
		}
	}

	invalid := []string{
		"",
		"ftp://origin/playlist.m3u8",
		"not a url at all\x7f",
		"/relative/path.m3u8",
	}
	for _, u := range invalid {
		if err := ValidateManifestURL(u); err == nil {
			t.Errorf("ValidateManifestURL(%q) = nil, want error", u)
		}
	}
}

func TestParseFlagsOverridesDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-poll-interval", "3s",
		"-ttfb-yellow-ms", "750",
		"-listen", "127.0.0.1:9999",
		"-v",
	})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}

	if cfg.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.TTFBYellowMS != 750 {
		t.Errorf("TTFBYellowMS = %v", cfg.TTFBYellowMS)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if !cfg.Verbose {
		t.Error("Verbose not set")
	}
}

func TestParseFlagsRejectsPositional(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if _, err := parseFlags(fs, []string{"unexpected"}); err == nil {
		t.Error("expected error for positional argument")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
poll_interval: 15s
probe_timeout: 2s
ttfb_yellow_ms: 650
history_retention: 20
listen_addr: "0.0.0.0:9000"
log_format: text
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.PollInterval != 15*time.Second {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.ProbeTimeout != 2*time.Second {
		t.Errorf("ProbeTimeout = %v", cfg.ProbeTimeout)
	}
	if cfg.TTFBYellowMS != 650 {
		t.Errorf("TTFBYellowMS = %v", cfg.TTFBYellowMS)
	}
	if cfg.HistoryRetention != 20 {
		t.Errorf("HistoryRetention = %d", cfg.HistoryRetention)
	}
	if cfg.ListenAddr != "0.0.0.0:9000" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.LogFormat != "text" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}

	// Untouched values keep their defaults.
	if cfg.WindowShort != 120*time.Second {
		t.Errorf("WindowShort = %v, want default", cfg.WindowShort)
	}
}

func TestLoadFileErrors(t *testing.T) {
	cfg := DefaultConfig()
	if err := LoadFile(cfg, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("poll_interval: [not, a, duration]"), 0o644)
	if err := LoadFile(cfg, path); err == nil {
		t.Error("expected error for malformed document")
	}

	path2 := filepath.Join(t.TempDir(), "baddur.yaml")
	os.WriteFile(path2, []byte("poll_interval: banana"), 0o644)
	if err := LoadFile(cfg, path2); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestFlagsBeatConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("poll_interval: 15s\nttfb_yellow_ms: 650\n"), 0o644)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{"-config", path, "-poll-interval", "3s"})
	if err != nil {
		t.Fatalf("parseFlags() error = %v", err)
	}

	if cfg.PollInterval != 3*time.Second {
		t.Errorf("PollInterval = %v, flag must beat file", cfg.PollInterval)
	}
	if cfg.TTFBYellowMS != 650 {
		t.Errorf("TTFBYellowMS = %v, file must beat default", cfg.TTFBYellowMS)
	}
}
