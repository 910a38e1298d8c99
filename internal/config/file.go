package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config for YAML loading. Durations are strings in
// Go duration syntax ("10s", "2m"). Zero values mean "not set" and leave
// the existing value untouched, so a file can override any subset.
type fileConfig struct {
	PollInterval string `yaml:"poll_interval"`
	ProbeTimeout string `yaml:"probe_timeout"`

	WindowShort          string   `yaml:"window_short"`
	WindowLong           string   `yaml:"window_long"`
	TTFBYellowMS         *float64 `yaml:"ttfb_yellow_ms"`
	RatioYellow          *float64 `yaml:"ratio_yellow"`
	RedConsecutiveErrors *int     `yaml:"red_consecutive_errors"`
	RedErrRate           *float64 `yaml:"red_err_rate"`
	FlapWindow           string   `yaml:"flap_window"`

	YellowPersistence string `yaml:"yellow_persistence"`
	ResolveHold       string `yaml:"resolve_hold"`
	HistoryRetention  *int   `yaml:"history_retention"`
	TimelineCap       *int   `yaml:"timeline_cap"`

	ThumbnailEveryK *int   `yaml:"thumbnail_every_k"`
	ThumbnailDir    string `yaml:"thumbnail_dir"`
	ThumbnailMaxAge string `yaml:"thumbnail_max_age"`
	FFmpegPath      string `yaml:"ffmpeg_path"`

	ListenAddr      string   `yaml:"listen_addr"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	StopGrace       string   `yaml:"stop_grace"`
	RateLimitPerSec *float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  *int     `yaml:"rate_limit_burst"`

	StreamsFile string `yaml:"streams_file"`

	BackoffInitial string   `yaml:"backoff_initial"`
	BackoffMax     string   `yaml:"backoff_max"`
	BackoffFactor  *float64 `yaml:"backoff_factor"`

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`

	SubscriberQueue *int `yaml:"subscriber_queue"`
}

// LoadFile merges a YAML config file over cfg. Values absent from the
// file are left as-is; flags parsed afterwards win over both.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{fc.PollInterval, &cfg.PollInterval},
		{fc.ProbeTimeout, &cfg.ProbeTimeout},
		{fc.WindowShort, &cfg.WindowShort},
		{fc.WindowLong, &cfg.WindowLong},
		{fc.FlapWindow, &cfg.FlapWindow},
		{fc.YellowPersistence, &cfg.YellowPersistence},
		{fc.ResolveHold, &cfg.ResolveHold},
		{fc.ThumbnailMaxAge, &cfg.ThumbnailMaxAge},
		{fc.ShutdownTimeout, &cfg.ShutdownTimeout},
		{fc.StopGrace, &cfg.StopGrace},
		{fc.BackoffInitial, &cfg.BackoffInitial},
		{fc.BackoffMax, &cfg.BackoffMax},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		dur, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("parse config file %s: %q: %w", path, d.raw, err)
		}
		*d.dst = dur
	}

	if fc.TTFBYellowMS != nil {
		cfg.TTFBYellowMS = *fc.TTFBYellowMS
	}
	if fc.RatioYellow != nil {
		cfg.RatioYellow = *fc.RatioYellow
	}
	if fc.RedConsecutiveErrors != nil {
		cfg.RedConsecutiveErrors = *fc.RedConsecutiveErrors
	}
	if fc.RedErrRate != nil {
		cfg.RedErrRate = *fc.RedErrRate
	}
	if fc.HistoryRetention != nil {
		cfg.HistoryRetention = *fc.HistoryRetention
	}
	if fc.TimelineCap != nil {
		cfg.TimelineCap = *fc.TimelineCap
	}
	if fc.ThumbnailEveryK != nil {
		cfg.ThumbnailEveryK = *fc.ThumbnailEveryK
	}
	if fc.ThumbnailDir != "" {
		cfg.ThumbnailDir = fc.ThumbnailDir
	}
	if fc.FFmpegPath != "" {
		cfg.FFmpegPath = fc.FFmpegPath
	}
	if fc.ListenAddr != "" {
		cfg.ListenAddr = fc.ListenAddr
	}
	if fc.RateLimitPerSec != nil {
		cfg.RateLimitPerSec = *fc.RateLimitPerSec
	}
	if fc.RateLimitBurst != nil {
		cfg.RateLimitBurst = *fc.RateLimitBurst
	}
	if fc.StreamsFile != "" {
		cfg.StreamsFile = fc.StreamsFile
	}
	if fc.BackoffFactor != nil {
		cfg.BackoffFactor = *fc.BackoffFactor
	}
	if fc.LogFormat != "" {
		cfg.LogFormat = fc.LogFormat
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
	if fc.SubscriberQueue != nil {
		cfg.SubscriberQueue = *fc.SubscriberQueue
	}

	return nil
}
