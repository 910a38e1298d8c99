// Package config provides configuration management for streamwatch.
package config

import "time"

// Config holds all configuration options for the monitor.
type Config struct {
	// Polling
	PollInterval time.Duration `json:"poll_interval"`
	ProbeTimeout time.Duration `json:"probe_timeout"`

	// Health evaluation
	WindowShort          time.Duration `json:"window_short"`
	WindowLong           time.Duration `json:"window_long"`
	TTFBYellowMS         float64       `json:"ttfb_yellow_ms"`
	RatioYellow          float64       `json:"ratio_yellow"`
	RedConsecutiveErrors int           `json:"red_consecutive_errors"`
	RedErrRate           float64       `json:"red_err_rate"`
	FlapWindow           time.Duration `json:"flap_window"`

	// Incidents
	YellowPersistence time.Duration `json:"yellow_persistence"`
	ResolveHold       time.Duration `json:"resolve_hold"`
	HistoryRetention  int           `json:"history_retention"`
	TimelineCap       int           `json:"timeline_cap"`

	// Thumbnails
	ThumbnailEveryK int           `json:"thumbnail_every_k"`
	ThumbnailDir    string        `json:"thumbnail_dir"`
	ThumbnailMaxAge time.Duration `json:"thumbnail_max_age"`
	FFmpegPath      string        `json:"ffmpeg_path"`

	// Server
	ListenAddr      string        `json:"listen_addr"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	StopGrace       time.Duration `json:"stop_grace"`
	RateLimitPerSec float64       `json:"rate_limit_per_sec"`
	RateLimitBurst  int           `json:"rate_limit_burst"`

	// Persistence
	StreamsFile string `json:"streams_file"`

	// Supervisor restart policy
	BackoffInitial time.Duration `json:"backoff_initial"`
	BackoffMax     time.Duration `json:"backoff_max"`
	BackoffFactor  float64       `json:"backoff_factor"`

	// Observability
	LogFormat string `json:"log_format"` // json, text
	LogLevel  string `json:"log_level"`
	Verbose   bool   `json:"verbose"`
	TUI       bool   `json:"tui"`

	// Fan-out
	SubscriberQueue int `json:"subscriber_queue"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Polling
		PollInterval: 10 * time.Second,
		ProbeTimeout: 5 * time.Second,

		// Health
		WindowShort:          120 * time.Second,
		WindowLong:           3600 * time.Second,
		TTFBYellowMS:         500,
		RatioYellow:          0.9,
		RedConsecutiveErrors: 3,
		RedErrRate:           0.5,
		FlapWindow:           30 * time.Second,

		// Incidents
		YellowPersistence: 60 * time.Second,
		ResolveHold:       30 * time.Second,
		HistoryRetention:  50,
		TimelineCap:       500,

		// Thumbnails
		ThumbnailEveryK: 3,
		ThumbnailDir:    "./data/thumbnails",
		ThumbnailMaxAge: 24 * time.Hour,
		FFmpegPath:      "ffmpeg",

		// Server
		ListenAddr:      "0.0.0.0:8080",
		ShutdownTimeout: 10 * time.Second,
		StopGrace:       10 * time.Second,
		RateLimitPerSec: 50,
		RateLimitBurst:  100,

		// Persistence
		StreamsFile: "./data/streams.json",

		// Restart policy
		BackoffInitial: 1 * time.Second,
		BackoffMax:     30 * time.Second,
		BackoffFactor:  2.0,

		// Observability
		LogFormat: "json",
		LogLevel:  "info",

		// Fan-out
		SubscriberQueue: 64,
	}
}
