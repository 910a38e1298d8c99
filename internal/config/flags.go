package config

import (
	"flag"
	"fmt"
	"os"
)

// ParseFlags parses command-line flags and returns a Config.
// A -config YAML file, if given, is loaded first; flags set explicitly on
// the command line override file values.
func ParseFlags() (*Config, error) {
	return parseFlags(flag.CommandLine, os.Args[1:])
}

func parseFlags(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := DefaultConfig()

	var configFile string
	fs.StringVar(&configFile, "config", "", "Path to YAML config file")

	// Polling
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Supervisor tick interval")
	fs.DurationVar(&cfg.ProbeTimeout, "probe-timeout", cfg.ProbeTimeout, "Hard per-request probe deadline")

	// Health
	fs.DurationVar(&cfg.WindowShort, "window-short", cfg.WindowShort, "Health evaluation window")
	fs.DurationVar(&cfg.WindowLong, "window-long", cfg.WindowLong, "History query maximum window")
	fs.Float64Var(&cfg.TTFBYellowMS, "ttfb-yellow-ms", cfg.TTFBYellowMS, "YELLOW threshold for average TTFB (ms)")
	fs.Float64Var(&cfg.RatioYellow, "ratio-yellow", cfg.RatioYellow, "YELLOW threshold for average download ratio")
	fs.IntVar(&cfg.RedConsecutiveErrors, "red-consecutive-errors", cfg.RedConsecutiveErrors, "RED threshold for consecutive errors")
	fs.Float64Var(&cfg.RedErrRate, "red-err-rate", cfg.RedErrRate, "RED threshold for window error rate")

	// Incidents
	fs.DurationVar(&cfg.YellowPersistence, "yellow-persistence", cfg.YellowPersistence, "YELLOW duration before an incident opens")
	fs.DurationVar(&cfg.ResolveHold, "resolve-hold", cfg.ResolveHold, "GREEN hold before an incident resolves")
	fs.IntVar(&cfg.HistoryRetention, "history-retention", cfg.HistoryRetention, "Resolved incidents kept per stream")

	// Thumbnails
	fs.IntVar(&cfg.ThumbnailEveryK, "thumbnail-every", cfg.ThumbnailEveryK, "Thumbnail cadence in ticks")
	fs.StringVar(&cfg.ThumbnailDir, "thumbnail-dir", cfg.ThumbnailDir, "Directory for captured thumbnails")
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "Path to ffmpeg binary")

	// Server
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP API listen address")
	fs.StringVar(&cfg.StreamsFile, "streams-file", cfg.StreamsFile, "Path to the persisted streams JSON document")

	// Observability
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging (debug level)")
	fs.BoolVar(&cfg.TUI, "tui", cfg.TUI, "Run the terminal dashboard instead of plain logs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected positional arguments: %v", fs.Args())
	}

	// Apply file values under explicit flags: remember the flags the user
	// actually set, load into a fresh default config, then re-apply them.
	if configFile != "" {
		explicit := map[string]string{}
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = f.Value.String() })
		fileCfg := DefaultConfig()
		if err := LoadFile(fileCfg, configFile); err != nil {
			return nil, err
		}
		*cfg = *fileCfg
		var ferr error
		fs.Visit(func(f *flag.Flag) {
			if f.Name == "config" {
				return
			}
			if err := fs.Set(f.Name, explicit[f.Name]); err != nil && ferr == nil {
				ferr = err
			}
		})
		if ferr != nil {
			return nil, ferr
		}
	}

	return cfg, nil
}
