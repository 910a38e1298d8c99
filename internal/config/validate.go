package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.PollInterval <= 0 {
		errs = append(errs, ValidationError{Field: "poll_interval", Message: "must be positive"})
	}
	if cfg.ProbeTimeout <= 0 {
		errs = append(errs, ValidationError{Field: "probe_timeout", Message: "must be positive"})
	}
	if cfg.WindowShort <= 0 {
		errs = append(errs, ValidationError{Field: "window_short", Message: "must be positive"})
	}
	if cfg.WindowLong < cfg.WindowShort {
		errs = append(errs, ValidationError{
			Field:   "window_long",
			Message: fmt.Sprintf("must be at least window_short (%s)", cfg.WindowShort),
		})
	}
	if cfg.RedErrRate <= 0 || cfg.RedErrRate > 1 {
		errs = append(errs, ValidationError{Field: "red_err_rate", Message: "must be in (0, 1]"})
	}
	if cfg.RedConsecutiveErrors < 1 {
		errs = append(errs, ValidationError{Field: "red_consecutive_errors", Message: "must be at least 1"})
	}
	if cfg.RatioYellow <= 0 {
		errs = append(errs, ValidationError{Field: "ratio_yellow", Message: "must be positive"})
	}
	if cfg.TTFBYellowMS <= 0 {
		errs = append(errs, ValidationError{Field: "ttfb_yellow_ms", Message: "must be positive"})
	}
	if cfg.HistoryRetention < 1 {
		errs = append(errs, ValidationError{Field: "history_retention", Message: "must be at least 1"})
	}
	if cfg.TimelineCap < 2 {
		errs = append(errs, ValidationError{Field: "timeline_cap", Message: "must be at least 2"})
	}
	if cfg.ThumbnailEveryK < 1 {
		errs = append(errs, ValidationError{Field: "thumbnail_every_k", Message: "must be at least 1"})
	}
	if cfg.BackoffInitial <= 0 || cfg.BackoffMax < cfg.BackoffInitial {
		errs = append(errs, ValidationError{Field: "backoff", Message: "initial must be positive and max >= initial"})
	}
	if cfg.BackoffFactor < 1 {
		errs = append(errs, ValidationError{Field: "backoff_factor", Message: "must be at least 1"})
	}
	if cfg.ListenAddr == "" {
		errs = append(errs, ValidationError{Field: "listen_addr", Message: "must not be empty"})
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf(`must be "json" or "text" (got %q)`, cfg.LogFormat),
		})
	}

	if cfg.SubscriberQueue < 1 {
		errs = append(errs, ValidationError{Field: "subscriber_queue", Message: "must be at least 1"})
	}

	return errors.Join(errs...)
}

// ValidateManifestURL checks a stream's manifest URL at creation time.
// Only http and https schemes are accepted.
func ValidateManifestURL(raw string) error {
	if raw == "" {
		return ValidationError{Field: "manifest_url", Message: "is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ValidationError{Field: "manifest_url", Message: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ValidationError{
			Field:   "manifest_url",
			Message: fmt.Sprintf("scheme must be http or https (got %q)", u.Scheme),
		}
	}
	if u.Host == "" {
		return ValidationError{Field: "manifest_url", Message: "missing host"}
	}
	return nil
}
