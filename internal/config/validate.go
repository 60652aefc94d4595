package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Paths.OutputDir == "" {
		return errors.New("paths.output_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		return errors.New("paths.work_dir must be set")
	}
	if c.Paths.DBPath == "" {
		return errors.New("paths.db_path must be set")
	}
	if c.Chat.Channel == "" {
		return errors.New("chat.channel must be set")
	}
	if err := validateURL("delivery.base_url", c.Delivery.BaseURL); err != nil {
		return err
	}
	if c.Chat.WebhookURL != "" {
		if err := validateURL("chat.webhook_url", c.Chat.WebhookURL); err != nil {
			return err
		}
	}
	if c.Fetch.TitleMaxLen <= 0 {
		return errors.New("fetch.title_max_len must be positive")
	}
	if c.Tools.YtDlp == "" || c.Tools.FFmpeg == "" {
		return errors.New("tools.ytdlp and tools.ffmpeg must be set")
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validatePatterns()
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", key, raw)
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	for name, d := range map[string]Duration{
		"timeouts.probe":    c.Timeouts.Probe,
		"timeouts.download": c.Timeouts.Download,
		"timeouts.encode":   c.Timeouts.Encode,
		"chat.timeout":      c.Chat.Timeout,
	} {
		if d.Duration < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format must be auto, console or json, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validatePatterns() error {
	for i, p := range c.Patterns {
		if p.Name == "" {
			return fmt.Errorf("patterns[%d]: name must be set", i)
		}
		if _, err := regexp.Compile(p.Pattern); err != nil {
			return fmt.Errorf("patterns[%d] %s: %w", i, p.Name, err)
		}
	}
	return nil
}
