// Package config loads vidbot settings from a TOML file, an optional .env
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Server holds the HTTP listener settings.
type Server struct {
	Listen string `toml:"listen"`
	// Secret enables signature checks on POST /messages when set.
	Secret string `toml:"secret"`
}

// Paths holds on-disk locations.
type Paths struct {
	OutputDir string `toml:"output_dir"`
	WorkDir   string `toml:"work_dir"`
	DBPath    string `toml:"db_path"`
	LogDir    string `toml:"log_dir"`
}

// Delivery holds the public location of encoded files.
type Delivery struct {
	BaseURL string `toml:"base_url"`
}

// Chat holds the chat side settings.
type Chat struct {
	Channel    string   `toml:"channel"`
	WebhookURL string   `toml:"webhook_url"`
	Timeout    Duration `toml:"timeout"`
}

// Tools names the external binaries.
type Tools struct {
	YtDlp  string `toml:"ytdlp"`
	FFmpeg string `toml:"ffmpeg"`
}

// Fetch holds download settings.
type Fetch struct {
	Format      string `toml:"format"`
	TitleMaxLen int    `toml:"title_max_len"`
}

// Encode holds encode settings.
type Encode struct {
	ProfileTag string `toml:"profile_tag"`
}

// Timeouts bound single external tool invocations. Zero disables a bound.
type Timeouts struct {
	Probe    Duration `toml:"probe"`
	Download Duration `toml:"download"`
	Encode   Duration `toml:"encode"`
}

// Logging holds log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Pattern is an extra URL pattern appended to the built-in ones.
type Pattern struct {
	Name    string `toml:"name"`
	Pattern string `toml:"pattern"`
}

// Config is the full vidbot configuration.
type Config struct {
	Server   Server    `toml:"server"`
	Paths    Paths     `toml:"paths"`
	Delivery Delivery  `toml:"delivery"`
	Chat     Chat      `toml:"chat"`
	Tools    Tools     `toml:"tools"`
	Fetch    Fetch     `toml:"fetch"`
	Encode   Encode    `toml:"encode"`
	Timeouts Timeouts  `toml:"timeouts"`
	Logging  Logging   `toml:"logging"`
	Patterns []Pattern `toml:"patterns"`
}

// Duration is a time.Duration written as "90s" or "2h" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server:   Server{Listen: ":8084"},
		Paths:    Paths{OutputDir: "/app/output", WorkDir: "/app/temp", DBPath: DefaultDBPath()},
		Delivery: Delivery{BaseURL: "http://10.0.0.2:8084"},
		Chat:     Chat{Channel: "#test", Timeout: Duration{10 * time.Second}},
		Tools:    Tools{YtDlp: "yt-dlp", FFmpeg: "ffmpeg"},
		Fetch:    Fetch{Format: "best[height<=720]", TitleMaxLen: 50},
		Encode:   Encode{ProfileTag: "x220"},
		Timeouts: Timeouts{
			Probe:    Duration{2 * time.Minute},
			Download: Duration{30 * time.Minute},
			Encode:   Duration{2 * time.Hour},
		},
		Logging: Logging{Level: "info", Format: "auto"},
	}
}

// DefaultDBPath returns the default database path using XDG_CACHE_HOME.
func DefaultDBPath() string {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "vidbot", "jobs.db")
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return ExpandPath("~/.config/vidbot/config.toml")
}

// Load reads .env from the working directory, then the config file at path
// (or VIDBOT_CONFIG, or the default location), then environment overrides.
// A missing default file is fine; a missing explicit one is not. The
// resolved file path is returned alongside whether it existed.
func Load(path string) (*Config, string, bool, error) {
	if err := LoadDotEnv(".env"); err != nil {
		return nil, "", false, err
	}

	cfg := Default()

	resolved, explicit, err := resolvePath(path)
	if err != nil {
		return nil, "", false, err
	}

	exists := true
	if _, err := os.Stat(resolved); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", false, fmt.Errorf("stat config: %w", err)
		}
		if explicit {
			return nil, "", false, fmt.Errorf("config file %s: %w", resolved, err)
		}
		exists = false
	}

	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

// LoadDotEnv loads KEY=value lines from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func resolvePath(path string) (string, bool, error) {
	explicit := true
	if path == "" {
		path = os.Getenv("VIDBOT_CONFIG")
	}
	if path == "" {
		explicit = false
		p, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		path = p
	}
	expanded, err := ExpandPath(path)
	if err != nil {
		return "", false, err
	}
	return expanded, explicit, nil
}

func decodeFile(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return fmt.Errorf("parse config: unknown keys %s", strings.Join(keys, ", "))
	}
	return nil
}

// applyEnv overrides file values with VIDBOT_* variables. IRC_CHANNEL is
// honored for the channel when VIDBOT_CHANNEL is unset.
func (c *Config) applyEnv() error {
	strs := []struct {
		key string
		dst *string
	}{
		{"VIDBOT_LISTEN", &c.Server.Listen},
		{"VIDBOT_SECRET", &c.Server.Secret},
		{"VIDBOT_OUTPUT_DIR", &c.Paths.OutputDir},
		{"VIDBOT_WORK_DIR", &c.Paths.WorkDir},
		{"VIDBOT_DB_PATH", &c.Paths.DBPath},
		{"VIDBOT_LOG_DIR", &c.Paths.LogDir},
		{"VIDBOT_BASE_URL", &c.Delivery.BaseURL},
		{"IRC_CHANNEL", &c.Chat.Channel},
		{"VIDBOT_CHANNEL", &c.Chat.Channel},
		{"VIDBOT_WEBHOOK_URL", &c.Chat.WebhookURL},
		{"VIDBOT_YTDLP", &c.Tools.YtDlp},
		{"VIDBOT_FFMPEG", &c.Tools.FFmpeg},
		{"VIDBOT_FORMAT", &c.Fetch.Format},
		{"VIDBOT_PROFILE_TAG", &c.Encode.ProfileTag},
		{"VIDBOT_LOG_LEVEL", &c.Logging.Level},
		{"VIDBOT_LOG_FORMAT", &c.Logging.Format},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	durations := []struct {
		key string
		dst *Duration
	}{
		{"VIDBOT_PROBE_TIMEOUT", &c.Timeouts.Probe},
		{"VIDBOT_DOWNLOAD_TIMEOUT", &c.Timeouts.Download},
		{"VIDBOT_ENCODE_TIMEOUT", &c.Timeouts.Encode},
	}
	for _, d := range durations {
		v, ok := os.LookupEnv(d.key)
		if !ok || v == "" {
			continue
		}
		if err := d.dst.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	paths := []struct {
		name string
		dst  *string
	}{
		{"paths.output_dir", &c.Paths.OutputDir},
		{"paths.work_dir", &c.Paths.WorkDir},
		{"paths.db_path", &c.Paths.DBPath},
		{"paths.log_dir", &c.Paths.LogDir},
	}
	for _, p := range paths {
		if *p.dst, err = ExpandPath(strings.TrimSpace(*p.dst)); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}

	c.Server.Listen = strings.TrimSpace(c.Server.Listen)
	c.Delivery.BaseURL = strings.TrimRight(strings.TrimSpace(c.Delivery.BaseURL), "/")
	c.Chat.Channel = strings.TrimSpace(c.Chat.Channel)
	c.Chat.WebhookURL = strings.TrimSpace(c.Chat.WebhookURL)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	for i := range c.Patterns {
		c.Patterns[i].Name = strings.TrimSpace(c.Patterns[i].Name)
	}
	return nil
}

// ExpandPath resolves a leading ~ and makes the path absolute. Empty stays
// empty.
func ExpandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// EnsureDirectories creates the output, work and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, c.Paths.WorkDir, filepath.Dir(c.Paths.DBPath)}
	if c.Paths.LogDir != "" {
		dirs = append(dirs, c.Paths.LogDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}
