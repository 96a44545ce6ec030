package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tinyland-inc/tgminer/pkg/bus"
	"github.com/tinyland-inc/tgminer/pkg/filter"
	"github.com/tinyland-inc/tgminer/pkg/index"
	"github.com/tinyland-inc/tgminer/pkg/media"
)

// ErrConfig marks every error caused by configuration content.
var ErrConfig = errors.New("invalid configuration")

// DefaultPath is used when neither --config nor TGMINER_CONFIG is given.
const DefaultPath = "config.json"

// DefaultTimestampFormat renders as (2024/01/02 - 03:04:05 PM).
const DefaultTimestampFormat = "(2006/01/02 - 03:04:05 PM)"

// ValidationError reports the config key that failed validation.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrConfig, e.Err}
}

type Config struct {
	Telegram          TelegramConfig    `json:"telegram"`
	DataDir           string            `env:"TGMINER_DATA_DIR"         json:"data_dir"`
	ChatStdout        bool              `env:"TGMINER_CHAT_STDOUT"      json:"chat_stdout"`
	WriteRawLogs      bool              `env:"TGMINER_WRITE_RAW_LOGS"   json:"write_raw_logs"`
	TimestampFormat   string            `env:"TGMINER_TIMESTAMP_FORMAT" json:"timestamp_format"`
	LogDirectChats    bool              `env:"TGMINER_LOG_DIRECT_CHATS" json:"log_direct_chats"`
	LogGroupChats     bool              `env:"TGMINER_LOG_GROUP_CHATS"  json:"log_group_chats"`
	Workers           int               `env:"TGMINER_WORKERS"          json:"workers"`
	MetricsAddr       string            `env:"TGMINER_METRICS_ADDR"     json:"metrics_addr,omitempty"`
	GroupFilters      map[string]string `json:"group_filters,omitempty"`
	DirectChatFilters map[string]string `json:"direct_chat_filters,omitempty"`
	UserFilters       map[string]string `json:"user_filters,omitempty"`
	Media             MediaConfig       `json:"media"`
}

type TelegramConfig struct {
	Token       string `env:"TGMINER_TELEGRAM_TOKEN"        json:"token"`
	Proxy       string `env:"TGMINER_TELEGRAM_PROXY"        json:"proxy,omitempty"`
	PollTimeout int    `env:"TGMINER_TELEGRAM_POLL_TIMEOUT" json:"poll_timeout"` // seconds
}

// MediaKindConfig is the download toggle and file name filter of one media
// kind. Photos have no file name, so their NameFilter is ignored.
type MediaKindConfig struct {
	Download   bool   `env:"DOWNLOAD"    json:"download"`
	NameFilter string `env:"NAME_FILTER" json:"name_filter,omitempty"`
}

type MediaConfig struct {
	Photo     MediaKindConfig `envPrefix:"TGMINER_MEDIA_PHOTO_"      json:"photo"`
	Document  MediaKindConfig `envPrefix:"TGMINER_MEDIA_DOCUMENT_"   json:"document"`
	Video     MediaKindConfig `envPrefix:"TGMINER_MEDIA_VIDEO_"      json:"video"`
	Audio     MediaKindConfig `envPrefix:"TGMINER_MEDIA_AUDIO_"      json:"audio"`
	Voice     MediaKindConfig `envPrefix:"TGMINER_MEDIA_VOICE_"      json:"voice"`
	Sticker   MediaKindConfig `envPrefix:"TGMINER_MEDIA_STICKER_"    json:"sticker"`
	Animation MediaKindConfig `envPrefix:"TGMINER_MEDIA_ANIMATION_"  json:"animation"`
	VideoNote MediaKindConfig `envPrefix:"TGMINER_MEDIA_VIDEO_NOTE_" json:"video_note"`
}

// Kinds maps every media kind to its settings.
func (m MediaConfig) Kinds() map[bus.MediaKind]MediaKindConfig {
	return map[bus.MediaKind]MediaKindConfig{
		bus.MediaPhoto:     m.Photo,
		bus.MediaDocument:  m.Document,
		bus.MediaVideo:     m.Video,
		bus.MediaAudio:     m.Audio,
		bus.MediaVoice:     m.Voice,
		bus.MediaSticker:   m.Sticker,
		bus.MediaAnimation: m.Animation,
		bus.MediaVideoNote: m.VideoNote,
	}
}

func DefaultConfig() *Config {
	return &Config{
		DataDir:         "data",
		WriteRawLogs:    true,
		TimestampFormat: DefaultTimestampFormat,
		LogDirectChats:  true,
		LogGroupChats:   true,
		Workers:         4,
		Telegram: TelegramConfig{
			PollTimeout: 30,
		},
	}
}

// ResolvePath picks the config file: the flag value, else TGMINER_CONFIG,
// else DefaultPath. explicit reports whether the caller named a file.
func ResolvePath(flag string) (path string, explicit bool) {
	if flag != "" {
		return flag, true
	}
	if p := os.Getenv("TGMINER_CONFIG"); p != "" {
		return p, true
	}
	return DefaultPath, false
}

// LoadConfig reads path as JSON, or YAML for .yaml/.yml files, on top of
// DefaultConfig. A .env file next to the config is loaded first and
// TGMINER_* variables override file values. A missing file yields the
// defaults. The result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if isYAML(path) {
			if data, err = yamlToJSON(data); err != nil {
				return nil, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
			}
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrConfig, path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("%w: environment: %v", ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	// Variables already set in the process environment win.
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("%w: load %s: %v", ErrConfig, path, err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func yamlToJSON(data []byte) ([]byte, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// Validate checks every setting and compiles every pattern once.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return &ValidationError{Field: "data_dir", Err: errors.New("must not be empty")}
	}
	if c.TimestampFormat == "" {
		return &ValidationError{Field: "timestamp_format", Err: errors.New("must not be empty")}
	}
	if c.Workers < 1 {
		return &ValidationError{Field: "workers", Err: fmt.Errorf("must be at least 1, got %d", c.Workers)}
	}
	if _, err := c.FilterPolicy(); err != nil {
		return err
	}
	if _, err := c.MediaPolicy(); err != nil {
		return err
	}
	return nil
}

// FilterPolicy compiles the three filter chains.
func (c *Config) FilterPolicy() (*filter.Policy, error) {
	chains := []struct {
		field    string
		kind     filter.Kind
		patterns map[string]string
	}{
		{"group_filters", filter.KindGroup, c.GroupFilters},
		{"direct_chat_filters", filter.KindDirect, c.DirectChatFilters},
		{"user_filters", filter.KindUser, c.UserFilters},
	}
	for _, ch := range chains {
		if _, err := filter.NewChain(ch.kind, ch.patterns); err != nil {
			return nil, &ValidationError{Field: ch.field, Err: err}
		}
	}
	return filter.NewPolicy(c.GroupFilters, c.DirectChatFilters, c.UserFilters)
}

// MediaPolicy compiles the per-kind download toggles and name filters.
func (c *Config) MediaPolicy() (*media.Policy, error) {
	kinds := make(map[bus.MediaKind]media.KindPolicy)
	for kind, mc := range c.Media.Kinds() {
		kp := media.KindPolicy{Download: mc.Download}
		if kind != bus.MediaPhoto {
			p, err := filter.Compile(mc.NameFilter)
			if err != nil {
				return nil, &ValidationError{Field: "media." + kind.String() + ".name_filter", Err: err}
			}
			kp.NameFilter = p
		}
		kinds[kind] = kp
	}
	return media.NewPolicy(kinds), nil
}

// RequireTelegram checks the settings only the miner needs.
func (c *Config) RequireTelegram() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return &ValidationError{Field: "telegram.token", Err: errors.New("bot token is required")}
	}
	return nil
}

func (c *Config) IndexDir() string {
	return filepath.Join(c.DataDir, index.DirName)
}
