package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/jeanpaul/recall/internal/analytics"
	"github.com/jeanpaul/recall/internal/memory"
)

// EnvPrefix prefixes every environment override, e.g. RECALL_TEST_MODE
// or RECALL_STORE_LOCK_TIMEOUT.
const EnvPrefix = "RECALL"

// Config is the resolved configuration for every command.
type Config struct {
	DataDir      string          `yaml:"data_dir" mapstructure:"data_dir"`
	DocumentPath string          `yaml:"document_path" mapstructure:"document_path"`
	ToolLogPath  string          `yaml:"tool_log_path" mapstructure:"tool_log_path"`
	TestMode     bool            `yaml:"test_mode" mapstructure:"test_mode"`
	Store        StoreConfig     `yaml:"store" mapstructure:"store"`
	Analytics    AnalyticsConfig `yaml:"analytics" mapstructure:"analytics"`
	Server       ServerConfig    `yaml:"server" mapstructure:"server"`
	Logging      LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

type StoreConfig struct {
	LockTimeout    time.Duration `yaml:"lock_timeout" mapstructure:"lock_timeout"`
	LockRetryDelay time.Duration `yaml:"lock_retry_delay" mapstructure:"lock_retry_delay"`
	StaleAfter     time.Duration `yaml:"stale_after" mapstructure:"stale_after"`
	MaxTextBytes   int           `yaml:"max_text_bytes" mapstructure:"max_text_bytes"`
	MaxValues      int           `yaml:"max_values" mapstructure:"max_values"`
}

type AnalyticsConfig struct {
	Windows   []int  `yaml:"windows" mapstructure:"windows"`
	TopK      int    `yaml:"top_k" mapstructure:"top_k"`
	Tokenizer string `yaml:"tokenizer" mapstructure:"tokenizer"`
	Encoding  string `yaml:"encoding" mapstructure:"encoding"`
}

type ServerConfig struct {
	Transport       string        `yaml:"transport" mapstructure:"transport"`
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	Metrics         bool          `yaml:"metrics" mapstructure:"metrics"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// defaults is the single source of default values: viper is seeded from
// it and `recall config init` writes it out.
func defaults() map[string]any {
	return map[string]any{
		"data_dir":      "data",
		"document_path": "",
		"tool_log_path": "",
		"test_mode":     false,
		"store": map[string]any{
			"lock_timeout":     "10s",
			"lock_retry_delay": "25ms",
			"stale_after":      "2m",
			"max_text_bytes":   memory.DefaultMaxTextBytes,
			"max_values":       memory.DefaultMaxValues,
		},
		"analytics": map[string]any{
			"windows":   []int{2, 3},
			"top_k":     10,
			"tokenizer": "tiktoken",
			"encoding":  "cl100k_base",
		},
		"server": map[string]any{
			"transport":        "stdio",
			"addr":             "127.0.0.1:8765",
			"metrics":          true,
			"shutdown_timeout": "10s",
		},
		"logging": map[string]any{
			"level": "info",
			"json":  true,
		},
	}
}

func setDefaults(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := val.(map[string]any); ok {
			setDefaults(v, key, sub)
			continue
		}
		v.SetDefault(key, val)
	}
}

// DefaultConfig returns the defaults with paths resolved, ignoring files and environment.
func DefaultConfig() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return cfg
}

// Dir is the per-user configuration directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "recall")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "recall")
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v, "", defaults())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from file (explicit path, or config.yaml in
// ., $XDG_CONFIG_HOME/recall and ~/.config/recall), a .env file in the
// working directory and RECALL_* environment variables, in increasing
// priority.
func Load(file string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: read .env: %w", err)
	}

	v := newViper()
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
		// No config file; defaults and environment apply.
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.resolvePaths()
	return cfg, nil
}

func (c *Config) resolvePaths() {
	if c.DocumentPath == "" {
		c.DocumentPath = filepath.Join(c.DataDir, "memories.json")
	}
	if c.ToolLogPath == "" {
		c.ToolLogPath = filepath.Join(c.DataDir, "tool_calls.jsonl")
	}
}

// Limits returns the write limits for the store and the tool layer.
func (c *Config) Limits() memory.Limits {
	return memory.Limits{MaxTextBytes: c.Store.MaxTextBytes, MaxValues: c.Store.MaxValues}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.DocumentPath == "" || c.ToolLogPath == "" {
		return fmt.Errorf("config: data_dir or explicit document_path and tool_log_path are required")
	}
	if c.TestMode && memory.IsDefaultPath(c.DocumentPath) {
		return fmt.Errorf("config: test_mode refuses the production document %s; set document_path or data_dir", c.DocumentPath)
	}
	if c.TestMode && analytics.IsDefaultPath(c.ToolLogPath) {
		return fmt.Errorf("config: test_mode refuses the production tool log %s; set tool_log_path or data_dir", c.ToolLogPath)
	}
	if c.Store.LockTimeout <= 0 {
		return fmt.Errorf("config: store.lock_timeout must be positive")
	}
	if c.Store.LockRetryDelay <= 0 || c.Store.LockRetryDelay >= c.Store.LockTimeout {
		return fmt.Errorf("config: store.lock_retry_delay must be positive and below store.lock_timeout")
	}
	if c.Store.StaleAfter <= 0 {
		return fmt.Errorf("config: store.stale_after must be positive")
	}
	if c.Store.MaxTextBytes < 1 || c.Store.MaxValues < 1 {
		return fmt.Errorf("config: store.max_text_bytes and store.max_values must be at least 1")
	}
	if len(c.Analytics.Windows) == 0 {
		return fmt.Errorf("config: analytics.windows must list at least one window")
	}
	for _, w := range c.Analytics.Windows {
		if w < 2 {
			return fmt.Errorf("config: analytics window %d is shorter than 2", w)
		}
	}
	if c.Analytics.TopK < 1 {
		return fmt.Errorf("config: analytics.top_k must be at least 1")
	}
	if c.Analytics.Tokenizer != "tiktoken" && c.Analytics.Tokenizer != "approx" {
		return fmt.Errorf("config: analytics.tokenizer %q is invalid (must be tiktoken or approx)", c.Analytics.Tokenizer)
	}
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("config: server.transport %q is invalid (must be stdio or http)", c.Server.Transport)
	}
	if c.Server.Transport == "http" && c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required for the http transport")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: logging.level: %w", err)
	}
	return nil
}

// WriteDefault writes the default configuration as YAML.
func WriteDefault(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(defaults()); err != nil {
		return err
	}
	return enc.Close()
}
