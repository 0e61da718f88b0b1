// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override config keys,
// e.g. SCALPEL_DRIVER_SERVER_PORT for server.port.
const EnvPrefix = "SCALPEL_DRIVER"

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Server() ServerConfig
	Session() SessionConfig
	Browser() BrowserConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	ServerCfg  ServerConfig  `mapstructure:"server" yaml:"server"`
	SessionCfg SessionConfig `mapstructure:"session" yaml:"session"`
	BrowserCfg BrowserConfig `mapstructure:"browser" yaml:"browser"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig   { return c.LoggerCfg }
func (c *Config) Server() ServerConfig   { return c.ServerCfg }
func (c *Config) Session() SessionConfig { return c.SessionCfg }
func (c *Config) Browser() BrowserConfig { return c.BrowserCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color settings for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// ServerConfig configures the HTTP command router.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
	// URLPrefix mounts every route under a base path, e.g. "/wd/hub".
	URLPrefix string `mapstructure:"url_prefix" yaml:"url_prefix"`
	// CommandTimeout bounds how long a request waits for its command. Zero
	// waits for as long as the worker takes.
	CommandTimeout    time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`
	MaxSessions       int           `mapstructure:"max_sessions" yaml:"max_sessions"`
	MaxConnections    int           `mapstructure:"max_connections" yaml:"max_connections"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr is the host:port the server listens on.
func (s ServerConfig) Addr() string { return net.JoinHostPort(s.Host, strconv.Itoa(s.Port)) }

// SessionConfig holds per-session defaults.
type SessionConfig struct {
	ImplicitWait    time.Duration `mapstructure:"implicit_wait" yaml:"implicit_wait"`
	PageLoadTimeout time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	ScriptTimeout   time.Duration `mapstructure:"script_timeout" yaml:"script_timeout"`
	SettleInterval  time.Duration `mapstructure:"settle_interval" yaml:"settle_interval"`
	StartupTimeout  time.Duration `mapstructure:"startup_timeout" yaml:"startup_timeout"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless        bool   `mapstructure:"headless" yaml:"headless"`
	DisableGPU      bool   `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	IgnoreTLSErrors bool   `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug           bool   `mapstructure:"debug" yaml:"debug"`
	ExecPath        string `mapstructure:"exec_path" yaml:"exec_path"`
	// RemoteURL attaches to an already running browser's DevTools endpoint
	// instead of launching one.
	RemoteURL    string   `mapstructure:"remote_url" yaml:"remote_url"`
	UserDataDir  string   `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	Args         []string `mapstructure:"args" yaml:"args"`
	WindowWidth  int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int      `mapstructure:"window_height" yaml:"window_height"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpel-driver")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Server --
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 5555)
	v.SetDefault("server.url_prefix", "")
	v.SetDefault("server.command_timeout", "0s")
	v.SetDefault("server.max_sessions", 8)
	v.SetDefault("server.max_connections", 0)
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// -- Session --
	v.SetDefault("session.implicit_wait", "0s")
	v.SetDefault("session.page_load_timeout", "300s")
	v.SetDefault("session.script_timeout", "30s")
	v.SetDefault("session.settle_interval", "100ms")
	v.SetDefault("session.startup_timeout", "60s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 1024)
}

// Configure prepares v for loading: defaults, environment overrides and an
// optional config file. A missing file is only an error when configFile was
// given explicitly.
func Configure(v *viper.Viper, configFile string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		path, err := homedir.Expand(configFile)
		if err != nil {
			return fmt.Errorf("expanding config path %q: %w", configFile, err)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("scalpel-driver")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := homedir.Dir(); err == nil {
		v.AddConfigPath(home + "/.config/scalpel-driver")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	var err error
	if cfg.LoggerCfg.LogFile, err = expandPath(cfg.LoggerCfg.LogFile); err != nil {
		return nil, err
	}
	if cfg.BrowserCfg.ExecPath, err = expandPath(cfg.BrowserCfg.ExecPath); err != nil {
		return nil, err
	}
	if cfg.BrowserCfg.UserDataDir, err = expandPath(cfg.BrowserCfg.UserDataDir); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func expandPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	out, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("expanding path %q: %w", p, err)
	}
	return out, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.ServerCfg.Validate(); err != nil {
		return fmt.Errorf("server configuration invalid: %w", err)
	}
	if err := c.SessionCfg.Validate(); err != nil {
		return fmt.Errorf("session configuration invalid: %w", err)
	}
	if c.BrowserCfg.WindowWidth < 0 || c.BrowserCfg.WindowHeight < 0 {
		return fmt.Errorf("browser.window_width and browser.window_height must not be negative")
	}
	return nil
}

// Validate checks the server settings.
func (s *ServerConfig) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", s.Port)
	}
	if s.MaxSessions <= 0 {
		return fmt.Errorf("max_sessions must be a positive integer")
	}
	if s.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative")
	}
	if s.CommandTimeout < 0 {
		return fmt.Errorf("command_timeout must not be negative")
	}
	if s.URLPrefix != "" && (!strings.HasPrefix(s.URLPrefix, "/") || strings.HasSuffix(s.URLPrefix, "/")) {
		return fmt.Errorf("url_prefix must start with '/' and must not end with one, got %q", s.URLPrefix)
	}
	return nil
}

// Validate checks the session defaults.
func (s *SessionConfig) Validate() error {
	if s.ImplicitWait < 0 || s.PageLoadTimeout < 0 || s.ScriptTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if s.SettleInterval <= 0 {
		return fmt.Errorf("settle_interval must be a positive duration")
	}
	if s.StartupTimeout <= 0 {
		return fmt.Errorf("startup_timeout must be a positive duration")
	}
	return nil
}
