package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Browser     BrowserConfig    `toml:"browser"`
	Vendors     VendorsConfig    `toml:"vendors"`
	Session     SessionConfig    `toml:"session"`
	Imap        ImapConfig       `toml:"imap"`
	Classifier  ClassifierConfig `toml:"classifier"`
	Agent       AgentConfig      `toml:"agent"`
	Scheduler   SchedulerConfig  `toml:"scheduler"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger  BadgerConfig `toml:"badger"`
	AuthDir string       `toml:"auth_dir"` // directory for per-vendor stored-auth JSON files
	KeysDir string       `toml:"keys_dir"` // directory of secret files loaded into the KV store at startup
	// RunRetention bounds how long download run summaries are kept.
	RunRetention time.Duration `toml:"run_retention"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// BrowserConfig tunes the shared browser resource.
type BrowserConfig struct {
	UserAgent          string        `toml:"user_agent"`
	Headless           bool          `toml:"headless"`
	DisableGPU         bool          `toml:"disable_gpu"`
	NoSandbox          bool          `toml:"no_sandbox"`
	NavigationTimeout  time.Duration `toml:"navigation_timeout"`
	InterceptTimeout   time.Duration `toml:"intercept_timeout"`
	JavaScriptWaitTime time.Duration `toml:"javascript_wait_time"`
}

// VendorsConfig controls the vendor registry.
type VendorsConfig struct {
	// Whitelist restricts dispatch to the listed vendor keys. Empty means
	// the built-in defaults.
	Whitelist []string `toml:"whitelist"`
	// LoginTimeout bounds the manual login flow.
	LoginTimeout time.Duration `toml:"login_timeout"`
	// OTPWaitTimeout bounds the OTP email poll.
	OTPWaitTimeout time.Duration `toml:"otp_wait_timeout"`
	// OTPMaxAge rejects OTP mails older than this.
	OTPMaxAge time.Duration `toml:"otp_max_age"`
}

// SessionConfig fixes the interactive-session port triple and lifecycle bounds.
type SessionConfig struct {
	Display        string        `toml:"display"`         // e.g. ":99"
	VNCPort        int           `toml:"vnc_port"`        // e.g. 5900
	BridgePort     int           `toml:"bridge_port"`     // e.g. 6080
	SettleDelay    time.Duration `toml:"settle_delay"`    // per provisioning step
	SessionTimeout time.Duration `toml:"session_timeout"` // hard teardown bound
	PublicBaseURL  string        `toml:"public_base_url"` // base for access URLs
}

type ImapConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	UseTLS   bool   `toml:"use_tls"`
}

type ClassifierConfig struct {
	GoogleAPIKey string `toml:"google_api_key"`
	Model        string `toml:"model"`
}

// AgentConfig configures the optional external AI login agent subprocess.
type AgentConfig struct {
	Command string        `toml:"command"` // empty disables the agent
	Timeout time.Duration `toml:"timeout"`
}

type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Schedule string `toml:"schedule"` // cron expression
}

// NewDefaultConfig returns the configuration defaults applied before any
// file or environment overrides.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/billfetch",
			},
			AuthDir:      "./data/auth",
			KeysDir:      "./keys",
			RunRetention: 30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Browser: BrowserConfig{
			UserAgent:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			Headless:           true,
			DisableGPU:         true,
			NoSandbox:          true,
			NavigationTimeout:  60 * time.Second,
			InterceptTimeout:   30 * time.Second,
			JavaScriptWaitTime: 3 * time.Second,
		},
		Vendors: VendorsConfig{
			LoginTimeout:   5 * time.Minute,
			OTPWaitTimeout: 2 * time.Minute,
			OTPMaxAge:      5 * time.Minute,
		},
		Session: SessionConfig{
			Display:        ":99",
			VNCPort:        5900,
			BridgePort:     6080,
			SettleDelay:    2 * time.Second,
			SessionTimeout: 30 * time.Minute,
			PublicBaseURL:  "http://localhost:8085",
		},
		Imap: ImapConfig{
			Port:   993,
			UseTLS: true,
		},
		Classifier: ClassifierConfig{
			Model: "gemini-2.0-flash",
		},
		Agent: AgentConfig{
			Timeout: 3 * time.Minute,
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Schedule: "0 9 3 * *",
		},
	}
}

// LoadFromFiles loads configuration in precedence order:
// defaults -> file1 -> file2 -> ... -> environment. Later files override
// earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	cfg := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyFlagOverrides applies command-line flag values. Flags have the
// highest priority.
func ApplyFlagOverrides(cfg *Config, port int, host string) {
	if port != 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BILLFETCH_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("BILLFETCH_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("BILLFETCH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BILLFETCH_BADGER_PATH"); v != "" {
		cfg.Storage.Badger.Path = v
	}
	if v := os.Getenv("BILLFETCH_HEADLESS"); v != "" {
		cfg.Browser.Headless = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("BILLFETCH_GOOGLE_API_KEY"); v != "" {
		cfg.Classifier.GoogleAPIKey = v
	}
	if v := os.Getenv("BILLFETCH_IMAP_PASSWORD"); v != "" {
		cfg.Imap.Password = v
	}
}
