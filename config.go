package goSession

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/MrEthical07/goSession/session"
)

// Config holds every tunable of the session core. Only Store.KeyPrefix,
// Audit and Metrics are read by [Builder.Build]; the rest is consumed by the
// composition root when it constructs the store, authority client, gateway
// and guard.
type Config struct {
	Store     StoreConfig     `toml:"store"`
	Authority AuthorityConfig `toml:"authority"`
	Guard     GuardConfig     `toml:"guard"`
	Audit     AuditConfig     `toml:"audit"`
	Metrics   MetricsConfig   `toml:"metrics"`
	Log       LogConfig       `toml:"log"`
}

/*
====================================
STORE CONFIG
====================================
*/

// Store backends understood by the composition root.
const (
	StoreBackendSQLite = "sqlite"
	StoreBackendRedis  = "redis"
	StoreBackendMemory = "memory"
)

// StoreConfig selects and addresses the persistent key-value backend.
type StoreConfig struct {
	Backend   string `toml:"backend"`
	Path      string `toml:"path"`
	RedisAddr string `toml:"redis_addr"`
	RedisDB   int    `toml:"redis_db"`
	KeyPrefix string `toml:"key_prefix"`
}

/*
====================================
AUTHORITY CONFIG
====================================
*/

// AuthorityConfig addresses the remote session authority. Timeout is the
// transport timeout; nothing in the core adds its own deadline on top.
type AuthorityConfig struct {
	BaseURL     string        `toml:"base_url"`
	VerifyPath  string        `toml:"verify_path"`
	LogoutPath  string        `toml:"logout_path"`
	ProfilePath string        `toml:"profile_path"`
	Timeout     time.Duration `toml:"timeout"`
}

/*
====================================
GUARD CONFIG
====================================
*/

// GuardConfig is the redirect table used by the access guard.
type GuardConfig struct {
	SignInRoute string            `toml:"sign_in_route"`
	Landing     map[string]string `toml:"landing"`
}

/*
====================================
AUDIT / METRICS / LOG CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool `toml:"enabled"`
	BufferSize int  `toml:"buffer_size"`
	DropIfFull bool `toml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `toml:"enabled"`
	EnableLatencyHistograms bool `toml:"enable_latency_histograms"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DefaultConfig returns a config that works out of the box against a local
// authority with a SQLite store under the user's home directory.
func DefaultConfig() Config {
	return Config{
		Store: StoreConfig{
			Backend:   StoreBackendSQLite,
			Path:      defaultStorePath(),
			KeyPrefix: "goSession",
		},
		Authority: AuthorityConfig{
			BaseURL:     "http://localhost:8080",
			VerifyPath:  "/auth/verify-token",
			LogoutPath:  "/auth/logout",
			ProfilePath: "/parent/profile",
			Timeout:     30 * time.Second,
		},
		Guard: GuardConfig{
			SignInRoute: "/auth/sign-in",
			Landing: map[string]string{
				string(session.RoleParent): "/parent/home",
				string(session.RoleStaff):  "/staff/home",
			},
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 64,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "session.db"
	}
	return filepath.Join(home, ".gosession", "session.db")
}

// Validate rejects configurations the composition root cannot build.
func (c Config) Validate() error {
	switch c.Store.Backend {
	case StoreBackendSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path required for sqlite backend")
		}
	case StoreBackendRedis:
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return errors.New("store.redis_addr required for redis backend")
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}
	if strings.ContainsAny(c.Store.KeyPrefix, " \t\n") {
		return errors.New("store.key_prefix must not contain whitespace")
	}

	u, err := url.Parse(c.Authority.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("authority.base_url must be an absolute http(s) URL, got %q", c.Authority.BaseURL)
	}
	for name, p := range map[string]string{
		"verify_path":  c.Authority.VerifyPath,
		"logout_path":  c.Authority.LogoutPath,
		"profile_path": c.Authority.ProfilePath,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("authority.%s must start with '/'", name)
		}
	}
	if c.Authority.Timeout < 0 {
		return errors.New("authority.timeout must not be negative")
	}

	if !strings.HasPrefix(c.Guard.SignInRoute, "/") {
		return errors.New("guard.sign_in_route must start with '/'")
	}
	for role, route := range c.Guard.Landing {
		if _, err := session.ParseRole(role); err != nil {
			return fmt.Errorf("guard.landing: unknown role %q", role)
		}
		if !strings.HasPrefix(route, "/") {
			return fmt.Errorf("guard.landing.%s must start with '/'", role)
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit.buffer_size must be > 0 when audit is enabled")
	}

	switch strings.ToLower(c.Log.Format) {
	case "", "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// LoadConfig reads a TOML file over [DefaultConfig], applies GOSESSION_*
// environment overrides, and validates the result. A missing file is not an
// error: defaults plus environment are used.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("decode config %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("stat config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("GOSESSION_STORE_BACKEND", &c.Store.Backend)
	str("GOSESSION_STORE_PATH", &c.Store.Path)
	str("GOSESSION_REDIS_ADDR", &c.Store.RedisAddr)
	str("GOSESSION_KEY_PREFIX", &c.Store.KeyPrefix)
	str("GOSESSION_AUTHORITY_URL", &c.Authority.BaseURL)
	str("GOSESSION_LOG_LEVEL", &c.Log.Level)
	str("GOSESSION_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("GOSESSION_AUTHORITY_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GOSESSION_AUTHORITY_TIMEOUT: %w", err)
		}
		c.Authority.Timeout = d
	}
	if v, ok := lookup("GOSESSION_METRICS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("GOSESSION_METRICS: %w", err)
		}
		c.Metrics.Enabled = b
	}
	return nil
}

// LandingRoutes converts the string-keyed landing table into role keys.
// Entries with unknown roles are skipped; Validate reports them.
func (g GuardConfig) LandingRoutes() map[session.Role]string {
	out := make(map[session.Role]string, len(g.Landing))
	for k, v := range g.Landing {
		role, err := session.ParseRole(k)
		if err != nil {
			continue
		}
		out[role] = v
	}
	return out
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Guard.Landing != nil {
		out.Guard.Landing = make(map[string]string, len(cfg.Guard.Landing))
		for k, v := range cfg.Guard.Landing {
			out.Guard.Landing[k] = v
		}
	}
	return out
}
