package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | test | prod
		Env     string `yaml:"app_env"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	// Preferencias del dispositivo (último email usado).
	Prefs struct {
		Kind  string `yaml:"kind"` // file | redis | memory
		Path  string `yaml:"path"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"prefs"`

	// Identity provider local.
	Emulator struct {
		Issuer            string        `yaml:"issuer"`
		Audience          string        `yaml:"audience"`
		SigningSecret     string        `yaml:"signing_secret"`
		LinkBaseURL       string        `yaml:"link_base_url"`
		LinkTTL           time.Duration `yaml:"link_ttl"`
		RecentLoginWindow time.Duration `yaml:"recent_login_window"`
		Store             struct {
			Kind     string `yaml:"kind"` // memory | postgres
			DSN      string `yaml:"dsn"`
			MaxConns int    `yaml:"max_conns"`
		} `yaml:"store"`
		// Usuario que responde al pedido de credencial de plataforma.
		Platform struct {
			Subject   string `yaml:"subject"`
			Email     string `yaml:"email"`
			GivenName string `yaml:"given_name"`
		} `yaml:"platform"`
	} `yaml:"emulator"`

	SMTP struct {
		Enabled            bool   `yaml:"enabled"`
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"` // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	} `yaml:"smtp"`

	Listener struct {
		InitialBackoff time.Duration `yaml:"initial_backoff"`
		MaxBackoff     time.Duration `yaml:"max_backoff"`
	} `yaml:"listener"`

	Session struct {
		SignOutOnLaunch bool `yaml:"sign_out_on_launch"`
	} `yaml:"session"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`

	Farewell struct {
		// Manda la despedida por mail además del log.
		Email bool `yaml:"email"`
	} `yaml:"farewell"`
}

// Load lee el YAML en path (vacío = sólo defaults), aplica defaults,
// overrides por env y valida.
func Load(path string) (*Config, error) {
	var c Config
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	c.applyDefaults()
	c.applyEnvOverrides()
	c.deriveLinkBaseURL()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	// Normalizar ruta de prefs (si relativa) respecto al directorio del YAML
	if p := strings.TrimSpace(c.Prefs.Path); p != "" && path != "" && !filepath.IsAbs(p) {
		c.Prefs.Path = filepath.Clean(filepath.Join(filepath.Dir(path), p))
	}
	return &c, nil
}

// Default devuelve la configuración por defecto (sin archivo ni env).
func Default() *Config {
	var c Config
	c.applyDefaults()
	c.deriveLinkBaseURL()
	return &c
}

// deriveLinkBaseURL apunta los links del emulador al propio host si no se
// configuró otra cosa.
func (c *Config) deriveLinkBaseURL() {
	if c.Emulator.LinkBaseURL != "" {
		return
	}
	host := c.Server.Addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	c.Emulator.LinkBaseURL = "http://" + host + "/__/auth/links"
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8085"
	}
	if c.Prefs.Kind == "" {
		c.Prefs.Kind = "file"
	}
	if c.Prefs.Kind == "file" && c.Prefs.Path == "" {
		c.Prefs.Path = "./data/prefs.yaml"
	}
	if c.Prefs.Redis.Prefix == "" {
		c.Prefs.Redis.Prefix = "hellojohn-session"
	}
	if c.Emulator.LinkTTL == 0 {
		c.Emulator.LinkTTL = 15 * time.Minute
	}
	if c.Emulator.RecentLoginWindow == 0 {
		c.Emulator.RecentLoginWindow = 5 * time.Minute
	}
	if c.Emulator.Store.Kind == "" {
		c.Emulator.Store.Kind = "memory"
	}
	if c.Emulator.Platform.Subject == "" {
		c.Emulator.Platform.Subject = "000000.dev.apple"
		if c.Emulator.Platform.Email == "" {
			c.Emulator.Platform.Email = "julie.appleseed@example.com"
		}
		if c.Emulator.Platform.GivenName == "" {
			c.Emulator.Platform.GivenName = "Julie"
		}
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.Listener.InitialBackoff == 0 {
		c.Listener.InitialBackoff = 200 * time.Millisecond
	}
	if c.Listener.MaxBackoff == 0 {
		c.Listener.MaxBackoff = 30 * time.Second
	}
}

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}

func (c *Config) applyEnvOverrides() {
	// App / log
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// Prefs
	if v, ok := getEnvStr("PREFS_KIND"); ok {
		c.Prefs.Kind = v
	}
	if v, ok := getEnvStr("PREFS_PATH"); ok {
		c.Prefs.Path = v
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Prefs.Redis.Addr = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Prefs.Redis.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Prefs.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Prefs.Redis.Prefix = v
	}

	// Emulator
	if v, ok := getEnvStr("EMULATOR_ISSUER"); ok {
		c.Emulator.Issuer = v
	}
	if v, ok := getEnvStr("EMULATOR_AUDIENCE"); ok {
		c.Emulator.Audience = v
	}
	if v, ok := getEnvStr("EMULATOR_SIGNING_SECRET"); ok {
		c.Emulator.SigningSecret = v
	}
	if v, ok := getEnvStr("EMULATOR_LINK_BASE_URL"); ok {
		c.Emulator.LinkBaseURL = v
	}
	if v, ok := getEnvDur("EMULATOR_LINK_TTL"); ok {
		c.Emulator.LinkTTL = v
	}
	if v, ok := getEnvDur("EMULATOR_RECENT_LOGIN_WINDOW"); ok {
		c.Emulator.RecentLoginWindow = v
	}
	if v, ok := getEnvStr("EMULATOR_STORE_KIND"); ok {
		c.Emulator.Store.Kind = v
	}
	if v, ok := getEnvStr("EMULATOR_PG_DSN"); ok {
		c.Emulator.Store.DSN = v
	}
	if v, ok := getEnvInt("EMULATOR_PG_MAX_CONNS"); ok {
		c.Emulator.Store.MaxConns = v
	}
	if v, ok := getEnvStr("EMULATOR_PLATFORM_SUBJECT"); ok {
		c.Emulator.Platform.Subject = v
	}
	if v, ok := getEnvStr("EMULATOR_PLATFORM_EMAIL"); ok {
		c.Emulator.Platform.Email = v
	}
	if v, ok := getEnvStr("EMULATOR_PLATFORM_GIVEN_NAME"); ok {
		c.Emulator.Platform.GivenName = v
	}

	// SMTP
	if v, ok := getEnvBool("SMTP_ENABLED"); ok {
		c.SMTP.Enabled = v
	}
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = v
	}
	if v, ok := getEnvBool("SMTP_INSECURE_SKIP_VERIFY"); ok {
		c.SMTP.InsecureSkipVerify = v
	}

	// Listener / session / metrics
	if v, ok := getEnvDur("LISTENER_INITIAL_BACKOFF"); ok {
		c.Listener.InitialBackoff = v
	}
	if v, ok := getEnvDur("LISTENER_MAX_BACKOFF"); ok {
		c.Listener.MaxBackoff = v
	}
	if v, ok := getEnvBool("SESSION_SIGN_OUT_ON_LAUNCH"); ok {
		c.Session.SignOutOnLaunch = v
	}
	if v, ok := getEnvBool("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v
	}
	if v, ok := getEnvBool("FAREWELL_EMAIL"); ok {
		c.Farewell.Email = v
	}
}

func (c *Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.App.Env) {
	case "dev", "test", "prod":
	default:
		errs = append(errs, fmt.Errorf("app.app_env: unknown env %q", c.App.Env))
	}
	switch c.Prefs.Kind {
	case "file":
		if strings.TrimSpace(c.Prefs.Path) == "" {
			errs = append(errs, errors.New("prefs.path: required for file prefs"))
		}
	case "redis":
		if strings.TrimSpace(c.Prefs.Redis.Addr) == "" {
			errs = append(errs, errors.New("prefs.redis.addr: required for redis prefs"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("prefs.kind: unknown kind %q", c.Prefs.Kind))
	}
	switch c.Emulator.Store.Kind {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Emulator.Store.DSN) == "" {
			errs = append(errs, errors.New("emulator.store.dsn: required for postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("emulator.store.kind: unknown kind %q", c.Emulator.Store.Kind))
	}
	if strings.EqualFold(c.App.Env, "prod") && len(c.Emulator.SigningSecret) < 32 {
		errs = append(errs, errors.New("emulator.signing_secret: at least 32 bytes required in prod"))
	}
	if c.SMTP.Enabled && (c.SMTP.Host == "" || c.SMTP.From == "") {
		errs = append(errs, errors.New("smtp: host and from are required when enabled"))
	}
	switch c.SMTP.TLS {
	case "auto", "starttls", "ssl", "none":
	default:
		errs = append(errs, fmt.Errorf("smtp.tls: unknown mode %q", c.SMTP.TLS))
	}
	if c.Listener.MaxBackoff < c.Listener.InitialBackoff {
		errs = append(errs, errors.New("listener.max_backoff: must be >= initial_backoff"))
	}
	return errors.Join(errs...)
}
