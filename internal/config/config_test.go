package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefault(t *testing.T) {
	c := Default()
	require.Equal(t, "dev", c.App.Env)
	require.Equal(t, ":8085", c.Server.Addr)
	require.Equal(t, "file", c.Prefs.Kind)
	require.Equal(t, "http://localhost:8085/__/auth/links", c.Emulator.LinkBaseURL)
	require.Equal(t, 15*time.Minute, c.Emulator.LinkTTL)
	require.Equal(t, 5*time.Minute, c.Emulator.RecentLoginWindow)
	require.Equal(t, "memory", c.Emulator.Store.Kind)
	require.NotEmpty(t, c.Emulator.Platform.Subject)
	require.NoError(t, c.Validate())
}

func TestLoad_FileAndRelativePrefsPath(t *testing.T) {
	p := writeYAML(t, `
app:
  app_env: test
server:
  addr: 127.0.0.1:9000
prefs:
  kind: file
  path: state/prefs.yaml
emulator:
  link_ttl: 2m
  recent_login_window: 30s
listener:
  initial_backoff: 50ms
  max_backoff: 1s
session:
  sign_out_on_launch: true
`)
	c, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "test", c.App.Env)
	require.Equal(t, filepath.Join(filepath.Dir(p), "state", "prefs.yaml"), c.Prefs.Path)
	require.Equal(t, "http://127.0.0.1:9000/__/auth/links", c.Emulator.LinkBaseURL)
	require.Equal(t, 2*time.Minute, c.Emulator.LinkTTL)
	require.Equal(t, 30*time.Second, c.Emulator.RecentLoginWindow)
	require.Equal(t, 50*time.Millisecond, c.Listener.InitialBackoff)
	require.True(t, c.Session.SignOutOnLaunch)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PREFS_KIND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6380")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("EMULATOR_LINK_TTL", "90s")
	t.Setenv("SESSION_SIGN_OUT_ON_LAUNCH", "true")
	t.Setenv("SERVER_ADDR", ":7000")

	c, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "redis", c.Prefs.Kind)
	require.Equal(t, "localhost:6380", c.Prefs.Redis.Addr)
	require.Equal(t, 3, c.Prefs.Redis.DB)
	require.Equal(t, 90*time.Second, c.Emulator.LinkTTL)
	require.True(t, c.Session.SignOutOnLaunch)
	require.Equal(t, "http://localhost:7000/__/auth/links", c.Emulator.LinkBaseURL)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"unknown env":          func(c *Config) { c.App.Env = "staging" },
		"redis without addr":   func(c *Config) { c.Prefs.Kind = "redis" },
		"unknown prefs":        func(c *Config) { c.Prefs.Kind = "etcd" },
		"postgres without dsn": func(c *Config) { c.Emulator.Store.Kind = "postgres" },
		"prod short secret":    func(c *Config) { c.App.Env = "prod" },
		"smtp without host":    func(c *Config) { c.SMTP.Enabled = true },
		"bad tls":              func(c *Config) { c.SMTP.TLS = "maybe" },
		"backoff order":        func(c *Config) { c.Listener.MaxBackoff = time.Millisecond },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := Default()
			mutate(c)
			require.Error(t, c.Validate())
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = Load(writeYAML(t, "app: [unclosed"))
	require.Error(t, err)

	_, err = Load(writeYAML(t, "prefs:\n  kind: etcd\n"))
	require.Error(t, err)
}
