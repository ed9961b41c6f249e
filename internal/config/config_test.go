package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agentgate.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	path := writeConfig(t, `
[agent]
command = "python app.py"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != DefaultListen {
		t.Fatalf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Agent.InternalPort != DefaultInternalPort {
		t.Fatalf("internal_port = %d", cfg.Agent.InternalPort)
	}
	if cfg.Agent.ReadyTimeout != DefaultReadyTimeout {
		t.Fatalf("ready_timeout = %v", cfg.Agent.ReadyTimeout)
	}
	if len(cfg.Agent.ReadyMarkers) == 0 {
		t.Fatal("default ready markers missing")
	}
	if cfg.Routes.HealthPath != "/health" || cfg.Routes.StatusPath != "/api/status" {
		t.Fatalf("routes = %+v", cfg.Routes)
	}
	if cfg.PortEnvVar != "PORT" || cfg.PlatformEnvVar != "PLATFORM_ENV" {
		t.Fatalf("env vars = %q %q", cfg.PortEnvVar, cfg.PlatformEnvVar)
	}
	if cfg.ProxyTarget() != "127.0.0.1:8000" {
		t.Fatalf("proxy target = %q", cfg.ProxyTarget())
	}
}

func TestLoadFullFile(t *testing.T) {
	t.Setenv("GATEWAY_PORT", "")
	path := writeConfig(t, `
port_env_var = "GATEWAY_PORT"
platform_env_var = "RAILWAY_ENVIRONMENT"

[server]
listen = ":9090"

[agent]
name = "assistant-ui"
init_command = "python manage.py migrate"
command = "python app.py --port $PORT"
workdir = "/srv/app"
env = ["PYTHONUNBUFFERED=1"]
internal_port = 8501
port_env_var = "APP_PORT"
ready_markers = ["Uvicorn running"]
ready_timeout = "90s"
start_delay = "2s"
stop_wait = "5s"

[proxy]
timeout = "45s"
probe_enabled = true
probe_timeout = "250ms"

[auth]
enabled = true
username = "admin"
password = "s3cret"

[routes]
health_path = "/healthz"
status_path = "/statusz"
root_status = true

[history]
enabled = true
dsn = "sqlite://:memory:"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":9090" {
		t.Fatalf("listen = %q", cfg.Server.Listen)
	}
	if cfg.Agent.Name != "assistant-ui" || cfg.Agent.InternalPort != 8501 {
		t.Fatalf("agent = %+v", cfg.Agent)
	}
	if cfg.Agent.ReadyTimeout != 90*time.Second || cfg.Agent.StartDelay != 2*time.Second {
		t.Fatalf("durations = %v %v", cfg.Agent.ReadyTimeout, cfg.Agent.StartDelay)
	}
	if len(cfg.Agent.ReadyMarkers) != 1 || cfg.Agent.ReadyMarkers[0] != "Uvicorn running" {
		t.Fatalf("markers = %v", cfg.Agent.ReadyMarkers)
	}
	if !cfg.Proxy.ProbeEnabled || cfg.Proxy.ProbeTimeout != 250*time.Millisecond {
		t.Fatalf("proxy = %+v", cfg.Proxy)
	}
	if !cfg.Auth.Enabled || cfg.Auth.Username != "admin" {
		t.Fatalf("auth = %+v", cfg.Auth)
	}
	if !cfg.Routes.RootStatus || cfg.Routes.HealthPath != "/healthz" {
		t.Fatalf("routes = %+v", cfg.Routes)
	}
	if cfg.History == nil || !cfg.History.Enabled || cfg.History.DSN != "sqlite://:memory:" {
		t.Fatalf("history = %+v", cfg.History)
	}
	if cfg.Agent.PortEnvVar != "APP_PORT" {
		t.Fatalf("agent port env var = %q", cfg.Agent.PortEnvVar)
	}
	if cfg.ProxyTarget() != "127.0.0.1:8501" {
		t.Fatalf("proxy target = %q", cfg.ProxyTarget())
	}
}

func TestPortEnvOverridesListen(t *testing.T) {
	t.Setenv("PORT", "7777")
	path := writeConfig(t, `
[server]
listen = ":9090"

[agent]
command = "python app.py"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != ":7777" {
		t.Fatalf("PORT env must win over the file, got %q", cfg.Server.Listen)
	}
}

func TestPortEnvIgnoredWhenInvalid(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	path := writeConfig(t, `
[agent]
command = "python app.py"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Listen != DefaultListen {
		t.Fatalf("listen = %q", cfg.Server.Listen)
	}
}

func TestPlatformActive(t *testing.T) {
	cfg := &Config{PlatformEnvVar: "PLATFORM_ENV"}
	t.Setenv("PLATFORM_ENV", "")
	if cfg.PlatformActive() {
		t.Fatal("unset flag must not activate platform mode")
	}
	t.Setenv("PLATFORM_ENV", "production")
	if cfg.PlatformActive() {
		t.Fatal("only the literal value \"true\" activates platform mode")
	}
	t.Setenv("PLATFORM_ENV", "true")
	if !cfg.PlatformActive() {
		t.Fatal("expected platform mode active")
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing command", `
[agent]
name = "x"
`},
		{"port out of range", `
[agent]
command = "run"
internal_port = 70000
`},
		{"port collision", `
[server]
listen = ":8000"

[agent]
command = "run"
internal_port = 8000
`},
		{"bad health path", `
[agent]
command = "run"

[routes]
health_path = "health"
`},
		{"auth without creds", `
[agent]
command = "run"

[auth]
enabled = true
`},
		{"history without dsn", `
[agent]
command = "run"

[history]
enabled = true
`},
		{"duplicate route paths", `
[agent]
command = "run"

[routes]
health_path = "/api/status"
status_path = "/api/status"
`},
		{"root alias over root route", `
[agent]
command = "run"

[routes]
status_path = "/"
root_status = true
`},
	}
	t.Setenv("PORT", "")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
