package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(PathEnv, "")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != "8080" || c.Timer.TickInterval != time.Second || c.Sessions.IdleTTL != 2*time.Hour {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.NATS.Stream != "CLASSROOM_ACTIVITY" || c.Database.Database != "classroom" {
		t.Fatalf("unexpected defaults %+v", c)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classroom.yaml")
	yaml := `
server:
  port: "9000"
  allowed_origins: ["https://school.example"]
sessions:
  idle_ttl: 30m
  require_known_code: true
nats:
  enabled: true
  url: nats://queue:4222
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(PathEnv, path)
	t.Setenv("PORT", "9100")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRANSLATE_MAX_IN_FLIGHT", "4")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != "9100" {
		t.Fatalf("env should win over file, got %q", c.Server.Port)
	}
	if len(c.Server.AllowedOrigins) != 2 || c.Server.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins %v", c.Server.AllowedOrigins)
	}
	if c.Sessions.IdleTTL != 30*time.Minute || !c.Sessions.RequireKnownCode {
		t.Fatalf("file values not applied: %+v", c.Sessions)
	}
	if !c.NATS.Enabled || c.NATS.URL != "nats://queue:4222" || c.NATS.Stream != "CLASSROOM_ACTIVITY" {
		t.Fatalf("unexpected nats config %+v", c.NATS)
	}
	if c.Log.Level != "debug" {
		t.Fatalf("unexpected log level %q", c.Log.Level)
	}
	if c.Translate.MaxInFlight != 4 {
		t.Fatalf("unexpected translate max in flight %d", c.Translate.MaxInFlight)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv(PathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	c := Default()
	c.Timer.TickInterval = 0
	c.Log.Level = "loud"
	if err := c.Validate(); err == nil {
		t.Fatal("expected validation errors")
	}
}

func TestMalformedEnvKeepsDefault(t *testing.T) {
	t.Setenv(PathEnv, "")
	t.Setenv("TIMER_TICK_INTERVAL", "soon")
	t.Setenv("WS_SEND_BUFFER", "many")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Timer.TickInterval != time.Second || c.WebSocket.SendBuffer != 256 {
		t.Fatalf("malformed env overrode defaults: %+v", c)
	}
}
