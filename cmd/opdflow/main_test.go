package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/opdflow/internal/config"
	"github.com/ehr/opdflow/internal/platform/auth"
	"github.com/ehr/opdflow/internal/platform/events"
)

func TestNewLogger_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&config.Config{Env: "production"}, &buf)
	logger.Info().Msg("hello")
	out := buf.String()
	if !strings.Contains(out, `"service":"opdflow"`) || !strings.Contains(out, `"message":"hello"`) {
		t.Errorf("expected JSON log line, got %q", out)
	}
}

func TestNewLogger_ConsoleInDev(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&config.Config{Env: "development"}, &buf)
	logger.Info().Msg("hello")
	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("expected console output in development, got %q", buf.String())
	}
}

func TestAuthMiddleware_Development(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	var user string
	handler := func(c echo.Context) error {
		user = auth.UserIDFromContext(c.Request().Context())
		return nil
	}
	mw := authMiddleware(&config.Config{Env: "development"})
	if err := mw(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user != "dev-user" {
		t.Errorf("expected dev-user, got %q", user)
	}
}

func TestAuthMiddleware_ExternalRequiresToken(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	mw := authMiddleware(&config.Config{Env: "production", AuthSigningKey: "k"})
	err := mw(func(echo.Context) error { return nil })(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestRateLimitConfig(t *testing.T) {
	rl := rateLimitConfig(&config.Config{})
	if rl.RequestsPerSecond != 100 || rl.BurstSize != 200 {
		t.Errorf("expected defaults, got %+v", rl)
	}
	rl = rateLimitConfig(&config.Config{RateLimitRPS: 5, RateLimitBurst: 10})
	if rl.RequestsPerSecond != 5 || rl.BurstSize != 10 {
		t.Errorf("expected configured values, got %+v", rl)
	}
}

func TestNewPublisher(t *testing.T) {
	pub, err := newPublisher(&config.Config{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := pub.(*events.LogPublisher); !ok {
		t.Errorf("expected log publisher without brokers, got %T", pub)
	}

	pub, err = newPublisher(&config.Config{KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "t"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := pub.(*events.KafkaPublisher); !ok {
		t.Errorf("expected kafka publisher, got %T", pub)
	}
	_ = pub.Close()
}

func TestMigrateSubcommands(t *testing.T) {
	sub := map[string]bool{}
	for _, c := range migrateCmd().Commands() {
		sub[c.Name()] = true
	}
	if !sub["up"] || !sub["status"] {
		t.Errorf("expected migrate up and status, got %v", sub)
	}
}

func TestTenantCreate_RequiresName(t *testing.T) {
	cmd := tenantCmd()
	cmd.SetArgs([]string{"create"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--name is required") {
		t.Fatalf("expected --name error, got %v", err)
	}
}
