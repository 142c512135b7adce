package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load(nil)
	req.NoError(err)

	req.Equal(":8080", cfg.APIListenAddr)
	req.Equal(":8888", cfg.WSListenAddr)
	req.Equal("info", cfg.LogLevel)
	req.Equal(defaultRooms, cfg.Rooms)
	req.True(cfg.Announce)
	req.False(cfg.NotifyUnknownTarget)
	req.Equal(256, cfg.OutboxSize)
	req.Equal(9000, cfg.MaxMessageSize)
	req.Equal([]string{"*"}, cfg.AllowedOrigins)
}

func TestLoad_Env(t *testing.T) {
	req := require.New(t)
	t.Setenv("WS_LISTEN_ADDR", ":9999")
	t.Setenv("CHAT_ROOMS", "General, Gophers ,")
	t.Setenv("ANNOUNCE", "false")
	t.Setenv("CORS_ORIGINS", "http://a.example,http://b.example")

	cfg, err := Load(nil)
	req.NoError(err)

	req.Equal(":9999", cfg.WSListenAddr)
	req.Equal([]string{"General", "Gophers"}, cfg.Rooms)
	req.False(cfg.Announce)
	req.Equal([]string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	req := require.New(t)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load([]string{"-l", "debug", "--notify-unknown-target", "--rooms", "One,Two", "--outbox-size", "8"})
	req.NoError(err)

	req.Equal("debug", cfg.LogLevel)
	req.True(cfg.NotifyUnknownTarget)
	req.Equal([]string{"One", "Two"}, cfg.Rooms)
	req.Equal(8, cfg.OutboxSize)
}

func TestLoad_Invalid(t *testing.T) {
	req := require.New(t)

	_, err := Load([]string{"--log-level", "loud"})
	req.ErrorIs(err, ErrValidate)

	_, err = Load([]string{"--outbox-size", "0"})
	req.ErrorIs(err, ErrValidate)

	_, err = Load([]string{"--no-such-flag"})
	req.ErrorIs(err, ErrFlags)
}
