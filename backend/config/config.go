package config

import (
	"errors"
	"io/fs"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

var (
	ErrEnv      = errors.New("unable to read environment")
	ErrFlags    = errors.New("unable to parse command line arguments")
	ErrValidate = errors.New("invalid configuration")
)

var defaultRooms = []string{"General", "Lets discuss DSA!", "P for Python", "Readers Chat", "C Group"}

// Config holds app settings. Environment (and .env file) provides defaults,
// command line flags override them.
type Config struct {
	APIListenAddr       string   `env:"API_LISTEN_ADDR,default=:8080" validate:"required"`
	WSListenAddr        string   `env:"WS_LISTEN_ADDR,default=:8888" validate:"required"`
	LogLevel            string   `env:"LOG_LEVEL,default=info" validate:"oneof=trace debug info warn error fatal panic disabled"`
	Rooms               []string `validate:"dive,required,max=128"`
	RoomsEnv            string   `env:"CHAT_ROOMS"`
	Announce            bool     `env:"ANNOUNCE,default=true"`
	NotifyUnknownTarget bool     `env:"NOTIFY_UNKNOWN_TARGET,default=false"`
	OutboxSize          int      `env:"OUTBOX_SIZE,default=256" validate:"min=1"`
	MaxMessageSize      int      `env:"MAX_MESSAGE_SIZE,default=9000" validate:"min=64"`
	AllowedOrigins      []string
	AllowedOriginsEnv   string `env:"CORS_ORIGINS,default=*"`
	StaticDir           string `env:"STATIC_DIR"`
}

// Load reads config from .env, environment and args, in that order of precedence growth.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Join(ErrEnv, err)
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, errors.Join(ErrEnv, err)
	}
	rooms := defaultRooms
	if cfg.RoomsEnv != "" {
		rooms = splitList(cfg.RoomsEnv)
	}

	flags := pflag.NewFlagSet("main", pflag.ContinueOnError)
	flags.StringVarP(&cfg.APIListenAddr, "api-listen-addr", "a", cfg.APIListenAddr, "api listen address")
	flags.StringVarP(&cfg.WSListenAddr, "ws-listen-addr", "w", cfg.WSListenAddr, "websocket chat listen address")
	flags.StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel, "log level")
	flags.StringSliceVarP(&cfg.Rooms, "rooms", "r", rooms, "advertised chat rooms")
	flags.BoolVar(&cfg.Announce, "announce", cfg.Announce, "send join and leave notices to rooms")
	flags.BoolVar(&cfg.NotifyUnknownTarget, "notify-unknown-target", cfg.NotifyUnknownTarget,
		"tell sender when private message target is not connected")
	flags.IntVar(&cfg.OutboxSize, "outbox-size", cfg.OutboxSize, "per connection outbound event buffer")
	flags.IntVar(&cfg.MaxMessageSize, "max-message-size", cfg.MaxMessageSize, "max inbound websocket message size")
	flags.StringSliceVar(&cfg.AllowedOrigins, "allowed-origins", splitList(cfg.AllowedOriginsEnv), "allowed websocket origins")
	flags.StringVar(&cfg.StaticDir, "static-dir", cfg.StaticDir, "serve static client files from this dir")
	if err := flags.Parse(args); err != nil {
		return nil, errors.Join(ErrFlags, err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, errors.Join(ErrValidate, err)
	}
	return &cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
