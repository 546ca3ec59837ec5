package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PARLEY"

var validate = validator.New()

type Config struct {
	Mode         string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	StaticPath   string        `mapstructure:"static_path"`
	ReadLimit    int64         `mapstructure:"read_limit" validate:"min=1024"`
	PingPeriod   time.Duration `mapstructure:"ping_period" validate:"min=1s"`
	Secret       string        `mapstructure:"secret" validate:"required"`
	SendBuffer   int           `mapstructure:"send_buffer" validate:"min=1"`
	SlowConsumer string        `mapstructure:"slow_consumer" validate:"oneof=drop kick"`
	RateLimit    int           `mapstructure:"rate_limit" validate:"min=0"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
	LogLevel     string        `mapstructure:"log_level"`
}

func setServerDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "parley-dev-secret")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("slow_consumer", "drop")
	v.SetDefault("rate_limit", 100)
	v.SetDefault("rate_interval", "1s")
	v.SetDefault("log_level", "info")
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	setServerDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

// ClientConfig drives the headless chat client.
type ClientConfig struct {
	Server            string        `mapstructure:"server" validate:"required,url"`
	Username          string        `mapstructure:"username" validate:"required,max=36"`
	Room              string        `mapstructure:"room" validate:"required"`
	Role              string        `mapstructure:"role" validate:"omitempty,oneof=user admin"`
	ReconnectAttempts int           `mapstructure:"reconnect_attempts" validate:"min=0"`
	ReconnectBase     time.Duration `mapstructure:"reconnect_base"`
	ReconnectMax      time.Duration `mapstructure:"reconnect_max"`
	STUNURLs          []string      `mapstructure:"stun_urls"`
	TypingIdle        time.Duration `mapstructure:"typing_idle"`
	LogLevel          string        `mapstructure:"log_level"`
}

// LoadClient parses command-line args; PARLEY_* variables fill in unset flags.
func LoadClient(args []string) (*ClientConfig, error) {
	fs := pflag.NewFlagSet("chat", pflag.ContinueOnError)
	fs.String("server", "ws://localhost:8080/ws", "realtime endpoint")
	fs.String("username", "", "display name")
	fs.String("room", "", "room code to join")
	fs.String("role", "user", "user or admin")
	fs.Int("reconnect_attempts", 3, "reconnect attempts after an unexpected close")
	fs.Duration("reconnect_base", time.Second, "first reconnect delay")
	fs.Duration("reconnect_max", 10*time.Second, "reconnect delay cap")
	fs.StringSlice("stun_urls", []string{"stun:stun.l.google.com:19302"}, "ICE servers for peer channels")
	fs.Duration("typing_idle", time.Second, "idle time before typing_stop")
	fs.String("log_level", "info", "zerolog level")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse client config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	if cfg.ReconnectMax < cfg.ReconnectBase {
		return nil, errors.New("invalid client config: reconnect_max below reconnect_base")
	}
	return &cfg, nil
}
