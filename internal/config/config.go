package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

var validate = validator.New()

type Config struct {
	Mode     string `mapstructure:"mode" validate:"oneof=debug release"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	Instance string `mapstructure:"instance"`

	Auth     Auth     `mapstructure:"auth"`
	Store    Store    `mapstructure:"store"`
	Cluster  Cluster  `mapstructure:"cluster"`
	Socket   Socket   `mapstructure:"socket"`
	Presence Presence `mapstructure:"presence"`
	Calls    Calls    `mapstructure:"calls"`
	Typing   Typing   `mapstructure:"typing"`
	Fanout   Fanout   `mapstructure:"fanout"`
}

type Auth struct {
	Mode   string `mapstructure:"mode" validate:"oneof=jwt insecure"`
	Secret string `mapstructure:"secret" validate:"required_if=Mode jwt"`
	Issuer string `mapstructure:"issuer"`
}

type Store struct {
	Driver      string `mapstructure:"driver" validate:"oneof=memory badger postgres"`
	BadgerDir   string `mapstructure:"badger_dir"`
	PostgresDSN string `mapstructure:"postgres_dsn" validate:"required_if=Driver postgres"`
}

// Cluster is single-node when nats_url is empty; peers then defaults to
// just this instance.
type Cluster struct {
	NatsURL string   `mapstructure:"nats_url"`
	Peers   []string `mapstructure:"peers"`
}

type Socket struct {
	SendBuffer   int           `mapstructure:"send_buffer" validate:"min=1"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	WriteWait    time.Duration `mapstructure:"write_wait"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
}

type Presence struct {
	TTL   time.Duration `mapstructure:"ttl" validate:"min=1s"`
	Sweep time.Duration `mapstructure:"sweep"`
}

type Calls struct {
	Capacity int           `mapstructure:"capacity" validate:"min=2"`
	Idle     time.Duration `mapstructure:"idle"`
}

type Typing struct {
	Clear time.Duration `mapstructure:"clear"`
}

type Fanout struct {
	Window     time.Duration `mapstructure:"window" validate:"min=1s"`
	Retries    int           `mapstructure:"retries" validate:"min=1"`
	Backoff    time.Duration `mapstructure:"backoff"`
	MaxPayload int           `mapstructure:"max_payload" validate:"min=1"`
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

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("instance", "")

	v.SetDefault("auth.mode", "insecure")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.badger_dir", "./data/badger")
	v.SetDefault("store.postgres_dsn", "")

	v.SetDefault("cluster.nats_url", "")
	v.SetDefault("cluster.peers", []string{})

	v.SetDefault("socket.send_buffer", 64)
	v.SetDefault("socket.read_limit", 65536)
	v.SetDefault("socket.write_wait", "5s")
	v.SetDefault("socket.pong_wait", "60s")
	v.SetDefault("socket.rate_limit", 120)
	v.SetDefault("socket.rate_interval", "1m")

	v.SetDefault("presence.ttl", "30s")
	v.SetDefault("presence.sweep", "15s")

	v.SetDefault("calls.capacity", 8)
	v.SetDefault("calls.idle", "60s")

	v.SetDefault("typing.clear", "8s")

	v.SetDefault("fanout.window", "2m")
	v.SetDefault("fanout.retries", 3)
	v.SetDefault("fanout.backoff", "50ms")
	v.SetDefault("fanout.max_payload", 16384)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// The reclamation pass must never run finer than half the TTL.
	if cfg.Presence.Sweep < cfg.Presence.TTL/2 {
		cfg.Presence.Sweep = cfg.Presence.TTL / 2
	}

	fmt.Printf("🧩 Mode: %s | Port: %d | Store: %s\n", cfg.Mode, cfg.Port, cfg.Store.Driver)
	return &cfg, nil
}
