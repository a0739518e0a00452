package global

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig is the gateway's full runtime configuration, loaded from the
// environment. Only ADDR and JWT_SECRET are mandatory; everything else
// has a workable default or is optional wiring (redis cache, NATS feed).
type AppConfig struct {
	Addr      string `envconfig:"ADDR" default:":8080"`
	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	NodeID    int64  `envconfig:"NODE_ID" default:"1"`

	// Store selection: "memory" (default, dev/tests), "postgres", "mongo".
	StoreDriver string `envconfig:"STORE_DRIVER" default:"memory"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	MongoURI    string `envconfig:"MONGO_URI"`
	MongoDB     string `envconfig:"MONGO_DB" default:"chatgate"`

	// Optional recent-history cache.
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Optional persisted-message event feed.
	NatsURL     string `envconfig:"NATS_URL"`
	NatsSubject string `envconfig:"NATS_SUBJECT" default:"chat.message.persisted"`

	PingInterval  time.Duration `envconfig:"PING_INTERVAL" default:"30s"`
	StoreTimeout  time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	SendQueueSize int           `envconfig:"SEND_QUEUE_SIZE" default:"64"`
	FanoutWorkers int           `envconfig:"FANOUT_WORKERS" default:"1"`
	FanoutQueue   int           `envconfig:"FANOUT_QUEUE" default:"256"`
	HistoryLimit  int           `envconfig:"HISTORY_LIMIT" default:"50"`
}

// Load reads the config from the environment and normalizes it.
func Load() (*AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("chatgate", &cfg); err != nil {
		return nil, err
	}
	cfg.norm()
	return &cfg, nil
}

func (c *AppConfig) norm() {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 5 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	if c.FanoutWorkers <= 0 {
		c.FanoutWorkers = 1
	}
	if c.FanoutQueue <= 0 {
		c.FanoutQueue = 256
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
}
