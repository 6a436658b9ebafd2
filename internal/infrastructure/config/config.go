package config

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string        `env:"PORT,      default=8080"`
	Env       string        `env:"ENV,       default=development"`
	JWTSecret string        `env:"JWT_SECRET, required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL, default=24h"`
	LogLevel  string        `env:"LOG_LEVEL, default=info"`
	RateLimit string        `env:"RATE_LIMIT, default=100-M"`

	Mongo       MongoConfig
	Redis       RedisConfig
	Circulation CirculationConfig
	Admin       AdminConfig
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=library"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

// CirculationConfig tunes the background collaborators around the ledger.
// OverdueSweepInterval == 0 leaves the overdue sweep off.
// ReconcileInterval == 0 reconciles availability once at startup only.
type CirculationConfig struct {
	ReleaseWorkers       int           `env:"RELEASE_WORKERS,        default=4"`
	OverdueSweepInterval time.Duration `env:"OVERDUE_SWEEP_INTERVAL, default=0s"`
	OverdueSweepBatch    int           `env:"OVERDUE_SWEEP_BATCH,    default=100"`
	ReconcileInterval    time.Duration `env:"RECONCILE_INTERVAL,     default=5m"`
	ReconcileGrace       time.Duration `env:"RECONCILE_GRACE,        default=2m"`
	ReconcileBatch       int           `env:"RECONCILE_BATCH,        default=100"`
}

// AdminConfig seeds the first administrator. Seeding is skipped when Email is empty.
type AdminConfig struct {
	Name     string `env:"ADMIN_NAME, default=Administrator"`
	Email    string `env:"ADMIN_EMAIL"`
	Password string `env:"ADMIN_PASSWORD"`
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Load reads a local .env file when present, then configuration from
// environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	_ = godotenv.Load()
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}
