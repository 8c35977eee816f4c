package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервиса алертов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Discord struct {
		Token string `envconfig:"DISCORD_TOKEN"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Ticks struct {
		MapChange    time.Duration `envconfig:"MAP_CHANGE_INTERVAL" default:"45s"`
		RoundResults time.Duration `envconfig:"ROUND_RESULTS_INTERVAL" default:"60s"`
		Watchlist    time.Duration `envconfig:"WATCHLIST_INTERVAL" default:"45s"`
		Digest       time.Duration `envconfig:"DIGEST_INTERVAL" default:"5m"`
	} `envconfig:""`

	Limits struct {
		ServerPoll      int           `envconfig:"SERVER_POLL_LIMIT" default:"500"`
		WatchCooldown   time.Duration `envconfig:"WATCH_COOLDOWN" default:"15m"`
		DeliveryPerSec  float64       `envconfig:"DELIVERY_RATE" default:"5"`
		DeliveryBurst   int           `envconfig:"DELIVERY_BURST" default:"10"`
		RoundTopPlayers int           `envconfig:"ROUND_TOP_PLAYERS" default:"3"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения, подхватывая .env, если он есть.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
