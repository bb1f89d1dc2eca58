package shared

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string        `envconfig:"APP_ENV" default:"prod"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr    string        `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr string        `envconfig:"METRICS_ADDR"`
	MySQLDSN    string        `envconfig:"MYSQL_DSN" default:"root:root@tcp(localhost:3306)/rewardo?parseTime=true&charset=utf8mb4,utf8&loc=UTC"`
	RedisAddr   string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPass   string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB     int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL    time.Duration `envconfig:"CACHE_TTL" default:"15m"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`

	StreamMaxClients int `envconfig:"STREAM_MAX_CLIENTS" default:"100"`

	VSBaseURL    string  `envconfig:"VS_BASE_URL" default:"https://www.virginatlantic.com/travelplus/reward-seat-checker-api/"`
	VSRPS        float64 `envconfig:"VS_RPS" default:"1"`
	RoutesAPIURL string  `envconfig:"ROUTES_API_URL" default:"https://api.rewardo.travel/routes-api/v1/api/airlines/vs/routes"`

	// embedded so their keys are not prefixed
	CrawlConfig
	RoutesConfig
}

type CrawlConfig struct {
	InitialDelay     time.Duration `envconfig:"CRAWL_INITIAL_DELAY" default:"30s"`
	Interval         time.Duration `envconfig:"CRAWL_INTERVAL" default:"1h"`
	MonthDelay       time.Duration `envconfig:"CRAWL_MONTH_DELAY" default:"5s"`
	DestinationDelay time.Duration `envconfig:"CRAWL_DESTINATION_DELAY" default:"20s"`
	Months           int           `envconfig:"CRAWL_MONTHS" default:"12"`
}

type RoutesConfig struct {
	RoutesInitialDelay time.Duration `envconfig:"ROUTES_INITIAL_DELAY" default:"5s"`
	RoutesRefresh      time.Duration `envconfig:"ROUTES_REFRESH" default:"1h"`
}

// Load reads an optional .env file, then the process environment. Invalid
// values are fatal.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		log.Info().Msg("loaded .env")
	}
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if c.CrawlConfig.Months <= 0 {
		log.Warn().Int("months", c.CrawlConfig.Months).Msg("CRAWL_MONTHS must be positive, using 12")
		c.CrawlConfig.Months = 12
	}
	if c.StreamMaxClients <= 0 {
		c.StreamMaxClients = 100
	}
	return c
}
