package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"rewardo/internal/adapters/observability"
	redisad "rewardo/internal/adapters/redis"
	"rewardo/internal/adapters/routesapi"
	"rewardo/internal/adapters/virgin"
	"rewardo/internal/app"
	"rewardo/internal/broadcast"
	"rewardo/internal/domain"
	"rewardo/internal/shared"
	mysqlrepo "rewardo/internal/storage/mysql"
)

// crawler runs a single crawl cycle and exits. Change events are logged
// instead of streamed since nothing subscribes in this process.
func main() {
	cfg := shared.Load()

	// 1) initialize global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("base", cfg.VSBaseURL).
		Int("months", cfg.CrawlConfig.Months).
		Dur("month_delay", cfg.CrawlConfig.MonthDelay).
		Dur("destination_delay", cfg.CrawlConfig.DestinationDelay).
		Msg("crawler starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()

	fetcher, err := virgin.New(cfg.VSBaseURL, cfg.VSRPS, cfg.HTTPTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize seat checker client")
	}

	events := broadcast.New[domain.ChangeEvent](broadcast.DefaultReplay, broadcast.DefaultBuffer)
	go func() {
		for ev := range events.Subscribe(ctx) {
			log.Info().
				Str("origin", ev.Current.Key.Origin).
				Str("destination", ev.Current.Key.Destination).
				Str("departure", ev.Current.Key.Departure.Format(domain.DateLayout)).
				Msg("price change")
		}
	}()

	clock := shared.NewRealClock()
	routes := app.NewRouteDirectory(routesapi.New(cfg.RoutesAPIURL, cfg.HTTPTimeout), cache)
	detector := app.NewDetector(mysqlrepo.New(db), events, cache, clock)
	crawler := app.NewCrawler(routes, fetcher, detector, clock, app.CrawlerConfig{
		Months:           cfg.CrawlConfig.Months,
		MonthDelay:       cfg.CrawlConfig.MonthDelay,
		DestinationDelay: cfg.CrawlConfig.DestinationDelay,
	})

	stats, err := crawler.RunCycle(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("crawl failed")
	}
	log.Info().
		Int("units", stats.Units).
		Int("failed", stats.FailedUnits).
		Int("inserted", stats.Inserted).
		Int("updated", stats.Updated).
		Int("price_changes", stats.PriceChanges).
		Msg("crawl completed")
}
