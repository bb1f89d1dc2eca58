package main

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	server "rewardo/internal/adapters/http_server"
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

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cache.Close()
	if err := cache.Ping(ctx); err != nil {
		log.Warn().Err(err).Msg("redis unavailable, serving without cache until it recovers")
	}

	// deps
	repo := mysqlrepo.New(db)
	events := broadcast.New[domain.ChangeEvent](broadcast.DefaultReplay, broadcast.DefaultBuffer)
	routes := app.NewRouteDirectory(routesapi.New(cfg.RoutesAPIURL, cfg.HTTPTimeout), cache)
	fetcher, err := virgin.New(cfg.VSBaseURL, cfg.VSRPS, cfg.HTTPTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize seat checker client")
	}
	clock := shared.NewRealClock()
	detector := app.NewDetector(repo, events, cache, clock)
	crawler := app.NewCrawler(routes, fetcher, detector, clock, app.CrawlerConfig{
		Months:           cfg.CrawlConfig.Months,
		MonthDelay:       cfg.CrawlConfig.MonthDelay,
		DestinationDelay: cfg.CrawlConfig.DestinationDelay,
	})
	q := app.NewQueryService(repo, cache, cfg.CacheTTL, routes, clock)

	// http
	srv := server.New(cfg.HTTPTimeout)
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Q:           q,
		Routes:      routes,
		Events:      events,
		StreamSlots: semaphore.NewWeighted(int64(cfg.StreamMaxClients)),
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return httpSrv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return app.NewScheduler("routes", cfg.RoutesInitialDelay, cfg.RoutesRefresh, func(ctx context.Context) error {
			_, err := routes.Refresh(ctx)
			return err
		}).Run(gctx)
	})
	g.Go(func() error {
		return app.NewScheduler("crawl", cfg.CrawlConfig.InitialDelay, cfg.CrawlConfig.Interval, func(ctx context.Context) error {
			_, err := crawler.RunCycle(ctx)
			return err
		}).Run(gctx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("api stopped with error")
	}
	log.Info().Msg("api stopped")
}
