package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"bf1942-alert-bot/internal/adapters/discord"
	"bf1942-alert-bot/internal/adapters/httpapi"
	"bf1942-alert-bot/internal/adapters/repo"
	"bf1942-alert-bot/internal/domain"
	"bf1942-alert-bot/internal/infra/cache"
	"bf1942-alert-bot/internal/infra/config"
	"bf1942-alert-bot/internal/infra/db"
	httpinfra "bf1942-alert-bot/internal/infra/http"
	applog "bf1942-alert-bot/internal/infra/log"
	"bf1942-alert-bot/internal/infra/metrics"
	"bf1942-alert-bot/internal/usecase/access"
	"bf1942-alert-bot/internal/usecase/cooldown"
	digestusecase "bf1942-alert-bot/internal/usecase/digest"
	"bf1942-alert-bot/internal/usecase/dispatch"
	"bf1942-alert-bot/internal/usecase/mapwatch"
	"bf1942-alert-bot/internal/usecase/match"
	"bf1942-alert-bot/internal/usecase/rounds"
	"bf1942-alert-bot/internal/usecase/scheduler"
	"bf1942-alert-bot/internal/usecase/subscriptions"
	"bf1942-alert-bot/internal/usecase/watchlist"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.PGDSN == "" {
		logger.Fatal().Msg("alerter: не указан адрес БД (PG_DSN)")
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("alerter: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)

	migrateCtx, migrateCancel := context.WithTimeout(ctx, 30*time.Second)
	err = repoAdapter.Migrate(migrateCtx)
	migrateCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("alerter: не удалось применить миграции")
	}

	// Redis опционален: без него от двойной отправки сводки защищает
	// только watermark в bot_state.
	var digestCache domain.Cache
	if cfg.RedisAddr != "" {
		redisClient, err := cache.Connect(cfg.RedisAddr)
		if err != nil {
			logger.Fatal().Err(err).Msg("alerter: нет подключения к Redis")
		}
		defer redisClient.Close()
		digestCache = cache.NewRedis(redisClient)
	}

	if cfg.Discord.Token == "" {
		logger.Fatal().Msg("alerter: не указан токен Discord (DISCORD_TOKEN)")
	}
	sink, err := discord.NewSink(cfg.Discord.Token, logger.With().Str("component", "discord").Logger())
	if err != nil {
		logger.Fatal().Err(err).Msg("alerter: не удалось создать Discord-сессию")
	}
	if err := sink.Open(); err != nil {
		logger.Fatal().Err(err).Msg("alerter: не удалось открыть Discord gateway")
	}
	defer sink.Close()

	rulesService := subscriptions.NewService(repoAdapter, repoAdapter, repoAdapter, repoAdapter, repoAdapter, sink)
	apiHandler := httpapi.NewHandler(rulesService, logger.With().Str("component", "httpapi").Logger())
	httpinfra.StartServer(ctx, logger.With().Str("component", "http").Logger(), cfg.Port, repoAdapter, apiHandler.Router())

	blocklistCtx, blocklistCancel := context.WithTimeout(ctx, 10*time.Second)
	blocklist, err := repoAdapter.LoadBlocklist(blocklistCtx)
	blocklistCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("alerter: не удалось загрузить блоклист")
	}
	logger.Info().
		Int("users", len(blocklist.Users)).
		Int("guilds", len(blocklist.Guilds)).
		Msg("alerter: блоклист загружен")

	matcher := match.NewMatcher(repoAdapter, repoAdapter, repoAdapter)
	accessCtl := access.NewController(blocklist, sink, logger.With().Str("component", "access").Logger())
	dispatcher := dispatch.NewDispatcher(sink, cfg.Limits.DeliveryPerSec, cfg.Limits.DeliveryBurst,
		logger.With().Str("component", "dispatch").Logger())

	mapService := mapwatch.NewService(repoAdapter, repoAdapter, repoAdapter, matcher, accessCtl, dispatcher,
		cfg.Limits.ServerPoll, logger.With().Str("tick", "map_change").Logger())
	roundService := rounds.NewService(repoAdapter, repoAdapter, repoAdapter, matcher, accessCtl, dispatcher,
		cfg.Limits.RoundTopPlayers, logger.With().Str("tick", "round_results").Logger())
	watchService := watchlist.NewService(repoAdapter, repoAdapter, matcher, accessCtl, dispatcher,
		cooldown.NewTracker(), cfg.Limits.WatchCooldown, logger.With().Str("tick", "watchlist").Logger())
	digestService := digestusecase.NewService(repoAdapter, repoAdapter, repoAdapter, digestCache, accessCtl, dispatcher,
		logger.With().Str("tick", "digest").Logger())

	primeCtx, primeCancel := context.WithTimeout(ctx, 10*time.Second)
	err = mapService.Prime(primeCtx)
	primeCancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("alerter: не удалось восстановить состояние карт")
	}

	sched := scheduler.New(logger.With().Str("component", "scheduler").Logger())
	sched.Add("map_change", cfg.Ticks.MapChange, mapService.Run)
	sched.Add("round_results", cfg.Ticks.RoundResults, roundService.Run)
	sched.Add("watchlist", cfg.Ticks.Watchlist, watchService.Run)
	sched.Add("digest", cfg.Ticks.Digest, digestService.Run)

	logger.Info().Msg("alerter: запуск планировщика")
	sched.Run(ctx)
	logger.Info().Msg("alerter: остановлен")
}
