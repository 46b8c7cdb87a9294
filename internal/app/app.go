// Package app инициализирует все компоненты приложения.
// app.go собирает приложение: создаёт БД-пул, репозитории, сервисы, обработчики,
// Telegram-часть и собирает всё в HTTP-сервер.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/bot"
	"serotonyl.ru/monad-curator/internal/config"
	"serotonyl.ru/monad-curator/internal/db/postgres"
	"serotonyl.ru/monad-curator/internal/events"
	"serotonyl.ru/monad-curator/internal/features/admin"
	"serotonyl.ru/monad-curator/internal/features/alerts"
	"serotonyl.ru/monad-curator/internal/features/criteria"
	"serotonyl.ru/monad-curator/internal/features/members"
	"serotonyl.ru/monad-curator/internal/features/projects"
	"serotonyl.ru/monad-curator/internal/features/voting"
	"serotonyl.ru/monad-curator/internal/jobs"
	"serotonyl.ru/monad-curator/internal/metrics"
	"serotonyl.ru/monad-curator/internal/middleware"
	"serotonyl.ru/monad-curator/internal/server"
)

// App содержит все компоненты приложения.
type App struct {
	Server    *http.Server
	Bot       *bot.Bot // nil, если команды бота выключены
	Scheduler *jobs.Scheduler
	Publisher *alerts.Publisher
	Voting    *voting.Service
	Members   *members.Service
	DB        *pgxpool.Pool
	Redis     *redis.Client

	rateLimiter *middleware.RateLimiter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен: компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := postgres.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Redis (необязателен) ===
	rdb, err := connectRedis(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	// === 3. Шина событий и метрики ===
	// nil *redis.Client в интерфейсе UniversalClient не равен nil
	var hub *events.Hub
	if rdb != nil {
		hub = events.NewHub(rdb, cfg.EventsReplaySize)
	} else {
		hub = events.NewHub(nil, cfg.EventsReplaySize)
	}
	m := metrics.NewMetricService()

	// === 4. Репозитории ===
	memberRepo := members.NewRepository(pool)
	projectRepo := projects.NewRepository(pool)
	criteriaRepo := criteria.NewRepository(pool)
	alertRepo := alerts.NewRepository(pool)
	votingRepo := voting.NewRepository(pool)
	adminRepo := admin.NewRepository(pool)

	// === 5. Telegram ===
	var botAPI *tgbotapi.BotAPI
	var notifier alerts.Notifier = alerts.NoopNotifier{}
	if cfg.TelegramEnabled {
		botAPI, err = tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			closeAll(pool, rdb)
			return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
		}
		botAPI.Debug = cfg.AppEnv == "development" && cfg.AppLogLevel == "trace"
		log.Infof("Авторизован как @%s", botAPI.Self.UserName)
		notifier = bot.NewTelegramNotifier(botAPI, cfg.TelegramChatID, cfg.FrontendURL)
	}

	// === 6. Сервисы ===
	memberService := members.NewService(memberRepo)
	projectService := projects.NewService(projectRepo)
	criteriaService := criteria.NewService(criteriaRepo)
	if err := criteriaService.SeedDefaults(ctx); err != nil {
		closeAll(pool, rdb)
		return nil, fmt.Errorf("ошибка заполнения критериев: %w", err)
	}

	publisher := alerts.NewPublisher(hub, notifier, m)
	alertService := alerts.NewService(alertRepo, projectService, publisher)

	thresholds, err := thresholdsFrom(cfg)
	if err != nil {
		closeAll(pool, rdb)
		return nil, err
	}
	engine := voting.NewEngine(votingRepo, voting.NewEvaluator(thresholds), voting.EngineConfig{
		Policy:        voting.SamePolicy(cfg.VoteSamePolicy),
		ScamCriterion: cfg.VoteScamCriterion,
		Retries:       cfg.VoteSerializationRetries,
	}, m)
	votingService := voting.NewService(voting.Deps{
		Engine:   engine,
		Store:    votingRepo,
		Projects: projectService,
		Criteria: criteriaService,
		Actors:   memberService,
		Sink:     hub,
		Alerts:   publisher,
		Metrics:  m,
	})
	adminService := admin.NewService(adminRepo, memberService, cfg.AdminPasswordHash)

	// === 7. HTTP ===
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)
	router := server.NewRouter(server.Deps{
		JWTSecret:      cfg.JWTSecret,
		FrontendURL:    cfg.FrontendURL,
		RequestTimeout: cfg.HTTPRequestTimeout,
		Actors:         memberService,
		RateLimiter:    rateLimiter,
		DB:             pool,
		Events:         hub,
		Metrics:        m.Handler(),
		Projects:       projects.NewHandler(projectService),
		Voting:         voting.NewHandler(votingService),
		Criteria:       criteria.NewHandler(criteriaService),
		Alerts:         alerts.NewHandler(alertService),
		Members:        members.NewHandler(memberService),
		Admin:          admin.NewHandler(adminService),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// === 8. Командный бот ===
	var b *bot.Bot
	if botAPI != nil && cfg.TelegramCommandsEnabled {
		b = bot.New(botAPI, cfg, votingService, alertService, projectService)
	}

	// === 9. Планировщик задач ===
	scheduler := jobs.NewScheduler(votingService, cfg.ReconcileCron, cfg.AppTimezone)

	return &App{
		Server:      srv,
		Bot:         b,
		Scheduler:   scheduler,
		Publisher:   publisher,
		Voting:      votingService,
		Members:     memberService,
		DB:          pool,
		Redis:       rdb,
		rateLimiter: rateLimiter,
	}, nil
}

// Close освобождает соединения. Вызывается после остановки сервера.
func (a *App) Close() {
	a.rateLimiter.Close()
	closeAll(a.DB, a.Redis)
}

func connectRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.RedisAddr == "" {
		log.Info("REDIS_ADDR не задан, события хранятся в памяти процесса")
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ошибка подключения к Redis %s: %w", cfg.RedisAddr, err)
	}
	log.WithField("addr", cfg.RedisAddr).Info("Подключено к Redis")
	return rdb, nil
}

// thresholdsFrom переносит пороги голосования из конфига.
func thresholdsFrom(cfg *config.Config) (voting.Thresholds, error) {
	roles, err := auth.ParseRoles(cfg.VoteRelevantRoles)
	if err != nil {
		return voting.Thresholds{}, fmt.Errorf("VOTE_RELEVANT_ROLES: %w", err)
	}
	return voting.Thresholds{
		RelevantRoles:      roles,
		MinForVerification: cfg.VoteMinForVerification,
		VerifyThreshold:    cfg.VoteVerifyThreshold,
		MinForStatus:       cfg.VoteMinForStatus,
		VerifiedFraction:   cfg.VoteVerifiedFraction,
		UnverifiedFraction: cfg.VoteUnverifiedFraction,
		ScamFraction:       cfg.VoteScamFraction,
	}, nil
}

func closeAll(pool *pgxpool.Pool, rdb *redis.Client) {
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.WithError(err).Warn("Ошибка закрытия Redis")
		}
	}
	if pool != nil {
		pool.Close()
	}
}
