// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// перед этим подхватывается .env (если файл есть).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Политики повторного голоса того же типа
const (
	SameVoteReject = "reject" // отклонить с Conflict
	SameVoteToggle = "toggle" // снять голос
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- HTTP ---
	HTTPAddr           string        `envconfig:"HTTP_ADDR" default:":4000"`
	HTTPRequestTimeout time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"15s"`
	// Адрес фронтенда для ссылок в алертах и CORS
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3000"`

	// --- Database ---
	// В Docker дефолт "postgres" (имя сервиса в docker-compose), для локалки DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"curator"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"monad_curator"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Auth ---
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`
	JWTTTLHours int    `envconfig:"JWT_TTL_HOURS" default:"168"`
	// Хеш Argon2id пароля для повышения до администратора (пусто = вход выключен)
	AdminPasswordHash string `envconfig:"ADMIN_PASSWORD_HASH"`

	// --- Voting ---
	VoteSamePolicy           string   `envconfig:"VOTE_SAME_POLICY" default:"reject"`
	VoteMinForVerification   int64    `envconfig:"VOTE_MIN_FOR_VERIFICATION" default:"100"`
	VoteVerifyThreshold      float64  `envconfig:"VOTE_VERIFY_THRESHOLD" default:"0.8"`
	VoteRelevantRolesRaw     string   `envconfig:"VOTE_RELEVANT_ROLES" default:"NAD,OG,MON"`
	VoteRelevantRoles        []string `ignored:"true"` // заполним вручную
	VoteMinForStatus         int64    `envconfig:"VOTE_MIN_FOR_STATUS" default:"3"`
	VoteVerifiedFraction     float64  `envconfig:"VOTE_VERIFIED_FRACTION" default:"0.75"`
	VoteUnverifiedFraction   float64  `envconfig:"VOTE_UNVERIFIED_FRACTION" default:"0.25"`
	VoteScamFraction         float64  `envconfig:"VOTE_SCAM_FRACTION" default:"0.5"`
	VoteScamCriterion        string   `envconfig:"VOTE_SCAM_CRITERION" default:"Scam Detection"`
	VoteSerializationRetries uint     `envconfig:"VOTE_SERIALIZATION_RETRIES" default:"5"`

	// --- Telegram ---
	TelegramEnabled bool   `envconfig:"TELEGRAM_ENABLED" default:"false"`
	TelegramToken   string `envconfig:"TELEGRAM_BOT_TOKEN"`
	// Канал, куда уходят алерты; в нём же работают команды бота
	TelegramChatID          int64 `envconfig:"TELEGRAM_CHAT_ID"`
	TelegramCommandsEnabled bool  `envconfig:"TELEGRAM_COMMANDS_ENABLED" default:"false"`
	// Сколько апдейтов обрабатываем параллельно
	BotMaxInflight          int `envconfig:"BOT_MAX_INFLIGHT" default:"16"`
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Redis (пусто = события только в памяти процесса) ---
	RedisAddr        string `envconfig:"REDIS_ADDR"`
	RedisPassword    string `envconfig:"REDIS_PASSWORD"`
	RedisDB          int    `envconfig:"REDIS_DB" default:"0"`
	EventsReplaySize int64  `envconfig:"EVENTS_REPLAY_SIZE" default:"200"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Jobs ---
	ReconcileCron string `envconfig:"RECONCILE_CRON" default:"0 * * * *"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET не задан")
	}
	if c.VoteSamePolicy != SameVoteReject && c.VoteSamePolicy != SameVoteToggle {
		return fmt.Errorf("VOTE_SAME_POLICY должен быть %q или %q", SameVoteReject, SameVoteToggle)
	}
	if c.VoteVerifyThreshold <= 0 || c.VoteVerifyThreshold > 1 {
		return fmt.Errorf("VOTE_VERIFY_THRESHOLD должен быть в (0, 1]")
	}
	if c.VoteUnverifiedFraction >= c.VoteVerifiedFraction {
		return fmt.Errorf("VOTE_UNVERIFIED_FRACTION должен быть меньше VOTE_VERIFIED_FRACTION")
	}
	if c.VoteMinForVerification < 0 || c.VoteMinForStatus < 0 {
		return fmt.Errorf("минимальное число голосов не может быть отрицательным")
	}
	if len(c.VoteRelevantRoles) == 0 {
		return fmt.Errorf("VOTE_RELEVANT_ROLES пуст")
	}
	if c.TelegramEnabled && (c.TelegramToken == "" || c.TelegramChatID == 0) {
		return fmt.Errorf("при TELEGRAM_ENABLED нужны TELEGRAM_BOT_TOKEN и TELEGRAM_CHAT_ID")
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("некорректные RATE_LIMIT_REQUESTS/RATE_LIMIT_WINDOW")
	}
	return nil
}

// Load читает .env и переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	// .env необязателен: в Docker переменные приходят из окружения
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	cfg.VoteRelevantRoles = parseCSV(cfg.VoteRelevantRolesRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
