// Package bot содержит Telegram-часть сервиса: отправка алертов в канал сообщества
// и командный бот для просмотра проектов (/project, /alerts, /stats).
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/bot/filters"
	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/config"
	"serotonyl.ru/monad-curator/internal/features/alerts"
	"serotonyl.ru/monad-curator/internal/features/projects"
	"serotonyl.ru/monad-curator/internal/features/voting"
	"serotonyl.ru/monad-curator/internal/middleware"
)

const alertsInReply = 5

const helpText = "Я слежу за проектами экосистемы Monad.\n\n" +
	"/project <id> — карточка проекта и голоса по ролям\n" +
	"/alerts [id] — последние тревожные алерты\n" +
	"/stats — статистика сообщества"

// ProjectCards отдаёт карточку проекта (voting.Service).
type ProjectCards interface {
	ProjectDetail(ctx context.Context, projectID string) (*voting.ProjectDetail, error)
}

// AlertLister отдаёт последние алерты (alerts.Service).
type AlertLister interface {
	List(ctx context.Context, projectID string, limit int) ([]*alerts.Alert, error)
}

// StatsProvider отдаёт сводную статистику (projects.Service).
type StatsProvider interface {
	SiteStats(ctx context.Context) (*projects.SiteStats, error)
}

// Bot: командный бот.
type Bot struct {
	api    *tgbotapi.BotAPI
	sender Sender
	cfg    *config.Config
	loc    *time.Location

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter
	parser      *CommandParser

	cards  ProjectCards
	alerts AlertLister
	stats  StatsProvider

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	cards ProjectCards,
	alertList AlertLister,
	stats StatsProvider,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 16
	}

	return &Bot{
		api:         api,
		sender:      api,
		cfg:         cfg,
		loc:         common.LoadLocation(cfg.AppTimezone),
		chatFilter:  filters.NewChatFilter(cfg.TelegramChatID),
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		parser:      NewCommandParser(),
		cards:       cards,
		alerts:      alertList,
		stats:       stats,
		inflight:    make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений. Блокирует до отмены ctx.
func (b *Bot) Start(ctx context.Context) {
	defer b.rateLimiter.Close()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает команды...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic()

	message := update.Message
	if message == nil || message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	if !b.chatFilter.CheckAccess(message) {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if !isCommand {
		return
	}

	if !b.rateLimiter.AllowUser(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	b.routeCommand(ctx, message.Chat.ID, cmd, args)
}

// routeCommand выполняет команду и отвечает в чат.
func (b *Bot) routeCommand(ctx context.Context, chatID int64, cmd string, args []string) {
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")

	switch cmd {
	case "start", "help":
		b.sendMessage(chatID, helpText, "")

	case "project":
		if len(args) == 0 {
			b.sendMessage(chatID, "Укажите id проекта: /project <id>", "")
			return
		}
		detail, err := b.cards.ProjectDetail(ctx, args[0])
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.sendMessage(chatID, FormatProjectCard(detail, b.cfg.FrontendURL), tgbotapi.ModeMarkdown)

	case "alerts":
		projectID := ""
		if len(args) > 0 {
			projectID = args[0]
		}
		list, err := b.alerts.List(ctx, projectID, alertsInReply)
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.sendMessage(chatID, FormatAlertList(list, b.loc), tgbotapi.ModeMarkdown)

	case "stats":
		st, err := b.stats.SiteStats(ctx)
		if err != nil {
			b.replyError(chatID, err)
			return
		}
		b.sendMessage(chatID, fmt.Sprintf("📊 Проектов: %d\n🗳 Всего: %s\n👥 Проголосовавших: %d",
			st.TotalProjects, common.FormatVotes(st.TotalVotes), st.UniqueVoters), "")
	}
}

func (b *Bot) replyError(chatID int64, err error) {
	if errors.Is(err, common.ErrNotFound) {
		b.sendMessage(chatID, "❌ Проект не найден", "")
		return
	}
	log.WithError(err).WithField("chat_id", chatID).Error("Ошибка выполнения команды")
	b.sendMessage(chatID, "⚠️ Не получилось, попробуйте позже", "")
}

// sendMessage: утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text, parseMode string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = parseMode
	msg.DisableWebPagePreview = true
	if _, err := b.sender.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// FormatProjectCard: Markdown-карточка проекта.
func FormatProjectCard(d *voting.ProjectDetail, frontendURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* — %s", escape(d.Name), d.Status)
	if d.Verified {
		b.WriteString(" ✅")
	}
	b.WriteString("\n")

	if d.ContractAddress != nil && *d.ContractAddress != "" {
		fmt.Fprintf(&b, "Контракт: `%s`\n", common.ShortAddress(*d.ContractAddress))
	}

	stats := voting.StatsOf(d.Project)
	fmt.Fprintf(&b, "👍 %d  👎 %d  (итог %+d, %s)\n", stats.VotesFor, stats.VotesAgainst, stats.Score, common.FormatVotes(stats.Total))

	for _, rc := range d.VotesBreakdown {
		fmt.Fprintf(&b, "  %s: +%d / -%d\n", escape(string(rc.Role)), rc.VotesFor, rc.VotesAgainst)
	}

	if d.ReviewsCount > 0 && d.AverageScore != nil {
		fmt.Fprintf(&b, "Отзывов: %d, доля «за» %.0f%%\n", d.ReviewsCount, *d.AverageScore*100)
	}

	if frontendURL != "" {
		fmt.Fprintf(&b, "%s/projects/%s", strings.TrimRight(frontendURL, "/"), d.ID)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatAlertList: список алертов, новые сверху.
func FormatAlertList(list []*alerts.Alert, loc *time.Location) string {
	if len(list) == 0 {
		return "Тревожных алертов нет 🙌"
	}
	var b strings.Builder
	b.WriteString("🚨 *Последние алерты*\n")
	for _, a := range list {
		fmt.Fprintf(&b, "\n%s *%s*\n%s\n", common.FormatDateTime(a.CreatedAt, loc), a.AlertType, escape(a.Message))
	}
	return strings.TrimRight(b.String(), "\n")
}

// CommandParser разбирает команды с префиксами /, ! и .
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"/", "!", "."},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Суффикс @botname у команды отбрасывается: /project@curator_bot → project.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}
	if command == "" {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}
