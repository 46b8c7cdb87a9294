package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/monad-curator/internal/features/alerts"
	"serotonyl.ru/monad-curator/internal/features/projects"
)

// Sender: то, что умеет отправлять сообщения (tgbotapi.BotAPI).
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier отправляет алерты в канал сообщества.
type TelegramNotifier struct {
	sender      Sender
	chatID      int64
	frontendURL string
	attempts    uint
	delay       time.Duration
}

// NewTelegramNotifier создаёт отправителя алертов в chatID.
func NewTelegramNotifier(sender Sender, chatID int64, frontendURL string) *TelegramNotifier {
	return &TelegramNotifier{
		sender:      sender,
		chatID:      chatID,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		attempts:    3,
		delay:       time.Second,
	}
}

// NotifyAlert реализует alerts.Notifier.
func (n *TelegramNotifier) NotifyAlert(ctx context.Context, a *alerts.Alert, p *projects.Project) error {
	msg := tgbotapi.NewMessage(n.chatID, FormatAlert(a, p, n.frontendURL))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.DisableWebPagePreview = true

	err := retry.Do(
		func() error {
			_, err := n.sender.Send(msg)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(n.attempts),
		retry.Delay(n.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			log.WithError(err).WithFields(log.Fields{
				"alert_id": a.ID,
				"attempt":  attempt + 1,
			}).Debug("Повтор отправки алерта в Telegram")
		}),
	)
	if err != nil {
		return fmt.Errorf("ошибка отправки алерта в Telegram: %w", err)
	}

	log.WithFields(log.Fields{
		"alert_id":   a.ID,
		"project_id": a.ProjectID,
		"type":       a.AlertType,
	}).Info("Алерт отправлен в Telegram")
	return nil
}

// FormatAlert собирает Markdown-текст алерта.
func FormatAlert(a *alerts.Alert, p *projects.Project, frontendURL string) string {
	var b strings.Builder
	b.WriteString("🚨 *MONAD PROJECT ALERT* 🚨\n\n")

	switch a.AlertType {
	case projects.StatusScam:
		b.WriteString("⚠️ *POTENTIAL SCAM DETECTED* ⚠️\n\n")
	case projects.StatusRug:
		b.WriteString("⚠️ *RUG PULL DETECTED* ⚠️\n\n")
	case projects.StatusVerified:
		b.WriteString("✅ *PROJECT VERIFIED* ✅\n\n")
	case projects.StatusUnverified:
		b.WriteString("❌ *PROJECT UNVERIFIED* ❌\n\n")
	default:
		fmt.Fprintf(&b, "*STATUS UPDATE: %s*\n\n", a.AlertType)
	}

	fmt.Fprintf(&b, "*Project:* %s\n", escape(p.Name))
	if p.ContractAddress != nil && *p.ContractAddress != "" {
		fmt.Fprintf(&b, "*Contract:* `%s`\n", *p.ContractAddress)
	}
	fmt.Fprintf(&b, "*Message:* %s\n", escape(a.Message))

	if frontendURL != "" {
		fmt.Fprintf(&b, "\nView details: %s/projects/%s", strings.TrimRight(frontendURL, "/"), p.ID)
	}
	return b.String()
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}
