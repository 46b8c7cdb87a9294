// Package filters решает, в каких чатах бот отвечает на команды.
package filters

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

type ChatFilter struct {
	communityChatID int64
}

func NewChatFilter(communityChatID int64) *ChatFilter {
	return &ChatFilter{communityChatID: communityChatID}
}

// CheckAccess пропускает канал сообщества и личные чаты.
func (f *ChatFilter) CheckAccess(message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "ChatFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("nil message.From (service/channel message?)")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "ChatFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	if f.communityChatID != 0 && message.Chat.ID == f.communityChatID {
		logger.Debug("allow: community chat")
		return true
	}
	if message.Chat.IsPrivate() {
		logger.Debug("allow: private")
		return true
	}

	logger.Debug("deny: foreign chat")
	return false
}
