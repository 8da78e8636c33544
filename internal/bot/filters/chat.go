package filters

import (
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// ChatFilter решает, обрабатывать ли сообщение.
// Личные чаты разрешены всегда, группы — только при allowGroups.
type ChatFilter struct {
	allowGroups bool
}

func NewChatFilter(allowGroups bool) *ChatFilter {
	return &ChatFilter{allowGroups: allowGroups}
}

func (f *ChatFilter) CheckAccess(message *telego.Message) bool {
	if message == nil {
		log.WithField("component", "ChatFilter").Warn("nil message")
		return false
	}
	if message.From == nil || message.From.IsBot {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("deny: no sender or sender is a bot")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "ChatFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	switch message.Chat.Type {
	case telego.ChatTypePrivate:
		return true
	case telego.ChatTypeGroup, telego.ChatTypeSupergroup:
		if f.allowGroups {
			return true
		}
		logger.Debug("deny: groups disabled")
		return false
	default:
		logger.Debug("deny: unsupported chat type")
		return false
	}
}
