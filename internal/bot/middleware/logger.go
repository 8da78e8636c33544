// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

const maxLoggedText = 50

// LogMessage логирует входящее сообщение.
// Записывает: user_id, chat_id, username, текст (первые 50 символов).
func LogMessage(message *telego.Message) {
	if message == nil || message.From == nil {
		return
	}

	text := []rune(message.Text)
	logged := string(text)
	if len(text) > maxLoggedText {
		logged = string(text[:maxLoggedText]) + "..."
	}

	fields := log.Fields{
		"user_id":  message.From.ID,
		"chat_id":  message.Chat.ID,
		"username": message.From.Username,
		"text":     logged,
	}
	if message.SuccessfulPayment != nil {
		fields["payment"] = message.SuccessfulPayment.InvoicePayload
	}
	log.WithFields(fields).Debug("Входящее сообщение")
}
