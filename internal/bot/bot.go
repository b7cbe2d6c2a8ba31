package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Init connects to the Telegram Bot API with the given token.
func Init(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, errors.New("BOT_TOKEN is not configured")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		if err.Error() == "Unauthorized" {
			return nil, errors.New("Telegram token is invalid or expired; get one from @BotFather")
		}
		return nil, errors.Wrap(err, "connect to Telegram")
	}

	api.Debug = false
	log.WithFields(log.Fields{"username": api.Self.UserName}).Info("Bot authorized")
	return api, nil
}

// TelegramNotifier delivers monitor alerts through the Telegram Bot API.
type TelegramNotifier struct {
	api *tgbotapi.BotAPI
}

// NewNotifier wraps a bot API client as a monitor.Notifier.
func NewNotifier(api *tgbotapi.BotAPI) *TelegramNotifier {
	return &TelegramNotifier{api: api}
}

// Send delivers text to the user's chat.
func (n *TelegramNotifier) Send(userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	_, err := n.api.Send(msg)
	return errors.Wrapf(err, "send message to user %d", userID)
}
