package bot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/akhouriprakhar/price-monitor-bot/internal/database"
	"github.com/akhouriprakhar/price-monitor-bot/internal/models"
	"github.com/akhouriprakhar/price-monitor-bot/internal/scraper"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

const handlerTimeout = 30 * time.Second

// escapeHTML escapes the characters Telegram's HTML parse mode rejects.
func escapeHTML(text string) string {
	text = strings.ReplaceAll(text, "&", "&amp;")
	text = strings.ReplaceAll(text, "<", "&lt;")
	text = strings.ReplaceAll(text, ">", "&gt;")
	return text
}

// SetupCommands runs the long-polling update loop and dispatches commands.
// It blocks until the updates channel closes.
func SetupCommands(api *tgbotapi.BotAPI, db *database.DB, sc *scraper.Scraper) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}

		message := update.Message
		parts := strings.Fields(message.Text)
		if len(parts) == 0 {
			continue
		}

		command := strings.ToLower(parts[0])
		// Strip @botname from commands sent in groups.
		if idx := strings.Index(command, "@"); idx > 0 {
			command = command[:idx]
		}

		switch command {
		case "/start", "/help":
			handleHelp(api, message.Chat.ID)
		case "/list":
			handleList(api, message, db)
		case "/stop":
			handleStop(api, message, db)
		case "/target":
			handleTarget(api, message, db)
		default:
			if urlPattern.MatchString(message.Text) {
				handleTrack(api, message, db, sc)
			} else {
				reply(api, message.Chat.ID, "Unrecognized command. Use /help to see what I can do.")
			}
		}
	}
}

func reply(api *tgbotapi.BotAPI, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := api.Send(msg); err != nil {
		log.WithFields(log.Fields{"chat": chatID, "err": err}).Error("Failed to send reply")
	}
}

func handleHelp(api *tgbotapi.BotAPI, chatID int64) {
	helpText := `🤖 <b>Price Monitor Bot</b>

<b>Available commands:</b>

<b>/list</b> - Show your tracked products

<b>/stop &lt;number&gt;</b> - Stop tracking a product
Example: /stop 1

<b>/target &lt;number&gt; &lt;price&gt;</b> - Set a target price; you get an alert when the price reaches it
Example: /target 1 900

<b>/help</b> - Show this help

<b>To track a product:</b>
Just send me the product URL directly! I'll check its price periodically and notify you of meaningful changes.`

	msg := tgbotapi.NewMessage(chatID, helpText)
	msg.ParseMode = "HTML"
	if _, err := api.Send(msg); err != nil {
		log.WithError(err).Error("Failed to send help message")
		// Retry without formatting.
		msg.ParseMode = ""
		api.Send(msg)
	}
}

func handleTrack(api *tgbotapi.BotAPI, message *tgbotapi.Message, db *database.DB, sc *scraper.Scraper) {
	url := urlPattern.FindString(message.Text)
	userID := message.From.ID

	reply(api, message.Chat.ID, "🔍 Analyzing product... Please wait.")

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	info, err := sc.Fetch(ctx, url)
	if err != nil {
		log.WithFields(log.Fields{"url": url, "err": err}).Warn("Failed to scrape product for tracking")
		reply(api, message.Chat.ID, "❌ Sorry, I couldn't extract the price from this URL. Please try a different product.")
		return
	}

	if _, err := db.AddOrUpdate(ctx, userID, url, info.Title, info.Price); err != nil {
		log.WithFields(log.Fields{"user": userID, "url": url, "err": err}).Error("Failed to store product")
		reply(api, message.Chat.ID, "❌ Something went wrong saving this product. Please try again.")
		return
	}

	response := fmt.Sprintf(
		"✅ Now Tracking!\n\n"+
			"📦 Product: %s\n"+
			"💰 Current Price: ₹%.2f\n\n"+
			"I'll notify you when the price changes significantly!\n"+
			"Use /list to see all your tracked products.",
		info.Title, info.Price,
	)
	reply(api, message.Chat.ID, response)
}

func handleList(api *tgbotapi.BotAPI, message *tgbotapi.Message, db *database.DB) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	products, err := db.GetUserProducts(ctx, message.From.ID)
	if err != nil {
		log.WithFields(log.Fields{"user": message.From.ID, "err": err}).Error("Failed to list products")
		reply(api, message.Chat.ID, "❌ Something went wrong listing your products.")
		return
	}

	if len(products) == 0 {
		reply(api, message.Chat.ID, "You're not tracking any products yet! Send me a product URL to start.")
		return
	}

	var response strings.Builder
	response.WriteString("📦 <b>Your Tracked Products:</b>\n\n")

	for i, p := range products {
		response.WriteString(fmt.Sprintf("%d. %s\n", i+1, escapeHTML(truncate(p.Title, 50))))
		response.WriteString(fmt.Sprintf("   💰 Current Price: %s\n", formatPrice(p)))
		if p.TargetPrice != nil {
			response.WriteString(fmt.Sprintf("   🎯 Target Price: ₹%.2f\n", *p.TargetPrice))
		}
		response.WriteString(fmt.Sprintf("   🔗 %s\n\n", p.URL))
	}

	response.WriteString("Use /stop &lt;number&gt; to stop tracking, /target &lt;number&gt; &lt;price&gt; to set a target.")

	msg := tgbotapi.NewMessage(message.Chat.ID, response.String())
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true
	if _, err := api.Send(msg); err != nil {
		log.WithError(err).Error("Failed to send product list")
		msg.ParseMode = ""
		api.Send(msg)
	}
}

func handleStop(api *tgbotapi.BotAPI, message *tgbotapi.Message, db *database.DB) {
	userID := message.From.ID
	parts := strings.Fields(message.Text)
	if len(parts) < 2 {
		reply(api, message.Chat.ID, "Please specify which product to stop tracking.\nExample: /stop 1")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	product, ok := resolveProduct(ctx, api, message, db, parts[1])
	if !ok {
		return
	}

	if err := db.DeleteProduct(ctx, product.ID, userID); err != nil {
		log.WithFields(log.Fields{"user": userID, "product": product.ID, "err": err}).Error("Failed to delete product")
		reply(api, message.Chat.ID, "❌ Something went wrong removing this product.")
		return
	}

	reply(api, message.Chat.ID, fmt.Sprintf("✅ Stopped tracking: %s", truncate(product.Title, 50)))
}

func handleTarget(api *tgbotapi.BotAPI, message *tgbotapi.Message, db *database.DB) {
	userID := message.From.ID
	parts := strings.Fields(message.Text)
	if len(parts) < 3 {
		reply(api, message.Chat.ID, "Please specify a product number and a target price.\nExample: /target 1 900")
		return
	}

	price, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || price <= 0 {
		reply(api, message.Chat.ID, "❌ Invalid target price. Use a positive number.\nExample: /target 1 900")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	product, ok := resolveProduct(ctx, api, message, db, parts[1])
	if !ok {
		return
	}

	found, err := db.SetTargetPrice(ctx, product.ID, userID, price)
	if err != nil || !found {
		log.WithFields(log.Fields{"user": userID, "product": product.ID, "err": err}).Error("Failed to set target price")
		reply(api, message.Chat.ID, "❌ Something went wrong setting the target price.")
		return
	}

	reply(api, message.Chat.ID, fmt.Sprintf(
		"🎯 Target price set!\n\nProduct: %s\nTarget Price: ₹%.2f\n\nI'll alert you as soon as the price reaches it.",
		truncate(product.Title, 50), price,
	))
}

// resolveProduct maps a 1-based list index (as shown by /list) to the
// user's product. Replies with an error message itself when it fails.
func resolveProduct(ctx context.Context, api *tgbotapi.BotAPI, message *tgbotapi.Message, db *database.DB, arg string) (models.Product, bool) {
	number, err := strconv.Atoi(arg)
	if err != nil {
		reply(api, message.Chat.ID, "❌ Please enter a valid number. Use /list to see your products.")
		return models.Product{}, false
	}

	products, err := db.GetUserProducts(ctx, message.From.ID)
	if err != nil {
		log.WithFields(log.Fields{"user": message.From.ID, "err": err}).Error("Failed to list products")
		reply(api, message.Chat.ID, "❌ Something went wrong. Please try again.")
		return models.Product{}, false
	}

	if number < 1 || number > len(products) {
		reply(api, message.Chat.ID, "❌ Invalid product number. Use /list to see your products.")
		return models.Product{}, false
	}

	return products[number-1], true
}

func formatPrice(p models.Product) string {
	if p.LastCheckedPrice != nil {
		return fmt.Sprintf("₹%.2f", *p.LastCheckedPrice)
	}
	if p.InitialPrice > 0 {
		return fmt.Sprintf("₹%.2f", p.InitialPrice)
	}
	return "Price not found"
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
