package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/akhouriprakhar/price-monitor-bot/config"
	"github.com/akhouriprakhar/price-monitor-bot/internal/bot"
	"github.com/akhouriprakhar/price-monitor-bot/internal/database"
	"github.com/akhouriprakhar/price-monitor-bot/internal/monitor"
	"github.com/akhouriprakhar/price-monitor-bot/internal/scraper"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info(".env file not found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.WithFields(log.Fields{
		"interval":  cfg.CheckInterval(),
		"threshold": cfg.PriceAlertThreshold,
	}).Info("Configuration loaded")

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	api, err := bot.Init(cfg.BotToken)
	if err != nil {
		log.Fatalf("Failed to initialize Telegram bot: %v", err)
	}

	sc := scraper.New()

	mon := monitor.New(db, sc, bot.NewNotifier(api), cfg.CheckInterval(), cfg.PriceAlertThreshold)
	mon.Start()

	go bot.SetupCommands(api, db, sc)
	log.Info("Price Monitor Bot is running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down bot...")
	mon.Stop()
}
