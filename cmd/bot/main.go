package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/udevs/promocast/internal/bot"
	"github.com/udevs/promocast/internal/broadcast"
	"github.com/udevs/promocast/internal/config"
	"github.com/udevs/promocast/internal/db"
	"github.com/udevs/promocast/internal/groups"
	"github.com/udevs/promocast/internal/linking"
	"github.com/udevs/promocast/internal/premium"
	"github.com/udevs/promocast/internal/store"
	"github.com/udevs/promocast/internal/userbot"
	"github.com/udevs/promocast/internal/web"
)

func main() {
	boot := zerolog.New(os.Stderr)
	cfg, err := config.Load()
	if err != nil {
		boot.Fatal().Err(err).Msg("config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	s := store.New(conn)

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("bot api")
	}
	log.Info().Str("bot", api.Self.UserName).Msg("authorized")

	dialer := userbot.NewGogramDialer()
	prem := premium.NewService(s, log)
	reg := groups.NewRegistry(s, log)
	flow := linking.NewFlow(s, dialer, cfg.AppID, cfg.AppHash, log)
	notifier := bot.NewNotifier(api, s, log)
	sched := broadcast.NewScheduler(dialer, reg, flow, notifier, cfg.AppID, cfg.AppHash, log)

	dispatcher := bot.NewDispatcher(api, s, prem, flow, reg, sched, cfg.AdminID, cfg.AdminUsername, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           web.Router(prem, sched),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("ops listener up")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("ops listener")
		}
	}()

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := api.GetUpdatesChan(updateCfg)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	log.Info().Msg("polling for updates")
	for {
		select {
		case u := <-updates:
			// The dispatcher serializes per user internally; updates
			// from different users are handled concurrently.
			go dispatcher.HandleUpdate(u)
		case sig := <-stop:
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			api.StopReceivingUpdates()
			sched.StopAll()
			_ = srv.Close()
			return
		}
	}
}
