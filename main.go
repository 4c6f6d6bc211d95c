package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"B24Relay/bot"
	"B24Relay/impl/core"
	"B24Relay/internal/config"
	repository "B24Relay/internal/database"
	"B24Relay/internal/http-server/api"
	"B24Relay/internal/lib/logger"
	"B24Relay/internal/lib/sl"
	"B24Relay/internal/service/bitrix"
	"B24Relay/internal/service/evolution"
	"B24Relay/internal/service/oauth"
	"B24Relay/internal/ws"
)

func main() {

	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	lg := logger.SetupLogger(conf.Env, *logPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Telegram alerts for error records
	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		var err error
		tgBot, err = bot.NewTgBot(conf.Telegram.BotName, conf.Telegram.ApiKey, conf.Telegram.AdminId, lg)
		if err != nil {
			lg.Error("failed to initialize telegram bot", sl.Err(err))
		} else {
			lg = logger.SetupTelegramHandler(lg, tgBot, slog.LevelError)
			lg.With(
				slog.String("bot_name", conf.Telegram.BotName),
			).Info("telegram bot initialized")
		}
	}

	lg.Info("starting b24relay", slog.String("config", *configPath), slog.String("env", conf.Env))
	lg.Debug("debug messages enabled")

	store, backend, err := repository.Open(conf, lg)
	if err != nil {
		lg.Error("open store", sl.Err(err))
		return
	}
	lg.With(slog.String("backend", backend)).Info("store initialized")
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	tokens := oauth.NewManager(conf, store, lg)
	crm := bitrix.NewClient(tokens, lg)
	gateway, err := evolution.NewClient(conf, lg)
	if err != nil {
		lg.Error("gateway client", sl.Err(err))
		return
	}
	lg.With(
		slog.String("url", conf.Evolution.BaseURL),
		slog.String("address_style", string(gateway.Style())),
		sl.Secret("token", conf.Evolution.Token),
	).Info("gateway client initialized")

	hub := ws.NewHub(lg)
	go hub.Run(ctx)

	handler := core.New(conf, lg)
	handler.SetRepository(store)
	handler.SetTokenManager(tokens)
	handler.SetCrmClient(crm)
	handler.SetGatewayClient(gateway)
	handler.SetBroadcaster(hub)
	handler.SetAuthKey(conf.Listen.ApiKey)

	handler.Init(ctx)

	if tgBot != nil {
		tgBot.SetStatsSource(handler)
		go func() {
			if err := tgBot.Start(); err != nil {
				lg.Warn("telegram bot stopped", sl.Err(err))
			}
		}()
	}

	// *** blocking start with http server ***
	err = api.New(ctx, conf, lg, handler, hub)
	if err != nil {
		lg.Error("server start", sl.Err(err))
		return
	}
	lg.Info("service stopped")
}
