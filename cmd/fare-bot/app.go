package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BearBump/FareBox/config"
	"github.com/BearBump/FareBox/internal/broker/kafka"
	"github.com/BearBump/FareBox/internal/cache"
	"github.com/BearBump/FareBox/internal/cache/rediscache"
	"github.com/BearBump/FareBox/internal/delivery/telegram"
	"github.com/BearBump/FareBox/internal/integrations/flights"
	"github.com/BearBump/FareBox/internal/integrations/flights/aviasaleshttp"
	"github.com/BearBump/FareBox/internal/integrations/flights/fake"
	"github.com/BearBump/FareBox/internal/log"
	"github.com/BearBump/FareBox/internal/services/watcher"
	"github.com/BearBump/FareBox/internal/storage/pgtracker"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const defaultAviasalesBaseURL = "https://api.travelpayouts.com"

// storage покрывает и трекеры, и пользователей: pgtracker.Storage реализует оба.
type storage interface {
	watcher.Store
	telegram.UserStore
}

type botRunner interface {
	Start(ctx context.Context) error
}

type appFactories struct {
	newStorage  func(cfg *config.Config) (st storage, closeFn func(), err error)
	newFlights  func(cfg *config.Config) flights.Client
	newProducer func(cfg *config.Config) watcher.Producer
	newCache    func(cfg *config.Config) (cache.BytesCache, func())
	newLimiter  func(cfg *config.Config) telegram.RateLimiter
	newBotAPI   func(cfg *config.Config) (*tgbotapi.BotAPI, error)
	newNotifier func(api *tgbotapi.BotAPI, logger *zap.Logger) watcher.Notifier
	newBot      func(api *tgbotapi.BotAPI, handlers *telegram.Handlers, pollTimeout int) botRunner
}

func defaultAppFactories() appFactories {
	return appFactories{
		newStorage: func(cfg *config.Config) (storage, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgtracker.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newFlights: func(cfg *config.Config) flights.Client {
			// Без токена ходить в Aviasales бессмысленно: для демо берём локальный fake.
			if cfg.FareBox.AviasalesToken != "" {
				baseURL := cfg.FareBox.AviasalesBaseURL
				if baseURL == "" {
					baseURL = defaultAviasalesBaseURL
				}
				return aviasaleshttp.New(baseURL, cfg.FareBox.AviasalesToken, cfg.FareBox.Currency)
			}
			return fake.New()
		},
		newProducer: func(cfg *config.Config) watcher.Producer {
			if cfg.Kafka.Host == "" {
				return nil
			}
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newCache: func(cfg *config.Config) (cache.BytesCache, func()) {
			if cfg.Redis.Host == "" {
				return nil, nil
			}
			c := rediscache.New(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))
			return c, func() { _ = c.Close() }
		},
		newLimiter: func(cfg *config.Config) telegram.RateLimiter {
			if cfg.Redis.Host == "" {
				return nil
			}
			return rediscache.NewRateLimiter(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))
		},
		newBotAPI: func(cfg *config.Config) (*tgbotapi.BotAPI, error) {
			return telegram.NewAPI(cfg.Telegram.Token)
		},
		newNotifier: func(api *tgbotapi.BotAPI, logger *zap.Logger) watcher.Notifier {
			return telegram.NewNotifier(api, logger)
		},
		newBot: func(api *tgbotapi.BotAPI, handlers *telegram.Handlers, pollTimeout int) botRunner {
			return telegram.NewBot(api, handlers, pollTimeout)
		},
	}
}

func RunFareBot(ctx context.Context, cfg *config.Config, f appFactories) error {
	logger, err := log.NewLogger(cfg.FareBox.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	topic := cfg.Kafka.AlertSentTopicName
	if topic == "" {
		topic = "fare.alert.sent"
	}
	pollInterval := time.Duration(cfg.FareBox.PollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 100 * time.Second
	}
	offerTTL := time.Duration(cfg.FareBox.OfferCacheTTLSeconds) * time.Second
	if offerTTL <= 0 {
		offerTTL = 90 * time.Second
	}
	pollTimeout := cfg.Telegram.PollTimeoutSeconds
	if pollTimeout <= 0 {
		pollTimeout = 30
	}
	commandsPerMinute := int64(cfg.Telegram.CommandsPerMinute)
	if commandsPerMinute <= 0 {
		commandsPerMinute = 20
	}

	st, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	offerCache, closeCache := f.newCache(cfg)
	if closeCache != nil {
		defer closeCache()
	}

	api, err := f.newBotAPI(cfg)
	if err != nil {
		return err
	}

	svc := watcher.New(st, f.newFlights(cfg), f.newNotifier(api, logger), watcher.NewRegistry(), logger).
		WithSettings(pollInterval, offerTTL, cfg.FareBox.Currency).
		WithProducer(f.newProducer(cfg), topic).
		WithOfferCache(offerCache)

	// Активные трекеры поднимаются до приёма первой команды.
	if err := svc.RestoreAll(ctx); err != nil {
		return err
	}

	go func() {
		if err := runOpsHTTPServer(ctx, opsHTTPOpts{
			httpAddr: cfg.FareBox.HTTPAddr,
			watcher:  svc,
			cfg:      cfg,
		}); err != nil && err != context.Canceled {
			logger.Warn("ops http server stopped", zap.Error(err))
		}
	}()

	handlers := telegram.NewHandlers(st, svc, f.newLimiter(cfg), commandsPerMinute, logger)
	return f.newBot(api, handlers, pollTimeout).Start(ctx)
}
