package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BearBump/FareBox/internal/airports"
	"github.com/BearBump/FareBox/internal/services/watcher"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

type UserStore interface {
	UpsertUser(ctx context.Context, telegramID int64, username string) (uint64, error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Handlers struct {
	users             UserStore
	watcher           *watcher.Service
	limiter           RateLimiter
	commandsPerMinute int64
	logger            *zap.Logger
}

func NewHandlers(users UserStore, w *watcher.Service, limiter RateLimiter, commandsPerMinute int64, logger *zap.Logger) *Handlers {
	return &Handlers{
		users:             users,
		watcher:           w,
		limiter:           limiter,
		commandsPerMinute: commandsPerMinute,
		logger:            logger,
	}
}

func (h *Handlers) HandleUpdate(ctx context.Context, api *tgbotapi.BotAPI, update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		h.handleCallback(ctx, api, update.CallbackQuery)
		return
	}
	if update.Message == nil || update.Message.From == nil {
		return
	}
	if update.Message.IsCommand() {
		h.handleCommand(ctx, api, update)
	}
}

func (h *Handlers) handleCommand(ctx context.Context, api *tgbotapi.BotAPI, update tgbotapi.Update) {
	command := update.Message.Command()
	args := update.Message.CommandArguments()
	chatID := update.Message.Chat.ID
	telegramID := update.Message.From.ID
	username := update.Message.From.UserName

	h.logger.Info("telegram command received",
		zap.Int64("chat_id", chatID),
		zap.Int64("telegram_id", telegramID),
		zap.String("command", command),
		zap.String("args", args),
	)

	if !h.allow(ctx, telegramID) {
		h.reply(api, chatID, "Слишком много команд, подожди минуту.")
		return
	}

	switch command {
	case "start":
		if _, err := h.users.UpsertUser(ctx, telegramID, username); err != nil {
			h.logger.Warn("start command failed", zap.Int64("telegram_id", telegramID), zap.Error(err))
			h.reply(api, chatID, "Не получилось зарегистрировать, попробуй ещё раз.")
			return
		}
		h.reply(api, chatID, "Привет! Я слежу за ценами на авиабилеты.\n\n"+HelpText)
	case "help":
		h.reply(api, chatID, HelpText)
	case "track":
		h.handleTrack(ctx, api, chatID, telegramID, username, args)
	case "list":
		h.handleList(ctx, api, chatID, telegramID, username)
	case "stop":
		h.handleStopAll(ctx, api, chatID, telegramID, username)
	default:
		h.logger.Warn("unknown command", zap.Int64("telegram_id", telegramID), zap.String("command", command))
		h.reply(api, chatID, "Не знаю такой команды.\n\n"+HelpText)
	}
}

func (h *Handlers) handleTrack(ctx context.Context, api *tgbotapi.BotAPI, chatID, telegramID int64, username, args string) {
	origin, destination, dates, priceLimit, err := ParseTrackArgs(args)
	if err != nil {
		h.reply(api, chatID, "Формат: /track <откуда> <куда> <даты через запятую> <лимит цены>\nПример: /track SVO LED 2026-12-01,2026-12-05 7000")
		return
	}

	userID, err := h.users.UpsertUser(ctx, telegramID, username)
	if err != nil {
		h.logger.Warn("track upsert user failed", zap.Int64("telegram_id", telegramID), zap.Error(err))
		h.reply(api, chatID, "Что-то пошло не так, попробуй ещё раз.")
		return
	}

	req := watcher.CreateRequest{
		UserID:      userID,
		ChatID:      chatID,
		Origin:      origin,
		Destination: destination,
		Dates:       dates,
		PriceLimit:  priceLimit,
	}
	res, err := h.watcher.CreateTrackers(ctx, req)
	if err != nil {
		h.logger.Warn("create trackers failed", zap.Uint64("user_id", userID), zap.Error(err))
		h.reply(api, chatID, "Что-то пошло не так, попробуй ещё раз.")
		return
	}

	// Сначала ответ пользователю, потом запуск циклов: первый алерт не должен
	// обогнать подтверждение.
	h.reply(api, chatID, formatCreateResult(origin, destination, priceLimit, res))
	h.watcher.StartTrackers(ctx, req, res.Accepted)
}

func (h *Handlers) handleList(ctx context.Context, api *tgbotapi.BotAPI, chatID, telegramID int64, username string) {
	userID, err := h.users.UpsertUser(ctx, telegramID, username)
	if err != nil {
		h.reply(api, chatID, "Что-то пошло не так, попробуй ещё раз.")
		return
	}

	trackers, err := h.watcher.ListForUser(ctx, userID)
	if err != nil {
		h.logger.Warn("list trackers failed", zap.Uint64("user_id", userID), zap.Error(err))
		h.reply(api, chatID, "Что-то пошло не так, попробуй ещё раз.")
		return
	}
	if len(trackers) == 0 {
		h.reply(api, chatID, "Активных трекеров нет. Создай через /track.")
		return
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Активные трекеры (%d из %d):\n", len(trackers), watcher.MaxActiveTrackers))
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(trackers))
	for i, t := range trackers {
		b.WriteString(fmt.Sprintf("%d. %s → %s, %s, лимит %d\n", i+1, t.Origin, t.Destination, t.Date, t.PriceLimit))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("Остановить %s → %s %s", t.Origin, t.Destination, t.Date),
				StopCallbackData(t.ID),
			),
		))
	}

	msg := tgbotapi.NewMessage(chatID, b.String())
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := api.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Error(err))
	}
}

func (h *Handlers) handleStopAll(ctx context.Context, api *tgbotapi.BotAPI, chatID, telegramID int64, username string) {
	userID, err := h.users.UpsertUser(ctx, telegramID, username)
	if err != nil {
		h.reply(api, chatID, "Что-то пошло не так, попробуй ещё раз.")
		return
	}

	n := h.watcher.StopAllForUser(ctx, userID)
	if n == 0 {
		h.reply(api, chatID, "Останавливать нечего, активных трекеров нет.")
		return
	}
	h.reply(api, chatID, fmt.Sprintf("Остановлено трекеров: %d.", n))
}

func (h *Handlers) handleCallback(ctx context.Context, api *tgbotapi.BotAPI, cb *tgbotapi.CallbackQuery) {
	trackerID, err := ParseStopCallback(cb.Data)
	if err != nil {
		h.logger.Warn("unknown callback", zap.String("data", cb.Data))
		return
	}

	h.watcher.StopTracker(ctx, trackerID)

	if _, err := api.Request(tgbotapi.NewCallback(cb.ID, "Трекер остановлен")); err != nil {
		h.logger.Warn("callback answer failed", zap.Error(err))
	}
	if cb.Message != nil {
		h.reply(api, cb.Message.Chat.ID, "Трекер остановлен. Текущий список: /list")
	}
}

func (h *Handlers) allow(ctx context.Context, telegramID int64) bool {
	if h.limiter == nil || h.commandsPerMinute <= 0 {
		return true
	}
	key := fmt.Sprintf("tg:cmd:%d", telegramID)
	ok, n, err := h.limiter.Allow(ctx, key, h.commandsPerMinute, time.Minute)
	if err != nil {
		// Редис лёг: команды важнее лимита.
		h.logger.Warn("rate limit check failed", zap.Error(err))
		return true
	}
	if !ok {
		h.logger.Info("rate limited", zap.Int64("telegram_id", telegramID), zap.Int64("count", n))
	}
	return ok
}

func formatCreateResult(origin, destination string, priceLimit int64, res watcher.CreateResult) string {
	var b strings.Builder
	route := fmt.Sprintf("%s (%s) → %s (%s)", airports.Name(origin), origin, airports.Name(destination), destination)

	if len(res.Accepted) > 0 {
		b.WriteString(fmt.Sprintf("Слежу за %s, лимит %d:\n", route, priceLimit))
		for _, a := range res.Accepted {
			b.WriteString(fmt.Sprintf("• %s, сейчас от %d\n", a.Date, a.InitialOffer.Price))
		}
	} else {
		b.WriteString(fmt.Sprintf("Не получилось создать трекеры для %s.\n", route))
	}

	if len(res.Skipped) > 0 {
		b.WriteString("\nПропущено:\n")
		for _, s := range res.Skipped {
			b.WriteString(fmt.Sprintf("• %s: %s\n", s.Date, s.Reason))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handlers) reply(api *tgbotapi.BotAPI, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := api.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Error(err))
	}
}
