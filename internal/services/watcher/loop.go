package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/BearBump/FareBox/internal/airports"
	"github.com/BearBump/FareBox/internal/broker/messages"
	"github.com/BearBump/FareBox/internal/integrations/flights"
	"go.uber.org/zap"
)

type loopParams struct {
	trackerID   uint64
	userID      uint64
	chatID      int64
	origin      string
	destination string
	date        string
	priceLimit  int64

	// Предложение, уже полученное при создании: первый цикл не ходит в API.
	initialOffer *flights.Offer
}

// runLoop — один трекер, один цикл. Крутится до отмены контекста; сам
// завершаться не умеет, даже если рейсов давно нет, чтобы поймать их появление.
func (s *Service) runLoop(ctx context.Context, p loopParams) {
	log := s.logger.With(
		zap.Uint64("tracker_id", p.trackerID),
		zap.String("origin", p.origin),
		zap.String("destination", p.destination),
		zap.String("date", p.date),
	)
	log.Info("watch loop started", zap.Int64("price_limit", p.priceLimit))

	first := p.initialOffer
	for {
		s.cycle(ctx, p, first, log)
		first = nil

		select {
		case <-ctx.Done():
			log.Info("watch loop stopped")
			return
		case <-time.After(s.pollInterval):
		}
	}
}

func (s *Service) cycle(ctx context.Context, p loopParams, offer *flights.Offer, log *zap.Logger) {
	s.totalCycles.Add(1)

	if offer == nil {
		var err error
		offer, err = s.flights.FetchCheapest(ctx, p.origin, p.destination, p.date)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("price fetch failed", zap.Error(err))
				s.recordError(err)
			}
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	if offer == nil {
		return
	}
	if offer.Price >= p.priceLimit {
		return
	}

	last, err := s.store.GetLastSentPrice(ctx, p.trackerID)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("last sent price read failed", zap.Error(err))
			s.recordError(err)
		}
		return
	}
	// Шлём только строго дешевле уже отправленного: цена, гуляющая под
	// потолком, не спамит пользователя.
	if last != nil && offer.Price >= *last {
		return
	}

	text := formatAlert(p, offer, upperCurrency(s.currency))
	if err := s.notifier.Notify(ctx, p.chatID, text); err != nil {
		if ctx.Err() == nil {
			log.Warn("notify failed, will retry next cycle", zap.Error(err))
			s.recordError(err)
		}
		return
	}

	s.totalNotified.Add(1)
	log.Info("alert sent", zap.Int64("price", offer.Price))

	if err := s.store.SetLastSentPrice(ctx, p.trackerID, offer.Price); err != nil {
		log.Warn("last sent price write failed", zap.Error(err))
		s.recordError(err)
	}
	s.publishAlert(ctx, p, offer.Price)
}

func (s *Service) publishAlert(ctx context.Context, p loopParams, price int64) {
	if s.producer == nil || s.topic == "" {
		return
	}
	b, err := json.Marshal(messages.FareAlertSent{
		TrackerID:   p.trackerID,
		UserID:      p.userID,
		Origin:      p.origin,
		Destination: p.destination,
		Date:        p.date,
		Price:       price,
		SentAt:      time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := s.producer.Publish(ctx, s.topic, []byte(strconv.FormatUint(p.trackerID, 10)), b); err != nil {
		s.logger.Warn("alert event publish failed", zap.Uint64("tracker_id", p.trackerID), zap.Error(err))
	}
}

func formatAlert(p loopParams, offer *flights.Offer, currency string) string {
	text := fmt.Sprintf(
		"✈️ <b>Цена упала!</b>\n\n%s (%s) → %s (%s)\n📅 %s\n💰 <b>%d %s</b> (лимит %d)",
		airports.Name(p.origin), p.origin,
		airports.Name(p.destination), p.destination,
		p.date,
		offer.Price, currency, p.priceLimit,
	)
	if offer.Airline != "" {
		text += fmt.Sprintf("\n🛫 %s", offer.Airline)
	}
	if offer.DepartureAt != "" {
		text += fmt.Sprintf("\n🕓 Вылет: %s", offer.DepartureAt)
	}
	if offer.Link != "" {
		text += fmt.Sprintf("\n\n<a href=\"https://www.aviasales.ru%s\">Купить билет</a>", offer.Link)
	}
	return text
}
