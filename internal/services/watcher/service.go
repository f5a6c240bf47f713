package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/FareBox/internal/cache"
	"github.com/BearBump/FareBox/internal/integrations/flights"
	"github.com/BearBump/FareBox/internal/models"
	"github.com/BearBump/FareBox/internal/storage/pgtracker"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// MaxActiveTrackers — квота активных трекеров на пользователя.
const MaxActiveTrackers = 5

type Store interface {
	CreateTracker(ctx context.Context, in models.TrackerCreateInput) (uint64, error)
	CountActive(ctx context.Context, userID uint64) (int, error)
	ExistsActive(ctx context.Context, userID uint64, origin, destination, date string) (bool, error)
	ListActive(ctx context.Context) ([]*models.ActiveTracker, error)
	ListActiveForUser(ctx context.Context, userID uint64) ([]*models.Tracker, error)
	Deactivate(ctx context.Context, trackerID uint64) error
	DeactivateAll(ctx context.Context, userID uint64) error
	GetLastSentPrice(ctx context.Context, trackerID uint64) (*int64, error)
	SetLastSentPrice(ctx context.Context, trackerID uint64, price int64) error
}

type Notifier interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Причины пропуска дат при создании (отдаются пользователю как есть).
const (
	SkipReasonBadDate   = "неверная дата (формат YYYY-MM-DD или дата в прошлом)"
	SkipReasonNoSlots   = "нет свободных слотов (достигнут лимит)"
	SkipReasonNoFlights = "рейсы не найдены (проверь IATA-коды и дату)"
	SkipReasonDuplicate = "уже отслеживается"
)

type Service struct {
	store    Store
	flights  flights.Client
	notifier Notifier
	producer Producer
	cache    cache.BytesCache
	registry *Registry
	logger   *zap.Logger

	topic        string
	pollInterval time.Duration
	offerTTL     time.Duration
	currency     string

	startedAtUnixNano int64
	totalCycles       atomic.Int64
	totalNotified     atomic.Int64
	totalErrors       atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(store Store, fc flights.Client, notifier Notifier, registry *Registry, logger *zap.Logger) *Service {
	return &Service{
		store:             store,
		flights:           fc,
		notifier:          notifier,
		registry:          registry,
		logger:            logger,
		pollInterval:      100 * time.Second,
		offerTTL:          90 * time.Second,
		currency:          "rub",
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (s *Service) WithSettings(pollInterval, offerTTL time.Duration, currency string) *Service {
	if pollInterval > 0 {
		s.pollInterval = pollInterval
	}
	if offerTTL > 0 {
		s.offerTTL = offerTTL
	}
	if currency != "" {
		s.currency = currency
	}
	return s
}

// WithProducer подключает best-effort поток событий об отправленных уведомлениях.
func (s *Service) WithProducer(p Producer, topic string) *Service {
	s.producer = p
	if topic != "" {
		s.topic = topic
	}
	return s
}

func (s *Service) WithOfferCache(c cache.BytesCache) *Service {
	s.cache = c
	return s
}

type CreateRequest struct {
	UserID      uint64
	ChatID      int64
	Origin      string
	Destination string
	Dates       []string
	PriceLimit  int64
}

type PendingTracker struct {
	TrackerID    uint64
	Date         string
	InitialOffer *flights.Offer
}

type SkippedDate struct {
	Date   string
	Reason string
}

type CreateResult struct {
	Accepted []PendingTracker
	Skipped  []SkippedDate
}

// CreateTrackers валидирует запрос и создаёт записи по датам, не запуская циклы:
// сначала вызывающая сторона подтверждает результат пользователю, затем зовёт
// StartTrackers с принятым списком.
func (s *Service) CreateTrackers(ctx context.Context, req CreateRequest) (CreateResult, error) {
	var res CreateResult

	if req.Origin == "" || req.Destination == "" {
		return res, errors.New("origin and destination are required")
	}
	if req.PriceLimit <= 0 {
		return res, errors.New("price limit must be positive")
	}
	if len(req.Dates) == 0 {
		return res, errors.New("dates are empty")
	}

	active, err := s.store.CountActive(ctx, req.UserID)
	if err != nil {
		return res, err
	}
	slots := MaxActiveTrackers - active

	for _, date := range req.Dates {
		if !isValidDate(date) {
			res.Skipped = append(res.Skipped, SkippedDate{Date: date, Reason: SkipReasonBadDate})
			continue
		}

		// Квота исчерпана: оставшиеся даты не ходят во внешний источник.
		if slots <= 0 {
			res.Skipped = append(res.Skipped, SkippedDate{Date: date, Reason: SkipReasonNoSlots})
			continue
		}

		offer, err := s.lookupOffer(ctx, req.Origin, req.Destination, date)
		if err != nil || offer == nil {
			if err != nil {
				s.logger.Warn("price lookup failed on create",
					zap.String("origin", req.Origin), zap.String("destination", req.Destination),
					zap.String("date", date), zap.Error(err))
			}
			res.Skipped = append(res.Skipped, SkippedDate{Date: date, Reason: SkipReasonNoFlights})
			continue
		}

		exists, err := s.store.ExistsActive(ctx, req.UserID, req.Origin, req.Destination, date)
		if err != nil {
			return res, err
		}
		if exists {
			res.Skipped = append(res.Skipped, SkippedDate{Date: date, Reason: SkipReasonDuplicate})
			continue
		}

		trackerID, err := s.store.CreateTracker(ctx, models.TrackerCreateInput{
			UserID:      req.UserID,
			Origin:      req.Origin,
			Destination: req.Destination,
			Date:        date,
			PriceLimit:  req.PriceLimit,
		})
		if errors.Is(err, pgtracker.ErrDuplicateTracker) {
			res.Skipped = append(res.Skipped, SkippedDate{Date: date, Reason: SkipReasonDuplicate})
			continue
		}
		if err != nil {
			return res, err
		}

		res.Accepted = append(res.Accepted, PendingTracker{
			TrackerID:    trackerID,
			Date:         date,
			InitialOffer: offer,
		})
		slots--
	}

	return res, nil
}

// StartTrackers запускает цикл на каждый принятый трекер. Контекст должен жить
// столько же, сколько процесс: от него наследуются контексты циклов.
func (s *Service) StartTrackers(ctx context.Context, req CreateRequest, accepted []PendingTracker) {
	for _, p := range accepted {
		s.spawn(ctx, loopParams{
			trackerID:    p.TrackerID,
			userID:       req.UserID,
			chatID:       req.ChatID,
			origin:       req.Origin,
			destination:  req.Destination,
			date:         p.Date,
			priceLimit:   req.PriceLimit,
			initialOffer: p.InitialOffer,
		})
	}
}

// StopTracker: деактивация в БД и отмена цикла независимы и best-effort,
// отказ одной половины не мешает другой.
func (s *Service) StopTracker(ctx context.Context, trackerID uint64) {
	if err := s.store.Deactivate(ctx, trackerID); err != nil {
		s.logger.Warn("deactivate tracker failed", zap.Uint64("tracker_id", trackerID), zap.Error(err))
	}
	found := s.registry.CancelTracker(trackerID)
	s.logger.Info("tracker stopped", zap.Uint64("tracker_id", trackerID), zap.Bool("task_found", found))
}

func (s *Service) StopAllForUser(ctx context.Context, userID uint64) int {
	if err := s.store.DeactivateAll(ctx, userID); err != nil {
		s.logger.Warn("deactivate all trackers failed", zap.Uint64("user_id", userID), zap.Error(err))
	}
	n := s.registry.CancelAllForUser(userID)
	s.logger.Info("all trackers stopped", zap.Uint64("user_id", userID), zap.Int("cancelled", n))
	return n
}

// RestoreAll поднимает цикл на каждый активный трекер из БД. Вызывается на
// старте процесса до приёма команд; last_sent_price не трогается, поэтому
// после рестарта не бывает повторных уведомлений о той же цене.
func (s *Service) RestoreAll(ctx context.Context) error {
	trackers, err := s.store.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, t := range trackers {
		s.spawn(ctx, loopParams{
			trackerID:   t.TrackerID,
			userID:      t.UserID,
			chatID:      t.TelegramID,
			origin:      t.Origin,
			destination: t.Destination,
			date:        t.Date,
			priceLimit:  t.PriceLimit,
		})
	}
	s.logger.Info("trackers restored", zap.Int("count", len(trackers)))
	return nil
}

func (s *Service) ListForUser(ctx context.Context, userID uint64) ([]*models.Tracker, error) {
	return s.store.ListActiveForUser(ctx, userID)
}

func (s *Service) Currency() string {
	return s.currency
}

func (s *Service) spawn(ctx context.Context, p loopParams) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.registry.Register(p.trackerID, p.userID, cancel, done)
	go func() {
		defer close(done)
		s.runLoop(loopCtx, p)
	}()
}

// lookupOffer — проверка цены на этапе создания; ходит через кэш, чтобы
// повторные /track и список не дёргали внешний API на каждую дату.
func (s *Service) lookupOffer(ctx context.Context, origin, destination, date string) (*flights.Offer, error) {
	key := fmt.Sprintf("offer:%s:%s:%s", origin, destination, date)

	if s.cache != nil {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var o flights.Offer
			if json.Unmarshal(b, &o) == nil {
				return &o, nil
			}
		}
	}

	offer, err := s.flights.FetchCheapest(ctx, origin, destination, date)
	if err != nil || offer == nil {
		return offer, err
	}

	if s.cache != nil {
		if b, err := json.Marshal(offer); err == nil {
			_ = s.cache.Set(ctx, key, b, s.offerTTL)
		}
	}
	return offer, nil
}

func isValidDate(date string) bool {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return false
	}
	today, _ := time.Parse(models.DateLayout, time.Now().UTC().Format(models.DateLayout))
	return !d.Before(today)
}

type Stats struct {
	StartedAt     time.Time `json:"startedAt"`
	ActiveLoops   int       `json:"activeLoops"`
	TotalCycles   int64     `json:"totalCycles"`
	TotalNotified int64     `json:"totalNotified"`
	TotalErrors   int64     `json:"totalErrors"`
	LastError     string    `json:"lastError,omitempty"`
}

func (s *Service) Stats() Stats {
	st := Stats{
		StartedAt:     time.Unix(0, s.startedAtUnixNano).UTC(),
		ActiveLoops:   s.registry.Len(),
		TotalCycles:   s.totalCycles.Load(),
		TotalNotified: s.totalNotified.Load(),
		TotalErrors:   s.totalErrors.Load(),
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Service) recordError(err error) {
	s.totalErrors.Add(1)
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
}

func upperCurrency(c string) string {
	return strings.ToUpper(c)
}
