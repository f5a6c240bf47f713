package watcher

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/FareBox/internal/broker/messages"
	"github.com/BearBump/FareBox/internal/integrations/flights"
	"github.com/BearBump/FareBox/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLoopParams() loopParams {
	return loopParams{
		trackerID:   1,
		userID:      10,
		chatID:      1000,
		origin:      "SVO",
		destination: "LED",
		date:        "2026-12-01",
		priceLimit:  7000,
	}
}

func seedLoopTracker(store *memStore) {
	store.seedTracker(&models.Tracker{
		ID: 1, UserID: 10, Origin: "SVO", Destination: "LED",
		Date: "2026-12-01", PriceLimit: 7000, Active: true,
	})
}

func TestCycle_NotifiesOnlyOnDrops(t *testing.T) {
	store := newMemStore()
	seedLoopTracker(store)
	fc := (&stubFlights{}).push(6500).push(6500).push(5000).push(7200)
	notifier := &stubNotifier{}
	svc := New(store, fc, notifier, NewRegistry(), zap.NewNop())

	ctx := context.Background()
	p := testLoopParams()
	for i := 0; i < 4; i++ {
		svc.cycle(ctx, p, nil, svc.logger)
	}

	texts := notifier.texts()
	require.Len(t, texts, 2)
	require.Contains(t, texts[0], "6500")
	require.Contains(t, texts[1], "5000")
	require.Contains(t, texts[0], "Москва")

	last, err := store.GetLastSentPrice(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, last)
	require.Equal(t, int64(5000), *last)

	st := svc.Stats()
	require.Equal(t, int64(4), st.TotalCycles)
	require.Equal(t, int64(2), st.TotalNotified)
	require.Equal(t, int64(0), st.TotalErrors)
}

func TestCycle_NoFlightsAndErrors(t *testing.T) {
	store := newMemStore()
	seedLoopTracker(store)
	fc := (&stubFlights{}).pushNone().pushErr(errors.New("api down")).push(6000)
	notifier := &stubNotifier{}
	svc := New(store, fc, notifier, NewRegistry(), zap.NewNop())

	ctx := context.Background()
	p := testLoopParams()
	for i := 0; i < 3; i++ {
		svc.cycle(ctx, p, nil, svc.logger)
	}

	// Пустой цикл и ошибка не мешают следующему циклу уведомить.
	require.Len(t, notifier.texts(), 1)

	st := svc.Stats()
	require.Equal(t, int64(1), st.TotalErrors)
	require.Equal(t, "api down", st.LastError)
}

func TestCycle_NotifyFailureKeepsLastPrice(t *testing.T) {
	store := newMemStore()
	seedLoopTracker(store)
	fc := (&stubFlights{}).push(6500).push(6500)
	notifier := &stubNotifier{}
	notifier.failNext(errors.New("telegram 502"))
	svc := New(store, fc, notifier, NewRegistry(), zap.NewNop())

	ctx := context.Background()
	p := testLoopParams()
	svc.cycle(ctx, p, nil, svc.logger)

	last, err := store.GetLastSentPrice(ctx, 1)
	require.NoError(t, err)
	require.Nil(t, last)

	// Та же цена уходит повторно, раз прошлая отправка не удалась.
	svc.cycle(ctx, p, nil, svc.logger)
	require.Len(t, notifier.texts(), 1)
	require.Contains(t, notifier.texts()[0], "6500")
}

func TestCycle_InitialOfferSkipsFetch(t *testing.T) {
	store := newMemStore()
	seedLoopTracker(store)
	fc := &stubFlights{}
	notifier := &stubNotifier{}
	svc := New(store, fc, notifier, NewRegistry(), zap.NewNop())

	p := testLoopParams()
	svc.cycle(context.Background(), p, &flights.Offer{Price: 6400}, svc.logger)

	require.Equal(t, 0, fc.calls)
	require.Len(t, notifier.texts(), 1)
}

func TestCycle_MonotonicSentPrices(t *testing.T) {
	store := newMemStore()
	seedLoopTracker(store)
	prices := []int64{6900, 6400, 6400, 6800, 5100, 5100, 4000, 6900, 3999}
	fc := &stubFlights{}
	for _, pr := range prices {
		fc.push(pr)
	}
	notifier := &stubNotifier{}
	svc := New(store, fc, notifier, NewRegistry(), zap.NewNop())

	ctx := context.Background()
	p := testLoopParams()
	for range prices {
		svc.cycle(ctx, p, nil, svc.logger)
	}

	texts := notifier.texts()
	require.Len(t, texts, 5)
	for i, want := range []string{"6900", "6400", "5100", "4000", "3999"} {
		require.Contains(t, texts[i], want)
	}
}

func TestRunLoop_EmptyCyclesStayCancellable(t *testing.T) {
	store := newMemStore()
	seedLoopTracker(store)
	fc := &stubFlights{} // пустая очередь: каждый цикл без рейсов
	svc := New(store, fc, &stubNotifier{}, NewRegistry(), zap.NewNop()).
		WithSettings(5*time.Millisecond, 0, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.spawn(ctx, testLoopParams())

	require.Eventually(t, func() bool {
		return svc.Stats().TotalCycles >= 3
	}, time.Second, 5*time.Millisecond)

	require.True(t, svc.registry.CancelTracker(1))
	require.Equal(t, 0, svc.registry.Len())
}

type stubProducer struct {
	mu     sync.Mutex
	topics []string
	values [][]byte
}

func (p *stubProducer) Publish(_ context.Context, topic string, _, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.values = append(p.values, value)
	return nil
}

func TestCycle_PublishesAlertEvent(t *testing.T) {
	store := newMemStore()
	seedLoopTracker(store)
	fc := (&stubFlights{}).push(6500)
	producer := &stubProducer{}
	svc := New(store, fc, &stubNotifier{}, NewRegistry(), zap.NewNop()).
		WithProducer(producer, "fare.alert.sent")

	svc.cycle(context.Background(), testLoopParams(), nil, svc.logger)

	require.Len(t, producer.values, 1)
	require.Equal(t, "fare.alert.sent", producer.topics[0])

	var ev messages.FareAlertSent
	require.NoError(t, json.Unmarshal(producer.values[0], &ev))
	require.Equal(t, uint64(1), ev.TrackerID)
	require.Equal(t, int64(6500), ev.Price)
	require.Equal(t, "SVO", ev.Origin)
}

func TestFormatAlert(t *testing.T) {
	text := formatAlert(testLoopParams(), &flights.Offer{
		Price: 6500, Airline: "SU", Link: "/search/SVO0112LED1",
	}, "RUB")

	require.Contains(t, text, "Москва (Шереметьево) (SVO)")
	require.Contains(t, text, "Санкт-Петербург (Пулково) (LED)")
	require.Contains(t, text, "6500 RUB")
	require.Contains(t, text, "https://www.aviasales.ru/search/SVO0112LED1")
	require.Contains(t, text, "2026-12-01")

	text = formatAlert(testLoopParams(), &flights.Offer{
		Price: 6500, DepartureAt: "2026-12-01T10:35:00+03:00",
	}, "RUB")
	require.Contains(t, text, "Вылет: 2026-12-01T10:35:00+03:00")
	require.NotContains(t, text, "aviasales.ru")
}
