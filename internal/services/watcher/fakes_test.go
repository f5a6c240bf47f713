package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/BearBump/FareBox/internal/integrations/flights"
	"github.com/BearBump/FareBox/internal/models"
	"github.com/BearBump/FareBox/internal/storage/pgtracker"
	"github.com/pkg/errors"
)

type memStore struct {
	mu       sync.Mutex
	nextID   uint64
	trackers map[uint64]*models.Tracker
	chatIDs  map[uint64]int64
}

func newMemStore() *memStore {
	return &memStore{
		trackers: make(map[uint64]*models.Tracker),
		chatIDs:  make(map[uint64]int64),
	}
}

func (m *memStore) CreateTracker(_ context.Context, in models.TrackerCreateInput) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trackers {
		if t.Active && t.UserID == in.UserID && t.Origin == in.Origin &&
			t.Destination == in.Destination && t.Date == in.Date {
			return 0, pgtracker.ErrDuplicateTracker
		}
	}
	m.nextID++
	m.trackers[m.nextID] = &models.Tracker{
		ID:          m.nextID,
		UserID:      in.UserID,
		Origin:      in.Origin,
		Destination: in.Destination,
		Date:        in.Date,
		PriceLimit:  in.PriceLimit,
		Active:      true,
	}
	return m.nextID, nil
}

func (m *memStore) CountActive(_ context.Context, userID uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.trackers {
		if t.Active && t.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ExistsActive(_ context.Context, userID uint64, origin, destination, date string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trackers {
		if t.Active && t.UserID == userID && t.Origin == origin &&
			t.Destination == destination && t.Date == date {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListActive(_ context.Context) ([]*models.ActiveTracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ActiveTracker
	for _, t := range m.trackers {
		if !t.Active {
			continue
		}
		out = append(out, &models.ActiveTracker{
			TrackerID:     t.ID,
			UserID:        t.UserID,
			TelegramID:    m.chatIDs[t.UserID],
			Origin:        t.Origin,
			Destination:   t.Destination,
			Date:          t.Date,
			PriceLimit:    t.PriceLimit,
			LastSentPrice: t.LastSentPrice,
		})
	}
	return out, nil
}

func (m *memStore) ListActiveForUser(_ context.Context, userID uint64) ([]*models.Tracker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Tracker
	for _, t := range m.trackers {
		if t.Active && t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) Deactivate(_ context.Context, trackerID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.trackers[trackerID]; ok {
		t.Active = false
	}
	return nil
}

func (m *memStore) DeactivateAll(_ context.Context, userID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.trackers {
		if t.UserID == userID {
			t.Active = false
		}
	}
	return nil
}

func (m *memStore) GetLastSentPrice(_ context.Context, trackerID uint64) (*int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[trackerID]
	if !ok {
		return nil, errors.New("tracker not found")
	}
	if t.LastSentPrice == nil {
		return nil, nil
	}
	p := *t.LastSentPrice
	return &p, nil
}

func (m *memStore) SetLastSentPrice(_ context.Context, trackerID uint64, price int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.trackers[trackerID]
	if !ok {
		return errors.New("tracker not found")
	}
	t.LastSentPrice = &price
	return nil
}

func (m *memStore) seedTracker(t *models.Tracker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID > m.nextID {
		m.nextID = t.ID
	}
	m.trackers[t.ID] = t
}

type stubFetch struct {
	offer *flights.Offer
	err   error
}

// stubFlights отдаёт заранее заданные ответы по очереди; пустая очередь
// означает "рейсов нет".
type stubFlights struct {
	mu    sync.Mutex
	queue []stubFetch
	calls int
}

func (f *stubFlights) push(price int64) *stubFlights {
	f.queue = append(f.queue, stubFetch{offer: &flights.Offer{Price: price, Airline: "SU", Link: "/search/x"}})
	return f
}

func (f *stubFlights) pushNone() *stubFlights {
	f.queue = append(f.queue, stubFetch{})
	return f
}

func (f *stubFlights) pushErr(err error) *stubFlights {
	f.queue = append(f.queue, stubFetch{err: err})
	return f
}

func (f *stubFlights) FetchCheapest(_ context.Context, _, _, _ string) (*flights.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.queue) == 0 {
		return nil, nil
	}
	r := f.queue[0]
	f.queue = f.queue[1:]
	return r.offer, r.err
}

type sentAlert struct {
	chatID int64
	text   string
}

type stubNotifier struct {
	mu   sync.Mutex
	sent []sentAlert
	errs []error
}

func (n *stubNotifier) failNext(err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errs = append(n.errs, err)
}

func (n *stubNotifier) Notify(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.errs) > 0 {
		err := n.errs[0]
		n.errs = n.errs[1:]
		return err
	}
	n.sent = append(n.sent, sentAlert{chatID: chatID, text: text})
	return nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.data[key]
	return b, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = val
	return nil
}

func (n *stubNotifier) texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, a := range n.sent {
		out[i] = a.text
	}
	return out
}
