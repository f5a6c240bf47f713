package fake

import (
	"context"
	"hash/fnv"

	"github.com/BearBump/FareBox/internal/integrations/flights"
)

// FakeClient — детерминированная заглушка источника цен для локального запуска
// без токена Aviasales. Цена и наличие рейса зависят только от (origin, destination, date).
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

var airlines = []string{"SU", "DP", "S7", "U6", "FV"}

func (f *FakeClient) FetchCheapest(ctx context.Context, origin, destination, date string) (*flights.Offer, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(origin))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(destination))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(date))
	v := h.Sum32()

	// Примерно каждый седьмой маршрут "без рейсов".
	if v%7 == 0 {
		return nil, nil
	}

	return &flights.Offer{
		Price:       3000 + int64(v%9000),
		Airline:     airlines[v%uint32(len(airlines))],
		DepartureAt: date + "T10:00:00+03:00",
		Link:        "/search/" + origin + destination,
	}, nil
}
