package flights

import "context"

// Offer — самое дешёвое предложение на конкретную дату.
type Offer struct {
	Price       int64  `json:"price"`
	Airline     string `json:"airline"`
	DepartureAt string `json:"departure_at"`
	Link        string `json:"link"`
}

type Client interface {
	// FetchCheapest возвращает (nil, nil), если рейсов на дату не найдено.
	FetchCheapest(ctx context.Context, origin, destination, date string) (*Offer, error)
}
