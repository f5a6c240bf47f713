package aviasaleshttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/FareBox/internal/integrations/flights"
	"github.com/pkg/errors"
)

type Client struct {
	baseURL  string
	token    string
	currency string
	httpc    *http.Client
}

func New(baseURL, token, currency string) *Client {
	if baseURL == "" {
		baseURL = "https://api.travelpayouts.com"
	}
	if currency == "" {
		currency = "rub"
	}
	return &Client{
		baseURL:  baseURL,
		token:    token,
		currency: currency,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type pricesResp struct {
	Success bool `json:"success"`
	Data    []struct {
		Price       int64  `json:"price"`
		Airline     string `json:"airline"`
		DepartureAt string `json:"departure_at"`
		Link        string `json:"link"`
	} `json:"data"`
}

func (c *Client) FetchCheapest(ctx context.Context, origin, destination, date string) (*flights.Offer, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	u.Path = "/aviasales/v3/prices_for_dates"

	q := u.Query()
	q.Set("origin", origin)
	q.Set("destination", destination)
	q.Set("departure_at", date)
	q.Set("token", c.token)
	q.Set("currency", c.currency)
	q.Set("one_way", "true")
	q.Set("direct", "false")
	q.Set("limit", "10")
	q.Set("page", "1")
	q.Set("sorting", "price")
	q.Set("unique", "false")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("aviasales http %d", resp.StatusCode)
	}

	var r pricesResp
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, errors.Wrap(err, "decode")
	}
	if !r.Success {
		return nil, fmt.Errorf("aviasales success=false")
	}
	if len(r.Data) == 0 {
		return nil, nil
	}

	// Ответ уже отсортирован по цене, берём первый.
	best := r.Data[0]
	return &flights.Offer{
		Price:       best.Price,
		Airline:     best.Airline,
		DepartureAt: best.DepartureAt,
		Link:        best.Link,
	}, nil
}
