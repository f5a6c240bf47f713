package models

import "time"

// Дата всегда хранится строкой в формате YYYY-MM-DD (без времени).
const DateLayout = "2006-01-02"

type User struct {
	ID         uint64
	TelegramID int64
	Username   *string
	CreatedAt  time.Time
}

type Tracker struct {
	ID            uint64
	UserID        uint64
	Origin        string
	Destination   string
	Date          string
	PriceLimit    int64
	Active        bool
	LastSentPrice *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ActiveTracker — строка глобальной выборки активных трекеров вместе с
// telegram_id владельца (нужен для доставки после рестарта).
type ActiveTracker struct {
	TrackerID     uint64
	UserID        uint64
	TelegramID    int64
	Origin        string
	Destination   string
	Date          string
	PriceLimit    int64
	LastSentPrice *int64
}

type TrackerCreateInput struct {
	UserID      uint64
	Origin      string
	Destination string
	Date        string
	PriceLimit  int64
}
