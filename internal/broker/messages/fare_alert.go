package messages

import "time"

// FareAlertSent публикуется после успешно доставленного уведомления о снижении цены.
// Поток нужен для внешней аналитики, в этом процессе он не читается.
type FareAlertSent struct {
	TrackerID   uint64    `json:"tracker_id"`
	UserID      uint64    `json:"user_id"`
	Origin      string    `json:"origin"`
	Destination string    `json:"destination"`
	Date        string    `json:"date"`
	Price       int64     `json:"price"`
	SentAt      time.Time `json:"sent_at"`
}
