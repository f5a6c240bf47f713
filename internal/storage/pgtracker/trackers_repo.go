package pgtracker

import (
	"context"
	"time"

	"github.com/BearBump/FareBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// ErrDuplicateTracker возвращается, когда активный трекер на эту связку
// (user, origin, destination, date) уже есть (включая проигранную гонку вставки).
var ErrDuplicateTracker = errors.New("tracker already active for this route and date")

func (s *Storage) CreateTracker(ctx context.Context, in models.TrackerCreateInput) (uint64, error) {
	now := time.Now().UTC()

	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO flight_trackers (user_id, origin, destination, date, price_limit, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, TRUE, $6, $6)
ON CONFLICT (user_id, origin, destination, date) WHERE active
DO NOTHING
RETURNING id
`, in.UserID, in.Origin, in.Destination, in.Date, in.PriceLimit, now).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, ErrDuplicateTracker
	}
	if err != nil {
		return 0, errors.Wrap(err, "insert tracker")
	}
	return id, nil
}

func (s *Storage) CountActive(ctx context.Context, userID uint64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM flight_trackers WHERE user_id = $1 AND active`, userID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "count active trackers")
	}
	return n, nil
}

func (s *Storage) ExistsActive(ctx context.Context, userID uint64, origin, destination, date string) (bool, error) {
	var one int
	err := s.db.QueryRow(ctx, `
SELECT 1 FROM flight_trackers
WHERE user_id = $1 AND origin = $2 AND destination = $3 AND date = $4 AND active
`, userID, origin, destination, date).Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "exists active tracker")
	}
	return true, nil
}

// ListActive — глобальная выборка для восстановления после рестарта.
func (s *Storage) ListActive(ctx context.Context) ([]*models.ActiveTracker, error) {
	rows, err := s.db.Query(ctx, `
SELECT ft.id, ft.user_id, u.telegram_id, ft.origin, ft.destination, ft.date, ft.price_limit, ft.last_sent_price
FROM flight_trackers ft
JOIN users u ON u.id = ft.user_id
WHERE ft.active
ORDER BY ft.id
`)
	if err != nil {
		return nil, errors.Wrap(err, "select active trackers")
	}
	defer rows.Close()

	var out []*models.ActiveTracker
	for rows.Next() {
		var t models.ActiveTracker
		if err := rows.Scan(
			&t.TrackerID, &t.UserID, &t.TelegramID,
			&t.Origin, &t.Destination, &t.Date,
			&t.PriceLimit, &t.LastSentPrice,
		); err != nil {
			return nil, errors.Wrap(err, "scan active tracker")
		}
		out = append(out, &t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) ListActiveForUser(ctx context.Context, userID uint64) ([]*models.Tracker, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, user_id, origin, destination, date, price_limit, active, last_sent_price, created_at, updated_at
FROM flight_trackers
WHERE user_id = $1 AND active
ORDER BY id
`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "select user trackers")
	}
	defer rows.Close()

	var out []*models.Tracker
	for rows.Next() {
		var t models.Tracker
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Origin, &t.Destination, &t.Date,
			&t.PriceLimit, &t.Active, &t.LastSentPrice,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan user tracker")
		}
		out = append(out, &t)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

// Deactivate — мягкое удаление, идемпотентно.
func (s *Storage) Deactivate(ctx context.Context, trackerID uint64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE flight_trackers SET active = FALSE, updated_at = now() WHERE id = $1`, trackerID)
	return errors.Wrap(err, "deactivate tracker")
}

func (s *Storage) DeactivateAll(ctx context.Context, userID uint64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE flight_trackers SET active = FALSE, updated_at = now() WHERE user_id = $1 AND active`, userID)
	return errors.Wrap(err, "deactivate all trackers")
}

func (s *Storage) GetLastSentPrice(ctx context.Context, trackerID uint64) (*int64, error) {
	var price *int64
	err := s.db.QueryRow(ctx,
		`SELECT last_sent_price FROM flight_trackers WHERE id = $1`, trackerID).Scan(&price)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get last sent price")
	}
	return price, nil
}

// SetLastSentPrice не проверяет монотонность: единственный писатель —
// цикл наблюдения своего трекера, он сравнивает цены до вызова.
func (s *Storage) SetLastSentPrice(ctx context.Context, trackerID uint64, price int64) error {
	_, err := s.db.Exec(ctx,
		`UPDATE flight_trackers SET last_sent_price = $2, updated_at = now() WHERE id = $1`, trackerID, price)
	return errors.Wrap(err, "set last sent price")
}
