package pgtracker

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS users (
  id BIGSERIAL PRIMARY KEY,
  telegram_id BIGINT NOT NULL UNIQUE,
  username TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL
)`,
		`
CREATE TABLE IF NOT EXISTS flight_trackers (
  id BIGSERIAL PRIMARY KEY,
  user_id BIGINT NOT NULL REFERENCES users(id),
  origin TEXT NOT NULL,
  destination TEXT NOT NULL,
  date TEXT NOT NULL,
  price_limit BIGINT NOT NULL,
  active BOOLEAN NOT NULL DEFAULT TRUE,
  last_sent_price BIGINT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_flight_trackers_user_active ON flight_trackers(user_id) WHERE active`,
		// Закрывает гонку двух одновременных /track на одну связку: вставка
		// проигравшего упирается в индекс и репортится как "уже отслеживается".
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_flight_trackers_active_route
  ON flight_trackers(user_id, origin, destination, date) WHERE active`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
