package pgtracker

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// UpsertUser идемпотентен: повторный вызов возвращает существующий id.
// Username обновляется, если пришёл непустой (единственное изменяемое поле).
func (s *Storage) UpsertUser(ctx context.Context, telegramID int64, username string) (uint64, error) {
	var uname *string
	if username != "" {
		uname = &username
	}

	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO users (telegram_id, username, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (telegram_id)
DO UPDATE SET username = COALESCE(EXCLUDED.username, users.username)
RETURNING id
`, telegramID, uname, time.Now().UTC()).Scan(&id)
	if err != nil {
		return 0, errors.Wrap(err, "upsert user")
	}
	return id, nil
}
