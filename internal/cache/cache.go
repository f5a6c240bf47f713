package cache

import (
	"context"
	"time"
)

// BytesCache — минимальный контракт кэша "как есть" (best-effort):
// отсутствие значения не является ошибкой.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
