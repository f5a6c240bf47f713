package watcher

import (
	"context"
	"sync"
	"time"
)

// taskHandle — живой цикл наблюдения за одним трекером.
type taskHandle struct {
	userID uint64
	cancel context.CancelFunc
	done   <-chan struct{}
}

// Registry — in-memory учёт запущенных циклов: tracker id -> handle и
// user id -> его handles. Только для поиска и отмены, бизнес-логики тут нет.
// Живёт ровно столько, сколько процесс; владелец — Service.
type Registry struct {
	mu        sync.Mutex
	byTracker map[uint64]*taskHandle
	byUser    map[uint64]map[uint64]*taskHandle

	stopWait time.Duration
}

func NewRegistry() *Registry {
	return &Registry{
		byTracker: make(map[uint64]*taskHandle),
		byUser:    make(map[uint64]map[uint64]*taskHandle),
		stopWait:  5 * time.Second,
	}
}

func (r *Registry) Register(trackerID, userID uint64, cancel context.CancelFunc, done <-chan struct{}) {
	h := &taskHandle{userID: userID, cancel: cancel, done: done}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTracker[trackerID] = h
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[uint64]*taskHandle)
	}
	r.byUser[userID][trackerID] = h
}

// CancelTracker сигналит циклу остановиться и дожидается подтверждения,
// после чего убирает запись. false — цикл не был зарегистрирован.
func (r *Registry) CancelTracker(trackerID uint64) bool {
	r.mu.Lock()
	h, ok := r.byTracker[trackerID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	h.cancel()
	select {
	case <-h.done:
	case <-time.After(r.stopWait):
	}

	r.Unregister(trackerID)
	return true
}

// CancelAllForUser останавливает все циклы пользователя, возвращает их число.
func (r *Registry) CancelAllForUser(userID uint64) int {
	r.mu.Lock()
	ids := make([]uint64, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	n := 0
	for _, id := range ids {
		if r.CancelTracker(id) {
			n++
		}
	}
	return n
}

func (r *Registry) Unregister(trackerID uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.byTracker[trackerID]
	if !ok {
		return
	}
	delete(r.byTracker, trackerID)
	if m := r.byUser[h.userID]; m != nil {
		delete(m, trackerID)
		if len(m) == 0 {
			delete(r.byUser, h.userID)
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byTracker)
}

func (r *Registry) LenForUser(userID uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUser[userID])
}
