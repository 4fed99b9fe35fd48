package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ahmetcoskunkizilkaya/rumorwatch/internal/models"
	"github.com/google/uuid"
)

type memorySub struct {
	ch   chan models.Notification
	once sync.Once
}

func (s *memorySub) close() {
	s.once.Do(func() { close(s.ch) })
}

// MemoryHub is an in-process Hub for single-node deployments and tests.
type MemoryHub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*memorySub]struct{}
	closed bool
}

func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[uuid.UUID]map[*memorySub]struct{})}
}

// Publish never blocks: a subscriber whose buffer is full misses the event.
func (h *MemoryHub) Publish(_ context.Context, n models.Notification) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[n.UserID] {
		select {
		case sub.ch <- n:
		default:
			slog.Warn("realtime subscriber buffer full, dropping event",
				"user_id", n.UserID.String(), "notification_id", n.ID.String())
		}
	}
	return nil
}

func (h *MemoryHub) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan models.Notification, func(), error) {
	sub := &memorySub{ch: make(chan models.Notification, subscriberBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.close()
		return sub.ch, func() {}, nil
	}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*memorySub]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[userID]; ok {
				delete(set, sub)
				if len(set) == 0 {
					delete(h.subs, userID)
				}
			}
			h.mu.Unlock()
			sub.close()
		})
	}

	go func() {
		<-ctx.Done()
		unsubscribe()
	}()

	return sub.ch, unsubscribe, nil
}

// Subscribers reports the number of live subscriptions for a user.
func (h *MemoryHub) Subscribers(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

func (h *MemoryHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for userID, set := range h.subs {
		for sub := range set {
			sub.close()
		}
		delete(h.subs, userID)
	}
	return nil
}
