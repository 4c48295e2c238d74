package main

import "sync"

// Update is one rollout event pushed to live subscribers.
type Update struct {
	SessionID string  `json:"session_id"`
	Seq       int     `json:"seq"`
	Decisions []int   `json:"decisions"`
	Score     float64 `json:"score"`
	OK        bool    `json:"ok"`
}

// Hub fans rollout updates out to websocket subscribers. Slow subscribers
// drop updates rather than stall the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[chan Update]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Update]struct{})}
}

// Subscribe returns a channel of updates and a cancel func that must be
// called when the subscriber goes away.
func (h *Hub) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers u to every subscriber that has room for it.
func (h *Hub) Publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
