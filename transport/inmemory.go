package transport

import (
	"context"
	"fmt"
	"sync"
)

// InMemory is a thread-safe in-process transport for tests and single-host
// swarms.
type InMemory struct {
	mu       sync.RWMutex
	handlers map[string][]handlerEntry // address -> handlers
	history  []*Message
	maxHist  int
	nextID   int
}

type handlerEntry struct {
	id      int
	handler Handler
}

// NewInMemory creates an InMemory transport with a 1000-message history cap.
func NewInMemory() *InMemory {
	return &InMemory{
		handlers: make(map[string][]handlerEntry),
		maxHist:  1000,
	}
}

// Send delivers msg synchronously. Handlers run outside the lock; handler
// errors are collected and do not stop delivery to the rest.
func (t *InMemory) Send(ctx context.Context, msg *Message) error {
	t.mu.Lock()
	t.history = append(t.history, msg)
	if len(t.history) > t.maxHist {
		t.history = t.history[len(t.history)-t.maxHist:]
	}

	var targets []Handler
	if msg.Broadcast() {
		for _, entries := range t.handlers {
			for _, e := range entries {
				targets = append(targets, e.handler)
			}
		}
	} else {
		for _, e := range t.handlers[msg.To] {
			targets = append(targets, e.handler)
		}
	}
	t.mu.Unlock()

	var errs []error
	for _, h := range targets {
		if err := h(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("send: %d handler error(s): %v", len(errs), errs[0])
	}
	return nil
}

// Subscribe registers a handler for messages addressed to address.
func (t *InMemory) Subscribe(address string, handler Handler) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID
	t.handlers[address] = append(t.handlers[address], handlerEntry{id: id, handler: handler})

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		entries := t.handlers[address]
		filtered := entries[:0]
		for _, e := range entries {
			if e.id != id {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) == 0 {
			delete(t.handlers, address)
		} else {
			t.handlers[address] = filtered
		}
	}
}

// History returns the most recent limit messages visible to address: those
// it sent, those addressed to it, and broadcasts.
func (t *InMemory) History(address string, limit int) ([]*Message, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []*Message
	for i := len(t.history) - 1; i >= 0; i-- {
		m := t.history[i]
		if m.To == address || m.From == address || m.Broadcast() {
			result = append(result, m)
			if limit > 0 && len(result) >= limit {
				break
			}
		}
	}
	for l, r := 0, len(result)-1; l < r; l, r = l+1, r-1 {
		result[l], result[r] = result[r], result[l]
	}
	return result, nil
}
