package sse

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"notifyd/internal/model"
)

type Client struct {
	Room string
	Ch   chan model.Event
}

func NewClient(room string, buffer int) *Client {
	return &Client{Room: room, Ch: make(chan model.Event, buffer)}
}

type pending struct {
	seq   uint64
	event model.Event
}

type Hub struct {
	register   chan *Client
	unregister chan *Client
	broadcast  chan model.Event
	rooms      map[string]map[*Client]struct{}
	mu         sync.RWMutex
	now        func() time.Time

	// overflow holds the newest event per room and kind while broadcast is full.
	omu      sync.Mutex
	overflow map[string]pending
	seq      uint64
	wake     chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan model.Event, 64),
		rooms:      make(map[string]map[*Client]struct{}),
		now:        time.Now,
		overflow:   make(map[string]pending),
		wake:       make(chan struct{}, 1),
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Publish queues an event for the subscribers of room without blocking.
// When the queue is full, events are coalesced per room and kind until Run
// catches up: only the newest of each is delivered, so state events such as
// the unread count stay current while intermediate values may be skipped.
func (h *Hub) Publish(room, kind string, data any) {
	event := model.Event{
		ID:        uuid.NewString(),
		Room:      room,
		Kind:      kind,
		Data:      data,
		CreatedAt: h.now(),
	}

	h.omu.Lock()
	defer h.omu.Unlock()
	if len(h.overflow) == 0 {
		select {
		case h.broadcast <- event:
			return
		default:
		}
	}
	h.seq++
	h.overflow[room+"\x00"+kind] = pending{seq: h.seq, event: event}
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Hub) Subscribers(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.broadcastToRoom(event)
		case <-h.wake:
			h.flushOverflow()
		}
	}
}

// flushOverflow delivers everything still queued, then the coalesced events
// in publish order.
func (h *Hub) flushOverflow() {
drain:
	for {
		select {
		case event := <-h.broadcast:
			h.broadcastToRoom(event)
		default:
			break drain
		}
	}

	h.omu.Lock()
	held := make([]pending, 0, len(h.overflow))
	for _, p := range h.overflow {
		held = append(held, p)
	}
	clear(h.overflow)
	h.omu.Unlock()

	slices.SortFunc(held, func(a, b pending) int { return cmp.Compare(a.seq, b.seq) })
	for _, p := range held {
		h.broadcastToRoom(p.event)
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[client.Room] == nil {
		h.rooms[client.Room] = make(map[*Client]struct{})
	}
	h.rooms[client.Room][client] = struct{}{}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[client.Room]
	if room == nil {
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, client.Room)
	}
}

func (h *Hub) broadcastToRoom(event model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.rooms[event.Room] {
		select {
		case client.Ch <- event:
		default:
			// Drop if the client is too slow.
		}
	}
}
