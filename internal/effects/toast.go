package effects

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"notifyd/internal/model"
)

const (
	ToastShown   = "toast.shown"
	ToastExpired = "toast.expired"
)

// Publisher receives toast events; the SSE hub implements it.
type Publisher interface {
	Publish(room, kind string, data any)
}

// ToastQueue holds transient in-app toasts until they expire.
type ToastQueue struct {
	ttl       time.Duration
	publisher Publisher
	now       func() time.Time
	afterFunc func(time.Duration, func()) *time.Timer

	mu     sync.Mutex
	active []model.Toast
}

func NewToastQueue(ttl time.Duration, publisher Publisher) *ToastQueue {
	return &ToastQueue{
		ttl:       ttl,
		publisher: publisher,
		now:       time.Now,
		afterFunc: time.AfterFunc,
	}
}

func (q *ToastQueue) Enqueue(n model.Notification) model.Toast {
	toast := model.Toast{
		ID:        uuid.NewString(),
		Title:     n.Title,
		Type:      n.Type,
		Level:     string(n.Priority),
		ExpiresAt: q.now().Add(q.ttl),
	}
	q.mu.Lock()
	q.active = append(q.active, toast)
	q.mu.Unlock()

	q.publisher.Publish(model.RoomToasts, ToastShown, toast)
	q.afterFunc(q.ttl, func() { q.expire(toast.ID) })
	return toast
}

func (q *ToastQueue) expire(id string) {
	q.mu.Lock()
	for i, t := range q.active {
		if t.ID == id {
			q.active = append(q.active[:i], q.active[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
	q.publisher.Publish(model.RoomToasts, ToastExpired, map[string]string{"id": id})
}

// Warn enqueues a toast that is not tied to a notification.
func (q *ToastQueue) Warn(title string) model.Toast {
	return q.Enqueue(model.Notification{Title: title, Type: "warning", Priority: model.PriorityNormal})
}

func (q *ToastQueue) Active() []model.Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.Toast(nil), q.active...)
}
