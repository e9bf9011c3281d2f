package ws

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

type Handler func(ctx context.Context, msg Message)

type HandlerID uint64

type registration struct {
	id HandlerID
	fn Handler
}

// Router fans a decoded message out to every handler registered for its type.
type Router struct {
	mu       sync.RWMutex
	handlers map[MessageType][]registration
	nextID   HandlerID
	log      *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[MessageType][]registration),
		log:      logger,
	}
}

func (r *Router) On(t MessageType, fn Handler) HandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.handlers[t] = append(r.handlers[t], registration{id: r.nextID, fn: fn})
	return r.nextID
}

// Off removes a handler. It reports whether the handler was registered.
func (r *Router) Off(t MessageType, id HandlerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	regs := r.handlers[t]
	for i, reg := range regs {
		if reg.id != id {
			continue
		}
		r.handlers[t] = append(regs[:i:i], regs[i+1:]...)
		if len(r.handlers[t]) == 0 {
			delete(r.handlers, t)
		}
		return true
	}
	return false
}

// Dispatch invokes the handlers registered for msg.Type in registration order
// and returns how many ran without panicking.
func (r *Router) Dispatch(ctx context.Context, msg Message) int {
	r.mu.RLock()
	regs := append([]registration(nil), r.handlers[msg.Type]...)
	r.mu.RUnlock()

	if len(regs) == 0 {
		r.log.Debug("ws no handler for message type", zap.String("type", string(msg.Type)))
		return 0
	}
	ok := 0
	for _, reg := range regs {
		if err := r.invoke(ctx, reg.fn, msg); err != nil {
			r.log.Error("ws handler failed",
				zap.String("type", string(msg.Type)),
				zap.Uint64("handler", uint64(reg.id)),
				zap.Error(err),
			)
			continue
		}
		ok++
	}
	return ok
}

func (r *Router) invoke(ctx context.Context, fn Handler, msg Message) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	fn(ctx, msg)
	return nil
}

// Subscribe registers a handler that receives the typed payload of t.
func Subscribe[P Payload](r *Router, t MessageType, fn func(ctx context.Context, payload P)) HandlerID {
	return r.On(t, func(ctx context.Context, msg Message) {
		if p, ok := msg.Payload.(P); ok {
			fn(ctx, p)
		}
	})
}
