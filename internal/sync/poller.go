package sync

import (
	"context"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"notifyd/internal/model"
)

// SyncState represents the current state of the resync loop.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Error    error
}

// Store is what the poller reconciles against the server.
type Store interface {
	FetchUnreadCount(ctx context.Context) (int, error)
	FetchNotifications(ctx context.Context, params model.ListParams) (model.Page, error)
}

const fetchTimeout = 30 * time.Second

type kind int

const (
	countOnly kind = iota
	fullRefresh
)

// Poller is the fallback for missed pushes: it periodically resyncs the
// unread count, and refetches the first page when asked to (after a
// reconnect, for instance).
type Poller struct {
	store    Store
	interval time.Duration
	pageSize int
	log      *zap.Logger

	triggerCh chan kind
	stopCh    chan struct{}
	done      chan struct{}
	mu        gosync.Mutex
	running   bool
	status    SyncStatus
}

func New(store Store, interval time.Duration, pageSize int, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Poller{
		store:     store,
		interval:  interval,
		pageSize:  pageSize,
		log:       logger,
		triggerCh: make(chan kind, 4),
	}
}

// Start runs the loop until ctx is done or Stop is called. The first page is
// fetched immediately.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.done = make(chan struct{})
	stop, done := p.stopCh, p.done
	p.mu.Unlock()

	go p.loop(ctx, stop, done)
}

func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.running = false
	done := p.done
	p.mu.Unlock()
	<-done
}

// Refresh asks for an immediate full refresh without blocking.
func (p *Poller) Refresh() {
	select {
	case p.triggerCh <- fullRefresh:
	default:
		// Channel full; a refresh is already pending
	}
}

func (p *Poller) Status() SyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Poller) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.run(ctx, fullRefresh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			p.run(ctx, countOnly)
		case k := <-p.triggerCh:
			p.run(ctx, k)
		}
	}
}

func (p *Poller) run(parent context.Context, k kind) {
	p.setStatus(SyncRunning, nil)
	ctx, cancel := context.WithTimeout(parent, fetchTimeout)
	defer cancel()

	if k == fullRefresh {
		if _, err := p.store.FetchNotifications(ctx, model.ListParams{Page: 1, PageSize: p.pageSize}); err != nil {
			p.log.Warn("resync notifications failed", zap.Error(err))
			p.setStatus(SyncError, err)
			return
		}
	}
	if _, err := p.store.FetchUnreadCount(ctx); err != nil {
		p.log.Warn("resync unread count failed", zap.Error(err))
		p.setStatus(SyncError, err)
		return
	}
	p.setStatus(SyncIdle, nil)
}

func (p *Poller) setStatus(state SyncState, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.State = state
	p.status.Error = err
	if state == SyncIdle {
		p.status.LastSync = time.Now()
	}
}
