package effects

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"notifyd/internal/model"
)

const (
	EffectDesktop = "desktop"
	EffectAudio   = "audio"
	EffectToast   = "toast"
)

type FailureRecorder interface {
	EffectFailed(effect string)
}

// Bridge turns new arrivals into desktop, audio and toast effects. Each effect
// is best effort and isolated from the others.
type Bridge struct {
	desktop Desktop
	player  Player
	toasts  *ToastQueue
	metrics FailureRecorder
	timeout time.Duration
	log     *zap.Logger

	wg sync.WaitGroup
}

func NewBridge(desktop Desktop, player Player, toasts *ToastQueue, metrics FailureRecorder, logger *zap.Logger) *Bridge {
	return &Bridge{
		desktop: desktop,
		player:  player,
		toasts:  toasts,
		metrics: metrics,
		timeout: 10 * time.Second,
		log:     logger,
	}
}

func (b *Bridge) DesktopPermission() Permission {
	return b.desktop.Permission()
}

// RequestDesktopPermission asks for permission unless it is already granted.
func (b *Bridge) RequestDesktopPermission(ctx context.Context) (Permission, error) {
	if p := b.desktop.Permission(); p == PermissionGranted {
		return p, nil
	}
	return b.desktop.RequestPermission(ctx)
}

// Warn shows a user-visible warning toast.
func (b *Bridge) Warn(message string) {
	b.toasts.Warn(message)
}

func (b *Bridge) Toasts() *ToastQueue {
	return b.toasts
}

// Notify fires the effects for n. Desktop and audio run in the background and
// are gated by prefs; the toast is always enqueued before Notify returns.
func (b *Bridge) Notify(ctx context.Context, n model.Notification, prefs model.Preferences) {
	ctx = context.WithoutCancel(ctx)
	if prefs.DesktopEnabled && b.desktop.Permission() == PermissionGranted {
		b.goEffect(EffectDesktop, n.ID, func() error {
			ctx, cancel := context.WithTimeout(ctx, b.timeout)
			defer cancel()
			return b.desktop.Show(ctx, n)
		})
	}
	if prefs.AudioEnabled {
		b.goEffect(EffectAudio, n.ID, func() error {
			ctx, cancel := context.WithTimeout(ctx, b.timeout)
			defer cancel()
			return b.player.Play(ctx)
		})
	}
	b.runEffect(EffectToast, n.ID, func() error {
		b.toasts.Enqueue(n)
		return nil
	})
}

// Wait blocks until background effects have finished.
func (b *Bridge) Wait() {
	b.wg.Wait()
}

func (b *Bridge) goEffect(effect string, id int64, fn func() error) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.runEffect(effect, id, fn)
	}()
}

func (b *Bridge) runEffect(effect string, id int64, fn func() error) {
	err := safely(fn)
	if err == nil {
		return
	}
	b.metrics.EffectFailed(effect)
	b.log.Warn("notification side effect failed",
		zap.String("effect", effect),
		zap.Int64("id", id),
		zap.Error(err),
	)
}

func safely(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}
