package device

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/pkg/errors"

	"go.viam.com/fieldscout/logging"
)

// DefaultDebounce collapses a burst of hot-plug events into one refresh.
const DefaultDebounce = 250 * time.Millisecond

// Registry owns the current device list and selection.
type Registry struct {
	platform  Platform
	logger    logging.Logger
	debounced func(f func())

	cancelCtx context.Context
	cancel    func()

	// refreshMu serializes whole refreshes; mu guards the fields below it.
	refreshMu sync.Mutex

	mu                sync.RWMutex
	devices           []CaptureDevice
	selected          string
	permissionGranted bool
	lastErr           error
	listeners         []func(selected string)
	unsubscribe       func()
	closed            bool
}

// NewRegistry returns a Registry over platform. A non-positive debounce uses DefaultDebounce.
func NewRegistry(platform Platform, debounceInterval time.Duration, logger logging.Logger) *Registry {
	if debounceInterval <= 0 {
		debounceInterval = DefaultDebounce
	}
	cancelCtx, cancel := context.WithCancel(context.Background())
	return &Registry{
		platform:  platform,
		logger:    logger,
		debounced: debounce.New(debounceInterval),
		cancelCtx: cancelCtx,
		cancel:    cancel,
	}
}

// Refresh re-enumerates devices and re-applies the selection policy. Failures are logged and
// leave the previous list in place; the failure stays available from Err until the next
// successful refresh. The returned slice is the list in effect afterwards.
func (r *Registry) Refresh(ctx context.Context) []CaptureDevice {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	r.mu.RLock()
	granted := r.permissionGranted
	r.mu.RUnlock()

	if !granted {
		if err := r.platform.RequestPermission(ctx); err != nil {
			r.recordFailure(ctx, errors.Wrap(err, "cannot request capture permission"))
			return r.Devices()
		}
		r.mu.Lock()
		r.permissionGranted = true
		r.mu.Unlock()
	}

	devices, err := r.platform.EnumerateDevices(ctx)
	if err != nil {
		r.recordFailure(ctx, errors.Wrap(err, "cannot enumerate capture devices"))
		return r.Devices()
	}

	r.mu.Lock()
	r.devices = append([]CaptureDevice(nil), devices...)
	previous := r.selected
	r.selected = SelectDevice(r.devices, previous)
	selected := r.selected
	r.lastErr = nil
	listeners := append([]func(string){}, r.listeners...)
	r.mu.Unlock()

	r.logger.CDebugw(ctx, "capture devices refreshed", "count", len(devices), "selected", selected)
	if selected != previous {
		r.logger.CInfow(ctx, "capture device selection changed", "previous", previous, "selected", selected)
		for _, fn := range listeners {
			fn(selected)
		}
	}
	return r.Devices()
}

func (r *Registry) recordFailure(ctx context.Context, err error) {
	r.logger.CWarnw(ctx, "device refresh failed; keeping previous device list", "error", err)
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

// Devices returns a copy of the current device list.
func (r *Registry) Devices() []CaptureDevice {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]CaptureDevice{}, r.devices...)
}

// Selected returns the selected device id, or "" if none.
func (r *Registry) Selected() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected
}

// Err returns the error of the most recent failed refresh, or nil if the latest refresh
// succeeded.
func (r *Registry) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

// Select makes id the selected device. It must be in the current list.
func (r *Registry) Select(id string) error {
	r.mu.Lock()
	found := false
	for _, d := range r.devices {
		if d.ID == id {
			found = true
			break
		}
	}
	if !found {
		r.mu.Unlock()
		return errors.Wrapf(ErrDeviceUnavailable, "device %q is not listed", id)
	}
	changed := r.selected != id
	r.selected = id
	listeners := append([]func(string){}, r.listeners...)
	r.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(id)
		}
	}
	return nil
}

// OnSelectionChange registers fn to be called with the new selection whenever it changes.
// Callbacks run on the goroutine that caused the change and must not call back into Refresh.
func (r *Registry) OnSelectionChange(fn func(selected string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Watch subscribes to hot-plug notifications. Each burst of notifications results in a single
// Refresh after the debounce interval. Calling Watch more than once is a no-op.
func (r *Registry) Watch(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("device registry is closed")
	}
	if r.unsubscribe != nil {
		return nil
	}
	unsubscribe, err := r.platform.SubscribeDeviceChange(r.handleDeviceChange)
	if err != nil {
		return errors.Wrap(err, "cannot subscribe to device changes")
	}
	r.unsubscribe = unsubscribe
	r.logger.CDebug(ctx, "watching for capture device changes")
	return nil
}

func (r *Registry) handleDeviceChange() {
	r.debounced(func() {
		if r.cancelCtx.Err() != nil {
			return
		}
		r.logger.Debug("device topology changed")
		r.Refresh(r.cancelCtx)
	})
}

// Close stops watching for device changes.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mu.Unlock()

	r.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	return nil
}
