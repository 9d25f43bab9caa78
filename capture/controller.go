package capture

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/fieldscout/device"
	"go.viam.com/fieldscout/logging"
)

// Session is one acquisition of a device stream. A Session is never reused once stopped.
type Session struct {
	ID        string
	DeviceID  string
	StartedAt time.Time

	surface *Surface
}

// Surface returns the session's video surface.
func (s *Session) Surface() *Surface {
	return s.surface
}

// Controller holds at most one active Session.
type Controller struct {
	source      Source
	constraints Constraints
	logger      logging.Logger

	mu     sync.Mutex
	active *Session
}

// NewController returns a Controller opening streams from source. Zero constraints use
// DefaultConstraints.
func NewController(source Source, constraints Constraints, logger logging.Logger) *Controller {
	if constraints.Width <= 0 || constraints.Height <= 0 {
		constraints = DefaultConstraints()
	}
	return &Controller{source: source, constraints: constraints, logger: logger}
}

// Start opens deviceID and makes it the active session. Any session already active is released
// first.
func (c *Controller) Start(ctx context.Context, deviceID string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.releaseLocked(ctx); err != nil {
		c.logger.CWarnw(ctx, "error releasing previous capture session", "error", err)
	}
	return c.acquireLocked(ctx, deviceID)
}

// SwitchDevice releases the active stream, then acquires newID. If acquisition fails the
// controller is left with no session and the error wraps device.ErrDeviceUnavailable (or
// device.ErrPermissionDenied).
func (c *Controller) SwitchDevice(ctx context.Context, newID string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var previous string
	if c.active != nil {
		previous = c.active.DeviceID
	}
	releaseErr := c.releaseLocked(ctx)
	session, err := c.acquireLocked(ctx, newID)
	if err != nil {
		return nil, multierr.Combine(err, releaseErr)
	}
	if releaseErr != nil {
		c.logger.CWarnw(ctx, "error releasing previous capture session", "device", previous, "error", releaseErr)
	}
	c.logger.CInfow(ctx, "switched capture device", "from", previous, "to", newID)
	return session, nil
}

// Stop releases the active session, if any.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseLocked(ctx)
}

// Active returns the active session, or nil.
func (c *Controller) Active() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Controller) acquireLocked(ctx context.Context, deviceID string) (*Session, error) {
	if deviceID == "" {
		return nil, errors.Wrap(device.ErrDeviceUnavailable, "no capture device selected")
	}
	stream, err := c.source.Open(ctx, deviceID, c.constraints)
	if err != nil {
		if errors.Is(err, device.ErrPermissionDenied) || errors.Is(err, device.ErrDeviceUnavailable) {
			return nil, errors.Wrapf(err, "cannot open device %q", deviceID)
		}
		return nil, errors.Wrapf(device.ErrDeviceUnavailable, "cannot open device %q: %v", deviceID, err)
	}

	session := &Session{
		ID:        uuid.NewString(),
		DeviceID:  deviceID,
		StartedAt: time.Now(),
	}
	session.surface = newSurface(stream, c.logger.WithFields("device", deviceID, "session", session.ID))
	c.active = session
	c.logger.CInfow(ctx, "capture session started", "device", deviceID, "session", session.ID)
	return session, nil
}

func (c *Controller) releaseLocked(ctx context.Context) error {
	if c.active == nil {
		return nil
	}
	session := c.active
	c.active = nil
	if err := session.surface.close(); err != nil {
		return errors.Wrapf(err, "cannot release device %q", session.DeviceID)
	}
	c.logger.CInfow(ctx, "capture session stopped", "device", session.DeviceID, "session", session.ID)
	return nil
}
