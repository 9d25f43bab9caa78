// Package sampler periodically grabs the latest frame of a capture session, shrinks it, and
// hands it to an inference handler, never running more than one handler at a time.
package sampler

import (
	"bytes"
	"context"
	"image"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"go.viam.com/fieldscout/capture"
	"go.viam.com/fieldscout/inference"
	"go.viam.com/fieldscout/logging"
	"go.viam.com/fieldscout/utils"
)

// Defaults keep a session within 15 analyzer requests a minute at a modest upload size.
const (
	DefaultInterval    = 4 * time.Second
	DefaultScale       = 0.5
	DefaultJPEGQuality = 60
)

// Config controls sampling cadence and encoding.
type Config struct {
	Interval    time.Duration `json:"interval"`
	Scale       float64       `json:"scale"`
	JPEGQuality int           `json:"jpeg_quality"`
}

// DefaultConfig returns the default sampling config.
func DefaultConfig() Config {
	return Config{Interval: DefaultInterval, Scale: DefaultScale, JPEGQuality: DefaultJPEGQuality}
}

// Validate checks the config.
func (c Config) Validate(path string) error {
	if c.Interval <= 0 {
		return errors.Errorf("%s.interval must be positive, got %v", path, c.Interval)
	}
	if c.Scale <= 0 || c.Scale > 1 {
		return errors.Errorf("%s.scale must be in (0,1], got %v", path, c.Scale)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return errors.Errorf("%s.jpeg_quality must be in [1,100], got %d", path, c.JPEGQuality)
	}
	return nil
}

// Frame is one encoded sample.
type Frame struct {
	Data       []byte
	MimeType   string
	Width      int
	Height     int
	CapturedAt time.Time
}

// Encode scales img by scale in each dimension and encodes it as a JPEG.
func Encode(img image.Image, scale float64, quality int) (Frame, error) {
	if img == nil {
		return Frame{}, errors.New("no image to encode")
	}
	bounds := img.Bounds()
	width := max(1, int(math.Round(float64(bounds.Dx())*scale)))
	height := max(1, int(math.Round(float64(bounds.Dy())*scale)))
	if width != bounds.Dx() || height != bounds.Dy() {
		img = imaging.Resize(img, width, height, imaging.Linear)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return Frame{}, errors.Wrap(err, "cannot encode frame")
	}
	return Frame{Data: buf.Bytes(), MimeType: utils.MimeTypeJPEG, Width: width, Height: height}, nil
}

// Handler consumes an accepted frame. It runs on the task's workers while holding the in-flight
// slot; ctx is cancelled when the task stops.
type Handler func(ctx context.Context, frame Frame)

// Sampler starts sampling tasks.
type Sampler struct {
	cfg    Config
	clock  clock.Clock
	slot   *inference.Slot
	logger logging.Logger
}

// New returns a Sampler. A nil clk uses the wall clock.
func New(cfg Config, clk clock.Clock, slot *inference.Slot, logger logging.Logger) *Sampler {
	if clk == nil {
		clk = clock.New()
	}
	return &Sampler{cfg: cfg, clock: clk, slot: slot, logger: logger}
}

// Start begins sampling session every interval. The ticker exists by the time Start returns.
func (s *Sampler) Start(session *capture.Session, handler Handler) *Task {
	t := &Task{
		sampler: s,
		session: session,
		handler: handler,
		ticker:  s.clock.Ticker(s.cfg.Interval),
	}
	t.workers = utils.NewStoppableWorkers(t.loop)
	return t
}

// Task is one running sample loop.
type Task struct {
	sampler  *Sampler
	session  *capture.Session
	handler  Handler
	ticker   *clock.Ticker
	workers  utils.StoppableWorkers
	stopOnce sync.Once
}

func (t *Task) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.ticker.C:
			t.Tick(ctx)
		}
	}
}

// Tick runs one sampling step and reports whether a handler was started. A tick is skipped
// when there is no session, the surface has no frame yet, or a handler is still in flight.
func (t *Task) Tick(ctx context.Context) bool {
	logger := t.sampler.logger
	if t.session == nil {
		logger.CDebug(ctx, "skipping tick: no active session")
		return false
	}
	surface := t.session.Surface()
	if surface == nil || !surface.Ready() {
		logger.CDebug(ctx, "skipping tick: video surface not ready")
		return false
	}
	slot := t.sampler.slot
	if !slot.TryAcquire() {
		logger.CDebug(ctx, "skipping tick: analysis in flight")
		return false
	}
	img, capturedAt, ok := surface.Snapshot()
	if !ok {
		slot.Release()
		return false
	}

	cfg := t.sampler.cfg
	started := t.workers.AddWorkers(func(ctx context.Context) {
		defer slot.Release()
		frame, err := Encode(img, cfg.Scale, cfg.JPEGQuality)
		if err != nil {
			logger.CWarnw(ctx, "cannot encode sampled frame", "error", err)
			return
		}
		frame.CapturedAt = capturedAt
		t.handler(ctx, frame)
	})
	if !started {
		slot.Release()
	}
	return started
}

// Stop cancels the ticker, cancels any in-flight handler and waits for both to return. No tick
// fires after Stop returns.
func (t *Task) Stop() {
	t.stopOnce.Do(func() {
		t.ticker.Stop()
		t.workers.Stop()
	})
}
