package capture

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"go.viam.com/fieldscout/logging"
	"go.viam.com/fieldscout/utils"
)

// readRetryInterval is how long the reader waits after a failed Read.
const readRetryInterval = 50 * time.Millisecond

// Surface keeps the most recent frame read from a stream. Frames are copied out of the driver's
// buffer before the release func is called, so a snapshot stays valid after later reads.
type Surface struct {
	stream  Stream
	logger  logging.Logger
	workers utils.StoppableWorkers
	closing atomic.Bool

	mu      sync.RWMutex
	latest  image.Image
	frames  uint64
	updated time.Time
}

func newSurface(stream Stream, logger logging.Logger) *Surface {
	s := &Surface{stream: stream, logger: logger}
	s.workers = utils.NewStoppableWorkers(s.readLoop)
	return s
}

func (s *Surface) readLoop(ctx context.Context) {
	for ctx.Err() == nil {
		img, release, err := s.stream.Read()
		if err != nil {
			if s.closing.Load() || ctx.Err() != nil {
				return
			}
			s.logger.CDebugw(ctx, "cannot read frame", "error", err)
			if !goutils.SelectContextOrWait(ctx, readRetryInterval) {
				return
			}
			continue
		}
		frame := imaging.Clone(img)
		if release != nil {
			release()
		}

		s.mu.Lock()
		s.latest = frame
		s.frames++
		s.updated = time.Now()
		s.mu.Unlock()
	}
}

// Ready reports whether a full frame has been buffered.
func (s *Surface) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest != nil
}

// Snapshot returns the latest frame and when it was read. The image is never mutated after
// being published.
func (s *Surface) Snapshot() (image.Image, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, time.Time{}, false
	}
	return s.latest, s.updated, true
}

// Frames returns how many frames have been read.
func (s *Surface) Frames() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// close releases the stream and waits for the reader to exit. The stream is closed first so a
// blocked Read returns.
func (s *Surface) close() error {
	s.closing.Store(true)
	err := s.stream.Close()
	s.workers.Stop()
	return err
}
