// Package capture owns the single live capture session: opening a device stream, buffering its
// latest frame on a video surface, and releasing the stream on stop or device switch.
package capture

import (
	"context"
	"image"

	"github.com/pkg/errors"
)

// ErrNoSession is returned when an operation needs an active capture session.
var ErrNoSession = errors.New("no active capture session")

// Constraints are the ideal stream dimensions requested from a device.
type Constraints struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DefaultConstraints bounds the captured resolution to 1280x720.
func DefaultConstraints() Constraints {
	return Constraints{Width: 1280, Height: 720}
}

// Stream is an open device stream.
type Stream interface {
	// Read blocks until the next frame is available. The returned release func must be called
	// once the image is no longer needed.
	Read() (image.Image, func(), error)
	// Close releases the device. A blocked Read returns an error afterwards.
	Close() error
}

// Source opens device streams.
type Source interface {
	Open(ctx context.Context, deviceID string, constraints Constraints) (Stream, error)
}
