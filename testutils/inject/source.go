package inject

import (
	"context"
	"image"

	"go.viam.com/fieldscout/capture"
)

// Source is an injected capture source.
type Source struct {
	capture.Source
	OpenFunc func(ctx context.Context, deviceID string, constraints capture.Constraints) (capture.Stream, error)
}

// Open calls the injected Open or the real version.
func (s *Source) Open(ctx context.Context, deviceID string, constraints capture.Constraints) (capture.Stream, error) {
	if s.OpenFunc == nil {
		return s.Source.Open(ctx, deviceID, constraints)
	}
	return s.OpenFunc(ctx, deviceID, constraints)
}

// Stream is an injected capture stream.
type Stream struct {
	capture.Stream
	ReadFunc  func() (image.Image, func(), error)
	CloseFunc func() error
}

// Read calls the injected Read or the real version.
func (s *Stream) Read() (image.Image, func(), error) {
	if s.ReadFunc == nil {
		return s.Stream.Read()
	}
	return s.ReadFunc()
}

// Close calls the injected Close or the real version.
func (s *Stream) Close() error {
	if s.CloseFunc == nil {
		if s.Stream == nil {
			return nil
		}
		return s.Stream.Close()
	}
	return s.CloseFunc()
}
