package capture_test

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/fieldscout/capture"
	"go.viam.com/fieldscout/device"
	"go.viam.com/fieldscout/logging"
	"go.viam.com/fieldscout/testutils/inject"
)

// frameStream returns a stream that yields pushed frames until closed.
func frameStream(closeErr error) (*inject.Stream, chan<- image.Image) {
	frames := make(chan image.Image, 1)
	closed := make(chan struct{})
	var once sync.Once
	return &inject.Stream{
		ReadFunc: func() (image.Image, func(), error) {
			select {
			case img := <-frames:
				return img, func() {}, nil
			case <-closed:
				return nil, nil, errors.New("stream closed")
			}
		},
		CloseFunc: func() error {
			once.Do(func() { close(closed) })
			return closeErr
		},
	}, frames
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 160, B: 40, A: 255})
		}
	}
	return img
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func recordingSource(rec *recorder, failFor map[string]error) *inject.Source {
	return &inject.Source{
		OpenFunc: func(ctx context.Context, deviceID string, constraints capture.Constraints) (capture.Stream, error) {
			if err := failFor[deviceID]; err != nil {
				rec.add("fail " + deviceID)
				return nil, err
			}
			rec.add("open " + deviceID)
			stream, _ := frameStream(nil)
			closeFn := stream.CloseFunc
			stream.CloseFunc = func() error {
				rec.add("close " + deviceID)
				return closeFn()
			}
			return stream, nil
		},
	}
}

func TestStartAndSurface(t *testing.T) {
	ctx := context.Background()
	stream, frames := frameStream(nil)
	var gotConstraints capture.Constraints
	source := &inject.Source{
		OpenFunc: func(ctx context.Context, deviceID string, constraints capture.Constraints) (capture.Stream, error) {
			gotConstraints = constraints
			return stream, nil
		},
	}
	ctrl := capture.NewController(source, capture.Constraints{}, logging.NewTestLogger(t))

	session, err := ctrl.Start(ctx, "cam-1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, session.DeviceID, test.ShouldEqual, "cam-1")
	test.That(t, session.ID, test.ShouldNotBeEmpty)
	test.That(t, ctrl.Active(), test.ShouldEqual, session)
	test.That(t, gotConstraints, test.ShouldResemble, capture.Constraints{Width: 1280, Height: 720})

	surface := session.Surface()
	test.That(t, surface.Ready(), test.ShouldBeFalse)
	_, _, ok := surface.Snapshot()
	test.That(t, ok, test.ShouldBeFalse)

	frames <- solid(64, 36)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, surface.Ready(), test.ShouldBeTrue)
	})
	img, at, ok := surface.Snapshot()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, at.IsZero(), test.ShouldBeFalse)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 64)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, 36)
	test.That(t, surface.Frames(), test.ShouldEqual, 1)

	test.That(t, ctrl.Stop(ctx), test.ShouldBeNil)
	test.That(t, ctrl.Active(), test.ShouldBeNil)
	test.That(t, ctrl.Stop(ctx), test.ShouldBeNil)
}

func TestSessionIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	ctrl := capture.NewController(recordingSource(&recorder{}, nil), capture.DefaultConstraints(), logging.NewTestLogger(t))
	defer ctrl.Stop(ctx)

	first, err := ctrl.Start(ctx, "cam-1")
	test.That(t, err, test.ShouldBeNil)
	second, err := ctrl.Start(ctx, "cam-1")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.ID, test.ShouldNotEqual, first.ID)
}

func TestSwitchDevice(t *testing.T) {
	ctx := context.Background()

	t.Run("releases before acquiring", func(t *testing.T) {
		rec := &recorder{}
		ctrl := capture.NewController(recordingSource(rec, nil), capture.DefaultConstraints(), logging.NewTestLogger(t))
		_, err := ctrl.Start(ctx, "cam-1")
		test.That(t, err, test.ShouldBeNil)

		session, err := ctrl.SwitchDevice(ctx, "cam-2")
		test.That(t, err, test.ShouldBeNil)
		test.That(t, session.DeviceID, test.ShouldEqual, "cam-2")
		test.That(t, ctrl.Active(), test.ShouldEqual, session)

		test.That(t, ctrl.Stop(ctx), test.ShouldBeNil)
		test.That(t, rec.get(), test.ShouldResemble, []string{"open cam-1", "close cam-1", "open cam-2", "close cam-2"})
	})

	t.Run("failed acquisition leaves stopped", func(t *testing.T) {
		rec := &recorder{}
		source := recordingSource(rec, map[string]error{"cam-2": errors.New("device busy")})
		ctrl := capture.NewController(source, capture.DefaultConstraints(), logging.NewTestLogger(t))
		_, err := ctrl.Start(ctx, "cam-1")
		test.That(t, err, test.ShouldBeNil)

		session, err := ctrl.SwitchDevice(ctx, "cam-2")
		test.That(t, session, test.ShouldBeNil)
		test.That(t, errors.Is(err, device.ErrDeviceUnavailable), test.ShouldBeTrue)
		test.That(t, err.Error(), test.ShouldContainSubstring, "cam-2")
		test.That(t, ctrl.Active(), test.ShouldBeNil)
		test.That(t, rec.get(), test.ShouldResemble, []string{"open cam-1", "close cam-1", "fail cam-2"})
	})

	t.Run("permission denied passes through", func(t *testing.T) {
		source := recordingSource(&recorder{}, map[string]error{"cam-1": device.ErrPermissionDenied})
		ctrl := capture.NewController(source, capture.DefaultConstraints(), logging.NewTestLogger(t))
		_, err := ctrl.SwitchDevice(ctx, "cam-1")
		test.That(t, errors.Is(err, device.ErrPermissionDenied), test.ShouldBeTrue)
	})

	t.Run("empty device id", func(t *testing.T) {
		ctrl := capture.NewController(recordingSource(&recorder{}, nil), capture.DefaultConstraints(), logging.NewTestLogger(t))
		_, err := ctrl.Start(ctx, "")
		test.That(t, errors.Is(err, device.ErrDeviceUnavailable), test.ShouldBeTrue)
	})
}

func TestStopReportsCloseError(t *testing.T) {
	ctx := context.Background()
	stream, _ := frameStream(errors.New("ioctl failed"))
	source := &inject.Source{
		OpenFunc: func(ctx context.Context, deviceID string, constraints capture.Constraints) (capture.Stream, error) {
			return stream, nil
		},
	}
	ctrl := capture.NewController(source, capture.DefaultConstraints(), logging.NewTestLogger(t))
	_, err := ctrl.Start(ctx, "cam-1")
	test.That(t, err, test.ShouldBeNil)

	err = ctrl.Stop(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "ioctl failed")
	test.That(t, ctrl.Active(), test.ShouldBeNil)
}
