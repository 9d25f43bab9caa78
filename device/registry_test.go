package device_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/fieldscout/device"
	"go.viam.com/fieldscout/logging"
	"go.viam.com/fieldscout/testutils/inject"
)

type fakeTopology struct {
	mu        sync.Mutex
	devices   []device.CaptureDevice
	enumErr   error
	permErr   error
	permCalls int
	handler   func()
}

func (f *fakeTopology) set(devices ...device.CaptureDevice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = devices
}

func (f *fakeTopology) platform() *inject.Platform {
	return &inject.Platform{
		RequestPermissionFunc: func(ctx context.Context) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.permCalls++
			return f.permErr
		},
		EnumerateDevicesFunc: func(ctx context.Context) ([]device.CaptureDevice, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.enumErr != nil {
				return nil, f.enumErr
			}
			return append([]device.CaptureDevice(nil), f.devices...), nil
		},
		SubscribeDeviceChangeFunc: func(handler func()) (func(), error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.handler = handler
			return func() {
				f.mu.Lock()
				defer f.mu.Unlock()
				f.handler = nil
			}, nil
		},
	}
}

func (f *fakeTopology) fire() {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler != nil {
		handler()
	}
}

var (
	camFront = device.CaptureDevice{ID: "/dev/video0", Label: "Integrated Camera"}
	camBack  = device.CaptureDevice{ID: "/dev/video2", Label: "USB Back Camera"}
)

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)

	t.Run("permission requested once", func(t *testing.T) {
		topo := &fakeTopology{}
		topo.set(camFront, camBack)
		reg := device.NewRegistry(topo.platform(), 0, logger)
		defer reg.Close()

		devices := reg.Refresh(ctx)
		test.That(t, devices, test.ShouldResemble, []device.CaptureDevice{camFront, camBack})
		test.That(t, reg.Selected(), test.ShouldEqual, camBack.ID)
		test.That(t, reg.Err(), test.ShouldBeNil)

		reg.Refresh(ctx)
		test.That(t, topo.permCalls, test.ShouldEqual, 1)
	})

	t.Run("permission denied keeps prior list", func(t *testing.T) {
		topo := &fakeTopology{permErr: device.ErrPermissionDenied}
		topo.set(camFront)
		reg := device.NewRegistry(topo.platform(), 0, logger)
		defer reg.Close()

		devices := reg.Refresh(ctx)
		test.That(t, devices, test.ShouldBeEmpty)
		test.That(t, reg.Selected(), test.ShouldEqual, "")
		test.That(t, errors.Is(reg.Err(), device.ErrPermissionDenied), test.ShouldBeTrue)

		topo.mu.Lock()
		topo.permErr = nil
		topo.mu.Unlock()
		devices = reg.Refresh(ctx)
		test.That(t, devices, test.ShouldHaveLength, 1)
		test.That(t, reg.Err(), test.ShouldBeNil)
		test.That(t, topo.permCalls, test.ShouldEqual, 2)
	})

	t.Run("enumeration failure keeps prior list", func(t *testing.T) {
		topo := &fakeTopology{}
		topo.set(camFront, camBack)
		reg := device.NewRegistry(topo.platform(), 0, logger)
		defer reg.Close()
		reg.Refresh(ctx)

		topo.mu.Lock()
		topo.enumErr = errors.New("driver crashed")
		topo.mu.Unlock()
		devices := reg.Refresh(ctx)
		test.That(t, devices, test.ShouldResemble, []device.CaptureDevice{camFront, camBack})
		test.That(t, reg.Selected(), test.ShouldEqual, camBack.ID)
		test.That(t, reg.Err(), test.ShouldNotBeNil)
	})

	t.Run("vanished selection falls back", func(t *testing.T) {
		topo := &fakeTopology{}
		topo.set(camFront, camBack)
		reg := device.NewRegistry(topo.platform(), 0, logger)
		defer reg.Close()

		var changes []string
		reg.OnSelectionChange(func(selected string) { changes = append(changes, selected) })
		reg.Refresh(ctx)
		topo.set(camFront)
		reg.Refresh(ctx)
		topo.set()
		reg.Refresh(ctx)
		reg.Refresh(ctx)

		test.That(t, changes, test.ShouldResemble, []string{camBack.ID, camFront.ID, ""})
		test.That(t, reg.Selected(), test.ShouldEqual, "")
	})
}

func TestSelect(t *testing.T) {
	ctx := context.Background()
	topo := &fakeTopology{}
	topo.set(camFront, camBack)
	reg := device.NewRegistry(topo.platform(), 0, logging.NewTestLogger(t))
	defer reg.Close()
	reg.Refresh(ctx)

	var changes []string
	reg.OnSelectionChange(func(selected string) { changes = append(changes, selected) })

	test.That(t, reg.Select(camFront.ID), test.ShouldBeNil)
	test.That(t, reg.Select(camFront.ID), test.ShouldBeNil)
	test.That(t, reg.Selected(), test.ShouldEqual, camFront.ID)

	err := reg.Select("/dev/video9")
	test.That(t, errors.Is(err, device.ErrDeviceUnavailable), test.ShouldBeTrue)
	test.That(t, reg.Selected(), test.ShouldEqual, camFront.ID)
	test.That(t, changes, test.ShouldResemble, []string{camFront.ID})

	// An explicit choice survives a refresh while still listed.
	reg.Refresh(ctx)
	test.That(t, reg.Selected(), test.ShouldEqual, camFront.ID)
}

func TestWatch(t *testing.T) {
	ctx := context.Background()
	topo := &fakeTopology{}
	topo.set(camFront)

	enumerations := atomic.NewInt32(0)
	platform := topo.platform()
	enumerate := platform.EnumerateDevicesFunc
	platform.EnumerateDevicesFunc = func(ctx context.Context) ([]device.CaptureDevice, error) {
		enumerations.Inc()
		return enumerate(ctx)
	}
	reg := device.NewRegistry(platform, 20*time.Millisecond, logging.NewTestLogger(t))
	defer reg.Close()
	reg.Refresh(ctx)
	test.That(t, reg.Watch(ctx), test.ShouldBeNil)
	test.That(t, reg.Watch(ctx), test.ShouldBeNil)

	topo.set(camFront, camBack)
	for i := 0; i < 5; i++ {
		topo.fire()
	}
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, reg.Devices(), test.ShouldHaveLength, 2)
	})
	time.Sleep(50 * time.Millisecond)
	test.That(t, enumerations.Load(), test.ShouldEqual, 2)

	test.That(t, reg.Close(), test.ShouldBeNil)
	topo.mu.Lock()
	test.That(t, topo.handler, test.ShouldBeNil)
	topo.mu.Unlock()
	test.That(t, reg.Watch(ctx), test.ShouldNotBeNil)
}
