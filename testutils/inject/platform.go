package inject

import (
	"context"

	"go.viam.com/fieldscout/device"
)

// Platform is an injected device platform.
type Platform struct {
	device.Platform
	RequestPermissionFunc     func(ctx context.Context) error
	EnumerateDevicesFunc      func(ctx context.Context) ([]device.CaptureDevice, error)
	SubscribeDeviceChangeFunc func(handler func()) (func(), error)
}

// RequestPermission calls the injected RequestPermission or the real version.
func (p *Platform) RequestPermission(ctx context.Context) error {
	if p.RequestPermissionFunc == nil {
		return p.Platform.RequestPermission(ctx)
	}
	return p.RequestPermissionFunc(ctx)
}

// EnumerateDevices calls the injected EnumerateDevices or the real version.
func (p *Platform) EnumerateDevices(ctx context.Context) ([]device.CaptureDevice, error) {
	if p.EnumerateDevicesFunc == nil {
		return p.Platform.EnumerateDevices(ctx)
	}
	return p.EnumerateDevicesFunc(ctx)
}

// SubscribeDeviceChange calls the injected SubscribeDeviceChange or the real version.
func (p *Platform) SubscribeDeviceChange(handler func()) (func(), error) {
	if p.SubscribeDeviceChangeFunc == nil {
		return p.Platform.SubscribeDeviceChange(handler)
	}
	return p.SubscribeDeviceChangeFunc(handler)
}
