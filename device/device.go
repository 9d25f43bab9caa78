// Package device enumerates video capture devices, tracks which one is selected, and follows the
// platform's hot-plug notifications.
package device

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrPermissionDenied is returned when the platform refuses access to capture devices.
	ErrPermissionDenied = errors.New("permission to use capture devices was denied")
	// ErrDeviceUnavailable is returned when a device is not listed or cannot be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// CaptureDevice is one enumerated video input. ID is stable across enumerations; Label may be
// empty until the platform grants capture permission.
type CaptureDevice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Platform is the capture platform's device surface.
type Platform interface {
	// RequestPermission asks for capture permission. It must succeed before device labels are
	// meaningful.
	RequestPermission(ctx context.Context) error
	EnumerateDevices(ctx context.Context) ([]CaptureDevice, error)
	// SubscribeDeviceChange calls handler whenever the device topology changes, until the
	// returned unsubscribe func is called.
	SubscribeDeviceChange(handler func()) (unsubscribe func(), err error)
}

// labelPreference orders the label hints used to pick a default device.
var labelPreference = []string{"back", "virtual", "phone"}

// SelectDevice applies the selection policy to a fresh device list. A current selection that is
// still listed is kept; one that vanished falls back to the first device. With no current
// selection, the first device whose label contains "back", then "virtual", then "phone"
// (case-insensitively) wins, and otherwise the first device. An empty list selects nothing.
func SelectDevice(devices []CaptureDevice, current string) string {
	if len(devices) == 0 {
		return ""
	}
	if current != "" {
		for _, d := range devices {
			if d.ID == current {
				return current
			}
		}
		return devices[0].ID
	}
	for _, hint := range labelPreference {
		for _, d := range devices {
			if strings.Contains(strings.ToLower(d.Label), hint) {
				return d.ID
			}
		}
	}
	return devices[0].ID
}
