package device

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	driverutils "github.com/pion/mediadevices/pkg/driver"
	mediadevicescamera "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/fieldscout/logging"
)

// DefaultDeviceDir is where V4L2 device nodes appear.
const DefaultDeviceDir = "/dev"

// MediaDevicesPlatform enumerates cameras through the mediadevices driver manager and watches
// the device directory for video nodes coming and going.
type MediaDevicesPlatform struct {
	deviceDir string
	logger    logging.Logger
}

// NewMediaDevicesPlatform returns a Platform backed by the host's camera drivers. An empty
// deviceDir uses DefaultDeviceDir.
func NewMediaDevicesPlatform(deviceDir string, logger logging.Logger) *MediaDevicesPlatform {
	if deviceDir == "" {
		deviceDir = DefaultDeviceDir
	}
	return &MediaDevicesPlatform{deviceDir: deviceDir, logger: logger.Sublogger("mediadevices")}
}

func videoDrivers() []driverutils.Driver {
	mediadevicescamera.Initialize()
	return driverutils.GetManager().Query(driverutils.FilterVideoRecorder())
}

// devicePath is the first element of a driver label.
func devicePath(d driverutils.Driver) string {
	labels := strings.Split(d.Info().Label, mediadevicescamera.LabelSeparator)
	return labels[0]
}

// RequestPermission opens and closes the first idle video driver. A driver refusing to open
// with a permission error means the process cannot use cameras.
func (p *MediaDevicesPlatform) RequestPermission(ctx context.Context) error {
	for _, d := range videoDrivers() {
		if d.Status() != driverutils.StateClosed {
			continue
		}
		if err := d.Open(); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				return errors.Wrapf(ErrPermissionDenied, "cannot open %s: %v", devicePath(d), err)
			}
			p.logger.CDebugw(ctx, "cannot open driver while probing permission", "driver", devicePath(d), "error", err)
			continue
		}
		if err := d.Close(); err != nil {
			p.logger.CDebugw(ctx, "cannot close driver after probing permission", "driver", devicePath(d), "error", err)
		}
		return nil
	}
	return nil
}

// EnumerateDevices lists video recorders sorted by device path.
func (p *MediaDevicesPlatform) EnumerateDevices(ctx context.Context) ([]CaptureDevice, error) {
	seen := map[string]struct{}{}
	devices := []CaptureDevice{}
	for _, d := range videoDrivers() {
		id := devicePath(d)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		name := strings.Split(d.Info().Name, mediadevicescamera.LabelSeparator)[0]
		devices = append(devices, CaptureDevice{ID: id, Label: name})
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].ID < devices[j].ID })
	p.logger.CDebugw(ctx, "enumerated video drivers", "count", len(devices))
	return devices, nil
}

// LookupDriver returns the video driver whose device path is id.
func LookupDriver(id string) (driverutils.Driver, error) {
	if resolved, err := filepath.EvalSymlinks(id); err == nil {
		id = resolved
	}
	for _, d := range videoDrivers() {
		path := devicePath(d)
		if path == id || filepath.Base(path) == filepath.Base(id) {
			return d, nil
		}
	}
	return nil, errors.Wrapf(ErrDeviceUnavailable, "no video driver for %q", id)
}

// SubscribeDeviceChange watches the device directory and calls handler when a video node is
// created or removed.
func (p *MediaDevicesPlatform) SubscribeDeviceChange(handler func()) (func(), error) {
	if _, err := os.Stat(p.deviceDir); err != nil {
		return nil, errors.Wrapf(err, "cannot watch %s", p.deviceDir)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create device watcher")
	}
	if err := watcher.Add(p.deviceDir); err != nil {
		goutils.UncheckedError(watcher.Close())
		return nil, errors.Wrapf(err, "cannot watch %s", p.deviceDir)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	goutils.PanicCapturingGo(func() {
		defer wg.Done()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !isVideoNodeChange(event) {
					continue
				}
				p.logger.Debugw("video device node changed", "name", event.Name, "op", event.Op.String())
				handler()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warnw("device watcher error", "error", err)
			}
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			goutils.UncheckedError(watcher.Close())
			wg.Wait()
		})
	}, nil
}

func isVideoNodeChange(event fsnotify.Event) bool {
	if !strings.HasPrefix(filepath.Base(event.Name), "video") {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
