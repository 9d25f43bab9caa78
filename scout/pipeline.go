// Package scout ties the live-inference pipeline together: device selection, the capture
// session, periodic sampling, analysis and the category filter. A Pipeline owns all of that
// state; nothing is kept in package globals.
package scout

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/fieldscout/analyzer"
	"go.viam.com/fieldscout/capture"
	"go.viam.com/fieldscout/detection"
	"go.viam.com/fieldscout/device"
	"go.viam.com/fieldscout/inference"
	"go.viam.com/fieldscout/logging"
	"go.viam.com/fieldscout/sampler"
)

// Options configures a Pipeline.
type Options struct {
	Sampler      sampler.Config
	ContextLabel analyzer.DatasetLabel
	// Clock drives the sampler. Nil uses the wall clock.
	Clock clock.Clock
}

// Pipeline is the state container behind the renderer.
type Pipeline struct {
	devices    *device.Registry
	capture    *capture.Controller
	sampler    *sampler.Sampler
	slot       *inference.Slot
	dispatcher *inference.Dispatcher
	categories *detection.Registry
	logger     logging.Logger

	// lifecycle serializes start, stop and switch. It is never held while calling into the
	// device registry, whose selection listeners take it.
	lifecycle sync.Mutex

	mu        sync.Mutex
	task      *sampler.Task
	sessionID string
	deviceID  string
	label     analyzer.DatasetLabel
	regions   []detection.Region
	analysis  *Analysis
	closed    bool
	// sessionErr is why the last session ended without being asked to. A session that starts,
	// or an explicit Stop, clears it.
	sessionErr error
}

// NewPipeline returns a stopped Pipeline. A session whose device is unplugged is stopped rather
// than moved to another camera.
func NewPipeline(
	devices *device.Registry,
	controller *capture.Controller,
	a analyzer.Analyzer,
	opts Options,
	logger logging.Logger,
) *Pipeline {
	if opts.ContextLabel == "" {
		opts.ContextLabel = analyzer.Cotton
	}
	slot := &inference.Slot{}
	p := &Pipeline{
		devices:    devices,
		capture:    controller,
		sampler:    sampler.New(opts.Sampler, opts.Clock, slot, logger.Sublogger("sampler")),
		slot:       slot,
		dispatcher: inference.NewDispatcher(a, logger.Sublogger("inference")),
		categories: detection.NewRegistry(),
		logger:     logger,
		label:      opts.ContextLabel,
	}
	p.categories.OnCategoriesChange(func(known []string) {
		p.logger.Debugw("known categories changed", "known", known)
	})
	devices.OnSelectionChange(p.onSelectionChange)
	return p
}

// Start opens deviceID, or the registry's selected device when deviceID is empty, and begins
// sampling. Starting the device that is already streaming is a no-op; starting another one
// switches to it.
func (p *Pipeline) Start(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		deviceID = p.devices.Selected()
	}
	if deviceID == "" {
		return errors.Wrap(device.ErrDeviceUnavailable, "no capture device selected")
	}
	if err := p.start(ctx, deviceID); err != nil {
		return err
	}
	if p.isListed(deviceID) {
		if err := p.devices.Select(deviceID); err != nil {
			p.logger.CDebugw(ctx, "cannot select started device", "device", deviceID, "error", err)
		}
	}
	return nil
}

func (p *Pipeline) start(ctx context.Context, deviceID string) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("pipeline is closed")
	}
	active := p.task != nil
	p.mu.Unlock()
	if active {
		return p.switchLocked(ctx, deviceID)
	}

	session, err := p.capture.Start(ctx, deviceID)
	if err != nil {
		p.resetLocked()
		return err
	}
	p.beginLocked(session)
	return nil
}

func (p *Pipeline) isListed(id string) bool {
	return lo.ContainsBy(p.devices.Devices(), func(d device.CaptureDevice) bool { return d.ID == id })
}

// Stop cancels sampling, waits for it to wind down, releases the capture device and clears the
// regions along with the known and hidden categories.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.mu.Lock()
	p.sessionErr = nil
	p.mu.Unlock()
	return p.stopLocked(ctx)
}

func (p *Pipeline) stopLocked(ctx context.Context) error {
	p.haltSamplingLocked()
	err := p.capture.Stop(ctx)
	p.resetLocked()
	return err
}

// SwitchDevice moves capture to id and makes it the registry's selection. Without an active
// session only the selection changes. If the new device cannot be opened the pipeline is left
// stopped.
func (p *Pipeline) SwitchDevice(ctx context.Context, id string) error {
	if !p.isListed(id) {
		return errors.Wrapf(device.ErrDeviceUnavailable, "device %q is not listed", id)
	}

	p.lifecycle.Lock()
	err := p.switchLocked(ctx, id)
	p.lifecycle.Unlock()

	if selectErr := p.devices.Select(id); selectErr != nil {
		p.logger.CWarnw(ctx, "cannot select device", "device", id, "error", selectErr)
	}
	return err
}

func (p *Pipeline) switchLocked(ctx context.Context, id string) error {
	p.mu.Lock()
	active := p.task != nil
	current := p.deviceID
	p.mu.Unlock()
	if !active || current == id {
		return nil
	}

	p.haltSamplingLocked()
	session, err := p.capture.SwitchDevice(ctx, id)
	if err != nil {
		p.resetLocked()
		return err
	}
	p.mu.Lock()
	p.regions = nil
	p.analysis = nil
	p.mu.Unlock()
	p.beginLocked(session)
	return nil
}

// onSelectionChange reacts to the registry's selection moving. If the live device is no longer
// listed the session is stopped and the loss is reported through Snapshot; capture never moves to
// the registry's fallback on its own. An explicit selection of another listed device switches to
// it.
func (p *Pipeline) onSelectionChange(selected string) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	skip := p.closed || p.task == nil || p.deviceID == selected
	current := p.deviceID
	p.mu.Unlock()
	if skip {
		return
	}

	ctx := context.Background()
	if !p.isListed(current) {
		p.logger.Warnw("capture device disappeared; stopping session", "device", current)
		if err := p.stopLocked(ctx); err != nil {
			p.logger.Warnw("error stopping session", "error", err)
		}
		p.mu.Lock()
		p.sessionErr = errors.Wrapf(device.ErrDeviceUnavailable, "capture device %q disconnected", current)
		p.mu.Unlock()
		return
	}
	p.logger.Infow("selected device changed; switching session", "device", selected)
	if err := p.switchLocked(ctx, selected); err != nil {
		p.logger.Warnw("cannot switch to newly selected device", "device", selected, "error", err)
	}
}

// beginLocked makes session the live one and starts sampling it.
func (p *Pipeline) beginLocked(session *capture.Session) {
	task := p.sampler.Start(session, p.handlerFor(session.ID))
	p.mu.Lock()
	p.sessionID = session.ID
	p.deviceID = session.DeviceID
	p.task = task
	p.sessionErr = nil
	p.mu.Unlock()
}

// haltSamplingLocked retires the live session id first, so a result that lands while the task
// winds down is discarded, then stops the task.
func (p *Pipeline) haltSamplingLocked() {
	p.mu.Lock()
	task := p.task
	p.task = nil
	p.sessionID = ""
	p.mu.Unlock()
	if task != nil {
		task.Stop()
	}
}

func (p *Pipeline) resetLocked() {
	p.mu.Lock()
	p.deviceID = ""
	p.regions = nil
	p.analysis = nil
	p.mu.Unlock()
	p.categories.Reset()
}

func (p *Pipeline) handlerFor(sessionID string) sampler.Handler {
	return func(ctx context.Context, frame sampler.Frame) {
		outcome, ok := p.dispatcher.Dispatch(ctx, sessionID, frame.Data, frame.MimeType, p.ContextLabel())
		if !ok {
			return
		}
		p.apply(sessionID, outcome)
	}
}

// apply installs an analysis outcome if sessionID is still the live session. Every reported
// category is recorded, including those of detections that had no box, and the region list is
// replaced wholesale.
func (p *Pipeline) apply(sessionID string, outcome inference.Outcome) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sessionID == "" || sessionID != p.sessionID {
		p.logger.Debugw("discarding analysis for inactive session", "session", sessionID)
		return false
	}
	p.categories.RecordCategories(outcome.Categories)
	p.regions = outcome.Regions
	p.analysis = &Analysis{
		CropContext:        outcome.Result.CropContext,
		WeedDensity:        outcome.Result.WeedDensity,
		RemediationAdvice:  outcome.Result.RemediationAdvice,
		EstimatedYieldLoss: outcome.Result.EstimatedYieldLoss,
		HerbicideDosage:    outcome.Result.HerbicideDosage,
		Detections:         len(outcome.Result.Detections),
		Dropped:            outcome.Dropped,
		Elapsed:            outcome.Elapsed,
		CompletedAt:        time.Now(),
	}
	return true
}

// SetContextLabel changes the crop label sent with subsequent frames.
func (p *Pipeline) SetContextLabel(label string) error {
	parsed, err := analyzer.ParseDatasetLabel(label)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.label = parsed
	return nil
}

// ContextLabel returns the crop label sent with frames.
func (p *Pipeline) ContextLabel() analyzer.DatasetLabel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.label
}

// ToggleVisibility flips whether category is hidden and returns the new hidden state.
func (p *Pipeline) ToggleVisibility(category string) bool {
	return p.categories.ToggleVisibility(category)
}

// Devices returns the device list, the selection and the last enumeration error.
func (p *Pipeline) Devices() DeviceList {
	return p.deviceList()
}

// RefreshDevices re-enumerates devices.
func (p *Pipeline) RefreshDevices(ctx context.Context) DeviceList {
	p.devices.Refresh(ctx)
	return p.deviceList()
}

func (p *Pipeline) deviceList() DeviceList {
	list := DeviceList{Devices: p.devices.Devices(), Selected: p.devices.Selected()}
	if err := p.devices.Err(); err != nil {
		list.Error = err.Error()
		list.PermissionDenied = errors.Is(err, device.ErrPermissionDenied)
	}
	return list
}

// Close stops the pipeline. It ignores selection changes afterwards.
func (p *Pipeline) Close(ctx context.Context) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return p.stopLocked(ctx)
}
