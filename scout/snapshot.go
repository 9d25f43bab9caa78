package scout

import (
	"time"

	"github.com/pkg/errors"

	"go.viam.com/fieldscout/analyzer"
	"go.viam.com/fieldscout/detection"
	"go.viam.com/fieldscout/device"
)

// Analysis summarizes the most recent applied analysis.
type Analysis struct {
	CropContext        string               `json:"crop_context"`
	WeedDensity        analyzer.WeedDensity `json:"weed_density"`
	RemediationAdvice  string               `json:"remediation_advice"`
	EstimatedYieldLoss float64              `json:"estimated_yield_loss"`
	HerbicideDosage    float64              `json:"herbicide_dosage"`
	Detections         int                  `json:"detections"`
	Dropped            int                  `json:"dropped"`
	Elapsed            time.Duration        `json:"elapsed_ns"`
	CompletedAt        time.Time            `json:"completed_at"`
}

// Snapshot is what the renderer draws from.
type Snapshot struct {
	Active       bool                  `json:"active"`
	SessionID    string                `json:"session_id,omitempty"`
	DeviceID     string                `json:"device_id,omitempty"`
	ContextLabel analyzer.DatasetLabel `json:"context_label"`
	InFlight     bool                  `json:"in_flight"`
	// Regions are the visible regions in analyzer order.
	Regions    []detection.Region `json:"regions"`
	AllRegions []detection.Region `json:"all_regions"`
	Known      []string           `json:"known_categories"`
	Hidden     []string           `json:"hidden_categories"`
	Analysis   *Analysis          `json:"analysis,omitempty"`
	// Error says why the last session ended on its own, e.g. its camera was unplugged. The user
	// has to start a new session.
	Error             string `json:"error,omitempty"`
	DeviceUnavailable bool   `json:"device_unavailable,omitempty"`
}

// DeviceList is the device picker's view of the registry.
type DeviceList struct {
	Devices          []device.CaptureDevice `json:"devices"`
	Selected         string                 `json:"selected"`
	Error            string                 `json:"error,omitempty"`
	PermissionDenied bool                   `json:"permission_denied,omitempty"`
}

// Snapshot returns the current renderer contract. The visible regions are filtered against the
// hidden set at call time.
func (p *Pipeline) Snapshot() Snapshot {
	p.mu.Lock()
	all := append([]detection.Region{}, p.regions...)
	snap := Snapshot{
		Active:       p.task != nil,
		SessionID:    p.sessionID,
		DeviceID:     p.deviceID,
		ContextLabel: p.label,
	}
	if p.sessionErr != nil {
		snap.Error = p.sessionErr.Error()
		snap.DeviceUnavailable = errors.Is(p.sessionErr, device.ErrDeviceUnavailable)
	}
	if p.analysis != nil {
		analysis := *p.analysis
		snap.Analysis = &analysis
	}
	p.mu.Unlock()

	snap.InFlight = p.slot.InFlight()
	snap.AllRegions = all
	snap.Regions = p.categories.VisibleRegions(all)
	snap.Known = p.categories.Known()
	snap.Hidden = p.categories.Hidden()
	return snap
}
