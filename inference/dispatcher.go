// Package inference sends sampled frames to the analyzer and turns its answers into overlay
// regions.
package inference

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/fieldscout/analyzer"
	"go.viam.com/fieldscout/detection"
	"go.viam.com/fieldscout/logging"
	"go.viam.com/fieldscout/utils"
)

// Outcome is a successfully analyzed frame.
type Outcome struct {
	Result  analyzer.Result
	Regions []detection.Region
	// Categories holds every category the analyzer reported, including those of detections that
	// had no usable bounding box.
	Categories []string
	Dropped    int
	Elapsed    time.Duration
}

// Dispatcher delegates frames to an analyzer.
type Dispatcher struct {
	analyzer analyzer.Analyzer
	logger   logging.Logger
}

// NewDispatcher returns a Dispatcher around a.
func NewDispatcher(a analyzer.Analyzer, logger logging.Logger) *Dispatcher {
	return &Dispatcher{analyzer: a, logger: logger}
}

// Dispatch analyzes one encoded frame. It never returns an error: on any analyzer failure it logs
// and returns ok=false, and the caller keeps whatever it displayed before. Individual malformed
// detections are dropped without failing the batch.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	regionPrefix string,
	img []byte,
	mimeType string,
	label analyzer.DatasetLabel,
) (Outcome, bool) {
	start := time.Now()
	done := utils.SlowLogger(ctx, "waiting for analysis", "label", string(label), d.logger)
	result, err := d.analyzer.Analyze(ctx, img, mimeType, label)
	done()
	elapsed := time.Since(start)
	if err != nil {
		switch {
		case errors.Is(err, analyzer.ErrRateLimited):
			d.logger.CWarnw(ctx, "analysis rate limited; keeping previous regions", "error", err)
		case ctx.Err() != nil:
			d.logger.CDebugw(ctx, "analysis abandoned", "error", err)
		default:
			d.logger.CWarnw(ctx, "analysis failed; keeping previous regions", "error", err, "elapsed", elapsed)
		}
		return Outcome{}, false
	}

	out := Outcome{
		Result:     result,
		Regions:    make([]detection.Region, 0, len(result.Detections)),
		Categories: make([]string, 0, len(result.Detections)),
		Dropped:    result.Undecodable,
		Elapsed:    elapsed,
	}
	for i, det := range result.Detections {
		if category := strings.TrimSpace(det.Category); category != "" {
			out.Categories = append(out.Categories, category)
		}
		region, err := ToRegion(regionPrefix, det)
		if err != nil {
			out.Dropped++
			if !errors.Is(err, ErrNoBoundingBox) {
				d.logger.CDebugw(ctx, "dropping malformed detection", "index", i, "error", err)
			}
			continue
		}
		out.Regions = append(out.Regions, region)
	}
	d.logger.CDebugw(ctx, "analysis complete",
		"regions", len(out.Regions), "dropped", out.Dropped, "density", result.WeedDensity, "elapsed", elapsed)
	return out, true
}
