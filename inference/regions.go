package inference

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/fieldscout/analyzer"
	"go.viam.com/fieldscout/detection"
)

// Region ids only need to be unique within the process.
var regionSeq = atomic.NewUint64(0)

// ErrNoBoundingBox marks a detection that carries a category but nowhere to draw it.
var ErrNoBoundingBox = errors.New("detection has no bounding box")

// ToRegion maps a raw detection to overlay geometry. Boxes are [yMin, xMin, yMax, xMax] in [0,1].
func ToRegion(idPrefix string, det analyzer.RawDetection) (detection.Region, error) {
	category := strings.TrimSpace(det.Category)
	if category == "" {
		return detection.Region{}, errors.New("detection has no category")
	}
	if len(det.BoundingBox) == 0 {
		return detection.Region{}, ErrNoBoundingBox
	}
	if len(det.BoundingBox) != 4 {
		return detection.Region{}, errors.Errorf("bounding box has %d coordinates, expected 4", len(det.BoundingBox))
	}
	for _, v := range det.BoundingBox {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return detection.Region{}, errors.Errorf("bounding box %v is outside [0,1]", det.BoundingBox)
		}
	}
	yMin, xMin, yMax, xMax := det.BoundingBox[0], det.BoundingBox[1], det.BoundingBox[2], det.BoundingBox[3]
	// A zero-area box is drawable as a line; only an inverted one is malformed.
	if yMax < yMin || xMax < xMin {
		return detection.Region{}, errors.Errorf("bounding box %v is inverted", det.BoundingBox)
	}

	confidence := det.Confidence
	if math.IsNaN(confidence) {
		confidence = 0
	}
	confidence = math.Max(0, math.Min(1, confidence))

	return detection.Region{
		ID:         fmt.Sprintf("%s-%d", idPrefix, regionSeq.Inc()),
		LeftPct:    toPct(xMin),
		TopPct:     toPct(yMin),
		WidthPct:   toPct(xMax - xMin),
		HeightPct:  toPct(yMax - yMin),
		Category:   category,
		Confidence: confidence,
	}, nil
}

// toPct converts a normalized coordinate to percent, rounded to a thousandth of a percent.
func toPct(v float64) float64 {
	return math.Round(v*100*1000) / 1000
}
