// Package analyzer defines the remote vision model that turns a field image into weed
// detections, along with the concrete clients that talk to it.
//
// Every Analyzer upholds the same failure contract: when the call fails for any reason (network
// error, malformed response, rate limit) it returns the zeroed EmptyResult together with a
// non-nil error. Callers can therefore always use the returned Result, and use the error only to
// decide whether the result reflects a real analysis.
package analyzer

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ErrRateLimited is returned (wrapped) when the model, or the local request budget, refuses a
// request because too many were made.
var ErrRateLimited = errors.New("analyzer rate limited")

// DatasetLabel names the crop the image was taken from. It is passed to the model as context.
type DatasetLabel string

const (
	// Cotton fields.
	Cotton DatasetLabel = "Cotton"
	// Beet fields.
	Beet DatasetLabel = "Beet"
)

// ParseDatasetLabel accepts a label case-insensitively.
func ParseDatasetLabel(s string) (DatasetLabel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cotton":
		return Cotton, nil
	case "beet":
		return Beet, nil
	}
	return "", errors.Errorf("unknown dataset label %q (expected %q or %q)", s, Cotton, Beet)
}

// WeedDensity is the model's coarse estimate of weed pressure in the frame.
type WeedDensity string

// Weed densities.
const (
	DensityLow    WeedDensity = "Low"
	DensityMedium WeedDensity = "Medium"
	DensityHigh   WeedDensity = "High"
)

// RawDetection is a single detection as returned by the model. BoundingBox, when present, is
// [yMin, xMin, yMax, xMax] normalized to [0,1].
type RawDetection struct {
	Category    string    `json:"category" jsonschema:"description=Common name of the weed species"`
	Confidence  float64   `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	BoundingBox []float64 `json:"boundingBox,omitempty" jsonschema:"minItems=4,maxItems=4,description=[ymin xmin ymax xmax] normalized to 0-1"`
	Description string    `json:"description,omitempty"`
}

// Result is the complete answer for one analyzed frame.
type Result struct {
	CropContext        string         `json:"cropContext"`
	WeedDensity        WeedDensity    `json:"weedDensity" jsonschema:"enum=Low,enum=Medium,enum=High"`
	RemediationAdvice  string         `json:"remediationAdvice"`
	EstimatedYieldLoss float64        `json:"estimatedYieldLoss" jsonschema:"description=Estimated yield loss in percent"`
	HerbicideDosage    float64        `json:"herbicideDosage" jsonschema:"description=Recommended dosage in ml per square meter"`
	Detections         []RawDetection `json:"detections"`
	// Undecodable counts detections the model sent that could not be decoded at all.
	Undecodable int `json:"-"`
}

// EmptyResult is the zeroed result substituted for any failed analysis.
func EmptyResult(label DatasetLabel) Result {
	return Result{
		CropContext: string(label),
		WeedDensity: DensityLow,
		Detections:  []RawDetection{},
	}
}

// Analyzer sends one encoded image to a vision model.
type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string, label DatasetLabel) (Result, error)
}

// Func adapts a plain function to the Analyzer interface.
type Func func(ctx context.Context, image []byte, mimeType string, label DatasetLabel) (Result, error)

// Analyze calls f.
func (f Func) Analyze(ctx context.Context, image []byte, mimeType string, label DatasetLabel) (Result, error) {
	return f(ctx, image, mimeType, label)
}
