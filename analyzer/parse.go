package analyzer

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/pkg/errors"
)

// StripCodeFences removes a surrounding markdown code fence, with or without a language tag, and
// any prose outside the outermost JSON object.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if nl := strings.IndexByte(text, '\n'); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		if end := strings.LastIndex(text, "```"); end >= 0 {
			text = text[:end]
		}
		text = strings.TrimSpace(text)
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return text
}

// resultEnvelope is Result with each detection left raw, so one bad entry does not sink the rest.
type resultEnvelope struct {
	CropContext        string            `json:"cropContext"`
	WeedDensity        WeedDensity       `json:"weedDensity"`
	RemediationAdvice  string            `json:"remediationAdvice"`
	EstimatedYieldLoss float64           `json:"estimatedYieldLoss"`
	HerbicideDosage    float64           `json:"herbicideDosage"`
	Detections         []json.RawMessage `json:"detections"`
}

// ParseResult decodes the model's text answer. A detection that cannot be decoded is skipped
// and counted in Undecodable. Boxes given on the 0-1000 scale some models default to are
// rescaled to [0,1].
func ParseResult(text string, label DatasetLabel) (Result, error) {
	cleaned := StripCodeFences(text)
	if cleaned == "" {
		return EmptyResult(label), errors.New("empty model response")
	}

	var envelope resultEnvelope
	if err := json.Unmarshal([]byte(cleaned), &envelope); err != nil {
		return EmptyResult(label), errors.Wrap(err, "cannot parse model response as json")
	}
	result := Result{
		CropContext:        envelope.CropContext,
		WeedDensity:        envelope.WeedDensity,
		RemediationAdvice:  envelope.RemediationAdvice,
		EstimatedYieldLoss: envelope.EstimatedYieldLoss,
		HerbicideDosage:    envelope.HerbicideDosage,
		Detections:         make([]RawDetection, 0, len(envelope.Detections)),
	}
	if result.CropContext == "" {
		result.CropContext = string(label)
	}
	for _, raw := range envelope.Detections {
		var det RawDetection
		if err := json.Unmarshal(raw, &det); err != nil {
			result.Undecodable++
			continue
		}
		det.BoundingBox = normalizeBox(det.BoundingBox)
		result.Detections = append(result.Detections, det)
	}
	return result, nil
}

// thousandScaleFloor is the largest coordinate above which a box is read as 0-1000. Anything
// between 1 and this is float noise on a normalized box.
const thousandScaleFloor = 2

func normalizeBox(box []float64) []float64 {
	if len(box) != 4 {
		return box
	}
	hi := box[0]
	for _, v := range box[1:] {
		hi = math.Max(hi, v)
	}
	out := make([]float64, len(box))
	switch {
	case hi <= 1 || hi > 1000 || math.IsNaN(hi):
		return box
	case hi > thousandScaleFloor:
		for i, v := range box {
			out[i] = v / 1000
		}
	default:
		for i, v := range box {
			out[i] = math.Min(v, 1)
		}
	}
	return out
}
