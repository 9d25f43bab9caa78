package analyzer

import (
	"context"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/fieldscout/logging"
)

// TypeStatic is an analyzer that replays a configured result. It is meant for demos and for
// running the pipeline without network access.
const TypeStatic = "static"

func init() {
	Register(TypeStatic, func(attrs map[string]interface{}, logger logging.Logger) (Analyzer, error) {
		var conf StaticConfig
		if err := DecodeAttributes(attrs, &conf); err != nil {
			return nil, err
		}
		return NewStatic(conf), nil
	})
}

// StaticConfig configures the static analyzer.
type StaticConfig struct {
	Result Result        `json:"result"`
	Delay  time.Duration `json:"delay,omitempty"`
}

type staticAnalyzer struct {
	conf StaticConfig
}

// NewStatic returns an analyzer that always answers with conf.Result after conf.Delay.
func NewStatic(conf StaticConfig) Analyzer {
	if conf.Result.Detections == nil {
		conf.Result.Detections = []RawDetection{}
	}
	return &staticAnalyzer{conf: conf}
}

func (s *staticAnalyzer) Analyze(ctx context.Context, _ []byte, _ string, label DatasetLabel) (Result, error) {
	if s.conf.Delay > 0 && !goutils.SelectContextOrWait(ctx, s.conf.Delay) {
		return EmptyResult(label), errors.Wrap(ctx.Err(), "static analysis cancelled")
	}
	result := s.conf.Result
	result.Detections = append([]RawDetection{}, s.conf.Result.Detections...)
	if result.CropContext == "" {
		result.CropContext = string(label)
	}
	return result, nil
}
