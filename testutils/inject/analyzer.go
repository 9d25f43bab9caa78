package inject

import (
	"context"

	"go.viam.com/fieldscout/analyzer"
)

// Analyzer is an injected analyzer.
type Analyzer struct {
	analyzer.Analyzer
	AnalyzeFunc func(
		ctx context.Context,
		image []byte,
		mimeType string,
		label analyzer.DatasetLabel,
	) (analyzer.Result, error)
}

// Analyze calls the injected Analyze or the real version.
func (a *Analyzer) Analyze(
	ctx context.Context,
	image []byte,
	mimeType string,
	label analyzer.DatasetLabel,
) (analyzer.Result, error) {
	if a.AnalyzeFunc == nil {
		return a.Analyzer.Analyze(ctx, image, mimeType, label)
	}
	return a.AnalyzeFunc(ctx, image, mimeType, label)
}
