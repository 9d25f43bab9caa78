package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/fieldscout/logging"
)

func TestRegistry(t *testing.T) {
	logger := logging.NewTestLogger(t)
	test.That(t, RegisteredTypes(), test.ShouldResemble, []string{TypeGemini, TypeStatic})

	_, err := New("nope", nil, logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(TypeGemini, map[string]interface{}{}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = New(TypeGemini, map[string]interface{}{"api_key": "k", "timeout": "5s", "bogus": 1}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	a, err := New(TypeGemini, map[string]interface{}{"api_key": "k", "timeout": "5s"}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a.(*geminiAnalyzer).conf.Timeout, test.ShouldEqual, 5*time.Second)
	test.That(t, a.(*geminiAnalyzer).conf.Model, test.ShouldEqual, defaultGeminiModel)
}

func TestStaticAnalyzer(t *testing.T) {
	logger := logging.NewTestLogger(t)
	a, err := New(TypeStatic, map[string]interface{}{
		"result": map[string]interface{}{
			"weedDensity":        "High",
			"estimatedYieldLoss": 20,
			"detections": []interface{}{
				map[string]interface{}{
					"category":    "Fat Hen",
					"confidence":  0.9,
					"boundingBox": []interface{}{0.1, 0.2, 0.4, 0.6},
				},
			},
		},
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	result, err := a.Analyze(context.Background(), nil, "image/jpeg", Beet)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, result.CropContext, test.ShouldEqual, "Beet")
	test.That(t, result.WeedDensity, test.ShouldEqual, DensityHigh)
	test.That(t, result.EstimatedYieldLoss, test.ShouldEqual, 20)
	test.That(t, result.Detections, test.ShouldHaveLength, 1)
	test.That(t, result.Detections[0].BoundingBox, test.ShouldResemble, []float64{0.1, 0.2, 0.4, 0.6})

	t.Run("delay honors cancellation", func(t *testing.T) {
		slow := NewStatic(StaticConfig{Delay: time.Hour})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		result, err := slow.Analyze(ctx, nil, "image/jpeg", Cotton)
		test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
		test.That(t, result, test.ShouldResemble, EmptyResult(Cotton))
	})
}

func TestRateLimited(t *testing.T) {
	var calls int
	inner := Func(func(ctx context.Context, image []byte, mimeType string, label DatasetLabel) (Result, error) {
		calls++
		return Result{CropContext: "called", Detections: []RawDetection{}}, nil
	})
	limited := NewRateLimited(inner, 1, logging.NewTestLogger(t))

	for i := 0; i < rateLimitBurst; i++ {
		result, err := limited.Analyze(context.Background(), nil, "image/jpeg", Beet)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, result.CropContext, test.ShouldEqual, "called")
	}

	result, err := limited.Analyze(context.Background(), nil, "image/jpeg", Beet)
	test.That(t, errors.Is(err, ErrRateLimited), test.ShouldBeTrue)
	test.That(t, result, test.ShouldResemble, EmptyResult(Beet))
	test.That(t, calls, test.ShouldEqual, rateLimitBurst)
}
