package analyzer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"go.viam.com/fieldscout/logging"
)

// TypeGemini is the analyzer type backed by the Gemini API.
const TypeGemini = "gemini"

const (
	defaultGeminiModel   = "gemini-2.5-flash"
	geminiAPIVersion     = "v1beta"
	defaultGeminiTimeout = 30 * time.Second

	statusResourceExhausted = "RESOURCE_EXHAUSTED"
)

const promptTemplate = `You are an agronomist scouting a %s field for weeds.
Identify every weed visible in the image. For each weed give its common species name as the
category, a confidence between 0 and 1, a short description, and a bounding box
[ymin, xmin, ymax, xmax] with every coordinate normalized to the range 0-1.
Also estimate the overall weed density (Low, Medium or High), the expected yield loss in percent,
a herbicide dosage in ml per square meter, and one paragraph of remediation advice.
Answer with JSON only.`

func init() {
	Register(TypeGemini, func(attrs map[string]interface{}, logger logging.Logger) (Analyzer, error) {
		var conf GeminiConfig
		if err := DecodeAttributes(attrs, &conf); err != nil {
			return nil, err
		}
		return NewGemini(conf, nil, logger)
	})
}

// GeminiConfig configures the Gemini analyzer.
type GeminiConfig struct {
	APIKey      string        `json:"api_key"`
	Model       string        `json:"model,omitempty"`
	BaseURL     string        `json:"base_url,omitempty"`
	Timeout     time.Duration `json:"timeout,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (conf *GeminiConfig) Validate() error {
	if conf.APIKey == "" {
		return errors.New("gemini analyzer requires an api_key")
	}
	if conf.Timeout < 0 {
		return errors.Errorf("got illegal negative timeout %s", conf.Timeout)
	}
	if conf.Temperature < 0 || conf.Temperature > 2 {
		return errors.Errorf("temperature must be within [0, 2], got %v", conf.Temperature)
	}
	return nil
}

type geminiAnalyzer struct {
	conf   GeminiConfig
	client *genai.Client
	logger logging.Logger
}

// NewGemini returns an Analyzer that calls the Gemini API. A nil client uses one with the
// configured timeout.
func NewGemini(conf GeminiConfig, httpClient *http.Client, logger logging.Logger) (Analyzer, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if conf.Model == "" {
		conf.Model = defaultGeminiModel
	}
	if conf.Timeout == 0 {
		conf.Timeout = defaultGeminiTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: conf.Timeout}
	}
	// NewClient does no I/O for the Gemini API backend; the context only scopes credential lookup.
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:     conf.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    conf.BaseURL,
			APIVersion: geminiAPIVersion,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "cannot create gemini client")
	}
	return &geminiAnalyzer{conf: conf, client: client, logger: logger}, nil
}

func (g *geminiAnalyzer) generateConfig() (*genai.GenerateContentConfig, error) {
	schema, err := ResponseSchema()
	if err != nil {
		return nil, err
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType:   "application/json",
		ResponseJsonSchema: schema,
	}
	if g.conf.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(g.conf.Temperature))
	}
	return config, nil
}

func (g *geminiAnalyzer) Analyze(ctx context.Context, img []byte, mimeType string, label DatasetLabel) (Result, error) {
	config, err := g.generateConfig()
	if err != nil {
		return EmptyResult(label), errors.Wrap(err, "cannot build gemini request")
	}
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: img}},
			{Text: fmt.Sprintf(promptTemplate, label)},
		},
	}}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.conf.Model, contents, config)
	if err != nil {
		if code, status, msg, ok := apiErrorOf(err); ok {
			if code == http.StatusTooManyRequests || status == statusResourceExhausted {
				return EmptyResult(label), errors.Wrapf(ErrRateLimited, "gemini: %s", msg)
			}
			return EmptyResult(label), errors.Errorf("gemini returned %d %s: %s", code, status, msg)
		}
		return EmptyResult(label), errors.Wrap(err, "gemini request failed")
	}
	g.logger.CDebugw(ctx, "gemini responded", "elapsed", time.Since(start), "candidates", len(resp.Candidates))

	text := resp.Text()
	if text == "" {
		return EmptyResult(label), errors.New("gemini returned no candidates")
	}
	return ParseResult(text, label)
}

// apiErrorOf unpacks the status of an error returned by the Gemini API.
func apiErrorOf(err error) (code int, status, msg string, ok bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Status, apiErr.Message, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, apiErrPtr.Status, apiErrPtr.Message, true
	}
	return 0, "", "", false
}
