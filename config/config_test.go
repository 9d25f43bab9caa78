package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/fieldscout/analyzer"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fieldscout.json")
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func TestReadExpandsEnvironment(t *testing.T) {
	t.Setenv("FIELDSCOUT_TEST_KEY", "secret-key")
	path := writeConfig(t, `{
		"analyzer": {
			"type": "gemini",
			"attributes": {"api_key": "${FIELDSCOUT_TEST_KEY}", "timeout": "10s"},
			"rate_per_minute": 10
		},
		"sampler": {"interval": "5s"},
		"context_label": "beet",
		"web": {"address": ":9000", "cors_origins": ["http://localhost:5173"]},
		"log": {"level": "debug", "file": {"path": "/tmp/fieldscout.log"}}
	}`)

	cfg, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.Analyzer.Attributes["api_key"], test.ShouldEqual, "secret-key")
	test.That(t, cfg.Analyzer.RatePerMinute, test.ShouldEqual, 10)
	test.That(t, cfg.Label(), test.ShouldEqual, analyzer.Beet)
	test.That(t, cfg.Web.Address, test.ShouldEqual, ":9000")
	test.That(t, cfg.Web.CORSOrigins, test.ShouldResemble, []string{"http://localhost:5173"})
	test.That(t, cfg.Log.File.Path, test.ShouldEqual, "/tmp/fieldscout.log")

	samplerConf, err := cfg.SamplerConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, samplerConf.Interval, test.ShouldEqual, 5*time.Second)
	test.That(t, samplerConf.Scale, test.ShouldEqual, 0.5)
	test.That(t, samplerConf.JPEGQuality, test.ShouldEqual, 60)
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	test.That(t, cfg.Validate(), test.ShouldBeNil)
	test.That(t, cfg.Devices.Dir, test.ShouldEqual, "/dev")
	test.That(t, cfg.Capture.Width, test.ShouldEqual, 1280)
	test.That(t, cfg.Capture.Height, test.ShouldEqual, 720)
	test.That(t, cfg.Analyzer.Type, test.ShouldEqual, analyzer.TypeGemini)
	test.That(t, cfg.Analyzer.RatePerMinute, test.ShouldEqual, analyzer.DefaultRequestsPerMinute)
	test.That(t, cfg.Label(), test.ShouldEqual, analyzer.Cotton)
	test.That(t, cfg.Web.Address, test.ShouldEqual, DefaultAddress)

	samplerConf, err := cfg.SamplerConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, samplerConf.Interval, test.ShouldEqual, 4*time.Second)

	debounce, err := cfg.DebounceInterval()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, debounce, test.ShouldEqual, 250*time.Millisecond)
}

func TestValidationErrors(t *testing.T) {
	for _, tc := range []struct {
		name     string
		contents string
		contains string
	}{
		{"unknown field", `{"camera": {}}`, "unknown field"},
		{"bad json", `{"sampler": `, "decode"},
		{"bad interval", `{"sampler": {"interval": "soon"}}`, "sampler.interval"},
		{"bad scale", `{"sampler": {"scale": 2}}`, "sampler.scale"},
		{"unknown analyzer", `{"analyzer": {"type": "oracle"}}`, "unknown analyzer type"},
		{"negative rate", `{"analyzer": {"type": "static", "rate_per_minute": -1}}`, "rate_per_minute"},
		{"bad label", `{"context_label": "wheat"}`, "context_label"},
		{"bad log level", `{"log": {"level": "loud"}}`, "log.level"},
		{"log file without path", `{"log": {"file": {}}}`, "log.file"},
		{"bad debounce", `{"devices": {"debounce": "x"}}`, "devices.debounce"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromReader("", strings.NewReader(tc.contents))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.contains)
		})
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}
