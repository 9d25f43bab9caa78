package logging

import (
	"encoding/json"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"Warn", WARN},
		{"warning", WARN},
		{"error", ERROR},
	} {
		level, err := LevelFromString(tc.input)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}

	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLevelJSON(t *testing.T) {
	type wrapper struct {
		Level Level `json:"level"`
	}

	var w wrapper
	test.That(t, json.Unmarshal([]byte(`{"level":"warn"}`), &w), test.ShouldBeNil)
	test.That(t, w.Level, test.ShouldEqual, WARN)
	test.That(t, w.Level.AsZap(), test.ShouldEqual, zapcore.WarnLevel)

	out, err := json.Marshal(w)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(out), test.ShouldEqual, `{"level":"warn"}`)

	test.That(t, json.Unmarshal([]byte(`{"level":"nope"}`), &w), test.ShouldNotBeNil)
}

func TestAtomicLevel(t *testing.T) {
	level := NewAtomicLevelAt(INFO)
	test.That(t, level.Get(), test.ShouldEqual, INFO)
	level.Set(ERROR)
	test.That(t, level.Get(), test.ShouldEqual, ERROR)
}
