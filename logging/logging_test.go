package logging

import (
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"", INFO},
		{"warning", WARN},
		{" Error ", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.expected)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldBeError)
}

func TestObservedLoggerLevels(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Debugw("debug message", "k", 1)
	logger.SetLevel(WARN)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)
	logger.Info("dropped")
	logger.Warnw("kept", "frame", 7)

	entries := logs.All()
	test.That(t, entries, test.ShouldHaveLength, 2)
	test.That(t, entries[0].Message, test.ShouldEqual, "debug message")
	test.That(t, entries[1].Message, test.ShouldEqual, "kept")
	test.That(t, entries[1].ContextMap()["frame"], test.ShouldEqual, int64(7))
}

func TestSubloggerAndFields(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	sub := logger.Sublogger("pipeline").Sublogger("stage").WithFields("model", "fake")
	sub.Infow("ran")

	entries := logs.FilterMessage("ran").All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "pipeline.stage")
	test.That(t, entries[0].ContextMap()["model"], test.ShouldEqual, "fake")
}

func TestLoggerFromConfig(t *testing.T) {
	conf := Config{Level: "warn", File: filepath.Join(t.TempDir(), "out.log")}
	test.That(t, conf.Validate("log"), test.ShouldBeNil)
	logger, err := NewLoggerFromConfig("cfg", conf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logger.GetLevel(), test.ShouldEqual, WARN)

	bad := Config{MaxBackups: -1}
	test.That(t, bad.Validate("log"), test.ShouldNotBeNil)
}
