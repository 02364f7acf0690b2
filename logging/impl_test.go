package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.viam.com/test"
)

type sampleStats struct {
	Count  int
	hidden string
}

type streamInfo struct {
	Name  string
	Stats sampleStats
}

// readLine splits the next buffered line into its tab separated parts.
func readLine(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	line, err := buf.ReadString('\n')
	test.That(t, err, test.ShouldBeNil)
	return strings.Split(strings.TrimSuffix(line, "\n"), "\t")
}

// checkLine compares a line ignoring its timestamp value and caller line number.
func checkLine(t *testing.T, parts []string, level, message string) {
	t.Helper()
	test.That(t, len(parts), test.ShouldBeGreaterThanOrEqualTo, 4)
	test.That(t, len(parts[0]), test.ShouldEqual, len("2026-10-19T09:12:09.459Z"))
	test.That(t, parts[1], test.ShouldEqual, level)
	file, _, found := strings.Cut(parts[2], ":")
	test.That(t, found, test.ShouldBeTrue)
	test.That(t, file, test.ShouldEqual, "logging/impl_test.go")
	test.That(t, parts[3], test.ShouldEqual, message)
}

func fieldsOf(t *testing.T, parts []string) map[string]any {
	t.Helper()
	test.That(t, parts, test.ShouldHaveLength, 5)
	fields := map[string]any{}
	test.That(t, json.Unmarshal([]byte(parts[4]), &fields), test.ShouldBeNil)
	return fields
}

func TestConsoleOutputFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newImpl("", DEBUG, true, NewWriterAppender(&buf))

	logger.Info("stream opened")
	parts := readLine(t, &buf)
	checkLine(t, parts, "INFO", "stream opened")
	test.That(t, parts, test.ShouldHaveLength, 4)
	test.That(t, strings.HasSuffix(parts[0], "Z"), test.ShouldBeTrue)

	logger.Debugf("frame %d of %s", 3, "depth")
	checkLine(t, readLine(t, &buf), "DEBUG", "frame 3 of depth")

	logger.Infow("profile", "stream", "gyro", "info", streamInfo{"gyro", sampleStats{4, "x"}})
	parts = readLine(t, &buf)
	checkLine(t, parts, "INFO", "profile")
	test.That(t, fieldsOf(t, parts), test.ShouldResemble, map[string]any{
		"stream": "gyro",
		"info":   map[string]any{"Name": "gyro", "Stats": map[string]any{"Count": float64(4)}},
	})

	logger.Warnw("unpaired", "lonely")
	parts = readLine(t, &buf)
	checkLine(t, parts, "WARN", "unpaired")
	test.That(t, fieldsOf(t, parts)["lonely"], test.ShouldEqual, "unpaired log key")
}

func TestNamedLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := newImpl("rsnode", INFO, true, NewWriterAppender(&buf))

	logger.Sublogger("imu").Error("gap")
	parts := readLine(t, &buf)
	test.That(t, parts, test.ShouldHaveLength, 5)
	test.That(t, parts[1], test.ShouldEqual, "ERROR")
	test.That(t, parts[2], test.ShouldEqual, "rsnode.imu")
	test.That(t, parts[4], test.ShouldEqual, "gap")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := newImpl("", WARN, true, NewWriterAppender(&buf))

	logger.Debug("dropped")
	logger.Infof("dropped %d", 2)
	test.That(t, buf.Len(), test.ShouldEqual, 0)

	logger.Warn("kept")
	checkLine(t, readLine(t, &buf), "WARN", "kept")

	logger.SetLevel(DEBUG)
	test.That(t, logger.GetLevel(), test.ShouldEqual, DEBUG)
	logger.Debug("now kept")
	checkLine(t, readLine(t, &buf), "DEBUG", "now kept")
}

func TestSubloggerNames(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	sub := logger.Sublogger("imu").Sublogger("sync")

	sub.Warnw("backlog", "size", 3)
	entries := observed.All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "imu.sync")
	test.That(t, entries[0].ContextMap()["size"], test.ShouldEqual, int64(3))
}

func TestSubloggerSharesAppenders(t *testing.T) {
	root := newImpl("", INFO, true)
	sub := root.Sublogger("node")
	sub.SetLevel(ERROR)

	var buf bytes.Buffer
	root.AddAppender(NewWriterAppender(&buf))
	sub.Warn("filtered by sublogger level")
	test.That(t, buf.Len(), test.ShouldEqual, 0)
	test.That(t, root.GetLevel(), test.ShouldEqual, INFO)

	sub.Error("reaches late appender")
	parts := readLine(t, &buf)
	test.That(t, parts[2], test.ShouldEqual, "node")
	test.That(t, parts[4], test.ShouldEqual, "reaches late appender")
	test.That(t, root.Sync(), test.ShouldBeNil)
}

func TestDebugModeContext(t *testing.T) {
	var buf bytes.Buffer
	logger := newImpl("", INFO, true, NewWriterAppender(&buf))

	logger.CDebugf(context.Background(), "dropped %v", 1)
	test.That(t, buf.Len(), test.ShouldEqual, 0)
	test.That(t, IsDebugMode(context.Background()), test.ShouldBeFalse)

	ctx := EnableDebugMode(context.Background(), "")
	test.That(t, IsDebugMode(ctx), test.ShouldBeTrue)
	test.That(t, GetName(ctx), test.ShouldHaveLength, 8)
	logger.CDebugf(ctx, "kept %v", 1)
	checkLine(t, readLine(t, &buf), "DEBUG", "kept 1")

	test.That(t, GetName(EnableDebugMode(ctx, "frames")), test.ShouldEqual, "frames")
}

func TestLevelFromString(t *testing.T) {
	level, err := LevelFromString("WARNING")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, level, test.ShouldEqual, WARN)

	_, err = LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}
