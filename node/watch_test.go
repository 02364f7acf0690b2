package node

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/rsnode/filters"
	"go.viam.com/rsnode/logging"
)

func TestRuntimeChanges(t *testing.T) {
	current := map[string]interface{}{
		"clip_distance":     -1.0,
		"align_depth":       false,
		"spatial.enable":    true,
		"decimation.enable": false,
	}
	conf := DefaultConfig()
	conf.Filters = []string{filters.DecimationName}
	conf.AlignDepth = true

	test.That(t, RuntimeChanges(current, &conf), test.ShouldResemble, map[string]interface{}{
		"align_depth":       true,
		"spatial.enable":    false,
		"decimation.enable": true,
	})

	conf = DefaultConfig()
	conf.Filters = []string{filters.SpatialName}
	test.That(t, RuntimeChanges(current, &conf), test.ShouldBeEmpty)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.json")
	test.That(t, os.WriteFile(path, []byte(`{"camera_name": "rear", "enable_gyro": true}`), 0o600), test.ShouldBeNil)
	conf, err := LoadConfigFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.CameraName, test.ShouldEqual, "rear")
	test.That(t, conf.EnableGyro, test.ShouldBeTrue)
	test.That(t, conf.EnableColor, test.ShouldBeTrue)

	test.That(t, os.WriteFile(path, []byte(`{"camera_name": `), 0o600), test.ShouldBeNil)
	_, err = LoadConfigFile(path)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = LoadConfigFile(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestParameterWatcher(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.json")
	test.That(t, os.WriteFile(path, []byte(`{"camera_name": "camera"}`), 0o600), test.ShouldBeNil)

	h := newHarness(t, DefaultConfig())
	pw, err := NewParameterWatcher(path, h.node, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	defer func() { test.That(t, pw.Close(), test.ShouldBeNil) }()

	updated := `{"camera_name": "camera", "clip_distance": 2.5, "filters": ["temporal"], "align_depth": true}`
	test.That(t, os.WriteFile(path, []byte(updated), 0o600), test.ShouldBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		params := h.node.Parameters()
		test.That(tb, params["clip_distance"], test.ShouldEqual, 2.5)
		test.That(tb, params["align_depth"], test.ShouldEqual, true)
		test.That(tb, params["temporal.enable"], test.ShouldEqual, true)
	})

	// invalid files leave the parameters alone
	test.That(t, os.WriteFile(path, []byte(`{"camera_name": "camera", "filters": ["sharpen"]}`), 0o600), test.ShouldBeNil)
	test.That(t, pw.Reload(), test.ShouldNotBeNil)
	test.That(t, h.node.Parameters()["temporal.enable"], test.ShouldEqual, true)
}
