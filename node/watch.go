package node

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/rsnode/logging"
)

const reloadDebounce = 100 * time.Millisecond

// LoadConfigFile reads a JSON attribute file and decodes it over the defaults.
func LoadConfigFile(path string) (*Config, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	var attributes map[string]interface{}
	if err := json.Unmarshal(data, &attributes); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return ConfigFromAttributes(attributes)
}

// RuntimeChanges lists the SetParameter calls that bring a node currently reporting current in
// line with conf. Only clip_distance, align_depth and the filter toggles can change at runtime.
func RuntimeChanges(current map[string]interface{}, conf *Config) map[string]interface{} {
	desired := map[string]interface{}{
		"clip_distance": conf.ClipDistance,
		"align_depth":   conf.AlignDepth,
	}
	for name := range current {
		if filterName, ok := strings.CutSuffix(name, enableSuffix); ok {
			desired[name] = lo.Contains(conf.Filters, filterName)
		}
	}
	return lo.PickBy(desired, func(name string, v interface{}) bool {
		return current[name] != v
	})
}

// ParameterWatcher re-reads a config file whenever it changes and applies the runtime
// parameters it holds to a node. Other changes are reported and need a restart.
type ParameterWatcher struct {
	path    string
	node    *Node
	logger  logging.Logger
	watcher *fsnotify.Watcher
	workers *utils.StoppableWorkers

	loaded Config
}

// NewParameterWatcher starts watching path on behalf of n. The file must hold the configuration
// the node was created from.
func NewParameterWatcher(path string, n *Node, logger logging.Logger) (*ParameterWatcher, error) {
	conf, err := LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// editors replace files, so watch the directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return nil, multierr.Combine(err, watcher.Close())
	}
	pw := &ParameterWatcher{path: path, node: n, logger: logger, watcher: watcher, loaded: *conf}
	pw.workers = utils.NewBackgroundStoppableWorkers(pw.watch)
	return pw, nil
}

func (pw *ParameterWatcher) watch(ctx context.Context) {
	// editors emit several events per save
	debounced := debounce.New(reloadDebounce)
	reload := func() {
		if ctx.Err() != nil {
			return
		}
		if err := pw.Reload(); err != nil {
			pw.logger.Errorw("failed to reload config", "path", pw.path, "error", err)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(pw.path) || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounced(reload)
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Warnw("config watch error", "error", err)
		}
	}
}

// Reload reads the file and applies its runtime parameters.
func (pw *ParameterWatcher) Reload() error {
	conf, err := LoadConfigFile(pw.path)
	if err != nil {
		return err
	}
	if err := conf.Validate("node"); err != nil {
		return err
	}

	changes := RuntimeChanges(pw.node.Parameters(), conf)
	names := lo.Keys(changes)
	sort.Strings(names)
	for _, name := range names {
		if err := pw.node.SetParameter(name, changes[name]); err != nil {
			return err
		}
	}

	restart := *conf
	restart.ClipDistance, restart.AlignDepth, restart.Filters = pw.loaded.ClipDistance, pw.loaded.AlignDepth, pw.loaded.Filters
	if !reflect.DeepEqual(restart, pw.loaded) {
		pw.logger.Warnw("config changes other than runtime parameters take effect after a restart", "path", pw.path)
	}
	pw.logger.Infow("config reloaded", "path", pw.path, "applied", len(changes))
	return nil
}

// Close stops watching.
func (pw *ParameterWatcher) Close() error {
	pw.workers.Stop()
	return pw.watcher.Close()
}
