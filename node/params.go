package node

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
)

// ErrUnknownParameter is returned by SetParameter for names it does not recognize.
var ErrUnknownParameter = errors.New("unknown parameter")

const enableSuffix = ".enable"

// SetParameter changes a runtime parameter. Recognized names are clip_distance, align_depth and
// <filter>.enable for each stage of the chain. Values are coerced, so "true" and 1 both enable.
func (n *Node) SetParameter(name string, value interface{}) error {
	switch {
	case name == "clip_distance":
		d, err := cast.ToFloat64E(value)
		if err != nil {
			return errors.Wrapf(err, "parameter %q", name)
		}
		n.clipDistance.Store(d)
	case name == "align_depth":
		b, err := cast.ToBoolE(value)
		if err != nil {
			return errors.Wrapf(err, "parameter %q", name)
		}
		n.alignDepth.Store(b)
	case strings.HasSuffix(name, enableSuffix):
		b, err := cast.ToBoolE(value)
		if err != nil {
			return errors.Wrapf(err, "parameter %q", name)
		}
		return n.chain.SetEnabled(strings.TrimSuffix(name, enableSuffix), b)
	default:
		return errors.Wrapf(ErrUnknownParameter, "%q", name)
	}
	n.logger.Infow("parameter changed", "name", name, "value", value)
	return nil
}

// Parameters returns the current runtime parameters in the form SetParameter accepts.
func (n *Node) Parameters() map[string]interface{} {
	params := map[string]interface{}{
		"clip_distance": n.clipDistance.Load(),
		"align_depth":   n.alignDepth.Load(),
	}
	for _, s := range n.chain.Stages() {
		params[s.Name()+enableSuffix] = s.Enabled()
	}
	return params
}
