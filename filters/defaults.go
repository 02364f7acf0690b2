package filters

import (
	"github.com/pkg/errors"

	"go.viam.com/rsnode/logging"
)

// Options parameterize the stock stages.
type Options struct {
	// DepthScale is meters per depth unit.
	DepthScale float64
	// Baseline is the stereo baseline in meters, used by the disparity transforms.
	Baseline    float64
	Decimation  int
	Spatial     SpatialOptions
	Temporal    TemporalOptions
	HoleFilling HoleFillingMode
	// Extrinsics textures point clouds from the color stream when set.
	Extrinsics ExtrinsicsSource
}

// DefaultOptions for a device with the given depth scale.
func DefaultOptions(depthScale float64) Options {
	return Options{
		DepthScale:  depthScale,
		Baseline:    0.05,
		Decimation:  2,
		Spatial:     DefaultSpatialOptions(),
		Temporal:    DefaultTemporalOptions(),
		HoleFilling: FarthestFromAround,
	}
}

// DefaultOrder is the registration order of the stock stages. Disparity conversion brackets the
// smoothing stages, and colorization and reconstruction see the final depth.
var DefaultOrder = []string{
	DecimationName,
	DisparityStartName,
	SpatialName,
	TemporalName,
	HoleFillingName,
	DisparityEndName,
	ColorizerName,
	PointCloudName,
}

// NewDefaultChain registers every stock stage in DefaultOrder, enabling those named in enabled.
func NewDefaultChain(logger logging.Logger, opts Options, enabled ...string) (*Chain, error) {
	decimation, err := NewDecimation(opts.Decimation)
	if err != nil {
		return nil, err
	}
	start, err := NewDisparityTransform(true, opts.Baseline, opts.DepthScale)
	if err != nil {
		return nil, err
	}
	end, err := NewDisparityTransform(false, opts.Baseline, opts.DepthScale)
	if err != nil {
		return nil, err
	}
	spatial, err := NewSpatial(opts.Spatial)
	if err != nil {
		return nil, err
	}
	temporal, err := NewTemporal(opts.Temporal)
	if err != nil {
		return nil, err
	}
	holes, err := NewHoleFilling(opts.HoleFilling)
	if err != nil {
		return nil, err
	}

	chain := NewChain(logger)
	for _, f := range []Filter{decimation, start, spatial, temporal, holes, end, NewColorizer(), NewPointCloud(opts.DepthScale, opts.Extrinsics)} {
		if err := chain.Register(f, false); err != nil {
			return nil, err
		}
	}
	for _, name := range enabled {
		if err := chain.SetEnabled(name, true); err != nil {
			return nil, errors.Wrap(err, "cannot enable filter")
		}
	}
	return chain, nil
}
