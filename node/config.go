package node

import (
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/rsnode/backpressure"
	"go.viam.com/rsnode/depth"
	"go.viam.com/rsnode/device"
	"go.viam.com/rsnode/filters"
	"go.viam.com/rsnode/imusync"
)

// Config describes which streams the node publishes and how it processes them.
type Config struct {
	CameraName string `json:"camera_name"`

	EnableColor      bool `json:"enable_color"`
	EnableDepth      bool `json:"enable_depth"`
	EnableInfra1     bool `json:"enable_infra1"`
	EnableInfra2     bool `json:"enable_infra2"`
	EnableGyro       bool `json:"enable_gyro"`
	EnableAccel      bool `json:"enable_accel"`
	EnablePose       bool `json:"enable_pose"`
	EnableConfidence bool `json:"enable_confidence"`

	UniteImuMethod     string  `json:"unite_imu_method"`
	LinearAccelCov     float64 `json:"linear_accel_cov"`
	AngularVelocityCov float64 `json:"angular_velocity_cov"`
	ImuBacklogSize     int     `json:"imu_backlog_size"`

	// ClipDistance in meters; non-positive disables clipping.
	ClipDistance       float64  `json:"clip_distance"`
	AlignDepth         bool     `json:"align_depth"`
	Filters            []string `json:"filters"`
	DepthTargetScale   float64  `json:"depth_target_scale"`
	DisparityBaselineM float64  `json:"disparity_baseline_m"`

	PublishTF     bool    `json:"publish_tf"`
	TFPublishRate float64 `json:"tf_publish_rate"`
	PublishOdomTF bool    `json:"publish_odom_tf"`
}

// DefaultConfig publishes color and depth with static transforms.
func DefaultConfig() Config {
	return Config{
		CameraName:         "camera",
		EnableColor:        true,
		EnableDepth:        true,
		LinearAccelCov:     0.01,
		AngularVelocityCov: 0.01,
		ImuBacklogSize:     backpressure.DefaultCapacity,
		ClipDistance:       -1,
		DepthTargetScale:   depth.DefaultTargetScale,
		PublishTF:          true,
		PublishOdomTF:      true,
	}
}

// ConfigFromAttributes decodes an attribute map over the defaults.
func ConfigFromAttributes(attributes map[string]interface{}) (*Config, error) {
	conf := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &conf})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, err
	}
	return &conf, nil
}

// Validate ensures all parts of the config are valid.
func (config *Config) Validate(path string) error {
	if config.CameraName == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "camera_name")
	}
	method, err := imusync.ParseMethod(config.UniteImuMethod)
	if err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if method != imusync.MethodNone && !(config.EnableGyro && config.EnableAccel) {
		return utils.NewConfigValidationError(path,
			errors.New("unite_imu_method requires both enable_gyro and enable_accel"))
	}
	for _, name := range config.Filters {
		if !lo.Contains(filters.DefaultOrder, name) {
			return utils.NewConfigValidationError(path, errors.Wrapf(filters.ErrUnknownFilter, "%q", name))
		}
	}
	if config.LinearAccelCov < 0 || config.AngularVelocityCov < 0 {
		return utils.NewConfigValidationError(path, errors.New("covariances cannot be negative"))
	}
	if config.ImuBacklogSize < 0 {
		return utils.NewConfigValidationError(path, errors.New("imu_backlog_size cannot be negative"))
	}
	if config.DepthTargetScale < 0 || config.DisparityBaselineM < 0 {
		return utils.NewConfigValidationError(path, errors.New("depth_target_scale and disparity_baseline_m cannot be negative"))
	}
	return nil
}

// Enabled reports whether the stream is configured for publishing.
func (config *Config) Enabled(id device.StreamIdentity) bool {
	switch id {
	case device.ColorStream:
		return config.EnableColor
	case device.DepthStream:
		return config.EnableDepth
	case device.InfraredLeftStream:
		return config.EnableInfra1
	case device.InfraredRightStream:
		return config.EnableInfra2
	case device.GyroStream:
		return config.EnableGyro
	case device.AccelStream:
		return config.EnableAccel
	case device.PoseStream:
		return config.EnablePose
	case device.ConfidenceStream:
		return config.EnableConfidence
	}
	return false
}
