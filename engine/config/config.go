package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid device config")

// PoolSizes holds the capacity of every resource pool of the device.
type PoolSizes struct {
	Buffers              uint32 `toml:"buffers" yaml:"buffers"`
	Textures             uint32 `toml:"textures" yaml:"textures"`
	Samplers             uint32 `toml:"samplers" yaml:"samplers"`
	ShaderStates         uint32 `toml:"shader_states" yaml:"shader_states"`
	Pipelines            uint32 `toml:"pipelines" yaml:"pipelines"`
	RenderPasses         uint32 `toml:"render_passes" yaml:"render_passes"`
	DescriptorSetLayouts uint32 `toml:"descriptor_set_layouts" yaml:"descriptor_set_layouts"`
	DescriptorSets       uint32 `toml:"descriptor_sets" yaml:"descriptor_sets"`
}

type DeviceConfig struct {
	// The application name used in windowing and as the native application name.
	AppName string `toml:"app_name" yaml:"app_name"`
	Width   uint32 `toml:"width" yaml:"width"`
	Height  uint32 `toml:"height" yaml:"height"`

	// Requested number of swapchain images. The device uses what the surface grants.
	FramesInFlight uint32 `toml:"frames_in_flight" yaml:"frames_in_flight"`
	VSync          bool   `toml:"vsync" yaml:"vsync"`
	Validation     bool   `toml:"validation" yaml:"validation"`

	Pools PoolSizes `toml:"pools" yaml:"pools"`

	MaxThreads       uint32 `toml:"max_threads" yaml:"max_threads"`
	BuffersPerThread uint32 `toml:"buffers_per_thread" yaml:"buffers_per_thread"`

	// Size in bytes of the per-frame region of the dynamic uniform ring.
	DynamicPerFrameSize uint32 `toml:"dynamic_per_frame_size" yaml:"dynamic_per_frame_size"`

	DeletionQueueSize         uint32 `toml:"deletion_queue_size" yaml:"deletion_queue_size"`
	DescriptorUpdateQueueSize uint32 `toml:"descriptor_update_queue_size" yaml:"descriptor_update_queue_size"`

	GPUTimestamps   bool   `toml:"gpu_timestamps" yaml:"gpu_timestamps"`
	QueriesPerFrame uint32 `toml:"queries_per_frame" yaml:"queries_per_frame"`

	// Path of the offline shader compiler (glslangValidator or glslc).
	ShaderCompiler  string `toml:"shader_compiler" yaml:"shader_compiler"`
	ShaderTargetEnv string `toml:"shader_target_env" yaml:"shader_target_env"`

	LogLevel string `toml:"log_level" yaml:"log_level"`
}

// Default returns a configuration that works for the testbed.
func Default() DeviceConfig {
	return DeviceConfig{
		AppName:        "Anima GPU",
		Width:          1280,
		Height:         720,
		FramesInFlight: 3,
		VSync:          true,
		Validation:     false,
		Pools: PoolSizes{
			Buffers:              4096,
			Textures:             512,
			Samplers:             32,
			ShaderStates:         128,
			Pipelines:            128,
			RenderPasses:         256,
			DescriptorSetLayouts: 128,
			DescriptorSets:       4096,
		},
		MaxThreads:                1,
		BuffersPerThread:          4,
		DynamicPerFrameSize:       1024 * 1024,
		DeletionQueueSize:         512,
		DescriptorUpdateQueueSize: 256,
		GPUTimestamps:             true,
		QueriesPerFrame:           32,
		ShaderCompiler:            "glslangValidator",
		ShaderTargetEnv:           "vulkan1.2",
		LogLevel:                  "info",
	}
}

// Load reads a TOML or YAML file (chosen by extension) on top of the defaults.
// A leading ~ in the path is expanded to the home directory.
func Load(path string) (DeviceConfig, error) {
	cfg := Default()

	expanded, err := homedir.Expand(path)
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return cfg, err
	}

	switch strings.ToLower(filepath.Ext(expanded)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = fmt.Errorf("unsupported config format %q", filepath.Ext(expanded))
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", expanded, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects sizes the device cannot work with.
func (c DeviceConfig) Validate() error {
	var problems []string
	if c.Width == 0 || c.Height == 0 {
		problems = append(problems, "width and height must be positive")
	}
	if c.FramesInFlight < 2 {
		problems = append(problems, "frames_in_flight must be at least 2")
	}
	if c.MaxThreads == 0 {
		problems = append(problems, "max_threads must be positive")
	}
	if c.BuffersPerThread == 0 {
		problems = append(problems, "buffers_per_thread must be positive")
	}
	if c.DynamicPerFrameSize == 0 {
		problems = append(problems, "dynamic_per_frame_size must be positive")
	}
	if c.DeletionQueueSize == 0 || c.DescriptorUpdateQueueSize == 0 {
		problems = append(problems, "queue sizes must be positive")
	}
	if c.GPUTimestamps && c.QueriesPerFrame == 0 {
		problems = append(problems, "queries_per_frame must be positive when gpu_timestamps is on")
	}
	p := c.Pools
	if p.Buffers == 0 || p.Textures == 0 || p.Samplers == 0 || p.ShaderStates == 0 ||
		p.Pipelines == 0 || p.RenderPasses == 0 || p.DescriptorSetLayouts == 0 || p.DescriptorSets == 0 {
		problems = append(problems, "every pool size must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}
