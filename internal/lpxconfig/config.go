// Package lpxconfig loads and validates the tunable knobs for the
// streaming server and scan pipeline. Every field is an optional
// pointer: fields omitted from a loaded JSON document keep their
// documented default, so partial config files are safe.
package lpxconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the root configuration for a streaming server process.
// The schema is shared between on-disk JSON files and any future
// runtime-update surface, so every field is optional.
type Config struct {
	ListenAddr *string `json:"listen_addr,omitempty"`

	OutputWidth  *int `json:"output_width,omitempty"`
	OutputHeight *int `json:"output_height,omitempty"`

	FrameQueueCapacity     *int `json:"frame_queue_capacity,omitempty"`
	BroadcastQueueCapacity *int `json:"broadcast_queue_capacity,omitempty"`

	MinSkip           *int     `json:"min_skip,omitempty"`
	MaxSkip           *int     `json:"max_skip,omitempty"`
	MotionThreshold   *float64 `json:"motion_threshold,omitempty"`
	LatencyEMADecay   *float64 `json:"latency_ema_decay,omitempty"`
	MovementClampFrac *float64 `json:"movement_clamp_fraction,omitempty"`

	WireMaxFrameBytes *int64 `json:"wire_max_frame_bytes,omitempty"`
	KeyThrottleMillis *int   `json:"key_throttle_millis,omitempty"`

	FileFPS     *float64 `json:"file_fps,omitempty"`
	FileLooping *bool    `json:"file_looping,omitempty"`
}

// Empty returns a Config with every field unset. Use Get* accessors to
// read values with their documented defaults applied.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file at path and validates it.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that any set fields hold values sane enough to run
// the pipeline. It never clamps a value on the caller's behalf.
func (c *Config) Validate() error {
	if c.OutputWidth != nil && *c.OutputWidth <= 0 {
		return fmt.Errorf("output_width must be positive, got %d", *c.OutputWidth)
	}
	if c.OutputHeight != nil && *c.OutputHeight <= 0 {
		return fmt.Errorf("output_height must be positive, got %d", *c.OutputHeight)
	}
	if c.FrameQueueCapacity != nil && *c.FrameQueueCapacity <= 0 {
		return fmt.Errorf("frame_queue_capacity must be positive, got %d", *c.FrameQueueCapacity)
	}
	if c.BroadcastQueueCapacity != nil && *c.BroadcastQueueCapacity <= 0 {
		return fmt.Errorf("broadcast_queue_capacity must be positive, got %d", *c.BroadcastQueueCapacity)
	}
	if c.MinSkip != nil && *c.MinSkip < 1 {
		return fmt.Errorf("min_skip must be at least 1, got %d", *c.MinSkip)
	}
	if c.MinSkip != nil && c.MaxSkip != nil && *c.MinSkip > *c.MaxSkip {
		return fmt.Errorf("min_skip (%d) must not exceed max_skip (%d)", *c.MinSkip, *c.MaxSkip)
	}
	if c.MotionThreshold != nil && *c.MotionThreshold < 0 {
		return fmt.Errorf("motion_threshold must be non-negative, got %f", *c.MotionThreshold)
	}
	if c.LatencyEMADecay != nil && (*c.LatencyEMADecay <= 0 || *c.LatencyEMADecay > 1) {
		return fmt.Errorf("latency_ema_decay must be in (0, 1], got %f", *c.LatencyEMADecay)
	}
	if c.MovementClampFrac != nil && (*c.MovementClampFrac <= 0 || *c.MovementClampFrac > 1) {
		return fmt.Errorf("movement_clamp_fraction must be in (0, 1], got %f", *c.MovementClampFrac)
	}
	if c.WireMaxFrameBytes != nil && *c.WireMaxFrameBytes <= 0 {
		return fmt.Errorf("wire_max_frame_bytes must be positive, got %d", *c.WireMaxFrameBytes)
	}
	if c.KeyThrottleMillis != nil && *c.KeyThrottleMillis < 0 {
		return fmt.Errorf("key_throttle_millis must be non-negative, got %d", *c.KeyThrottleMillis)
	}
	if c.FileFPS != nil && *c.FileFPS <= 0 {
		return fmt.Errorf("file_fps must be positive, got %f", *c.FileFPS)
	}
	return nil
}

// GetListenAddr returns the configured listen address or ":5050".
func (c *Config) GetListenAddr() string {
	if c.ListenAddr == nil {
		return ":5050"
	}
	return *c.ListenAddr
}

// GetOutputWidth returns the configured output width or 1920.
func (c *Config) GetOutputWidth() int {
	if c.OutputWidth == nil {
		return 1920
	}
	return *c.OutputWidth
}

// GetOutputHeight returns the configured output height or 1080.
func (c *Config) GetOutputHeight() int {
	if c.OutputHeight == nil {
		return 1080
	}
	return *c.OutputHeight
}

// GetFrameQueueCapacity returns the configured frame queue capacity or 3.
func (c *Config) GetFrameQueueCapacity() int {
	if c.FrameQueueCapacity == nil {
		return 3
	}
	return *c.FrameQueueCapacity
}

// GetBroadcastQueueCapacity returns the configured broadcast queue
// capacity or 3.
func (c *Config) GetBroadcastQueueCapacity() int {
	if c.BroadcastQueueCapacity == nil {
		return 3
	}
	return *c.BroadcastQueueCapacity
}

// GetMinSkip returns the configured minimum adaptive frame skip or 2.
func (c *Config) GetMinSkip() int {
	if c.MinSkip == nil {
		return 2
	}
	return *c.MinSkip
}

// GetMaxSkip returns the configured maximum adaptive frame skip or 6.
func (c *Config) GetMaxSkip() int {
	if c.MaxSkip == nil {
		return 6
	}
	return *c.MaxSkip
}

// GetMotionThreshold returns the configured motion score threshold or 5.0.
func (c *Config) GetMotionThreshold() float64 {
	if c.MotionThreshold == nil {
		return 5.0
	}
	return *c.MotionThreshold
}

// GetLatencyEMADecay returns the configured EMA decay for scan latency
// smoothing or 0.2.
func (c *Config) GetLatencyEMADecay() float64 {
	if c.LatencyEMADecay == nil {
		return 0.2
	}
	return *c.LatencyEMADecay
}

// GetMovementClampFrac returns the configured movement clamp fraction
// of mapWidth or 0.2.
func (c *Config) GetMovementClampFrac() float64 {
	if c.MovementClampFrac == nil {
		return 0.2
	}
	return *c.MovementClampFrac
}

// GetWireMaxFrameBytes returns the configured wire frame size ceiling
// or 10 MiB.
func (c *Config) GetWireMaxFrameBytes() int64 {
	if c.WireMaxFrameBytes == nil {
		return 10 * 1024 * 1024
	}
	return *c.WireMaxFrameBytes
}

// GetKeyThrottleMillis returns the configured viewer key-repeat
// throttle interval in milliseconds, or 16 (~60 Hz).
func (c *Config) GetKeyThrottleMillis() int {
	if c.KeyThrottleMillis == nil {
		return 16
	}
	return *c.KeyThrottleMillis
}

// GetFileFPS returns the configured file-source playback rate or 30.0.
func (c *Config) GetFileFPS() float64 {
	if c.FileFPS == nil {
		return 30.0
	}
	return *c.FileFPS
}

// GetFileLooping returns whether the file source should loop, default true.
func (c *Config) GetFileLooping() bool {
	if c.FileLooping == nil {
		return true
	}
	return *c.FileLooping
}
