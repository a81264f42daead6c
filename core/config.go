package core

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gobuffalo/envy"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Instance InstanceConfiguration
	Renderer RendererConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between window event polls,
	// in milliseconds
	EventPollDelay int
}

// InstanceConfiguration is used when creating the Vulkan instance
type InstanceConfiguration struct {
	DebugMode  bool
	Extensions []string
	Layers     []string
}

// RendererConfiguration is used to configure the renderer
type RendererConfiguration struct {
	// SwapchainSize is the desired presentable image count. It is
	// clamped to what the surface reports, but never below 2.
	SwapchainSize uint32

	// FramesInFlight is the frame slot ring size, 2 or 3.
	FramesInFlight int

	// FrameTimeout bounds fence waits and image acquisition.
	FrameTimeout time.Duration

	DeviceExtensions []string

	ScreenWidth  uint32
	ScreenHeight uint32

	// ShaderDirectory holds compiled .spv files. When empty the
	// built-in shader pair is used.
	ShaderDirectory string

	// ShaderArchive points to a .spak archive to stream shaders
	// from instead of a directory.
	ShaderArchive string
}

// Env variable names understood by FromEnv.
const (
	EnvScreenWidth    = "NHOPE_SCREEN_WIDTH"
	EnvScreenHeight   = "NHOPE_SCREEN_HEIGHT"
	EnvSwapchainSize  = "NHOPE_SWAPCHAIN_SIZE"
	EnvFramesInFlight = "NHOPE_FRAMES_IN_FLIGHT"
	EnvFrameTimeout   = "NHOPE_FRAME_TIMEOUT"
	EnvShaderDir      = "NHOPE_SHADER_DIR"
	EnvShaderArchive  = "NHOPE_SHADER_ARCHIVE"
	EnvFpsCap         = "NHOPE_FPS_CAP"
)

// FromEnv builds a Configuration from the environment, falling back
// to defaults that run the engine windowed at 800x600 with a
// triple-buffered chain and two frames in flight.
func FromEnv() (Configuration, error) {
	cfg := Configuration{
		Time: TimeConfiguration{
			EventPollDelay: 50,
		},
		Renderer: RendererConfiguration{
			DeviceExtensions: []string{"VK_KHR_swapchain"},
		},
	}

	var err error
	if cfg.Renderer.ScreenWidth, err = envUint32(EnvScreenWidth, 800); err != nil {
		return cfg, err
	}
	if cfg.Renderer.ScreenHeight, err = envUint32(EnvScreenHeight, 600); err != nil {
		return cfg, err
	}
	if cfg.Renderer.SwapchainSize, err = envUint32(EnvSwapchainSize, 3); err != nil {
		return cfg, err
	}

	frames, err := strconv.Atoi(envy.Get(EnvFramesInFlight, "2"))
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", EnvFramesInFlight, err)
	}
	if frames < 2 || frames > 3 {
		return cfg, fmt.Errorf("%s: must be 2 or 3, got %d", EnvFramesInFlight, frames)
	}
	cfg.Renderer.FramesInFlight = frames

	timeout, err := time.ParseDuration(envy.Get(EnvFrameTimeout, "1s"))
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", EnvFrameTimeout, err)
	}
	cfg.Renderer.FrameTimeout = timeout

	fps, err := strconv.Atoi(envy.Get(EnvFpsCap, "0"))
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", EnvFpsCap, err)
	}
	cfg.Time.FramesPerSecond = fps

	cfg.Renderer.ShaderDirectory = envy.Get(EnvShaderDir, "")
	cfg.Renderer.ShaderArchive = envy.Get(EnvShaderArchive, "")
	return cfg, nil
}

func envUint32(name string, fallback uint32) (uint32, error) {
	value, err := strconv.ParseUint(envy.Get(name, strconv.Itoa(int(fallback))), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return uint32(value), nil
}
