package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	vk "github.com/vulkan-go/vulkan"
)

func TestClampImageCountRaisesAboveSurfaceMinimum(t *testing.T) {
	assert.Equal(t, uint32(3), clampImageCount(3, 2, 8))
	assert.Equal(t, uint32(3), clampImageCount(1, 2, 8))
	assert.Equal(t, uint32(2), clampImageCount(0, 1, 8))
}

func TestClampImageCountHonoursSurfaceMaximum(t *testing.T) {
	assert.Equal(t, uint32(3), clampImageCount(8, 2, 3))

	// max of zero means the surface sets no upper bound
	assert.Equal(t, uint32(8), clampImageCount(8, 2, 0))
}

func TestClampImageCountNeverBelowTwo(t *testing.T) {
	assert.GreaterOrEqual(t, clampImageCount(0, 0, 0), uint32(2))
	assert.GreaterOrEqual(t, clampImageCount(1, 0, 2), uint32(2))
}

func TestChoosePresentModePrefersMailbox(t *testing.T) {
	mode := choosePresentMode([]vk.PresentMode{
		vk.PresentModeImmediate,
		vk.PresentModeMailbox,
		vk.PresentModeFifo,
	})
	assert.Equal(t, vk.PresentModeMailbox, mode)
}

func TestChoosePresentModeFallsBackToFifo(t *testing.T) {
	mode := choosePresentMode([]vk.PresentMode{
		vk.PresentModeImmediate,
		vk.PresentModeFifoRelaxed,
	})
	assert.Equal(t, vk.PresentModeFifo, mode)

	assert.Equal(t, vk.PresentModeFifo, choosePresentMode(nil))
}

func TestChooseSurfaceFormatPrefersSrgb(t *testing.T) {
	format, err := chooseSurfaceFormat([]vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatB8g8r8a8Srgb, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	})
	assert.NoError(t, err)
	assert.Equal(t, vk.FormatB8g8r8a8Srgb, format.Format)
}

func TestChooseSurfaceFormatTakesFirstWhenNoSrgb(t *testing.T) {
	format, err := chooseSurfaceFormat([]vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatR5g6b5UnormPack16, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	})
	assert.NoError(t, err)
	assert.Equal(t, vk.FormatR8g8b8a8Unorm, format.Format)
}

func TestChooseSurfaceFormatRefusesEmptyList(t *testing.T) {
	_, err := chooseSurfaceFormat(nil)
	assert.Error(t, err)
}

func TestChooseExtentTakesFixedSurfaceExtent(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: 1920, Height: 1080},
		MinImageExtent: vk.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: vk.Extent2D{Width: 4096, Height: 4096},
	}
	extent := chooseExtent(caps, vk.Extent2D{Width: 800, Height: 600})
	assert.Equal(t, uint32(1920), extent.Width)
	assert.Equal(t, uint32(1080), extent.Height)
}

func TestChooseExtentClampsFallbackWhenSurfaceDefers(t *testing.T) {
	caps := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 320, Height: 240},
		MaxImageExtent: vk.Extent2D{Width: 1024, Height: 768},
	}

	extent := chooseExtent(caps, vk.Extent2D{Width: 4000, Height: 100})
	assert.Equal(t, uint32(1024), extent.Width)
	assert.Equal(t, uint32(240), extent.Height)

	extent = chooseExtent(caps, vk.Extent2D{Width: 800, Height: 600})
	assert.Equal(t, uint32(800), extent.Width)
	assert.Equal(t, uint32(600), extent.Height)
}
