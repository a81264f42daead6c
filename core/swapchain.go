package core

import (
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/nhope/gfx"
)

// SwapchainConfig carries the caller's wishes for a swapchain.
// Every field is negotiated against surface capabilities, the
// resulting Swapchain reports what was actually granted.
type SwapchainConfig struct {
	DesiredImageCount uint32
	Extent            vk.Extent2D
}

// Swapchain owns the presentable image chain of a surface together
// with one image view per image. Recreation builds a new Swapchain
// that links the retired one via OldSwapchain, the caller releases
// the old one afterwards.
type Swapchain struct {
	device vk.Device

	chain      vk.Swapchain
	images     []vk.Image
	imageViews []vk.ImageView

	format      vk.Format
	colorspace  vk.ColorSpace
	extent      vk.Extent2D
	presentMode vk.PresentMode
}

// NewSwapchain negotiates and creates a swapchain on the surface. A
// non-nil old swapchain is linked for resource reuse but not
// released. The window extent in cfg is only a fallback, when the
// surface reports a current extent that wins.
func NewSwapchain(device vk.Device, physicalDevice vk.PhysicalDevice, surface vk.Surface, cfg SwapchainConfig, old *Swapchain) (*Swapchain, error) {
	var surfaceCapabilities vk.SurfaceCapabilities
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(physicalDevice, surface, &surfaceCapabilities)); err != nil {
		return nil, fmt.Errorf("vk.GetPhysicalDeviceSurfaceCapabilities(): %w", err)
	}
	surfaceCapabilities.Deref()
	surfaceCapabilities.CurrentExtent.Deref()
	surfaceCapabilities.MinImageExtent.Deref()
	surfaceCapabilities.MaxImageExtent.Deref()

	var numFormats uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &numFormats, nil)); err != nil {
		return nil, fmt.Errorf("vk.GetPhysicalDeviceSurfaceFormats(num): %w", err)
	}
	surfaceFormats := make([]vk.SurfaceFormat, numFormats)
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(physicalDevice, surface, &numFormats, surfaceFormats)); err != nil {
		return nil, fmt.Errorf("vk.GetPhysicalDeviceSurfaceFormats(formats): %w", err)
	}
	for i := range surfaceFormats {
		surfaceFormats[i].Deref()
	}

	var numPresentModes uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &numPresentModes, nil)); err != nil {
		return nil, fmt.Errorf("vk.GetPhysicalDeviceSurfacePresentModes(num): %w", err)
	}
	presentModes := make([]vk.PresentMode, numPresentModes)
	if err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(physicalDevice, surface, &numPresentModes, presentModes)); err != nil {
		return nil, fmt.Errorf("vk.GetPhysicalDeviceSurfacePresentModes(modes): %w", err)
	}

	format, err := chooseSurfaceFormat(surfaceFormats)
	if err != nil {
		return nil, err
	}
	presentMode := choosePresentMode(presentModes)
	imageCount := clampImageCount(cfg.DesiredImageCount, surfaceCapabilities.MinImageCount, surfaceCapabilities.MaxImageCount)
	extent := chooseExtent(surfaceCapabilities, cfg.Extent)

	compositeAlpha := vk.CompositeAlphaOpaqueBit
	compositeAlphaFlags := []vk.CompositeAlphaFlagBits{
		vk.CompositeAlphaOpaqueBit,
		vk.CompositeAlphaPreMultipliedBit,
		vk.CompositeAlphaPostMultipliedBit,
		vk.CompositeAlphaInheritBit,
	}
	for i := 0; i < len(compositeAlphaFlags); i++ {
		alphaFlags := vk.CompositeAlphaFlags(compositeAlphaFlags[i])
		if surfaceCapabilities.SupportedCompositeAlpha&alphaFlags != 0 {
			compositeAlpha = compositeAlphaFlags[i]
			break
		}
	}

	var oldChain vk.Swapchain
	if old != nil {
		oldChain = old.chain
	}

	scci := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		PreTransform:     vk.SurfaceTransformIdentityBit,
		CompositeAlpha:   compositeAlpha,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		ImageArrayLayers: 1,
		ImageSharingMode: vk.SharingModeExclusive,
		OldSwapchain:     oldChain,
	}

	var chain vk.Swapchain
	if err := vk.Error(vk.CreateSwapchain(device, &scci, nil, &chain)); err != nil {
		return nil, fmt.Errorf("vk.CreateSwapchain(): %w", err)
	}

	sc := &Swapchain{
		device:      device,
		chain:       chain,
		format:      format.Format,
		colorspace:  format.ColorSpace,
		extent:      extent,
		presentMode: presentMode,
	}

	var numImages uint32
	if err := vk.Error(vk.GetSwapchainImages(device, chain, &numImages, nil)); err != nil {
		sc.Release()
		return nil, fmt.Errorf("vk.GetSwapchainImages(num): %w", err)
	}
	sc.images = make([]vk.Image, numImages)
	if err := vk.Error(vk.GetSwapchainImages(device, chain, &numImages, sc.images)); err != nil {
		sc.Release()
		return nil, fmt.Errorf("vk.GetSwapchainImages(images): %w", err)
	}

	if err := sc.createImageViews(); err != nil {
		sc.Release()
		return nil, err
	}
	return sc, nil
}

// chooseSurfaceFormat prefers 8 bit BGRA sRGB, otherwise takes
// whatever the surface lists first. A surface reporting no formats
// at all is broken and refused.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) (vk.SurfaceFormat, error) {
	if len(formats) == 0 {
		return vk.SurfaceFormat{}, errors.New("surface reports no formats")
	}
	for _, f := range formats {
		if f.Format == vk.FormatB8g8r8a8Srgb && f.ColorSpace == vk.ColorSpaceSrgbNonlinear {
			return f, nil
		}
	}
	return formats[0], nil
}

// choosePresentMode prefers mailbox and falls back to fifo, which
// every conforming implementation supports.
func choosePresentMode(modes []vk.PresentMode) vk.PresentMode {
	for _, m := range modes {
		if m == vk.PresentModeMailbox {
			return m
		}
	}
	return vk.PresentModeFifo
}

// clampImageCount raises the wish to at least one above the surface
// minimum, bounded by the surface maximum. Zero max means unbounded.
func clampImageCount(desired, min, max uint32) uint32 {
	if floor := min + 1; desired < floor {
		desired = floor
	}
	if desired < 2 {
		desired = 2
	}
	if max != 0 && desired > max {
		desired = max
	}
	return desired
}

// chooseExtent takes the surface's current extent when it is fixed,
// otherwise clamps the fallback extent into the allowed range.
func chooseExtent(caps vk.SurfaceCapabilities, fallback vk.Extent2D) vk.Extent2D {
	// 0xFFFFFFFF in both dimensions means the surface lets the
	// swapchain decide.
	if caps.CurrentExtent.Width != vk.MaxUint32 {
		return caps.CurrentExtent
	}
	extent := fallback
	if extent.Width < caps.MinImageExtent.Width {
		extent.Width = caps.MinImageExtent.Width
	}
	if extent.Width > caps.MaxImageExtent.Width {
		extent.Width = caps.MaxImageExtent.Width
	}
	if extent.Height < caps.MinImageExtent.Height {
		extent.Height = caps.MinImageExtent.Height
	}
	if extent.Height > caps.MaxImageExtent.Height {
		extent.Height = caps.MaxImageExtent.Height
	}
	return extent
}

func (s *Swapchain) createImageViews() error {
	imageViews := make([]vk.ImageView, 0, len(s.images))
	for _, image := range s.images {
		ivci := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   s.format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}

		var imageView vk.ImageView
		if err := vk.Error(vk.CreateImageView(s.device, &ivci, nil, &imageView)); err != nil {
			return fmt.Errorf("vk.CreateImageView(): %w", err)
		}
		imageViews = append(imageViews, imageView)
	}
	s.imageViews = imageViews
	return nil
}

// Acquire asks for the next presentable image, signalling the given
// semaphore when it is ready. Timeout is in nanoseconds.
func (s *Swapchain) Acquire(semaphore vk.Semaphore, timeoutNs uint64) (int, gfx.AcquireResult, error) {
	var imageIndex uint32
	result := vk.AcquireNextImage(s.device, s.chain, timeoutNs, semaphore, nil, &imageIndex)
	switch result {
	case vk.Success:
		return int(imageIndex), gfx.AcquireSuccess, nil
	case vk.Suboptimal:
		return int(imageIndex), gfx.AcquireSuboptimal, nil
	case vk.ErrorOutOfDate:
		return 0, gfx.AcquireOutOfDate, nil
	case vk.Timeout, vk.NotReady:
		return 0, gfx.AcquireTimeout, nil
	default:
		return 0, gfx.AcquireTimeout, fmt.Errorf("vk.AcquireNextImage(): %w", vk.Error(result))
	}
}

// Present queues the image for presentation after waitSemaphore
// signals.
func (s *Swapchain) Present(queue vk.Queue, image int, waitSemaphore vk.Semaphore) (gfx.PresentResult, error) {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{waitSemaphore},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{s.chain},
		PImageIndices:      []uint32{uint32(image)},
	}

	result := vk.QueuePresent(queue, &presentInfo)
	switch result {
	case vk.Success:
		return gfx.PresentSuccess, nil
	case vk.Suboptimal:
		return gfx.PresentSuboptimal, nil
	case vk.ErrorOutOfDate:
		return gfx.PresentOutOfDate, nil
	default:
		return gfx.PresentOutOfDate, fmt.Errorf("vk.QueuePresent(): %w", vk.Error(result))
	}
}

// ImageCount is the number of images actually granted.
func (s *Swapchain) ImageCount() int {
	return len(s.images)
}

// ImageViews returns one view per swapchain image, index aligned
// with acquire results.
func (s *Swapchain) ImageViews() []vk.ImageView {
	return s.imageViews
}

// Format is the negotiated image format.
func (s *Swapchain) Format() vk.Format {
	return s.format
}

// Extent is the granted image extent.
func (s *Swapchain) Extent() vk.Extent2D {
	return s.extent
}

// PresentMode is the negotiated presentation mode.
func (s *Swapchain) PresentMode() vk.PresentMode {
	return s.presentMode
}

// Release destroys the image views and the chain. Images belong to
// the chain and go down with it.
func (s *Swapchain) Release() {
	for _, view := range s.imageViews {
		vk.DestroyImageView(s.device, view, nil)
	}
	s.imageViews = nil
	s.images = nil
	if s.chain != vk.NullSwapchain {
		vk.DestroySwapchain(s.device, s.chain, nil)
		s.chain = vk.NullSwapchain
	}
}
