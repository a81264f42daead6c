package core

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/nhope/shaders"
	"github.com/devblok/nhope/utility/spak"
)

// package errors
var (
	// ErrNoSuitableDevice means no physical device exposes a queue
	// family with both graphics and present capability on the
	// surface. Fatal, there is no retry.
	ErrNoSuitableDevice = errors.New("no physical device supports graphics and present on this surface")
)

// DefaultVulkanApplicationInfo application info describes a Vulkan application
var DefaultVulkanApplicationInfo = &vk.ApplicationInfo{
	SType:              vk.StructureTypeApplicationInfo,
	ApiVersion:         vk.MakeVersion(1, 0, 0),
	ApplicationVersion: vk.MakeVersion(1, 0, 0),
	PApplicationName:   safeString("Nhope"),
	PEngineName:        safeString("Nhope"),
}

// NewVulkanInstance creates a Vulkan instance
func NewVulkanInstance(appInfo *vk.ApplicationInfo, window unsafe.Pointer, cfg InstanceConfiguration) (Instance, error) {
	if cfg.DebugMode {
		cfg.Layers = append(cfg.Layers, "VK_LAYER_KHRONOS_validation")
		cfg.Extensions = append(cfg.Extensions, "VK_EXT_debug_report")
	}

	if window == nil {
		if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
			return nil, fmt.Errorf("vk.InstanceProcAddr(): %w", err)
		}
	} else {
		vk.SetGetInstanceProcAddr(window)
	}

	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vk.Init(): %w", err)
	}

	/* Create instance */
	instanceInfo := vk.InstanceCreateInfo{
		SType:                   vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo:        appInfo,
		EnabledExtensionCount:   uint32(len(cfg.Extensions)),
		PpEnabledExtensionNames: safeStrings(cfg.Extensions),
		EnabledLayerCount:       uint32(len(cfg.Layers)),
		PpEnabledLayerNames:     safeStrings(cfg.Layers),
	}

	var instance vk.Instance
	if err := vk.Error(vk.CreateInstance(&instanceInfo, nil, &instance)); err != nil {
		return nil, fmt.Errorf("vk.CreateInstance(): %w", err)
	}
	vk.InitInstance(instance)

	/* Enumerate devices */
	physicalDevices, err := enumerateDevices(instance)
	if err != nil {
		return nil, fmt.Errorf("core.enumerateDevices(): %w", err)
	}

	return &VulkanInstance{
		configuration:    cfg,
		instance:         instance,
		availableDevices: physicalDevices,
	}, nil
}

// VulkanInstance describes a Vulkan API Instance
type VulkanInstance struct {
	configuration InstanceConfiguration

	availableDevices []vk.PhysicalDevice
	surface          vk.Surface
	instance         vk.Instance
}

func enumerateDevices(instance vk.Instance) ([]vk.PhysicalDevice, error) {
	var deviceCount uint32
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, nil)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %w", err)
	}
	availableDevices := make([]vk.PhysicalDevice, deviceCount)
	if err := vk.Error(vk.EnumeratePhysicalDevices(instance, &deviceCount, availableDevices)); err != nil {
		return nil, fmt.Errorf("vulkan physical device enumeration failed: %w", err)
	}
	return availableDevices, nil
}

// PhysicalDevicesInfo implements interface
func (v VulkanInstance) PhysicalDevicesInfo() []PhysicalDeviceInfo {
	pdi := make([]PhysicalDeviceInfo, len(v.availableDevices))
	for i := 0; i < len(v.availableDevices); i++ {
		// Get extension info
		var numDeviceExtensions uint32
		if err := vk.Error(vk.EnumerateDeviceExtensionProperties(v.availableDevices[i], "", &numDeviceExtensions, nil)); err != nil {
			pdi[i].Invalid = true
		}
		deviceExt := make([]vk.ExtensionProperties, numDeviceExtensions)
		if err := vk.Error(vk.EnumerateDeviceExtensionProperties(v.availableDevices[i], "", &numDeviceExtensions, deviceExt)); err != nil {
			pdi[i].Invalid = true
		}
		for _, ext := range deviceExt {
			ext.Deref()
			pdi[i].Extensions = append(pdi[i].Extensions, vk.ToString(ext.ExtensionName[:]))
		}

		// Get layers info
		var numDeviceLayers uint32
		if err := vk.Error(vk.EnumerateDeviceLayerProperties(v.availableDevices[i], &numDeviceLayers, nil)); err != nil {
			pdi[i].Invalid = true
		}
		deviceLayers := make([]vk.LayerProperties, numDeviceLayers)
		if err := vk.Error(vk.EnumerateDeviceLayerProperties(v.availableDevices[i], &numDeviceLayers, deviceLayers)); err != nil {
			pdi[i].Invalid = true
		}
		for _, layer := range deviceLayers {
			layer.Deref()
			pdi[i].Layers = append(pdi[i].Layers, vk.ToString(layer.LayerName[:]))
		}

		// Get memory info
		var memoryProperties vk.PhysicalDeviceMemoryProperties
		vk.GetPhysicalDeviceMemoryProperties(v.availableDevices[i], &memoryProperties)
		memoryProperties.Deref()
		for iMem := (uint32)(0); iMem < memoryProperties.MemoryHeapCount; iMem++ {
			memoryProperties.MemoryHeaps[iMem].Deref()
			pdi[i].Memory = pdi[i].Memory + uint(memoryProperties.MemoryHeaps[iMem].Size)
		}

		// Get general device info
		var physicalDeviceProperties vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(v.availableDevices[i], &physicalDeviceProperties)
		physicalDeviceProperties.Deref()
		pdi[i].ID = (int)(physicalDeviceProperties.DeviceID)
		pdi[i].VendorID = (int)(physicalDeviceProperties.VendorID)
		pdi[i].Name = vk.ToString(physicalDeviceProperties.DeviceName[:])
		pdi[i].DriverVersion = (int)(physicalDeviceProperties.DriverVersion)
	}
	return pdi
}

// SetSurface implements interface
func (v *VulkanInstance) SetSurface(pSurface unsafe.Pointer) {
	v.surface = vk.SurfaceFromPointer(uintptr(pSurface))
}

// Surface implements interface
func (v VulkanInstance) Surface() vk.Surface {
	if v.surface == nil {
		return vk.NullSurface
	}
	return v.surface
}

// Inner returns internal vk.Instance
func (v *VulkanInstance) Inner() interface{} {
	return v.instance
}

// Extensions implements interface
func (v VulkanInstance) Extensions() []string {
	return v.configuration.Extensions
}

// AvailableDevices implements interface
func (v VulkanInstance) AvailableDevices() []vk.PhysicalDevice {
	return v.availableDevices
}

// Destroy implements interface
func (v VulkanInstance) Destroy() {
	v.availableDevices = nil
	vk.DestroyInstance(v.instance, nil)
}

// NewVulkanRenderer creates a not yet initialised Vulkan API renderer
func NewVulkanRenderer(instance Instance, cfg RendererConfiguration) (Renderer, error) {
	if cfg.FramesInFlight < 2 || cfg.FramesInFlight > 3 {
		return nil, fmt.Errorf("frames in flight must be 2 or 3, got %d", cfg.FramesInFlight)
	}
	return &VulkanRenderer{
		configuration:        cfg,
		currentSurfaceHeight: cfg.ScreenHeight,
		currentSurfaceWidth:  cfg.ScreenWidth,
		surface:              instance.Surface(),
		availableDevices:     instance.AvailableDevices(),
	}, nil
}

// VulkanRenderer is a Vulkan API renderer. It owns the logical device
// and everything below it: the swapchain, the fixed pipeline and the
// frame slot ring. Dependents are destroyed in the reverse of their
// creation order, the device always last.
type VulkanRenderer struct {
	configuration RendererConfiguration

	surface              vk.Surface
	currentSurfaceHeight uint32
	currentSurfaceWidth  uint32

	availableDevices []vk.PhysicalDevice
	physicalDevice   vk.PhysicalDevice
	logicalDevice    vk.Device
	deviceQueue      vk.Queue
	queueFamilyIndex uint32

	swapchain    *Swapchain
	framebuffers []vk.Framebuffer

	pipeline *Pipeline

	viewport vk.Viewport
	scissor  vk.Rect2D

	commandPool vk.CommandPool
	slots       []frameSlot

	vertexShader   []byte
	fragmentShader []byte
}

// Initialise implements interface
func (v *VulkanRenderer) Initialise() error {
	if err := v.selectDevice(); err != nil {
		return err
	}

	if err := v.createLogicalDevice(); err != nil {
		return err
	}

	swapchain, err := NewSwapchain(v.logicalDevice, v.physicalDevice, v.surface, SwapchainConfig{
		DesiredImageCount: v.configuration.SwapchainSize,
		Extent: vk.Extent2D{
			Width:  v.currentSurfaceWidth,
			Height: v.currentSurfaceHeight,
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("core.NewSwapchain(): %w", err)
	}
	v.swapchain = swapchain
	v.currentSurfaceWidth = swapchain.Extent().Width
	v.currentSurfaceHeight = swapchain.Extent().Height

	v.createViewport()

	if err := v.loadShaders(); err != nil {
		return err
	}

	pipeline, err := BuildPipeline(v.logicalDevice, PipelineConfig{
		VertexShader:   v.vertexShader,
		FragmentShader: v.fragmentShader,
		VertexLayout:   DefaultVertexLayout(),
		PushConstants:  DefaultPushConstantLayout(),
		ColorFormat:    swapchain.Format(),
	})
	if err != nil {
		return fmt.Errorf("core.BuildPipeline(): %w", err)
	}
	v.pipeline = pipeline

	if err := v.createFramebuffers(); err != nil {
		return err
	}

	if err := v.createCommandPool(); err != nil {
		return err
	}

	if err := v.createFrameSlots(); err != nil {
		return err
	}

	return nil
}

// selectDevice picks the first physical device that exposes a queue
// family capable of both graphics work and presentation on the
// surface.
func (v *VulkanRenderer) selectDevice() error {
	for _, device := range v.availableDevices {
		family, ok := findQueueFamily(device, v.surface)
		if !ok {
			continue
		}
		v.physicalDevice = device
		v.queueFamilyIndex = family
		return nil
	}
	return ErrNoSuitableDevice
}

func findQueueFamily(device vk.PhysicalDevice, surface vk.Surface) (uint32, bool) {
	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i := uint32(0); i < queueFamilyCount; i++ {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) == 0 {
			continue
		}
		var supportsPresent vk.Bool32
		vk.GetPhysicalDeviceSurfaceSupport(device, i, surface, &supportsPresent)
		if supportsPresent.B() {
			return i, true
		}
	}
	return 0, false
}

func (v *VulkanRenderer) createLogicalDevice() error {
	queueInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: v.queueFamilyIndex,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(v.configuration.DeviceExtensions)),
		PpEnabledExtensionNames: safeStrings(v.configuration.DeviceExtensions),
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(v.physicalDevice, &dci, nil, &device)); err != nil {
		return fmt.Errorf("vk.CreateDevice(): %w", err)
	}
	v.logicalDevice = device

	var queue vk.Queue
	vk.GetDeviceQueue(device, v.queueFamilyIndex, 0, &queue)
	v.deviceQueue = queue
	return nil
}

func (v *VulkanRenderer) createViewport() {
	v.viewport = vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(v.currentSurfaceWidth),
		Height:   float32(v.currentSurfaceHeight),
		MinDepth: 0,
		MaxDepth: 1,
	}
	v.scissor = vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: vk.Extent2D{
			Width:  v.currentSurfaceWidth,
			Height: v.currentSurfaceHeight,
		},
	}
}

// loadShaders resolves the shader pair from, in priority order: a
// spak archive, a directory of compiled .spv files, or the built-in
// embedded pair.
func (v *VulkanRenderer) loadShaders() error {
	switch {
	case v.configuration.ShaderArchive != "":
		f, err := os.Open(v.configuration.ShaderArchive)
		if err != nil {
			return fmt.Errorf("shader archive: %w", err)
		}
		defer f.Close()

		archive, err := spak.Open(f)
		if err != nil {
			return fmt.Errorf("shader archive: %w", err)
		}
		if v.vertexShader, err = archive.ReadAll("vert.spv"); err != nil {
			return fmt.Errorf("shader archive vert.spv: %w", err)
		}
		if v.fragmentShader, err = archive.ReadAll("frag.spv"); err != nil {
			return fmt.Errorf("shader archive frag.spv: %w", err)
		}
	case v.configuration.ShaderDirectory != "":
		files, types, err := loadShaderFilesFromDirectory(v.configuration.ShaderDirectory)
		if err != nil {
			return err
		}
		for idx, path := range files {
			contents, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			switch types[idx] {
			case VertexShaderType:
				v.vertexShader = contents
			case FragmentShaderType:
				v.fragmentShader = contents
			}
		}
		if v.vertexShader == nil || v.fragmentShader == nil {
			return fmt.Errorf("shader directory %s is missing a vert/frag pair", v.configuration.ShaderDirectory)
		}
	default:
		var err error
		if v.vertexShader, err = shaders.Vertex(); err != nil {
			return err
		}
		if v.fragmentShader, err = shaders.Fragment(); err != nil {
			return err
		}
	}
	return nil
}

func (v *VulkanRenderer) createFramebuffers() error {
	views := v.swapchain.ImageViews()
	framebuffers := make([]vk.Framebuffer, 0, len(views))
	for _, view := range views {
		fci := vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      v.pipeline.RenderPass(),
			AttachmentCount: 1,
			PAttachments:    []vk.ImageView{view},
			Width:           v.currentSurfaceWidth,
			Height:          v.currentSurfaceHeight,
			Layers:          1,
		}

		var framebuffer vk.Framebuffer
		if err := vk.Error(vk.CreateFramebuffer(v.logicalDevice, &fci, nil, &framebuffer)); err != nil {
			return fmt.Errorf("vk.CreateFramebuffer(): %w", err)
		}
		framebuffers = append(framebuffers, framebuffer)
	}
	v.framebuffers = framebuffers
	return nil
}

func (v *VulkanRenderer) destroyFramebuffers() {
	for _, fb := range v.framebuffers {
		vk.DestroyFramebuffer(v.logicalDevice, fb, nil)
	}
	v.framebuffers = nil
}

func (v *VulkanRenderer) createCommandPool() error {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: v.queueFamilyIndex,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}

	var commandPool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(v.logicalDevice, &cpci, nil, &commandPool)); err != nil {
		return fmt.Errorf("vk.CreateCommandPool(): %w", err)
	}
	v.commandPool = commandPool
	return nil
}

// DeviceIsSuitable implements interface
func (v *VulkanRenderer) DeviceIsSuitable(device vk.PhysicalDevice) (bool, string) {
	if _, ok := findQueueFamily(device, v.surface); !ok {
		return false, "no queue family supports graphics and present on the surface"
	}
	return true, ""
}

// Device exposes the logical device for buffer creation.
func (v *VulkanRenderer) Device() vk.Device {
	return v.logicalDevice
}

// PhysicalDevice exposes the physical device for memory type lookups.
func (v *VulkanRenderer) PhysicalDevice() vk.PhysicalDevice {
	return v.physicalDevice
}

// Destroy implements interface
func (v *VulkanRenderer) Destroy() {
	vk.DeviceWaitIdle(v.logicalDevice)

	v.destroyFrameSlots()
	vk.DestroyCommandPool(v.logicalDevice, v.commandPool, nil)

	v.destroyFramebuffers()

	if v.pipeline != nil {
		v.pipeline.Release()
	}
	if v.swapchain != nil {
		v.swapchain.Release()
	}

	vk.DestroyDevice(v.logicalDevice, nil)
}
