package core

import (
	"encoding/binary"
	"errors"
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/nhope/model"
)

// package errors
var (
	// ErrLayoutMismatch means the vertex or push constant layout
	// handed to the pipeline does not match what the shader pair
	// consumes
	ErrLayoutMismatch = errors.New("layout does not match the shader interface")

	// ErrInvalidShader means the given bytecode is not SPIR-V
	ErrInvalidShader = errors.New("shader bytecode is not valid SPIR-V")
)

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// VertexLayout describes how vertex buffers feed the vertex shader.
type VertexLayout struct {
	Bindings   []vk.VertexInputBindingDescription
	Attributes []vk.VertexInputAttributeDescription
}

// DefaultVertexLayout is the layout of model.Vertex, the only layout
// the built-in shader pair accepts.
func DefaultVertexLayout() VertexLayout {
	return VertexLayout{
		Bindings:   model.VertexBindingDescriptions(),
		Attributes: model.VertexAttributeDescriptions(),
	}
}

// DefaultPushConstantLayout is the push constant block of
// model.PushConstant, one mat4 visible to the vertex stage.
func DefaultPushConstantLayout() []vk.PushConstantRange {
	return model.PushConstantRanges()
}

// PipelineConfig is everything BuildPipeline needs. Validate can be
// called without a device, it checks the config against the shader
// interface.
type PipelineConfig struct {
	VertexShader   []byte
	FragmentShader []byte

	VertexLayout  VertexLayout
	PushConstants []vk.PushConstantRange

	ColorFormat vk.Format
}

// expected shader-side vertex interface, must track shaders/assets
var expectedAttributes = []vk.VertexInputAttributeDescription{
	{Location: 0, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: 0},
	{Location: 1, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: 16},
	{Location: 2, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: 24},
}

// Validate checks the config against the fixed shader interface and
// verifies both bytecodes look like SPIR-V. It touches no Vulkan
// state.
func (cfg PipelineConfig) Validate() error {
	if err := validateSpirv(cfg.VertexShader); err != nil {
		return fmt.Errorf("vertex shader: %w", err)
	}
	if err := validateSpirv(cfg.FragmentShader); err != nil {
		return fmt.Errorf("fragment shader: %w", err)
	}

	if len(cfg.VertexLayout.Bindings) != 1 {
		return fmt.Errorf("%w: want a single vertex binding, got %d", ErrLayoutMismatch, len(cfg.VertexLayout.Bindings))
	}
	if stride := cfg.VertexLayout.Bindings[0].Stride; stride != model.VertexSize {
		return fmt.Errorf("%w: binding stride %d, shader consumes %d", ErrLayoutMismatch, stride, model.VertexSize)
	}

	if len(cfg.VertexLayout.Attributes) != len(expectedAttributes) {
		return fmt.Errorf("%w: want %d vertex attributes, got %d", ErrLayoutMismatch, len(expectedAttributes), len(cfg.VertexLayout.Attributes))
	}
	for _, want := range expectedAttributes {
		found := false
		for _, got := range cfg.VertexLayout.Attributes {
			if got.Location != want.Location {
				continue
			}
			if got.Binding != want.Binding || got.Format != want.Format || got.Offset != want.Offset {
				return fmt.Errorf("%w: attribute at location %d differs from the shader interface", ErrLayoutMismatch, want.Location)
			}
			found = true
			break
		}
		if !found {
			return fmt.Errorf("%w: missing vertex attribute at location %d", ErrLayoutMismatch, want.Location)
		}
	}

	if len(cfg.PushConstants) != 1 {
		return fmt.Errorf("%w: want a single push constant range, got %d", ErrLayoutMismatch, len(cfg.PushConstants))
	}
	pc := cfg.PushConstants[0]
	if pc.Offset != 0 || pc.Size != model.PushConstantSize {
		return fmt.Errorf("%w: push constant range %d+%d, shader consumes 0+%d", ErrLayoutMismatch, pc.Offset, pc.Size, model.PushConstantSize)
	}
	if pc.StageFlags&vk.ShaderStageFlags(vk.ShaderStageVertexBit) == 0 {
		return fmt.Errorf("%w: push constant range is not visible to the vertex stage", ErrLayoutMismatch)
	}
	return nil
}

func validateSpirv(code []byte) error {
	if len(code) < 4 || len(code)%4 != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of words", ErrInvalidShader, len(code))
	}
	if binary.LittleEndian.Uint32(code[:4]) != spirvMagic {
		return fmt.Errorf("%w: bad magic number", ErrInvalidShader)
	}
	return nil
}

// Pipeline bundles the graphics pipeline with the render pass and
// layout it was built against. Viewport and scissor are dynamic, so
// the pipeline survives swapchain recreation as long as the image
// format holds.
type Pipeline struct {
	device vk.Device

	renderPass vk.RenderPass
	layout     vk.PipelineLayout
	cache      vk.PipelineCache
	pipeline   vk.Pipeline
}

// BuildPipeline validates the config and builds the single-subpass
// graphics pipeline for it. Shader modules only feed pipeline
// creation and are destroyed before returning.
func BuildPipeline(device vk.Device, cfg PipelineConfig) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{device: device}

	vertModule, err := createShaderModule(device, cfg.VertexShader)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(device, vertModule, nil)

	fragModule, err := createShaderModule(device, cfg.FragmentShader)
	if err != nil {
		return nil, err
	}
	defer vk.DestroyShaderModule(device, fragModule, nil)

	if err := p.createRenderPass(cfg.ColorFormat); err != nil {
		p.Release()
		return nil, err
	}
	if err := p.createLayout(cfg.PushConstants); err != nil {
		p.Release()
		return nil, err
	}
	if err := p.createCache(); err != nil {
		p.Release()
		return nil, err
	}
	if err := p.createPipeline(cfg, vertModule, fragModule); err != nil {
		p.Release()
		return nil, err
	}
	return p, nil
}

func createShaderModule(device vk.Device, code []byte) (vk.ShaderModule, error) {
	smci := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    SliceUint32(code),
	}

	var module vk.ShaderModule
	if err := vk.Error(vk.CreateShaderModule(device, &smci, nil, &module)); err != nil {
		return vk.NullShaderModule, fmt.Errorf("vk.CreateShaderModule(): %w", err)
	}
	return module, nil
}

func (p *Pipeline) createRenderPass(colorFormat vk.Format) error {
	attachments := []vk.AttachmentDescription{{
		Format:         colorFormat,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined,
		FinalLayout:    vk.ImageLayoutPresentSrc,
	}}

	colorAttachmentRef := []vk.AttachmentReference{{
		Attachment: 0,
		Layout:     vk.ImageLayoutColorAttachmentOptimal,
	}}

	subpasses := []vk.SubpassDescription{{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments:    colorAttachmentRef,
	}}

	// Image acquisition signals at color attachment output, the
	// dependency keeps the load op clear from racing it.
	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}}

	rpci := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}

	var renderPass vk.RenderPass
	if err := vk.Error(vk.CreateRenderPass(p.device, &rpci, nil, &renderPass)); err != nil {
		return fmt.Errorf("vk.CreateRenderPass(): %w", err)
	}
	p.renderPass = renderPass
	return nil
}

func (p *Pipeline) createLayout(pushConstants []vk.PushConstantRange) error {
	plci := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		PushConstantRangeCount: uint32(len(pushConstants)),
		PPushConstantRanges:    pushConstants,
	}

	var layout vk.PipelineLayout
	if err := vk.Error(vk.CreatePipelineLayout(p.device, &plci, nil, &layout)); err != nil {
		return fmt.Errorf("vk.CreatePipelineLayout(): %w", err)
	}
	p.layout = layout
	return nil
}

func (p *Pipeline) createCache() error {
	pcci := vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}

	var cache vk.PipelineCache
	if err := vk.Error(vk.CreatePipelineCache(p.device, &pcci, nil, &cache)); err != nil {
		return fmt.Errorf("vk.CreatePipelineCache(): %w", err)
	}
	p.cache = cache
	return nil
}

func (p *Pipeline) createPipeline(cfg PipelineConfig, vertModule, fragModule vk.ShaderModule) error {
	stages := []vk.PipelineShaderStageCreateInfo{{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageVertexBit,
		Module: vertModule,
		PName:  "main\x00",
	}, {
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageFragmentBit,
		Module: fragModule,
		PName:  "main\x00",
	}}

	gpci := []vk.GraphicsPipelineCreateInfo{{
		SType:      vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount: uint32(len(stages)),
		PStages:    stages,
		PVertexInputState: &vk.PipelineVertexInputStateCreateInfo{
			SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
			VertexBindingDescriptionCount:   uint32(len(cfg.VertexLayout.Bindings)),
			PVertexBindingDescriptions:      cfg.VertexLayout.Bindings,
			VertexAttributeDescriptionCount: uint32(len(cfg.VertexLayout.Attributes)),
			PVertexAttributeDescriptions:    cfg.VertexLayout.Attributes,
		},
		PInputAssemblyState: &vk.PipelineInputAssemblyStateCreateInfo{
			SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
			Topology: vk.PrimitiveTopologyTriangleList,
		},
		PViewportState: &vk.PipelineViewportStateCreateInfo{
			SType:         vk.StructureTypePipelineViewportStateCreateInfo,
			ViewportCount: 1,
			ScissorCount:  1,
		},
		PRasterizationState: &vk.PipelineRasterizationStateCreateInfo{
			SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
			PolygonMode: vk.PolygonModeFill,
			CullMode:    vk.CullModeFlags(vk.CullModeNone),
			FrontFace:   vk.FrontFaceCounterClockwise,
			LineWidth:   1.0,
		},
		PMultisampleState: &vk.PipelineMultisampleStateCreateInfo{
			SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
			RasterizationSamples: vk.SampleCount1Bit,
		},
		PColorBlendState: &vk.PipelineColorBlendStateCreateInfo{
			SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
			AttachmentCount: 1,
			PAttachments: []vk.PipelineColorBlendAttachmentState{{
				ColorWriteMask: 0xF,
				BlendEnable:    vk.False,
			}},
		},
		PDynamicState: &vk.PipelineDynamicStateCreateInfo{
			SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
			DynamicStateCount: 2,
			PDynamicStates: []vk.DynamicState{
				vk.DynamicStateScissor,
				vk.DynamicStateViewport,
			},
		},
		Layout:     p.layout,
		RenderPass: p.renderPass,
	}}

	pipelines := make([]vk.Pipeline, len(gpci))
	if err := vk.Error(vk.CreateGraphicsPipelines(p.device, p.cache, uint32(len(gpci)), gpci, nil, pipelines)); err != nil {
		return fmt.Errorf("vk.CreateGraphicsPipelines(): %w", err)
	}
	p.pipeline = pipelines[0]
	return nil
}

// RenderPass exposes the pass for framebuffer creation.
func (p *Pipeline) RenderPass() vk.RenderPass {
	return p.renderPass
}

// Layout exposes the layout for push constant recording.
func (p *Pipeline) Layout() vk.PipelineLayout {
	return p.layout
}

// VK returns the raw pipeline handle.
func (p *Pipeline) VK() vk.Pipeline {
	return p.pipeline
}

// Release destroys everything the pipeline owns. Safe on a partially
// built Pipeline.
func (p *Pipeline) Release() {
	if p.pipeline != vk.NullPipeline {
		vk.DestroyPipeline(p.device, p.pipeline, nil)
		p.pipeline = vk.NullPipeline
	}
	if p.cache != vk.NullPipelineCache {
		vk.DestroyPipelineCache(p.device, p.cache, nil)
		p.cache = vk.NullPipelineCache
	}
	if p.layout != vk.NullPipelineLayout {
		vk.DestroyPipelineLayout(p.device, p.layout, nil)
		p.layout = vk.NullPipelineLayout
	}
	if p.renderPass != vk.NullRenderPass {
		vk.DestroyRenderPass(p.device, p.renderPass, nil)
		p.renderPass = vk.NullRenderPass
	}
}
