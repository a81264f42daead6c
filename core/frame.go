package core

import (
	"fmt"
	"time"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/devblok/nhope/gfx"
	"github.com/devblok/nhope/model"
)

// frameSlot is one unit of the frames-in-flight ring. Every slot owns
// its command buffer and synchronization primitives, nothing is
// shared between slots.
type frameSlot struct {
	commandBuffer  vk.CommandBuffer
	imageAvailable vk.Semaphore
	renderFinished vk.Semaphore
	inFlight       vk.Fence
}

func (v *VulkanRenderer) createFrameSlots() error {
	count := int(v.configuration.FramesInFlight)

	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        v.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}

	commandBuffers := make([]vk.CommandBuffer, count)
	if err := vk.Error(vk.AllocateCommandBuffers(v.logicalDevice, &cbai, commandBuffers)); err != nil {
		return fmt.Errorf("vk.AllocateCommandBuffers(): %w", err)
	}

	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	// Signaled so the first pass through the ring does not block on
	// a fence no submit has armed.
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}

	slots := make([]frameSlot, count)
	for i := 0; i < count; i++ {
		slots[i].commandBuffer = commandBuffers[i]
		if err := vk.Error(vk.CreateSemaphore(v.logicalDevice, &sci, nil, &slots[i].imageAvailable)); err != nil {
			return fmt.Errorf("vk.CreateSemaphore(): %w", err)
		}
		if err := vk.Error(vk.CreateSemaphore(v.logicalDevice, &sci, nil, &slots[i].renderFinished)); err != nil {
			return fmt.Errorf("vk.CreateSemaphore(): %w", err)
		}
		if err := vk.Error(vk.CreateFence(v.logicalDevice, &fci, nil, &slots[i].inFlight)); err != nil {
			return fmt.Errorf("vk.CreateFence(): %w", err)
		}
	}
	v.slots = slots
	return nil
}

func (v *VulkanRenderer) destroyFrameSlots() {
	for _, slot := range v.slots {
		vk.DestroySemaphore(v.logicalDevice, slot.imageAvailable, nil)
		vk.DestroySemaphore(v.logicalDevice, slot.renderFinished, nil)
		vk.DestroyFence(v.logicalDevice, slot.inFlight, nil)
	}
	v.slots = nil
}

// SlotCount implements gfx.FrameBackend
func (v *VulkanRenderer) SlotCount() int {
	return len(v.slots)
}

// WaitFrame implements gfx.FrameBackend. False without an error means
// the fence did not clear within the timeout.
func (v *VulkanRenderer) WaitFrame(slot int, timeout time.Duration) (bool, error) {
	result := vk.WaitForFences(v.logicalDevice, 1, []vk.Fence{v.slots[slot].inFlight}, vk.True, uint64(timeout.Nanoseconds()))
	switch result {
	case vk.Success:
		return true, nil
	case vk.Timeout:
		return false, nil
	default:
		return false, fmt.Errorf("vk.WaitForFences(): %w", vk.Error(result))
	}
}

// Acquire implements gfx.FrameBackend
func (v *VulkanRenderer) Acquire(slot int, timeout time.Duration) (int, gfx.AcquireResult, error) {
	return v.swapchain.Acquire(v.slots[slot].imageAvailable, uint64(timeout.Nanoseconds()))
}

// Record implements gfx.FrameBackend. The command buffer is reset and
// rebuilt every frame, one push constant and draw per entry. An empty
// draw list still records the pass so clear and present stay valid.
func (v *VulkanRenderer) Record(slot, image int, draws []gfx.Draw) error {
	cmd := v.slots[slot].commandBuffer

	if err := vk.Error(vk.ResetCommandBuffer(cmd, 0)); err != nil {
		return fmt.Errorf("vk.ResetCommandBuffer(): %w", err)
	}

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if err := vk.Error(vk.BeginCommandBuffer(cmd, &cbbi)); err != nil {
		return fmt.Errorf("vk.BeginCommandBuffer(): %w", err)
	}

	clearValues := make([]vk.ClearValue, 1)
	clearValues[0].SetColor([]float32{0.005, 0.005, 0.005, 1.0})

	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  v.pipeline.RenderPass(),
		Framebuffer: v.framebuffers[image],
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: v.swapchain.Extent(),
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(cmd, &rpbi, vk.SubpassContentsInline)

	vk.CmdSetViewport(cmd, 0, 1, []vk.Viewport{v.viewport})
	vk.CmdSetScissor(cmd, 0, 1, []vk.Rect2D{v.scissor})

	if len(draws) > 0 {
		vk.CmdBindPipeline(cmd, vk.PipelineBindPointGraphics, v.pipeline.VK())
	}

	for i := range draws {
		buffer, ok := draws[i].Buffer.(vk.Buffer)
		if !ok {
			vk.CmdEndRenderPass(cmd)
			vk.EndCommandBuffer(cmd)
			return fmt.Errorf("draw %d: buffer is %T, not a vulkan buffer", i, draws[i].Buffer)
		}

		pc := model.PushConstant{Transform: draws[i].Transform}
		vk.CmdPushConstants(cmd, v.pipeline.Layout(),
			vk.ShaderStageFlags(vk.ShaderStageVertexBit),
			0, model.PushConstantSize, unsafe.Pointer(&pc))
		vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{buffer}, []vk.DeviceSize{0})
		vk.CmdDraw(cmd, draws[i].VertexCount, 1, 0, 0)
	}

	vk.CmdEndRenderPass(cmd)
	if err := vk.Error(vk.EndCommandBuffer(cmd)); err != nil {
		return fmt.Errorf("vk.EndCommandBuffer(): %w", err)
	}
	return nil
}

// Submit implements gfx.FrameBackend. The fence is reset only here,
// so a skipped frame leaves it signaled and the slot reusable.
func (v *VulkanRenderer) Submit(slot int) error {
	s := v.slots[slot]

	if err := vk.Error(vk.ResetFences(v.logicalDevice, 1, []vk.Fence{s.inFlight})); err != nil {
		return fmt.Errorf("vk.ResetFences(): %w", err)
	}

	submitInfo := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{s.imageAvailable},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{s.commandBuffer},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{s.renderFinished},
	}}

	if err := vk.Error(vk.QueueSubmit(v.deviceQueue, 1, submitInfo, s.inFlight)); err != nil {
		return fmt.Errorf("vk.QueueSubmit(): %w", err)
	}
	return nil
}

// Present implements gfx.FrameBackend
func (v *VulkanRenderer) Present(slot, image int) (gfx.PresentResult, error) {
	return v.swapchain.Present(v.deviceQueue, image, v.slots[slot].renderFinished)
}

// Recreate implements gfx.FrameBackend. Rebuilds the swapchain and
// its framebuffers, the pipeline survives because viewport and
// scissor are dynamic state. A zero extent keeps the last known
// surface size as the fallback, the surface capabilities win either
// way.
func (v *VulkanRenderer) Recreate(extent gfx.Extent2D) error {
	vk.DeviceWaitIdle(v.logicalDevice)

	if extent.Width != 0 && extent.Height != 0 {
		v.currentSurfaceWidth = extent.Width
		v.currentSurfaceHeight = extent.Height
	}

	swapchain, err := NewSwapchain(v.logicalDevice, v.physicalDevice, v.surface, SwapchainConfig{
		DesiredImageCount: v.configuration.SwapchainSize,
		Extent: vk.Extent2D{
			Width:  v.currentSurfaceWidth,
			Height: v.currentSurfaceHeight,
		},
	}, v.swapchain)
	if err != nil {
		return fmt.Errorf("core.NewSwapchain(): %w", err)
	}

	v.destroyFramebuffers()
	v.swapchain.Release()
	v.swapchain = swapchain
	v.currentSurfaceWidth = swapchain.Extent().Width
	v.currentSurfaceHeight = swapchain.Extent().Height

	v.createViewport()
	if err := v.createFramebuffers(); err != nil {
		return err
	}
	return nil
}
