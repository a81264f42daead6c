// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package gfx defines rendering related contracts that renderers must
// implement, and the frame scheduler that drives them.
package gfx

import (
	"errors"
	"time"

	glm "github.com/go-gl/mathgl/mgl32"
)

// package errors
var (
	// ErrFrameAcquisition means an image could not be acquired even
	// after the swapchain was rebuilt. The frame is lost, the loop
	// may continue.
	ErrFrameAcquisition = errors.New("could not acquire image after swapchain rebuild")

	// ErrSchedulerClosed is returned by Tick after Close.
	ErrSchedulerClosed = errors.New("frame scheduler is closed")
)

// Releasable defines any memory-occupying item that can be freed.
type Releasable interface {

	// Release releases memory occupied by the implementing structure.
	Release()
}

// Extent2D is a surface size in pixels.
type Extent2D struct {
	Width  uint32
	Height uint32
}

// Draw describes a single draw call for one frame. It is transient,
// the scene layer supplies a fresh list every tick.
type Draw struct {

	// Buffer is the renderer-specific vertex buffer handle.
	Buffer interface{}

	// VertexCount is the number of vertices issued, non-indexed.
	VertexCount uint32

	// Transform is delivered to the vertex stage with the draw,
	// bypassing descriptor sets.
	Transform glm.Mat4
}

// AcquireResult is the outcome of an image acquisition handshake.
type AcquireResult int

// Acquisition outcomes.
const (
	AcquireSuccess AcquireResult = iota

	// AcquireSuboptimal delivers a usable image but the chain no
	// longer matches the surface exactly.
	AcquireSuboptimal

	// AcquireOutOfDate means the chain is unusable and must be
	// rebuilt before another acquisition.
	AcquireOutOfDate

	// AcquireTimeout means no image became available in time.
	AcquireTimeout
)

// PresentResult is the outcome of queueing an image for presentation.
type PresentResult int

// Presentation outcomes. Suboptimal and out-of-date are soft here,
// the image was still queued.
const (
	PresentSuccess PresentResult = iota
	PresentSuboptimal
	PresentOutOfDate
)

// FrameBackend is the device side of the frame loop. A backend owns a
// fixed ring of frame slots, each bundling a command buffer, an
// image-available/render-finished signal pair and a completion fence.
// The scheduler guarantees that for any slot, WaitFrame has returned
// true between two uses of that slot's command buffer.
type FrameBackend interface {

	// SlotCount reports the size of the frame slot ring, fixed for
	// the backend's lifetime.
	SlotCount() int

	// WaitFrame blocks until the slot's previous submission has
	// completed on the GPU. A false result means the wait timed out
	// and the slot must not be reused yet.
	WaitFrame(slot int, timeout time.Duration) (bool, error)

	// Acquire obtains the index of the next presentable image,
	// arming the slot's image-available signal.
	Acquire(slot int, timeout time.Duration) (int, AcquireResult, error)

	// Record fills the slot's command buffer with the draw list
	// against the given image. An empty list must still produce a
	// buffer that carries the image to a presentable state.
	Record(slot, image int, draws []Draw) error

	// Submit sends the slot's recorded commands to the queue,
	// signalling render-finished and arming the slot's fence.
	Submit(slot int) error

	// Present queues the image for presentation after the slot's
	// render-finished signal.
	Present(slot, image int) (PresentResult, error)

	// Recreate rebuilds the presentable image chain wholesale. A
	// zero extent means re-read the surface for the current size.
	// Must only be called between frames.
	Recreate(extent Extent2D) error
}
