// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultFrameTimeout bounds fence waits and image acquisition.
// A frame that cannot make progress within it is skipped, not fatal.
const DefaultFrameTimeout = time.Second

// NewScheduler creates a frame scheduler on top of a backend. The
// backend dictates the ring size; logger may be nil.
func NewScheduler(backend FrameBackend, timeout time.Duration, logger log.FieldLogger) *Scheduler {
	if timeout <= 0 {
		timeout = DefaultFrameTimeout
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Scheduler{
		backend: backend,
		slots:   backend.SlotCount(),
		timeout: timeout,
		log:     logger,
	}
}

// Scheduler drives the per-frame protocol over a fixed ring of frame
// slots: wait on the slot's fence, acquire, record, submit, present,
// advance. The fence wait is the sole backpressure keeping the CPU at
// most SlotCount frames ahead of the GPU. A single goroutine calls
// Tick; only NotifyResize may be called from other goroutines.
type Scheduler struct {
	backend FrameBackend
	slots   int
	timeout time.Duration
	log     log.FieldLogger

	cursor int
	frames uint64

	skipMu  sync.Mutex
	skipped uint64

	needsRebuild bool

	resizeMu      sync.Mutex
	pendingExtent Extent2D
	resizePending bool
	minimized     bool

	closed bool
}

// NotifyResize requests a swapchain rebuild to the new pixel extent
// before the next acquisition. Safe to call from the event thread;
// the latest extent wins. A zero extent means the window is
// minimized: no swapchain can exist at 0x0, so ticks idle until a
// non-zero extent arrives.
func (s *Scheduler) NotifyResize(extent Extent2D) {
	s.resizeMu.Lock()
	defer s.resizeMu.Unlock()
	if extent.Width == 0 || extent.Height == 0 {
		if !s.minimized {
			s.log.Debug("window minimized, frame loop idling")
		}
		s.minimized = true
		s.resizePending = false
		return
	}
	s.minimized = false
	s.pendingExtent = extent
	s.resizePending = true
}

func (s *Scheduler) isMinimized() bool {
	s.resizeMu.Lock()
	defer s.resizeMu.Unlock()
	return s.minimized
}

func (s *Scheduler) takeResize() (Extent2D, bool) {
	s.resizeMu.Lock()
	defer s.resizeMu.Unlock()
	if !s.resizePending {
		return Extent2D{}, false
	}
	s.resizePending = false
	return s.pendingExtent, true
}

// SkippedFrames reports how many ticks ended without a presented
// image because of a fence or acquisition timeout.
func (s *Scheduler) SkippedFrames() uint64 {
	s.skipMu.Lock()
	defer s.skipMu.Unlock()
	return s.skipped
}

// Frames reports how many frames have been presented.
func (s *Scheduler) Frames() uint64 {
	return s.frames
}

func (s *Scheduler) skipFrame(slot int, reason string) {
	s.skipMu.Lock()
	s.skipped++
	s.skipMu.Unlock()
	s.log.WithFields(log.Fields{
		"slot":   slot,
		"reason": reason,
	}).Warn("frame skipped")
}

// Tick runs one frame with the given draw list. Transient conditions
// (timeouts, suboptimal or out-of-date chains) are absorbed: the frame
// is skipped or the chain is rebuilt and the next Tick proceeds
// normally. ErrFrameAcquisition is returned when acquisition fails
// even after a rebuild; it is safe to log it and keep ticking. Any
// other error is a backend failure.
func (s *Scheduler) Tick(draws []Draw) error {
	if s.closed {
		return ErrSchedulerClosed
	}

	// A minimized surface has no presentable extent; produce
	// nothing until the window comes back.
	if s.isMinimized() {
		return nil
	}

	// Rebuilds happen strictly between frames, never while steps of
	// a frame still reference the old chain.
	if extent, ok := s.takeResize(); ok {
		s.needsRebuild = false
		if err := s.backend.Recreate(extent); err != nil {
			return fmt.Errorf("swapchain recreate: %w", err)
		}
	} else if s.needsRebuild {
		s.needsRebuild = false
		if err := s.backend.Recreate(Extent2D{}); err != nil {
			return fmt.Errorf("swapchain recreate: %w", err)
		}
	}

	slot := s.cursor

	ok, err := s.backend.WaitFrame(slot, s.timeout)
	if err != nil {
		return fmt.Errorf("slot %d fence: %w", slot, err)
	}
	if !ok {
		s.skipFrame(slot, "fence timeout")
		return nil
	}

	image, res, err := s.backend.Acquire(slot, s.timeout)
	if err != nil {
		return fmt.Errorf("slot %d acquire: %w", slot, err)
	}
	switch res {
	case AcquireTimeout:
		s.skipFrame(slot, "acquire timeout")
		return nil
	case AcquireOutOfDate:
		if err := s.backend.Recreate(Extent2D{}); err != nil {
			return fmt.Errorf("swapchain recreate: %w", err)
		}
		image, res, err = s.backend.Acquire(slot, s.timeout)
		if err != nil {
			return fmt.Errorf("slot %d acquire: %w", slot, err)
		}
		if res == AcquireOutOfDate || res == AcquireTimeout {
			s.skipFrame(slot, "acquire failed after rebuild")
			return ErrFrameAcquisition
		}
	}
	if res == AcquireSuboptimal {
		s.needsRebuild = true
	}

	if err := s.backend.Record(slot, image, draws); err != nil {
		return fmt.Errorf("slot %d record: %w", slot, err)
	}
	if err := s.backend.Submit(slot); err != nil {
		return fmt.Errorf("slot %d submit: %w", slot, err)
	}

	pres, err := s.backend.Present(slot, image)
	if err != nil {
		return fmt.Errorf("slot %d present: %w", slot, err)
	}
	if pres != PresentSuccess {
		// Soft condition, the frame was still shown. Rebuild before
		// the next acquire rather than mid-frame.
		s.needsRebuild = true
	}

	s.frames++
	s.cursor = (s.cursor + 1) % s.slots
	return nil
}

// Close drains the ring, waiting on every slot's fence so no GPU work
// remains in flight, then refuses further ticks. Destruction of any
// device resource is only safe after Close returns.
func (s *Scheduler) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for slot := 0; slot < s.slots; slot++ {
		ok, err := s.backend.WaitFrame(slot, s.timeout)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("drain slot %d: %w", slot, err)
		}
		if !ok && err == nil {
			s.log.WithField("slot", slot).Warn("drain timed out waiting for fence")
		}
	}
	return firstErr
}
