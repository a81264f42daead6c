// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package gfx_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/devblok/nhope/gfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBackend records every call the scheduler makes, in order, so
// tests can verify the per-slot protocol without a GPU.
type mockBackend struct {
	slots  int
	events []string

	// waitOK[i] is popped on each WaitFrame call, false meaning a
	// simulated fence timeout. Empty means always signalled.
	waitOK []bool

	// acquireResults is popped on each Acquire call. Empty means
	// success with a cycling image index.
	acquireResults []gfx.AcquireResult

	presentResults []gfx.PresentResult

	// rejectZeroExtent makes Recreate fail the way a driver does
	// when asked for a swapchain on a 0x0 surface.
	rejectZeroExtent bool

	recordedDraws [][]gfx.Draw

	nextImage int
}

func newMockBackend(slots int) *mockBackend {
	return &mockBackend{slots: slots}
}

func (m *mockBackend) logf(format string, args ...interface{}) {
	m.events = append(m.events, fmt.Sprintf(format, args...))
}

func (m *mockBackend) SlotCount() int { return m.slots }

func (m *mockBackend) WaitFrame(slot int, timeout time.Duration) (bool, error) {
	m.logf("wait %d", slot)
	if len(m.waitOK) == 0 {
		return true, nil
	}
	ok := m.waitOK[0]
	m.waitOK = m.waitOK[1:]
	return ok, nil
}

func (m *mockBackend) Acquire(slot int, timeout time.Duration) (int, gfx.AcquireResult, error) {
	m.logf("acquire %d", slot)
	res := gfx.AcquireSuccess
	if len(m.acquireResults) > 0 {
		res = m.acquireResults[0]
		m.acquireResults = m.acquireResults[1:]
	}
	if res != gfx.AcquireSuccess && res != gfx.AcquireSuboptimal {
		return 0, res, nil
	}
	image := m.nextImage
	m.nextImage = (m.nextImage + 1) % m.slots
	return image, res, nil
}

func (m *mockBackend) Record(slot, image int, draws []gfx.Draw) error {
	m.logf("record %d", slot)
	m.recordedDraws = append(m.recordedDraws, draws)
	return nil
}

func (m *mockBackend) Submit(slot int) error {
	m.logf("submit %d", slot)
	return nil
}

func (m *mockBackend) Present(slot, image int) (gfx.PresentResult, error) {
	m.logf("present %d", slot)
	if len(m.presentResults) == 0 {
		return gfx.PresentSuccess, nil
	}
	res := m.presentResults[0]
	m.presentResults = m.presentResults[1:]
	return res, nil
}

func (m *mockBackend) Recreate(extent gfx.Extent2D) error {
	m.logf("recreate %dx%d", extent.Width, extent.Height)
	if m.rejectZeroExtent && (extent.Width == 0 || extent.Height == 0) {
		return fmt.Errorf("vk.CreateSwapchain(): invalid image extent %dx%d", extent.Width, extent.Height)
	}
	return nil
}

// slotProtocolRespected checks that for every slot, a record event is
// always preceded by a wait on the same slot that happened after the
// slot's previous submit.
func slotProtocolRespected(events []string, slots int) error {
	type state int
	const (
		idle state = iota
		waited
		recorded
	)
	perSlot := make([]state, slots)
	for _, ev := range events {
		var verb string
		var slot int
		if _, err := fmt.Sscanf(ev, "%s %d", &verb, &slot); err != nil {
			continue
		}
		switch verb {
		case "wait":
			perSlot[slot] = waited
		case "record":
			if perSlot[slot] != waited {
				return fmt.Errorf("slot %d recorded without a prior fence wait", slot)
			}
			perSlot[slot] = recorded
		case "submit":
			if perSlot[slot] != recorded {
				return fmt.Errorf("slot %d submitted without recording", slot)
			}
			perSlot[slot] = idle
		}
	}
	return nil
}

func TestSchedulerNeverReusesSlotBeforeFence(t *testing.T) {
	for _, slots := range []int{2, 3} {
		t.Run(fmt.Sprintf("ring%d", slots), func(t *testing.T) {
			backend := newMockBackend(slots)
			sched := gfx.NewScheduler(backend, 0, nil)

			for frame := 0; frame < slots*4; frame++ {
				require.NoError(t, sched.Tick(nil))
			}

			require.NoError(t, slotProtocolRespected(backend.events, slots))
			assert.EqualValues(t, slots*4, sched.Frames())
		})
	}
}

func TestSchedulerAdvancesRingCursor(t *testing.T) {
	backend := newMockBackend(3)
	sched := gfx.NewScheduler(backend, 0, nil)

	for frame := 0; frame < 6; frame++ {
		require.NoError(t, sched.Tick(nil))
	}

	var waits []string
	for _, ev := range backend.events {
		if len(ev) > 4 && ev[:4] == "wait" {
			waits = append(waits, ev)
		}
	}
	assert.Equal(t, []string{
		"wait 0", "wait 1", "wait 2", "wait 0", "wait 1", "wait 2",
	}, waits)
}

func TestSchedulerSkipsFrameOnAcquireTimeout(t *testing.T) {
	backend := newMockBackend(2)
	backend.acquireResults = []gfx.AcquireResult{
		gfx.AcquireTimeout, gfx.AcquireTimeout, gfx.AcquireTimeout,
		gfx.AcquireTimeout, gfx.AcquireTimeout,
	}
	sched := gfx.NewScheduler(backend, time.Millisecond, nil)

	for frame := 0; frame < 5; frame++ {
		require.NoError(t, sched.Tick(nil), "a timeout must never be fatal")
	}

	assert.EqualValues(t, 5, sched.SkippedFrames())
	assert.EqualValues(t, 0, sched.Frames())

	// The loop recovers once images become available again.
	require.NoError(t, sched.Tick(nil))
	assert.EqualValues(t, 1, sched.Frames())
}

func TestSchedulerSkipsFrameOnFenceTimeout(t *testing.T) {
	backend := newMockBackend(2)
	backend.waitOK = []bool{false}
	sched := gfx.NewScheduler(backend, time.Millisecond, nil)

	require.NoError(t, sched.Tick(nil))
	assert.EqualValues(t, 1, sched.SkippedFrames())

	// The slot was not consumed, the cursor stays put.
	require.NoError(t, sched.Tick(nil))
	assert.Contains(t, backend.events, "wait 0")
	assert.NotContains(t, backend.events, "wait 1")
}

func TestSchedulerRebuildsOnOutOfDateAcquire(t *testing.T) {
	backend := newMockBackend(2)
	backend.acquireResults = []gfx.AcquireResult{gfx.AcquireOutOfDate}
	sched := gfx.NewScheduler(backend, 0, nil)

	require.NoError(t, sched.Tick(nil))

	assert.Equal(t, []string{
		"wait 0", "acquire 0", "recreate 0x0", "acquire 0",
		"record 0", "submit 0", "present 0",
	}, backend.events)
}

func TestSchedulerGivesUpAfterSingleRetry(t *testing.T) {
	backend := newMockBackend(2)
	backend.acquireResults = []gfx.AcquireResult{
		gfx.AcquireOutOfDate, gfx.AcquireOutOfDate,
	}
	sched := gfx.NewScheduler(backend, 0, nil)

	err := sched.Tick(nil)
	require.ErrorIs(t, err, gfx.ErrFrameAcquisition)

	// Exactly one rebuild and two acquisitions, never more.
	recreates := 0
	for _, ev := range backend.events {
		if ev == "recreate 0x0" {
			recreates++
		}
	}
	assert.Equal(t, 1, recreates)

	// The error is recoverable, the next tick proceeds.
	require.NoError(t, sched.Tick(nil))
}

func TestSchedulerDefersRebuildOnSuboptimalPresent(t *testing.T) {
	backend := newMockBackend(2)
	backend.presentResults = []gfx.PresentResult{gfx.PresentSuboptimal}
	sched := gfx.NewScheduler(backend, 0, nil)

	require.NoError(t, sched.Tick(nil))

	// The frame that saw the suboptimal signal completed untouched.
	assert.Equal(t, []string{
		"wait 0", "acquire 0", "record 0", "submit 0", "present 0",
	}, backend.events)

	// The rebuild lands at the head of the next tick.
	require.NoError(t, sched.Tick(nil))
	assert.Equal(t, "recreate 0x0", backend.events[5])
}

func TestSchedulerResizeRebuildsBeforeAcquire(t *testing.T) {
	backend := newMockBackend(2)
	sched := gfx.NewScheduler(backend, 0, nil)
	require.NoError(t, sched.Tick(nil))

	sched.NotifyResize(gfx.Extent2D{Width: 1024, Height: 768})
	require.NoError(t, sched.Tick(nil))

	assert.Equal(t, "recreate 1024x768", backend.events[5])
}

func TestSchedulerEmptyDrawListStillPresents(t *testing.T) {
	backend := newMockBackend(2)
	sched := gfx.NewScheduler(backend, 0, nil)

	require.NoError(t, sched.Tick([]gfx.Draw{}))

	require.Len(t, backend.recordedDraws, 1)
	assert.Empty(t, backend.recordedDraws[0])
	assert.Contains(t, backend.events, "present 0")
}

func TestSchedulerCloseDrainsEverySlot(t *testing.T) {
	backend := newMockBackend(3)
	sched := gfx.NewScheduler(backend, 0, nil)
	require.NoError(t, sched.Tick(nil))

	require.NoError(t, sched.Close())

	waits := 0
	for _, ev := range backend.events {
		if len(ev) > 4 && ev[:4] == "wait" {
			waits++
		}
	}
	// One wait from the tick, three from the drain.
	assert.Equal(t, 4, waits)

	assert.ErrorIs(t, sched.Tick(nil), gfx.ErrSchedulerClosed)
}

func TestSchedulerIdlesWhileMinimized(t *testing.T) {
	backend := newMockBackend(2)
	backend.rejectZeroExtent = true
	s := gfx.NewScheduler(backend, time.Second, nil)

	s.NotifyResize(gfx.Extent2D{Width: 0, Height: 0})
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Tick(nil))
	}

	// The backend must never see the zero extent, nor any frame
	// work while the window has no surface to present to.
	assert.Empty(t, backend.events)
	assert.Equal(t, uint64(0), s.Frames())

	s.NotifyResize(gfx.Extent2D{Width: 800, Height: 600})
	require.NoError(t, s.Tick(nil))

	require.GreaterOrEqual(t, len(backend.events), 5)
	assert.Equal(t, "recreate 800x600", backend.events[0])
	assert.Equal(t, "wait 0", backend.events[1])
	assert.Equal(t, uint64(1), s.Frames())
}

func TestSchedulerMinimizeDiscardsPendingResize(t *testing.T) {
	backend := newMockBackend(2)
	backend.rejectZeroExtent = true
	s := gfx.NewScheduler(backend, time.Second, nil)

	// A resize followed by a minimize before the next tick must not
	// rebuild to the stale extent.
	s.NotifyResize(gfx.Extent2D{Width: 1024, Height: 768})
	s.NotifyResize(gfx.Extent2D{Width: 0, Height: 0})
	require.NoError(t, s.Tick(nil))
	assert.Empty(t, backend.events)

	s.NotifyResize(gfx.Extent2D{Width: 640, Height: 480})
	require.NoError(t, s.Tick(nil))
	assert.Equal(t, "recreate 640x480", backend.events[0])
}
