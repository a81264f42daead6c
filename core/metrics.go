package core

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// cycleReportInterval is how often accumulated frame timings are
// flushed to the log.
const cycleReportInterval = time.Second

// NewMetrics creates a frame timing accumulator that reports through
// the given logger once a second. A nil logger uses the default.
func NewMetrics(logger log.FieldLogger) *Metrics {
	if logger == nil {
		logger = log.StandardLogger()
	}
	now := time.Now()
	return &Metrics{
		log:        logger,
		cycleStart: now,
		frameStart: now,
		frameEnd:   now,
		fastest:    time.Hour,
	}
}

// Metrics accumulates per-frame timings across a report cycle.
// StartFrame and EndFrame bracket each tick of the frame loop.
type Metrics struct {
	log log.FieldLogger

	cycleStart time.Time
	frameStart time.Time
	frameEnd   time.Time

	slowest time.Duration
	fastest time.Duration
	total   time.Duration
	frames  uint32

	deltaEndToStart   time.Duration
	deltaStartToStart time.Duration
}

// StartFrame marks the beginning of a frame.
func (m *Metrics) StartFrame() {
	m.deltaEndToStart = time.Since(m.frameEnd)
	m.deltaStartToStart = time.Since(m.frameStart)
	m.frameStart = time.Now()
}

// Delta returns the time elapsed between the starts of the two most
// recent frames, usable for animation stepping.
func (m *Metrics) Delta() time.Duration {
	return m.deltaStartToStart
}

// EndFrame marks the end of a frame and emits a cycle report when one
// is due.
func (m *Metrics) EndFrame() {
	m.frames++
	elapsed := time.Since(m.frameStart)
	m.total += elapsed

	if elapsed > m.slowest {
		m.slowest = elapsed
	}
	if elapsed < m.fastest {
		m.fastest = elapsed
	}

	if time.Since(m.cycleStart) > cycleReportInterval {
		m.log.WithFields(log.Fields{
			"frames":  m.frames,
			"slowest": m.slowest,
			"fastest": m.fastest,
			"mean":    m.total / time.Duration(m.frames),
			"idle":    m.deltaEndToStart,
		}).Info("frame cycle")

		m.frames = 0
		m.slowest = 0
		m.fastest = time.Hour
		m.total = 0
		m.cycleStart = time.Now()
	}

	m.frameEnd = time.Now()
}
