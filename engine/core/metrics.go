package core

import "time"

const frameAverageCount = 30

// FrameMetrics keeps a rolling average of frame times and the frames
// presented during the last full second.
type FrameMetrics struct {
	counter     int
	times       [frameAverageCount]time.Duration
	average     time.Duration
	frames      int
	accumulated time.Duration
	fps         int
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{}
}

func (m *FrameMetrics) Update(frameTime time.Duration) {
	m.times[m.counter] = frameTime
	if m.counter == frameAverageCount-1 {
		var sum time.Duration
		for _, t := range m.times {
			sum += t
		}
		m.average = sum / frameAverageCount
	}
	m.counter = (m.counter + 1) % frameAverageCount

	m.frames++
	m.accumulated += frameTime
	if m.accumulated >= time.Second {
		m.fps = m.frames
		m.accumulated -= time.Second
		m.frames = 0
	}
}

func (m *FrameMetrics) FPS() int {
	return m.fps
}

// FrameTime is the average over the last full window of frames.
func (m *FrameMetrics) FrameTime() time.Duration {
	return m.average
}
