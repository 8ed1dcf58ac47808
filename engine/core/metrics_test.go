package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFrameMetricsAverage(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < frameAverageCount-1; i++ {
		m.Update(10 * time.Millisecond)
	}
	assert.Zero(t, m.FrameTime(), "average is published once the window is full")

	m.Update(40 * time.Millisecond)
	assert.Equal(t, 11*time.Millisecond, m.FrameTime())
}

func TestFrameMetricsFPS(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < 60; i++ {
		m.Update(time.Second / 60)
	}
	assert.Zero(t, m.FPS())

	m.Update(time.Second / 60)
	assert.Equal(t, 61, m.FPS())
}

func TestClock(t *testing.T) {
	now := time.Unix(100, 0)
	c := &Clock{now: func() time.Time { return now }}

	c.Update()
	assert.Zero(t, c.Elapsed(), "stopped clock does not advance")

	c.Start()
	now = now.Add(250 * time.Millisecond)
	c.Update()
	assert.Equal(t, 250*time.Millisecond, c.Elapsed())

	c.Stop()
	now = now.Add(time.Second)
	c.Update()
	assert.Equal(t, 250*time.Millisecond, c.Elapsed())
}
