package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventSystemFireStopsAtFirstHandler(t *testing.T) {
	es := NewEventSystem()

	var calls []string
	first := "first"
	second := "second"

	require.True(t, es.Register(EVENT_CODE_RESIZED, first, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, listener.(string))
		return data.Data.U32[0] == 0
	}))
	require.True(t, es.Register(EVENT_CODE_RESIZED, second, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, listener.(string))
		return true
	}))

	ctx := EventContext{}
	ctx.Data.U32[0] = 1280
	ctx.Data.U32[1] = 720
	assert.True(t, es.Fire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, []string{"first", "second"}, calls)

	calls = nil
	assert.True(t, es.Fire(EVENT_CODE_RESIZED, nil, EventContext{}))
	assert.Equal(t, []string{"first"}, calls)
}

func TestEventSystemRegisterTwiceAndUnregister(t *testing.T) {
	SetLogOutput(testWriter{t})
	es := NewEventSystem()
	listener := &struct{}{}
	handler := func(SystemEventCode, interface{}, interface{}, EventContext) bool { return true }

	assert.True(t, es.Register(EVENT_CODE_APPLICATION_QUIT, listener, handler))
	assert.False(t, es.Register(EVENT_CODE_APPLICATION_QUIT, listener, handler))

	assert.True(t, es.Unregister(EVENT_CODE_APPLICATION_QUIT, listener))
	assert.False(t, es.Unregister(EVENT_CODE_APPLICATION_QUIT, listener))
	assert.False(t, es.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
}

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	assert.InDelta(t, 16.0, m.FrameTime(), 0.0001)

	// 70 frames at 16ms cross the one second mark once
	for i := 0; i < 40; i++ {
		m.Update(0.016)
	}
	fps, frameTime := m.Frame()
	assert.Greater(t, fps, 0.0)
	assert.InDelta(t, 16.0, frameTime, 0.0001)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLogLevel(" warn "))
	assert.Equal(t, InfoLevel, ParseLogLevel("chatty"))
}

func TestClockElapsed(t *testing.T) {
	c := NewClock()
	c.Update()
	assert.Zero(t, c.Elapsed())

	c.Start()
	for i := 0; i < 1000; i++ {
		c.Update()
	}
	assert.GreaterOrEqual(t, c.Elapsed(), 0.0)
	c.Stop()
	before := c.Elapsed()
	c.Update()
	assert.Equal(t, before, c.Elapsed())
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
