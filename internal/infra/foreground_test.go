package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zenlauncher/gatekeeper/internal/domain"
)

func TestChannelMonitorPublish(t *testing.T) {
	m := NewChannelMonitor(4, false)
	now := time.Now()

	m.Publish("com.example.a", now)
	m.Publish("com.example.a", now.Add(time.Second)) // duplicate, dropped
	m.Publish("com.example.b", now.Add(2*time.Second))

	ev := <-m.Events()
	assert.Equal(t, domain.AppID("com.example.a"), ev.AppID)
	ev = <-m.Events()
	assert.Equal(t, domain.AppID("com.example.b"), ev.AppID)

	select {
	case ev := <-m.Events():
		t.Fatalf("unexpected extra event: %v", ev)
	default:
	}
}

func TestChannelMonitorFullBufferDropsNotBlocks(t *testing.T) {
	m := NewChannelMonitor(1, false)
	now := time.Now()

	m.Publish("com.example.a", now)

	done := make(chan struct{})
	go func() {
		m.Publish("com.example.b", now.Add(time.Second))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}
}

func TestForeground(t *testing.T) {
	t.Run("nothing reported yet", func(t *testing.T) {
		m := NewChannelMonitor(1, false)
		_, err := m.Foreground()
		assert.Error(t, err)
	})

	t.Run("returns the last published app", func(t *testing.T) {
		m := NewChannelMonitor(4, false)
		m.Publish("com.example.a", time.Now())
		m.Publish("com.example.b", time.Now())

		id, err := m.Foreground()
		require.NoError(t, err)
		assert.Equal(t, domain.AppID("com.example.b"), id)
	})
}
