package infra

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/zenlauncher/gatekeeper/internal/domain"
)

// ChannelMonitor implements domain.ForegroundMonitor. The launcher
// surface pushes foreground changes into it; the pull query re-validates
// the last reported app against the live process table via gopsutil,
// since the push channel is best-effort and can be missed or delayed.
type ChannelMonitor struct {
	mu     sync.Mutex
	events chan domain.ForegroundEvent
	last   domain.AppID
	verify bool
}

// NewChannelMonitor creates a monitor with the given event buffer.
// When verify is true, Foreground() cross-checks the process table.
func NewChannelMonitor(buffer int, verify bool) *ChannelMonitor {
	return &ChannelMonitor{
		events: make(chan domain.ForegroundEvent, buffer),
		verify: verify,
	}
}

// Publish reports a foreground change. Consecutive duplicates for the
// same app are dropped; a full buffer drops the event rather than block
// the caller (the poller bounds how long a miss can last).
func (m *ChannelMonitor) Publish(id domain.AppID, at time.Time) {
	m.mu.Lock()
	if m.last == id {
		m.mu.Unlock()
		return
	}
	m.last = id
	m.mu.Unlock()

	select {
	case m.events <- domain.ForegroundEvent{AppID: id, At: at}:
	default:
	}
}

// Events returns the foreground-change stream.
func (m *ChannelMonitor) Events() <-chan domain.ForegroundEvent {
	return m.events
}

// Foreground returns the app in the foreground right now.
func (m *ChannelMonitor) Foreground() (domain.AppID, error) {
	m.mu.Lock()
	last := m.last
	m.mu.Unlock()

	if last == "" {
		return "", fmt.Errorf("no foreground app reported yet")
	}
	if m.verify && !processRunning(string(last)) {
		return "", fmt.Errorf("foreground app %s no longer running", last)
	}
	return last, nil
}

// processRunning scans the process table for a name matching the app
// identifier (case-insensitive, last identifier segment).
func processRunning(id string) bool {
	// Package-style IDs match on their final segment.
	name := id
	if i := strings.LastIndex(id, "."); i >= 0 && i < len(id)-1 {
		name = id[i+1:]
	}

	procs, err := process.Processes()
	if err != nil {
		// Cannot prove absence; treat as still running.
		return true
	}
	for _, p := range procs {
		pname, err := p.Name()
		if err != nil {
			continue
		}
		if strings.EqualFold(pname, name) || strings.EqualFold(pname, id) {
			return true
		}
	}
	return false
}

var _ domain.ForegroundMonitor = (*ChannelMonitor)(nil)
