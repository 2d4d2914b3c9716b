package sim

import (
	"errors"
	"slices"
	"sync"

	"github.com/large-farva/vibrator-engine/internal/hal"
)

// ErrNotPrepared is returned by Trigger without a successful Prepare.
var ErrNotPrepared = errors.New("no synced vibration prepared")

// SyncManager is a simulated hal.SyncDriver. Prepare and Trigger can be made
// to fail to exercise the degraded playback paths.
type SyncManager struct {
	mu           sync.Mutex
	caps         hal.SyncCapability
	prepareErr   error
	triggerErr   error
	prepared     []int
	done         func()
	prepareCalls [][]int
	triggers     int
	cancels      int
}

// NewSyncManager creates a sync manager with the given capabilities.
func NewSyncManager(caps hal.SyncCapability) *SyncManager {
	return &SyncManager{caps: caps}
}

// SetFailures makes Prepare and Trigger return the given errors.
func (m *SyncManager) SetFailures(prepareErr, triggerErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepareErr, m.triggerErr = prepareErr, triggerErr
}

func (m *SyncManager) Capabilities() hal.SyncCapability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.caps
}

func (m *SyncManager) Prepare(actuatorIDs []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prepareCalls = append(m.prepareCalls, slices.Clone(actuatorIDs))
	if m.prepareErr != nil {
		return m.prepareErr
	}
	m.prepared = slices.Clone(actuatorIDs)
	return nil
}

func (m *SyncManager) Trigger(done func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers++
	if m.triggerErr != nil {
		return m.triggerErr
	}
	if m.prepared == nil {
		return ErrNotPrepared
	}
	m.prepared = nil
	if m.caps.Has(hal.SyncCapTriggerCallback) {
		m.done = done
	}
	return nil
}

func (m *SyncManager) CancelSynced() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	m.prepared = nil
	m.done = nil
	return nil
}

// Complete fires the callback of the last triggered vibration, if any.
// It reports whether a callback was pending.
func (m *SyncManager) Complete() bool {
	m.mu.Lock()
	done := m.done
	m.done = nil
	m.mu.Unlock()
	if done == nil {
		return false
	}
	done()
	return true
}

// PrepareCalls returns the actuator ids of every Prepare call.
func (m *SyncManager) PrepareCalls() [][]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.prepareCalls)
}

// Counts returns how many times Trigger and CancelSynced were called.
func (m *SyncManager) Counts() (triggers, cancels int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggers, m.cancels
}
