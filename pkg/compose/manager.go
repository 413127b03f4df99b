package compose

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// snapshotBuffer bounds the per-job reporter queue. The drain goroutine
// keeps up easily; the buffer only absorbs bursts around stage transitions.
const snapshotBuffer = 16

// Publisher is the fan-out sink for pipeline snapshots, implemented by the
// stream hub.
type Publisher interface {
	Publish(encounterID string, payload map[string]any)
}

// jobHandle tracks one running job.
type jobHandle struct {
	cancelled atomic.Bool
	done      chan struct{}

	mu    sync.Mutex
	state State
}

// Manager runs compose jobs asynchronously: one goroutine per job, with a
// buffered snapshot queue drained into the publisher so a slow subscriber
// never stalls the pipeline.
type Manager struct {
	pipeline  *Pipeline
	publisher Publisher

	mu   sync.Mutex
	jobs map[string]*jobHandle
}

// NewManager creates a Manager. publisher may be nil (snapshots are then
// only retained for polling).
func NewManager(pipeline *Pipeline, publisher Publisher) *Manager {
	return &Manager{
		pipeline:  pipeline,
		jobs:      make(map[string]*jobHandle),
		publisher: publisher,
	}
}

// Submit starts job asynchronously and returns its compose id. A zero
// ComposeID is filled with a fresh UUID.
func (m *Manager) Submit(ctx context.Context, job Job) (string, error) {
	if job.ComposeID == "" {
		job.ComposeID = uuid.NewString()
	}

	// Seed the handle with the initial snapshot so a status query that
	// lands before the first reporter emit never sees a zero State.
	handle := &jobHandle{done: make(chan struct{}), state: newState(job.ComposeID)}

	m.mu.Lock()
	if _, exists := m.jobs[job.ComposeID]; exists {
		m.mu.Unlock()
		return "", fmt.Errorf("compose job %s already exists", job.ComposeID)
	}
	m.jobs[job.ComposeID] = handle
	m.mu.Unlock()

	snapshots := make(chan State, snapshotBuffer)
	report := func(s State) error {
		handle.mu.Lock()
		handle.state = s
		handle.mu.Unlock()
		select {
		case snapshots <- s:
			return nil
		default:
			return fmt.Errorf("snapshot queue full for compose job %s", job.ComposeID)
		}
	}

	// Drain snapshots to the stream hub.
	go func() {
		for s := range snapshots {
			if m.publisher == nil || job.EncounterID == "" {
				continue
			}
			m.publisher.Publish(job.EncounterID, statePayload(s))
		}
	}()

	go func() {
		defer close(handle.done)
		defer close(snapshots)
		slog.Info("Compose job started", "compose_id", job.ComposeID, "encounter_id", job.EncounterID)
		final := m.pipeline.Run(ctx, job, report, handle.cancelled.Load)
		slog.Info("Compose job finished", "compose_id", job.ComposeID, "status", final.Status)
	}()

	return job.ComposeID, nil
}

// Cancel flags the job for cooperative cancellation at its next stage
// boundary. Returns false for unknown compose ids.
func (m *Manager) Cancel(composeID string) bool {
	m.mu.Lock()
	handle, ok := m.jobs[composeID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	handle.cancelled.Store(true)
	slog.Info("Compose job cancellation requested", "compose_id", composeID)
	return true
}

// Latest returns the most recent snapshot for composeID.
func (m *Manager) Latest(composeID string) (State, bool) {
	m.mu.Lock()
	handle, ok := m.jobs[composeID]
	m.mu.Unlock()
	if !ok {
		return State{}, false
	}
	handle.mu.Lock()
	defer handle.mu.Unlock()
	return handle.state, true
}

// Wait blocks until the job finishes. Used by tests and synchronous callers.
func (m *Manager) Wait(composeID string) {
	m.mu.Lock()
	handle, ok := m.jobs[composeID]
	m.mu.Unlock()
	if !ok {
		return
	}
	<-handle.done
}

// statePayload converts a snapshot into the wire map published on the
// compose channel.
func statePayload(s State) map[string]any {
	data, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "compose.status", "composeId": s.ComposeID, "status": s.Status}
	}
	payload := make(map[string]any)
	if err := json.Unmarshal(data, &payload); err != nil {
		return map[string]any{"type": "compose.status", "composeId": s.ComposeID, "status": s.Status}
	}
	payload["type"] = "compose.status"
	return payload
}
