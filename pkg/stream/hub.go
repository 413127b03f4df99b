// Package stream implements the per-encounter delta fan-out: named channels
// (codes, compliance, compose) each hold an encounter registry whose
// publishes are deduplicated by payload fingerprint, rate-limited by a
// minimum send interval, stamped with monotonic event ids, and replayed to
// late subscribers.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultMinInterval is the send rate floor applied when none is configured.
const DefaultMinInterval = 500 * time.Millisecond

// Subscriber is one connected listener. Send failures drop the subscriber;
// no redelivery is attempted.
type Subscriber interface {
	Send(payload map[string]any) error
	Close(reason string)
}

// encounterState holds everything for one encounter id within a channel.
// All fields are guarded by mu; there is no channel-wide lock on the hot
// path.
type encounterState struct {
	mu sync.Mutex

	clients            map[Subscriber]struct{}
	lastEventID        int64
	lastPayload        map[string]any
	lastFingerprint    string
	lastSentAt         time.Time
	pending            map[string]any
	pendingFingerprint string
	flushScheduled     bool
}

// Hub is one named publish domain.
type Hub struct {
	channel     string
	minInterval time.Duration

	mu         sync.RWMutex
	encounters map[string]*encounterState
}

// NewHub creates a hub for channel. A non-positive minInterval disables
// rate limiting.
func NewHub(channel string, minInterval time.Duration) *Hub {
	return &Hub{
		channel:     channel,
		minInterval: minInterval,
		encounters:  make(map[string]*encounterState),
	}
}

// Channel returns the hub's channel name.
func (h *Hub) Channel() string { return h.channel }

// encounter returns the state for id, creating it lazily.
func (h *Hub) encounter(id string) *encounterState {
	h.mu.RLock()
	es, ok := h.encounters[id]
	h.mu.RUnlock()
	if ok {
		return es
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if es, ok = h.encounters[id]; ok {
		return es
	}
	es = &encounterState{clients: make(map[Subscriber]struct{})}
	h.encounters[id] = es
	return es
}

// Subscribe registers sub on encounterID: sends the handshake, replays the
// last payload if one exists, and adds the subscriber to the fan-out set.
// The caller owns the receive loop and must call Unsubscribe on disconnect.
func (h *Hub) Subscribe(encounterID string, sub Subscriber) error {
	if err := sub.Send(map[string]any{
		"event":       "connected",
		"channel":     h.channel,
		"encounterId": encounterID,
	}); err != nil {
		return fmt.Errorf("handshake send failed: %w", err)
	}

	es := h.encounter(encounterID)

	es.mu.Lock()
	es.clients[sub] = struct{}{}
	var replay map[string]any
	if es.lastPayload != nil {
		replay = clonePayload(es.lastPayload)
	}
	es.mu.Unlock()

	if replay != nil {
		if err := sub.Send(replay); err != nil {
			h.Unsubscribe(encounterID, sub)
			sub.Close("replay send failed")
			return fmt.Errorf("replay send failed: %w", err)
		}
	}

	slog.Debug("Stream subscriber added", "channel", h.channel, "encounter_id", encounterID)
	return nil
}

// Unsubscribe removes sub from the encounter's fan-out set.
func (h *Hub) Unsubscribe(encounterID string, sub Subscriber) {
	es := h.encounter(encounterID)
	es.mu.Lock()
	delete(es.clients, sub)
	es.mu.Unlock()
}

// Publish queues payload for delivery on encounterID. Identical consecutive
// payloads are suppressed; distinct payloads published inside the minimum
// interval are coalesced so only the most recent one is delivered.
func (h *Hub) Publish(encounterID string, payload map[string]any) {
	clone := clonePayload(payload)
	fingerprint := Fingerprint(clone)

	es := h.encounter(encounterID)

	es.mu.Lock()
	defer es.mu.Unlock()

	if fingerprint == es.lastFingerprint && es.pending == nil {
		return
	}
	if fingerprint == es.pendingFingerprint {
		return
	}

	es.pending = clone
	es.pendingFingerprint = fingerprint

	delay := h.minInterval - time.Since(es.lastSentAt)
	if delay <= 0 || len(es.clients) == 0 {
		h.flushLocked(encounterID, es)
		return
	}
	if !es.flushScheduled {
		es.flushScheduled = true
		time.AfterFunc(delay, func() {
			es.mu.Lock()
			defer es.mu.Unlock()
			es.flushScheduled = false
			h.flushLocked(encounterID, es)
		})
	}
}

// flushLocked delivers the pending payload. Caller holds es.mu.
func (h *Hub) flushLocked(encounterID string, es *encounterState) {
	if es.pending == nil {
		es.pendingFingerprint = ""
		return
	}
	payload := es.pending
	fingerprint := es.pendingFingerprint
	es.pending = nil
	es.pendingFingerprint = ""
	if fingerprint == "" {
		fingerprint = Fingerprint(payload)
	}

	// The same content may have been delivered while this flush was queued.
	if fingerprint == es.lastFingerprint && es.lastPayload != nil {
		return
	}

	es.lastEventID++
	enriched := clonePayload(payload)
	if _, ok := enriched["type"]; !ok {
		enriched["type"] = h.channel + ".delta"
	}
	enriched["channel"] = h.channel
	enriched["encounterId"] = encounterID
	enriched["eventId"] = es.lastEventID

	es.lastPayload = enriched
	es.lastFingerprint = fingerprint
	es.lastSentAt = time.Now()

	var failed []Subscriber
	for sub := range es.clients {
		if err := sub.Send(clonePayload(enriched)); err != nil {
			failed = append(failed, sub)
		}
	}
	for _, sub := range failed {
		delete(es.clients, sub)
		sub.Close("send failed")
		slog.Warn("Stream subscriber evicted after send failure",
			"channel", h.channel, "encounter_id", encounterID)
	}
}

// LastEventID returns the last assigned event id for encounterID.
func (h *Hub) LastEventID(encounterID string) int64 {
	es := h.encounter(encounterID)
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.lastEventID
}

// Fingerprint computes the canonical-JSON digest key used for coalescing:
// sorted keys, compact separators. Non-serializable payloads fall back to a
// sorted textual rendering.
func Fingerprint(payload map[string]any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		keys := make([]string, 0, len(payload))
		for k := range payload {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%v", k, payload[k]))
		}
		return fmt.Sprintf("%v", parts)
	}
	return string(data)
}

// clonePayload deep-copies a payload via JSON round-trip so publishers,
// the stored snapshot, and each subscriber never share mutable maps.
func clonePayload(payload map[string]any) map[string]any {
	data, err := json.Marshal(payload)
	if err != nil {
		out := make(map[string]any, len(payload))
		for k, v := range payload {
			out[k] = v
		}
		return out
	}
	out := make(map[string]any, len(payload))
	if err := json.Unmarshal(data, &out); err != nil {
		for k, v := range payload {
			out[k] = v
		}
	}
	return out
}
