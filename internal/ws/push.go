package ws

import (
	"encoding/json"
	"strconv"
)

// ErrTooMany is returned by PushManager.Register when a client already has
// as many active subscriptions to a command as it is allowed.
type ErrTooMany struct{ Command string }

func (e *ErrTooMany) Error() string { return "too many pushers for command " + e.Command }

// Pusher generates successive payloads for one push subscription. Refresh
// must be idempotent when nothing changed and must never itself produce a
// user-visible error: a pusher that can fail degrades to "no change"
// instead.
type Pusher interface {
	Refresh() (changed bool, payload any)
}

type pusherEntry struct {
	command  string
	streamID string // empty for maxPushing==1 (singleton, suppressed on the wire)
	pusher   Pusher
}

// key identifies one (client, command, streamID) triple — unique across
// the registry.
type key struct {
	client  string
	command string
	stream  string
}

// PushManager is the per-service registry of active push subscriptions,
// keyed across all clients of one WS service (monitor or admin), since a
// given client ID is unique within its owning service.
type PushManager struct {
	maxPushing map[string]int // command -> maxPushing
	byKey      map[key]*pusherEntry
	byClient   map[string][]*pusherEntry
	nextStream map[string]int // per-command monotonic stream-id counter, shared across clients
}

// NewPushManager creates an empty registry. limits maps each streaming
// command to its declared maxPushing value: 0 means no pushing, 1 means a
// singleton subscription, N>1 means multi-stream.
func NewPushManager(limits map[string]int) *PushManager {
	return &PushManager{
		maxPushing: limits,
		byKey:      make(map[key]*pusherEntry),
		byClient:   make(map[string][]*pusherEntry),
		nextStream: make(map[string]int),
	}
}

// Register attempts to add a new pusher for a client's command invocation.
// It returns the stream-id to report back on the wire (empty for a
// singleton command) or ErrTooMany if the client is already at its limit.
func (m *PushManager) Register(client, command string, p Pusher) (streamID string, err error) {
	limit, ok := m.maxPushing[command]
	if !ok || limit <= 0 {
		return "", &ErrTooMany{Command: command} // no pushing declared at all
	}

	active := 0
	for _, e := range m.byClient[client] {
		if e.command == command {
			active++
		}
	}
	if active >= limit {
		return "", &ErrTooMany{Command: command}
	}

	if limit > 1 {
		m.nextStream[command]++
		streamID = strconv.Itoa(m.nextStream[command])
	}

	entry := &pusherEntry{command: command, streamID: streamID, pusher: p}
	m.byKey[key{client, command, streamID}] = entry
	m.byClient[client] = append(m.byClient[client], entry)
	return streamID, nil
}

// Unsubscribe removes matching pushers. An empty streamID removes every
// pusher for that (client, command) pair.
func (m *PushManager) Unsubscribe(client, command, streamID string) {
	if streamID != "" {
		k := key{client, command, streamID}
		if _, ok := m.byKey[k]; !ok {
			return
		}
		delete(m.byKey, k)
		m.removeFromClient(client, command, streamID)
		return
	}

	remaining := m.byClient[client][:0]
	for _, e := range m.byClient[client] {
		if e.command == command {
			delete(m.byKey, key{client, command, e.streamID})
			continue
		}
		remaining = append(remaining, e)
	}
	m.byClient[client] = remaining
}

// UnsubscribeClient removes every pusher belonging to a client, called on
// disconnect.
func (m *PushManager) UnsubscribeClient(client string) {
	for _, e := range m.byClient[client] {
		delete(m.byKey, key{client, e.command, e.streamID})
	}
	delete(m.byClient, client)
}

func (m *PushManager) removeFromClient(client, command, streamID string) {
	list := m.byClient[client]
	for i, e := range list {
		if e.command == command && e.streamID == streamID {
			m.byClient[client] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// PushMessage is the wire envelope for a server-originated push.
type PushMessage struct {
	Pushing string `json:"pushing"`
	Stream  string `json:"stream,omitempty"`
	Payload any    `json:"payload"`
}

// Tick polls every active pusher once and returns the encoded JSON payload
// to enqueue for each client whose pusher reported a change. No two
// consecutive identical payloads are ever sent for one subscription, since
// a push is only emitted when changed==true.
func (m *PushManager) Tick() map[string][][]byte {
	out := make(map[string][][]byte)
	for client, entries := range m.byClient {
		for _, e := range entries {
			changed, payload := e.pusher.Refresh()
			if !changed {
				continue
			}
			msg := PushMessage{Pushing: e.command, Stream: e.streamID, Payload: payload}
			encoded, err := json.Marshal(msg)
			if err != nil {
				continue // a pusher's payload must never fail a client's whole connection
			}
			out[client] = append(out[client], encoded)
		}
	}
	return out
}

// CountActive reports how many pushers a client currently has for a
// command, exposed mainly for subscription-limit tests.
func (m *PushManager) CountActive(client, command string) int {
	n := 0
	for _, e := range m.byClient[client] {
		if e.command == command {
			n++
		}
	}
	return n
}
