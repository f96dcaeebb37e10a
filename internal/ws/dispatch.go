package ws

import (
	"encoding/json"

	"golang.org/x/time/rate"
)

// Handler executes one command invocation. It returns the JSON-serializable
// reply value and, if the command supports streaming, a Pusher the caller
// can subscribe for ongoing updates. A handler that cannot produce a reply
// at all is a programming error in the handler, not a dispatch-time one.
type Handler func(client string, params json.RawMessage) (reply any, pusher Pusher, err error)

// inboundEnvelope is the wire shape of a client-originated message.
type inboundEnvelope struct {
	Command string          `json:"command"`
	Push    bool            `json:"push"`
	Params  json.RawMessage `json:"params"`
}

// unsubscribeParams is the payload of the built-in unsubscribe command.
type unsubscribeParams struct {
	Originator string `json:"originator"`
	Stream     string `json:"stream"`
}

// Dispatcher routes inbound command envelopes to registered handlers,
// enforces the push-subscription limit through a PushManager, and
// throttles how often a single client may issue commands.
type Dispatcher struct {
	commands map[string]Handler
	push     *PushManager

	limiterFor func(client string) *rate.Limiter
}

// NewDispatcher creates a Dispatcher backed by push. limiterFor returns the
// per-client rate limiter to consult before running a command; callers
// that don't want rate limiting can pass a limiterFor that always returns
// nil.
func NewDispatcher(push *PushManager, limiterFor func(client string) *rate.Limiter) *Dispatcher {
	d := &Dispatcher{
		commands:   make(map[string]Handler),
		push:       push,
		limiterFor: limiterFor,
	}
	d.Register("unsubscribe", d.handleUnsubscribe)
	return d
}

// Register adds a command handler. Registering "unsubscribe" again
// overrides the built-in implementation.
func (d *Dispatcher) Register(name string, h Handler) {
	d.commands[name] = h
}

// Dispatch processes one inbound message for client and returns the bytes
// to enqueue as the reply. It never returns a Go error for protocol-level
// problems — those are reported as "!!ERROR: ...!!" reply strings per the
// wire contract; a non-nil error here means the message could not even be
// turned into a reply (out of memory, etc.) and the connection should be
// torn down.
func (d *Dispatcher) Dispatch(client string, raw []byte) ([]byte, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Command == "" {
		return encodeErrorReply("Not a command object.")
	}

	if limiter := d.limiterFor; limiter != nil {
		if l := limiter(client); l != nil && !l.Allow() {
			return encodeErrorReply("rate limit exceeded, slow down!!")
		}
	}

	handler, ok := d.commands[env.Command]
	if !ok {
		return encodeErrorReply("no such command \"" + env.Command + "\"")
	}

	reply, pusher, err := handler(client, env.Params)
	if err != nil {
		return encodeErrorReply(err.Error())
	}

	if env.Push {
		if pusher == nil {
			return encodeErrorReply("push requested but command produced no pusher!!")
		}
		// The stream id, if any, is not reported here: it travels with each
		// subsequent push message and that's the only place a client needs it.
		if _, regErr := d.push.Register(client, env.Command, pusher); regErr != nil {
			return encodeErrorReply("max amount of pushers reached!!")
		}
	}

	return json.Marshal(reply)
}

func (d *Dispatcher) handleUnsubscribe(client string, params json.RawMessage) (any, Pusher, error) {
	var p unsubscribeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, nil, err
	}
	d.push.Unsubscribe(client, p.Originator, p.Stream)
	return true, nil, nil
}

// encodeErrorReply wraps text as the dispatcher's plain-string error reply
// and marshals it as a JSON string, matching the two slightly different
// historical formats ("!!ERROR: <text>" and "!!ERROR: <text>!!") verbatim
// as passed by each call site — this dispatcher never appends its own
// trailing marker.
func encodeErrorReply(text string) ([]byte, error) {
	return json.Marshal("!!ERROR: " + text)
}
