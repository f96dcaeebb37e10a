package supervisor

import "m8msupervisor/internal/ws"

// Extensions is a static registry of the protocol extensions this process
// implements beyond the baseline command set. None are currently
// individually disableable; Enable reports success for every registered
// extension and false only for a name that was never registered.
type Extensions struct {
	entries map[string]ws.ExtensionState
}

// NewExtensions builds a registry. name -> human-readable description.
func NewExtensions(descriptions map[string]string) *Extensions {
	entries := make(map[string]ws.ExtensionState, len(descriptions))
	for name, desc := range descriptions {
		entries[name] = ws.ExtensionState{Description: desc}
	}
	return &Extensions{entries: entries}
}

// List implements ws.ExtensionRegistry.
func (e *Extensions) List() map[string]ws.ExtensionState {
	out := make(map[string]ws.ExtensionState, len(e.entries))
	for k, v := range e.entries {
		out[k] = v
	}
	return out
}

// Enable implements ws.ExtensionRegistry.
func (e *Extensions) Enable(name string) bool {
	entry, ok := e.entries[name]
	if !ok {
		return false
	}
	entry.Disabled = false
	e.entries[name] = entry
	return true
}
