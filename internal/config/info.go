package config

import (
	"encoding/json"
	"os"
	"sync"
)

// Info implements the ws.ConfigInfoProvider surface the admin service's
// configFile/getRawConfig/saveRawConfig/reload commands need, backed by
// the file Load most recently read from.
type Info struct {
	mu sync.Mutex

	path       string
	explicit   bool
	redirected bool

	raw   json.RawMessage
	errs  []string
	valid bool
}

// NewInfo builds an Info from the result of a Load call. path is the file
// actually read (empty if none was found and defaults applied); explicit
// is whether the caller passed a configPath to Load; redirected is whether
// a UserConfiguration chain was followed.
func NewInfo(path string, explicit, redirected bool, raw json.RawMessage, loadErr error) *Info {
	i := &Info{path: path, explicit: explicit, redirected: redirected, raw: raw}
	if loadErr != nil {
		i.valid = false
		i.errs = []string{loadErr.Error()}
	} else {
		i.valid = true
	}
	return i
}

func (i *Info) Filename() string { return i.path }
func (i *Info) Explicit() bool   { return i.explicit }
func (i *Info) Redirected() bool { return i.redirected }

func (i *Info) Valid() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.valid
}

// RawConfig returns the last successfully (or last attempted) loaded
// configuration bytes, plus any validation errors recorded against them.
func (i *Info) RawConfig() (json.RawMessage, []string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.raw, i.errs, nil
}

// SaveRawConfig validates cfg as a complete Config before writing it to
// destination (or the active file, if destination is empty), refusing to
// persist anything that wouldn't itself load cleanly.
func (i *Info) SaveRawConfig(destination string, cfg json.RawMessage) error {
	var parsed Config
	if err := json.Unmarshal(cfg, &parsed); err != nil {
		return err
	}
	if err := parsed.Validate(); err != nil {
		return err
	}

	dest := destination
	if dest == "" {
		dest = i.path
	}
	if err := os.WriteFile(dest, cfg, 0o644); err != nil {
		return err
	}

	i.mu.Lock()
	i.raw = cfg
	i.errs = nil
	i.valid = true
	if destination == "" || destination == i.path {
		i.path = dest
	}
	i.mu.Unlock()
	return nil
}

// Reload re-reads and re-validates the active file from disk, reporting
// whether it still parses. A failed reload leaves the previously recorded
// raw bytes in place; a file that fails to parse or validate also marks
// the Info invalid and records the error, while an unreadable file changes
// nothing.
func (i *Info) Reload() bool {
	if i.path == "" {
		return false
	}
	raw, err := os.ReadFile(i.path)
	if err != nil {
		return false
	}
	var parsed Config
	if err := json.Unmarshal(raw, &parsed); err != nil {
		i.mu.Lock()
		i.valid = false
		i.errs = []string{err.Error()}
		i.mu.Unlock()
		return false
	}
	if err := parsed.Validate(); err != nil {
		i.mu.Lock()
		i.valid = false
		i.errs = []string{err.Error()}
		i.mu.Unlock()
		return false
	}

	i.mu.Lock()
	i.raw = raw
	i.errs = nil
	i.valid = true
	i.mu.Unlock()
	return true
}
