package ws

import (
	"encoding/json"
	"errors"
	"time"
)

// PoolSummary is the subset of a stratum session's pool information exposed
// through the "pool" command.
type PoolSummary struct {
	Name    string
	URL     string
	Workers []string
}

// DeviceSlot describes one configured mining device: Algorithm empty means
// the device is switched off, and Reasons lists why it was rejected when
// it is.
type DeviceSlot struct {
	Algorithm string
	Reasons   []string
}

// ShareStats tracks good/bad/stale counters and the time of the last
// result for one device.
type ShareStats struct {
	Good, Bad, Stale int64
	LastResult       time.Time
}

// PoolShareStats extends ShareStats with connection-lifecycle counters for
// the per-pool streaming variant.
type PoolShareStats struct {
	Sent, Accepted, Rejected int64
	DifficultyPerSecond      float64
	LastActivated            time.Time
	LastActivity             time.Time
	NumActivationAttempts    int
}

// ScanTimeSample is one device's rolling scan-time measurement.
type ScanTimeSample struct {
	MinMS, MaxMS, AvgMS int64
}

// MiningInfoProvider exposes the active algorithm and device configuration,
// grounded on MinerInterface's algorithm/device-config accessors.
type MiningInfoProvider interface {
	Algo() (algo, impl string, version uint64)
	Devices() []DeviceSlot
}

// PoolInfoProvider exposes the currently active pool, grounded on
// MinerInterface::GetCurrentPool.
type PoolInfoProvider interface {
	CurrentPool() (PoolSummary, bool)
}

// PerformanceProvider exposes per-device scan-time measurements, grounded
// on MiningPerformanceWatcherInterface.
type PerformanceProvider interface {
	AverageWindow() time.Duration
	ScanTimes() []ScanTimeSample
}

// ShareStatsProvider exposes per-device and per-pool share counters.
type ShareStatsProvider interface {
	DeviceShares(index int) (ShareStats, bool)
	PoolShares(index int) (PoolShareStats, bool)
}

// ConfigInfoProvider exposes which configuration file is active and
// whether it parsed cleanly, grounded on ConfigFileCMD's
// ConfigInfoProviderInterface.
type ConfigInfoProvider interface {
	Filename() string
	Explicit() bool
	Redirected() bool
	Valid() bool
	RawConfig() (json.RawMessage, []string, error)
	SaveRawConfig(destination string, cfg json.RawMessage) error
	Reload() bool
}

// ExtensionState mirrors ExtensionState.h: each registered extension is
// named, carries a description, and can be individually disabled.
type ExtensionState struct {
	Description string
	Disabled    bool
}

// ExtensionRegistry lists and toggles optional protocol extensions.
type ExtensionRegistry interface {
	List() map[string]ExtensionState
	Enable(name string) bool
}

// UptimeProvider reports when the process, the hashing loop, and the first
// accepted nonce each started; a zero time means the event hasn't happened
// yet.
type UptimeProvider interface {
	StartedAt() (program, hashing, firstNonce time.Time)
}

// BuildInfo is the static text returned by the "version" command.
type BuildInfo struct {
	Protocol int
	Date     string
	Time     string
	Message  string
}

// Capabilities bundles every collaborator a built-in command handler may
// need. Admin-only commands additionally require Config; monitor-only
// installs may leave it nil.
type Capabilities struct {
	Miner       MiningInfoProvider
	Pools       PoolInfoProvider
	Performance PerformanceProvider
	Shares      ShareStatsProvider
	Config      ConfigInfoProvider
	Extensions  ExtensionRegistry
	Uptime      UptimeProvider
	Build       BuildInfo
}

// RegisterMonitorCommands wires the command set available on both the
// monitor and admin services.
func RegisterMonitorCommands(d *Dispatcher, caps Capabilities) {
	d.Register("systemInfo", func(string, json.RawMessage) (any, Pusher, error) {
		return map[string]any{"API": "generic", "platforms": []any{}}, nil, nil
	})

	d.Register("algo", func(string, json.RawMessage) (any, Pusher, error) {
		algo, impl, ver := caps.Miner.Algo()
		build := map[string]any{}
		if algo != "" {
			build["algo"] = algo
		}
		if impl != "" {
			build["impl"] = impl
			build["version"] = ver
		}
		return build, nil, nil
	})

	d.Register("pool", func(string, json.RawMessage) (any, Pusher, error) {
		pool, ok := caps.Pools.CurrentPool()
		if !ok {
			return nil, nil, nil
		}
		return map[string]any{"name": pool.Name, "url": pool.URL, "workers": pool.Workers}, nil, nil
	})

	d.Register("deviceConfig", func(string, json.RawMessage) (any, Pusher, error) {
		slots := caps.Miner.Devices()
		out := make([]any, len(slots))
		for i, s := range slots {
			if s.Algorithm == "" {
				out[i] = "off"
			} else {
				out[i] = s.Algorithm
			}
		}
		return out, nil, nil
	})

	d.Register("rejectReason", func(string, json.RawMessage) (any, Pusher, error) {
		slots := caps.Miner.Devices()
		out := make([]any, len(slots))
		for i, s := range slots {
			if s.Algorithm == "" {
				out[i] = s.Reasons
			} else {
				out[i] = nil
			}
		}
		return out, nil, nil
	})

	d.Register("configInfo", func(string, json.RawMessage) (any, Pusher, error) {
		return []any{}, nil, nil // populated once algorithm settings-introspection lands
	})

	d.Register("scanTime", func(client string, json.RawMessage) (any, Pusher, error) {
		build, pusher := scanTimeSnapshot(caps.Performance)
		return build, pusher, nil
	})

	d.Register("deviceShares", func(client string, params json.RawMessage) (any, Pusher, error) {
		return deviceSharesSnapshot(caps.Shares, params)
	})

	d.Register("poolShares", func(client string, json.RawMessage) (any, Pusher, error) {
		build, pusher := poolSharesSnapshot(caps.Shares)
		return build, pusher, nil
	})

	d.Register("poolStats", func(client string, json.RawMessage) (any, Pusher, error) {
		build, pusher := poolStatsSnapshot(caps.Shares)
		return build, pusher, nil
	})

	d.Register("uptime", func(string, json.RawMessage) (any, Pusher, error) {
		program, hashing, nonce := caps.Uptime.StartedAt()
		build := map[string]any{}
		if !program.IsZero() {
			build["program"] = program.Unix()
		}
		if !hashing.IsZero() {
			build["hashing"] = hashing.Unix()
		}
		if !nonce.IsZero() {
			build["nonce"] = nonce.Unix()
		}
		return build, nil, nil
	})

	d.Register("version", func(string, json.RawMessage) (any, Pusher, error) {
		return map[string]any{
			"protocol": caps.Build.Protocol,
			"build":    map[string]string{"date": caps.Build.Date, "time": caps.Build.Time, "msg": caps.Build.Message},
		}, nil, nil
	})

	d.Register("extensionList", func(string, json.RawMessage) (any, Pusher, error) {
		list := caps.Extensions.List()
		out := make([]string, 0, len(list))
		for _, s := range list {
			if s.Description != "" {
				out = append(out, s.Description)
			}
		}
		return out, nil, nil
	})

	d.Register("upgrade", func(string, params json.RawMessage) (any, Pusher, error) {
		return handleUpgrade(caps.Extensions, params)
	})
}

// RegisterAdminCommands additionally wires the configuration-management
// commands only meant for the admin service.
func RegisterAdminCommands(d *Dispatcher, caps Capabilities) {
	if caps.Config == nil {
		return
	}

	d.Register("configFile", func(string, json.RawMessage) (any, Pusher, error) {
		return map[string]any{
			"filename":   caps.Config.Filename(),
			"explicit":   caps.Config.Explicit(),
			"redirected": caps.Config.Redirected(),
			"valid":      caps.Config.Valid(),
		}, nil, nil
	})

	d.Register("getRawConfig", func(string, json.RawMessage) (any, Pusher, error) {
		raw, errs, err := caps.Config.RawConfig()
		if err != nil {
			return nil, nil, err
		}
		build := map[string]any{"configuration": json.RawMessage(raw)}
		if len(errs) > 0 {
			build["errors"] = errs
		}
		return build, nil, nil
	})

	d.Register("saveRawConfig", func(client string, params json.RawMessage) (any, Pusher, error) {
		var body struct {
			Destination   string          `json:"destination"`
			Configuration json.RawMessage `json:"configuration"`
		}
		if err := json.Unmarshal(params, &body); err != nil || body.Configuration == nil {
			return nil, nil, errors.New("\"saveRawConfig\", .parameters.configuration missing or not an object")
		}
		if err := caps.Config.SaveRawConfig(body.Destination, body.Configuration); err != nil {
			return nil, nil, err
		}
		return true, nil, nil
	})

	d.Register("reload", func(string, json.RawMessage) (any, Pusher, error) {
		return caps.Config.Reload(), nil, nil
	})
}

func handleUpgrade(ext ExtensionRegistry, params json.RawMessage) (any, Pusher, error) {
	var body struct {
		Mode string   `json:"mode"`
		List []string `json:"list"`
	}
	if err := json.Unmarshal(params, &body); err != nil {
		return nil, nil, errors.New("\"upgrade\", parameters must be object with mode/list")
	}
	switch body.Mode {
	case "query":
		list := ext.List()
		build := make(map[string]bool, len(body.List))
		for _, name := range body.List {
			_, ok := list[name]
			build[name] = ok
		}
		return build, nil, nil
	case "enable":
		for _, name := range body.List {
			ext.Enable(name)
		}
		return true, nil, nil
	default:
		return nil, nil, errors.New("\"upgrade\", parameters.mode unrecognized value")
	}
}
