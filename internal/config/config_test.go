package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Pools: []PoolConfig{
			{
				Name: "pool1", Host: "stratum.example.com", Port: 3333, Algo: "sha256d",
				Workers:               []WorkerConfig{{Name: "worker1", Password: "x"}},
				DiffMode:              "btc",
				MerkleMode:            "SHA256D",
				DiffMultiplierOne:     1,
				DiffMultiplierShare:   1,
				DiffMultiplierStratum: 1,
			},
		},
		Monitor:           WSServiceConfig{Port: DefaultMonitorPort},
		Admin:             WSServiceConfig{Port: DefaultAdminPort},
		PollPeriod:        DefaultPollPeriod,
		InactivityCeiling: DefaultInactivityCeiling,
		ReconnectBackoff:  DefaultReconnectBackoff,
		Logging:           LoggingConfig{Level: "info", Format: "color"},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejectsSamePortForBothServices(t *testing.T) {
	cfg := validConfig()
	cfg.Admin.Port = cfg.Monitor.Port
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for colliding ports")
	}
}

func TestValidateRejectsDuplicatePoolNames(t *testing.T) {
	cfg := validConfig()
	cfg.Pools = append(cfg.Pools, cfg.Pools[0])
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for duplicate pool name")
	}
}

func TestValidateRejectsUnknownDiffMode(t *testing.T) {
	cfg := validConfig()
	cfg.Pools[0].DiffMode = "litecoin"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for unknown diff_mode")
	}
}

func TestValidateRejectsUnknownMerkleMode(t *testing.T) {
	cfg := validConfig()
	cfg.Pools[0].MerkleMode = "tripleSHA256"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for unknown merkle_mode")
	}
}

func TestValidateRejectsNonPositiveDiffMultiplier(t *testing.T) {
	cfg := validConfig()
	cfg.Pools[0].DiffMultiplierShare = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for non-positive diff multiplier")
	}
}

func TestValidateRejectsPoolWithNoWorkers(t *testing.T) {
	cfg := validConfig()
	cfg.Pools[0].Workers = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for pool with no workers")
	}
}

func TestValidateRejectsBadLoggingLevel(t *testing.T) {
	cfg := validConfig()
	cfg.Logging.Level = "shout"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for invalid logging level")
	}
}

func TestToStratumConvertsWorkersAndModes(t *testing.T) {
	cfg := validConfig()
	sp := cfg.Pools[0].ToStratum()
	if sp.Name != "pool1" || sp.Host != "stratum.example.com" || sp.Port != 3333 {
		t.Fatalf("ToStratum() identity fields = %+v", sp)
	}
	if len(sp.Workers) != 1 || sp.Workers[0].Name != "worker1" || sp.Workers[0].Password != "x" {
		t.Fatalf("ToStratum() workers = %+v", sp.Workers)
	}
}

func TestEffectiveInactivityCeilingHonorsDebugOverride(t *testing.T) {
	cfg := validConfig()
	cfg.Debug = true
	if got := cfg.EffectiveInactivityCeiling(); got != DefaultDebugInactivityCeiling {
		t.Fatalf("EffectiveInactivityCeiling() = %v, want %v", got, DefaultDebugInactivityCeiling)
	}

	cfg.InactivityCeiling = 7 * time.Second
	if got := cfg.EffectiveInactivityCeiling(); got != 7*time.Second {
		t.Fatalf("EffectiveInactivityCeiling() with explicit override = %v, want 7s", got)
	}
}

func TestLoadToleratesMissingConfigFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() = %v, want nil (defaults should satisfy Validate with no pools)", err)
	}
	if cfg.Monitor.Port != DefaultMonitorPort {
		t.Fatalf("Monitor.Port = %d, want default %d", cfg.Monitor.Port, DefaultMonitorPort)
	}
}
