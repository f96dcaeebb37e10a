//go:build tools

// Command validate-config checks a supervisor configuration file for
// correctness without starting the process.
package main

import (
	"flag"
	"fmt"
	"os"

	"m8msupervisor/internal/config"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (default: search paths)")
	flag.Parse()

	fmt.Println("Validating supervisor configuration")
	fmt.Println("====================================")
	fmt.Println()

	if !validate(*configPath) {
		os.Exit(1)
	}
}

func validate(configPath string) bool {
	if configPath == "" {
		fmt.Println("File: (searching ./supervisor-config.json, ~/.m8msupervisor, /etc/m8msupervisor)")
	} else {
		fmt.Printf("File: %s\n", configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Println("Status: INVALID")
		fmt.Printf("Error: %v\n", err)
		return false
	}

	fmt.Println("Status: VALID")
	fmt.Println()
	fmt.Println("Effective configuration:")
	fmt.Printf("  Algorithm:            %s\n", cfg.Algo)
	fmt.Printf("  Pools:                %d\n", len(cfg.Pools))
	for _, p := range cfg.Pools {
		fmt.Printf("    - %-12s %s:%d  diff_mode=%-10s merkle_mode=%-14s workers=%d\n",
			p.Name, p.Host, p.Port, p.DiffMode, p.MerkleMode, len(p.Workers))
	}
	fmt.Printf("  Monitor Port:         %d\n", cfg.Monitor.Port)
	fmt.Printf("  Admin Port:           %d\n", cfg.Admin.Port)
	fmt.Printf("  Poll Period:          %v\n", cfg.PollPeriod)
	fmt.Printf("  Inactivity Ceiling:   %v\n", cfg.EffectiveInactivityCeiling())
	fmt.Printf("  Reconnect Backoff:    %v\n", cfg.ReconnectBackoff)
	fmt.Printf("  Debug:                %t\n", cfg.Debug)
	fmt.Printf("  Logging:              level=%s format=%s quiet=%t verbose=%t\n",
		cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Quiet, cfg.Logging.Verbose)

	return true
}
