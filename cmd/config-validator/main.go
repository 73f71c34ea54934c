package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/MuhdNihalCY/wpdebuglog/internal/config"
	"github.com/MuhdNihalCY/wpdebuglog/internal/debuglog"
)

func main() {
	flag.Parse()

	if len(flag.Args()) < 1 {
		fmt.Println("Error: Config file path is required")
		fmt.Println("Usage: config-validator <config-file>")
		os.Exit(1)
	}
	configPath := flag.Args()[0]

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		fmt.Printf("Validation error: %v\n", err)
		os.Exit(1)
	}

	for _, warning := range checkEnvironment(cfg) {
		fmt.Printf("Warning: %s\n", warning)
	}

	fmt.Println("Configuration is valid!")
}

// checkEnvironment reports settings that are valid but will not behave as
// expected on this machine.
func checkEnvironment(cfg *config.Config) []string {
	var warnings []string

	if cfg.DebugLog.Enabled {
		l, err := debuglog.Open(cfg.DebugLog)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("debug log would run degraded: %v", err))
		} else {
			_ = l.Close()
		}
		if cfg.DebugLog.Retention.MaxFiles == 0 && cfg.DebugLog.Retention.MaxAge == "" {
			warnings = append(warnings, "no retention bounds; sealed files accumulate forever")
		}
	} else {
		warnings = append(warnings, "debug_log.enabled is false; nothing will be written")
	}

	if cfg.Admin.Enabled {
		if cfg.Admin.Host != "127.0.0.1" && cfg.Admin.Host != "localhost" && cfg.Admin.Host != "::1" {
			warnings = append(warnings, fmt.Sprintf("admin API listens on non-loopback host '%s'", cfg.Admin.Host))
		}
		if cfg.Admin.RateLimit == 0 {
			warnings = append(warnings, "admin.rate_limit is 0; POST /api/logs is unlimited")
		}
	}

	return warnings
}
