// Package config provides configuration management for the application.
// This file prints the effective configuration at startup for operators.
package config

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// PrintStartupCheck prints a colored one-screen summary of the effective
// configuration. Secrets are masked; warnings flag settings that work but
// are probably not what a production operator wants.
func PrintStartupCheck(cfg *Config) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Println(strings.Repeat("─", 50))

	green.Printf("  ✓ server %s\n", cfg.Server.Address())
	green.Printf("  ✓ database %s\n", cfg.Database.URL)
	green.Printf("  ✓ queue %s (concurrency %d)\n", cfg.Queue.URL, cfg.Worker.Concurrency)

	if cfg.Host.BaseURL != "" {
		green.Printf("  ✓ host %s\n", cfg.Host.BaseURL)
	} else {
		green.Println("  ✓ host gitlab.com")
	}
	if cfg.Host.Token == "" {
		yellow.Println("  ⚠ HOST_TOKEN not set, host API calls will fail")
	} else {
		green.Printf("  ✓ host token %s\n", maskSecret(cfg.Host.Token))
	}
	if cfg.Host.WebhookSecret == "" {
		yellow.Println("  ⚠ HOST_WEBHOOK_SECRET not set, webhooks cannot authenticate")
	}

	if cfg.AI.Enabled {
		green.Printf("  ✓ ai enabled, key %s\n", maskSecret(cfg.AI.APIKey))
	} else {
		green.Println("  ✓ ai disabled")
	}

	if cfg.Server.APIToken == "" {
		yellow.Println("  ⚠ API_TOKEN not set, control API is unauthenticated")
	} else {
		green.Println("  ✓ control API auth enabled")
	}

	fmt.Println(strings.Repeat("─", 50))
}

// maskSecret keeps the first four characters of a secret visible.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", 8)
}
