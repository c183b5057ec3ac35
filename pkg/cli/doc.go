// Package cli provides common utilities for the voicecoach command-line
// tool.
//
// This package includes:
//   - Configuration management (named server/credential contexts)
//   - Output formatting (JSON, YAML, raw, optional jq filtering)
//   - Request file loading (YAML/JSON)
//   - Terminal UI components for the live admin dashboard
//
// Configuration is stored in ~/.voicecoach/<app>/ directory, supporting
// multiple contexts similar to kubectl.
//
// Example usage:
//
//	// Initialize config for your app
//	cfg, err := cli.LoadConfig("voicecoach")
//
//	// Get current context
//	ctx, err := cfg.GetCurrentContext()
//
//	// Output result
//	cli.Output(result, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	    File:   outputPath,
//	})
package cli
