// Package config handles configuration loading for chatgate.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//	$CHATGATE_CONFIG
//	$XDG_CONFIG_HOME/chatgate/chatgate.yaml
//	~/.config/chatgate/chatgate.yaml
//
// Secrets such as the Anthropic API key can be pulled from the environment
// with ${VAR_NAME} placeholders:
//
//	anthropic:
//	  api_key: "${ANTHROPIC_SECRET}"
//
// Duration fields (sessions.idle_timeout, sessions.sweep_interval) accept
// Go duration strings such as "30m" or "5m".
package config
