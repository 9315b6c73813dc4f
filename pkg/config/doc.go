// Package config provides configuration management for Ganymede.
//
// This package handles loading and validating the declarative configuration
// file describing the deployment catalog (models and applications), inbound
// API keys, and permission roles, plus the operational settings for the
// HTTP server, relay engine, auditing, and telemetry.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// Environment variables follow the naming convention GANYMEDE_SECTION_FIELD
// (e.g., GANYMEDE_SERVER_LISTEN_ADDRESS) and only cover operational
// settings; the deployment catalog, keys, and roles always come from the
// file.
//
// # The Store
//
// After loading, config.NewStore builds an immutable snapshot of the
// catalog, keys, and roles. The store is constructed once at process
// startup, passed explicitly to every component that needs it, and never
// mutated, so concurrent request handlers share it without locking. There is
// no reload mechanism; changing the catalog requires a restart.
package config
