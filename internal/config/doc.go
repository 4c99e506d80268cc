// Package config loads the server's runtime configuration from multiple sources
// (YAML files, environment variables, CLI flags) with precedence: CLI flags >
// YAML config > Environment variables > Defaults. It exposes strongly typed
// settings such as the listen port and the store's backing file.
package config
