// Package config loads, normalizes, and validates kiln's TOML configuration.
//
// Config covers the paths the helper constrains tool execution to (tool
// directory, scratch directory), the helper socket and its peer policy, burn
// workflow options, and logging. Load applies defaults, expands ~ and
// relative paths, and rejects unusable values before any component starts.
package config
