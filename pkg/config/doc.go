// Package config loads the engine configuration from environment variables
// and the per-source synchronization settings (overwrite lists, synchronized
// attribute lists, namespace hooks) from a YAML file that can be reloaded at
// runtime.
package config
