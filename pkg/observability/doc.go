// Package observability provides the structured logger, Prometheus metrics
// and health handler shared by the daemon and the engine components.
package observability
