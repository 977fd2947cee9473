// Package store defines the narrow persistence interfaces the
// synchronization engine consumes. Users, source refs and attribute values
// are owned and concurrency-controlled by the surrounding platform; the
// engine only assumes attribute-level last-writer-wins semantics with no
// transaction spanning a whole synchronization attempt.
package store
