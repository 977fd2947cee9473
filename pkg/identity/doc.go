// Package identity holds the core data model shared by the synchronization
// engine: candidates produced by upstream collectors, external source
// references, canonical users and the typed attribute values that are
// reconciled between sources.
package identity
