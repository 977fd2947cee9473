// Package events publishes synchronization outcome events to interested
// consumers. Publishing is best-effort: the durable record of an attempt is
// the outcome persisted on the source ref, events only exist for
// observability and downstream notification.
package events
