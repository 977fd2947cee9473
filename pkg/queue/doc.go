// Package queue implements the deduplicating producer/consumer pool of
// identity candidates awaiting synchronization. A candidate is either
// waiting or running, never both, and never present twice; this is what
// guarantees one identity is synchronized by at most one worker at a time.
package queue
