// Package syncer implements the synchronization engine: a supervised pool
// of long-lived workers that take candidates from the queue, resolve or
// create the canonical user, reconcile external source links and merge
// attributes by source priority, then persist the attempt outcome.
package syncer
