package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/identitylab/fedsync/pkg/identity"
)

// Outcome messages longer than this are truncated on the ref; the full
// text is always in the service log.
const maxOutcomeMessage = 1000

const truncationNotice = " ... message is too long, rest is in the service log."

// recordOutcome persists the result of one attempt on the candidate's
// primary ref: the attempt timestamp always, the success timestamp only on
// success, and the failure state attribute which is set on failure and
// removed on success. Candidates without a primary ref have nowhere to
// attach the record.
func (s *Service) recordOutcome(ctx context.Context, cand *identity.Candidate, syncErr error) error {
	if cand.PrimaryRef == nil {
		return nil
	}
	ref, err := s.store.RefByLogin(ctx, cand.PrimaryRef.Source.Name, cand.PrimaryRef.Login)
	if err != nil {
		return fmt.Errorf("resolve outcome ref %s: %w", cand.PrimaryRef.Key(), err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.store.SetRefAttribute(ctx, ref.ID, attrLastSyncTimestamp, now); err != nil {
		return fmt.Errorf("store attempt timestamp on ref %d: %w", ref.ID, err)
	}

	if syncErr == nil {
		if err := s.store.SetRefAttribute(ctx, ref.ID, attrLastSuccessTimestamp, now); err != nil {
			return fmt.Errorf("store success timestamp on ref %d: %w", ref.ID, err)
		}
		if err := s.store.DeleteRefAttribute(ctx, ref.ID, attrLastSyncState); err != nil {
			return fmt.Errorf("clear failure state on ref %d: %w", ref.ID, err)
		}
		return nil
	}

	msg := syncErr.Error()
	if msg == "" {
		msg = "Empty message."
	}
	if len(msg) > maxOutcomeMessage {
		msg = msg[:maxOutcomeMessage] + truncationNotice
	}
	if err := s.store.SetRefAttribute(ctx, ref.ID, attrLastSyncState, msg); err != nil {
		return fmt.Errorf("store failure state on ref %d: %w", ref.ID, err)
	}
	return nil
}
