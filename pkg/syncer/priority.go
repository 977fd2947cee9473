package syncer

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/identitylab/fedsync/pkg/identity"
)

// PriorityUnset is the sentinel for a ref that has never been ranked.
// Assigned priorities are always positive; smaller means more trusted.
const PriorityUnset = 0

// Priority returns the ref's priority, or PriorityUnset when none has been
// assigned yet.
func (s *Service) Priority(ctx context.Context, ref identity.SourceRef) (int, error) {
	raw, ok, err := s.store.RefAttribute(ctx, ref.ID, attrPriority)
	if err != nil {
		return 0, fmt.Errorf("read priority of ref %d: %w", ref.ID, err)
	}
	if !ok || raw == "" {
		return PriorityUnset, nil
	}
	p, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("ref %d has malformed priority %q: %w", ref.ID, raw, err)
	}
	if p < 0 {
		return 0, fmt.Errorf("ref %d has negative priority %d", ref.ID, p)
	}
	return p, nil
}

// AssignLowestPriorityIfUnset ranks the ref below every already-ranked ref
// of the user. An already assigned priority is never changed, and no
// priority is assigned while the ref has no captured snapshot yet; both
// cases return the current value.
func (s *Service) AssignLowestPriorityIfUnset(ctx context.Context, user identity.User, ref identity.SourceRef) (int, error) {
	current, err := s.Priority(ctx, ref)
	if err != nil {
		return 0, err
	}
	if current != PriorityUnset {
		return current, nil
	}

	snap, err := s.refSnapshot(ctx, ref.ID)
	if err != nil {
		return 0, err
	}
	if len(snap) == 0 {
		return PriorityUnset, nil
	}

	refs, err := s.store.RefsOfUser(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("list refs of user %d: %w", user.ID, err)
	}
	lowest := 0
	for _, other := range refs {
		p, err := s.Priority(ctx, other)
		if err != nil {
			return 0, err
		}
		if p > lowest {
			lowest = p
		}
	}

	assigned := lowest + 1
	if err := s.store.SetRefAttribute(ctx, ref.ID, attrPriority, strconv.Itoa(assigned)); err != nil {
		return 0, fmt.Errorf("assign priority to ref %d: %w", ref.ID, err)
	}
	s.log.WithFields(logrus.Fields{
		"user":     user.ID,
		"ref":      ref.ID,
		"source":   ref.Source.Name,
		"priority": assigned,
	}).Debug("source ref ranked")
	return assigned, nil
}

// rankedRef is one ref of a user together with its priority and captured
// snapshot, loaded once per reconciliation pass.
type rankedRef struct {
	ref      identity.SourceRef
	priority int
	snap     identity.Snapshot
}

// rankedRefs loads every ref of the user with priority and snapshot,
// preserving the store's ascending ref-ID order.
func (s *Service) rankedRefs(ctx context.Context, userID int64) ([]rankedRef, error) {
	refs, err := s.store.RefsOfUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list refs of user %d: %w", userID, err)
	}
	ranked := make([]rankedRef, 0, len(refs))
	for _, ref := range refs {
		p, err := s.Priority(ctx, ref)
		if err != nil {
			return nil, err
		}
		snap, err := s.refSnapshot(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		ranked = append(ranked, rankedRef{ref: ref, priority: p, snap: snap})
	}
	return ranked, nil
}

// HighestPrioritySource returns the ref whose captured snapshot wins
// reconciliation for the user: the smallest positive priority among refs
// with a non-empty snapshot, ties broken by the lowest ref ID. The boolean
// is false when no ref qualifies.
func (s *Service) HighestPrioritySource(ctx context.Context, userID int64) (identity.SourceRef, identity.Snapshot, bool, error) {
	ranked, err := s.rankedRefs(ctx, userID)
	if err != nil {
		return identity.SourceRef{}, nil, false, err
	}
	winner := pickHighestPriority(ranked)
	if winner == nil {
		return identity.SourceRef{}, nil, false, nil
	}
	return winner.ref, winner.snap, true, nil
}

// pickHighestPriority selects the winning ref out of a ranked slice that is
// ordered by ascending ref ID, so the first hit at the best priority is the
// tie-break winner.
func pickHighestPriority(ranked []rankedRef) *rankedRef {
	best := math.MaxInt
	var winner *rankedRef
	for i := range ranked {
		r := &ranked[i]
		if r.priority <= PriorityUnset || r.priority >= best {
			continue
		}
		if len(r.snap) == 0 {
			continue
		}
		best = r.priority
		winner = r
	}
	return winner
}

func (s *Service) refSnapshot(ctx context.Context, refID int64) (identity.Snapshot, error) {
	raw, ok, err := s.store.RefAttribute(ctx, refID, attrSnapshot)
	if err != nil {
		return nil, fmt.Errorf("read snapshot of ref %d: %w", refID, err)
	}
	if !ok {
		return nil, nil
	}
	snap, err := identity.DecodeSnapshot(raw)
	if err != nil {
		return nil, fmt.Errorf("snapshot of ref %d: %w", refID, err)
	}
	return snap, nil
}
