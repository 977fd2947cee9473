package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/identitylab/fedsync/pkg/identity"
)

// reconcileUser recomputes the user's core fields and attributes from the
// captured snapshots of all its refs, honoring source priorities. Writes
// only happen when a computed value differs from the stored one.
func (s *Service) reconcileUser(ctx context.Context, user identity.User) error {
	ranked, err := s.rankedRefs(ctx, user.ID)
	if err != nil {
		return err
	}

	if err := s.reconcileCoreFields(ctx, user, ranked); err != nil {
		return err
	}

	names, err := s.reconcilableNames(ctx, user.ID, ranked)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.reconcileAttribute(ctx, user.ID, name, ranked); err != nil {
			return err
		}
	}
	return nil
}

// reconcileCoreFields overwrites the user's name fields and flags from the
// highest-priority snapshot.
func (s *Service) reconcileCoreFields(ctx context.Context, user identity.User, ranked []rankedRef) error {
	winner := pickHighestPriority(ranked)
	if winner == nil {
		return nil
	}

	changed := false
	applyName := func(target *string, attr string) {
		v, ok := winner.snap.First(attr)
		if !ok {
			return
		}
		v = identity.NormalizeName(v)
		if *target != v {
			*target = v
			changed = true
		}
	}
	applyName(&user.FirstName, identity.CoreFirstName)
	applyName(&user.MiddleName, identity.CoreMiddleName)
	applyName(&user.LastName, identity.CoreLastName)
	applyName(&user.TitleBefore, identity.CoreTitleBefore)
	applyName(&user.TitleAfter, identity.CoreTitleAfter)

	applyFlag := func(target *bool, attr string) {
		raw, ok := winner.snap.First(attr)
		if !ok {
			return
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return
		}
		if *target != v {
			*target = v
			changed = true
		}
	}
	applyFlag(&user.Service, identity.CoreService)
	applyFlag(&user.Sponsored, identity.CoreSponsored)

	if !changed {
		return nil
	}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("update core fields of user %d: %w", user.ID, err)
	}
	s.log.WithFields(logrus.Fields{
		"user":   user.ID,
		"source": winner.ref.Source.Name,
	}).Debug("core fields updated")
	return nil
}

// reconcilableNames is the union of the attribute names the user already
// owns and the names present in any ref snapshot, sorted for deterministic
// processing. Per-source attribute lists from the settings file filter what
// each source may contribute, but not what is reconsidered.
func (s *Service) reconcilableNames(ctx context.Context, userID int64, ranked []rankedRef) ([]string, error) {
	owned, err := s.store.UserAttributes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list attributes of user %d: %w", userID, err)
	}
	set := make(map[string]struct{}, len(owned))
	for name := range owned {
		set[name] = struct{}{}
	}
	for _, r := range ranked {
		for _, name := range r.snap.Names() {
			set[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// reconcileAttribute computes and stores the value of one attribute: the
// highest-priority source providing it wins, and for collection kinds the
// remaining sources' values are merged in unless the winning source lists
// the attribute for overwrite. A missing definition or an undecodable value
// skips the attribute without failing the attempt.
func (s *Service) reconcileAttribute(ctx context.Context, userID int64, name string, ranked []rankedRef) error {
	sources := s.sources.Current()

	winner, raw := pickAttributeWinner(ranked, name, sources.Synchronizes)
	if winner == nil {
		return nil
	}

	def, err := s.defs.Resolve(ctx, name)
	if err != nil {
		if errors.Is(err, identity.ErrDefinitionNotFound) {
			s.log.WithField("attribute", name).Warn("no definition for snapshot attribute, skipped")
			return nil
		}
		return fmt.Errorf("resolve definition of %s: %w", name, err)
	}

	value, err := identity.ParseValue(def.Kind, raw)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"attribute": name,
			"source":    winner.ref.Source.Name,
		}).WithError(err).Warn("attribute value rejected, skipped")
		return nil
	}

	if def.Kind != identity.KindScalar && !sources.OverwriteListed(winner.ref.Source.Name, name) {
		for i := range ranked {
			r := &ranked[i]
			if r == winner || !sources.Synchronizes(r.ref.Source.Name, name) {
				continue
			}
			otherRaw, ok := r.snap.First(name)
			if !ok {
				continue
			}
			other, err := identity.ParseValue(def.Kind, otherRaw)
			if err != nil {
				s.log.WithFields(logrus.Fields{
					"attribute": name,
					"source":    r.ref.Source.Name,
				}).WithError(err).Warn("attribute value rejected during merge, skipped")
				continue
			}
			value = value.Merge(other)
		}
	}

	currentRaw, owned, err := s.store.UserAttribute(ctx, userID, name)
	if err != nil {
		return fmt.Errorf("read attribute %s of user %d: %w", name, userID, err)
	}
	if owned {
		if current, err := identity.ParseValue(def.Kind, currentRaw); err == nil && current.Equal(value) {
			return nil
		}
	}
	if err := s.store.SetUserAttribute(ctx, userID, name, value.Encode()); err != nil {
		return fmt.Errorf("store attribute %s of user %d: %w", name, userID, err)
	}
	s.log.WithFields(logrus.Fields{
		"user":      userID,
		"attribute": name,
		"source":    winner.ref.Source.Name,
	}).Debug("attribute reconciled")
	return nil
}

// pickAttributeWinner finds the ranked ref whose snapshot supplies the
// attribute at the smallest positive priority, respecting the per-source
// synchronization filter. The slice is ordered by ascending ref ID, so ties
// keep the earliest ref.
func pickAttributeWinner(ranked []rankedRef, name string, synchronizes func(sourceName, attrName string) bool) (*rankedRef, string) {
	var winner *rankedRef
	var raw string
	for i := range ranked {
		r := &ranked[i]
		if r.priority <= PriorityUnset || (winner != nil && r.priority >= winner.priority) {
			continue
		}
		if !synchronizes(r.ref.Source.Name, name) {
			continue
		}
		v, ok := r.snap.First(name)
		if !ok {
			continue
		}
		winner, raw = r, v
	}
	return winner, raw
}
