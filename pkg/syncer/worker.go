package syncer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/identitylab/fedsync/pkg/events"
	"github.com/identitylab/fedsync/pkg/identity"
	"github.com/identitylab/fedsync/pkg/store"
)

// workerHandle tracks one long-lived worker goroutine for the supervisor.
type workerHandle struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	// startedAt holds the UnixNano start time of the job in flight, 0 while
	// the worker is idle. Written by the worker, read by the supervisor.
	startedAt atomic.Int64
}

// runWorker is the worker loop: take a candidate, synchronize it, record
// the outcome, release the queue slot, repeat until cancelled.
func (s *Service) runWorker(ctx context.Context, h *workerHandle) {
	defer close(h.done)
	log := s.log.WithField("worker", h.id)
	log.Debug("worker started")

	for {
		cand, err := s.queue.Take(ctx)
		if err != nil {
			log.WithError(err).Debug("worker stopping")
			return
		}
		h.startedAt.Store(time.Now().UnixNano())
		s.updateQueueGauges()
		s.syncOne(ctx, log, cand)
		h.startedAt.Store(0)
	}
}

// syncOne runs one synchronization attempt end to end. The attempt itself
// may fail or be cancelled; the outcome record and the queue slot release
// must still happen, so they run on a context detached from cancellation.
func (s *Service) syncOne(ctx context.Context, log *logrus.Entry, cand *identity.Candidate) {
	started := time.Now()
	log = log.WithField("candidate", cand.Key())

	var syncErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				syncErr = fmt.Errorf("panic during synchronization: %v", r)
				log.WithField("stack", string(debug.Stack())).Error(syncErr)
			}
		}()
		syncErr = s.synchronize(ctx, cand)
	}()

	outcomeCtx := context.WithoutCancel(ctx)
	if err := s.recordOutcome(outcomeCtx, cand, syncErr); err != nil {
		log.WithError(err).Error("failed to record synchronization outcome")
	}
	if err := s.queue.Remove(cand); err != nil {
		log.WithError(err).Error("failed to release queue slot")
	}
	s.updateQueueGauges()

	result := "success"
	if syncErr != nil {
		result = "failure"
		log.WithError(syncErr).Warn("synchronization failed")
	} else {
		log.WithField("duration", time.Since(started)).Debug("synchronization finished")
	}
	if s.metrics != nil {
		s.metrics.SyncOutcomes.WithLabelValues(result).Inc()
	}
	s.publishOutcome(outcomeCtx, cand, syncErr)
}

func (s *Service) publishOutcome(ctx context.Context, cand *identity.Candidate, syncErr error) {
	if s.publisher == nil {
		return
	}
	outcome := events.Outcome{
		ID:          uuid.NewString(),
		CandidateID: cand.ID,
		Success:     syncErr == nil,
		Timestamp:   time.Now().UTC(),
	}
	if cand.PrimaryRef != nil {
		outcome.SourceName = cand.PrimaryRef.Source.Name
		outcome.Login = cand.PrimaryRef.Login
	}
	if syncErr != nil {
		outcome.Message = syncErr.Error()
	}
	if err := s.publisher.Publish(ctx, outcome); err != nil {
		s.log.WithError(err).Warn("failed to publish outcome event")
	}
}

// synchronize applies one candidate: resolve or create the canonical user,
// upsert every source ref with its level of assurance, capture the snapshot
// on each ref, then reconcile the user's attributes.
func (s *Service) synchronize(ctx context.Context, cand *identity.Candidate) error {
	user, created, err := s.resolveUser(ctx, cand)
	if err != nil {
		return err
	}
	if created {
		s.log.WithFields(logrus.Fields{
			"user":      user.ID,
			"candidate": cand.Key(),
		}).Info("canonical user created")
	}

	snap := identity.SnapshotFromCandidate(cand)
	encoded, err := snap.Encode()
	if err != nil {
		return err
	}

	for _, candRef := range cand.Refs {
		ref, err := s.upsertRef(ctx, user, candRef)
		if err != nil {
			return err
		}
		if err := s.store.SetRefAttribute(ctx, ref.ID, attrSnapshot, encoded); err != nil {
			return fmt.Errorf("store snapshot on ref %d: %w", ref.ID, err)
		}
		if _, err := s.AssignLowestPriorityIfUnset(ctx, user, ref); err != nil {
			return err
		}
	}

	if cand.PrimaryRef == nil {
		return nil
	}
	return s.reconcileUser(ctx, user)
}

// resolveUser finds the user owning the candidate's primary ref, creating a
// fresh one when no such user exists yet. The boolean reports creation.
func (s *Service) resolveUser(ctx context.Context, cand *identity.Candidate) (identity.User, bool, error) {
	if cand.PrimaryRef != nil {
		user, err := s.store.UserByRef(ctx, cand.PrimaryRef.Source.Name, cand.PrimaryRef.Login)
		switch {
		case err == nil:
			return user, false, nil
		case errors.Is(err, store.ErrUserNotFound):
			// Fall through to creation.
		default:
			return identity.User{}, false, fmt.Errorf("resolve user for %s: %w", cand.PrimaryRef.Key(), err)
		}
	}
	user, err := s.createUser(ctx, cand)
	return user, err == nil, err
}

// createUser stores a new canonical user from the candidate's name fields
// and links it to the internal source under its own user ID as login.
func (s *Service) createUser(ctx context.Context, cand *identity.Candidate) (identity.User, error) {
	user := identity.User{
		FirstName:   identity.NormalizeName(cand.FirstName),
		MiddleName:  identity.NormalizeName(cand.MiddleName),
		LastName:    identity.NormalizeName(cand.LastName),
		TitleBefore: identity.NormalizeName(cand.TitleBefore),
		TitleAfter:  identity.NormalizeName(cand.TitleAfter),
	}
	user, err := s.store.CreateUser(ctx, user)
	if err != nil {
		return identity.User{}, fmt.Errorf("create user: %w", err)
	}

	internal := identity.SourceRef{
		Source: identity.Source{Name: identity.InternalSourceName, Type: identity.SourceTypeInternal},
		Login:  strconv.FormatInt(user.ID, 10),
	}
	ref, err := s.store.AddRef(ctx, user.ID, internal)
	if err != nil {
		return identity.User{}, fmt.Errorf("link internal source to user %d: %w", user.ID, err)
	}
	// The internal ref never carries a snapshot and never wins
	// reconciliation; its priority stays at the unset marker.
	if err := s.store.SetRefAttribute(ctx, ref.ID, attrPriority, strconv.Itoa(PriorityUnset)); err != nil {
		return identity.User{}, fmt.Errorf("mark internal ref of user %d: %w", user.ID, err)
	}
	return user, nil
}

// upsertRef binds the candidate's ref to the user, or refreshes the level
// of assurance when the ref already exists. A ref owned by a different user
// is a consistency violation.
func (s *Service) upsertRef(ctx context.Context, user identity.User, candRef identity.SourceRef) (identity.SourceRef, error) {
	existing, err := s.store.RefByLogin(ctx, candRef.Source.Name, candRef.Login)
	switch {
	case errors.Is(err, store.ErrRefNotFound):
		added, err := s.store.AddRef(ctx, user.ID, candRef)
		if err != nil {
			if errors.Is(err, store.ErrRefExists) {
				return identity.SourceRef{}, consistencyErrorf(
					"ref %s appeared concurrently during synchronization of user %d", candRef.Key(), user.ID)
			}
			return identity.SourceRef{}, fmt.Errorf("add ref %s to user %d: %w", candRef.Key(), user.ID, err)
		}
		s.log.WithFields(logrus.Fields{
			"user":   user.ID,
			"source": candRef.Source.Name,
			"login":  candRef.Login,
		}).Debug("source ref linked")
		return added, nil
	case err != nil:
		return identity.SourceRef{}, fmt.Errorf("look up ref %s: %w", candRef.Key(), err)
	}

	if existing.UserID != user.ID {
		return identity.SourceRef{}, consistencyErrorf(
			"ref %s belongs to user %d, expected user %d", candRef.Key(), existing.UserID, user.ID)
	}
	if existing.LoA != candRef.LoA {
		existing.LoA = candRef.LoA
		if err := s.store.UpdateRef(ctx, existing); err != nil {
			return identity.SourceRef{}, fmt.Errorf("update LoA of ref %d: %w", existing.ID, err)
		}
	}
	return existing, nil
}
