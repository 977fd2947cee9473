package credentials

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/identitylab/fedsync/pkg/identity"
)

// altPasswords reads the description-to-ID map of the user's alternative
// passwords in the namespace.
func (p *Provisioner) altPasswords(ctx context.Context, user identity.User, namespace string) (identity.Value, error) {
	raw, _, err := p.store.UserAttribute(ctx, user.ID, altPasswordAttrPrefix+namespace)
	if err != nil {
		return identity.Value{}, fmt.Errorf("read alternative passwords of user %d: %w", user.ID, err)
	}
	value, err := identity.ParseValue(identity.KindMap, raw)
	if err != nil {
		return identity.Value{}, fmt.Errorf("alternative passwords of user %d: %w", user.ID, err)
	}
	return value, nil
}

// CreateAlternativePassword registers an additional password for the user
// in the namespace under a unique description and returns its generated ID.
// The attribute entry is written before the backend is contacted so a
// half-failed creation is visible and removable.
func (p *Provisioner) CreateAlternativePassword(ctx context.Context, user identity.User, namespace, description, password string) (id string, err error) {
	defer func() { p.count("alt_"+opCreate, err) }()
	if password == "" {
		return "", ErrEmptyPassword
	}
	current, err := p.altPasswords(ctx, user, namespace)
	if err != nil {
		return "", err
	}
	entries := current.Map()
	if _, ok := entries[description]; ok {
		return "", fmt.Errorf("description %q for user %d in namespace %s: %w",
			description, user.ID, namespace, ErrDuplicateDescription)
	}

	id = uuid.NewString()
	entries[description] = id
	if err := p.store.SetUserAttribute(ctx, user.ID, altPasswordAttrPrefix+namespace,
		identity.MapValue(entries).Encode()); err != nil {
		return "", fmt.Errorf("store alternative password entry for user %d: %w", user.ID, err)
	}

	userID := strconv.FormatInt(user.ID, 10)
	_, err = p.runHelper(ctx, p.altHelper, []string{opCreate, namespace, userID, id}, password)
	if err = classify(err, namespace, userID); err != nil {
		return "", err
	}
	return id, nil
}

// DeleteAlternativePassword removes the alternative password with the given
// ID. An ID not present in the user's entries fails as a deletion error
// without contacting the backend.
func (p *Provisioner) DeleteAlternativePassword(ctx context.Context, user identity.User, namespace, id string) (err error) {
	defer func() { p.count("alt_"+opDelete, err) }()
	current, err := p.altPasswords(ctx, user, namespace)
	if err != nil {
		return err
	}
	entries := current.Map()
	description := ""
	found := false
	for desc, entryID := range entries {
		if entryID == id {
			description, found = desc, true
			break
		}
	}
	if !found {
		return &OpError{Kind: FailureDeletion, Namespace: namespace,
			Detail: fmt.Sprintf("no alternative password with ID %s for user %d", id, user.ID)}
	}

	userID := strconv.FormatInt(user.ID, 10)
	_, err = p.runHelper(ctx, p.altHelper, []string{opDelete, namespace, userID, id}, "")
	if err = classify(err, namespace, userID); err != nil {
		return err
	}

	delete(entries, description)
	if err := p.store.SetUserAttribute(ctx, user.ID, altPasswordAttrPrefix+namespace,
		identity.MapValue(entries).Encode()); err != nil {
		return fmt.Errorf("remove alternative password entry for user %d: %w", user.ID, err)
	}
	return nil
}
