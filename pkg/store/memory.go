package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/identitylab/fedsync/pkg/identity"
)

// Memory is an in-process Store used in tests and single-node deployments.
// All methods are safe for concurrent use.
type Memory struct {
	mu sync.RWMutex

	nextUserID int64
	nextRefID  int64

	users map[int64]identity.User
	refs  map[int64]identity.SourceRef
	// refKeys indexes refs by (source name, login).
	refKeys map[string]int64

	refAttrs  map[int64]map[string]string
	userAttrs map[int64]map[string]string

	definitions map[string]identity.AttributeDefinition
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		users:       make(map[int64]identity.User),
		refs:        make(map[int64]identity.SourceRef),
		refKeys:     make(map[string]int64),
		refAttrs:    make(map[int64]map[string]string),
		userAttrs:   make(map[int64]map[string]string),
		definitions: make(map[string]identity.AttributeDefinition),
	}
}

func refKey(sourceName, login string) string {
	return sourceName + "\x00" + login
}

// CreateUser implements UserStore.
func (m *Memory) CreateUser(_ context.Context, user identity.User) (identity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUserID++
	user.ID = m.nextUserID
	m.users[user.ID] = user
	return user, nil
}

// UpdateUser implements UserStore.
func (m *Memory) UpdateUser(_ context.Context, user identity.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return fmt.Errorf("update user %d: %w", user.ID, ErrUserNotFound)
	}
	m.users[user.ID] = user
	return nil
}

// User returns a user by ID; used by tests.
func (m *Memory) User(_ context.Context, id int64) (identity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return identity.User{}, ErrUserNotFound
	}
	return user, nil
}

// UserByRef implements UserStore.
func (m *Memory) UserByRef(_ context.Context, sourceName, login string) (identity.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refID, ok := m.refKeys[refKey(sourceName, login)]
	if !ok {
		return identity.User{}, ErrUserNotFound
	}
	ref := m.refs[refID]
	user, ok := m.users[ref.UserID]
	if !ok {
		return identity.User{}, ErrUserNotFound
	}
	return user, nil
}

// RefByLogin implements RefStore.
func (m *Memory) RefByLogin(_ context.Context, sourceName, login string) (identity.SourceRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	refID, ok := m.refKeys[refKey(sourceName, login)]
	if !ok {
		return identity.SourceRef{}, ErrRefNotFound
	}
	return m.refs[refID], nil
}

// RefsOfUser implements RefStore.
func (m *Memory) RefsOfUser(_ context.Context, userID int64) ([]identity.SourceRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var refs []identity.SourceRef
	for _, ref := range m.refs {
		if ref.UserID == userID {
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

// AddRef implements RefStore.
func (m *Memory) AddRef(_ context.Context, userID int64, ref identity.SourceRef) (identity.SourceRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := refKey(ref.Source.Name, ref.Login)
	if _, ok := m.refKeys[key]; ok {
		return identity.SourceRef{}, fmt.Errorf("ref %s/%s: %w", ref.Source.Name, ref.Login, ErrRefExists)
	}
	m.nextRefID++
	ref.ID = m.nextRefID
	ref.UserID = userID
	m.refs[ref.ID] = ref
	m.refKeys[key] = ref.ID
	return ref, nil
}

// UpdateRef implements RefStore.
func (m *Memory) UpdateRef(_ context.Context, ref identity.SourceRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.refs[ref.ID]
	if !ok {
		return fmt.Errorf("update ref %d: %w", ref.ID, ErrRefNotFound)
	}
	existing.LoA = ref.LoA
	m.refs[ref.ID] = existing
	return nil
}

// RefAttribute implements AttributeStore.
func (m *Memory) RefAttribute(_ context.Context, refID int64, name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.refAttrs[refID][name]
	return value, ok, nil
}

// SetRefAttribute implements AttributeStore.
func (m *Memory) SetRefAttribute(_ context.Context, refID int64, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	attrs, ok := m.refAttrs[refID]
	if !ok {
		attrs = make(map[string]string)
		m.refAttrs[refID] = attrs
	}
	attrs[name] = value
	return nil
}

// DeleteRefAttribute implements AttributeStore.
func (m *Memory) DeleteRefAttribute(_ context.Context, refID int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.refAttrs[refID], name)
	return nil
}

// UserAttribute implements AttributeStore.
func (m *Memory) UserAttribute(_ context.Context, userID int64, name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.userAttrs[userID][name]
	return value, ok, nil
}

// SetUserAttribute implements AttributeStore.
func (m *Memory) SetUserAttribute(_ context.Context, userID int64, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	attrs, ok := m.userAttrs[userID]
	if !ok {
		attrs = make(map[string]string)
		m.userAttrs[userID] = attrs
	}
	attrs[name] = value
	return nil
}

// UserAttributes implements AttributeStore.
func (m *Memory) UserAttributes(_ context.Context, userID int64) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	attrs := make(map[string]string, len(m.userAttrs[userID]))
	for name, value := range m.userAttrs[userID] {
		attrs[name] = value
	}
	return attrs, nil
}

// RegisterDefinition adds an attribute definition to the store.
func (m *Memory) RegisterDefinition(def identity.AttributeDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[def.Name] = def
}

// AttributeDefinition implements identity.DefinitionSource.
func (m *Memory) AttributeDefinition(_ context.Context, name string) (identity.AttributeDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.definitions[name]
	if !ok {
		return identity.AttributeDefinition{}, fmt.Errorf("attribute %q: %w", name, identity.ErrDefinitionNotFound)
	}
	return def, nil
}
