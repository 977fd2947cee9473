package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/identitylab/fedsync/pkg/identity"
)

func TestMemoryUserLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	user, err := m.CreateUser(ctx, identity.User{FirstName: "Jane", LastName: "Doe"})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)

	user.LastName = "Smith"
	require.NoError(t, m.UpdateUser(ctx, user))

	got, err := m.User(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Smith", got.LastName)

	err = m.UpdateUser(ctx, identity.User{ID: 999})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryRefUniqueness(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	user, err := m.CreateUser(ctx, identity.User{})
	require.NoError(t, err)
	ref := identity.SourceRef{
		Source: identity.Source{Name: "idp", Type: identity.SourceTypeIdP},
		Login:  "jane",
	}
	_, err = m.AddRef(ctx, user.ID, ref)
	require.NoError(t, err)

	other, err := m.CreateUser(ctx, identity.User{})
	require.NoError(t, err)
	_, err = m.AddRef(ctx, other.ID, ref)
	assert.ErrorIs(t, err, ErrRefExists, "a (source, login) pair binds at most once system-wide")
}

func TestMemoryRefsOfUserOrderedByID(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	user, err := m.CreateUser(ctx, identity.User{})
	require.NoError(t, err)
	for _, login := range []string{"c", "a", "b"} {
		_, err := m.AddRef(ctx, user.ID, identity.SourceRef{
			Source: identity.Source{Name: "idp"},
			Login:  login,
		})
		require.NoError(t, err)
	}

	refs, err := m.RefsOfUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Less(t, refs[0].ID, refs[1].ID)
	assert.Less(t, refs[1].ID, refs[2].ID)
}

func TestMemoryUserByRef(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	user, err := m.CreateUser(ctx, identity.User{LastName: "Doe"})
	require.NoError(t, err)
	_, err = m.AddRef(ctx, user.ID, identity.SourceRef{
		Source: identity.Source{Name: "idp"},
		Login:  "jane",
	})
	require.NoError(t, err)

	got, err := m.UserByRef(ctx, "idp", "jane")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = m.UserByRef(ctx, "idp", "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryAttributes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	user, err := m.CreateUser(ctx, identity.User{})
	require.NoError(t, err)
	ref, err := m.AddRef(ctx, user.ID, identity.SourceRef{Source: identity.Source{Name: "idp"}, Login: "jane"})
	require.NoError(t, err)

	_, ok, err := m.RefAttribute(ctx, ref.ID, "priority")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SetRefAttribute(ctx, ref.ID, "priority", "1"))
	value, ok, err := m.RefAttribute(ctx, ref.ID, "priority")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", value)

	require.NoError(t, m.DeleteRefAttribute(ctx, ref.ID, "priority"))
	_, ok, err = m.RefAttribute(ctx, ref.ID, "priority")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SetUserAttribute(ctx, user.ID, "mail", "jane@example.org"))
	attrs, err := m.UserAttributes(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"mail": "jane@example.org"}, attrs)
}

func TestMemoryDefinitions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, err := m.AttributeDefinition(ctx, "mail")
	assert.ErrorIs(t, err, identity.ErrDefinitionNotFound)

	m.RegisterDefinition(identity.AttributeDefinition{Name: "mail", Kind: identity.KindScalar})
	def, err := m.AttributeDefinition(ctx, "mail")
	require.NoError(t, err)
	assert.Equal(t, identity.KindScalar, def.Kind)
}
