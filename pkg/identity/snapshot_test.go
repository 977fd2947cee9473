package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotFromCandidate(t *testing.T) {
	cand := &Candidate{
		FirstName: "Jane",
		LastName:  "Doe",
		Attributes: map[string]string{
			"mail": "jane@example.org",
		},
	}
	snap := SnapshotFromCandidate(cand)

	first, ok := snap.First(CoreFirstName)
	require.True(t, ok)
	assert.Equal(t, "Jane", first)

	mail, ok := snap.First("mail")
	require.True(t, ok)
	assert.Equal(t, "jane@example.org", mail)

	assert.Equal(t, []string{"mail"}, snap.Names(), "core fields are not ordinary attribute names")

	_, ok = snap.First(CoreMiddleName)
	assert.False(t, ok, "empty name fields are left out of the snapshot")
}

func TestSnapshotFromEmptyCandidate(t *testing.T) {
	snap := SnapshotFromCandidate(&Candidate{ID: "bare"})
	assert.Empty(t, snap)
}

func TestSnapshotRoundTrip(t *testing.T) {
	snap := Snapshot{"mail": {"a@b"}, CoreLastName: {"Doe"}}
	encoded, err := snap.Encode()
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(encoded)
	require.NoError(t, err)
	assert.Equal(t, snap, decoded)
}

func TestDecodeSnapshotEmpty(t *testing.T) {
	snap, err := DecodeSnapshot("")
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestCandidateKey(t *testing.T) {
	ref := &SourceRef{Source: Source{Name: "idp.example.org"}, Login: "jane"}
	withRef := &Candidate{ID: "c1", PrimaryRef: ref}
	sameRef := &Candidate{ID: "c2", PrimaryRef: ref}
	assert.Equal(t, withRef.Key(), sameRef.Key(), "candidates sharing a primary ref are equal")

	noRef := &Candidate{ID: "c1"}
	assert.NotEqual(t, withRef.Key(), noRef.Key())
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "Jane", NormalizeName("  Jane "))
	assert.Equal(t, "", NormalizeName("   "))
}
