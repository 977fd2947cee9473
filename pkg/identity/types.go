package identity

import "strings"

// SourceType categorizes an external identity source.
type SourceType string

const (
	SourceTypeIdP      SourceType = "idp"
	SourceTypeKerberos SourceType = "kerberos"
	SourceTypeLDAP     SourceType = "ldap"
	SourceTypeAD       SourceType = "ad"
	SourceTypeInternal SourceType = "internal"
)

// InternalSourceName is the source every canonical user is linked to at
// creation, independent of any external provider.
const InternalSourceName = "fedsync"

// Source identifies one upstream identity provider or directory.
type Source struct {
	Name string     `json:"name"`
	Type SourceType `json:"type"`
}

// SourceRef links a canonical user to one login at one external source.
// At most one SourceRef exists per (source name, login) pair system-wide.
type SourceRef struct {
	ID     int64  `json:"id"`
	Source Source `json:"source"`
	Login  string `json:"login"`
	// LoA is the level of assurance the source asserts for this login.
	LoA    int   `json:"loa"`
	UserID int64 `json:"user_id"`
}

// Key returns the system-wide uniqueness key of the ref.
func (r SourceRef) Key() string {
	return r.Source.Name + "\x00" + r.Login
}

// User is the durable canonical identity record.
type User struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name,omitempty"`
	MiddleName  string `json:"middle_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	TitleBefore string `json:"title_before,omitempty"`
	TitleAfter  string `json:"title_after,omitempty"`
	Service     bool   `json:"service,omitempty"`
	Sponsored   bool   `json:"sponsored,omitempty"`
}

// Candidate is an immutable proposed identity record produced by one
// synchronization pass of an upstream collector. It is never mutated after
// it has been enqueued.
type Candidate struct {
	ID          string            `json:"id"`
	FirstName   string            `json:"first_name,omitempty"`
	MiddleName  string            `json:"middle_name,omitempty"`
	LastName    string            `json:"last_name,omitempty"`
	TitleBefore string            `json:"title_before,omitempty"`
	TitleAfter  string            `json:"title_after,omitempty"`
	// Attributes maps attribute names to string-encoded values. The
	// encoding per name is fixed by the attribute definition registry.
	Attributes map[string]string `json:"attributes,omitempty"`
	// PrimaryRef is the external source reference that triggered this
	// candidate, if any. Two candidates with the same primary ref describe
	// the same identity and are deduplicated by the queue.
	PrimaryRef *SourceRef `json:"primary_ref,omitempty"`
	// Refs lists every external source reference known for this identity.
	Refs []SourceRef `json:"refs,omitempty"`
}

// Key returns the deduplication key of the candidate. Candidates sharing a
// primary ref are considered equal; a candidate without one is only ever
// equal to itself.
func (c *Candidate) Key() string {
	if c.PrimaryRef != nil {
		return c.PrimaryRef.Key()
	}
	return "candidate\x00" + c.ID
}

// NormalizeName trims surrounding whitespace from a name field and maps the
// empty result to the absent value.
func NormalizeName(s string) string {
	return strings.TrimSpace(s)
}
