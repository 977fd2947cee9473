package identity

import (
	"encoding/json"
	"fmt"
)

// Core attribute names carried inside snapshots. They mirror the candidate's
// name fields and user flags and are reconciled separately from ordinary
// attributes.
const (
	CoreFirstName   = "core:firstName"
	CoreMiddleName  = "core:middleName"
	CoreLastName    = "core:lastName"
	CoreTitleBefore = "core:titleBefore"
	CoreTitleAfter  = "core:titleAfter"
	CoreService     = "core:serviceUser"
	CoreSponsored   = "core:sponsoredUser"
)

// Snapshot is the attribute payload captured from an external source at the
// end of its last successful synchronization. Each attribute name maps to a
// list of string-encoded values; only the first entry is significant, the
// list form exists for wire compatibility with multi-valued collectors.
type Snapshot map[string][]string

// SnapshotFromCandidate builds the snapshot stored per ref from a
// candidate's attribute payload and name fields. Empty name fields are left
// out, so a candidate with no payload at all produces an empty snapshot and
// its ref stays unranked.
func SnapshotFromCandidate(c *Candidate) Snapshot {
	s := make(Snapshot, len(c.Attributes)+5)
	for name, value := range c.Attributes {
		s[name] = []string{value}
	}
	setCore := func(name, value string) {
		if v := NormalizeName(value); v != "" {
			s[name] = []string{v}
		}
	}
	setCore(CoreFirstName, c.FirstName)
	setCore(CoreMiddleName, c.MiddleName)
	setCore(CoreLastName, c.LastName)
	setCore(CoreTitleBefore, c.TitleBefore)
	setCore(CoreTitleAfter, c.TitleAfter)
	return s
}

// First returns the first stored value for the attribute name.
func (s Snapshot) First(name string) (string, bool) {
	values, ok := s[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// Names returns the attribute names present in the snapshot, excluding the
// core name fields.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		switch name {
		case CoreFirstName, CoreMiddleName, CoreLastName, CoreTitleBefore, CoreTitleAfter, CoreService, CoreSponsored:
			continue
		}
		names = append(names, name)
	}
	return names
}

// Encode renders the snapshot as JSON for attribute storage.
func (s Snapshot) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(b), nil
}

// DecodeSnapshot parses a stored snapshot value. An empty string decodes to
// nil, meaning no snapshot has been captured yet.
func DecodeSnapshot(raw string) (Snapshot, error) {
	if raw == "" {
		return nil, nil
	}
	var s Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}
