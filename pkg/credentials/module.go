package credentials

import "context"

// Module implements credential management for one login namespace inside
// the process, bypassing the helper program. Implementations return
// *OpError for classified failures.
type Module interface {
	// ReservePassword creates the credential entry with a caller-chosen
	// password, not yet valid for login.
	ReservePassword(ctx context.Context, login, password string) error
	// ReserveRandomPassword creates the credential entry with a backend
	// generated password.
	ReserveRandomPassword(ctx context.Context, login string) error
	// ValidatePassword activates a previously reserved credential.
	ValidatePassword(ctx context.Context, login string) error
	// CheckPassword verifies the password without changing anything.
	CheckPassword(ctx context.Context, login, password string) error
	// ChangePassword sets a new password.
	ChangePassword(ctx context.Context, login, password string) error
	// DeletePassword removes the credential entry.
	DeletePassword(ctx context.Context, login string) error
}
