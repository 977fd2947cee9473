package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/identitylab/fedsync/pkg/config"
	"github.com/identitylab/fedsync/pkg/identity"
	"github.com/identitylab/fedsync/pkg/observability"
	"github.com/identitylab/fedsync/pkg/store"
)

// Attribute names binding users to namespaces.
const (
	// loginAttrPrefix + namespace holds the user's login in that namespace.
	loginAttrPrefix = "login-namespace:"
	// altPasswordAttrPrefix + namespace holds the map of alternative
	// password descriptions to password IDs.
	altPasswordAttrPrefix = "altPasswords:"
)

// Options configures a Provisioner.
type Options struct {
	Store   store.Store
	Sources config.SourcesProvider
	// Modules maps namespace names to in-process implementations. A
	// namespace without a module uses the helper programs.
	Modules map[string]Module
	// HelperProgram manages primary passwords.
	HelperProgram string
	// AltHelperProgram manages alternative passwords.
	AltHelperProgram string
	// OperationTimeout bounds one helper invocation.
	OperationTimeout time.Duration
	Logger           *logrus.Logger
	Metrics          *observability.Metrics
}

// Provisioner manages credentials for canonical users across login
// namespaces.
type Provisioner struct {
	store     store.Store
	sources   config.SourcesProvider
	modules   map[string]Module
	helper    string
	altHelper string
	timeout   time.Duration
	log       *logrus.Logger
	metrics   *observability.Metrics
}

// New creates a Provisioner.
func New(opts Options) (*Provisioner, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Sources == nil {
		opts.Sources = config.Static{Sources: &config.Sources{}}
	}
	if opts.OperationTimeout <= 0 {
		opts.OperationTimeout = defaultTimeout
	}
	return &Provisioner{
		store:     opts.Store,
		sources:   opts.Sources,
		modules:   opts.Modules,
		helper:    opts.HelperProgram,
		altHelper: opts.AltHelperProgram,
		timeout:   opts.OperationTimeout,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// login resolves the user's login in the namespace from the user's
// attributes.
func (p *Provisioner) login(ctx context.Context, user identity.User, namespace string) (string, error) {
	raw, ok, err := p.store.UserAttribute(ctx, user.ID, loginAttrPrefix+namespace)
	if err != nil {
		return "", fmt.Errorf("read login of user %d in namespace %s: %w", user.ID, namespace, err)
	}
	if !ok || raw == "" {
		return "", &OpError{Kind: FailureLoginNotFound, Namespace: namespace,
			Detail: fmt.Sprintf("user %d has no login in namespace", user.ID)}
	}
	return raw, nil
}

func (p *Provisioner) count(operation string, err error) {
	if p.metrics == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	p.metrics.CredentialOps.WithLabelValues(operation, result).Inc()
}

// ReservePassword creates the user's credential entry in the namespace with
// the given password. The entry is not valid for login until validated.
func (p *Provisioner) ReservePassword(ctx context.Context, user identity.User, namespace, password string) (err error) {
	defer func() { p.count(opReserve, err) }()
	if password == "" {
		return ErrEmptyPassword
	}
	login, err := p.login(ctx, user, namespace)
	if err != nil {
		return err
	}
	if m, ok := p.modules[namespace]; ok {
		return m.ReservePassword(ctx, login, password)
	}
	_, err = p.runHelper(ctx, p.helper, []string{opReserve, namespace, login}, password)
	return classify(err, namespace, login)
}

// ReserveRandomPassword creates the user's credential entry with a backend
// generated password.
func (p *Provisioner) ReserveRandomPassword(ctx context.Context, user identity.User, namespace string) (err error) {
	defer func() { p.count(opReserveRandom, err) }()
	login, err := p.login(ctx, user, namespace)
	if err != nil {
		return err
	}
	if m, ok := p.modules[namespace]; ok {
		return m.ReserveRandomPassword(ctx, login)
	}
	_, err = p.runHelper(ctx, p.helper, []string{opReserveRandom, namespace, login}, "")
	return classify(err, namespace, login)
}

// ValidatePassword activates a previously reserved credential entry.
func (p *Provisioner) ValidatePassword(ctx context.Context, user identity.User, namespace string) (err error) {
	defer func() { p.count(opValidate, err) }()
	login, err := p.login(ctx, user, namespace)
	if err != nil {
		return err
	}
	if m, ok := p.modules[namespace]; ok {
		return m.ValidatePassword(ctx, login)
	}
	_, err = p.runHelper(ctx, p.helper, []string{opValidate, namespace, login}, "")
	return classify(err, namespace, login)
}

// CheckPassword verifies the password without changing anything.
func (p *Provisioner) CheckPassword(ctx context.Context, user identity.User, namespace, password string) (err error) {
	defer func() { p.count(opCheck, err) }()
	if password == "" {
		return ErrEmptyPassword
	}
	login, err := p.login(ctx, user, namespace)
	if err != nil {
		return err
	}
	return p.checkPassword(ctx, login, namespace, password)
}

func (p *Provisioner) checkPassword(ctx context.Context, login, namespace, password string) error {
	if m, ok := p.modules[namespace]; ok {
		return m.CheckPassword(ctx, login, password)
	}
	_, err := p.runHelper(ctx, p.helper, []string{opCheck, namespace, login}, password)
	return classify(err, namespace, login)
}

// ChangePassword sets a new password. With checkOld the current password is
// verified first and a mismatch aborts the change. After a successful
// change the namespace's post-change hooks run best-effort.
func (p *Provisioner) ChangePassword(ctx context.Context, user identity.User, namespace, oldPassword, newPassword string, checkOld bool) (err error) {
	defer func() { p.count(opChange, err) }()
	if newPassword == "" {
		return ErrEmptyPassword
	}
	login, err := p.login(ctx, user, namespace)
	if err != nil {
		return err
	}
	if checkOld {
		if oldPassword == "" {
			return ErrEmptyPassword
		}
		if err := p.checkPassword(ctx, login, namespace, oldPassword); err != nil {
			return err
		}
	}

	if m, ok := p.modules[namespace]; ok {
		err = m.ChangePassword(ctx, login, newPassword)
	} else {
		_, err = p.runHelper(ctx, p.helper, []string{opChange, namespace, login}, newPassword)
		err = classify(err, namespace, login)
	}
	if err != nil {
		return err
	}

	p.afterPasswordChange(ctx, user, namespace, login)
	return nil
}

// DeletePassword removes the user's credential entry in the namespace.
func (p *Provisioner) DeletePassword(ctx context.Context, user identity.User, namespace string) (err error) {
	defer func() { p.count(opDelete, err) }()
	login, err := p.login(ctx, user, namespace)
	if err != nil {
		return err
	}
	if m, ok := p.modules[namespace]; ok {
		return m.DeletePassword(ctx, login)
	}
	_, err = p.runHelper(ctx, p.helper, []string{opDelete, namespace, login}, "")
	return classify(err, namespace, login)
}

// afterPasswordChange runs the namespace's configured side effects: linking
// derived source identities and collecting login aliases. Failures are
// logged and never fail the password change that triggered them.
func (p *Provisioner) afterPasswordChange(ctx context.Context, user identity.User, namespace, login string) {
	settings, ok := p.sources.Current().Namespace(namespace)
	if !ok {
		return
	}
	log := p.log.WithFields(logrus.Fields{"user": user.ID, "namespace": namespace})

	var aliases []string
	for _, link := range settings.LinkSources {
		derived := login + link.Suffix
		aliases = append(aliases, derived)
		ref := identity.SourceRef{
			Source: identity.Source{Name: link.Source, Type: identity.SourceType(link.Type)},
			Login:  derived,
		}
		if _, err := p.store.AddRef(ctx, user.ID, ref); err != nil && !errors.Is(err, store.ErrRefExists) {
			log.WithError(err).WithField("source", link.Source).Warn("failed to link derived source identity")
		}
	}

	if settings.AliasAttribute == "" || len(aliases) == 0 {
		return
	}
	raw, _, err := p.store.UserAttribute(ctx, user.ID, settings.AliasAttribute)
	if err != nil {
		log.WithError(err).Warn("failed to read alias attribute")
		return
	}
	current, err := identity.ParseValue(identity.KindList, raw)
	if err != nil {
		log.WithError(err).Warn("alias attribute holds a malformed value")
		return
	}
	merged := current.Merge(identity.ListValue(aliases...))
	if merged.Equal(current) {
		return
	}
	if err := p.store.SetUserAttribute(ctx, user.ID, settings.AliasAttribute, merged.Encode()); err != nil {
		log.WithError(err).Warn("failed to store alias attribute")
	}
}
