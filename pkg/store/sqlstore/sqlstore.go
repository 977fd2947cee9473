package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver for embedded deployments

	"github.com/identitylab/fedsync/pkg/identity"
	"github.com/identitylab/fedsync/pkg/store"
)

// Store implements store.Store on database/sql. It speaks PostgreSQL in
// production and SQLite for embedded single-node deployments; the two only
// differ in placeholder syntax.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the database and verifies the connection.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == "postgres" {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(1 * time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	return &Store{db: db, driver: driver}, nil
}

// New wraps an existing database handle; used by tests.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies database reachability; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind converts ? placeholders to $n for the postgres driver.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CreateSchema creates the tables the engine persists into.
func (s *Store) CreateSchema(ctx context.Context) error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.driver == "postgres" {
		serial = "BIGSERIAL PRIMARY KEY"
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id ` + serial + `,
			first_name TEXT NOT NULL DEFAULT '',
			middle_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			title_before TEXT NOT NULL DEFAULT '',
			title_after TEXT NOT NULL DEFAULT '',
			service_user BOOLEAN NOT NULL DEFAULT FALSE,
			sponsored_user BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS source_refs (
			id ` + serial + `,
			source_name TEXT NOT NULL,
			source_type TEXT NOT NULL,
			login TEXT NOT NULL,
			loa INTEGER NOT NULL DEFAULT 0,
			user_id BIGINT NOT NULL REFERENCES users(id),
			UNIQUE (source_name, login)
		)`,
		`CREATE TABLE IF NOT EXISTS ref_attributes (
			ref_id BIGINT NOT NULL REFERENCES source_refs(id),
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (ref_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS user_attributes (
			user_id BIGINT NOT NULL REFERENCES users(id),
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (user_id, name)
		)`,
		`CREATE TABLE IF NOT EXISTS attribute_definitions (
			name TEXT PRIMARY KEY,
			kind TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// CreateUser implements store.UserStore.
func (s *Store) CreateUser(ctx context.Context, user identity.User) (identity.User, error) {
	if s.driver == "postgres" {
		err := s.db.QueryRowContext(ctx, s.rebind(`
			INSERT INTO users (first_name, middle_name, last_name, title_before, title_after, service_user, sponsored_user)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			user.FirstName, user.MiddleName, user.LastName, user.TitleBefore, user.TitleAfter, user.Service, user.Sponsored,
		).Scan(&user.ID)
		if err != nil {
			return identity.User{}, fmt.Errorf("create user: %w", err)
		}
		return user, nil
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (first_name, middle_name, last_name, title_before, title_after, service_user, sponsored_user)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.FirstName, user.MiddleName, user.LastName, user.TitleBefore, user.TitleAfter, user.Service, user.Sponsored,
	)
	if err != nil {
		return identity.User{}, fmt.Errorf("create user: %w", err)
	}
	user.ID, err = result.LastInsertId()
	if err != nil {
		return identity.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// UpdateUser implements store.UserStore.
func (s *Store) UpdateUser(ctx context.Context, user identity.User) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE users
		SET first_name = ?, middle_name = ?, last_name = ?, title_before = ?, title_after = ?, service_user = ?, sponsored_user = ?
		WHERE id = ?`),
		user.FirstName, user.MiddleName, user.LastName, user.TitleBefore, user.TitleAfter, user.Service, user.Sponsored, user.ID,
	)
	if err != nil {
		return fmt.Errorf("update user %d: %w", user.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user %d: %w", user.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update user %d: %w", user.ID, store.ErrUserNotFound)
	}
	return nil
}

// UserByRef implements store.UserStore.
func (s *Store) UserByRef(ctx context.Context, sourceName, login string) (identity.User, error) {
	var user identity.User
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT u.id, u.first_name, u.middle_name, u.last_name, u.title_before, u.title_after, u.service_user, u.sponsored_user
		FROM users u
		JOIN source_refs r ON r.user_id = u.id
		WHERE r.source_name = ? AND r.login = ?`),
		sourceName, login,
	).Scan(&user.ID, &user.FirstName, &user.MiddleName, &user.LastName, &user.TitleBefore, &user.TitleAfter, &user.Service, &user.Sponsored)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.User{}, store.ErrUserNotFound
	}
	if err != nil {
		return identity.User{}, fmt.Errorf("user by ref %s/%s: %w", sourceName, login, err)
	}
	return user, nil
}

// RefByLogin implements store.RefStore.
func (s *Store) RefByLogin(ctx context.Context, sourceName, login string) (identity.SourceRef, error) {
	var ref identity.SourceRef
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, source_name, source_type, login, loa, user_id
		FROM source_refs
		WHERE source_name = ? AND login = ?`),
		sourceName, login,
	).Scan(&ref.ID, &ref.Source.Name, &ref.Source.Type, &ref.Login, &ref.LoA, &ref.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.SourceRef{}, store.ErrRefNotFound
	}
	if err != nil {
		return identity.SourceRef{}, fmt.Errorf("ref by login %s/%s: %w", sourceName, login, err)
	}
	return ref, nil
}

// RefsOfUser implements store.RefStore.
func (s *Store) RefsOfUser(ctx context.Context, userID int64) ([]identity.SourceRef, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, source_name, source_type, login, loa, user_id
		FROM source_refs
		WHERE user_id = ?
		ORDER BY id`),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("refs of user %d: %w", userID, err)
	}
	defer rows.Close()

	var refs []identity.SourceRef
	for rows.Next() {
		var ref identity.SourceRef
		if err := rows.Scan(&ref.ID, &ref.Source.Name, &ref.Source.Type, &ref.Login, &ref.LoA, &ref.UserID); err != nil {
			return nil, fmt.Errorf("refs of user %d: %w", userID, err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// AddRef implements store.RefStore.
func (s *Store) AddRef(ctx context.Context, userID int64, ref identity.SourceRef) (identity.SourceRef, error) {
	if _, err := s.RefByLogin(ctx, ref.Source.Name, ref.Login); err == nil {
		return identity.SourceRef{}, fmt.Errorf("ref %s/%s: %w", ref.Source.Name, ref.Login, store.ErrRefExists)
	} else if !errors.Is(err, store.ErrRefNotFound) {
		return identity.SourceRef{}, err
	}

	ref.UserID = userID
	if s.driver == "postgres" {
		err := s.db.QueryRowContext(ctx, s.rebind(`
			INSERT INTO source_refs (source_name, source_type, login, loa, user_id)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id`),
			ref.Source.Name, ref.Source.Type, ref.Login, ref.LoA, userID,
		).Scan(&ref.ID)
		if err != nil {
			return identity.SourceRef{}, fmt.Errorf("add ref %s/%s: %w", ref.Source.Name, ref.Login, err)
		}
		return ref, nil
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO source_refs (source_name, source_type, login, loa, user_id)
		VALUES (?, ?, ?, ?, ?)`,
		ref.Source.Name, ref.Source.Type, ref.Login, ref.LoA, userID,
	)
	if err != nil {
		return identity.SourceRef{}, fmt.Errorf("add ref %s/%s: %w", ref.Source.Name, ref.Login, err)
	}
	ref.ID, err = result.LastInsertId()
	if err != nil {
		return identity.SourceRef{}, fmt.Errorf("add ref %s/%s: %w", ref.Source.Name, ref.Login, err)
	}
	return ref, nil
}

// UpdateRef implements store.RefStore.
func (s *Store) UpdateRef(ctx context.Context, ref identity.SourceRef) error {
	result, err := s.db.ExecContext(ctx, s.rebind(`UPDATE source_refs SET loa = ? WHERE id = ?`), ref.LoA, ref.ID)
	if err != nil {
		return fmt.Errorf("update ref %d: %w", ref.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ref %d: %w", ref.ID, err)
	}
	if affected == 0 {
		return fmt.Errorf("update ref %d: %w", ref.ID, store.ErrRefNotFound)
	}
	return nil
}

// RefAttribute implements store.AttributeStore.
func (s *Store) RefAttribute(ctx context.Context, refID int64, name string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT value FROM ref_attributes WHERE ref_id = ? AND name = ?`), refID, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ref attribute %d/%s: %w", refID, name, err)
	}
	return value, true, nil
}

// SetRefAttribute implements store.AttributeStore.
func (s *Store) SetRefAttribute(ctx context.Context, refID int64, name, value string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO ref_attributes (ref_id, name, value) VALUES (?, ?, ?)
		ON CONFLICT (ref_id, name) DO UPDATE SET value = excluded.value`),
		refID, name, value,
	)
	if err != nil {
		return fmt.Errorf("set ref attribute %d/%s: %w", refID, name, err)
	}
	return nil
}

// DeleteRefAttribute implements store.AttributeStore.
func (s *Store) DeleteRefAttribute(ctx context.Context, refID int64, name string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM ref_attributes WHERE ref_id = ? AND name = ?`), refID, name)
	if err != nil {
		return fmt.Errorf("delete ref attribute %d/%s: %w", refID, name, err)
	}
	return nil
}

// UserAttribute implements store.AttributeStore.
func (s *Store) UserAttribute(ctx context.Context, userID int64, name string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT value FROM user_attributes WHERE user_id = ? AND name = ?`), userID, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("user attribute %d/%s: %w", userID, name, err)
	}
	return value, true, nil
}

// SetUserAttribute implements store.AttributeStore.
func (s *Store) SetUserAttribute(ctx context.Context, userID int64, name, value string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO user_attributes (user_id, name, value) VALUES (?, ?, ?)
		ON CONFLICT (user_id, name) DO UPDATE SET value = excluded.value`),
		userID, name, value,
	)
	if err != nil {
		return fmt.Errorf("set user attribute %d/%s: %w", userID, name, err)
	}
	return nil
}

// UserAttributes implements store.AttributeStore.
func (s *Store) UserAttributes(ctx context.Context, userID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT name, value FROM user_attributes WHERE user_id = ?`), userID)
	if err != nil {
		return nil, fmt.Errorf("user attributes %d: %w", userID, err)
	}
	defer rows.Close()

	attrs := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("user attributes %d: %w", userID, err)
		}
		attrs[name] = value
	}
	return attrs, rows.Err()
}

// AttributeDefinition implements identity.DefinitionSource.
func (s *Store) AttributeDefinition(ctx context.Context, name string) (identity.AttributeDefinition, error) {
	var kind string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT kind FROM attribute_definitions WHERE name = ?`), name).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.AttributeDefinition{}, fmt.Errorf("attribute %q: %w", name, identity.ErrDefinitionNotFound)
	}
	if err != nil {
		return identity.AttributeDefinition{}, fmt.Errorf("attribute definition %q: %w", name, err)
	}
	valueKind, err := identity.ParseValueKind(kind)
	if err != nil {
		return identity.AttributeDefinition{}, fmt.Errorf("attribute definition %q: %w", name, err)
	}
	return identity.AttributeDefinition{Name: name, Kind: valueKind}, nil
}

// RegisterDefinition upserts an attribute definition.
func (s *Store) RegisterDefinition(ctx context.Context, def identity.AttributeDefinition) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO attribute_definitions (name, kind) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET kind = excluded.kind`),
		def.Name, def.Kind.String(),
	)
	if err != nil {
		return fmt.Errorf("register definition %q: %w", def.Name, err)
	}
	return nil
}
