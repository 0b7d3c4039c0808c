package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/portalauth"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

const uniqueViolation = "23505"

var (
	// ErrDuplicate is returned by Create for an identifier that already exists.
	ErrDuplicate = errors.New("pgstore: principal already exists")
	// ErrInvalidPrincipal is returned by Create for a record that cannot be stored.
	ErrInvalidPrincipal = errors.New("pgstore: invalid principal")
)

// Store is a PrincipalStore over the portal_principals table.
type Store struct {
	db *sql.DB
}

var _ portalauth.PrincipalStore = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects through the pgx database/sql driver and pings once.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	return db, nil
}

const selectPrincipal = `SELECT identifier, password_hash, role, admin, two_factor_secret,
	two_factor_enabled, active, first_name, last_name, phone
FROM portal_principals WHERE identifier = $1`

// FindByIdentifier loads one principal. Identifiers are matched after
// trimming and lowercasing.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*portalauth.Principal, error) {
	var p portalauth.Principal
	err := s.db.QueryRowContext(ctx, selectPrincipal, normalize(identifier)).Scan(
		&p.Identifier,
		&p.PasswordHash,
		&p.Role,
		&p.Admin,
		&p.TwoFactorSecret,
		&p.TwoFactorEnabled,
		&p.Active,
		&p.FirstName,
		&p.LastName,
		&p.Phone,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, portalauth.ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pgstore: find principal: %w", err)
	}
	return &p, nil
}

// UpdatePasswordHash replaces the stored hash.
func (s *Store) UpdatePasswordHash(ctx context.Context, identifier, passwordHash string) error {
	return s.update(ctx, "update password hash",
		`UPDATE portal_principals SET password_hash = $2, updated_at = now() WHERE identifier = $1`,
		normalize(identifier), passwordHash)
}

// SetTwoFactor stores the TOTP secret and flag together. Disabling clears the
// secret.
func (s *Store) SetTwoFactor(ctx context.Context, identifier, secret string, enabled bool) error {
	if !enabled {
		secret = ""
	}
	return s.update(ctx, "set two factor",
		`UPDATE portal_principals SET two_factor_secret = $2, two_factor_enabled = $3, updated_at = now() WHERE identifier = $1`,
		normalize(identifier), secret, enabled)
}

// SetActive flips the activation flag.
func (s *Store) SetActive(ctx context.Context, identifier string, active bool) error {
	return s.update(ctx, "set active",
		`UPDATE portal_principals SET active = $2, updated_at = now() WHERE identifier = $1`,
		normalize(identifier), active)
}

// Create inserts a principal. It is used by the seed command and tests; the
// engine never creates principals.
func (s *Store) Create(ctx context.Context, p portalauth.Principal) error {
	p.Identifier = normalize(p.Identifier)
	if p.Identifier == "" || p.PasswordHash == "" {
		return ErrInvalidPrincipal
	}
	if p.TwoFactorEnabled && p.TwoFactorSecret == "" {
		return ErrInvalidPrincipal
	}
	if p.Role == "" {
		p.Role = "member"
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO portal_principals
	(identifier, password_hash, role, admin, two_factor_secret, two_factor_enabled, active, first_name, last_name, phone)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.Identifier, p.PasswordHash, p.Role, p.Admin, p.TwoFactorSecret,
		p.TwoFactorEnabled, p.Active, p.FirstName, p.LastName, p.Phone)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("pgstore: create principal: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) update(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("pgstore: %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgstore: %s: %w", op, err)
	}
	if n == 0 {
		return portalauth.ErrPrincipalNotFound
	}
	return nil
}

func normalize(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
