package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/99minutos/identity-service/internal/core/domain"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

const (
	selectUser = `
		SELECT id, username, email, password, roles
		FROM users
		WHERE email = $1 OR username = $1
		LIMIT 1`

	insertUser = `
		INSERT INTO users (username, email, password)
		VALUES ($1, $2, $3)
		RETURNING id`

	addRole = `
		UPDATE users
		SET roles = array_append(roles, $2::text)
		WHERE id = $1 AND NOT ($2::text = ANY(roles))`

	removeRole = `
		UPDATE users
		SET roles = CASE
			WHEN cardinality(array_remove(roles, $2::text)) = 0 THEN ARRAY['user']::text[]
			ELSE array_remove(roles, $2::text)
		END
		WHERE id = $1 AND $2::text = ANY(roles)`

	userExists = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
)

// UserRepository implements ports.UserRepository on PostgreSQL.
type UserRepository struct {
	db      *sql.DB
	timeout time.Duration
}

// NewUserRepository wraps db. timeout bounds each operation, including the
// wait for a pooled connection.
func NewUserRepository(db *sql.DB, timeout time.Duration) *UserRepository {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &UserRepository{db: db, timeout: timeout}
}

// withConn holds exactly one pooled connection for the duration of fn and
// always returns it to the pool.
func (r *UserRepository) withConn(ctx context.Context, op string, fn func(context.Context, *sql.Conn) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return domain.NewStorageError(op, fmt.Errorf("acquire connection: %w", err))
	}
	defer conn.Close()

	if err := fn(ctx, conn); err != nil {
		return storageErr(op, err)
	}
	return nil
}

// storageErr passes the explicit domain outcomes through and wraps the rest.
func storageErr(op string, err error) error {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrStorage):
		return err
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return domain.ErrUserExists
	}
	return domain.NewStorageError(op, err)
}

func (r *UserRepository) FindByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	creds, err := r.find(ctx, "find user", identifier)
	if err != nil {
		return nil, err
	}
	return &creds.User, nil
}

func (r *UserRepository) FindCredentials(ctx context.Context, identifier string) (*domain.UserCredentials, error) {
	return r.find(ctx, "find credentials", identifier)
}

func (r *UserRepository) find(ctx context.Context, op, identifier string) (*domain.UserCredentials, error) {
	var creds domain.UserCredentials
	err := r.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		var rawRoles []string
		err := conn.QueryRowContext(ctx, selectUser, identifier).Scan(
			&creds.ID,
			&creds.Username,
			&creds.Email,
			&creds.PasswordHash,
			pq.Array(&rawRoles),
		)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return err
		}

		roles, err := domain.ParseRoles(rawRoles)
		if err != nil {
			return domain.NewStorageError("decode roles", err)
		}
		creds.Roles = roles
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &creds, nil
}

func (r *UserRepository) Create(ctx context.Context, username, email, passwordHash string) (int64, error) {
	var id int64
	err := r.withConn(ctx, "insert user", func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, insertUser, username, email, passwordHash).Scan(&id)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *UserRepository) AddRole(ctx context.Context, userID int64, role domain.Role) error {
	return r.mutateRoles(ctx, "add role", addRole, userID, role)
}

func (r *UserRepository) RemoveRole(ctx context.Context, userID int64, role domain.Role) error {
	return r.mutateRoles(ctx, "remove role", removeRole, userID, role)
}

// mutateRoles runs a guarded single-row update. Zero affected rows means
// either a no-op or a missing user; the follow-up probe tells them apart.
func (r *UserRepository) mutateRoles(ctx context.Context, op, query string, userID int64, role domain.Role) error {
	return r.withConn(ctx, op, func(ctx context.Context, conn *sql.Conn) error {
		res, err := conn.ExecContext(ctx, query, userID, string(role))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}

		var exists bool
		if err := conn.QueryRowContext(ctx, userExists, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.ErrUserNotFound
		}
		return nil
	})
}
