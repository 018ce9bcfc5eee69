package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/99minutos/identity-system/internal/core/domain"
)

const userColumns = "id, username, email, password_hash, role, created_at, updated_at"

// UserRepository stores users in a SQL table. Unique indexes on username and
// email are the source of truth; the lookups inside each write transaction
// only produce the precise error early.
type UserRepository struct {
	db     *sql.DB
	driver Driver
}

func NewUserRepository(db *sql.DB, driver Driver) *UserRepository {
	return &UserRepository{db: db, driver: driver}
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	return r.inTx(ctx, "create user", func(tx *sql.Tx) error {
		if err := r.checkUnique(ctx, tx, user); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			user.ID.String(), user.Username, user.Email, user.PasswordHash,
			string(user.Role), toMillis(user.CreatedAt), toMillis(user.UpdatedAt),
		)
		if err != nil {
			return r.translate(err, "insert user")
		}
		return nil
	})
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	return r.inTx(ctx, "update user", func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id = ?`, user.ID.String()).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return r.translate(err, "load user")
		}

		if err := r.checkUnique(ctx, tx, user); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE users SET username = ?, email = ?, password_hash = ?, role = ?, updated_at = ? WHERE id = ?`,
			user.Username, user.Email, user.PasswordHash, string(user.Role),
			toMillis(user.UpdatedAt), user.ID.String(),
		)
		if err != nil {
			return r.translate(err, "update user")
		}
		return nil
	})
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id.String())
	if err != nil {
		return r.translate(err, "delete user")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return r.translate(err, "delete user")
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.findOne(ctx, "id", id.String())
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, "email", email)
}

// FindAll returns users ordered by creation time, then username.
func (r *UserRepository) FindAll(ctx context.Context) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, username`)
	if err != nil {
		return nil, r.translate(err, "list users")
	}
	defer rows.Close()

	users := make([]*domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			if errors.Is(err, domain.ErrRepository) {
				return nil, err
			}
			return nil, r.translate(err, "scan user")
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, r.translate(err, "list users")
	}
	return users, nil
}

func (r *UserRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// findOne looks a user up by column, which must be one of the fixed column
// names above.
func (r *UserRepository) findOne(ctx context.Context, column, value string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		if errors.Is(err, domain.ErrRepository) {
			return nil, err
		}
		return nil, r.translate(err, "find user by "+column)
	}
	return u, nil
}

// checkUnique rejects the write if another user already holds the username or
// email.
func (r *UserRepository) checkUnique(ctx context.Context, tx *sql.Tx, user *domain.User) error {
	checks := []struct {
		query string
		value string
		err   error
	}{
		{`SELECT id FROM users WHERE username = ? AND id <> ? LIMIT 1`, user.Username, domain.ErrUsernameTaken},
		{`SELECT id FROM users WHERE email = ? AND id <> ? LIMIT 1`, user.Email, domain.ErrEmailTaken},
	}
	for _, c := range checks {
		var other string
		err := tx.QueryRowContext(ctx, c.query, c.value, user.ID.String()).Scan(&other)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return r.translate(err, "check uniqueness")
		default:
			return c.err
		}
	}
	return nil
}

// inTx runs fn in a transaction. A commit failure goes through the same
// translation as statement failures, since some engines report constraint
// violations only at commit.
func (r *UserRepository) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return r.translate(err, op+": begin")
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return r.translate(err, op+": commit")
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*domain.User, error) {
	var (
		id, username, email, hash, role string
		createdAt, updatedAt            int64
	)
	if err := s.Scan(&id, &username, &email, &hash, &role, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: stored user id %q: %v", domain.ErrRepository, id, err)
	}
	parsedRole, err := domain.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("%w: stored role %q for user %s", domain.ErrRepository, role, id)
	}

	return &domain.User{
		ID:           uid,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         parsedRole,
		CreatedAt:    fromMillis(createdAt),
		UpdatedAt:    fromMillis(updatedAt),
	}, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
