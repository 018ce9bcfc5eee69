package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/99minutos/identity-system/internal/core/domain"
)

const (
	DefaultKeyPrefix = "identity"

	// maxTxAttempts bounds how often a write is retried after a watched key
	// changed under it.
	maxTxAttempts = 5
)

// errStale aborts a transaction whose pre-read no longer matches the store.
var errStale = errors.New("user changed during transaction")

// UserRepository stores each user as a hash with one index key per username
// and email. Writes watch every key they check, so the uniqueness check and
// the write commit together or not at all.
//
// Key layout:
//
//	<prefix>:user:<id>           hash of the user record
//	<prefix>:username:<username> user id
//	<prefix>:email:<email>       user id
//	<prefix>:users               set of user ids
type UserRepository struct {
	client *redis.Client
	prefix string
}

func NewUserRepository(client *redis.Client, prefix string) *UserRepository {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &UserRepository{client: client, prefix: prefix}
}

func (r *UserRepository) userKey(id uuid.UUID) string { return r.prefix + ":user:" + id.String() }
func (r *UserRepository) usernameKey(u string) string { return r.prefix + ":username:" + u }
func (r *UserRepository) emailKey(e string) string    { return r.prefix + ":email:" + e }
func (r *UserRepository) usersKey() string            { return r.prefix + ":users" }

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	return r.retry(ctx, "create user", func() error {
		return r.client.Watch(ctx, func(tx *redis.Tx) error {
			n, err := tx.Exists(ctx, r.userKey(user.ID)).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return domain.ErrUserIDTaken
			}
			if err := r.checkUnique(ctx, tx, user); err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, r.userKey(user.ID), toHash(user))
				pipe.Set(ctx, r.usernameKey(user.Username), user.ID.String(), 0)
				pipe.Set(ctx, r.emailKey(user.Email), user.ID.String(), 0)
				pipe.SAdd(ctx, r.usersKey(), user.ID.String())
				return nil
			})
			return err
		}, r.userKey(user.ID), r.usernameKey(user.Username), r.emailKey(user.Email))
	})
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	return r.retry(ctx, "update user", func() error {
		current, err := r.FindByID(ctx, user.ID)
		if err != nil {
			return err
		}

		keys := []string{
			r.userKey(user.ID),
			r.usernameKey(current.Username), r.emailKey(current.Email),
			r.usernameKey(user.Username), r.emailKey(user.Email),
		}
		return r.client.Watch(ctx, func(tx *redis.Tx) error {
			if err := r.unchanged(ctx, tx, current); err != nil {
				return err
			}
			if err := r.checkUnique(ctx, tx, user); err != nil {
				return err
			}

			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if current.Username != user.Username {
					pipe.Del(ctx, r.usernameKey(current.Username))
					pipe.Set(ctx, r.usernameKey(user.Username), user.ID.String(), 0)
				}
				if current.Email != user.Email {
					pipe.Del(ctx, r.emailKey(current.Email))
					pipe.Set(ctx, r.emailKey(user.Email), user.ID.String(), 0)
				}
				pipe.HSet(ctx, r.userKey(user.ID), toHash(user))
				return nil
			})
			return err
		}, keys...)
	})
}

func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.retry(ctx, "delete user", func() error {
		current, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}

		return r.client.Watch(ctx, func(tx *redis.Tx) error {
			if err := r.unchanged(ctx, tx, current); err != nil {
				return err
			}
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, r.userKey(id), r.usernameKey(current.Username), r.emailKey(current.Email))
				pipe.SRem(ctx, r.usersKey(), id.String())
				return nil
			})
			return err
		}, r.userKey(id), r.usernameKey(current.Username), r.emailKey(current.Email))
	})
}

func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	fields, err := r.client.HGetAll(ctx, r.userKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: load user: %v", domain.ErrRepository, err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrUserNotFound
	}
	return fromHash(fields)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findByIndex(ctx, r.usernameKey(username))
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findByIndex(ctx, r.emailKey(email))
}

// FindAll returns users ordered by creation time, then username.
func (r *UserRepository) FindAll(ctx context.Context) ([]*domain.User, error) {
	ids, err := r.client.SMembers(ctx, r.usersKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", domain.ErrRepository, err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, r.prefix+":user:"+id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: load users: %v", domain.ErrRepository, err)
	}

	users := make([]*domain.User, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			// Deleted between SMEMBERS and HGETALL.
			continue
		}
		u, err := fromHash(fields)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}

	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Username < users[j].Username
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

func (r *UserRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *UserRepository) findByIndex(ctx context.Context, key string) (*domain.User, error) {
	raw, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read index: %v", domain.ErrRepository, err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: index %s holds %q", domain.ErrRepository, key, raw)
	}
	return r.FindByID(ctx, id)
}

// checkUnique rejects the write if the username or email index points at a
// different user.
func (r *UserRepository) checkUnique(ctx context.Context, tx *redis.Tx, user *domain.User) error {
	checks := []struct {
		key string
		err error
	}{
		{r.usernameKey(user.Username), domain.ErrUsernameTaken},
		{r.emailKey(user.Email), domain.ErrEmailTaken},
	}
	for _, c := range checks {
		owner, err := tx.Get(ctx, c.key).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		case owner != user.ID.String():
			return c.err
		}
	}
	return nil
}

// unchanged confirms the record still matches the copy read before WATCH, so
// the watched index keys are the ones the write will touch.
func (r *UserRepository) unchanged(ctx context.Context, tx *redis.Tx, current *domain.User) error {
	fields, err := tx.HMGet(ctx, r.userKey(current.ID), "username", "email").Result()
	if err != nil {
		return err
	}
	if fields[0] == nil {
		return domain.ErrUserNotFound
	}
	if fields[0] != current.Username || fields[1] != current.Email {
		return errStale
	}
	return nil
}

// retry re-runs fn while it loses optimistic-lock races. Domain errors pass
// through, anything else becomes a repository failure.
func (r *UserRepository) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = fn()
		if errors.Is(err, redis.TxFailedErr) || errors.Is(err, errStale) {
			continue
		}
		if err == nil || isDomainError(err) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", domain.ErrRepository, op, err)
	}
	return fmt.Errorf("%w: %s: gave up after %d contended attempts", domain.ErrRepository, op, maxTxAttempts)
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrRepository)
}

func toHash(u *domain.User) map[string]any {
	return map[string]any{
		"id":            u.ID.String(),
		"username":      u.Username,
		"email":         u.Email,
		"password_hash": u.PasswordHash,
		"role":          string(u.Role),
		"created_at":    u.CreatedAt.UTC().UnixMilli(),
		"updated_at":    u.UpdatedAt.UTC().UnixMilli(),
	}
}

func fromHash(f map[string]string) (*domain.User, error) {
	id, err := uuid.Parse(f["id"])
	if err != nil {
		return nil, fmt.Errorf("%w: stored user id %q: %v", domain.ErrRepository, f["id"], err)
	}
	role, err := domain.ParseRole(f["role"])
	if err != nil {
		return nil, fmt.Errorf("%w: stored role %q for user %s", domain.ErrRepository, f["role"], id)
	}
	created, err := strconv.ParseInt(f["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: created_at for user %s: %v", domain.ErrRepository, id, err)
	}
	updated, err := strconv.ParseInt(f["updated_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: updated_at for user %s: %v", domain.ErrRepository, id, err)
	}

	return &domain.User{
		ID:           id,
		Username:     f["username"],
		Email:        f["email"],
		PasswordHash: f["password_hash"],
		Role:         role,
		CreatedAt:    time.UnixMilli(created).UTC(),
		UpdatedAt:    time.UnixMilli(updated).UTC(),
	}, nil
}
