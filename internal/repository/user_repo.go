package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"go-auth-service/internal/database"
	"go-auth-service/internal/model"
)

const userColumns = `id, name, email, password_hash, password_history, is_verified, created_at, updated_at`

type UserRepository struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = lower($1)`, strings.TrimSpace(email)))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = lower($1))`,
		strings.TrimSpace(email)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check email exists: %w", err)
	}
	return exists, nil
}

func (r *UserRepository) Create(ctx context.Context, u model.User) error {
	history, err := marshalHistory(u.PasswordHistory)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, password_history, is_verified, created_at, updated_at)
		 VALUES ($1, $2, lower($3), $4, $5, $6, $7, $8)`,
		u.ID, u.Name, u.Email, u.PasswordHash, history, u.IsVerified, u.CreatedAt, u.UpdatedAt)
	if isUniqueViolation(err) {
		return model.ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// Update persists the mutable fields. id, email and created_at never change.
func (r *UserRepository) Update(ctx context.Context, u model.User) error {
	history, err := marshalHistory(u.PasswordHistory)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET name = $2, password_hash = $3, password_history = $4, is_verified = $5, updated_at = $6
		 WHERE id = $1`,
		u.ID, u.Name, u.PasswordHash, history, u.IsVerified, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	var history []byte
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &history,
		&u.IsVerified, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return model.User{}, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &u.PasswordHistory); err != nil {
			return model.User{}, fmt.Errorf("decode password history: %w", err)
		}
	}
	return u, nil
}

func marshalHistory(history []model.PasswordHistoryEntry) ([]byte, error) {
	if history == nil {
		history = []model.PasswordHistoryEntry{}
	}
	data, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode password history: %w", err)
	}
	return data, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
