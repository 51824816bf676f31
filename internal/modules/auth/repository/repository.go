package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"khamriver-server/internal/db"
)

//go:embed sql/list-users.sql
var listUsersSQL string

//go:embed sql/get-user.sql
var getUserSQL string

//go:embed sql/get-user-by-email.sql
var getUserByEmailSQL string

//go:embed sql/insert-user.sql
var insertUserSQL string

//go:embed sql/update-password.sql
var updatePasswordSQL string

//go:embed sql/delete-user.sql
var deleteUserSQL string

var (
	ErrNotFound      = errors.New("admin user not found")
	ErrDuplicateUser = errors.New("admin user already exists")
)

type AdminUser struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
}

type AdminRepository interface {
	ListUsers(ctx context.Context) ([]AdminUser, error)
	GetUser(ctx context.Context, id string) (AdminUser, error)
	GetUserByEmail(ctx context.Context, email string) (AdminUser, error)
	CreateUser(ctx context.Context, email, hashedPassword string) (AdminUser, error)
	UpdatePassword(ctx context.Context, id, hashedPassword string) error
	DeleteUser(ctx context.Context, id string) error
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) AdminRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) ListUsers(ctx context.Context) ([]AdminUser, error) {
	rows, err := r.db.QueryContext(ctx, listUsersSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close admin user rows", "error", err)
		}
	}()
	var out []AdminUser
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) GetUser(ctx context.Context, id string) (AdminUser, error) {
	return r.getOne(ctx, getUserSQL, id)
}

func (r *repositoryImpl) GetUserByEmail(ctx context.Context, email string) (AdminUser, error) {
	return r.getOne(ctx, getUserByEmailSQL, email)
}

func (r *repositoryImpl) CreateUser(ctx context.Context, email, hashedPassword string) (AdminUser, error) {
	if _, err := r.GetUserByEmail(ctx, email); err == nil {
		return AdminUser{}, ErrDuplicateUser
	} else if !errors.Is(err, ErrNotFound) {
		return AdminUser{}, err
	}
	u := AdminUser{
		ID:             uuid.NewString(),
		Email:          email,
		HashedPassword: hashedPassword,
		CreatedAt:      time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := r.db.ExecContext(ctx, insertUserSQL, u.ID, u.Email, u.HashedPassword, db.FormatTime(u.CreatedAt)); err != nil {
		return AdminUser{}, fmt.Errorf("insert admin user: %w", err)
	}
	return u, nil
}

func (r *repositoryImpl) UpdatePassword(ctx context.Context, id, hashedPassword string) error {
	return r.execOne(ctx, updatePasswordSQL, hashedPassword, id)
}

func (r *repositoryImpl) DeleteUser(ctx context.Context, id string) error {
	return r.execOne(ctx, deleteUserSQL, id)
}

func (r *repositoryImpl) getOne(ctx context.Context, stmt, arg string) (AdminUser, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, stmt, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return AdminUser{}, ErrNotFound
	}
	return u, err
}

func (r *repositoryImpl) execOne(ctx context.Context, stmt string, args ...any) error {
	res, err := r.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (AdminUser, error) {
	var (
		u       AdminUser
		created string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.HashedPassword, &created); err != nil {
		return AdminUser{}, err
	}
	t, err := db.ParseTime(created)
	if err != nil {
		return AdminUser{}, err
	}
	u.CreatedAt = t
	return u, nil
}
