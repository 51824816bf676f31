package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"khamriver-server/internal/migrate"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("close db: %v", closeErr)
		}
	})
	if _, err := migrate.Run(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestAdminUsers(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	zed, err := repo.CreateUser(ctx, "zed@example.com", "hash-z")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := repo.CreateUser(ctx, "amy@example.com", "hash-a"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := repo.CreateUser(ctx, "amy@example.com", "other"); !errors.Is(err, ErrDuplicateUser) {
		t.Errorf("duplicate CreateUser err = %v; want ErrDuplicateUser", err)
	}

	users, err := repo.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[0].Email != "amy@example.com" || users[1].Email != "zed@example.com" {
		t.Errorf("ListUsers = %+v; want amy then zed", users)
	}

	got, err := repo.GetUserByEmail(ctx, "zed@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != zed.ID || got.HashedPassword != "hash-z" {
		t.Errorf("GetUserByEmail = %+v", got)
	}

	if err := repo.UpdatePassword(ctx, zed.ID, "hash-z2"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	got, err = repo.GetUser(ctx, zed.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.HashedPassword != "hash-z2" {
		t.Errorf("HashedPassword = %q; want hash-z2", got.HashedPassword)
	}

	if err := repo.DeleteUser(ctx, zed.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := repo.GetUser(ctx, zed.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetUser after delete err = %v; want ErrNotFound", err)
	}
	if err := repo.DeleteUser(ctx, zed.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteUser err = %v; want ErrNotFound", err)
	}
	if err := repo.UpdatePassword(ctx, zed.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdatePassword(missing) err = %v; want ErrNotFound", err)
	}
}
