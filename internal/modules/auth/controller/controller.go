package controller

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"khamriver-server/internal/modules/auth/repository"
	"khamriver-server/internal/modules/auth/service"
)

const SessionCookie = "khamriver_session"

type AuthService interface {
	SignIn(ctx context.Context, email, password string) (service.Session, error)
	SignOut(token string)
	Session(ctx context.Context, token string) (service.Session, error)
	ListUsers(ctx context.Context, search string) ([]repository.AdminUser, error)
	CreateUser(ctx context.Context, in service.UserInput) (repository.AdminUser, error)
	UpdatePassword(ctx context.Context, id, password string) error
	DeleteUser(ctx context.Context, id string) error
}

type AuthController interface {
	RegisterRoutes(mux *http.ServeMux)
	// RequireAdmin rejects requests without a valid administrator session.
	RequireAdmin(next http.Handler) http.Handler
}

type Options struct {
	SecureCookies bool
	// SignInRate and SignInBurst bound sign-in attempts per client address.
	SignInRate  rate.Limit
	SignInBurst int
}

type authControllerImpl struct {
	service  AuthService
	secure   bool
	throttle *throttle
}

func NewAuthController(svc AuthService, opts Options) AuthController {
	if opts.SignInRate == 0 {
		opts.SignInRate = rate.Every(6 * time.Second)
	}
	if opts.SignInBurst == 0 {
		opts.SignInBurst = 5
	}
	return &authControllerImpl{
		service:  svc,
		secure:   opts.SecureCookies,
		throttle: newThrottle(opts.SignInRate, opts.SignInBurst),
	}
}

func (c *authControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/sign-in", c.handleSignIn)
	mux.HandleFunc("POST /api/auth/sign-out", c.handleSignOut)
	mux.Handle("GET /api/auth/session", c.RequireAdmin(http.HandlerFunc(c.handleSession)))

	mux.Handle("GET /api/admin/users", c.RequireAdmin(http.HandlerFunc(c.handleListUsers)))
	mux.Handle("POST /api/admin/users", c.RequireAdmin(http.HandlerFunc(c.handleCreateUser)))
	mux.Handle("PUT /api/admin/users/{id}/password", c.RequireAdmin(http.HandlerFunc(c.handleUpdatePassword)))
	mux.Handle("DELETE /api/admin/users/{id}", c.RequireAdmin(http.HandlerFunc(c.handleDeleteUser)))
}
