package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"khamriver-server/internal/modules/auth/repository"
	"khamriver-server/internal/modules/auth/service"
	"khamriver-server/internal/utils"
)

const (
	msgInvalidCredentials = "Invalid credentials. Please try again."
	msgNotAuthorized      = "You are not authorized to access the admin area."
	msgSignInRequired     = "Please sign in to access the admin area."
	msgTooManyAttempts    = "Too many sign-in attempts. Please wait and try again."
)

type sessionKey struct{}

// SessionFromContext returns the session attached by RequireAdmin.
func SessionFromContext(ctx context.Context) (service.Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(service.Session)
	return sess, ok
}

// sessionToken reads the bearer token, falling back to the session cookie.
func sessionToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

func (c *authControllerImpl) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			utils.WriteError(w, http.StatusUnauthorized, msgSignInRequired)
			return
		}
		sess, err := c.service.Session(r.Context(), token)
		switch {
		case errors.Is(err, service.ErrNoSession):
			c.clearCookie(w)
			utils.WriteError(w, http.StatusUnauthorized, msgSignInRequired)
			return
		case errors.Is(err, service.ErrNotAuthorized):
			c.clearCookie(w)
			utils.WriteError(w, http.StatusForbidden, msgNotAuthorized)
			return
		case err != nil:
			slog.Error("session lookup failed", "error", err)
			utils.WriteError(w, http.StatusInternalServerError, "failed to check session")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *authControllerImpl) handleSignIn(w http.ResponseWriter, r *http.Request) {
	if !c.throttle.allow(utils.ClientIP(r)) {
		utils.WriteError(w, http.StatusTooManyRequests, msgTooManyAttempts)
		return
	}
	var req signInRequest
	if err := utils.ReadJSON(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := c.service.SignIn(r.Context(), req.Email, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		utils.WriteError(w, http.StatusUnauthorized, msgInvalidCredentials)
		return
	}
	if err != nil {
		slog.Error("sign-in failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to sign in")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	utils.WriteJSON(w, http.StatusOK, sess)
}

func (c *authControllerImpl) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if token := sessionToken(r); token != "" {
		c.service.SignOut(token)
	}
	c.clearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (c *authControllerImpl) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, _ := SessionFromContext(r.Context())
	utils.WriteJSON(w, http.StatusOK, sess)
}

func (c *authControllerImpl) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := c.service.ListUsers(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		slog.Error("list admin users failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load admin users. Please try again.")
		return
	}
	if users == nil {
		users = []repository.AdminUser{}
	}
	utils.WriteJSON(w, http.StatusOK, users)
}

func (c *authControllerImpl) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var in service.UserInput
	if err := utils.ReadJSON(w, r, &in); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := c.service.CreateUser(r.Context(), in)
	if err != nil {
		c.writeUserError(w, "create admin user", err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, u)
}

type passwordRequest struct {
	Password string `json:"password"`
}

func (c *authControllerImpl) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := utils.ReadJSON(w, r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := c.service.UpdatePassword(r.Context(), r.PathValue("id"), req.Password); err != nil {
		c.writeUserError(w, "update admin password", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *authControllerImpl) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := c.service.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		c.writeUserError(w, "delete admin user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *authControllerImpl) writeUserError(w http.ResponseWriter, op string, err error) {
	var ierr *service.InputError
	switch {
	case errors.As(err, &ierr):
		utils.WriteError(w, http.StatusBadRequest, ierr.Message)
	case errors.Is(err, repository.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, "admin user not found")
	default:
		slog.Error(op+" failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

func (c *authControllerImpl) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
