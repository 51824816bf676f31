// Package service authenticates administrators and keeps their sessions.
// Sessions live in memory and are lost on restart.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"khamriver-server/internal/modules/auth/repository"
	"khamriver-server/internal/mqtt"
)

const (
	MinPasswordLength = 6
	entityAdminUser   = "admin_user"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("no active session")
	ErrNotAuthorized      = errors.New("not an administrator")
)

// InputError is a rejected admin user submission.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type UserInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type Options struct {
	SessionTTL time.Duration
	// Cost is the bcrypt cost; zero means bcrypt.DefaultCost.
	Cost      int
	Publisher mqtt.ChangePublisher
	Logger    *slog.Logger
}

type Service struct {
	repository repository.AdminRepository
	validate   *validator.Validate
	ttl        time.Duration
	cost       int
	publisher  mqtt.ChangePublisher
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[string]Session
}

func NewService(repo repository.AdminRepository, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	if opts.Cost == 0 {
		opts.Cost = bcrypt.DefaultCost
	}
	if opts.Publisher == nil {
		opts.Publisher = mqtt.NopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		repository: repo,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		ttl:        opts.SessionTTL,
		cost:       opts.Cost,
		publisher:  opts.Publisher,
		logger:     opts.Logger,
		now:        time.Now,
		sessions:   make(map[string]Session),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SignIn checks membership before the password, and reports both failures
// the same way.
func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	u, err := s.repository.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup admin user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	now := s.now()
	sess := Session{
		Token:     uuid.NewString(),
		UserID:    u.ID,
		Email:     u.Email,
		ExpiresAt: now.Add(s.ttl).UTC(),
	}
	s.mu.Lock()
	s.prune(now)
	s.sessions[sess.Token] = sess
	s.mu.Unlock()
	s.logger.Info("admin signed in", "user_id", u.ID)
	return sess, nil
}

// prune drops expired sessions. The caller holds s.mu.
func (s *Service) prune(now time.Time) {
	for token, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, token)
		}
	}
}

func (s *Service) SignOut(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// Session restores the session for token. A session whose user is no longer
// an administrator is revoked.
func (s *Service) Session(ctx context.Context, token string) (Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[token]
	if ok && !s.now().Before(sess.ExpiresAt) {
		delete(s.sessions, token)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return Session{}, ErrNoSession
	}

	if _, err := s.repository.GetUser(ctx, sess.UserID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.SignOut(token)
			return Session{}, ErrNotAuthorized
		}
		return Session{}, fmt.Errorf("lookup admin user: %w", err)
	}
	return sess, nil
}

// ListUsers returns administrators ordered by email, narrowed by a
// case-insensitive match on the email.
func (s *Service) ListUsers(ctx context.Context, search string) ([]repository.AdminUser, error) {
	users, err := s.repository.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	search = normalizeEmail(search)
	if search == "" {
		return users, nil
	}
	out := make([]repository.AdminUser, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Email), search) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Service) CreateUser(ctx context.Context, in UserInput) (repository.AdminUser, error) {
	in.Email = normalizeEmail(in.Email)
	if err := s.checkInput(in); err != nil {
		return repository.AdminUser{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return repository.AdminUser{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.repository.CreateUser(ctx, in.Email, string(hash))
	if errors.Is(err, repository.ErrDuplicateUser) {
		return repository.AdminUser{}, &InputError{Message: "An admin user with this email already exists."}
	}
	if err != nil {
		return repository.AdminUser{}, err
	}
	s.publish(ctx, mqtt.ActionCreated, u.ID)
	return u, nil
}

func (s *Service) UpdatePassword(ctx context.Context, id, password string) error {
	if strings.TrimSpace(id) == "" || password == "" {
		return &InputError{Message: "User ID and new password are required."}
	}
	if len(password) < MinPasswordLength {
		return &InputError{Message: fmt.Sprintf("Password must be at least %d characters long.", MinPasswordLength)}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.repository.UpdatePassword(ctx, id, string(hash)); err != nil {
		return err
	}
	s.publish(ctx, mqtt.ActionUpdated, id)
	return nil
}

// DeleteUser removes the administrator and ends their sessions.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	if err := s.repository.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	for token, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, token)
		}
	}
	s.mu.Unlock()
	s.publish(ctx, mqtt.ActionDeleted, id)
	return nil
}

func (s *Service) checkInput(in UserInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return &InputError{Message: "Please provide both email and password."}
		}
	}
	switch verrs[0].Field() {
	case "Email":
		return &InputError{Message: "Please enter a valid email address."}
	default:
		return &InputError{Message: fmt.Sprintf("Password must be at least %d characters long.", MinPasswordLength)}
	}
}

func (s *Service) publish(ctx context.Context, action mqtt.Action, id string) {
	ev := mqtt.ChangeEvent{Entity: entityAdminUser, Action: action, ID: id, At: s.now().UTC()}
	if err := s.publisher.PublishChange(ctx, ev); err != nil {
		s.logger.Warn("change event not published", "entity", entityAdminUser, "action", action, "id", id, "error", err)
	}
}
