package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"

	"github.com/memzapp/memz/internal/apperror"
)

// sessionTokenBytes is the number of random bytes in a session token.
const sessionTokenBytes = 32

// minPasswordLength applies to passwords set from the command line.
const minPasswordLength = 8

// argon2id parameters tuned for a self-hosted application running on
// modest hardware: memory=64MB, iterations=3, parallelism=4.
const (
	argonTime    = 3
	argonMemory  = 64 * 1024 // 64 MB in KiB
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// Sign-in failure messages shown on the form.
const (
	msgNotAllowed         = "This email is not allowed."
	msgInvalidCredentials = "Invalid email or password."
)

// AuthService defines the business logic contract for authentication.
// Handlers call these methods and never touch the repository directly.
type AuthService interface {
	Login(ctx context.Context, input LoginInput) (token string, session *Session, err error)

	// LoginExternal signs in an address already verified by an OAuth
	// provider. Only the allow-list applies; no password or user record is
	// needed.
	LoginExternal(ctx context.Context, email, ip string) (token string, session *Session, err error)

	ValidateSession(ctx context.Context, token string) (*Session, error)
	DestroySession(ctx context.Context, token string) error

	// AddUser creates a user or resets an existing user's password.
	AddUser(ctx context.Context, email, password string) (*User, error)
	RemoveUser(ctx context.Context, email string) error
	ListUsers(ctx context.Context) ([]User, error)

	// Allowed reports whether email is on the allow-list.
	Allowed(email string) bool
}

// authService implements AuthService with argon2id hashing, a pluggable
// session store and the allow-list.
type authService struct {
	repo       UserRepository
	sessions   SessionStore
	allow      *AllowList
	sessionTTL time.Duration
	now        func() time.Time
}

// NewAuthService creates a new auth service with the given dependencies.
func NewAuthService(repo UserRepository, sessions SessionStore, allow *AllowList, sessionTTL time.Duration) AuthService {
	return &authService{
		repo:       repo,
		sessions:   sessions,
		allow:      allow,
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

// Login signs a user in. The allow-list is checked before the password so a
// removed address gets the same answer whether or not the account exists.
func (s *authService) Login(ctx context.Context, input LoginInput) (string, *Session, error) {
	email := NormalizeEmail(input.Email)
	if email == "" {
		return "", nil, apperror.NewValidation("Email is required.")
	}
	if input.Password == "" {
		return "", nil, apperror.NewValidation("Password is required.")
	}

	if !s.allow.Allowed(email) {
		slog.Info("sign-in refused, email not allowed", slog.String("email", email))
		return "", nil, apperror.NewForbidden(msgNotAllowed)
	}

	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if apperror.IsNotFound(err) {
			return "", nil, apperror.NewUnauthorized(msgInvalidCredentials)
		}
		return "", nil, apperror.NewInternal(fmt.Errorf("finding user: %w", err))
	}

	if !verifyPassword(input.Password, user.PasswordHash) {
		return "", nil, apperror.NewUnauthorized(msgInvalidCredentials)
	}

	return s.startSession(ctx, user.Email, input.IP, "password")
}

func (s *authService) LoginExternal(ctx context.Context, email, ip string) (string, *Session, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return "", nil, apperror.NewValidation("Email is required.")
	}
	if !s.allow.Allowed(email) {
		slog.Info("sign-in refused, email not allowed", slog.String("email", email))
		return "", nil, apperror.NewForbidden(msgNotAllowed)
	}
	return s.startSession(ctx, email, ip, "oauth")
}

// startSession issues a token for an already authenticated email.
func (s *authService) startSession(ctx context.Context, email, ip, method string) (string, *Session, error) {
	token, err := generateSessionToken()
	if err != nil {
		return "", nil, apperror.NewInternal(fmt.Errorf("generating session token: %w", err))
	}

	now := s.now().UTC()
	session := &Session{Email: email, CreatedAt: now}
	if err := s.sessions.Save(ctx, token, session, s.sessionTTL); err != nil {
		return "", nil, apperror.NewInternal(fmt.Errorf("creating session: %w", err))
	}

	// Non-critical; a failure only costs the timestamp. OAuth users may have
	// no record at all.
	if err := s.repo.UpdateLastLogin(ctx, email, now); err != nil && !apperror.IsNotFound(err) {
		slog.Warn("failed to update last login",
			slog.String("email", email),
			slog.Any("error", err),
		)
	}

	slog.Info("user signed in",
		slog.String("email", email),
		slog.String("ip", ip),
		slog.String("method", method),
	)

	return token, session, nil
}

// ValidateSession returns the session for token. The allow-list is checked
// again so taking an address off the list ends its sessions.
func (s *authService) ValidateSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}

	session, err := s.sessions.Get(ctx, token)
	if errors.Is(err, ErrSessionNotFound) {
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("reading session: %w", err))
	}

	if !s.allow.Allowed(session.Email) {
		if err := s.sessions.Delete(ctx, token); err != nil {
			slog.Warn("failed to drop revoked session", slog.Any("error", err))
		}
		return nil, apperror.NewUnauthorized("session expired or invalid")
	}

	return session, nil
}

// DestroySession removes a session, signing the user out.
func (s *authService) DestroySession(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return apperror.NewInternal(fmt.Errorf("deleting session: %w", err))
	}
	return nil
}

func (s *authService) AddUser(ctx context.Context, email, password string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperror.NewValidation("A valid email address is required.")
	}
	if len(password) < minPasswordLength {
		return nil, apperror.NewValidation(fmt.Sprintf("Password must be at least %d characters.", minPasswordLength))
	}

	hash, err := hashPassword(password)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}

	user := &User{
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Upsert(ctx, user); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("saving user: %w", err))
	}

	if !s.allow.Allowed(email) {
		slog.Warn("user saved but not on the allow-list", slog.String("email", email))
	}
	return user, nil
}

func (s *authService) RemoveUser(ctx context.Context, email string) error {
	if err := s.repo.Delete(ctx, NormalizeEmail(email)); err != nil {
		if apperror.IsNotFound(err) {
			return err
		}
		return apperror.NewInternal(fmt.Errorf("removing user: %w", err))
	}
	return nil
}

func (s *authService) ListUsers(ctx context.Context) ([]User, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing users: %w", err))
	}
	return users, nil
}

func (s *authService) Allowed(email string) bool {
	return s.allow.Allowed(email)
}

// --- Password Hashing (argon2id) ---

// hashPassword creates an argon2id hash in PHC form:
// $argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
func hashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash)), nil
}

// verifyPassword checks a plaintext password against an argon2id hash
// string, using the parameters recorded in the hash.
func verifyPassword(password, encodedHash string) bool {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(expected, computed) == 1
}

// generateSessionToken creates a cryptographically random hex-encoded token.
func generateSessionToken() (string, error) {
	b := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
