// Package account manages users, passwords and sessions.
//
// Accounts are device-local: each device keeps its own user list in the
// local store. The admin account is seeded from configuration; executor
// accounts self-register on first login, which is what lets a kid pick up
// any family device and start earning.
package account

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"starledger/internal/auth"
	"starledger/internal/ledger"
	"starledger/internal/localstore"
)

const (
	RoleAdmin    = "admin"
	RoleExecutor = "executor"

	usersKey       = "users_v1"
	childFilterKey = "child_filter_v1"

	minPasswordLen = 4
)

var (
	ErrBadCredentials = errors.New("account: invalid username or password")
	ErrRoleMismatch   = errors.New("account: role does not match the account")
	ErrNotFound       = errors.New("account: user not found")
	ErrExists         = errors.New("account: username already taken")
	ErrWeakPassword   = fmt.Errorf("account: password must be at least %d characters", minPasswordLen)
)

// User is one device-local account.
type User struct {
	Username     string `json:"username"`
	Nickname     string `json:"nickname"`
	Role         string `json:"role"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    int64  `json:"createdAt"`
}

// Session is the authenticated identity handed to HTTP handlers.
type Session struct {
	Username string
	Nickname string
	Role     string
}

func (s Session) IsAdmin() bool { return s.Role == RoleAdmin }

type Service struct {
	local  *localstore.Store
	tokens *auth.TokenService
	books  *ledger.Ledger
	now    func() time.Time
	logf   func(format string, args ...any)
}

func NewService(local *localstore.Store, tokens *auth.TokenService, books *ledger.Ledger) *Service {
	return &Service{local: local, tokens: tokens, books: books, now: time.Now, logf: log.Printf}
}

func normalize(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (s *Service) loadUsers() ([]User, error) {
	var users []User
	err := s.local.GetJSON(usersKey, &users)
	if errors.Is(err, localstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Service) saveUsers(users []User) error {
	return s.local.SetJSON(usersKey, users)
}

func (s *Service) find(users []User, username string) (int, bool) {
	for i := range users {
		if users[i].Username == username {
			return i, true
		}
	}
	return -1, false
}

// Bootstrap seeds the admin account from configuration when the user list is
// empty. Repeat calls are no-ops.
func (s *Service) Bootstrap(adminUsername, adminPassword string) error {
	if adminUsername == "" || adminPassword == "" {
		return nil
	}
	users, err := s.loadUsers()
	if err != nil {
		return err
	}
	if len(users) > 0 {
		return nil
	}
	admin, err := s.newUser(adminUsername, adminPassword, RoleAdmin)
	if err != nil {
		return err
	}
	return s.saveUsers([]User{admin})
}

func (s *Service) newUser(username, password, role string) (User, error) {
	username = normalize(username)
	if username == "" {
		return User{}, fmt.Errorf("account: username is required")
	}
	if len(password) < minPasswordLen {
		return User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return User{
		Username:     username,
		Nickname:     username,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UnixMilli(),
	}, nil
}

// Register creates a new account with an explicit role.
func (s *Service) Register(username, password, role string) (User, error) {
	if role != RoleAdmin && role != RoleExecutor {
		return User{}, fmt.Errorf("account: unknown role %q", role)
	}
	users, err := s.loadUsers()
	if err != nil {
		return User{}, err
	}
	if _, ok := s.find(users, normalize(username)); ok {
		return User{}, ErrExists
	}
	user, err := s.newUser(username, password, role)
	if err != nil {
		return User{}, err
	}
	if err := s.saveUsers(append(users, user)); err != nil {
		return User{}, err
	}
	return user, nil
}

// Login authenticates and returns a signed session token. An unknown
// username logging in as executor is auto-registered with the offered
// password; an unknown admin is always rejected. Executor logins also
// reconcile the user's balance against the realtime mirror, best effort.
func (s *Service) Login(ctx context.Context, username, password, role string) (User, string, error) {
	username = normalize(username)
	users, err := s.loadUsers()
	if err != nil {
		return User{}, "", err
	}

	idx, ok := s.find(users, username)
	if !ok {
		if role != RoleExecutor {
			return User{}, "", ErrBadCredentials
		}
		user, err := s.Register(username, password, RoleExecutor)
		if err != nil {
			return User{}, "", err
		}
		s.reconcile(ctx, user.Username)
		token, err := s.issue(user)
		return user, token, err
	}

	user := users[idx]
	if user.Role != role {
		return User{}, "", ErrRoleMismatch
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, "", ErrBadCredentials
	}
	if user.Role == RoleExecutor {
		s.reconcile(ctx, user.Username)
	}
	token, err := s.issue(user)
	return user, token, err
}

func (s *Service) issue(user User) (string, error) {
	return s.tokens.IssueToken(auth.Claims{
		Sub:      user.Username,
		Name:     user.Username,
		Nickname: user.Nickname,
		Role:     user.Role,
	})
}

func (s *Service) reconcile(ctx context.Context, username string) {
	if s.books == nil {
		return
	}
	if _, err := s.books.Reconcile(ctx, username); err != nil {
		s.logf("account: balance reconcile failed for %s: %v", username, err)
	}
}

// SessionFromToken validates a bearer token and returns the session.
func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return Session{}, err
	}
	return Session{Username: claims.Sub, Nickname: claims.Nickname, Role: claims.Role}, nil
}

// ChangePassword verifies the current password before setting a new one.
func (s *Service) ChangePassword(username, current, next string) error {
	users, err := s.loadUsers()
	if err != nil {
		return err
	}
	idx, ok := s.find(users, normalize(username))
	if !ok {
		return ErrNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(users[idx].PasswordHash), []byte(current)); err != nil {
		return ErrBadCredentials
	}
	return s.setPassword(users, idx, next)
}

// ResetPassword sets a new password without the current one. Admin only.
func (s *Service) ResetPassword(username, next string) error {
	users, err := s.loadUsers()
	if err != nil {
		return err
	}
	idx, ok := s.find(users, normalize(username))
	if !ok {
		return ErrNotFound
	}
	return s.setPassword(users, idx, next)
}

func (s *Service) setPassword(users []User, idx int, password string) error {
	if len(password) < minPasswordLen {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	users[idx].PasswordHash = string(hash)
	return s.saveUsers(users)
}

// UpdateNickname changes the display name shown on submissions and history.
func (s *Service) UpdateNickname(username, nickname string) (User, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return User{}, fmt.Errorf("account: nickname is required")
	}
	users, err := s.loadUsers()
	if err != nil {
		return User{}, err
	}
	idx, ok := s.find(users, normalize(username))
	if !ok {
		return User{}, ErrNotFound
	}
	users[idx].Nickname = nickname
	if err := s.saveUsers(users); err != nil {
		return User{}, err
	}
	return users[idx], nil
}

// Get returns one account by username.
func (s *Service) Get(username string) (User, error) {
	users, err := s.loadUsers()
	if err != nil {
		return User{}, err
	}
	idx, ok := s.find(users, normalize(username))
	if !ok {
		return User{}, ErrNotFound
	}
	return users[idx], nil
}

// Children lists the executor accounts known on this device.
func (s *Service) Children() ([]User, error) {
	users, err := s.loadUsers()
	if err != nil {
		return nil, err
	}
	children := []User{}
	for _, user := range users {
		if user.Role == RoleExecutor {
			children = append(children, user)
		}
	}
	return children, nil
}

// ChildFilter returns the admin's saved history filter, empty for "all".
func (s *Service) ChildFilter() (string, error) {
	value, err := s.local.Get(childFilterKey)
	if errors.Is(err, localstore.ErrNotFound) {
		return "", nil
	}
	return value, err
}

// SetChildFilter saves the admin's history filter. Empty selects all.
func (s *Service) SetChildFilter(username string) error {
	username = normalize(username)
	if username == "" {
		return s.local.Delete(childFilterKey)
	}
	return s.local.Set(childFilterKey, username)
}
