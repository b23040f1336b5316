// Package account handles signup, login and username lookup.
package account

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
	"github.com/zhouzirui/z-chat/backend/internal/repository"
)

var (
	ErrInvalidInput       = errors.New("account and password are required")
	ErrAccountExists      = errors.New("account already exists")
	ErrInvalidCredentials = errors.New("account or password is incorrect")
	ErrUserNotFound       = errors.New("user not found")
)

// lookupTimeout bounds a shared user lookup, which no single caller may cancel.
const lookupTimeout = 5 * time.Second

// Repository is the persistence the service needs.
type Repository interface {
	CreateAccount(ctx context.Context, account, passwordHash string) (chat.User, error)
	FindByAccount(ctx context.Context, account string) (*repository.AccountRow, error)
	GetUser(ctx context.Context, id int64) (chat.User, error)
}

// Service authenticates principals. Usernames never change, so lookups by
// id are cached for the life of the process.
type Service struct {
	repo Repository
	cost int

	mu     sync.RWMutex
	users  map[int64]chat.User
	lookup singleflight.Group
}

// NewService wires the account service to its repository.
func NewService(repo Repository) *Service {
	return &Service{
		repo:  repo,
		cost:  bcrypt.DefaultCost,
		users: make(map[int64]chat.User),
	}
}

// Signup registers a new account and returns its user.
func (s *Service) Signup(ctx context.Context, account, password string) (chat.User, error) {
	account = strings.TrimSpace(account)
	if account == "" || password == "" {
		return chat.User{}, ErrInvalidInput
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return chat.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.CreateAccount(ctx, account, string(hash))
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return chat.User{}, ErrAccountExists
		}
		return chat.User{}, fmt.Errorf("create account: %w", err)
	}

	s.remember(user)
	return user, nil
}

// Login checks the credentials and returns the matching user.
func (s *Service) Login(ctx context.Context, account, password string) (chat.User, error) {
	account = strings.TrimSpace(account)
	if account == "" || password == "" {
		return chat.User{}, ErrInvalidInput
	}

	row, err := s.repo.FindByAccount(ctx, account)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return chat.User{}, ErrInvalidCredentials
		}
		return chat.User{}, fmt.Errorf("find account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		return chat.User{}, ErrInvalidCredentials
	}

	s.remember(row.User)
	return row.User, nil
}

// User resolves a principal id to its user.
func (s *Service) User(ctx context.Context, id int64) (chat.User, error) {
	s.mu.RLock()
	user, ok := s.users[id]
	s.mu.RUnlock()
	if ok {
		return user, nil
	}

	// Concurrent misses for one id share a single query.
	v, err, _ := s.lookup.Do(strconv.FormatInt(id, 10), func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		user, err := s.repo.GetUser(lookupCtx, id)
		if err != nil {
			return chat.User{}, err
		}
		s.remember(user)
		return user, nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return chat.User{}, ErrUserNotFound
		}
		return chat.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return v.(chat.User), nil
}

func (s *Service) remember(user chat.User) {
	s.mu.Lock()
	s.users[user.ID] = user
	s.mu.Unlock()
}
