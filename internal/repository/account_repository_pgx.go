package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhouzirui/z-chat/backend/internal/model/chat"
)

// AccountRow is a login identity joined with its chat user.
type AccountRow struct {
	User         chat.User
	PasswordHash string
}

// PgxAccountRepository reads and writes the accounts and users tables.
type PgxAccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new PgxAccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *PgxAccountRepository {
	return &PgxAccountRepository{pool: pool}
}

// CreateAccount inserts the account and its user in one statement. The
// username starts out equal to the account name.
func (r *PgxAccountRepository) CreateAccount(ctx context.Context, account, passwordHash string) (chat.User, error) {
	query := `
		WITH new_account AS (
			INSERT INTO accounts (account, password) VALUES ($1, $2)
			RETURNING id, account
		)
		INSERT INTO users (account_id, username)
		SELECT id, account FROM new_account
		RETURNING id, username`

	var user chat.User
	err := r.pool.QueryRow(ctx, query, account, passwordHash).Scan(&user.ID, &user.Username)
	if err != nil {
		if isUniqueViolation(err) {
			return chat.User{}, fmt.Errorf("account %q: %w", account, ErrDuplicate)
		}
		return chat.User{}, err
	}
	return user, nil
}

// FindByAccount returns the account's user and password hash, or
// ErrNotFound.
func (r *PgxAccountRepository) FindByAccount(ctx context.Context, account string) (*AccountRow, error) {
	query := `
		SELECT u.id, u.username, a.password
		FROM accounts a
		JOIN users u ON u.account_id = a.id
		WHERE a.account = $1`

	var row AccountRow
	err := r.pool.QueryRow(ctx, query, account).Scan(&row.User.ID, &row.User.Username, &row.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &row, nil
}

// GetUser returns the user with id, or ErrNotFound.
func (r *PgxAccountRepository) GetUser(ctx context.Context, id int64) (chat.User, error) {
	query := `SELECT id, username FROM users WHERE id = $1`

	var user chat.User
	err := r.pool.QueryRow(ctx, query, id).Scan(&user.ID, &user.Username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.User{}, ErrNotFound
		}
		return chat.User{}, err
	}
	return user, nil
}
