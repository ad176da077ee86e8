package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"plutus/pkg/httpx"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	email         TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	address       TEXT NOT NULL DEFAULT '',
	server_wallet TEXT NOT NULL DEFAULT '',
	saved_wallets TEXT NOT NULL DEFAULT '[]',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);
`

// SQLite is the embedded record backend.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if missing) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)

	var (
		u                     User
		serverWallet, wallets string
		createdAt, updatedAt  string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT email, name, address, server_wallet, saved_wallets, created_at, updated_at FROM users WHERE email = ?`,
		email,
	).Scan(&u.Email, &u.Name, &u.Address, &serverWallet, &wallets, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httpx.NotFound(ErrNotFound, "User not found.")
	}
	if err != nil {
		return nil, err
	}

	if serverWallet != "" {
		u.ServerWallet = &ServerWallet{}
		if err := json.Unmarshal([]byte(serverWallet), u.ServerWallet); err != nil {
			return nil, fmt.Errorf("store: decode server wallet of %s: %w", email, err)
		}
	}
	if err := json.Unmarshal([]byte(wallets), &u.SavedWallets); err != nil {
		return nil, fmt.Errorf("store: decode saved wallets of %s: %w", email, err)
	}
	if u.SavedWallets == nil {
		u.SavedWallets = []Wallet{}
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &u, nil
}

func (s *SQLite) Save(ctx context.Context, u *User) error {
	u.Email = NormalizeEmail(u.Email)
	stamp(u)

	var serverWallet string
	if u.ServerWallet != nil {
		b, err := json.Marshal(u.ServerWallet)
		if err != nil {
			return err
		}
		serverWallet = string(b)
	}
	wallets, err := json.Marshal(u.SavedWallets)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (email, name, address, server_wallet, saved_wallets, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			server_wallet = excluded.server_wallet,
			saved_wallets = excluded.saved_wallets,
			updated_at = excluded.updated_at`,
		u.Email, u.Name, u.Address, serverWallet, string(wallets),
		u.CreatedAt.Format(time.RFC3339Nano), u.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", u.Email, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
