// Package store persists user and wallet records keyed by email.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"plutus/pkg/config"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned when no record exists for an email.
var ErrNotFound = errors.New("store: user not found")

// Wallet is an address the user bookmarked.
type Wallet struct {
	Address  string `json:"address"`
	Nickname string `json:"nickname"`
}

// ServerWallet is the custodial wallet provisioned for the user.
type ServerWallet struct {
	ID        string `json:"id"`
	Address   string `json:"address"`
	ChainType string `json:"chainType"`
}

// User is one record.
type User struct {
	Email        string        `json:"email"`
	Name         string        `json:"name"`
	Address      string        `json:"address,omitempty"`
	ServerWallet *ServerWallet `json:"serverWallet,omitempty"`
	SavedWallets []Wallet      `json:"savedWallets"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Store is a record backend.
type Store interface {
	// FindByEmail returns the record or an error matching ErrNotFound.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Save inserts or replaces the record and stamps its timestamps.
	Save(ctx context.Context, u *User) error
	Close() error
}

// Open selects the backend named by cfg.Driver. An empty driver disables
// records and returns a nil Store.
func Open(ctx context.Context, cfg config.StoreConfig, redisCfg config.RedisConfig) (Store, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case "sqlite":
		s, err := OpenSQLite(ctx, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		client, err := NewRedisClient(ctx, redisCfg)
		if err != nil {
			return nil, err
		}
		return NewRedis(client, cfg.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// NormalizeEmail is the key form of an email.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func stamp(u *User) {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.SavedWallets == nil {
		u.SavedWallets = []Wallet{}
	}
}

// AddUser creates the record for email. An existing record is returned
// unchanged.
func AddUser(ctx context.Context, s Store, email, name string) (*User, error) {
	email = NormalizeEmail(email)
	u, err := s.FindByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	u = &User{Email: email, Name: name}
	if err := s.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SaveWallet bookmarks address on the user's record. Saving an address
// already present (case-insensitive) updates its nickname.
func SaveWallet(ctx context.Context, s Store, email string, w Wallet) (*User, error) {
	u, err := s.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, err
	}
	replaced := false
	for i := range u.SavedWallets {
		if strings.EqualFold(u.SavedWallets[i].Address, w.Address) {
			u.SavedWallets[i].Nickname = w.Nickname
			replaced = true
			break
		}
	}
	if !replaced {
		u.SavedWallets = append(u.SavedWallets, w)
	}
	if err := s.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// SetAddress records the user's connected wallet address, creating the
// record when it does not exist.
func SetAddress(ctx context.Context, s Store, email, address string) (*User, error) {
	email = NormalizeEmail(email)
	u, err := s.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		u, err = &User{Email: email}, nil
	}
	if err != nil {
		return nil, err
	}
	u.Address = address
	if err := s.Save(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
