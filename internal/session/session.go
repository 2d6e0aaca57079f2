// Package session owns the durable user identity. The Provider is the only
// writer of the token and user keys in the local store.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/hpungsan/memomind/internal/db"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/logger"
)

// Store keys.
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// Identity is the signed-in user. UserID is the backend username.
type Identity struct {
	Token    string
	UserID   string
	FullName string
}

// Present reports whether the identity carries a token.
func (i Identity) Present() bool {
	return i.Token != ""
}

// storedUser is the JSON shape persisted under KeyUser.
type storedUser struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
}

// Provider reads and writes the persisted identity.
type Provider struct {
	db  *sql.DB
	log logger.Logger

	group singleflight.Group

	mu        sync.Mutex
	listeners []func()
}

// NewProvider creates a provider backed by the local store.
func NewProvider(database *sql.DB, log logger.Logger) *Provider {
	if log == nil {
		log = logger.NewNop()
	}
	return &Provider{db: database, log: log}
}

// OnExpired registers a callback invoked once per expiry, after the identity
// has been cleared. The CLI uses it to send the user to the login boundary.
func (p *Provider) OnExpired(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Get returns the stored identity. A missing token yields an empty identity.
// A malformed user record is treated as absent rather than failing the read.
func (p *Provider) Get(ctx context.Context) (Identity, error) {
	token, found, err := db.GetValue(ctx, p.db, KeyToken)
	if err != nil {
		return Identity{}, err
	}
	if !found || token == "" {
		return Identity{}, nil
	}

	id := Identity{Token: token}
	raw, found, err := db.GetValue(ctx, p.db, KeyUser)
	if err != nil {
		return Identity{}, err
	}
	if found && raw != "" {
		var u storedUser
		if err := json.Unmarshal([]byte(raw), &u); err != nil {
			p.log.Warn("session", "stored user is not valid JSON", map[string]any{"error": err.Error()})
		} else {
			id.UserID = u.Username
			id.FullName = u.FullName
		}
	}
	return id, nil
}

// Token returns the stored token or "" when signed out.
func (p *Provider) Token(ctx context.Context) string {
	id, err := p.Get(ctx)
	if err != nil {
		p.log.Error("session", "failed to read token", map[string]any{"error": err.Error()})
		return ""
	}
	return id.Token
}

// Require returns the identity or AUTH_REQUIRED when no user id is available.
func (p *Provider) Require(ctx context.Context) (Identity, error) {
	id, err := p.Get(ctx)
	if err != nil {
		return Identity{}, err
	}
	if !id.Present() || id.UserID == "" {
		return Identity{}, errors.NewAuthRequired()
	}
	return id, nil
}

// Set persists a freshly issued identity.
func (p *Provider) Set(ctx context.Context, id Identity) error {
	if id.Token == "" {
		return errors.NewInvalidRequest("token is required")
	}
	user, err := json.Marshal(storedUser{Username: id.UserID, FullName: id.FullName})
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := db.SetValues(ctx, p.db, map[string]string{
		KeyToken: id.Token,
		KeyUser:  string(user),
	}); err != nil {
		return err
	}
	p.log.Info("session", "identity stored", map[string]any{"user_id": id.UserID})
	return nil
}

// Clear removes the identity. Used by logout.
func (p *Provider) Clear(ctx context.Context) error {
	if err := db.DeleteKeys(ctx, p.db, KeyToken, KeyUser); err != nil {
		return err
	}
	p.log.Info("session", "identity cleared", nil)
	return nil
}

// Expire handles a 401 for a request that was sent with token. Concurrent
// calls coalesce, and only a call whose token still matches the stored one
// clears the identity and notifies listeners. Returns true for that call.
func (p *Provider) Expire(ctx context.Context, token string) bool {
	v, _, _ := p.group.Do("expire", func() (any, error) {
		current := p.Token(ctx)
		if current == "" || current != token {
			return false, nil
		}
		if err := p.Clear(ctx); err != nil {
			p.log.Error("session", "failed to clear expired identity", map[string]any{"error": err.Error()})
			return false, nil
		}
		p.log.Warn("session", "session expired", nil)
		p.notify()
		return true, nil
	})
	return v.(bool)
}

func (p *Provider) notify() {
	p.mu.Lock()
	listeners := append([]func(){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

// ExpiresAt reads the exp claim of a JWT without verifying its signature.
// ok is false for opaque tokens or tokens without exp.
func ExpiresAt(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// Stale reports whether the stored token carries an exp claim in the past.
// Opaque tokens are never stale locally; the backend decides with a 401.
func (p *Provider) Stale(ctx context.Context, now time.Time) bool {
	token := p.Token(ctx)
	if token == "" {
		return false
	}
	exp, ok := ExpiresAt(token)
	return ok && !now.Before(exp)
}
