// Package auth verifies credentials and issues the bearer tokens used by the
// HTTP API and the WebSocket handshake.
package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/officechat/internal/common"
	"github.com/Tyrowin/officechat/internal/store"
)

// HashPassword returns a bcrypt hash of plaintext.
func HashPassword(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	return string(hashed), err
}

// CompareHashAndPassword reports whether plaintext matches hashed.
func CompareHashAndPassword(hashed, plaintext string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext))
}

// Authenticator resolves users from credentials and tokens.
type Authenticator struct {
	users  store.IdentityStore
	tokens *Issuer
	logger *zap.Logger
}

// NewAuthenticator builds an Authenticator.
func NewAuthenticator(users store.IdentityStore, tokens *Issuer, logger *zap.Logger) *Authenticator {
	return &Authenticator{users: users, tokens: tokens, logger: logger}
}

// Login checks email and password and returns a token for approved users.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (a *Authenticator) Login(ctx context.Context, email, password string) (string, *store.User, error) {
	u, err := a.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", nil, common.ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := CompareHashAndPassword(u.PasswordHash, password); err != nil {
		a.logger.Debug("password mismatch", zap.Int64("user_id", u.ID))
		return "", nil, common.ErrInvalidCredentials
	}
	if !u.IsApproved {
		return "", nil, common.ErrNotApproved
	}
	token, err := a.tokens.Issue(u.ID)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// Identify resolves the approved user a token was issued for. Any failure is
// reported as common.ErrUnauthenticated wrapping the cause.
func (a *Authenticator) Identify(ctx context.Context, token string) (*store.User, error) {
	if token == "" {
		return nil, common.ErrUnauthenticated
	}
	userID, err := a.tokens.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthenticated, err)
	}
	u, err := a.users.UserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthenticated, err)
	}
	if !u.IsApproved {
		return nil, fmt.Errorf("%w: %w", common.ErrUnauthenticated, common.ErrNotApproved)
	}
	return u, nil
}

// Approve lets a pending account log in. Only administrators may approve.
func (a *Authenticator) Approve(ctx context.Context, actor *store.User, email string) error {
	if actor == nil || !actor.IsAdmin {
		return fmt.Errorf("approve %s: %w", email, common.ErrPermissionDenied)
	}
	if err := a.users.ApproveUser(ctx, email); err != nil {
		return fmt.Errorf("approve %s: %w", email, err)
	}
	a.logger.Info("user approved", zap.String("email", email), zap.Int64("by", actor.ID))
	return nil
}
