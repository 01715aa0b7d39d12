package auth

import (
	"context"
	"fmt"

	"github.com/vovakirdan/wirearena-server/internal/lobby"
)

// JWTValidator checks session tokens locally instead of asking the lobby.
type JWTValidator struct {
	cfg *JWTConfig
}

// NewJWTValidator builds a validator for tokens signed with cfg.Secret.
func NewJWTValidator(cfg *JWTConfig) *JWTValidator {
	return &JWTValidator{cfg: cfg}
}

// ValidateSession implements lobby.Validator. Any token problem is reported
// as lobby.ErrRejected.
func (v *JWTValidator) ValidateSession(ctx context.Context, token string) (lobby.Identity, error) {
	if err := ctx.Err(); err != nil {
		return lobby.Identity{}, err
	}
	claims, err := ValidateToken(v.cfg, token)
	if err != nil {
		return lobby.Identity{}, fmt.Errorf("%w: %v", lobby.ErrRejected, err)
	}
	return lobby.Identity{UserID: claims.UserID, Name: claims.Name}, nil
}

var _ lobby.Validator = (*JWTValidator)(nil)
