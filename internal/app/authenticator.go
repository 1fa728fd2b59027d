package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dkeye/Resonance/internal/core"
	"github.com/dkeye/Resonance/internal/domain"
	"github.com/rs/zerolog/log"
)

// Authenticator admits a connection by resolving its credential to a user.
type Authenticator struct {
	verifier core.TokenVerifier
}

func NewAuthenticator(v core.TokenVerifier) *Authenticator {
	return &Authenticator{verifier: v}
}

// Authenticate never retries; every failure is reported as domain.ErrAuthentication.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, fmt.Errorf("%w: missing token", domain.ErrAuthentication)
	}
	u, err := a.verifier.Verify(ctx, token)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.auth").Msg("token rejected")
		if errors.Is(err, domain.ErrAuthentication) {
			return domain.User{}, err
		}
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}
	nu, err := domain.NewUser(u.ID, u.DisplayName)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}
	return *nu, nil
}
