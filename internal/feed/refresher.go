package feed

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"dash/internal/store"
)

// TokenExchanger swaps a stored refresh token for a fresh access token.
type TokenExchanger interface {
	Exchange(ctx context.Context, service store.Service, refreshToken string) (string, error)
}

type oauthExchanger struct {
	configs map[store.Service]*oauth2.Config
}

func newOAuthExchanger(facebook, youtube OAuthKeys) *oauthExchanger {
	return &oauthExchanger{configs: map[store.Service]*oauth2.Config{
		store.Facebook: {ClientID: facebook.ID, ClientSecret: facebook.Secret, Endpoint: endpoints.Facebook},
		store.YouTube:  {ClientID: youtube.ID, ClientSecret: youtube.Secret, Endpoint: endpoints.Google},
	}}
}

func (e *oauthExchanger) Exchange(ctx context.Context, service store.Service, refreshToken string) (string, error) {
	cfg, ok := e.configs[service]
	if !ok {
		return "", ErrUnknownService
	}
	tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("error exchanging refresh token: %w", err)
	}
	return tok.AccessToken, nil
}

// Refresher renews a service's access token. The renewed token is persisted
// immediately rather than at the end of the cycle, so it survives even when
// the retried fetch afterwards fails.
type Refresher struct {
	users     store.UserStore
	exchanger TokenExchanger
	logger    *log.Logger
}

func NewRefresher(users store.UserStore, exchanger TokenExchanger, logger *log.Logger) *Refresher {
	return &Refresher{users: users, exchanger: exchanger, logger: logger}
}

// Refresh exchanges the connection's refresh token, installs the new access
// token on the user document, and saves it. Failures wrap ErrRefreshFailed
// so callers can tell a dead grant from a transient fetch error.
func (r *Refresher) Refresh(ctx context.Context, user *store.User, service store.Service) error {
	conn := user.Connection(service)
	if conn == nil {
		return ErrNotConnected
	}

	token, err := r.exchanger.Exchange(ctx, service, conn.RefreshToken)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	conn.AccessToken = token

	if err := r.users.Save(ctx, user); err != nil {
		return fmt.Errorf("error saving renewed token: %w", err)
	}
	r.logger.Printf("Renewed %s access token for user %s", service.Display(), user.ID)
	return nil
}
