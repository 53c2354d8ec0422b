package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	jwtpkg "lacocina/onboarding/pkg/jwt"
)

// ClientRegistration is returned once per front-end install. The client id
// names the namespace holding everything that install stores.
type ClientRegistration struct {
	ClientID  uuid.UUID `json:"client_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ClientService interface {
	Register(ctx context.Context) (*ClientRegistration, error)
}

type clientService struct {
	jwtManager *jwtpkg.Manager
}

func NewClientService(jwtManager *jwtpkg.Manager) ClientService {
	return &clientService{jwtManager: jwtManager}
}

func (s *clientService) Register(_ context.Context) (*ClientRegistration, error) {
	clientID := uuid.New()
	token, expiresAt, err := s.jwtManager.GenerateClientToken(clientID)
	if err != nil {
		return nil, fmt.Errorf("sign client token: %w", err)
	}
	return &ClientRegistration{
		ClientID:  clientID,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}
