package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenType string

const TokenTypeClient TokenType = "client"

// Claims extends jwt.RegisteredClaims with custom fields.
// Subject is the client id that namespaces the client's stored state.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType `json:"token_type"`
}

type Manager struct {
	signingKey     []byte
	issuer         string
	clientTokenTTL time.Duration
	now            func() time.Time
}

func NewManager(signingKey string, issuer string, clientTokenTTL time.Duration) *Manager {
	return &Manager{
		signingKey:     []byte(signingKey),
		issuer:         issuer,
		clientTokenTTL: clientTokenTTL,
		now:            time.Now,
	}
}

// GenerateClientToken creates a signed token for a client id and returns
// it with its expiry.
func (m *Manager) GenerateClientToken(clientID uuid.UUID) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.clientTokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   clientID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.New().String(),
		},
		TokenType: TokenTypeClient,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses and validates a token string, returning claims.
func (m *Manager) Validate(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.signingKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	if claims.Issuer != m.issuer {
		return nil, errors.New("invalid issuer")
	}

	return claims, nil
}
