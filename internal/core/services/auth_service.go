package services

import (
	"errors"
	"time"

	"callhub/internal/core/domain"
	"callhub/internal/core/ports"
	"callhub/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

type AuthService interface {
	ports.IdentityProvider
	GenerateToken(userID domain.UserID, username string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type Claims struct {
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
	jwt.RegisteredClaims
}

type authService struct {
	jwtSecret      []byte
	accessTokenTTL time.Duration
}

func NewAuthService(jwtSecret string, accessTokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret:      []byte(jwtSecret),
		accessTokenTTL: accessTokenTTL,
	}
}

func (s *authService) GenerateToken(userID domain.UserID, username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// Identify turns a bearer token into the identity of the connecting user.
// A token naming the reserved guest id or carrying an unusable display name
// is rejected. An empty name falls back to the user id.
func (s *authService) Identify(tokenString string) (domain.Identity, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return domain.Identity{}, err
	}
	identity := domain.Identity{UserID: claims.UserID, UserName: claims.Username}
	if identity.IsGuest() {
		return domain.Identity{}, ErrInvalidToken
	}
	if identity.UserName == "" {
		identity.UserName = string(identity.UserID)
	}
	if err := validation.ValidateUserName(identity.UserName); err != nil {
		return domain.Identity{}, ErrInvalidToken
	}
	return identity, nil
}
