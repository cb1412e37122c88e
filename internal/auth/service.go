package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/nutrition-engine/internal/config"
	"github.com/fdg312/nutrition-engine/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrDevAuthDisabled = errors.New("dev auth disabled")
	ErrInvalidRole     = errors.New("invalid role")
	ErrUnknownPatient  = errors.New("unknown patient")
)

const devSubject = "dev-user"

// Service — выпуск и проверка access token
type Service struct {
	config   *config.Config
	patients storage.PatientsStorage
	now      func() time.Time
}

func NewService(cfg *config.Config, store storage.Storage) *Service {
	return &Service{
		config:   cfg,
		patients: store.GetPatientsStorage(),
		now:      time.Now,
	}
}

// SignInDev — dev-авторизация без внешнего провайдера. Доступна только при AUTH_MODE=dev.
func (s *Service) SignInDev(ctx context.Context, req DevAuthRequest) (*DevAuthResponse, error) {
	if s.config.AuthMode != "dev" {
		return nil, ErrDevAuthDisabled
	}

	role := req.Role
	if role == "" {
		role = RoleProfessional
	}
	subject := req.Subject

	switch role {
	case RoleProfessional:
		if subject == "" {
			subject = devSubject
		}
	case RolePatient:
		id, err := uuid.Parse(subject)
		if err != nil {
			return nil, fmt.Errorf("%w: subject must be a patient id", ErrUnknownPatient)
		}
		if _, err := s.patients.GetPatient(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrUnknownPatient
			}
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	ttl := s.ttl()
	token, err := s.IssueToken(Principal{Subject: subject, Role: role}, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dev JWT: %w", err)
	}

	return &DevAuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
		Subject:     subject,
		Role:        role,
	}, nil
}

func (s *Service) ttl() time.Duration {
	if s.config.JWTTTLMinutes <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(s.config.JWTTTLMinutes) * time.Minute
}

// IssueToken подписывает HS256 token для principal.
func (s *Service) IssueToken(p Principal, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    s.config.JWTIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// VerifyJWT — проверка подписи, issuer и срока действия
func (s *Service) VerifyJWT(tokenString string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.config.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.JWTIssuer))
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.config.JWTSecret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Principal{}, ErrInvalidToken
	}
	role := claims.Role
	if role == "" {
		role = RoleProfessional
	}
	return Principal{Subject: claims.Subject, Role: role}, nil
}
