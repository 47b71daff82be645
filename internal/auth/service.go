package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/sojourn-loans/sojourn/internal/shared"
)

const refreshKeyPrefix = "auth:refresh:"

// Config carries token issuance parameters.
type Config struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	client *redis.Client
	cfg    Config
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, client *redis.Client, cfg Config) *Service {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	return &Service{repo: repo, client: client, cfg: cfg, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// Login validates phone/password credentials and issues a token pair.
func (s *Service) Login(ctx context.Context, phone, password string) (*User, TokenPair, error) {
	normalized, err := shared.NormalizePhone(phone)
	if err != nil {
		return nil, TokenPair{}, shared.ErrInvalidCredentials
	}
	user, err := s.repo.FindByPhone(ctx, normalized)
	if err != nil {
		return nil, TokenPair{}, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, TokenPair{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, TokenPair{}, shared.ErrInvalidCredentials
	}
	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Refresh rotates a refresh token: the presented token is revoked and a
// fresh pair is issued. Expired, unknown and already-rotated tokens all
// fail uniformly.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*User, TokenPair, error) {
	if refreshToken == "" {
		return nil, TokenPair{}, shared.ErrTokenExpired
	}
	raw, err := s.client.GetDel(ctx, refreshKeyPrefix+refreshToken).Result()
	if errors.Is(err, redis.Nil) {
		return nil, TokenPair{}, shared.ErrTokenExpired
	}
	if err != nil {
		return nil, TokenPair{}, err
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, TokenPair{}, shared.ErrTokenExpired
	}
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil || !user.IsActive {
		return nil, TokenPair{}, shared.ErrTokenExpired
	}
	pair, err := s.issuePair(ctx, user)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return user, pair, nil
}

// Logout revokes a refresh token. Unknown tokens are not an error.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.client.Del(ctx, refreshKeyPrefix+refreshToken).Err()
}

// ChangePassword verifies the current credential and replaces it.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, updated string) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return shared.ErrInvalidCredentials
	}
	if len(updated) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(updated), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, userID, string(hash), false)
}

// ParseAccessToken validates a bearer token and returns the caller
// identity.
func (s *Service) ParseAccessToken(tokenString string) (*shared.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrTokenExpired, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, shared.ErrTokenExpired
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, shared.ErrTokenExpired
	}
	return &shared.Identity{UserID: userID, Role: claims.Role, FullName: claims.FullName}, nil
}

func (s *Service) issuePair(ctx context.Context, user *User) (TokenPair, error) {
	now := s.now()
	claims := &Claims{
		Role:     user.Role,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign token: %w", err)
	}

	refresh := uuid.NewString()
	if err := s.client.Set(ctx, refreshKeyPrefix+refresh, strconv.FormatInt(user.ID, 10), s.cfg.RefreshTTL).Err(); err != nil {
		return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTTL.Seconds()),
	}, nil
}
