package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/luantaraschi/petichat-definitive/apperr"
	"github.com/luantaraschi/petichat-definitive/models"
)

// Claims identify the caller of an authenticated request
type Claims struct {
	UserID   uuid.UUID             `json:"uid"`
	TenantID uuid.UUID             `json:"tid"`
	Email    string                `json:"email"`
	Role     models.MembershipRole `json:"role"`
	jwt.RegisteredClaims
}

// AuthService signs users up and issues access tokens
type AuthService struct {
	store      AuthStore
	secret     []byte
	ttl        time.Duration
	bcryptCost int
	now        func() time.Time
}

// AuthServiceOption is a functional option for AuthService
type AuthServiceOption func(*AuthService)

// AuthWithStore sets the auth store
func AuthWithStore(store AuthStore) AuthServiceOption {
	return func(s *AuthService) { s.store = store }
}

// AuthWithSecret sets the HMAC secret and lifetime of access tokens
func AuthWithSecret(secret string, ttl time.Duration) AuthServiceOption {
	return func(s *AuthService) {
		s.secret = []byte(secret)
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// AuthWithBcryptCost overrides the password hashing cost
func AuthWithBcryptCost(cost int) AuthServiceOption {
	return func(s *AuthService) { s.bcryptCost = cost }
}

// AuthWithClock overrides the clock used for token timestamps
func AuthWithClock(now func() time.Time) AuthServiceOption {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates a new auth service
func NewAuthService(opts ...AuthServiceOption) *AuthService {
	s := &AuthService{ttl: 24 * time.Hour, bcryptCost: 12, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SignupRequest registers a law firm with its first user
type SignupRequest struct {
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=8,max=72"`
	Name      string `validate:"required,min=2"`
	FirmName  string `validate:"required,min=2"`
	OABNumber *string
}

// AuthResult is returned by signup and login
type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      *models.User
	TenantID  uuid.UUID
	Role      models.MembershipRole
}

// Signup creates tenant, user and owner membership in one transaction
func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*AuthResult, error) {
	if s.store == nil {
		return nil, errors.New("auth repository not set")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	req.FirmName = strings.TrimSpace(req.FirmName)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	tenant := &models.Tenant{Name: req.FirmName, Slug: Slugify(req.FirmName) + "-" + uuid.NewString()[:8]}
	user := &models.User{Email: req.Email, PasswordHash: string(hash), Name: req.Name, OABNumber: req.OABNumber}
	membership, err := s.store.Signup(ctx, tenant, user)
	if err != nil {
		return nil, err
	}
	return s.issue(user, membership)
}

// Login checks credentials and issues a token for the user's primary tenant
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if s.store == nil {
		return nil, errors.New("auth repository not set")
	}
	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthorized(errors.New("invalid credentials"))
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Unauthorized(errors.New("invalid credentials"))
	}
	membership, err := s.store.PrimaryMembership(ctx, user.ID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.Unauthorized(errors.New("user has no tenant"))
	}
	if err != nil {
		return nil, err
	}
	return s.issue(user, membership)
}

func (s *AuthService) issue(user *models.User, m *models.Membership) (*AuthResult, error) {
	if len(s.secret) == 0 {
		return nil, errors.New("JWT secret not set")
	}
	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		UserID:   user.ID,
		TenantID: m.TenantID,
		Email:    user.Email,
		Role:     m.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &AuthResult{Token: token, ExpiresAt: expires, User: user, TenantID: m.TenantID, Role: m.Role}, nil
}

// ParseToken validates an access token and returns its claims
func (s *AuthService) ParseToken(token string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, apperr.Unauthorized(errors.New("JWT secret not set"))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, apperr.Unauthorized(err)
	}
	if claims.UserID == uuid.Nil || claims.TenantID == uuid.Nil {
		return nil, apperr.Unauthorized(errors.New("token without subject or tenant"))
	}
	return claims, nil
}

// Slugify lowercases s and keeps ASCII letters and digits separated by dashes
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(foldAccents(s)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "escritorio"
	}
	return out
}

var accentFolds = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "ê", "e", "è", "e",
	"í", "i", "î", "i",
	"ó", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ü", "u",
	"ç", "c",
	"Á", "a", "À", "a", "Â", "a", "Ã", "a",
	"É", "e", "Ê", "e",
	"Í", "i",
	"Ó", "o", "Ô", "o", "Õ", "o",
	"Ú", "u",
	"Ç", "c",
)

func foldAccents(s string) string { return accentFolds.Replace(s) }
