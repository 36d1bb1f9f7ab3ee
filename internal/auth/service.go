package auth

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/greenmart/internal/common"
)

const (
	defaultAccessTTL = 15 * time.Minute
	rolesClaim       = "roles"
)

// RoleAdmin grants access to voucher administration.
const RoleAdmin = "admin"

// Claims is the identity carried by a verified access token.
type Claims struct {
	Subject string
	Roles   []string
}

// Config configures the auth service.
type Config struct {
	Secret         string
	AccessTokenTTL time.Duration
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
}

// Service verifies access tokens issued by the account service.
type Service struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
	signer    jwa.SignatureAlgorithm
	validator TokenValidator
}

// NewService constructs a Service instance with sane defaults.
func NewService(cfg Config) (*Service, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	accessTTL := cfg.AccessTokenTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "greenmart"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "greenmart-web"
	}
	return &Service{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		now:       time.Now,
		signer:    jwa.HS256,
		validator: TokenValidator{
			Issuer:    issuer,
			Audience:  audience,
			ClockSkew: max(cfg.ClockSkew, 0),
			Algorithm: jwa.HS256,
		},
	}, nil
}

// WithNow allows tests to override the time provider.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ParseAccessToken verifies the HMAC signature and registered claims of
// token and returns the caller identity. Every failure is a 401 AppError.
func (s *Service) ParseAccessToken(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, unauthorized("missing token", nil)
	}
	alg, err := headerAlgorithm(token)
	if err != nil {
		return Claims{}, unauthorized("invalid token", err)
	}
	if alg != s.signer {
		return Claims{}, unauthorized("invalid token", fmt.Errorf("unexpected token algorithm %s", alg))
	}
	parsed, err := jwt.ParseString(token, jwt.WithKey(s.signer, s.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, unauthorized("invalid token", err)
	}
	if err := s.validator.Validate(parsed, alg, s.now()); err != nil {
		return Claims{}, unauthorized("invalid token", err)
	}
	return Claims{Subject: parsed.Subject(), Roles: rolesFrom(parsed)}, nil
}

// IssueAccessToken signs a token for userID. Used by tooling to mint local tokens.
func (s *Service) IssueAccessToken(userID string, roles ...string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)
	builder := jwt.NewBuilder().
		Subject(userID).
		Issuer(s.validator.Issuer).
		Audience([]string{s.validator.Audience}).
		IssuedAt(now).
		NotBefore(now.Add(-s.validator.ClockSkew)).
		Expiration(expiresAt)
	if len(roles) > 0 {
		builder = builder.Claim(rolesClaim, roles)
	}
	token, err := builder.Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(s.signer, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// rolesFrom accepts the roles claim as a JSON array or a space separated string.
func rolesFrom(tok jwt.Token) []string {
	raw, _ := tok.Get(rolesClaim)
	var roles []string
	switch v := raw.(type) {
	case []string:
		roles = v
	case []any:
		for _, item := range v {
			if role, ok := item.(string); ok {
				roles = append(roles, role)
			}
		}
	case string:
		roles = strings.Fields(v)
	}
	return slices.DeleteFunc(roles, func(r string) bool { return r == "" })
}

// headerAlgorithm reads alg from the single JWS signature so unsigned or
// multi-signature tokens are refused before key lookup.
func headerAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	msg, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	sigs := msg.Signatures()
	if len(sigs) != 1 || sigs[0].ProtectedHeaders() == nil {
		return "", errors.New("auth: expected exactly one signature")
	}
	alg := sigs[0].ProtectedHeaders().Algorithm()
	if alg == "" || alg == jwa.NoSignature {
		return "", errors.New("auth: token is not signed")
	}
	return alg, nil
}

func unauthorized(message string, err error) error {
	return common.NewAppError("UNAUTHORIZED", message, http.StatusUnauthorized, err)
}
