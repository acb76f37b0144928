package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/pricedesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrMissingToken = errors.New("missing_token")
	ErrInvalidToken = errors.New("invalid_token")
)

// Claims are the identity fields read from an access token.
type Claims struct {
	Subject  string
	Email    string
	Username string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email    string `json:"email"`
	Username string `json:"username"`
	// Cognito access tokens carry the app client in client_id instead of aud.
	ClientID string `json:"client_id"`
}

type jwtVerifier struct {
	keyFunc  jwt.Keyfunc
	methods  []string
	issuer   string
	audience string
}

// NewVerifier verifies Cognito tokens against the user pool JWKS, or HS256
// tokens signed with AUTH_JWT_SECRET when no JWKS URL is configured.
func NewVerifier(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Verifier, error) {
	log = log.Named("identity.verifier")

	if url := cfg.Auth.JWKSURL; url != "" {
		ctx, cancel := context.WithCancel(context.Background())
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{url})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("load jwks: %w", err)
		}
		lc.Append(fx.StopHook(cancel))
		log.Info("verifying tokens with jwks", zap.String("url", url))
		return &jwtVerifier{
			keyFunc:  jwks.Keyfunc,
			methods:  []string{"RS256"},
			issuer:   cfg.Auth.Issuer,
			audience: cfg.Auth.Audience,
		}, nil
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("either AUTH_JWKS_URL or AUTH_JWT_SECRET must be set")
	}
	if cfg.IsProduction() {
		log.Warn("shared-secret token verification enabled in production")
	}
	return NewHMACVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience), nil
}

func NewHMACVerifier(secret, issuer, audience string) Verifier {
	key := []byte(secret)
	return &jwtVerifier{
		keyFunc: func(*jwt.Token) (any, error) {
			return key, nil
		},
		methods:  []string{"HS256"},
		issuer:   issuer,
		audience: audience,
	}
}

func (v *jwtVerifier) Verify(_ context.Context, raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims tokenClaims
	token, err := jwt.ParseWithClaims(raw, &claims, v.keyFunc, opts...)
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	if v.audience != "" && !v.audienceMatches(claims) {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Username: claims.Username,
	}, nil
}

func (v *jwtVerifier) audienceMatches(claims tokenClaims) bool {
	if claims.ClientID == v.audience {
		return true
	}
	for _, aud := range claims.Audience {
		if aud == v.audience {
			return true
		}
	}
	return false
}
