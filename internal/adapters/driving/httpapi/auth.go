package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/custodia-labs/docpipe/internal/core/domain"
	"github.com/custodia-labs/docpipe/internal/logger"
)

const kindUnauthorized domain.Kind = "unauthorized"

// AuthConfig selects how bearer tokens are checked.
type AuthConfig struct {
	// Issuer enables OIDC discovery and signature verification.
	Issuer    string
	Audiences []string

	// TrustUpstream accepts tokens already verified by a gateway and only
	// parses their claims.
	TrustUpstream bool

	// Disabled serves every route anonymously.
	Disabled bool
}

// Authenticator resolves the caller from the Authorization header.
type Authenticator struct {
	verifier      *oidc.IDTokenVerifier
	audiences     []string
	trustUpstream bool
	enforce       bool
}

// NewAuthenticator builds an authenticator from cfg. With neither an issuer
// nor upstream trust configured, requests run anonymously and mutating
// routes stay open.
func NewAuthenticator(ctx context.Context, cfg AuthConfig) (*Authenticator, error) {
	if cfg.Disabled || (cfg.Issuer == "" && !cfg.TrustUpstream) {
		logger.Debug("auth: anonymous mode")
		return &Authenticator{}, nil
	}
	if cfg.Issuer == "" {
		return &Authenticator{trustUpstream: true, enforce: true}, nil
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("%w: oidc discovery for %s: %v", domain.ErrUpstream, cfg.Issuer, err)
	}
	return NewVerifyingAuthenticator(provider.Verifier(verifierConfig(cfg.Audiences)), cfg.Audiences), nil
}

// NewVerifyingAuthenticator builds an authenticator around an existing
// verifier.
func NewVerifyingAuthenticator(v *oidc.IDTokenVerifier, audiences []string) *Authenticator {
	return &Authenticator{verifier: v, audiences: audiences, enforce: true}
}

func verifierConfig(audiences []string) *oidc.Config {
	if len(audiences) == 1 {
		return &oidc.Config{ClientID: audiences[0]}
	}
	// Multiple audiences are checked after verification.
	return &oidc.Config{SkipClientIDCheck: true}
}

// Middleware stores the caller in the request context. Requests without a
// bearer token continue anonymously.
func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.enforce {
			c.Next()
			return
		}
		h := c.GetHeader("Authorization")
		if h == "" {
			c.Next()
			return
		}
		raw, found := strings.CutPrefix(h, "Bearer ")
		if !found || strings.TrimSpace(raw) == "" {
			unauthorized(c, "invalid authorization header format")
			return
		}

		caller, err := a.resolve(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil {
			logger.Debug("auth: rejecting token: %v", err)
			unauthorized(c, "invalid or expired token")
			return
		}
		c.Request = c.Request.WithContext(domain.WithCaller(c.Request.Context(), caller))
		c.Next()
	}
}

// RequireSubject rejects anonymous requests when tokens are enforced.
func (a *Authenticator) RequireSubject() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.enforce {
			c.Next()
			return
		}
		if caller, ok := domain.CallerFrom(c.Request.Context()); !ok || caller.Subject == "" {
			unauthorized(c, "authentication required")
			return
		}
		c.Next()
	}
}

func (a *Authenticator) resolve(ctx context.Context, raw string) (domain.Caller, error) {
	if a.verifier == nil {
		return parseUnverified(raw)
	}

	tok, err := a.verifier.Verify(ctx, raw)
	if err != nil {
		return domain.Caller{}, err
	}
	if !audienceAllowed(tok.Audience, a.audiences) {
		return domain.Caller{}, fmt.Errorf("audience %v not allowed", tok.Audience)
	}
	var claims struct {
		Subject string `json:"sub"`
		Email   string `json:"email"`
	}
	if err := tok.Claims(&claims); err != nil {
		return domain.Caller{}, err
	}
	if claims.Subject == "" {
		claims.Subject = tok.Subject
	}
	if claims.Subject == "" {
		return domain.Caller{}, fmt.Errorf("token has no subject")
	}
	return domain.Caller{Subject: claims.Subject, Email: claims.Email}, nil
}

// parseUnverified reads claims from a token verified by an upstream
// gateway. Expiry is still checked.
func parseUnverified(raw string) (domain.Caller, error) {
	tok, err := jwt.Parse([]byte(raw), jwt.WithVerify(false), jwt.WithValidate(true))
	if err != nil {
		return domain.Caller{}, err
	}
	if tok.Subject() == "" {
		return domain.Caller{}, fmt.Errorf("token has no subject")
	}
	caller := domain.Caller{Subject: tok.Subject()}
	if v, ok := tok.Get("email"); ok {
		caller.Email, _ = v.(string)
	}
	return caller, nil
}

func audienceAllowed(actual, expected []string) bool {
	if len(expected) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(actual))
	for _, aud := range actual {
		set[aud] = struct{}{}
	}
	for _, allowed := range expected {
		if _, ok := set[allowed]; ok {
			return true
		}
	}
	return false
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
		StatusAPI: statusError,
		ErrorKind: kindUnauthorized,
		Message:   msg,
	})
}
