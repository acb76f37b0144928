package server

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	obslogger "github.com/smallbiznis/pricedesk/internal/observability/logger"
	"github.com/smallbiznis/pricedesk/internal/providers/identity"
	"github.com/smallbiznis/pricedesk/internal/tenantcontext"
	"go.uber.org/zap"
)

const contextClaimsKey = "identity_claims"

// stripTrailingSlash rewrites /api/quote/ to /api/quote before gin routes it.
func stripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := r.URL.Path; len(p) > 1 && strings.HasSuffix(p, "/") {
			r.URL.Path = strings.TrimRight(p, "/")
			if r.URL.Path == "" {
				r.URL.Path = "/"
			}
			if r.URL.RawPath != "" {
				r.URL.RawPath = strings.TrimRight(r.URL.RawPath, "/")
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Authenticate verifies the bearer token and stores its claims on the context.
func (s *Server) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithError(c, identity.ErrMissingToken)
			return
		}

		claims, err := s.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextClaimsKey, claims)
		c.Next()
	}
}

// ResolveTenant maps the verified subject to a local user and scopes the
// request to that user's tenant.
func (s *Server) ResolveTenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := claimsFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		principal, err := s.userSvc.ResolveSubject(c.Request.Context(), claims.Subject)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := tenantcontext.With(c.Request.Context(), principal.TenantID, principal.UserID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) requireFeature(feature string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		actorID, ok := tenantcontext.ActorIDFromContext(ctx)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		if err := s.rbacSvc.Authorize(ctx, actorID, feature, c.Request.Method); err != nil {
			obslogger.FromContext(ctx).Info("permission denied",
				zap.String("feature", feature),
				zap.String("method", c.Request.Method),
			)
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

// WebhookRateLimit throttles provider callbacks per client address.
func (s *Server) WebhookRateLimit(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := s.webhookLimiter.Allow(c.Request.Context(), provider, c.ClientIP())
		if res.Allowed {
			c.Next()
			return
		}

		if res.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		}
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		s.obsMetrics.RecordRateLimited(c.Request.Context(), provider+"_webhook", "source")
		AbortWithError(c, ErrRateLimited)
	}
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

func claimsFromContext(c *gin.Context) (identity.Claims, bool) {
	v, ok := c.Get(contextClaimsKey)
	if !ok {
		return identity.Claims{}, false
	}
	claims, ok := v.(identity.Claims)
	return claims, ok && strings.TrimSpace(claims.Subject) != ""
}
