package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/vitals/internal/domain/access"
)

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey enables HS256 verification instead of JWKS.
	SigningKey []byte
	Skipper    echomw.Skipper
	HTTPClient *http.Client
	CacheTTL   time.Duration
}

// JWTMiddleware verifies the bearer token and stores the resulting Principal
// in the request context. With neither SigningKey nor JWKSURL set, the JWKS
// location is discovered from Issuer.
func JWTMiddleware(cfg JWTConfig) (echo.MiddlewareFunc, error) {
	skipper := cfg.Skipper
	if skipper == nil {
		skipper = echomw.DefaultSkipper
	}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	var keyfunc func(ctx context.Context) jwt.Keyfunc
	switch {
	case len(cfg.SigningKey) > 0:
		opts = append(opts, jwt.WithValidMethods([]string{"HS256"}))
		keyfunc = func(context.Context) jwt.Keyfunc {
			return func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }
		}
	default:
		url := cfg.JWKSURL
		if url == "" {
			if cfg.Issuer == "" {
				return nil, errors.New("auth: one of signing key, JWKS URL or issuer is required")
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			var err error
			if url, err = DiscoverJWKSURL(ctx, cfg.HTTPClient, cfg.Issuer); err != nil {
				return nil, err
			}
		}
		opts = append(opts, jwt.WithValidMethods([]string{"RS256"}))
		keyfunc = NewJWKSCache(url, cfg.CacheTTL, cfg.HTTPClient).Keyfunc
	}
	parser := jwt.NewParser(opts...)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}
			tokenStr, err := bearerToken(c.Request())
			if err != nil {
				return err
			}

			ctx := c.Request().Context()
			claims := &Claims{}
			token, err := parser.ParseWithClaims(tokenStr, claims, keyfunc(ctx))
			if err != nil || !token.Valid {
				zerolog.Ctx(ctx).Debug().Err(err).Msg("rejected bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			if claims.Subject == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "token has no subject")
			}

			c.Set("jwt_verified", true)
			c.Set("jwt_tenant_id", claims.TenantID)
			c.SetRequest(c.Request().WithContext(withPrincipal(ctx, claims.Principal())))
			return next(c)
		}
	}, nil
}

// DevAuthMiddleware admits requests without credentials as a fixed staff
// principal. Requests that do carry an Authorization header go through
// verify, which may be nil to reject them.
func DevAuthMiddleware(verify echo.MiddlewareFunc) echo.MiddlewareFunc {
	dev := access.Principal{ID: "dev-user", Username: "dev-user", Staff: true}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := next
		if verify != nil {
			verified = verify(next)
		}
		return func(c echo.Context) error {
			if c.Request().Header.Get(echo.HeaderAuthorization) != "" {
				if verify == nil {
					return echo.NewHTTPError(http.StatusUnauthorized, "token verification not configured")
				}
				return verified(c)
			}
			ctx := withPrincipal(c.Request().Context(), dev)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func withPrincipal(ctx context.Context, p access.Principal) context.Context {
	zerolog.Ctx(ctx).UpdateContext(func(zc zerolog.Context) zerolog.Context {
		return zc.Str("principal", string(p.ID))
	})
	return WithPrincipal(ctx, p)
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return token, nil
}
