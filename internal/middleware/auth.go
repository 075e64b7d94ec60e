package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"orgadmin/internal/audit"
	"orgadmin/internal/service"
	"orgadmin/pkg/apperror"
	"orgadmin/pkg/response"
)

const (
	principalKey = "principal"

	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"
)

// CookieSettings controls the session cookies. Secure cookies use
// SameSite=None so a cross-origin frontend can send them.
type CookieSettings struct {
	Secure        bool
	AccessMaxAge  int
	RefreshMaxAge int
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func SetTokenCookies(c *gin.Context, cs CookieSettings, accessToken, refreshToken string) {
	c.SetSameSite(sameSite(cs))
	c.SetCookie(AccessCookie, accessToken, cs.AccessMaxAge, "/", "", cs.Secure, true)
	c.SetCookie(RefreshCookie, refreshToken, cs.RefreshMaxAge, "/", "", cs.Secure, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func ClearTokenCookies(c *gin.Context, cs CookieSettings) {
	c.SetSameSite(sameSite(cs))
	c.SetCookie(AccessCookie, "", -1, "/", "", cs.Secure, true)
	c.SetCookie(RefreshCookie, "", -1, "/", "", cs.Secure, true)
}

func sameSite(cs CookieSettings) http.SameSite {
	if cs.Secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// BearerToken returns the access token from the Authorization header, falling
// back to the access_token cookie.
func BearerToken(c *gin.Context) (string, error) {
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", apperror.Unauthenticated("invalid authorization format, expected 'Bearer <token>'")
		}
		return parts[1], nil
	}
	if cookie, err := c.Cookie(AccessCookie); err == nil && cookie != "" {
		return cookie, nil
	}
	return "", apperror.Unauthenticated("authorization is missing")
}

// Authenticate resolves the caller once per request. The principal is kept on
// the gin context and the actor is bound to the request context, where the
// unit of work picks it up when stamping.
func Authenticate(auth service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := BearerToken(c)
		if err != nil {
			abort(c, err)
			return
		}
		p, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			abort(c, err)
			return
		}
		c.Set(principalKey, *p)
		c.Request = c.Request.WithContext(audit.WithActor(c.Request.Context(), p.UserID))
		c.Next()
	}
}

// PrincipalFrom returns the principal set by Authenticate.
func PrincipalFrom(c *gin.Context) (service.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return service.Principal{}, false
	}
	p, ok := v.(service.Principal)
	return p, ok
}

// RequirePermission lets the request through only if the authenticated
// caller currently holds every key. It must run after Authenticate.
func RequirePermission(authz service.Authorizer, keys ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			abort(c, apperror.Unauthenticated("authorization is missing"))
			return
		}
		for _, key := range keys {
			if err := authz.Authorize(c.Request.Context(), p.UserID, key); err != nil {
				abort(c, err)
				return
			}
		}
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	res := response.FromError(err)
	c.AbortWithStatusJSON(res.StatusCode, res)
}
